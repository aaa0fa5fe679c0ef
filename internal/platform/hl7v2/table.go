package hl7v2

import (
	"fmt"
	"strings"
)

// Name is the decoded form of a family^given composite field.
type Name struct {
	Family string `json:"family"`
	Given  string `json:"given"`
}

// Address is the decoded form of an XAD composite field
// (street^other^city^state^postal code).
type Address struct {
	Line       string `json:"line"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
}

// Gender values produced from the administrative sex code.
const (
	GenderMale    = "male"
	GenderFemale  = "female"
	GenderUnknown = "unknown"
)

// Extract converts the raw text of one field into its decoded value.
type Extract func(raw string) any

// Text keeps the field verbatim, components included.
func Text(raw string) any {
	return raw
}

// FirstComponent keeps only the first component of the field.
func FirstComponent(raw string) any {
	return component(splitComponents(raw), 0)
}

// PersonName decodes family^given.
func PersonName(raw string) any {
	parts := splitComponents(raw)
	return Name{
		Family: component(parts, 0),
		Given:  component(parts, 1),
	}
}

// PostalAddress decodes street^other^city^state^zip. The second component
// (other designation) is not carried.
func PostalAddress(raw string) any {
	parts := splitComponents(raw)
	return Address{
		Line:       component(parts, 0),
		City:       component(parts, 2),
		State:      component(parts, 3),
		PostalCode: component(parts, 4),
	}
}

// Gender maps the administrative sex code: M and F are recognized, anything
// else (including an empty field) is unknown.
func Gender(raw string) any {
	switch raw {
	case "M":
		return GenderMale
	case "F":
		return GenderFemale
	default:
		return GenderUnknown
	}
}

// FieldSpec binds a semantic name to a field position.
type FieldSpec struct {
	Name    string
	Pos     int
	Extract Extract

	// Timestamp marks fields whose non-empty value is expected to be an HL7
	// timestamp. A value that does not parse is reported as a warning.
	Timestamp bool
}

// FieldTable is the declarative position-to-name mapping of one segment type.
type FieldTable []FieldSpec

// Validate reports duplicate names, non-positive positions and specs without
// an extractor.
func (t FieldTable) Validate() error {
	seen := make(map[string]bool, len(t))
	for _, spec := range t {
		if spec.Name == "" {
			return fmt.Errorf("hl7v2: field at position %d has no name", spec.Pos)
		}
		if spec.Pos < 1 {
			return fmt.Errorf("hl7v2: field %q has invalid position %d", spec.Name, spec.Pos)
		}
		if spec.Extract == nil {
			return fmt.Errorf("hl7v2: field %q has no extractor", spec.Name)
		}
		if seen[spec.Name] {
			return fmt.Errorf("hl7v2: duplicate field name %q", spec.Name)
		}
		seen[spec.Name] = true
	}
	return nil
}

// Decode builds a Record holding every declared field. Missing or empty
// fields take the extractor's zero value ("" or an empty composite).
func (t FieldTable) Decode(f Fields) Record {
	rec := make(Record, len(t))
	for _, spec := range t {
		rec[spec.Name] = spec.Extract(f.Get(spec.Pos))
	}
	return rec
}

// Inspect returns warnings for timestamp fields whose value does not parse.
func (t FieldTable) Inspect(f Fields) []Warning {
	var warnings []Warning
	for _, spec := range t {
		if !spec.Timestamp {
			continue
		}
		v := f.Get(spec.Pos)
		if v == "" {
			continue
		}
		if _, err := parseHL7Timestamp(v); err != nil {
			warnings = append(warnings, Warning{
				Tag:     f.Tag(),
				Field:   spec.Name,
				Message: fmt.Sprintf("position %d: %q is not an HL7 timestamp", spec.Pos, v),
			})
		}
	}
	return warnings
}

func splitComponents(raw string) []string {
	return strings.Split(raw, ComponentSeparator)
}
