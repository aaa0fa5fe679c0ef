package hl7v2

import "sort"

// Kind classifies how a segment is assembled into a Result.
type Kind int

const (
	// Singleton segments occur at most once; the record is stored directly.
	Singleton Kind = iota
	// Repeatable segments are appended to an ordered list.
	Repeatable
)

func (k Kind) String() string {
	switch k {
	case Singleton:
		return "singleton"
	case Repeatable:
		return "repeatable"
	default:
		return "unknown"
	}
}

// SegmentDecoder decodes one segment type.
type SegmentDecoder struct {
	// Key is the Result key the record is written under (e.g. "Patient" for PID).
	Key  string
	Kind Kind

	// Decode turns the fields of one line into a record. It must not fail:
	// absent fields are decoded to their empty defaults.
	Decode func(f Fields) Record

	// Inspect optionally reports malformed fields. It never affects Decode.
	Inspect func(f Fields) []Warning
}

// TableDecoder builds a SegmentDecoder driven by a declarative field table.
func TableDecoder(key string, kind Kind, table FieldTable) SegmentDecoder {
	return SegmentDecoder{
		Key:     key,
		Kind:    kind,
		Decode:  table.Decode,
		Inspect: table.Inspect,
	}
}

// Registry maps a segment tag to its decoder. Lookup is exact and case-sensitive.
type Registry map[string]SegmentDecoder

// DefaultRegistry returns a new registry holding the built-in decoders for
// MSH, PID, EVN, PD1, PV1, PV2, NK1, OBX, AL1, DG1 and IN1. Each call returns
// a fresh map, so callers may modify it freely.
func DefaultRegistry() Registry {
	r := make(Registry, len(builtinTables))
	for _, b := range builtinTables {
		r[b.tag] = TableDecoder(b.key, b.kind, b.table)
	}
	return r
}

// Register adds or replaces the decoder for tag.
func (r Registry) Register(tag string, d SegmentDecoder) {
	r[tag] = d
}

// Unregister removes the decoder for tag; lines with that tag are then skipped.
func (r Registry) Unregister(tag string) {
	delete(r, tag)
}

// Lookup returns the decoder registered for tag.
func (r Registry) Lookup(tag string) (SegmentDecoder, bool) {
	d, ok := r[tag]
	if ok && d.Decode == nil {
		return SegmentDecoder{}, false
	}
	return d, ok
}

// Clone returns a shallow copy of the registry.
func (r Registry) Clone() Registry {
	c := make(Registry, len(r))
	for tag, d := range r {
		c[tag] = d
	}
	return c
}

// Tags returns the registered tags in sorted order.
func (r Registry) Tags() []string {
	tags := make([]string, 0, len(r))
	for tag := range r {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
