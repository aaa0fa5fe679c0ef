package hl7v2

import (
	"fmt"

	"github.com/rs/zerolog"
)

// SingletonPolicy decides which occurrence of a repeated singleton segment is kept.
type SingletonPolicy int

const (
	// LastWins keeps the last occurrence (each line overwrites the previous one).
	LastWins SingletonPolicy = iota
	// FirstWins keeps the first occurrence and ignores later ones.
	FirstWins
)

func (p SingletonPolicy) String() string {
	if p == FirstWins {
		return "first"
	}
	return "last"
}

// ParseSingletonPolicy accepts "last" or "first"; "" means last.
func ParseSingletonPolicy(s string) (SingletonPolicy, error) {
	switch s {
	case "", "last":
		return LastWins, nil
	case "first":
		return FirstWins, nil
	default:
		return LastWins, fmt.Errorf("hl7v2: unknown singleton policy %q (want \"first\" or \"last\")", s)
	}
}

// SkippedLine is a line that had no registered decoder.
type SkippedLine struct {
	Line int    `json:"line"`
	Tag  string `json:"tag"`
}

// Duplicate records a singleton segment that appeared more than once.
type Duplicate struct {
	Key  string `json:"key"`
	Line int    `json:"line"`
	Kept int    `json:"kept"`
}

// Warning reports a malformed field. The field is still decoded verbatim.
type Warning struct {
	Line    int    `json:"line"`
	Tag     string `json:"tag"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Diagnostics describes what a decode dropped or found suspicious.
// Line numbers are 1-based positions in the split message.
type Diagnostics struct {
	Skipped    []SkippedLine `json:"skipped,omitempty"`
	Duplicates []Duplicate   `json:"duplicates,omitempty"`
	Warnings   []Warning     `json:"warnings,omitempty"`
}

// Empty reports whether nothing was recorded.
func (d Diagnostics) Empty() bool {
	return len(d.Skipped) == 0 && len(d.Duplicates) == 0 && len(d.Warnings) == 0
}

// Report is a Result together with its Diagnostics.
type Report struct {
	Result      Result      `json:"result"`
	Diagnostics Diagnostics `json:"diagnostics"`
}

// Decoder converts raw HL7v2 messages into Results. A Decoder holds no
// per-message state and is safe for concurrent use as long as its registry
// is not modified.
type Decoder struct {
	registry Registry
	policy   SingletonPolicy
	logger   zerolog.Logger
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithRegistry replaces the built-in segment decoders.
func WithRegistry(r Registry) Option {
	return func(d *Decoder) {
		if r != nil {
			d.registry = r
		}
	}
}

// WithSingletonPolicy selects which occurrence of a repeated singleton is kept.
func WithSingletonPolicy(p SingletonPolicy) Option {
	return func(d *Decoder) {
		d.policy = p
	}
}

// WithLogger logs diagnostics at debug level.
func WithLogger(logger zerolog.Logger) Option {
	return func(d *Decoder) {
		d.logger = logger
	}
}

// NewDecoder creates a Decoder using DefaultRegistry and LastWins unless
// overridden by opts.
func NewDecoder(opts ...Option) *Decoder {
	d := &Decoder{
		registry: DefaultRegistry(),
		policy:   LastWins,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Registry returns the registry the decoder dispatches on.
func (d *Decoder) Registry() Registry {
	return d.registry
}

// Decode decodes raw into a Result. It never fails: unknown segments are
// dropped and missing fields decode to empty values.
func (d *Decoder) Decode(raw string) Result {
	return d.DecodeReport(raw).Result
}

// DecodeReport decodes raw and also returns what was skipped or malformed.
func (d *Decoder) DecodeReport(raw string) Report {
	rep := Report{Result: Result{}}
	kept := make(map[string]int)

	for i, line := range SplitSegments(raw) {
		lineNo := i + 1
		fields := SplitFields(line)
		tag := fields.Tag()

		dec, ok := d.registry.Lookup(tag)
		if !ok {
			if tag != "" {
				rep.Diagnostics.Skipped = append(rep.Diagnostics.Skipped, SkippedLine{Line: lineNo, Tag: tag})
			}
			continue
		}

		if dec.Inspect != nil {
			for _, w := range dec.Inspect(fields) {
				w.Line = lineNo
				if w.Tag == "" {
					w.Tag = tag
				}
				rep.Diagnostics.Warnings = append(rep.Diagnostics.Warnings, w)
			}
		}

		if dec.Kind == Singleton {
			if prev, dup := kept[dec.Key]; dup {
				if d.policy == FirstWins {
					rep.Diagnostics.Duplicates = append(rep.Diagnostics.Duplicates, Duplicate{Key: dec.Key, Line: lineNo, Kept: prev})
					continue
				}
				rep.Diagnostics.Duplicates = append(rep.Diagnostics.Duplicates, Duplicate{Key: dec.Key, Line: prev, Kept: lineNo})
			}
			kept[dec.Key] = lineNo
		}

		rep.Result.apply(dec, dec.Decode(fields))
	}

	d.logDiagnostics(rep.Diagnostics)
	return rep
}

func (d *Decoder) logDiagnostics(diag Diagnostics) {
	if diag.Empty() {
		return
	}
	for _, s := range diag.Skipped {
		d.logger.Debug().Int("line", s.Line).Str("tag", s.Tag).Msg("hl7v2: skipped segment without decoder")
	}
	for _, dup := range diag.Duplicates {
		d.logger.Debug().Str("key", dup.Key).Int("line", dup.Line).Int("kept", dup.Kept).Msg("hl7v2: duplicate singleton segment")
	}
	for _, w := range diag.Warnings {
		d.logger.Debug().Int("line", w.Line).Str("tag", w.Tag).Str("field", w.Field).Msg(w.Message)
	}
}

var defaultDecoder = NewDecoder()

// Decode decodes raw with the built-in registry.
func Decode(raw string) Result {
	return defaultDecoder.Decode(raw)
}

// DecodeWith decodes raw with a caller-supplied registry. A nil registry
// falls back to the built-in one.
func DecodeWith(raw string, r Registry) Result {
	return NewDecoder(WithRegistry(r)).Decode(raw)
}
