package hl7v2

import "sort"

// Record is one decoded segment: semantic field name to value. Values are
// strings, Name or Address for the built-in decoders.
type Record map[string]any

// Text returns the string value of field, or "" when it is absent or not a string.
func (r Record) Text(field string) string {
	s, _ := r[field].(string)
	return s
}

// Result is the assembled output of one decode. Singleton keys hold a Record,
// repeatable keys hold a []Record in source order. Keys only exist for
// segments that appeared in the input.
type Result map[string]any

// Set stores rec under key, replacing any earlier value.
func (r Result) Set(key string, rec Record) {
	r[key] = rec
}

// Append adds rec to the list under key, creating the list on first use.
// A non-list value already stored under key is replaced by a new list.
func (r Result) Append(key string, rec Record) {
	list, _ := r[key].([]Record)
	r[key] = append(list, rec)
}

// Record returns the singleton record stored under key.
func (r Result) Record(key string) (Record, bool) {
	rec, ok := r[key].(Record)
	return rec, ok
}

// Records returns the repeatable records stored under key.
func (r Result) Records(key string) []Record {
	list, _ := r[key].([]Record)
	return list
}

// Keys returns the result keys in sorted order.
func (r Result) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// apply writes rec according to the decoder's kind. This is the only place
// the singleton/repeatable distinction is enforced.
func (r Result) apply(d SegmentDecoder, rec Record) {
	if rec == nil {
		rec = Record{}
	}
	switch d.Kind {
	case Repeatable:
		r.Append(d.Key, rec)
	default:
		r.Set(d.Key, rec)
	}
}
