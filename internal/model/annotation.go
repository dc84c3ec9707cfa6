package model

import (
	"math"
	"sort"
)

// Annotator ids used for non-model sources.
const (
	AnnotatorHuman = "human"
)

// Record is one annotator's claim that (Theme, Code) applies to Span of
// an answer. Records are values: a tree never hands out pointers into its
// storage, and replacing a record means removing it and adding another.
type Record struct {
	Theme      string
	Code       string
	Span       Span
	Confidence float64
	Annotator  string
}

// NewRecord builds a record, rejecting confidence outside [0, 1].
func NewRecord(theme, code string, span Span, confidence float64, annotator string) (Record, error) {
	if !ValidConfidence(confidence) {
		return Record{}, NewValidationError(ErrInvalidConfidence, "confidence %v is outside [0, 1]", confidence).At(theme, code, -1)
	}
	return Record{
		Theme:      theme,
		Code:       code,
		Span:       span,
		Confidence: confidence,
		Annotator:  annotator,
	}, nil
}

// ValidConfidence reports whether c is a number in [0, 1].
func ValidConfidence(c float64) bool {
	return !math.IsNaN(c) && c >= 0 && c <= 1
}

// Equal compares every field. Confidence compares exactly.
func (r Record) Equal(o Record) bool {
	return r.Theme == o.Theme &&
		r.Code == o.Code &&
		r.Span.Equal(o.Span) &&
		r.Confidence == o.Confidence &&
		r.Annotator == o.Annotator
}

// Tree is the annotation tree of one answer: theme -> code -> records.
// Several records under one (theme, code) are independent tags, not
// versions of each other. A nil or empty tree means "unannotated".
type Tree map[string]map[string][]Record

// NewTree builds a tree from records in order.
func NewTree(records ...Record) Tree {
	t := Tree{}
	for _, r := range records {
		t.Add(r)
	}
	return t
}

// Add appends r under its own theme and code.
func (t Tree) Add(r Record) {
	t.Put(r.Theme, r.Code, r)
}

// Put appends r under (theme, code). The key wins: r's Theme and Code are
// set to match it.
func (t Tree) Put(theme, code string, r Record) {
	r.Theme, r.Code = theme, code
	codes, ok := t[theme]
	if !ok {
		codes = make(map[string][]Record)
		t[theme] = codes
	}
	codes[code] = append(codes[code], r)
}

// Get returns a copy of the records under (theme, code).
func (t Tree) Get(theme, code string) []Record {
	return append([]Record(nil), t[theme][code]...)
}

// Len counts all records.
func (t Tree) Len() int {
	n := 0
	for _, codes := range t {
		for _, recs := range codes {
			n += len(recs)
		}
	}
	return n
}

// IsEmpty reports whether the tree holds no records.
func (t Tree) IsEmpty() bool {
	return t.Len() == 0
}

// Clone returns a deep copy. Empty code lists and themes are dropped, and
// every record is filed under the key it was stored at.
func (t Tree) Clone() Tree {
	return t.Filter(func(Record) bool { return true })
}

// Filter returns a new tree holding the records for which keep is true,
// each under the key it was stored at.
func (t Tree) Filter(keep func(Record) bool) Tree {
	out := Tree{}
	for _, k := range t.Keys() {
		for _, r := range t[k.Theme][k.Code] {
			if keep(r) {
				out.Put(k.Theme, k.Code, r)
			}
		}
	}
	return out
}

// Without returns a new tree with every record by annotator removed.
func (t Tree) Without(annotator string) Tree {
	return t.Filter(func(r Record) bool { return r.Annotator != annotator })
}

// Key addresses one (theme, code) pair.
type Key struct {
	Theme string
	Code  string
}

func (k Key) String() string {
	return k.Theme + "|" + k.Code
}

// Keys lists the (theme, code) pairs that hold at least one record,
// sorted by theme then code.
func (t Tree) Keys() []Key {
	var keys []Key
	for theme, codes := range t {
		for code, recs := range codes {
			if len(recs) > 0 {
				keys = append(keys, Key{Theme: theme, Code: code})
			}
		}
	}
	SortKeys(keys)
	return keys
}

// Records flattens the tree in Keys order, preserving insertion order
// within each key.
func (t Tree) Records() []Record {
	var out []Record
	for _, k := range t.Keys() {
		out = append(out, t[k.Theme][k.Code]...)
	}
	return out
}

// Equal reports whether both trees hold the same records in the same
// order under every key.
func (t Tree) Equal(o Tree) bool {
	tk, ok := t.Keys(), o.Keys()
	if len(tk) != len(ok) {
		return false
	}
	for i, k := range tk {
		if k != ok[i] {
			return false
		}
		a, b := t[k.Theme][k.Code], o[k.Theme][k.Code]
		if len(a) != len(b) {
			return false
		}
		for j := range a {
			if !a[j].Equal(b[j]) {
				return false
			}
		}
	}
	return true
}

// SortKeys orders keys by theme then code.
func SortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Theme != keys[j].Theme {
			return keys[i].Theme < keys[j].Theme
		}
		return keys[i].Code < keys[j].Code
	})
}
