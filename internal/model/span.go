package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Span is the part of an answer a code applies to: either the whole text
// or a half-open, zero-based character range [Start, End).
type Span struct {
	Whole bool
	Start int
	End   int
}

// UnknownLength marks a text length that is not available to a
// comparison. A Whole span then only overlaps another Whole span.
const UnknownLength = -1

// WholeSpan returns the span covering the entire answer text.
func WholeSpan() Span {
	return Span{Whole: true}
}

// RangeSpan returns [start, end) without checking it against any text.
// Bounds are checked by Resolve or by the validator once the owning
// answer is known.
func RangeSpan(start, end int) Span {
	return Span{Start: start, End: end}
}

// Equal reports exact identity: both whole, or identical offsets.
// Partial overlap is never equality.
func (s Span) Equal(o Span) bool {
	if s.Whole || o.Whole {
		return s.Whole && o.Whole
	}
	return s.Start == o.Start && s.End == o.End
}

// Len is the number of characters covered for a text of textLength
// characters.
func (s Span) Len(textLength int) int {
	if s.Whole {
		return textLength
	}
	return s.End - s.Start
}

// Check validates the offsets against a text length.
func (s Span) Check(textLength int) error {
	if s.Whole {
		return nil
	}
	switch {
	case s.Start < 0:
		return NewValidationError(ErrInvalidSpan, "start %d is negative", s.Start)
	case s.Start > s.End:
		return NewValidationError(ErrInvalidSpan, "start %d is after end %d", s.Start, s.End)
	case s.End > textLength:
		return NewValidationError(ErrInvalidSpan, "end %d exceeds text length %d", s.End, textLength)
	}
	return nil
}

// Bounds returns the concrete offsets, expanding Whole to [0, textLength).
func (s Span) Bounds(textLength int) (int, int) {
	if s.Whole {
		return 0, textLength
	}
	return s.Start, s.End
}

// String renders the section form: "" for Whole, "[start:end]" otherwise.
func (s Span) String() string {
	if s.Whole {
		return ""
	}
	return fmt.Sprintf("[%d:%d]", s.Start, s.End)
}

// ParseSection parses a section descriptor without bounds checking.
// A blank string is Whole. Ranges must be in the canonical "[start:end]"
// form that String writes: no inner whitespace, no plus signs, no leading
// zeros, both offsets present.
func ParseSection(section string) (Span, error) {
	if strings.TrimSpace(section) == "" {
		return WholeSpan(), nil
	}
	if !strings.HasPrefix(section, "[") || !strings.HasSuffix(section, "]") {
		return Span{}, NewValidationError(ErrInvalidSpan, "section %q is not of the form [start:end]", section)
	}
	inner := section[1 : len(section)-1]
	lo, hi, ok := strings.Cut(inner, ":")
	if !ok || strings.Contains(hi, ":") {
		return Span{}, NewValidationError(ErrInvalidSpan, "section %q is not of the form [start:end]", section)
	}
	start, err := parseOffset(lo)
	if err != nil {
		return Span{}, NewValidationError(ErrInvalidSpan, "section %q: bad start offset", section)
	}
	end, err := parseOffset(hi)
	if err != nil {
		return Span{}, NewValidationError(ErrInvalidSpan, "section %q: bad end offset", section)
	}
	return RangeSpan(start, end), nil
}

// parseOffset accepts only the digits strconv.Itoa would produce.
func parseOffset(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if strconv.Itoa(n) != s {
		return 0, fmt.Errorf("offset %q is not canonical", s)
	}
	return n, nil
}

// Resolve parses a section descriptor and checks it against textLength.
func Resolve(section string, textLength int) (Span, error) {
	span, err := ParseSection(section)
	if err != nil {
		return Span{}, err
	}
	if err := span.Check(textLength); err != nil {
		return Span{}, err
	}
	return span, nil
}

// ResolveRange checks a pair of offsets against textLength.
func ResolveRange(start, end, textLength int) (Span, error) {
	span := RangeSpan(start, end)
	if err := span.Check(textLength); err != nil {
		return Span{}, err
	}
	return span, nil
}

// Overlap returns the Jaccard ratio |a ∩ b| / |a ∪ b| over character
// ranges. Whole spans are expanded with textLength; with UnknownLength a
// Whole span only overlaps another Whole span. Two identical empty
// ranges have ratio 1.
func Overlap(a, b Span, textLength int) float64 {
	if a.Whole && b.Whole {
		return 1
	}
	if (a.Whole || b.Whole) && textLength < 0 {
		return 0
	}
	as, ae := a.Bounds(textLength)
	bs, be := b.Bounds(textLength)
	inter := min(ae, be) - max(as, bs)
	if inter < 0 {
		inter = 0
	}
	union := (ae - as) + (be - bs) - inter
	if union <= 0 {
		if as == bs && ae == be {
			return 1
		}
		return 0
	}
	return float64(inter) / float64(union)
}
