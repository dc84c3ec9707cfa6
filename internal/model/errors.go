package model

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every error produced by validation, decoding or scoring
// unwraps to exactly one of these.
var (
	ErrInvalidSpan         = errors.New("invalid span")
	ErrInvalidConfidence   = errors.New("invalid confidence")
	ErrUnknownTheme        = errors.New("unknown theme")
	ErrUnknownCode         = errors.New("unknown code")
	ErrAmbiguousMatch      = errors.New("ambiguous match")
	ErrDuplicateAnswer     = errors.New("duplicate answer id")
	ErrInvalidVocabulary   = errors.New("invalid vocabulary")
	ErrMalformedAnnotation = errors.New("malformed annotation")
)

// ValidationError locates a single failure inside a dataset.
type ValidationError struct {
	Kind     error
	AnswerID *int   // nil when the error is not tied to an answer
	Theme    string
	Code     string
	Index    int // record index under (Theme, Code); -1 when not applicable
	Message  string
}

// NewValidationError builds a ValidationError with no record index.
func NewValidationError(kind error, format string, args ...any) *ValidationError {
	return &ValidationError{
		Kind:    kind,
		Index:   -1,
		Message: fmt.Sprintf(format, args...),
	}
}

// At returns a copy of e located at (theme, code, index).
func (e *ValidationError) At(theme, code string, index int) *ValidationError {
	c := *e
	c.Theme, c.Code, c.Index = theme, code, index
	return &c
}

// ForAnswer returns a copy of e tagged with an answer id.
func (e *ValidationError) ForAnswer(id int) *ValidationError {
	c := *e
	c.AnswerID = &id
	return &c
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	var loc []string
	if e.AnswerID != nil {
		loc = append(loc, fmt.Sprintf("answer=%d", *e.AnswerID))
	}
	if e.Theme != "" {
		loc = append(loc, fmt.Sprintf("theme=%q", e.Theme))
	}
	if e.Code != "" {
		loc = append(loc, fmt.Sprintf("code=%q", e.Code))
	}
	if e.Index >= 0 {
		loc = append(loc, fmt.Sprintf("record=%d", e.Index))
	}
	if len(loc) > 0 {
		b.WriteString(" [")
		b.WriteString(strings.Join(loc, " "))
		b.WriteString("]")
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

func (e *ValidationError) Unwrap() error {
	return e.Kind
}

// ValidationErrors is the collect-all result of a validation pass.
type ValidationErrors []*ValidationError

func (errs ValidationErrors) Error() string {
	switch len(errs) {
	case 0:
		return "no validation errors"
	case 1:
		return errs[0].Error()
	}
	lines := make([]string, len(errs))
	for i, e := range errs {
		lines[i] = e.Error()
	}
	return fmt.Sprintf("%d validation errors:\n  %s", len(errs), strings.Join(lines, "\n  "))
}

// Unwrap exposes every collected error to errors.Is and errors.As.
func (errs ValidationErrors) Unwrap() []error {
	out := make([]error, len(errs))
	for i, e := range errs {
		out[i] = e
	}
	return out
}

// Err returns nil for an empty collection, so callers can return it directly.
func (errs ValidationErrors) Err() error {
	if len(errs) == 0 {
		return nil
	}
	return errs
}
