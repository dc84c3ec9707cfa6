package validate

import (
	"errors"

	"github.com/ppiankov/codebook/internal/model"
)

// Mode selects between stopping at the first failure and collecting all.
type Mode int

const (
	// Strict returns the first failure.
	Strict Mode = iota
	// CollectAll returns every failure as model.ValidationErrors.
	CollectAll
)

// ParseMode maps a config string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", model.ModeStrict:
		return Strict, nil
	case model.ModeCollect, "collect-all", "all":
		return CollectAll, nil
	}
	return Strict, errors.New("unknown validation mode: " + s + " (supported: strict, collect)")
}

// Validator checks annotation trees and datasets for structural
// well-formedness and vocabulary conformance. It holds no state besides
// its mode and may be shared across goroutines.
type Validator struct {
	mode Mode
}

// NewValidator creates a new validator
func NewValidator(mode Mode) *Validator {
	return &Validator{mode: mode}
}

// collector accumulates failures and tells the caller when to stop.
type collector struct {
	mode Mode
	errs model.ValidationErrors
}

// add records err and reports whether validation should stop.
func (c *collector) add(err *model.ValidationError) bool {
	c.errs = append(c.errs, err)
	return c.mode == Strict
}

func (c *collector) result() error {
	if len(c.errs) == 0 {
		return nil
	}
	if c.mode == Strict {
		return c.errs[0]
	}
	return c.errs
}

// ValidateTree checks a tree against a vocabulary and the length of its
// answer text. Checks run in this order, each over the whole tree in
// sorted key order:
//  1. every theme is in the vocabulary (ErrUnknownTheme)
//  2. every code is declared under its theme (ErrUnknownCode)
//  3. every span resolves against textLength (ErrInvalidSpan)
//  4. every confidence lies in [0, 1] (ErrInvalidConfidence)
//
// Duplicate records under one (theme, code) are legal.
func (v *Validator) ValidateTree(tree model.Tree, vocab *model.Vocabulary, textLength int) error {
	c := &collector{mode: v.mode}
	v.checkTree(c, tree, vocab, textLength, nil)
	return c.result()
}

func (v *Validator) checkTree(c *collector, tree model.Tree, vocab *model.Vocabulary, textLength int, answerID *int) bool {
	keys := tree.Keys()
	tag := func(e *model.ValidationError) *model.ValidationError {
		if answerID != nil {
			return e.ForAnswer(*answerID)
		}
		return e
	}

	declared := declaredKeys(tree)
	for i, k := range declared {
		if i > 0 && declared[i-1].Theme == k.Theme {
			continue
		}
		if vocab.HasTheme(k.Theme) {
			continue
		}
		err := model.NewValidationError(model.ErrUnknownTheme, "theme %q is not in the vocabulary", k.Theme).At(k.Theme, "", -1)
		if c.add(tag(err)) {
			return true
		}
	}

	for _, k := range declared {
		if k.Code == "" && len(tree[k.Theme]) == 0 {
			continue
		}
		if !vocab.HasTheme(k.Theme) || vocab.HasCode(k.Theme, k.Code) {
			continue
		}
		err := model.NewValidationError(model.ErrUnknownCode, "code %q is not declared under theme %q", k.Code, k.Theme).At(k.Theme, k.Code, -1)
		if c.add(tag(err)) {
			return true
		}
	}

	for _, k := range keys {
		for i, r := range tree[k.Theme][k.Code] {
			if err := r.Span.Check(textLength); err != nil {
				var ve *model.ValidationError
				if !errors.As(err, &ve) {
					ve = model.NewValidationError(model.ErrInvalidSpan, "%v", err)
				}
				if c.add(tag(ve.At(k.Theme, k.Code, i))) {
					return true
				}
			}
		}
	}

	for _, k := range keys {
		for i, r := range tree[k.Theme][k.Code] {
			if model.ValidConfidence(r.Confidence) {
				continue
			}
			err := model.NewValidationError(model.ErrInvalidConfidence, "confidence %v is outside [0, 1]", r.Confidence).At(k.Theme, k.Code, i)
			if c.add(tag(err)) {
				return true
			}
		}
	}
	return false
}

// declaredKeys lists every (theme, code) key present in the tree, including
// keys with no records. A theme with no codes yields one key with an empty
// code.
func declaredKeys(tree model.Tree) []model.Key {
	var keys []model.Key
	for theme, codes := range tree {
		if len(codes) == 0 {
			keys = append(keys, model.Key{Theme: theme})
			continue
		}
		for code := range codes {
			keys = append(keys, model.Key{Theme: theme, Code: code})
		}
	}
	model.SortKeys(keys)
	return keys
}

// ValidateDataset checks the dataset structure (vocabulary present and
// non-empty, answer ids unique) and then every answer's tree against the
// dataset vocabulary.
func (v *Validator) ValidateDataset(ds *model.Dataset) error {
	c := &collector{mode: v.mode}
	if ds.Themes == nil || ds.Themes.Len() == 0 {
		c.add(model.NewValidationError(model.ErrInvalidVocabulary, "dataset declares no themes"))
		return c.result()
	}

	seen := make(map[int]bool, len(ds.Answers))
	for _, a := range ds.Answers {
		if seen[a.ID] {
			err := model.NewValidationError(model.ErrDuplicateAnswer, "answer id %d appears more than once", a.ID).ForAnswer(a.ID)
			if c.add(err) {
				return c.result()
			}
		}
		seen[a.ID] = true
	}

	for _, a := range ds.Answers {
		id := a.ID
		if v.checkTree(c, a.Annotations, ds.Themes, a.Length(), &id) {
			break
		}
	}
	return c.result()
}

// ValidateBatch is a convenience method for validating a dataset in
// collect-all mode.
func ValidateBatch(ds *model.Dataset) model.ValidationErrors {
	err := NewValidator(CollectAll).ValidateDataset(ds)
	var errs model.ValidationErrors
	if errors.As(err, &errs) {
		return errs
	}
	return nil
}
