package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// Answer is one response to the dataset question. Its text is fixed after
// load; its annotation tree is owned exclusively by the answer.
type Answer struct {
	ID          int
	Text        string
	Annotations Tree
}

// Length is the text length in characters (runes), the unit span offsets
// count in.
func (a Answer) Length() int {
	return utf8.RuneCountInString(a.Text)
}

// Dataset is a question, its codebook, and the answers being coded.
type Dataset struct {
	Question string
	Themes   *Vocabulary
	Answers  []Answer
}

// Answer looks up an answer by id.
func (d *Dataset) Answer(id int) (Answer, bool) {
	for _, a := range d.Answers {
		if a.ID == id {
			return a, true
		}
	}
	return Answer{}, false
}

// Index maps answer ids to positions in Answers. The first occurrence of
// a duplicated id wins.
func (d *Dataset) Index() map[int]int {
	idx := make(map[int]int, len(d.Answers))
	for i, a := range d.Answers {
		if _, seen := idx[a.ID]; !seen {
			idx[a.ID] = i
		}
	}
	return idx
}

// Clone deep-copies the answers and their trees. The vocabulary is shared
// since it is never mutated.
func (d *Dataset) Clone() *Dataset {
	out := &Dataset{
		Question: d.Question,
		Themes:   d.Themes,
		Answers:  make([]Answer, len(d.Answers)),
	}
	for i, a := range d.Answers {
		out.Answers[i] = Answer{ID: a.ID, Text: a.Text, Annotations: a.Annotations.Clone()}
	}
	return out
}

// RawRecord is the wire form of a record inside the annotations object.
type RawRecord struct {
	Section    string `json:"section" yaml:"section"`
	Confidence any    `json:"confidence,omitempty" yaml:"confidence,omitempty"`
	Annotator  string `json:"annotator" yaml:"annotator"`
}

// RawRecords holds the records under one code. On the wire it is a single
// object when there is one record and a list otherwise.
type RawRecords []RawRecord

// MarshalJSON writes one object for a single record.
func (rs RawRecords) MarshalJSON() ([]byte, error) {
	if len(rs) == 1 {
		return json.Marshal(rs[0])
	}
	return json.Marshal([]RawRecord(rs))
}

// UnmarshalJSON accepts an object or a list of objects.
func (rs *RawRecords) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var r RawRecord
		if err := json.Unmarshal(trimmed, &r); err != nil {
			return err
		}
		*rs = RawRecords{r}
		return nil
	}
	var list []RawRecord
	if err := json.Unmarshal(trimmed, &list); err != nil {
		return err
	}
	*rs = list
	return nil
}

// MarshalYAML writes one mapping for a single record.
func (rs RawRecords) MarshalYAML() (any, error) {
	if len(rs) == 1 {
		return rs[0], nil
	}
	return []RawRecord(rs), nil
}

// UnmarshalYAML accepts a mapping or a sequence of mappings.
func (rs *RawRecords) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.MappingNode {
		var r RawRecord
		if err := node.Decode(&r); err != nil {
			return err
		}
		*rs = RawRecords{r}
		return nil
	}
	var list []RawRecord
	if err := node.Decode(&list); err != nil {
		return err
	}
	*rs = list
	return nil
}

// RawTree is the wire form of an annotation tree:
// theme -> code -> {section, confidence, annotator}.
type RawTree map[string]map[string]RawRecords

// DecodeTree converts the wire form into a Tree. Section text that does
// not parse and confidence values that are not numbers are reported;
// out-of-range values are left for the validator. A missing confidence
// decodes as 1.0.
func DecodeTree(raw RawTree) (Tree, error) {
	tree := Tree{}
	var errs ValidationErrors
	themes := make([]string, 0, len(raw))
	for theme := range raw {
		themes = append(themes, theme)
	}
	sort.Strings(themes)
	for _, theme := range themes {
		codes := make([]string, 0, len(raw[theme]))
		for code := range raw[theme] {
			codes = append(codes, code)
		}
		sort.Strings(codes)
		for _, code := range codes {
			for i, rr := range raw[theme][code] {
				span, err := ParseSection(rr.Section)
				if err != nil {
					errs = append(errs, asValidationError(err).At(theme, code, i))
					continue
				}
				conf, err := decodeConfidence(rr.Confidence)
				if err != nil {
					errs = append(errs, NewValidationError(ErrMalformedAnnotation, "%v", err).At(theme, code, i))
					continue
				}
				tree.Add(Record{
					Theme:      theme,
					Code:       code,
					Span:       span,
					Confidence: conf,
					Annotator:  rr.Annotator,
				})
			}
		}
	}
	return tree, errs.Err()
}

func decodeConfidence(v any) (float64, error) {
	switch c := v.(type) {
	case nil:
		return 1.0, nil
	case float64:
		return c, nil
	case int:
		return float64(c), nil
	case json.Number:
		return c.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(c), 64)
		if err != nil {
			return 0, fmt.Errorf("confidence %q is not a number", c)
		}
		return f, nil
	}
	return 0, fmt.Errorf("confidence of type %T is not a number", v)
}

// EncodeTree converts a Tree back to its wire form.
func EncodeTree(t Tree) RawTree {
	raw := RawTree{}
	for _, k := range t.Keys() {
		if raw[k.Theme] == nil {
			raw[k.Theme] = make(map[string]RawRecords)
		}
		recs := t[k.Theme][k.Code]
		out := make(RawRecords, len(recs))
		for i, r := range recs {
			out[i] = RawRecord{
				Section:    r.Span.String(),
				Confidence: r.Confidence,
				Annotator:  r.Annotator,
			}
		}
		raw[k.Theme][k.Code] = out
	}
	return raw
}

func asValidationError(err error) *ValidationError {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve
	}
	return NewValidationError(ErrMalformedAnnotation, "%v", err)
}

type answerWire struct {
	ID          int     `json:"id" yaml:"id"`
	Text        string  `json:"text" yaml:"text"`
	Annotations RawTree `json:"annotations" yaml:"annotations"`
}

type datasetWire struct {
	Question string       `json:"question" yaml:"question"`
	Themes   *Vocabulary  `json:"themes" yaml:"themes"`
	Answers  []answerWire `json:"answers" yaml:"answers"`
}

func (d *Dataset) toWire() datasetWire {
	w := datasetWire{
		Question: d.Question,
		Themes:   d.Themes,
		Answers:  make([]answerWire, len(d.Answers)),
	}
	for i, a := range d.Answers {
		w.Answers[i] = answerWire{ID: a.ID, Text: a.Text, Annotations: EncodeTree(a.Annotations)}
	}
	return w
}

func (d *Dataset) fromWire(w datasetWire) error {
	if w.Themes == nil {
		return NewValidationError(ErrInvalidVocabulary, "dataset has no themes")
	}
	d.Question = w.Question
	d.Themes = w.Themes
	d.Answers = make([]Answer, len(w.Answers))
	var errs ValidationErrors
	for i, aw := range w.Answers {
		tree, err := DecodeTree(aw.Annotations)
		if err != nil {
			var ves ValidationErrors
			if errors.As(err, &ves) {
				for _, ve := range ves {
					errs = append(errs, ve.ForAnswer(aw.ID))
				}
			}
		}
		d.Answers[i] = Answer{ID: aw.ID, Text: aw.Text, Annotations: tree}
	}
	return errs.Err()
}

// MarshalJSON writes the dataset in the on-disk shape.
func (d *Dataset) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.toWire())
}

// UnmarshalJSON reads the on-disk shape. Decoding errors inside answer
// annotations are returned together as ValidationErrors.
func (d *Dataset) UnmarshalJSON(data []byte) error {
	var w datasetWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	return d.fromWire(w)
}

// MarshalYAML writes the dataset in the on-disk shape.
func (d *Dataset) MarshalYAML() (any, error) {
	return d.toWire(), nil
}

// UnmarshalYAML reads the on-disk shape.
func (d *Dataset) UnmarshalYAML(node *yaml.Node) error {
	var w datasetWire
	if err := node.Decode(&w); err != nil {
		return err
	}
	return d.fromWire(w)
}
