package model

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Vocabulary is the codebook of a dataset: ordered themes, each with an
// ordered list of codes. It is read-only after load and safe to share
// across goroutines.
type Vocabulary struct {
	themes       []string
	codes        map[string][]string
	index        map[string]map[string]int
	descriptions map[string]map[string]string
}

// CodeEntry is a code with an optional free-text description.
type CodeEntry struct {
	Name        string
	Description string
}

// NewVocabulary builds a vocabulary from themes in order. Theme names must
// be unique, and code names unique within their theme.
func NewVocabulary(themes []string, codes map[string][]string) (*Vocabulary, error) {
	b := newVocabularyBuilder()
	for _, theme := range themes {
		entries := make([]CodeEntry, len(codes[theme]))
		for i, c := range codes[theme] {
			entries[i] = CodeEntry{Name: c}
		}
		if err := b.add(theme, entries); err != nil {
			return nil, err
		}
	}
	return b.v, nil
}

// MustVocabulary is NewVocabulary for fixtures and literals.
func MustVocabulary(themes []string, codes map[string][]string) *Vocabulary {
	v, err := NewVocabulary(themes, codes)
	if err != nil {
		panic(err)
	}
	return v
}

// Themes returns theme names in declaration order.
func (v *Vocabulary) Themes() []string {
	return append([]string(nil), v.themes...)
}

// Codes returns the codes of a theme in declaration order.
func (v *Vocabulary) Codes(theme string) []string {
	return append([]string(nil), v.codes[theme]...)
}

// HasTheme reports whether the theme is declared.
func (v *Vocabulary) HasTheme(theme string) bool {
	_, ok := v.index[theme]
	return ok
}

// HasCode reports whether code is declared under theme.
func (v *Vocabulary) HasCode(theme, code string) bool {
	_, ok := v.index[theme][code]
	return ok
}

// Description returns the description of a code, if one was given.
func (v *Vocabulary) Description(theme, code string) string {
	return v.descriptions[theme][code]
}

// CodeOrder returns the declaration position of a code, or -1.
func (v *Vocabulary) CodeOrder(theme, code string) int {
	if i, ok := v.index[theme][code]; ok {
		return i
	}
	return -1
}

// Len is the number of themes.
func (v *Vocabulary) Len() int {
	return len(v.themes)
}

type vocabularyBuilder struct {
	v *Vocabulary
}

func newVocabularyBuilder() *vocabularyBuilder {
	return &vocabularyBuilder{v: &Vocabulary{
		codes:        make(map[string][]string),
		index:        make(map[string]map[string]int),
		descriptions: make(map[string]map[string]string),
	}}
}

func (b *vocabularyBuilder) add(theme string, entries []CodeEntry) error {
	if theme == "" {
		return NewValidationError(ErrInvalidVocabulary, "empty theme name")
	}
	if _, dup := b.v.index[theme]; dup {
		return NewValidationError(ErrInvalidVocabulary, "theme %q declared twice", theme)
	}
	idx := make(map[string]int, len(entries))
	names := make([]string, 0, len(entries))
	desc := make(map[string]string)
	for _, e := range entries {
		if e.Name == "" {
			return NewValidationError(ErrInvalidVocabulary, "empty code name in theme %q", theme)
		}
		if _, dup := idx[e.Name]; dup {
			return NewValidationError(ErrInvalidVocabulary, "code %q declared twice in theme %q", e.Name, theme)
		}
		idx[e.Name] = len(names)
		names = append(names, e.Name)
		if e.Description != "" {
			desc[e.Name] = e.Description
		}
	}
	b.v.themes = append(b.v.themes, theme)
	b.v.codes[theme] = names
	b.v.index[theme] = idx
	b.v.descriptions[theme] = desc
	return nil
}

// MarshalJSON writes {theme: [codes]} in declaration order, or
// {theme: {code: description}} for themes that carry descriptions.
func (v *Vocabulary) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, theme := range v.themes {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(theme)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		var val []byte
		if len(v.descriptions[theme]) == 0 {
			val, err = json.Marshal(v.codes[theme])
		} else {
			val, err = v.marshalDescribed(theme)
		}
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (v *Vocabulary) marshalDescribed(theme string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, code := range v.codes[theme] {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(code)
		if err != nil {
			return nil, err
		}
		d, err := json.Marshal(v.descriptions[theme][code])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(d)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts {theme: [codes]} or {theme: {code: description}},
// preserving key order.
func (v *Vocabulary) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := expectDelim(dec, '{'); err != nil {
		return NewValidationError(ErrInvalidVocabulary, "themes must be an object: %v", err)
	}
	b := newVocabularyBuilder()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("read theme: %w", err)
		}
		theme := tok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("read codes of %q: %w", theme, err)
		}
		entries, err := decodeCodeEntries(raw)
		if err != nil {
			return NewValidationError(ErrInvalidVocabulary, "theme %q: %v", theme, err)
		}
		if err := b.add(theme, entries); err != nil {
			return err
		}
	}
	*v = *b.v
	return nil
}

func decodeCodeEntries(raw json.RawMessage) ([]CodeEntry, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("missing codes")
	}
	switch trimmed[0] {
	case '[':
		var names []string
		if err := json.Unmarshal(trimmed, &names); err != nil {
			return nil, err
		}
		entries := make([]CodeEntry, len(names))
		for i, n := range names {
			entries[i] = CodeEntry{Name: n}
		}
		return entries, nil
	case '{':
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		if err := expectDelim(dec, '{'); err != nil {
			return nil, err
		}
		var entries []CodeEntry
		for dec.More() {
			tok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			var desc any
			if err := dec.Decode(&desc); err != nil {
				return nil, err
			}
			s, _ := desc.(string)
			entries = append(entries, CodeEntry{Name: tok.(string), Description: s})
		}
		return entries, nil
	}
	return nil, fmt.Errorf("codes must be a list or an object")
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

// UnmarshalYAML mirrors UnmarshalJSON for YAML documents.
func (v *Vocabulary) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return NewValidationError(ErrInvalidVocabulary, "themes must be a mapping (line %d)", node.Line)
	}
	b := newVocabularyBuilder()
	for i := 0; i+1 < len(node.Content); i += 2 {
		theme := node.Content[i].Value
		val := node.Content[i+1]
		var entries []CodeEntry
		switch val.Kind {
		case yaml.SequenceNode:
			for _, c := range val.Content {
				entries = append(entries, CodeEntry{Name: c.Value})
			}
		case yaml.MappingNode:
			for j := 0; j+1 < len(val.Content); j += 2 {
				entries = append(entries, CodeEntry{
					Name:        val.Content[j].Value,
					Description: val.Content[j+1].Value,
				})
			}
		default:
			return NewValidationError(ErrInvalidVocabulary, "theme %q: codes must be a list or a mapping (line %d)", theme, val.Line)
		}
		if err := b.add(theme, entries); err != nil {
			return err
		}
	}
	*v = *b.v
	return nil
}

// MarshalYAML writes the vocabulary as an ordered mapping.
func (v *Vocabulary) MarshalYAML() (any, error) {
	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, theme := range v.themes {
		val := &yaml.Node{Kind: yaml.SequenceNode}
		if len(v.descriptions[theme]) > 0 {
			val.Kind = yaml.MappingNode
		}
		for _, code := range v.codes[theme] {
			if val.Kind == yaml.MappingNode {
				val.Content = append(val.Content,
					&yaml.Node{Kind: yaml.ScalarNode, Value: code},
					&yaml.Node{Kind: yaml.ScalarNode, Value: v.descriptions[theme][code]})
				continue
			}
			val.Content = append(val.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: code})
		}
		root.Content = append(root.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: theme}, val)
	}
	return root, nil
}
