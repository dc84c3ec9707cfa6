package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/codebook/internal/model"
)

func testVocabulary() *model.Vocabulary {
	return model.MustVocabulary(
		[]string{"Engagement", "No Responses"},
		map[string][]string{
			"Engagement":   {"OnTask", "OffTask"},
			"No Responses": {"Blank"},
		},
	)
}

func rec(theme, code string, span model.Span, conf float64) model.Record {
	return model.Record{Theme: theme, Code: code, Span: span, Confidence: conf, Annotator: "human"}
}

func TestValidateTree_VocabularyTree(t *testing.T) {
	vocab := testVocabulary()
	tree := model.Tree{}
	for _, theme := range vocab.Themes() {
		for _, code := range vocab.Codes(theme) {
			tree.Add(rec(theme, code, model.WholeSpan(), 1))
			tree.Add(rec(theme, code, model.RangeSpan(0, 20), 0))
		}
	}

	for _, mode := range []Mode{Strict, CollectAll} {
		assert.NoError(t, NewValidator(mode).ValidateTree(tree, vocab, 20))
	}
}

func TestValidateTree_EmptyTree(t *testing.T) {
	assert.NoError(t, NewValidator(Strict).ValidateTree(model.Tree{}, testVocabulary(), 0))
	assert.NoError(t, NewValidator(Strict).ValidateTree(nil, testVocabulary(), 0))
}

func TestValidateTree_EachKind(t *testing.T) {
	tests := []struct {
		name string
		rec  model.Record
		want error
	}{
		{"unknown theme", rec("Mood", "Happy", model.WholeSpan(), 1), model.ErrUnknownTheme},
		{"unknown code", rec("Engagement", "Bored", model.WholeSpan(), 1), model.ErrUnknownCode},
		{"span past end", rec("Engagement", "OnTask", model.RangeSpan(0, 21), 1), model.ErrInvalidSpan},
		{"reversed span", rec("Engagement", "OnTask", model.RangeSpan(6, 2), 1), model.ErrInvalidSpan},
		{"negative start", rec("Engagement", "OnTask", model.RangeSpan(-1, 2), 1), model.ErrInvalidSpan},
		{"confidence high", rec("Engagement", "OnTask", model.WholeSpan(), 1.2), model.ErrInvalidConfidence},
		{"confidence low", rec("Engagement", "OnTask", model.WholeSpan(), -0.1), model.ErrInvalidConfidence},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewValidator(Strict).ValidateTree(model.NewTree(tt.rec), testVocabulary(), 20)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var ve *model.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.rec.Theme, ve.Theme)
		})
	}
}

func TestValidateTree_CheckOrder(t *testing.T) {
	// One failure of every kind; strict mode reports checks in order.
	tree := model.NewTree(
		rec("Engagement", "OnTask", model.WholeSpan(), 7),
		rec("Engagement", "OnTask", model.RangeSpan(0, 99), 1),
		rec("Engagement", "Bored", model.WholeSpan(), 1),
		rec("Mood", "Happy", model.WholeSpan(), 1),
	)
	vocab := testVocabulary()

	err := NewValidator(Strict).ValidateTree(tree, vocab, 20)
	assert.ErrorIs(t, err, model.ErrUnknownTheme)

	err = NewValidator(CollectAll).ValidateTree(tree, vocab, 20)
	var errs model.ValidationErrors
	require.ErrorAs(t, err, &errs)
	require.Len(t, errs, 4)
	assert.ErrorIs(t, errs[0], model.ErrUnknownTheme)
	assert.ErrorIs(t, errs[1], model.ErrUnknownCode)
	assert.ErrorIs(t, errs[2], model.ErrInvalidSpan)
	assert.Equal(t, 1, errs[2].Index)
	assert.ErrorIs(t, errs[3], model.ErrInvalidConfidence)
	assert.Equal(t, 0, errs[3].Index)
}

func TestValidateTree_EmptyKeysAreChecked(t *testing.T) {
	vocab := testVocabulary()

	err := NewValidator(Strict).ValidateTree(model.Tree{"Bogus": {"Nope": nil}}, vocab, 10)
	assert.ErrorIs(t, err, model.ErrUnknownTheme)

	err = NewValidator(Strict).ValidateTree(model.Tree{"Bogus": {}}, vocab, 10)
	assert.ErrorIs(t, err, model.ErrUnknownTheme)

	err = NewValidator(Strict).ValidateTree(model.Tree{"Engagement": {"Nope": {}}}, vocab, 10)
	assert.ErrorIs(t, err, model.ErrUnknownCode)

	assert.NoError(t, NewValidator(Strict).ValidateTree(model.Tree{"Engagement": {}}, vocab, 10))
}

func TestValidateDataset(t *testing.T) {
	ds := &model.Dataset{
		Question: "q",
		Themes:   testVocabulary(),
		Answers: []model.Answer{
			{ID: 1, Text: "short", Annotations: model.NewTree(rec("Engagement", "OnTask", model.RangeSpan(0, 6), 1))},
			{ID: 2, Text: "fine", Annotations: model.NewTree(rec("Engagement", "OnTask", model.RangeSpan(0, 4), 1))},
			{ID: 1, Text: "dup", Annotations: model.Tree{}},
		},
	}

	err := NewValidator(Strict).ValidateDataset(ds)
	assert.ErrorIs(t, err, model.ErrDuplicateAnswer)

	errs := ValidateBatch(ds)
	require.Len(t, errs, 2)
	assert.ErrorIs(t, errs[0], model.ErrDuplicateAnswer)
	assert.ErrorIs(t, errs[1], model.ErrInvalidSpan)
	require.NotNil(t, errs[1].AnswerID)
	assert.Equal(t, 1, *errs[1].AnswerID)
}

func TestValidateDataset_NoThemes(t *testing.T) {
	err := NewValidator(CollectAll).ValidateDataset(&model.Dataset{})
	assert.ErrorIs(t, err, model.ErrInvalidVocabulary)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("collect")
	require.NoError(t, err)
	assert.Equal(t, CollectAll, m)

	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, Strict, m)

	_, err = ParseMode("lenient")
	assert.Error(t, err)
}
