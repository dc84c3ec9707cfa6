package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecord_Confidence(t *testing.T) {
	for _, c := range []float64{0, 0.5, 1} {
		r, err := NewRecord("Engagement", "OnTask", WholeSpan(), c, AnnotatorHuman)
		require.NoError(t, err)
		assert.Equal(t, c, r.Confidence)
	}
	for _, c := range []float64{-0.01, 1.01, math.NaN(), math.Inf(1)} {
		_, err := NewRecord("Engagement", "OnTask", WholeSpan(), c, AnnotatorHuman)
		assert.ErrorIs(t, err, ErrInvalidConfidence, "confidence %v", c)
	}
}

func TestTree_KeepsDuplicates(t *testing.T) {
	r := Record{Theme: "Engagement", Code: "OnTask", Span: RangeSpan(0, 4), Confidence: 1, Annotator: "human"}
	tree := NewTree(r, r)
	assert.Equal(t, 2, tree.Len())
	assert.Len(t, tree.Get("Engagement", "OnTask"), 2)
}

func TestTree_CloneIsIndependent(t *testing.T) {
	tree := NewTree(Record{Theme: "T", Code: "C", Span: WholeSpan(), Confidence: 1})
	clone := tree.Clone()
	clone.Add(Record{Theme: "T", Code: "C", Span: RangeSpan(0, 1), Confidence: 1})

	assert.Equal(t, 1, tree.Len())
	assert.Equal(t, 2, clone.Len())
}

func TestTree_WithoutAndKeys(t *testing.T) {
	tree := NewTree(
		Record{Theme: "B", Code: "x", Span: WholeSpan(), Confidence: 1, Annotator: "gpt-4"},
		Record{Theme: "A", Code: "y", Span: WholeSpan(), Confidence: 1, Annotator: "human"},
		Record{Theme: "A", Code: "x", Span: WholeSpan(), Confidence: 1, Annotator: "gpt-4"},
	)
	assert.Equal(t, []Key{{"A", "x"}, {"A", "y"}, {"B", "x"}}, tree.Keys())

	human := tree.Without("gpt-4")
	assert.Equal(t, []Key{{"A", "y"}}, human.Keys())
	assert.Equal(t, 3, tree.Len(), "Without does not modify the receiver")
}

func TestTree_FilterKeepsStorageKey(t *testing.T) {
	tree := Tree{"Engagement": {"OnTask": {{Span: RangeSpan(0, 5), Confidence: 1, Annotator: "human"}}}}

	for _, out := range []Tree{tree.Clone(), tree.Without("gpt-4"), tree.Filter(func(Record) bool { return true })} {
		require.Equal(t, []Key{{Theme: "Engagement", Code: "OnTask"}}, out.Keys())
		r := out["Engagement"]["OnTask"][0]
		assert.Equal(t, "Engagement", r.Theme)
		assert.Equal(t, "OnTask", r.Code)
	}
	assert.Empty(t, tree["Engagement"]["OnTask"][0].Theme, "the source tree is untouched")
}

func TestTree_EqualIgnoresEmptyKeys(t *testing.T) {
	a := NewTree(Record{Theme: "T", Code: "C", Span: WholeSpan(), Confidence: 1})
	b := a.Clone()
	b["T"]["Empty"] = nil
	b["Other"] = map[string][]Record{}
	assert.True(t, a.Equal(b))

	var nilTree Tree
	assert.True(t, nilTree.Equal(Tree{}))
	assert.True(t, nilTree.IsEmpty())
}

func TestMetricsFrom(t *testing.T) {
	m := MetricsFrom(Counts{})
	assert.Zero(t, m.Precision)
	assert.Zero(t, m.Recall)
	assert.Zero(t, m.F1)

	m = MetricsFrom(Counts{TP: 3, FP: 1, FN: 2})
	assert.InDelta(t, 0.75, m.Precision, 1e-9)
	assert.InDelta(t, 0.6, m.Recall, 1e-9)
	assert.InDelta(t, 2*0.75*0.6/(0.75+0.6), m.F1, 1e-9)
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Scoring.OverlapThreshold = 1.5
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Scoring.Matching = "hungarian"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Concurrency.Workers = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Log.Level = "verbose"
	assert.Error(t, cfg.Validate())
}
