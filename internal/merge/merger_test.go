package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/codebook/internal/model"
)

func record(code string, span model.Span, annotator string) model.Record {
	return model.Record{Theme: "Engagement", Code: code, Span: span, Confidence: 0.9, Annotator: annotator}
}

func humanTree() model.Tree {
	return model.NewTree(
		record("OnTask", model.RangeSpan(0, 10), "human"),
		record("OffTask", model.WholeSpan(), "human"),
	)
}

func modelTree() model.Tree {
	return model.NewTree(
		record("OnTask", model.RangeSpan(0, 8), "gpt-4"),
		record("Bored", model.RangeSpan(12, 20), "gpt-4"),
	)
}

func TestMerge_UnionCounts(t *testing.T) {
	a, b := humanTree(), modelTree()
	out := Merge(a, b, Union())
	assert.Equal(t, a.Len()+b.Len(), out.Len())

	on := out.Get("Engagement", "OnTask")
	require.Len(t, on, 2)
	assert.Equal(t, "human", on[0].Annotator, "base records come first")
	assert.Equal(t, "gpt-4", on[1].Annotator)
}

func TestMerge_UnionWithSelfDoublesCounts(t *testing.T) {
	a := humanTree()
	out := Merge(a, a, Union())
	for _, k := range a.Keys() {
		assert.Len(t, out[k.Theme][k.Code], 2*len(a[k.Theme][k.Code]), k.String())
	}
}

func TestMerge_DedupeWithSelf(t *testing.T) {
	a := humanTree()
	assert.True(t, Merge(a, a, DedupeExact()).Equal(a))
}

func TestMerge_DedupeKeepsDifferentConfidence(t *testing.T) {
	a := humanTree()
	b := humanTree().Filter(func(r model.Record) bool { return r.Code == "OnTask" })
	b["Engagement"]["OnTask"][0].Confidence = 0.5

	out := Merge(a, b, DedupeExact())
	assert.Len(t, out.Get("Engagement", "OnTask"), 2)
}

func TestMerge_ReplaceAnnotator(t *testing.T) {
	base := Merge(humanTree(), modelTree(), Union())
	rerun := model.NewTree(record("OffTask", model.RangeSpan(3, 9), "gpt-4"))

	out := Merge(base, rerun, ReplaceAnnotator("gpt-4"))
	assert.Len(t, out.Get("Engagement", "OnTask"), 1, "old gpt-4 record dropped")
	assert.Empty(t, out.Get("Engagement", "Bored"))
	assert.Len(t, out.Get("Engagement", "OffTask"), 2)

	again := Merge(out, rerun, ReplaceAnnotator("gpt-4"))
	assert.True(t, again.Equal(out), "replacing with the same output is idempotent")
}

func TestMerge_DoesNotModifyInputs(t *testing.T) {
	a, b := humanTree(), modelTree()
	aCopy, bCopy := a.Clone(), b.Clone()

	for _, p := range []Policy{Union(), DedupeExact(), ReplaceAnnotator("human")} {
		out := Merge(a, b, p)
		out.Add(record("Extra", model.WholeSpan(), "x"))
	}
	assert.True(t, a.Equal(aCopy))
	assert.True(t, b.Equal(bCopy))
}

func TestMerge_EmptyInputs(t *testing.T) {
	a := humanTree()
	assert.True(t, Merge(a, model.Tree{}, Union()).Equal(a))
	assert.True(t, Merge(nil, a, Union()).Equal(a))
	assert.True(t, Merge(nil, nil, DedupeExact()).IsEmpty())
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in   string
		want Policy
	}{
		{"", Union()},
		{"union", Union()},
		{"Dedupe", DedupeExact()},
		{"replace:gpt-4", ReplaceAnnotator("gpt-4")},
		{"replace:qwen3:4b", ReplaceAnnotator("qwen3:4b")},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			p, err := ParsePolicy(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p)
		})
	}

	for _, bad := range []string{"replace", "replace:", "overwrite"} {
		_, err := ParsePolicy(bad)
		assert.Error(t, err, bad)
	}
	assert.Equal(t, "replace:gpt-4", ReplaceAnnotator("gpt-4").String())
}

func TestMergeDatasets(t *testing.T) {
	vocab := model.MustVocabulary([]string{"Engagement"}, map[string][]string{"Engagement": {"OnTask", "OffTask", "Bored"}})
	base := &model.Dataset{
		Question: "q",
		Themes:   vocab,
		Answers: []model.Answer{
			{ID: 1, Text: "I liked it a lot, really", Annotations: humanTree()},
			{ID: 2, Text: "meh", Annotations: model.Tree{}},
		},
	}
	incoming := &model.Dataset{
		Question: "q",
		Themes:   vocab,
		Answers: []model.Answer{
			{ID: 2, Text: "meh!", Annotations: modelTree()},
			{ID: 3, Text: "new", Annotations: modelTree()},
		},
	}

	out, stats := MergeDatasets(base, incoming, Union())
	require.Len(t, out.Answers, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{out.Answers[0].ID, out.Answers[1].ID, out.Answers[2].ID})
	assert.Equal(t, "meh", out.Answers[1].Text, "base text kept")
	assert.Equal(t, 1, stats.Merged)
	assert.Equal(t, []int{3}, stats.Added)
	assert.Equal(t, []int{2}, stats.TextMismatches)
	assert.Equal(t, 2, stats.RecordsBefore)
	assert.Equal(t, 6, stats.RecordsAfter)

	assert.True(t, base.Answers[1].Annotations.IsEmpty(), "base dataset untouched")
}

func TestMerge_KeepsRecordsUnderTheirKey(t *testing.T) {
	// Records built as map literals carry no theme or code of their own.
	base := model.Tree{"Engagement": {"OnTask": {{Span: model.RangeSpan(0, 5), Confidence: 1, Annotator: "human"}}}}
	incoming := model.Tree{"Engagement": {"OffTask": {{Span: model.WholeSpan(), Confidence: 1, Annotator: "gpt-4"}}}}

	for _, p := range []Policy{Union(), DedupeExact(), ReplaceAnnotator("gpt-4")} {
		t.Run(p.String(), func(t *testing.T) {
			out := Merge(base, incoming, p)
			assert.Equal(t, []model.Key{{Theme: "Engagement", Code: "OffTask"}, {Theme: "Engagement", Code: "OnTask"}}, out.Keys())
			for _, r := range out.Records() {
				assert.Equal(t, "Engagement", r.Theme)
			}
		})
	}
}

func TestMerge_DedupeIsCommutative(t *testing.T) {
	r := record("OnTask", model.RangeSpan(0, 4), "human")
	twice := model.NewTree(r, r)
	once := model.NewTree(r)

	assert.True(t, Merge(twice, nil, DedupeExact()).Equal(once))
	assert.True(t, Merge(nil, twice, DedupeExact()).Equal(once))
	assert.Equal(t, Merge(humanTree(), modelTree(), DedupeExact()).Len(), Merge(modelTree(), humanTree(), DedupeExact()).Len())
}
