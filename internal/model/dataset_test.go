package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const sampleDataset = `{
  "question": "How did you feel about the lesson?",
  "themes": {
    "Engagement": ["OnTask", "OffTask"],
    "No Responses": {"Blank": "left empty", "NoRelevant": "unrelated text"}
  },
  "answers": [
    {
      "id": 1,
      "text": "I liked the group work a lot.",
      "annotations": {
        "Engagement": {
          "OnTask": {"section": "[0:10]", "confidence": 0.9, "annotator": "human"}
        }
      }
    },
    {
      "id": 2,
      "text": "",
      "annotations": {
        "No Responses": {
          "Blank": [
            {"section": "", "confidence": 1.0, "annotator": "human"},
            {"section": "", "annotator": "qwen3:4b"}
          ]
        }
      }
    },
    {"id": 3, "text": "meh", "annotations": {}}
  ]
}`

func TestDataset_UnmarshalJSON(t *testing.T) {
	var ds Dataset
	require.NoError(t, json.Unmarshal([]byte(sampleDataset), &ds))

	assert.Equal(t, "How did you feel about the lesson?", ds.Question)
	assert.Equal(t, []string{"Engagement", "No Responses"}, ds.Themes.Themes())
	assert.Equal(t, []string{"OnTask", "OffTask"}, ds.Themes.Codes("Engagement"))
	assert.Equal(t, "left empty", ds.Themes.Description("No Responses", "Blank"))
	require.Len(t, ds.Answers, 3)

	on := ds.Answers[0].Annotations.Get("Engagement", "OnTask")
	require.Len(t, on, 1)
	assert.Equal(t, RangeSpan(0, 10), on[0].Span)
	assert.Equal(t, 0.9, on[0].Confidence)
	assert.Equal(t, "human", on[0].Annotator)

	blank := ds.Answers[1].Annotations.Get("No Responses", "Blank")
	require.Len(t, blank, 2, "a list keeps every record")
	assert.True(t, blank[0].Span.Whole)
	assert.Equal(t, 1.0, blank[1].Confidence, "missing confidence defaults to 1.0")

	assert.True(t, ds.Answers[2].Annotations.IsEmpty())
}

func TestDataset_JSONRoundTrip(t *testing.T) {
	var ds Dataset
	require.NoError(t, json.Unmarshal([]byte(sampleDataset), &ds))

	out, err := json.Marshal(&ds)
	require.NoError(t, err)

	var again Dataset
	require.NoError(t, json.Unmarshal(out, &again))
	assert.Equal(t, ds.Themes.Themes(), again.Themes.Themes())
	for i := range ds.Answers {
		assert.True(t, ds.Answers[i].Annotations.Equal(again.Answers[i].Annotations), "answer %d", ds.Answers[i].ID)
	}
}

func TestDataset_YAMLRoundTrip(t *testing.T) {
	var ds Dataset
	require.NoError(t, json.Unmarshal([]byte(sampleDataset), &ds))

	out, err := yaml.Marshal(&ds)
	require.NoError(t, err)

	var again Dataset
	require.NoError(t, yaml.Unmarshal(out, &again))
	assert.Equal(t, []string{"Engagement", "No Responses"}, again.Themes.Themes())
	assert.Equal(t, "unrelated text", again.Themes.Description("No Responses", "NoRelevant"))
	for i := range ds.Answers {
		assert.True(t, ds.Answers[i].Annotations.Equal(again.Answers[i].Annotations), "answer %d", ds.Answers[i].ID)
	}
}

func TestEncodeTree_SectionForm(t *testing.T) {
	tree := NewTree(
		Record{Theme: "Engagement", Code: "OnTask", Span: RangeSpan(0, 10), Confidence: 1, Annotator: "human"},
		Record{Theme: "Engagement", Code: "OffTask", Span: WholeSpan(), Confidence: 0.4, Annotator: "gpt-4"},
		Record{Theme: "Engagement", Code: "OffTask", Span: RangeSpan(2, 3), Confidence: 0.6, Annotator: "gpt-4"},
	)
	out, err := json.Marshal(EncodeTree(tree))
	require.NoError(t, err)
	assert.JSONEq(t, `{
	  "Engagement": {
	    "OffTask": [
	      {"section": "", "confidence": 0.4, "annotator": "gpt-4"},
	      {"section": "[2:3]", "confidence": 0.6, "annotator": "gpt-4"}
	    ],
	    "OnTask": {"section": "[0:10]", "confidence": 1, "annotator": "human"}
	  }
	}`, string(out))
}

func TestDecodeTree_Errors(t *testing.T) {
	raw := RawTree{
		"Engagement": {
			"OnTask": {
				{Section: "the middle bit", Confidence: 0.5, Annotator: "gpt-4"},
				{Section: "[1:2]", Confidence: "high", Annotator: "gpt-4"},
				{Section: "[1:2]", Confidence: "0.75", Annotator: "gpt-4"},
			},
		},
	}
	tree, err := DecodeTree(raw)
	require.Error(t, err)

	var errs ValidationErrors
	require.ErrorAs(t, err, &errs)
	require.Len(t, errs, 2)
	assert.ErrorIs(t, errs[0], ErrInvalidSpan)
	assert.Equal(t, 0, errs[0].Index)
	assert.ErrorIs(t, errs[1], ErrMalformedAnnotation)
	assert.Equal(t, 1, errs[1].Index)

	recs := tree.Get("Engagement", "OnTask")
	require.Len(t, recs, 1, "the well-formed record is kept")
	assert.Equal(t, 0.75, recs[0].Confidence, "numeric strings are accepted")
}

func TestDataset_UnmarshalReportsAnswerIDs(t *testing.T) {
	doc := `{"question": "q", "themes": {"T": ["C"]}, "answers": [
	  {"id": 7, "text": "abc", "annotations": {"T": {"C": {"section": "[x:y]"}}}}
	]}`
	var ds Dataset
	err := json.Unmarshal([]byte(doc), &ds)
	require.Error(t, err)

	var errs ValidationErrors
	require.ErrorAs(t, err, &errs)
	require.Len(t, errs, 1)
	require.NotNil(t, errs[0].AnswerID)
	assert.Equal(t, 7, *errs[0].AnswerID)
	assert.Contains(t, errs[0].Error(), "answer=7")
}

func TestVocabulary_Duplicates(t *testing.T) {
	var v Vocabulary
	err := json.Unmarshal([]byte(`{"T": ["A", "A"]}`), &v)
	assert.ErrorIs(t, err, ErrInvalidVocabulary)

	err = json.Unmarshal([]byte(`{"T": ["A"], "T": ["B"]}`), &v)
	assert.ErrorIs(t, err, ErrInvalidVocabulary)

	err = json.Unmarshal([]byte(`{"T": 3}`), &v)
	assert.ErrorIs(t, err, ErrInvalidVocabulary)
}

func TestVocabulary_Lookup(t *testing.T) {
	v := MustVocabulary([]string{"Engagement"}, map[string][]string{"Engagement": {"OnTask", "OffTask"}})
	assert.True(t, v.HasTheme("Engagement"))
	assert.False(t, v.HasTheme("engagement"))
	assert.True(t, v.HasCode("Engagement", "OffTask"))
	assert.False(t, v.HasCode("Engagement", "Blank"))
	assert.Equal(t, 1, v.CodeOrder("Engagement", "OffTask"))
	assert.Equal(t, -1, v.CodeOrder("Engagement", "Blank"))

	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"Engagement": ["OnTask", "OffTask"]}`, string(out))
}

func TestAnswer_LengthCountsRunes(t *testing.T) {
	a := Answer{Text: "héllo wörld"}
	assert.Equal(t, 11, a.Length())
}
