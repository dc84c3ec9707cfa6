// Package merge combines annotation trees from two sources.
//
// Merge is associative and commutative (up to record order) under Union and
// DedupeExact. DedupeExact treats both inputs as sets: a record repeated
// inside base collapses just like one repeated across base and incoming.
// Merge is not commutative under ReplaceAnnotator: that policy strips the
// base first, so the result depends on which side is the base. This is
// intended.
package merge

import (
	"fmt"
	"strings"

	"github.com/ppiankov/codebook/internal/model"
)

// PolicyKind selects the conflict policy.
type PolicyKind string

const (
	PolicyUnion            PolicyKind = "union"
	PolicyReplaceAnnotator PolicyKind = "replace"
	PolicyDedupeExact      PolicyKind = "dedupe"
)

// Policy is a merge conflict policy. Annotator is used only by
// PolicyReplaceAnnotator.
type Policy struct {
	Kind      PolicyKind
	Annotator string
}

// Union concatenates record lists per (theme, code).
func Union() Policy { return Policy{Kind: PolicyUnion} }

// ReplaceAnnotator drops the base records of annotator before the union,
// so re-running an annotator overwrites only its own earlier output.
func ReplaceAnnotator(annotator string) Policy {
	return Policy{Kind: PolicyReplaceAnnotator, Annotator: annotator}
}

// DedupeExact is Union without adding records identical in every field to
// one already present.
func DedupeExact() Policy { return Policy{Kind: PolicyDedupeExact} }

func (p Policy) String() string {
	if p.Kind == PolicyReplaceAnnotator {
		return string(p.Kind) + ":" + p.Annotator
	}
	return string(p.Kind)
}

// ParsePolicy reads "union", "dedupe" or "replace:<annotator>". The empty
// string is Union.
func ParsePolicy(s string) (Policy, error) {
	name, arg, hasArg := strings.Cut(strings.TrimSpace(s), ":")
	switch PolicyKind(strings.ToLower(name)) {
	case "", PolicyUnion:
		return Union(), nil
	case PolicyDedupeExact, "dedupe-exact":
		return DedupeExact(), nil
	case PolicyReplaceAnnotator, "replace-annotator":
		if !hasArg || arg == "" {
			return Policy{}, fmt.Errorf("policy %q needs an annotator id (replace:<annotator>)", s)
		}
		return ReplaceAnnotator(arg), nil
	}
	return Policy{}, fmt.Errorf("unknown merge policy: %s (supported: union, dedupe, replace:<annotator>)", s)
}

// Merge combines base and incoming into a new tree. Neither input is
// modified. Base records come first under each key, followed by incoming
// records in their original order.
//
// Inputs are expected to be validated; Merge does not re-check them.
func Merge(base, incoming model.Tree, policy Policy) model.Tree {
	var out model.Tree
	switch policy.Kind {
	case PolicyReplaceAnnotator:
		out = base.Without(policy.Annotator)
	case PolicyDedupeExact:
		out = model.Tree{}
		appendTree(out, base, true)
	default:
		out = base.Clone()
	}
	appendTree(out, incoming, policy.Kind == PolicyDedupeExact)
	return out
}

// appendTree adds every record of src to dst under the key it is stored at.
func appendTree(dst, src model.Tree, dedupe bool) {
	for _, k := range src.Keys() {
		for _, r := range src[k.Theme][k.Code] {
			r.Theme, r.Code = k.Theme, k.Code
			if dedupe && contains(dst[k.Theme][k.Code], r) {
				continue
			}
			dst.Put(k.Theme, k.Code, r)
		}
	}
}

func contains(recs []model.Record, r model.Record) bool {
	for _, e := range recs {
		if e.Equal(r) {
			return true
		}
	}
	return false
}

// Stats summarises a dataset merge.
type Stats struct {
	Merged         int   // answers present in both datasets
	Added          []int // incoming answer ids not in base, appended
	TextMismatches []int // ids whose texts differ; base text is kept
	RecordsBefore  int
	RecordsAfter   int
}

// MergeDatasets merges incoming into base answer by answer, aligned by id.
// The base question, vocabulary and answer order are kept; incoming answers
// unknown to base are appended in incoming order.
func MergeDatasets(base, incoming *model.Dataset, policy Policy) (*model.Dataset, Stats) {
	out := base.Clone()
	var stats Stats
	idx := out.Index()

	for _, a := range base.Answers {
		stats.RecordsBefore += a.Annotations.Len()
	}

	for _, in := range incoming.Answers {
		i, ok := idx[in.ID]
		if !ok {
			out.Answers = append(out.Answers, model.Answer{
				ID:          in.ID,
				Text:        in.Text,
				Annotations: Merge(model.Tree{}, in.Annotations, policy),
			})
			idx[in.ID] = len(out.Answers) - 1
			stats.Added = append(stats.Added, in.ID)
			continue
		}
		if strings.TrimSpace(out.Answers[i].Text) != strings.TrimSpace(in.Text) {
			stats.TextMismatches = append(stats.TextMismatches, in.ID)
		}
		out.Answers[i].Annotations = Merge(out.Answers[i].Annotations, in.Annotations, policy)
		stats.Merged++
	}

	for _, a := range out.Answers {
		stats.RecordsAfter += a.Annotations.Len()
	}
	return out, stats
}
