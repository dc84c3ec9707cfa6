package score

import (
	"sort"

	"github.com/ppiankov/codebook/internal/model"
)

// DefaultThreshold is the Jaccard ratio at or above which two spans match.
const DefaultThreshold = 0.5

// Scorer computes agreement between two annotation trees of the same
// answer. Tree A is the annotator under test, tree B the reference:
// unmatched A records are false positives, unmatched B records false
// negatives. Scoring ignores annotator ids.
//
// Inputs are expected to be validated; scoring is total over valid trees.
type Scorer struct {
	opts model.ScoringConfig
}

// NewScorer creates a new scorer
func NewScorer(opts model.ScoringConfig) *Scorer {
	if opts.Matching == "" {
		opts.Matching = model.MatchingExact
	}
	return &Scorer{opts: opts}
}

// Options returns the scoring configuration in use.
func (s *Scorer) Options() model.ScoringConfig {
	return s.opts
}

// Score compares a against b with the default exact matching and the
// given overlap threshold. Whole spans only match Whole spans.
func Score(a, b model.Tree, threshold float64) model.AgreementReport {
	opts := model.DefaultScoring()
	opts.OverlapThreshold = threshold
	// Exact matching without tie rejection cannot fail.
	report, _ := NewScorer(opts).Score(a, b, model.UnknownLength)
	return report
}

// Score compares a against b for an answer of textLength characters
// (model.UnknownLength if unknown). Per-key counts are reported
// individually and micro-averaged into Overall. It fails only with
// ErrAmbiguousMatch when RejectTies is set.
func (s *Scorer) Score(a, b model.Tree, textLength int) (model.AgreementReport, error) {
	a, b = s.prepare(a), s.prepare(b)

	report := model.AgreementReport{
		PerTheme: make(map[string]model.Metrics),
		PerCode:  make(map[string]map[string]model.Metrics),
	}
	var overall model.Counts
	themeCounts := make(map[string]model.Counts)

	for _, k := range unionKeys(a, b) {
		ra, rb := a[k.Theme][k.Code], b[k.Theme][k.Code]
		matches, err := s.match(k, ra, rb, textLength)
		if err != nil {
			return model.AgreementReport{}, err
		}
		c := model.Counts{
			TP: len(matches),
			FP: len(ra) - len(matches),
			FN: len(rb) - len(matches),
		}
		if report.PerCode[k.Theme] == nil {
			report.PerCode[k.Theme] = make(map[string]model.Metrics)
		}
		report.PerCode[k.Theme][k.Code] = model.MetricsFrom(c)
		tc := themeCounts[k.Theme]
		tc.Add(c)
		themeCounts[k.Theme] = tc
		overall.Add(c)
		if s.opts.IncludeMatches {
			report.Matches = append(report.Matches, matches...)
		}
	}

	for theme, c := range themeCounts {
		report.PerTheme[theme] = model.MetricsFrom(c)
	}
	report.Overall = model.MetricsFrom(overall)
	return report, nil
}

// prepare applies the confidence filter and, in presence mode, collapses
// every key to a single whole-text tag.
func (s *Scorer) prepare(t model.Tree) model.Tree {
	filtered := t
	if s.opts.MinConfidence > 0 {
		filtered = t.Filter(func(r model.Record) bool { return r.Confidence >= s.opts.MinConfidence })
	}
	if !s.opts.Presence {
		return filtered
	}
	out := model.Tree{}
	for _, k := range filtered.Keys() {
		out.Add(model.Record{Theme: k.Theme, Code: k.Code, Span: model.WholeSpan(), Confidence: 1})
	}
	return out
}

func unionKeys(a, b model.Tree) []model.Key {
	seen := make(map[model.Key]bool)
	var keys []model.Key
	for _, t := range []model.Tree{a, b} {
		for _, k := range t.Keys() {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	model.SortKeys(keys)
	return keys
}

// candidate is an admissible pair: overlap ratio at or above threshold.
type candidate struct {
	i, j  int
	ratio float64
}

func (s *Scorer) candidates(ra, rb []model.Record, textLength int) [][]candidate {
	out := make([][]candidate, len(ra))
	for i, x := range ra {
		for j, y := range rb {
			r := model.Overlap(x.Span, y.Span, textLength)
			if r >= s.opts.OverlapThreshold {
				out[i] = append(out[i], candidate{i: i, j: j, ratio: r})
			}
		}
		// Highest ratio first; earliest B index breaks ties.
		sort.SliceStable(out[i], func(p, q int) bool {
			return out[i][p].ratio > out[i][q].ratio
		})
	}
	return out
}

func (s *Scorer) match(k model.Key, ra, rb []model.Record, textLength int) ([]model.Match, error) {
	if len(ra) == 0 || len(rb) == 0 {
		return nil, nil
	}
	cands := s.candidates(ra, rb, textLength)
	if s.opts.RejectTies && s.opts.Matching != model.MatchingGreedy {
		if err := checkTies(k, ra, rb, cands); err != nil {
			return nil, err
		}
	}

	var pairs []candidate
	if s.opts.Matching == model.MatchingGreedy {
		pairs = greedyMatching(cands, len(rb))
	} else {
		pairs = maximumMatching(cands, len(rb))
	}

	matches := make([]model.Match, len(pairs))
	for n, p := range pairs {
		matches[n] = model.Match{
			Theme:    k.Theme,
			Code:     k.Code,
			IndexA:   p.i,
			IndexB:   p.j,
			SectionA: ra[p.i].Span.String(),
			SectionB: rb[p.j].Span.String(),
			Overlap:  p.ratio,
		}
	}
	return matches, nil
}

// maximumMatching finds a maximum-cardinality matching with augmenting
// paths. A records are visited in index order and each tries its
// candidates best ratio first, so the result is deterministic: earlier A
// records claim their preferred partners before later ones.
func maximumMatching(cands [][]candidate, nb int) []candidate {
	matchB := make([]int, nb)
	for j := range matchB {
		matchB[j] = -1
	}
	pick := make([]candidate, len(cands))

	var augment func(i int, visited []bool) bool
	augment = func(i int, visited []bool) bool {
		for _, c := range cands[i] {
			if visited[c.j] {
				continue
			}
			visited[c.j] = true
			if matchB[c.j] < 0 || augment(matchB[c.j], visited) {
				matchB[c.j] = i
				pick[i] = c
				return true
			}
		}
		return false
	}

	for i := range cands {
		augment(i, make([]bool, nb))
	}

	var out []candidate
	for j, i := range matchB {
		if i >= 0 {
			out = append(out, candidate{i: i, j: j, ratio: pick[i].ratio})
		}
	}
	sortPairs(out)
	return out
}

// greedyMatching takes admissible pairs by descending ratio, then
// earliest A index, then earliest B index.
func greedyMatching(cands [][]candidate, nb int) []candidate {
	var all []candidate
	for _, cs := range cands {
		all = append(all, cs...)
	}
	sort.SliceStable(all, func(p, q int) bool {
		if all[p].ratio != all[q].ratio {
			return all[p].ratio > all[q].ratio
		}
		if all[p].i != all[q].i {
			return all[p].i < all[q].i
		}
		return all[p].j < all[q].j
	})

	usedA := make(map[int]bool)
	usedB := make([]bool, nb)
	var out []candidate
	for _, c := range all {
		if usedA[c.i] || usedB[c.j] {
			continue
		}
		usedA[c.i] = true
		usedB[c.j] = true
		out = append(out, c)
	}
	sortPairs(out)
	return out
}

func sortPairs(ps []candidate) {
	sort.Slice(ps, func(p, q int) bool {
		if ps[p].i != ps[q].i {
			return ps[p].i < ps[q].i
		}
		return ps[p].j < ps[q].j
	})
}

// checkTies reports ErrAmbiguousMatch when a record's best admissible
// partners share the same ratio but have different spans, so that the
// index-order tie-break decides which pair is reported.
func checkTies(k model.Key, ra, rb []model.Record, cands [][]candidate) error {
	for i, cs := range cands {
		if len(cs) < 2 || cs[0].ratio != cs[1].ratio {
			continue
		}
		if !rb[cs[0].j].Span.Equal(rb[cs[1].j].Span) {
			return tieError(k, "A", i, ra[i].Span, cs[0].ratio)
		}
	}

	byB := make([][]candidate, len(rb))
	for _, cs := range cands {
		for _, c := range cs {
			byB[c.j] = append(byB[c.j], c)
		}
	}
	for j, cs := range byB {
		best := -1.0
		var bestSpans []model.Span
		for _, c := range cs {
			switch {
			case c.ratio > best:
				best = c.ratio
				bestSpans = []model.Span{ra[c.i].Span}
			case c.ratio == best:
				bestSpans = append(bestSpans, ra[c.i].Span)
			}
		}
		for _, sp := range bestSpans {
			if !sp.Equal(bestSpans[0]) {
				return tieError(k, "B", j, rb[j].Span, best)
			}
		}
	}
	return nil
}

func tieError(k model.Key, side string, index int, span model.Span, ratio float64) error {
	return model.NewValidationError(model.ErrAmbiguousMatch,
		"record %s[%d] %s has several distinct partners at overlap %.3f",
		side, index, sectionLabel(span), ratio).At(k.Theme, k.Code, index)
}

func sectionLabel(s model.Span) string {
	if s.Whole {
		return "(whole)"
	}
	return s.String()
}
