package score

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/codebook/internal/model"
)

// Alignment pairs answers of an annotated dataset with ground truth by id.
type Alignment struct {
	Pairs           []AlignedPair
	Skipped         []int // annotated ids with no ground-truth answer
	TextMismatches  []int // ids whose trimmed texts differ
	QuestionMatches bool
}

// AlignedPair is one answer present in both datasets.
type AlignedPair struct {
	Annotated   model.Answer
	GroundTruth model.Answer
}

// Align walks the annotated answers in order and looks each up in the
// ground truth. Only annotated answers are evaluated, so scoring a partial
// run against a full ground-truth file is fine.
func Align(annotated, groundTruth *model.Dataset) Alignment {
	al := Alignment{QuestionMatches: annotated.Question == groundTruth.Question}
	gt := make(map[int]model.Answer, len(groundTruth.Answers))
	for _, a := range groundTruth.Answers {
		if _, dup := gt[a.ID]; !dup {
			gt[a.ID] = a
		}
	}
	for _, a := range annotated.Answers {
		ref, ok := gt[a.ID]
		if !ok {
			al.Skipped = append(al.Skipped, a.ID)
			continue
		}
		if strings.TrimSpace(a.Text) != strings.TrimSpace(ref.Text) {
			al.TextMismatches = append(al.TextMismatches, a.ID)
		}
		al.Pairs = append(al.Pairs, AlignedPair{Annotated: a, GroundTruth: ref})
	}
	return al
}

// EvaluateDataset scores every aligned answer in parallel, at most
// workers at a time, and aggregates the counts in answer order. Answers are
// independent, so the per-answer scoring shares no mutable state.
func (s *Scorer) EvaluateDataset(ctx context.Context, annotated, groundTruth *model.Dataset, workers int) (*model.EvaluationReport, error) {
	if workers <= 0 {
		workers = 1
	}
	al := Align(annotated, groundTruth)
	answers := make([]model.AnswerReport, len(al.Pairs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, p := range al.Pairs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, err := s.Score(p.Annotated.Annotations, p.GroundTruth.Annotations, p.GroundTruth.Length())
			if err != nil {
				return fmt.Errorf("answer %d: %w", p.Annotated.ID, err)
			}
			answers[i] = model.AnswerReport{ID: p.Annotated.ID, Report: r}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := Aggregate(answers)
	report.Options = s.opts
	report.Evaluated = len(al.Pairs)
	report.Skipped = al.Skipped
	report.TextMismatches = al.TextMismatches
	report.QuestionMatches = al.QuestionMatches
	return report, nil
}

// Aggregate micro-averages per-answer reports: counts are summed per code,
// per theme and globally before the metrics are computed.
func Aggregate(answers []model.AnswerReport) *model.EvaluationReport {
	var overall model.Counts
	themes := make(map[string]model.Counts)
	codes := make(map[string]map[string]model.Counts)

	for _, a := range answers {
		for theme, byCode := range a.Report.PerCode {
			if codes[theme] == nil {
				codes[theme] = make(map[string]model.Counts)
			}
			for code, m := range byCode {
				c := codes[theme][code]
				c.Add(m.Counts)
				codes[theme][code] = c

				t := themes[theme]
				t.Add(m.Counts)
				themes[theme] = t

				overall.Add(m.Counts)
			}
		}
	}

	report := &model.EvaluationReport{
		Overall:  model.MetricsFrom(overall),
		PerTheme: make(map[string]model.Metrics, len(themes)),
		PerCode:  make(map[string]map[string]model.Metrics, len(codes)),
		Answers:  answers,
	}
	for theme, c := range themes {
		report.PerTheme[theme] = model.MetricsFrom(c)
	}
	for theme, byCode := range codes {
		report.PerCode[theme] = make(map[string]model.Metrics, len(byCode))
		for code, c := range byCode {
			report.PerCode[theme][code] = model.MetricsFrom(c)
		}
	}
	return report
}
