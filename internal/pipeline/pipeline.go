package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/codebook/internal/cache"
	"github.com/ppiankov/codebook/internal/logger"
	"github.com/ppiankov/codebook/internal/merge"
	"github.com/ppiankov/codebook/internal/model"
	"github.com/ppiankov/codebook/internal/score"
	"github.com/ppiankov/codebook/internal/validate"
)

// Pipeline ties loading, validation, merging, scoring and rendering
// together for the command line.
type Pipeline struct {
	validator *validate.Validator
	scorer    *score.Scorer
	cache     cache.Cache
	renderer  *Renderer
	config    *model.Config
	log       *slog.Logger
}

// NewPipeline creates a pipeline from a validated configuration.
func NewPipeline(cfg *model.Config) (*Pipeline, error) {
	mode, err := validate.ParseMode(cfg.Validation.Mode)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		validator: validate.NewValidator(mode),
		scorer:    score.NewScorer(cfg.Scoring),
		cache:     cache.New(cfg.Cache),
		renderer:  NewRenderer(cfg.Output.IncludeFooter, cfg.Output.IncludeAnswers),
		config:    cfg,
		log:       logger.WithComponent("pipeline"),
	}, nil
}

// ValidationOutcome summarises a validated file.
type ValidationOutcome struct {
	Path    string
	Answers int
	Records int
	// Errors holds decoding problems followed by validation failures.
	// In strict mode it has at most one entry.
	Errors model.ValidationErrors
}

// OK reports whether the file passed.
func (o *ValidationOutcome) OK() bool {
	return len(o.Errors) == 0
}

// ValidateFile loads path and validates it with the configured mode.
func (p *Pipeline) ValidateFile(path string) (*ValidationOutcome, error) {
	res, err := LoadDataset(path)
	if err != nil {
		return nil, err
	}

	out := &ValidationOutcome{Path: path, Answers: len(res.Dataset.Answers)}
	for _, a := range res.Dataset.Answers {
		out.Records += a.Annotations.Len()
	}

	out.Errors = append(out.Errors, res.Problems...)
	if err := p.validator.ValidateDataset(res.Dataset); err != nil {
		out.Errors = append(out.Errors, asValidationErrors(err)...)
	}
	if p.config.Validation.Mode != model.ModeCollect && len(out.Errors) > 1 {
		out.Errors = out.Errors[:1]
	}

	p.log.Debug("validated dataset", "path", path, "answers", out.Answers, "records", out.Records, "errors", len(out.Errors))
	return out, nil
}

// MergeFiles merges the dataset at incomingPath into the one at basePath.
// Both inputs must validate, and the merged result must conform to the
// base vocabulary.
func (p *Pipeline) MergeFiles(basePath, incomingPath string, policy merge.Policy) (*model.Dataset, merge.Stats, error) {
	base, err := p.loadValid(basePath)
	if err != nil {
		return nil, merge.Stats{}, err
	}
	incoming, err := p.loadValid(incomingPath)
	if err != nil {
		return nil, merge.Stats{}, err
	}
	if base.Question != incoming.Question {
		p.log.Warn("question text differs, keeping base", "base", basePath, "incoming", incomingPath)
	}

	merged, stats := merge.MergeDatasets(base, incoming, policy)
	if err := p.validator.ValidateDataset(merged); err != nil {
		return nil, stats, fmt.Errorf("merged dataset does not fit the vocabulary of %s: %w", basePath, err)
	}
	for _, id := range stats.TextMismatches {
		p.log.Warn("answer text differs, keeping base text", "answer", id)
	}

	p.log.Info("merged datasets",
		"policy", policy.String(),
		"merged", stats.Merged,
		"added", len(stats.Added),
		"records_before", stats.RecordsBefore,
		"records_after", stats.RecordsAfter)
	return merged, stats, nil
}

func (p *Pipeline) loadValid(path string) (*model.Dataset, error) {
	res, err := LoadDataset(path)
	if err != nil {
		return nil, err
	}
	if len(res.Problems) > 0 {
		return nil, fmt.Errorf("%s: %w", path, res.Problems.Err())
	}
	if err := p.validator.ValidateDataset(res.Dataset); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return res.Dataset, nil
}

// EvaluateFiles scores the annotated dataset against ground truth.
//
// The ground truth must validate. The annotated file is treated like
// model output: records with unusable spans or confidences are dropped
// with a warning, and records outside the vocabulary are kept and count
// as false positives.
//
// Reports are cached by the content of both files and the scoring
// options, so re-running an unchanged evaluation returns the earlier run.
func (p *Pipeline) EvaluateFiles(ctx context.Context, annotatedPath, groundTruthPath string) (*model.EvaluationReport, error) {
	gt, err := LoadDataset(groundTruthPath)
	if err != nil {
		return nil, err
	}
	if len(gt.Problems) > 0 {
		return nil, fmt.Errorf("ground truth %s: %w", groundTruthPath, gt.Problems.Err())
	}
	if err := p.validator.ValidateDataset(gt.Dataset); err != nil {
		return nil, fmt.Errorf("ground truth %s: %w", groundTruthPath, err)
	}

	annotated, err := LoadDataset(annotatedPath)
	if err != nil {
		return nil, err
	}

	key := cache.EvaluationKey(annotated.Raw, gt.Raw, p.scorer.Options())
	var cached model.EvaluationReport
	if cache.GetJSON(p.cache, key, &cached) {
		p.log.Debug("evaluation cache hit", "annotated", annotatedPath, "cached_run_id", cached.RunID)
		cached.RunID = uuid.NewString()
		cached.Annotated = annotatedPath
		cached.GroundTruth = groundTruthPath
		return &cached, nil
	}

	runID := uuid.NewString()
	ctx = logger.WithRunID(ctx, runID)
	log := logger.FromContext(ctx).With("component", "pipeline")

	var warnings []string
	for _, prob := range annotated.Problems {
		warnings = append(warnings, "dropped: "+prob.Error())
	}
	warnings = append(warnings, dropUnusable(annotated.Dataset, gt.Dataset)...)

	start := time.Now()
	report, err := p.scorer.EvaluateDataset(ctx, annotated.Dataset, gt.Dataset, p.config.Concurrency.AnswerWorkers)
	if err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", annotatedPath, err)
	}

	report.RunID = runID
	report.CreatedAt = start.UTC()
	report.Subject = gt.Dataset.Question
	report.Annotated = annotatedPath
	report.GroundTruth = groundTruthPath
	report.Warnings = warnings

	for _, w := range warnings {
		log.Warn(w)
	}
	if len(report.TextMismatches) > 0 {
		log.Warn("answer text differs from ground truth", "ids", report.TextMismatches)
	}
	if len(report.Skipped) > 0 {
		log.Info("skipped answers missing from ground truth", "ids", report.Skipped)
	}
	log.Info("evaluated dataset",
		"annotated", annotatedPath,
		"answers", report.Evaluated,
		"f1", report.Overall.F1,
		"elapsed", time.Since(start))

	if err := cache.SetJSON(p.cache, key, report, 0); err != nil {
		log.Warn("failed to cache report", "error", err)
	}
	return report, nil
}

// dropUnusable removes annotated records whose span does not fit the
// ground-truth text or whose confidence is outside [0, 1].
func dropUnusable(annotated, groundTruth *model.Dataset) []string {
	lengths := make(map[int]int, len(groundTruth.Answers))
	for _, a := range groundTruth.Answers {
		lengths[a.ID] = a.Length()
	}

	var warnings []string
	for i, a := range annotated.Answers {
		length, ok := lengths[a.ID]
		if !ok {
			length = a.Length()
		}
		id := a.ID
		annotated.Answers[i].Annotations = a.Annotations.Filter(func(r model.Record) bool {
			if err := r.Span.Check(length); err != nil {
				warnings = append(warnings, fmt.Sprintf("dropped: answer=%d %s/%s: %v", id, r.Theme, r.Code, err))
				return false
			}
			if !model.ValidConfidence(r.Confidence) {
				warnings = append(warnings, fmt.Sprintf("dropped: answer=%d %s/%s: confidence %v is outside [0, 1]", id, r.Theme, r.Code, r.Confidence))
				return false
			}
			return true
		})
	}
	return warnings
}

// RenderReport writes the report to jsonPath and mdPath when set and
// prints the terminal summary to w.
func (p *Pipeline) RenderReport(w io.Writer, report *model.EvaluationReport, jsonPath, mdPath string) error {
	if jsonPath != "" {
		if err := p.renderer.RenderJSON(report, jsonPath); err != nil {
			return fmt.Errorf("render JSON: %w", err)
		}
		p.log.Debug("wrote JSON report", "path", jsonPath)
	}

	if mdPath != "" {
		if err := p.renderer.RenderMarkdown(report, mdPath); err != nil {
			return fmt.Errorf("render markdown: %w", err)
		}
		p.log.Debug("wrote Markdown report", "path", mdPath)
	}

	p.renderer.RenderSummary(w, report)
	return nil
}

// Renderer returns the pipeline's report renderer.
func (p *Pipeline) Renderer() *Renderer {
	return p.renderer
}

func asValidationErrors(err error) model.ValidationErrors {
	var errs model.ValidationErrors
	if errors.As(err, &errs) {
		return errs
	}
	var ve *model.ValidationError
	if errors.As(err, &ve) {
		return model.ValidationErrors{ve}
	}
	return model.ValidationErrors{model.NewValidationError(model.ErrMalformedAnnotation, "%v", err)}
}
