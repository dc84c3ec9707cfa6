package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/codebook/internal/model"
	"github.com/ppiankov/codebook/internal/pipeline"
)

var (
	outJSON        string
	outMD          string
	scoreTimeout   time.Duration
	threshold      float64
	minConfidence  float64
	matching       string
	rejectTies     bool
	presence       bool
	includeMatches bool
	includeAnswers bool
	noCache        bool
	noFooter       bool
)

var scoreCmd = &cobra.Command{
	Use:   "score <annotated> <ground-truth>",
	Short: "Score an annotated dataset against ground truth",
	Long: `Score aligns answers by id and compares annotations per (theme, code).

Two records match when the Jaccard overlap of their spans reaches the
threshold; each record is matched at most once. Matched records are true
positives, unmatched annotated records false positives and unmatched
ground-truth records false negatives. Counts are summed before precision,
recall and F1 are computed, per code, per theme and overall.

Example:
  codebook score gpt4_run.json ground_truth.json
  codebook score run.yaml gt.json --threshold 0.7 --json report.json --md report.md
  codebook score run.json gt.json --presence --min-confidence 0.5`,
	Args: cobra.ExactArgs(2),
	RunE: runScore,
}

func init() {
	rootCmd.AddCommand(scoreCmd)

	scoreCmd.Flags().StringVar(&outJSON, "json", "", "output JSON report path")
	scoreCmd.Flags().StringVar(&outMD, "md", "", "output Markdown report path")
	scoreCmd.Flags().DurationVar(&scoreTimeout, "timeout", 5*time.Minute, "overall scoring timeout")
	addScoringFlags(scoreCmd)
}

// addScoringFlags registers the flags shared by score and batch.
func addScoringFlags(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&threshold, "threshold", 0.5, "minimum span overlap (Jaccard) for a match")
	cmd.Flags().Float64Var(&minConfidence, "min-confidence", 0, "ignore records below this confidence on both sides")
	cmd.Flags().StringVar(&matching, "matching", "exact", "matching strategy: exact or greedy")
	cmd.Flags().BoolVar(&rejectTies, "reject-ties", false, "fail when equally good partners make the matching ambiguous")
	cmd.Flags().BoolVar(&presence, "presence", false, "ignore spans: score which (theme, code) pairs are present")
	cmd.Flags().BoolVar(&includeMatches, "include-matches", false, "list matched record pairs in the report")
	cmd.Flags().BoolVar(&includeAnswers, "include-answers", false, "include per-answer results in reports")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the report cache")
	cmd.Flags().BoolVar(&noFooter, "no-footer", false, "disable footer in Markdown reports")
}

// scoringOverrides applies only the flags the user set, so config file
// and environment values survive.
func scoringOverrides(cmd *cobra.Command) func(*model.Config) {
	return func(c *model.Config) {
		flags := cmd.Flags()
		if flags.Changed("threshold") {
			c.Scoring.OverlapThreshold = threshold
		}
		if flags.Changed("min-confidence") {
			c.Scoring.MinConfidence = minConfidence
		}
		if flags.Changed("matching") {
			c.Scoring.Matching = matching
		}
		if flags.Changed("reject-ties") {
			c.Scoring.RejectTies = rejectTies
		}
		if flags.Changed("presence") {
			c.Scoring.Presence = presence
		}
		if flags.Changed("include-matches") {
			c.Scoring.IncludeMatches = includeMatches
		}
		if flags.Changed("include-answers") {
			c.Output.IncludeAnswers = includeAnswers
		}
		if noCache {
			c.Cache.Enabled = false
		}
		if noFooter {
			c.Output.IncludeFooter = false
		}
	}
}

func runScore(cmd *cobra.Command, args []string) error {
	annotated, groundTruth := args[0], args[1]
	ctx, cancel := context.WithTimeout(context.Background(), scoreTimeout)
	defer cancel()

	cfg, err := loadConfig(scoringOverrides(cmd))
	if err != nil {
		return err
	}

	p, err := pipeline.NewPipeline(cfg)
	if err != nil {
		return err
	}

	report, err := p.EvaluateFiles(ctx, annotated, groundTruth)
	if err != nil {
		return fmt.Errorf("score failed: %w", err)
	}

	return p.RenderReport(cmd.OutOrStdout(), report, outJSON, outMD)
}
