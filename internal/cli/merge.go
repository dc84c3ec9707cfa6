package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/codebook/internal/merge"
	"github.com/ppiankov/codebook/internal/model"
	"github.com/ppiankov/codebook/internal/pipeline"
)

var (
	mergePolicy string
	mergeOutput string
)

var mergeCmd = &cobra.Command{
	Use:   "merge <base> <incoming>",
	Short: "Merge annotations from two datasets",
	Long: `Merge combines the annotations of two datasets answer by answer.

Policies:
  union              keep every record from both sides
  dedupe             like union, but skip records identical to one already present
  replace:<id>       drop the base records of annotator <id> first, so
                     re-running a model replaces its earlier output

Both inputs must validate. The base question, codebook and answer order are
kept; answers only in <incoming> are appended.

Example:
  codebook merge ground_truth.json gpt4_run.json -o merged.json
  codebook merge merged.json gpt4_rerun.json --policy replace:gpt-4o-mini -o merged.json`,
	Args: cobra.ExactArgs(2),
	RunE: runMerge,
}

func init() {
	rootCmd.AddCommand(mergeCmd)

	mergeCmd.Flags().StringVar(&mergePolicy, "policy", "", "merge policy: union, dedupe, replace:<annotator> (default from config)")
	mergeCmd.Flags().StringVarP(&mergeOutput, "output", "o", "", "output dataset path (.json, .yaml)")
	_ = mergeCmd.MarkFlagRequired("output")
}

func runMerge(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(func(c *model.Config) {
		if mergePolicy != "" {
			c.Merge.Policy = mergePolicy
		}
	})
	if err != nil {
		return err
	}

	policy, err := merge.ParsePolicy(cfg.Merge.Policy)
	if err != nil {
		return err
	}

	p, err := pipeline.NewPipeline(cfg)
	if err != nil {
		return err
	}

	merged, stats, err := p.MergeFiles(args[0], args[1], policy)
	if err != nil {
		return fmt.Errorf("merge failed: %w", err)
	}

	if err := pipeline.SaveDataset(mergeOutput, merged); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "✓ Merged %s into %s with policy %s\n", args[1], args[0], policy)
	fmt.Fprintf(os.Stderr, "  Answers merged:   %d\n", stats.Merged)
	fmt.Fprintf(os.Stderr, "  Answers added:    %d\n", len(stats.Added))
	fmt.Fprintf(os.Stderr, "  Annotations:      %d -> %d\n", stats.RecordsBefore, stats.RecordsAfter)
	if len(stats.TextMismatches) > 0 {
		fmt.Fprintf(os.Stderr, "  ⚠ Text differs for %d answer(s); base text kept\n", len(stats.TextMismatches))
	}
	fmt.Fprintf(os.Stderr, "✓ Wrote %s\n", mergeOutput)
	return nil
}
