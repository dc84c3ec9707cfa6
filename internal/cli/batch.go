package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/codebook/internal/model"
	"github.com/ppiankov/codebook/internal/pipeline"
	"github.com/ppiankov/codebook/internal/worker"
)

var (
	concurrency  int
	outputDir    string
	batchTimeout time.Duration
	fromFile     string
)

var batchCmd = &cobra.Command{
	Use:   "batch <ground-truth> [pattern]...",
	Short: "Score many annotated datasets against one ground truth",
	Long: `Batch scores every annotated dataset matched by the patterns against a
single ground-truth file, several files at a time, and writes a JSON and a
Markdown report per file.

Patterns support ** for any number of directories.

Example:
  codebook batch ground_truth.json 'runs/**/*.json'
  codebook batch gt.json 'runs/gpt-4/*.yaml' 'runs/qwen/*.yaml' --concurrency 4
  codebook batch gt.json --from-file runs.txt --output-dir ./reports`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", 0, "number of files scored at once (default from config)")
	batchCmd.Flags().StringVar(&outputDir, "output-dir", "./codebook-reports", "output directory for reports")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 30*time.Minute, "total timeout for batch processing")
	batchCmd.Flags().StringVar(&fromFile, "from-file", "", "read paths or patterns from a file (one per line)")
	addScoringFlags(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	groundTruth := args[0]
	patterns := args[1:]
	ctx, cancel := context.WithTimeout(context.Background(), batchTimeout)
	defer cancel()

	if fromFile != "" {
		listed, err := worker.ReadPathsFromFile(fromFile)
		if err != nil {
			return fmt.Errorf("read %s: %w", fromFile, err)
		}
		patterns = append(patterns, listed...)
	}
	if len(patterns) == 0 {
		return fmt.Errorf("no annotated files given: pass patterns or --from-file")
	}

	overrides := scoringOverrides(cmd)
	cfg, err := loadConfig(func(c *model.Config) {
		overrides(c)
		if concurrency > 0 {
			c.Concurrency.Workers = concurrency
		}
	})
	if err != nil {
		return err
	}

	files, err := worker.Discover(patterns...)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no files match %s", strings.Join(patterns, ", "))
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Codebook Batch Scoring\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Ground truth: %s\n", groundTruth)
	fmt.Fprintf(os.Stderr, "  Files:        %d\n", len(files))
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", cfg.Concurrency.Workers)
	fmt.Fprintf(os.Stderr, "  Output dir:   %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "\n")

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	p, err := pipeline.NewPipeline(cfg)
	if err != nil {
		return err
	}

	results := worker.NewBatchEvaluator(p, cfg.Concurrency.Workers).ProcessFiles(ctx, groundTruth, files)

	renderer := p.Renderer()
	successCount := 0
	failureCount := 0
	for _, result := range results {
		if result.Error != nil {
			failureCount++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", result.Path, result.Error)
			continue
		}

		slug := reportSlug(result.Path)
		jsonPath := filepath.Join(outputDir, slug+".json")
		mdPath := filepath.Join(outputDir, slug+".md")

		if err := renderer.RenderJSON(result.Report, jsonPath); err != nil {
			failureCount++
			fmt.Fprintf(os.Stderr, "✗ %s: failed to write JSON: %v\n", result.Path, err)
			continue
		}
		if err := renderer.RenderMarkdown(result.Report, mdPath); err != nil {
			failureCount++
			fmt.Fprintf(os.Stderr, "✗ %s: failed to write Markdown: %v\n", result.Path, err)
			continue
		}

		successCount++
		m := result.Report.Overall
		fmt.Fprintf(os.Stderr, "✓ %s (P %.3f  R %.3f  F1 %.3f)\n", result.Path, m.Precision, m.Recall, m.F1)
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Batch Complete\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Total:     %d files\n", len(results))
	fmt.Fprintf(os.Stderr, "  Success:   %d\n", successCount)
	fmt.Fprintf(os.Stderr, "  Failures:  %d\n", failureCount)
	fmt.Fprintf(os.Stderr, "  Output:    %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "\n")

	if failureCount > 0 {
		return fmt.Errorf("%d of %d file(s) failed", failureCount, len(results))
	}
	return nil
}

// reportSlug turns an input path into a report file name. Directory
// parts are kept so that runs/gpt-4/pass1.json and runs/qwen/pass1.json
// do not collide.
func reportSlug(path string) string {
	s := filepath.ToSlash(filepath.Clean(path))
	s = strings.TrimSuffix(s, filepath.Ext(s))
	s = strings.TrimLeft(s, "./")

	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		" ", "-",
	)
	s = replacer.Replace(s)

	if len(s) > 100 {
		s = s[len(s)-100:]
	}
	if s == "" {
		s = "report"
	}
	return s
}
