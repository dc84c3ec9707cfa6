package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/codebook/internal/model"
	"github.com/ppiankov/codebook/internal/pipeline"
)

var validateMode string

var validateCmd = &cobra.Command{
	Use:   "validate <dataset>...",
	Short: "Check annotated datasets against their codebook",
	Long: `Validate checks each dataset for:
- themes and codes that are not in the codebook
- spans that do not fit the answer text
- confidences outside [0, 1]
- duplicate answer ids and malformed annotation records

Strict mode reports the first problem per file; collect mode reports all.

Example:
  codebook validate ground_truth.json
  codebook validate runs/*.yaml --mode collect`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&validateMode, "mode", "", "validation mode: strict or collect (default from config)")
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(func(c *model.Config) {
		if validateMode != "" {
			c.Validation.Mode = validateMode
		}
	})
	if err != nil {
		return err
	}

	p, err := pipeline.NewPipeline(cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	failed := 0
	for _, path := range args {
		res, err := p.ValidateFile(path)
		if err != nil {
			failed++
			fmt.Fprintf(out, "✗ %s: %v\n", path, err)
			continue
		}
		if res.OK() {
			fmt.Fprintf(out, "✓ %s (%d answers, %d annotations)\n", path, res.Answers, res.Records)
			continue
		}
		failed++
		fmt.Fprintf(out, "✗ %s: %d problem(s)\n", path, len(res.Errors))
		for _, e := range res.Errors {
			fmt.Fprintf(out, "    %v\n", e)
		}
	}

	if failed > 0 {
		return fmt.Errorf("validation failed for %d of %d file(s)", failed, len(args))
	}
	return nil
}
