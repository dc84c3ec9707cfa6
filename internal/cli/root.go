package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/codebook/internal/logger"
	"github.com/ppiankov/codebook/internal/model"
)

// version is set at build time with -ldflags "-X ...cli.version=v1.2.3".
var version = "dev"

var (
	cfgFile   string
	verbose   bool
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "codebook",
	Short: "Codebook - thematic coding annotations: validate, merge, score",
	Long: `Codebook works with survey answers coded against a theme -> code
vocabulary. Each annotation tags a span of an answer with a code, a
confidence and the annotator that produced it.

It validates annotated datasets against their codebook, merges annotations
from several annotators, and scores one annotator against a ground truth
with span-overlap matching and micro-averaged precision, recall and F1.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "codebook %s\n", version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.codebook/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text, json")

	_ = viper.BindPFlag("output.verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	setDefaults(model.DefaultConfig())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}

		viper.AddConfigPath(filepath.Join(home, ".codebook"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// CODEBOOK_SCORING_OVERLAP_THRESHOLD=0.6 sets scoring.overlap_threshold.
	viper.SetEnvPrefix("CODEBOOK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// setDefaults registers every config key so that environment variables
// are seen by Unmarshal.
func setDefaults(cfg *model.Config) {
	viper.SetDefault("scoring.overlap_threshold", cfg.Scoring.OverlapThreshold)
	viper.SetDefault("scoring.min_confidence", cfg.Scoring.MinConfidence)
	viper.SetDefault("scoring.matching", cfg.Scoring.Matching)
	viper.SetDefault("scoring.reject_ties", cfg.Scoring.RejectTies)
	viper.SetDefault("scoring.presence", cfg.Scoring.Presence)
	viper.SetDefault("scoring.include_matches", cfg.Scoring.IncludeMatches)
	viper.SetDefault("validation.mode", cfg.Validation.Mode)
	viper.SetDefault("merge.policy", cfg.Merge.Policy)
	viper.SetDefault("cache.enabled", cfg.Cache.Enabled)
	viper.SetDefault("cache.dir", cfg.Cache.Dir)
	viper.SetDefault("cache.memory_ttl", cfg.Cache.MemoryTTL)
	viper.SetDefault("cache.disk_ttl", cfg.Cache.DiskTTL)
	viper.SetDefault("concurrency.workers", cfg.Concurrency.Workers)
	viper.SetDefault("concurrency.answer_workers", cfg.Concurrency.AnswerWorkers)
	viper.SetDefault("output.verbose", cfg.Output.Verbose)
	viper.SetDefault("output.include_answers", cfg.Output.IncludeAnswers)
	viper.SetDefault("output.include_footer", cfg.Output.IncludeFooter)
	viper.SetDefault("log.level", cfg.Log.Level)
	viper.SetDefault("log.format", cfg.Log.Format)
}

// loadConfig resolves the effective configuration (defaults, config file,
// environment, then flags via override), validates it and installs the
// logger.
func loadConfig(override func(*model.Config)) (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Output.Verbose {
		cfg.Log.Level = "debug"
	}
	if override != nil {
		override(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.Setup(cfg.Log.Level, cfg.Log.Format)
	return cfg, nil
}
