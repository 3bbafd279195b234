// Command chatmesh is the command line front end: an interactive chat, one
// shot questions, document ingestion and evaluation runs.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hupe1980/chatmesh"
	"github.com/hupe1980/chatmesh/config"
	"github.com/hupe1980/chatmesh/logging"
)

var (
	// Global flags
	configPath string
	envFiles   []string
	verbose    bool
	timeout    time.Duration

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "chatmesh",
	Short: "Configuration driven multi-agent chatbot with retrieval",
	Long: `chatmesh runs named chat agents defined in a YAML or TOML configuration.

Agents share one retrieval index built from local documents and may call a
small set of tools (calculator, document search, web search, email).

Run without arguments to start the interactive chat.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadEnv(envFiles...); err != nil {
			return fmt.Errorf("load env: %w", err)
		}

		level := logging.LogLevelWarn
		if verbose {
			level = logging.LogLevelDebug
		}
		var err error
		logger, err = logging.NewZapLogger(level, false)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runChat,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.yaml", "Configuration file (.yaml, .yml or .toml)")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "Environment files to load")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Minute, "Timeout for non-interactive commands")

	chatCmd.Flags().StringP("agent", "a", "", "Agent to start with")
	rootCmd.Flags().AddFlagSet(chatCmd.Flags())
	askCmd.Flags().StringP("agent", "a", "", "Agent to ask (default: current)")
	searchCmd.Flags().IntP("top-k", "k", 0, "Number of passages (default: rag.top_k)")
	searchCmd.Flags().Float64("threshold", -1, "Minimum similarity (default: rag.similarity_threshold)")
	evaluateCmd.Flags().StringP("agent", "a", "", "Agent to evaluate (default: current)")
	evaluateCmd.Flags().String("test-set", "", "Test set JSON file (default: evaluation.test_set_path)")
	evaluateCmd.Flags().StringP("output", "o", "", "Report file (default: evaluation.output_path/eval_<timestamp>.json)")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(clearIndexCmd)
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(verifyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// commandContext returns a context cancelled on SIGINT/SIGTERM and, when
// bounded is set, after the --timeout flag.
func commandContext(bounded bool) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	if !bounded || timeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

// loadConfig reads --config, falling back to defaults with environment
// overrides when the file does not exist.
func loadConfig() (config.Config, bool, error) {
	if _, err := os.Stat(configPath); errors.Is(err, fs.ErrNotExist) {
		cfg := config.Default()
		cfg.ApplyEnvOverrides()
		cfg.Normalize()
		return cfg, false, cfg.Validate()
	}
	cfg, err := config.Load(configPath)
	return cfg, true, err
}

// openMesh builds the façade from --config.
func openMesh(ctx context.Context) (*chatmesh.ChatMesh, error) {
	withLogger := func(o *chatmesh.Options) {
		o.Logger = logging.NewZapAdapter(logger)
	}

	if _, err := os.Stat(configPath); err == nil {
		return chatmesh.NewFromFile(ctx, configPath, withLogger)
	}

	logger.Warn("config file not found, using defaults", zap.String("path", configPath))
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return chatmesh.New(ctx, cfg, withLogger)
}
