package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/chatmesh/config"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check configuration, credentials and directories",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if failed := verify(cmd.OutOrStdout()); failed > 0 {
			return fmt.Errorf("%d check(s) failed", failed)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "all checks passed")
		return nil
	},
}

// verify prints one line per check and returns the number of failures.
func verify(out io.Writer) int {
	failed := 0
	check := func(ok bool, format string, args ...any) {
		status := "ok  "
		if !ok {
			status = "FAIL"
			failed++
		}
		fmt.Fprintf(out, "[%s] %s\n", status, fmt.Sprintf(format, args...))
	}

	cfg, found, err := loadConfig()
	if err != nil {
		check(false, "configuration %s: %v", configPath, err)
		return failed
	}
	if found {
		check(true, "configuration %s (%s)", configPath, cfg)
	} else {
		fmt.Fprintf(out, "[warn] configuration %s not found, using defaults\n", configPath)
	}

	check(keyPresent(cfg.LLM.Provider, cfg.LLM.APIKeyEnv), "llm provider %s credentials", cfg.LLM.Provider)

	if cfg.RAG.Enabled {
		check(keyPresent(cfg.RAG.Embeddings.Provider, cfg.RAG.Embeddings.APIKeyEnv),
			"embeddings provider %s credentials", cfg.RAG.Embeddings.Provider)

		_, err := os.Stat(cfg.RAG.DocumentPath)
		check(err == nil, "document path %s", cfg.RAG.DocumentPath)
	}

	err = os.MkdirAll(cfg.Evaluation.OutputPath, 0o755)
	check(err == nil, "evaluation output %s", cfg.Evaluation.OutputPath)

	return failed
}

// keyPresent reports whether the key variable of a provider is set. Providers
// without a conventional variable (ollama, mock) pass.
func keyPresent(provider, env string) bool {
	if env == "" {
		env = config.DefaultAPIKeyEnv(provider)
	}
	if provider == "" && env == "" {
		env = config.DefaultAPIKeyEnv("openai")
	}
	if env == "" {
		return true
	}
	return os.Getenv(env) != ""
}

