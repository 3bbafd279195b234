package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variables that override file values.
const (
	EnvLLMProvider  = "CHATMESH_LLM_PROVIDER"
	EnvLLMModel     = "CHATMESH_LLM_MODEL"
	EnvVectorDB     = "CHATMESH_VECTOR_DB"
	EnvRAGEnabled   = "CHATMESH_RAG_ENABLED"
	EnvDocumentPath = "CHATMESH_DOCUMENT_PATH"
	EnvLogLevel     = "CHATMESH_LOG_LEVEL"
)

// LoadEnv loads .env style files into the process environment. Variables
// already set win. Missing files are skipped.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return err
		}
	}
	return nil
}

// ApplyEnvOverrides replaces file values with CHATMESH_* environment variables.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv(EnvLLMProvider); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv(EnvLLMModel); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv(EnvVectorDB); v != "" {
		c.RAG.VectorDB = v
	}
	if v := os.Getenv(EnvRAGEnabled); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.RAG.Enabled = b
		}
	}
	if v := os.Getenv(EnvDocumentPath); v != "" {
		c.RAG.DocumentPath = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
}
