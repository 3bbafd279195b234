// Package config loads chatmesh configuration from YAML or TOML files, applies
// defaults and environment overrides, and validates the result.
//
// A configuration file mirrors the Config struct:
//
//	llm:
//	  provider: openai
//	  model: gpt-4o-mini
//	rag:
//	  enabled: true
//	  vector_db: sqlite
//	agents:
//	  default:
//	    name: Default Assistant
//	    system_prompt: You are a helpful AI assistant.
//	    use_rag: true
//
// Agents may also live in a separate file referenced by agents_file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/chatmesh/core"
)

// Config is the root configuration value. It is passed by value; components
// copy the sections they need at construction time.
type Config struct {
	LLM        LLMConfig              `yaml:"llm" toml:"llm"`
	RAG        RAGConfig              `yaml:"rag" toml:"rag"`
	Tools      ToolsConfig            `yaml:"tools" toml:"tools"`
	Email      EmailConfig            `yaml:"email" toml:"email"`
	Evaluation EvaluationConfig       `yaml:"evaluation" toml:"evaluation"`
	Logging    LoggingConfig          `yaml:"logging" toml:"logging"`
	Agents     map[string]AgentConfig `yaml:"agents" toml:"agents"`
	AgentsFile string                 `yaml:"agents_file" toml:"agents_file"`
}

// LLMConfig selects and tunes the language model provider.
type LLMConfig struct {
	Provider         string        `yaml:"provider" toml:"provider"`
	Model            string        `yaml:"model" toml:"model"`
	Temperature      float64       `yaml:"temperature" toml:"temperature"`
	MaxTokens        int           `yaml:"max_tokens" toml:"max_tokens"`
	TopP             float64       `yaml:"top_p" toml:"top_p"`
	FrequencyPenalty float64       `yaml:"frequency_penalty" toml:"frequency_penalty"`
	PresencePenalty  float64       `yaml:"presence_penalty" toml:"presence_penalty"`
	APIKeyEnv        string        `yaml:"api_key_env" toml:"api_key_env"`
	BaseURL          string        `yaml:"base_url" toml:"base_url"`
	Timeout          time.Duration `yaml:"timeout" toml:"timeout"`
	Azure            AzureConfig   `yaml:"azure" toml:"azure"`
}

// AzureConfig holds Azure OpenAI deployment settings.
type AzureConfig struct {
	Endpoint   string `yaml:"endpoint" toml:"endpoint"`
	APIVersion string `yaml:"api_version" toml:"api_version"`
	Deployment string `yaml:"deployment_name" toml:"deployment_name"`
}

// APIKey resolves the provider key from the configured environment variable.
func (c LLMConfig) APIKey() string {
	env := c.APIKeyEnv
	if env == "" {
		env = DefaultAPIKeyEnv(c.Provider)
	}
	if env == "" {
		return ""
	}
	return os.Getenv(env)
}

// DefaultAPIKeyEnv returns the conventional key variable for a provider.
func DefaultAPIKeyEnv(provider string) string {
	switch strings.ToLower(provider) {
	case "openai":
		return "OPENAI_API_KEY"
	case "azure_openai", "azure":
		return "AZURE_OPENAI_API_KEY"
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	case "gemini", "google":
		return "GEMINI_API_KEY"
	default:
		return ""
	}
}

// LLMOverride holds per-agent model settings. Unset fields inherit the global llm section.
type LLMOverride struct {
	Provider    string   `yaml:"provider" toml:"provider"`
	Model       string   `yaml:"model" toml:"model"`
	Temperature *float64 `yaml:"temperature" toml:"temperature"`
	MaxTokens   *int     `yaml:"max_tokens" toml:"max_tokens"`
	TopP        *float64 `yaml:"top_p" toml:"top_p"`
	APIKeyEnv   string   `yaml:"api_key_env" toml:"api_key_env"`
	BaseURL     string   `yaml:"base_url" toml:"base_url"`
}

// Apply returns base with the override's set fields replacing it.
func (o *LLMOverride) Apply(base LLMConfig) LLMConfig {
	if o == nil {
		return base
	}
	if o.Provider != "" && !strings.EqualFold(o.Provider, base.Provider) {
		base.Provider = o.Provider
		// A different provider must not inherit the base provider's key or model.
		base.APIKeyEnv = ""
		base.Model = ""
		base.BaseURL = ""
	}
	if o.Model != "" {
		base.Model = o.Model
	}
	if o.Temperature != nil {
		base.Temperature = *o.Temperature
	}
	if o.MaxTokens != nil {
		base.MaxTokens = *o.MaxTokens
	}
	if o.TopP != nil {
		base.TopP = *o.TopP
	}
	if o.APIKeyEnv != "" {
		base.APIKeyEnv = o.APIKeyEnv
	}
	if o.BaseURL != "" {
		base.BaseURL = o.BaseURL
	}
	return base
}

// AgentConfig describes one agent identity.
type AgentConfig struct {
	Name             string       `yaml:"name" toml:"name"`
	Description      string       `yaml:"description" toml:"description"`
	SystemPrompt     string       `yaml:"system_prompt" toml:"system_prompt"`
	UseRAG           bool         `yaml:"use_rag" toml:"use_rag"`
	MaxHistory       int          `yaml:"max_history" toml:"max_history"`
	UseTools         *bool        `yaml:"use_tools" toml:"use_tools"`
	EnableCalculator *bool        `yaml:"enable_calculator" toml:"enable_calculator"`
	EnableRAGSearch  *bool        `yaml:"enable_rag_search" toml:"enable_rag_search"`
	EnableWebSearch  bool         `yaml:"enable_web_search" toml:"enable_web_search"`
	EnableEmail      bool         `yaml:"enable_email" toml:"enable_email"`
	LLMOverride      *LLMOverride `yaml:"llm_override" toml:"llm_override"`
}

// DefaultMaxHistory is used when an agent leaves max_history unset.
const DefaultMaxHistory = 10

// DefaultAgentID is the identity preferred as the current agent.
const DefaultAgentID = "default"

// DefaultAgent is synthesized when no agents are configured.
func DefaultAgent() AgentConfig {
	return AgentConfig{
		Name:         "Default Assistant",
		Description:  "A helpful AI assistant",
		SystemPrompt: "You are a helpful AI assistant.",
		UseRAG:       true,
		MaxHistory:   DefaultMaxHistory,
	}
}

// ToolsEnabled reports whether the agent uses tools at all (default true).
func (a AgentConfig) ToolsEnabled() bool { return boolOr(a.UseTools, true) }

// CalculatorEnabled reports whether the calculator tool is requested (default true).
func (a AgentConfig) CalculatorEnabled() bool { return boolOr(a.EnableCalculator, true) }

// RAGSearchEnabled reports whether the document search tool is requested.
// It defaults to use_rag.
func (a AgentConfig) RAGSearchEnabled() bool { return a.UseRAG && boolOr(a.EnableRAGSearch, true) }

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// Bool returns a pointer to b, for building AgentConfig literals.
func Bool(b bool) *bool { return &b }

// RAGConfig configures retrieval: loading, splitting, embedding and storage.
type RAGConfig struct {
	Enabled             bool             `yaml:"enabled" toml:"enabled"`
	VectorDB            string           `yaml:"vector_db" toml:"vector_db"`
	TopK                int              `yaml:"top_k" toml:"top_k"`
	SimilarityThreshold float64          `yaml:"similarity_threshold" toml:"similarity_threshold"`
	ChunkSize           int              `yaml:"chunk_size" toml:"chunk_size"`
	ChunkOverlap        int              `yaml:"chunk_overlap" toml:"chunk_overlap"`
	DocumentPath        string           `yaml:"document_path" toml:"document_path"`
	SupportedFormats    []string         `yaml:"supported_formats" toml:"supported_formats"`
	BatchSize           int              `yaml:"batch_size" toml:"batch_size"`
	Concurrency         int              `yaml:"concurrency" toml:"concurrency"`
	Embeddings          EmbeddingsConfig `yaml:"embeddings" toml:"embeddings"`
	Memory              MemoryConfig     `yaml:"memory" toml:"memory"`
	SQLite              SQLiteConfig     `yaml:"sqlite" toml:"sqlite"`
	Postgres            PostgresConfig   `yaml:"postgres" toml:"postgres"`
	MongoDB             MongoDBConfig    `yaml:"mongodb" toml:"mongodb"`
	Qdrant              QdrantConfig     `yaml:"qdrant" toml:"qdrant"`
	Neo4j               Neo4jConfig      `yaml:"neo4j" toml:"neo4j"`
}

// EmbeddingsConfig selects the embedding provider.
type EmbeddingsConfig struct {
	Provider   string `yaml:"provider" toml:"provider"`
	Model      string `yaml:"model" toml:"model"`
	APIKeyEnv  string `yaml:"api_key_env" toml:"api_key_env"`
	BaseURL    string `yaml:"base_url" toml:"base_url"`
	Dimensions int    `yaml:"dimensions" toml:"dimensions"`
	CacheDir   string `yaml:"cache_dir" toml:"cache_dir"`
}

// APIKey resolves the embedding provider key.
func (c EmbeddingsConfig) APIKey() string {
	env := c.APIKeyEnv
	if env == "" {
		env = DefaultAPIKeyEnv(c.Provider)
	}
	if env == "" {
		return ""
	}
	return os.Getenv(env)
}

// MemoryConfig configures the in-process store. An empty IndexPath disables persistence.
type MemoryConfig struct {
	IndexPath string `yaml:"index_path" toml:"index_path"`
}

// SQLiteConfig configures the SQLite store.
type SQLiteConfig struct {
	Path  string `yaml:"path" toml:"path"`
	Table string `yaml:"table" toml:"table"`
}

// PostgresConfig configures the pgvector store.
type PostgresConfig struct {
	DSN        string `yaml:"dsn" toml:"dsn"`
	DSNEnv     string `yaml:"dsn_env" toml:"dsn_env"`
	Table      string `yaml:"table" toml:"table"`
	Dimensions int    `yaml:"dimensions" toml:"dimensions"`
}

// ResolvedDSN prefers the literal DSN, then the DSN environment variable.
func (c PostgresConfig) ResolvedDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	if c.DSNEnv != "" {
		return os.Getenv(c.DSNEnv)
	}
	return ""
}

// MongoDBConfig configures the MongoDB Atlas vector search store.
type MongoDBConfig struct {
	URI        string `yaml:"uri" toml:"uri"`
	URIEnv     string `yaml:"uri_env" toml:"uri_env"`
	Database   string `yaml:"database" toml:"database"`
	Collection string `yaml:"collection" toml:"collection"`
	Index      string `yaml:"index" toml:"index"`
}

// ResolvedURI prefers the literal URI, then the URI environment variable.
func (c MongoDBConfig) ResolvedURI() string {
	if c.URI != "" {
		return c.URI
	}
	if c.URIEnv != "" {
		return os.Getenv(c.URIEnv)
	}
	return ""
}

// QdrantConfig configures the Qdrant store.
type QdrantConfig struct {
	URL        string `yaml:"url" toml:"url"`
	Collection string `yaml:"collection" toml:"collection"`
	APIKeyEnv  string `yaml:"api_key_env" toml:"api_key_env"`
}

// Neo4jConfig configures the Neo4j vector index store.
type Neo4jConfig struct {
	URI         string `yaml:"uri" toml:"uri"`
	Username    string `yaml:"username" toml:"username"`
	PasswordEnv string `yaml:"password_env" toml:"password_env"`
	Database    string `yaml:"database" toml:"database"`
	Index       string `yaml:"index" toml:"index"`
	Label       string `yaml:"label" toml:"label"`
}

// ToolsConfig holds settings for tools that need them.
type ToolsConfig struct {
	WebSearch WebSearchConfig `yaml:"web_search" toml:"web_search"`
}

// WebSearchConfig configures the web search tool.
type WebSearchConfig struct {
	Endpoint   string        `yaml:"endpoint" toml:"endpoint"`
	MaxResults int           `yaml:"max_results" toml:"max_results"`
	Timeout    time.Duration `yaml:"timeout" toml:"timeout"`
}

// EmailConfig configures the SMTP transport used by the email tool.
type EmailConfig struct {
	SMTPHost    string `yaml:"smtp_host" toml:"smtp_host"`
	SMTPPort    int    `yaml:"smtp_port" toml:"smtp_port"`
	Username    string `yaml:"username" toml:"username"`
	PasswordEnv string `yaml:"password_env" toml:"password_env"`
	From        string `yaml:"from" toml:"from"`
}

// Configured reports whether an SMTP host is set.
func (c EmailConfig) Configured() bool { return c.SMTPHost != "" }

// Password resolves the SMTP password from the environment.
func (c EmailConfig) Password() string {
	if c.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(c.PasswordEnv)
}

// EvaluationConfig configures evaluation runs.
type EvaluationConfig struct {
	TestSetPath   string  `yaml:"test_set_path" toml:"test_set_path"`
	OutputPath    string  `yaml:"output_path" toml:"output_path"`
	PassThreshold float64 `yaml:"pass_threshold" toml:"pass_threshold"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Default returns a configuration with every default applied and no agents.
func Default() Config {
	return Config{
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			Temperature: 0.7,
			MaxTokens:   2000,
			Timeout:     60 * time.Second,
			Azure:       AzureConfig{APIVersion: "2024-06-01"},
		},
		RAG: RAGConfig{
			Enabled:             true,
			VectorDB:            "memory",
			TopK:                5,
			SimilarityThreshold: 0.7,
			ChunkSize:           1000,
			ChunkOverlap:        200,
			DocumentPath:        "./data/documents",
			SupportedFormats:    []string{".txt", ".pdf", ".docx", ".md"},
			BatchSize:           32,
			Concurrency:         4,
			Embeddings:          EmbeddingsConfig{Provider: "openai"},
			SQLite:              SQLiteConfig{Path: "./data/vectordb/chatmesh.db", Table: "chunks"},
			Postgres:            PostgresConfig{DSNEnv: "DATABASE_URL", Table: "chunks"},
			MongoDB:             MongoDBConfig{URIEnv: "MONGODB_URI", Database: "chatmesh", Collection: "chunks", Index: "vector_index"},
			Qdrant:              QdrantConfig{URL: "http://localhost:6333", Collection: "chatmesh"},
			Neo4j:               Neo4jConfig{URI: "neo4j://localhost:7687", Username: "neo4j", PasswordEnv: "NEO4J_PASSWORD", Database: "neo4j", Index: "chunk_embeddings", Label: "Chunk"},
		},
		Tools: ToolsConfig{
			WebSearch: WebSearchConfig{Endpoint: "https://api.duckduckgo.com/", MaxResults: 5, Timeout: 10 * time.Second},
		},
		Email: EmailConfig{SMTPPort: 587, PasswordEnv: "EMAIL_PASSWORD"},
		Evaluation: EvaluationConfig{
			TestSetPath:   "./data/evaluation/test_set.json",
			OutputPath:    "./data/evaluation/results",
			PassThreshold: 0.5,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// Load reads a YAML (.yaml/.yml) or TOML (.toml) file over the defaults,
// merges the optional agents file, applies environment overrides and validates.
func Load(path string) (Config, error) {
	cfg := Default()
	if err := decodeFile(path, &cfg); err != nil {
		return Config{}, err
	}
	if cfg.AgentsFile != "" {
		agentsPath := cfg.AgentsFile
		if !filepath.IsAbs(agentsPath) {
			agentsPath = filepath.Join(filepath.Dir(path), agentsPath)
		}
		var extra struct {
			Agents map[string]AgentConfig `yaml:"agents" toml:"agents"`
		}
		if err := decodeFile(agentsPath, &extra); err != nil {
			return Config{}, err
		}
		if cfg.Agents == nil {
			cfg.Agents = make(map[string]AgentConfig, len(extra.Agents))
		}
		for id, a := range extra.Agents {
			cfg.Agents[id] = a
		}
	}
	cfg.ApplyEnvOverrides()
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes YAML bytes over the defaults without touching the filesystem.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, &core.ConfigurationError{Reason: "parse yaml", Err: err}
	}
	cfg.ApplyEnvOverrides()
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &core.ConfigurationError{Reason: "read " + path, Err: err}
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), v); err != nil {
			return &core.ConfigurationError{Reason: "parse toml " + path, Err: err}
		}
	default:
		if err := yaml.Unmarshal(data, v); err != nil {
			return &core.ConfigurationError{Reason: "parse yaml " + path, Err: err}
		}
	}
	return nil
}

// Normalize fills per-agent defaults (name, max_history).
func (c *Config) Normalize() {
	for id, a := range c.Agents {
		if a.Name == "" {
			a.Name = id
		}
		if a.MaxHistory == 0 {
			a.MaxHistory = DefaultMaxHistory
		}
		c.Agents[id] = a
	}
}

// Validate checks value ranges and returns a ConfigurationError on the first violation.
func (c Config) Validate() error {
	switch {
	case c.LLM.Temperature < 0 || c.LLM.Temperature > 2:
		return core.NewConfigurationError("llm.temperature must be within [0, 2], got %v", c.LLM.Temperature)
	case c.LLM.MaxTokens < 0:
		return core.NewConfigurationError("llm.max_tokens must not be negative")
	case c.RAG.TopK <= 0:
		return core.NewConfigurationError("rag.top_k must be positive")
	case c.RAG.SimilarityThreshold < -1 || c.RAG.SimilarityThreshold > 1:
		return core.NewConfigurationError("rag.similarity_threshold must be within [-1, 1]")
	case c.RAG.ChunkSize <= 0:
		return core.NewConfigurationError("rag.chunk_size must be positive")
	case c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize:
		return core.NewConfigurationError("rag.chunk_overlap must be within [0, chunk_size)")
	}
	for id, a := range c.Agents {
		if a.MaxHistory < 0 {
			return core.NewConfigurationError("agents.%s.max_history must not be negative", id)
		}
	}
	return nil
}

// AgentIDs returns the configured agent identities in lexical order.
func (c Config) AgentIDs() []string {
	ids := make([]string, 0, len(c.Agents))
	for id := range c.Agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// LLMFor returns the model settings for an agent with its override applied.
func (c Config) LLMFor(agentID string) LLMConfig {
	a, ok := c.Agents[agentID]
	if !ok {
		return c.LLM
	}
	return a.LLMOverride.Apply(c.LLM)
}

// String renders a short human summary used by the CLI.
func (c Config) String() string {
	return fmt.Sprintf("llm=%s/%s rag=%t(%s) agents=%d", c.LLM.Provider, c.LLM.Model, c.RAG.Enabled, c.RAG.VectorDB, len(c.Agents))
}
