// Package provider builds model.Model instances from configuration.
package provider

import (
	"context"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go/option"

	"github.com/hupe1980/chatmesh/config"
	"github.com/hupe1980/chatmesh/core"
	"github.com/hupe1980/chatmesh/model"
	"github.com/hupe1980/chatmesh/model/anthropic"
	"github.com/hupe1980/chatmesh/model/gemini"
	"github.com/hupe1980/chatmesh/model/ollama"
	"github.com/hupe1980/chatmesh/model/openai"
)

// Provider identifiers accepted in llm.provider.
const (
	OpenAI      = "openai"
	AzureOpenAI = "azure_openai"
	Anthropic   = "anthropic"
	Ollama      = "ollama"
	Gemini      = "gemini"
	Mock        = "mock"
)

// New returns the model described by cfg. Unknown providers and missing
// credentials are reported as *core.ConfigurationError.
func New(ctx context.Context, cfg config.LLMConfig) (model.Model, error) {
	switch p := strings.ToLower(strings.TrimSpace(cfg.Provider)); p {
	case OpenAI, "":
		key, err := requireKey(cfg, OpenAI)
		if err != nil {
			return nil, err
		}
		clientOpts := []option.RequestOption{option.WithAPIKey(key)}
		if cfg.BaseURL != "" {
			clientOpts = append(clientOpts, option.WithBaseURL(cfg.BaseURL))
		}
		return openai.NewModel(clientOpts, openAIOptions(cfg)), nil

	case AzureOpenAI, "azure":
		key, err := requireKey(cfg, AzureOpenAI)
		if err != nil {
			return nil, err
		}
		endpoint := cfg.Azure.Endpoint
		if endpoint == "" {
			endpoint = cfg.BaseURL
		}
		if endpoint == "" {
			return nil, core.NewConfigurationError("azure_openai requires llm.azure.endpoint")
		}
		deployment := cfg.Azure.Deployment
		if deployment == "" {
			deployment = cfg.Model
		}
		if deployment == "" {
			return nil, core.NewConfigurationError("azure_openai requires llm.azure.deployment_name")
		}
		return openai.NewAzureModel(endpoint, cfg.Azure.APIVersion, key, deployment, openAIOptions(cfg), func(o *openai.Options) {
			o.Model = deployment
		}), nil

	case Anthropic:
		key, err := requireKey(cfg, Anthropic)
		if err != nil {
			return nil, err
		}
		return anthropic.NewModel(func(o *anthropic.Options) {
			if cfg.Model != "" {
				o.Model = sdk.Model(cfg.Model)
			}
			o.APIKey = key
			o.BaseURL = cfg.BaseURL
			o.Temperature = cfg.Temperature
			o.TopP = optional(cfg.TopP)
			if cfg.MaxTokens > 0 {
				o.MaxTokens = int64(cfg.MaxTokens)
			}
			o.Timeout = cfg.Timeout
		}), nil

	case Ollama:
		m, err := ollama.NewModel(func(o *ollama.Options) {
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
			o.BaseURL = cfg.BaseURL
			o.Temperature = cfg.Temperature
			o.TopP = optional(cfg.TopP)
			o.MaxTokens = cfg.MaxTokens
			o.Timeout = cfg.Timeout
		})
		if err != nil {
			return nil, &core.ConfigurationError{Reason: "invalid ollama base_url", Err: err}
		}
		return m, nil

	case Gemini, "google":
		key, err := requireKey(cfg, Gemini)
		if err != nil {
			return nil, err
		}
		m, err := gemini.NewModel(ctx, key, func(o *gemini.Options) {
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
			o.Temperature = cfg.Temperature
			o.TopP = optional(cfg.TopP)
			o.MaxTokens = cfg.MaxTokens
			o.Timeout = cfg.Timeout
		})
		if err != nil {
			return nil, &core.ConfigurationError{Reason: "gemini client", Err: err}
		}
		return m, nil

	case Mock:
		return model.NewEchoModel(cfg.Model), nil

	default:
		return nil, core.NewConfigurationError("unsupported LLM provider: %s", p)
	}
}

func requireKey(cfg config.LLMConfig, provider string) (string, error) {
	if key := cfg.APIKey(); key != "" {
		return key, nil
	}
	env := cfg.APIKeyEnv
	if env == "" {
		env = config.DefaultAPIKeyEnv(provider)
	}
	return "", core.NewConfigurationError("%s API key not found; set %s", provider, env)
}

func openAIOptions(cfg config.LLMConfig) func(o *openai.Options) {
	return func(o *openai.Options) {
		if cfg.Model != "" {
			o.Model = cfg.Model
		}
		o.Temperature = cfg.Temperature
		o.MaxCompletionTokens = int64(cfg.MaxTokens)
		o.TopP = optional(cfg.TopP)
		o.FrequencyPenalty = optional(cfg.FrequencyPenalty)
		o.PresencePenalty = optional(cfg.PresencePenalty)
		o.Timeout = cfg.Timeout
	}
}

// optional treats zero as "not configured".
func optional(v float64) *float64 {
	if v == 0 {
		return nil
	}
	return &v
}
