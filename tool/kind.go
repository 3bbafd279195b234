package tool

import (
	"fmt"
	"net/http"

	"github.com/hupe1980/chatmesh/config"
	"github.com/hupe1980/chatmesh/core"
	"github.com/hupe1980/chatmesh/logging"
)

// Kind enumerates the built-in tool variants.
type Kind string

const (
	KindCalculator     Kind = "calculator"
	KindDocumentSearch Kind = "document_search"
	KindWebSearch      Kind = "web_search"
	KindEmail          Kind = "email"
)

// Kinds lists every built-in kind in catalog order.
var Kinds = []Kind{KindCalculator, KindDocumentSearch, KindWebSearch, KindEmail}

// Flags selects which built-in tools an agent exposes.
type Flags struct {
	Calculator     bool
	DocumentSearch bool
	WebSearch      bool
	Email          bool
}

// FlagsFromConfig derives tool flags from an agent configuration.
func FlagsFromConfig(a config.AgentConfig) Flags {
	if !a.ToolsEnabled() {
		return Flags{}
	}
	return Flags{
		Calculator:     a.CalculatorEnabled(),
		DocumentSearch: a.RAGSearchEnabled(),
		WebSearch:      a.EnableWebSearch,
		Email:          a.EnableEmail,
	}
}

// Enabled reports whether kind is selected.
func (f Flags) Enabled(kind Kind) bool {
	switch kind {
	case KindCalculator:
		return f.Calculator
	case KindDocumentSearch:
		return f.DocumentSearch
	case KindWebSearch:
		return f.WebSearch
	case KindEmail:
		return f.Email
	default:
		return false
	}
}

// Any reports whether at least one tool is selected.
func (f Flags) Any() bool {
	return f.Calculator || f.DocumentSearch || f.WebSearch || f.Email
}

// Dependencies carries the capability handles built-in tools need.
type Dependencies struct {
	Retriever       core.Retriever
	SearchTopK      int
	SearchThreshold float64
	WebSearch       config.WebSearchConfig
	HTTPClient      *http.Client
	Email           config.EmailConfig
	Mailer          Mailer // overrides the SMTP mailer built from Email
	Logger          logging.Logger
}

// MissingDependencyError is returned by New when a kind cannot be built.
type MissingDependencyError struct {
	Kind       Kind
	Dependency string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("tool %s requires %s", e.Kind, e.Dependency)
}

// New constructs the tool for kind.
func New(kind Kind, deps Dependencies) (Tool, error) {
	switch kind {
	case KindCalculator:
		return NewCalculator(), nil
	case KindDocumentSearch:
		if deps.Retriever == nil {
			return nil, &MissingDependencyError{Kind: kind, Dependency: "a retriever"}
		}
		return NewDocumentSearch(deps.Retriever, deps.SearchTopK, deps.SearchThreshold), nil
	case KindWebSearch:
		return NewWebSearch(deps.WebSearch, deps.HTTPClient), nil
	case KindEmail:
		mailer := deps.Mailer
		if mailer == nil {
			if !deps.Email.Configured() {
				return nil, &MissingDependencyError{Kind: kind, Dependency: "email.smtp_host"}
			}
			mailer = NewSMTPMailer(deps.Email)
		}
		return NewEmail(mailer), nil
	default:
		return nil, fmt.Errorf("unknown tool kind %q", kind)
	}
}

// Build creates a fresh registry holding the selected tools. Kinds whose
// dependencies are missing are skipped with a warning.
func Build(flags Flags, deps Dependencies) *Registry {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	reg := NewRegistry()
	for _, kind := range Kinds {
		if !flags.Enabled(kind) {
			continue
		}
		t, err := New(kind, deps)
		if err != nil {
			logger.Warn("tool.build.skipped", "kind", string(kind), "error", err)
			continue
		}
		reg.Register(t)
	}
	return reg
}
