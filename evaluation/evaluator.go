package evaluation

import (
	"context"
	"time"

	"github.com/hupe1980/chatmesh/config"
	"github.com/hupe1980/chatmesh/logging"
)

// Chatter is the chat surface under evaluation; *agent.Directory satisfies it.
type Chatter interface {
	Chat(ctx context.Context, message, name string) (string, error)
	CurrentName() string
}

// TestCase is one question of a test set.
type TestCase struct {
	Question         string   `json:"question"`
	ExpectedKeywords []string `json:"expected_keywords,omitempty"`
	Context          string   `json:"context,omitempty"`
}

// TestResult is the outcome of one test case.
type TestResult struct {
	Question string   `json:"question"`
	Response string   `json:"response,omitempty"`
	Metrics  *Metrics `json:"metrics,omitempty"`
	Passed   bool     `json:"passed"`
	Error    string   `json:"error,omitempty"`
}

// Summary aggregates a report.
type Summary struct {
	Passed   int     `json:"passed"`
	Failed   int     `json:"failed"`
	PassRate float64 `json:"pass_rate"`
}

// Report is the persisted evaluation result.
type Report struct {
	Timestamp time.Time    `json:"timestamp"`
	Agent     string       `json:"agent"`
	TestCount int          `json:"test_count"`
	Tests     []TestResult `json:"tests"`
	Summary   Summary      `json:"summary"`
}

// Options configures an Evaluator.
type Options struct {
	// PassThreshold is the minimum overall score of a passing test.
	PassThreshold float64
	Weights       Weights
	Logger        logging.Logger
	Now           func() time.Time
}

// Evaluator runs test sets against a Chatter.
type Evaluator struct {
	chat Chatter
	cfg  config.EvaluationConfig
	opts Options
}

// New creates an Evaluator. The pass threshold defaults to
// cfg.PassThreshold, or 0.5 when unset.
func New(chat Chatter, cfg config.EvaluationConfig, optFns ...func(o *Options)) *Evaluator {
	opts := Options{
		PassThreshold: cfg.PassThreshold,
		Weights:       DefaultWeights,
		Logger:        logging.NoOpLogger{},
		Now:           time.Now,
	}
	if opts.PassThreshold <= 0 {
		opts.PassThreshold = 0.5
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Evaluator{chat: chat, cfg: cfg, opts: opts}
}

// Evaluate scores a single answer.
func (e *Evaluator) Evaluate(tc TestCase, response string) TestResult {
	m := ScoreWeighted(tc.Question, response, tc.ExpectedKeywords, e.opts.Weights)
	return TestResult{
		Question: tc.Question,
		Response: response,
		Metrics:  &m,
		Passed:   m.OverallScore >= e.opts.PassThreshold,
	}
}

// Run asks every question of tests to the named agent (empty means the
// current one) in order. A chat error marks the test failed and does not
// stop the run; only context cancellation aborts it.
func (e *Evaluator) Run(ctx context.Context, tests []TestCase, agentName string) (*Report, error) {
	name := agentName
	if name == "" {
		name = e.chat.CurrentName()
	}

	report := &Report{
		Timestamp: e.opts.Now(),
		Agent:     name,
		TestCount: len(tests),
		Tests:     make([]TestResult, 0, len(tests)),
	}

	for i, tc := range tests {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		resp, err := e.chat.Chat(ctx, tc.Question, name)
		if err != nil {
			e.opts.Logger.Error("evaluation.test.error", "index", i, "error", err)
			report.Tests = append(report.Tests, TestResult{Question: tc.Question, Error: err.Error()})
			continue
		}
		res := e.Evaluate(tc, resp)
		e.opts.Logger.Debug("evaluation.test.complete", "index", i, "overall", res.Metrics.OverallScore, "passed", res.Passed)
		report.Tests = append(report.Tests, res)
	}

	for _, t := range report.Tests {
		if t.Passed {
			report.Summary.Passed++
		}
	}
	report.Summary.Failed = len(tests) - report.Summary.Passed
	if len(tests) > 0 {
		report.Summary.PassRate = float64(report.Summary.Passed) / float64(len(tests))
	}

	e.opts.Logger.Info("evaluation.complete",
		"agent", name,
		"passed", report.Summary.Passed,
		"failed", report.Summary.Failed,
	)
	return report, nil
}
