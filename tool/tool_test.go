package tool

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/chatmesh/config"
	"github.com/hupe1980/chatmesh/core"
)

// -------------------- FunctionTool Tests --------------------

func echoTool(name string) *FunctionTool {
	return NewFunctionTool(name, "echo", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text": map[string]any{"type": "string"},
		},
		"required": []string{"text"},
	}, func(_ context.Context, args map[string]any) (string, error) {
		return name + ":" + StringArg(args, "text"), nil
	})
}

func TestFunctionTool_Call(t *testing.T) {
	tl := echoTool("echo")
	out, err := tl.Call(context.Background(), map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "echo:hi", out)
}

func TestFunctionTool_ValidationError(t *testing.T) {
	_, err := echoTool("echo").Call(context.Background(), map[string]any{})
	var tErr *Error
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, CodeValidation, tErr.Code)
	assert.Equal(t, "echo", tErr.Tool)
}

func TestFunctionTool_ExecutionErrorWrapped(t *testing.T) {
	tl := NewFunctionTool("fail", "always fails", map[string]any{"type": "object"}, func(context.Context, map[string]any) (string, error) {
		return "", errors.New("backend down")
	})
	_, err := tl.Call(context.Background(), nil)
	var tErr *Error
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, CodeExecution, tErr.Code)
	assert.Equal(t, "tool error [EXECUTION_ERROR] in fail: backend down", tErr.Error())
}

func TestFunctionToolFromStruct(t *testing.T) {
	type sumArgs struct {
		A float64 `json:"a"`
		B float64 `json:"b"`
	}
	tl := NewFunctionToolFromStruct("sum", "adds", sumArgs{}, func(_ context.Context, args map[string]any) (string, error) {
		return FormatNumber(args["a"].(float64) + args["b"].(float64)), nil
	})
	out, err := tl.Call(context.Background(), map[string]any{"a": 2.0, "b": 3.0})
	require.NoError(t, err)
	assert.Equal(t, "5", out)

	def := Definition(tl)
	assert.Equal(t, "function", def.Type)
	assert.Equal(t, "sum", def.Function.Name)
}

// -------------------- Registry Tests --------------------

func TestRegistry_LastWriteWins(t *testing.T) {
	first := echoTool("dup")
	second := NewFunctionTool("dup", "second", map[string]any{"type": "object"}, func(context.Context, map[string]any) (string, error) {
		return "second", nil
	})
	reg := NewRegistry(echoTool("a"), first, echoTool("b"))
	reg.Register(second)

	assert.Equal(t, []string{"a", "dup", "b"}, reg.Names(), "replacement keeps position")
	got, ok := reg.Get("dup")
	require.True(t, ok)
	assert.Equal(t, "second", got.Description())
	assert.Equal(t, 3, reg.Len())
	assert.Len(t, reg.Definitions(), 3)
}

func TestRegistry_UnregisterAndLookup(t *testing.T) {
	reg := NewRegistry(echoTool("a"), echoTool("b"))
	assert.True(t, reg.Unregister("a"))
	assert.False(t, reg.Unregister("a"))
	assert.Equal(t, []string{"b"}, reg.Names())

	_, err := reg.Lookup("a")
	assert.True(t, core.IsNotFound(err))
	assert.Nil(t, NewRegistry().Definitions())
}

func TestRegistry_Concurrent(t *testing.T) {
	reg := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reg.Register(echoTool("shared"))
			_ = reg.List()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, reg.Len())
}

// -------------------- Calculator Tests --------------------

func TestEvaluate(t *testing.T) {
	cases := map[string]float64{
		"1 + 2 * 3":      7,
		"(1 + 2) * 3":    9,
		"2 ^ 3 ^ 2":      512,
		"2 ** 3":         8,
		"-3 + 5":         2,
		"10 % 4":         2,
		"sqrt(16) + 1":   5,
		"abs(-2.5)":      2.5,
		"floor(2.7)":     2,
		"round(pi)":      3,
		"1.5e2":          150,
		"log(1000)":      3,
		"-(2 + 3) * 2":   -10,
		"ceil(1.2) * e ": 2 * 2.718281828459045,
	}
	for expr, want := range cases {
		got, err := Evaluate(expr)
		require.NoError(t, err, expr)
		assert.InDelta(t, want, got, 1e-9, expr)
	}
}

func TestEvaluate_Errors(t *testing.T) {
	for _, expr := range []string{"", "1 / 0", "2 +", "(1 + 2", "foo(1)", "x", "1 $ 2", "sqrt(-1)", "3 4"} {
		_, err := Evaluate(expr)
		assert.Error(t, err, expr)
	}
}

func TestCalculatorTool(t *testing.T) {
	calc := NewCalculator()
	out, err := calc.Call(context.Background(), map[string]any{"expression": "25 * 4"})
	require.NoError(t, err)
	assert.Equal(t, "100", out)

	out, err = calc.Call(context.Background(), map[string]any{"expression": "1 / 3"})
	require.NoError(t, err)
	assert.Equal(t, "0.333333333333", out)

	_, err = calc.Call(context.Background(), map[string]any{"expression": "1 / 0"})
	var tErr *Error
	require.ErrorAs(t, err, &tErr)
	assert.Contains(t, tErr.Message, "division by zero")
}

// -------------------- Web Search Tests --------------------

const ddgResponse = `{
  "Heading": "Go",
  "AbstractText": "Go is a statically typed, compiled programming language.",
  "AbstractURL": "https://en.wikipedia.org/wiki/Go_(programming_language)",
  "Answer": "",
  "RelatedTopics": [
    {"Text": "Go tooling", "FirstURL": "https://duckduckgo.com/Go_tooling"},
    {"Name": "Related", "Topics": [
      {"Text": "Gopher mascot", "FirstURL": "https://duckduckgo.com/Gopher"},
      {"Text": "Goroutines", "FirstURL": "https://duckduckgo.com/Goroutine"}
    ]}
  ]
}`

func TestWebSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "golang", r.URL.Query().Get("q"))
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(ddgResponse))
	}))
	defer srv.Close()

	ws := NewWebSearch(config.WebSearchConfig{Endpoint: srv.URL, MaxResults: 3}, srv.Client())
	out, err := ws.Call(context.Background(), map[string]any{"query": "golang"})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, `Web results for "golang":`))
	assert.Contains(t, out, "1. Go is a statically typed")
	assert.Contains(t, out, "3. Gopher mascot (https://duckduckgo.com/Gopher)")
	assert.NotContains(t, out, "Goroutines", "capped at max results")
}

func TestWebSearch_NoResultsAndErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") == "fail" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"RelatedTopics": []}`))
	}))
	defer srv.Close()

	ws := NewWebSearch(config.WebSearchConfig{Endpoint: srv.URL, Timeout: time.Second}, nil)

	out, err := ws.Call(context.Background(), map[string]any{"query": "nothing"})
	require.NoError(t, err)
	assert.Equal(t, `No web results found for "nothing".`, out)

	_, err = ws.Call(context.Background(), map[string]any{"query": "fail"})
	var tErr *Error
	require.ErrorAs(t, err, &tErr)
	assert.Contains(t, tErr.Message, "502")

	_, err = ws.Call(context.Background(), map[string]any{"query": "  "})
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, CodeValidation, tErr.Code)
}

// -------------------- Email Tests --------------------

type mockMailer struct{ mock.Mock }

func (m *mockMailer) Send(ctx context.Context, to []string, subject, body string) error {
	args := m.Called(ctx, to, subject, body)
	return args.Error(0)
}

func TestEmailTool(t *testing.T) {
	mailer := &mockMailer{}
	mailer.On("Send", mock.Anything, []string{"a@example.com", "b@example.com"}, "Hi", "Body").Return(nil).Once()

	out, err := NewEmail(mailer).Call(context.Background(), map[string]any{
		"to":      "Alice <a@example.com>, b@example.com",
		"subject": "Hi",
		"body":    "Body",
	})
	require.NoError(t, err)
	assert.Equal(t, "Email sent successfully to a@example.com, b@example.com.", out)
	mailer.AssertExpectations(t)
}

func TestEmailTool_Errors(t *testing.T) {
	mailer := &mockMailer{}
	mailer.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("relay denied"))
	tl := NewEmail(mailer)

	_, err := tl.Call(context.Background(), map[string]any{"to": "not an address", "subject": "s", "body": "b"})
	var tErr *Error
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, CodeValidation, tErr.Code)

	_, err = tl.Call(context.Background(), map[string]any{"to": "x@example.com", "subject": "s", "body": "b"})
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, CodeExecution, tErr.Code)
	assert.Contains(t, tErr.Message, "relay denied")
}

func TestBuildMessage(t *testing.T) {
	msg := string(BuildMessage("bot@example.com", []string{"a@example.com"}, "Multi\nline", "l1\nl2", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)))
	assert.Contains(t, msg, "Subject: Multi line\r\n")
	assert.Contains(t, msg, "Date: Tue, 02 Jan 2024 03:04:05 +0000\r\n")
	assert.True(t, strings.HasSuffix(msg, "\r\n\r\nl1\r\nl2"))
}

// -------------------- Document Search Tests --------------------

type fakeRetriever struct {
	results []core.SearchResult
	err     error
	gotK    int
	gotTh   float64
}

func (f *fakeRetriever) Search(_ context.Context, _ string, k int, threshold float64) ([]core.SearchResult, error) {
	f.gotK, f.gotTh = k, threshold
	return f.results, f.err
}

func TestDocumentSearch(t *testing.T) {
	r := &fakeRetriever{results: []core.SearchResult{
		{Content: "Refunds within 30 days.", Metadata: map[string]any{"source": "policy.md"}},
		{Content: " Shipping is free. "},
	}}
	out, err := NewDocumentSearch(r, 3, 0.5).Call(context.Background(), map[string]any{"query": "refund"})
	require.NoError(t, err)
	assert.Equal(t, "[1] (source: policy.md)\nRefunds within 30 days.\n\n[2]\nShipping is free.", out)
	assert.Equal(t, 3, r.gotK)
	assert.Equal(t, 0.5, r.gotTh)

	empty := &fakeRetriever{}
	out, err = NewDocumentSearch(empty, 3, 0.5).Call(context.Background(), map[string]any{"query": "x"})
	require.NoError(t, err)
	assert.Equal(t, "No relevant documents found.", out)
}

// -------------------- Build Tests --------------------

func TestBuild(t *testing.T) {
	reg := Build(Flags{Calculator: true, DocumentSearch: true, WebSearch: true, Email: true}, Dependencies{})
	assert.Equal(t, []string{CalculatorName, WebSearchName}, reg.Names(), "kinds without dependencies are skipped")

	reg = Build(Flags{Calculator: true, DocumentSearch: true, Email: true}, Dependencies{
		Retriever: &fakeRetriever{},
		Email:     config.EmailConfig{SMTPHost: "smtp.example.com"},
	})
	assert.Equal(t, []string{CalculatorName, DocumentSearchName, EmailName}, reg.Names())

	assert.Zero(t, Build(Flags{}, Dependencies{}).Len())
}

func TestNew_UnknownKind(t *testing.T) {
	_, err := New(Kind("teleport"), Dependencies{})
	assert.Error(t, err)

	_, err = New(KindDocumentSearch, Dependencies{})
	var missing *MissingDependencyError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, KindDocumentSearch, missing.Kind)
}

func TestFlagsFromConfig(t *testing.T) {
	a := config.AgentConfig{UseRAG: true, EnableWebSearch: true}
	assert.Equal(t, Flags{Calculator: true, DocumentSearch: true, WebSearch: true}, FlagsFromConfig(a))

	a.UseTools = config.Bool(false)
	assert.False(t, FlagsFromConfig(a).Any())

	a = config.AgentConfig{UseRAG: true, EnableRAGSearch: config.Bool(false), EnableCalculator: config.Bool(false)}
	assert.Equal(t, Flags{}, FlagsFromConfig(a))
}
