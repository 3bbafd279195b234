package tool

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/hupe1980/chatmesh/config"
	"github.com/hupe1980/chatmesh/internal/util"
)

// WebSearchName is the registered name of the web search tool.
const WebSearchName = "web_search"

// WebSearch queries the DuckDuckGo Instant Answer API.
type WebSearch struct {
	endpoint   string
	maxResults int
	client     *http.Client
}

// NewWebSearch creates the web search tool. A nil client uses one with the configured timeout.
func NewWebSearch(cfg config.WebSearchConfig, client *http.Client) *WebSearch {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.duckduckgo.com/"
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 5
	}
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &WebSearch{endpoint: cfg.Endpoint, maxResults: cfg.MaxResults, client: client}
}

// Name implements Tool.
func (w *WebSearch) Name() string { return WebSearchName }

// Description implements Tool.
func (w *WebSearch) Description() string {
	return "Search the web for current information, facts and definitions. Input is a search query."
}

// Parameters implements Tool.
func (w *WebSearch) Parameters() map[string]any {
	return util.CreateSchema(webSearchArgs{})
}

type webSearchArgs struct {
	Query string `json:"query" description:"The search query"`
}

// Call implements Tool.
func (w *WebSearch) Call(ctx context.Context, args map[string]any) (string, error) {
	query := strings.TrimSpace(StringArg(args, "query"))
	if query == "" {
		return "", NewError(WebSearchName, "query must not be empty", CodeValidation)
	}
	logger := LoggerFromContext(ctx)
	start := time.Now()

	body, err := w.fetch(ctx, query)
	if err != nil {
		logger.Error("tool.web_search.error", "query", query, "error", err)
		return "", NewError(WebSearchName, err.Error(), CodeExecution)
	}
	logger.Debug("tool.web_search.success", "query", query, "duration", time.Since(start))
	return w.format(query, body), nil
}

func (w *WebSearch) fetch(ctx context.Context, query string) ([]byte, error) {
	u, err := url.Parse(w.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("no_html", "1")
	q.Set("skip_disambig", "1")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "chatmesh")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("search returned invalid JSON")
	}
	return body, nil
}

type webResult struct {
	text string
	url  string
}

func (w *WebSearch) format(query string, body []byte) string {
	var results []webResult
	if answer := gjson.GetBytes(body, "Answer").String(); answer != "" {
		results = append(results, webResult{text: answer})
	}
	if abstract := gjson.GetBytes(body, "AbstractText").String(); abstract != "" {
		results = append(results, webResult{text: abstract, url: gjson.GetBytes(body, "AbstractURL").String()})
	}
	if def := gjson.GetBytes(body, "Definition").String(); def != "" {
		results = append(results, webResult{text: def, url: gjson.GetBytes(body, "DefinitionURL").String()})
	}

	var collect func(topics gjson.Result)
	collect = func(topics gjson.Result) {
		topics.ForEach(func(_, topic gjson.Result) bool {
			if len(results) >= w.maxResults {
				return false
			}
			if nested := topic.Get("Topics"); nested.Exists() {
				collect(nested)
				return true
			}
			if text := topic.Get("Text").String(); text != "" {
				results = append(results, webResult{text: text, url: topic.Get("FirstURL").String()})
			}
			return true
		})
	}
	collect(gjson.GetBytes(body, "RelatedTopics"))

	if len(results) == 0 {
		return fmt.Sprintf("No web results found for %q.", query)
	}
	if len(results) > w.maxResults {
		results = results[:w.maxResults]
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Web results for %q:\n", query)
	for i, r := range results {
		fmt.Fprintf(&sb, "%d. %s", i+1, r.text)
		if r.url != "" {
			fmt.Fprintf(&sb, " (%s)", r.url)
		}
		sb.WriteByte('\n')
	}
	return strings.TrimRight(sb.String(), "\n")
}
