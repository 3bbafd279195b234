package tool

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/chatmesh/core"
)

// DocumentSearchName is the registered name of the document search tool.
const DocumentSearchName = "document_search"

type documentSearchArgs struct {
	Query string `json:"query" description:"What to look for"`
}

// NewDocumentSearch returns a tool querying the knowledge base through retriever.
func NewDocumentSearch(retriever core.Retriever, topK int, threshold float64) *FunctionTool {
	return NewFunctionToolFromStruct(
		DocumentSearchName,
		"Search the internal knowledge base documents for information relevant to a query. "+
			"Use it for questions about uploaded or indexed documents.",
		documentSearchArgs{},
		func(ctx context.Context, args map[string]any) (string, error) {
			query := strings.TrimSpace(StringArg(args, "query"))
			if query == "" {
				return "", NewError(DocumentSearchName, "query must not be empty", CodeValidation)
			}
			results, err := retriever.Search(ctx, query, topK, threshold)
			if err != nil {
				return "", err
			}
			if len(results) == 0 {
				return "No relevant documents found.", nil
			}
			return FormatPassages(results), nil
		},
	)
}

// FormatPassages renders passages as a numbered list with their sources.
func FormatPassages(results []core.SearchResult) string {
	var sb strings.Builder
	for i, r := range results {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "[%d]", i+1)
		if src := r.Source(); src != "" {
			fmt.Fprintf(&sb, " (source: %s)", src)
		}
		sb.WriteString("\n")
		sb.WriteString(strings.TrimSpace(r.Content))
	}
	return sb.String()
}
