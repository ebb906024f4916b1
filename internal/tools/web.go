package tools

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/kalambet/fundscout/internal/agent"
	"github.com/kalambet/fundscout/internal/websearch"
)

const WebSearch = "web_search"

type webSearchArgs struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

// WebSearchTool exposes a live web search to enrichment agents.
func WebSearchTool(searcher websearch.Searcher) Tool {
	return Tool{
		Name:        WebSearch,
		Description: "Search the web. Returns result titles, URLs and snippets; use it to find a company's website, headquarters, size and founding year.",
		Parameters: agent.Object(map[string]*agent.Schema{
			"query":       agent.String("Search query."),
			"max_results": agent.WithDefault(agent.Between(agent.Integer("Maximum number of results."), 1, 10), 5),
		}, "query"),
		Handler: func(ctx context.Context, raw json.RawMessage) (any, error) {
			args, err := decodeArgs[webSearchArgs](WebSearch, raw)
			if err != nil {
				return nil, err
			}
			if strings.TrimSpace(args.Query) == "" {
				return nil, &agent.ToolInvocationError{Tool: WebSearch, Reason: "query must not be empty"}
			}
			results, err := searcher.Search(ctx, args.Query, args.MaxResults)
			if err != nil {
				return nil, err
			}
			return nonNil(results), nil
		},
	}
}
