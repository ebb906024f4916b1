package tools

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/kalambet/fundscout/internal/agent"
	"github.com/kalambet/fundscout/internal/retrieval"
)

// Retrieval tool names.
const (
	RAGSemanticSearch    = "rag_semantic_search"
	RAGGenerateReasoning = "rag_generate_reasoning"
	RAGFullQuery         = "rag_full_query"
)

const (
	maxTopK              = 50
	maxDistanceThreshold = 2
)

// Retriever is the retrieval engine surface exposed to agents.
type Retriever interface {
	SemanticSearch(ctx context.Context, query string, topK int, threshold float64) (retrieval.SearchResults, error)
	Synthesize(ctx context.Context, query string, docs []string, metas []retrieval.Metadata, distances []float64) (string, error)
	FullQuery(ctx context.Context, query string, topK int) (retrieval.FullQueryResult, error)
	Defaults() (topK int, threshold float64)
}

type semanticSearchArgs struct {
	Query             string  `json:"query"`
	TopK              int     `json:"top_k"`
	DistanceThreshold float64 `json:"distance_threshold"`
}

type reasoningArgs struct {
	Query         string    `json:"query"`
	Documents     []string  `json:"documents"`
	MetadatasJSON string    `json:"metadatas_json"`
	Distances     []float64 `json:"distances"`
}

type fullQueryArgs struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

// RetrievalTools returns the three RAG tools backed by rag.
func RetrievalTools(rag Retriever) []Tool {
	topK, threshold := rag.Defaults()

	return []Tool{
		{
			Name:        RAGSemanticSearch,
			Description: "Search the funding knowledge base for company records semantically similar to the query. Returns parallel lists of documents, metadatas and distances (lower is closer).",
			Parameters: agent.Object(map[string]*agent.Schema{
				"query":              agent.String("Natural-language search query."),
				"top_k":              agent.WithDefault(agent.Between(agent.Integer("Maximum number of results."), 1, maxTopK), topK),
				"distance_threshold": agent.WithDefault(agent.Between(agent.Number("Maximum cosine distance of a result, 0 is identical."), 0, maxDistanceThreshold), threshold),
			}, "query"),
			Handler: func(ctx context.Context, raw json.RawMessage) (any, error) {
				args, err := decodeArgs[semanticSearchArgs](RAGSemanticSearch, raw)
				if err != nil {
					return nil, err
				}
				if strings.TrimSpace(args.Query) == "" {
					return nil, &agent.ToolInvocationError{Tool: RAGSemanticSearch, Reason: "query must not be empty"}
				}
				return rag.SemanticSearch(ctx, args.Query, args.TopK, args.DistanceThreshold)
			},
		},
		{
			Name:        RAGGenerateReasoning,
			Description: "Write a cited answer to the query from documents previously returned by rag_semantic_search. Pass the metadatas list encoded as a JSON string.",
			Parameters: agent.Object(map[string]*agent.Schema{
				"query":          agent.String("The question to answer."),
				"documents":      agent.Array("Document texts from the search.", agent.String("")),
				"metadatas_json": agent.String("JSON array of the metadata objects from the search."),
				"distances":      agent.Array("Distances from the search.", agent.Number("")),
			}, "query", "documents"),
			Handler: func(ctx context.Context, raw json.RawMessage) (any, error) {
				args, err := decodeArgs[reasoningArgs](RAGGenerateReasoning, raw)
				if err != nil {
					return nil, err
				}
				var metas []retrieval.Metadata
				if s := strings.TrimSpace(args.MetadatasJSON); s != "" {
					if err := json.Unmarshal([]byte(s), &metas); err != nil {
						return nil, &agent.ToolInvocationError{Tool: RAGGenerateReasoning, Reason: "metadatas_json is not a JSON array of metadata objects", Err: err}
					}
				}
				return rag.Synthesize(ctx, args.Query, args.Documents, metas, args.Distances)
			},
		},
		{
			Name:        RAGFullQuery,
			Description: "Search the funding knowledge base and synthesize a cited answer in one step.",
			Parameters: agent.Object(map[string]*agent.Schema{
				"query": agent.String("Natural-language question."),
				"top_k": agent.WithDefault(agent.Between(agent.Integer("Maximum number of documents to use."), 1, maxTopK), topK),
			}, "query"),
			Handler: func(ctx context.Context, raw json.RawMessage) (any, error) {
				args, err := decodeArgs[fullQueryArgs](RAGFullQuery, raw)
				if err != nil {
					return nil, err
				}
				if strings.TrimSpace(args.Query) == "" {
					return nil, &agent.ToolInvocationError{Tool: RAGFullQuery, Reason: "query must not be empty"}
				}
				return rag.FullQuery(ctx, args.Query, args.TopK)
			},
		},
	}
}
