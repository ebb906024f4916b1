package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/kalambet/fundscout/internal/agent"
	"github.com/kalambet/fundscout/internal/llm"
	"github.com/kalambet/fundscout/internal/metrics"
	"github.com/kalambet/fundscout/internal/trace"
)

const defaultEnrichmentTimeout = 45 * time.Second

// ResearchSummary is the research pipeline result.
type ResearchSummary struct {
	Companies []CompanyProfile `json:"companies"`
}

// CompanyProfile merges knowledge-base fields with live enrichment. Details
// is nil when Enriched is false.
type CompanyProfile struct {
	CompanyName    string          `json:"company_name"`
	Description    string          `json:"description"`
	Industry       string          `json:"industry,omitempty"`
	RelevanceScore *float64        `json:"relevance_score,omitempty"`
	Enriched       bool            `json:"enriched"`
	Details        *CompanyDetails `json:"details,omitempty"`
}

// CompanyDetails are the attributes the enrichment agent looks up.
type CompanyDetails struct {
	Website              string `json:"website"`
	CompanySize          string `json:"company_size"`
	HeadquartersLocation string `json:"headquarters_location"`
	FoundedYear          int    `json:"founded_year"`
	Industry             string `json:"industry"`
	Description          string `json:"description"`
}

type kbOutput struct {
	Companies []struct {
		CompanyName    string   `json:"company_name"`
		Description    string   `json:"description"`
		Industry       string   `json:"industry"`
		RelevanceScore *float64 `json:"relevance_score"`
	} `json:"companies"`
}

// Research chains the knowledge-base research agent with per-company
// enrichment.
type Research struct {
	runner            AgentRunner
	enrichmentTimeout time.Duration
	kbSpec            agent.Spec
	enrichSpec        agent.Spec
}

func NewResearch(runner AgentRunner, enrichmentTimeout time.Duration) *Research {
	if enrichmentTimeout <= 0 {
		enrichmentTimeout = defaultEnrichmentTimeout
	}
	return &Research{
		runner:            runner,
		enrichmentTimeout: enrichmentTimeout,
		kbSpec:            kbResearchSpec(),
		enrichSpec:        enrichmentSpec(),
	}
}

// Run finds candidate companies in the knowledge base, then enriches each one
// in turn. A failed enrichment marks that company unenriched and the run
// continues; knowledge-base failures are returned.
func (r *Research) Run(ctx context.Context, query string, history []agent.Turn) (_ *ResearchSummary, err error) {
	start := time.Now()
	defer func() { observe("research", start, err) }()
	log := trace.Logger(ctx)

	kb, err := r.runner.Run(ctx, r.kbSpec, agent.NewConversation(history, query))
	if err != nil {
		return nil, err
	}
	var out kbOutput
	if err := kb.Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding knowledge base research: %w", err)
	}

	summary := &ResearchSummary{Companies: make([]CompanyProfile, 0, len(out.Companies))}
	for _, c := range out.Companies {
		summary.Companies = append(summary.Companies, CompanyProfile{
			CompanyName:    c.CompanyName,
			Description:    c.Description,
			Industry:       c.Industry,
			RelevanceScore: c.RelevanceScore,
		})
	}
	log.Debug("knowledge base research complete", "companies", len(summary.Companies))

	for i := range summary.Companies {
		p := &summary.Companies[i]
		details, err := r.enrich(ctx, kb.Conversation, p.CompanyName)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			metrics.EnrichmentTotal.WithLabelValues("degraded").Inc()
			log.Warn("enrichment degraded", "company", p.CompanyName, "error", err)
			continue
		}
		metrics.EnrichmentTotal.WithLabelValues("enriched").Inc()
		p.Enriched = true
		p.Details = details
		if p.Industry == "" {
			p.Industry = details.Industry
		}
	}
	return summary, nil
}

// enrich runs the enrichment agent for one company under its own timeout.
// conv holds the query and the knowledge-base answer.
func (r *Research) enrich(ctx context.Context, conv agent.Conversation, company string) (*CompanyDetails, error) {
	ctx, cancel := context.WithTimeout(ctx, r.enrichmentTimeout)
	defer cancel()

	conv = conv.Append(llm.Message{
		Role:    llm.RoleUser,
		Content: fmt.Sprintf("Look up %q, one of the companies listed above, and complete its profile.", company),
	})
	res, err := r.runner.Run(ctx, r.enrichSpec, conv)
	if err != nil {
		return nil, err
	}
	var d CompanyDetails
	if err := res.Decode(&d); err != nil {
		return nil, fmt.Errorf("decoding enrichment: %w", err)
	}
	return &d, nil
}
