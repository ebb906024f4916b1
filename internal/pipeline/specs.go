package pipeline

import (
	"github.com/kalambet/fundscout/internal/agent"
	"github.com/kalambet/fundscout/internal/tools"
)

// Agent names, also used as trace sources.
const (
	AgentKBResearch       = "kb_research"
	AgentEnrichment       = "enrichment"
	AgentSectorClassifier = "sector_classifier"
	AgentAdvice           = "advice"
	AgentGenericAdvice    = "generic_advice"
	AgentSummarizer       = "summarizer"
	AgentRAGQuery         = "rag_query"
)

// UnknownSector is the classifier's answer for queries that name no sector.
const UnknownSector = "unknown"

var retrievalTools = []string{tools.RAGSemanticSearch, tools.RAGGenerateReasoning, tools.RAGFullQuery}

const kbResearchInstructions = `You are a research assistant with access to a knowledge base of funded startup companies.

Tools:
- rag_semantic_search finds company records relevant to a query. Lower distance means more relevant.
- rag_generate_reasoning writes a cited answer from records returned by a search.
- rag_full_query searches and answers in one call.

Always search the knowledge base before answering. Build your answer only from companies that appear in the search results: take company_name and description from the records and infer industry from the sector line when possible. Set relevance_score to 1 minus the record's distance. If nothing relevant is found, return an empty companies list.`

func kbResearchSpec() agent.Spec {
	company := agent.Object(map[string]*agent.Schema{
		"company_name":    agent.String("Company name exactly as in the record."),
		"description":     agent.String("What the company does."),
		"industry":        agent.String("Industry or sector."),
		"relevance_score": agent.Between(agent.Number("Relevance to the query, between 0 and 1."), 0, 1),
	}, "company_name", "description")

	return agent.Spec{
		Name:           AgentKBResearch,
		Instructions:   kbResearchInstructions,
		Tools:          retrievalTools,
		Output:         agent.Object(map[string]*agent.Schema{"companies": agent.Array("Companies found in the knowledge base.", company)}, "companies"),
		Tier:           agent.TierReasoning,
		GroundingTools: retrievalTools,
	}
}

const enrichmentInstructions = `You are a research assistant that completes company profiles using web search.

For the company you are asked about, search the web and find its official website URL, company size as an employee range (for example "10-50" or "1000+"), headquarters location as "City, Country", founding year, industry and a one or two sentence description.

Prefer official sources. Search for the company by its exact name. Leave a field as an empty string (or 0 for founded_year) when you cannot find it; never invent values.`

func enrichmentSpec() agent.Spec {
	return agent.Spec{
		Name:         AgentEnrichment,
		Instructions: enrichmentInstructions,
		Tools:        []string{tools.WebSearch},
		Output: agent.Object(map[string]*agent.Schema{
			"website":               agent.String("Official website URL."),
			"company_size":          agent.String("Employee range."),
			"headquarters_location": agent.String("City, Country."),
			"founded_year":          agent.Integer("Year founded, 0 if unknown."),
			"industry":              agent.String("Industry."),
			"description":           agent.String("Short description."),
		}, "website", "company_size", "headquarters_location", "founded_year", "industry", "description"),
		Tier: agent.TierFast,
	}
}

const sectorInstructions = `You are a startup sector classification expert.

Identify the sector the USER'S OWN startup or company operates in, based on what it does or builds. Ignore mentions of investors or funding sources: "Who would invest in my social media startup?" is about a social media startup.

Pick the sector from the allowed values only. If the query does not describe a company clearly enough, answer "unknown" with low confidence.

Confidence guide:
- 0.9 to 1.0: the sector is stated explicitly.
- 0.7 to 0.9: the sector is clearly implied.
- below 0.7: the description is vague or fits several sectors.`

func sectorClassifierSpec(vocabulary []string) agent.Spec {
	values := append(append([]string{}, vocabulary...), UnknownSector)
	return agent.Spec{
		Name:         AgentSectorClassifier,
		Instructions: sectorInstructions,
		Output: agent.Object(map[string]*agent.Schema{
			"sector":     agent.Enum("The sector of the user's startup.", values...),
			"confidence": agent.Between(agent.Number("Confidence between 0 and 1."), 0, 1),
			"rationale":  agent.String("Brief explanation."),
		}, "sector", "confidence", "rationale"),
		Tier: agent.TierFast,
	}
}

const adviceInstructions = `You are a data-driven startup advisor with access to a database of funded companies and their investors.

The user's sector has already been determined and the results of search_funded_entities_by_sector and get_investors_for_sector for that sector are in the conversation. You may call those tools again with the same sector if you need to.

1. For every company in the results, split its comma-separated investors field and create one pair per investor: {investor, company}.
2. Use the investor activity counts to judge which investors are most active in the sector.
3. Write strategic_advice: specific, actionable guidance on which investors to approach first, how to position the pitch for this sector, and what traction they will expect.

Rules:
- Include every investor from the results. Never invent investors that are not in the tool results.
- If no companies were found, return an empty investors list and say in strategic_advice that the database has no investor data for that sector, then give general fundraising guidance for it.`

const genericAdviceInstructions = `You are a startup fundraising advisor.

The user's sector could not be determined with confidence, so no sector-specific investor data is available. Return an empty investors list. In strategic_advice, say that a clearer description of the product, market or industry would allow specific investor recommendations, and give practical general fundraising advice: clarify the value proposition, build traction, find investors with a track record in the space, and network at industry events.`

func adviceOutputSchema() *agent.Schema {
	pair := agent.Object(map[string]*agent.Schema{
		"investor": agent.String("Investor or firm name."),
		"company":  agent.String("Company the investor funded."),
	}, "investor", "company")
	return agent.Object(map[string]*agent.Schema{
		"investors":        agent.Array("Investor and company pairs from the data.", pair),
		"strategic_advice": agent.String("Actionable fundraising guidance."),
	}, "investors", "strategic_advice")
}

func adviceSpec() agent.Spec {
	return agent.Spec{
		Name:         AgentAdvice,
		Instructions: adviceInstructions,
		Tools:        []string{tools.SearchFundedEntitiesBySector, tools.GetInvestorsForSector},
		Output:       adviceOutputSchema(),
		Tier:         agent.TierReasoning,
	}
}

func genericAdviceSpec() agent.Spec {
	return agent.Spec{
		Name:         AgentGenericAdvice,
		Instructions: genericAdviceInstructions,
		Output:       adviceOutputSchema(),
		Tier:         agent.TierReasoning,
	}
}

const summarizerInstructions = `You receive investor and company matches together with strategic advice. Summarize the single best-fit investor and opportunity for a dashboard:
- investor_name: the best matching investor, or "N/A" when there are none
- industry: the primary sector discussed
- description: a brief narrative summary`

func summarizerSpec() agent.Spec {
	return agent.Spec{
		Name:         AgentSummarizer,
		Instructions: summarizerInstructions,
		Output: agent.Object(map[string]*agent.Schema{
			"investor_name": agent.String("Best matching investor."),
			"industry":      agent.String("Primary sector."),
			"description":   agent.String("Brief summary."),
		}, "investor_name", "industry", "description"),
		Tier: agent.TierReasoning,
	}
}

const ragQueryInstructions = `You are an expert analyst of startup funding with a searchable knowledge base of funded companies.

1. Call rag_semantic_search with the user's question.
2. Call rag_generate_reasoning with the question and the documents, metadatas (as a JSON string) and distances from the search.
3. Answer from that reasoning. List each company you relied on in sources with its relevance_score (1 minus distance) and a short document_snippet.

Set confidence_score between 0 and 1 to reflect how well the records answer the question. If the search finds nothing, say so in answer, return no sources and a low confidence.`

func ragQuerySpec() agent.Spec {
	source := agent.Object(map[string]*agent.Schema{
		"company_name":     agent.String("Company name."),
		"relevance_score":  agent.Between(agent.Number("Relevance between 0 and 1."), 0, 1),
		"document_snippet": agent.String("Short excerpt of the record."),
	}, "company_name", "relevance_score", "document_snippet")

	return agent.Spec{
		Name:         AgentRAGQuery,
		Instructions: ragQueryInstructions,
		Tools:        []string{tools.RAGSemanticSearch, tools.RAGGenerateReasoning},
		Output: agent.Object(map[string]*agent.Schema{
			"answer":           agent.String("Answer to the question."),
			"sources":          agent.Array("Companies the answer relies on.", source),
			"confidence_score": agent.Between(agent.Number("Confidence between 0 and 1."), 0, 1),
			"reasoning":        agent.String("How the answer follows from the records."),
		}, "answer", "sources", "confidence_score", "reasoning"),
		Tier:           agent.TierReasoning,
		GroundingTools: []string{tools.RAGSemanticSearch},
	}
}
