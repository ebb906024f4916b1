package intent

import "github.com/kalambet/fundscout/internal/agent"

const classifierInstructions = `You classify questions sent to a startup funding assistant.

Labels:
- "advice": the user wants recommendations for their own company: which investors to approach, how to raise, how to pitch, fundraising or go-to-market strategy.
  Examples: "What investors would be interested in my SaaS product?", "Should I pitch health-tech investors?", "How should I raise a seed round for my fintech?"
- "research": the user wants facts about companies, sectors or funding activity: who funds a sector, details about a company, its funding history or investors.
  Examples: "Who funds fintech?", "Tell me about Tabby's funding", "Find AI drug discovery startups"

Rules:
- Phrases like "my startup", "my product", "should I", "how do I" point to advice.
- Phrases like "tell me about", "who funds", "find", "look up", or a specific company name point to research.
- Report confidence between 0 and 1 and a one or two sentence reasoning.

Respond ONLY with a JSON object matching the provided schema.`

func classificationSchema() *agent.Schema {
	return agent.Object(map[string]*agent.Schema{
		"label":      agent.Enum("The handling category of the query.", LabelAdvice, LabelResearch),
		"confidence": agent.Between(agent.Number("Confidence in the label, between 0 and 1."), 0, 1),
		"reasoning":  agent.String("Short explanation of the label."),
	}, "label", "confidence", "reasoning")
}

// Spec is the intent classifier agent definition.
func Spec() agent.Spec {
	return agent.Spec{
		Name:         "intent_classifier",
		Instructions: classifierInstructions,
		Output:       classificationSchema(),
		Tier:         agent.TierFast,
	}
}
