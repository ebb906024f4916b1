package agent

// Tier selects the model class an agent runs on.
type Tier string

const (
	TierFast      Tier = "fast"
	TierReasoning Tier = "reasoning"
)

// Spec is the static definition of one worker agent.
type Spec struct {
	Name         string
	Instructions string
	// Tools lists the registry tools the agent may call. Calls to anything
	// else are rejected.
	Tools []string
	// Output, when set, is the schema the final answer must satisfy.
	Output      *Schema
	Tier        Tier
	Temperature float32
	// GroundingTools, when set, must include at least one successfully
	// invoked tool for the answer to be accepted.
	GroundingTools []string
}
