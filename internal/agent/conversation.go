package agent

import (
	"slices"

	"github.com/kalambet/fundscout/internal/llm"
)

// Turn is one prior exchange supplied with a query.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Conversation is the append-only message log of one run. Append returns a
// new Conversation and never modifies the receiver, so values can be handed
// from one agent to the next without sharing mutable state.
type Conversation struct {
	msgs []llm.Message
}

// NewConversation starts a log from prior turns followed by the user query.
// Turns with roles other than user and assistant are dropped.
func NewConversation(history []Turn, query string) Conversation {
	msgs := make([]llm.Message, 0, len(history)+1)
	for _, t := range history {
		if t.Role != llm.RoleUser && t.Role != llm.RoleAssistant {
			continue
		}
		msgs = append(msgs, llm.Message{Role: t.Role, Content: t.Content})
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: query})
	return Conversation{msgs: msgs}
}

// Append returns a new Conversation with msgs added at the end.
func (c Conversation) Append(msgs ...llm.Message) Conversation {
	return Conversation{msgs: slices.Concat(c.msgs, msgs)}
}

// Messages returns a copy of the log.
func (c Conversation) Messages() []llm.Message {
	return slices.Clone(c.msgs)
}

func (c Conversation) Len() int {
	return len(c.msgs)
}

// Last returns the final message, if any.
func (c Conversation) Last() (llm.Message, bool) {
	if len(c.msgs) == 0 {
		return llm.Message{}, false
	}
	return c.msgs[len(c.msgs)-1], true
}
