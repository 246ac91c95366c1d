package chat

import (
	"github.com/ahmedesmail07/ai-agent-platform/internal/gateway"
	"github.com/ahmedesmail07/ai-agent-platform/internal/store"
)

// knowledgeBasePrefix is the fixed wrapper for injected knowledge base
// context. It must stay stable: stored conversations replay against it.
const knowledgeBasePrefix = "This is important knowledge base context: "

// Assemble builds the ordered turn list for a completion call.
//
// Order: the knowledge-base system turn (if any) comes first, then the
// agent's system prompt (if any), then the stored history in creation
// order, then newUserText (when non-empty; the blocking path passes ""
// because the history already contains the just-persisted user turn).
// A request-supplied kbOverride takes precedence over the agent's stored
// knowledge base. Nothing is ever omitted, reordered or truncated here.
func Assemble(history []store.Message, cfg store.AgentConfig, newUserText, kbOverride string) []gateway.Turn {
	turns := make([]gateway.Turn, 0, len(history)+3)

	if cfg.SystemPrompt != "" {
		turns = append(turns, gateway.Turn{Role: gateway.RoleSystem, Content: cfg.SystemPrompt})
	}

	for _, msg := range history {
		role := gateway.RoleAssistant
		if msg.Sender == store.SenderUser {
			role = gateway.RoleUser
		}
		turns = append(turns, gateway.Turn{Role: role, Content: msg.Content})
	}

	if newUserText != "" {
		turns = append(turns, gateway.Turn{Role: gateway.RoleUser, Content: newUserText})
	}

	kb := kbOverride
	if kb == "" {
		kb = cfg.KnowledgeBase
	}
	if kb != "" {
		kbTurn := gateway.Turn{Role: gateway.RoleSystem, Content: knowledgeBasePrefix + kb}
		turns = append([]gateway.Turn{kbTurn}, turns...)
	}

	return turns
}
