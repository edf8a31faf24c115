// Package llms defines the conversation types shared by language model
// clients and the components that drive them.
package llms

type MessageRole string

const (
	MessageRoleSystem    MessageRole = "system"
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

type Message struct {
	Role    MessageRole
	Content string
}

// BoundHistory returns the most recent messages, keeping at most limit
// entries. The slice is shared with the input; callers append, never mutate.
func BoundHistory(history []Message, limit int) []Message {
	if limit <= 0 || len(history) <= limit {
		return history
	}
	return history[len(history)-limit:]
}
