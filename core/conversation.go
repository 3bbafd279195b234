package core

// Conversation is the ordered message history owned by a single agent. It is
// append-only except for Clear. Callers serialize access; the agent holding
// the conversation does so with its own lock.
type Conversation struct {
	messages []Message
}

// NewConversation creates an empty conversation.
func NewConversation() *Conversation {
	return &Conversation{}
}

// Append adds messages in order.
func (c *Conversation) Append(msgs ...Message) {
	c.messages = append(c.messages, msgs...)
}

// Len returns the number of stored messages.
func (c *Conversation) Len() int { return len(c.messages) }

// Messages returns a copy of the full history.
func (c *Conversation) Messages() []Message {
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Recent returns the trailing user/assistant messages covering at most
// maxExchanges exchanges (2*maxExchanges messages). Other roles are skipped.
func (c *Conversation) Recent(maxExchanges int) []Message {
	if maxExchanges <= 0 {
		return nil
	}
	limit := maxExchanges * 2
	start := len(c.messages) - limit
	if start < 0 {
		start = 0
	}
	out := make([]Message, 0, limit)
	for _, m := range c.messages[start:] {
		if m.Role == RoleUser || m.Role == RoleAssistant {
			out = append(out, m)
		}
	}
	return out
}

// Clear removes all messages. Calling it on an empty conversation is a no-op.
func (c *Conversation) Clear() {
	c.messages = nil
}
