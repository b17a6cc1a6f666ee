package domain

// Conversation is the ordered message history of one browser session.
// Messages are append-only; they are never reordered, merged, or edited
// once added.
type Conversation struct {
	Messages []Message
}

func (c *Conversation) Append(role Role, content string) {
	c.Messages = append(c.Messages, Message{Role: role, Content: content})
}

func (c *Conversation) Len() int {
	return len(c.Messages)
}

// Normalize returns a copy of history in which no two adjacent messages
// share a role. When a role repeats, the later message is dropped, not
// merged — the dropped text is gone for good. The provider rejects
// histories that do not alternate, so this runs before every call.
func Normalize(history []Message) []Message {
	fixed := make([]Message, 0, len(history))
	var lastRole Role
	for _, msg := range history {
		if len(fixed) == 0 || msg.Role != lastRole {
			fixed = append(fixed, msg)
			lastRole = msg.Role
		}
	}
	return fixed
}
