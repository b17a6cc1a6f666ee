package domain

import "context"

// Llm abstracts any chat/LLM provider behind a single completion call.
type Llm interface {
	// Complete sends the conversation history together with a system
	// instruction and returns the model's reply as one flat string.
	// The history does not need to alternate roles already; the adapter
	// fixes it up before transmission.
	Complete(ctx context.Context, history []Message, systemInstruction string) (string, error)
}

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type Role string

const (
	UserRole      Role = "user"
	AssistantRole Role = "assistant"
)
