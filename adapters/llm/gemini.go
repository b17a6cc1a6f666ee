package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"promptrelay/domain"
	"promptrelay/utils/log"
)

const (
	// Fixed generation parameters. Temperature 0 keeps the chain as
	// deterministic as the provider allows.
	defaultModel    = "gemini-2.0-flash-001"
	maxOutputTokens = 1000

	// Applied when the caller's context carries no deadline of its own.
	defaultCallTimeout = 60 * time.Second
)

type GeminiClient struct {
	client *genai.Client
	model  string
}

func NewGeminiClient(ctx context.Context, apiKey string) (*GeminiClient, error) {
	client, err := genai.NewClient(
		ctx,
		&genai.ClientConfig{
			APIKey:      apiKey,
			HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	return &GeminiClient{client: client, model: defaultModel}, nil
}

// Complete sends the history with a system instruction and returns the
// model's reply flattened to plain text. The history is normalized to
// strict role alternation first; the provider rejects repeated roles.
func (g *GeminiClient) Complete(ctx context.Context, history []domain.Message, systemInstruction string) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultCallTimeout)
		defer cancel()
	}

	logger := log.WithCtx(ctx)

	formatted := domain.Normalize(history)
	contents := toContents(formatted)

	logger.Debug("sending messages to model",
		zap.Int("messages", len(contents)),
		zap.Int("dropped", len(history)-len(formatted)),
		zap.String("system_instruction", systemInstruction),
	)

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](0),
		MaxOutputTokens: maxOutputTokens,
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: systemInstruction}},
		},
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		logger.Error("api call failed", zap.Error(err))
		return "", fmt.Errorf("generate content: %w", err)
	}

	content := extractText(resp)
	logger.Debug("api response content", zap.String("content", content))
	return content, nil
}

func toContents(history []domain.Message) []*genai.Content {
	contents := make([]*genai.Content, len(history))
	for i, msg := range history {
		role := genai.RoleModel
		if msg.Role == domain.UserRole {
			role = genai.RoleUser
		}
		contents[i] = &genai.Content{
			Role: role,
			Parts: []*genai.Part{
				{Text: msg.Content},
			},
		}
	}
	return contents
}

// extractText flattens the first candidate's content parts into one
// newline-joined string. Text parts are taken as-is; anything else is
// stringified rather than dropped.
func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}

	blocks := []string{}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil {
			continue
		}
		if part.Text != "" {
			blocks = append(blocks, part.Text)
		} else {
			blocks = append(blocks, fmt.Sprintf("%v", *part))
		}
	}
	return strings.TrimSpace(strings.Join(blocks, "\n"))
}
