package usecase

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"promptrelay/domain"
	"promptrelay/utils/log"
)

// The three fixed instructions driving the prompt chain. They are sent
// verbatim; the model never sees anything else about the flow.
const (
	clarifyInstruction = "Help the user develop a clear set of requirements. " +
		"Use language of a 3rd grade reading level. " +
		"Ask exactly three questions to gather the necessary information to fulfill the user's request."

	assistantInstruction = "You are an AI assistant."

	summaryInstruction = "Please summarize the key requirements provided by the user in bullet points. " +
		"Based on these requirements, suggest an appropriate persona to 'act as' to fulfill the user's request. " +
		"Act as a prompt generator. Use the suggested persona and summary to engineer a prompt that would yield the best and most desirable response from the model. " +
		"Each prompt should involve asking the model to 'act as' the persona given. " +
		"The prompt should be detailed and comprehensive and should build on what was requested to generate the best possible response from the model. " +
		"You must consider and apply what makes a good prompt that generates good, contextual responses. " +
		"You must give a summary of the key requirements, a suggested persona, and output the prompt you want to use."

	finalInstructionFormat = "Based on the following summary and suggested persona, provide the final response:\n\n%s"
)

// Stage failures surfaced to the HTTP boundary. Anything else coming out
// of Execute is treated as an internal error there.
var (
	ErrCallFailed    = errors.New("api call failed")
	ErrSummaryFailed = errors.New("summary generation failed")
	ErrFinalFailed   = errors.New("final response generation failed")
)

// TurnResult is the outcome of one user turn. Exactly one of the two
// shapes is populated: Questions for a clarification turn, or
// Summary+Final for a finalization turn.
type TurnResult struct {
	Questions string
	Summary   string
	Final     string
}

// ChatService runs the three-step prompt chain over a conversation.
type ChatService struct {
	llm domain.Llm
}

func NewChatService(llm domain.Llm) *ChatService {
	return &ChatService{llm: llm}
}

// Execute appends the user's prompt to the conversation and runs one
// turn. The conversation tail decides the branch: until the user has
// answered a clarifying message, every turn asks clarifying questions;
// once the second-to-last message is from the assistant, the full
// answer/summary/finalize chain runs.
func (s *ChatService) Execute(ctx context.Context, conv *domain.Conversation, prompt string) (*TurnResult, error) {
	conv.Append(domain.UserRole, prompt)

	if needsClarification(conv) {
		return s.clarify(ctx, conv)
	}
	return s.finalize(ctx, conv)
}

func needsClarification(conv *domain.Conversation) bool {
	n := conv.Len()
	return n < 2 || conv.Messages[n-2].Role != domain.AssistantRole
}

func (s *ChatService) clarify(ctx context.Context, conv *domain.Conversation) (*TurnResult, error) {
	questions, err := s.llm.Complete(ctx, conv.Messages, clarifyInstruction)
	if err != nil || questions == "" {
		log.WithCtx(ctx).Error("clarification call failed", zap.Error(err))
		return nil, ErrCallFailed
	}

	conv.Append(domain.AssistantRole, questions)
	log.WithCtx(ctx).Info("clarifying questions generated", zap.Int("history_len", conv.Len()))
	return &TurnResult{Questions: questions}, nil
}

func (s *ChatService) finalize(ctx context.Context, conv *domain.Conversation) (*TurnResult, error) {
	logger := log.WithCtx(ctx)

	// Step 1: answer the user's reply to the clarifying questions.
	reply, err := s.llm.Complete(ctx, conv.Messages, assistantInstruction)
	if err != nil || reply == "" {
		logger.Error("assistant call failed", zap.Error(err))
		return nil, ErrCallFailed
	}
	conv.Append(domain.AssistantRole, reply)

	// Step 2: summarize requirements, pick a persona, engineer a prompt.
	// The instruction doubles as the system instruction for this call.
	conv.Append(domain.UserRole, summaryInstruction)
	summary, err := s.llm.Complete(ctx, conv.Messages, summaryInstruction)
	if err != nil || summary == "" {
		logger.Error("summary generation failed", zap.Error(err))
		return nil, ErrSummaryFailed
	}
	conv.Append(domain.AssistantRole, summary)

	// Step 3: produce the final answer from the engineered prompt. The
	// final instruction rides along for this one call only and is not
	// persisted, so future turns start from the summary.
	finalInstruction := fmt.Sprintf(finalInstructionFormat, summary)
	outgoing := append(slices.Clone(conv.Messages), domain.Message{
		Role:    domain.UserRole,
		Content: finalInstruction,
	})
	final, err := s.llm.Complete(ctx, outgoing, finalInstruction)
	if err != nil || final == "" {
		logger.Error("final response generation failed", zap.Error(err))
		return nil, ErrFinalFailed
	}

	logger.Info("turn finalized", zap.Int("history_len", conv.Len()))
	return &TurnResult{Summary: summary, Final: final}, nil
}
