// Package assistant holds the learning assistant features backed by the
// generative-language gateway: chat, error explanations, roadmaps and news.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/p-n-ai/pai-academy/internal/ai"
)

const (
	chatTemperature = 0.7

	defaultCompactThreshold      = 20
	defaultCompactTokenThreshold = 20000 // ~20k tokens triggers compaction
	defaultKeepRecent            = 6

	emptyReply     = "I'm sorry, I couldn't process that. Could you rephrase?"
	budgetExceeded = "You've used today's assistant allowance. Your lessons and quizzes still work, and the assistant will be back tomorrow."
)

// Inbound is a learner's chat message.
type Inbound struct {
	UserID   string
	UserName string
	Text     string
}

// Reply is the assistant's answer. Degraded is set when the text is a
// fallback rather than a generated answer.
type Reply struct {
	ConversationID string `json:"conversationId,omitempty"`
	Text           string `json:"text"`
	Degraded       bool   `json:"degraded,omitempty"`
}

// ChatConfig holds dependencies for the chat engine.
type ChatConfig struct {
	Generator             *ai.Generator
	Store                 ConversationStore
	Budget                ai.BudgetChecker
	CompactThreshold      int // messages before compaction triggers (default 20)
	CompactTokenThreshold int // estimated tokens before compaction triggers (default 20000)
	KeepRecent            int // recent messages to keep after compaction (default 6)
}

// Chat is the conversation processor behind the chat widget.
type Chat struct {
	gen                   *ai.Generator
	store                 ConversationStore
	budget                ai.BudgetChecker
	compactThreshold      int
	compactTokenThreshold int
	keepRecent            int
}

// NewChat creates a chat engine.
func NewChat(cfg ChatConfig) *Chat {
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}
	threshold := cfg.CompactThreshold
	if threshold == 0 {
		threshold = defaultCompactThreshold
	}
	tokenThreshold := cfg.CompactTokenThreshold
	if tokenThreshold == 0 {
		tokenThreshold = defaultCompactTokenThreshold
	}
	keepRecent := cfg.KeepRecent
	if keepRecent == 0 {
		keepRecent = defaultKeepRecent
	}
	return &Chat{
		gen:                   cfg.Generator,
		store:                 store,
		budget:                cfg.Budget,
		compactThreshold:      threshold,
		compactTokenThreshold: tokenThreshold,
		keepRecent:            keepRecent,
	}
}

// Send answers one message. Failures of the generator or the store degrade
// to a fallback reply; only invalid input is an error.
func (c *Chat) Send(ctx context.Context, msg Inbound) (Reply, error) {
	text := strings.TrimSpace(msg.Text)
	if msg.UserID == "" {
		return Reply{}, fmt.Errorf("user_id is required")
	}
	if text == "" {
		return Reply{}, fmt.Errorf("message is empty")
	}

	slog.Info("processing chat message",
		"user_id", msg.UserID,
		"text_len", len(text),
	)

	if strings.HasPrefix(text, "/") {
		return c.handleCommand(ctx, msg, text)
	}

	if c.budget != nil {
		ok, err := c.budget.Check(ctx, msg.UserID)
		if err != nil {
			slog.Warn("budget check failed, allowing message", "user_id", msg.UserID, "error", err)
		} else if !ok {
			return Reply{Text: budgetExceeded, Degraded: true}, nil
		}
	}

	conv, err := c.getOrCreateConversation(ctx, msg.UserID)
	if err != nil {
		slog.Error("failed to get conversation", "user_id", msg.UserID, "error", err)
		return Reply{Text: c.gen.Fallback(), Degraded: true}, nil
	}

	if err := c.store.AddMessage(ctx, conv.ID, StoredMessage{Role: "user", Content: text}); err != nil {
		slog.Error("failed to store user message", "error", err)
	}
	conv.Messages = append(conv.Messages, StoredMessage{Role: "user", Content: text})

	c.maybeCompact(ctx, conv)

	answer, resp, err := c.gen.Complete(ctx, ai.CompletionRequest{
		Messages:    c.buildContextMessages(conv),
		System:      SystemPrompt(msg.UserName),
		Temperature: chatTemperature,
		Task:        ai.TaskChat,
		MaxTokens:   1024,
	})
	if err != nil {
		reply := c.gen.Fallback()
		if resp.Model != "" {
			reply = emptyReply
		}
		return Reply{ConversationID: conv.ID, Text: reply, Degraded: true}, nil
	}

	if err := c.store.AddMessage(ctx, conv.ID, StoredMessage{
		Role:         "assistant",
		Content:      answer,
		Model:        resp.Model,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
	}); err != nil {
		slog.Error("failed to store assistant message", "error", err)
	}
	if c.budget != nil {
		if err := c.budget.Record(ctx, msg.UserID, resp.TotalTokens()); err != nil {
			slog.Warn("failed to record token usage", "user_id", msg.UserID, "error", err)
		}
	}

	return Reply{ConversationID: conv.ID, Text: answer}, nil
}

// History returns the active conversation's messages for userID.
func (c *Chat) History(ctx context.Context, userID string) ([]StoredMessage, error) {
	conv, found, err := c.store.GetActiveConversation(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !found {
		return []StoredMessage{}, nil
	}
	return conv.Messages, nil
}

// buildContextMessages returns the conversation messages for the prompt.
// With a summary, only messages after the compaction point are included.
func (c *Chat) buildContextMessages(conv *Conversation) []ai.Message {
	var messages []ai.Message
	recent := conv.Messages
	if conv.Summary != "" {
		messages = append(messages,
			ai.Message{Role: "user", Content: "Previous conversation summary:\n" + conv.Summary},
			ai.Message{Role: "assistant", Content: "Understood, I'll continue based on our previous conversation."},
		)
		recent = conv.Messages[conv.CompactedAt:]
	}
	for _, m := range recent {
		messages = append(messages, ai.Message{Role: m.Role, Content: m.Content})
	}
	return messages
}

// estimateTokens gives a rough token count for messages (1 token ≈ 4 chars).
func estimateTokens(messages []StoredMessage) int {
	total := 0
	for _, m := range messages {
		total += len(m.Content) / 4
	}
	return total
}

// maybeCompact summarizes older messages once the uncompacted tail exceeds
// the message or token threshold.
func (c *Chat) maybeCompact(ctx context.Context, conv *Conversation) {
	uncompacted := conv.Messages[conv.CompactedAt:]
	if len(uncompacted) <= c.compactThreshold && estimateTokens(uncompacted) <= c.compactTokenThreshold {
		return
	}

	compactUpTo := len(conv.Messages) - c.keepRecent
	if compactUpTo <= conv.CompactedAt {
		return
	}

	var content strings.Builder
	if conv.Summary != "" {
		content.WriteString("Previous summary:\n")
		content.WriteString(conv.Summary)
		content.WriteString("\n\nNew messages to incorporate:\n")
	}
	for _, m := range conv.Messages[conv.CompactedAt:compactUpTo] {
		role := "Learner"
		if m.Role == "assistant" {
			role = "Assistant"
		}
		fmt.Fprintf(&content, "%s: %s\n", role, m.Content)
	}

	summary, _, err := c.gen.Complete(ctx, ai.CompletionRequest{
		Messages: []ai.Message{{Role: "user", Content: content.String()}},
		System: `Summarize this learning conversation concisely. Capture:
- Topics and courses discussed
- What the learner understood or struggled with
- Any code or quiz questions worked through
Keep the summary under 150 words.`,
		Task:      ai.TaskChat,
		MaxTokens: 256,
	})
	if err != nil {
		slog.Warn("compaction failed, continuing without summary", "error", err)
		return
	}

	if err := c.store.SetSummary(ctx, conv.ID, summary, compactUpTo); err != nil {
		slog.Warn("failed to save summary", "error", err)
		return
	}
	conv.Summary = summary
	conv.CompactedAt = compactUpTo

	slog.Info("conversation compacted",
		"conversation_id", conv.ID,
		"compacted_messages", compactUpTo,
		"remaining_messages", len(conv.Messages)-compactUpTo,
	)
}

func (c *Chat) getOrCreateConversation(ctx context.Context, userID string) (*Conversation, error) {
	conv, found, err := c.store.GetActiveConversation(ctx, userID)
	if err != nil {
		return nil, err
	}
	if found {
		return conv, nil
	}
	return c.store.CreateConversation(ctx, userID)
}

func (c *Chat) handleCommand(ctx context.Context, msg Inbound, text string) (Reply, error) {
	cmd := strings.Fields(text)[0]

	switch cmd {
	case "/start", "/reset":
		if conv, found, err := c.store.GetActiveConversation(ctx, msg.UserID); err != nil {
			slog.Error("failed to look up conversation", "error", err)
		} else if found {
			if err := c.store.EndConversation(ctx, conv.ID); err != nil {
				slog.Error("failed to end conversation", "error", err)
			}
		}
		return Reply{Text: greeting(msg.UserName)}, nil
	default:
		return Reply{Text: fmt.Sprintf("Unknown command: %s\nUse /start to begin a new conversation.", cmd)}, nil
	}
}

func greeting(name string) string {
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf(`Hi %s!

I'm your AI learning assistant. I can help with:
- AI and Machine Learning
- Web Development
- Data Science

What would you like to learn today?`, name)
}

// SystemPrompt is the assistant's standing instruction for a learner.
func SystemPrompt(userName string) string {
	if userName == "" {
		userName = "the learner"
	}
	return fmt.Sprintf(`You are the PAI Academy AI Learning Assistant.
Your tone is encouraging, professional, and concise.
The user's name is %s.
Provide short, educational answers.
If they ask about a mistake in a quiz, explain the underlying concept simply.
Focus on AI, Machine Learning, Web Development, and Data Science.
Avoid long paragraphs. Use bullet points if needed.`, userName)
}
