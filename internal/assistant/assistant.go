// Package assistant hosts the chat pipeline. It sends user turns and
// accepted nudges to the provider, records the transcript, and feeds the
// long-term memory.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nudgeme/nudgeme/internal/conversation"
	"github.com/nudgeme/nudgeme/internal/memory"
	"github.com/nudgeme/nudgeme/internal/nudge"
	"github.com/nudgeme/nudgeme/internal/provider"
	"github.com/nudgeme/nudgeme/internal/telemetry"
)

// ErrEmptyMessage is returned when the user sends only whitespace.
var ErrEmptyMessage = errors.New("assistant: empty message")

// Apology replaces the reply when the provider fails.
const Apology = "Sorry, I couldn't reach my language service just now. Please try again in a moment."

// Defaults applied by New.
const (
	DefaultHistoryWindow  = 12
	DefaultMemoryRecords  = 10
	DefaultMemoryChars    = 2000
	DefaultRequestTimeout = 60 * time.Second
)

// Config controls an Assistant.
type Config struct {
	Provider      provider.Provider
	Conversations *conversation.Store

	// Memory is optional. When set, recent records are added to the
	// system prompt.
	Memory *memory.Store
	// LogTurns also appends every successful exchange to Memory.
	LogTurns bool
	// Extractor, when set, stores facts found in each exchange.
	Extractor memory.FactExtractor

	UserName string
	// Persona is the opening of the system prompt.
	Persona  string
	Location *time.Location

	HistoryWindow  int
	MemoryRecords  int
	MemoryChars    int
	RequestTimeout time.Duration

	Logger  *slog.Logger
	Metrics *telemetry.Metrics
	Tracer  trace.Tracer
	Now     func() time.Time
}

func (c *Config) defaults() {
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = DefaultHistoryWindow
	}
	if c.MemoryRecords <= 0 {
		c.MemoryRecords = DefaultMemoryRecords
	}
	if c.MemoryChars <= 0 {
		c.MemoryChars = DefaultMemoryChars
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.Persona == "" {
		c.Persona = "You are a warm, concise personal assistant."
	}
	if c.Location == nil {
		c.Location = time.Local
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Tracer == nil {
		c.Tracer = telemetry.Tracer()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Reply is the outcome of one chat turn.
type Reply struct {
	SessionID string                `json:"session_id"`
	User      *conversation.Message `json:"user,omitempty"`
	Assistant conversation.Message  `json:"assistant"`
	// Degraded is true when the provider failed and Assistant holds Apology.
	Degraded bool `json:"degraded"`
}

// Assistant runs chat turns. It is safe for concurrent use.
type Assistant struct {
	cfg    Config
	logger *slog.Logger
	wg     sync.WaitGroup
}

// New creates an Assistant. A nil Provider is allowed; every turn then
// degrades to Apology.
func New(cfg Config) (*Assistant, error) {
	if cfg.Conversations == nil {
		return nil, errors.New("assistant: conversation store is required")
	}
	cfg.defaults()
	return &Assistant{cfg: cfg, logger: cfg.Logger.With("component", "assistant")}, nil
}

// Send appends text to the active session, creating one if needed, and
// returns the assistant's reply.
func (a *Assistant) Send(ctx context.Context, text string) (Reply, error) {
	if strings.TrimSpace(text) == "" {
		return Reply{}, ErrEmptyMessage
	}
	return a.SendTo(ctx, a.cfg.Conversations.EnsureActive().ID, text)
}

// SendTo appends text to sessionID and returns the assistant's reply.
// Provider failures produce a degraded reply, not an error.
func (a *Assistant) SendTo(ctx context.Context, sessionID, text string) (Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Reply{}, ErrEmptyMessage
	}

	ctx, span := a.cfg.Tracer.Start(ctx, "assistant.send")
	defer span.End()

	history, err := a.cfg.Conversations.Recent(sessionID, a.cfg.HistoryWindow)
	if err != nil {
		return Reply{}, err
	}
	userMsg, err := a.cfg.Conversations.AddMessage(sessionID, conversation.RoleUser, text)
	if err != nil {
		return Reply{}, err
	}

	content, degraded := a.complete(ctx, span, history, text)
	asstMsg, err := a.cfg.Conversations.AddMessage(sessionID, conversation.RoleAssistant, content)
	if err != nil {
		return Reply{}, err
	}

	if !degraded {
		a.remember(ctx, text, content)
	}
	return Reply{SessionID: sessionID, User: &userMsg, Assistant: asstMsg, Degraded: degraded}, nil
}

// HandleNudge turns an accepted nudge into an assistant message in the
// active session. The prompt itself is not stored as a user turn.
func (a *Assistant) HandleNudge(ctx context.Context, n nudge.Notification) (Reply, error) {
	ctx, span := a.cfg.Tracer.Start(ctx, "assistant.nudge", trace.WithAttributes(
		attribute.String("nudge.type", string(n.Type)),
	))
	defer span.End()

	sess := a.cfg.Conversations.EnsureActive()
	history, err := a.cfg.Conversations.Recent(sess.ID, a.cfg.HistoryWindow)
	if err != nil {
		return Reply{}, err
	}

	content, degraded := a.complete(ctx, span, history, n.PromptText)
	msg, err := a.cfg.Conversations.AddMessage(sess.ID, conversation.RoleAssistant, content)
	if err != nil {
		return Reply{}, err
	}
	return Reply{SessionID: sess.ID, Assistant: msg, Degraded: degraded}, nil
}

// Attach subscribes the assistant to accepted nudges from engine. Each
// accepted nudge is handled in the background.
func (a *Assistant) Attach(engine interface {
	Subscribe(func(nudge.Event)) func()
}) (cancel func()) {
	return engine.Subscribe(func(ev nudge.Event) {
		if ev.Kind != nudge.EventAccepted {
			return
		}
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), a.cfg.RequestTimeout)
			defer cancel()
			if _, err := a.HandleNudge(ctx, ev.Notification); err != nil {
				a.logger.Warn("accepted nudge not delivered", "id", ev.Notification.ID, "error", err)
			}
		}()
	})
}

// Close waits for background work started by Attach and fact extraction.
func (a *Assistant) Close() error {
	a.wg.Wait()
	return nil
}

// complete asks the provider for a reply to prompt. Failures are logged
// and replaced with Apology.
func (a *Assistant) complete(ctx context.Context, span trace.Span, history []conversation.Message, prompt string) (string, bool) {
	if a.cfg.Provider == nil {
		return a.degrade(span, 0, provider.ErrNoProvider)
	}

	req := provider.CompletionRequest{Messages: a.buildMessages(ctx, history, prompt)}
	ctx, cancel := context.WithTimeout(ctx, a.cfg.RequestTimeout)
	defer cancel()

	start := time.Now()
	resp, err := a.cfg.Provider.Complete(ctx, req)
	elapsed := time.Since(start)
	if err == nil && strings.TrimSpace(resp.Content) == "" {
		err = provider.ErrEmptyResponse
	}
	if err != nil {
		return a.degrade(span, elapsed, err)
	}

	a.cfg.Metrics.ChatCompleted("ok", elapsed)
	span.SetAttributes(attribute.Int("llm.total_tokens", resp.Usage.TotalTokens))
	return strings.TrimSpace(resp.Content), false
}

func (a *Assistant) degrade(span trace.Span, elapsed time.Duration, err error) (string, bool) {
	a.cfg.Metrics.ChatCompleted("degraded", elapsed)
	span.RecordError(err)
	span.SetStatus(codes.Error, "provider failed")
	a.logger.Warn("provider failed, replying with apology", "error", err, "retryable", provider.IsRetryable(err))
	return Apology, true
}

func (a *Assistant) buildMessages(ctx context.Context, history []conversation.Message, prompt string) []provider.LLMMessage {
	msgs := make([]provider.LLMMessage, 0, len(history)+2)
	msgs = append(msgs, provider.LLMMessage{Role: provider.MessageRoleSystem, Content: a.systemPrompt(ctx)})
	for _, m := range history {
		role := provider.MessageRoleUser
		if m.Role == conversation.RoleAssistant {
			role = provider.MessageRoleAssistant
		}
		msgs = append(msgs, provider.LLMMessage{Role: role, Content: m.Content})
	}
	return append(msgs, provider.LLMMessage{Role: provider.MessageRoleUser, Content: prompt})
}

func (a *Assistant) systemPrompt(ctx context.Context) string {
	var b strings.Builder
	b.WriteString(a.cfg.Persona)
	if name := strings.TrimSpace(a.cfg.UserName); name != "" {
		fmt.Fprintf(&b, " You are talking with %s.", name)
	}
	fmt.Fprintf(&b, " It is currently %s.", a.cfg.Now().In(a.cfg.Location).Format("Monday, 2 January 2006, 15:04"))

	if a.cfg.Memory != nil {
		if section := memory.FormatContext(a.cfg.Memory.Recent(ctx, a.cfg.MemoryRecords), a.cfg.MemoryChars); section != "" {
			b.WriteString("\n\n")
			b.WriteString(section)
		}
	}
	return b.String()
}

// remember logs the exchange and starts fact extraction.
func (a *Assistant) remember(ctx context.Context, user, reply string) {
	if a.cfg.Memory == nil {
		return
	}
	if a.cfg.LogTurns {
		a.cfg.Memory.Append(ctx, "User said: "+user, memory.CategoryGeneral, []string{"chat"})
	}
	if a.cfg.Extractor == nil {
		return
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.RequestTimeout)
		defer cancel()

		drafts, err := a.cfg.Extractor.Extract(ctx, memory.Exchange{User: user, Assistant: reply})
		if err != nil {
			a.logger.Debug("fact extraction failed", "error", err)
			return
		}
		for _, d := range drafts {
			a.cfg.Memory.Append(ctx, d.Content, d.Category, []string{"extracted"})
		}
		if len(drafts) > 0 {
			a.logger.Info("facts remembered", "count", len(drafts))
		}
	}()
}
