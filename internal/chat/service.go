// Package chat orchestrates conversation assembly and response delivery
// for chat sessions, in both blocking and streaming modes.
package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/ahmedesmail07/ai-agent-platform/internal/apperr"
	"github.com/ahmedesmail07/ai-agent-platform/internal/gateway"
	"github.com/ahmedesmail07/ai-agent-platform/internal/store"
)

const (
	summaryMaxTokens   = 300
	summaryTemperature = 0.5
	summarySystem      = "You are a helpful assistant that summarizes conversations."
	summaryFallback    = "No summary generated."
)

// Defaults are the service-level completion parameters used when the
// agent's configuration leaves a field unset.
type Defaults struct {
	Model       string
	MaxTokens   int64
	Temperature float64
}

// Service implements the session operations: create, append, blocking
// send-and-respond, summarize and the streaming variant.
type Service struct {
	store    *store.Store
	gateway  gateway.Gateway
	defaults Defaults
}

func NewService(st *store.Store, gw gateway.Gateway, defaults Defaults) *Service {
	if defaults.Model == "" {
		defaults.Model = "gpt-3.5-turbo"
	}
	if defaults.MaxTokens <= 0 {
		defaults.MaxTokens = 1000
	}
	if defaults.Temperature == 0 {
		defaults.Temperature = 0.7
	}
	return &Service{store: st, gateway: gw, defaults: defaults}
}

// CreateSession starts a session for an existing agent.
func (s *Service) CreateSession(ctx context.Context, agentID uint) (*store.ChatSession, error) {
	return s.store.CreateSession(ctx, agentID)
}

// SessionsByAgent lists an agent's sessions.
func (s *Service) SessionsByAgent(ctx context.Context, agentID uint, skip, limit int) ([]store.ChatSession, error) {
	return s.store.SessionsByAgent(ctx, agentID, skip, limit)
}

// SessionMessages returns a session's messages in creation order.
func (s *Service) SessionMessages(ctx context.Context, sessionID uint) ([]store.Message, error) {
	return s.store.SessionMessages(ctx, sessionID)
}

// AddMessage validates the sender and persists one message.
func (s *Service) AddMessage(ctx context.Context, sessionID uint, sender, content string) (*store.Message, error) {
	if sender != store.SenderUser && sender != store.SenderAgent {
		return nil, apperr.InvalidSender(sender)
	}
	msg := &store.Message{SessionID: sessionID, Sender: sender, Content: content}
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// SendUserMessage persists the user turn, gets the completion and persists
// the agent turn. Both persisted messages are returned.
func (s *Service) SendUserMessage(ctx context.Context, sessionID uint, userText, kbOverride string) (*store.Message, *store.Message, error) {
	agent, err := s.sessionAgent(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}

	userMsg, err := s.AddMessage(ctx, sessionID, store.SenderUser, userText)
	if err != nil {
		return nil, nil, err
	}

	history, err := s.store.SessionMessages(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}

	// The history already contains the turn persisted above, so no new
	// user text is appended during assembly.
	turns := Assemble(history, agent.Configuration, "", kbOverride)
	reply, err := s.complete(ctx, agent.Configuration, turns)
	if err != nil {
		return nil, nil, err
	}

	agentMsg, err := s.AddMessage(ctx, sessionID, store.SenderAgent, reply)
	if err != nil {
		return nil, nil, err
	}
	return userMsg, agentMsg, nil
}

// StreamUserMessage is the streaming variant: the user turn is persisted
// first, deltas are forwarded through emit as they arrive, and the full
// accumulated text is persisted as the agent turn only once the stream
// completes. If emit fails (client gone) or the stream errors, nothing is
// persisted for the agent turn.
func (s *Service) StreamUserMessage(ctx context.Context, sessionID uint, userText, kbOverride string, emit func(delta string) error) (*store.Message, *store.Message, error) {
	agent, err := s.sessionAgent(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}

	userMsg, err := s.AddMessage(ctx, sessionID, store.SenderUser, userText)
	if err != nil {
		return nil, nil, err
	}

	history, err := s.store.SessionMessages(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}

	turns := Assemble(history, agent.Configuration, "", kbOverride)
	req := s.completionRequest(agent.Configuration, turns)

	full, err := s.gateway.CompleteStream(ctx, req, emit)
	if err != nil {
		return nil, nil, s.wrapCompletionErr(err, req)
	}
	if full == "" {
		return nil, nil, apperr.New(apperr.KindEmptyCompletion, "OPENAI_CHAT_COMPLETION_ERROR",
			"no response generated").With("model", req.Model).With("messages_count", len(turns))
	}

	agentMsg, err := s.AddMessage(ctx, sessionID, store.SenderAgent, full)
	if err != nil {
		return nil, nil, err
	}
	return userMsg, agentMsg, nil
}

// SummarizeSession renders the full history as "sender: content" lines and
// asks the model for a summary with a fixed token budget and temperature,
// independent of the agent's own configuration.
func (s *Service) SummarizeSession(ctx context.Context, sessionID uint) (string, error) {
	agent, err := s.sessionAgent(ctx, sessionID)
	if err != nil {
		return "", err
	}

	history, err := s.store.SessionMessages(ctx, sessionID)
	if err != nil {
		return "", err
	}

	lines := make([]string, len(history))
	for i, msg := range history {
		lines[i] = fmt.Sprintf("%s: %s", msg.Sender, msg.Content)
	}
	prompt := "Summarize the following conversation between a user and an AI assistant:\n\n" +
		strings.Join(lines, "\n") + "\n\nSummary:"

	model := agent.Configuration.Model
	if model == "" {
		model = s.defaults.Model
	}
	req := gateway.CompletionRequest{
		Model: model,
		Turns: []gateway.Turn{
			{Role: gateway.RoleSystem, Content: summarySystem},
			{Role: gateway.RoleUser, Content: prompt},
		},
		MaxTokens:   summaryMaxTokens,
		Temperature: summaryTemperature,
	}

	summary, err := s.gateway.Complete(ctx, req)
	if err != nil {
		if e, ok := apperr.As(err); ok && e.Kind == apperr.KindEmptyCompletion {
			return summaryFallback, nil
		}
		return "", s.wrapCompletionErr(err, req)
	}
	if summary == "" {
		return summaryFallback, nil
	}
	return summary, nil
}

// sessionAgent resolves the session and its agent. The agent may have been
// deleted after session creation, which surfaces as NotFound here.
func (s *Service) sessionAgent(ctx context.Context, sessionID uint) (*store.Agent, error) {
	session, err := s.store.Session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.store.Agent(ctx, session.AgentID)
}

func (s *Service) completionRequest(cfg store.AgentConfig, turns []gateway.Turn) gateway.CompletionRequest {
	req := gateway.CompletionRequest{
		Model:       cfg.Model,
		Turns:       turns,
		MaxTokens:   cfg.MaxTokens,
		Temperature: s.defaults.Temperature,
	}
	if req.Model == "" {
		req.Model = s.defaults.Model
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = s.defaults.MaxTokens
	}
	if cfg.Temperature != nil {
		req.Temperature = *cfg.Temperature
	}
	return req
}

func (s *Service) complete(ctx context.Context, cfg store.AgentConfig, turns []gateway.Turn) (string, error) {
	req := s.completionRequest(cfg, turns)
	reply, err := s.gateway.Complete(ctx, req)
	if err != nil {
		return "", s.wrapCompletionErr(err, req)
	}
	if reply == "" {
		return "", apperr.New(apperr.KindEmptyCompletion, "OPENAI_CHAT_COMPLETION_ERROR",
			"no response generated").With("model", req.Model).With("messages_count", len(turns))
	}
	return reply, nil
}

// wrapCompletionErr passes classified gateway errors through untouched and
// wraps anything unrecognized as a completion failure carrying the model
// and turn count for diagnostics.
func (s *Service) wrapCompletionErr(err error, req gateway.CompletionRequest) error {
	if _, ok := apperr.As(err); ok {
		return err
	}
	return apperr.New(apperr.KindCompletionFailed, "OPENAI_CHAT_COMPLETION_ERROR",
		"error generating response").Wrap(err).
		With("model", req.Model).
		With("messages_count", len(req.Turns))
}
