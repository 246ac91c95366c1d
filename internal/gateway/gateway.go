// Package gateway wraps the external completion, transcription and speech
// synthesis service behind one interface so services can be exercised
// against a mock.
package gateway

import "context"

// Role tags one conversational turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one role-tagged text entry submitted to the completion service.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest carries the resolved model parameters for one chat
// completion call. The caller supplies defaults; no field is optional here.
type CompletionRequest struct {
	Model       string
	Turns       []Turn
	MaxTokens   int64
	Temperature float64
}

// Gateway is the boundary to the LLM provider. Complete runs a blocking
// completion; CompleteStream forwards each text fragment to emit as it
// arrives and returns the accumulated text. An error from emit aborts the
// stream and is returned unchanged.
type Gateway interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	CompleteStream(ctx context.Context, req CompletionRequest, emit func(delta string) error) (string, error)
	Transcribe(ctx context.Context, audioPath string) (string, error)
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
}
