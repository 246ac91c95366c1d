package gateway

import (
	"context"
	"strings"
	"sync"
)

// Mock is a scripted gateway for tests and for running the server without
// an API key. Zero value replies echo a canned string.
type Mock struct {
	mu sync.Mutex

	Reply         string
	Deltas        []string
	Transcription string
	Audio         []byte

	CompleteErr   error
	StreamErr     error
	TranscribeErr error
	SynthesizeErr error

	// FailAfterDeltas, when >= 0, makes the stream fail after that many
	// deltas have been emitted.
	FailAfterDeltas int

	CompleteCalls   []CompletionRequest
	StreamCalls     []CompletionRequest
	TranscribeCalls []string
	SynthesizeCalls []string
}

func NewMock() *Mock {
	return &Mock{
		Reply:           "simulated response",
		Transcription:   "simulated transcription",
		Audio:           []byte("simulated audio"),
		FailAfterDeltas: -1,
	}
}

func (m *Mock) Complete(_ context.Context, req CompletionRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CompleteCalls = append(m.CompleteCalls, req)
	if m.CompleteErr != nil {
		return "", m.CompleteErr
	}
	return m.Reply, nil
}

func (m *Mock) CompleteStream(_ context.Context, req CompletionRequest, emit func(delta string) error) (string, error) {
	m.mu.Lock()
	m.StreamCalls = append(m.StreamCalls, req)
	deltas := m.Deltas
	if len(deltas) == 0 && m.Reply != "" {
		deltas = []string{m.Reply}
	}
	failAfter := m.FailAfterDeltas
	streamErr := m.StreamErr
	m.mu.Unlock()

	var b strings.Builder
	for i, delta := range deltas {
		if failAfter >= 0 && i >= failAfter {
			if streamErr != nil {
				return "", streamErr
			}
			break
		}
		if err := emit(delta); err != nil {
			return "", err
		}
		b.WriteString(delta)
	}
	if failAfter < 0 && streamErr != nil {
		return "", streamErr
	}
	return b.String(), nil
}

func (m *Mock) Transcribe(_ context.Context, audioPath string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TranscribeCalls = append(m.TranscribeCalls, audioPath)
	if m.TranscribeErr != nil {
		return "", m.TranscribeErr
	}
	return m.Transcription, nil
}

func (m *Mock) Synthesize(_ context.Context, text, _ string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SynthesizeCalls = append(m.SynthesizeCalls, text)
	if m.SynthesizeErr != nil {
		return nil, m.SynthesizeErr
	}
	return m.Audio, nil
}
