// Package voicechat runs the voice pipeline: speech-to-text, a chat turn,
// text-to-speech, and provenance bookkeeping for the produced audio.
package voicechat

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ahmedesmail07/ai-agent-platform/internal/apperr"
	"github.com/ahmedesmail07/ai-agent-platform/internal/chat"
	"github.com/ahmedesmail07/ai-agent-platform/internal/gateway"
	"github.com/ahmedesmail07/ai-agent-platform/internal/store"
)

const outputFormat = "mp3"

// Service orchestrates voice interactions on top of the chat service.
type Service struct {
	store    *store.Store
	chat     *chat.Service
	gateway  gateway.Gateway
	audioDir string
	voice    string
}

func NewService(st *store.Store, chatSvc *chat.Service, gw gateway.Gateway, audioDir, voice string) *Service {
	if audioDir == "" {
		audioDir = "audio_files"
	}
	if voice == "" {
		voice = "alloy"
	}
	return &Service{store: st, chat: chatSvc, gateway: gw, audioDir: audioDir, voice: voice}
}

// Result is the outcome of one processed voice message.
type Result struct {
	UserMessage  *store.Message
	AgentMessage *store.Message
	OutputPath   string
}

// ProcessVoiceMessage transcribes the uploaded audio, runs the transcribed
// text through the chat service, synthesizes the reply to a new audio file
// and records provenance metadata against the user message. Specific
// failure kinds propagate unchanged; anything unrecognized is reported as
// a voice processing failure carrying the session id.
func (s *Service) ProcessVoiceMessage(ctx context.Context, sessionID uint, audioPath string, provenance store.Document) (*Result, error) {
	if err := os.MkdirAll(s.audioDir, 0o755); err != nil {
		return nil, apperr.New(apperr.KindVoiceProcessing, "VOICE_SERVICE_ERROR",
			"voice processing failed").Wrap(err).With("session_id", sessionID)
	}

	userText, err := s.speechToText(ctx, audioPath)
	if err != nil {
		return nil, err
	}

	userMsg, agentMsg, err := s.chat.SendUserMessage(ctx, sessionID, userText, "")
	if err != nil {
		return nil, s.wrapErr(err, sessionID)
	}

	outputPath, err := s.textToSpeech(ctx, agentMsg.Content, sessionID)
	if err != nil {
		return nil, err
	}

	if err := s.storeAudioMetadata(ctx, userMsg.ID, provenance, audioPath, outputPath, userText); err != nil {
		return nil, err
	}

	return &Result{UserMessage: userMsg, AgentMessage: agentMsg, OutputPath: outputPath}, nil
}

func (s *Service) speechToText(ctx context.Context, audioPath string) (string, error) {
	text, err := s.gateway.Transcribe(ctx, audioPath)
	if err != nil {
		if e, ok := apperr.As(err); ok {
			switch e.Kind {
			case apperr.KindInvalidCredentials, apperr.KindQuotaExceeded,
				apperr.KindRequestTimeout, apperr.KindAPIError:
				return "", e
			}
		}
		return "", apperr.New(apperr.KindSpeechToText, "SPEECH_TO_TEXT_ERROR",
			"speech-to-text conversion failed").Wrap(err).With("audio_file", audioPath)
	}
	return text, nil
}

func (s *Service) textToSpeech(ctx context.Context, text string, sessionID uint) (string, error) {
	audio, err := s.gateway.Synthesize(ctx, text, s.voice)
	if err != nil {
		if e, ok := apperr.As(err); ok {
			switch e.Kind {
			case apperr.KindInvalidCredentials, apperr.KindQuotaExceeded,
				apperr.KindRequestTimeout, apperr.KindAPIError:
				return "", e
			}
		}
		return "", apperr.New(apperr.KindTextToSpeech, "TEXT_TO_SPEECH_ERROR",
			"text-to-speech conversion failed").Wrap(err).With("session_id", sessionID)
	}

	filename := fmt.Sprintf("response_%d_%s.%s", sessionID, strings.ReplaceAll(uuid.NewString(), "-", ""), outputFormat)
	outputPath := filepath.Join(s.audioDir, filename)
	if err := os.WriteFile(outputPath, audio, 0o644); err != nil {
		return "", apperr.New(apperr.KindTextToSpeech, "TEXT_TO_SPEECH_ERROR",
			"failed to write synthesized audio").Wrap(err).With("output_path", outputPath)
	}
	return outputPath, nil
}

func (s *Service) storeAudioMetadata(ctx context.Context, messageID uint, provenance store.Document, inputPath, outputPath, transcription string) error {
	meta := &store.AudioMetadata{
		MessageID:          messageID,
		OutputAudioPath:    outputPath,
		OutputAudioFormat:  outputFormat,
		TranscriptionText:  transcription,
		TTSVoice:           s.voice,
		AdditionalMetadata: provenance,
	}
	if provenance != nil {
		if name, ok := provenance["original_filename"].(string); ok {
			meta.InputAudioPath = name
		}
		if ext, ok := provenance["file_extension"].(string); ok {
			meta.InputAudioFormat = strings.TrimPrefix(ext, ".")
		}
	}
	if strings.EqualFold(meta.InputAudioFormat, "wav") {
		if seconds, err := wavDurationSeconds(inputPath); err == nil {
			meta.InputAudioDuration = seconds
		}
	}

	return s.store.CreateAudioMetadata(ctx, meta)
}

// wrapErr keeps classified domain errors intact and folds everything else
// into the catch-all voice processing failure.
func (s *Service) wrapErr(err error, sessionID uint) error {
	if _, ok := apperr.As(err); ok {
		return err
	}
	return apperr.New(apperr.KindVoiceProcessing, "VOICE_SERVICE_ERROR",
		"voice processing failed").Wrap(err).With("session_id", sessionID)
}

// AudioFilePath resolves a synthesized audio file by name, confined to the
// audio directory. Returns "" when the file does not exist.
func (s *Service) AudioFilePath(filename string) string {
	name := filepath.Base(filename)
	path := filepath.Join(s.audioDir, name)
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// CleanupOldAudio deletes synthesized files older than maxAge and returns
// how many were removed.
func (s *Service) CleanupOldAudio(maxAge time.Duration) int {
	matches, err := filepath.Glob(filepath.Join(s.audioDir, "*."+outputFormat))
	if err != nil {
		return 0
	}
	cutoff := time.Now().Add(-maxAge)
	deleted := 0
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			log.Printf("audio cleanup: remove %s: %v", path, err)
			continue
		}
		deleted++
	}
	return deleted
}
