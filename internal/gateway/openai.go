package gateway

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/ahmedesmail07/ai-agent-platform/internal/apperr"
)

// OpenAI implements Gateway on the OpenAI API: chat completions for text,
// whisper for transcription and tts for synthesis.
type OpenAI struct {
	client          *openai.Client
	transcribeModel string
	speechModel     string
}

// OpenAIConfig configures the OpenAI gateway. BaseURL is optional and
// exists for API-compatible proxies.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
}

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)
	return &OpenAI{
		client:          &client,
		transcribeModel: openai.AudioModelWhisper1,
		speechModel:     string(openai.SpeechModelTTS1),
	}
}

func (g *OpenAI) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	completion, err := g.client.Chat.Completions.New(ctx, buildParams(req))
	if err != nil {
		return "", classifyError(err, "chat_completion")
	}
	if len(completion.Choices) == 0 || completion.Choices[0].Message.Content == "" {
		return "", emptyCompletion(req)
	}
	return completion.Choices[0].Message.Content, nil
}

func (g *OpenAI) CompleteStream(ctx context.Context, req CompletionRequest, emit func(delta string) error) (string, error) {
	stream := g.client.Chat.Completions.NewStreaming(ctx, buildParams(req))
	defer stream.Close()

	acc := openai.ChatCompletionAccumulator{}
	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		if err := emit(delta); err != nil {
			return "", err
		}
	}
	if err := stream.Err(); err != nil {
		return "", classifyError(err, "chat_completion_stream")
	}
	if len(acc.Choices) == 0 || acc.Choices[0].Message.Content == "" {
		return "", emptyCompletion(req)
	}
	return acc.Choices[0].Message.Content, nil
}

func (g *OpenAI) Transcribe(ctx context.Context, audioPath string) (string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return "", apperr.New(apperr.KindSpeechToText, "SPEECH_TO_TEXT_ERROR",
			"failed to open audio file").Wrap(err).With("audio_file", audioPath)
	}
	defer f.Close()

	transcript, err := g.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		Model: g.transcribeModel,
		File:  f,
	})
	if err != nil {
		return "", classifyError(err, "transcription")
	}
	return strings.TrimSpace(transcript.Text), nil
}

func (g *OpenAI) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	res, err := g.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model: g.speechModel,
		Voice: openai.AudioSpeechNewParamsVoice(voice),
		Input: text,
	})
	if err != nil {
		return nil, classifyError(err, "speech_synthesis")
	}
	defer res.Body.Close()

	audio, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, apperr.New(apperr.KindTextToSpeech, "TEXT_TO_SPEECH_ERROR",
			"failed to read synthesized audio").Wrap(err)
	}
	return audio, nil
}

func buildParams(req CompletionRequest) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, len(req.Turns))
	for i, turn := range req.Turns {
		switch turn.Role {
		case RoleSystem:
			messages[i] = openai.SystemMessage(turn.Content)
		case RoleAssistant:
			messages[i] = openai.AssistantMessage(turn.Content)
		default:
			messages[i] = openai.UserMessage(turn.Content)
		}
	}
	return openai.ChatCompletionNewParams{
		Messages:    messages,
		Model:       req.Model,
		MaxTokens:   openai.Int(req.MaxTokens),
		Temperature: openai.Float(req.Temperature),
	}
}

func emptyCompletion(req CompletionRequest) *apperr.Error {
	return apperr.New(apperr.KindEmptyCompletion, "OPENAI_CHAT_COMPLETION_ERROR",
		"no response generated").
		With("model", req.Model).
		With("messages_count", len(req.Turns))
}
