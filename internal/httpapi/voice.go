package httpapi

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/ahmedesmail07/ai-agent-platform/internal/apperr"
	"github.com/ahmedesmail07/ai-agent-platform/internal/store"
)

// maxVoiceUploadBytes caps a multipart voice upload.
const maxVoiceUploadBytes = 25 << 20

var allowedAudioExtensions = map[string]bool{
	".wav":  true,
	".mp3":  true,
	".m4a":  true,
	".webm": true,
}

type voiceResponse struct {
	Message       string `json:"message"`
	SessionID     uint   `json:"session_id"`
	AudioURL      string `json:"audio_url"`
	Transcription string `json:"transcription"`
}

func (s *Server) handleVoiceUpload(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uintParam(r, "sessionID")
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxVoiceUploadBytes)
	if err := r.ParseMultipartForm(maxVoiceUploadBytes); err != nil {
		s.respondValidation(w, r, "invalid multipart body")
		return
	}

	file, header, err := r.FormFile("audio_file")
	if err != nil {
		s.respondValidation(w, r, "audio_file is required")
		return
	}
	defer file.Close()

	// The format gate runs before anything touches the gateway.
	ext := strings.ToLower(filepath.Ext(header.Filename))
	if header.Filename == "" || !allowedAudioExtensions[ext] {
		s.metrics.VoiceStages.WithLabelValues("validate", "rejected").Inc()
		s.respondAppError(w, r, apperr.UnsupportedMedia(ext))
		return
	}

	tmp, err := os.CreateTemp("", "voice-upload-*"+ext)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	defer os.Remove(tmp.Name())

	size, err := io.Copy(tmp, file)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}

	provenance := store.Document{
		"original_filename": header.Filename,
		"file_size":         size,
		"content_type":      header.Header.Get("Content-Type"),
		"file_extension":    ext,
	}

	result, err := s.voice.ProcessVoiceMessage(r.Context(), sessionID, tmp.Name(), provenance)
	if err != nil {
		s.metrics.VoiceStages.WithLabelValues("pipeline", "error").Inc()
		s.respondAppError(w, r, err)
		return
	}
	s.metrics.VoiceStages.WithLabelValues("pipeline", "ok").Inc()

	s.respondJSON(w, http.StatusOK, voiceResponse{
		Message:       result.AgentMessage.Content,
		SessionID:     sessionID,
		AudioURL:      "/audio/" + filepath.Base(result.OutputPath),
		Transcription: result.UserMessage.Content,
	})
}
