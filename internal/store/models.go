package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Message sender tags. Only these two values are ever persisted.
const (
	SenderUser  = "user"
	SenderAgent = "agent"
)

// Document is an open key-value JSON column (capabilities, provenance).
type Document map[string]any

func (d Document) Value() (driver.Value, error) {
	if d == nil {
		return nil, nil
	}
	return json.Marshal(d)
}

func (d *Document) Scan(src any) error {
	if src == nil {
		*d = nil
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, d)
	case string:
		return json.Unmarshal([]byte(v), d)
	default:
		return fmt.Errorf("unsupported document column type %T", src)
	}
}

// AgentConfig is the typed agent configuration column. All fields are
// optional; consumers fall back to service defaults when a field is unset.
type AgentConfig struct {
	Model         string   `json:"model,omitempty"`
	MaxTokens     int64    `json:"max_tokens,omitempty"`
	Temperature   *float64 `json:"temperature,omitempty"`
	SystemPrompt  string   `json:"system_prompt,omitempty"`
	KnowledgeBase string   `json:"knowledge_base,omitempty"`
}

func (c AgentConfig) Value() (driver.Value, error) {
	return json.Marshal(c)
}

func (c *AgentConfig) Scan(src any) error {
	if src == nil {
		*c = AgentConfig{}
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, c)
	case string:
		return json.Unmarshal([]byte(v), c)
	default:
		return fmt.Errorf("unsupported config column type %T", src)
	}
}

// Agent is a configured persona driving completion parameters.
type Agent struct {
	ID            uint          `gorm:"primaryKey" json:"id"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	Name          string        `gorm:"size:255;index;not null" json:"name"`
	Description   string        `gorm:"type:text" json:"description"`
	AgentType     string        `gorm:"size:100;not null" json:"agent_type"`
	IsActive      bool          `gorm:"default:true" json:"is_active"`
	Configuration AgentConfig   `gorm:"type:json" json:"configuration"`
	Capabilities  Document      `gorm:"type:json" json:"capabilities"`
	Sessions      []ChatSession `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// ChatSession is a conversation thread tied to one agent. The agent must
// exist at creation time but may be deleted independently afterwards.
type ChatSession struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	AgentID   uint      `gorm:"index;not null" json:"agent_id"`
	Messages  []Message `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"-"`
}

// Message is one conversational turn. Creation order within a session
// defines replay order.
type Message struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	SessionID uint           `gorm:"index;not null" json:"session_id"`
	Sender    string         `gorm:"size:10;not null" json:"sender"`
	Content   string         `gorm:"type:text;not null" json:"content"`
	Audio     *AudioMetadata `gorm:"constraint:OnDelete:CASCADE" json:"audio,omitempty"`
}

// AudioMetadata records voice-interaction provenance for one message.
type AudioMetadata struct {
	ID                  uint      `gorm:"primaryKey" json:"id"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
	MessageID           uint      `gorm:"uniqueIndex;not null" json:"message_id"`
	InputAudioPath      string    `gorm:"size:500" json:"input_audio_path,omitempty"`
	OutputAudioPath     string    `gorm:"size:500" json:"output_audio_path,omitempty"`
	InputAudioFormat    string    `gorm:"size:10" json:"input_audio_format,omitempty"`
	OutputAudioFormat   string    `gorm:"size:10" json:"output_audio_format,omitempty"`
	InputAudioDuration  int       `json:"input_audio_duration,omitempty"`
	OutputAudioDuration int       `json:"output_audio_duration,omitempty"`
	TranscriptionText   string    `gorm:"type:text" json:"transcription_text,omitempty"`
	TTSVoice            string    `gorm:"size:50" json:"tts_voice,omitempty"`
	AdditionalMetadata  Document  `gorm:"type:json" json:"additional_metadata,omitempty"`
}

func (AudioMetadata) TableName() string { return "audio_metadata" }

// AgentPatch is a partial-field agent update. Nil fields are left unchanged.
type AgentPatch struct {
	Name          *string      `json:"name,omitempty"`
	Description   *string      `json:"description,omitempty"`
	AgentType     *string      `json:"agent_type,omitempty"`
	IsActive      *bool        `json:"is_active,omitempty"`
	Configuration *AgentConfig `json:"configuration,omitempty"`
	Capabilities  *Document    `json:"capabilities,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p AgentPatch) Empty() bool {
	return p.Name == nil && p.Description == nil && p.AgentType == nil &&
		p.IsActive == nil && p.Configuration == nil && p.Capabilities == nil
}
