package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ahmedesmail07/ai-agent-platform/internal/apperr"
)

// Store persists agents, chat sessions, messages and audio metadata behind
// a single relational handle. Every mutation commits or rolls back as a
// unit.
type Store struct {
	db *gorm.DB
}

// Open connects to the database selected by databaseURL and migrates the
// schema. The driver is picked by DSN scheme: postgres:// and mysql:// use
// their servers, anything else is treated as a sqlite file path. An empty
// URL falls back to a local sqlite file.
func Open(databaseURL string) (*Store, error) {
	dsn := strings.TrimSpace(databaseURL)

	var dialector gorm.Dialector
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		dialector = postgres.Open(dsn)
	case strings.HasPrefix(dsn, "mysql://"):
		dialector = mysql.Open(strings.TrimPrefix(dsn, "mysql://"))
	case dsn == "":
		dialector = sqlite.Open("agent_platform.db?_foreign_keys=on")
	default:
		if !strings.Contains(dsn, "_foreign_keys") {
			dsn += "?_foreign_keys=on"
		}
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return New(db)
}

// New wraps an existing gorm handle and migrates the schema.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Agent{}, &ChatSession{}, &Message{}, &AudioMetadata{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateAgent inserts a new agent record.
func (s *Store) CreateAgent(ctx context.Context, agent *Agent) error {
	if err := s.db.WithContext(ctx).Create(agent).Error; err != nil {
		return apperr.New(apperr.KindCreationFailed, "AGENT_CREATION_ERROR",
			"failed to create agent").Wrap(err).With("agent_name", agent.Name)
	}
	return nil
}

// Agent fetches an agent by id.
func (s *Store) Agent(ctx context.Context, agentID uint) (*Agent, error) {
	var agent Agent
	err := s.db.WithContext(ctx).First(&agent, agentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.AgentNotFound(agentID)
	}
	if err != nil {
		return nil, fmt.Errorf("load agent %d: %w", agentID, err)
	}
	return &agent, nil
}

// Agents lists agents with pagination.
func (s *Store) Agents(ctx context.Context, skip, limit int) ([]Agent, error) {
	if limit <= 0 {
		limit = 100
	}
	var agents []Agent
	err := s.db.WithContext(ctx).Order("id asc").Offset(skip).Limit(limit).Find(&agents).Error
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	return agents, nil
}

// ActiveAgents lists agents whose active flag is set.
func (s *Store) ActiveAgents(ctx context.Context) ([]Agent, error) {
	var agents []Agent
	err := s.db.WithContext(ctx).Where("is_active = ?", true).Order("id asc").Find(&agents).Error
	if err != nil {
		return nil, fmt.Errorf("list active agents: %w", err)
	}
	return agents, nil
}

// UpdateAgent applies a partial update. An empty patch returns the agent
// unchanged.
func (s *Store) UpdateAgent(ctx context.Context, agentID uint, patch AgentPatch) (*Agent, error) {
	if patch.Empty() {
		return s.Agent(ctx, agentID)
	}

	updates := map[string]any{}
	if patch.Name != nil {
		updates["name"] = *patch.Name
	}
	if patch.Description != nil {
		updates["description"] = *patch.Description
	}
	if patch.AgentType != nil {
		updates["agent_type"] = *patch.AgentType
	}
	if patch.IsActive != nil {
		updates["is_active"] = *patch.IsActive
	}
	if patch.Configuration != nil {
		updates["configuration"] = *patch.Configuration
	}
	if patch.Capabilities != nil {
		updates["capabilities"] = *patch.Capabilities
	}

	var updated Agent
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&updated, agentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.AgentNotFound(agentID)
			}
			return err
		}
		if err := tx.Model(&updated).Updates(updates).Error; err != nil {
			return err
		}
		return tx.First(&updated, agentID).Error
	})
	if err != nil {
		if e, ok := apperr.As(err); ok {
			return nil, e
		}
		return nil, apperr.New(apperr.KindUpdateFailed, "AGENT_UPDATE_ERROR",
			"failed to update agent").Wrap(err).With("agent_id", agentID)
	}
	return &updated, nil
}

// DeleteAgent removes an agent and cascades through its sessions, their
// messages and any audio metadata. The cascade is issued explicitly so it
// behaves the same on every supported driver.
func (s *Store) DeleteAgent(ctx context.Context, agentID uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sessionIDs []uint
		if err := tx.Model(&ChatSession{}).Where("agent_id = ?", agentID).
			Pluck("id", &sessionIDs).Error; err != nil {
			return err
		}
		if len(sessionIDs) > 0 {
			if err := deleteSessionTrees(tx, sessionIDs); err != nil {
				return err
			}
			if err := tx.Delete(&ChatSession{}, sessionIDs).Error; err != nil {
				return err
			}
		}

		res := tx.Delete(&Agent{}, agentID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.AgentNotFound(agentID)
		}
		return nil
	})
	if err != nil {
		if e, ok := apperr.As(err); ok {
			return e
		}
		return apperr.New(apperr.KindDeletionFailed, "AGENT_DELETION_ERROR",
			"failed to delete agent").Wrap(err).With("agent_id", agentID)
	}
	return nil
}

// deleteSessionTrees removes the messages of the given sessions along with
// any attached audio metadata. The session rows themselves are left to the
// caller.
func deleteSessionTrees(tx *gorm.DB, sessionIDs []uint) error {
	var messageIDs []uint
	if err := tx.Model(&Message{}).Where("session_id IN ?", sessionIDs).
		Pluck("id", &messageIDs).Error; err != nil {
		return err
	}
	if len(messageIDs) == 0 {
		return nil
	}
	if err := tx.Where("message_id IN ?", messageIDs).Delete(&AudioMetadata{}).Error; err != nil {
		return err
	}
	return tx.Where("session_id IN ?", sessionIDs).Delete(&Message{}).Error
}

// CreateSession starts a session for an existing agent.
func (s *Store) CreateSession(ctx context.Context, agentID uint) (*ChatSession, error) {
	if _, err := s.Agent(ctx, agentID); err != nil {
		return nil, err
	}
	session := &ChatSession{AgentID: agentID}
	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		return nil, apperr.New(apperr.KindCreationFailed, "SESSION_CREATION_ERROR",
			"failed to create session").Wrap(err).With("agent_id", agentID)
	}
	return session, nil
}

// Session fetches a session by id.
func (s *Store) Session(ctx context.Context, sessionID uint) (*ChatSession, error) {
	var session ChatSession
	err := s.db.WithContext(ctx).First(&session, sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.SessionNotFound(sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("load session %d: %w", sessionID, err)
	}
	return &session, nil
}

// SessionsByAgent lists an agent's sessions with pagination.
func (s *Store) SessionsByAgent(ctx context.Context, agentID uint, skip, limit int) ([]ChatSession, error) {
	if limit <= 0 {
		limit = 100
	}
	var sessions []ChatSession
	err := s.db.WithContext(ctx).Where("agent_id = ?", agentID).
		Order("id asc").Offset(skip).Limit(limit).Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("list sessions for agent %d: %w", agentID, err)
	}
	return sessions, nil
}

// DeleteSession removes a session, its messages and their audio metadata.
func (s *Store) DeleteSession(ctx context.Context, sessionID uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := deleteSessionTrees(tx, []uint{sessionID}); err != nil {
			return err
		}
		res := tx.Delete(&ChatSession{}, sessionID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.SessionNotFound(sessionID)
		}
		return nil
	})
	if err != nil {
		if e, ok := apperr.As(err); ok {
			return e
		}
		return apperr.New(apperr.KindDeletionFailed, "SESSION_DELETION_ERROR",
			"failed to delete session").Wrap(err).With("session_id", sessionID)
	}
	return nil
}

// CreateMessage appends a message to a session.
func (s *Store) CreateMessage(ctx context.Context, msg *Message) error {
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return apperr.New(apperr.KindCreationFailed, "MESSAGE_CREATION_ERROR",
			"failed to create message").Wrap(err).With("session_id", msg.SessionID)
	}
	return nil
}

// SessionMessages returns a session's messages in creation order, with any
// audio metadata preloaded. Fails with NotFound when the session is absent.
func (s *Store) SessionMessages(ctx context.Context, sessionID uint) ([]Message, error) {
	if _, err := s.Session(ctx, sessionID); err != nil {
		return nil, err
	}
	var messages []Message
	err := s.db.WithContext(ctx).Preload("Audio").
		Where("session_id = ?", sessionID).
		Order("created_at asc, id asc").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("list messages for session %d: %w", sessionID, err)
	}
	return messages, nil
}

// CreateAudioMetadata attaches audio provenance to a message.
func (s *Store) CreateAudioMetadata(ctx context.Context, meta *AudioMetadata) error {
	if err := s.db.WithContext(ctx).Create(meta).Error; err != nil {
		return apperr.New(apperr.KindAudioMetadata, "AUDIO_METADATA_ERROR",
			"failed to store audio metadata").Wrap(err).With("message_id", meta.MessageID)
	}
	return nil
}

// AudioMetadataByMessage fetches the audio metadata for a message, if any.
func (s *Store) AudioMetadataByMessage(ctx context.Context, messageID uint) (*AudioMetadata, error) {
	var meta AudioMetadata
	err := s.db.WithContext(ctx).Where("message_id = ?", messageID).First(&meta).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load audio metadata for message %d: %w", messageID, err)
	}
	return &meta, nil
}
