package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ExplorerSession struct {
	Id        uuid.UUID      `gorm:"type:uuid;primaryKey"`
	Dataset   datatypes.JSON `gorm:"type:jsonb;not null"`
	Version   int64          `gorm:"not null;default:1"`
	CreatedAt time.Time      `gorm:"autoCreateTime"`
	UpdatedAt time.Time      `gorm:"index"`
}

func (ExplorerSession) TableName() string {
	return "explorer_sessions"
}

// ExplorerInteraction rows are insert-only; Seq orders them within a session.
type ExplorerInteraction struct {
	Id        uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SessionId uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_interaction_session_seq"`
	Seq       int64          `gorm:"not null;uniqueIndex:idx_interaction_session_seq"`
	Query     string         `gorm:"type:text;not null"`
	Payload   datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt time.Time      `gorm:"autoCreateTime"`
}

func (ExplorerInteraction) TableName() string {
	return "explorer_interactions"
}
