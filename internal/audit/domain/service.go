package domain

import (
	"context"
	"errors"
	"time"

	"github.com/UrrutyLabs/encuentraya-payments/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrInvalidAction    = errors.New("invalid_action")
	ErrInvalidPageToken = errors.New("invalid_page_token")
)

type AuditLog struct {
	ID         snowflake.ID   `json:"id" gorm:"primaryKey"`
	ActorType  string         `json:"actor_type" gorm:"type:text;not null"`
	ActorID    *string        `json:"actor_id,omitempty" gorm:"type:text"`
	Action     string         `json:"action" gorm:"type:text;not null"`
	TargetType string         `json:"target_type" gorm:"type:text;not null"`
	TargetID   *string        `json:"target_id,omitempty" gorm:"type:text"`
	Metadata   datatypes.JSON `json:"metadata" gorm:"type:jsonb;not null"`
	CreatedAt  time.Time      `json:"created_at" gorm:"not null"`
}

func (AuditLog) TableName() string { return "audit_logs" }

type ListAuditLogRequest struct {
	pagination.Pagination
	Action     string
	TargetType string
	TargetID   string
}

type ListAuditLogResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"audit_logs"`
}

type Service interface {
	AuditLog(ctx context.Context, actorType string, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) error
	List(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

type ListFilter struct {
	Action     string
	TargetType string
	TargetID   string
	Cursor     *pagination.Cursor
	Limit      int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*AuditLog, error)
}
