package models

import (
	"encoding/json"
	"time"
)

// AuditEvent is an append-only record of a tenant-visible action.
type AuditEvent struct {
	ID        uint            `gorm:"column:id;primaryKey;autoIncrement"`
	OrgID     string          `gorm:"column:org_id;not null;index"`
	UserID    *string         `gorm:"column:user_id"`
	Action    string          `gorm:"column:action;not null"`
	Meta      json.RawMessage `gorm:"column:meta_jsonb;type:jsonb"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
}
