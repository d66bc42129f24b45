package models

import (
	"encoding/json"
	"time"
)

// Organization is the tenant root all media rows hang off.
type Organization struct {
	OrgID     string          `gorm:"column:org_id;primaryKey"`
	Plan      *string         `gorm:"column:plan"`
	Limits    json.RawMessage `gorm:"column:limits_jsonb;type:jsonb"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`

	Assets []Asset `gorm:"foreignKey:OrgID;references:OrgID;constraint:OnDelete:CASCADE"`
}
