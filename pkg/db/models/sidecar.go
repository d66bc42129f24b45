package models

import "time"

// Sidecar records the normalized probe document written for an asset.
// One row per asset; regeneration overwrites in place.
type Sidecar struct {
	AssetID       string    `gorm:"column:asset_id;primaryKey"`
	OrgID         string    `gorm:"column:org_id;not null;index"`
	SchemaVersion string    `gorm:"column:schema_version;not null"`
	StorageKey    string    `gorm:"column:storage_key;not null"`
	ETag          *string   `gorm:"column:etag"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
}
