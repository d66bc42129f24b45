package models

import (
	"time"

	"github.com/heimdex/heimdex-backend/pkg/enums"
)

// Asset is a single media file tracked through the ingest lifecycle.
// The primary key is content derived, so re-registering the same bytes
// lands on the same row.
type Asset struct {
	AssetID      string            `gorm:"column:asset_id;primaryKey"`
	OrgID        string            `gorm:"column:org_id;not null;index"`
	SourceURI    string            `gorm:"column:source_uri;not null"`
	SizeBytes    *int64            `gorm:"column:size_bytes"`
	Hash         *string           `gorm:"column:hash"`
	HashQuality  *string           `gorm:"column:hash_quality"`
	ContentType  *string           `gorm:"column:content_type"`
	CreatedTime  *time.Time        `gorm:"column:created_time"`
	ModifiedTime *time.Time        `gorm:"column:modified_time"`
	Status       enums.AssetStatus `gorm:"column:status;not null;default:pending"`
	CreatedAt    time.Time         `gorm:"column:created_at;autoCreateTime"`
	ModifiedAt   time.Time         `gorm:"column:modified_at;autoUpdateTime"`

	Sidecar    *Sidecar    `gorm:"foreignKey:AssetID;references:AssetID;constraint:OnDelete:CASCADE"`
	Thumbnails []Thumbnail `gorm:"foreignKey:AssetID;references:AssetID;constraint:OnDelete:CASCADE"`
}
