package models

import "time"

// Thumbnail is one extracted frame for an asset, ordered by Idx.
type Thumbnail struct {
	ID         uint      `gorm:"column:id;primaryKey;autoIncrement"`
	AssetID    string    `gorm:"column:asset_id;not null;uniqueIndex:uq_thumbnails_asset_idx"`
	OrgID      string    `gorm:"column:org_id;not null;index"`
	Idx        int       `gorm:"column:idx;not null;uniqueIndex:uq_thumbnails_asset_idx"`
	TsMs       *int64    `gorm:"column:ts_ms"`
	StorageKey string    `gorm:"column:storage_key;not null"`
	Width      *int      `gorm:"column:width"`
	Height     *int      `gorm:"column:height"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}
