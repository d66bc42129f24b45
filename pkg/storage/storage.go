package storage

import (
	"context"
	"fmt"
	"time"
)

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key       string
	SizeBytes int64
	ETag      string
	UpdatedAt time.Time
}

// PresignedURL is an upload or download target handed to a client.
type PresignedURL struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers,omitempty"`
}

// Store abstracts the derived-artifact store. Keys are slash separated
// and rooted at the store, never absolute paths.
type Store interface {
	Exists(ctx context.Context, key string) (bool, error)
	Stat(ctx context.Context, key string) (*ObjectInfo, error)
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, payload []byte, contentType string) (*ObjectInfo, error)
	Delete(ctx context.Context, key string) error
	PresignPut(key, contentType string, expires time.Duration) (*PresignedURL, error)
	PresignGet(key string, expires time.Duration) (*PresignedURL, error)
}

// SidecarKey returns the object key the sidecar document is written under.
func SidecarKey(orgID, assetID string) string {
	return fmt.Sprintf("%s/sidecars/%s.vna.json", orgID, assetID)
}

// ThumbKey returns the object key for one extracted thumbnail.
func ThumbKey(orgID, assetID, name string) string {
	return fmt.Sprintf("%s/%s/thumbs/%s", orgID, assetID, name)
}

// UploadKey returns the object key new uploads are staged under.
func UploadKey(orgID, filename string) string {
	return fmt.Sprintf("%s/uploads/%s", orgID, filename)
}
