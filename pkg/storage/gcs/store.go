package gcs

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/heimdex/heimdex-backend/pkg/storage"
)

// Store adapts the GCS client to the derived-artifact store interface.
type Store struct {
	client *Client
}

func NewStore(client *Client) (*Store, error) {
	if client == nil {
		return nil, errors.New("gcs client is required")
	}
	return &Store{client: client}, nil
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, key)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Store) Stat(ctx context.Context, key string) (*storage.ObjectInfo, error) {
	meta, err := s.client.StatObject(ctx, key)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return objectInfo(key, meta), nil
}

func (s *Store) Read(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.ReadObject(ctx, key)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

func (s *Store) Write(ctx context.Context, key string, payload []byte, contentType string) (*storage.ObjectInfo, error) {
	if err := s.client.WriteObject(ctx, key, payload, contentType); err != nil {
		return nil, err
	}
	meta, err := s.client.StatObject(ctx, key)
	if err != nil {
		return nil, err
	}
	return objectInfo(key, meta), nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.client.DeleteObject(ctx, key)
}

func (s *Store) PresignPut(key, contentType string, expires time.Duration) (*storage.PresignedURL, error) {
	u, err := s.client.SignedURL(s.client.DefaultBucket(), key, contentType, expires)
	if err != nil {
		return nil, err
	}
	headers := map[string]string{}
	if contentType != "" {
		headers["Content-Type"] = contentType
	}
	return &storage.PresignedURL{URL: u, Method: http.MethodPut, Headers: headers}, nil
}

func (s *Store) PresignGet(key string, expires time.Duration) (*storage.PresignedURL, error) {
	u, err := s.client.SignedReadURL(s.client.DefaultBucket(), key, expires)
	if err != nil {
		return nil, err
	}
	return &storage.PresignedURL{URL: u, Method: http.MethodGet}, nil
}

func objectInfo(key string, meta *ObjectMetadata) *storage.ObjectInfo {
	info := &storage.ObjectInfo{Key: key, ETag: meta.ETag}
	if size, err := strconv.ParseInt(meta.Size, 10, 64); err == nil {
		info.SizeBytes = size
	}
	if updated, err := time.Parse(time.RFC3339, meta.Updated); err == nil {
		info.UpdatedAt = updated
	}
	return info
}
