package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrNotFound is returned when the requested object does not exist.
var ErrNotFound = errors.New("object not found")

// Local is a filesystem-backed store rooted at a base directory. Writes
// go through a temp file and rename so readers never observe partial
// objects.
type Local struct {
	root string
}

func NewLocal(root string) (*Local, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("storage root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage root: %w", err)
	}
	return &Local{root: abs}, nil
}

// Root returns the absolute base directory.
func (l *Local) Root() string {
	return l.root
}

func (l *Local) resolve(key string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(key))
	if cleaned == "." || strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(l.root, cleaned), nil
}

func (l *Local) Exists(_ context.Context, key string) (bool, error) {
	path, err := l.resolve(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (l *Local) Stat(_ context.Context, key string) (*ObjectInfo, error) {
	path, err := l.resolve(key)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ObjectInfo{
		Key:       key,
		SizeBytes: info.Size(),
		UpdatedAt: info.ModTime().UTC(),
	}, nil
}

func (l *Local) Read(_ context.Context, key string) ([]byte, error) {
	path, err := l.resolve(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

func (l *Local) Write(_ context.Context, key string, payload []byte, _ string) (*ObjectInfo, error) {
	path, err := l.resolve(key)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".write-*")
	if err != nil {
		return nil, err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return nil, err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return nil, err
	}

	sum := sha256.Sum256(payload)
	return &ObjectInfo{
		Key:       key,
		SizeBytes: int64(len(payload)),
		ETag:      hex.EncodeToString(sum[:]),
		UpdatedAt: time.Now().UTC(),
	}, nil
}

func (l *Local) Delete(_ context.Context, key string) error {
	path, err := l.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// PresignPut returns a file URI the caller writes to directly. There is
// no signing for local storage; the URI is the contract.
func (l *Local) PresignPut(key, contentType string, _ time.Duration) (*PresignedURL, error) {
	path, err := l.resolve(key)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &PresignedURL{
		URL:     fileURI(path),
		Method:  "PUT",
		Headers: map[string]string{"Content-Type": contentType},
	}, nil
}

func (l *Local) PresignGet(key string, _ time.Duration) (*PresignedURL, error) {
	path, err := l.resolve(key)
	if err != nil {
		return nil, err
	}
	return &PresignedURL{URL: fileURI(path), Method: "GET"}, nil
}

func fileURI(path string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return u.String()
}
