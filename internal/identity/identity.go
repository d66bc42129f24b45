package identity

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Hash qualities. Strong identities are content addressed; weak ones are
// metadata fingerprints used when hashing the full file is too expensive.
const (
	QualityStrong = "strong"
	QualityWeak   = "weak"
)

// Hash algorithms recorded alongside the asset.
const (
	AlgoSHA256 = "sha256"
	AlgoMD5    = "md5"
	AlgoWeak   = "weak"
)

// HashInfo carries the digest recorded for an asset.
type HashInfo struct {
	Algo  string
	Value string
}

// AssetIdentity is the canonical identifier derived for a media file.
// The same bytes always map to the same asset ID.
type AssetIdentity struct {
	AssetID string
	Hash    *HashInfo
	Quality string
}

// ComputeSHA256 streams the file and returns the hex digest.
func ComputeSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	digest := sha256.New()
	if _, err := io.Copy(digest, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(digest.Sum(nil)), nil
}

// ComputeWeakSignature returns a deterministic fingerprint from file
// metadata. Sub-second mtime noise is dropped so repeated scans of the
// same file agree.
func ComputeWeakSignature(filename string, sizeBytes *int64, modifiedTime *time.Time) string {
	sizeComponent := "unknown"
	if sizeBytes != nil {
		sizeComponent = fmt.Sprintf("%d", *sizeBytes)
	}
	modifiedComponent := "missing"
	if modifiedTime != nil {
		modifiedComponent = modifiedTime.UTC().Format("2006-01-02T15:04:05Z")
	}
	payload := fmt.Sprintf("%s|%s|%s", filename, sizeComponent, modifiedComponent)
	sum := md5.Sum([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// DeriveLocal returns the canonical identity for a local file. Files at or
// below strongHashCeiling bytes get a full content hash; larger files fall
// back to the weak metadata signature. A ceiling of zero or below means no
// limit.
func DeriveLocal(path string, strongHashCeiling int64) (*AssetIdentity, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	size := info.Size()
	modified := info.ModTime().UTC()

	if strongHashCeiling <= 0 || size <= strongHashCeiling {
		sha, err := ComputeSHA256(path)
		if err != nil {
			return nil, err
		}
		return &AssetIdentity{
			AssetID: "sha256:" + sha,
			Hash:    &HashInfo{Algo: AlgoSHA256, Value: sha},
			Quality: QualityStrong,
		}, nil
	}

	weak := ComputeWeakSignature(filepath.Base(path), &size, &modified)
	return &AssetIdentity{
		AssetID: "weak:" + weak,
		Hash:    &HashInfo{Algo: AlgoWeak, Value: weak},
		Quality: QualityWeak,
	}, nil
}

// ComposeDrive returns the canonical identity for a Google Drive file.
// With a provider-reported checksum the identity is strong even though no
// bytes were read locally.
func ComposeDrive(fileID, md5Checksum string) *AssetIdentity {
	if md5Checksum != "" {
		return &AssetIdentity{
			AssetID: fmt.Sprintf("drive:%s::%s", fileID, md5Checksum),
			Hash:    &HashInfo{Algo: AlgoMD5, Value: md5Checksum},
			Quality: QualityStrong,
		}
	}
	return &AssetIdentity{AssetID: "drive:" + fileID}
}
