package enums

import "fmt"

// AssetStatus describes the allowed values for the `status` column in assets.
type AssetStatus string

const (
	AssetStatusPending    AssetStatus = "pending"
	AssetStatusQueued     AssetStatus = "queued"
	AssetStatusProcessing AssetStatus = "processing"
	AssetStatusReady      AssetStatus = "ready"
	AssetStatusFailed     AssetStatus = "failed"
)

var validAssetStatuses = []AssetStatus{
	AssetStatusPending,
	AssetStatusQueued,
	AssetStatusProcessing,
	AssetStatusReady,
	AssetStatusFailed,
}

// IsValid reports whether the value matches the canonical asset status enum.
func (s AssetStatus) IsValid() bool {
	for _, candidate := range validAssetStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status permits no further processing
// without resubmission.
func (s AssetStatus) IsTerminal() bool {
	return s == AssetStatusReady || s == AssetStatusFailed
}

// CanTransitionTo enforces the monotonic asset lifecycle. Failed assets may
// be resubmitted, which returns them to queued.
func (s AssetStatus) CanTransitionTo(next AssetStatus) bool {
	switch s {
	case AssetStatusPending:
		return next == AssetStatusQueued
	case AssetStatusQueued:
		return next == AssetStatusProcessing
	case AssetStatusProcessing:
		return next == AssetStatusReady || next == AssetStatusFailed
	case AssetStatusFailed:
		return next == AssetStatusQueued
	default:
		return false
	}
}

// ParseAssetStatus converts the raw string to AssetStatus.
func ParseAssetStatus(value string) (AssetStatus, error) {
	for _, candidate := range validAssetStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid asset status %q", value)
}
