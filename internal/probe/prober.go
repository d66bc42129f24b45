package probe

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/heimdex/heimdex-backend/internal/identity"
	"github.com/heimdex/heimdex-backend/pkg/errors"
)

// Prober runs ffprobe against local media and produces normalized
// sidecar documents.
type Prober struct {
	timeout           time.Duration
	strongHashCeiling int64
}

func NewProber(timeout time.Duration, strongHashCeiling int64) *Prober {
	return &Prober{timeout: timeout, strongHashCeiling: strongHashCeiling}
}

// Probe derives the asset identity, runs ffprobe, and normalizes the
// output. The source URI must be local (file:// or a bare path).
func (p *Prober) Probe(ctx context.Context, sourceURI string) (*Sidecar, *identity.AssetIdentity, error) {
	path, err := ResolveLocalPath(sourceURI)
	if err != nil {
		return nil, nil, err
	}

	ident, err := identity.DeriveLocal(path, p.strongHashCeiling)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, errors.Wrap(errors.CodeNotFound, err, "source file not found")
		}
		return nil, nil, errors.Wrap(errors.CodeProbeFailure, err, "derive asset identity")
	}

	src, err := buildSourceContext(path, ident)
	if err != nil {
		return nil, nil, errors.Wrap(errors.CodeProbeFailure, err, "stat source file")
	}

	raw, err := p.runFFProbe(ctx, path)
	if err != nil {
		return nil, nil, err
	}

	doc, err := Parse(raw, *src)
	if err != nil {
		return nil, nil, errors.Wrap(errors.CodeProbeFailure, err, "normalize probe output")
	}
	return doc, ident, nil
}

// ResolveLocalPath maps a file:// URI or bare path to a filesystem path.
func ResolveLocalPath(sourceURI string) (string, error) {
	parsed, err := url.Parse(sourceURI)
	if err != nil {
		return "", errors.Wrap(errors.CodeValidation, err, "invalid source uri")
	}
	switch parsed.Scheme {
	case "":
		return sourceURI, nil
	case "file":
		return filepath.FromSlash(parsed.Path), nil
	default:
		return "", errors.New(errors.CodeValidation, fmt.Sprintf("unsupported uri scheme %q", parsed.Scheme))
	}
}

func buildSourceContext(path string, ident *identity.AssetIdentity) (*SourceContext, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	size := info.Size()
	modified := info.ModTime().UTC()
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	var hash *HashInfo
	if ident.Hash != nil {
		hash = &HashInfo{Algo: ident.Hash.Algo, Value: ident.Hash.Value}
	}
	var quality *string
	if ident.Quality != "" {
		q := ident.Quality
		quality = &q
	}

	return &SourceContext{
		Type:         SourceLocal,
		URI:          (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(),
		Filename:     filepath.Base(path),
		SizeBytes:    &size,
		AssetID:      ident.AssetID,
		CreatedTime:  birthTime(info),
		ModifiedTime: &modified,
		Hash:         hash,
		HashQuality:  quality,
	}, nil
}

func (p *Prober) runFFProbe(ctx context.Context, path string) ([]byte, error) {
	timeout := p.timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_format",
		"-show_streams",
		"-print_format", "json",
		path,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errors.Wrap(errors.CodeProbeTimeout, err, "ffprobe timed out")
		}
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return nil, errors.New(errors.CodeProbeFailure, "ffprobe failed").WithDetails(detail)
	}

	return stdout.Bytes(), nil
}

// birthTime reports the filesystem creation time where the platform
// exposes one. Linux stat does not, so the parser falls back to container
// tags or mtime.
func birthTime(_ os.FileInfo) *time.Time {
	return nil
}

var (
	versionMu    sync.Mutex
	versionCache = map[string]string{}
)

// binaryVersion reports the first line of `<tool> -version`, cached for
// the process lifetime.
func binaryVersion(tool string, args ...string) string {
	versionMu.Lock()
	defer versionMu.Unlock()

	if cached, ok := versionCache[tool]; ok {
		return cached
	}

	version := "unknown"
	out, err := exec.Command(tool, args...).CombinedOutput()
	if err == nil {
		trimmed := strings.TrimSpace(string(out))
		if trimmed != "" {
			version = strings.TrimSpace(strings.SplitN(trimmed, "\n", 2)[0])
		}
	}
	versionCache[tool] = version
	return version
}
