// Package storage keeps uploaded clips. Clips are write-once: a key is never
// reused and stored bytes are never modified.
package storage

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/okian/kaushal/internal/domain/model"
)

// DefaultClipName is used when the client supplies no usable filename.
const DefaultClipName = "clip.webm"

const maxNameLen = 100

// Info describes a stored clip.
type Info = model.ClipInfo

// ClipStore persists clips under server-chosen keys.
type ClipStore interface {
	// Save streams r to a fresh key derived from name and returns it with the byte count.
	Save(ctx context.Context, name, contentType string, r io.Reader) (string, int64, error)
	// Open returns the clip stored at key.
	Open(ctx context.Context, key string) (io.ReadCloser, Info, error)
	// Remove deletes key. Used only to undo a Save whose assessment was not accepted.
	Remove(ctx context.Context, key string) error
}

var (
	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9.-]`)
	underscores = regexp.MustCompile(`_+`)
)

// SanitizeFilename reduces a client filename to a safe base name.
func SanitizeFilename(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	name = unsafeChars.ReplaceAllString(name, "_")
	name = underscores.ReplaceAllString(name, "_")
	name = strings.TrimLeft(name, ".")
	if len(name) > maxNameLen {
		name = name[:maxNameLen]
	}
	if strings.Trim(name, "_") == "" {
		return DefaultClipName
	}
	return name
}

// ObjectName builds the stored key: <unixMillis>-<random>-<sanitized name>.
func ObjectName(name string, now time.Time) string {
	return fmt.Sprintf("%d-%d-%s", now.UnixMilli(), rand.IntN(1e9), SanitizeFilename(name))
}

// validKey rejects keys that could escape the store namespace.
func validKey(key string) bool {
	if key == "" || key != filepath.Base(key) || strings.ContainsAny(key, `/\`) {
		return false
	}
	return key != "." && key != ".." && !strings.HasPrefix(key, ".")
}
