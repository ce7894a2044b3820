package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DiskStore keeps clips as files under a root directory.
type DiskStore struct {
	root string
	now  func() time.Time
}

// NewDiskStore creates root if needed.
func NewDiskStore(root string) (*DiskStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root: %w", err)
	}
	return &DiskStore{root: abs, now: time.Now}, nil
}

func (d *DiskStore) path(key string) (string, error) {
	if !validKey(key) {
		return "", ErrInvalidKey
	}
	p := filepath.Join(d.root, key)
	if rel, err := filepath.Rel(d.root, p); err != nil || rel != key {
		return "", ErrInvalidKey
	}
	return p, nil
}

// Save keeps contentType recoverable from the key: when the sanitized name's
// extension does not map to it, a matching extension is appended.
func (d *DiskStore) Save(ctx context.Context, name, contentType string, r io.Reader) (string, int64, error) {
	key := withExtension(ObjectName(name, d.now()), contentType)
	p, err := d.path(key)
	if err != nil {
		return "", 0, err
	}

	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return "", 0, ErrExists
	}
	if err != nil {
		return "", 0, fmt.Errorf("storage: create %s: %w", key, err)
	}

	n, err := io.Copy(f, &ctxReader{ctx: ctx, r: r})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(p)
		return "", 0, fmt.Errorf("storage: write %s: %w", key, err)
	}
	return key, n, nil
}

func (d *DiskStore) Open(_ context.Context, key string) (io.ReadCloser, Info, error) {
	p, err := d.path(key)
	if err != nil {
		return nil, Info{}, err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, Info{}, ErrNotFound
	}
	if err != nil {
		return nil, Info{}, fmt.Errorf("storage: open %s: %w", key, err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, Info{}, fmt.Errorf("storage: stat %s: %w", key, err)
	}
	return f, Info{Size: st.Size(), ContentType: contentTypeFor(key)}, nil
}

func (d *DiskStore) Remove(_ context.Context, key string) error {
	p, err := d.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: remove %s: %w", key, err)
	}
	return nil
}

var videoTypes = map[string]string{
	".webm": "video/webm",
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
}

// withExtension appends the extension of contentType to key unless key
// already carries one that maps back to it.
func withExtension(key, contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil || mt == "" {
		return key
	}
	if contentTypeFor(key) == mt {
		return key
	}
	for ext, ct := range videoTypes {
		if ct == mt {
			return key + ext
		}
	}
	if exts, _ := mime.ExtensionsByType(mt); len(exts) > 0 {
		return key + exts[0]
	}
	return key
}

func contentTypeFor(key string) string {
	ext := strings.ToLower(filepath.Ext(key))
	if ct, ok := videoTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
