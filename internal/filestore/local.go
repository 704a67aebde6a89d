package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// metaSuffix is appended to a key's path to store its metadata sidecar.
const metaSuffix = ".meta.json"

// Local is a Store backed by a directory tree. Suitable for single-node
// deployments; object storage slots in behind the same interface.
type Local struct {
	root string
}

// NewLocal creates a Local store rooted at dir, creating it if absent.
func NewLocal(dir string) (*Local, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: root directory required", ErrInvalidKey)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o700); err != nil {
		return nil, fmt.Errorf("creating root: %w", err)
	}
	return &Local{root: abs}, nil
}

// resolve validates a key and maps it into the root. Keys must stay
// relative and must not traverse upward.
func (l *Local) resolve(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	clean := path.Clean(key)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %q escapes store root", ErrInvalidKey, key)
	}
	return filepath.Join(l.root, filepath.FromSlash(clean)), nil
}

// Save writes data and its metadata sidecar under key.
func (l *Local) Save(ctx context.Context, key string, data []byte, metadata map[string]string) (string, error) {
	full, err := l.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o700); err != nil {
		return "", fmt.Errorf("creating directory for %s: %w", key, err)
	}
	if err := os.WriteFile(full, data, 0o600); err != nil {
		return "", fmt.Errorf("writing %s: %w", key, err)
	}
	if len(metadata) > 0 {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return "", fmt.Errorf("encoding metadata for %s: %w", key, err)
		}
		if err := os.WriteFile(full+metaSuffix, raw, 0o600); err != nil {
			return "", fmt.Errorf("writing metadata for %s: %w", key, err)
		}
	}
	return key, nil
}

// Get reads the data stored under key.
func (l *Local) Get(ctx context.Context, key string) ([]byte, error) {
	full, err := l.resolve(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	return data, nil
}

// Delete removes key and its metadata sidecar if present.
func (l *Local) Delete(ctx context.Context, key string) error {
	full, err := l.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	if err := os.Remove(full + metaSuffix); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting metadata for %s: %w", key, err)
	}
	return nil
}

// Exists reports whether key holds data.
func (l *Local) Exists(ctx context.Context, key string) (bool, error) {
	full, err := l.resolve(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(full)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking %s: %w", key, err)
	}
	return true, nil
}

// List returns all keys under the given prefix, metadata sidecars
// excluded.
func (l *Local) List(ctx context.Context, prefix string) ([]string, error) {
	if prefix != "" {
		if _, err := l.resolve(prefix); err != nil {
			return nil, err
		}
	}
	var keys []string
	err := filepath.WalkDir(l.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		if strings.HasSuffix(p, metaSuffix) {
			return nil
		}
		rel, err := filepath.Rel(l.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", prefix, err)
	}
	return keys, nil
}

// Metadata returns the metadata stored alongside key.
func (l *Local) Metadata(ctx context.Context, key string) (map[string]string, error) {
	full, err := l.resolve(key)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(full); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	raw, err := os.ReadFile(full + metaSuffix)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading metadata for %s: %w", key, err)
	}
	var meta map[string]string
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("decoding metadata for %s: %w", key, err)
	}
	return meta, nil
}

var _ Store = (*Local)(nil)
