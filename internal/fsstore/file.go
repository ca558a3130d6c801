// Package fsstore holds the on-disk primitives: atomic file replacement,
// the locked record file behind kv.FileStore, secure media directories and
// the rotating log file.
package fsstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrInvalidPath = errors.New("fsstore: invalid path")
	ErrLockTimeout = errors.New("fsstore: lock timeout")
	ErrWriteFailed = errors.New("fsstore: write failed")
	ErrCorrupt     = errors.New("fsstore: corrupt file")
	ErrTooLarge    = errors.New("fsstore: content too large")
)

const (
	defaultDirPerm  os.FileMode = 0o700
	defaultFilePerm os.FileMode = 0o600
)

// FileOptions sets permissions for created files and parent directories.
// Zero values mean owner-only.
type FileOptions struct {
	DirPerm  os.FileMode
	FilePerm os.FileMode
}

func (o FileOptions) withDefaults() FileOptions {
	if o.DirPerm == 0 {
		o.DirPerm = defaultDirPerm
	}
	if o.FilePerm == 0 {
		o.FilePerm = defaultFilePerm
	}
	return o
}

func cleanPath(path string) (string, error) {
	if p := strings.TrimSpace(path); p != "" {
		return filepath.Clean(p), nil
	}
	return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
}

func EnsureDir(path string, perm os.FileMode) error {
	dir, err := cleanPath(path)
	if err != nil {
		return err
	}
	if perm == 0 {
		perm = defaultDirPerm
	}
	if err := os.MkdirAll(dir, perm); err != nil {
		return fmt.Errorf("fsstore mkdir %s: %w", dir, err)
	}
	return nil
}

// ReadJSON decodes path into out. A missing or blank file reports false.
func ReadJSON(path string, out any) (bool, error) {
	p, err := cleanPath(path)
	if err != nil {
		return false, err
	}
	data, err := os.ReadFile(p)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("fsstore read %s: %w", p, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrCorrupt, p, err)
	}
	return true, nil
}

func WriteJSONAtomic(path string, v any, opts FileOptions) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrWriteFailed, path, err)
	}
	return replaceFile(path, opts, func(w io.Writer) error {
		_, err := w.Write(append(data, '\n'))
		return err
	})
}

// WriteStreamAtomic copies r to path through a sibling temp file and returns
// the bytes written. maxBytes <= 0 means unlimited; exceeding it leaves no
// file behind and returns ErrTooLarge.
func WriteStreamAtomic(path string, r io.Reader, maxBytes int64, opts FileOptions) (int64, error) {
	if r == nil {
		return 0, fmt.Errorf("%w: nil reader", ErrWriteFailed)
	}
	var n int64
	err := replaceFile(path, opts, func(w io.Writer) error {
		src := r
		if maxBytes > 0 {
			src = io.LimitReader(r, maxBytes+1)
		}
		var err error
		n, err = io.Copy(w, src)
		if err == nil && maxBytes > 0 && n > maxBytes {
			err = fmt.Errorf("%w: over %d bytes", ErrTooLarge, maxBytes)
		}
		return err
	})
	return n, err
}

// replaceFile fills a temp file next to path and renames it into place.
func replaceFile(path string, opts FileOptions, fill func(io.Writer) error) (err error) {
	target, err := cleanPath(path)
	if err != nil {
		return err
	}
	opts = opts.withDefaults()
	dir := filepath.Dir(target)
	if err := EnsureDir(dir, opts.DirPerm); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: temp for %s: %v", ErrWriteFailed, target, err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err := fill(tmp); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWriteFailed, target, err)
	}
	for _, step := range []func() error{tmp.Sync, func() error { return tmp.Chmod(opts.FilePerm) }, tmp.Close} {
		if err := step(); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrWriteFailed, target, err)
		}
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("%w: rename %s: %v", ErrWriteFailed, target, err)
	}
	if d, derr := os.Open(dir); derr == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
