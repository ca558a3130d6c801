package fsstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// RotatingFile is an append-only writer that moves the current file aside
// once it would grow past MaxBytes. Rotated files are named
// <path>.<UTC timestamp>.
type RotatingFile struct {
	path     string
	maxBytes int64
	now      func() time.Time

	mu   sync.Mutex
	f    *os.File
	size int64
}

// OpenRotatingFile opens path for appending. maxBytes <= 0 disables rotation.
func OpenRotatingFile(path string, maxBytes int64) (*RotatingFile, error) {
	p, err := cleanPath(path)
	if err != nil {
		return nil, err
	}
	r := &RotatingFile{path: p, maxBytes: maxBytes, now: time.Now}
	if err := r.open(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *RotatingFile) open() error {
	if err := EnsureDir(filepath.Dir(r.path), defaultDirPerm); err != nil {
		return err
	}
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, defaultFilePerm)
	if err != nil {
		return fmt.Errorf("fsstore open %s: %w", r.path, err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("fsstore stat %s: %w", r.path, err)
	}
	r.f, r.size = f, st.Size()
	return nil
}

func (r *RotatingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return 0, os.ErrClosed
	}
	if r.maxBytes > 0 && r.size > 0 && r.size+int64(len(p)) > r.maxBytes {
		if err := r.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := r.f.Write(p)
	r.size += int64(n)
	return n, err
}

func (r *RotatingFile) rotate() error {
	if err := r.f.Close(); err != nil {
		return fmt.Errorf("fsstore rotate %s: %w", r.path, err)
	}
	r.f = nil
	stamp := r.now().UTC().Format("20060102T150405.000000000Z")
	dest := r.path + "." + stamp
	for i := 1; ; i++ {
		if _, err := os.Stat(dest); os.IsNotExist(err) {
			break
		}
		dest = fmt.Sprintf("%s.%s.%d", r.path, stamp, i)
	}
	if err := os.Rename(r.path, dest); err != nil {
		return fmt.Errorf("fsstore rotate %s: %w", r.path, err)
	}
	return r.open()
}

func (r *RotatingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f = nil
	return err
}
