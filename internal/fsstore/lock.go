package fsstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"
)

var lockNameRE = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9._-]{0,118}[a-z0-9])?$`)

const lockPollInterval = 25 * time.Millisecond

// Lock is an advisory inter-process lock backed by a file.
type Lock struct {
	path string
}

// NewLock returns the lock dir/<name>.lck. Names are lowercase
// [a-z0-9._-] and may not start or end with a separator.
func NewLock(dir, name string) (*Lock, error) {
	root, err := cleanPath(dir)
	if err != nil {
		return nil, err
	}
	if !lockNameRE.MatchString(name) {
		return nil, fmt.Errorf("%w: lock name %q", ErrInvalidPath, name)
	}
	return &Lock{path: filepath.Join(root, name+".lck")}, nil
}

func (l *Lock) Path() string {
	return l.path
}

// Do runs fn while holding the lock. It waits until ctx ends.
func (l *Lock) Do(ctx context.Context, fn func() error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := EnsureDir(filepath.Dir(l.path), defaultDirPerm); err != nil {
		return err
	}
	release, err := acquire(ctx, l.path)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

func stampOwner(f *os.File) {
	_ = f.Truncate(0)
	_, _ = f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
}

func waitLock(ctx context.Context, path string) error {
	t := time.NewTimer(lockPollInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %s: %v", ErrLockTimeout, path, ctx.Err())
	case <-t.C:
		return nil
	}
}
