//go:build windows

package fsstore

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// acquire uses exclusive creation; the lock file is removed on release.
func acquire(ctx context.Context, path string) (func(), error) {
	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, defaultFilePerm)
		if err == nil {
			stampOwner(f)
			return func() {
				_ = f.Close()
				_ = os.Remove(path)
			}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("fsstore lock %s: %w", path, err)
		}
		if err := waitLock(ctx, path); err != nil {
			return nil, err
		}
	}
}
