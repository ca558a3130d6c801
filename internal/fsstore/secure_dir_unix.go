//go:build !windows

package fsstore

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// EnsureSecureDir creates dir as 0700 and refuses symlinks or directories
// owned by another user. Looser permissions are tightened when possible.
func EnsureSecureDir(dir string) error {
	normalized, err := cleanPath(dir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(normalized, 0o700); err != nil {
		return fmt.Errorf("fsstore secure dir %s: %w", normalized, err)
	}

	var st unix.Stat_t
	if err := unix.Lstat(normalized, &st); err != nil {
		return fmt.Errorf("fsstore secure dir %s: %w", normalized, err)
	}
	if st.Mode&unix.S_IFMT == unix.S_IFLNK {
		return fmt.Errorf("%w: refusing symlink %s", ErrInvalidPath, normalized)
	}
	if st.Mode&unix.S_IFMT != unix.S_IFDIR {
		return fmt.Errorf("%w: not a directory %s", ErrInvalidPath, normalized)
	}
	if uid := uint32(os.Getuid()); st.Uid != uid {
		return fmt.Errorf("%w: %s owned by uid %d, not %d", ErrInvalidPath, normalized, st.Uid, uid)
	}
	if os.FileMode(st.Mode).Perm()&0o077 != 0 {
		if err := os.Chmod(normalized, 0o700); err != nil {
			return fmt.Errorf("fsstore secure dir %s: insecure perms %#o: %w", normalized, os.FileMode(st.Mode).Perm(), err)
		}
	}
	return nil
}
