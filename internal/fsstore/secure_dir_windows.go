//go:build windows

package fsstore

// EnsureSecureDir creates dir; ownership is not checked on Windows.
func EnsureSecureDir(dir string) error {
	return EnsureDir(dir, 0o700)
}
