package pathutil

import (
	"os"
	"path/filepath"
	"strings"
)

const defaultStateDir = "~/.spybot"

// ExpandHomePath replaces a leading "~" with the user's home directory.
func ExpandHomePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || p[0] != '~' {
		return p
	}
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return p
	}
	if p == "~" {
		return home
	}
	return filepath.Join(home, p[2:])
}

func ResolveStateDir(dir string) string {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		dir = defaultStateDir
	}
	return filepath.Clean(ExpandHomePath(dir))
}

// ResolveStateChildDir resolves name under the state dir. Absolute or
// home-relative names are used as given.
func ResolveStateChildDir(stateDir, name, fallback string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = fallback
	}
	expanded := ExpandHomePath(name)
	if filepath.IsAbs(expanded) {
		return filepath.Clean(expanded)
	}
	return filepath.Join(ResolveStateDir(stateDir), expanded)
}

func ResolveStateFile(stateDir, name string) string {
	return filepath.Join(ResolveStateDir(stateDir), strings.TrimSpace(name))
}
