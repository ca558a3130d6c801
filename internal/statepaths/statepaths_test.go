package statepaths

import (
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
)

func TestPathsFollowStateDir(t *testing.T) {
	root := t.TempDir()
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("file_state_dir", root)

	if got := MediaDir(); got != filepath.Join(root, "media") {
		t.Fatalf("MediaDir() = %q", got)
	}
	if got := FileStateDir(); got != root {
		t.Fatalf("FileStateDir() = %q", got)
	}
	if got := SQLiteDSN(); got != filepath.Join(root, DefaultSQLiteFilename) {
		t.Fatalf("SQLiteDSN() = %q", got)
	}
	if got := LogFile(); got != "" {
		t.Fatalf("LogFile() = %q, want disabled", got)
	}

	viper.Set("media.dir_name", "recovered")
	viper.Set("logging.file", "logs/bot.log")
	if got := MediaDir(); got != filepath.Join(root, "recovered") {
		t.Fatalf("MediaDir() custom = %q", got)
	}
	if got := LogFile(); got != filepath.Join(root, "logs", "bot.log") {
		t.Fatalf("LogFile() = %q", got)
	}
}
