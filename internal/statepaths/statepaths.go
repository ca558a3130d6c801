package statepaths

import (
	"path/filepath"

	"github.com/sheraliortiqboyev4-del/spy-bot/internal/pathutil"
	"github.com/spf13/viper"
)

const (
	DefaultSQLiteFilename = "spybot.sqlite"
	DefaultLogFilename    = "spybot.log"
)

func FileStateDir() string {
	return pathutil.ResolveStateDir(viper.GetString("file_state_dir"))
}

// MediaDir is the root for recovered media; each owner gets a subdirectory.
func MediaDir() string {
	return pathutil.ResolveStateChildDir(
		viper.GetString("file_state_dir"),
		viper.GetString("media.dir_name"),
		"media",
	)
}

func SQLiteDSN() string {
	if dsn := viper.GetString("db.dsn"); dsn != "" {
		return pathutil.ExpandHomePath(dsn)
	}
	return filepath.Join(FileStateDir(), DefaultSQLiteFilename)
}

// LogFile returns "" when the on-disk log sink is disabled.
func LogFile() string {
	raw := viper.GetString("logging.file")
	if raw == "" {
		return ""
	}
	return pathutil.ResolveStateChildDir(viper.GetString("file_state_dir"), raw, DefaultLogFilename)
}
