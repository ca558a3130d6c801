package logutil

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/sheraliortiqboyev4-del/spy-bot/internal/fsstore"
	"github.com/sheraliortiqboyev4-del/spy-bot/internal/statepaths"
	"github.com/spf13/viper"
)

type loggerConfig struct {
	Level        string
	Format       string
	AddSource    bool
	File         string
	FileMaxBytes int64
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// LoggerFromViper builds the process logger. The returned closer flushes the
// optional log file and must be called on shutdown.
func LoggerFromViper() (*slog.Logger, io.Closer, error) {
	logCfg := loggerConfig{
		Level:        viper.GetString("logging.level"),
		Format:       viper.GetString("logging.format"),
		AddSource:    viper.GetBool("logging.add_source"),
		File:         statepaths.LogFile(),
		FileMaxBytes: viper.GetInt64("logging.file_max_bytes"),
	}
	if !viper.IsSet("logging.level") && viper.GetBool("trace") {
		logCfg.Level = "debug"
	}
	return newLoggerFromConfig(logCfg, os.Stderr)
}

func newLoggerFromConfig(cfg loggerConfig, stderr io.Writer) (*slog.Logger, io.Closer, error) {
	level, err := parseSlogLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.AddSource,
	}

	out := stderr
	var closer io.Closer = nopCloser{}
	if path := strings.TrimSpace(cfg.File); path != "" {
		w, err := fsstore.OpenRotatingFile(path, cfg.FileMaxBytes)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = io.MultiWriter(stderr, w)
		closer = w
	}

	var h slog.Handler
	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "", "text":
		h = slog.NewTextHandler(out, opts)
	case "json":
		h = slog.NewJSONHandler(out, opts)
	default:
		_ = closer.Close()
		return nil, nil, fmt.Errorf("unknown logging.format: %s", cfg.Format)
	}

	return slog.New(h), closer, nil
}

func parseSlogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown logging.level: %s", s)
	}
}
