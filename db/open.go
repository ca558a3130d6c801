package db

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/sheraliortiqboyev4-del/spy-bot/db/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to cfg.DSN and, when cfg.Migrate is set, creates or updates
// the record table.
func Open(cfg Config) (*gorm.DB, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, fmt.Errorf("db dsn is required")
	}

	gdb, err := gorm.Open(sqlite.Open(withPragmas(dsn, cfg)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	conns := cfg.MaxConns
	if conns <= 0 {
		conns = 1
	}
	sqlDB.SetMaxOpenConns(conns)
	sqlDB.SetMaxIdleConns(conns)
	sqlDB.SetConnMaxLifetime(cfg.MaxLifetime)

	if cfg.Migrate {
		if err := Migrate(gdb); err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
	}
	return gdb, nil
}

func Migrate(gdb *gorm.DB) error {
	if gdb == nil {
		return fmt.Errorf("nil gorm db")
	}
	if err := gdb.AutoMigrate(&models.Record{}); err != nil {
		return fmt.Errorf("migrate records: %w", err)
	}
	return nil
}

// withPragmas appends busy-timeout and journal settings unless the DSN
// already carries query parameters.
func withPragmas(dsn string, cfg Config) string {
	if dsn == ":memory:" || strings.Contains(dsn, "?") {
		return dsn
	}
	q := url.Values{}
	if ms := cfg.BusyTimeout.Milliseconds(); ms > 0 {
		q.Set("_busy_timeout", fmt.Sprint(ms))
	}
	if cfg.WAL {
		q.Set("_journal_mode", "WAL")
	}
	if len(q) == 0 {
		return dsn
	}
	return dsn + "?" + q.Encode()
}
