package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sheraliortiqboyev4-del/spy-bot/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SQLStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewSQLStore(gdb *gorm.DB) (*SQLStore, error) {
	if gdb == nil {
		return nil, fmt.Errorf("nil gorm db")
	}
	return &SQLStore{db: gdb, now: time.Now}, nil
}

func (s *SQLStore) Get(ctx context.Context, key string, out any) (bool, error) {
	key, err := validateKey(key)
	if err != nil {
		return false, err
	}
	var rec models.Record
	err = s.db.WithContext(ctx).Where("record_key = ?", key).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: get %s: %v", ErrPersistence, key, err)
	}
	if out == nil {
		return true, nil
	}
	if err := json.Unmarshal([]byte(rec.Value), out); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s *SQLStore) Upsert(ctx context.Context, key string, value any) error {
	key, err := validateKey(key)
	if err != nil {
		return err
	}
	raw, err := encodeValue(key, value)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	rec := models.Record{
		Key:       key,
		Value:     string(raw),
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "record_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"record_value", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("%w: upsert %s: %v", ErrPersistence, key, err)
	}
	return nil
}

func (s *SQLStore) Scan(ctx context.Context, prefix string) ([]Record, error) {
	var recs []models.Record
	q := s.db.WithContext(ctx).Order("record_key")
	if prefix != "" {
		q = q.Where("record_key LIKE ? ESCAPE '\\'", escapeLike(prefix)+"%")
	}
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("%w: scan %s: %v", ErrPersistence, prefix, err)
	}
	out := make([]Record, 0, len(recs))
	for _, rec := range recs {
		out = append(out, Record{
			Key:       rec.Key,
			Value:     json.RawMessage(rec.Value),
			UpdatedAt: rec.UpdatedAt,
		})
	}
	return out, nil
}

func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
