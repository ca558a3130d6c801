package kv

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sheraliortiqboyev4-del/spy-bot/internal/fsstore"
)

// FileStore keeps every record in one JSON file guarded by a file lock.
type FileStore struct {
	path string
	lock *fsstore.Lock
	now  func() time.Time
}

func NewFileStore(root string) (*FileStore, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("kv root dir is required")
	}
	lock, err := fsstore.NewLock(filepath.Join(root, ".fslocks"), "kv.records")
	if err != nil {
		return nil, err
	}
	return &FileStore{
		path: filepath.Join(root, "kv", "records.json"),
		lock: lock,
		now:  time.Now,
	}, nil
}

func (s *FileStore) Get(ctx context.Context, key string, out any) (bool, error) {
	key, err := validateKey(key)
	if err != nil {
		return false, err
	}
	file, err := fsstore.LoadRecords(s.path)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	rec, exists := file.Records[key]
	if !exists {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := json.Unmarshal(rec.Value, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s *FileStore) Upsert(ctx context.Context, key string, value any) error {
	key, err := validateKey(key)
	if err != nil {
		return err
	}
	raw, err := encodeValue(key, value)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(raw)
	hash := "sha256:" + hex.EncodeToString(sum[:])

	err = fsstore.UpdateRecords(ctx, s.path, s.lock, func(f *fsstore.RecordFile) (bool, error) {
		prev := f.Records[key]
		if prev.Hash == hash {
			return false, nil
		}
		f.Records[key] = fsstore.StoredRecord{
			Value:     raw,
			Hash:      hash,
			Rev:       prev.Rev + 1,
			UpdatedAt: s.now().UTC(),
		}
		return true, nil
	})
	if err != nil {
		return fmt.Errorf("%w: upsert %s: %v", ErrPersistence, key, err)
	}
	return nil
}

func (s *FileStore) Scan(ctx context.Context, prefix string) ([]Record, error) {
	file, err := fsstore.LoadRecords(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	out := make([]Record, 0, len(file.Records))
	for key, rec := range file.Records {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		out = append(out, Record{
			Key:       key,
			Value:     append(json.RawMessage(nil), rec.Value...),
			UpdatedAt: rec.UpdatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *FileStore) Close() error {
	return nil
}
