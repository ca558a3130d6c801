package fsstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const recordFileVersion = 1

// StoredRecord is one value in a RecordFile. Hash lets writers skip
// rewriting unchanged values; Rev counts accepted changes.
type StoredRecord struct {
	Value     json.RawMessage `json:"value"`
	Hash      string          `json:"hash,omitempty"`
	Rev       uint64          `json:"rev"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type RecordFile struct {
	Version int                     `json:"version"`
	Records map[string]StoredRecord `json:"records"`
}

// LoadRecords reads path. A missing file yields an empty RecordFile.
func LoadRecords(path string) (RecordFile, error) {
	f := RecordFile{Version: recordFileVersion, Records: map[string]StoredRecord{}}
	var raw RecordFile
	ok, err := ReadJSON(path, &raw)
	if err != nil || !ok {
		return f, err
	}
	if raw.Version > recordFileVersion {
		return f, fmt.Errorf("%w: %s has version %d", ErrCorrupt, path, raw.Version)
	}
	for k, v := range raw.Records {
		f.Records[k] = v
	}
	return f, nil
}

// UpdateRecords runs fn on the current file under lock and writes the result
// back atomically. The write is skipped when fn reports no change.
func UpdateRecords(ctx context.Context, path string, lock *Lock, fn func(*RecordFile) (changed bool, err error)) error {
	return lock.Do(ctx, func() error {
		f, err := LoadRecords(path)
		if err != nil {
			return err
		}
		changed, err := fn(&f)
		if err != nil || !changed {
			return err
		}
		f.Version = recordFileVersion
		return WriteJSONAtomic(path, f, FileOptions{})
	})
}
