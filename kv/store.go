// Package kv is the durable key/value contract shared by the identity
// resolver and the onboarding manager. Values are JSON documents.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrPersistence marks failures of the backing store. Callers keep working
// on in-memory state when they see it.
var ErrPersistence = errors.New("kv: persistence failure")

type Record struct {
	Key       string
	Value     json.RawMessage
	UpdatedAt time.Time
}

// Decode unmarshals the record value into out.
func (r Record) Decode(out any) error {
	if err := json.Unmarshal(r.Value, out); err != nil {
		return fmt.Errorf("decode %s: %w", r.Key, err)
	}
	return nil
}

type Store interface {
	Get(ctx context.Context, key string, out any) (bool, error)
	Upsert(ctx context.Context, key string, value any) error
	Scan(ctx context.Context, prefix string) ([]Record, error)
	Close() error
}

func validateKey(key string) (string, error) {
	if key == "" || strings.TrimSpace(key) != key {
		return "", fmt.Errorf("kv key is invalid: %q", key)
	}
	if len(key) > 255 {
		return "", fmt.Errorf("kv key too long")
	}
	return key, nil
}

func encodeValue(key string, value any) (json.RawMessage, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", key, err)
	}
	return raw, nil
}
