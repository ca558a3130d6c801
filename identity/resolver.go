// Package identity maps transient connection handles to the owner account
// they belong to.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sheraliortiqboyev4-del/spy-bot/kv"
)

const keyPrefix = "connection/"

var (
	ErrNotFound = errors.New("identity: owner not found")
	ErrConflict = errors.New("identity: handle bound to another owner")
)

type ConnectionRecord struct {
	Handle    string    `json:"handle"`
	OwnerID   int64     `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
}

type Options struct {
	Logger *slog.Logger
	Now    func() time.Time
}

type Resolver struct {
	store  kv.Store
	logger *slog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	records map[string]ConnectionRecord
	pending map[string]ConnectionRecord
}

func New(store kv.Store, opts Options) *Resolver {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Resolver{
		store:   store,
		logger:  logger,
		now:     now,
		records: make(map[string]ConnectionRecord),
		pending: make(map[string]ConnectionRecord),
	}
}

func recordKey(handle string) string {
	return keyPrefix + handle
}

// Load reads every persisted connection record into memory.
func (r *Resolver) Load(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	recs, err := r.store.Scan(ctx, keyPrefix)
	if err != nil {
		return fmt.Errorf("load connections: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range recs {
		var cr ConnectionRecord
		if err := rec.Decode(&cr); err != nil {
			r.logger.Warn("identity_record_decode_error", "key", rec.Key, "error", err.Error())
			continue
		}
		if cr.Handle == "" {
			cr.Handle = strings.TrimPrefix(rec.Key, keyPrefix)
		}
		if cr.OwnerID == 0 {
			continue
		}
		r.records[cr.Handle] = cr
	}
	r.logger.Info("identity_loaded", "connections", len(r.records))
	return nil
}

// Resolve returns the owner for handle. Unknown handles fall back to the
// numeric prefix before the first ':'.
func (r *Resolver) Resolve(ctx context.Context, handle string) (int64, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return 0, ErrNotFound
	}
	if owner, ok := r.OwnerForConnection(handle); ok {
		return owner, nil
	}
	if r.store != nil {
		var cr ConnectionRecord
		ok, err := r.store.Get(ctx, recordKey(handle), &cr)
		if err != nil {
			r.logger.Warn("identity_lookup_error", "handle", handle, "error", err.Error())
		} else if ok && cr.OwnerID != 0 {
			r.mu.Lock()
			if _, exists := r.records[handle]; !exists {
				r.records[handle] = cr
			}
			r.mu.Unlock()
			return cr.OwnerID, nil
		}
	}
	if owner, ok := ParseHandleOwner(handle); ok {
		return owner, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrNotFound, handle)
}

// ParseHandleOwner extracts the owner id some transports embed as a
// numeric prefix, e.g. "123456:abcdef".
func ParseHandleOwner(handle string) (int64, bool) {
	prefix, _, found := strings.Cut(handle, ":")
	if !found {
		return 0, false
	}
	owner, err := strconv.ParseInt(strings.TrimSpace(prefix), 10, 64)
	if err != nil || owner <= 0 {
		return 0, false
	}
	return owner, true
}

// Register binds handle to owner. Repeating the same pair is a no-op. A
// failed durable write is logged and retried on the next Register.
func (r *Resolver) Register(ctx context.Context, handle string, owner int64) error {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return fmt.Errorf("connection handle is required")
	}
	if owner <= 0 {
		return fmt.Errorf("owner id is invalid: %d", owner)
	}

	r.mu.Lock()
	if existing, ok := r.records[handle]; ok {
		r.mu.Unlock()
		if existing.OwnerID == owner {
			return nil
		}
		return fmt.Errorf("%w: %s is owned by %d", ErrConflict, handle, existing.OwnerID)
	}
	rec := ConnectionRecord{Handle: handle, OwnerID: owner, CreatedAt: r.now().UTC()}
	r.records[handle] = rec
	r.pending[handle] = rec
	r.mu.Unlock()

	r.logger.Info("identity_registered", "handle", handle, "owner_id", owner)
	r.flush(ctx)
	return nil
}

// Flush retries pending durable writes and reports whether any remain.
func (r *Resolver) Flush(ctx context.Context) error {
	if left := r.flush(ctx); left > 0 {
		return fmt.Errorf("%w: %d connection records pending", kv.ErrPersistence, left)
	}
	return nil
}

func (r *Resolver) flush(ctx context.Context) int {
	if r.store == nil {
		return 0
	}
	r.mu.RLock()
	batch := make([]ConnectionRecord, 0, len(r.pending))
	for _, rec := range r.pending {
		batch = append(batch, rec)
	}
	r.mu.RUnlock()

	for _, rec := range batch {
		if err := r.store.Upsert(ctx, recordKey(rec.Handle), rec); err != nil {
			r.logger.Warn("identity_persist_error", "handle", rec.Handle, "owner_id", rec.OwnerID, "error", err.Error())
			continue
		}
		r.mu.Lock()
		delete(r.pending, rec.Handle)
		r.mu.Unlock()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pending)
}

func (r *Resolver) OwnerForConnection(handle string) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[handle]
	if !ok {
		return 0, false
	}
	return rec.OwnerID, true
}

// Connections lists known records ordered by handle.
func (r *Resolver) Connections() []ConnectionRecord {
	r.mu.RLock()
	out := make([]ConnectionRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out
}

func (r *Resolver) IsConnected(owner int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rec := range r.records {
		if rec.OwnerID == owner {
			return true
		}
	}
	return false
}

func (r *Resolver) Pending() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pending)
}
