package identity

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/sheraliortiqboyev4-del/spy-bot/kv"
)

// flakyStore fails every Upsert while failing is set.
type flakyStore struct {
	*kv.MemoryStore
	mu      sync.Mutex
	upserts int
	failing bool
}

func newMemStore() *flakyStore {
	return &flakyStore{MemoryStore: kv.NewMemoryStore()}
}

func (s *flakyStore) Upsert(ctx context.Context, key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return kv.ErrPersistence
	}
	s.upserts++
	return s.MemoryStore.Upsert(ctx, key, value)
}

func (s *flakyStore) setFailing(v bool) {
	s.mu.Lock()
	s.failing = v
	s.mu.Unlock()
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegisterIsIdempotent(t *testing.T) {
	store := newMemStore()
	r := New(store, Options{Logger: quietLogger()})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := r.Register(ctx, "conn-a", 42); err != nil {
			t.Fatalf("Register() error = %v", err)
		}
	}
	if store.upserts != 1 {
		t.Fatalf("upserts = %d, want 1", store.upserts)
	}
	recs, _ := store.Scan(ctx, keyPrefix)
	if len(recs) != 1 {
		t.Fatalf("records = %d, want 1", len(recs))
	}
}

func TestRegisterConflict(t *testing.T) {
	r := New(newMemStore(), Options{Logger: quietLogger()})
	ctx := context.Background()
	if err := r.Register(ctx, "conn-a", 42); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	err := r.Register(ctx, "conn-a", 43)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("Register() error = %v, want ErrConflict", err)
	}
	if owner, _ := r.OwnerForConnection("conn-a"); owner != 42 {
		t.Fatalf("owner = %d, want 42", owner)
	}
}

func TestResolve(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	_ = store.Upsert(ctx, recordKey("stored"), ConnectionRecord{Handle: "stored", OwnerID: 7})
	r := New(store, Options{Logger: quietLogger()})
	_ = r.Register(ctx, "known", 5)

	cases := []struct {
		handle string
		want   int64
		err    error
	}{
		{"known", 5, nil},
		{"stored", 7, nil},
		{"123456:AbCdEf", 123456, nil},
		{"abc:123", 0, ErrNotFound},
		{"-4:x", 0, ErrNotFound},
		{"opaque", 0, ErrNotFound},
		{"", 0, ErrNotFound},
	}
	for _, tc := range cases {
		got, err := r.Resolve(ctx, tc.handle)
		if tc.err != nil {
			if !errors.Is(err, tc.err) {
				t.Fatalf("Resolve(%q) error = %v, want %v", tc.handle, err, tc.err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("Resolve(%q) = %d, %v; want %d", tc.handle, got, err, tc.want)
		}
	}
}

func TestLoad(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	_ = store.Upsert(ctx, recordKey("a"), ConnectionRecord{Handle: "a", OwnerID: 1})
	_ = store.Upsert(ctx, recordKey("b"), ConnectionRecord{Handle: "b", OwnerID: 2})
	_ = store.Upsert(ctx, "session/1", map[string]string{"blob": "x"})

	r := New(store, Options{Logger: quietLogger()})
	if err := r.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	conns := r.Connections()
	if len(conns) != 2 || conns[0].Handle != "a" || conns[1].OwnerID != 2 {
		t.Fatalf("Connections() = %+v", conns)
	}
	if !r.IsConnected(2) || r.IsConnected(3) {
		t.Fatalf("IsConnected() mismatch")
	}
}

func TestRegisterPersistFailureIsRetried(t *testing.T) {
	store := newMemStore()
	store.setFailing(true)
	r := New(store, Options{Logger: quietLogger()})
	ctx := context.Background()

	if err := r.Register(ctx, "conn-a", 42); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if r.Pending() != 1 {
		t.Fatalf("Pending() = %d, want 1", r.Pending())
	}
	if owner, err := r.Resolve(ctx, "conn-a"); err != nil || owner != 42 {
		t.Fatalf("Resolve() = %d, %v", owner, err)
	}
	if err := r.Flush(ctx); !errors.Is(err, kv.ErrPersistence) {
		t.Fatalf("Flush() error = %v, want ErrPersistence", err)
	}

	store.setFailing(false)
	if err := r.Register(ctx, "conn-b", 43); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if r.Pending() != 0 {
		t.Fatalf("Pending() = %d, want 0", r.Pending())
	}
	var cr ConnectionRecord
	ok, _ := store.Get(ctx, recordKey("conn-a"), &cr)
	if !ok || cr.OwnerID != 42 {
		t.Fatalf("conn-a not flushed: %+v %v", cr, ok)
	}
}

func TestRegisterConcurrentHandles(t *testing.T) {
	store := newMemStore()
	r := New(store, Options{Logger: quietLogger()})
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := int64(1); i <= 20; i++ {
		wg.Add(1)
		go func(i int64) {
			defer wg.Done()
			if err := r.Register(ctx, "h"+strings.Repeat("x", int(i)), i); err != nil {
				t.Errorf("Register() error = %v", err)
			}
		}(i)
	}
	wg.Wait()
	if got := len(r.Connections()); got != 20 {
		t.Fatalf("Connections() = %d, want 20", got)
	}
}
