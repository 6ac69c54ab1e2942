package sessions

import (
	"context"
	"sync"
	"testing"

	"github.com/meridianbank/agentcore/internal/model"
)

func TestMemoryStoreCreateAndGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	s := &model.Session{ID: "sess-1", Memory: model.Memory{"k": "v"}}
	if err := store.Create(ctx, s); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Memory["k"] != "v" {
		t.Fatalf("unexpected memory: %+v", got.Memory)
	}
}

func TestMemoryStoreCreateDuplicateFails(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	s := &model.Session{ID: "sess-1"}

	if err := store.Create(ctx, s); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if err := store.Create(ctx, s); err != ErrAlreadyExists {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestMemoryStoreGetClonesNotCanonical(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	store.Create(ctx, &model.Session{ID: "sess-1", Memory: model.Memory{"k": "v"}})

	got, _ := store.Get(ctx, "sess-1")
	got.Memory["k"] = "mutated"

	got2, _ := store.Get(ctx, "sess-1")
	if got2.Memory["k"] != "v" {
		t.Fatalf("mutating a Get result leaked into the store: %+v", got2.Memory)
	}
}

func TestMemoryStoreUpdateMutatesCanonical(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	store.Create(ctx, &model.Session{ID: "sess-1", Memory: model.Memory{}})

	err := store.Update(ctx, "sess-1", func(s *model.Session) error {
		s.Memory["k"] = "updated"
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	got, _ := store.Get(ctx, "sess-1")
	if got.Memory["k"] != "updated" {
		t.Fatalf("update did not persist: %+v", got.Memory)
	}
}

func TestMemoryStoreUpdateUnknownSession(t *testing.T) {
	store := NewMemoryStore()
	err := store.Update(context.Background(), "ghost", func(s *model.Session) error { return nil })
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreDeleteIsIdempotent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	store.Create(ctx, &model.Session{ID: "sess-1"})

	if err := store.Delete(ctx, "sess-1"); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := store.Delete(ctx, "sess-1"); err != nil {
		t.Fatalf("second delete should be a no-op, got: %v", err)
	}
	if _, err := store.Get(ctx, "sess-1"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

// TestMemoryStoreConcurrentDistinctSessions verifies that concurrent
// updates against distinct session ids all complete and every one of
// them is applied.
func TestMemoryStoreConcurrentDistinctSessions(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	const n = 50
	for i := 0; i < n; i++ {
		store.Create(ctx, &model.Session{ID: idFor(i), Memory: model.Memory{"count": 0}})
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			store.Update(ctx, idFor(i), func(s *model.Session) error {
				s.Memory["count"] = 1
				return nil
			})
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		got, _ := store.Get(ctx, idFor(i))
		if got.Memory["count"] != 1 {
			t.Fatalf("session %d did not update", i)
		}
	}
}

// TestMemoryStoreSerializesSameSession verifies concurrent updates to the
// same session id never interleave.
func TestMemoryStoreSerializesSameSession(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	store.Create(ctx, &model.Session{ID: "sess-1", Memory: model.Memory{"count": 0}})

	var wg sync.WaitGroup
	const n = 100
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.Update(ctx, "sess-1", func(s *model.Session) error {
				current := s.Memory["count"].(int)
				s.Memory["count"] = current + 1
				return nil
			})
		}()
	}
	wg.Wait()

	got, _ := store.Get(ctx, "sess-1")
	if got.Memory["count"] != n {
		t.Fatalf("expected count %d, got %v (lost update under concurrency)", n, got.Memory["count"])
	}
}

func idFor(i int) string {
	return "sess-" + string(rune('a'+i%26)) + string(rune('0'+i/26))
}
