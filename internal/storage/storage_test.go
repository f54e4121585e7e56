package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/eugenenazirov/basic-auth/internal/credentials"
)

var baseTime = time.Date(2024, 11, 1, 12, 0, 0, 0, time.UTC)

func newRecord(username string, createdAt time.Time) credentials.Record {
	return credentials.Record{
		Credentials: credentials.Credentials{
			Username:    username,
			Description: "desc " + username,
			CreatedAt:   createdAt,
			UpdatedAt:   createdAt,
		},
		PasswordHash: "hash-" + username,
	}
}

func TestMemoryStorageAddAndGet(t *testing.T) {
	t.Parallel()

	store := NewMemoryStorage()
	ctx := context.Background()

	if err := store.Add(ctx, newRecord("user", baseTime)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := store.Get(ctx, "user")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.PasswordHash != "hash-user" || !got.CreatedAt.Equal(baseTime) {
		t.Fatalf("unexpected record %+v", got)
	}

	if err := store.Add(ctx, newRecord("user", baseTime)); !errors.Is(err, credentials.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	if _, err := store.Get(ctx, "missing"); !errors.Is(err, credentials.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStorageUpdateAndRemove(t *testing.T) {
	t.Parallel()

	store := NewMemoryStorage()
	ctx := context.Background()

	if err := store.Update(ctx, newRecord("ghost", baseTime)); !errors.Is(err, credentials.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	rec := newRecord("user", baseTime)
	if err := store.Add(ctx, rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec.Description = "changed"
	if err := store.Update(ctx, rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := store.Get(ctx, "user")
	if got.Description != "changed" {
		t.Fatalf("expected updated description, got %q", got.Description)
	}

	removed, err := store.Remove(ctx, "user")
	if err != nil || !removed {
		t.Fatalf("expected removal, got %v %v", removed, err)
	}
	removed, err = store.Remove(ctx, "user")
	if err != nil || removed {
		t.Fatalf("expected no-op removal, got %v %v", removed, err)
	}
}

func TestMemoryStorageListFiltersByCreationTime(t *testing.T) {
	t.Parallel()

	store := NewMemoryStorage()
	ctx := context.Background()
	for i, name := range []string{"carol", "alice", "bob"} {
		if err := store.Add(ctx, newRecord(name, baseTime.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	all, err := store.List(ctx, credentials.ListOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 3 || all[0].Username != "alice" || all[2].Username != "carol" {
		t.Fatalf("expected sorted records, got %+v", all)
	}

	start := baseTime.Add(time.Hour)
	window, err := store.List(ctx, credentials.ListOptions{Start: &start})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(window) != 2 {
		t.Fatalf("expected 2 records after start, got %d", len(window))
	}
}

func TestMemoryStorageConcurrentAccess(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()
	var wg sync.WaitGroup

	for i := 0; i < 32; i++ {
		wg.Add(2)

		go func(offset int) {
			defer wg.Done()
			if err := store.Add(ctx, newRecord(fmt.Sprintf("user%d", offset), baseTime)); err != nil {
				t.Errorf("Add failed: %v", err)
			}
		}(i)

		go func() {
			defer wg.Done()
			if _, err := store.List(ctx, credentials.ListOptions{}); err != nil {
				t.Errorf("List failed: %v", err)
			}
		}()
	}

	wg.Wait()

	all, err := store.List(ctx, credentials.ListOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 32 {
		t.Fatalf("expected 32 records, got %d", len(all))
	}
}
