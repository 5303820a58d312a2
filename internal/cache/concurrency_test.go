package cache

import (
	"context"
	"fmt"
	"testing"

	"golang.org/x/sync/errgroup"
)

func TestStoreConcurrentIdenticalPuts(t *testing.T) {
	store := newTestStore(t)
	payload := []byte("identical content from many writers")

	const writers = 16
	ids := make([]string, writers)
	var g errgroup.Group
	for i := 0; i < writers; i++ {
		g.Go(func() error {
			result, err := store.PutBytes(context.Background(), payload, PutOptions{ContentType: "image/png"})
			if err != nil {
				return err
			}
			ids[i] = result.ID
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent put error: %v", err)
	}

	for _, id := range ids {
		if id != ids[0] {
			t.Fatalf("concurrent puts returned different ids: %s vs %s", id, ids[0])
		}
	}
	if got := store.index.Len(); got != 1 {
		t.Fatalf("expected exactly 1 index entry, got %d", got)
	}
	assertDirFiles(t, store.Root(), 1, 0)
}

func TestStoreConcurrentDistinctPuts(t *testing.T) {
	store := newTestStore(t)

	const n = 32
	ids := make([]string, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			payload := []byte(fmt.Sprintf("payload-%02d", i))
			result, err := store.PutBytes(context.Background(), payload, PutOptions{ContentType: "image/jpeg"})
			if err != nil {
				return err
			}
			ids[i] = result.ID
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent put error: %v", err)
	}

	seen := make(map[string]struct{}, n)
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	if len(seen) != n {
		t.Fatalf("expected %d distinct ids, got %d", n, len(seen))
	}
	if got := store.index.Len(); got != n {
		t.Fatalf("expected %d index entries, got %d", n, got)
	}
	assertDirFiles(t, store.Root(), n, 0)
}

func TestStoreConcurrentReadersAndDeletes(t *testing.T) {
	store := newTestStore(t)
	result, err := store.PutBytes(context.Background(), []byte("contended"), PutOptions{ContentType: "image/gif"})
	if err != nil {
		t.Fatalf("put error: %v", err)
	}

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			img, ok, err := store.Get(context.Background(), result.ID)
			if err != nil {
				return err
			}
			if ok && string(img.Data) != "contended" {
				return fmt.Errorf("partial read: %q", img.Data)
			}
			return nil
		})
		g.Go(func() error {
			_, err := store.Delete(context.Background(), result.ID)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent get/delete error: %v", err)
	}
	if got := store.index.Len(); got != 0 {
		t.Fatalf("expected empty index, got %d", got)
	}
	assertDirFiles(t, store.Root(), 0, 0)
}
