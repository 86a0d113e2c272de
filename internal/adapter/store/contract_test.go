package store

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/arturoeanton/go-star-search/internal/domain"
	"github.com/arturoeanton/go-star-search/internal/port"
)

const testDim = 3

func rec(id int64, name string, emb ...float32) domain.Record {
	return domain.Record{
		Item: domain.Item{
			ID:     id,
			Name:   name,
			URL:    "https://github.com/" + name,
			Topics: []string{"t"},
		},
		Embedding: emb,
	}
}

// runStoreContract exercises the behavior every port.VectorStore must share.
// newStore must return an empty store with embeddings of testDim components.
func runStoreContract(t *testing.T, newStore func(t *testing.T) port.VectorStore) {
	ctx := context.Background()

	t.Run("query ranks by cosine similarity", func(t *testing.T) {
		s := newStore(t)
		err := s.Upsert(ctx, []domain.Record{
			rec(1, "a/x", 1, 0, 0),
			rec(2, "b/y", 0, 1, 0),
			rec(3, "c/z", 1, 1, 0),
		})
		if err != nil {
			t.Fatalf("Upsert: %v", err)
		}

		got, err := s.Query(ctx, []float32{1, 0, 0}, 2)
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("got %d results, want 2", len(got))
		}
		if got[0].Item.ID != 1 || got[1].Item.ID != 3 {
			t.Errorf("order = %d,%d, want 1,3", got[0].Item.ID, got[1].Item.ID)
		}
		if math.Abs(got[0].Score-1) > 1e-4 {
			t.Errorf("top score = %f, want 1", got[0].Score)
		}
		if got[0].Item.Name != "a/x" || got[0].Item.URL != "https://github.com/a/x" {
			t.Errorf("item fields not returned: %+v", got[0].Item)
		}
	})

	t.Run("items without embedding are counted but not searchable", func(t *testing.T) {
		s := newStore(t)
		if err := s.Upsert(ctx, []domain.Record{rec(1, "a/x", 1, 0, 0), rec(2, "b/y")}); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
		n, err := s.Count(ctx)
		if err != nil || n != 2 {
			t.Fatalf("Count = %d, %v; want 2", n, err)
		}
		got, err := s.Query(ctx, []float32{0, 1, 0}, 10)
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		if len(got) != 1 || got[0].Item.ID != 1 {
			t.Errorf("Query returned %+v, want only item 1", got)
		}
	})

	t.Run("upsert replaces in full", func(t *testing.T) {
		s := newStore(t)
		if err := s.Upsert(ctx, []domain.Record{rec(1, "a/x", 1, 0, 0)}); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
		if err := s.Upsert(ctx, []domain.Record{rec(1, "a/renamed")}); err != nil {
			t.Fatalf("second Upsert: %v", err)
		}
		n, _ := s.Count(ctx)
		if n != 1 {
			t.Errorf("Count = %d, want 1", n)
		}
		got, _ := s.Query(ctx, []float32{1, 0, 0}, 10)
		if len(got) != 0 {
			t.Errorf("stale embedding still searchable: %+v", got)
		}

		if err := s.Upsert(ctx, []domain.Record{rec(1, "a/renamed", 0, 0, 1)}); err != nil {
			t.Fatalf("third Upsert: %v", err)
		}
		got, _ = s.Query(ctx, []float32{0, 0, 1}, 10)
		if len(got) != 1 || got[0].Item.Name != "a/renamed" {
			t.Errorf("Query = %+v, want renamed item", got)
		}
	})

	t.Run("ties keep insertion order", func(t *testing.T) {
		s := newStore(t)
		if err := s.Upsert(ctx, []domain.Record{rec(7, "first", 1, 0, 0)}); err != nil {
			t.Fatal(err)
		}
		if err := s.Upsert(ctx, []domain.Record{rec(3, "second", 2, 0, 0)}); err != nil {
			t.Fatal(err)
		}
		got, err := s.Query(ctx, []float32{1, 0, 0}, 2)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 2 || got[0].Item.ID != 7 || got[1].Item.ID != 3 {
			t.Errorf("tie order = %+v, want 7 then 3", got)
		}
	})

	t.Run("ties across the k boundary keep the earliest inserted", func(t *testing.T) {
		s := newStore(t)
		for _, id := range []int64{40, 30, 20, 10} {
			if err := s.Upsert(ctx, []domain.Record{rec(id, "tied", 1, 0, 0)}); err != nil {
				t.Fatal(err)
			}
		}
		got, err := s.Query(ctx, []float32{1, 0, 0}, 2)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 2 || got[0].Item.ID != 40 || got[1].Item.ID != 30 {
			t.Errorf("top 2 = %+v, want 40 then 30", got)
		}
	})

	t.Run("dimension mismatch rejects the whole batch", func(t *testing.T) {
		s := newStore(t)
		err := s.Upsert(ctx, []domain.Record{rec(1, "ok", 1, 0, 0), rec(2, "bad", 1, 0)})
		if !errors.Is(err, port.ErrDimensionMismatch) {
			t.Fatalf("Upsert err = %v, want ErrDimensionMismatch", err)
		}
		if n, _ := s.Count(ctx); n != 0 {
			t.Errorf("Count = %d after rejected batch, want 0", n)
		}
		if _, err := s.Query(ctx, []float32{1, 0}, 1); !errors.Is(err, port.ErrDimensionMismatch) {
			t.Errorf("Query err = %v, want ErrDimensionMismatch", err)
		}
	})

	t.Run("clear empties the store", func(t *testing.T) {
		s := newStore(t)
		if err := s.Upsert(ctx, []domain.Record{rec(1, "a", 1, 0, 0), rec(2, "b", 0, 1, 0)}); err != nil {
			t.Fatal(err)
		}
		if err := s.Clear(ctx); err != nil {
			t.Fatalf("Clear: %v", err)
		}
		if n, _ := s.Count(ctx); n != 0 {
			t.Errorf("Count = %d, want 0", n)
		}
		got, _ := s.Query(ctx, []float32{1, 0, 0}, 5)
		if len(got) != 0 {
			t.Errorf("Query after Clear = %+v", got)
		}
	})

	t.Run("empty upsert and zero k are no-ops", func(t *testing.T) {
		s := newStore(t)
		if err := s.Upsert(ctx, nil); err != nil {
			t.Errorf("Upsert(nil) = %v", err)
		}
		got, err := s.Query(ctx, []float32{1, 0, 0}, 0)
		if err != nil || len(got) != 0 {
			t.Errorf("Query k=0 = %v, %v", got, err)
		}
	})
}
