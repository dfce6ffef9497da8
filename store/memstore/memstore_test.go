package memstore

import (
	"context"
	"testing"

	"go.companyinfo.dev/dynamolock/store"
)

func TestPutIfAbsent_ConflictsOnSecondCall(t *testing.T) {
	s := New()
	ctx := context.Background()

	outcome, err := s.PutIfAbsent(ctx, store.Item{Name: "a", Owner: "o1", Version: 1, DurationMs: 100})
	if err != nil || outcome != store.OutcomeOK {
		t.Fatalf("expected OK, got %v err=%v", outcome, err)
	}

	outcome, err = s.PutIfAbsent(ctx, store.Item{Name: "a", Owner: "o2", Version: 1, DurationMs: 100})
	if err != nil || outcome != store.OutcomeConflict {
		t.Fatalf("expected Conflict, got %v err=%v", outcome, err)
	}
}

func TestPutIfMatches_RequiresExactOwnerAndVersion(t *testing.T) {
	s := New()
	ctx := context.Background()
	if _, err := s.PutIfAbsent(ctx, store.Item{Name: "a", Owner: "o1", Version: 1, DurationMs: 100}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	outcome, err := s.PutIfMatches(ctx, "a", "wrong", 1, store.Item{Name: "a", Owner: "o2", Version: 2, DurationMs: 100})
	if err != nil || outcome != store.OutcomeConflict {
		t.Fatalf("expected Conflict on owner mismatch, got %v err=%v", outcome, err)
	}

	outcome, err = s.PutIfMatches(ctx, "a", "o1", 1, store.Item{Name: "a", Owner: "o2", Version: 2, DurationMs: 100})
	if err != nil || outcome != store.OutcomeOK {
		t.Fatalf("expected OK, got %v err=%v", outcome, err)
	}

	item, err := s.Get(ctx, "a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if item.Owner != "o2" || item.Version != 2 {
		t.Fatalf("unexpected item after CAS: %+v", item)
	}
}

func TestDeleteIfMatches_NotFoundWhenAbsent(t *testing.T) {
	s := New()
	outcome, err := s.DeleteIfMatches(context.Background(), "missing", "o1", 1)
	if err != nil || outcome != store.OutcomeNotFound {
		t.Fatalf("expected NotFound, got %v err=%v", outcome, err)
	}
}

func TestGet_NotFoundForAbsentItem(t *testing.T) {
	s := New()
	if _, err := s.Get(context.Background(), "missing"); err != store.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
