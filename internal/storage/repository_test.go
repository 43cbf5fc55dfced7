package storage

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestStoreWithoutPool(t *testing.T) {
	var s *Store
	ctx := context.Background()

	if _, err := s.RecordDelivery(ctx, Delivery{Kind: KindRegular}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("RecordDelivery: expected ErrNotConfigured, got %v", err)
	}
	if _, err := s.ListRecentDeliveries(ctx, 5); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("ListRecentDeliveries: expected ErrNotConfigured, got %v", err)
	}
	if _, err := s.ListDeliveriesBetween(ctx, KindRegular, time.Time{}, time.Now()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("ListDeliveriesBetween: expected ErrNotConfigured, got %v", err)
	}
	if _, _, err := s.TryAdvisoryLock(ctx, 1); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("TryAdvisoryLock: expected ErrNotConfigured, got %v", err)
	}
	if err := s.EnsureSchema(ctx); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("EnsureSchema: expected ErrNotConfigured, got %v", err)
	}
	s.Close()
}
