package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kpmarket/auctiond/internal/store"
	"github.com/kpmarket/auctiond/internal/store/postgres"
)

func testListing(id int64) *store.Listing {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &store.Listing{
		ID:             id,
		Creator:        "0xcafe",
		AssetContract:  "0xnft",
		AssetID:        id + 1,
		StartPrice:     decimal.RequireFromString("0.02"),
		DirectBuyPrice: decimal.RequireFromString("5"),
		MinIncrement:   decimal.RequireFromString("0.002"),
		CreatedAt:      now,
		EndTime:        now.Add(10 * time.Minute),
	}
}

func TestListingRepo_CreateAndGet(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewListingRepo(db)
	ctx := context.Background()

	l := testListing(0)
	if err := repo.Create(ctx, l); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.Get(ctx, 0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Creator != "0xcafe" {
		t.Errorf("Creator = %q, want %q", got.Creator, "0xcafe")
	}
	if !got.StartPrice.Equal(l.StartPrice) {
		t.Errorf("StartPrice = %s, want %s", got.StartPrice, l.StartPrice)
	}
	if !got.DirectBuyPrice.Equal(l.DirectBuyPrice) {
		t.Errorf("DirectBuyPrice = %s, want %s", got.DirectBuyPrice, l.DirectBuyPrice)
	}
	if got.Cancelled || got.AssetWithdrawn || got.FundsWithdrawn || got.Tombstoned {
		t.Errorf("fresh listing has lifecycle flags set: %+v", got)
	}

	if _, err := repo.Get(ctx, 99); err == nil {
		t.Error("expected error getting a missing listing")
	}
}

func TestListingRepo_List(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewListingRepo(db)
	ctx := context.Background()

	for id := int64(0); id < 3; id++ {
		if err := repo.Create(ctx, testListing(id)); err != nil {
			t.Fatalf("Create(%d): %v", id, err)
		}
	}
	if err := repo.Tombstone(ctx, 1); err != nil {
		t.Fatalf("Tombstone: %v", err)
	}

	// List returns every row, tombstoned included, ordered by id.
	all, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("List returned %d rows, want 3", len(all))
	}
	for i, l := range all {
		if l.ID != int64(i) {
			t.Errorf("row %d has id %d", i, l.ID)
		}
	}
	if !all[1].Tombstoned {
		t.Error("row 1 should be tombstoned")
	}
}

func TestListingRepo_Bids(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewListingRepo(db)
	ctx := context.Background()

	if err := repo.Create(ctx, testListing(0)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	now := time.Now().UTC()
	for i, amount := range []string{"0.02", "0.025", "0.05"} {
		b := &store.Bid{
			ListingID: 0,
			Seq:       i,
			Bidder:    "0xb1d1",
			Amount:    decimal.RequireFromString(amount),
			CreatedAt: now.Add(time.Duration(i) * time.Second),
		}
		if err := repo.AppendBid(ctx, b); err != nil {
			t.Fatalf("AppendBid(%d): %v", i, err)
		}
	}

	bids, err := repo.ListBids(ctx, 0)
	if err != nil {
		t.Fatalf("ListBids: %v", err)
	}
	if len(bids) != 3 {
		t.Fatalf("ListBids returned %d, want 3", len(bids))
	}
	if !bids[2].Amount.Equal(decimal.RequireFromString("0.05")) {
		t.Errorf("last bid = %s, want 0.05", bids[2].Amount)
	}

	// Duplicate (listing_id, seq) violates the primary key.
	dup := &store.Bid{ListingID: 0, Seq: 2, Bidder: "0xb1d2", Amount: decimal.RequireFromString("1"), CreatedAt: now}
	if err := repo.AppendBid(ctx, dup); err == nil {
		t.Error("expected error appending a duplicate sequence number")
	}
}

func TestListingRepo_Flags(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewListingRepo(db)
	ctx := context.Background()

	if err := repo.Create(ctx, testListing(0)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	tests := []struct {
		name string
		call func() error
		get  func(l *store.Listing) bool
	}{
		{"cancelled", func() error { return repo.SetCancelled(ctx, 0) }, func(l *store.Listing) bool { return l.Cancelled }},
		{"asset_withdrawn", func() error { return repo.MarkAssetWithdrawn(ctx, 0) }, func(l *store.Listing) bool { return l.AssetWithdrawn }},
		{"funds_withdrawn", func() error { return repo.MarkFundsWithdrawn(ctx, 0) }, func(l *store.Listing) bool { return l.FundsWithdrawn }},
		{"tombstoned", func() error { return repo.Tombstone(ctx, 0) }, func(l *store.Listing) bool { return l.Tombstoned }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); err != nil {
				t.Fatalf("setting %s: %v", tt.name, err)
			}
			got, err := repo.Get(ctx, 0)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if !tt.get(got) {
				t.Errorf("%s flag not set", tt.name)
			}
		})
	}

	if err := repo.SetCancelled(ctx, 42); err == nil {
		t.Error("expected error flagging a missing listing")
	}
}
