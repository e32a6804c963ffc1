package sqlitestore

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/kpmarket/auctiond/internal/store"
)

// ListingRepo implements store.ListingRepository on sqlite.
type ListingRepo struct {
	db *sqlx.DB
}

// NewListingRepo returns a new ListingRepo.
func NewListingRepo(db *sqlx.DB) *ListingRepo {
	return &ListingRepo{db: db}
}

func (r *ListingRepo) Create(ctx context.Context, l *store.Listing) error {
	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO listings (id, creator, asset_contract, asset_id, start_price,
		        direct_buy_price, min_increment, cancelled, asset_withdrawn,
		        funds_withdrawn, tombstoned, created_at, end_time)
		 VALUES (:id, :creator, :asset_contract, :asset_id, :start_price,
		        :direct_buy_price, :min_increment, :cancelled, :asset_withdrawn,
		        :funds_withdrawn, :tombstoned, :created_at, :end_time)`, l)
	if err != nil {
		return fmt.Errorf("inserting listing: %w", err)
	}
	return nil
}

func (r *ListingRepo) Get(ctx context.Context, id int64) (*store.Listing, error) {
	var l store.Listing
	err := r.db.GetContext(ctx, &l, `SELECT * FROM listings WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("getting listing: %w", err)
	}
	return &l, nil
}

func (r *ListingRepo) List(ctx context.Context) ([]store.Listing, error) {
	var listings []store.Listing
	err := r.db.SelectContext(ctx, &listings, `SELECT * FROM listings ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing listings: %w", err)
	}
	return listings, nil
}

func (r *ListingRepo) AppendBid(ctx context.Context, b *store.Bid) error {
	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO bids (listing_id, seq, bidder, amount, created_at)
		 VALUES (:listing_id, :seq, :bidder, :amount, :created_at)`, b)
	if err != nil {
		return fmt.Errorf("inserting bid: %w", err)
	}
	return nil
}

func (r *ListingRepo) ListBids(ctx context.Context, listingID int64) ([]store.Bid, error) {
	var bids []store.Bid
	err := r.db.SelectContext(ctx, &bids,
		`SELECT * FROM bids WHERE listing_id = ? ORDER BY seq ASC`, listingID)
	if err != nil {
		return nil, fmt.Errorf("listing bids: %w", err)
	}
	return bids, nil
}

func (r *ListingRepo) SetCancelled(ctx context.Context, id int64) error {
	return r.setFlag(ctx, id, "cancelled")
}

func (r *ListingRepo) MarkAssetWithdrawn(ctx context.Context, id int64) error {
	return r.setFlag(ctx, id, "asset_withdrawn")
}

func (r *ListingRepo) MarkFundsWithdrawn(ctx context.Context, id int64) error {
	return r.setFlag(ctx, id, "funds_withdrawn")
}

func (r *ListingRepo) Tombstone(ctx context.Context, id int64) error {
	return r.setFlag(ctx, id, "tombstoned")
}

func (r *ListingRepo) setFlag(ctx context.Context, id int64, column string) error {
	result, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE listings SET %s = 1 WHERE id = ?`, column), id)
	if err != nil {
		return fmt.Errorf("setting %s: %w", column, err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("listing %d not found", id)
	}
	return nil
}
