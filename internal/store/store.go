package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Listing is the persisted snapshot of an auction listing. The id is the
// registry slot index and is never reused; deletion only flips Tombstoned.
type Listing struct {
	ID             int64           `db:"id"`
	Creator        string          `db:"creator"`
	AssetContract  string          `db:"asset_contract"`
	AssetID        int64           `db:"asset_id"`
	StartPrice     decimal.Decimal `db:"start_price"`
	DirectBuyPrice decimal.Decimal `db:"direct_buy_price"`
	MinIncrement   decimal.Decimal `db:"min_increment"`
	Cancelled      bool            `db:"cancelled"`
	AssetWithdrawn bool            `db:"asset_withdrawn"`
	FundsWithdrawn bool            `db:"funds_withdrawn"`
	Tombstoned     bool            `db:"tombstoned"`
	CreatedAt      time.Time       `db:"created_at"`
	EndTime        time.Time       `db:"end_time"`
}

// Bid is one persisted ledger entry, keyed by (listing_id, seq) in
// insertion order.
type Bid struct {
	ListingID int64           `db:"listing_id"`
	Seq       int             `db:"seq"`
	Bidder    string          `db:"bidder"`
	Amount    decimal.Decimal `db:"amount"`
	CreatedAt time.Time       `db:"created_at"`
}

// ListingRepository defines listing persistence operations.
type ListingRepository interface {
	Create(ctx context.Context, l *Listing) error
	Get(ctx context.Context, id int64) (*Listing, error)
	// List returns every listing row, tombstoned included, ordered by id.
	List(ctx context.Context) ([]Listing, error)
	AppendBid(ctx context.Context, b *Bid) error
	ListBids(ctx context.Context, listingID int64) ([]Bid, error)
	SetCancelled(ctx context.Context, id int64) error
	MarkAssetWithdrawn(ctx context.Context, id int64) error
	MarkFundsWithdrawn(ctx context.Context, id int64) error
	Tombstone(ctx context.Context, id int64) error
}
