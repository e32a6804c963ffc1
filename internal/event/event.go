package event

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Type identifies an event kind.
type Type string

const (
	AuctionCreated        Type = "auction.created"
	AuctionBidPlaced      Type = "auction.bid_placed"
	AuctionCancelled      Type = "auction.cancelled"
	AuctionTokenWithdrawn Type = "auction.token_withdrawn"
	AuctionFundsWithdrawn Type = "auction.funds_withdrawn"
)

// Event represents a single domain event.
type Event struct {
	ID          string          `json:"id" db:"id"`
	AggregateID string          `json:"aggregate_id" db:"aggregate_id"`
	Type        Type            `json:"type" db:"type"`
	Data        json.RawMessage `json:"data" db:"data"`
	Version     int             `json:"version" db:"version"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// AuctionCreatedData is the payload for AuctionCreated events. It carries
// every listing parameter so a listing can be rebuilt from its journal.
type AuctionCreatedData struct {
	Creator        string          `json:"creator"`
	Duration       time.Duration   `json:"duration"`
	MinIncrement   decimal.Decimal `json:"min_increment"`
	DirectBuyPrice decimal.Decimal `json:"direct_buy_price"`
	StartPrice     decimal.Decimal `json:"start_price"`
	AssetContract  string          `json:"asset_contract"`
	AssetID        int64           `json:"asset_id"`
	EndTime        time.Time       `json:"end_time"`
}

// BidPlacedData is the payload for AuctionBidPlaced events.
type BidPlacedData struct {
	Bidder string          `json:"bidder"`
	Amount decimal.Decimal `json:"amount"`
}

// AuctionCancelledData is the payload for AuctionCancelled events.
type AuctionCancelledData struct {
	By string `json:"by"`
}

// TokenWithdrawnData is the payload for AuctionTokenWithdrawn events.
type TokenWithdrawnData struct {
	To string `json:"to"`
}

// FundsWithdrawnData is the payload for AuctionFundsWithdrawn events.
type FundsWithdrawnData struct {
	To     string          `json:"to"`
	Amount decimal.Decimal `json:"amount"`
}
