package auction

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kpmarket/auctiond/internal/clock"
	"github.com/kpmarket/auctiond/internal/custody"
	"github.com/kpmarket/auctiond/internal/event"
	"github.com/kpmarket/auctiond/internal/store"
)

// State is the derived lifecycle state of a listing.
type State int

const (
	StateOpen State = iota
	StateCancelled
	StateEnded
	StateDirectlyBought
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateCancelled:
		return "cancelled"
	case StateEnded:
		return "ended"
	case StateDirectlyBought:
		return "directly_bought"
	default:
		return "unknown"
	}
}

// Resolved reports whether the listing reached a terminal state that gates
// withdrawal (Ended or DirectlyBought).
func (s State) Resolved() bool {
	return s == StateEnded || s == StateDirectlyBought
}

// Listing is the aggregate root for one escrowed auction. It is safe for
// concurrent use; every mutating call either fully commits, including its
// custody transfers, or leaves all state untouched.
type Listing struct {
	mu sync.RWMutex

	// Fixed at creation.
	ID             int64
	Creator        string
	AssetContract  string
	AssetID        int64
	StartPrice     decimal.Decimal
	DirectBuyPrice decimal.Decimal
	MinIncrement   decimal.Decimal
	CreatedAt      time.Time
	EndTime        time.Time

	cancelled      bool
	maxBid         decimal.Decimal
	maxBidder      string
	ledger         BidLedger
	assetWithdrawn bool
	fundsWithdrawn bool

	custody custody.AssetCustody
	clock   clock.Clock
	tracer  trace.Tracer

	version int
	events  []event.Event
}

func newListing(id int64, p CreateParams, createdAt, endTime time.Time, cust custody.AssetCustody, tp trace.TracerProvider, clk clock.Clock) *Listing {
	l := &Listing{
		ID:             id,
		Creator:        p.Creator,
		AssetContract:  p.AssetContract,
		AssetID:        p.AssetID,
		StartPrice:     p.StartPrice,
		DirectBuyPrice: p.DirectBuyPrice,
		MinIncrement:   p.MinIncrement,
		CreatedAt:      createdAt,
		EndTime:        endTime,
		custody:        cust,
		clock:          clk,
		tracer:         tp.Tracer("github.com/kpmarket/auctiond/internal/auction"),
	}

	data, _ := json.Marshal(event.AuctionCreatedData{
		Creator:        p.Creator,
		Duration:       p.Duration,
		MinIncrement:   p.MinIncrement,
		DirectBuyPrice: p.DirectBuyPrice,
		StartPrice:     p.StartPrice,
		AssetContract:  p.AssetContract,
		AssetID:        p.AssetID,
		EndTime:        endTime,
	})
	l.recordEvent(event.AuctionCreated, data)
	return l
}

// restoreListing rebuilds a listing from its persisted snapshot without
// emitting events or touching custody. version is the highest event
// version already persisted for the aggregate; new events resume after
// it so they never collide with rows written before the restart.
func restoreListing(rec store.Listing, bids []store.Bid, version int, cust custody.AssetCustody, tp trace.TracerProvider, clk clock.Clock) *Listing {
	l := &Listing{
		ID:             rec.ID,
		Creator:        rec.Creator,
		AssetContract:  rec.AssetContract,
		AssetID:        rec.AssetID,
		StartPrice:     rec.StartPrice,
		DirectBuyPrice: rec.DirectBuyPrice,
		MinIncrement:   rec.MinIncrement,
		CreatedAt:      rec.CreatedAt,
		EndTime:        rec.EndTime,
		cancelled:      rec.Cancelled,
		assetWithdrawn: rec.AssetWithdrawn,
		fundsWithdrawn: rec.FundsWithdrawn,
		custody:        cust,
		clock:          clk,
		tracer:         tp.Tracer("github.com/kpmarket/auctiond/internal/auction"),
	}
	for _, b := range bids {
		l.ledger.Append(Bid{Bidder: b.Bidder, Amount: b.Amount, Time: b.CreatedAt})
	}
	if last, ok := l.ledger.Last(); ok {
		l.maxBid = last.Amount
		l.maxBidder = last.Bidder
	}
	l.version = version
	// Creation plus one event per bid is the floor in case an append was
	// lost before the restart.
	if floor := l.ledger.Len() + 1; l.version < floor {
		l.version = floor
	}
	return l
}

// restoreEscrow replays this listing's escrow holdings into an
// in-process custody backend. The token sits in escrow until the listing
// is cancelled or the asset withdrawn; the highest bid stays escrowed
// until the creator collects it.
func (l *Listing) restoreEscrow(c custody.Restorer) {
	if !l.cancelled && !l.assetWithdrawn {
		c.RegisterAsset(l.AssetContract, l.AssetID, l.EscrowAccount())
	}
	if l.maxBidder != "" && !l.fundsWithdrawn {
		c.SetBalance(l.EscrowAccount(), l.maxBid)
	}
}

// EscrowAccount is the custody account holding this listing's escrowed
// token and funds.
func (l *Listing) EscrowAccount() string {
	return fmt.Sprintf("auction-%d", l.ID)
}

// State evaluates the lifecycle state lazily from the cancellation flag,
// the running maximum bid and the clock. Direct buy is checked before
// expiry so a direct-buy bid placed at the deadline still wins.
func (l *Listing) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state()
}

func (l *Listing) state() State {
	switch {
	case l.cancelled:
		return StateCancelled
	case l.maxBidder != "" && l.maxBid.GreaterThanOrEqual(l.DirectBuyPrice):
		return StateDirectlyBought
	case !l.clock.Now().Before(l.EndTime):
		return StateEnded
	default:
		return StateOpen
	}
}

// PlaceBid validates and accepts a bid, escrowing the new amount and
// refunding the superseded highest bidder. At most one bid escrow is live
// at any time. It returns the accepted bid and its ledger sequence so the
// caller persists exactly what this call committed, whatever lands next.
func (l *Listing) PlaceBid(ctx context.Context, bidder string, amount decimal.Decimal) (Bid, int, error) {
	ctx, span := l.tracer.Start(ctx, "Listing.PlaceBid",
		trace.WithAttributes(
			attribute.Int64("listing.id", l.ID),
			attribute.String("bidder", bidder),
			attribute.String("bid.amount", amount.String()),
		),
	)
	defer span.End()

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state() != StateOpen {
		return Bid{}, 0, ErrAuctionNotOpen
	}
	if bidder == l.Creator {
		return Bid{}, 0, ErrCreatorCannotBid
	}
	if l.maxBidder == "" {
		if amount.LessThan(l.StartPrice) {
			return Bid{}, 0, ErrBelowStartPrice
		}
	} else if amount.LessThan(l.maxBid.Add(l.MinIncrement)) {
		return Bid{}, 0, ErrBelowMinIncrement
	}

	if err := l.custody.DepositFunds(ctx, l.EscrowAccount(), bidder, amount); err != nil {
		return Bid{}, 0, fmt.Errorf("escrowing bid: %w", err)
	}

	// Refund the superseded highest bid before committing the new one.
	if l.maxBidder != "" {
		if err := l.custody.ReleaseFunds(ctx, l.EscrowAccount(), l.maxBidder, l.maxBid); err != nil {
			if rbErr := l.custody.ReleaseFunds(ctx, l.EscrowAccount(), bidder, amount); rbErr != nil {
				slog.ErrorContext(ctx, "rolling back escrowed bid failed",
					slog.Int64("listing_id", l.ID),
					slog.Any("error", rbErr),
				)
			}
			return Bid{}, 0, fmt.Errorf("refunding previous bidder: %w", err)
		}
	}

	b := Bid{Bidder: bidder, Amount: amount, Time: l.clock.Now()}
	l.ledger.Append(b)
	seq := l.ledger.Len() - 1
	l.maxBid = amount
	l.maxBidder = bidder

	data, _ := json.Marshal(event.BidPlacedData{Bidder: bidder, Amount: amount})
	l.recordEvent(event.AuctionBidPlaced, data)

	slog.InfoContext(ctx, "bid placed",
		slog.Int64("listing_id", l.ID),
		slog.String("bidder", bidder),
		slog.String("amount", amount.String()),
	)
	return b, seq, nil
}

// Cancel aborts an open, bidless auction and returns the escrowed token to
// the creator.
func (l *Listing) Cancel(ctx context.Context, caller string) error {
	ctx, span := l.tracer.Start(ctx, "Listing.Cancel",
		trace.WithAttributes(attribute.Int64("listing.id", l.ID)),
	)
	defer span.End()

	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.Creator {
		return ErrNotCreator
	}
	if l.state() != StateOpen {
		return ErrAuctionNotOpen
	}
	if l.maxBidder != "" {
		return ErrBidAlreadyPlaced
	}

	if err := l.custody.TransferAsset(ctx, l.AssetContract, l.AssetID, l.EscrowAccount(), l.Creator); err != nil {
		return fmt.Errorf("returning escrowed asset: %w", err)
	}

	l.cancelled = true
	data, _ := json.Marshal(event.AuctionCancelledData{By: caller})
	l.recordEvent(event.AuctionCancelled, data)

	slog.InfoContext(ctx, "auction cancelled", slog.Int64("listing_id", l.ID))
	return nil
}

// WithdrawAsset releases the escrowed token once the auction has resolved.
// The highest bidder collects the token; if the auction expired without a
// single bid, the creator reclaims it instead.
func (l *Listing) WithdrawAsset(ctx context.Context, caller string) error {
	ctx, span := l.tracer.Start(ctx, "Listing.WithdrawAsset",
		trace.WithAttributes(attribute.Int64("listing.id", l.ID)),
	)
	defer span.End()

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.state().Resolved() {
		return ErrAuctionNotResolved
	}
	if l.maxBidder == "" {
		if caller != l.Creator {
			return ErrNotCreator
		}
	} else if caller != l.maxBidder {
		return ErrNotHighestBidder
	}
	if l.assetWithdrawn {
		return ErrAlreadyWithdrawn
	}

	if err := l.custody.TransferAsset(ctx, l.AssetContract, l.AssetID, l.EscrowAccount(), caller); err != nil {
		return fmt.Errorf("withdrawing asset: %w", err)
	}

	l.assetWithdrawn = true
	data, _ := json.Marshal(event.TokenWithdrawnData{To: caller})
	l.recordEvent(event.AuctionTokenWithdrawn, data)

	slog.InfoContext(ctx, "asset withdrawn",
		slog.Int64("listing_id", l.ID),
		slog.String("to", caller),
	)
	return nil
}

// WithdrawFunds pays the winning bid out of escrow to the creator once the
// auction has resolved.
func (l *Listing) WithdrawFunds(ctx context.Context, caller string) error {
	ctx, span := l.tracer.Start(ctx, "Listing.WithdrawFunds",
		trace.WithAttributes(attribute.Int64("listing.id", l.ID)),
	)
	defer span.End()

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.state().Resolved() {
		return ErrAuctionNotResolved
	}
	if caller != l.Creator {
		return ErrNotCreator
	}
	if l.maxBidder == "" {
		return ErrNoBids
	}
	if l.fundsWithdrawn {
		return ErrAlreadyWithdrawn
	}

	if err := l.custody.ReleaseFunds(ctx, l.EscrowAccount(), l.Creator, l.maxBid); err != nil {
		return fmt.Errorf("withdrawing funds: %w", err)
	}

	l.fundsWithdrawn = true
	data, _ := json.Marshal(event.FundsWithdrawnData{To: caller, Amount: l.maxBid})
	l.recordEvent(event.AuctionFundsWithdrawn, data)

	slog.InfoContext(ctx, "funds withdrawn",
		slog.Int64("listing_id", l.ID),
		slog.String("to", caller),
		slog.String("amount", l.maxBid.String()),
	)
	return nil
}

// HighestBid returns a copy of the current highest bid, or nil.
func (l *Listing) HighestBid() *Bid {
	l.mu.RLock()
	defer l.mu.RUnlock()
	last, ok := l.ledger.Last()
	if !ok {
		return nil
	}
	return &last
}

// BidCount returns the number of accepted bids.
func (l *Listing) BidCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ledger.Len()
}

// AllBids returns the accepted bidders and amounts in insertion order.
// The two slices always have equal length.
func (l *Listing) AllBids() ([]string, []decimal.Decimal) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	bidders := make([]string, 0, l.ledger.Len())
	amounts := make([]decimal.Decimal, 0, l.ledger.Len())
	for _, b := range l.ledger.bids {
		bidders = append(bidders, b.Bidder)
		amounts = append(amounts, b.Amount)
	}
	return bidders, amounts
}

// Info is a read-only projection of a listing for external display.
type Info struct {
	ID             int64            `json:"id"`
	Creator        string           `json:"creator"`
	AssetContract  string           `json:"asset_contract"`
	AssetID        int64            `json:"asset_id"`
	StartPrice     decimal.Decimal  `json:"start_price"`
	DirectBuyPrice decimal.Decimal  `json:"direct_buy_price"`
	MinIncrement   decimal.Decimal  `json:"min_increment"`
	EndTime        time.Time        `json:"end_time"`
	State          string           `json:"state"`
	MaxBid         *decimal.Decimal `json:"max_bid,omitempty"`
	MaxBidder      string           `json:"max_bidder,omitempty"`
	BidCount       int              `json:"bid_count"`
}

// Info returns a consistent snapshot of the listing.
func (l *Listing) Info() Info {
	l.mu.RLock()
	defer l.mu.RUnlock()

	info := Info{
		ID:             l.ID,
		Creator:        l.Creator,
		AssetContract:  l.AssetContract,
		AssetID:        l.AssetID,
		StartPrice:     l.StartPrice,
		DirectBuyPrice: l.DirectBuyPrice,
		MinIncrement:   l.MinIncrement,
		EndTime:        l.EndTime,
		State:          l.state().String(),
		BidCount:       l.ledger.Len(),
	}
	if l.maxBidder != "" {
		maxBid := l.maxBid
		info.MaxBid = &maxBid
		info.MaxBidder = l.maxBidder
	}
	return info
}

// snapshot converts the listing to its persisted form. Caller must hold at
// least a read lock or exclusive ownership.
func (l *Listing) snapshot() *store.Listing {
	return &store.Listing{
		ID:             l.ID,
		Creator:        l.Creator,
		AssetContract:  l.AssetContract,
		AssetID:        l.AssetID,
		StartPrice:     l.StartPrice,
		DirectBuyPrice: l.DirectBuyPrice,
		MinIncrement:   l.MinIncrement,
		Cancelled:      l.cancelled,
		AssetWithdrawn: l.assetWithdrawn,
		FundsWithdrawn: l.fundsWithdrawn,
		CreatedAt:      l.CreatedAt,
		EndTime:        l.EndTime,
	}
}

// PendingEvents returns uncommitted events and clears the buffer.
func (l *Listing) PendingEvents() []event.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	events := l.events
	l.events = nil
	return events
}

func (l *Listing) recordEvent(t event.Type, data json.RawMessage) {
	l.version++
	l.events = append(l.events, event.Event{
		ID:          uuid.NewString(),
		AggregateID: aggregateID(l.ID),
		Type:        t,
		Data:        data,
		Version:     l.version,
		CreatedAt:   l.clock.Now(),
	})
}

func aggregateID(id int64) string {
	return fmt.Sprintf("listing-%d", id)
}
