package auction

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
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

// DefaultMinDuration is the factory's creation-time policy until the owner
// overrides it.
const DefaultMinDuration = 5 * time.Minute

// CreateParams are the caller-supplied parameters for a new listing.
type CreateParams struct {
	Creator        string
	Duration       time.Duration
	MinIncrement   decimal.Decimal
	DirectBuyPrice decimal.Decimal
	StartPrice     decimal.Decimal
	AssetContract  string
	AssetID        int64
}

// slot is one arena entry. Ids are slot indexes and are never reused or
// shifted; deletion only clears exists.
type slot struct {
	listing *Listing
	exists  bool
}

// Registry is the auction factory: it validates creation parameters,
// escrows the asset, assigns stable ids and tracks every listing it ever
// created.
type Registry struct {
	mu          sync.RWMutex
	slots       []slot
	minDuration time.Duration
	owner       string

	custody  custody.AssetCustody
	events   event.Store
	listings store.ListingRepository
	logger   *slog.Logger
	tracer   trace.Tracer
	tp       trace.TracerProvider
	clock    clock.Clock
}

// NewRegistry creates a Registry owned by the given address.
func NewRegistry(owner string, cust custody.AssetCustody, events event.Store, listings store.ListingRepository, logger *slog.Logger, tp trace.TracerProvider, clk clock.Clock) *Registry {
	return &Registry{
		minDuration: DefaultMinDuration,
		owner:       owner,
		custody:     cust,
		events:      events,
		listings:    listings,
		logger:      logger,
		tracer:      tp.Tracer("github.com/kpmarket/auctiond/internal/auction"),
		tp:          tp,
		clock:       clk,
	}
}

// SetMinDuration changes the minimum auction duration. Owner only.
func (r *Registry) SetMinDuration(caller string, d time.Duration) error {
	if caller != r.owner {
		return ErrNotOwner
	}
	if d <= 0 {
		return ErrInvalidConfig
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.minDuration = d
	return nil
}

// MinDuration returns the current minimum auction duration.
func (r *Registry) MinDuration() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.minDuration
}

// CreateAuction validates the parameters, escrows the asset and opens a new
// listing. On any failure nothing is committed.
func (r *Registry) CreateAuction(ctx context.Context, p CreateParams) (int64, error) {
	ctx, span := r.tracer.Start(ctx, "Registry.CreateAuction",
		trace.WithAttributes(
			attribute.String("creator", p.Creator),
			attribute.String("asset_contract", p.AssetContract),
			attribute.Int64("asset_id", p.AssetID),
		),
	)
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	if p.Duration < r.minDuration {
		return 0, ErrDurationTooShort
	}
	if !p.MinIncrement.IsPositive() {
		return 0, ErrInvalidIncrement
	}
	if !p.DirectBuyPrice.IsPositive() {
		return 0, ErrInvalidBuyPrice
	}
	if !p.StartPrice.LessThan(p.DirectBuyPrice) {
		return 0, ErrStartPriceNotBelowBuyPrice
	}
	if isZeroAddress(p.AssetContract) {
		return 0, ErrInvalidAssetRef
	}
	if p.AssetID <= 0 {
		return 0, ErrInvalidAssetID
	}

	id := int64(len(r.slots))
	now := r.clock.Now()
	l := newListing(id, p, now, now.Add(p.Duration), r.custody, r.tp, r.clock)

	if err := r.custody.TransferAsset(ctx, p.AssetContract, p.AssetID, p.Creator, l.EscrowAccount()); err != nil {
		return 0, fmt.Errorf("escrowing asset: %w", err)
	}

	if err := r.listings.Create(ctx, l.snapshot()); err != nil {
		// Return the token before failing; no partial state.
		if rbErr := r.custody.TransferAsset(ctx, p.AssetContract, p.AssetID, l.EscrowAccount(), p.Creator); rbErr != nil {
			r.logger.ErrorContext(ctx, "failed to return asset after persist error",
				slog.Int64("listing_id", id),
				slog.Any("error", rbErr),
			)
		}
		return 0, fmt.Errorf("persisting listing: %w", err)
	}

	if err := r.events.Append(ctx, l.PendingEvents()...); err != nil {
		r.logger.ErrorContext(ctx, "failed to persist created event", slog.Any("error", err))
	}

	r.slots = append(r.slots, slot{listing: l, exists: true})

	r.logger.InfoContext(ctx, "auction created",
		slog.Int64("listing_id", id),
		slog.String("creator", p.Creator),
		slog.String("asset_contract", p.AssetContract),
		slog.Int64("asset_id", p.AssetID),
		slog.Time("end_time", l.EndTime),
	)
	return id, nil
}

// Get returns the listing for a live slot.
func (r *Registry) Get(id int64) (*Listing, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if id < 0 || id >= int64(len(r.slots)) {
		return nil, false
	}
	s := r.slots[id]
	if !s.exists {
		return nil, false
	}
	return s.listing, true
}

// Auctions returns every live listing in creation order.
func (r *Registry) Auctions() []*Listing {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Listing, 0, len(r.slots))
	for _, s := range r.slots {
		if s.exists {
			out = append(out, s.listing)
		}
	}
	return out
}

// Infos returns snapshots for the requested ids, skipping missing and
// tombstoned slots. It never mutates.
func (r *Registry) Infos(ids []int64) []Info {
	out := make([]Info, 0, len(ids))
	for _, id := range ids {
		if l, ok := r.Get(id); ok {
			out = append(out, l.Info())
		}
	}
	return out
}

// PlaceBid places a bid on a live listing and persists the accepted bid.
func (r *Registry) PlaceBid(ctx context.Context, id int64, bidder string, amount decimal.Decimal) error {
	l, ok := r.Get(id)
	if !ok {
		return ErrNotFound
	}
	b, seq, err := l.PlaceBid(ctx, bidder, amount)
	if err != nil {
		return err
	}

	if err := r.listings.AppendBid(ctx, &store.Bid{
		ListingID: id,
		Seq:       seq,
		Bidder:    b.Bidder,
		Amount:    b.Amount,
		CreatedAt: b.Time,
	}); err != nil {
		r.logger.ErrorContext(ctx, "failed to persist bid", slog.Any("error", err))
	}
	r.appendEvents(ctx, l)
	return nil
}

// Cancel cancels a bidless open listing.
func (r *Registry) Cancel(ctx context.Context, id int64, caller string) error {
	l, ok := r.Get(id)
	if !ok {
		return ErrNotFound
	}
	if err := l.Cancel(ctx, caller); err != nil {
		return err
	}
	if err := r.listings.SetCancelled(ctx, id); err != nil {
		r.logger.ErrorContext(ctx, "failed to persist cancellation", slog.Any("error", err))
	}
	r.appendEvents(ctx, l)
	return nil
}

// WithdrawAsset releases the escrowed token of a resolved listing.
func (r *Registry) WithdrawAsset(ctx context.Context, id int64, caller string) error {
	l, ok := r.Get(id)
	if !ok {
		return ErrNotFound
	}
	if err := l.WithdrawAsset(ctx, caller); err != nil {
		return err
	}
	if err := r.listings.MarkAssetWithdrawn(ctx, id); err != nil {
		r.logger.ErrorContext(ctx, "failed to persist asset withdrawal", slog.Any("error", err))
	}
	r.appendEvents(ctx, l)
	return nil
}

// WithdrawFunds pays out the winning bid of a resolved listing.
func (r *Registry) WithdrawFunds(ctx context.Context, id int64, caller string) error {
	l, ok := r.Get(id)
	if !ok {
		return ErrNotFound
	}
	if err := l.WithdrawFunds(ctx, caller); err != nil {
		return err
	}
	if err := r.listings.MarkFundsWithdrawn(ctx, id); err != nil {
		r.logger.ErrorContext(ctx, "failed to persist funds withdrawal", slog.Any("error", err))
	}
	r.appendEvents(ctx, l)
	return nil
}

// DeleteAuction tombstones a slot. The id stays allocated forever and the
// listing's own escrow rules still govern any held asset or funds.
func (r *Registry) DeleteAuction(ctx context.Context, id int64, caller string) error {
	ctx, span := r.tracer.Start(ctx, "Registry.DeleteAuction",
		trace.WithAttributes(attribute.Int64("listing.id", id)),
	)
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	if id < 0 || id >= int64(len(r.slots)) {
		return ErrNotFound
	}
	s := &r.slots[id]
	if !s.exists {
		return ErrAlreadyDeleted
	}
	if caller != r.owner && caller != s.listing.Creator {
		return ErrNotOwner
	}

	s.exists = false
	if err := r.listings.Tombstone(ctx, id); err != nil {
		r.logger.ErrorContext(ctx, "failed to persist tombstone", slog.Any("error", err))
	}

	data, _ := json.Marshal(event.AuctionCancelledData{By: caller})
	evt := event.Event{
		ID:          uuid.NewString(),
		AggregateID: aggregateID(id),
		Type:        event.AuctionCancelled,
		Data:        data,
		CreatedAt:   r.clock.Now(),
	}
	if err := r.events.Append(ctx, evt); err != nil {
		r.logger.ErrorContext(ctx, "failed to persist delete event", slog.Any("error", err))
	}

	r.logger.InfoContext(ctx, "auction deleted",
		slog.Int64("listing_id", id),
		slog.String("by", caller),
	)
	return nil
}

// Recover loads every persisted listing into the arena. It is meant to run
// once on startup, before the registry serves traffic, so open auctions
// survive restarts and failovers.
func (r *Registry) Recover(ctx context.Context) (int, error) {
	ctx, span := r.tracer.Start(ctx, "Registry.Recover")
	defer span.End()

	recs, err := r.listings.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading listings: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.slots) != 0 {
		return 0, fmt.Errorf("recover called on a non-empty registry")
	}

	// An in-process custody backend lost its escrow holdings with the old
	// process; replay them. Durable backends keep their own state.
	restorer, _ := r.custody.(custody.Restorer)

	live := 0
	for _, rec := range recs {
		if rec.ID != int64(len(r.slots)) {
			return 0, fmt.Errorf("listing ids are not dense: got %d, want %d", rec.ID, len(r.slots))
		}
		bids, bidErr := r.listings.ListBids(ctx, rec.ID)
		if bidErr != nil {
			return 0, fmt.Errorf("loading bids for listing %d: %w", rec.ID, bidErr)
		}
		evts, evtErr := r.events.Load(ctx, aggregateID(rec.ID))
		if evtErr != nil {
			return 0, fmt.Errorf("loading events for listing %d: %w", rec.ID, evtErr)
		}
		version := 0
		for _, e := range evts {
			if e.Version > version {
				version = e.Version
			}
		}
		l := restoreListing(rec, bids, version, r.custody, r.tp, r.clock)
		if restorer != nil {
			l.restoreEscrow(restorer)
		}
		r.slots = append(r.slots, slot{listing: l, exists: !rec.Tombstoned})
		if !rec.Tombstoned {
			live++
		}
	}

	r.logger.InfoContext(ctx, "registry recovered",
		slog.Int("total", len(recs)),
		slog.Int("live", live),
	)
	return live, nil
}

func (r *Registry) appendEvents(ctx context.Context, l *Listing) {
	if err := r.events.Append(ctx, l.PendingEvents()...); err != nil {
		r.logger.ErrorContext(ctx, "failed to persist events",
			slog.Int64("listing_id", l.ID),
			slog.Any("error", err),
		)
	}
}

// isZeroAddress treats both an empty string and an all-zero hex address as
// the default value.
func isZeroAddress(addr string) bool {
	if addr == "" {
		return true
	}
	trimmed := strings.TrimPrefix(addr, "0x")
	if trimmed == "" {
		return true
	}
	return strings.Trim(trimmed, "0") == ""
}
