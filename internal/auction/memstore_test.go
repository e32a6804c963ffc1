package auction_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/kpmarket/auctiond/internal/event"
	"github.com/kpmarket/auctiond/internal/store"
)

// --- in-memory fakes shared by the package tests ---

type memEventStore struct {
	mu       sync.Mutex
	events   []event.Event
	appendFn func(events ...event.Event) error
}

func (m *memEventStore) Append(_ context.Context, events ...event.Event) error {
	if m.appendFn != nil {
		return m.appendFn(events...)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	return nil
}

func (m *memEventStore) Load(_ context.Context, aggregateID string) ([]event.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []event.Event
	for _, e := range m.events {
		if e.AggregateID == aggregateID {
			result = append(result, e)
		}
	}
	return result, nil
}

func (m *memEventStore) LoadByType(_ context.Context, eventType event.Type) ([]event.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []event.Event
	for _, e := range m.events {
		if e.Type == eventType {
			result = append(result, e)
		}
	}
	return result, nil
}

func (m *memEventStore) byType(t event.Type) []event.Event {
	out, _ := m.LoadByType(context.Background(), t)
	return out
}

type memListingRepo struct {
	mu       sync.Mutex
	listings []store.Listing
	bids     map[int64][]store.Bid
	failNext error
}

func newMemListingRepo() *memListingRepo {
	return &memListingRepo{bids: make(map[int64][]store.Bid)}
}

func (m *memListingRepo) Create(_ context.Context, l *store.Listing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return err
	}
	m.listings = append(m.listings, *l)
	return nil
}

func (m *memListingRepo) Get(_ context.Context, id int64) (*store.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.listings {
		if m.listings[i].ID == id {
			rec := m.listings[i]
			return &rec, nil
		}
	}
	return nil, fmt.Errorf("listing %d not found", id)
}

func (m *memListingRepo) List(_ context.Context) ([]store.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.Listing, len(m.listings))
	copy(out, m.listings)
	return out, nil
}

func (m *memListingRepo) AppendBid(_ context.Context, b *store.Bid) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bids[b.ListingID] = append(m.bids[b.ListingID], *b)
	return nil
}

func (m *memListingRepo) ListBids(_ context.Context, listingID int64) ([]store.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.Bid, len(m.bids[listingID]))
	copy(out, m.bids[listingID])
	return out, nil
}

func (m *memListingRepo) set(id int64, f func(*store.Listing)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.listings {
		if m.listings[i].ID == id {
			f(&m.listings[i])
			return nil
		}
	}
	return fmt.Errorf("listing %d not found", id)
}

func (m *memListingRepo) SetCancelled(_ context.Context, id int64) error {
	return m.set(id, func(l *store.Listing) { l.Cancelled = true })
}

func (m *memListingRepo) MarkAssetWithdrawn(_ context.Context, id int64) error {
	return m.set(id, func(l *store.Listing) { l.AssetWithdrawn = true })
}

func (m *memListingRepo) MarkFundsWithdrawn(_ context.Context, id int64) error {
	return m.set(id, func(l *store.Listing) { l.FundsWithdrawn = true })
}

func (m *memListingRepo) Tombstone(_ context.Context, id int64) error {
	return m.set(id, func(l *store.Listing) { l.Tombstoned = true })
}
