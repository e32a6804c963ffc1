package auction

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bid is a single accepted bid.
type Bid struct {
	Bidder string
	Amount decimal.Decimal
	Time   time.Time
}

// BidLedger is the append-only sequence of accepted bids for one listing.
// Insertion order is the only order; amounts are monotonic by construction
// because every append is validated against the running maximum. There is
// no removal operation.
type BidLedger struct {
	bids []Bid
}

// Append adds a bid to the end of the ledger.
func (l *BidLedger) Append(b Bid) {
	l.bids = append(l.bids, b)
}

// Len returns the number of accepted bids.
func (l *BidLedger) Len() int {
	return len(l.bids)
}

// Last returns the most recent bid, if any.
func (l *BidLedger) Last() (Bid, bool) {
	if len(l.bids) == 0 {
		return Bid{}, false
	}
	return l.bids[len(l.bids)-1], true
}

// Bids returns a copy of the ledger in insertion order.
func (l *BidLedger) Bids() []Bid {
	out := make([]Bid, len(l.bids))
	copy(out, l.bids)
	return out
}
