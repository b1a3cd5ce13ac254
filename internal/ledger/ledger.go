package ledger

import (
	"errors"

	"github.com/TeaUponTweed/coin-pusher/internal/market"
)

var (
	ErrDuplicateID   = errors.New("ledger: duplicate order id")
	ErrStaleSequence = errors.New("ledger: stale sequence")
	ErrNotFound      = errors.New("ledger: order not found")
)

// Order is a resting limit order believed live on the exchange. Size is
// denominated in HeldCurrency units. Sequence is a strictly increasing update
// token; updates carrying a sequence at or below the stored one are stale.
type Order struct {
	ID           string
	Product      string
	Side         market.Side
	Price        float64
	Size         float64
	HeldCurrency string
	Sequence     int64
}

// Notional is the order's value in the product's quote currency.
func (o Order) Notional() float64 {
	if o.Side == market.SideSell {
		return o.Size * o.Price
	}
	// a buy holds the quote currency already
	return o.Size
}

// Ledger is the in-memory record of outstanding orders keyed by the
// exchange-assigned id. It is not safe for concurrent use on its own; the
// owning manager serializes access together with the wallet.
type Ledger struct {
	orders map[string]Order
}

func New() *Ledger {
	return &Ledger{orders: make(map[string]Order, 16)}
}

// Add records a newly accepted order.
func (l *Ledger) Add(o Order) error {
	if _, ok := l.orders[o.ID]; ok {
		return ErrDuplicateID
	}
	l.orders[o.ID] = o
	return nil
}

// ApplyUpdate replaces the stored order if the incoming sequence is strictly
// greater; otherwise the entry is left unmodified.
func (l *Ledger) ApplyUpdate(o Order) error {
	cur, ok := l.orders[o.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Sequence >= o.Sequence {
		return ErrStaleSequence
	}
	l.orders[o.ID] = o
	return nil
}

// Remove drops an order on confirmed terminal state or explicit cancellation.
func (l *Ledger) Remove(id string) error {
	if _, ok := l.orders[id]; !ok {
		return ErrNotFound
	}
	delete(l.orders, id)
	return nil
}

func (l *Ledger) Get(id string) (Order, bool) {
	o, ok := l.orders[id]
	return o, ok
}

// Snapshot copies the current orders so callers can iterate (and restart
// iteration) without observing concurrent mutation.
func (l *Ledger) Snapshot() []Order {
	out := make([]Order, 0, len(l.orders))
	for _, o := range l.orders {
		out = append(out, o)
	}
	return out
}

func (l *Ledger) Len() int { return len(l.orders) }
