package manager

import (
	"context"
	"math"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/TeaUponTweed/coin-pusher/internal/ledger"
	"github.com/TeaUponTweed/coin-pusher/internal/market"
	"github.com/TeaUponTweed/coin-pusher/internal/metrics"
)

// ErrOrderRejected wraps an exchange decline (insufficient funds, size too
// small, size too precise, ...). The ledger and wallet are left unchanged and
// no automatic retry is attempted.
var ErrOrderRejected = errors.New("order rejected")

// PostResult is the exchange's answer to an order post, decoded once at the
// client boundary: either an assigned id or a rejection message.
type PostResult struct {
	OrderID string
	Message string
}

func (r PostResult) Accepted() bool {
	return r.Message == "" && r.OrderID != ""
}

// TradingClient is the authenticated exchange REST surface the manager needs.
type TradingClient interface {
	Balances(ctx context.Context) (map[string]float64, error)
	OpenOrders(ctx context.Context) ([]ledger.Order, error)
	PostOrder(ctx context.Context, product string, side market.Side, price, size float64) (PostResult, error)
	CancelOrder(ctx context.Context, id string) error
	CancelAllOrders(ctx context.Context) error
}

// PriceSource gives the best resting price per product and side, used for
// wallet and order valuation.
type PriceSource interface {
	BestPrice(product string, side market.Side) (price, depth float64, err error)
}

// Event is an asynchronous order-state message from the exchange feed. Sizes
// are denominated in the order's held currency.
type Event struct {
	Type          string
	OrderID       string
	ProductID     string
	Side          market.Side
	Price         float64
	Size          float64 // matched amount, match events only
	RemainingSize float64
	Reason        string // done events only
	Sequence      int64
}

const (
	EventOpen  = "open"
	EventMatch = "match"
	EventDone  = "done"

	ReasonFilled    = "filled"
	ReasonCancelled = "cancelled"
)

// DesiredTrade asks for Amount of Base to be offered for Destination at
// Price, resting post-only on the resolved product.
type DesiredTrade struct {
	Base        string
	Amount      float64
	Destination string
	Price       float64
}

// Manager owns the wallet and the order ledger behind a single lock: a
// reconciliation decision and an exchange event must never interleave
// mid-update.
type Manager struct {
	mu     sync.Mutex
	wallet map[string]float64
	orders *ledger.Ledger

	client TradingClient
	prices PriceSource
	quote  string
	tol    float64
	log    *zap.Logger
}

func New(client TradingClient, prices PriceSource, quoteCurrency string, tolerance float64, log *zap.Logger) *Manager {
	if tolerance <= 0 {
		tolerance = 1e-8
	}
	return &Manager{
		wallet: make(map[string]float64, 8),
		orders: ledger.New(),
		client: client,
		prices: prices,
		quote:  quoteCurrency,
		tol:    tolerance,
		log:    log,
	}
}

// Bootstrap rebuilds the wallet and order ledger from REST snapshots. Called
// once at startup; there is no persisted state.
func (m *Manager) Bootstrap(ctx context.Context) error {
	balances, err := m.client.Balances(ctx)
	if err != nil {
		return errors.Wrap(err, "account balances")
	}
	open, err := m.client.OpenOrders(ctx)
	if err != nil {
		return errors.Wrap(err, "open orders")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.wallet = make(map[string]float64, len(balances))
	for cur, amt := range balances {
		m.wallet[cur] = amt
	}
	for _, o := range open {
		if err := m.orders.Add(o); err != nil {
			m.log.Warn("skipping open order from snapshot",
				zap.String("order_id", o.ID),
				zap.Error(err),
			)
		}
	}
	return nil
}

// RefreshBalances re-syncs the wallet from a fresh REST snapshot. The local
// fill accounting drifts when events are missed; the periodic snapshot is the
// source of truth.
func (m *Manager) RefreshBalances(ctx context.Context) error {
	balances, err := m.client.Balances(ctx)
	if err != nil {
		return errors.Wrap(err, "account balances")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wallet = make(map[string]float64, len(balances))
	for cur, amt := range balances {
		m.wallet[cur] = amt
	}
	return nil
}

// Balances returns a copy of the wallet for the decision loop.
func (m *Manager) Balances() map[string]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]float64, len(m.wallet))
	for cur, amt := range m.wallet {
		out[cur] = amt
	}
	return out
}

// AccountValue sums every wallet balance and every outstanding order's
// notional converted to the quote currency via the best ask. Currencies with
// no quotable route are valued at zero rather than failing the computation.
func (m *Manager) AccountValue() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := 0.0
	for cur, amt := range m.wallet {
		total += m.valueInQuote(cur, amt)
	}
	for _, o := range m.orders.Snapshot() {
		_, quoteCur, err := market.SplitProduct(o.Product)
		if err != nil {
			continue
		}
		total += m.valueInQuote(quoteCur, o.Notional())
	}
	return total
}

func (m *Manager) valueInQuote(currency string, amount float64) float64 {
	if amount == 0 {
		return 0
	}
	if currency == m.quote {
		return amount
	}
	product := market.MakeProduct(currency, m.quote)
	if !market.HasProduct(product) {
		return 0
	}
	ask, _, err := m.prices.BestPrice(product, market.SideSell)
	if err != nil || ask <= 0 {
		return 0
	}
	return amount * ask
}

// Reconcile maps a desired trade onto the outstanding orders holding the same
// currency: no-op when an order already matches within tolerance, cancel
// anything stale, then post the new resting order. The whole decision runs
// under the wallet/ledger lock so it cannot interleave with exchange events.
func (m *Manager) Reconcile(ctx context.Context, d DesiredTrade) error {
	product, side, err := market.Resolve(d.Base, d.Destination)
	if err != nil {
		return err
	}
	size := market.RoundToIncrement(d.Base, d.Amount)
	if size <= 0 {
		// amount too small to trade; not an error
		m.log.Debug("desired size rounds to zero",
			zap.String("currency", d.Base),
			zap.Float64("amount", d.Amount),
		)
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var stale []ledger.Order
	for _, o := range m.orders.Snapshot() {
		if o.HeldCurrency != d.Base {
			continue
		}
		if o.Product == product && m.approx(o.Price, d.Price) {
			if m.approx(o.Size, size) {
				// the desire is already on the book
				return nil
			}
			// Same market and price with a different size. Neither augmented
			// nor replaced: the existing order keeps its claim on the balance
			// and no second order is posted against it.
			m.log.Warn("order size drifted from desire; leaving as is",
				zap.String("order_id", o.ID),
				zap.Float64("have", o.Size),
				zap.Float64("want", size),
			)
			return nil
		}
		stale = append(stale, o)
	}

	for _, o := range stale {
		if err := m.client.CancelOrder(ctx, o.ID); err != nil {
			m.log.Warn("cancel request failed",
				zap.String("order_id", o.ID),
				zap.Error(err),
			)
			continue
		}
		metrics.OrdersCancelled.Inc()
		// the ledger entry stays until the exchange confirms with a done event
	}

	res, err := m.client.PostOrder(ctx, product, side, d.Price, size)
	if err != nil {
		return errors.Wrapf(err, "post %s %s", side, product)
	}
	if !res.Accepted() {
		metrics.OrderRejections.Inc()
		return errors.Wrapf(ErrOrderRejected, "%s %s: %s", side, product, res.Message)
	}

	if err := m.orders.Add(ledger.Order{
		ID:           res.OrderID,
		Product:      product,
		Side:         side,
		Price:        d.Price,
		Size:         size,
		HeldCurrency: d.Base,
		Sequence:     0,
	}); err != nil {
		return errors.Wrapf(err, "record order %s", res.OrderID)
	}
	// mirror the exchange hold on the committed balance
	m.wallet[d.Base] -= size
	metrics.OrdersPosted.Inc()
	return nil
}

// ApplyExchangeEvent folds an open/match/done message into the wallet and
// ledger. Stale sequences and unknown ids are logged and dropped; a bad event
// must never crash the process.
func (m *Manager) ApplyExchangeEvent(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ord, ok := m.orders.Get(ev.OrderID)
	if !ok {
		m.log.Debug("event for unknown order dropped",
			zap.String("type", ev.Type),
			zap.String("order_id", ev.OrderID),
		)
		metrics.StaleEventsDropped.Inc()
		return
	}

	switch ev.Type {
	case EventOpen:
		// accepted with part of the size already executed
		fill := ord.Size - ev.RemainingSize
		upd := ord
		upd.Size = ev.RemainingSize
		upd.Sequence = ev.Sequence
		if err := m.orders.ApplyUpdate(upd); err != nil {
			m.dropEvent(ev, err)
			return
		}
		if fill > 0 {
			m.credit(ord, fill)
		}

	case EventMatch:
		if ev.Size <= 0 || ev.Size > ord.Size+m.tol {
			m.dropEvent(ev, errors.Errorf("match size %.10f out of range", ev.Size))
			return
		}
		upd := ord
		upd.Size = ord.Size - ev.Size
		upd.Sequence = ev.Sequence
		if err := m.orders.ApplyUpdate(upd); err != nil {
			m.dropEvent(ev, err)
			return
		}
		m.credit(ord, ev.Size)

	case EventDone:
		if ord.Sequence >= ev.Sequence {
			m.dropEvent(ev, ledger.ErrStaleSequence)
			return
		}
		if err := m.orders.Remove(ev.OrderID); err != nil {
			m.dropEvent(ev, err)
			return
		}
		if ev.Reason == ReasonCancelled {
			// never executed; the remaining hold comes straight back
			m.wallet[ord.HeldCurrency] += ord.Size
		} else {
			m.credit(ord, ord.Size)
		}

	default:
		m.log.Debug("unhandled event type", zap.String("type", ev.Type))
	}
}

// credit applies the trade-result delta for a fill: the held currency was
// already committed at post time, the destination gains the converted amount.
func (m *Manager) credit(ord ledger.Order, fill float64) {
	base, quoteCur, err := market.SplitProduct(ord.Product)
	if err != nil {
		m.log.Warn("malformed product on ledger order", zap.String("product", ord.Product))
		return
	}
	if ord.Side == market.SideSell {
		m.wallet[quoteCur] += fill * ord.Price
	} else {
		m.wallet[base] += fill / ord.Price
	}
}

func (m *Manager) dropEvent(ev Event, err error) {
	m.log.Warn("exchange event dropped",
		zap.String("type", ev.Type),
		zap.String("order_id", ev.OrderID),
		zap.Int64("sequence", ev.Sequence),
		zap.Error(err),
	)
	metrics.StaleEventsDropped.Inc()
}

// CancelAll issues a bulk cancel and releases every ledger hold. Invoked
// unconditionally on shutdown, error paths included, so no resting order
// outlives the process.
func (m *Manager) CancelAll(ctx context.Context) error {
	if err := m.client.CancelAllOrders(ctx); err != nil {
		return errors.Wrap(err, "cancel all")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders.Snapshot() {
		m.wallet[o.HeldCurrency] += o.Size
		if err := m.orders.Remove(o.ID); err != nil {
			m.log.Warn("ledger remove after bulk cancel", zap.String("order_id", o.ID), zap.Error(err))
		}
	}
	return nil
}

// OutstandingOrders exposes a snapshot for diagnostics and the dashboard.
func (m *Manager) OutstandingOrders() []ledger.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders.Snapshot()
}

func (m *Manager) approx(a, b float64) bool {
	return math.Abs(a-b) <= m.tol
}
