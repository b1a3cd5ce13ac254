package bot

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/TeaUponTweed/coin-pusher/internal/config"
	"github.com/TeaUponTweed/coin-pusher/internal/connectors/coinbase"
	"github.com/TeaUponTweed/coin-pusher/internal/dash"
	"github.com/TeaUponTweed/coin-pusher/internal/evaluator"
	"github.com/TeaUponTweed/coin-pusher/internal/feed"
	"github.com/TeaUponTweed/coin-pusher/internal/manager"
	"github.com/TeaUponTweed/coin-pusher/internal/market"
	"github.com/TeaUponTweed/coin-pusher/internal/metrics"
	"github.com/TeaUponTweed/coin-pusher/internal/risk"
	"github.com/TeaUponTweed/coin-pusher/internal/types"
	"github.com/TeaUponTweed/coin-pusher/internal/volume"
)

// Bot wires the market-data mirror, the loop evaluator and the order manager
// together and drives the decision loop.
type Bot struct {
	cfg *config.Config
	log *zap.Logger
}

func New(cfg *config.Config, log *zap.Logger) *Bot {
	return &Bot{cfg: cfg, log: log}
}

func (b *Bot) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	metrics.Serve(ctx, b.cfg.Metrics.ListenAddr, nil, b.log)

	client, err := coinbase.NewClient(b.cfg, b.log)
	if err != nil {
		return err
	}

	book := NewBookCache()
	ws := coinbase.NewWS(b.cfg)
	ticks, err := ws.SubscribeTicker(ctx, market.Products)
	if err != nil {
		return err
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case tick, ok := <-ticks:
				if !ok {
					b.log.Warn("ticker feed closed")
					cancel()
					return
				}
				book.Set(tick)
			}
		}
	}()
	b.log.Info("subscribed to ticker feed", zap.Strings("products", market.Products))

	missing := waitWSBootstrap(ctx, book, market.Products, b.cfg.BootstrapTimeout(), b.log)
	if len(missing) > 0 {
		b.log.Warn("WS bootstrap timeout, continue with partial book",
			zap.Strings("products_missing", missing),
		)
	} else {
		b.log.Info("book ready for all products")
	}

	mgr := manager.New(client, book, b.cfg.QuoteCurrency, b.cfg.Trade.Tolerance, b.log)
	if err := mgr.Bootstrap(ctx); err != nil {
		return err
	}
	b.log.Info("ledger bootstrapped", zap.Int("open_orders", len(mgr.OutstandingOrders())))

	if !b.cfg.DryRun {
		// resting orders must not outlive the process, even on error exits
		defer func() {
			shCtx, shCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shCancel()
			if err := mgr.CancelAll(shCtx); err != nil {
				b.log.Error("cancel all on shutdown failed", zap.Error(err))
			} else {
				b.log.Info("all resting orders cancelled")
			}
		}()

		events, err := ws.SubscribeUserEvents(ctx, market.Products)
		if err != nil {
			return err
		}
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case ev, ok := <-events:
					if !ok {
						b.log.Warn("user event feed closed")
						cancel()
						return
					}
					mgr.ApplyExchangeEvent(ev)
				}
			}
		}()
	} else {
		b.log.Warn("DRY-RUN: no real orders will be sent")
	}

	vol := volume.NewModel(client, b.cfg.VolumeTTL())
	eval := evaluator.New(book, vol, b.log)
	riskEng := risk.NewEngine(b.cfg)

	store := dash.NewStore()
	dash.Serve(ctx, b.cfg.Dash.ListenAddr, store, b.log)

	var pub *feed.Publisher
	if b.cfg.Redis.Addr != "" {
		pub = feed.NewPublisher(b.cfg)
		defer pub.Close()
	}

	t := time.NewTicker(b.cfg.DecideInterval())
	defer t.Stop()
	refresh := time.NewTicker(b.cfg.BalanceRefresh())
	defer refresh.Stop()
	for {
		select {
		case <-ctx.Done():
			b.log.Info("coin-pusher finished")
			return nil
		case <-refresh.C:
			if err := mgr.RefreshBalances(ctx); err != nil {
				b.log.Warn("balance refresh failed", zap.Error(err))
			}
		case <-t.C:
			b.decide(ctx, mgr, eval, riskEng, store, pub)
		}
	}
}

// decide runs one pass of the decision loop: value the account, then for
// every catalogue currency with spare balance ask for the best next hop and
// reconcile it against the live orders. A failure for one currency never
// blocks the others.
func (b *Bot) decide(
	ctx context.Context,
	mgr *manager.Manager,
	eval *evaluator.Evaluator,
	riskEng *risk.Engine,
	store *dash.Store,
	pub *feed.Publisher,
) {
	value := mgr.AccountValue()
	metrics.AccountValue.Set(value)
	b.log.Info("account value", zap.Float64("value", value), zap.String("quote", b.cfg.QuoteCurrency))
	if pub != nil {
		if err := pub.PublishAccountValue(ctx, value, time.Now().UnixMilli()); err != nil {
			b.log.Debug("feed publish failed", zap.Error(err))
		}
	}

	balances := mgr.Balances()
	for _, cur := range market.Currencies {
		avail := balances[cur]
		if avail < market.Increment(cur) {
			continue
		}

		started := time.Now()
		hop, ok := eval.BestNextHop(ctx, cur, avail)
		metrics.EvalLatency.Observe(time.Since(started).Seconds())
		if !ok {
			metrics.BestProfitRate.WithLabelValues(cur).Set(0)
			continue
		}
		metrics.BestProfitRate.WithLabelValues(cur).Set(hop.ProfitRate)

		d := types.Decision{
			Currency:    cur,
			Destination: hop.Destination,
			Price:       hop.Price,
			Amount:      avail,
			ProfitRate:  hop.ProfitRate,
			Ts:          time.Now(),
		}
		allowed := riskEng.AllowTrade(hop.ProfitRate, notionalOf(cur, avail, hop))
		store.Update(d, allowed)
		if pub != nil {
			if err := pub.PublishDecision(ctx, d); err != nil {
				b.log.Debug("feed publish failed", zap.Error(err))
			}
		}
		if !allowed || b.cfg.DryRun {
			continue
		}

		err := mgr.Reconcile(ctx, manager.DesiredTrade{
			Base:        cur,
			Amount:      avail,
			Destination: hop.Destination,
			Price:       hop.Price,
		})
		if err != nil {
			b.log.Warn("reconcile failed",
				zap.String("currency", cur),
				zap.Error(err),
			)
		}
	}
}

// notionalOf estimates the order's value in the product's quote currency for
// the risk gate.
func notionalOf(cur string, avail float64, hop evaluator.Hop) float64 {
	_, side, err := market.Resolve(cur, hop.Destination)
	if err != nil {
		return avail
	}
	if side == market.SideSell {
		return avail * hop.Price
	}
	return avail
}

// BookCache mirrors the best price level per product from the ticker feed.
type BookCache struct {
	mu    sync.RWMutex
	ticks map[string]coinbase.BookTick
}

func NewBookCache() *BookCache {
	return &BookCache{ticks: make(map[string]coinbase.BookTick, 8)}
}

func (bc *BookCache) Set(tick coinbase.BookTick) {
	bc.mu.Lock()
	bc.ticks[tick.ProductID] = tick
	bc.mu.Unlock()
}

// BestPrice returns the resting price and depth for the side an order would
// join: the ask for a sell, the bid for a buy.
func (bc *BookCache) BestPrice(product string, side market.Side) (float64, float64, error) {
	bc.mu.RLock()
	tick, ok := bc.ticks[product]
	bc.mu.RUnlock()
	if !ok {
		return 0, 0, fmt.Errorf("empty book for %s", product)
	}
	if side == market.SideSell {
		if tick.Ask == 0 {
			return 0, 0, fmt.Errorf("no ask for %s", product)
		}
		return tick.Ask, tick.AskSize, nil
	}
	if tick.Bid == 0 {
		return 0, 0, fmt.Errorf("no bid for %s", product)
	}
	return tick.Bid, tick.BidSize, nil
}

func (bc *BookCache) Has(product string) bool {
	bc.mu.RLock()
	tick, ok := bc.ticks[product]
	bc.mu.RUnlock()
	return ok && tick.Bid > 0 && tick.Ask > 0
}

func waitWSBootstrap(ctx context.Context, book *BookCache, products []string, timeout time.Duration, log *zap.Logger) []string {
	deadline := time.Now().Add(timeout)
	missing := make(map[string]struct{}, len(products))
	for _, p := range products {
		missing[p] = struct{}{}
	}
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		for p := range missing {
			if book.Has(p) {
				delete(missing, p)
			}
		}
		if len(missing) == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			out := make([]string, 0, len(missing))
			for p := range missing {
				out = append(out, p)
			}
			sort.Strings(out)
			return out
		}
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
		}
	}
}
