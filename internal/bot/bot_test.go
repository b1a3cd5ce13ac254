package bot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/TeaUponTweed/coin-pusher/internal/connectors/coinbase"
	"github.com/TeaUponTweed/coin-pusher/internal/evaluator"
	"github.com/TeaUponTweed/coin-pusher/internal/market"
)

func tick(product string, bid, ask float64) coinbase.BookTick {
	return coinbase.BookTick{ProductID: product, Bid: bid, BidSize: 1, Ask: ask, AskSize: 2}
}

func TestBookCache_SetAndGet(t *testing.T) {
	cache := NewBookCache()
	cache.Set(tick("BTC-USD", 9999.5, 10000.5))

	price, depth, err := cache.BestPrice("BTC-USD", market.SideSell)
	assert.NoError(t, err)
	assert.Equal(t, 10000.5, price)
	assert.Equal(t, 2.0, depth)

	price, depth, err = cache.BestPrice("BTC-USD", market.SideBuy)
	assert.NoError(t, err)
	assert.Equal(t, 9999.5, price)
	assert.Equal(t, 1.0, depth)
}

func TestBookCache_GetEmpty(t *testing.T) {
	cache := NewBookCache()
	_, _, err := cache.BestPrice("BTC-USD", market.SideSell)
	assert.Error(t, err)
}

func TestBookCache_Has(t *testing.T) {
	cache := NewBookCache()
	assert.False(t, cache.Has("BTC-USD"))

	cache.Set(tick("BTC-USD", 9999.5, 10000.5))
	assert.True(t, cache.Has("BTC-USD"))

	cache.Set(coinbase.BookTick{ProductID: "ETH-USD", Bid: 500})
	assert.False(t, cache.Has("ETH-USD"), "one-sided book is not ready")
}

func TestBookCache_ConcurrentAccess(t *testing.T) {
	cache := NewBookCache()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				cache.Set(tick("BTC-USD", 9999.5, 10000.5))
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _, _ = cache.BestPrice("BTC-USD", market.SideSell)
			}
		}()
	}
	wg.Wait()
}

func TestBookCache_ImplementsPriceOracle(t *testing.T) {
	var _ evaluator.PriceOracle = NewBookCache()
}

func TestWaitWSBootstrap_ReportsMissing(t *testing.T) {
	cache := NewBookCache()
	cache.Set(tick("BTC-USD", 9999.5, 10000.5))

	missing := waitWSBootstrap(context.Background(), cache,
		[]string{"BTC-USD", "ETH-USD", "LTC-USD"},
		100*time.Millisecond, zap.NewNop())

	assert.Equal(t, []string{"ETH-USD", "LTC-USD"}, missing)
}

func TestWaitWSBootstrap_AllReady(t *testing.T) {
	cache := NewBookCache()
	for _, p := range market.Products {
		cache.Set(tick(p, 1, 2))
	}
	missing := waitWSBootstrap(context.Background(), cache, market.Products, time.Second, zap.NewNop())
	assert.Nil(t, missing)
}

func TestNotionalOf(t *testing.T) {
	// selling BTC for USD: notional is size*price in USD
	n := notionalOf("BTC", 0.5, evaluator.Hop{Destination: "USD", Price: 10000})
	assert.InDelta(t, 5000.0, n, 1e-9)

	// buying BTC with USD: the held amount already is the quote notional
	n = notionalOf("USD", 100, evaluator.Hop{Destination: "BTC", Price: 10000})
	assert.InDelta(t, 100.0, n, 1e-9)
}
