package evaluator

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/TeaUponTweed/coin-pusher/internal/market"
)

type quote struct{ price, depth float64 }

type fakeOracle struct {
	quotes map[string]quote // key: product|side
}

func (f *fakeOracle) BestPrice(product string, side market.Side) (float64, float64, error) {
	q, ok := f.quotes[product+"|"+string(side)]
	if !ok {
		return 0, 0, fmt.Errorf("empty book for %s %s", product, side)
	}
	return q.price, q.depth, nil
}

type fakeRater struct {
	rates map[string]float64
}

func (f *fakeRater) Rate(_ context.Context, product string) (float64, error) {
	r, ok := f.rates[product]
	if !ok {
		return 0, fmt.Errorf("no stats for %s", product)
	}
	return r, nil
}

// scenarioA wires the book from the USD->BTC->ETH->USD walkthrough: buy BTC
// at 10000 behind 1 BTC of depth, buy ETH at 0.05 behind 2 ETH, sell ETH at
// 510 behind 3 ETH, matched volume 1.0/sec everywhere.
func scenarioA() (*fakeOracle, *fakeRater) {
	oracle := &fakeOracle{quotes: map[string]quote{
		"BTC-USD|buy":  {10000, 1},
		"ETH-BTC|buy":  {0.05, 2},
		"ETH-USD|sell": {510, 3},
	}}
	rater := &fakeRater{rates: map[string]float64{
		"BTC-USD": 1.0, "ETH-BTC": 1.0, "ETH-USD": 1.0,
	}}
	return oracle, rater
}

func TestScoreLoop_ScenarioA(t *testing.T) {
	oracle, rater := scenarioA()
	e := New(oracle, rater, zap.NewNop())

	score, err := e.ScoreLoop(context.Background(), []string{"USD", "BTC", "ETH", "USD"}, 100)
	require.NoError(t, err)

	// factor = 1/10000 / 0.05 * 510 = 1.02
	assert.InDelta(t, 1.02, score.Factor, 1e-9)
	// time = (0.01+1)/1 + (0.2+2)/1 + (0.2+3)/1 = 6.41
	assert.InDelta(t, 6.41, score.TimeCost, 1e-9)
	assert.InDelta(t, 0.02/6.41, score.ProfitRate, 1e-9)
	assert.Greater(t, score.ProfitRate, 0.0)
	assert.Equal(t, "BTC-USD", score.FirstHopProduct)
	assert.InDelta(t, 10000.0, score.FirstHopPrice, 1e-9)
}

func TestScoreLoop_Deterministic(t *testing.T) {
	oracle, rater := scenarioA()
	e := New(oracle, rater, zap.NewNop())
	loop := []string{"USD", "BTC", "ETH", "USD"}

	a, err := e.ScoreLoop(context.Background(), loop, 100)
	require.NoError(t, err)
	b, err := e.ScoreLoop(context.Background(), loop, 100)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestBestNextHop_ScenarioA(t *testing.T) {
	oracle, rater := scenarioA()
	e := New(oracle, rater, zap.NewNop())

	hop, ok := e.BestNextHop(context.Background(), "USD", 100)
	require.True(t, ok)
	assert.Equal(t, "BTC", hop.Destination)
	assert.InDelta(t, 10000.0, hop.Price, 1e-9, "only the first hop's price is actionable")
	assert.InDelta(t, 0.02/6.41, hop.ProfitRate, 1e-9)
}

func TestBestNextHop_NoneWhenUnprofitable(t *testing.T) {
	oracle, rater := scenarioA()
	// final sell now loses money: factor = 1/10000/0.05*490 = 0.98
	oracle.quotes["ETH-USD|sell"] = quote{490, 3}
	e := New(oracle, rater, zap.NewNop())

	_, ok := e.BestNextHop(context.Background(), "USD", 100)
	assert.False(t, ok, "must never return a destination when best profit rate <= 0")
}

func TestBestNextHop_BelowIncrement(t *testing.T) {
	oracle, rater := scenarioA()
	e := New(oracle, rater, zap.NewNop())

	_, ok := e.BestNextHop(context.Background(), "USD", 0.005)
	assert.False(t, ok)
}

func TestScoreLoop_ZeroVolumeRate(t *testing.T) {
	oracle, rater := scenarioA()
	rater.rates["ETH-BTC"] = 0
	e := New(oracle, rater, zap.NewNop())

	score, err := e.ScoreLoop(context.Background(), []string{"USD", "BTC", "ETH", "USD"}, 100)
	require.NoError(t, err)
	assert.True(t, math.IsInf(score.ProfitRate, -1), "zero capacity must score -Inf, not divide by zero")

	_, ok := e.BestNextHop(context.Background(), "USD", 100)
	assert.False(t, ok)
}

func TestBestNextHop_LoopFailureIsolated(t *testing.T) {
	oracle, rater := scenarioA()
	// add a quotable but unprofitable 2-hop loop; the 3-hop loop still wins
	oracle.quotes["BTC-USD|sell"] = quote{9000, 1}
	rater.rates["BTC-USD"] = 1.0
	e := New(oracle, rater, zap.NewNop())

	hop, ok := e.BestNextHop(context.Background(), "USD", 100)
	require.True(t, ok)
	assert.Equal(t, "BTC", hop.Destination)
	assert.InDelta(t, 0.02/6.41, hop.ProfitRate, 1e-9)
}
