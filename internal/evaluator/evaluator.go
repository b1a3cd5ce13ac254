package evaluator

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/TeaUponTweed/coin-pusher/internal/market"
)

// PriceOracle exposes the best resting price and the total size queued at
// that price for the direction needed to execute one hop: the ask for a sell,
// the bid for a buy.
type PriceOracle interface {
	BestPrice(product string, side market.Side) (price, depth float64, err error)
}

// VolumeRater estimates matched base volume per second for a product.
type VolumeRater interface {
	Rate(ctx context.Context, product string) (float64, error)
}

// Hop is the actionable first hop of the best scoring loop.
type Hop struct {
	Destination string
	Price       float64
	ProfitRate  float64
}

// LoopScore is the full evaluation of a single loop.
type LoopScore struct {
	Loop            []string
	Factor          float64
	TimeCost        float64
	ProfitRate      float64
	FirstHopPrice   float64
	FirstHopProduct string
}

type Evaluator struct {
	oracle PriceOracle
	rates  VolumeRater
	log    *zap.Logger
}

func New(oracle PriceOracle, rates VolumeRater, log *zap.Logger) *Evaluator {
	return &Evaluator{oracle: oracle, rates: rates, log: log}
}

// ScoreLoop walks the loop hop by hop, compounding the price factor and
// accumulating the expected time to fill each hop behind the volume already
// resting at the used price level. A market with no volume estimate scores
// the whole loop -Inf instead of dividing by zero.
func (e *Evaluator) ScoreLoop(ctx context.Context, loop []string, available float64) (LoopScore, error) {
	score := LoopScore{Loop: loop, Factor: 1.0, ProfitRate: math.Inf(-1)}
	amount := available

	for i := 0; i < len(loop)-1; i++ {
		cur, next := loop[i], loop[i+1]
		product, side, err := market.Resolve(cur, next)
		if err != nil {
			return score, err
		}
		price, depth, err := e.oracle.BestPrice(product, side)
		if err != nil {
			return score, errors.Wrapf(err, "no quote for %s", product)
		}
		if price <= 0 {
			return score, errors.Errorf("non-positive %s price for %s", side, product)
		}

		qty := market.RoundToIncrement(cur, amount)
		if qty <= 0 {
			return score, errors.Errorf("amount %.10f %s rounds to zero", amount, cur)
		}

		// baseQty is the hop's trade size in the product's base currency,
		// the denomination of both depth and the volume rate.
		var converted, baseQty float64
		if side == market.SideSell {
			score.Factor *= price
			converted = market.RoundToIncrement(next, qty*price)
			baseQty = qty
		} else {
			score.Factor /= price
			converted = market.RoundToIncrement(next, qty/price)
			baseQty = converted
		}
		if converted <= 0 {
			return score, errors.Errorf("hop %s->%s converts to zero", cur, next)
		}

		rate, err := e.rates.Rate(ctx, product)
		if err != nil || rate <= 0 {
			// zero capacity: infinite time cost
			return score, nil
		}
		score.TimeCost += (baseQty + depth) / rate

		if i == 0 {
			score.FirstHopPrice = price
			score.FirstHopProduct = product
		}
		amount = converted
	}

	if score.TimeCost <= 0 {
		return score, nil
	}
	score.ProfitRate = (score.Factor - 1.0) / score.TimeCost
	return score, nil
}

// BestNextHop scores every admissible loop starting at start and returns the
// immediate destination, the first hop's price and the profit rate of the
// best loop. The boolean is false when no loop scores above zero. Failures
// evaluating one loop degrade that loop only.
func (e *Evaluator) BestNextHop(ctx context.Context, start string, available float64) (Hop, bool) {
	if available < market.Increment(start) || market.Increment(start) == 0 {
		return Hop{}, false
	}

	best := LoopScore{ProfitRate: math.Inf(-1)}
	for _, loop := range market.LoopsFrom(start) {
		score, err := e.ScoreLoop(ctx, loop, available)
		if err != nil {
			e.log.Debug("loop evaluation failed",
				zap.Strings("loop", loop),
				zap.Error(err),
			)
			continue
		}
		if score.ProfitRate > best.ProfitRate {
			best = score
		}
	}

	if math.IsInf(best.ProfitRate, -1) || best.ProfitRate <= 0 {
		return Hop{}, false
	}
	return Hop{
		Destination: best.Loop[1],
		Price:       best.FirstHopPrice,
		ProfitRate:  best.ProfitRate,
	}, true
}
