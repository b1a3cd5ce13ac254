package feed

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/TeaUponTweed/coin-pusher/internal/config"
	"github.com/TeaUponTweed/coin-pusher/internal/types"
)

// Publisher pushes evaluated decisions and account-value snapshots onto a
// Redis stream for external dashboards. Publishing is best-effort; a feed
// outage never blocks the decision loop.
type Publisher struct {
	rdb    *redis.Client
	stream string
}

func NewPublisher(cfg *config.Config) *Publisher {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		DB:       cfg.Redis.DB,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
	})
	return &Publisher{rdb: rdb, stream: cfg.Redis.Stream}
}

func (p *Publisher) PublishDecision(ctx context.Context, d types.Decision) error {
	return p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"kind":        "decision",
			"currency":    d.Currency,
			"destination": d.Destination,
			"price":       d.Price,
			"amount":      d.Amount,
			"profit_rate": d.ProfitRate,
			"ts_ms":       d.Ts.UnixMilli(),
		},
	}).Err()
}

func (p *Publisher) PublishAccountValue(ctx context.Context, value float64, tsMs int64) error {
	return p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"kind":  "account_value",
			"value": value,
			"ts_ms": tsMs,
		},
	}).Err()
}

func (p *Publisher) Close() error { return p.rdb.Close() }
