package volume

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
)

// ErrDataUnavailable marks a failed stats fetch. Callers treat the market as
// having zero capacity rather than aborting the evaluation of other loops.
var ErrDataUnavailable = errors.New("volume: data unavailable")

const secondsPerDay = 86400.0

// StatsSource delivers 24-hour traded volume per product, typically the
// exchange REST stats endpoint.
type StatsSource interface {
	Volume24h(ctx context.Context, product string) (float64, error)
}

// Model converts 24h traded volume into an estimated matched-volume rate per
// second. Stats responses are cached so a burst of loop evaluations does not
// hammer the REST endpoint.
type Model struct {
	src   StatsSource
	cache *gocache.Cache
}

func NewModel(src StatsSource, ttl time.Duration) *Model {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Model{
		src:   src,
		cache: gocache.New(ttl, 2*ttl),
	}
}

// Rate returns the estimated matched base volume per second for product.
func (m *Model) Rate(ctx context.Context, product string) (float64, error) {
	if v, ok := m.cache.Get(product); ok {
		return v.(float64), nil
	}
	vol, err := m.src.Volume24h(ctx, product)
	if err != nil {
		return 0, errors.Wrapf(ErrDataUnavailable, "stats for %s: %v", product, err)
	}
	rate := vol / secondsPerDay
	m.cache.SetDefault(product, rate)
	return rate, nil
}
