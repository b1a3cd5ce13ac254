package risk

import "github.com/TeaUponTweed/coin-pusher/internal/config"

// Engine gates reconciliation on the configured profit-rate floor and
// per-order notional cap. Zero config values disable the respective check.
type Engine struct{ cfg *config.Config }

func NewEngine(cfg *config.Config) *Engine { return &Engine{cfg: cfg} }

func (e *Engine) AllowTrade(profitRate, notional float64) bool {
	if profitRate <= 0 {
		return false
	}
	if profitRate < e.cfg.Trade.MinProfitRate {
		return false
	}
	if e.cfg.Trade.MaxNotional > 0 && notional > e.cfg.Trade.MaxNotional {
		return false
	}
	return true
}
