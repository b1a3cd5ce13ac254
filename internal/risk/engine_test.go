package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/TeaUponTweed/coin-pusher/internal/config"
)

func TestAllowTrade(t *testing.T) {
	cfg := &config.Config{}
	cfg.Trade.MinProfitRate = 0.0001
	cfg.Trade.MaxNotional = 1000
	e := NewEngine(cfg)

	assert.True(t, e.AllowTrade(0.001, 500))
	assert.False(t, e.AllowTrade(0.00005, 500), "below the profit-rate floor")
	assert.False(t, e.AllowTrade(0.001, 5000), "above the notional cap")
	assert.False(t, e.AllowTrade(0, 500))
	assert.False(t, e.AllowTrade(-0.5, 500))
}

func TestAllowTrade_UnsetLimits(t *testing.T) {
	e := NewEngine(&config.Config{})
	assert.True(t, e.AllowTrade(1e-9, 1e12))
	assert.False(t, e.AllowTrade(0, 1))
}
