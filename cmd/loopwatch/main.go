// loopwatch is a one-shot diagnostic: it scores every admissible loop from a
// starting currency against live REST quotes and prints the ranking.
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/TeaUponTweed/coin-pusher/internal/config"
	"github.com/TeaUponTweed/coin-pusher/internal/connectors/coinbase"
	"github.com/TeaUponTweed/coin-pusher/internal/evaluator"
	"github.com/TeaUponTweed/coin-pusher/internal/market"
	"github.com/TeaUponTweed/coin-pusher/internal/volume"
)

func main() {
	var cfgPath, currency string
	var amount float64

	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config file")
	flag.StringVar(&currency, "currency", "USD", "starting currency")
	flag.Float64Var(&amount, "amount", 100, "amount of the starting currency")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Println("[cfg] load failed:", err)
		os.Exit(1)
	}

	if !market.HasCurrency(currency) {
		fmt.Println("[cfg] unknown currency:", currency)
		os.Exit(1)
	}

	logger := zap.NewNop()
	client, err := coinbase.NewClient(cfg, logger)
	if err != nil {
		fmt.Println("[coinbase] client init failed:", err)
		os.Exit(1)
	}
	vol := volume.NewModel(client, cfg.VolumeTTL())
	eval := evaluator.New(client, vol, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	loops := market.LoopsFrom(currency)
	fmt.Printf("[eval] scoring %d loops from %s with %g %s …\n", len(loops), currency, amount, currency)

	scores := make([]evaluator.LoopScore, 0, len(loops))
	for _, loop := range loops {
		score, err := eval.ScoreLoop(ctx, loop, amount)
		if err != nil {
			fmt.Printf("  %-24s  error: %v\n", strings.Join(loop, "→"), err)
			continue
		}
		scores = append(scores, score)
	}

	sort.Slice(scores, func(i, j int) bool { return scores[i].ProfitRate > scores[j].ProfitRate })

	fmt.Printf("\n%-24s %12s %12s %14s\n", "loop", "factor", "time_s", "profit_rate")
	for _, s := range scores {
		rate := "-inf"
		if !math.IsInf(s.ProfitRate, -1) {
			rate = fmt.Sprintf("%.8f", s.ProfitRate)
		}
		fmt.Printf("%-24s %12.6f %12.1f %14s\n",
			strings.Join(s.Loop, "→"), s.Factor, s.TimeCost, rate)
	}
}
