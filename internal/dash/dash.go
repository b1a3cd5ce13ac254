package dash

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/TeaUponTweed/coin-pusher/internal/types"
)

// Row is the latest evaluation outcome for one starting currency.
type Row struct {
	Currency    string  `json:"currency"`
	Destination string  `json:"destination"`
	Price       float64 `json:"price"`
	Amount      float64 `json:"amount"`
	ProfitRate  float64 `json:"profitRate"`
	Actionable  bool    `json:"actionable"`
	TS          int64   `json:"ts"`
}

type Store struct {
	mu   sync.RWMutex
	rows map[string]Row // key: currency
}

func NewStore() *Store { return &Store{rows: make(map[string]Row, 8)} }

func (s *Store) Update(d types.Decision, actionable bool) {
	s.mu.Lock()
	s.rows[d.Currency] = Row{
		Currency:    d.Currency,
		Destination: d.Destination,
		Price:       d.Price,
		Amount:      d.Amount,
		ProfitRate:  d.ProfitRate,
		Actionable:  actionable,
		TS:          time.Now().UnixMilli(),
	}
	s.mu.Unlock()
}

func (s *Store) Rows() []Row {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Row, 0, len(s.rows))
	for _, r := range s.rows {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out
}

// Serve exposes the latest rows as JSON for a dashboard frontend.
func Serve(ctx context.Context, addr string, store *Store, log *zap.Logger) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/rows", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(store.Rows())
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info("dash server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("dash server error", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}
