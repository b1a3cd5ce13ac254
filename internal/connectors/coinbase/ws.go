package coinbase

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/TeaUponTweed/coin-pusher/internal/config"
	"github.com/TeaUponTweed/coin-pusher/internal/manager"
	"github.com/TeaUponTweed/coin-pusher/internal/market"
)

const readDeadline = 90 * time.Second

// BookTick carries the best bid/ask and the size resting at each, per
// product, from the ticker channel.
type BookTick struct {
	ProductID string
	Bid       float64
	BidSize   float64
	Ask       float64
	AskSize   float64
	TS        time.Time
}

// WS dials the Coinbase websocket feed. Each subscription owns its own
// connection; the feed closes the output channel when the connection drops
// or the context is cancelled.
type WS struct {
	cfg    *config.Config
	Dialer *websocket.Dialer
}

func NewWS(cfg *config.Config) *WS {
	return &WS{
		cfg: cfg,
		Dialer: &websocket.Dialer{
			HandshakeTimeout:  15 * time.Second,
			EnableCompression: true,
		},
	}
}

func (w *WS) dial(ctx context.Context) (*websocket.Conn, error) {
	url := strings.TrimRight(w.cfg.Coinbase.WsURL, "/")
	conn, _, err := w.Dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", url)
	}
	_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readDeadline))
	})
	return conn, nil
}

type subscribeReq struct {
	Type       string   `json:"type"`
	ProductIDs []string `json:"product_ids"`
	Channels   []string `json:"channels"`
	Key        string   `json:"key,omitempty"`
	Passphrase string   `json:"passphrase,omitempty"`
	Timestamp  string   `json:"timestamp,omitempty"`
	Signature  string   `json:"signature,omitempty"`
}

type feedMsg struct {
	Type          string `json:"type"`
	Message       string `json:"message"`
	ProductID     string `json:"product_id"`
	BestBid       string `json:"best_bid"`
	BestBidSize   string `json:"best_bid_size"`
	BestAsk       string `json:"best_ask"`
	BestAskSize   string `json:"best_ask_size"`
	OrderID       string `json:"order_id"`
	MakerOrderID  string `json:"maker_order_id"`
	Side          string `json:"side"`
	Price         string `json:"price"`
	Size          string `json:"size"`
	RemainingSize string `json:"remaining_size"`
	Reason        string `json:"reason"`
	Sequence      int64  `json:"sequence"`
}

// SubscribeTicker streams best bid/ask updates for products on a bounded
// channel. Feeds the local book mirror behind the price oracle.
func (w *WS) SubscribeTicker(ctx context.Context, products []string) (<-chan BookTick, error) {
	conn, err := w.dial(ctx)
	if err != nil {
		return nil, err
	}
	sub := subscribeReq{Type: "subscribe", ProductIDs: products, Channels: []string{"ticker"}}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "subscribe ticker")
	}

	out := make(chan BookTick, 1024)
	go w.pump(ctx, conn, func(m feedMsg) {
		if m.Type != "ticker" || m.ProductID == "" {
			return
		}
		tick := BookTick{
			ProductID: m.ProductID,
			Bid:       toF(m.BestBid),
			BidSize:   toF(m.BestBidSize),
			Ask:       toF(m.BestAsk),
			AskSize:   toF(m.BestAskSize),
			TS:        time.Now(),
		}
		select {
		case out <- tick:
		default: // slow consumer; latest tick wins on the next update
		}
	}, func() { close(out) })
	return out, nil
}

// SubscribeUserEvents streams this account's order lifecycle messages
// (open/match/done) on a bounded channel feeding the manager's synchronized
// update path.
func (w *WS) SubscribeUserEvents(ctx context.Context, products []string) (<-chan manager.Event, error) {
	conn, err := w.dial(ctx)
	if err != nil {
		return nil, err
	}
	sub := subscribeReq{Type: "subscribe", ProductIDs: products, Channels: []string{"user"}}
	if err := w.authorize(&sub); err != nil {
		conn.Close()
		return nil, err
	}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "subscribe user channel")
	}

	out := make(chan manager.Event, 256)
	go w.pump(ctx, conn, func(m feedMsg) {
		switch m.Type {
		case manager.EventOpen, manager.EventMatch, manager.EventDone:
		default:
			return
		}
		id := m.OrderID
		if id == "" {
			// match messages name the resting side as maker
			id = m.MakerOrderID
		}
		ev := manager.Event{
			Type:          m.Type,
			OrderID:       id,
			ProductID:     m.ProductID,
			Side:          market.Side(m.Side),
			Price:         toF(m.Price),
			Size:          toF(m.Size),
			RemainingSize: toF(m.RemainingSize),
			Reason:        m.Reason,
			Sequence:      m.Sequence,
		}
		select {
		case out <- ev:
		case <-ctx.Done():
		}
	}, func() { close(out) })
	return out, nil
}

// authorize attaches the signed fields the user channel requires.
func (w *WS) authorize(sub *subscribeReq) error {
	key, err := base64.StdEncoding.DecodeString(w.cfg.Coinbase.Secret)
	if err != nil {
		return errors.Wrap(err, "decode api secret")
	}
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(ts + "GET" + "/users/self/verify"))
	sub.Key = w.cfg.Coinbase.Key
	sub.Passphrase = w.cfg.Coinbase.Passphrase
	sub.Timestamp = ts
	sub.Signature = base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return nil
}

// pump owns the connection: keepalive pings, read loop, decode, dispatch.
func (w *WS) pump(ctx context.Context, conn *websocket.Conn, handle func(feedMsg), done func()) {
	defer done()
	defer conn.Close()

	pingStop := make(chan struct{})
	defer close(pingStop)
	go func() {
		t := time.NewTicker(20 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-pingStop:
				return
			case <-t.C:
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		var m feedMsg
		if err := conn.ReadJSON(&m); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
		if m.Type == "error" {
			continue
		}
		handle(m)
	}
}

func toF(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
