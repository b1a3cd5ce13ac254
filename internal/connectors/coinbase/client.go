package coinbase

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/TeaUponTweed/coin-pusher/internal/config"
	"github.com/TeaUponTweed/coin-pusher/internal/ledger"
	"github.com/TeaUponTweed/coin-pusher/internal/manager"
	"github.com/TeaUponTweed/coin-pusher/internal/market"
)

// Client talks to the Coinbase Exchange REST API. It implements the price
// oracle, the volume stats source and the manager's trading client.
type Client struct {
	cfg  *config.Config
	log  *zap.Logger
	http *http.Client
}

func NewClient(cfg *config.Config, log *zap.Logger) (*Client, error) {
	return &Client{cfg: cfg, log: log, http: &http.Client{Timeout: 6 * time.Second}}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, auth bool) ([]byte, int, error) {
	endpoint := strings.TrimRight(c.cfg.Coinbase.RestURL, "/") + path
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, rdr)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "build %s %s", method, path)
	}
	req.Header.Set("Content-Type", "application/json")
	if auth {
		ts := strconv.FormatInt(time.Now().Unix(), 10)
		sig, err := c.sign(ts + method + path + string(body))
		if err != nil {
			return nil, 0, err
		}
		req.Header.Set("CB-ACCESS-KEY", c.cfg.Coinbase.Key)
		req.Header.Set("CB-ACCESS-SIGN", sig)
		req.Header.Set("CB-ACCESS-TIMESTAMP", ts)
		req.Header.Set("CB-ACCESS-PASSPHRASE", c.cfg.Coinbase.Passphrase)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, errors.Wrapf(err, "read %s %s", method, path)
	}
	return b, resp.StatusCode, nil
}

// sign produces the CB-ACCESS-SIGN header: base64 HMAC-SHA256 of
// timestamp+method+path+body keyed with the base64-decoded API secret.
func (c *Client) sign(msg string) (string, error) {
	key, err := base64.StdEncoding.DecodeString(c.cfg.Coinbase.Secret)
	if err != nil {
		return "", errors.Wrap(err, "decode api secret")
	}
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(msg))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// BestPrice returns the top-of-book price and the size resting at it for the
// side a resting order would join: the ask for a sell, the bid for a buy.
func (c *Client) BestPrice(product string, side market.Side) (price, depth float64, err error) {
	b, status, err := c.do(context.Background(), "GET", "/products/"+product+"/book?level=1", nil, false)
	if err != nil {
		return 0, 0, err
	}
	if status != http.StatusOK {
		return 0, 0, errors.Errorf("book %s: status %d: %s", product, status, string(b))
	}
	v := gjson.ParseBytes(b)
	level := v.Get("asks.0")
	if side == market.SideBuy {
		level = v.Get("bids.0")
	}
	if !level.Exists() {
		return 0, 0, errors.Errorf("empty book for %s %s", product, side)
	}
	price = level.Get("0").Float()
	depth = level.Get("1").Float()
	if price <= 0 {
		return 0, 0, errors.Errorf("bad %s price for %s", side, product)
	}
	return price, depth, nil
}

// Volume24h fetches the 24-hour traded base volume from the stats endpoint.
func (c *Client) Volume24h(ctx context.Context, product string) (float64, error) {
	b, status, err := c.do(ctx, "GET", "/products/"+product+"/stats", nil, false)
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return 0, errors.Errorf("stats %s: status %d: %s", product, status, string(b))
	}
	return gjson.GetBytes(b, "volume").Float(), nil
}

// Balances returns the available amount per currency.
func (c *Client) Balances(ctx context.Context) (map[string]float64, error) {
	b, status, err := c.do(ctx, "GET", "/accounts", nil, true)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, errors.Errorf("accounts: status %d: %s", status, string(b))
	}
	out := make(map[string]float64, 8)
	for _, acct := range gjson.ParseBytes(b).Array() {
		cur := acct.Get("currency").String()
		if cur == "" {
			continue
		}
		out[cur] = acct.Get("available").Float()
	}
	return out, nil
}

// OpenOrders snapshots the resting orders so the ledger can be rebuilt at
// startup. Sizes come back denominated in the held currency.
func (c *Client) OpenOrders(ctx context.Context) ([]ledger.Order, error) {
	b, status, err := c.do(ctx, "GET", "/orders?status=open", nil, true)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, errors.Errorf("orders: status %d: %s", status, string(b))
	}
	var out []ledger.Order
	for _, o := range gjson.ParseBytes(b).Array() {
		product := o.Get("product_id").String()
		side := market.Side(o.Get("side").String())
		held, err := market.HeldCurrency(product, side)
		if err != nil {
			c.log.Warn("skipping open order on unknown product", zap.String("product", product))
			continue
		}
		out = append(out, ledger.Order{
			ID:           o.Get("id").String(),
			Product:      product,
			Side:         side,
			Price:        o.Get("price").Float(),
			Size:         o.Get("size").Float(),
			HeldCurrency: held,
			Sequence:     0,
		})
	}
	return out, nil
}

type postOrderReq struct {
	ProductID   string `json:"product_id"`
	Side        string `json:"side"`
	Price       string `json:"price"`
	Size        string `json:"size"`
	Type        string `json:"type"`
	PostOnly    bool   `json:"post_only"`
	TimeInForce string `json:"time_in_force"`
}

// PostOrder places a post-only GTC limit order and decodes the response into
// the accepted/rejected variant exactly once. Both response shapes are
// expected: {"id": ...} on success, {"message": ...} on decline.
func (c *Client) PostOrder(ctx context.Context, product string, side market.Side, price, size float64) (manager.PostResult, error) {
	body, err := json.Marshal(postOrderReq{
		ProductID:   product,
		Side:        string(side),
		Price:       trim(price),
		Size:        trim(size),
		Type:        "limit",
		PostOnly:    true,
		TimeInForce: "GTC",
	})
	if err != nil {
		return manager.PostResult{}, errors.Wrap(err, "encode order")
	}
	b, status, err := c.do(ctx, "POST", "/orders", body, true)
	if err != nil {
		return manager.PostResult{}, err
	}
	v := gjson.ParseBytes(b)
	if msg := v.Get("message"); msg.Exists() {
		return manager.PostResult{Message: msg.String()}, nil
	}
	if id := v.Get("id"); id.Exists() && status < 300 {
		return manager.PostResult{OrderID: id.String()}, nil
	}
	return manager.PostResult{}, errors.Errorf("order post: status %d: %s", status, string(b))
}

func (c *Client) CancelOrder(ctx context.Context, id string) error {
	b, status, err := c.do(ctx, "DELETE", "/orders/"+id, nil, true)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return errors.Errorf("cancel %s: status %d: %s", id, status, string(b))
	}
	return nil
}

func (c *Client) CancelAllOrders(ctx context.Context) error {
	b, status, err := c.do(ctx, "DELETE", "/orders", nil, true)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return errors.Errorf("cancel all: status %d: %s", status, string(b))
	}
	return nil
}

func trim(v float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.8f", v), "0"), ".")
}
