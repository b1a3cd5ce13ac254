package market

import (
	"fmt"
	"math"
	"strings"
)

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Products tradable on the exchange. "X-Y" means X is the base and Y the
// quote; direction matters when resolving a hop.
var Products = []string{"BTC-USD", "ETH-USD", "LTC-USD", "ETH-BTC", "LTC-BTC"}

// Increments is the minimum tradable step per currency. Every order size must
// be an integer multiple of the held currency's increment.
var Increments = map[string]float64{
	"USD": 0.01,
	"BTC": 0.0001,
	"ETH": 0.001,
	"LTC": 0.01,
}

// Currencies lists the closed set used for loop enumeration, in a stable order.
var Currencies = []string{"USD", "BTC", "ETH", "LTC"}

var productSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(Products))
	for _, p := range Products {
		m[p] = struct{}{}
	}
	return m
}()

// loops are hand-enumerated admissible closed cycles per starting currency,
// 2 to 5 hops, drawn only from currency pairs with a listed product. Keeping
// the catalogue static bounds evaluation cost; a graph search would
// reintroduce redundant rotations of the same cycle.
var loops = map[string][][]string{
	"USD": {
		{"USD", "BTC", "USD"},
		{"USD", "ETH", "USD"},
		{"USD", "LTC", "USD"},
		{"USD", "BTC", "ETH", "USD"},
		{"USD", "ETH", "BTC", "USD"},
		{"USD", "BTC", "LTC", "USD"},
		{"USD", "LTC", "BTC", "USD"},
		{"USD", "ETH", "BTC", "LTC", "USD"},
		{"USD", "LTC", "BTC", "ETH", "USD"},
	},
	"BTC": {
		{"BTC", "USD", "BTC"},
		{"BTC", "ETH", "BTC"},
		{"BTC", "LTC", "BTC"},
		{"BTC", "ETH", "USD", "BTC"},
		{"BTC", "USD", "ETH", "BTC"},
		{"BTC", "LTC", "USD", "BTC"},
		{"BTC", "USD", "LTC", "BTC"},
		{"BTC", "ETH", "USD", "LTC", "BTC"},
		{"BTC", "LTC", "USD", "ETH", "BTC"},
	},
	"ETH": {
		{"ETH", "USD", "ETH"},
		{"ETH", "BTC", "ETH"},
		{"ETH", "USD", "BTC", "ETH"},
		{"ETH", "BTC", "USD", "ETH"},
		{"ETH", "USD", "LTC", "BTC", "ETH"},
		{"ETH", "BTC", "LTC", "USD", "ETH"},
	},
	"LTC": {
		{"LTC", "USD", "LTC"},
		{"LTC", "BTC", "LTC"},
		{"LTC", "USD", "BTC", "LTC"},
		{"LTC", "BTC", "USD", "LTC"},
		{"LTC", "USD", "ETH", "BTC", "LTC"},
		{"LTC", "BTC", "ETH", "USD", "LTC"},
	},
}

// MakeProduct renders the canonical product name for a base/quote pair.
func MakeProduct(base, quote string) string {
	return base + "-" + quote
}

// HasProduct reports whether the product is in the catalogue.
func HasProduct(product string) bool {
	_, ok := productSet[product]
	return ok
}

// HasCurrency reports whether the currency is in the catalogue.
func HasCurrency(currency string) bool {
	_, ok := Increments[currency]
	return ok
}

// Increment returns the quantity step for the currency, or 0 if unknown.
func Increment(currency string) float64 {
	return Increments[currency]
}

// RoundToIncrement floors amount to an integer multiple of the currency's
// increment. Unknown currencies round to zero so they can never be traded.
func RoundToIncrement(currency string, amount float64) float64 {
	inc := Increments[currency]
	if inc <= 0 || amount <= 0 {
		return 0
	}
	return math.Floor(amount/inc) * inc
}

// Resolve maps a hop cur->next onto the product used to execute it. When the
// forward product exists the hop sells cur (the base); otherwise the hop buys
// on the reverse product.
func Resolve(cur, next string) (product string, side Side, err error) {
	if p := MakeProduct(cur, next); HasProduct(p) {
		return p, SideSell, nil
	}
	if p := MakeProduct(next, cur); HasProduct(p) {
		return p, SideBuy, nil
	}
	return "", "", fmt.Errorf("no product for %s->%s", cur, next)
}

// SplitProduct returns the base and quote currency of a product name.
func SplitProduct(product string) (base, quote string, err error) {
	parts := strings.SplitN(product, "-", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed product %q", product)
	}
	return parts[0], parts[1], nil
}

// HeldCurrency is the currency given up by a resting order: the base when
// selling, the quote when buying.
func HeldCurrency(product string, side Side) (string, error) {
	base, quote, err := SplitProduct(product)
	if err != nil {
		return "", err
	}
	if side == SideSell {
		return base, nil
	}
	return quote, nil
}

// LoopsFrom returns the admissible loops starting (and ending) at currency.
// The returned slices are shared static data and must not be mutated.
func LoopsFrom(currency string) [][]string {
	return loops[currency]
}
