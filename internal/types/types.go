package types

import "time"

// Decision is an actionable first hop chosen by the evaluator for one held
// currency. Only the first hop is placed as a resting order; later hops are
// re-evaluated once it fills.
type Decision struct {
	Currency    string
	Destination string
	Price       float64
	Amount      float64
	ProfitRate  float64
	Ts          time.Time
}
