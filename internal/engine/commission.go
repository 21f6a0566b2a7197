package engine

import (
	"github.com/shopspring/decimal"

	"github.com/jordidiaz04/transactions/internal/model"
)

// Commission decides whether a commission is owed for a movement given the
// product's transaction count in the current period. It returns nil when no
// commission applies: the policy has no free-transaction ceiling, the count is
// still under the ceiling, or the configured amount is unset or zero (a zero
// commission is normalized to "no commission" for record keeping).
func Commission(periodCount int64, policy model.CommissionPolicy) *decimal.Decimal {
	if policy.MaxFreePerPeriod == nil {
		return nil
	}
	if periodCount < *policy.MaxFreePerPeriod {
		return nil
	}
	if policy.Commission == nil || policy.Commission.IsZero() {
		return nil
	}
	amount := *policy.Commission
	return &amount
}
