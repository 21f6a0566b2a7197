package engine

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/jordidiaz04/transactions/internal/model"
)

// Draw is one leg of a multi-account withdrawal plan: how much to debit from
// a single product, plus the commission it owes on this movement (nil when
// the product is not commission-liable).
type Draw struct {
	Product    model.ProductInfo
	Amount     decimal.Decimal
	Commission *decimal.Decimal
}

// PlanAllocation splits a requested withdrawal amount across the products
// linked to a debit card. counts maps product ID to its transaction count in
// the current period, used to decide commission liability per product.
//
// Products are drawn in OrdinalPosition order. A product's available balance
// is its balance net of the commission it would owe; products with nothing
// available are skipped. The plan either covers the full amount or fails with
// ErrInsufficientFunds before any draw is returned.
func PlanAllocation(products []model.ProductInfo, counts map[string]int64, amount decimal.Decimal) ([]Draw, error) {
	sorted := make([]model.ProductInfo, len(products))
	copy(sorted, products)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].OrdinalPosition < sorted[j].OrdinalPosition
	})

	type candidate struct {
		product    model.ProductInfo
		available  decimal.Decimal
		commission *decimal.Decimal
	}

	var total decimal.Decimal
	candidates := make([]candidate, 0, len(sorted))
	for _, p := range sorted {
		commission := Commission(counts[p.ID], p.Policy)
		available := p.Balance
		if commission != nil {
			available = available.Sub(*commission)
		}
		if !available.IsPositive() {
			continue
		}
		total = total.Add(available)
		candidates = append(candidates, candidate{product: p, available: available, commission: commission})
	}

	if total.LessThan(amount) {
		return nil, fmt.Errorf("card balance %s below requested %s: %w", total, amount, model.ErrInsufficientFunds)
	}

	var draws []Draw
	remaining := amount
	for _, c := range candidates {
		if c.available.GreaterThanOrEqual(remaining) {
			draws = append(draws, Draw{Product: c.product, Amount: remaining, Commission: c.commission})
			break
		}
		draws = append(draws, Draw{Product: c.product, Amount: c.available, Commission: c.commission})
		remaining = remaining.Sub(c.available)
	}
	return draws, nil
}
