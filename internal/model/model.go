package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Collection identifies which product directory owns a product.
type Collection string

const (
	CollectionAccount Collection = "account"
	CollectionCredit  Collection = "credit"
)

func (c Collection) Valid() bool {
	return c == CollectionAccount || c == CollectionCredit
}

// Direction is the sign of a movement relative to the product's balance.
type Direction string

const (
	DirectionEntry Direction = "entry"
	DirectionExit  Direction = "exit"
)

func (d Direction) Valid() bool {
	return d == DirectionEntry || d == DirectionExit
}

// TransactionRecord is the append-only audit entry for a single movement.
// ID, OccurredAt and Period are assigned by the ledger on append; a record is
// never mutated afterwards. Amount is always positive, the sign is carried by
// Direction. Commission is nil unless a positive commission was charged.
type TransactionRecord struct {
	ID          string           `json:"id"`
	ProductID   string           `json:"productId"`
	Collection  Collection       `json:"collection"`
	Direction   Direction        `json:"direction"`
	Description string           `json:"description"`
	Amount      decimal.Decimal  `json:"amount"`
	Commission  *decimal.Decimal `json:"commission,omitempty"`
	OccurredAt  time.Time        `json:"occurredAt"`
	Period      int              `json:"period"`
}

// CommissionPolicy is the per-product commission configuration, read from the
// owning directory service. A nil MaxFreePerPeriod means the product is never
// commission-liable.
type CommissionPolicy struct {
	MaxFreePerPeriod *int64
	Commission       *decimal.Decimal
}

// ProductInfo is the directory view of an account or credit product. It is
// read from the product gateway and never written back directly; this service
// only ever sends balance deltas.
type ProductInfo struct {
	ID              string
	Number          string
	DebitCard       string
	OrdinalPosition int
	Balance         decimal.Decimal
	Policy          CommissionPolicy
}
