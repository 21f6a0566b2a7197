package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jordidiaz04/transactions/internal/model"
)

// ---- fakes ----

type delta struct {
	productID string
	amount    decimal.Decimal
}

type fakeAccounts struct {
	byNumber map[string]*model.ProductInfo
	byCard   map[string][]model.ProductInfo
	deltas   []delta
}

func (f *fakeAccounts) FindByNumber(_ context.Context, number string) (*model.ProductInfo, error) {
	p, ok := f.byNumber[number]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", number, model.ErrProductNotFound)
	}
	return p, nil
}

func (f *fakeAccounts) ListByCard(_ context.Context, card string) ([]model.ProductInfo, error) {
	return f.byCard[card], nil
}

func (f *fakeAccounts) ApplyBalanceDelta(product model.ProductInfo, amount decimal.Decimal) {
	f.deltas = append(f.deltas, delta{productID: product.ID, amount: amount})
}

type fakeCredits struct {
	byNumber map[string]*model.ProductInfo
	deltas   []delta
}

func (f *fakeCredits) FindByNumber(_ context.Context, number string) (*model.ProductInfo, error) {
	p, ok := f.byNumber[number]
	if !ok {
		return nil, fmt.Errorf("credit %s: %w", number, model.ErrProductNotFound)
	}
	return p, nil
}

func (f *fakeCredits) ApplyBalanceDelta(product model.ProductInfo, amount decimal.Decimal) {
	f.deltas = append(f.deltas, delta{productID: product.ID, amount: amount})
}

type fakeLedger struct {
	counts    map[string]int64
	records   []model.TransactionRecord
	appended  []model.TransactionRecord
	appendErr error
	nextID    int
}

func (f *fakeLedger) Append(_ context.Context, record *model.TransactionRecord) (*model.TransactionRecord, error) {
	if f.appendErr != nil {
		return nil, f.appendErr
	}
	f.nextID++
	stored := *record
	stored.ID = fmt.Sprintf("tan-%04d", f.nextID)
	stored.OccurredAt = time.Date(2022, 3, 18, 14, 15, 20, 0, time.UTC)
	stored.Period = 202203
	f.appended = append(f.appended, stored)
	return &stored, nil
}

func (f *fakeLedger) CountInCurrentPeriod(_ context.Context, productID string, _ model.Collection) (int64, error) {
	return f.counts[productID], nil
}

func (f *fakeLedger) FindByProduct(_ context.Context, _ string, _ model.Collection) ([]model.TransactionRecord, error) {
	return f.records, nil
}

func (f *fakeLedger) FindByProductInRange(_ context.Context, _ string, _ model.Collection, _, _ time.Time) ([]model.TransactionRecord, error) {
	return f.records, nil
}

type fakePublisher struct {
	published []string
}

func (f *fakePublisher) TransactionCreated(_ context.Context, record *model.TransactionRecord) {
	f.published = append(f.published, record.ID)
}

type fixture struct {
	accounts  *fakeAccounts
	credits   *fakeCredits
	ledger    *fakeLedger
	publisher *fakePublisher
	engine    *Engine
}

func newFixture() *fixture {
	accounts := &fakeAccounts{byNumber: map[string]*model.ProductInfo{}, byCard: map[string][]model.ProductInfo{}}
	credits := &fakeCredits{byNumber: map[string]*model.ProductInfo{}}
	ledger := &fakeLedger{counts: map[string]int64{}}
	publisher := &fakePublisher{}
	return &fixture{
		accounts:  accounts,
		credits:   credits,
		ledger:    ledger,
		publisher: publisher,
		engine:    New(accounts, credits, ledger, publisher, zap.NewNop()),
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// ---- deposit ----

func TestDeposit(t *testing.T) {
	f := newFixture()
	f.accounts.byNumber["1234567890"] = &model.ProductInfo{ID: "acc-1", Number: "1234567890", Balance: dec("1000")}

	msg, err := f.engine.Deposit(context.Background(), "1234567890", dec("200"), "Deposit")
	require.NoError(t, err)
	assert.Equal(t, SuccessMessage, msg)

	require.Len(t, f.ledger.appended, 1)
	record := f.ledger.appended[0]
	assert.Equal(t, "acc-1", record.ProductID)
	assert.Equal(t, model.CollectionAccount, record.Collection)
	assert.Equal(t, model.DirectionEntry, record.Direction)
	assert.True(t, record.Amount.Equal(dec("200")))
	assert.Nil(t, record.Commission)

	require.Len(t, f.accounts.deltas, 1)
	assert.True(t, f.accounts.deltas[0].amount.Equal(dec("200")))
	assert.Len(t, f.publisher.published, 1)
}

func TestDepositWithCommission(t *testing.T) {
	f := newFixture()
	f.accounts.byNumber["1234567890"] = &model.ProductInfo{
		ID:      "acc-1",
		Balance: dec("1000"),
		Policy:  model.CommissionPolicy{MaxFreePerPeriod: int64Ptr(5), Commission: decimalPtr("3")},
	}
	f.ledger.counts["acc-1"] = 5

	_, err := f.engine.Deposit(context.Background(), "1234567890", dec("200"), "Deposit")
	require.NoError(t, err)

	require.Len(t, f.ledger.appended, 1)
	require.NotNil(t, f.ledger.appended[0].Commission)
	assert.True(t, f.ledger.appended[0].Commission.Equal(dec("3")))

	require.Len(t, f.accounts.deltas, 2)
	assert.True(t, f.accounts.deltas[0].amount.Equal(dec("200")))
	assert.True(t, f.accounts.deltas[1].amount.Equal(dec("-3")))
}

func TestDepositAccountNotFound(t *testing.T) {
	f := newFixture()

	_, err := f.engine.Deposit(context.Background(), "0000000000", dec("200"), "Deposit")
	assert.ErrorIs(t, err, model.ErrProductNotFound)
	assert.Empty(t, f.ledger.appended)
	assert.Empty(t, f.accounts.deltas)
}

func TestDepositAppendFailureIssuesNoDeltas(t *testing.T) {
	f := newFixture()
	f.accounts.byNumber["1234567890"] = &model.ProductInfo{ID: "acc-1", Balance: dec("1000")}
	f.ledger.appendErr = errors.New("connection reset")

	_, err := f.engine.Deposit(context.Background(), "1234567890", dec("200"), "Deposit")
	assert.Error(t, err)
	assert.Empty(t, f.accounts.deltas)
	assert.Empty(t, f.publisher.published)
}

// ---- withdrawal ----

func TestWithdrawal(t *testing.T) {
	f := newFixture()
	f.accounts.byNumber["1234567890"] = &model.ProductInfo{ID: "acc-1", Balance: dec("1000")}

	msg, err := f.engine.Withdrawal(context.Background(), "1234567890", dec("400"), "Withdrawal")
	require.NoError(t, err)
	assert.Equal(t, SuccessMessage, msg)

	require.Len(t, f.ledger.appended, 1)
	assert.Equal(t, model.DirectionExit, f.ledger.appended[0].Direction)
	assert.True(t, f.ledger.appended[0].Amount.Equal(dec("400")))

	require.Len(t, f.accounts.deltas, 1)
	assert.True(t, f.accounts.deltas[0].amount.Equal(dec("-400")))
}

func TestWithdrawalInsufficientFunds(t *testing.T) {
	f := newFixture()
	f.accounts.byNumber["1234567890"] = &model.ProductInfo{ID: "acc-1", Balance: dec("1000")}

	_, err := f.engine.Withdrawal(context.Background(), "1234567890", dec("2000"), "Withdrawal")
	assert.ErrorIs(t, err, model.ErrInsufficientFunds)
	assert.Empty(t, f.ledger.appended)
	assert.Empty(t, f.accounts.deltas)
	assert.Empty(t, f.publisher.published)
}

// Pins the precondition to balance < amount: withdrawing the exact balance
// must succeed.
func TestWithdrawalExactBalanceSucceeds(t *testing.T) {
	f := newFixture()
	f.accounts.byNumber["1234567890"] = &model.ProductInfo{ID: "acc-1", Balance: dec("1000")}

	msg, err := f.engine.Withdrawal(context.Background(), "1234567890", dec("1000"), "Withdrawal")
	require.NoError(t, err)
	assert.Equal(t, SuccessMessage, msg)
	assert.Len(t, f.ledger.appended, 1)
}

func TestWithdrawalWithCommission(t *testing.T) {
	f := newFixture()
	f.accounts.byNumber["1234567890"] = &model.ProductInfo{
		ID:      "acc-1",
		Balance: dec("1000"),
		Policy:  model.CommissionPolicy{MaxFreePerPeriod: int64Ptr(2), Commission: decimalPtr("3")},
	}
	f.ledger.counts["acc-1"] = 7

	_, err := f.engine.Withdrawal(context.Background(), "1234567890", dec("400"), "Withdrawal")
	require.NoError(t, err)

	require.Len(t, f.accounts.deltas, 2)
	assert.True(t, f.accounts.deltas[0].amount.Equal(dec("-400")))
	assert.True(t, f.accounts.deltas[1].amount.Equal(dec("-3")))
}

// ---- debit card withdrawal ----

func TestWithdrawalFromDebitCard(t *testing.T) {
	f := newFixture()
	f.accounts.byCard["4420652012504888"] = []model.ProductInfo{
		{ID: "acc-1", OrdinalPosition: 1, Balance: dec("100")},
		{ID: "acc-2", OrdinalPosition: 2, Balance: dec("200")},
		{ID: "acc-3", OrdinalPosition: 3, Balance: dec("100")},
	}

	msg, err := f.engine.WithdrawalFromDebitCard(context.Background(), "4420652012504888", dec("250"), "Withdrawal from debit card")
	require.NoError(t, err)
	assert.Equal(t, SuccessMessage, msg)

	require.Len(t, f.ledger.appended, 2)
	assert.Equal(t, "acc-1", f.ledger.appended[0].ProductID)
	assert.True(t, f.ledger.appended[0].Amount.Equal(dec("100")))
	assert.Equal(t, "acc-2", f.ledger.appended[1].ProductID)
	assert.True(t, f.ledger.appended[1].Amount.Equal(dec("150")))
	for _, record := range f.ledger.appended {
		assert.Equal(t, model.DirectionExit, record.Direction)
	}

	require.Len(t, f.accounts.deltas, 2)
	assert.Equal(t, "acc-1", f.accounts.deltas[0].productID)
	assert.True(t, f.accounts.deltas[0].amount.Equal(dec("-100")))
	assert.Equal(t, "acc-2", f.accounts.deltas[1].productID)
	assert.True(t, f.accounts.deltas[1].amount.Equal(dec("-150")))
	assert.Len(t, f.publisher.published, 2)
}

func TestWithdrawalFromDebitCardInsufficientFunds(t *testing.T) {
	f := newFixture()
	f.accounts.byCard["4420652012504888"] = []model.ProductInfo{
		{ID: "acc-1", OrdinalPosition: 1, Balance: dec("100")},
		{ID: "acc-2", OrdinalPosition: 2, Balance: dec("200")},
		{ID: "acc-3", OrdinalPosition: 3, Balance: dec("100")},
	}

	_, err := f.engine.WithdrawalFromDebitCard(context.Background(), "4420652012504888", dec("500"), "Withdrawal from debit card")
	assert.ErrorIs(t, err, model.ErrInsufficientFunds)
	assert.Empty(t, f.ledger.appended)
	assert.Empty(t, f.accounts.deltas)
}

func TestWithdrawalFromDebitCardChargesCommissionPerDraw(t *testing.T) {
	f := newFixture()
	f.accounts.byCard["card"] = []model.ProductInfo{
		{
			ID: "acc-1", OrdinalPosition: 1, Balance: dec("100"),
			Policy: model.CommissionPolicy{MaxFreePerPeriod: int64Ptr(1), Commission: decimalPtr("2")},
		},
		{ID: "acc-2", OrdinalPosition: 2, Balance: dec("100")},
	}
	f.ledger.counts["acc-1"] = 3

	_, err := f.engine.WithdrawalFromDebitCard(context.Background(), "card", dec("100"), "Withdrawal from debit card")
	require.NoError(t, err)

	require.Len(t, f.ledger.appended, 2)
	require.NotNil(t, f.ledger.appended[0].Commission)
	assert.True(t, f.ledger.appended[0].Amount.Equal(dec("98")))
	assert.Nil(t, f.ledger.appended[1].Commission)
	assert.True(t, f.ledger.appended[1].Amount.Equal(dec("2")))

	// acc-1 yields its amount delta plus the commission delta.
	require.Len(t, f.accounts.deltas, 3)
	assert.True(t, f.accounts.deltas[0].amount.Equal(dec("-98")))
	assert.True(t, f.accounts.deltas[1].amount.Equal(dec("-2")))
	assert.True(t, f.accounts.deltas[2].amount.Equal(dec("-2")))
}

// ---- transfer ----

func TestTransfer(t *testing.T) {
	f := newFixture()
	f.accounts.byNumber["1234567890"] = &model.ProductInfo{ID: "acc-exit", Balance: dec("4000")}
	f.accounts.byNumber["1234567891"] = &model.ProductInfo{ID: "acc-entry", Balance: dec("1000")}

	msg, err := f.engine.Transfer(context.Background(), "1234567890", "1234567891", dec("2000"), "Transfer between accounts")
	require.NoError(t, err)
	assert.Equal(t, SuccessMessage, msg)

	require.Len(t, f.ledger.appended, 2)
	exit, entry := f.ledger.appended[0], f.ledger.appended[1]
	assert.Equal(t, "acc-exit", exit.ProductID)
	assert.Equal(t, model.DirectionExit, exit.Direction)
	assert.Equal(t, "acc-entry", entry.ProductID)
	assert.Equal(t, model.DirectionEntry, entry.Direction)
	assert.True(t, exit.Amount.Equal(dec("2000")))
	assert.True(t, entry.Amount.Equal(dec("2000")))
	assert.Nil(t, entry.Commission)

	require.Len(t, f.accounts.deltas, 2)
	assert.Equal(t, "acc-exit", f.accounts.deltas[0].productID)
	assert.True(t, f.accounts.deltas[0].amount.Equal(dec("-2000")))
	assert.Equal(t, "acc-entry", f.accounts.deltas[1].productID)
	assert.True(t, f.accounts.deltas[1].amount.Equal(dec("2000")))
}

func TestTransferCommissionOnlyOnExit(t *testing.T) {
	f := newFixture()
	f.accounts.byNumber["1234567890"] = &model.ProductInfo{
		ID: "acc-exit", Balance: dec("4000"),
		Policy: model.CommissionPolicy{MaxFreePerPeriod: int64Ptr(5), Commission: decimalPtr("3")},
	}
	f.accounts.byNumber["1234567891"] = &model.ProductInfo{
		ID: "acc-entry", Balance: dec("1000"),
		Policy: model.CommissionPolicy{MaxFreePerPeriod: int64Ptr(5), Commission: decimalPtr("3")},
	}
	f.ledger.counts["acc-exit"] = 5
	f.ledger.counts["acc-entry"] = 5

	_, err := f.engine.Transfer(context.Background(), "1234567890", "1234567891", dec("2000"), "Transfer between accounts")
	require.NoError(t, err)

	require.Len(t, f.ledger.appended, 2)
	require.NotNil(t, f.ledger.appended[0].Commission)
	assert.True(t, f.ledger.appended[0].Commission.Equal(dec("3")))
	assert.Nil(t, f.ledger.appended[1].Commission)

	require.Len(t, f.accounts.deltas, 3)
	assert.True(t, f.accounts.deltas[0].amount.Equal(dec("-2000")))
	assert.True(t, f.accounts.deltas[1].amount.Equal(dec("-3")))
	assert.True(t, f.accounts.deltas[2].amount.Equal(dec("2000")))
}

func TestTransferInsufficientFunds(t *testing.T) {
	f := newFixture()
	f.accounts.byNumber["1234567890"] = &model.ProductInfo{ID: "acc-exit", Balance: dec("1000")}
	f.accounts.byNumber["1234567891"] = &model.ProductInfo{ID: "acc-entry", Balance: dec("1000")}

	_, err := f.engine.Transfer(context.Background(), "1234567890", "1234567891", dec("2000"), "Transfer between accounts")
	assert.ErrorIs(t, err, model.ErrInsufficientFunds)
	assert.Empty(t, f.ledger.appended)
	assert.Empty(t, f.accounts.deltas)
}

func TestTransferEntryAccountNotFound(t *testing.T) {
	f := newFixture()
	f.accounts.byNumber["1234567890"] = &model.ProductInfo{ID: "acc-exit", Balance: dec("4000")}

	_, err := f.engine.Transfer(context.Background(), "1234567890", "missing", dec("2000"), "Transfer between accounts")
	assert.ErrorIs(t, err, model.ErrProductNotFound)
	assert.Empty(t, f.ledger.appended)
	assert.Empty(t, f.accounts.deltas)
}

// ---- credit operations ----

func TestPayCredit(t *testing.T) {
	f := newFixture()
	f.credits.byNumber["9876543210"] = &model.ProductInfo{ID: "cre-1", Balance: dec("500")}

	msg, err := f.engine.PayCredit(context.Background(), "9876543210", dec("300"), "Pay credit")
	require.NoError(t, err)
	assert.Equal(t, SuccessMessage, msg)

	require.Len(t, f.ledger.appended, 1)
	assert.Equal(t, model.CollectionCredit, f.ledger.appended[0].Collection)
	assert.Equal(t, model.DirectionEntry, f.ledger.appended[0].Direction)
	assert.Nil(t, f.ledger.appended[0].Commission)

	require.Len(t, f.credits.deltas, 1)
	assert.True(t, f.credits.deltas[0].amount.Equal(dec("300")))
}

func TestSpendCredit(t *testing.T) {
	f := newFixture()
	f.credits.byNumber["9876543210"] = &model.ProductInfo{ID: "cre-1", Balance: dec("500")}

	_, err := f.engine.SpendCredit(context.Background(), "9876543210", dec("120"), "Spend credit")
	require.NoError(t, err)

	require.Len(t, f.ledger.appended, 1)
	assert.Equal(t, model.DirectionExit, f.ledger.appended[0].Direction)
	assert.True(t, f.ledger.appended[0].Amount.Equal(dec("120")))

	require.Len(t, f.credits.deltas, 1)
	assert.True(t, f.credits.deltas[0].amount.Equal(dec("-120")))
}

func TestPayCreditNotFound(t *testing.T) {
	f := newFixture()

	_, err := f.engine.PayCredit(context.Background(), "0000000000", dec("300"), "Pay credit")
	assert.ErrorIs(t, err, model.ErrProductNotFound)
	assert.Empty(t, f.ledger.appended)
}

// ---- queries ----

func TestListByAccount(t *testing.T) {
	f := newFixture()
	f.accounts.byNumber["1234567890"] = &model.ProductInfo{ID: "acc-1"}
	f.ledger.records = []model.TransactionRecord{
		{ID: "tan-1", Direction: model.DirectionEntry, Amount: dec("200")},
		{ID: "tan-2", Direction: model.DirectionExit, Amount: dec("100")},
	}

	records, err := f.engine.ListByAccount(context.Background(), "1234567890")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "tan-1", records[0].ID)
	assert.Equal(t, "tan-2", records[1].ID)
}

func TestListByAccountNotFound(t *testing.T) {
	f := newFixture()

	_, err := f.engine.ListByAccount(context.Background(), "missing")
	assert.ErrorIs(t, err, model.ErrProductNotFound)
}

func TestListCreditInRange(t *testing.T) {
	f := newFixture()
	f.credits.byNumber["9876543210"] = &model.ProductInfo{ID: "cre-1"}
	f.ledger.records = []model.TransactionRecord{{ID: "tan-1", Amount: dec("50")}}

	start := time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2022, 3, 31, 0, 0, 0, 0, time.UTC)
	records, err := f.engine.ListCreditInRange(context.Background(), "9876543210", start, end)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
