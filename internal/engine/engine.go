package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jordidiaz04/transactions/internal/model"
)

// SuccessMessage is returned by every accepted mutating operation.
const SuccessMessage = "Successful transaction"

// AccountDirectory resolves account products and accepts balance deltas.
// ApplyBalanceDelta is fire-and-forget: implementations issue the call without
// blocking the operation and failures are logged, never surfaced.
type AccountDirectory interface {
	FindByNumber(ctx context.Context, number string) (*model.ProductInfo, error)
	ListByCard(ctx context.Context, card string) ([]model.ProductInfo, error)
	ApplyBalanceDelta(product model.ProductInfo, delta decimal.Decimal)
}

// CreditDirectory resolves credit products and accepts balance deltas.
type CreditDirectory interface {
	FindByNumber(ctx context.Context, number string) (*model.ProductInfo, error)
	ApplyBalanceDelta(product model.ProductInfo, delta decimal.Decimal)
}

// Ledger is the append-only transaction record store.
type Ledger interface {
	Append(ctx context.Context, record *model.TransactionRecord) (*model.TransactionRecord, error)
	CountInCurrentPeriod(ctx context.Context, productID string, collection model.Collection) (int64, error)
	FindByProduct(ctx context.Context, productID string, collection model.Collection) ([]model.TransactionRecord, error)
	FindByProductInRange(ctx context.Context, productID string, collection model.Collection, start, end time.Time) ([]model.TransactionRecord, error)
}

// Publisher emits a transaction.created event after a successful append.
// Failures are the publisher's to log; the engine never awaits delivery.
type Publisher interface {
	TransactionCreated(ctx context.Context, record *model.TransactionRecord)
}

// Engine implements the transaction operations. Every mutating operation
// follows the same write pattern: resolve products, check preconditions,
// append the record, then issue balance deltas. The append always lands
// before any delta is sent, so a failure window leaves a record without an
// applied balance, never the reverse.
type Engine struct {
	accounts  AccountDirectory
	credits   CreditDirectory
	ledger    Ledger
	publisher Publisher
	logger    *zap.Logger
}

func New(accounts AccountDirectory, credits CreditDirectory, ledger Ledger, publisher Publisher, logger *zap.Logger) *Engine {
	return &Engine{
		accounts:  accounts,
		credits:   credits,
		ledger:    ledger,
		publisher: publisher,
		logger:    logger,
	}
}

// Deposit credits an account, charging a commission once the account has used
// up its free transactions for the period.
func (e *Engine) Deposit(ctx context.Context, accountNumber string, amount decimal.Decimal, description string) (string, error) {
	account, err := e.accounts.FindByNumber(ctx, accountNumber)
	if err != nil {
		return "", err
	}
	count, err := e.ledger.CountInCurrentPeriod(ctx, account.ID, model.CollectionAccount)
	if err != nil {
		return "", err
	}
	commission := Commission(count, account.Policy)

	record, err := e.append(ctx, &model.TransactionRecord{
		ProductID:   account.ID,
		Collection:  model.CollectionAccount,
		Direction:   model.DirectionEntry,
		Description: description,
		Amount:      amount,
		Commission:  commission,
	})
	if err != nil {
		return "", err
	}

	e.accounts.ApplyBalanceDelta(*account, amount)
	if commission != nil {
		e.accounts.ApplyBalanceDelta(*account, commission.Neg())
	}
	e.publisher.TransactionCreated(ctx, record)
	return SuccessMessage, nil
}

// Withdrawal debits an account. The balance must cover the requested amount;
// the check runs strictly before anything is written.
func (e *Engine) Withdrawal(ctx context.Context, accountNumber string, amount decimal.Decimal, description string) (string, error) {
	account, err := e.accounts.FindByNumber(ctx, accountNumber)
	if err != nil {
		return "", err
	}
	if account.Balance.LessThan(amount) {
		return "", fmt.Errorf("account %s balance below %s: %w", accountNumber, amount, model.ErrInsufficientFunds)
	}
	count, err := e.ledger.CountInCurrentPeriod(ctx, account.ID, model.CollectionAccount)
	if err != nil {
		return "", err
	}
	commission := Commission(count, account.Policy)

	record, err := e.append(ctx, &model.TransactionRecord{
		ProductID:   account.ID,
		Collection:  model.CollectionAccount,
		Direction:   model.DirectionExit,
		Description: description,
		Amount:      amount,
		Commission:  commission,
	})
	if err != nil {
		return "", err
	}

	e.accounts.ApplyBalanceDelta(*account, amount.Neg())
	if commission != nil {
		e.accounts.ApplyBalanceDelta(*account, commission.Neg())
	}
	e.publisher.TransactionCreated(ctx, record)
	return SuccessMessage, nil
}

// WithdrawalFromDebitCard debits the requested amount across every account
// linked to the card, in ordinal order. The whole request is either covered
// by the combined available balances or rejected before any write.
func (e *Engine) WithdrawalFromDebitCard(ctx context.Context, card string, amount decimal.Decimal, description string) (string, error) {
	products, err := e.accounts.ListByCard(ctx, card)
	if err != nil {
		return "", err
	}

	counts := make(map[string]int64, len(products))
	for _, p := range products {
		count, err := e.ledger.CountInCurrentPeriod(ctx, p.ID, model.CollectionAccount)
		if err != nil {
			return "", err
		}
		counts[p.ID] = count
	}

	draws, err := PlanAllocation(products, counts, amount)
	if err != nil {
		return "", err
	}

	for _, draw := range draws {
		record, err := e.append(ctx, &model.TransactionRecord{
			ProductID:   draw.Product.ID,
			Collection:  model.CollectionAccount,
			Direction:   model.DirectionExit,
			Description: description,
			Amount:      draw.Amount,
			Commission:  draw.Commission,
		})
		if err != nil {
			// Earlier draws are already committed; there is no rollback
			// across legs. Surface the failure for external reconciliation.
			e.logger.Error("debit card withdrawal aborted mid-allocation",
				zap.String("card", card),
				zap.String("productId", draw.Product.ID),
				zap.Error(err))
			return "", err
		}
		e.accounts.ApplyBalanceDelta(draw.Product, draw.Amount.Neg())
		if draw.Commission != nil {
			e.accounts.ApplyBalanceDelta(draw.Product, draw.Commission.Neg())
		}
		e.publisher.TransactionCreated(ctx, record)
	}
	return SuccessMessage, nil
}

// Transfer moves an amount between two accounts. Both sides are resolved
// concurrently; only the exit side bears a commission. The two record appends
// are sequenced, and once both exist the three balance deltas are independent
// legs with no cross-rollback.
func (e *Engine) Transfer(ctx context.Context, exitNumber, entryNumber string, amount decimal.Decimal, description string) (string, error) {
	type lookup struct {
		product *model.ProductInfo
		err     error
	}
	entryCh := make(chan lookup, 1)
	go func() {
		p, err := e.accounts.FindByNumber(ctx, entryNumber)
		entryCh <- lookup{product: p, err: err}
	}()

	exit, err := e.accounts.FindByNumber(ctx, exitNumber)
	entry := <-entryCh
	if err != nil {
		return "", err
	}
	if entry.err != nil {
		return "", entry.err
	}
	if exit.Balance.LessThan(amount) {
		return "", fmt.Errorf("account %s balance below %s: %w", exitNumber, amount, model.ErrInsufficientFunds)
	}

	count, err := e.ledger.CountInCurrentPeriod(ctx, exit.ID, model.CollectionAccount)
	if err != nil {
		return "", err
	}
	commission := Commission(count, exit.Policy)

	exitRecord, err := e.append(ctx, &model.TransactionRecord{
		ProductID:   exit.ID,
		Collection:  model.CollectionAccount,
		Direction:   model.DirectionExit,
		Description: description,
		Amount:      amount,
		Commission:  commission,
	})
	if err != nil {
		return "", err
	}
	entryRecord, err := e.append(ctx, &model.TransactionRecord{
		ProductID:   entry.product.ID,
		Collection:  model.CollectionAccount,
		Direction:   model.DirectionEntry,
		Description: description,
		Amount:      amount,
	})
	if err != nil {
		return "", err
	}

	e.accounts.ApplyBalanceDelta(*exit, amount.Neg())
	if commission != nil {
		e.accounts.ApplyBalanceDelta(*exit, commission.Neg())
	}
	e.accounts.ApplyBalanceDelta(*entry.product, amount)
	e.publisher.TransactionCreated(ctx, exitRecord)
	e.publisher.TransactionCreated(ctx, entryRecord)
	return SuccessMessage, nil
}

// PayCredit records a payment into a credit product. Commission rules do not
// apply to credit products.
func (e *Engine) PayCredit(ctx context.Context, creditNumber string, amount decimal.Decimal, description string) (string, error) {
	credit, err := e.credits.FindByNumber(ctx, creditNumber)
	if err != nil {
		return "", err
	}
	record, err := e.append(ctx, &model.TransactionRecord{
		ProductID:   credit.ID,
		Collection:  model.CollectionCredit,
		Direction:   model.DirectionEntry,
		Description: description,
		Amount:      amount,
	})
	if err != nil {
		return "", err
	}
	e.credits.ApplyBalanceDelta(*credit, amount)
	e.publisher.TransactionCreated(ctx, record)
	return SuccessMessage, nil
}

// SpendCredit records a consumption against a credit product.
func (e *Engine) SpendCredit(ctx context.Context, creditNumber string, amount decimal.Decimal, description string) (string, error) {
	credit, err := e.credits.FindByNumber(ctx, creditNumber)
	if err != nil {
		return "", err
	}
	record, err := e.append(ctx, &model.TransactionRecord{
		ProductID:   credit.ID,
		Collection:  model.CollectionCredit,
		Direction:   model.DirectionExit,
		Description: description,
		Amount:      amount,
	})
	if err != nil {
		return "", err
	}
	e.credits.ApplyBalanceDelta(*credit, amount.Neg())
	e.publisher.TransactionCreated(ctx, record)
	return SuccessMessage, nil
}

// ListByAccount returns every record for the account, in insertion order.
func (e *Engine) ListByAccount(ctx context.Context, accountNumber string) ([]model.TransactionRecord, error) {
	account, err := e.accounts.FindByNumber(ctx, accountNumber)
	if err != nil {
		return nil, err
	}
	return e.ledger.FindByProduct(ctx, account.ID, model.CollectionAccount)
}

// ListByCredit returns every record for the credit product, in insertion order.
func (e *Engine) ListByCredit(ctx context.Context, creditNumber string) ([]model.TransactionRecord, error) {
	credit, err := e.credits.FindByNumber(ctx, creditNumber)
	if err != nil {
		return nil, err
	}
	return e.ledger.FindByProduct(ctx, credit.ID, model.CollectionCredit)
}

// ListAccountInRange returns the account's records with occurredAt between
// start and end, both boundary days inclusive.
func (e *Engine) ListAccountInRange(ctx context.Context, accountNumber string, start, end time.Time) ([]model.TransactionRecord, error) {
	account, err := e.accounts.FindByNumber(ctx, accountNumber)
	if err != nil {
		return nil, err
	}
	return e.ledger.FindByProductInRange(ctx, account.ID, model.CollectionAccount, start, end)
}

// ListCreditInRange returns the credit product's records with occurredAt
// between start and end, both boundary days inclusive.
func (e *Engine) ListCreditInRange(ctx context.Context, creditNumber string, start, end time.Time) ([]model.TransactionRecord, error) {
	credit, err := e.credits.FindByNumber(ctx, creditNumber)
	if err != nil {
		return nil, err
	}
	return e.ledger.FindByProductInRange(ctx, credit.ID, model.CollectionCredit, start, end)
}

func (e *Engine) append(ctx context.Context, record *model.TransactionRecord) (*model.TransactionRecord, error) {
	saved, err := e.ledger.Append(ctx, record)
	if err != nil {
		return nil, err
	}
	e.logger.Info("created transaction",
		zap.String("id", saved.ID),
		zap.String("productId", saved.ProductID),
		zap.String("collection", string(saved.Collection)),
		zap.String("direction", string(saved.Direction)),
		zap.String("amount", saved.Amount.String()))
	return saved, nil
}
