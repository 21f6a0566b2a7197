// Package ledger implements the append-only transaction record store on
// PostgreSQL, with a Redis-backed read cache for per-product listings.
package ledger

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"math/big"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jordidiaz04/transactions/internal/model"
	platformredis "github.com/jordidiaz04/transactions/internal/platform/redis"
)

const listViewKeyPrefix = "transactions:view:"

// Store is the PostgreSQL-backed ledger. Records are inserted exactly once
// and never updated or deleted; listing order is insertion order.
type Store struct {
	db     *sql.DB
	cache  *platformredis.ViewCache[[]model.TransactionRecord]
	logger *zap.Logger
	now    func() time.Time
}

// NewStore builds a ledger store. redisClient may be nil to disable the
// listing cache.
func NewStore(db *sql.DB, redisClient *goredis.Client, logger *zap.Logger) *Store {
	var cache *platformredis.ViewCache[[]model.TransactionRecord]
	if redisClient != nil {
		cache = platformredis.NewViewCache[[]model.TransactionRecord](redisClient, 0, logger)
	}
	return &Store{db: db, cache: cache, logger: logger, now: time.Now}
}

// Append assigns the record its identity and timestamp, persists it and
// returns the stored record. The caller's struct is not mutated.
func (s *Store) Append(ctx context.Context, record *model.TransactionRecord) (*model.TransactionRecord, error) {
	stored := *record
	stored.ID = generateID("tan")
	stored.OccurredAt = s.now().UTC()
	stored.Period = periodOf(stored.OccurredAt)

	query := `
		INSERT INTO transactions (id, product_id, collection, direction, description, amount, commission, occurred_at, period)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(ctx, query,
		stored.ID, stored.ProductID, string(stored.Collection), string(stored.Direction),
		stored.Description, stored.Amount.String(), nullDecimal(stored.Commission),
		stored.OccurredAt, stored.Period,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to append transaction: %w", err)
	}

	s.cache.Invalidate(ctx, listViewKey(stored.ProductID, stored.Collection))
	return &stored, nil
}

// CountInCurrentPeriod returns how many records exist for the product in the
// current calendar month. This count feeds the commission decision.
func (s *Store) CountInCurrentPeriod(ctx context.Context, productID string, collection model.Collection) (int64, error) {
	query := `
		SELECT COUNT(*) FROM transactions
		WHERE product_id = $1 AND collection = $2 AND period = $3
	`
	var count int64
	err := s.db.QueryRowContext(ctx, query, productID, string(collection), periodOf(s.now().UTC())).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

// FindByProduct returns every record for the product in insertion order,
// trying the Redis listing cache before PostgreSQL.
func (s *Store) FindByProduct(ctx context.Context, productID string, collection model.Collection) ([]model.TransactionRecord, error) {
	cacheKey := listViewKey(productID, collection)
	if records, ok := s.cache.Get(ctx, cacheKey); ok {
		return *records, nil
	}

	query := `
		SELECT id, product_id, collection, direction, description, amount, commission, occurred_at, period
		FROM transactions
		WHERE product_id = $1 AND collection = $2
		ORDER BY seq ASC
	`
	records, err := s.queryRecords(ctx, query, productID, string(collection))
	if err != nil {
		return nil, err
	}

	s.cache.Set(ctx, cacheKey, &records)
	return records, nil
}

// FindByProductInRange returns the product's records with occurredAt in
// [start, end+1day): both boundary days are inclusive at day granularity.
func (s *Store) FindByProductInRange(ctx context.Context, productID string, collection model.Collection, start, end time.Time) ([]model.TransactionRecord, error) {
	query := `
		SELECT id, product_id, collection, direction, description, amount, commission, occurred_at, period
		FROM transactions
		WHERE product_id = $1 AND collection = $2 AND occurred_at >= $3 AND occurred_at < $4
		ORDER BY seq ASC
	`
	lower, upper := dayBounds(start, end)
	return s.queryRecords(ctx, query, productID, string(collection), lower, upper)
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]model.TransactionRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	records := make([]model.TransactionRecord, 0)
	for rows.Next() {
		var (
			record     model.TransactionRecord
			amount     string
			commission sql.NullString
		)
		if err := rows.Scan(
			&record.ID, &record.ProductID, &record.Collection, &record.Direction,
			&record.Description, &amount, &commission, &record.OccurredAt, &record.Period,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		if record.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("invalid stored amount %q: %w", amount, err)
		}
		if commission.Valid {
			value, err := decimal.NewFromString(commission.String)
			if err != nil {
				return nil, fmt.Errorf("invalid stored commission %q: %w", commission.String, err)
			}
			record.Commission = &value
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transactions: %w", err)
	}
	return records, nil
}

// periodOf derives the commission-counting window key from a timestamp:
// the calendar month, encoded as YYYYMM.
func periodOf(t time.Time) int {
	return t.Year()*100 + int(t.Month())
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// dayBounds widens a [start, end] day pair into the half-open timestamp
// window [start 00:00, end+1day 00:00), so any time of day on the end date
// still falls inside.
func dayBounds(start, end time.Time) (time.Time, time.Time) {
	return startOfDay(start), startOfDay(end).AddDate(0, 0, 1)
}

func listViewKey(productID string, collection model.Collection) string {
	return fmt.Sprintf("%s%s:%s", listViewKeyPrefix, collection, productID)
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

// generateID generates a unique ID with the given prefix.
func generateID(prefix string) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 10

	result := make([]byte, length)
	for i := range result {
		num, _ := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		result[i] = charset[num.Int64()]
	}

	return fmt.Sprintf("%s-%s", prefix, string(result))
}
