// Package gateway holds the HTTP clients for the external product directory
// services. The directories own all product state; this service only reads
// products and sends signed balance deltas.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jordidiaz04/transactions/internal/model"
)

const (
	balanceCallTimeout  = 10 * time.Second
	productCacheKeysFmt = "product:%s:%s"
)

// ProductCache holds directory lookups between operations. Implemented by
// the Redis ViewCache in production and by in-memory fakes in tests.
type ProductCache interface {
	Get(ctx context.Context, key string) (*model.ProductInfo, bool)
	Set(ctx context.Context, key string, value *model.ProductInfo)
	Invalidate(ctx context.Context, key string)
}

// nopProductCache is the cache used when none is configured.
type nopProductCache struct{}

func (nopProductCache) Get(context.Context, string) (*model.ProductInfo, bool) { return nil, false }
func (nopProductCache) Set(context.Context, string, *model.ProductInfo)        {}
func (nopProductCache) Invalidate(context.Context, string)                     {}

// directory is the transport shared by both product directories.
type directory struct {
	collection model.Collection
	baseURL    string
	client     *http.Client
	cache      ProductCache
	logger     *zap.Logger
}

// ApplyBalanceDelta issues the balance update without awaiting it. The record
// for the movement is already durable by the time this is called; a failed
// delta is logged and left for external reconciliation, never retried here.
//
// The cached lookup for the product is dropped before the call goes out: the
// next operation on this product must resolve a balance that reflects the
// delta, otherwise sequential operations would pass the balance precondition
// against a state this service itself already changed.
func (d *directory) ApplyBalanceDelta(product model.ProductInfo, delta decimal.Decimal) {
	ctx, cancelInvalidate := context.WithTimeout(context.Background(), balanceCallTimeout)
	d.cache.Invalidate(ctx, fmt.Sprintf(productCacheKeysFmt, d.collection, product.Number))
	cancelInvalidate()

	productID := product.ID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), balanceCallTimeout)
		defer cancel()

		url := fmt.Sprintf("%s/balance/%s/amount/%s", d.baseURL, productID, delta)
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, nil)
		if err != nil {
			d.logger.Error("failed to build balance update request",
				zap.String("collection", string(d.collection)),
				zap.String("productId", productID),
				zap.Error(err))
			return
		}
		resp, err := d.client.Do(req)
		if err != nil {
			d.logger.Error("balance update failed",
				zap.String("collection", string(d.collection)),
				zap.String("productId", productID),
				zap.String("delta", delta.String()),
				zap.Error(err))
			return
		}
		resp.Body.Close()
		if resp.StatusCode >= http.StatusBadRequest {
			d.logger.Error("balance update rejected",
				zap.String("collection", string(d.collection)),
				zap.String("productId", productID),
				zap.String("delta", delta.String()),
				zap.Int("status", resp.StatusCode))
		}
	}()
}

func (d *directory) get(ctx context.Context, url string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s directory unreachable: %w", d.collection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode %s directory response: %w", d.collection, err)
	}
	return resp.StatusCode, nil
}

// AccountDirectory is the client for the account directory service.
type AccountDirectory struct {
	directory
}

// NewAccountDirectory builds an account directory client. cache may be nil,
// in which case every lookup goes to the directory service.
func NewAccountDirectory(baseURL string, client *http.Client, cache ProductCache, logger *zap.Logger) *AccountDirectory {
	if client == nil {
		client = http.DefaultClient
	}
	if cache == nil {
		cache = nopProductCache{}
	}
	return &AccountDirectory{directory{
		collection: model.CollectionAccount,
		baseURL:    baseURL,
		client:     client,
		cache:      cache,
		logger:     logger,
	}}
}

// accountResponse mirrors the account directory's wire format.
type accountResponse struct {
	ID          string          `json:"id"`
	DebitCard   string          `json:"debitCard"`
	Number      string          `json:"number"`
	Position    int             `json:"position"`
	TypeAccount typeAccount     `json:"typeAccount"`
	Balance     decimal.Decimal `json:"balance"`
}

type typeAccount struct {
	Option          int              `json:"option"`
	Maintenance     *decimal.Decimal `json:"maintenance"`
	MaxTransactions *int64           `json:"maxTransactions"`
	Commission      *decimal.Decimal `json:"commission"`
	Day             *int             `json:"day"`
}

func (r *accountResponse) toProduct() model.ProductInfo {
	return model.ProductInfo{
		ID:              r.ID,
		Number:          r.Number,
		DebitCard:       r.DebitCard,
		OrdinalPosition: r.Position,
		Balance:         r.Balance,
		Policy: model.CommissionPolicy{
			MaxFreePerPeriod: r.TypeAccount.MaxTransactions,
			Commission:       r.TypeAccount.Commission,
		},
	}
}

// FindByNumber resolves an account by number, trying the Redis cache first.
func (d *AccountDirectory) FindByNumber(ctx context.Context, number string) (*model.ProductInfo, error) {
	cacheKey := fmt.Sprintf(productCacheKeysFmt, d.collection, number)
	if product, ok := d.cache.Get(ctx, cacheKey); ok {
		return product, nil
	}

	var body accountResponse
	status, err := d.get(ctx, fmt.Sprintf("%s/get/number/%s", d.baseURL, number), &body)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, fmt.Errorf("account %s: %w", number, model.ErrProductNotFound)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("account directory returned status %d for %s", status, number)
	}

	product := body.toProduct()
	d.cache.Set(ctx, cacheKey, &product)
	return &product, nil
}

// ListByCard returns every account linked to a debit card, unsorted; draw
// ordering is the allocation planner's concern.
func (d *AccountDirectory) ListByCard(ctx context.Context, card string) ([]model.ProductInfo, error) {
	var body []accountResponse
	status, err := d.get(ctx, fmt.Sprintf("%s/get/card/%s", d.baseURL, card), &body)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, fmt.Errorf("debit card %s: %w", card, model.ErrProductNotFound)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("account directory returned status %d for card %s", status, card)
	}

	products := make([]model.ProductInfo, 0, len(body))
	for i := range body {
		products = append(products, body[i].toProduct())
	}
	return products, nil
}

// CreditDirectory is the client for the credit directory service.
type CreditDirectory struct {
	directory
}

// NewCreditDirectory builds a credit directory client. cache may be nil.
func NewCreditDirectory(baseURL string, client *http.Client, cache ProductCache, logger *zap.Logger) *CreditDirectory {
	if client == nil {
		client = http.DefaultClient
	}
	if cache == nil {
		cache = nopProductCache{}
	}
	return &CreditDirectory{directory{
		collection: model.CollectionCredit,
		baseURL:    baseURL,
		client:     client,
		cache:      cache,
		logger:     logger,
	}}
}

// creditResponse mirrors the credit directory's wire format.
type creditResponse struct {
	ID            string          `json:"id"`
	Number        string          `json:"number"`
	CreditTotal   decimal.Decimal `json:"credit_total"`
	CreditBalance decimal.Decimal `json:"credit_balance"`
}

// FindByNumber resolves a credit product by number, trying the cache first.
func (d *CreditDirectory) FindByNumber(ctx context.Context, number string) (*model.ProductInfo, error) {
	cacheKey := fmt.Sprintf(productCacheKeysFmt, d.collection, number)
	if product, ok := d.cache.Get(ctx, cacheKey); ok {
		return product, nil
	}

	var body creditResponse
	status, err := d.get(ctx, fmt.Sprintf("%s/get/number/%s", d.baseURL, number), &body)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, fmt.Errorf("credit %s: %w", number, model.ErrProductNotFound)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("credit directory returned status %d for %s", status, number)
	}

	product := model.ProductInfo{
		ID:      body.ID,
		Number:  body.Number,
		Balance: body.CreditBalance,
	}
	d.cache.Set(ctx, cacheKey, &product)
	return &product, nil
}
