package inventory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/mamadbah2/farmledger/internal/domain/errs"
	"github.com/mamadbah2/farmledger/internal/domain/models"
	"github.com/mamadbah2/farmledger/internal/service/ledger"
	"github.com/mamadbah2/farmledger/internal/service/normalize"
)

// DefaultLowStockThreshold flags records with this quantity or less.
const DefaultLowStockThreshold int64 = 5

// Ledger is the subset of the ledger facade the cache needs.
type Ledger interface {
	InventoryCount(ctx context.Context, id string) (uint64, error)
	InventoryItem(ctx context.Context, id string, index uint64) (models.InventoryRecord, error)
	CreateInventoryItem(ctx context.Context, item models.NewInventoryItem) (ledger.Pending, error)
	UpdateInventoryQuantity(ctx context.Context, index, quantity uint64) (ledger.Pending, error)
}

// Result is the outcome of a fetch.
type Result struct {
	Records   []models.InventoryRecord
	Malformed int
}

// Cache holds the reconciled inventory of one producer and its low-stock subset.
type Cache struct {
	ledger    Ledger
	threshold int64
	logger    *zap.Logger

	mu        sync.RWMutex
	records   []models.InventoryRecord
	lowStock  []models.InventoryRecord
	malformed int
}

// NewCache wires an inventory cache.
func NewCache(l Ledger, threshold int64, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if threshold < 0 {
		threshold = DefaultLowStockThreshold
	}
	return &Cache{ledger: l, threshold: threshold, logger: logger}
}

// Fetch reads the count, then every index in order. Any failed read aborts the
// fetch; malformed records are skipped and counted.
func (c *Cache) Fetch(ctx context.Context, producer string) (Result, error) {
	count, err := c.ledger.InventoryCount(ctx, producer)
	if err != nil {
		return Result{}, fmt.Errorf("fetch inventory: %w", err)
	}

	result := Result{Records: make([]models.InventoryRecord, 0, min(count, 256))}
	for i := uint64(0); i < count; i++ {
		record, err := c.ledger.InventoryItem(ctx, producer, i)
		if errors.Is(err, normalize.ErrMalformedRecord) {
			c.logger.Warn("skip malformed inventory record", zap.String("producer", producer), zap.Uint64("index", i), zap.Error(err))
			result.Malformed++
			continue
		}
		if err != nil {
			return Result{}, fmt.Errorf("fetch inventory index %d of %d: %w", i, count, err)
		}
		result.Records = append(result.Records, record)
	}

	return result, nil
}

// Store atomically replaces the cached records and recomputes low-stock flags.
func (c *Cache) Store(result Result) {
	records := make([]models.InventoryRecord, len(result.Records))
	copy(records, result.Records)
	lowStock := MarkLowStock(records, c.threshold)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = records
	c.lowStock = lowStock
	c.malformed = result.Malformed
}

// Refresh fetches and stores. On failure the previous data is kept.
func (c *Cache) Refresh(ctx context.Context, producer string) error {
	result, err := c.Fetch(ctx, producer)
	if err != nil {
		return err
	}
	c.Store(result)
	c.logger.Debug("inventory refreshed", zap.String("producer", producer), zap.Int("records", len(result.Records)))
	return nil
}

// PostProduce submits a new listing, awaits confirmation and re-reads the
// producer's inventory. The result is returned for the caller to Store once
// it knows the session that issued the write is still current.
func (c *Cache) PostProduce(ctx context.Context, producer string, item models.NewInventoryItem) (Result, error) {
	tx, err := c.ledger.CreateInventoryItem(ctx, item)
	if err != nil {
		return Result{}, fmt.Errorf("submit listing: %w", err)
	}
	if err := tx.AwaitConfirmation(ctx); err != nil {
		return Result{}, fmt.Errorf("confirm listing %s: %w", tx.Hash(), err)
	}
	return c.fetchAfterWrite(ctx, producer)
}

// UpdateQuantity submits a stock update for index, awaits confirmation and
// re-reads the producer's inventory without storing it.
func (c *Cache) UpdateQuantity(ctx context.Context, producer string, index uint64, quantity int64) (Result, error) {
	if quantity < 0 {
		return Result{}, fmt.Errorf("%w: quantity must be a non-negative integer, got %d", errs.ErrValidationFailed, quantity)
	}

	tx, err := c.ledger.UpdateInventoryQuantity(ctx, index, uint64(quantity))
	if err != nil {
		return Result{}, fmt.Errorf("submit stock update for index %d: %w", index, err)
	}
	if err := tx.AwaitConfirmation(ctx); err != nil {
		return Result{}, fmt.Errorf("confirm stock update %s: %w", tx.Hash(), err)
	}
	return c.fetchAfterWrite(ctx, producer)
}

func (c *Cache) fetchAfterWrite(ctx context.Context, producer string) (Result, error) {
	result, err := c.Fetch(ctx, producer)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", errs.ErrStaleAfterWrite, err)
	}
	return result, nil
}

// Records returns a copy of the cached records in ledger index order.
func (c *Cache) Records() []models.InventoryRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.InventoryRecord, len(c.records))
	copy(out, c.records)
	return out
}

// LowStock returns a copy of the low-stock subset.
func (c *Cache) LowStock() []models.InventoryRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.InventoryRecord, len(c.lowStock))
	copy(out, c.lowStock)
	return out
}

// Malformed returns how many records the last stored fetch skipped.
func (c *Cache) Malformed() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.malformed
}

// Threshold is the quantity at or below which a record is low on stock.
func (c *Cache) Threshold() int64 { return c.threshold }

// Active counts available listings.
func (c *Cache) Active() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, r := range c.records {
		if r.IsAvailable {
			n++
		}
	}
	return n
}

// MarkLowStock sets LowStock on every record with quantity <= threshold,
// regardless of availability, and returns those records.
func MarkLowStock(records []models.InventoryRecord, threshold int64) []models.InventoryRecord {
	low := make([]models.InventoryRecord, 0)
	for i := range records {
		records[i].LowStock = records[i].Quantity <= threshold
		if records[i].LowStock {
			low = append(low, records[i])
		}
	}
	return low
}
