package inventory

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/farmledger/internal/domain/errs"
	"github.com/mamadbah2/farmledger/internal/domain/models"
	"github.com/mamadbah2/farmledger/internal/service/ledger/ledgertest"
	"github.com/mamadbah2/farmledger/internal/service/normalize"
	"github.com/mamadbah2/farmledger/pkg/clients/identity"
)

const producer = "0xfarmer"

func newFixture(t *testing.T) (*ledgertest.Fake, *Cache) {
	t.Helper()
	fake := ledgertest.New()
	fake.SetSigner(identity.Signer{Address: producer})
	return fake, NewCache(fake, DefaultLowStockThreshold, nil)
}

func TestRefreshKeepsIndexOrderAndFlagsLowStock(t *testing.T) {
	fake, cache := newFixture(t)
	fake.SeedProduce(producer, models.InventoryRecord{Name: "Tomatoes", Quantity: 5, IsAvailable: false})
	fake.SeedProduce(producer, models.InventoryRecord{Name: "Maize", Quantity: 6, IsAvailable: true})
	fake.SeedProduce(producer, models.InventoryRecord{Name: "Milk", Quantity: 0, IsAvailable: true})

	require.NoError(t, cache.Refresh(context.Background(), producer))

	records := cache.Records()
	require.Len(t, records, 3)
	for i, r := range records {
		assert.Equal(t, uint64(i), r.Index)
	}
	assert.True(t, records[0].LowStock, "quantity 5 is low stock even when unavailable")
	assert.False(t, records[1].LowStock, "quantity 6 is not low stock")
	assert.True(t, records[2].LowStock)

	low := cache.LowStock()
	require.Len(t, low, 2)
	assert.Equal(t, "Tomatoes", low[0].Name)
	assert.Equal(t, "Milk", low[1].Name)
	assert.Equal(t, 2, cache.Active())
}

func TestRefreshFailureKeepsPriorData(t *testing.T) {
	fake, cache := newFixture(t)
	fake.SeedProduce(producer, models.InventoryRecord{Name: "Beans", Quantity: 20})
	require.NoError(t, cache.Refresh(context.Background(), producer))

	fake.SeedProduce(producer, models.InventoryRecord{Name: "Rice", Quantity: 2})
	fake.ItemErr[1] = fmt.Errorf("%w: timeout", errs.ErrLedgerUnavailable)

	err := cache.Refresh(context.Background(), producer)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrLedgerUnavailable)

	records := cache.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "Beans", records[0].Name)
	assert.Empty(t, cache.LowStock())
}

func TestFetchSkipsMalformedRecords(t *testing.T) {
	fake, cache := newFixture(t)
	fake.SeedProduce(producer, models.InventoryRecord{Name: "Beans", Quantity: 20})
	fake.SeedProduce(producer, models.InventoryRecord{Name: "Ghost", Quantity: 1})
	fake.ItemErr[1] = fmt.Errorf("%w: produce 1 has no name", normalize.ErrMalformedRecord)

	result, err := cache.Fetch(context.Background(), producer)
	require.NoError(t, err)
	assert.Len(t, result.Records, 1)
	assert.Equal(t, 1, result.Malformed)
}

func TestPostThenUpdateStockRoundTrip(t *testing.T) {
	_, cache := newFixture(t)
	ctx := context.Background()

	result, err := cache.PostProduce(ctx, producer, models.NewInventoryItem{
		Name:     "Carrots",
		Category: models.CategoryVegetables,
		Price:    decimal.NewFromInt(1000),
		Quantity: 10,
	})
	require.NoError(t, err)
	cache.Store(result)
	require.Len(t, cache.Records(), 1)
	assert.False(t, cache.Records()[0].LowStock)

	result, err = cache.UpdateQuantity(ctx, producer, 0, 3)
	require.NoError(t, err)
	cache.Store(result)

	records := cache.Records()
	require.Len(t, records, 1)
	assert.Equal(t, uint64(0), records[0].Index)
	assert.Equal(t, int64(3), records[0].Quantity)
	assert.True(t, records[0].LowStock)
}

func TestUpdateQuantityRejectsNegativeBeforeSubmitting(t *testing.T) {
	fake, cache := newFixture(t)

	_, err := cache.UpdateQuantity(context.Background(), producer, 0, -1)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrValidationFailed)
	assert.Zero(t, fake.Submissions.Load())
}

func TestWriteFailureLeavesCacheUntouched(t *testing.T) {
	fake, cache := newFixture(t)
	fake.SeedProduce(producer, models.InventoryRecord{Name: "Beans", Quantity: 20})
	require.NoError(t, cache.Refresh(context.Background(), producer))

	fake.ConfirmErr = fmt.Errorf("%w: reverted", errs.ErrLedgerRejected)
	_, err := cache.PostProduce(context.Background(), producer, models.NewInventoryItem{Name: "Kale", Quantity: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrLedgerRejected)
	assert.False(t, errors.Is(err, errs.ErrStaleAfterWrite))
	assert.Len(t, cache.Records(), 1)
}

func TestRefreshFailureAfterConfirmedWriteIsStale(t *testing.T) {
	fake, cache := newFixture(t)
	fake.CountErr = fmt.Errorf("%w: connection reset", errs.ErrLedgerUnavailable)

	_, err := cache.PostProduce(context.Background(), producer, models.NewInventoryItem{Name: "Kale", Quantity: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrStaleAfterWrite)
	assert.ErrorIs(t, err, errs.ErrLedgerUnavailable)
}

func TestWriteReturnsFreshInventoryWithoutStoring(t *testing.T) {
	fake, cache := newFixture(t)
	fake.SeedProduce(producer, models.InventoryRecord{Name: "Beans", Quantity: 20})
	require.NoError(t, cache.Refresh(context.Background(), producer))

	result, err := cache.PostProduce(context.Background(), producer, models.NewInventoryItem{Name: "Kale", Quantity: 1})
	require.NoError(t, err)
	assert.Len(t, result.Records, 2)
	assert.Len(t, cache.Records(), 1)
}

func TestMarkLowStockBoundary(t *testing.T) {
	records := []models.InventoryRecord{{Quantity: 5}, {Quantity: 6}, {Quantity: 4, IsAvailable: true}}
	low := MarkLowStock(records, 5)
	assert.Len(t, low, 2)
	assert.True(t, records[0].LowStock)
	assert.False(t, records[1].LowStock)
	assert.True(t, records[2].LowStock)
}
