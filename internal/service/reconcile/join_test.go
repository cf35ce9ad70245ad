package reconcile

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/farmledger/internal/domain/errs"
	"github.com/mamadbah2/farmledger/internal/domain/models"
	"github.com/mamadbah2/farmledger/internal/service/ledger/ledgertest"
	"github.com/mamadbah2/farmledger/internal/service/normalize"
)

const producer = "0xfarmer"

func seed(fake *ledgertest.Fake, names ...string) {
	for _, n := range names {
		fake.SeedProduce(producer, models.InventoryRecord{Name: n, Quantity: 10})
	}
}

func TestBuildSkipsUnresolvedSale(t *testing.T) {
	fake := ledgertest.New()
	seed(fake, "Tomatoes", "Maize")
	fake.SeedSale(models.SaleRecord{ProduceIndex: 1, BuyerName: "a"})
	fake.SeedSale(models.SaleRecord{ProduceIndex: 9, BuyerName: "b"})
	fake.SeedSale(models.SaleRecord{ProduceIndex: 0, BuyerName: "c"})

	report, err := NewJoin(fake, fake, 4, nil).Build(context.Background(), producer)
	require.NoError(t, err)

	require.Len(t, report.Entries, 2)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, "Maize", report.Entries[0].ProduceName)
	assert.Equal(t, "a", report.Entries[0].BuyerName)
	assert.Equal(t, "Tomatoes", report.Entries[1].ProduceName)
	assert.Equal(t, "c", report.Entries[1].BuyerName)
}

func TestBuildKeepsSaleOrderAndDeduplicatesReads(t *testing.T) {
	fake := ledgertest.New()
	seed(fake, "p0", "p1", "p2")
	order := []uint64{2, 0, 2, 1, 0, 2, 1}
	for i, idx := range order {
		fake.SeedSale(models.SaleRecord{ProduceIndex: idx, BuyerName: fmt.Sprint(i)})
	}

	report, err := NewJoin(fake, fake, 2, nil).Build(context.Background(), producer)
	require.NoError(t, err)
	require.Len(t, report.Entries, len(order))
	for i, entry := range report.Entries {
		assert.Equal(t, i, entry.Position)
		assert.Equal(t, fmt.Sprintf("p%d", order[i]), entry.ProduceName)
	}
	assert.Equal(t, int64(3), fake.ItemReads.Load())
}

func TestBuildFansOutConcurrently(t *testing.T) {
	fake := ledgertest.New()
	for i := 0; i < 8; i++ {
		seed(fake, fmt.Sprintf("p%d", i))
		fake.SeedSale(models.SaleRecord{ProduceIndex: uint64(i)})
	}
	fake.ItemDelay = 50 * time.Millisecond

	start := time.Now()
	report, err := NewJoin(fake, fake, 8, nil).Build(context.Background(), producer)
	require.NoError(t, err)
	assert.Len(t, report.Entries, 8)
	assert.Less(t, time.Since(start), 8*fake.ItemDelay, "reads should overlap")
}

func TestBuildAllUnresolvedIsViewError(t *testing.T) {
	fake := ledgertest.New()
	fake.SeedSale(models.SaleRecord{ProduceIndex: 3})
	fake.SeedSale(models.SaleRecord{ProduceIndex: 4})

	report, err := NewJoin(fake, fake, 4, nil).Build(context.Background(), producer)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrJoinUnresolved)
	assert.Empty(t, report.Entries)
	assert.Equal(t, 2, report.Skipped)
}

func TestBuildWithoutSales(t *testing.T) {
	fake := ledgertest.New()
	report, err := NewJoin(fake, fake, 4, nil).Build(context.Background(), producer)
	require.NoError(t, err)
	assert.Empty(t, report.Entries)
	assert.Zero(t, report.Skipped)
}

func TestBuildSalesReadFailure(t *testing.T) {
	fake := ledgertest.New()
	fake.SalesErr = fmt.Errorf("%w: timeout", errs.ErrLedgerUnavailable)

	_, err := NewJoin(fake, fake, 4, nil).Build(context.Background(), producer)
	assert.ErrorIs(t, err, errs.ErrLedgerUnavailable)
}

func TestBuildUnavailableItemReadFailsReport(t *testing.T) {
	fake := ledgertest.New()
	seed(fake, "Tomatoes", "Maize")
	fake.SeedSale(models.SaleRecord{ProduceIndex: 0})
	fake.SeedSale(models.SaleRecord{ProduceIndex: 1})
	fake.ItemErr = map[uint64]error{1: fmt.Errorf("%w: connection reset", errs.ErrLedgerUnavailable)}

	report, err := NewJoin(fake, fake, 4, nil).Build(context.Background(), producer)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrLedgerUnavailable)
	assert.NotErrorIs(t, err, errs.ErrJoinUnresolved)
	assert.Empty(t, report.Entries)
}

func TestBuildMalformedItemIsSkipped(t *testing.T) {
	fake := ledgertest.New()
	seed(fake, "Tomatoes", "Maize")
	fake.SeedSale(models.SaleRecord{ProduceIndex: 0})
	fake.SeedSale(models.SaleRecord{ProduceIndex: 1})
	fake.ItemErr = map[uint64]error{1: fmt.Errorf("%w: empty name", normalize.ErrMalformedRecord)}

	report, err := NewJoin(fake, fake, 4, nil).Build(context.Background(), producer)
	require.NoError(t, err)
	require.Len(t, report.Entries, 1)
	assert.Equal(t, 1, report.Skipped)
}
