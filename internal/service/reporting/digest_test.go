package reporting

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/farmledger/internal/domain/errs"
	"github.com/mamadbah2/farmledger/internal/domain/models"
	"github.com/mamadbah2/farmledger/internal/service/ledger/ledgertest"
	"github.com/mamadbah2/farmledger/internal/service/sales"
)

const producer = "0xfarm"

var now = time.Date(2026, 5, 20, 21, 0, 0, 0, time.UTC)

func seed(fake *ledgertest.Fake, index uint64, qty int64, price int64, ts time.Time) {
	fake.SeedSale(models.SaleRecord{ProduceIndex: index, Quantity: qty, Price: decimal.NewFromInt(price), Timestamp: ts})
}

func newFixture() (*ledgertest.Fake, *Service) {
	fake := ledgertest.New()
	fake.SeedProduce(producer, models.InventoryRecord{Name: "Tomatoes", Quantity: 3, IsAvailable: true})
	fake.SeedProduce(producer, models.InventoryRecord{Name: "Maize", Quantity: 40, IsAvailable: true})

	seed(fake, 0, 2, 1500, time.Date(2026, 5, 3, 9, 0, 0, 0, time.UTC))
	seed(fake, 1, 5, 2000, time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC))
	seed(fake, 1, 1, 400, time.Date(2025, 12, 1, 9, 0, 0, 0, time.UTC))
	seed(fake, 0, 1, 100, time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC))
	seed(fake, 7, 1, 0, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))

	svc := NewService(fake, 5, sales.Currency{Decimals: 2, Symbol: "RWF"}, time.UTC, nil)
	return fake, svc
}

func TestBuild(t *testing.T) {
	_, svc := newFixture()

	report, err := svc.Build(context.Background(), producer, now)
	require.NoError(t, err)

	assert.Equal(t, producer, report.Producer)
	assert.Equal(t, time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC), report.Date)
	assert.Equal(t, "35", report.MonthlyIncome)
	assert.Equal(t, "36", report.YearlyIncome)
	assert.Equal(t, 5, report.TotalSales)
	assert.Equal(t, []models.ReportLine{
		{ProduceIndex: 1, Name: "Maize", Quantity: 6, TotalSales: "24"},
		{ProduceIndex: 0, Name: "Tomatoes", Quantity: 3, TotalSales: "16"},
		{ProduceIndex: 7, Quantity: 1, TotalSales: "0"},
	}, report.BestSellers)
	assert.Equal(t, []string{"Tomatoes (3 left)"}, report.LowStock)
}

func TestBuildUsesConfiguredCalendar(t *testing.T) {
	fake := ledgertest.New()
	seed(fake, 0, 1, 700, time.Date(2026, 4, 30, 23, 30, 0, 0, time.UTC))

	kigali := time.FixedZone("CAT", 2*60*60)
	svc := NewService(fake, 5, sales.Currency{Decimals: 2, Symbol: "RWF"}, kigali, nil)

	report, err := svc.Build(context.Background(), producer, now)
	require.NoError(t, err)
	assert.Equal(t, "7", report.MonthlyIncome, "23:30 UTC on April 30 is May 1 in Kigali")
}

func TestBuildFailures(t *testing.T) {
	fake, svc := newFixture()
	fake.SalesErr = errs.ErrLedgerUnavailable
	_, err := svc.Build(context.Background(), producer, now)
	assert.ErrorIs(t, err, errs.ErrLedgerUnavailable)

	fake.SalesErr = nil
	fake.CountErr = errs.ErrLedgerUnavailable
	_, err = svc.Build(context.Background(), producer, now)
	assert.ErrorIs(t, err, errs.ErrLedgerUnavailable)
}

func TestFormat(t *testing.T) {
	_, svc := newFixture()
	report, err := svc.Build(context.Background(), producer, now)
	require.NoError(t, err)

	want := "Farm digest 2026-05-20\n" +
		"Monthly income: 35 RWF\n" +
		"Yearly income: 36 RWF\n" +
		"Sales recorded: 5\n" +
		"Best sellers:\n" +
		"1. Maize: 6 sold, 24 RWF\n" +
		"2. Tomatoes: 3 sold, 16 RWF\n" +
		"3. produce #7: 1 sold, 0 RWF\n" +
		"Low stock: Tomatoes (3 left)"
	assert.Equal(t, want, svc.Format(report))
}

func TestFormatEmpty(t *testing.T) {
	svc := NewService(ledgertest.New(), 5, sales.Currency{Decimals: 2, Symbol: "RWF"}, time.UTC, nil)
	report, err := svc.Build(context.Background(), producer, now)
	require.NoError(t, err)

	assert.Empty(t, report.BestSellers)
	assert.Equal(t, "Farm digest 2026-05-20\nMonthly income: 0 RWF\nYearly income: 0 RWF\nSales recorded: 0\nStock levels OK.", svc.Format(report))
}
