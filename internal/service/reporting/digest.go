// Package reporting builds the scheduled analytics digest of one producer
// straight from the ledger, independent of any dashboard session.
package reporting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/farmledger/internal/domain/models"
	"github.com/mamadbah2/farmledger/internal/service/analytics"
	"github.com/mamadbah2/farmledger/internal/service/inventory"
	"github.com/mamadbah2/farmledger/internal/service/normalize"
	"github.com/mamadbah2/farmledger/internal/service/sales"
)

const dateLayout = "2006-01-02"

// Ledger is the read side of the ledger facade the digest needs.
type Ledger interface {
	inventory.Ledger
	AllSales(ctx context.Context) ([]models.SaleRecord, error)
}

// Service builds digests.
type Service struct {
	ledger    Ledger
	inventory *inventory.Cache
	currency  sales.Currency
	loc       *time.Location
	logger    *zap.Logger
}

// NewService wires a new reporting service instance.
func NewService(l Ledger, lowStockThreshold int64, currency sales.Currency, loc *time.Location, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		ledger:    l,
		inventory: inventory.NewCache(l, lowStockThreshold, logger.Named("inventory")),
		currency:  currency,
		loc:       loc,
		logger:    logger,
	}
}

// Build reads the producer's inventory and the sale history and summarizes
// them as of now.
func (s *Service) Build(ctx context.Context, producer string, now time.Time) (models.AnalyticsReport, error) {
	history, err := s.ledger.AllSales(ctx)
	if err != nil {
		return models.AnalyticsReport{}, fmt.Errorf("load sales: %w", err)
	}
	stock, err := s.inventory.Fetch(ctx, producer)
	if err != nil {
		return models.AnalyticsReport{}, fmt.Errorf("load inventory: %w", err)
	}

	now = now.In(s.loc)
	snapshot := analytics.Compute(history, now)

	names := make(map[uint64]string, len(stock.Records))
	for _, r := range stock.Records {
		names[r.Index] = r.Name
	}

	report := models.AnalyticsReport{
		Producer:      producer,
		Date:          time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc),
		MonthlyIncome: normalize.FormatAmount(snapshot.MonthlyIncome, s.currency.Decimals),
		YearlyIncome:  normalize.FormatAmount(snapshot.YearlyIncome, s.currency.Decimals),
		TotalSales:    len(history),
		BestSellers:   make([]models.ReportLine, 0, len(snapshot.BestSellingProduce)),
		LowStock:      make([]string, 0),
		CreatedAt:     now,
	}
	for _, b := range snapshot.BestSellingProduce {
		report.BestSellers = append(report.BestSellers, models.ReportLine{
			ProduceIndex: int64(b.ProduceIndex),
			Name:         names[b.ProduceIndex],
			Quantity:     b.Quantity,
			TotalSales:   normalize.FormatAmount(b.TotalSales, s.currency.Decimals),
		})
	}
	for _, r := range inventory.MarkLowStock(stock.Records, s.inventory.Threshold()) {
		report.LowStock = append(report.LowStock, fmt.Sprintf("%s (%d left)", r.Name, r.Quantity))
	}

	s.logger.Debug("digest built",
		zap.String("producer", producer),
		zap.Int("sales", report.TotalSales),
		zap.Int("low_stock", len(report.LowStock)),
		zap.Int("malformed", stock.Malformed),
	)
	return report, nil
}

// Format renders report as a chat message.
func (s *Service) Format(report models.AnalyticsReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Farm digest %s\n", report.Date.Format(dateLayout))
	fmt.Fprintf(&b, "Monthly income: %s %s\n", report.MonthlyIncome, s.currency.Symbol)
	fmt.Fprintf(&b, "Yearly income: %s %s\n", report.YearlyIncome, s.currency.Symbol)
	fmt.Fprintf(&b, "Sales recorded: %d\n", report.TotalSales)

	if len(report.BestSellers) > 0 {
		b.WriteString("Best sellers:\n")
		for i, line := range report.BestSellers {
			name := line.Name
			if name == "" {
				name = fmt.Sprintf("produce #%d", line.ProduceIndex)
			}
			fmt.Fprintf(&b, "%d. %s: %d sold, %s %s\n", i+1, name, line.Quantity, line.TotalSales, s.currency.Symbol)
		}
	}

	if len(report.LowStock) == 0 {
		b.WriteString("Stock levels OK.")
	} else {
		fmt.Fprintf(&b, "Low stock: %s", strings.Join(report.LowStock, ", "))
	}
	return b.String()
}
