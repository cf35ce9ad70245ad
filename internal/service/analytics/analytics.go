// Package analytics derives income figures and best sellers from a sale set.
// Nothing here is cached; callers recompute from the full history.
package analytics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mamadbah2/farmledger/internal/domain/models"
)

// TopN is the number of best sellers kept in a snapshot.
const TopN = 5

// Compute partitions sales by now's calendar month and year (in now's
// location) and sums the stored sale price of each partition. Prices are
// summed verbatim, not multiplied by quantity.
func Compute(sales []models.SaleRecord, now time.Time) models.AnalyticsSnapshot {
	snapshot := models.AnalyticsSnapshot{
		MonthlyIncome:      decimal.Zero,
		YearlyIncome:       decimal.Zero,
		BestSellingProduce: BestSellers(sales, TopN),
	}

	loc := now.Location()
	year, month, _ := now.Date()
	for _, s := range sales {
		if s.Timestamp.IsZero() {
			continue
		}
		y, m, _ := s.Timestamp.In(loc).Date()
		if y != year {
			continue
		}
		snapshot.YearlyIncome = snapshot.YearlyIncome.Add(s.Price)
		if m == month {
			snapshot.MonthlyIncome = snapshot.MonthlyIncome.Add(s.Price)
		}
	}
	return snapshot
}

// BestSellers groups sales by produce index and returns at most n groups
// ordered by total quantity. Equal quantities keep first-seen order.
func BestSellers(sales []models.SaleRecord, n int) []models.BestSeller {
	groups := make([]models.BestSeller, 0)
	seen := make(map[uint64]int)
	for _, s := range sales {
		i, ok := seen[s.ProduceIndex]
		if !ok {
			i = len(groups)
			seen[s.ProduceIndex] = i
			groups = append(groups, models.BestSeller{ProduceIndex: s.ProduceIndex, TotalSales: decimal.Zero})
		}
		groups[i].Quantity += s.Quantity
		groups[i].TotalSales = groups[i].TotalSales.Add(s.Price)
	}

	sort.SliceStable(groups, func(a, b int) bool {
		return groups[a].Quantity > groups[b].Quantity
	})
	if n >= 0 && len(groups) > n {
		groups = groups[:n]
	}
	return groups
}
