package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BestSeller aggregates every sale of one produce listing.
type BestSeller struct {
	ProduceIndex uint64          `json:"produceId"`
	Quantity     int64           `json:"quantity"`
	TotalSales   decimal.Decimal `json:"totalSales"`
}

// AnalyticsSnapshot holds the income figures derived from the sale set.
type AnalyticsSnapshot struct {
	MonthlyIncome      decimal.Decimal `json:"monthlyIncome"`
	YearlyIncome       decimal.Decimal `json:"yearlyIncome"`
	BestSellingProduce []BestSeller    `json:"bestSellingProduce"`
}

// AnalyticsReport is the archived form of a daily digest.
type AnalyticsReport struct {
	Producer      string       `bson:"producer" json:"producer"`
	Date          time.Time    `bson:"date" json:"date"`
	MonthlyIncome string       `bson:"monthly_income" json:"monthly_income"`
	YearlyIncome  string       `bson:"yearly_income" json:"yearly_income"`
	TotalSales    int          `bson:"total_sales" json:"total_sales"`
	BestSellers   []ReportLine `bson:"best_sellers" json:"best_sellers"`
	LowStock      []string     `bson:"low_stock" json:"low_stock"`
	CreatedAt     time.Time    `bson:"created_at" json:"created_at"`
}

// ReportLine is a best seller flattened for storage.
type ReportLine struct {
	ProduceIndex int64  `bson:"produce_id" json:"produce_id"`
	Name         string `bson:"name,omitempty" json:"name,omitempty"`
	Quantity     int64  `bson:"quantity" json:"quantity"`
	TotalSales   string `bson:"total_sales" json:"total_sales"`
}

// OutboundMessageRequest represents a text notification to push to a phone number.
type OutboundMessageRequest struct {
	To         string `json:"to" binding:"required"`
	Message    string `json:"message" binding:"required"`
	PreviewURL bool   `json:"preview_url"`
}
