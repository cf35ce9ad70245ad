package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SaleRecord is an immutable sale as recorded by the ledger.
type SaleRecord struct {
	Position     int             `json:"position"`
	ProduceIndex uint64          `json:"produceId"`
	Quantity     int64           `json:"quantity"`
	BuyerName    string          `json:"buyerName"`
	BuyerPhone   string          `json:"buyerPhone"`
	Price        decimal.Decimal `json:"price"`
	Timestamp    time.Time       `json:"timestamp"`
	Date         string          `json:"date"`
}

// NewSale is the payload of a "record sale" write.
type NewSale struct {
	ProduceIndex uint64
	Quantity     uint64
	BuyerName    string
	BuyerPhone   string
	Price        decimal.Decimal
}

// LedgerEntry is a sale enriched with the name of the produce it refers to.
type LedgerEntry struct {
	SaleRecord
	ProduceName string `json:"produceName"`
}
