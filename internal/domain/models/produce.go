package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Category enumerates the produce categories accepted by the ledger.
type Category string

const (
	CategoryVegetables Category = "vegetables"
	CategoryFruits     Category = "fruits"
	CategoryGrains     Category = "grains"
	CategoryDairy      Category = "dairy"
	CategoryOther      Category = "other"
)

// ParseCategory maps a raw ledger value onto a known category. Unknown values become CategoryOther.
func ParseCategory(raw string) Category {
	c := Category(strings.ToLower(strings.TrimSpace(raw)))
	switch c {
	case CategoryVegetables, CategoryFruits, CategoryGrains, CategoryDairy:
		return c
	default:
		return CategoryOther
	}
}

// InventoryRecord is a produce listing owned by a producer.
type InventoryRecord struct {
	Producer    string          `json:"producer"`
	Index       uint64          `json:"id"`
	Name        string          `json:"name"`
	Category    Category        `json:"category"`
	Price       decimal.Decimal `json:"price"` // smallest currency unit
	Quantity    int64           `json:"quantity"`
	HarvestDate time.Time       `json:"harvestDate"`
	ImageRef    string          `json:"imageHash,omitempty"`
	IsAvailable bool            `json:"isAvailable"`
	LowStock    bool            `json:"lowStock"`
}

// NewInventoryItem is the payload of a "post produce" write.
type NewInventoryItem struct {
	Name        string
	Category    Category
	Price       decimal.Decimal // smallest currency unit
	Quantity    uint64
	HarvestDate time.Time
	ImageRef    string
}
