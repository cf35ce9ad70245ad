package sales

import (
	"fmt"
	"strings"
	"time"

	"github.com/mamadbah2/farmledger/internal/domain/models"
	"github.com/mamadbah2/farmledger/internal/service/normalize"
)

// Currency describes how amounts are rendered for humans.
type Currency struct {
	Decimals int32
	Symbol   string
}

// Receipt renders a plain-text receipt for an already-fetched sale. It does
// not touch the ledger.
func Receipt(sale models.SaleRecord, currency Currency, now time.Time) (filename string, body string) {
	var b strings.Builder
	b.WriteString("Sale Receipt\n")
	b.WriteString("----------------------------\n")
	fmt.Fprintf(&b, "Produce ID: %d\n", sale.ProduceIndex)
	fmt.Fprintf(&b, "Quantity: %d\n", sale.Quantity)
	fmt.Fprintf(&b, "Buyer: %s\n", sale.BuyerName)
	fmt.Fprintf(&b, "Phone: %s\n", sale.BuyerPhone)
	fmt.Fprintf(&b, "Price: %s %s\n", normalize.FormatAmount(sale.Price, currency.Decimals), currency.Symbol)
	fmt.Fprintf(&b, "Date: %s\n", sale.Date)

	filename = fmt.Sprintf("receipt_%d_%d.txt", sale.ProduceIndex, now.UnixMilli())
	return filename, b.String()
}
