// Package normalize converts raw ledger gateway values into the dashboard model.
//
// The gateway does not guarantee field encodings: numbers may arrive as JSON
// numbers or strings, booleans as "true"/"false", dates as YYYY-MM-DD or unix
// seconds. Missing or unparsable values fall back to zero defaults; only
// negative quantities and empty names are reported as malformed.
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mamadbah2/farmledger/internal/domain/models"
	"github.com/mamadbah2/farmledger/pkg/clients/ledger"
)

const (
	dateLayout      = "2006-01-02"
	timestampLayout = "2006-01-02 15:04:05"
)

// ErrMalformedRecord flags a record with a negative quantity or an empty name.
// The defaulted record is still returned alongside it.
var ErrMalformedRecord = errors.New("malformed ledger record")

// Profile converts the raw farmer entry.
func Profile(raw *ledger.Farmer, address string) models.ProducerProfile {
	profile := models.ProducerProfile{Address: address}
	if raw == nil {
		return profile
	}
	profile.Name = text(raw.Name)
	profile.ContactInfo = text(raw.ContactInfo)
	profile.Location = text(raw.Location)
	profile.IsRegistered = boolean(raw.IsRegistered)
	return profile
}

// Count converts the raw produce count.
func Count(raw any) (uint64, error) {
	s := text(raw)
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: produce count %q", ErrMalformedRecord, s)
	}
	return n, nil
}

// InventoryItem converts a raw produce entry found at index for producer.
func InventoryItem(raw *ledger.ProduceItem, producer string, index uint64) (models.InventoryRecord, error) {
	record := models.InventoryRecord{Producer: producer, Index: index, Category: models.CategoryOther, Price: decimal.Zero}
	if raw == nil {
		return record, fmt.Errorf("%w: produce %d is empty", ErrMalformedRecord, index)
	}

	record.Name = strings.TrimSpace(text(raw.Name))
	record.Category = models.ParseCategory(text(raw.Category))
	record.Price = amount(raw.Price)
	record.Quantity = integer(raw.Quantity)
	record.HarvestDate = date(raw.HarvestDate)
	record.ImageRef = text(raw.ImageHash)
	record.IsAvailable = boolean(raw.IsAvailable)

	switch {
	case record.Name == "":
		return record, fmt.Errorf("%w: produce %d has no name", ErrMalformedRecord, index)
	case record.Quantity < 0:
		record.Quantity = 0
		return record, fmt.Errorf("%w: produce %d has negative quantity", ErrMalformedRecord, index)
	}
	return record, nil
}

// Sale converts a raw sale found at position in the global sale sequence.
// Timestamps are rendered in loc.
func Sale(raw ledger.Sale, position int, loc *time.Location) (models.SaleRecord, error) {
	if loc == nil {
		loc = time.Local
	}

	sale := models.SaleRecord{
		Position:   position,
		BuyerName:  strings.TrimSpace(text(raw.BuyerName)),
		BuyerPhone: strings.TrimSpace(text(raw.BuyerPhone)),
		Price:      amount(raw.Price),
		Quantity:   integer(raw.Quantity),
	}

	idx := integer(raw.ProduceID)
	if idx > 0 {
		sale.ProduceIndex = uint64(idx)
	}

	if secs := integer(raw.Timestamp); secs > 0 {
		sale.Timestamp = time.Unix(secs, 0).In(loc)
		sale.Date = FormatTimestamp(sale.Timestamp)
	}

	switch {
	case idx < 0:
		return sale, fmt.Errorf("%w: sale %d references negative produce id", ErrMalformedRecord, position)
	case sale.Quantity < 0:
		sale.Quantity = 0
		return sale, fmt.Errorf("%w: sale %d has negative quantity", ErrMalformedRecord, position)
	}
	return sale, nil
}

// FormatTimestamp renders a ledger timestamp as local calendar time.
func FormatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(timestampLayout)
}

// ParseAmount converts a human-facing currency amount (e.g. "1.5") into the
// ledger's smallest unit using decimals places.
func ParseAmount(human string, decimals int32) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(human))
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", human, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("amount %q must not be negative", human)
	}

	subunits := d.Shift(decimals)
	if !subunits.Equal(subunits.Truncate(0)) {
		return decimal.Zero, fmt.Errorf("amount %q has more than %d decimal places", human, decimals)
	}
	return subunits.Truncate(0), nil
}

// FormatAmount renders a smallest-unit amount in human currency units.
func FormatAmount(subunits decimal.Decimal, decimals int32) string {
	return subunits.Shift(-decimals).String()
}

func text(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}

func integer(v any) int64 {
	s := strings.TrimSpace(text(v))
	if s == "" {
		return 0
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	// e.g. "10.0" or 1e3
	d, err := decimal.NewFromString(s)
	if err != nil || !d.Equal(d.Truncate(0)) {
		return 0
	}
	return d.IntPart()
}

func amount(v any) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(text(v)))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func boolean(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case json.Number:
		n, err := val.Int64()
		return err == nil && n != 0
	default:
		b, err := strconv.ParseBool(strings.TrimSpace(text(v)))
		return err == nil && b
	}
}

func date(v any) time.Time {
	switch val := v.(type) {
	case nil:
		return time.Time{}
	case json.Number, float64:
		if secs := integer(val); secs > 0 {
			return time.Unix(secs, 0).UTC()
		}
		return time.Time{}
	}

	s := strings.TrimSpace(text(v))
	if s == "" {
		return time.Time{}
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil && secs > 0 {
		return time.Unix(secs, 0).UTC()
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if len(s) > 10 {
		s = s[:10]
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
