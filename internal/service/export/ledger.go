// Package export renders the ledger report for spreadsheets.
package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/mamadbah2/farmledger/internal/domain/models"
	"github.com/mamadbah2/farmledger/internal/service/normalize"
	"github.com/mamadbah2/farmledger/internal/service/sales"
)

// SheetName is the worksheet the ledger is written to.
const SheetName = "Ledger"

// ErrSheetsDisabled is returned by SyncSheet when no spreadsheet is configured.
var ErrSheetsDisabled = errors.New("google sheets export is not configured")

// Headers is the column layout shared by the workbook and the spreadsheet.
var Headers = []string{"Position", "Date", "Produce ID", "Produce Name", "Quantity", "Buyer", "Phone", "Price"}

// SheetStore is the Google Sheets repository surface used here.
type SheetStore interface {
	AppendRows(ctx context.Context, sheetRange string, rows [][]interface{}) error
	ReadRange(ctx context.Context, sheetRange string) ([][]interface{}, error)
}

// Exporter writes ledger entries to an xlsx workbook or a spreadsheet.
type Exporter struct {
	sheets     SheetStore
	sheetRange string
	currency   sales.Currency
	logger     *zap.Logger
}

// NewExporter wires an exporter. sheets may be nil.
func NewExporter(sheets SheetStore, sheetRange string, currency sales.Currency, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{sheets: sheets, sheetRange: sheetRange, currency: currency, logger: logger}
}

// Row flattens one entry in Headers order.
func (e *Exporter) Row(entry models.LedgerEntry) []interface{} {
	return []interface{}{
		entry.Position,
		entry.Date,
		entry.ProduceIndex,
		entry.ProduceName,
		entry.Quantity,
		entry.BuyerName,
		entry.BuyerPhone,
		normalize.FormatAmount(entry.Price, e.currency.Decimals),
	}
}

// WriteXLSX writes entries as a single-sheet workbook.
func (e *Exporter) WriteXLSX(w io.Writer, entries []models.LedgerEntry) error {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			e.logger.Warn("close workbook", zap.Error(err))
		}
	}()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	header := make([]interface{}, len(Headers))
	for i, h := range Headers {
		header[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, entry := range entries {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := e.Row(entry)
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// SyncSheet appends the entries whose position is not yet in the first
// column of the configured range and returns how many were appended.
func (e *Exporter) SyncSheet(ctx context.Context, entries []models.LedgerEntry) (int, error) {
	if e.sheets == nil {
		return 0, ErrSheetsDisabled
	}

	existing, err := e.sheets.ReadRange(ctx, e.sheetRange)
	if err != nil {
		return 0, fmt.Errorf("sync ledger sheet: %w", err)
	}

	rows := make([][]interface{}, 0, len(entries)+1)
	if len(existing) == 0 {
		header := make([]interface{}, len(Headers))
		for i, h := range Headers {
			header[i] = h
		}
		rows = append(rows, header)
	}

	seen := positions(existing)
	appended := 0
	for _, entry := range entries {
		if _, ok := seen[entry.Position]; ok {
			continue
		}
		rows = append(rows, e.Row(entry))
		appended++
	}
	if appended == 0 {
		return 0, nil
	}

	if err := e.sheets.AppendRows(ctx, e.sheetRange, rows); err != nil {
		return 0, fmt.Errorf("sync ledger sheet: %w", err)
	}
	e.logger.Info("ledger sheet synced", zap.Int("appended", appended), zap.Int("existing", len(seen)))
	return appended, nil
}

func positions(rows [][]interface{}) map[int]struct{} {
	seen := make(map[int]struct{}, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		n, err := strconv.Atoi(fmt.Sprint(row[0]))
		if err != nil {
			continue
		}
		seen[n] = struct{}{}
	}
	return seen
}
