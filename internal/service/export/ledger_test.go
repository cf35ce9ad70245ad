package export

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/mamadbah2/farmledger/internal/domain/models"
	"github.com/mamadbah2/farmledger/internal/service/sales"
)

var currency = sales.Currency{Decimals: 2, Symbol: "RWF"}

func entry(position int, index uint64, name string, price int64) models.LedgerEntry {
	return models.LedgerEntry{
		SaleRecord: models.SaleRecord{
			Position:     position,
			ProduceIndex: index,
			Quantity:     2,
			BuyerName:    "Aline",
			BuyerPhone:   "0788000000",
			Price:        decimal.NewFromInt(price),
			Date:         "2026-05-01 10:00:00",
		},
		ProduceName: name,
	}
}

type fakeSheets struct {
	existing [][]interface{}
	appended [][]interface{}
	ranges   []string
	readErr  error
}

func (f *fakeSheets) AppendRows(_ context.Context, sheetRange string, rows [][]interface{}) error {
	f.ranges = append(f.ranges, sheetRange)
	f.appended = append(f.appended, rows...)
	return nil
}

func (f *fakeSheets) ReadRange(_ context.Context, sheetRange string) ([][]interface{}, error) {
	f.ranges = append(f.ranges, sheetRange)
	return f.existing, f.readErr
}

func TestWriteXLSX(t *testing.T) {
	e := NewExporter(nil, "", currency, nil)

	var buf bytes.Buffer
	require.NoError(t, e.WriteXLSX(&buf, []models.LedgerEntry{entry(0, 1, "Maize", 1500), entry(3, 0, "Tomatoes", 250)}))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Headers, rows[0])
	assert.Equal(t, []string{"0", "2026-05-01 10:00:00", "1", "Maize", "2", "Aline", "0788000000", "15"}, rows[1])
	assert.Equal(t, "Tomatoes", rows[2][3])
	assert.Equal(t, "2.5", rows[2][7])
}

func TestWriteXLSXEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewExporter(nil, "", currency, nil).WriteXLSX(&buf, nil))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestSyncSheetWritesHeaderOnFirstSync(t *testing.T) {
	store := &fakeSheets{}
	e := NewExporter(store, "Ledger!A:H", currency, nil)

	n, err := e.SyncSheet(context.Background(), []models.LedgerEntry{entry(0, 1, "Maize", 1500)})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, store.appended, 2)
	assert.Equal(t, "Position", store.appended[0][0])
	assert.Equal(t, "Maize", store.appended[1][3])
	assert.Equal(t, []string{"Ledger!A:H", "Ledger!A:H"}, store.ranges)
}

func TestSyncSheetAppendsOnlyNewPositions(t *testing.T) {
	store := &fakeSheets{existing: [][]interface{}{
		{"Position", "Date"},
		{"0", "2026-05-01 10:00:00"},
		{"2", "2026-05-02 10:00:00"},
	}}
	e := NewExporter(store, "Ledger!A:H", currency, nil)

	n, err := e.SyncSheet(context.Background(), []models.LedgerEntry{
		entry(0, 1, "Maize", 1500),
		entry(2, 1, "Maize", 1500),
		entry(5, 0, "Tomatoes", 250),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, store.appended, 1)
	assert.Equal(t, 5, store.appended[0][0])

	store.appended = nil
	n, err = e.SyncSheet(context.Background(), []models.LedgerEntry{entry(0, 1, "Maize", 1500)})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, store.appended)
}

func TestSyncSheetErrors(t *testing.T) {
	_, err := NewExporter(nil, "", currency, nil).SyncSheet(context.Background(), nil)
	assert.ErrorIs(t, err, ErrSheetsDisabled)

	store := &fakeSheets{readErr: errors.New("quota")}
	_, err = NewExporter(store, "Ledger!A:H", currency, nil).SyncSheet(context.Background(), []models.LedgerEntry{entry(0, 1, "Maize", 1)})
	assert.ErrorContains(t, err, "quota")
	assert.Empty(t, store.appended)
}
