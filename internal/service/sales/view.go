package sales

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/farmledger/internal/domain/models"
	"github.com/mamadbah2/farmledger/internal/service/normalize"
)

// Reader reads the global sale sequence.
type Reader interface {
	AllSales(ctx context.Context) ([]models.SaleRecord, error)
}

// View holds the sale history formatted for display. The source applies no
// producer filter and neither does the view.
type View struct {
	reader Reader
	loc    *time.Location
	logger *zap.Logger

	mu      sync.RWMutex
	history []models.SaleRecord
}

// NewView wires a sales view rendering timestamps in loc.
func NewView(reader Reader, loc *time.Location, logger *zap.Logger) *View {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.Local
	}
	return &View{reader: reader, loc: loc, logger: logger}
}

// Fetch reads every sale and formats its timestamp as local calendar time.
func (v *View) Fetch(ctx context.Context) ([]models.SaleRecord, error) {
	all, err := v.reader.AllSales(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch sales history: %w", err)
	}

	formatted := make([]models.SaleRecord, len(all))
	for i, s := range all {
		if !s.Timestamp.IsZero() {
			s.Timestamp = s.Timestamp.In(v.loc)
		}
		s.Date = normalize.FormatTimestamp(s.Timestamp)
		formatted[i] = s
	}
	return formatted, nil
}

// Store replaces the history.
func (v *View) Store(history []models.SaleRecord) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.history = history
}

// Refresh fetches and stores. On failure the previous history is kept.
func (v *View) Refresh(ctx context.Context) error {
	history, err := v.Fetch(ctx)
	if err != nil {
		return err
	}
	v.Store(history)
	v.logger.Debug("sales history refreshed", zap.Int("sales", len(history)))
	return nil
}

// History returns a copy of the stored sales in ledger order.
func (v *View) History() []models.SaleRecord {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]models.SaleRecord, len(v.history))
	copy(out, v.history)
	return out
}

// Find returns the stored sale at the given ledger position.
func (v *View) Find(position int) (models.SaleRecord, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	for _, s := range v.history {
		if s.Position == position {
			return s, true
		}
	}
	return models.SaleRecord{}, false
}
