package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/graph-gophers/dataloader/v7"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mamadbah2/farmledger/internal/domain/errs"
	"github.com/mamadbah2/farmledger/internal/domain/models"
	"github.com/mamadbah2/farmledger/internal/service/normalize"
)

// DefaultConcurrency bounds the number of in-flight inventory reads.
const DefaultConcurrency = 8

// batchWait lets the keys of one LoadMany land in the same batch.
const batchWait = 16 * time.Millisecond

// InventoryReader reads one inventory record of a producer.
type InventoryReader interface {
	InventoryItem(ctx context.Context, id string, index uint64) (models.InventoryRecord, error)
}

// SalesReader reads the global sale sequence.
type SalesReader interface {
	AllSales(ctx context.Context) ([]models.SaleRecord, error)
}

// Report is the enriched ledger view of one refresh.
type Report struct {
	Entries []models.LedgerEntry
	Skipped int
}

// Join enriches sales with the name of the produce they reference.
type Join struct {
	inventory   InventoryReader
	sales       SalesReader
	concurrency int
	logger      *zap.Logger
}

// NewJoin wires a reconciliation join.
func NewJoin(inventory InventoryReader, sales SalesReader, concurrency int, logger *zap.Logger) *Join {
	if logger == nil {
		logger = zap.NewNop()
	}
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	return &Join{inventory: inventory, sales: sales, concurrency: concurrency, logger: logger}
}

// Build reads every sale and resolves its produce index against producer.
// Entries keep the original sale order. Unresolved sales are skipped and
// counted; when no sale resolves the report is returned with ErrJoinUnresolved.
// A read that fails for any other reason fails the whole report.
func (j *Join) Build(ctx context.Context, producer string) (Report, error) {
	all, err := j.sales.AllSales(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("build ledger report: %w", err)
	}
	return j.Resolve(ctx, producer, all)
}

// Resolve joins an already-read sale set.
func (j *Join) Resolve(ctx context.Context, producer string, all []models.SaleRecord) (Report, error) {
	report := Report{Entries: make([]models.LedgerEntry, 0, len(all))}
	if len(all) == 0 {
		return report, nil
	}

	keys := make([]uint64, len(all))
	for i, s := range all {
		keys[i] = s.ProduceIndex
	}

	// One loader per refresh: duplicate indices are read once, nothing outlives the call.
	loader := dataloader.NewBatchedLoader(j.batch(producer), dataloader.WithWait[uint64, models.InventoryRecord](batchWait))
	records, loadErrs := loader.LoadMany(ctx, keys)()

	for i, sale := range all {
		if i < len(loadErrs) && loadErrs[i] != nil {
			if !errors.Is(loadErrs[i], errs.ErrJoinUnresolved) {
				return Report{}, fmt.Errorf("resolve sale %d: %w", sale.Position, loadErrs[i])
			}
			j.logger.Debug("sale left unresolved",
				zap.Int("position", sale.Position),
				zap.Uint64("produce_id", sale.ProduceIndex),
				zap.Error(loadErrs[i]))
			report.Skipped++
			continue
		}
		report.Entries = append(report.Entries, models.LedgerEntry{SaleRecord: sale, ProduceName: records[i].Name})
	}

	if report.Skipped > 0 {
		j.logger.Info("ledger report has unresolved sales", zap.String("producer", producer), zap.Int("skipped", report.Skipped), zap.Int("resolved", len(report.Entries)))
	}
	if len(report.Entries) == 0 {
		return report, fmt.Errorf("%w: none of %d sales belong to %s", errs.ErrJoinUnresolved, len(all), producer)
	}
	return report, nil
}

// batch fans the reads of one batch out with bounded concurrency and waits
// for every read to settle.
func (j *Join) batch(producer string) dataloader.BatchFunc[uint64, models.InventoryRecord] {
	return func(ctx context.Context, indices []uint64) []*dataloader.Result[models.InventoryRecord] {
		results := make([]*dataloader.Result[models.InventoryRecord], len(indices))

		var g errgroup.Group
		g.SetLimit(j.concurrency)
		for i, index := range indices {
			i, index := i, index
			g.Go(func() error {
				record, err := j.inventory.InventoryItem(ctx, producer, index)
				switch {
				case err == nil:
					results[i] = &dataloader.Result[models.InventoryRecord]{Data: record}
				case unresolved(err):
					results[i] = &dataloader.Result[models.InventoryRecord]{Error: fmt.Errorf("%w: produce %d: %w", errs.ErrJoinUnresolved, index, err)}
				default:
					results[i] = &dataloader.Result[models.InventoryRecord]{Error: fmt.Errorf("read produce %d: %w", index, err)}
				}
				return nil
			})
		}
		_ = g.Wait()

		return results
	}
}

// unresolved reports whether a failed read means the sale does not belong to
// the producer, as opposed to the ledger being unreachable.
func unresolved(err error) bool {
	return errors.Is(err, errs.ErrLedgerRejected) || errors.Is(err, normalize.ErrMalformedRecord)
}
