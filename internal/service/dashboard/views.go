package dashboard

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mamadbah2/farmledger/internal/domain/errs"
	"github.com/mamadbah2/farmledger/internal/domain/models"
	"github.com/mamadbah2/farmledger/internal/pagination"
	"github.com/mamadbah2/farmledger/internal/service/analytics"
	"github.com/mamadbah2/farmledger/internal/service/inventory"
	"github.com/mamadbah2/farmledger/internal/service/normalize"
	"github.com/mamadbah2/farmledger/internal/service/reconcile"
)

// View names a dashboard tab backed by ledger data.
type View string

const (
	ViewInventory View = "inventory"
	ViewSales     View = "sales"
	ViewLedger    View = "ledger"
	ViewAnalytics View = "analytics"
)

// Views lists every view in display order.
var Views = []View{ViewInventory, ViewSales, ViewLedger, ViewAnalytics}

// ParseView validates a view name.
func ParseView(name string) (View, error) {
	for _, v := range Views {
		if string(v) == name {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: unknown view %q", errs.ErrValidationFailed, name)
}

// Status is the load state of a view.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusError   Status = "error"
)

type viewState struct {
	status     Status
	err        error
	loaded     bool
	generation uint64
	skipped    int
}

func newViewStates() map[View]*viewState {
	states := make(map[View]*viewState, len(Views))
	for _, v := range Views {
		states[v] = &viewState{status: StatusIdle}
	}
	return states
}

// Snapshot is what the presentation layer renders for one view.
type Snapshot struct {
	View        View                     `json:"view"`
	Status      Status                   `json:"status"`
	Error       string                   `json:"error,omitempty"`
	ErrorKind   string                   `json:"errorKind,omitempty"`
	Data        any                      `json:"data"`
	CurrentPage int                      `json:"currentPage"`
	TotalPages  int                      `json:"totalPages"`
	Skipped     int                      `json:"skipped"`
	LowStock    []models.InventoryRecord `json:"lowStock,omitempty"`
}

// Overview is the landing tab summary.
type Overview struct {
	Address        string                   `json:"address"`
	FarmName       string                   `json:"farmName"`
	ContactInfo    string                   `json:"contactInfo"`
	Location       string                   `json:"location"`
	ActiveListings int                      `json:"activeListings"`
	TotalSales     int                      `json:"totalSales"`
	LowStock       []models.InventoryRecord `json:"lowStock"`
	MonthlyRevenue string                   `json:"monthlyRevenue"`
	Currency       string                   `json:"currency"`
}

// Activate makes view the active one and loads it if this session has not
// loaded it yet. A view left while loading drops its result when it lands.
func (o *Orchestrator) Activate(ctx context.Context, view View) (Snapshot, error) {
	if _, ok := o.views[view]; !ok {
		return Snapshot{}, fmt.Errorf("%w: unknown view %q", errs.ErrValidationFailed, view)
	}
	if _, err := o.session(PhaseReady); err != nil {
		return Snapshot{}, err
	}

	o.mu.Lock()
	o.switchToLocked(view)
	st := o.views[view]
	needed := !st.loaded && st.status != StatusLoading
	o.mu.Unlock()

	if needed {
		if err := o.refresh(ctx, view); err != nil {
			return o.Snapshot(view), err
		}
	}
	return o.Snapshot(view), nil
}

// Refresh reloads view on explicit request, even when already loaded.
func (o *Orchestrator) Refresh(ctx context.Context, view View) (Snapshot, error) {
	if _, ok := o.views[view]; !ok {
		return Snapshot{}, fmt.Errorf("%w: unknown view %q", errs.ErrValidationFailed, view)
	}
	if _, err := o.session(PhaseReady); err != nil {
		return Snapshot{}, err
	}

	o.mu.Lock()
	o.switchToLocked(view)
	o.mu.Unlock()

	if err := o.refresh(ctx, view); err != nil {
		return o.Snapshot(view), err
	}
	return o.Snapshot(view), nil
}

func (o *Orchestrator) switchToLocked(view View) {
	if o.active == view {
		return
	}
	if prev, ok := o.views[o.active]; ok && prev.status == StatusLoading {
		prev.generation++
		prev.status = StatusIdle
		if prev.loaded {
			prev.status = StatusReady
		}
		o.logger.Debug("view left while loading, result will be dropped", zap.String("view", string(o.active)))
	}
	o.active = view
}

// refresh fetches view outside the lock and commits only if no newer
// refresh or view switch happened meanwhile.
func (o *Orchestrator) refresh(ctx context.Context, view View) error {
	o.mu.Lock()
	st := o.views[view]
	st.generation++
	gen := st.generation
	st.status = StatusLoading
	producer := o.address
	o.mu.Unlock()

	var (
		commit  func()
		skipped int
		err     error
	)
	switch view {
	case ViewInventory:
		var result inventory.Result
		result, err = o.inventory.Fetch(ctx, producer)
		commit = func() {
			o.inventory.Store(result)
			o.inventoryPages.SetItems(o.inventory.Records())
			st.skipped = result.Malformed
		}
	case ViewSales:
		var history []models.SaleRecord
		history, err = o.sales.Fetch(ctx)
		commit = func() {
			o.sales.Store(history)
			o.salesPages.SetItems(history)
		}
	case ViewLedger:
		var report reconcile.Report
		report, err = o.join.Build(ctx, producer)
		skipped = report.Skipped
		commit = func() {
			o.ledgerPages.SetItems(report.Entries)
			st.skipped = report.Skipped
		}
	case ViewAnalytics:
		var history []models.SaleRecord
		history, err = o.sales.Fetch(ctx)
		commit = func() {
			o.analytics = analytics.Compute(history, o.opts.Now().In(o.opts.Location))
		}
	}

	o.mu.Lock()
	if st.generation != gen || o.active != view {
		o.mu.Unlock()
		o.logger.Debug("dropping stale view result", zap.String("view", string(view)), zap.Uint64("generation", gen))
		return nil
	}
	if err != nil {
		st.status = StatusError
		st.err = err
		if errors.Is(err, errs.ErrJoinUnresolved) {
			st.skipped = skipped
		}
		o.mu.Unlock()
		o.logger.Warn("view refresh failed", zap.String("view", string(view)), zap.Error(err))
		o.fail(err)
		return err
	}
	commit()
	st.status = StatusReady
	st.err = nil
	st.loaded = true
	o.mu.Unlock()
	return nil
}

// SetPage moves the page cursor of a paginated view. The page is not clamped.
func (o *Orchestrator) SetPage(view View, page int) error {
	switch view {
	case ViewInventory:
		o.inventoryPages.SetPage(page)
	case ViewSales:
		o.salesPages.SetPage(page)
	case ViewLedger:
		o.ledgerPages.SetPage(page)
	default:
		return fmt.Errorf("%w: view %q is not paginated", errs.ErrValidationFailed, view)
	}
	return nil
}

// Snapshot renders the current state of view.
func (o *Orchestrator) Snapshot(view View) Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	snap := Snapshot{View: view}
	st, ok := o.views[view]
	if !ok {
		return snap
	}
	snap.Status = st.status
	snap.Skipped = st.skipped
	if st.err != nil {
		snap.Error = st.err.Error()
		snap.ErrorKind = errs.Kind(st.err)
	}

	switch view {
	case ViewInventory:
		snap.Data, snap.CurrentPage, snap.TotalPages = page(o.inventoryPages)
		snap.LowStock = o.inventory.LowStock()
	case ViewSales:
		snap.Data, snap.CurrentPage, snap.TotalPages = page(o.salesPages)
	case ViewLedger:
		snap.Data, snap.CurrentPage, snap.TotalPages = page(o.ledgerPages)
	case ViewAnalytics:
		a := o.analytics
		if a.BestSellingProduce == nil {
			a.BestSellingProduce = []models.BestSeller{}
		}
		snap.Data = a
	}
	return snap
}

// LedgerEntries returns every entry of the loaded ledger report, across pages.
func (o *Orchestrator) LedgerEntries() ([]models.LedgerEntry, error) {
	if _, err := o.session(PhaseReady); err != nil {
		return nil, err
	}
	o.mu.Lock()
	loaded := o.views[ViewLedger].loaded
	o.mu.Unlock()
	if !loaded {
		return nil, fmt.Errorf("%w: ledger report has not been loaded", errs.ErrNotFound)
	}
	return o.ledgerPages.Items(), nil
}

func page[T any](w *pagination.Window[T]) ([]T, int, int) {
	return w.Slice(), w.Page(), w.TotalPages()
}

// Overview summarizes the producer from what the session already fetched.
// Profile fields fall back to the local cache when the ledger has none.
func (o *Orchestrator) Overview() (Overview, error) {
	if _, err := o.session(PhaseReady); err != nil {
		return Overview{}, err
	}

	o.mu.Lock()
	profile := o.profile
	cached := o.cached
	o.mu.Unlock()

	history := o.sales.History()
	monthly := analytics.Compute(history, o.opts.Now().In(o.opts.Location)).MonthlyIncome

	return Overview{
		Address:        profile.Address,
		FarmName:       fallback(profile.Name, cached[models.ProfileFieldFarmName]),
		ContactInfo:    fallback(profile.ContactInfo, cached[models.ProfileFieldContactInfo]),
		Location:       fallback(profile.Location, cached[models.ProfileFieldLocation]),
		ActiveListings: o.inventory.Active(),
		TotalSales:     len(history),
		LowStock:       o.inventory.LowStock(),
		MonthlyRevenue: normalize.FormatAmount(monthly, o.opts.Currency.Decimals),
		Currency:       o.opts.Currency.Symbol,
	}, nil
}

func fallback(primary, secondary string) string {
	if primary != "" {
		return primary
	}
	return secondary
}
