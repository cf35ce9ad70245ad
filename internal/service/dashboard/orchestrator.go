// Package dashboard sequences the producer session: connecting the signer,
// refreshing the active view, and running writes through a single
// pending/success/error lifecycle.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/farmledger/internal/domain/errs"
	"github.com/mamadbah2/farmledger/internal/domain/models"
	"github.com/mamadbah2/farmledger/internal/pagination"
	"github.com/mamadbah2/farmledger/internal/service/inventory"
	"github.com/mamadbah2/farmledger/internal/service/ledger"
	"github.com/mamadbah2/farmledger/internal/service/reconcile"
	"github.com/mamadbah2/farmledger/internal/service/sales"
	"github.com/mamadbah2/farmledger/pkg/clients/identity"
)

// Phase is the session lifecycle position.
type Phase string

const (
	PhaseDisconnected Phase = "disconnected"
	PhaseRegistration Phase = "registration"
	PhaseReady        Phase = "ready"
)

// Ledger is the part of the ledger facade the dashboard drives.
type Ledger interface {
	inventory.Ledger
	SetSigner(signer identity.Signer)
	Profile(ctx context.Context, id string) (models.ProducerProfile, error)
	AllSales(ctx context.Context) ([]models.SaleRecord, error)
	RegisterProfile(ctx context.Context, name, contactInfo, location string) (ledger.Pending, error)
	UpdateProfile(ctx context.Context, name, location, contactInfo string) (ledger.Pending, error)
	RecordSale(ctx context.Context, sale models.NewSale) (ledger.Pending, error)
}

// ProfileCache keeps display fields between sessions. Writes merge.
type ProfileCache interface {
	GetCachedProfile(ctx context.Context, address string) (models.CachedProfile, bool, error)
	SetCachedProfile(ctx context.Context, address string, fields models.CachedProfile) error
}

// Options configures the orchestrator.
type Options struct {
	PageSize          int
	LowStockThreshold int64
	JoinConcurrency   int
	Location          *time.Location
	PhoneRegion       string
	Currency          sales.Currency
	Now               func() time.Time
}

// Banner is the outcome of the most recent write.
type Banner struct {
	Kind    string `json:"kind"`
	Op      string `json:"op"`
	Message string `json:"message"`
}

// Banner kinds.
const (
	BannerPending = "pending"
	BannerSuccess = "success"
	BannerError   = "error"
)

// State summarizes the session.
type State struct {
	Phase      Phase                  `json:"phase"`
	Address    string                 `json:"address,omitempty"`
	Profile    models.ProducerProfile `json:"profile"`
	Cached     models.CachedProfile   `json:"cachedProfile,omitempty"`
	ActiveView View                   `json:"activeView,omitempty"`
	Busy       bool                   `json:"busy"`
	Banner     *Banner                `json:"banner,omitempty"`
}

// Orchestrator is the dashboard controller. Every method is safe for
// concurrent use; the mutex is never held across a ledger call.
type Orchestrator struct {
	ledger   Ledger
	identity identity.Provider
	cache    ProfileCache
	opts     Options
	forms    *formValidator
	logger   *zap.Logger

	inventory *inventory.Cache
	sales     *sales.View
	join      *reconcile.Join

	inventoryPages *pagination.Window[models.InventoryRecord]
	salesPages     *pagination.Window[models.SaleRecord]
	ledgerPages    *pagination.Window[models.LedgerEntry]

	mu        sync.Mutex
	phase     Phase
	address   string
	profile   models.ProducerProfile
	cached    models.CachedProfile
	views     map[View]*viewState
	active    View
	epoch     uint64 // bumped whenever the session is replaced or dropped
	busy      bool
	banner    *Banner
	analytics models.AnalyticsSnapshot
}

// New wires an orchestrator over the ledger facade.
func New(l Ledger, provider identity.Provider, cache ProfileCache, opts Options, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.LowStockThreshold <= 0 {
		opts.LowStockThreshold = inventory.DefaultLowStockThreshold
	}
	if opts.Currency.Symbol == "" {
		opts.Currency = sales.Currency{Decimals: 18, Symbol: "ETH"}
	}

	o := &Orchestrator{
		ledger:         l,
		identity:       provider,
		cache:          cache,
		opts:           opts,
		forms:          newFormValidator(opts.PhoneRegion, opts.Currency.Decimals),
		logger:         logger,
		inventory:      inventory.NewCache(l, opts.LowStockThreshold, logger.Named("inventory")),
		sales:          sales.NewView(l, opts.Location, logger.Named("sales")),
		join:           reconcile.NewJoin(l, l, opts.JoinConcurrency, logger.Named("reconcile")),
		inventoryPages: pagination.New[models.InventoryRecord](opts.PageSize),
		salesPages:     pagination.New[models.SaleRecord](opts.PageSize),
		ledgerPages:    pagination.New[models.LedgerEntry](opts.PageSize),
		phase:          PhaseDisconnected,
	}
	o.views = newViewStates()
	return o
}

// Connect asks the identity provider for an account, binds its signer and
// checks whether the producer is registered. Any previous session is dropped.
func (o *Orchestrator) Connect(ctx context.Context) (State, error) {
	accounts, err := o.identity.RequestAccounts(ctx)
	if err != nil {
		o.Disconnect()
		return o.State(), fmt.Errorf("connect: %w", err)
	}
	if len(accounts) == 0 {
		o.Disconnect()
		return o.State(), fmt.Errorf("connect: %w: provider approved no accounts", errs.ErrIdentityUnavailable)
	}
	address := accounts[0]

	signer, err := o.identity.GetSigner(ctx, address)
	if err != nil {
		o.Disconnect()
		return o.State(), fmt.Errorf("connect: %w", err)
	}
	o.ledger.SetSigner(signer)

	cached, _, err := o.cache.GetCachedProfile(ctx, address)
	if err != nil {
		o.logger.Warn("profile cache unavailable", zap.String("address", address), zap.Error(err))
	}

	profile, profileErr := o.ledger.Profile(ctx, address)

	o.mu.Lock()
	o.resetSessionLocked()
	o.address = address
	o.cached = cached
	o.banner = nil
	switch {
	case profileErr != nil:
		o.profile = models.ProducerProfile{Address: address}
		o.phase = PhaseRegistration
	case profile.IsRegistered:
		o.profile = profile
		o.phase = PhaseReady
	default:
		o.profile = profile
		o.phase = PhaseRegistration
	}
	phase := o.phase
	o.mu.Unlock()

	o.logger.Info("session connected", zap.String("address", address), zap.String("phase", string(phase)))
	if profileErr != nil {
		return o.State(), fmt.Errorf("connect: %w", profileErr)
	}
	return o.State(), nil
}

// Disconnect drops the session and unbinds the signer.
func (o *Orchestrator) Disconnect() {
	o.mu.Lock()
	o.resetSessionLocked()
	o.mu.Unlock()
	o.ledger.SetSigner(identity.Signer{})
}

// State returns a copy of the session summary.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := State{
		Phase:      o.phase,
		Address:    o.address,
		Profile:    o.profile,
		Cached:     o.cached.Merge(nil),
		ActiveView: o.active,
		Busy:       o.busy,
	}
	if o.banner != nil {
		b := *o.banner
		s.Banner = &b
	}
	return s
}

// session returns the producer address when the session is in want.
func (o *Orchestrator) session(want Phase) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.checkPhaseLocked(want); err != nil {
		return "", err
	}
	return o.address, nil
}

func (o *Orchestrator) checkPhaseLocked(want Phase) error {
	switch {
	case o.phase == PhaseDisconnected:
		return fmt.Errorf("%w: not connected", errs.ErrIdentityUnavailable)
	case want == PhaseReady && o.phase != PhaseReady:
		return errs.ErrNotRegistered
	case want == PhaseRegistration && o.phase == PhaseReady:
		return fmt.Errorf("%w: %s", errs.ErrAlreadyRegistered, o.address)
	}
	return nil
}

// resetSessionLocked drops the session. A write still pending for it can no
// longer publish anything or hold the busy flag.
func (o *Orchestrator) resetSessionLocked() {
	o.epoch++
	o.phase = PhaseDisconnected
	o.address = ""
	o.profile = models.ProducerProfile{}
	o.cached = nil
	o.busy = false
	if o.banner != nil && o.banner.Kind == BannerPending {
		o.banner = nil
	}
	o.resetViewsLocked()
}

// resetViewsLocked forgets every loaded view; in-flight refreshes are discarded.
func (o *Orchestrator) resetViewsLocked() {
	for _, st := range o.views {
		st.generation++
		st.status = StatusIdle
		st.loaded = false
		st.err = nil
		st.skipped = 0
	}
	o.active = ""
	o.analytics = models.AnalyticsSnapshot{}
	o.inventory.Store(inventory.Result{})
	o.sales.Store(nil)
	o.inventoryPages.SetItems(nil)
	o.salesPages.SetItems(nil)
	o.ledgerPages.SetItems(nil)
	for _, w := range []interface{ SetPage(int) }{o.inventoryPages, o.salesPages, o.ledgerPages} {
		w.SetPage(1)
	}
}

// fail resets the session when err means the signer is gone.
func (o *Orchestrator) fail(err error) {
	if errors.Is(err, errs.ErrIdentityUnavailable) {
		o.logger.Warn("identity lost, resetting session", zap.Error(err))
		o.Disconnect()
	}
}
