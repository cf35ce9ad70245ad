package dashboard

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mamadbah2/farmledger/internal/domain/errs"
	"github.com/mamadbah2/farmledger/internal/domain/models"
	"github.com/mamadbah2/farmledger/internal/service/inventory"
	"github.com/mamadbah2/farmledger/internal/service/sales"
)

// Write operation names, used in banners and logs.
const (
	OpRegister       = "register"
	OpPostProduce    = "post produce"
	OpUpdateQuantity = "update stock"
	OpRecordSale     = "record sale"
	OpUpdateProfile  = "update profile"
)

// writeSession identifies the session a write was issued from.
type writeSession struct {
	address string
	epoch   uint64
}

// currentLocked reports whether ws is still the connected session. Callers hold o.mu.
func (o *Orchestrator) currentLocked(ws writeSession) bool {
	return o.epoch == ws.epoch && o.phase != PhaseDisconnected
}

// run drives one validated write through pending, then success or error.
// Only one write may be pending at a time. A write whose session was replaced
// while it was pending finishes without touching the new session.
func (o *Orchestrator) run(ctx context.Context, op string, want Phase, write func(ctx context.Context, ws writeSession) error) error {
	o.mu.Lock()
	if err := o.checkPhaseLocked(want); err != nil {
		o.mu.Unlock()
		return fmt.Errorf("%s: %w", op, err)
	}
	if o.busy {
		o.mu.Unlock()
		return fmt.Errorf("%s: %w", op, errs.ErrBusy)
	}
	ws := writeSession{address: o.address, epoch: o.epoch}
	o.busy = true
	o.banner = &Banner{Kind: BannerPending, Op: op, Message: op + " pending confirmation"}
	o.mu.Unlock()

	err := write(ctx, ws)

	o.mu.Lock()
	current := o.currentLocked(ws)
	if current {
		o.busy = false
		if err != nil {
			o.banner = &Banner{Kind: BannerError, Op: op, Message: fmt.Sprintf("Failed to %s: %v", op, err)}
		} else {
			o.banner = &Banner{Kind: BannerSuccess, Op: op, Message: op + " confirmed"}
		}
	}
	o.mu.Unlock()

	if !current {
		o.logger.Info("write finished after session changed", zap.String("op", op), zap.String("address", ws.address), zap.Error(err))
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	}
	if err != nil {
		o.logger.Warn("write failed", zap.String("op", op), zap.Error(err))
		o.fail(err)
		return fmt.Errorf("%s: %w", op, err)
	}
	o.logger.Info("write confirmed", zap.String("op", op))
	return nil
}

// Register submits the registration of the connected account and moves the
// session to ready once the ledger reports it registered.
func (o *Orchestrator) Register(ctx context.Context, form RegistrationForm) (State, error) {
	if _, err := o.session(PhaseRegistration); err != nil {
		return o.State(), err
	}
	if err := o.forms.check(form); err != nil {
		return o.State(), err
	}

	err := o.run(ctx, OpRegister, PhaseRegistration, func(ctx context.Context, ws writeSession) error {
		tx, err := o.ledger.RegisterProfile(ctx, form.Name, form.ContactInfo, form.Location)
		if err != nil {
			return err
		}
		if err := tx.AwaitConfirmation(ctx); err != nil {
			return err
		}

		o.cacheProfile(ctx, ws, models.CachedProfile{
			models.ProfileFieldFarmName:    form.Name,
			models.ProfileFieldContactInfo: form.ContactInfo,
			models.ProfileFieldLocation:    form.Location,
		})
		return o.reloadProfile(ctx, ws)
	})
	return o.State(), err
}

// UpdateProfile submits a profile edit, merges the edited fields into the
// cache and re-reads the ledger profile.
func (o *Orchestrator) UpdateProfile(ctx context.Context, form ProfileForm) error {
	if _, err := o.session(PhaseReady); err != nil {
		return err
	}
	if err := o.forms.check(form); err != nil {
		return err
	}

	return o.run(ctx, OpUpdateProfile, PhaseReady, func(ctx context.Context, ws writeSession) error {
		tx, err := o.ledger.UpdateProfile(ctx, form.FarmName, form.Location, form.ContactInfo)
		if err != nil {
			return err
		}
		if err := tx.AwaitConfirmation(ctx); err != nil {
			return err
		}

		o.cacheProfile(ctx, ws, form.Fields())
		return o.reloadProfile(ctx, ws)
	})
}

// cacheProfile merges fields into the cache and the session copy. A cache
// failure is logged; the ledger write already succeeded.
func (o *Orchestrator) cacheProfile(ctx context.Context, ws writeSession, fields models.CachedProfile) {
	if err := o.cache.SetCachedProfile(ctx, ws.address, fields); err != nil {
		o.logger.Warn("profile cache write failed", zap.String("address", ws.address), zap.Error(err))
	}
	o.mu.Lock()
	if o.currentLocked(ws) {
		o.cached = o.cached.Merge(fields.Cacheable())
	}
	o.mu.Unlock()
}

func (o *Orchestrator) reloadProfile(ctx context.Context, ws writeSession) error {
	profile, err := o.ledger.Profile(ctx, ws.address)
	if err != nil {
		return fmt.Errorf("%w: %w", errs.ErrStaleAfterWrite, err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.currentLocked(ws) {
		return nil
	}
	o.profile = profile
	if profile.IsRegistered {
		o.phase = PhaseReady
	}
	return nil
}

// PostProduce creates a listing and refreshes the inventory view.
func (o *Orchestrator) PostProduce(ctx context.Context, form ProduceForm) error {
	if _, err := o.session(PhaseReady); err != nil {
		return err
	}
	item, err := o.forms.produce(form)
	if err != nil {
		return err
	}

	return o.run(ctx, OpPostProduce, PhaseReady, func(ctx context.Context, ws writeSession) error {
		result, err := o.inventory.PostProduce(ctx, ws.address, item)
		o.afterInventoryWrite(ws, result, err)
		return err
	})
}

// UpdateQuantity sets the stock of the listing at index and refreshes the
// inventory view.
func (o *Orchestrator) UpdateQuantity(ctx context.Context, index uint64, quantity int64) error {
	if _, err := o.session(PhaseReady); err != nil {
		return err
	}
	if quantity < 0 {
		return &ValidationError{Fields: map[string]string{"quantity": "min"}}
	}

	return o.run(ctx, OpUpdateQuantity, PhaseReady, func(ctx context.Context, ws writeSession) error {
		result, err := o.inventory.UpdateQuantity(ctx, ws.address, index, quantity)
		o.afterInventoryWrite(ws, result, err)
		return err
	})
}

// afterInventoryWrite stores and publishes the inventory re-read by a write
// when the session that issued it is still connected. In-flight view
// refreshes are superseded either way.
func (o *Orchestrator) afterInventoryWrite(ws writeSession, result inventory.Result, err error) {
	if err != nil && !errors.Is(err, errs.ErrStaleAfterWrite) {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.currentLocked(ws) {
		return
	}
	st := o.views[ViewInventory]
	st.generation++
	if err != nil {
		st.status = StatusError
		st.err = err
		return
	}
	o.inventory.Store(result)
	o.inventoryPages.SetItems(o.inventory.Records())
	st.status = StatusReady
	st.err = nil
	st.loaded = true
	st.skipped = o.inventory.Malformed()
}

// RecordSale submits a sale, refreshes the sales view and marks the views
// derived from sales for reload.
func (o *Orchestrator) RecordSale(ctx context.Context, form SaleForm) error {
	if _, err := o.session(PhaseReady); err != nil {
		return err
	}
	sale, err := o.forms.sale(form)
	if err != nil {
		return err
	}

	return o.run(ctx, OpRecordSale, PhaseReady, func(ctx context.Context, ws writeSession) error {
		tx, err := o.ledger.RecordSale(ctx, sale)
		if err != nil {
			return err
		}
		if err := tx.AwaitConfirmation(ctx); err != nil {
			return err
		}

		history, fetchErr := o.sales.Fetch(ctx)

		o.mu.Lock()
		defer o.mu.Unlock()
		if !o.currentLocked(ws) {
			return nil
		}
		for _, v := range []View{ViewLedger, ViewAnalytics} {
			st := o.views[v]
			st.generation++
			st.loaded = false
			if st.status == StatusLoading {
				st.status = StatusIdle
			}
		}

		st := o.views[ViewSales]
		st.generation++
		if fetchErr != nil {
			st.status = StatusError
			st.err = fetchErr
			return fmt.Errorf("%w: %w", errs.ErrStaleAfterWrite, fetchErr)
		}
		o.sales.Store(history)
		o.salesPages.SetItems(history)
		st.status = StatusReady
		st.err = nil
		st.loaded = true
		return nil
	})
}

// Receipt renders the receipt of an already-fetched sale.
func (o *Orchestrator) Receipt(position int) (filename, body string, err error) {
	if _, err := o.session(PhaseReady); err != nil {
		return "", "", err
	}
	sale, ok := o.sales.Find(position)
	if !ok {
		return "", "", fmt.Errorf("%w: sale %d has not been fetched", errs.ErrNotFound, position)
	}
	filename, body = sales.Receipt(sale, o.opts.Currency, o.opts.Now())
	return filename, body, nil
}
