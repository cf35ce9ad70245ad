// Package ledgertest provides an in-memory ledger for tests of the
// reconciliation layer. Writes become visible only once confirmed.
package ledgertest

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mamadbah2/farmledger/internal/domain/errs"
	"github.com/mamadbah2/farmledger/internal/domain/models"
	"github.com/mamadbah2/farmledger/internal/service/ledger"
	"github.com/mamadbah2/farmledger/pkg/clients/identity"
)

// Fake mimics the ledger facade.
type Fake struct {
	mu       sync.Mutex
	farmers  map[string]models.ProducerProfile
	produce  map[string][]models.InventoryRecord
	sales    []models.SaleRecord
	signer   identity.Signer
	seq      int
	Location *time.Location
	Now      func() time.Time

	// Failure injection.
	ProfileErr   error
	CountErr     error
	ItemErr      map[uint64]error
	SalesErr     error
	SubmitErr    error
	ConfirmErr   error
	ItemDelay    time.Duration
	BlockConfirm chan struct{}

	ItemReads   atomic.Int64
	Submissions atomic.Int64
}

// New returns an empty ledger.
func New() *Fake {
	return &Fake{
		farmers:  make(map[string]models.ProducerProfile),
		produce:  make(map[string][]models.InventoryRecord),
		ItemErr:  make(map[uint64]error),
		Location: time.UTC,
		Now:      time.Now,
	}
}

// SeedFarmer registers a producer directly.
func (f *Fake) SeedFarmer(p models.ProducerProfile) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.IsRegistered = true
	f.farmers[p.Address] = p
}

// SeedProduce appends a listing for producer and returns its index.
func (f *Fake) SeedProduce(producer string, r models.InventoryRecord) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	r.Producer = producer
	r.Index = uint64(len(f.produce[producer]))
	f.produce[producer] = append(f.produce[producer], r)
	return r.Index
}

// SeedSale appends a sale to the global sequence.
func (f *Fake) SeedSale(s models.SaleRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s.Position = len(f.sales)
	f.sales = append(f.sales, s)
}

// SetSigner binds the submitting account.
func (f *Fake) SetSigner(s identity.Signer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signer = s
}

func (f *Fake) Profile(_ context.Context, id string) (models.ProducerProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ProfileErr != nil {
		return models.ProducerProfile{}, f.ProfileErr
	}
	p, ok := f.farmers[id]
	if !ok {
		return models.ProducerProfile{Address: id}, nil
	}
	return p, nil
}

func (f *Fake) InventoryCount(_ context.Context, id string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CountErr != nil {
		return 0, f.CountErr
	}
	return uint64(len(f.produce[id])), nil
}

func (f *Fake) InventoryItem(ctx context.Context, id string, index uint64) (models.InventoryRecord, error) {
	f.ItemReads.Add(1)
	if f.ItemDelay > 0 {
		select {
		case <-time.After(f.ItemDelay):
		case <-ctx.Done():
			return models.InventoryRecord{}, fmt.Errorf("%w: %v", errs.ErrLedgerUnavailable, ctx.Err())
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.ItemErr[index]; ok {
		return models.InventoryRecord{}, err
	}
	items := f.produce[id]
	if index >= uint64(len(items)) {
		return models.InventoryRecord{}, fmt.Errorf("%w: produce index %d out of range", errs.ErrLedgerRejected, index)
	}
	return items[index], nil
}

func (f *Fake) AllSales(_ context.Context) ([]models.SaleRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SalesErr != nil {
		return nil, f.SalesErr
	}
	out := make([]models.SaleRecord, len(f.sales))
	copy(out, f.sales)
	return out, nil
}

func (f *Fake) RegisterProfile(ctx context.Context, name, contactInfo, location string) (ledger.Pending, error) {
	return f.submit(func(from string) error {
		f.farmers[from] = models.ProducerProfile{Address: from, Name: name, ContactInfo: contactInfo, Location: location, IsRegistered: true}
		return nil
	})
}

func (f *Fake) UpdateProfile(ctx context.Context, name, location, contactInfo string) (ledger.Pending, error) {
	return f.submit(func(from string) error {
		p, ok := f.farmers[from]
		if !ok || !p.IsRegistered {
			return fmt.Errorf("%w: farmer not registered", errs.ErrLedgerRejected)
		}
		p.Name, p.Location, p.ContactInfo = name, location, contactInfo
		f.farmers[from] = p
		return nil
	})
}

func (f *Fake) CreateInventoryItem(ctx context.Context, item models.NewInventoryItem) (ledger.Pending, error) {
	return f.submit(func(from string) error {
		f.produce[from] = append(f.produce[from], models.InventoryRecord{
			Producer:    from,
			Index:       uint64(len(f.produce[from])),
			Name:        item.Name,
			Category:    item.Category,
			Price:       item.Price,
			Quantity:    int64(item.Quantity),
			HarvestDate: item.HarvestDate,
			ImageRef:    item.ImageRef,
			IsAvailable: true,
		})
		return nil
	})
}

func (f *Fake) UpdateInventoryQuantity(ctx context.Context, index, quantity uint64) (ledger.Pending, error) {
	return f.submit(func(from string) error {
		items := f.produce[from]
		if index >= uint64(len(items)) {
			return fmt.Errorf("%w: produce index %d out of range", errs.ErrLedgerRejected, index)
		}
		items[index].Quantity = int64(quantity)
		items[index].IsAvailable = quantity > 0
		return nil
	})
}

func (f *Fake) RecordSale(ctx context.Context, sale models.NewSale) (ledger.Pending, error) {
	return f.submit(func(string) error {
		ts := f.Now().In(f.Location).Truncate(time.Second)
		f.sales = append(f.sales, models.SaleRecord{
			Position:     len(f.sales),
			ProduceIndex: sale.ProduceIndex,
			Quantity:     int64(sale.Quantity),
			BuyerName:    sale.BuyerName,
			BuyerPhone:   sale.BuyerPhone,
			Price:        sale.Price,
			Timestamp:    ts,
			Date:         ts.Format("2006-01-02 15:04:05"),
		})
		return nil
	})
}

func (f *Fake) submit(apply func(from string) error) (ledger.Pending, error) {
	f.Submissions.Add(1)

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.signer.Valid() {
		return nil, fmt.Errorf("%w: no signer bound", errs.ErrIdentityUnavailable)
	}
	if f.SubmitErr != nil {
		return nil, f.SubmitErr
	}
	f.seq++
	return &pending{fake: f, hash: "0x" + strconv.Itoa(f.seq), from: f.signer.Address, apply: apply}, nil
}

type pending struct {
	fake  *Fake
	hash  string
	from  string
	apply func(from string) error
}

func (p *pending) Hash() string { return p.hash }

func (p *pending) AwaitConfirmation(ctx context.Context) error {
	if p.fake.BlockConfirm != nil {
		select {
		case <-p.fake.BlockConfirm:
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", errs.ErrLedgerUnavailable, ctx.Err())
		}
	}

	p.fake.mu.Lock()
	defer p.fake.mu.Unlock()
	if p.fake.ConfirmErr != nil {
		return p.fake.ConfirmErr
	}
	return p.apply(p.from)
}
