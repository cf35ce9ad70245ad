package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/farmledger/internal/domain/errs"
	"github.com/mamadbah2/farmledger/internal/domain/models"
	"github.com/mamadbah2/farmledger/internal/service/normalize"
	"github.com/mamadbah2/farmledger/pkg/clients/identity"
	client "github.com/mamadbah2/farmledger/pkg/clients/ledger"
)

// Operation names a contract write.
type Operation string

const (
	OpRegisterProfile         Operation = "registerFarmer"
	OpUpdateProfile           Operation = "updateFarmerProfile"
	OpCreateInventoryItem     Operation = "addProduce"
	OpUpdateInventoryQuantity Operation = "updateProduceQuantity"
	OpRecordSale              Operation = "recordSale"
)

const harvestDateLayout = "2006-01-02"

// Pending is a submitted write awaiting ledger-side finalization.
type Pending interface {
	Hash() string
	AwaitConfirmation(ctx context.Context) error
}

// Options tunes confirmation polling.
type Options struct {
	PollInterval   time.Duration
	ConfirmTimeout time.Duration
	Location       *time.Location
}

// Service is the typed facade over the ledger gateway. Reads are single
// independent round trips; writes are two-phase (Submit, then AwaitConfirmation).
type Service struct {
	client client.Client
	opts   Options
	logger *zap.Logger

	mu     sync.RWMutex
	signer identity.Signer
}

// NewService wires a ledger facade.
func NewService(c client.Client, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = 2 * time.Minute
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Service{client: c, opts: opts, logger: logger}
}

// SetSigner binds the capability used for every subsequent submission.
// A zero Signer unbinds it.
func (s *Service) SetSigner(signer identity.Signer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signer = signer
}

func (s *Service) currentSigner() identity.Signer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.signer
}

// Profile reads the producer profile for id.
func (s *Service) Profile(ctx context.Context, id string) (models.ProducerProfile, error) {
	raw, err := s.client.GetFarmer(ctx, id)
	if err != nil {
		return models.ProducerProfile{}, fmt.Errorf("read profile %s: %w", id, err)
	}
	return normalize.Profile(raw, id), nil
}

// InventoryCount reads how many inventory records id owns.
func (s *Service) InventoryCount(ctx context.Context, id string) (uint64, error) {
	raw, err := s.client.GetProduceCount(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("read inventory count %s: %w", id, err)
	}
	count, err := normalize.Count(raw)
	if err != nil {
		return 0, fmt.Errorf("read inventory count %s: %w", id, err)
	}
	return count, nil
}

// InventoryItem reads the record at index for id. A malformed record is
// returned together with an error wrapping normalize.ErrMalformedRecord.
func (s *Service) InventoryItem(ctx context.Context, id string, index uint64) (models.InventoryRecord, error) {
	raw, err := s.client.GetProduce(ctx, id, index)
	if err != nil {
		return models.InventoryRecord{}, fmt.Errorf("read inventory item %s/%d: %w", id, index, err)
	}
	return normalize.InventoryItem(raw, id, index)
}

// AllSales reads the global sale sequence. Malformed sales are logged and skipped;
// positions keep referring to the ledger sequence.
func (s *Service) AllSales(ctx context.Context) ([]models.SaleRecord, error) {
	raw, err := s.client.GetAllSales(ctx)
	if err != nil {
		return nil, fmt.Errorf("read all sales: %w", err)
	}

	sales := make([]models.SaleRecord, 0, len(raw))
	for i, r := range raw {
		sale, err := normalize.Sale(r, i, s.opts.Location)
		if err != nil {
			s.logger.Warn("skip malformed sale", zap.Int("position", i), zap.Error(err))
			continue
		}
		sales = append(sales, sale)
	}
	return sales, nil
}

// Submit hands op to the gateway for signing and ordering. It returns once
// the transaction is accepted, not once it is final.
func (s *Service) Submit(ctx context.Context, op Operation, args ...any) (Pending, error) {
	signer := s.currentSigner()
	if !signer.Valid() {
		return nil, fmt.Errorf("submit %s: %w: no signer bound", op, errs.ErrIdentityUnavailable)
	}

	tx, err := s.client.SubmitTransaction(ctx, client.SubmitRequest{
		From:         signer.Address,
		SessionToken: signer.SessionToken,
		Method:       string(op),
		Args:         args,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("transaction submitted", zap.String("op", string(op)), zap.String("hash", tx.Hash))
	return &PendingTransaction{
		hash:     tx.Hash,
		op:       op,
		client:   s.client,
		interval: s.opts.PollInterval,
		timeout:  s.opts.ConfirmTimeout,
		logger:   s.logger,
	}, nil
}

// RegisterProfile submits a farmer registration.
func (s *Service) RegisterProfile(ctx context.Context, name, contactInfo, location string) (Pending, error) {
	return s.Submit(ctx, OpRegisterProfile, name, contactInfo, location)
}

// UpdateProfile submits a profile edit. Argument order follows the contract.
func (s *Service) UpdateProfile(ctx context.Context, name, location, contactInfo string) (Pending, error) {
	return s.Submit(ctx, OpUpdateProfile, name, location, contactInfo)
}

// CreateInventoryItem submits a new produce listing.
func (s *Service) CreateInventoryItem(ctx context.Context, item models.NewInventoryItem) (Pending, error) {
	harvest := ""
	if !item.HarvestDate.IsZero() {
		harvest = item.HarvestDate.Format(harvestDateLayout)
	}
	return s.Submit(ctx, OpCreateInventoryItem,
		item.Name,
		string(item.Category),
		item.Price.String(),
		item.Quantity,
		harvest,
		item.ImageRef,
	)
}

// UpdateInventoryQuantity submits a stock update for the listing at index.
func (s *Service) UpdateInventoryQuantity(ctx context.Context, index, quantity uint64) (Pending, error) {
	return s.Submit(ctx, OpUpdateInventoryQuantity, index, quantity)
}

// RecordSale submits a sale.
func (s *Service) RecordSale(ctx context.Context, sale models.NewSale) (Pending, error) {
	return s.Submit(ctx, OpRecordSale,
		sale.ProduceIndex,
		sale.Quantity,
		sale.BuyerName,
		sale.BuyerPhone,
		sale.Price.String(),
	)
}

// PendingTransaction polls the gateway until the transaction is final.
type PendingTransaction struct {
	hash     string
	op       Operation
	client   client.Client
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
}

// Hash returns the transaction hash.
func (p *PendingTransaction) Hash() string {
	return p.hash
}

// AwaitConfirmation suspends until the ledger confirms or fails the
// transaction. Exceeding the confirmation timeout is reported as unavailable.
func (p *PendingTransaction) AwaitConfirmation(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		tx, err := p.client.GetTransaction(ctx, p.hash)
		if err != nil {
			return fmt.Errorf("await %s %s: %w", p.op, p.hash, err)
		}

		switch tx.Status {
		case client.StatusConfirmed:
			p.logger.Info("transaction confirmed", zap.String("op", string(p.op)), zap.String("hash", p.hash))
			return nil
		case client.StatusFailed:
			reason := tx.Reason
			if reason == "" {
				reason = "reverted"
			}
			return fmt.Errorf("%w: %s %s: %s", errs.ErrLedgerRejected, p.op, p.hash, reason)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: await %s %s: %v", errs.ErrLedgerUnavailable, p.op, p.hash, ctx.Err())
		case <-ticker.C:
		}
	}
}
