package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mamadbah2/farmledger/internal/domain/models"
	"github.com/mamadbah2/farmledger/internal/service/notify"
)

const (
	digestTimeout = 2 * time.Minute
	lockKey       = "farmledger:digest"
)

// ErrNoProducer is returned when there is nobody to build a digest for.
var ErrNoProducer = errors.New("no producer address for digest")

// DigestBuilder produces the analytics digest.
type DigestBuilder interface {
	Build(ctx context.Context, producer string, now time.Time) (models.AnalyticsReport, error)
	Format(report models.AnalyticsReport) string
}

// Archive stores built digests.
type Archive interface {
	SaveAnalyticsReport(ctx context.Context, report models.AnalyticsReport) error
}

// Locker keeps replicas from sending the same digest twice.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}

// Options configures the digest job.
type Options struct {
	Schedule  string
	Location  *time.Location
	Recipient string
	// Producer resolves the address to report on at run time.
	Producer func() string
	Now      func() time.Time
}

// Scheduler manages scheduled tasks.
type Scheduler struct {
	cron     *cron.Cron
	builder  DigestBuilder
	archive  Archive
	notifier notify.Notifier
	locker   Locker
	opts     Options
	logger   *zap.Logger
}

// NewScheduler creates a new scheduler instance. archive, notifier and locker are optional.
func NewScheduler(builder DigestBuilder, archive Archive, notifier notify.Notifier, locker Locker, opts Options, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Producer == nil {
		opts.Producer = func() string { return "" }
	}

	return &Scheduler{
		cron:     cron.New(cron.WithLocation(opts.Location)),
		builder:  builder,
		archive:  archive,
		notifier: notifier,
		locker:   locker,
		opts:     opts,
		logger:   logger,
	}
}

// Start registers the digest job and starts the scheduler.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.opts.Schedule, s.sendDigest); err != nil {
		return fmt.Errorf("schedule digest %q: %w", s.opts.Schedule, err)
	}
	s.logger.Info("starting scheduler", zap.String("schedule", s.opts.Schedule), zap.String("location", s.opts.Location.String()))
	s.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for a running job.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
}

func (s *Scheduler) sendDigest() {
	ctx, cancel := context.WithTimeout(context.Background(), digestTimeout)
	defer cancel()

	if _, err := s.RunDigest(ctx); err != nil {
		if errors.Is(err, ErrNoProducer) {
			s.logger.Info("digest skipped", zap.Error(err))
			return
		}
		s.logger.Error("digest failed", zap.Error(err))
	}
}

// RunDigest builds, archives and delivers one digest. When another replica
// holds the lock it returns a zero report and no error.
func (s *Scheduler) RunDigest(ctx context.Context) (models.AnalyticsReport, error) {
	producer := s.opts.Producer()
	if producer == "" {
		return models.AnalyticsReport{}, ErrNoProducer
	}

	if s.locker != nil {
		release, err := s.locker.TryLock(ctx, lockKey+":"+producer, digestTimeout)
		if err != nil {
			s.logger.Info("digest already running elsewhere", zap.String("producer", producer), zap.Error(err))
			return models.AnalyticsReport{}, nil
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("release digest lock", zap.Error(err))
			}
		}()
	}

	report, err := s.builder.Build(ctx, producer, s.opts.Now().In(s.opts.Location))
	if err != nil {
		return models.AnalyticsReport{}, fmt.Errorf("build digest: %w", err)
	}

	if s.archive != nil {
		if err := s.archive.SaveAnalyticsReport(ctx, report); err != nil {
			s.logger.Error("failed to archive digest", zap.String("producer", producer), zap.Error(err))
		}
	}

	if s.notifier != nil && s.opts.Recipient != "" {
		req := models.OutboundMessageRequest{To: s.opts.Recipient, Message: s.builder.Format(report)}
		if err := s.notifier.SendOutbound(ctx, req); err != nil {
			return report, fmt.Errorf("send digest: %w", err)
		}
		s.logger.Info("digest sent", zap.String("producer", producer), zap.String("to", s.opts.Recipient))
	}

	return report, nil
}
