package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/kevin07696/billing-service/internal/domain/models"
	"github.com/kevin07696/billing-service/internal/domain/ports"
	"github.com/kevin07696/billing-service/pkg/timeutil"
)

// CycleProcessor drives one billing cycle to an outcome
type CycleProcessor interface {
	Process(ctx context.Context, cycleID string) error
}

// OverageProcessor bills pending usage overages
type OverageProcessor interface {
	ProcessAll(ctx context.Context) error
	ProcessTenant(ctx context.Context, tenantID string) error
}

// Config holds scheduler tuning
type Config struct {
	PollInterval      time.Duration
	MaxConcurrentJobs int
	BatchSize         int32
	MaxRetries        int
	Retention         time.Duration
	StaleClaimAfter   time.Duration
}

// Status describes the scheduler's current state
type Status struct {
	IsRunning bool       `json:"is_running"`
	NextRunAt *time.Time `json:"next_run_at,omitempty"`
}

// PassResult summarizes one discovery+dispatch pass
type PassResult struct {
	Dispatched int `json:"dispatched"`
	Succeeded  int `json:"succeeded"`
	Failed     int `json:"failed"`
}

// Scheduler is the periodic driver of the billing lifecycle. Each pass
// frees stale in_progress claims, then discovers due cycles and
// dispatches them under a concurrency cap, bills
// overages, backstops subscriptions whose next cycle is missing, and purges
// old terminal cycles. Start is idempotent; Stop owns the timer and always
// releases it.
type Scheduler struct {
	cfg       Config
	cycles    ports.BillingCycleRepository
	provider  ports.SubscriptionProvider
	processor CycleProcessor
	overage   OverageProcessor
	logger    *zap.Logger
	now       func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	entryID cron.EntryID
}

// New creates a new scheduler
func New(
	cfg Config,
	cycles ports.BillingCycleRepository,
	provider ports.SubscriptionProvider,
	processor CycleProcessor,
	overage OverageProcessor,
	logger *zap.Logger,
) *Scheduler {
	return &Scheduler{
		cfg:       cfg,
		cycles:    cycles,
		provider:  provider,
		processor: processor,
		overage:   overage,
		logger:    logger,
		now:       timeutil.Now,
	}
}

// Start begins the periodic loop. Calling Start on a running scheduler is a
// no-op.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		s.logger.Debug("scheduler already running, start is a no-op")
		return nil
	}

	c := cron.New()
	spec := fmt.Sprintf("@every %s", s.cfg.PollInterval)
	entryID, err := c.AddFunc(spec, func() {
		s.RunPass(context.Background())
	})
	if err != nil {
		return fmt.Errorf("schedule billing pass: %w", err)
	}

	c.Start()
	s.cron = c
	s.entryID = entryID

	s.logger.Info("billing scheduler started",
		zap.Duration("poll_interval", s.cfg.PollInterval),
		zap.Int("max_concurrent_jobs", s.cfg.MaxConcurrentJobs),
	)
	return nil
}

// Stop halts the periodic loop and waits for a running pass to drain.
// Calling Stop on a stopped scheduler is a no-op. The timer resource is
// released on every exit path.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return
	}

	<-c.Stop().Done()
	s.logger.Info("billing scheduler stopped")
}

// GetStatus reports whether the loop is running and when it fires next
func (s *Scheduler) GetStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return Status{IsRunning: false}
	}

	next := s.cron.Entry(s.entryID).Next
	status := Status{IsRunning: true}
	if !next.IsZero() {
		status.NextRunAt = &next
	}
	return status
}

// RunPass executes one full pass: stale-claim release, due cycles,
// overages, self-healing, cleanup. Each stage's failure is logged and
// isolated from the others.
func (s *Scheduler) RunPass(ctx context.Context) {
	start := s.now()

	if _, err := s.ReleaseStaleClaims(ctx); err != nil {
		s.logger.Error("stale claim release failed", zap.Error(err))
	}

	if _, err := s.ProcessBillingCycles(ctx); err != nil {
		s.logger.Error("billing cycle pass failed", zap.Error(err))
	}

	if err := s.overage.ProcessAll(ctx); err != nil {
		s.logger.Error("overage pass failed", zap.Error(err))
	}

	if err := s.HealSubscriptionCycles(ctx); err != nil {
		s.logger.Error("self-healing pass failed", zap.Error(err))
	}

	if _, err := s.RunCleanup(ctx); err != nil {
		s.logger.Error("cleanup pass failed", zap.Error(err))
	}

	passDuration.Observe(time.Since(start).Seconds())
}

// ReleaseStaleClaims frees in_progress cycles whose worker died between
// winning the claim and the first persisted transition. Released cycles
// return to their source status and are picked up again by ListDue; a
// fresh claim inside the staleness window is never touched.
func (s *Scheduler) ReleaseStaleClaims(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.cfg.StaleClaimAfter)

	released, err := s.cycles.ReleaseStaleClaims(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("release stale claims: %w", err)
	}

	if released > 0 {
		staleClaimsReleasedTotal.Add(float64(released))
		s.logger.Warn("released stale billing cycle claims",
			zap.Int64("released", released),
			zap.Time("cutoff", cutoff),
		)
	}
	return released, nil
}

// ProcessBillingCycles runs one discovery+dispatch pass. Due cycles are
// processed by up to MaxConcurrentJobs workers; one cycle's failure never
// cancels its siblings. A discovery error aborts only this pass;
// already-claimed cycles stay safely claimed for the next one.
func (s *Scheduler) ProcessBillingCycles(ctx context.Context) (PassResult, error) {
	now := s.now()

	due, err := s.cycles.ListDue(ctx, now, s.cfg.MaxRetries, s.cfg.BatchSize)
	if err != nil {
		return PassResult{}, fmt.Errorf("discover due cycles: %w", err)
	}
	if len(due) == 0 {
		return PassResult{}, nil
	}

	s.logger.Info("dispatching due billing cycles",
		zap.Int("count", len(due)),
		zap.Int("max_concurrent", s.cfg.MaxConcurrentJobs),
	)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		result    = PassResult{Dispatched: len(due)}
		semaphore = make(chan struct{}, s.cfg.MaxConcurrentJobs)
	)

	for _, cycle := range due {
		wg.Add(1)
		semaphore <- struct{}{}
		go func(cycleID string) {
			defer wg.Done()
			defer func() { <-semaphore }()
			defer func() {
				if r := recover(); r != nil {
					mu.Lock()
					result.Failed++
					mu.Unlock()
					s.logger.Error("billing cycle processing panicked",
						zap.String("cycle_id", cycleID),
						zap.Any("panic", r),
					)
				}
			}()

			if err := s.processor.Process(ctx, cycleID); err != nil {
				mu.Lock()
				result.Failed++
				mu.Unlock()
				s.logger.Error("billing cycle processing failed",
					zap.String("cycle_id", cycleID),
					zap.Error(err),
				)
				return
			}
			mu.Lock()
			result.Succeeded++
			mu.Unlock()
		}(cycle.ID)
	}

	wg.Wait()

	s.logger.Info("billing cycle pass completed",
		zap.Int("dispatched", result.Dispatched),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

// HealSubscriptionCycles backstops the success path's next-cycle creation:
// every active subscription must own at least one non-terminal cycle. A
// subscription left without one (crash between settling a cycle and
// creating its successor, or manual data surgery) gets a fresh Scheduled
// cycle, idempotent on (subscription, period start).
func (s *Scheduler) HealSubscriptionCycles(ctx context.Context) error {
	subs, err := s.provider.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active subscriptions: %w", err)
	}

	var healed int
	for _, sub := range subs {
		active, err := s.cycles.ListActiveBySubscription(ctx, nil, sub.ID)
		if err != nil {
			s.logger.Error("self-healing check failed for subscription",
				zap.String("subscription_id", sub.ID),
				zap.Error(err),
			)
			continue
		}
		if len(active) > 0 {
			continue
		}

		periodStart := timeutil.StartOfDay(sub.CurrentPeriodEnd).AddDate(0, 0, 1)
		exists, err := s.cycles.ExistsForPeriod(ctx, sub.ID, periodStart)
		if err != nil {
			s.logger.Error("self-healing period check failed",
				zap.String("subscription_id", sub.ID),
				zap.Error(err),
			)
			continue
		}
		if exists {
			continue
		}

		now := s.now()
		cycle := &models.BillingCycle{
			ID:             uuid.New().String(),
			TenantID:       sub.TenantID,
			SubscriptionID: sub.ID,
			CycleStart:     periodStart,
			CycleEnd:       sub.NextCycleEnd(periodStart),
			Status:         models.CycleStatusScheduled,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.cycles.Create(ctx, nil, cycle); err != nil {
			s.logger.Error("self-healing cycle creation failed",
				zap.String("subscription_id", sub.ID),
				zap.Error(err),
			)
			continue
		}

		healed++
		cyclesHealedTotal.Inc()
		s.logger.Warn("created missing billing cycle for subscription",
			zap.String("subscription_id", sub.ID),
			zap.String("cycle_id", cycle.ID),
			zap.Time("cycle_start", cycle.CycleStart),
		)
	}

	if healed > 0 {
		s.logger.Info("self-healing pass created cycles", zap.Int("healed", healed))
	}
	return nil
}
