// Package idempotency убирает просроченные ключи идемпотентности оформления заказа.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/canteen/internal/domain"
)

const (
	defaultSweepInterval  = time.Minute
	defaultSweepBatchSize = 500
	// failedSweepsBeforeDegraded — подряд неудачных проходов до деградации health.
	failedSweepsBeforeDegraded = 3
)

var (
	keySweepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "canteen_checkout_key_sweeps_total",
		Help: "Checkout idempotency key sweeps grouped by scope and result.",
	}, []string{"scope", "result"})
	keysSweptTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "canteen_checkout_keys_swept_total",
		Help: "Expired checkout idempotency keys removed, by scope.",
	}, []string{"scope"})
)

// Config задаёт область и темп очистки.
type Config struct {
	// Scope — метод, ключи которого убирает воркер; пустой — все ключи.
	Scope     string
	Interval  time.Duration
	BatchSize int
	Logger    *log.Entry
}

// Sweep — итог одного прохода.
type Sweep struct {
	Deleted int
	Batches int
}

// Sweeper периодически удаляет просроченные ключи оформления заказа,
// чтобы клиент мог переиспользовать ключ после истечения срока.
type Sweeper struct {
	keys   domain.CheckoutKeyRepository
	cfg    Config
	logger *log.Entry
	now    func() time.Time

	mu           sync.Mutex
	failedStreak int
	lastErr      error
}

// NewSweeper создаёт воркер очистки для одной области ключей.
func NewSweeper(keys domain.CheckoutKeyRepository, cfg Config) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultSweepInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultSweepBatchSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.WithField("component", "checkout-key-sweeper")
	}
	return &Sweeper{
		keys:   keys,
		cfg:    cfg,
		logger: logger.WithField("scope", cfg.Scope),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Run убирает ключи сразу и затем раз в Interval до отмены ctx.
func (s *Sweeper) Run(ctx context.Context) {
	if s.keys == nil {
		s.logger.Warn("checkout key sweeper is disabled: repository is nil")
		return
	}

	s.tick(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Sweeper) tick(ctx context.Context) {
	sweep, err := s.SweepOnce(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}

	s.mu.Lock()
	if err != nil {
		s.failedStreak++
		s.lastErr = err
	} else {
		s.failedStreak = 0
		s.lastErr = nil
	}
	s.mu.Unlock()

	if err != nil {
		keySweepsTotal.WithLabelValues(s.cfg.Scope, "error").Inc()
		s.logger.WithError(err).WithField("deleted", sweep.Deleted).Warn("checkout key sweep failed")
		return
	}
	keySweepsTotal.WithLabelValues(s.cfg.Scope, "ok").Inc()
	if sweep.Deleted > 0 {
		s.logger.WithFields(log.Fields{"deleted": sweep.Deleted, "batches": sweep.Batches}).Info("expired checkout keys removed")
	}
}

// SweepOnce удаляет все ключи области, истёкшие к текущему моменту, порциями BatchSize.
func (s *Sweeper) SweepOnce(ctx context.Context) (Sweep, error) {
	before := s.now()
	var sweep Sweep
	for {
		if err := ctx.Err(); err != nil {
			return sweep, err
		}

		deleted, err := s.keys.DeleteExpired(ctx, s.cfg.Scope, before, s.cfg.BatchSize)
		if err != nil {
			return sweep, fmt.Errorf("delete expired checkout keys: %w", err)
		}
		sweep.Batches++
		sweep.Deleted += deleted
		if deleted > 0 {
			keysSweptTotal.WithLabelValues(s.cfg.Scope).Add(float64(deleted))
		}
		if deleted < s.cfg.BatchSize {
			return sweep, nil
		}
	}
}

// Check деградирует после нескольких неудачных проходов подряд.
func (s *Sweeper) Check(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failedStreak >= failedSweepsBeforeDegraded {
		return fmt.Errorf("checkout key sweep failed %d times in a row: %w", s.failedStreak, s.lastErr)
	}
	return nil
}
