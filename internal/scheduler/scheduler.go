// Package scheduler drives worker ticks on a fixed interval, rotating the
// polling account each tick.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/bbdc-slot-bot/internal/booking"
	"github.com/JakeFAU/bbdc-slot-bot/internal/clock/system"
	"github.com/JakeFAU/bbdc-slot-bot/internal/worker"
)

// ErrNoAccounts is returned when the pool has nothing to rotate through.
var ErrNoAccounts = errors.New("no accounts configured")

// Ticker runs a single tick for the given polling account.
type Ticker interface {
	Tick(ctx context.Context, account *booking.User) (worker.Result, error)
}

// AccountPool hands out accounts round robin, wrapping at the end.
type AccountPool struct {
	mu    sync.Mutex
	users []*booking.User
	next  int
}

// NewAccountPool creates a pool over users in config order.
func NewAccountPool(users []*booking.User) (*AccountPool, error) {
	if len(users) == 0 {
		return nil, ErrNoAccounts
	}
	return &AccountPool{users: append([]*booking.User(nil), users...)}, nil
}

// Next returns the account for the coming tick and advances the cursor.
func (p *AccountPool) Next() *booking.User {
	p.mu.Lock()
	defer p.mu.Unlock()
	u := p.users[p.next]
	p.next = (p.next + 1) % len(p.users)
	return u
}

// Status describes the most recent tick.
type Status struct {
	TickID     string    `json:"tick_id"`
	Account    string    `json:"account"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Found      int       `json:"found"`
	Booked     int       `json:"booked"`
	Error      string    `json:"error,omitempty"`
}

// Scheduler runs ticks back to back, sleeping interval after each one.
type Scheduler struct {
	ticker   Ticker
	pool     *AccountPool
	interval time.Duration
	clock    booking.Clock
	trigger  chan struct{}
	logger   *zap.Logger

	tickMu sync.Mutex
	mu     sync.RWMutex
	last   Status
	ticks  int
}

// New creates a Scheduler. A nil clock reports UTC wall time.
func New(ticker Ticker, pool *AccountPool, interval time.Duration, clock booking.Clock, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = system.New()
	}
	return &Scheduler{
		ticker:   ticker,
		pool:     pool,
		interval: interval,
		clock:    clock,
		trigger:  make(chan struct{}, 1),
		logger:   logger.Named("scheduler"),
	}
}

// Run blocks until ctx is canceled. The first tick starts immediately; tick
// errors are logged and never stop the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", zap.Duration("interval", s.interval))
	for {
		if ctx.Err() != nil {
			s.logger.Info("scheduler stopped")
			return nil
		}
		if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn("tick ended with error", zap.Error(err))
		}

		timer := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("scheduler stopped")
			return nil
		case <-s.trigger:
			timer.Stop()
			s.logger.Info("tick triggered")
		case <-timer.C:
		}
	}
}

// RunOnce executes one tick with the next account. Concurrent callers are
// serialized so ticks never overlap.
func (s *Scheduler) RunOnce(ctx context.Context) (worker.Result, error) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	account := s.pool.Next()
	started := s.clock.Now()
	s.logger.Info("tick start", zap.String("account", account.Username))
	res, err := s.ticker.Tick(ctx, account)

	status := Status{
		TickID:     res.TickID,
		Account:    account.Username,
		StartedAt:  started,
		FinishedAt: s.clock.Now(),
		Found:      len(res.Found),
	}
	for _, booked := range res.Booked {
		status.Booked += len(booked)
	}
	if err != nil {
		status.Error = err.Error()
	}
	s.mu.Lock()
	s.last = status
	s.ticks++
	s.mu.Unlock()
	return res, err
}

// Trigger asks Run to start the next tick without waiting for the interval.
// It returns false when a trigger is already pending.
func (s *Scheduler) Trigger() bool {
	select {
	case s.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Last returns the status of the most recent tick and whether any tick has run.
func (s *Scheduler) Last() (Status, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.ticks > 0
}
