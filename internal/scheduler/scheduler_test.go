package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/JakeFAU/bbdc-slot-bot/internal/booking"
	"github.com/JakeFAU/bbdc-slot-bot/internal/worker"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingTicker struct {
	mu       sync.Mutex
	accounts []string
	err      error
	ticked   chan struct{}
}

func newRecordingTicker() *recordingTicker {
	return &recordingTicker{ticked: make(chan struct{}, 64)}
}

func (r *recordingTicker) Tick(_ context.Context, account *booking.User) (worker.Result, error) {
	r.mu.Lock()
	r.accounts = append(r.accounts, account.Username)
	err := r.err
	r.mu.Unlock()
	r.ticked <- struct{}{}
	res := worker.Result{
		TickID: "tick",
		Found:  booking.Slots{"1": {}, "2": {}},
		Booked: map[string]booking.Slots{"alice": {"1": {}}},
	}
	return res, err
}

func (r *recordingTicker) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.accounts...)
}

func users(names ...string) []*booking.User {
	out := make([]*booking.User, 0, len(names))
	for _, n := range names {
		out = append(out, booking.NewUser(n, "pw", "", nil))
	}
	return out
}

func TestAccountPoolRoundRobin(t *testing.T) {
	t.Parallel()

	pool, err := NewAccountPool(users("a", "b", "c"))
	require.NoError(t, err)
	var got []string
	for range 7 {
		got = append(got, pool.Next().Username)
	}
	require.Equal(t, []string{"a", "b", "c", "a", "b", "c", "a"}, got)

	_, err = NewAccountPool(nil)
	require.ErrorIs(t, err, ErrNoAccounts)
}

func TestRunTicksImmediatelyAndStopsOnCancel(t *testing.T) {
	t.Parallel()

	pool, err := NewAccountPool(users("a", "b"))
	require.NoError(t, err)
	ticker := newRecordingTicker()
	s := New(ticker, pool, time.Hour, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-ticker.ticked:
	case <-time.After(time.Second):
		t.Fatal("first tick did not run immediately")
	}
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after context cancel")
	}
	require.Equal(t, []string{"a"}, ticker.seen())
}

func TestRunRotatesAccountsAndSurvivesErrors(t *testing.T) {
	t.Parallel()

	pool, err := NewAccountPool(users("a", "b"))
	require.NoError(t, err)
	ticker := newRecordingTicker()
	ticker.err = errors.New("login failed")
	s := New(ticker, pool, 5*time.Millisecond, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(ticker.seen()) >= 3
	}, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	seen := ticker.seen()
	require.Equal(t, []string{"a", "b", "a"}, seen[:3])
	last, ok := s.Last()
	require.True(t, ok)
	require.Equal(t, "login failed", last.Error)
}

func TestTriggerSkipsInterval(t *testing.T) {
	t.Parallel()

	pool, err := NewAccountPool(users("a"))
	require.NoError(t, err)
	ticker := newRecordingTicker()
	s := New(ticker, pool, time.Hour, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	<-ticker.ticked
	require.True(t, s.Trigger())
	select {
	case <-ticker.ticked:
	case <-time.After(time.Second):
		t.Fatal("trigger did not start a tick")
	}
	cancel()
	require.NoError(t, <-done)
}

func TestTriggerIsNonBlocking(t *testing.T) {
	t.Parallel()

	pool, err := NewAccountPool(users("a"))
	require.NoError(t, err)
	s := New(newRecordingTicker(), pool, time.Hour, nil, nil)
	require.True(t, s.Trigger())
	require.False(t, s.Trigger())
}

func TestRunOnceRecordsStatus(t *testing.T) {
	t.Parallel()

	pool, err := NewAccountPool(users("a", "b"))
	require.NoError(t, err)
	s := New(newRecordingTicker(), pool, time.Minute, nil, zap.NewNop())

	_, ok := s.Last()
	require.False(t, ok)

	_, err = s.RunOnce(context.Background())
	require.NoError(t, err)
	last, ok := s.Last()
	require.True(t, ok)
	require.Equal(t, "a", last.Account)
	require.Equal(t, 2, last.Found)
	require.Equal(t, 1, last.Booked)
	require.Empty(t, last.Error)
}

type steppingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(90 * time.Second)
	return c.now
}

func TestRunOnceStampsStatusWithClock(t *testing.T) {
	t.Parallel()

	pool, err := NewAccountPool(users("a"))
	require.NoError(t, err)
	start := time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)
	s := New(newRecordingTicker(), pool, time.Hour, &steppingClock{now: start}, zap.NewNop())

	_, err = s.RunOnce(context.Background())
	require.NoError(t, err)
	last, ok := s.Last()
	require.True(t, ok)
	require.Equal(t, start.Add(90*time.Second), last.StartedAt)
	require.Equal(t, start.Add(180*time.Second), last.FinishedAt)
}
