package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/bbdc-slot-bot/internal/progress"
)

// PrometheusSink exports tick and booking progress via Prometheus.
type PrometheusSink struct {
	ticksStarted   prometheus.Counter
	ticksCompleted *prometheus.CounterVec
	ticksRunning   prometheus.Gauge
	tickDuration   *prometheus.HistogramVec

	slotsFound    prometheus.Counter
	bookings      *prometheus.CounterVec
	notifyErrors  prometheus.Counter
	lastSlotsSeen prometheus.Gauge

	tracker *tickTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		ticksStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bbdc_ticks_started_total",
			Help: "Total polling ticks that have started.",
		}),
		ticksCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bbdc_ticks_completed_total",
			Help: "Total polling ticks completed partitioned by result.",
		}, []string{"result"}),
		ticksRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bbdc_ticks_running",
			Help: "Current number of running ticks.",
		}),
		tickDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bbdc_tick_duration_seconds",
			Help:    "Wall time per completed tick.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"result"}),
		slotsFound: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bbdc_slots_found_total",
			Help: "Released slots observed across all listings.",
		}),
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bbdc_bookings_total",
			Help: "Booking attempts partitioned by account and result.",
		}, []string{"account", "result"}),
		notifyErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bbdc_tick_notify_errors_total",
			Help: "Notifications that failed during a tick.",
		}),
		lastSlotsSeen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bbdc_slots_last_seen",
			Help: "Slots found by the most recent tick.",
		}),
		tracker: newTickTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.ticksStarted,
		s.ticksCompleted,
		s.ticksRunning,
		s.tickDuration,
		s.slotsFound,
		s.bookings,
		s.notifyErrors,
		s.lastSlotsSeen,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors using the provided batch. It is safe for
// concurrent use.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageTickStart:
		s.ticksStarted.Inc()
		if s.tracker.start(evt.TickID) {
			s.ticksRunning.Inc()
		}
	case progress.StageTickDone:
		s.finishTick(evt, "success")
	case progress.StageTickError:
		s.finishTick(evt, "error")
	case progress.StageSlotsFound:
		// Per-month events feed the counter; the tick-wide total feeds the gauge.
		if evt.Month == "" {
			s.lastSlotsSeen.Set(float64(evt.Slots))
		} else {
			s.slotsFound.Add(float64(evt.Slots))
		}
	case progress.StageBooked:
		s.bookings.WithLabelValues(evt.Account, "booked").Inc()
	case progress.StageBookFailed:
		s.bookings.WithLabelValues(evt.Account, "failed").Inc()
	case progress.StageNotifyError:
		s.notifyErrors.Inc()
	}
}

func (s *PrometheusSink) finishTick(evt progress.Event, result string) {
	s.ticksCompleted.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.tickDuration.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
	if s.tracker.complete(evt.TickID) {
		s.ticksRunning.Dec()
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type tickTracker struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newTickTracker() *tickTracker {
	return &tickTracker{running: make(map[string]struct{})}
}

func (t *tickTracker) start(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *tickTracker) complete(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
