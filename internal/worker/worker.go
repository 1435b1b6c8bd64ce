// Package worker implements one polling tick: find released slots, book them
// for users who prefer them, and announce the rest.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/JakeFAU/bbdc-slot-bot/internal/booking"
	"github.com/JakeFAU/bbdc-slot-bot/internal/progress"
)

// Event names attached to published booking outcomes.
const (
	EventBooked = "booking.booked"
	EventFailed = "booking.failed"
)

const meterName = "github.com/JakeFAU/bbdc-slot-bot/internal/worker"

// ErrNoMonths is returned when a tick has nothing to query.
var ErrNoMonths = errors.New("no query months configured")

// Config controls Worker behavior.
type Config struct {
	CourseType  string
	QueryMonths []string
	// Meter records booking attempt counts. Nil uses the global meter provider.
	Meter metric.Meter
}

// Worker runs ticks against the booking site.
type Worker struct {
	users     []*booking.User
	sessions  booking.SessionFactory
	notifier  booking.Notifier
	history   booking.HistoryStore
	publisher booking.Publisher
	clock     booking.Clock
	ids       booking.IDGenerator
	progress  progress.Emitter
	cfg       Config
	logger    *zap.Logger
	attempts  metric.Int64Counter
}

// New constructs a Worker. history, publisher and emitter may be nil.
func New(
	users []*booking.User,
	sessions booking.SessionFactory,
	notifier booking.Notifier,
	history booking.HistoryStore,
	publisher booking.Publisher,
	clock booking.Clock,
	ids booking.IDGenerator,
	emitter progress.Emitter,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	meter := cfg.Meter
	if meter == nil {
		meter = otel.Meter(meterName)
	}
	attempts, err := meter.Int64Counter("bbdc.booking.attempts",
		metric.WithDescription("Booking attempts by result."),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		logger.Warn("booking attempt counter unavailable", zap.Error(err))
	}
	return &Worker{
		users:     users,
		sessions:  sessions,
		notifier:  notifier,
		history:   history,
		publisher: publisher,
		clock:     clock,
		ids:       ids,
		progress:  emitter,
		cfg:       cfg,
		logger:    logger.Named("worker"),
		attempts:  attempts,
	}
}

// Users returns the configured users in config order.
func (w *Worker) Users() []*booking.User {
	return append([]*booking.User(nil), w.users...)
}

// Result summarizes a completed tick.
type Result struct {
	TickID    string
	Account   string
	Found     booking.Slots
	Booked    map[string]booking.Slots
	Failed    map[string]booking.Slots
	Remaining booking.Slots
}

// Scan logs account in and merges the released slots for every query month.
func (w *Worker) Scan(ctx context.Context, account *booking.User) (booking.Slots, error) {
	return w.scan(ctx, "", account)
}

// Tick runs one polling iteration using account to look for slots. Errors
// mean the tick ended early; bookings already made stay in the Result.
func (w *Worker) Tick(ctx context.Context, account *booking.User) (Result, error) {
	tickID := w.newID()
	started := w.clock.Now()
	res := Result{
		TickID:  tickID,
		Account: account.Username,
		Booked:  make(map[string]booking.Slots),
		Failed:  make(map[string]booking.Slots),
	}
	logger := w.logger.With(zap.String("tick_id", tickID), zap.String("account", account.Username))
	w.emit(progress.Event{TickID: tickID, Stage: progress.StageTickStart, Account: account.Username})

	found, err := w.scan(ctx, tickID, account)
	if err != nil {
		logger.Error("tick failed", zap.Error(err))
		w.emit(progress.Event{
			TickID:  tickID,
			Stage:   progress.StageTickError,
			Account: account.Username,
			Dur:     w.since(started),
			Note:    err.Error(),
		})
		return res, err
	}
	res.Found = found
	w.emit(progress.Event{TickID: tickID, Stage: progress.StageSlotsFound, Slots: len(found)})

	if len(found) == 0 {
		logger.Info("No Slot Found")
		w.finish(tickID, account, started)
		return res, nil
	}
	for _, id := range found.IDs() {
		logger.Info("Slot Found", zap.String("slot_id", id), zap.Stringer("slot", found[id]))
	}

	remaining := found.Clone()
	for _, user := range w.users {
		if ctx.Err() != nil {
			break
		}
		if !user.HasPreferences() {
			continue
		}
		bookable := booking.SelectBookable(remaining, user)
		if len(bookable) == 0 {
			continue
		}
		outcome := w.book(ctx, tickID, user, bookable)
		outcome.Apply(remaining, user)
		if len(outcome.Booked) > 0 {
			res.Booked[user.Username] = outcome.Booked
		}
		if len(outcome.Failed) > 0 {
			res.Failed[user.Username] = outcome.Failed
		}
	}
	res.Remaining = remaining

	if len(remaining) > 0 {
		w.notify(ctx, tickID, "broadcast", func(ctx context.Context) error {
			return w.notifier.Broadcast(ctx, booking.FoundMessage(remaining))
		})
	}
	if err := ctx.Err(); err != nil {
		w.emit(progress.Event{TickID: tickID, Stage: progress.StageTickError, Account: account.Username, Dur: w.since(started), Note: err.Error()})
		return res, fmt.Errorf("tick canceled: %w", err)
	}
	w.finish(tickID, account, started)
	return res, nil
}

func (w *Worker) scan(ctx context.Context, tickID string, account *booking.User) (booking.Slots, error) {
	if len(w.cfg.QueryMonths) == 0 {
		return nil, ErrNoMonths
	}
	session, err := w.sessions.NewSession(ctx, account, w.cfg.CourseType)
	if err != nil {
		return nil, fmt.Errorf("login %s: %w", account.Username, err)
	}
	found := make(booking.Slots)
	for _, month := range w.cfg.QueryMonths {
		slots, err := session.FindSlots(ctx, month)
		if err != nil {
			return nil, fmt.Errorf("find slots for %s: %w", month, err)
		}
		if tickID != "" {
			w.emit(progress.Event{TickID: tickID, Stage: progress.StageSlotsFound, Month: month, Slots: len(slots)})
		}
		for id, slot := range slots {
			found[id] = slot
		}
	}
	return found, nil
}

// book claims bookable for user and reports every slot as booked or failed.
// Login or transport errors fail the whole batch without the balance hint.
func (w *Worker) book(ctx context.Context, tickID string, user *booking.User, bookable booking.Slots) booking.Outcome {
	logger := w.logger.With(zap.String("tick_id", tickID), zap.String("user", user.Username))

	session, err := w.sessions.NewSession(ctx, user, w.cfg.CourseType)
	if err == nil {
		var outcome booking.Outcome
		outcome, err = session.BookSlots(ctx, bookable)
		if err == nil {
			w.report(ctx, tickID, user, outcome)
			return outcome
		}
	}

	logger.Error("booking attempt failed", zap.Int("slots", len(bookable)), zap.Error(err))
	outcome := booking.Outcome{Booked: make(booking.Slots), Failed: bookable.Clone()}
	for _, id := range outcome.Failed.IDs() {
		w.recordOutcome(ctx, tickID, user, id, outcome.Failed[id], booking.ResultFailed, err.Error())
	}
	return outcome
}

func (w *Worker) report(ctx context.Context, tickID string, user *booking.User, outcome booking.Outcome) {
	for _, id := range outcome.Booked.IDs() {
		slot := outcome.Booked[id]
		w.logger.Info("Booking success",
			zap.String("tick_id", tickID),
			zap.String("user", user.Username),
			zap.String("slot_id", id),
			zap.Stringer("slot", slot),
		)
		w.recordOutcome(ctx, tickID, user, id, slot, booking.ResultBooked, "")
		w.notify(ctx, tickID, user.Username, func(ctx context.Context) error {
			return w.notifier.Private(ctx, user.ChatID, booking.SuccessMessage(slot))
		})
	}
	for _, id := range outcome.Failed.IDs() {
		slot := outcome.Failed[id]
		w.logger.Warn("Booking failed",
			zap.String("tick_id", tickID),
			zap.String("user", user.Username),
			zap.String("slot_id", id),
			zap.Stringer("slot", slot),
		)
		w.recordOutcome(ctx, tickID, user, id, slot, booking.ResultFailed, "")
		w.notify(ctx, tickID, user.Username, func(ctx context.Context) error {
			return w.notifier.Private(ctx, user.ChatID, booking.FailureMessage(slot))
		})
	}
}

func (w *Worker) recordOutcome(
	ctx context.Context,
	tickID string,
	user *booking.User,
	slotID string,
	slot booking.Slot,
	result booking.Result,
	note string,
) {
	stage := progress.StageBooked
	event := EventBooked
	if result == booking.ResultFailed {
		stage = progress.StageBookFailed
		event = EventFailed
	}
	w.emit(progress.Event{TickID: tickID, Stage: stage, Account: user.Username, SlotID: slotID, Slots: 1, Note: note})
	if w.attempts != nil {
		w.attempts.Add(ctx, 1, metric.WithAttributes(
			attribute.String("account", user.Username),
			attribute.String("result", string(result)),
		))
	}

	record := booking.Record{
		ID:         w.newID(),
		TickID:     tickID,
		Username:   user.Username,
		SlotID:     slotID,
		Slot:       slot,
		Result:     result,
		RecordedAt: w.clock.Now(),
	}
	if w.history != nil {
		if err := w.history.Record(ctx, record); err != nil {
			w.logger.Error("record booking attempt failed", zap.String("slot_id", slotID), zap.Error(err))
		}
	}
	if w.publisher != nil {
		if _, err := w.publisher.Publish(ctx, event, record); err != nil {
			w.logger.Error("publish booking outcome failed", zap.String("slot_id", slotID), zap.Error(err))
		}
	}
}

// notify sends a message and never fails the tick.
func (w *Worker) notify(ctx context.Context, tickID, target string, send func(context.Context) error) {
	if w.notifier == nil {
		return
	}
	if err := send(ctx); err != nil {
		w.logger.Warn("notification failed", zap.String("tick_id", tickID), zap.String("target", target), zap.Error(err))
		w.emit(progress.Event{TickID: tickID, Stage: progress.StageNotifyError, Account: target, Note: err.Error()})
	}
}

func (w *Worker) finish(tickID string, account *booking.User, started time.Time) {
	w.emit(progress.Event{TickID: tickID, Stage: progress.StageTickDone, Account: account.Username, Dur: w.since(started)})
}

func (w *Worker) emit(evt progress.Event) {
	if w.progress == nil {
		return
	}
	evt.TS = w.clock.Now()
	w.progress.Emit(evt)
}

func (w *Worker) since(t time.Time) time.Duration {
	d := w.clock.Now().Sub(t)
	if d < 0 {
		return 0
	}
	return d
}

func (w *Worker) newID() string {
	if w.ids != nil {
		if id, err := w.ids.NewID(); err == nil {
			return id
		}
	}
	return fmt.Sprintf("%d", w.clock.Now().UnixNano())
}
