package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/bbdc-slot-bot/internal/booking"
	"github.com/JakeFAU/bbdc-slot-bot/internal/progress"
)

var errSiteDown = errors.New("site down")

type fakeSession struct {
	user     *booking.User
	listings map[string]booking.Slots
	findErr  error
	confirm  func(booking.Slots) []string
	bookErr  error

	mu     sync.Mutex
	booked []booking.Slots
}

func (s *fakeSession) User() *booking.User { return s.user }

func (s *fakeSession) CourseType() string { return "3A" }

func (s *fakeSession) FindSlots(_ context.Context, month string) (booking.Slots, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	return s.listings[month].Clone(), nil
}

func (s *fakeSession) BookSlots(_ context.Context, slots booking.Slots) (booking.Outcome, error) {
	s.mu.Lock()
	s.booked = append(s.booked, slots.Clone())
	s.mu.Unlock()
	if s.bookErr != nil {
		return booking.Outcome{}, s.bookErr
	}
	var confirmed []string
	if s.confirm != nil {
		confirmed = s.confirm(slots)
	}
	return booking.Partition(slots, confirmed), nil
}

func (s *fakeSession) attempts() []booking.Slots {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]booking.Slots(nil), s.booked...)
}

type fakeSessions struct {
	mu       sync.Mutex
	sessions map[string]*fakeSession
	loginErr map[string]error
	logins   []string
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: map[string]*fakeSession{}, loginErr: map[string]error{}}
}

func (f *fakeSessions) add(user *booking.User) *fakeSession {
	s := &fakeSession{user: user, listings: map[string]booking.Slots{}}
	f.sessions[user.Username] = s
	return s
}

func (f *fakeSessions) NewSession(_ context.Context, user *booking.User, _ string) (booking.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins = append(f.logins, user.Username)
	if err := f.loginErr[user.Username]; err != nil {
		return nil, err
	}
	s, ok := f.sessions[user.Username]
	if !ok {
		return nil, fmt.Errorf("no fake session for %s", user.Username)
	}
	return s, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDs) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("id-%d", g.n), nil
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) stages() []progress.Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]progress.Stage, 0, len(r.events))
	for _, evt := range r.events {
		out = append(out, evt.Stage)
	}
	return out
}

func mustSlot(day string, session int) booking.Slot {
	d, err := booking.ParseDay(day)
	if err != nil {
		panic(err)
	}
	slot, err := booking.NewSlot(booking.SlotTypePractical, d, session)
	if err != nil {
		panic(err)
	}
	return slot
}

func confirmAll(slots booking.Slots) []string {
	return slots.IDs()
}
