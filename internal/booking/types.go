// Package booking defines the slot, user and outcome types shared across subsystems.
package booking

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// DateLayout is the ISO date layout used for slot days.
const DateLayout = "2006-01-02"

// ErrInvalidSession is returned for session numbers outside the fixed 1-8 table.
var ErrInvalidSession = errors.New("invalid session")

// ErrUnknownSlotType is returned when a configured slot type is not supported.
var ErrUnknownSlotType = errors.New("unknown slot type")

// SlotType distinguishes the lesson categories the booking site exposes.
type SlotType string

// Supported slot types.
const (
	SlotTypePractical SlotType = "Practical"
)

// ParseSlotType maps a configured name onto a SlotType.
func ParseSlotType(name string) (SlotType, error) {
	switch SlotType(strings.TrimSpace(name)) {
	case SlotTypePractical:
		return SlotTypePractical, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSlotType, name)
	}
}

// Timing is a session's time-of-day range, formatted HH:MM.
type Timing struct {
	Start string
	End   string
}

func (t Timing) String() string {
	return t.Start + "-" + t.End
}

var sessionTimings = map[int]Timing{
	1: {Start: "07:30", End: "09:10"},
	2: {Start: "09:20", End: "11:00"},
	3: {Start: "11:30", End: "13:10"},
	4: {Start: "13:20", End: "15:00"},
	5: {Start: "15:20", End: "17:00"},
	6: {Start: "17:10", End: "18:50"},
	7: {Start: "19:20", End: "21:00"},
	8: {Start: "21:10", End: "22:50"},
}

// SessionTiming returns the fixed time range for a session number.
func SessionTiming(session int) (Timing, error) {
	t, ok := sessionTimings[session]
	if !ok {
		return Timing{}, fmt.Errorf("%w: %d", ErrInvalidSession, session)
	}
	return t, nil
}

// Slot is a bookable lesson identified by type, day and session number.
// Start and End are informational; equality ignores them.
type Slot struct {
	Type    SlotType  `json:"slot_type"`
	Day     time.Time `json:"day"`
	Session int       `json:"session"`
	Start   string    `json:"start_time,omitempty"`
	End     string    `json:"end_time,omitempty"`
}

// NewSlot builds a Slot whose start and end times are inferred from the session table.
func NewSlot(slotType SlotType, day time.Time, session int) (Slot, error) {
	timing, err := SessionTiming(session)
	if err != nil {
		return Slot{}, err
	}
	return Slot{
		Type:    slotType,
		Day:     truncateDay(day),
		Session: session,
		Start:   timing.Start,
		End:     timing.End,
	}, nil
}

// SlotKey is the comparable identity of a Slot.
type SlotKey struct {
	Type    SlotType
	Day     string
	Session int
}

// Key returns the identity used for matching found slots against preferences.
func (s Slot) Key() SlotKey {
	return SlotKey{Type: s.Type, Day: s.Date(), Session: s.Session}
}

// Equal reports whether both slots denote the same lesson.
func (s Slot) Equal(other Slot) bool {
	return s.Key() == other.Key()
}

// Date formats the slot day as YYYY-MM-DD.
func (s Slot) Date() string {
	return s.Day.Format(DateLayout)
}

// Timing returns "HH:MM-HH:MM", falling back to the session table when the
// listing did not carry explicit times.
func (s Slot) Timing() string {
	if s.Start != "" && s.End != "" {
		return s.Start + "-" + s.End
	}
	if t, err := SessionTiming(s.Session); err == nil {
		return t.String()
	}
	return ""
}

func (s Slot) String() string {
	return fmt.Sprintf("date: %s, session: %d (%s)", s.Date(), s.Session, s.Timing())
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses an ISO date into a UTC midnight timestamp.
func ParseDay(raw string) (time.Time, error) {
	day, err := time.Parse(DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse day %q: %w", raw, err)
	}
	return day, nil
}

// Slots maps a site-assigned slot identifier to its Slot.
type Slots map[string]Slot

// Clone returns a shallow copy safe to mutate independently.
func (s Slots) Clone() Slots {
	out := make(Slots, len(s))
	for id, slot := range s {
		out[id] = slot
	}
	return out
}

// IDs returns the slot identifiers in chronological slot order.
func (s Slots) IDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := s[ids[i]], s[ids[j]]
		if !a.Day.Equal(b.Day) {
			return a.Day.Before(b.Day)
		}
		if a.Session != b.Session {
			return a.Session < b.Session
		}
		return ids[i] < ids[j]
	})
	return ids
}

// Sorted returns the slots in chronological order.
func (s Slots) Sorted() []Slot {
	ids := s.IDs()
	out := make([]Slot, 0, len(ids))
	for _, id := range ids {
		out = append(out, s[id])
	}
	return out
}

// User is a configured booking account plus the slots it wants claimed.
// Preferred slots shrink as bookings succeed, so access is synchronized.
type User struct {
	Username string
	Password string
	ChatID   string

	mu        sync.RWMutex
	preferred []Slot
}

// NewUser constructs a User with the given preferred slots.
func NewUser(username, password, chatID string, preferred []Slot) *User {
	return &User{
		Username:  username,
		Password:  password,
		ChatID:    chatID,
		preferred: append([]Slot(nil), preferred...),
	}
}

// PreferredSlots returns a copy of the remaining preferred slots.
func (u *User) PreferredSlots() []Slot {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return append([]Slot(nil), u.preferred...)
}

// HasPreferences reports whether any preferred slot remains.
func (u *User) HasPreferences() bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return len(u.preferred) > 0
}

// Prefers reports whether the slot is among the user's preferred slots.
func (u *User) Prefers(slot Slot) bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	for _, p := range u.preferred {
		if p.Equal(slot) {
			return true
		}
	}
	return false
}

// RemovePreferred drops the first preferred slot equal to slot.
func (u *User) RemovePreferred(slot Slot) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	for i, p := range u.preferred {
		if p.Equal(slot) {
			u.preferred = append(u.preferred[:i], u.preferred[i+1:]...)
			return true
		}
	}
	return false
}

func (u *User) String() string {
	return u.Username
}

// Outcome partitions an attempted booking batch.
type Outcome struct {
	Booked Slots
	Failed Slots
}

// Result labels a single booking attempt.
type Result string

// Booking attempt results persisted in the history store.
const (
	ResultBooked Result = "booked"
	ResultFailed Result = "failed"
)

// Record is one booking attempt persisted for auditing.
type Record struct {
	ID         string    `json:"id"`
	TickID     string    `json:"tick_id"`
	Username   string    `json:"username"`
	SlotID     string    `json:"slot_id"`
	Slot       Slot      `json:"slot"`
	Result     Result    `json:"result"`
	RecordedAt time.Time `json:"recorded_at"`
}
