package booking

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func mustDay(t *testing.T, raw string) time.Time {
	t.Helper()
	day, err := ParseDay(raw)
	require.NoError(t, err)
	return day
}

func TestSessionTimingTable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		session int
		want    string
	}{
		{1, "07:30-09:10"},
		{2, "09:20-11:00"},
		{3, "11:30-13:10"},
		{4, "13:20-15:00"},
		{5, "15:20-17:00"},
		{6, "17:10-18:50"},
		{7, "19:20-21:00"},
		{8, "21:10-22:50"},
	}
	for _, tt := range tests {
		timing, err := SessionTiming(tt.session)
		require.NoError(t, err)
		require.Equal(t, tt.want, timing.String())
	}

	_, err := SessionTiming(9)
	require.True(t, errors.Is(err, ErrInvalidSession))
	_, err = SessionTiming(0)
	require.ErrorIs(t, err, ErrInvalidSession)
}

func TestSlotStringAndEquality(t *testing.T) {
	t.Parallel()

	day := mustDay(t, "2024-03-05")
	slot, err := NewSlot(SlotTypePractical, day, 3)
	require.NoError(t, err)
	require.Equal(t, "date: 2024-03-05, session: 3 (11:30-13:10)", slot.String())

	listed := Slot{Type: SlotTypePractical, Day: day.Add(9 * time.Hour), Session: 3, Start: "11:35", End: "13:15"}
	require.True(t, slot.Equal(listed), "timing must not affect identity")
	require.Equal(t, "11:35-13:15", listed.Timing())

	other, err := NewSlot(SlotTypePractical, day, 4)
	require.NoError(t, err)
	require.False(t, slot.Equal(other))

	bare := Slot{Type: SlotTypePractical, Day: day, Session: 8}
	require.Equal(t, "21:10-22:50", bare.Timing())
}

func TestNewSlotRejectsInvalidSession(t *testing.T) {
	t.Parallel()

	_, err := NewSlot(SlotTypePractical, time.Now(), 12)
	require.ErrorIs(t, err, ErrInvalidSession)
}

func TestParseSlotType(t *testing.T) {
	t.Parallel()

	st, err := ParseSlotType("Practical")
	require.NoError(t, err)
	require.Equal(t, SlotTypePractical, st)

	_, err = ParseSlotType("Theory")
	require.ErrorIs(t, err, ErrUnknownSlotType)
}

func TestSlotsSortedChronologically(t *testing.T) {
	t.Parallel()

	a, _ := NewSlot(SlotTypePractical, mustDay(t, "2024-03-06"), 1)
	b, _ := NewSlot(SlotTypePractical, mustDay(t, "2024-03-05"), 7)
	c, _ := NewSlot(SlotTypePractical, mustDay(t, "2024-03-05"), 2)
	slots := Slots{"a": a, "b": b, "c": c}

	require.Equal(t, []string{"c", "b", "a"}, slots.IDs())
	sorted := slots.Sorted()
	require.Equal(t, c, sorted[0])
	require.Equal(t, a, sorted[2])

	clone := slots.Clone()
	delete(clone, "a")
	require.Len(t, slots, 3)
}

func TestUserPreferences(t *testing.T) {
	t.Parallel()

	day := mustDay(t, "2024-03-05")
	s1, _ := NewSlot(SlotTypePractical, day, 1)
	s2, _ := NewSlot(SlotTypePractical, day, 2)
	u := NewUser("alice", "pw", "42", []Slot{s1, s2})

	require.True(t, u.HasPreferences())
	require.True(t, u.Prefers(s1))
	require.True(t, u.RemovePreferred(s1))
	require.False(t, u.Prefers(s1))
	require.False(t, u.RemovePreferred(s1))
	require.Len(t, u.PreferredSlots(), 1)
	require.Equal(t, "alice", u.String())

	require.True(t, u.RemovePreferred(s2))
	require.False(t, u.HasPreferences())
}
