package booking

import (
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

func practical(t *testing.T, date string, session int) Slot {
	t.Helper()
	slot, err := NewSlot(SlotTypePractical, mustDay(t, date), session)
	require.NoError(t, err)
	return slot
}

func TestSelectBookable(t *testing.T) {
	t.Parallel()

	wanted := practical(t, "2024-03-05", 2)
	found := Slots{
		"101": wanted,
		"102": practical(t, "2024-03-05", 3),
		"103": practical(t, "2024-03-06", 2),
	}
	user := NewUser("alice", "pw", "1", []Slot{wanted, practical(t, "2024-04-01", 1)})

	got := SelectBookable(found, user)
	require.Equal(t, Slots{"101": wanted}, got)

	require.Empty(t, SelectBookable(found, NewUser("bob", "pw", "2", nil)))
	require.Empty(t, SelectBookable(found, nil))
}

func TestPartitionIgnoresUnknownConfirmations(t *testing.T) {
	t.Parallel()

	attempted := Slots{
		"1": practical(t, "2024-03-05", 1),
		"2": practical(t, "2024-03-05", 2),
	}
	out := Partition(attempted, []string{"2", "999"})

	require.Equal(t, Slots{"2": attempted["2"]}, out.Booked)
	require.Equal(t, Slots{"1": attempted["1"]}, out.Failed)
	require.Len(t, attempted, 2, "attempted batch must not be mutated")
}

func TestOutcomeApplyRemovesBookedEverywhere(t *testing.T) {
	t.Parallel()

	s1 := practical(t, "2024-03-05", 1)
	s2 := practical(t, "2024-03-05", 2)
	user := NewUser("alice", "pw", "1", []Slot{s1, s2})
	remaining := Slots{"1": s1, "2": s2, "3": practical(t, "2024-03-07", 5)}

	out := Outcome{Booked: Slots{"1": s1}, Failed: Slots{"2": s2}}
	out.Apply(remaining, user)

	require.NotContains(t, remaining, "1")
	require.Contains(t, remaining, "2")
	require.Contains(t, remaining, "3")
	require.False(t, user.Prefers(s1))
	require.True(t, user.Prefers(s2))
}

func TestMessages(t *testing.T) {
	t.Parallel()

	s1 := practical(t, "2024-03-05", 1)
	s2 := practical(t, "2024-03-04", 8)

	require.Equal(t, "Booking success: date: 2024-03-05, session: 1 (07:30-09:10)", SuccessMessage(s1))
	require.Equal(t,
		"Booking failed: date: 2024-03-05, session: 1 (07:30-09:10)\nYou may want to check your balance?",
		FailureMessage(s1),
	)
	require.Equal(t,
		"Slot found:\ndate: 2024-03-04, session: 8 (21:10-22:50)\ndate: 2024-03-05, session: 1 (07:30-09:10)",
		FoundMessage(Slots{"a": s1, "b": s2}),
	)
}

// TestPartitionProperty checks that booked and failed always split the
// attempted batch exactly, whatever the site confirms.
func TestPartitionProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	properties.Property("booked and failed partition the attempted batch", prop.ForAll(
		func(sessions []int, confirmMask []bool, extra []string) bool {
			attempted := make(Slots)
			for i, session := range sessions {
				slot, err := NewSlot(SlotTypePractical, base.AddDate(0, 0, i), session)
				if err != nil {
					return false
				}
				attempted[fmt.Sprintf("%d", i)] = slot
			}
			var confirmed []string
			for i, ok := range confirmMask {
				if ok {
					confirmed = append(confirmed, fmt.Sprintf("%d", i))
				}
			}
			confirmed = append(confirmed, extra...)

			out := Partition(attempted, confirmed)
			if len(out.Booked)+len(out.Failed) != len(attempted) {
				return false
			}
			for id := range out.Booked {
				if _, dup := out.Failed[id]; dup {
					return false
				}
				if _, ok := attempted[id]; !ok {
					return false
				}
			}
			for id := range attempted {
				_, booked := out.Booked[id]
				_, failed := out.Failed[id]
				if booked == failed {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(1, 8)),
		gen.SliceOf(gen.Bool()),
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
