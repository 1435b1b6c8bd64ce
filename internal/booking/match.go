package booking

import (
	"fmt"
	"strings"
)

// SelectBookable returns the found slots the user prefers.
func SelectBookable(found Slots, user *User) Slots {
	out := make(Slots)
	if user == nil || !user.HasPreferences() {
		return out
	}
	for id, slot := range found {
		if user.Prefers(slot) {
			out[id] = slot
		}
	}
	return out
}

// Partition splits the attempted batch into booked and failed using the
// identifiers the site confirmed. Confirmed IDs outside the batch are ignored.
func Partition(attempted Slots, confirmed []string) Outcome {
	out := Outcome{Booked: make(Slots), Failed: attempted.Clone()}
	for _, id := range confirmed {
		slot, ok := out.Failed[id]
		if !ok {
			continue
		}
		out.Booked[id] = slot
		delete(out.Failed, id)
	}
	return out
}

// Apply removes booked slots from the remaining candidates and from the
// user's preferences so they are never attempted twice.
func (o Outcome) Apply(remaining Slots, user *User) {
	for id, slot := range o.Booked {
		delete(remaining, id)
		if user != nil {
			user.RemovePreferred(slot)
		}
	}
}

// SuccessMessage is sent privately for each booked slot.
func SuccessMessage(slot Slot) string {
	return fmt.Sprintf("Booking success: %s", slot)
}

// FailureMessage is sent privately for each slot the site refused.
func FailureMessage(slot Slot) string {
	return fmt.Sprintf("Booking failed: %s\nYou may want to check your balance?", slot)
}

// FoundMessage lists unclaimed slots for the broadcast channel.
func FoundMessage(slots Slots) string {
	lines := make([]string, 0, len(slots)+1)
	lines = append(lines, "Slot found:")
	for _, slot := range slots.Sorted() {
		lines = append(lines, slot.String())
	}
	return strings.Join(lines, "\n")
}
