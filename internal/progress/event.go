package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageTickStart   Stage = "TICK_START"
	StageTickDone    Stage = "TICK_DONE"
	StageTickError   Stage = "TICK_ERROR"
	StageSlotsFound  Stage = "SLOTS_FOUND"
	StageBooked      Stage = "BOOKED"
	StageBookFailed  Stage = "BOOK_FAILED"
	StageNotifyError Stage = "NOTIFY_ERROR"
)

// Event captures a single tick milestone.
type Event struct {
	// TickID groups every event emitted by one tick.
	TickID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	Stage Stage
	// Account is the polling account for tick events and the booking account otherwise.
	Account string
	// Month is the YYYYMM listing a SLOTS_FOUND event refers to; empty means all months.
	Month string
	// Slots counts the slots the event refers to.
	Slots int
	// SlotID identifies the slot for BOOKED and BOOK_FAILED.
	SlotID string
	Dur    time.Duration
	// Note carries low-volume context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.TickID == "" {
		return errors.New("tick id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageTickStart, StageTickDone, StageTickError, StageNotifyError:
	case StageSlotsFound:
		if e.Slots < 0 {
			return errors.New("slots found must be >= 0")
		}
	case StageBooked, StageBookFailed:
		if e.Account == "" || e.SlotID == "" {
			return fmt.Errorf("%s requires account and slot id", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
