package bbdc

import (
	"context"

	"github.com/go-resty/resty/v2"

	"github.com/JakeFAU/bbdc-slot-bot/internal/booking"
)

// SlotAPI is the listing and booking endpoint pair for one slot type.
type SlotAPI interface {
	SlotType() booking.SlotType
	FindSlots(ctx context.Context, s *Session, month string) (booking.Slots, error)
	BookSlots(ctx context.Context, s *Session, slots booking.Slots) (booking.Outcome, error)
}

// Session is an authenticated user bound to one course type.
type Session struct {
	user       *booking.User
	courseType string
	http       *resty.Client
	api        SlotAPI
}

// User returns the account this session acts for.
func (s *Session) User() *booking.User { return s.user }

// CourseType returns the course the session token was issued for.
func (s *Session) CourseType() string { return s.courseType }

// FindSlots lists released slots for a YYYYMM month.
func (s *Session) FindSlots(ctx context.Context, month string) (booking.Slots, error) {
	return s.api.FindSlots(ctx, s, month)
}

// BookSlots submits one booking request for all given slots.
func (s *Session) BookSlots(ctx context.Context, slots booking.Slots) (booking.Outcome, error) {
	return s.api.BookSlots(ctx, s, slots)
}
