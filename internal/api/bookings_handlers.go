package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/bbdc-slot-bot/internal/booking"
)

const (
	defaultBookingLimit = 50
	maxBookingLimit     = 500
	historyTimeout      = 3 * time.Second
)

type slotDTO struct {
	Type    string `json:"slot_type"`
	Date    string `json:"date"`
	Session int    `json:"session"`
	Timing  string `json:"timing"`
}

type bookingDTO struct {
	ID         string    `json:"id"`
	TickID     string    `json:"tick_id"`
	Username   string    `json:"username"`
	SlotID     string    `json:"slot_id"`
	Slot       slotDTO   `json:"slot"`
	Result     string    `json:"result"`
	RecordedAt time.Time `json:"recorded_at"`
}

type accountDTO struct {
	Username       string    `json:"username"`
	HasChat        bool      `json:"has_chat"`
	PreferredSlots []slotDTO `json:"preferred_slots"`
}

// listBookings handles GET /v1/bookings?limit=N, newest first.
func (s *Server) listBookings(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusServiceUnavailable, "booking history unavailable")
		return
	}
	limit, err := parseLimit(r, defaultBookingLimit, maxBookingLimit)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), historyTimeout)
	defer cancel()

	records, err := s.history.List(ctx, limit)
	if err != nil {
		s.logger.Error("list bookings failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list bookings")
		return
	}
	out := make([]bookingDTO, 0, len(records))
	for _, rec := range records {
		out = append(out, bookingDTO{
			ID:         rec.ID,
			TickID:     rec.TickID,
			Username:   rec.Username,
			SlotID:     rec.SlotID,
			Slot:       toSlotDTO(rec.Slot),
			Result:     string(rec.Result),
			RecordedAt: rec.RecordedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"bookings": out})
}

// listAccounts handles GET /v1/accounts. Passwords and chat IDs are never exposed.
func (s *Server) listAccounts(w http.ResponseWriter, _ *http.Request) {
	if s.users == nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"accounts": []accountDTO{}})
		return
	}
	users := s.users.Users()
	out := make([]accountDTO, 0, len(users))
	for _, u := range users {
		prefs := u.PreferredSlots()
		dto := accountDTO{
			Username:       u.Username,
			HasChat:        u.ChatID != "",
			PreferredSlots: make([]slotDTO, 0, len(prefs)),
		}
		for _, p := range prefs {
			dto.PreferredSlots = append(dto.PreferredSlots, toSlotDTO(p))
		}
		out = append(out, dto)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"accounts": out})
}

func toSlotDTO(slot booking.Slot) slotDTO {
	return slotDTO{
		Type:    string(slot.Type),
		Date:    slot.Date(),
		Session: slot.Session,
		Timing:  slot.Timing(),
	}
}

func parseLimit(r *http.Request, def, maxLimit int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val <= 0 {
		return 0, errors.New("invalid limit")
	}
	if val > maxLimit {
		val = maxLimit
	}
	return val, nil
}
