package bbdc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/bbdc-slot-bot/internal/booking"
)

const (
	listPracticalPath = "/booking/c3practical/listC3PracticalSlotReleased"
	bookPracticalPath = "/booking/c3practical/callBookC3PracticalSlot"

	practicalStage = "Practical Lesson"
)

type listRequest struct {
	CourseType        string  `json:"courseType"`
	InsInstructorID   string  `json:"insInstructorId"`
	ReleasedSlotMonth string  `json:"releasedSlotMonth"`
	StageSubDesc      string  `json:"stageSubDesc"`
	SubVehicleType    *string `json:"subVehicleType"`
	SubStageSubNo     *string `json:"subStageSubNo"`
}

type listData struct {
	ReleasedSlotListGroupByDay map[string][]releasedSlot `json:"releasedSlotListGroupByDay"`
}

type releasedSlot struct {
	SlotID      slotID `json:"slotId"`
	SlotRefName string `json:"slotRefName"`
	StartTime   string `json:"startTime"`
	EndTime     string `json:"endTime"`
}

type bookRequest struct {
	CourseType      string  `json:"courseType"`
	InsInstructorID string  `json:"insInstructorId"`
	SlotIDList      []any   `json:"slotIdList"`
	SubVehicleType  *string `json:"subVehicleType"`
}

type bookData struct {
	BookedPracticalSlotList []bookedSlot `json:"bookedPracticalSlotList"`
}

type bookedSlot struct {
	C3PsrSlotID slotID `json:"c3PsrSlotId"`
}

// slotID accepts both numeric and string identifiers.
type slotID string

func (id *slotID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("slot id: %w", err)
		}
		*id = slotID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("slot id: %w", err)
	}
	*id = slotID(n.String())
	return nil
}

// wireID sends integral identifiers back as JSON numbers.
func wireID(id string) any {
	if _, err := strconv.ParseInt(id, 10, 64); err == nil {
		return json.Number(id)
	}
	return id
}

// PracticalAPI covers the practical lesson endpoints.
type PracticalAPI struct {
	archiver *Archiver
	tracer   trace.Tracer
	logger   *zap.Logger
}

// NewPracticalAPI wires the practical endpoints. archiver may be nil.
func NewPracticalAPI(archiver *Archiver, tracer trace.Tracer, logger *zap.Logger) *PracticalAPI {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PracticalAPI{archiver: archiver, tracer: tracer, logger: logger}
}

// SlotType implements SlotAPI.
func (p *PracticalAPI) SlotType() booking.SlotType {
	return booking.SlotTypePractical
}

// FindSlots lists the practical slots released for month. A non-zero result
// code or an empty day map yields no slots.
func (p *PracticalAPI) FindSlots(ctx context.Context, s *Session, month string) (booking.Slots, error) {
	ctx, span := p.tracer.Start(ctx, "bbdc.FindSlots", trace.WithAttributes(
		attribute.String("bbdc.user", s.user.Username),
		attribute.String("bbdc.month", month),
	))
	defer span.End()

	resp, err := s.http.R().
		SetContext(ctx).
		SetBody(listRequest{
			CourseType:        s.courseType,
			ReleasedSlotMonth: month,
			StageSubDesc:      practicalStage,
		}).
		Post(listPracticalPath)
	if err != nil {
		return nil, fail(span, fmt.Errorf("list slots %s: %w", month, err))
	}

	body, err := decode[listData](resp)
	if err != nil {
		return nil, fail(span, fmt.Errorf("list slots %s: %w", month, err))
	}
	if p.archiver != nil {
		p.archiver.Archive(ctx, month, resp.Body())
	}
	if body.Code != 0 {
		p.logger.Debug("slot listing refused",
			zap.String("month", month),
			zap.Int("code", body.Code),
			zap.String("message", body.Message),
		)
		return booking.Slots{}, nil
	}

	slots := p.parseListing(body.Data.ReleasedSlotListGroupByDay)
	span.SetAttributes(attribute.Int("bbdc.slots", len(slots)))
	return slots, nil
}

func (p *PracticalAPI) parseListing(days map[string][]releasedSlot) booking.Slots {
	slots := make(booking.Slots)
	for dayKey, entries := range days {
		fields := strings.Fields(dayKey)
		if len(fields) == 0 {
			p.logger.Warn("skipping day with empty key")
			continue
		}
		day, err := booking.ParseDay(fields[0])
		if err != nil {
			p.logger.Warn("skipping unparseable day", zap.String("day", dayKey), zap.Error(err))
			continue
		}
		for _, entry := range entries {
			session, err := parseSessionRef(entry.SlotRefName)
			if err != nil || entry.SlotID == "" {
				p.logger.Warn("skipping malformed slot",
					zap.String("day", dayKey),
					zap.String("slot_ref", entry.SlotRefName),
					zap.String("slot_id", string(entry.SlotID)),
					zap.Error(err),
				)
				continue
			}
			slot := booking.Slot{
				Type:    booking.SlotTypePractical,
				Day:     day,
				Session: session,
				Start:   entry.StartTime,
				End:     entry.EndTime,
			}
			if slot.Start == "" || slot.End == "" {
				if t, terr := booking.SessionTiming(session); terr == nil {
					slot.Start, slot.End = t.Start, t.End
				}
			}
			slots[string(entry.SlotID)] = slot
		}
	}
	return slots
}

// parseSessionRef reads n out of "SESSION n".
func parseSessionRef(ref string) (int, error) {
	fields := strings.Fields(ref)
	if len(fields) < 2 {
		return 0, fmt.Errorf("%w: %q", booking.ErrInvalidSession, ref)
	}
	n, err := strconv.Atoi(fields[len(fields)-1])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", booking.ErrInvalidSession, ref)
	}
	return n, nil
}

// BookSlots sends one booking request for every slot and partitions the batch
// by the identifiers the site confirmed. The request is never retried.
func (p *PracticalAPI) BookSlots(ctx context.Context, s *Session, slots booking.Slots) (booking.Outcome, error) {
	ids := slots.IDs()
	ctx, span := p.tracer.Start(ctx, "bbdc.BookSlots", trace.WithAttributes(
		attribute.String("bbdc.user", s.user.Username),
		attribute.StringSlice("bbdc.slot_ids", ids),
	))
	defer span.End()

	wire := make([]any, 0, len(ids))
	for _, id := range ids {
		wire = append(wire, wireID(id))
	}

	resp, err := s.http.R().
		SetContext(withoutRetry(ctx)).
		SetBody(bookRequest{
			CourseType: s.courseType,
			SlotIDList: wire,
		}).
		Post(bookPracticalPath)
	if err != nil {
		return booking.Outcome{}, fail(span, fmt.Errorf("book slots: %w", err))
	}
	if resp.StatusCode() != http.StatusOK {
		return booking.Outcome{}, fail(span, fmt.Errorf("book slots: %w: status %d", ErrUnexpectedResponse, resp.StatusCode()))
	}
	body, err := decode[bookData](resp)
	if err != nil {
		return booking.Outcome{}, fail(span, fmt.Errorf("book slots: %w", err))
	}

	confirmed := make([]string, 0, len(body.Data.BookedPracticalSlotList))
	for _, b := range body.Data.BookedPracticalSlotList {
		confirmed = append(confirmed, string(b.C3PsrSlotID))
	}
	outcome := booking.Partition(slots, confirmed)
	span.SetAttributes(
		attribute.Int("bbdc.booked", len(outcome.Booked)),
		attribute.Int("bbdc.failed", len(outcome.Failed)),
	)
	if body.Code != 0 {
		p.logger.Info("booking response carried non-zero code",
			zap.String("user", s.user.Username),
			zap.Int("code", body.Code),
			zap.String("message", body.Message),
		)
	}
	return outcome, nil
}
