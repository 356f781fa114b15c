package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/npezzotti/fairshare/internal/balance"
	"github.com/npezzotti/fairshare/internal/database"
	"github.com/npezzotti/fairshare/internal/types"
	"github.com/shopspring/decimal"
)

const (
	maxEventDescriptionLength = 2000
	maxLocationLength         = 200
	upcomingEventsLimit       = 10
)

type EventParams struct {
	RoomId      string
	Title       string
	Description string
	Type        string
	StartDate   *time.Time
	EndDate     *time.Time
	AllDay      bool
	Attendees   []string
	Location    string
	Recurrence  string
	BillAmount  *decimal.Decimal
}

// EventQuery selects which of a room's events to list.
type EventQuery struct {
	RoomId   string
	Start    *time.Time
	End      *time.Time
	Upcoming bool
	Unpaid   bool
}

func validEventType(t string) bool {
	switch t {
	case database.EventParty, database.EventGuest, database.EventMaintenance, database.EventBill, database.EventOther:
		return true
	}
	return false
}

func validEventRecurrence(r string) bool {
	return r == database.RecurrenceYearly || validChoreRecurrence(r)
}

func (s *Service) validateEvent(ctx context.Context, roomId string, p *EventParams) error {
	p.Title = strings.TrimSpace(p.Title)
	p.Location = strings.TrimSpace(p.Location)
	p.Description = strings.TrimSpace(s.sanitizer.Sanitize(p.Description))
	if p.Type == "" {
		p.Type = database.EventOther
	}
	if p.Recurrence == "" {
		p.Recurrence = database.RecurrenceNone
	}
	p.Attendees = dedupe(p.Attendees)

	v := &validator{}
	v.check(p.Title != "", "title", "is required")
	v.check(length(p.Title) <= maxTitleLength, "title", fmt.Sprintf("must be at most %d characters", maxTitleLength))
	v.check(length(p.Description) <= maxEventDescriptionLength, "description", fmt.Sprintf("must be at most %d characters", maxEventDescriptionLength))
	v.check(length(p.Location) <= maxLocationLength, "location", fmt.Sprintf("must be at most %d characters", maxLocationLength))
	v.check(validEventType(p.Type), "type", "must be one of party, guest, maintenance, bill, other")
	v.check(validEventRecurrence(p.Recurrence), "recurrence", "must be one of none, daily, weekly, monthly, yearly")
	v.check(p.StartDate != nil && !p.StartDate.IsZero(), "start_date", "is required")
	if p.StartDate != nil && p.EndDate != nil {
		v.check(!p.EndDate.Before(*p.StartDate), "end_date", "must not be before start_date")
	}
	if p.Type == database.EventBill {
		v.check(p.BillAmount != nil && p.BillAmount.IsPositive(), "bill_amount", "must be greater than zero for bills")
		if p.BillAmount != nil {
			v.check(p.BillAmount.LessThanOrEqual(maxExpenseAmount), "bill_amount", "must be at most 1000000")
			v.check(p.BillAmount.Equal(p.BillAmount.Round(balance.Scale)), "bill_amount", "must have at most 2 decimal places")
		}
	}
	if err := v.err(); err != nil {
		return err
	}

	if p.Type != database.EventBill {
		p.BillAmount = nil
	}

	if len(p.Attendees) > 0 {
		room, err := s.getRoom(ctx, roomId)
		if err != nil {
			return err
		}
		if !containsAll(room.Members, p.Attendees) {
			return invalid(field("attendees", "must only contain members of the room"))
		}
	}

	return nil
}

func (s *Service) CreateEvent(ctx context.Context, userId string, params EventParams) (types.Event, error) {
	roomId, err := s.scopeRoom(ctx, userId, params.RoomId)
	if err != nil {
		return types.Event{}, err
	}

	if err := s.validateEvent(ctx, roomId, &params); err != nil {
		return types.Event{}, err
	}

	now := s.now()
	event, err := s.db.CreateEvent(ctx, database.Event{
		Id:          s.newId(),
		RoomId:      roomId,
		Title:       params.Title,
		Description: params.Description,
		Type:        params.Type,
		StartDate:   params.StartDate.UTC(),
		EndDate:     utcPtr(params.EndDate),
		AllDay:      params.AllDay,
		CreatedBy:   userId,
		Attendees:   params.Attendees,
		Location:    params.Location,
		Recurrence:  params.Recurrence,
		BillAmount:  params.BillAmount,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return types.Event{}, fmt.Errorf("create event: %w", err)
	}

	return toEventView(event), nil
}

// ListEvents lists a room's events ordered by start date. Upcoming returns
// the next few events from now; Unpaid returns open bills.
func (s *Service) ListEvents(ctx context.Context, userId string, q EventQuery) ([]types.Event, error) {
	roomId, err := s.scopeRoom(ctx, userId, q.RoomId)
	if err != nil {
		return nil, err
	}

	filter := database.EventFilter{
		RoomId:     roomId,
		Start:      q.Start,
		End:        q.End,
		UnpaidOnly: q.Unpaid,
	}
	if q.Upcoming {
		now := s.now()
		filter.Start = &now
		filter.End = nil
		filter.Limit = upcomingEventsLimit
	}

	events, err := s.db.ListEvents(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	views := make([]types.Event, 0, len(events))
	for _, e := range events {
		views = append(views, toEventView(e))
	}
	return views, nil
}

func (s *Service) getEvent(ctx context.Context, userId, id string) (database.Event, error) {
	event, err := s.db.GetEvent(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return database.Event{}, notFound("event")
	}
	if err != nil {
		return database.Event{}, fmt.Errorf("get event: %w", err)
	}

	roomId, err := s.scopeRoom(ctx, userId, event.RoomId)
	if err != nil {
		return database.Event{}, err
	}
	event.RoomId = roomId

	return event, nil
}

// UpdateEvent replaces an event's editable fields. The paid flag is left
// alone; it only changes through MarkPaid.
func (s *Service) UpdateEvent(ctx context.Context, userId, id string, params EventParams) (types.Event, error) {
	event, err := s.getEvent(ctx, userId, id)
	if err != nil {
		return types.Event{}, err
	}

	if err := s.validateEvent(ctx, event.RoomId, &params); err != nil {
		return types.Event{}, err
	}

	event.Title = params.Title
	event.Description = params.Description
	event.Type = params.Type
	event.StartDate = params.StartDate.UTC()
	event.EndDate = utcPtr(params.EndDate)
	event.AllDay = params.AllDay
	event.Attendees = params.Attendees
	event.Location = params.Location
	event.Recurrence = params.Recurrence
	event.BillAmount = params.BillAmount
	if event.Type != database.EventBill {
		event.IsPaid = false
	}
	event.UpdatedAt = s.now()

	event, err = s.db.UpdateEvent(ctx, event)
	if errors.Is(err, database.ErrNotFound) {
		return types.Event{}, notFound("event")
	}
	if err != nil {
		return types.Event{}, fmt.Errorf("update event: %w", err)
	}

	return toEventView(event), nil
}

// MarkPaid flags a bill as paid. Events that are not bills are reported as
// missing bills.
func (s *Service) MarkPaid(ctx context.Context, userId, id string) (types.Event, error) {
	event, err := s.getEvent(ctx, userId, id)
	if err != nil {
		var serr *Error
		if errors.As(err, &serr) && serr.Kind == KindNotFound {
			return types.Event{}, notFound("bill")
		}
		return types.Event{}, err
	}
	if event.Type != database.EventBill {
		return types.Event{}, notFound("bill")
	}

	event.IsPaid = true
	event.UpdatedAt = s.now()

	event, err = s.db.UpdateEvent(ctx, event)
	if errors.Is(err, database.ErrNotFound) {
		return types.Event{}, notFound("bill")
	}
	if err != nil {
		return types.Event{}, fmt.Errorf("mark bill paid: %w", err)
	}

	return toEventView(event), nil
}

func (s *Service) DeleteEvent(ctx context.Context, userId, id string) error {
	if _, err := s.getEvent(ctx, userId, id); err != nil {
		return err
	}

	err := s.db.DeleteEvent(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return notFound("event")
	}
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func toEventView(e database.Event) types.Event {
	attendees := e.Attendees
	if attendees == nil {
		attendees = []string{}
	}
	return types.Event{
		Id:          e.Id,
		RoomId:      e.RoomId,
		Title:       e.Title,
		Description: e.Description,
		Type:        e.Type,
		StartDate:   e.StartDate,
		EndDate:     e.EndDate,
		AllDay:      e.AllDay,
		CreatedBy:   e.CreatedBy,
		Attendees:   attendees,
		Location:    e.Location,
		Recurrence:  e.Recurrence,
		BillAmount:  e.BillAmount,
		IsPaid:      e.IsPaid,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}
