package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/npezzotti/fairshare/internal/database"
	"github.com/npezzotti/fairshare/internal/types"
	"go.uber.org/zap"
)

const maxTitleLength = 200

type CreateChoreParams struct {
	RoomId     string
	Title      string
	AssignedTo string
	Recurrence string
	DueDate    *time.Time
}

// UpdateChoreParams carries the fields to change; nil leaves a field as is.
// An empty AssignedTo unassigns the chore.
type UpdateChoreParams struct {
	Title      *string
	AssignedTo *string
	Completed  *bool
	Recurrence *string
	DueDate    *time.Time
}

func validChoreRecurrence(r string) bool {
	switch r {
	case database.RecurrenceNone, database.RecurrenceDaily, database.RecurrenceWeekly, database.RecurrenceMonthly:
		return true
	}
	return false
}

// validateAssignee checks that assignee, when set, is a member of the room.
func (s *Service) validateAssignee(ctx context.Context, roomId, assignee string) error {
	if assignee == "" {
		return nil
	}
	if !isId(assignee) {
		return invalid(field("assigned_to", "must be a valid user id"))
	}

	ok, err := s.IsMember(ctx, roomId, assignee)
	if err != nil {
		return err
	}
	if !ok {
		return invalid(field("assigned_to", "must be a member of the room"))
	}
	return nil
}

func (s *Service) CreateChore(ctx context.Context, userId string, params CreateChoreParams) (types.Chore, error) {
	title := strings.TrimSpace(params.Title)
	recurrence := params.Recurrence
	if recurrence == "" {
		recurrence = database.RecurrenceNone
	}

	v := &validator{}
	v.check(title != "", "title", "is required")
	v.check(length(title) <= maxTitleLength, "title", fmt.Sprintf("must be at most %d characters", maxTitleLength))
	v.check(validChoreRecurrence(recurrence), "recurrence", "must be one of none, daily, weekly, monthly")
	if err := v.err(); err != nil {
		return types.Chore{}, err
	}

	roomId, err := s.scopeRoom(ctx, userId, params.RoomId)
	if err != nil {
		return types.Chore{}, err
	}

	assignee := strings.TrimSpace(params.AssignedTo)
	if err := s.validateAssignee(ctx, roomId, assignee); err != nil {
		return types.Chore{}, err
	}

	now := s.now()
	chore, err := s.db.CreateChore(ctx, database.Chore{
		Id:         s.newId(),
		RoomId:     roomId,
		Title:      title,
		AssignedTo: assignee,
		Recurrence: recurrence,
		DueDate:    params.DueDate,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		return types.Chore{}, fmt.Errorf("create chore: %w", err)
	}

	return toChoreView(chore), nil
}

func (s *Service) ListChores(ctx context.Context, userId, roomId string) ([]types.Chore, error) {
	roomId, err := s.scopeRoom(ctx, userId, roomId)
	if err != nil {
		return nil, err
	}

	chores, err := s.db.ListChores(ctx, roomId)
	if err != nil {
		return nil, fmt.Errorf("list chores: %w", err)
	}

	views := make([]types.Chore, 0, len(chores))
	for _, c := range chores {
		views = append(views, toChoreView(c))
	}
	return views, nil
}

func (s *Service) getChore(ctx context.Context, userId, id string) (database.Chore, error) {
	chore, err := s.db.GetChore(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return database.Chore{}, notFound("chore")
	}
	if err != nil {
		return database.Chore{}, fmt.Errorf("get chore: %w", err)
	}

	roomId, err := s.scopeRoom(ctx, userId, chore.RoomId)
	if err != nil {
		return database.Chore{}, err
	}
	chore.RoomId = roomId

	return chore, nil
}

func (s *Service) UpdateChore(ctx context.Context, userId, id string, params UpdateChoreParams) (types.Chore, error) {
	chore, err := s.getChore(ctx, userId, id)
	if err != nil {
		return types.Chore{}, err
	}

	v := &validator{}
	if params.Title != nil {
		title := strings.TrimSpace(*params.Title)
		v.check(title != "", "title", "is required")
		v.check(length(title) <= maxTitleLength, "title", fmt.Sprintf("must be at most %d characters", maxTitleLength))
		chore.Title = title
	}
	if params.Recurrence != nil {
		v.check(validChoreRecurrence(*params.Recurrence), "recurrence", "must be one of none, daily, weekly, monthly")
		chore.Recurrence = *params.Recurrence
	}
	if err := v.err(); err != nil {
		return types.Chore{}, err
	}

	if params.AssignedTo != nil {
		assignee := strings.TrimSpace(*params.AssignedTo)
		if err := s.validateAssignee(ctx, chore.RoomId, assignee); err != nil {
			return types.Chore{}, err
		}
		chore.AssignedTo = assignee
	}
	if params.DueDate != nil {
		chore.DueDate = params.DueDate
	}

	now := s.now()
	if params.Completed != nil && *params.Completed != chore.Completed {
		chore.Completed = *params.Completed
		if chore.Completed {
			chore.CompletedAt = &now
		} else {
			chore.CompletedAt = nil
		}
	}
	chore.UpdatedAt = now

	chore, err = s.db.UpdateChore(ctx, chore)
	if errors.Is(err, database.ErrNotFound) {
		return types.Chore{}, notFound("chore")
	}
	if err != nil {
		return types.Chore{}, fmt.Errorf("update chore: %w", err)
	}

	return toChoreView(chore), nil
}

func (s *Service) DeleteChore(ctx context.Context, userId, id string) error {
	if _, err := s.getChore(ctx, userId, id); err != nil {
		return err
	}

	err := s.db.DeleteChore(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return notFound("chore")
	}
	if err != nil {
		return fmt.Errorf("delete chore: %w", err)
	}
	return nil
}

// ReopenRecurringChores re-opens completed recurring chores whose next cycle
// has started and returns how many were re-opened.
func (s *Service) ReopenRecurringChores(ctx context.Context) (int, error) {
	chores, err := s.db.ListCompletedRecurringChores(ctx)
	if err != nil {
		return 0, fmt.Errorf("list completed recurring chores: %w", err)
	}

	now := s.now()
	reopened := 0
	for _, c := range chores {
		reopenAt, nextDue, ok := nextCycle(c)
		if !ok || now.Before(reopenAt) {
			continue
		}

		c.Completed = false
		c.CompletedAt = nil
		c.DueDate = nextDue
		c.UpdatedAt = now

		if _, err := s.db.UpdateChore(ctx, c); err != nil {
			if errors.Is(err, database.ErrNotFound) {
				continue
			}
			return reopened, fmt.Errorf("reopen chore %s: %w", c.Id, err)
		}
		reopened++
	}

	if reopened > 0 {
		s.log.Info("reopened recurring chores", zap.Int("count", reopened))
	}
	return reopened, nil
}

// nextCycle works out when a completed chore opens again and its next due
// date. With a due date the schedule stays anchored to it: the next due date
// is the first occurrence after completion and the chore re-opens one period
// before it. Without one the chore re-opens a period after completion.
func nextCycle(c database.Chore) (reopenAt time.Time, nextDue *time.Time, ok bool) {
	if c.CompletedAt == nil {
		return time.Time{}, nil, false
	}
	step, ok := recurrenceStep(c.Recurrence)
	if !ok {
		return time.Time{}, nil, false
	}

	if c.DueDate == nil {
		return step(*c.CompletedAt, 1), nil, true
	}

	for n := 1; ; n++ {
		next := step(*c.DueDate, n)
		if next.After(*c.CompletedAt) {
			return step(*c.DueDate, n-1), &next, true
		}
	}
}

func recurrenceStep(recurrence string) (func(t time.Time, n int) time.Time, bool) {
	switch recurrence {
	case database.RecurrenceDaily:
		return func(t time.Time, n int) time.Time { return t.AddDate(0, 0, n) }, true
	case database.RecurrenceWeekly:
		return func(t time.Time, n int) time.Time { return t.AddDate(0, 0, 7*n) }, true
	case database.RecurrenceMonthly:
		return func(t time.Time, n int) time.Time { return t.AddDate(0, n, 0) }, true
	}
	return nil, false
}

func toChoreView(c database.Chore) types.Chore {
	return types.Chore{
		Id:          c.Id,
		RoomId:      c.RoomId,
		Title:       c.Title,
		AssignedTo:  c.AssignedTo,
		Completed:   c.Completed,
		CompletedAt: c.CompletedAt,
		Recurrence:  c.Recurrence,
		DueDate:     c.DueDate,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}
