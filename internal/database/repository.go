package database

import (
	"context"
	"errors"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

const (
	DefaultMessageLimit = 100
	MaxMessageLimit     = 500
)

type Repository interface {
	Ping(ctx context.Context) error
	Close(ctx context.Context) error

	CreateUser(ctx context.Context, user User) (User, error)
	GetUserById(ctx context.Context, id string) (User, error)
	GetUserBySubject(ctx context.Context, subject string) (User, error)
	GetUsersByIds(ctx context.Context, ids []string) ([]User, error)
	GetEarliestUser(ctx context.Context) (User, error)
	UpdateUserProfile(ctx context.Context, params UpdateProfileParams) (User, error)

	CreateRoom(ctx context.Context, room Room) (Room, error)
	GetRoomById(ctx context.Context, id string) (Room, error)
	GetRoomByCode(ctx context.Context, code string) (Room, error)
	ListRoomsForUser(ctx context.Context, userId string) ([]Room, error)
	AddRoomMember(ctx context.Context, roomId, userId string) (Room, error)
	RemoveRoomMember(ctx context.Context, roomId, userId string) error
	IsRoomMember(ctx context.Context, roomId, userId string) (bool, error)
	UpdateRoomName(ctx context.Context, roomId, name string) (Room, error)
	DeleteRoom(ctx context.Context, roomId string) error

	CreateChore(ctx context.Context, chore Chore) (Chore, error)
	GetChore(ctx context.Context, id string) (Chore, error)
	ListChores(ctx context.Context, roomId string) ([]Chore, error)
	ListCompletedRecurringChores(ctx context.Context) ([]Chore, error)
	UpdateChore(ctx context.Context, chore Chore) (Chore, error)
	DeleteChore(ctx context.Context, id string) error

	CreateExpense(ctx context.Context, expense Expense) (Expense, error)
	GetExpense(ctx context.Context, id string) (Expense, error)
	ListExpenses(ctx context.Context, roomId string) ([]Expense, error)
	UpdateExpense(ctx context.Context, expense Expense) (Expense, error)
	DeleteExpense(ctx context.Context, id string) error

	CreateMessage(ctx context.Context, msg Message) (Message, error)
	ListMessages(ctx context.Context, filter MessageFilter) ([]Message, error)

	CreateEvent(ctx context.Context, event Event) (Event, error)
	GetEvent(ctx context.Context, id string) (Event, error)
	ListEvents(ctx context.Context, filter EventFilter) ([]Event, error)
	UpdateEvent(ctx context.Context, event Event) (Event, error)
	DeleteEvent(ctx context.Context, id string) error

	// AssignOrphans moves chores, expenses and events without a room into
	// roomId and returns how many records were updated.
	AssignOrphans(ctx context.Context, roomId string) (int64, error)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultMessageLimit
	}
	if limit > MaxMessageLimit {
		return MaxMessageLimit
	}
	return limit
}
