package database

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Ping(ctx context.Context) error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockRepository) Close(ctx context.Context) error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockRepository) CreateUser(ctx context.Context, user User) (User, error) {
	args := m.Called(user)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRepository) GetUserById(ctx context.Context, id string) (User, error) {
	args := m.Called(id)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRepository) GetUserBySubject(ctx context.Context, subject string) (User, error) {
	args := m.Called(subject)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRepository) GetUsersByIds(ctx context.Context, ids []string) ([]User, error) {
	args := m.Called(ids)
	return args.Get(0).([]User), args.Error(1)
}
func (m *MockRepository) GetEarliestUser(ctx context.Context) (User, error) {
	args := m.Called()
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRepository) UpdateUserProfile(ctx context.Context, params UpdateProfileParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRepository) CreateRoom(ctx context.Context, room Room) (Room, error) {
	args := m.Called(room)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockRepository) GetRoomById(ctx context.Context, id string) (Room, error) {
	args := m.Called(id)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockRepository) GetRoomByCode(ctx context.Context, code string) (Room, error) {
	args := m.Called(code)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockRepository) ListRoomsForUser(ctx context.Context, userId string) ([]Room, error) {
	args := m.Called(userId)
	return args.Get(0).([]Room), args.Error(1)
}
func (m *MockRepository) AddRoomMember(ctx context.Context, roomId, userId string) (Room, error) {
	args := m.Called(roomId, userId)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockRepository) RemoveRoomMember(ctx context.Context, roomId, userId string) error {
	args := m.Called(roomId, userId)
	return args.Error(0)
}
func (m *MockRepository) IsRoomMember(ctx context.Context, roomId, userId string) (bool, error) {
	args := m.Called(roomId, userId)
	return args.Bool(0), args.Error(1)
}
func (m *MockRepository) UpdateRoomName(ctx context.Context, roomId, name string) (Room, error) {
	args := m.Called(roomId, name)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockRepository) DeleteRoom(ctx context.Context, roomId string) error {
	args := m.Called(roomId)
	return args.Error(0)
}
func (m *MockRepository) CreateChore(ctx context.Context, chore Chore) (Chore, error) {
	args := m.Called(chore)
	return args.Get(0).(Chore), args.Error(1)
}
func (m *MockRepository) GetChore(ctx context.Context, id string) (Chore, error) {
	args := m.Called(id)
	return args.Get(0).(Chore), args.Error(1)
}
func (m *MockRepository) ListChores(ctx context.Context, roomId string) ([]Chore, error) {
	args := m.Called(roomId)
	return args.Get(0).([]Chore), args.Error(1)
}
func (m *MockRepository) ListCompletedRecurringChores(ctx context.Context) ([]Chore, error) {
	args := m.Called()
	return args.Get(0).([]Chore), args.Error(1)
}
func (m *MockRepository) UpdateChore(ctx context.Context, chore Chore) (Chore, error) {
	args := m.Called(chore)
	return args.Get(0).(Chore), args.Error(1)
}
func (m *MockRepository) DeleteChore(ctx context.Context, id string) error {
	args := m.Called(id)
	return args.Error(0)
}
func (m *MockRepository) CreateExpense(ctx context.Context, expense Expense) (Expense, error) {
	args := m.Called(expense)
	return args.Get(0).(Expense), args.Error(1)
}
func (m *MockRepository) GetExpense(ctx context.Context, id string) (Expense, error) {
	args := m.Called(id)
	return args.Get(0).(Expense), args.Error(1)
}
func (m *MockRepository) ListExpenses(ctx context.Context, roomId string) ([]Expense, error) {
	args := m.Called(roomId)
	return args.Get(0).([]Expense), args.Error(1)
}
func (m *MockRepository) UpdateExpense(ctx context.Context, expense Expense) (Expense, error) {
	args := m.Called(expense)
	return args.Get(0).(Expense), args.Error(1)
}
func (m *MockRepository) DeleteExpense(ctx context.Context, id string) error {
	args := m.Called(id)
	return args.Error(0)
}
func (m *MockRepository) CreateMessage(ctx context.Context, msg Message) (Message, error) {
	args := m.Called(msg)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockRepository) ListMessages(ctx context.Context, filter MessageFilter) ([]Message, error) {
	args := m.Called(filter)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockRepository) CreateEvent(ctx context.Context, event Event) (Event, error) {
	args := m.Called(event)
	return args.Get(0).(Event), args.Error(1)
}
func (m *MockRepository) GetEvent(ctx context.Context, id string) (Event, error) {
	args := m.Called(id)
	return args.Get(0).(Event), args.Error(1)
}
func (m *MockRepository) ListEvents(ctx context.Context, filter EventFilter) ([]Event, error) {
	args := m.Called(filter)
	return args.Get(0).([]Event), args.Error(1)
}
func (m *MockRepository) UpdateEvent(ctx context.Context, event Event) (Event, error) {
	args := m.Called(event)
	return args.Get(0).(Event), args.Error(1)
}
func (m *MockRepository) DeleteEvent(ctx context.Context, id string) error {
	args := m.Called(id)
	return args.Error(0)
}
func (m *MockRepository) AssignOrphans(ctx context.Context, roomId string) (int64, error) {
	args := m.Called(roomId)
	return args.Get(0).(int64), args.Error(1)
}
