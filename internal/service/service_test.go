package service

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/npezzotti/fairshare/internal/database"
	"github.com/npezzotti/fairshare/internal/testutil"
	"github.com/stretchr/testify/assert"
)

const (
	userA = "aaaaaaaa-aaaa-4aaa-8aaa-aaaaaaaaaaaa"
	userB = "bbbbbbbb-bbbb-4bbb-8bbb-bbbbbbbbbbbb"
	userC = "cccccccc-cccc-4ccc-8ccc-cccccccccccc"
	userX = "dddddddd-dddd-4ddd-8ddd-dddddddddddd"

	roomId = "room-1"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, db database.Repository) *Service {
	s := New(testutil.TestLogger(t), db)
	s.newId = func() string { return "new-id" }
	s.now = func() time.Time { return testNow }
	s.generateCode = func() (string, error) { return "code-1", nil }
	return s
}

func testRoom() database.Room {
	return database.Room{
		Id:        roomId,
		Name:      "Flat 4",
		Code:      "abc123",
		CreatedBy: userA,
		Members:   []string{userA, userB, userC},
	}
}

// assertKind checks that err is a service error of the given kind.
func assertKind(t *testing.T, err error, kind Kind) {
	t.Helper()
	var serr *Error
	if assert.True(t, errors.As(err, &serr), "expected service error, got %v", err) {
		assert.Equal(t, kind, serr.Kind, "expected %s error, got %s: %v", kind, serr.Kind, err)
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindForbidden, KindOf(forbidden("no")))
	assert.Equal(t, KindNotFound, KindOf(errors.Join(errors.New("ctx"), notFound("room"))))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
}

func TestValidator(t *testing.T) {
	v := &validator{}
	assert.NoError(t, v.err())

	v.check(false, "title", "is required")
	v.check(true, "amount", "never")
	err := v.err()
	assertKind(t, err, KindInvalidInput)
	assert.EqualError(t, err, "title: is required")

	v.check(false, "amount", "must be positive")
	var serr *Error
	errors.As(v.err(), &serr)
	assert.Equal(t, "invalid input", serr.Message)
	assert.Len(t, serr.Fields, 2, "expected every field error to be reported")
}

func Test_dedupe(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, dedupe([]string{" a", "b", "", "a", "c", "b "}))
	assert.Empty(t, dedupe(nil))
}

// memRooms is a minimal concurrent room store with a unique code index.
type memRooms struct {
	database.Repository
	mu      sync.Mutex
	rooms   map[string]database.Room
	creates int
}

func (m *memRooms) GetRoomByCode(_ context.Context, code string) (database.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[code]
	if !ok {
		return database.Room{}, database.ErrNotFound
	}
	r.Members = slices.Clone(r.Members)
	return r, nil
}

func (m *memRooms) CreateRoom(_ context.Context, room database.Room) (database.Room, error) {
	// widen the window between lookup and insert
	time.Sleep(10 * time.Millisecond)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[room.Code]; ok {
		return database.Room{}, database.ErrDuplicate
	}
	m.creates++
	m.rooms[room.Code] = room
	return room, nil
}

func (m *memRooms) AddRoomMember(_ context.Context, id, userId string) (database.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for code, r := range m.rooms {
		if r.Id != id {
			continue
		}
		if !slices.Contains(r.Members, userId) {
			r.Members = append(r.Members, userId)
			m.rooms[code] = r
		}
		r.Members = slices.Clone(r.Members)
		return r, nil
	}
	return database.Room{}, database.ErrNotFound
}
