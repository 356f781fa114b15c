package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/npezzotti/fairshare/internal/database"
	"github.com/npezzotti/fairshare/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCreateRoom(t *testing.T) {
	tcases := []struct {
		name      string
		roomName  string
		setupMock func(db *database.MockRepository)
		expectErr Kind
		wantErr   bool
	}{
		{
			name:     "creates room with creator as member",
			roomName: "  Flat 4 ",
			setupMock: func(db *database.MockRepository) {
				db.On("CreateRoom", database.Room{
					Id:        "new-id",
					Name:      "Flat 4",
					Code:      "code-1",
					CreatedBy: userA,
					Members:   []string{userA},
					CreatedAt: testNow,
					UpdatedAt: testNow,
				}).Return(database.Room{Id: "new-id", Name: "Flat 4", Code: "code-1", CreatedBy: userA, Members: []string{userA}}, nil).Once()
			},
		},
		{
			name:      "empty name",
			roomName:  "   ",
			setupMock: func(db *database.MockRepository) {},
			expectErr: KindInvalidInput,
			wantErr:   true,
		},
		{
			name:      "name too long",
			roomName:  strings.Repeat("x", 101),
			setupMock: func(db *database.MockRepository) {},
			expectErr: KindInvalidInput,
			wantErr:   true,
		},
		{
			name:     "code collisions exhaust retries",
			roomName: "Flat 4",
			setupMock: func(db *database.MockRepository) {
				db.On("CreateRoom", mock.Anything).Return(database.Room{}, database.ErrDuplicate).Times(createRoomRetries)
			},
			expectErr: KindConflict,
			wantErr:   true,
		},
		{
			name:     "database error",
			roomName: "Flat 4",
			setupMock: func(db *database.MockRepository) {
				db.On("CreateRoom", mock.Anything).Return(database.Room{}, errors.New("db down")).Once()
			},
			expectErr: KindInternal,
			wantErr:   true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			db := &database.MockRepository{}
			defer db.AssertExpectations(t)
			tc.setupMock(db)

			s := newTestService(t, db)
			room, err := s.CreateRoom(context.Background(), userA, tc.roomName)

			if tc.wantErr {
				assert.Error(t, err)
				assert.Equal(t, tc.expectErr, KindOf(err), "unexpected error kind: %v", err)
				return
			}

			assert.NoError(t, err)
			assert.Equal(t, "Flat 4", room.Name)
			assert.Equal(t, []string{userA}, room.Members, "expected creator to be the only member")
		})
	}
}

func TestCreateRoom_RetriesOnCollision(t *testing.T) {
	db := &database.MockRepository{}
	defer db.AssertExpectations(t)

	codes := []string{"taken", "fresh"}
	s := newTestService(t, db)
	s.generateCode = func() (string, error) {
		c := codes[0]
		codes = codes[1:]
		return c, nil
	}

	db.On("CreateRoom", mock.MatchedBy(func(r database.Room) bool { return r.Code == "taken" })).Return(database.Room{}, database.ErrDuplicate).Once()
	db.On("CreateRoom", mock.MatchedBy(func(r database.Room) bool { return r.Code == "fresh" })).Return(database.Room{Id: "new-id", Code: "fresh", CreatedBy: userA, Members: []string{userA}}, nil).Once()

	room, err := s.CreateRoom(context.Background(), userA, "Flat")
	assert.NoError(t, err)
	assert.Equal(t, "fresh", room.Code)
}

func TestJoinRoom(t *testing.T) {
	t.Run("unknown code has no side effects", func(t *testing.T) {
		db := &database.MockRepository{}
		defer db.AssertExpectations(t)
		db.On("GetRoomByCode", "ABC123").Return(database.Room{}, database.ErrNotFound).Once()

		s := newTestService(t, db)
		_, err := s.JoinRoom(context.Background(), "ABC123", userX)

		assertKind(t, err, KindNotFound)
		db.AssertNotCalled(t, "AddRoomMember", mock.Anything, mock.Anything)
		db.AssertNotCalled(t, "CreateRoom", mock.Anything)
	})

	t.Run("joining twice keeps a single membership", func(t *testing.T) {
		store := &memRooms{rooms: map[string]database.Room{
			"abc123": testRoom(),
		}}
		s := newTestService(t, store)

		for i := 0; i < 2; i++ {
			room, err := s.JoinRoom(context.Background(), "abc123", userX)
			require.NoError(t, err)
			count := 0
			for _, m := range room.Members {
				if m == userX {
					count++
				}
			}
			assert.Equal(t, 1, count, "expected user to appear once after join %d", i+1)
		}
	})

	t.Run("empty code", func(t *testing.T) {
		s := newTestService(t, &database.MockRepository{})
		_, err := s.JoinRoom(context.Background(), " ", userX)
		assertKind(t, err, KindInvalidInput)
	})
}

func TestEnsureDefaultRoom(t *testing.T) {
	t.Run("existing member", func(t *testing.T) {
		db := &database.MockRepository{}
		defer db.AssertExpectations(t)
		db.On("GetRoomByCode", DefaultRoomCode).Return(database.Room{Id: "default", Code: DefaultRoomCode, Members: []string{userA}}, nil).Once()

		s := newTestService(t, db)
		room, err := s.EnsureDefaultRoom(context.Background(), userA)
		assert.NoError(t, err)
		assert.Equal(t, "default", room.Id)
	})

	t.Run("losing the create race re-reads the room", func(t *testing.T) {
		db := &database.MockRepository{}
		defer db.AssertExpectations(t)
		winner := database.Room{Id: "winner", Code: DefaultRoomCode, CreatedBy: userA, Members: []string{userA}}

		db.On("GetRoomByCode", DefaultRoomCode).Return(database.Room{}, database.ErrNotFound).Once()
		db.On("CreateRoom", mock.Anything).Return(database.Room{}, database.ErrDuplicate).Once()
		db.On("GetRoomByCode", DefaultRoomCode).Return(winner, nil).Once()
		db.On("AddRoomMember", "winner", userB).Return(database.Room{Id: "winner", Members: []string{userA, userB}}, nil).Once()

		s := newTestService(t, db)
		room, err := s.EnsureDefaultRoom(context.Background(), userB)
		assert.NoError(t, err)
		assert.Equal(t, "winner", room.Id)
		assert.Equal(t, []string{userA, userB}, room.Members)
	})

	t.Run("concurrent first callers share one room", func(t *testing.T) {
		store := &memRooms{rooms: map[string]database.Room{}}
		s := newTestService(t, store)

		var wg sync.WaitGroup
		results := make([]types.Room, 2)
		errs := make([]error, 2)
		for i, u := range []string{userA, userB} {
			wg.Add(1)
			go func(i int, u string) {
				defer wg.Done()
				results[i], errs[i] = s.EnsureDefaultRoom(context.Background(), u)
			}(i, u)
		}
		wg.Wait()

		require.NoError(t, errs[0])
		require.NoError(t, errs[1])
		assert.Equal(t, 1, store.creates, "expected a single default room to be created")
		assert.Equal(t, results[0].Id, results[1].Id, "expected both callers to resolve the same room")

		final, err := store.GetRoomByCode(context.Background(), DefaultRoomCode)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{userA, userB}, final.Members)
	})
}

func TestUpdateRoom(t *testing.T) {
	tcases := []struct {
		name      string
		userId    string
		setupMock func(db *database.MockRepository)
		expectErr *Kind
	}{
		{
			name:   "creator renames",
			userId: userA,
			setupMock: func(db *database.MockRepository) {
				db.On("GetRoomById", roomId).Return(testRoom(), nil).Once()
				db.On("UpdateRoomName", roomId, "New name").Return(database.Room{Id: roomId, Name: "New name"}, nil).Once()
			},
		},
		{
			name:   "member cannot rename",
			userId: userB,
			setupMock: func(db *database.MockRepository) {
				db.On("GetRoomById", roomId).Return(testRoom(), nil).Once()
			},
			expectErr: ptr(KindForbidden),
		},
		{
			name:   "missing room",
			userId: userA,
			setupMock: func(db *database.MockRepository) {
				db.On("GetRoomById", roomId).Return(database.Room{}, database.ErrNotFound).Once()
			},
			expectErr: ptr(KindNotFound),
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			db := &database.MockRepository{}
			defer db.AssertExpectations(t)
			tc.setupMock(db)

			s := newTestService(t, db)
			room, err := s.UpdateRoom(context.Background(), roomId, tc.userId, " New name ")
			if tc.expectErr != nil {
				assertKind(t, err, *tc.expectErr)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, "New name", room.Name)
		})
	}
}

func TestDeleteRoom(t *testing.T) {
	t.Run("creator deletes", func(t *testing.T) {
		db := &database.MockRepository{}
		defer db.AssertExpectations(t)
		db.On("GetRoomById", roomId).Return(testRoom(), nil).Once()
		db.On("DeleteRoom", roomId).Return(nil).Once()

		s := newTestService(t, db)
		assert.NoError(t, s.DeleteRoom(context.Background(), roomId, userA))
	})

	t.Run("member is forbidden", func(t *testing.T) {
		db := &database.MockRepository{}
		defer db.AssertExpectations(t)
		db.On("GetRoomById", roomId).Return(testRoom(), nil).Once()

		s := newTestService(t, db)
		assertKind(t, s.DeleteRoom(context.Background(), roomId, userC), KindForbidden)
		db.AssertNotCalled(t, "DeleteRoom", mock.Anything)
	})
}

func TestLeaveRoom(t *testing.T) {
	tcases := []struct {
		name      string
		userId    string
		expectErr *Kind
	}{
		{name: "member leaves", userId: userB},
		{name: "creator cannot leave", userId: userA, expectErr: ptr(KindInvalidInput)},
		{name: "non-member", userId: userX, expectErr: ptr(KindForbidden)},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			db := &database.MockRepository{}
			defer db.AssertExpectations(t)
			db.On("GetRoomById", roomId).Return(testRoom(), nil).Once()
			if tc.expectErr == nil {
				db.On("RemoveRoomMember", roomId, tc.userId).Return(nil).Once()
			}

			s := newTestService(t, db)
			err := s.LeaveRoom(context.Background(), roomId, tc.userId)
			if tc.expectErr != nil {
				assertKind(t, err, *tc.expectErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestGetRoomAndMembers(t *testing.T) {
	db := &database.MockRepository{}
	defer db.AssertExpectations(t)
	db.On("GetRoomById", roomId).Return(testRoom(), nil)
	db.On("GetUsersByIds", []string{userA, userB, userC}).Return([]database.User{
		{Id: userB, DisplayName: "Bo"},
		{Id: userA, DisplayName: "Al"},
	}, nil).Once()

	s := newTestService(t, db)

	room, err := s.GetRoom(context.Background(), roomId, userB)
	assert.NoError(t, err)
	assert.Equal(t, roomId, room.Id)

	_, err = s.GetRoom(context.Background(), roomId, userX)
	assertKind(t, err, KindForbidden)

	members, err := s.ListMembers(context.Background(), roomId, userA)
	assert.NoError(t, err)
	if assert.Len(t, members, 2, "expected only known users") {
		assert.Equal(t, "Al", members[0].DisplayName, "expected member order to follow the room")
		assert.Equal(t, "Bo", members[1].DisplayName)
	}
}

func TestIsMember(t *testing.T) {
	db := &database.MockRepository{}
	defer db.AssertExpectations(t)
	db.On("IsRoomMember", roomId, userA).Return(true, nil).Once()
	db.On("IsRoomMember", "gone", userA).Return(false, database.ErrNotFound).Once()

	s := newTestService(t, db)

	ok, err := s.IsMember(context.Background(), roomId, userA)
	assert.NoError(t, err)
	assert.True(t, ok)

	_, err = s.IsMember(context.Background(), "gone", userA)
	assertKind(t, err, KindNotFound)
}

func ptr[T any](v T) *T {
	return &v
}
