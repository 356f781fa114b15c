package api

import (
	"net/http"
	"testing"

	"github.com/npezzotti/fairshare/internal/database"
	"github.com/npezzotti/fairshare/internal/testutil"
	"github.com/npezzotti/fairshare/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func testRoom() database.Room {
	return database.Room{
		Id:        roomId,
		Name:      "Flat 4",
		Code:      "abc123",
		CreatedBy: userA,
		Members:   []string{userA, userB},
	}
}

func TestApp_createRoom(t *testing.T) {
	tcases := []struct {
		name         string
		body         any
		setupMock    func(repo *database.MockRepository)
		expectCode   int
		expectFields []string
	}{
		{
			name: "creates room",
			body: RoomRequest{Name: " Flat 4 "},
			setupMock: func(repo *database.MockRepository) {
				repo.On("CreateRoom", mock.MatchedBy(func(r database.Room) bool {
					return r.Name == "Flat 4" && r.CreatedBy == userA && r.Code != ""
				})).Return(testRoom(), nil).Once()
			},
			expectCode: http.StatusCreated,
		},
		{
			name:         "blank name",
			body:         RoomRequest{Name: "  "},
			setupMock:    func(repo *database.MockRepository) {},
			expectCode:   http.StatusBadRequest,
			expectFields: []string{"name"},
		},
		{
			name:       "not json",
			body:       "name=Flat",
			setupMock:  func(repo *database.MockRepository) {},
			expectCode: http.StatusBadRequest,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			ta := newTestApp(t, testutil.TestLogger(t))
			tc.setupMock(ta.repo)

			rr := ta.do(http.MethodPost, "/api/rooms", tokenA, tc.body)

			assert.Equal(t, tc.expectCode, rr.Code)
			if tc.expectCode == http.StatusCreated {
				room := decodeBody[types.Room](t, rr)
				assert.Equal(t, roomId, room.Id)
				assert.Equal(t, "abc123", room.Code)
				return
			}
			errResp := decodeBody[ApiError](t, rr)
			var got []string
			for _, f := range errResp.Fields {
				got = append(got, f.Field)
			}
			assert.Equal(t, tc.expectFields, got)
		})
	}
}

func TestApp_joinRoom(t *testing.T) {
	t.Run("joins by code", func(t *testing.T) {
		ta := newTestApp(t, testutil.TestLogger(t))
		room := testRoom()
		ta.repo.On("GetRoomByCode", "abc123").Return(room, nil).Once()
		room.Members = append(room.Members, userC)
		ta.repo.On("AddRoomMember", roomId, userB).Return(room, nil).Once()

		rr := ta.do(http.MethodPost, "/api/rooms/join/abc123", tokenB, nil)

		assert.Equal(t, http.StatusOK, rr.Code)
		got := decodeBody[types.Room](t, rr)
		assert.Equal(t, roomId, got.Id)
	})

	t.Run("unknown code", func(t *testing.T) {
		ta := newTestApp(t, testutil.TestLogger(t))
		ta.repo.On("GetRoomByCode", "nope").Return(database.Room{}, database.ErrNotFound).Once()

		rr := ta.do(http.MethodPost, "/api/rooms/join/nope", tokenB, nil)

		assert.Equal(t, http.StatusNotFound, rr.Code)
		errResp := decodeBody[ApiError](t, rr)
		assert.Equal(t, "room not found", errResp.Message)
		ta.repo.AssertNotCalled(t, "AddRoomMember", mock.Anything, mock.Anything)
	})
}

func TestApp_getRoomAndMembers(t *testing.T) {
	ta := newTestApp(t, testutil.TestLogger(t))
	ta.repo.On("GetRoomById", roomId).Return(testRoom(), nil)
	ta.repo.On("GetUsersByIds", []string{userA, userB}).Return([]database.User{
		{Id: userA, DisplayName: "Ann"},
		{Id: userB, DisplayName: "Ben"},
	}, nil).Once()

	rr := ta.do(http.MethodGet, "/api/rooms/"+roomId, tokenB, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Flat 4", decodeBody[types.Room](t, rr).Name)

	rr = ta.do(http.MethodGet, "/api/rooms/"+roomId+"/members", tokenB, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	members := decodeBody[[]types.User](t, rr)
	if assert.Len(t, members, 2) {
		assert.Equal(t, "Ann", members[0].DisplayName)
		assert.Equal(t, "Ben", members[1].DisplayName)
	}
}

func TestApp_updateRoom(t *testing.T) {
	ta := newTestApp(t, testutil.TestLogger(t))
	ta.repo.On("GetRoomById", roomId).Return(testRoom(), nil)

	rr := ta.do(http.MethodPut, "/api/rooms/"+roomId, tokenB, RoomRequest{Name: "Ben's flat"})

	assert.Equal(t, http.StatusForbidden, rr.Code, "expected only the creator to rename the room")
	ta.repo.AssertNotCalled(t, "UpdateRoomName", mock.Anything, mock.Anything)
}

func TestApp_deleteRoom(t *testing.T) {
	tcases := []struct {
		name       string
		token      string
		expectCode int
	}{
		{name: "creator deletes", token: tokenA, expectCode: http.StatusNoContent},
		{name: "member cannot delete", token: tokenB, expectCode: http.StatusForbidden},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			ta := newTestApp(t, testutil.TestLogger(t))
			ta.repo.On("GetRoomById", roomId).Return(testRoom(), nil).Once()
			if tc.expectCode == http.StatusNoContent {
				ta.repo.On("DeleteRoom", roomId).Return(nil).Once()
			}

			rr := ta.do(http.MethodDelete, "/api/rooms/"+roomId, tc.token, nil)

			assert.Equal(t, tc.expectCode, rr.Code)
		})
	}
}

func TestApp_leaveRoom(t *testing.T) {
	tcases := []struct {
		name       string
		token      string
		expectCode int
	}{
		{name: "member leaves", token: tokenB, expectCode: http.StatusNoContent},
		{name: "creator cannot leave", token: tokenA, expectCode: http.StatusBadRequest},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			ta := newTestApp(t, testutil.TestLogger(t))
			ta.repo.On("GetRoomById", roomId).Return(testRoom(), nil).Once()
			if tc.expectCode == http.StatusNoContent {
				ta.repo.On("RemoveRoomMember", roomId, userB).Return(nil).Once()
			}

			rr := ta.do(http.MethodPost, "/api/rooms/"+roomId+"/leave", tc.token, nil)

			assert.Equal(t, tc.expectCode, rr.Code)
		})
	}
}

func TestApp_listRooms(t *testing.T) {
	ta := newTestApp(t, testutil.TestLogger(t))
	ta.repo.On("ListRoomsForUser", userB).Return([]database.Room{testRoom()}, nil).Once()

	rr := ta.do(http.MethodGet, "/api/rooms", tokenB, nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	rooms := decodeBody[[]types.Room](t, rr)
	if assert.Len(t, rooms, 1) {
		assert.Equal(t, []string{userA, userB}, rooms[0].Members)
	}
}
