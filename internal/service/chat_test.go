package service

import (
	"context"
	"strings"
	"testing"

	"github.com/npezzotti/fairshare/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

const choreId = "eeeeeeee-eeee-4eee-8eee-eeeeeeeeeeee"

func TestPostMessage(t *testing.T) {
	tcases := []struct {
		name      string
		params    PostMessageParams
		setupMock func(db *database.MockRepository)
		expectErr *Kind
	}{
		{
			name:   "plain message",
			params: PostMessageParams{RoomId: roomId, Text: "  hi all  "},
			setupMock: func(db *database.MockRepository) {
				db.On("IsRoomMember", roomId, userA).Return(true, nil).Once()
				db.On("CreateMessage", database.Message{
					Id:        "new-id",
					RoomId:    roomId,
					SenderId:  userA,
					Text:      "hi all",
					CreatedAt: testNow,
				}).Return(database.Message{Id: "new-id", RoomId: roomId, SenderId: userA, Text: "hi all", CreatedAt: testNow}, nil).Once()
				db.On("GetUsersByIds", []string{userA}).Return([]database.User{{Id: userA, DisplayName: "Ann"}}, nil).Once()
			},
		},
		{
			name:      "empty text",
			params:    PostMessageParams{RoomId: roomId, Text: "   "},
			setupMock: func(db *database.MockRepository) {},
			expectErr: ptr(KindInvalidInput),
		},
		{
			name:      "text too long",
			params:    PostMessageParams{RoomId: roomId, Text: strings.Repeat("x", maxMessageLength+1)},
			setupMock: func(db *database.MockRepository) {},
			expectErr: ptr(KindInvalidInput),
		},
		{
			name:      "related type without id",
			params:    PostMessageParams{RoomId: roomId, Text: "done", RelatedType: database.RelatedChore},
			setupMock: func(db *database.MockRepository) {},
			expectErr: ptr(KindInvalidInput),
		},
		{
			name:      "related to an event",
			params:    PostMessageParams{RoomId: roomId, Text: "done", RelatedType: "event", RelatedId: choreId},
			setupMock: func(db *database.MockRepository) {},
			expectErr: ptr(KindInvalidInput),
		},
		{
			name:   "related chore from another room",
			params: PostMessageParams{RoomId: roomId, Text: "look", RelatedType: database.RelatedChore, RelatedId: choreId},
			setupMock: func(db *database.MockRepository) {
				db.On("IsRoomMember", roomId, userA).Return(true, nil).Once()
				db.On("GetChore", choreId).Return(database.Chore{Id: choreId, RoomId: "other-room", Title: "Their chore"}, nil).Once()
			},
			expectErr: ptr(KindInvalidInput),
		},
		{
			name:   "related expense that does not exist",
			params: PostMessageParams{RoomId: roomId, Text: "look", RelatedType: database.RelatedExpense, RelatedId: choreId},
			setupMock: func(db *database.MockRepository) {
				db.On("IsRoomMember", roomId, userA).Return(true, nil).Once()
				db.On("GetExpense", choreId).Return(database.Expense{}, database.ErrNotFound).Once()
			},
			expectErr: ptr(KindInvalidInput),
		},
		{
			name:      "missing room",
			params:    PostMessageParams{Text: "hi"},
			setupMock: func(db *database.MockRepository) {},
			expectErr: ptr(KindInvalidInput),
		},
		{
			name:   "sender no longer a member",
			params: PostMessageParams{RoomId: roomId, Text: "hi"},
			setupMock: func(db *database.MockRepository) {
				db.On("IsRoomMember", roomId, userA).Return(false, nil).Once()
			},
			expectErr: ptr(KindForbidden),
		},
		{
			name:   "room deleted",
			params: PostMessageParams{RoomId: roomId, Text: "hi"},
			setupMock: func(db *database.MockRepository) {
				db.On("IsRoomMember", roomId, userA).Return(false, database.ErrNotFound).Once()
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
			msg, err := s.PostMessage(context.Background(), userA, tc.params)
			if tc.expectErr != nil {
				assertKind(t, err, *tc.expectErr)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, "Ann", msg.Sender.DisplayName)
			assert.Nil(t, msg.Related)
		})
	}
}

func TestPostMessage_Related(t *testing.T) {
	db := &database.MockRepository{}
	defer db.AssertExpectations(t)
	db.On("IsRoomMember", roomId, userA).Return(true, nil).Once()
	// once to check the reference, once to resolve the stored message
	db.On("GetChore", choreId).Return(database.Chore{Id: choreId, RoomId: roomId, Title: "Dishes"}, nil).Twice()
	db.On("CreateMessage", mock.MatchedBy(func(m database.Message) bool {
		return m.RelatedType == database.RelatedChore && m.RelatedId == choreId
	})).Return(database.Message{Id: "m1", RoomId: roomId, SenderId: userA, Text: "done", RelatedType: database.RelatedChore, RelatedId: choreId}, nil).Once()
	db.On("GetUsersByIds", []string{userA}).Return([]database.User{{Id: userA, DisplayName: "Ann"}}, nil).Once()

	s := newTestService(t, db)
	msg, err := s.PostMessage(context.Background(), userA, PostMessageParams{
		RoomId: roomId, Text: "done", RelatedType: database.RelatedChore, RelatedId: choreId,
	})
	assert.NoError(t, err)
	if assert.NotNil(t, msg.Related) {
		assert.True(t, msg.Related.Available)
		assert.Equal(t, "Dishes", msg.Related.Title)
	}
}

func TestHistory(t *testing.T) {
	t.Run("non-member is forbidden", func(t *testing.T) {
		db := &database.MockRepository{}
		defer db.AssertExpectations(t)
		db.On("IsRoomMember", roomId, userX).Return(false, nil).Once()

		s := newTestService(t, db)
		_, err := s.History(context.Background(), userX, HistoryParams{RoomId: roomId})
		assertKind(t, err, KindForbidden)
	})

	t.Run("resolves senders and references", func(t *testing.T) {
		expenseId := "ffffffff-ffff-4fff-8fff-ffffffffffff"
		foreignChoreId := "dddddddd-dddd-4ddd-8ddd-dddddddddddd"

		db := &database.MockRepository{}
		defer db.AssertExpectations(t)
		db.On("IsRoomMember", roomId, userA).Return(true, nil).Once()
		db.On("ListMessages", mock.MatchedBy(func(f database.MessageFilter) bool {
			return f.RoomId == roomId && f.Limit == 20 && f.Before.Equal(testNow)
		})).Return([]database.Message{
			{Id: "m1", RoomId: roomId, SenderId: userB, Text: "did it", RelatedType: database.RelatedChore, RelatedId: choreId},
			{Id: "m2", RoomId: roomId, SenderId: userX, Text: "bye", RelatedType: database.RelatedExpense, RelatedId: expenseId},
			{Id: "m3", RoomId: roomId, SenderId: userB, Text: "again", RelatedType: database.RelatedChore, RelatedId: choreId},
			{Id: "m4", RoomId: roomId, SenderId: userB, Text: "theirs", RelatedType: database.RelatedChore, RelatedId: foreignChoreId},
		}, nil).Once()
		db.On("GetUsersByIds", []string{userB, userX}).Return([]database.User{{Id: userB, DisplayName: "Ben"}}, nil).Once()
		db.On("GetChore", choreId).Return(database.Chore{Id: choreId, RoomId: roomId, Title: "Dishes"}, nil).Once()
		db.On("GetChore", foreignChoreId).Return(database.Chore{Id: foreignChoreId, RoomId: "other-room", Title: "Their chore"}, nil).Once()
		db.On("GetExpense", expenseId).Return(database.Expense{}, database.ErrNotFound).Once()

		s := newTestService(t, db)
		msgs, err := s.History(context.Background(), userA, HistoryParams{RoomId: roomId, Before: testNow, Limit: 20})
		assert.NoError(t, err)
		if !assert.Len(t, msgs, 4) {
			return
		}

		assert.Equal(t, "Ben", msgs[0].Sender.DisplayName)
		assert.True(t, msgs[0].Related.Available)
		assert.Equal(t, "Dishes", msgs[0].Related.Title)

		assert.Equal(t, "Former roommate", msgs[1].Sender.DisplayName)
		assert.Equal(t, userX, msgs[1].Sender.Id)
		assert.False(t, msgs[1].Related.Available, "expected deleted expense to be unavailable")

		assert.Same(t, msgs[0].Related, msgs[2].Related, "expected repeated references to be looked up once")

		assert.False(t, msgs[3].Related.Available, "expected a record from another room to be unavailable")
		assert.Empty(t, msgs[3].Related.Title)
	})
}
