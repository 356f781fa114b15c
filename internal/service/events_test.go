package service

import (
	"context"
	"testing"
	"time"

	"github.com/npezzotti/fairshare/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestCreateEvent(t *testing.T) {
	start := testNow.Add(24 * time.Hour)
	before := start.Add(-time.Hour)
	amount := dec("84.20")
	tooLarge := dec("1000000.01")
	fractional := dec("12.345")

	tcases := []struct {
		name      string
		params    EventParams
		check     func(e database.Event) bool
		expectErr *Kind
	}{
		{
			name: "sanitizes description and defaults type",
			params: EventParams{
				RoomId:      roomId,
				Title:       "Housewarming",
				Description: `<b>Bring snacks</b><script>alert(1)</script>`,
				StartDate:   &start,
				Attendees:   []string{userB, userB},
			},
			check: func(e database.Event) bool {
				return e.Description == "<b>Bring snacks</b>" && e.Type == database.EventOther &&
					e.CreatedBy == userA && assert.ObjectsAreEqual([]string{userB}, e.Attendees) && e.BillAmount == nil
			},
		},
		{
			name:   "bill keeps its amount",
			params: EventParams{RoomId: roomId, Title: "Power", Type: database.EventBill, StartDate: &start, BillAmount: &amount},
			check: func(e database.Event) bool {
				return e.BillAmount != nil && e.BillAmount.Equal(amount) && !e.IsPaid
			},
		},
		{
			name:      "missing start",
			params:    EventParams{RoomId: roomId, Title: "Party"},
			expectErr: ptr(KindInvalidInput),
		},
		{
			name:      "end before start",
			params:    EventParams{RoomId: roomId, Title: "Party", StartDate: &start, EndDate: &before},
			expectErr: ptr(KindInvalidInput),
		},
		{
			name:      "unknown type",
			params:    EventParams{RoomId: roomId, Title: "Party", Type: "rave", StartDate: &start},
			expectErr: ptr(KindInvalidInput),
		},
		{
			name:      "bill without amount",
			params:    EventParams{RoomId: roomId, Title: "Water", Type: database.EventBill, StartDate: &start},
			expectErr: ptr(KindInvalidInput),
		},
		{
			name:      "bill above the limit",
			params:    EventParams{RoomId: roomId, Title: "Roof", Type: database.EventBill, StartDate: &start, BillAmount: &tooLarge},
			expectErr: ptr(KindInvalidInput),
		},
		{
			name:      "bill with fractional cents",
			params:    EventParams{RoomId: roomId, Title: "Gas", Type: database.EventBill, StartDate: &start, BillAmount: &fractional},
			expectErr: ptr(KindInvalidInput),
		},
		{
			name:      "attendee outside room",
			params:    EventParams{RoomId: roomId, Title: "Party", StartDate: &start, Attendees: []string{userX}},
			expectErr: ptr(KindInvalidInput),
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			db := &database.MockRepository{}
			defer db.AssertExpectations(t)

			db.On("IsRoomMember", roomId, userA).Return(true, nil).Once()
			db.On("GetRoomById", roomId).Return(testRoom(), nil).Maybe()
			if tc.expectErr == nil {
				db.On("CreateEvent", mock.MatchedBy(tc.check)).Return(database.Event{Id: "new-id"}, nil).Once()
			}

			s := newTestService(t, db)
			_, err := s.CreateEvent(context.Background(), userA, tc.params)
			if tc.expectErr != nil {
				assertKind(t, err, *tc.expectErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestListEvents_Filters(t *testing.T) {
	tcases := []struct {
		name  string
		query EventQuery
		check func(f database.EventFilter) bool
	}{
		{
			name:  "upcoming",
			query: EventQuery{RoomId: roomId, Upcoming: true},
			check: func(f database.EventFilter) bool {
				return f.Start != nil && f.Start.Equal(testNow) && f.End == nil && f.Limit == upcomingEventsLimit
			},
		},
		{
			name:  "unpaid bills",
			query: EventQuery{RoomId: roomId, Unpaid: true},
			check: func(f database.EventFilter) bool { return f.UnpaidOnly && f.Limit == 0 },
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			db := &database.MockRepository{}
			defer db.AssertExpectations(t)
			db.On("IsRoomMember", roomId, userA).Return(true, nil).Once()
			db.On("ListEvents", mock.MatchedBy(func(f database.EventFilter) bool {
				return f.RoomId == roomId && tc.check(f)
			})).Return([]database.Event{{Id: "ev1"}}, nil).Once()

			s := newTestService(t, db)
			events, err := s.ListEvents(context.Background(), userA, tc.query)
			assert.NoError(t, err)
			assert.Len(t, events, 1)
			assert.NotNil(t, events[0].Attendees, "expected attendees to serialize as a list")
		})
	}
}

func TestMarkPaid(t *testing.T) {
	amount := dec("50")

	tcases := []struct {
		name      string
		event     database.Event
		getErr    error
		expectErr *Kind
	}{
		{
			name:  "bill is marked paid",
			event: database.Event{Id: "ev1", RoomId: roomId, Type: database.EventBill, BillAmount: &amount},
		},
		{
			name:      "non-bill reports bill not found",
			event:     database.Event{Id: "ev1", RoomId: roomId, Type: database.EventParty},
			expectErr: ptr(KindNotFound),
		},
		{
			name:      "missing event",
			getErr:    database.ErrNotFound,
			expectErr: ptr(KindNotFound),
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			db := &database.MockRepository{}
			defer db.AssertExpectations(t)
			db.On("GetEvent", "ev1").Return(tc.event, tc.getErr).Once()
			if tc.getErr == nil {
				db.On("IsRoomMember", roomId, userA).Return(true, nil).Once()
			}
			if tc.expectErr == nil {
				db.On("UpdateEvent", mock.MatchedBy(func(e database.Event) bool { return e.IsPaid })).
					Return(database.Event{Id: "ev1", Type: database.EventBill, IsPaid: true}, nil).Once()
			}

			s := newTestService(t, db)
			event, err := s.MarkPaid(context.Background(), userA, "ev1")
			if tc.expectErr != nil {
				assertKind(t, err, *tc.expectErr)
				assert.EqualError(t, err, "bill not found")
				return
			}
			assert.NoError(t, err)
			assert.True(t, event.IsPaid)
		})
	}
}

func TestUpdateEvent_KeepsPaidFlag(t *testing.T) {
	start := testNow
	amount := dec("50")

	db := &database.MockRepository{}
	defer db.AssertExpectations(t)
	db.On("GetEvent", "ev1").Return(database.Event{Id: "ev1", RoomId: roomId, Type: database.EventBill, BillAmount: &amount, IsPaid: true}, nil).Once()
	db.On("IsRoomMember", roomId, userA).Return(true, nil).Once()
	db.On("UpdateEvent", mock.MatchedBy(func(e database.Event) bool {
		return e.IsPaid && e.Title == "Electricity"
	})).Return(database.Event{Id: "ev1", IsPaid: true}, nil).Once()

	s := newTestService(t, db)
	_, err := s.UpdateEvent(context.Background(), userA, "ev1", EventParams{
		Title:      "Electricity",
		Type:       database.EventBill,
		StartDate:  &start,
		BillAmount: &amount,
	})
	assert.NoError(t, err)
}
