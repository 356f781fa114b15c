package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/fairshare/internal/service"
	"github.com/npezzotti/fairshare/internal/stats"
	"github.com/npezzotti/fairshare/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func Test_queueMessage(t *testing.T) {
	t.Run("successful queue", func(t *testing.T) {
		c := testClient(userA)

		res := c.queueMessage(&ServerMessage{})
		assert.True(t, res, "expected queueMessage to return true when channel is not full")
		assert.Len(t, c.send, 1, "expected a message to be queued")
	})

	t.Run("channel full", func(t *testing.T) {
		c := testClient(userA)
		c.send = make(chan *ServerMessage, 1)

		c.send <- &ServerMessage{} // pre-fill to simulate a slow reader
		res := c.queueMessage(&ServerMessage{})
		assert.False(t, res, "expected queueMessage to return false when channel is full")
	})
}

func Test_serializeMessage(t *testing.T) {
	message := &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        1,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: 200,
			Data:         "test data",
		},
	}

	expected := `{"id":1,"timestamp":"` + message.Timestamp.Format(time.RFC3339Nano) +
		`","response":{"response_code":200,"data":"test data"}}`

	bytes, err := serializeMessage(message)
	assert.NoError(t, err, "expected no error during serialization")
	assert.Equal(t, expected, string(bytes), "expected serialized message to match the expected format")
}

func Test_stopClient(t *testing.T) {
	c := testClient(userA)

	c.stopClient()
	c.stopClient()

	select {
	case <-c.stop:
	default:
		t.Error("expected stop channel to be closed")
	}
}

func Test_leaveAllRooms(t *testing.T) {
	rooms := []*Room{
		{id: "room1", leaveChan: make(chan *ClientMessage, 1)},
		{id: "room2", leaveChan: make(chan *ClientMessage, 1)},
	}

	c := testClient(userA)
	for _, room := range rooms {
		c.addRoom(room)
	}

	c.leaveAllRooms()

	for _, room := range rooms {
		select {
		case msg := <-room.leaveChan:
			require.NotNil(t, msg.LeaveRoom, "expected leave message")
			assert.Equal(t, room.id, msg.LeaveRoom.RoomId, "expected leave message for room %s", room.id)
			assert.Equal(t, userA, msg.UserId)
			assert.Equal(t, 0, msg.Id, "expected disconnect leaves to carry no request id")
			assert.Equal(t, c, msg.client)
		default:
			t.Errorf("expected leave message to be sent for room %s", room.id)
		}
	}
}

func Test_leaveAllRooms_exitedRoom(t *testing.T) {
	done := make(chan struct{})
	close(done)
	room := &Room{id: "gone", leaveChan: make(chan *ClientMessage), done: done}

	c := testClient(userA)
	c.addRoom(room)

	finished := make(chan struct{})
	go func() {
		c.leaveAllRooms()
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("expected leaveAllRooms not to block on an exited room")
	}
}

func Test_dispatch(t *testing.T) {
	tcases := []struct {
		name       string
		msg        *ClientMessage
		joined     bool
		limited    bool
		expectCode int
		expectJoin bool
		expectSend bool
		expectLeft bool
	}{
		{
			name:       "join",
			msg:        &ClientMessage{BaseMessage: BaseMessage{Id: 1}, JoinRoom: &JoinRoom{RoomId: " testroom "}},
			expectJoin: true,
		},
		{
			name:       "join without room",
			msg:        &ClientMessage{BaseMessage: BaseMessage{Id: 1}, JoinRoom: &JoinRoom{}},
			expectCode: http.StatusBadRequest,
		},
		{
			name:       "send to joined room",
			msg:        &ClientMessage{BaseMessage: BaseMessage{Id: 2}, SendMessage: &SendMessage{RoomId: "testroom", Text: "hi"}},
			joined:     true,
			expectSend: true,
		},
		{
			name:       "send before joining",
			msg:        &ClientMessage{BaseMessage: BaseMessage{Id: 2}, SendMessage: &SendMessage{RoomId: "testroom", Text: "hi"}},
			expectCode: http.StatusNotFound,
		},
		{
			name:       "send over the rate limit",
			msg:        &ClientMessage{BaseMessage: BaseMessage{Id: 2}, SendMessage: &SendMessage{RoomId: "testroom", Text: "hi"}},
			joined:     true,
			limited:    true,
			expectCode: http.StatusTooManyRequests,
		},
		{
			name:       "leave joined room",
			msg:        &ClientMessage{BaseMessage: BaseMessage{Id: 3}, LeaveRoom: &LeaveRoom{RoomId: "testroom"}},
			joined:     true,
			expectLeft: true,
		},
		{
			name:       "leave unknown room",
			msg:        &ClientMessage{BaseMessage: BaseMessage{Id: 3}, LeaveRoom: &LeaveRoom{RoomId: "testroom"}},
			expectCode: http.StatusNotFound,
		},
		{
			name:       "empty envelope",
			msg:        &ClientMessage{BaseMessage: BaseMessage{Id: 4}},
			expectCode: http.StatusBadRequest,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			cs := newTestChatServer(t, &mockChatService{}, &stats.MockStatsUpdater{})
			room := &Room{
				id:            "testroom",
				leaveChan:     make(chan *ClientMessage, 1),
				clientMsgChan: make(chan *ClientMessage, 1),
			}

			c := testClient(userA)
			c.chatServer = cs
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			if tc.limited {
				c.limiter = rate.NewLimiter(rate.Every(time.Hour), 1)
				c.limiter.Allow()
			}
			if tc.joined {
				c.addRoom(room)
			}

			c.dispatch(tc.msg)

			assert.Equal(t, userA, tc.msg.UserId, "expected dispatch to stamp the user id")
			assert.Equal(t, tc.expectJoin, len(cs.joinChan) == 1, "unexpected join forwarding")
			assert.Equal(t, tc.expectSend, len(room.clientMsgChan) == 1, "unexpected send forwarding")
			assert.Equal(t, tc.expectLeft, len(room.leaveChan) == 1, "unexpected leave forwarding")

			if tc.expectCode == 0 {
				assert.Len(t, c.send, 0, "expected no direct response")
				return
			}
			msg := nextMessage(t, c)
			require.NotNil(t, msg.Response)
			assert.Equal(t, tc.expectCode, msg.Response.ResponseCode)
			assert.Equal(t, tc.msg.Id, msg.Id)
		})
	}
}

func Test_joinRoom_channelFull(t *testing.T) {
	cs := newTestChatServer(t, &mockChatService{}, &stats.MockStatsUpdater{})
	cs.joinChan = make(chan *ClientMessage, 1)
	cs.joinChan <- &ClientMessage{}

	c := testClient(userA)
	c.chatServer = cs
	c.joinRoom(&ClientMessage{BaseMessage: BaseMessage{Id: 1}, JoinRoom: &JoinRoom{RoomId: "testroom"}})

	msg := nextMessage(t, c)
	require.NotNil(t, msg.Response)
	assert.Equal(t, http.StatusServiceUnavailable, msg.Response.ResponseCode, "expected response code to be 503")
}

// readServerMessage reads the next frame from a test websocket connection.
func readServerMessage(t *testing.T, conn *websocket.Conn) ServerMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg ServerMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestChat_EndToEnd(t *testing.T) {
	svc := &mockChatService{}
	svc.On("IsMember", "flat", userA).Return(true, nil)
	svc.On("IsMember", "flat", userB).Return(true, nil)
	svc.On("PostMessage", userA, service.PostMessageParams{RoomId: "flat", Text: "rent is due"}).
		Return(types.Message{Id: "m1", RoomId: "flat", Sender: types.User{Id: userA, DisplayName: "Ann"}, Text: "rent is due"}, nil)

	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything)
	su.On("Incr", mock.Anything).Maybe()
	su.On("Decr", mock.Anything).Maybe()

	// pumps may outlive the test, so they log nowhere
	logger := zap.NewNop()
	relay := NewLocalRelay(logger, 16)
	cs, err := NewChatServer(logger, svc, relay, su, Limits{SendRate: 10, SendBurst: 10})
	require.NoError(t, err)
	go cs.Run()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := NewClient(r.URL.Query().Get("user"), conn, cs, logger)
		cs.RegisterClient(c)
		go c.Write()
		go c.Read()
	}))

	dial := func(userId string) *websocket.Conn {
		url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?user=" + userId
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		return conn
	}

	ann := dial(userA)
	ben := dial(userB)
	t.Cleanup(func() {
		ann.Close()
		ben.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		assert.NoError(t, cs.Shutdown(ctx))
		relay.Close()
		srv.Close()
	})

	for _, conn := range []*websocket.Conn{ann, ben} {
		require.NoError(t, conn.WriteJSON(map[string]any{"id": 1, "join_room": map[string]string{"room_id": "flat"}}))
		ack := readServerMessage(t, conn)
		require.NotNil(t, ack.Response)
		assert.Equal(t, http.StatusOK, ack.Response.ResponseCode, "expected join to succeed")
	}

	require.NoError(t, ann.WriteJSON(map[string]any{"id": 2, "send_message": map[string]string{"room_id": "flat", "text": "rent is due"}}))

	ack := readServerMessage(t, ann)
	require.NotNil(t, ack.Response)
	assert.Equal(t, 2, ack.Id)
	assert.Equal(t, http.StatusOK, ack.Response.ResponseCode)

	for name, conn := range map[string]*websocket.Conn{"sender": ann, "roommate": ben} {
		msg := readServerMessage(t, conn)
		if assert.NotNil(t, msg.ChatMessage, "expected %s to receive the chat message", name) {
			assert.Equal(t, "rent is due", msg.ChatMessage.Text)
			assert.Equal(t, "Ann", msg.ChatMessage.Sender.DisplayName)
		}
	}

	require.NoError(t, ben.WriteMessage(websocket.TextMessage, []byte("{not json")))
	bad := readServerMessage(t, ben)
	require.NotNil(t, bad.Response)
	assert.Equal(t, http.StatusBadRequest, bad.Response.ResponseCode)
}

func TestChat_ShutdownWithConnectedClient(t *testing.T) {
	svc := &mockChatService{}
	svc.On("IsMember", "flat", userA).Return(true, nil)

	// the real updater, stopped last the way the server binary does it
	su := stats.NewStatsUpdater()
	su.Run()

	logger := zap.NewNop()
	relay := NewLocalRelay(logger, 16)
	cs, err := NewChatServer(logger, svc, relay, su, Limits{SendRate: 10, SendBurst: 10})
	require.NoError(t, err)
	go cs.Run()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := NewClient(userA, conn, cs, logger)
		cs.RegisterClient(c)
		go c.Write()
		go c.Read()
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{"id": 1, "join_room": map[string]string{"room_id": "flat"}}))
	ack := readServerMessage(t, conn)
	require.NotNil(t, ack.Response)
	require.Equal(t, http.StatusOK, ack.Response.ResponseCode)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, cs.Shutdown(ctx))
	relay.Close()
	su.Stop()

	// the client's read pump deregisters after the updater has stopped
	assert.Eventually(t, func() bool {
		cs.clientsLock.RLock()
		defer cs.clientsLock.RUnlock()
		return len(cs.clients) == 0
	}, 2*time.Second, 10*time.Millisecond, "expected the client to deregister after shutdown")
}
