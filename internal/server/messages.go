package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/npezzotti/fairshare/internal/service"
	"github.com/npezzotti/fairshare/internal/types"
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type ClientMessage struct {
	BaseMessage
	JoinRoom    *JoinRoom    `json:"join_room,omitempty"`
	SendMessage *SendMessage `json:"send_message,omitempty"`
	LeaveRoom   *LeaveRoom   `json:"leave_room,omitempty"`
	UserId      string       `json:"-"`
	client      *Client      `json:"-"`
}

type JoinRoom struct {
	RoomId string `json:"room_id"`
}

type SendMessage struct {
	RoomId      string `json:"room_id"`
	Text        string `json:"text"`
	RelatedType string `json:"related_type,omitempty"`
	RelatedId   string `json:"related_id,omitempty"`
}

type LeaveRoom struct {
	RoomId string `json:"room_id"`
}

type ServerMessage struct {
	BaseMessage
	Response     *Response      `json:"response,omitempty"`
	ChatMessage  *types.Message `json:"chat_message,omitempty"`
	Notification *Notification  `json:"notification,omitempty"`
	SkipClient   *Client        `json:"-"`
}

type Response struct {
	ResponseCode int    `json:"response_code"`
	Error        string `json:"error,omitempty"`
	Data         any    `json:"data,omitempty"`
}

type Notification struct {
	RoomDeleted *RoomDeleted `json:"room_deleted,omitempty"`
	MemberLeft  *MemberLeft  `json:"member_left,omitempty"`
}

type RoomDeleted struct {
	RoomId string `json:"room_id"`
}

// MemberLeft is sent to a room when a member leaves it for good. The
// departing user's own connections receive it before they are dropped.
type MemberLeft struct {
	RoomId string `json:"room_id"`
	UserId string `json:"user_id"`
}

func response(id, code int, errMsg string, data any) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: code,
			Error:        errMsg,
			Data:         data,
		},
	}
}

func NoErrOK(id int, data any) *ServerMessage {
	return response(id, http.StatusOK, "", data)
}

func ErrRoomNotFound(id int) *ServerMessage {
	return response(id, http.StatusNotFound, "room not found", nil)
}

func ErrRoomNotJoined(id int) *ServerMessage {
	return response(id, http.StatusNotFound, "room not joined", nil)
}

func ErrForbidden(id int) *ServerMessage {
	return response(id, http.StatusForbidden, "not a member of this room", nil)
}

func ErrInternalError(id int) *ServerMessage {
	return response(id, http.StatusInternalServerError, "internal server error", nil)
}

func ErrServiceUnavailable(id int) *ServerMessage {
	return response(id, http.StatusServiceUnavailable, "service unavailable", nil)
}

func ErrTooManyRequests(id int) *ServerMessage {
	return response(id, http.StatusTooManyRequests, "too many messages", nil)
}

func ErrInvalidMessage(id int) *ServerMessage {
	msg := response(0, http.StatusBadRequest, "invalid message format", nil)
	if id > 0 {
		msg.Id = id
	}
	return msg
}

// ErrFromService converts an error returned by the service layer into a
// response for the originating client. Internal errors are not exposed.
func ErrFromService(id int, err error) *ServerMessage {
	var serr *service.Error
	if !errors.As(err, &serr) {
		return ErrInternalError(id)
	}

	switch serr.Kind {
	case service.KindInvalidInput:
		return response(id, http.StatusBadRequest, serr.Message, nil)
	case service.KindUnauthenticated:
		return response(id, http.StatusUnauthorized, serr.Message, nil)
	case service.KindForbidden:
		return response(id, http.StatusForbidden, serr.Message, nil)
	case service.KindNotFound:
		return response(id, http.StatusNotFound, serr.Message, nil)
	case service.KindConflict:
		return response(id, http.StatusConflict, serr.Message, nil)
	default:
		return ErrInternalError(id)
	}
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
