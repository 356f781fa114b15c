package server

import (
	"context"
	"sync"
	"time"

	"github.com/npezzotti/fairshare/internal/service"
	"github.com/npezzotti/fairshare/internal/types"
	"go.uber.org/zap"
)

const idleRoomTimeout = time.Second * 5

type exitReq struct {
	deleted bool
	// idle exits are refused while the room still has clients or pending joins
	idle bool
	done chan bool
}

type Room struct {
	id            string
	cs            *ChatServer
	svc           ChatService
	joinChan      chan *ClientMessage
	leaveChan     chan *ClientMessage
	clientMsgChan chan *ClientMessage
	deliverChan   chan types.Message
	evictChan     chan evictRequest
	clients       map[*Client]struct{}
	userMap       map[string]map[*Client]struct{}
	clientLock    sync.RWMutex
	log           *zap.Logger
	// killTimer is used to automatically unload the room when it is no longer active
	killTimer *time.Timer
	exit      chan exitReq
	done      chan struct{}
}

func newRoom(id string, cs *ChatServer) *Room {
	return &Room{
		id:            id,
		cs:            cs,
		svc:           cs.svc,
		joinChan:      make(chan *ClientMessage, 256),
		leaveChan:     make(chan *ClientMessage, 256),
		clientMsgChan: make(chan *ClientMessage, 256),
		deliverChan:   make(chan types.Message, 256),
		evictChan:     make(chan evictRequest),
		clients:       make(map[*Client]struct{}),
		userMap:       make(map[string]map[*Client]struct{}),
		log:           cs.log.With(zap.String("room_id", id)),
		exit:          make(chan exitReq),
		done:          make(chan struct{}),
	}
}

func (r *Room) start() {
	r.log.Debug("starting room")
	r.killTimer = time.NewTimer(idleRoomTimeout)
	r.killTimer.Stop()
	defer close(r.done)

	for {
		select {
		case join := <-r.joinChan:
			r.handleJoin(join)
		case leave := <-r.leaveChan:
			r.handleLeave(leave)
		case msg := <-r.clientMsgChan:
			r.handleSend(msg)
		case msg := <-r.deliverChan:
			r.handleDeliver(msg)
		case req := <-r.evictChan:
			r.handleEvict(req)
		case <-r.killTimer.C:
			r.handleRoomTimeout()
		case e := <-r.exit:
			if r.handleRoomExit(e) {
				return
			}
		}
	}
}

func (r *Room) handleRoomTimeout() {
	r.log.Debug("room timed out")
	select {
	case r.cs.unloadRoomChan <- unloadRoomRequest{roomId: r.id}:
	default:
		r.log.Warn("unload channel full, restarting kill timer")
		r.killTimer.Reset(idleRoomTimeout)
	}
}

// handleRoomExit detaches every client and reports whether the room stopped.
func (r *Room) handleRoomExit(e exitReq) bool {
	if e.idle && (r.numClients() > 0 || len(r.joinChan) > 0) {
		e.done <- false
		return false
	}

	r.log.Debug("room is exiting", zap.Bool("deleted", e.deleted))
	if e.deleted {
		r.broadcast(&ServerMessage{
			Notification: &Notification{
				RoomDeleted: &RoomDeleted{RoomId: r.id},
			},
		})

		// joins queued behind the delete would otherwise never be answered
		for len(r.joinChan) > 0 {
			join := <-r.joinChan
			join.client.queueMessage(ErrRoomNotFound(join.Id))
		}
	}

	r.clientLock.Lock()
	for c := range r.clients {
		c.delRoom(r.id)
	}
	r.clients = make(map[*Client]struct{})
	r.userMap = make(map[string]map[*Client]struct{})
	r.clientLock.Unlock()

	if e.done != nil {
		e.done <- true
	}
	return true
}

func (r *Room) handleJoin(join *ClientMessage) {
	// stop the kill timer since we have a new client
	r.killTimer.Stop()

	c := join.client
	ctx, cancel := context.WithTimeout(context.Background(), serviceTimeout)
	defer cancel()

	ok, err := r.svc.IsMember(ctx, r.id, join.UserId)
	if err != nil || !ok {
		if err != nil {
			if service.KindOf(err) == service.KindInternal {
				r.log.Error("failed to check membership", zap.String("user_id", join.UserId), zap.Error(err))
			}
			c.queueMessage(ErrFromService(join.Id, err))
		} else {
			c.queueMessage(ErrForbidden(join.Id))
		}

		// reset timer since client join failed
		if r.numClients() == 0 {
			r.killTimer.Reset(idleRoomTimeout)
		}
		return
	}

	r.addClient(c)
	c.queueMessage(NoErrOK(join.Id, map[string]string{"room_id": r.id}))
}

func (r *Room) handleLeave(leave *ClientMessage) {
	client := leave.client
	r.removeClient(client)

	if leave.Id != 0 {
		// the leave came from the client rather than a disconnect
		client.queueMessage(NoErrOK(leave.Id, map[string]string{"room_id": r.id}))
	}
}

// handleSend persists a message through the service, which re-checks the
// sender's membership. Errors go only to the sender; the stored message
// reaches the room through the relay.
func (r *Room) handleSend(msg *ClientMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), serviceTimeout)
	defer cancel()

	stored, err := r.svc.PostMessage(ctx, msg.UserId, service.PostMessageParams{
		RoomId:      r.id,
		Text:        msg.SendMessage.Text,
		RelatedType: msg.SendMessage.RelatedType,
		RelatedId:   msg.SendMessage.RelatedId,
	})
	if err != nil {
		if service.KindOf(err) == service.KindInternal {
			r.log.Error("failed to post message", zap.String("user_id", msg.UserId), zap.Error(err))
		}
		msg.client.queueMessage(ErrFromService(msg.Id, err))

		if service.KindOf(err) == service.KindForbidden {
			// the sender was removed from the room since joining
			r.removeAllClientsForUser(msg.UserId)
		}
		return
	}

	msg.client.queueMessage(NoErrOK(msg.Id, map[string]string{"message_id": stored.Id}))

	if err := r.cs.relay.Publish(ctx, stored); err != nil {
		r.log.Error("failed to publish message", zap.String("message_id", stored.Id), zap.Error(err))
	}
}

func (r *Room) handleDeliver(msg types.Message) {
	r.broadcast(&ServerMessage{ChatMessage: &msg})
	r.cs.stats.Incr(NumMessagesRelayed)
}

func (r *Room) handleEvict(req evictRequest) {
	defer close(req.done)

	r.clientLock.RLock()
	_, present := r.userMap[req.userId]
	r.clientLock.RUnlock()

	// everyone, including the departing user, learns about the departure
	r.broadcast(&ServerMessage{
		Notification: &Notification{
			MemberLeft: &MemberLeft{RoomId: r.id, UserId: req.userId},
		},
	})

	if present {
		r.removeAllClientsForUser(req.userId)
	}
}

func (r *Room) numClients() int {
	r.clientLock.RLock()
	defer r.clientLock.RUnlock()
	return len(r.clients)
}

func (r *Room) addClient(c *Client) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	r.clients[c] = struct{}{}
	if r.userMap[c.userId] == nil {
		r.userMap[c.userId] = make(map[*Client]struct{})
	}
	r.userMap[c.userId][c] = struct{}{}

	c.addRoom(r)
}

func (r *Room) getClient(c *Client) (*Client, bool) {
	r.clientLock.RLock()
	defer r.clientLock.RUnlock()

	_, ok := r.clients[c]
	if !ok {
		return nil, false
	}
	return c, true
}

func (r *Room) removeClient(c *Client) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	if _, ok := r.clients[c]; !ok {
		return
	}

	delete(r.clients, c)
	c.delRoom(r.id)

	if userClients, ok := r.userMap[c.userId]; ok {
		delete(userClients, c)
		if len(userClients) == 0 {
			delete(r.userMap, c.userId)
		}
	}

	// if the client is the last one in the room, start the kill timer
	if len(r.clients) == 0 {
		r.log.Debug("no clients left, starting kill timer")
		r.killTimer.Reset(idleRoomTimeout)
	}
}

func (r *Room) removeAllClientsForUser(userId string) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	if userClients, ok := r.userMap[userId]; ok {
		for client := range userClients {
			delete(r.clients, client)
			client.delRoom(r.id)
		}
		delete(r.userMap, userId)
	}

	if len(r.clients) == 0 {
		r.log.Debug("no clients left, starting kill timer")
		r.killTimer.Reset(idleRoomTimeout)
	}
}

func (r *Room) broadcast(msg *ServerMessage) {
	msg.Timestamp = Now()

	r.clientLock.RLock()
	defer r.clientLock.RUnlock()

	for client := range r.clients {
		if client == msg.SkipClient {
			continue
		}
		client.queueMessage(msg)
	}
}
