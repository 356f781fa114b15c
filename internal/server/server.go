package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/npezzotti/fairshare/internal/service"
	"github.com/npezzotti/fairshare/internal/stats"
	"github.com/npezzotti/fairshare/internal/types"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	NumActiveClients   = "NumActiveClients"
	NumActiveRooms     = "NumActiveRooms"
	NumMessagesRelayed = "NumMessagesRelayed"

	// serviceTimeout bounds each membership check or message write made on
	// behalf of a socket.
	serviceTimeout = 5 * time.Second
)

// ChatService is the part of the service layer the chat server relies on.
type ChatService interface {
	IsMember(ctx context.Context, roomId, userId string) (bool, error)
	PostMessage(ctx context.Context, senderId string, params service.PostMessageParams) (types.Message, error)
}

type unloadRoomRequest struct {
	roomId  string
	deleted bool
}

type evictRequest struct {
	userId string
	done   chan struct{}
}

type stopRequest struct {
	done chan struct{}
}

// Limits controls how fast a single user may send chat messages across all
// of their connections.
type Limits struct {
	SendRate  rate.Limit
	SendBurst int
}

type ChatServer struct {
	log            *zap.Logger
	svc            ChatService
	relay          Relay
	stats          stats.StatsProvider
	limits         Limits
	clients        map[*Client]struct{}
	userMap        map[string]map[*Client]struct{}
	limiters       map[string]*rate.Limiter
	clientsLock    sync.RWMutex
	roomsMap       sync.Map
	joinChan       chan *ClientMessage
	unloadRoomChan chan unloadRoomRequest
	stop           chan stopRequest
}

func NewChatServer(logger *zap.Logger, svc ChatService, relay Relay, su stats.StatsProvider, limits Limits) (*ChatServer, error) {
	if limits.SendRate <= 0 || limits.SendBurst <= 0 {
		return nil, fmt.Errorf("send rate and burst must be positive")
	}

	cs := &ChatServer{
		log:            logger,
		svc:            svc,
		relay:          relay,
		stats:          su,
		limits:         limits,
		clients:        make(map[*Client]struct{}),
		userMap:        make(map[string]map[*Client]struct{}),
		limiters:       make(map[string]*rate.Limiter),
		joinChan:       make(chan *ClientMessage, 256),
		unloadRoomChan: make(chan unloadRoomRequest, 256),
		stop:           make(chan stopRequest),
	}

	su.RegisterMetric(NumActiveClients)
	su.RegisterMetric(NumActiveRooms)
	su.RegisterMetric(NumMessagesRelayed)

	relay.Subscribe(cs.deliver)

	return cs, nil
}

func (cs *ChatServer) Run() {
	for {
		select {
		case join := <-cs.joinChan:
			cs.handleJoin(join)
		case req := <-cs.unloadRoomChan:
			cs.handleUnloadRoom(req)
		case req := <-cs.stop:
			cs.log.Info("shutting down rooms")
			cs.unloadAllRooms()
			cs.stopAllClients()
			close(req.done)
			return
		}
	}
}

// handleJoin routes a join request to the requested room, loading the room
// if it is not active. Membership is checked by the room.
func (cs *ChatServer) handleJoin(join *ClientMessage) {
	roomId := join.JoinRoom.RoomId

	room, ok := cs.getRoom(roomId)
	if !ok {
		room = newRoom(roomId, cs)
		cs.addRoom(roomId, room)
		go room.start()
	}

	select {
	case room.joinChan <- join:
	default:
		cs.log.Warn("join channel full", zap.String("room_id", roomId))
		join.client.queueMessage(ErrServiceUnavailable(join.Id))
	}
}

func (cs *ChatServer) handleUnloadRoom(req unloadRoomRequest) {
	room, ok := cs.getRoom(req.roomId)
	if !ok {
		return
	}

	done := make(chan bool, 1)
	room.exit <- exitReq{deleted: req.deleted, idle: !req.deleted, done: done}
	if !<-done {
		cs.log.Debug("room became active, keeping it loaded", zap.String("room_id", req.roomId))
		return
	}

	cs.removeRoom(req.roomId)
}

func (cs *ChatServer) unloadAllRooms() {
	cs.roomsMap.Range(func(key, value any) bool {
		roomId := key.(string)
		room := value.(*Room)

		cs.log.Info("shutting down room", zap.String("room_id", roomId))
		done := make(chan bool, 1)
		room.exit <- exitReq{done: done}
		<-done

		cs.removeRoom(roomId)
		return true
	})
}

func (cs *ChatServer) stopAllClients() {
	cs.clientsLock.RLock()
	defer cs.clientsLock.RUnlock()

	for c := range cs.clients {
		c.stopClient()
	}
}

func (cs *ChatServer) addRoom(roomId string, room *Room) {
	cs.roomsMap.Store(roomId, room)
	cs.stats.Incr(NumActiveRooms)
}

func (cs *ChatServer) getRoom(roomId string) (*Room, bool) {
	r, ok := cs.roomsMap.Load(roomId)
	if !ok {
		return nil, false
	}
	return r.(*Room), true
}

func (cs *ChatServer) removeRoom(roomId string) {
	if _, loaded := cs.roomsMap.LoadAndDelete(roomId); loaded {
		cs.stats.Decr(NumActiveRooms)
	}
}

// RegisterClient tracks a newly authenticated connection. Connections of the
// same user share a send rate limiter.
func (cs *ChatServer) RegisterClient(c *Client) {
	cs.addClient(c)
	cs.log.Info("client connected", zap.String("user_id", c.userId))
}

func (cs *ChatServer) DeRegisterClient(c *Client) {
	cs.removeClient(c)
	cs.log.Info("client disconnected", zap.String("user_id", c.userId))
}

func (cs *ChatServer) addClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	cs.clients[c] = struct{}{}
	if cs.userMap[c.userId] == nil {
		cs.userMap[c.userId] = make(map[*Client]struct{})
	}
	cs.userMap[c.userId][c] = struct{}{}

	limiter, ok := cs.limiters[c.userId]
	if !ok {
		limiter = rate.NewLimiter(cs.limits.SendRate, cs.limits.SendBurst)
		cs.limiters[c.userId] = limiter
	}
	c.limiter = limiter

	cs.stats.Incr(NumActiveClients)
}

func (cs *ChatServer) removeClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	if _, ok := cs.clients[c]; !ok {
		return
	}

	delete(cs.clients, c)
	if userClients, ok := cs.userMap[c.userId]; ok {
		delete(userClients, c)
		if len(userClients) == 0 {
			delete(cs.userMap, c.userId)
			delete(cs.limiters, c.userId)
		}
	}

	cs.stats.Decr(NumActiveClients)
}

func (cs *ChatServer) getClients(userId string) []*Client {
	cs.clientsLock.RLock()
	defer cs.clientsLock.RUnlock()

	clients := make([]*Client, 0, len(cs.userMap[userId]))
	for c := range cs.userMap[userId] {
		clients = append(clients, c)
	}
	return clients
}

// deliver hands a relayed message to the local room, if it is active.
func (cs *ChatServer) deliver(msg types.Message) {
	room, ok := cs.getRoom(msg.RoomId)
	if !ok {
		return
	}

	select {
	case room.deliverChan <- msg:
	default:
		cs.log.Warn("deliver channel full, dropping message",
			zap.String("room_id", msg.RoomId), zap.String("message_id", msg.Id))
	}
}

// UnloadRoom asks the server to unload an active room. When deleted is set,
// connected clients are told the room is gone.
func (cs *ChatServer) UnloadRoom(ctx context.Context, roomId string, deleted bool) error {
	if roomId == "" {
		return fmt.Errorf("roomId cannot be empty")
	}

	select {
	case cs.unloadRoomChan <- unloadRoomRequest{roomId: roomId, deleted: deleted}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EvictUser drops every connection of userId from an active room. It is a
// no-op when the room is not loaded.
func (cs *ChatServer) EvictUser(ctx context.Context, roomId, userId string) error {
	room, ok := cs.getRoom(roomId)
	if !ok {
		return nil
	}

	req := evictRequest{userId: userId, done: make(chan struct{})}
	select {
	case room.evictChan <- req:
	case <-room.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-room.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Info("received shutdown signal")

	req := stopRequest{done: make(chan struct{})}
	select {
	case cs.stop <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
