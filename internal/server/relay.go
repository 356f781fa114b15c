package server

import (
	"context"
	"errors"
	"sync"

	"github.com/npezzotti/fairshare/internal/types"
	"go.uber.org/zap"
)

var ErrRelayClosed = errors.New("relay closed")

// Relay carries persisted chat messages to every process that may hold
// connections for the message's room. Handlers registered with Subscribe
// receive each published message once.
type Relay interface {
	Publish(ctx context.Context, msg types.Message) error
	Subscribe(handler func(types.Message))
	Close()
}

// LocalRelay delivers messages to handlers in the same process.
type LocalRelay struct {
	log       *zap.Logger
	msgs      chan types.Message
	handlers  []func(types.Message)
	lock      sync.RWMutex
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func NewLocalRelay(logger *zap.Logger, size int) *LocalRelay {
	r := &LocalRelay{
		log:  logger,
		msgs: make(chan types.Message, size),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *LocalRelay) Publish(ctx context.Context, msg types.Message) error {
	select {
	case <-r.quit:
		return ErrRelayClosed
	default:
	}

	select {
	case r.msgs <- msg:
		return nil
	case <-r.quit:
		return ErrRelayClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *LocalRelay) Subscribe(handler func(types.Message)) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.handlers = append(r.handlers, handler)
}

// Close stops delivery. Messages still buffered are dropped.
func (r *LocalRelay) Close() {
	r.closeOnce.Do(func() {
		close(r.quit)
	})
	<-r.done
}

func (r *LocalRelay) run() {
	defer close(r.done)

	for {
		select {
		case msg := <-r.msgs:
			r.lock.RLock()
			handlers := r.handlers
			r.lock.RUnlock()

			if len(handlers) == 0 {
				r.log.Debug("no relay subscribers, dropping message", zap.String("room_id", msg.RoomId))
				continue
			}
			for _, h := range handlers {
				h(msg)
			}
		case <-r.quit:
			return
		}
	}
}
