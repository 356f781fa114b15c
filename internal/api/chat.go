package api

import (
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/npezzotti/fairshare/internal/server"
	"github.com/npezzotti/fairshare/internal/service"
	"go.uber.org/zap"
)

type PostMessageRequest struct {
	Text        string `json:"text"`
	RelatedType string `json:"related_type"`
	RelatedId   string `json:"related_id"`
}

func (a *App) getMessages(w http.ResponseWriter, r *http.Request) {
	userId, ok := a.requireUserId(w, r)
	if !ok {
		return
	}

	params := service.HistoryParams{RoomId: chi.URLParam(r, "roomId")}

	before, err := queryTime(r, "before")
	if err != nil {
		a.badQuery(w, "before")
		return
	}
	if before != nil {
		params.Before = *before
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		params.Limit, err = strconv.Atoi(limitStr)
		if err != nil || params.Limit < 0 {
			a.badQuery(w, "limit")
			return
		}
	}

	messages, err := a.svc.History(r.Context(), userId, params)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.writeJson(w, http.StatusOK, messages)
}

// postMessage is the HTTP fallback for clients without a socket. The stored
// message fans out to connected clients the same way a socket send does.
func (a *App) postMessage(w http.ResponseWriter, r *http.Request) {
	userId, ok := a.requireUserId(w, r)
	if !ok {
		return
	}

	var req PostMessageRequest
	if !a.decodeJson(w, r, &req) {
		return
	}

	msg, err := a.svc.PostMessage(r.Context(), userId, service.PostMessageParams{
		RoomId:      chi.URLParam(r, "roomId"),
		Text:        req.Text,
		RelatedType: req.RelatedType,
		RelatedId:   req.RelatedId,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	if err := a.relay.Publish(r.Context(), msg); err != nil {
		a.log.Warn("failed to relay message",
			zap.String("room_id", msg.RoomId),
			zap.String("message_id", msg.Id),
			zap.Error(err),
		)
	}

	a.writeJson(w, http.StatusCreated, msg)
}

const socketHandshakeTimeout = 10 * time.Second

func (a *App) serveWs(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("access_token")
	if token == "" {
		token = bearerToken(r)
	}

	userId, ok := a.authenticate(w, r, token)
	if !ok {
		return
	}

	upgrader := websocket.Upgrader{
		HandshakeTimeout: socketHandshakeTimeout,
		CheckOrigin: func(r *http.Request) bool {
			// only allow connections from allowed origins
			origin := r.Header.Get("Origin")
			if origin == "" {
				// if no origin header, allow the request
				return true
			}

			return slices.Contains(a.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.log.Warn("error upgrading connection", zap.String("user_id", userId), zap.Error(err))
		return
	}

	client := server.NewClient(userId, conn, a.cs, a.log)

	a.cs.RegisterClient(client)
	go client.Write()
	go client.Read()
}
