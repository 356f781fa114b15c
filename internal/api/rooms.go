package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type RoomRequest struct {
	Name string `json:"name"`
}

func (a *App) createRoom(w http.ResponseWriter, r *http.Request) {
	userId, ok := a.requireUserId(w, r)
	if !ok {
		return
	}

	var req RoomRequest
	if !a.decodeJson(w, r, &req) {
		return
	}

	room, err := a.svc.CreateRoom(r.Context(), userId, req.Name)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.writeJson(w, http.StatusCreated, room)
}

func (a *App) listRooms(w http.ResponseWriter, r *http.Request) {
	userId, ok := a.requireUserId(w, r)
	if !ok {
		return
	}

	rooms, err := a.svc.ListRooms(r.Context(), userId)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.writeJson(w, http.StatusOK, rooms)
}

func (a *App) joinRoom(w http.ResponseWriter, r *http.Request) {
	userId, ok := a.requireUserId(w, r)
	if !ok {
		return
	}

	room, err := a.svc.JoinRoom(r.Context(), chi.URLParam(r, "code"), userId)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.writeJson(w, http.StatusOK, room)
}

func (a *App) getRoom(w http.ResponseWriter, r *http.Request) {
	userId, ok := a.requireUserId(w, r)
	if !ok {
		return
	}

	room, err := a.svc.GetRoom(r.Context(), chi.URLParam(r, "roomId"), userId)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.writeJson(w, http.StatusOK, room)
}

func (a *App) listMembers(w http.ResponseWriter, r *http.Request) {
	userId, ok := a.requireUserId(w, r)
	if !ok {
		return
	}

	members, err := a.svc.ListMembers(r.Context(), chi.URLParam(r, "roomId"), userId)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.writeJson(w, http.StatusOK, members)
}

func (a *App) updateRoom(w http.ResponseWriter, r *http.Request) {
	userId, ok := a.requireUserId(w, r)
	if !ok {
		return
	}

	var req RoomRequest
	if !a.decodeJson(w, r, &req) {
		return
	}

	room, err := a.svc.UpdateRoom(r.Context(), chi.URLParam(r, "roomId"), userId, req.Name)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.writeJson(w, http.StatusOK, room)
}

func (a *App) deleteRoom(w http.ResponseWriter, r *http.Request) {
	userId, ok := a.requireUserId(w, r)
	if !ok {
		return
	}

	roomId := chi.URLParam(r, "roomId")
	if err := a.svc.DeleteRoom(r.Context(), roomId, userId); err != nil {
		a.writeError(w, r, err)
		return
	}

	// connected clients are told the room is gone
	if err := a.cs.UnloadRoom(r.Context(), roomId, true); err != nil {
		a.log.Warn("failed to unload deleted room", zap.String("room_id", roomId), zap.Error(err))
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *App) leaveRoom(w http.ResponseWriter, r *http.Request) {
	userId, ok := a.requireUserId(w, r)
	if !ok {
		return
	}

	roomId := chi.URLParam(r, "roomId")
	if err := a.svc.LeaveRoom(r.Context(), roomId, userId); err != nil {
		a.writeError(w, r, err)
		return
	}

	if err := a.cs.EvictUser(r.Context(), roomId, userId); err != nil {
		a.log.Warn("failed to evict user from chat room",
			zap.String("room_id", roomId),
			zap.String("user_id", userId),
			zap.Error(err),
		)
	}

	w.WriteHeader(http.StatusNoContent)
}
