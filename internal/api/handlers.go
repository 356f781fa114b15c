package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/npezzotti/fairshare/internal/service"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

type UpdateProfileRequest struct {
	DisplayName string `json:"display_name"`
	Bio         string `json:"bio"`
	AvatarURL   string `json:"avatar_url"`
}

func (a *App) writeJson(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.log.Error("json encode", zap.Error(err))
	}
}

// writeError converts err into an error response. Internal errors are
// logged with their cause and answered with a generic message.
func (a *App) writeError(w http.ResponseWriter, r *http.Request, err error) {
	errResp := errorFromService(err)
	if errResp.StatusCode >= http.StatusInternalServerError {
		a.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	a.writeJson(w, errResp.StatusCode, errResp)
}

func (a *App) decodeJson(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if err == nil {
		return true
	}

	errResp := NewBadRequestError()
	if errors.Is(err, io.EOF) {
		errResp.Message = "request body is required"
	} else {
		errResp.Message = "invalid request body"
	}
	a.writeJson(w, errResp.StatusCode, errResp)
	return false
}

// requireUserId returns the caller set by authMiddleware.
func (a *App) requireUserId(w http.ResponseWriter, r *http.Request) (string, bool) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		a.writeJson(w, errResp.StatusCode, errResp)
	}
	return userId, ok
}

// queryTime parses an optional RFC 3339 query parameter.
func queryTime(r *http.Request, name string) (*time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func queryBool(r *http.Request, name string) (bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}

func (a *App) badQuery(w http.ResponseWriter, name string) {
	errResp := NewBadRequestError()
	errResp.Message = "invalid query parameter"
	errResp.Fields = []service.FieldError{{Field: name, Message: "is invalid"}}
	a.writeJson(w, errResp.StatusCode, errResp)
}

func (a *App) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Ping(r.Context()); err != nil {
		a.log.Error("health check failed", zap.Error(err))
		errResp := NewInternalServerError(err)
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (a *App) getProfile(w http.ResponseWriter, r *http.Request) {
	userId, ok := a.requireUserId(w, r)
	if !ok {
		return
	}

	user, err := a.svc.GetProfile(r.Context(), userId)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.writeJson(w, http.StatusOK, user)
}

func (a *App) updateProfile(w http.ResponseWriter, r *http.Request) {
	userId, ok := a.requireUserId(w, r)
	if !ok {
		return
	}

	var req UpdateProfileRequest
	if !a.decodeJson(w, r, &req) {
		return
	}

	user, err := a.svc.UpdateProfile(r.Context(), userId, service.ProfileParams{
		DisplayName: req.DisplayName,
		Bio:         req.Bio,
		AvatarURL:   req.AvatarURL,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.writeJson(w, http.StatusOK, user)
}
