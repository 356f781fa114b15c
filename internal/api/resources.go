package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/npezzotti/fairshare/internal/service"
	"github.com/shopspring/decimal"
)

type CreateChoreRequest struct {
	RoomId     string     `json:"room_id"`
	Title      string     `json:"title"`
	AssignedTo string     `json:"assigned_to"`
	Recurrence string     `json:"recurrence"`
	DueDate    *time.Time `json:"due_date"`
}

// UpdateChoreRequest is a partial update; omitted fields are left unchanged.
type UpdateChoreRequest struct {
	Title      *string    `json:"title"`
	AssignedTo *string    `json:"assigned_to"`
	Completed  *bool      `json:"completed"`
	Recurrence *string    `json:"recurrence"`
	DueDate    *time.Time `json:"due_date"`
}

type ExpenseRequest struct {
	RoomId       string          `json:"room_id"`
	Description  string          `json:"description"`
	Amount       decimal.Decimal `json:"amount"`
	PaidBy       string          `json:"paid_by"`
	SplitBetween []string        `json:"split_between"`
	Date         *time.Time      `json:"date"`
}

type EventRequest struct {
	RoomId      string           `json:"room_id"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Type        string           `json:"type"`
	StartDate   *time.Time       `json:"start_date"`
	EndDate     *time.Time       `json:"end_date"`
	AllDay      bool             `json:"all_day"`
	Attendees   []string         `json:"attendees"`
	Location    string           `json:"location"`
	Recurrence  string           `json:"recurrence"`
	BillAmount  *decimal.Decimal `json:"bill_amount"`
}

func (req ExpenseRequest) params() service.ExpenseParams {
	return service.ExpenseParams{
		RoomId:       req.RoomId,
		Description:  req.Description,
		Amount:       req.Amount,
		PaidBy:       req.PaidBy,
		SplitBetween: req.SplitBetween,
		Date:         req.Date,
	}
}

func (req EventRequest) params() service.EventParams {
	return service.EventParams{
		RoomId:      req.RoomId,
		Title:       req.Title,
		Description: req.Description,
		Type:        req.Type,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		AllDay:      req.AllDay,
		Attendees:   req.Attendees,
		Location:    req.Location,
		Recurrence:  req.Recurrence,
		BillAmount:  req.BillAmount,
	}
}

func (a *App) createChore(w http.ResponseWriter, r *http.Request) {
	userId, ok := a.requireUserId(w, r)
	if !ok {
		return
	}

	var req CreateChoreRequest
	if !a.decodeJson(w, r, &req) {
		return
	}

	chore, err := a.svc.CreateChore(r.Context(), userId, service.CreateChoreParams{
		RoomId:     req.RoomId,
		Title:      req.Title,
		AssignedTo: req.AssignedTo,
		Recurrence: req.Recurrence,
		DueDate:    req.DueDate,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.writeJson(w, http.StatusCreated, chore)
}

func (a *App) listChores(w http.ResponseWriter, r *http.Request) {
	userId, ok := a.requireUserId(w, r)
	if !ok {
		return
	}

	chores, err := a.svc.ListChores(r.Context(), userId, r.URL.Query().Get("room_id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.writeJson(w, http.StatusOK, chores)
}

func (a *App) updateChore(w http.ResponseWriter, r *http.Request) {
	userId, ok := a.requireUserId(w, r)
	if !ok {
		return
	}

	var req UpdateChoreRequest
	if !a.decodeJson(w, r, &req) {
		return
	}

	chore, err := a.svc.UpdateChore(r.Context(), userId, chi.URLParam(r, "id"), service.UpdateChoreParams{
		Title:      req.Title,
		AssignedTo: req.AssignedTo,
		Completed:  req.Completed,
		Recurrence: req.Recurrence,
		DueDate:    req.DueDate,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.writeJson(w, http.StatusOK, chore)
}

func (a *App) deleteChore(w http.ResponseWriter, r *http.Request) {
	userId, ok := a.requireUserId(w, r)
	if !ok {
		return
	}

	if err := a.svc.DeleteChore(r.Context(), userId, chi.URLParam(r, "id")); err != nil {
		a.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *App) createExpense(w http.ResponseWriter, r *http.Request) {
	userId, ok := a.requireUserId(w, r)
	if !ok {
		return
	}

	var req ExpenseRequest
	if !a.decodeJson(w, r, &req) {
		return
	}

	expense, err := a.svc.CreateExpense(r.Context(), userId, req.params())
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.writeJson(w, http.StatusCreated, expense)
}

func (a *App) listExpenses(w http.ResponseWriter, r *http.Request) {
	userId, ok := a.requireUserId(w, r)
	if !ok {
		return
	}

	expenses, err := a.svc.ListExpenses(r.Context(), userId, r.URL.Query().Get("room_id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.writeJson(w, http.StatusOK, expenses)
}

func (a *App) updateExpense(w http.ResponseWriter, r *http.Request) {
	userId, ok := a.requireUserId(w, r)
	if !ok {
		return
	}

	var req ExpenseRequest
	if !a.decodeJson(w, r, &req) {
		return
	}

	expense, err := a.svc.UpdateExpense(r.Context(), userId, chi.URLParam(r, "id"), req.params())
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.writeJson(w, http.StatusOK, expense)
}

func (a *App) deleteExpense(w http.ResponseWriter, r *http.Request) {
	userId, ok := a.requireUserId(w, r)
	if !ok {
		return
	}

	if err := a.svc.DeleteExpense(r.Context(), userId, chi.URLParam(r, "id")); err != nil {
		a.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *App) balanceSummary(w http.ResponseWriter, r *http.Request) {
	userId, ok := a.requireUserId(w, r)
	if !ok {
		return
	}

	summary, err := a.svc.BalanceSummary(r.Context(), userId, r.URL.Query().Get("room_id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.writeJson(w, http.StatusOK, summary)
}

func (a *App) createEvent(w http.ResponseWriter, r *http.Request) {
	userId, ok := a.requireUserId(w, r)
	if !ok {
		return
	}

	var req EventRequest
	if !a.decodeJson(w, r, &req) {
		return
	}

	event, err := a.svc.CreateEvent(r.Context(), userId, req.params())
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.writeJson(w, http.StatusCreated, event)
}

func (a *App) listEvents(w http.ResponseWriter, r *http.Request) {
	userId, ok := a.requireUserId(w, r)
	if !ok {
		return
	}

	q := service.EventQuery{RoomId: r.URL.Query().Get("room_id")}

	var err error
	if q.Start, err = queryTime(r, "start"); err != nil {
		a.badQuery(w, "start")
		return
	}
	if q.End, err = queryTime(r, "end"); err != nil {
		a.badQuery(w, "end")
		return
	}
	if q.Upcoming, err = queryBool(r, "upcoming"); err != nil {
		a.badQuery(w, "upcoming")
		return
	}
	if q.Unpaid, err = queryBool(r, "unpaid"); err != nil {
		a.badQuery(w, "unpaid")
		return
	}

	events, err := a.svc.ListEvents(r.Context(), userId, q)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.writeJson(w, http.StatusOK, events)
}

func (a *App) updateEvent(w http.ResponseWriter, r *http.Request) {
	userId, ok := a.requireUserId(w, r)
	if !ok {
		return
	}

	var req EventRequest
	if !a.decodeJson(w, r, &req) {
		return
	}

	event, err := a.svc.UpdateEvent(r.Context(), userId, chi.URLParam(r, "id"), req.params())
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.writeJson(w, http.StatusOK, event)
}

func (a *App) markEventPaid(w http.ResponseWriter, r *http.Request) {
	userId, ok := a.requireUserId(w, r)
	if !ok {
		return
	}

	event, err := a.svc.MarkPaid(r.Context(), userId, chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.writeJson(w, http.StatusOK, event)
}

func (a *App) deleteEvent(w http.ResponseWriter, r *http.Request) {
	userId, ok := a.requireUserId(w, r)
	if !ok {
		return
	}

	if err := a.svc.DeleteEvent(r.Context(), userId, chi.URLParam(r, "id")); err != nil {
		a.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
