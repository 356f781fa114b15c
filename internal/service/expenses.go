package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/npezzotti/fairshare/internal/balance"
	"github.com/npezzotti/fairshare/internal/database"
	"github.com/npezzotti/fairshare/internal/types"
	"github.com/shopspring/decimal"
)

const maxDescriptionLength = 200

var maxExpenseAmount = decimal.NewFromInt(1_000_000)

type ExpenseParams struct {
	RoomId       string
	Description  string
	Amount       decimal.Decimal
	PaidBy       string
	SplitBetween []string
	Date         *time.Time
}

// validateExpense normalizes p and checks it against the room's members.
// The payer defaults to the caller and is always part of the split.
func (s *Service) validateExpense(ctx context.Context, userId, roomId string, p *ExpenseParams) error {
	p.Description = strings.TrimSpace(p.Description)
	p.PaidBy = strings.TrimSpace(p.PaidBy)
	if p.PaidBy == "" {
		p.PaidBy = userId
	}
	requested := dedupe(p.SplitBetween)

	v := &validator{}
	v.check(p.Description != "", "description", "is required")
	v.check(length(p.Description) <= maxDescriptionLength, "description", fmt.Sprintf("must be at most %d characters", maxDescriptionLength))
	v.check(p.Amount.IsPositive(), "amount", "must be greater than zero")
	v.check(p.Amount.LessThanOrEqual(maxExpenseAmount), "amount", "must be at most 1000000")
	v.check(p.Amount.Equal(p.Amount.Round(balance.Scale)), "amount", "must have at most 2 decimal places")
	v.check(len(requested) > 0, "split_between", "is required")
	if err := v.err(); err != nil {
		return err
	}

	p.SplitBetween = dedupe(append([]string{p.PaidBy}, requested...))

	room, err := s.getRoom(ctx, roomId)
	if err != nil {
		return err
	}
	if !containsAll(room.Members, []string{p.PaidBy}) {
		return invalid(field("paid_by", "must be a member of the room"))
	}
	if !containsAll(room.Members, p.SplitBetween) {
		return invalid(field("split_between", "must only contain members of the room"))
	}

	return nil
}

func (s *Service) CreateExpense(ctx context.Context, userId string, params ExpenseParams) (types.Expense, error) {
	roomId, err := s.scopeRoom(ctx, userId, params.RoomId)
	if err != nil {
		return types.Expense{}, err
	}

	if err := s.validateExpense(ctx, userId, roomId, &params); err != nil {
		return types.Expense{}, err
	}

	now := s.now()
	date := now
	if params.Date != nil {
		date = params.Date.UTC()
	}

	expense, err := s.db.CreateExpense(ctx, database.Expense{
		Id:           s.newId(),
		RoomId:       roomId,
		Description:  params.Description,
		Amount:       params.Amount,
		PaidBy:       params.PaidBy,
		SplitBetween: params.SplitBetween,
		Date:         date,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return types.Expense{}, fmt.Errorf("create expense: %w", err)
	}

	return toExpenseView(expense), nil
}

func (s *Service) ListExpenses(ctx context.Context, userId, roomId string) ([]types.Expense, error) {
	roomId, err := s.scopeRoom(ctx, userId, roomId)
	if err != nil {
		return nil, err
	}

	expenses, err := s.db.ListExpenses(ctx, roomId)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}

	views := make([]types.Expense, 0, len(expenses))
	for _, e := range expenses {
		views = append(views, toExpenseView(e))
	}
	return views, nil
}

func (s *Service) getExpense(ctx context.Context, userId, id string) (database.Expense, error) {
	expense, err := s.db.GetExpense(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return database.Expense{}, notFound("expense")
	}
	if err != nil {
		return database.Expense{}, fmt.Errorf("get expense: %w", err)
	}

	roomId, err := s.scopeRoom(ctx, userId, expense.RoomId)
	if err != nil {
		return database.Expense{}, err
	}
	expense.RoomId = roomId

	return expense, nil
}

// UpdateExpense replaces an expense's editable fields.
func (s *Service) UpdateExpense(ctx context.Context, userId, id string, params ExpenseParams) (types.Expense, error) {
	expense, err := s.getExpense(ctx, userId, id)
	if err != nil {
		return types.Expense{}, err
	}

	if err := s.validateExpense(ctx, userId, expense.RoomId, &params); err != nil {
		return types.Expense{}, err
	}

	expense.Description = params.Description
	expense.Amount = params.Amount
	expense.PaidBy = params.PaidBy
	expense.SplitBetween = params.SplitBetween
	if params.Date != nil {
		expense.Date = params.Date.UTC()
	}
	expense.UpdatedAt = s.now()

	expense, err = s.db.UpdateExpense(ctx, expense)
	if errors.Is(err, database.ErrNotFound) {
		return types.Expense{}, notFound("expense")
	}
	if err != nil {
		return types.Expense{}, fmt.Errorf("update expense: %w", err)
	}

	return toExpenseView(expense), nil
}

func (s *Service) DeleteExpense(ctx context.Context, userId, id string) error {
	if _, err := s.getExpense(ctx, userId, id); err != nil {
		return err
	}

	err := s.db.DeleteExpense(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return notFound("expense")
	}
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	return nil
}

// BalanceSummary recomputes a room's balances from its expenses and suggests
// the transfers that would settle them.
func (s *Service) BalanceSummary(ctx context.Context, userId, roomId string) (types.BalanceSummary, error) {
	roomId, err := s.scopeRoom(ctx, userId, roomId)
	if err != nil {
		return types.BalanceSummary{}, err
	}

	room, err := s.getRoom(ctx, roomId)
	if err != nil {
		return types.BalanceSummary{}, err
	}

	expenses, err := s.db.ListExpenses(ctx, roomId)
	if err != nil {
		return types.BalanceSummary{}, fmt.Errorf("list expenses: %w", err)
	}

	inputs := make([]balance.Expense, 0, len(expenses))
	for _, e := range expenses {
		inputs = append(inputs, balance.Expense{
			Amount:       e.Amount,
			PaidBy:       e.PaidBy,
			SplitBetween: e.SplitBetween,
		})
	}
	balances := balance.ComputeBalances(inputs, room.Members)

	ids := make([]string, 0, len(balances))
	for id := range balances {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	users, err := s.usersById(ctx, ids)
	if err != nil {
		return types.BalanceSummary{}, err
	}

	summary := types.BalanceSummary{
		Balances:    make([]types.Balance, 0, len(ids)),
		Settlements: []types.Settlement{},
	}
	for _, id := range ids {
		summary.Balances = append(summary.Balances, types.Balance{
			UserId:      id,
			DisplayName: users[id].DisplayName,
			Balance:     balances[id],
		})
	}
	for _, t := range balance.SuggestSettlements(balances) {
		summary.Settlements = append(summary.Settlements, types.Settlement{
			From:   t.From,
			To:     t.To,
			Amount: t.Amount,
		})
	}

	return summary, nil
}

func toExpenseView(e database.Expense) types.Expense {
	split := e.SplitBetween
	if split == nil {
		split = []string{}
	}
	return types.Expense{
		Id:           e.Id,
		RoomId:       e.RoomId,
		Description:  e.Description,
		Amount:       e.Amount,
		PaidBy:       e.PaidBy,
		SplitBetween: split,
		Date:         e.Date,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
}
