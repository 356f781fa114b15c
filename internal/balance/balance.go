// Package balance computes who owes whom from a room's shared expenses.
//
// Amounts are split in minor units (cents) so every result is exact: the
// balances of a room always sum to zero and do not depend on the order in
// which expenses are folded.
package balance

import (
	"slices"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits money is tracked in.
const Scale = 2

type Expense struct {
	Amount       decimal.Decimal
	PaidBy       string
	SplitBetween []string
}

// Split divides amount between participants. Each share is a whole number
// of minor units; leftover units go to the payer first and then to the other
// participants in ascending id order.
func Split(amount decimal.Decimal, payer string, participants []string) map[string]decimal.Decimal {
	ids := orderParticipants(payer, participants)
	if len(ids) == 0 {
		return map[string]decimal.Decimal{}
	}

	units := amount.Round(Scale).Shift(Scale).IntPart()
	n := int64(len(ids))
	base, rem := units/n, units%n

	shares := make(map[string]decimal.Decimal, len(ids))
	for i, id := range ids {
		u := base
		if int64(i) < rem {
			u++
		}
		shares[id] = decimal.New(u, -Scale)
	}
	return shares
}

// orderParticipants deduplicates participants and puts the payer first when
// present, followed by the rest in sorted order.
func orderParticipants(payer string, participants []string) []string {
	seen := make(map[string]struct{}, len(participants))
	rest := make([]string, 0, len(participants))
	hasPayer := false

	for _, p := range participants {
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		if p == payer {
			hasPayer = true
			continue
		}
		rest = append(rest, p)
	}
	slices.Sort(rest)

	if hasPayer {
		return append([]string{payer}, rest...)
	}
	return rest
}

// ComputeBalances folds expenses into a net balance per user. Positive means
// the user is owed money. Every id in users appears in the result, starting
// at zero; participants missing from users are still accounted for so the
// total stays zero. Expenses without a payer, participants or a positive
// amount are ignored.
func ComputeBalances(expenses []Expense, users []string) map[string]decimal.Decimal {
	balances := make(map[string]decimal.Decimal, len(users))
	for _, u := range users {
		balances[u] = decimal.Zero
	}

	for _, exp := range expenses {
		if exp.PaidBy == "" || len(exp.SplitBetween) == 0 || !exp.Amount.IsPositive() {
			continue
		}

		if _, ok := balances[exp.PaidBy]; !ok {
			balances[exp.PaidBy] = decimal.Zero
		}

		for id, share := range Split(exp.Amount, exp.PaidBy, exp.SplitBetween) {
			if _, ok := balances[id]; !ok {
				balances[id] = decimal.Zero
			}
			if id == exp.PaidBy {
				continue
			}
			balances[id] = balances[id].Sub(share)
			balances[exp.PaidBy] = balances[exp.PaidBy].Add(share)
		}
	}

	return balances
}
