package balance

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Transfer is a suggested payment that moves a debtor towards zero.
type Transfer struct {
	From   string
	To     string
	Amount decimal.Decimal
}

type party struct {
	id     string
	amount decimal.Decimal
}

// SuggestSettlements greedily matches the largest debtor with the largest
// creditor until every balance is cleared. Ties are broken by id so the
// result is deterministic. Balances are expected to sum to zero.
func SuggestSettlements(balances map[string]decimal.Decimal) []Transfer {
	var debtors, creditors []party
	for id, amt := range balances {
		switch {
		case amt.IsNegative():
			debtors = append(debtors, party{id: id, amount: amt.Neg()})
		case amt.IsPositive():
			creditors = append(creditors, party{id: id, amount: amt})
		}
	}

	byAmount := func(ps []party) {
		sort.Slice(ps, func(i, j int) bool {
			if c := ps[i].amount.Cmp(ps[j].amount); c != 0 {
				return c > 0
			}
			return ps[i].id < ps[j].id
		})
	}
	byAmount(debtors)
	byAmount(creditors)

	transfers := []Transfer{}
	i, j := 0, 0
	for i < len(debtors) && j < len(creditors) {
		amount := decimal.Min(debtors[i].amount, creditors[j].amount)

		transfers = append(transfers, Transfer{
			From:   debtors[i].id,
			To:     creditors[j].id,
			Amount: amount,
		})

		debtors[i].amount = debtors[i].amount.Sub(amount)
		creditors[j].amount = creditors[j].amount.Sub(amount)

		if debtors[i].amount.IsZero() {
			i++
		}
		if creditors[j].amount.IsZero() {
			j++
		}
	}

	return transfers
}
