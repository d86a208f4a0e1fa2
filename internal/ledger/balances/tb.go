package balances

import (
	"sort"
	"strings"
)

// AccountBalance models a leaf account with aggregated amounts over a window.
// Opening and Closing use the debit-positive convention.
type AccountBalance struct {
	Code    string
	Name    string
	Type    string
	Opening float64
	Debit   float64
	Credit  float64
}

// Closing computes the closing balance for the account.
func (a AccountBalance) Closing() float64 {
	return a.Opening + a.Debit - a.Credit
}

// GroupKey returns a key used for grouping trial balance rows.
func (a AccountBalance) GroupKey() string {
	if idx := strings.Index(a.Code, "."); idx > 0 {
		return a.Code[:idx]
	}
	if len(a.Code) >= 2 {
		return a.Code[:2]
	}
	return a.Code
}

// TrialBalanceAccount represents a row inside a trial balance group.
type TrialBalanceAccount struct {
	Code    string  `json:"code"`
	Name    string  `json:"name"`
	Opening float64 `json:"opening"`
	Debit   float64 `json:"debit"`
	Credit  float64 `json:"credit"`
	Closing float64 `json:"closing"`
}

// TrialBalanceGroup aggregates accounts for presentation.
type TrialBalanceGroup struct {
	Key      string                `json:"key"`
	Accounts []TrialBalanceAccount `json:"accounts"`
	Opening  float64               `json:"opening"`
	Debit    float64               `json:"debit"`
	Credit   float64               `json:"credit"`
	Closing  float64               `json:"closing"`
}

// TrialBalance is the final structure rendered as JSON or CSV.
type TrialBalance struct {
	Groups       []TrialBalanceGroup `json:"groups"`
	TotalDebit   float64             `json:"totalDebit"`
	TotalCredit  float64             `json:"totalCredit"`
	TotalOpening float64             `json:"totalOpening"`
	TotalClosing float64             `json:"totalClosing"`
}

// BuildTrialBalance converts account balances into grouped trial balance data.
func BuildTrialBalance(accounts []AccountBalance) TrialBalance {
	groups := make(map[string]*TrialBalanceGroup)
	keys := make([]string, 0)
	for _, acc := range accounts {
		key := acc.GroupKey()
		grp, ok := groups[key]
		if !ok {
			grp = &TrialBalanceGroup{Key: key}
			groups[key] = grp
			keys = append(keys, key)
		}
		row := TrialBalanceAccount{
			Code:    acc.Code,
			Name:    acc.Name,
			Opening: acc.Opening,
			Debit:   acc.Debit,
			Credit:  acc.Credit,
			Closing: acc.Closing(),
		}
		grp.Accounts = append(grp.Accounts, row)
		grp.Opening += row.Opening
		grp.Debit += row.Debit
		grp.Credit += row.Credit
		grp.Closing += row.Closing
	}

	sort.Strings(keys)
	result := TrialBalance{}
	for _, key := range keys {
		grp := groups[key]
		sort.Slice(grp.Accounts, func(i, j int) bool {
			return grp.Accounts[i].Code < grp.Accounts[j].Code
		})
		result.Groups = append(result.Groups, *grp)
		result.TotalOpening += grp.Opening
		result.TotalDebit += grp.Debit
		result.TotalCredit += grp.Credit
		result.TotalClosing += grp.Closing
	}
	return result
}
