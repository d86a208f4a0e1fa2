package accounts

import "time"

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// Nature describes whether increases are recorded as debits or credits.
type Nature string

const (
	NatureDebit  Nature = "DEBIT"
	NatureCredit Nature = "CREDIT"
)

// Nature returns the debit/credit convention for the account type.
func (t AccountType) Nature() Nature {
	switch t {
	case AccountTypeAsset, AccountTypeExpense:
		return NatureDebit
	default:
		return NatureCredit
	}
}

// SubType refines balance sheet classification.
type SubType string

const (
	SubTypeCurrent    SubType = "CURRENT"
	SubTypeNonCurrent SubType = "NON_CURRENT"
)

// Account models a chart of accounts node. Balances are always derived from
// journal lines, never stored on the account row.
type Account struct {
	ID        int64
	Code      string
	Name      string
	Type      AccountType
	SubType   *SubType
	IsGroup   bool
	ParentID  *int64
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
