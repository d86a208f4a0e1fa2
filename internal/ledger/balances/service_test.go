package balances

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian/internal/ledger/accounts"
	"github.com/meridian-erp/meridian/internal/ledger/shared"
)

type postedLine struct {
	accountID int64
	date      time.Time
	debit     float64
	credit    float64
}

type memoryRepo struct {
	lines []postedLine
}

func (r *memoryRepo) post(accountID int64, date time.Time, debit, credit float64) {
	r.lines = append(r.lines, postedLine{accountID: accountID, date: date, debit: debit, credit: credit})
}

func (r *memoryRepo) totals(match func(postedLine) bool) map[int64]AccountTotal {
	totals := make(map[int64]AccountTotal)
	for _, l := range r.lines {
		if !match(l) {
			continue
		}
		t := totals[l.accountID]
		t.AccountID = l.accountID
		t.Debit += l.debit
		t.Credit += l.credit
		totals[l.accountID] = t
	}
	return totals
}

func (r *memoryRepo) TotalsThrough(ctx context.Context, asOf time.Time) (map[int64]AccountTotal, error) {
	return r.totals(func(l postedLine) bool { return !l.date.After(asOf) }), nil
}

func (r *memoryRepo) TotalsBetween(ctx context.Context, start, end time.Time) (map[int64]AccountTotal, error) {
	return r.totals(func(l postedLine) bool { return !l.date.Before(start) && !l.date.After(end) }), nil
}

func (r *memoryRepo) TotalsForAccount(ctx context.Context, accountID int64, start, end *time.Time) (AccountTotal, error) {
	totals := r.totals(func(l postedLine) bool {
		if l.accountID != accountID {
			return false
		}
		if start != nil && l.date.Before(*start) {
			return false
		}
		if end != nil && l.date.After(*end) {
			return false
		}
		return true
	})
	return totals[accountID], nil
}

type memoryDirectory struct {
	chart []accounts.Account
}

func (d *memoryDirectory) List(ctx context.Context) ([]accounts.Account, error) {
	return d.chart, nil
}

func (d *memoryDirectory) GetByID(ctx context.Context, id int64) (accounts.Account, error) {
	for _, a := range d.chart {
		if a.ID == id {
			return a, nil
		}
	}
	return accounts.Account{}, shared.ErrAccountNotFound
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func fixtureChart() *memoryDirectory {
	parent := int64(1)
	return &memoryDirectory{chart: []accounts.Account{
		{ID: 1, Code: "11", Name: "Current Assets", Type: accounts.AccountTypeAsset, IsGroup: true, IsActive: true},
		{ID: 2, Code: "11.100", Name: "Cash", Type: accounts.AccountTypeAsset, ParentID: &parent, IsActive: true},
		{ID: 3, Code: "11.200", Name: "Bank", Type: accounts.AccountTypeAsset, ParentID: &parent, IsActive: true},
		{ID: 4, Code: "41.100", Name: "Sales", Type: accounts.AccountTypeRevenue, IsActive: true},
	}}
}

func TestBalanceAsOfSignConventions(t *testing.T) {
	repo := &memoryRepo{}
	svc := NewService(repo, fixtureChart())
	ctx := context.Background()
	day := date(2025, time.March, 10)

	// Cash sale: debit cash, credit revenue.
	repo.post(2, day, 500, 0)
	repo.post(4, day, 0, 500)

	cash, err := svc.BalanceAsOf(ctx, 2, day)
	require.NoError(t, err)
	require.InDelta(t, 500, cash, 0.001)

	sales, err := svc.BalanceAsOf(ctx, 4, day)
	require.NoError(t, err)
	require.InDelta(t, 500, sales, 0.001)
}

func TestBalanceAsOfBoundaryIsInclusive(t *testing.T) {
	repo := &memoryRepo{}
	svc := NewService(repo, fixtureChart())
	ctx := context.Background()
	day := date(2025, time.March, 10)
	repo.post(2, day, 100, 0)

	onDay, err := svc.BalanceAsOf(ctx, 2, day)
	require.NoError(t, err)
	require.InDelta(t, 100, onDay, 0.001)

	dayBefore, err := svc.BalanceAsOf(ctx, 2, day.AddDate(0, 0, -1))
	require.NoError(t, err)
	require.InDelta(t, 0, dayBefore, 0.001)
}

func TestBalanceInRangeInclusiveBothEnds(t *testing.T) {
	repo := &memoryRepo{}
	svc := NewService(repo, fixtureChart())
	ctx := context.Background()

	repo.post(2, date(2025, time.March, 1), 10, 0)
	repo.post(2, date(2025, time.March, 15), 20, 0)
	repo.post(2, date(2025, time.March, 31), 30, 0)
	repo.post(2, date(2025, time.April, 1), 40, 0)

	got, err := svc.BalanceInRange(ctx, 2, date(2025, time.March, 1), date(2025, time.March, 31))
	require.NoError(t, err)
	require.InDelta(t, 60, got, 0.001)
}

func TestGroupBalanceAggregatesLeaves(t *testing.T) {
	repo := &memoryRepo{}
	svc := NewService(repo, fixtureChart())
	ctx := context.Background()
	day := date(2025, time.March, 10)

	repo.post(2, day, 300, 0)
	repo.post(3, day, 700, 0)
	repo.post(4, day, 0, 1000)

	group, err := svc.BalanceAsOf(ctx, 1, day)
	require.NoError(t, err)
	require.InDelta(t, 1000, group, 0.001)

	forest, err := svc.TreeBalances(ctx, day)
	require.NoError(t, err)
	for _, node := range accounts.Flatten(forest) {
		if !node.Account.IsGroup {
			continue
		}
		var sum float64
		for _, child := range node.Children {
			sum += child.Balance
		}
		require.InDelta(t, sum, node.Balance, 0.001)
	}
}

func TestBalanceUnknownAccount(t *testing.T) {
	svc := NewService(&memoryRepo{}, fixtureChart())
	_, err := svc.BalanceAsOf(context.Background(), 999, date(2025, time.March, 10))
	require.ErrorIs(t, err, shared.ErrAccountNotFound)
}

func TestTrialBalanceOpeningExcludesWindow(t *testing.T) {
	repo := &memoryRepo{}
	svc := NewService(repo, fixtureChart())
	ctx := context.Background()

	// Opening activity in February, movements in March.
	repo.post(2, date(2025, time.February, 20), 1000, 0)
	repo.post(4, date(2025, time.February, 20), 0, 1000)
	repo.post(2, date(2025, time.March, 5), 250, 0)
	repo.post(4, date(2025, time.March, 5), 0, 250)

	tb, err := svc.TrialBalance(ctx, date(2025, time.March, 1), date(2025, time.March, 31))
	require.NoError(t, err)
	require.InDelta(t, tb.TotalDebit, tb.TotalCredit, 0.001)
	require.InDelta(t, 0, tb.TotalOpening, 0.001)
	require.InDelta(t, 0, tb.TotalClosing, 0.001)

	var cash *TrialBalanceAccount
	for i := range tb.Groups {
		for j := range tb.Groups[i].Accounts {
			if tb.Groups[i].Accounts[j].Code == "11.100" {
				cash = &tb.Groups[i].Accounts[j]
			}
		}
	}
	require.NotNil(t, cash)
	require.InDelta(t, 1000, cash.Opening, 0.001)
	require.InDelta(t, 250, cash.Debit, 0.001)
	require.InDelta(t, 1250, cash.Closing, 0.001)
}

func TestTrialBalanceSkipsGroupAndSilentAccounts(t *testing.T) {
	repo := &memoryRepo{}
	svc := NewService(repo, fixtureChart())
	repo.post(2, date(2025, time.March, 5), 50, 0)
	repo.post(4, date(2025, time.March, 5), 0, 50)

	tb, err := svc.TrialBalance(context.Background(), date(2025, time.March, 1), date(2025, time.March, 31))
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, grp := range tb.Groups {
		for _, acc := range grp.Accounts {
			seen[acc.Code] = true
		}
	}
	require.True(t, seen["11.100"])
	require.False(t, seen["11"], "group accounts stay out of the trial balance")
	require.False(t, seen["11.200"], "accounts without activity stay out")
}

func TestBuildTrialBalanceGroupsByCodePrefix(t *testing.T) {
	tb := BuildTrialBalance([]AccountBalance{
		{Code: "11.100", Name: "Cash", Opening: 10, Debit: 5, Credit: 0},
		{Code: "11.200", Name: "Bank", Opening: 0, Debit: 20, Credit: 5},
		{Code: "41.100", Name: "Sales", Opening: 0, Debit: 0, Credit: 20},
	})
	require.Len(t, tb.Groups, 2)
	require.Equal(t, "11", tb.Groups[0].Key)
	require.InDelta(t, 30, tb.Groups[0].Closing, 0.001)
	require.InDelta(t, 25, tb.TotalDebit, 0.001)
	require.InDelta(t, 25, tb.TotalCredit, 0.001)
}
