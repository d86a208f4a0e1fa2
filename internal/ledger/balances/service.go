package balances

import (
	"context"
	"time"

	"github.com/meridian-erp/meridian/internal/ledger/accounts"
)

// AccountDirectory exposes the chart of accounts lookups the aggregator needs.
type AccountDirectory interface {
	List(ctx context.Context) ([]accounts.Account, error)
	GetByID(ctx context.Context, id int64) (accounts.Account, error)
}

// Service recomputes derived balances on demand from the posted entry set.
type Service struct {
	repo Repository
	dir  AccountDirectory
}

// NewService builds Service.
func NewService(repo Repository, dir AccountDirectory) *Service {
	return &Service{repo: repo, dir: dir}
}

func signed(account accounts.Account, total AccountTotal) float64 {
	if account.Type.Nature() == accounts.NatureDebit {
		return total.Debit - total.Credit
	}
	return total.Credit - total.Debit
}

// BalanceAsOf returns the signed balance for the account including entries
// dated exactly on the boundary. Group accounts aggregate their descendant
// leaves through the tree.
func (s *Service) BalanceAsOf(ctx context.Context, accountID int64, asOf time.Time) (float64, error) {
	account, err := s.dir.GetByID(ctx, accountID)
	if err != nil {
		return 0, err
	}
	if !account.IsGroup {
		total, err := s.repo.TotalsForAccount(ctx, accountID, nil, &asOf)
		if err != nil {
			return 0, err
		}
		return signed(account, total), nil
	}
	forest, err := s.treeWithBalances(ctx, func(ctx context.Context) (map[int64]AccountTotal, error) {
		return s.repo.TotalsThrough(ctx, asOf)
	})
	if err != nil {
		return 0, err
	}
	for _, node := range accounts.Flatten(forest) {
		if node.Account.ID == accountID {
			return node.Balance, nil
		}
	}
	return 0, nil
}

// BalanceInRange returns the signed balance for entries dated within
// [start, end], both boundaries inclusive.
func (s *Service) BalanceInRange(ctx context.Context, accountID int64, start, end time.Time) (float64, error) {
	account, err := s.dir.GetByID(ctx, accountID)
	if err != nil {
		return 0, err
	}
	if !account.IsGroup {
		total, err := s.repo.TotalsForAccount(ctx, accountID, &start, &end)
		if err != nil {
			return 0, err
		}
		return signed(account, total), nil
	}
	forest, err := s.treeWithBalances(ctx, func(ctx context.Context) (map[int64]AccountTotal, error) {
		return s.repo.TotalsBetween(ctx, start, end)
	})
	if err != nil {
		return 0, err
	}
	for _, node := range accounts.Flatten(forest) {
		if node.Account.ID == accountID {
			return node.Balance, nil
		}
	}
	return 0, nil
}

// TreeBalances returns the account forest with signed balances as of the
// given date, rolled up into group accounts.
func (s *Service) TreeBalances(ctx context.Context, asOf time.Time) ([]*accounts.Node, error) {
	return s.treeWithBalances(ctx, func(ctx context.Context) (map[int64]AccountTotal, error) {
		return s.repo.TotalsThrough(ctx, asOf)
	})
}

func (s *Service) treeWithBalances(ctx context.Context, load func(context.Context) (map[int64]AccountTotal, error)) ([]*accounts.Node, error) {
	chart, err := s.dir.List(ctx)
	if err != nil {
		return nil, err
	}
	totals, err := load(ctx)
	if err != nil {
		return nil, err
	}
	leaf := make(map[int64]float64, len(totals))
	for _, account := range chart {
		if account.IsGroup {
			continue
		}
		if total, ok := totals[account.ID]; ok {
			leaf[account.ID] = signed(account, total)
		}
	}
	forest := accounts.BuildTree(chart)
	accounts.ComputeGroupBalances(forest, leaf)
	return forest, nil
}

// TrialBalance builds opening/movement/closing rows for every leaf account
// over [start, end]. Amounts use the debit-positive convention.
func (s *Service) TrialBalance(ctx context.Context, start, end time.Time) (TrialBalance, error) {
	chart, err := s.dir.List(ctx)
	if err != nil {
		return TrialBalance{}, err
	}
	opening, err := s.repo.TotalsThrough(ctx, start.AddDate(0, 0, -1))
	if err != nil {
		return TrialBalance{}, err
	}
	movement, err := s.repo.TotalsBetween(ctx, start, end)
	if err != nil {
		return TrialBalance{}, err
	}
	rows := make([]AccountBalance, 0, len(chart))
	for _, account := range chart {
		if account.IsGroup {
			continue
		}
		open := opening[account.ID]
		move := movement[account.ID]
		if open.Debit == 0 && open.Credit == 0 && move.Debit == 0 && move.Credit == 0 {
			continue
		}
		rows = append(rows, AccountBalance{
			Code:    account.Code,
			Name:    account.Name,
			Type:    string(account.Type),
			Opening: open.Debit - open.Credit,
			Debit:   move.Debit,
			Credit:  move.Credit,
		})
	}
	return BuildTrialBalance(rows), nil
}
