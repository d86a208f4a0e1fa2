package accounts

import (
	"context"
	"errors"
	"strings"
)

// CreateInput groups fields required to add an account.
type CreateInput struct {
	Code     string
	Name     string
	Type     AccountType
	SubType  *SubType
	IsGroup  bool
	ParentID *int64
}

// Validate ensures create input is coherent.
func (in CreateInput) Validate() error {
	if strings.TrimSpace(in.Code) == "" {
		return errors.New("ledger: account code required")
	}
	if strings.TrimSpace(in.Name) == "" {
		return errors.New("ledger: account name required")
	}
	switch in.Type {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
	default:
		return errors.New("ledger: unknown account type")
	}
	if in.SubType != nil {
		switch *in.SubType {
		case SubTypeCurrent, SubTypeNonCurrent:
		default:
			return errors.New("ledger: unknown account sub type")
		}
	}
	return nil
}

// Service coordinates chart of accounts management.
type Service struct {
	repo Repository
}

// NewService builds Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context) ([]Account, error) {
	return s.repo.List(ctx)
}

func (s *Service) Get(ctx context.Context, id int64) (Account, error) {
	return s.repo.GetByID(ctx, id)
}

// Tree loads active accounts and returns the resolved forest.
func (s *Service) Tree(ctx context.Context) ([]*Node, error) {
	accounts, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	return BuildTree(accounts), nil
}

// Create validates the input and inserts a new account. When a parent is
// supplied it must exist and be a group account.
func (s *Service) Create(ctx context.Context, in CreateInput) (Account, error) {
	if err := in.Validate(); err != nil {
		return Account{}, err
	}
	if in.ParentID != nil {
		parent, err := s.repo.GetByID(ctx, *in.ParentID)
		if err != nil {
			return Account{}, err
		}
		if !parent.IsGroup {
			return Account{}, errors.New("ledger: parent must be a group account")
		}
	}
	return s.repo.Insert(ctx, in)
}

// Remove tombstones an account that carries journal history and hard deletes
// an untouched one.
func (s *Service) Remove(ctx context.Context, id int64) error {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return err
	}
	used, err := s.repo.HasJournalLines(ctx, id)
	if err != nil {
		return err
	}
	if used {
		return s.repo.Deactivate(ctx, id)
	}
	return s.repo.Delete(ctx, id)
}
