package accounts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian/internal/ledger/shared"
)

type memoryRepo struct {
	accounts map[int64]Account
	usage    map[int64]bool
	nextID   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{accounts: make(map[int64]Account), usage: make(map[int64]bool)}
}

func (r *memoryRepo) List(ctx context.Context) ([]Account, error) {
	var out []Account
	for _, a := range r.accounts {
		if a.IsActive {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memoryRepo) GetByID(ctx context.Context, id int64) (Account, error) {
	a, ok := r.accounts[id]
	if !ok {
		return Account{}, shared.ErrAccountNotFound
	}
	return a, nil
}

func (r *memoryRepo) GetByCode(ctx context.Context, code string) (Account, error) {
	for _, a := range r.accounts {
		if a.Code == code {
			return a, nil
		}
	}
	return Account{}, shared.ErrAccountNotFound
}

func (r *memoryRepo) Insert(ctx context.Context, in CreateInput) (Account, error) {
	for _, a := range r.accounts {
		if a.Code == in.Code {
			return Account{}, ErrDuplicateCode
		}
	}
	r.nextID++
	a := Account{ID: r.nextID, Code: in.Code, Name: in.Name, Type: in.Type, SubType: in.SubType, IsGroup: in.IsGroup, ParentID: in.ParentID, IsActive: true}
	r.accounts[a.ID] = a
	return a, nil
}

func (r *memoryRepo) HasJournalLines(ctx context.Context, id int64) (bool, error) {
	return r.usage[id], nil
}

func (r *memoryRepo) Deactivate(ctx context.Context, id int64) error {
	a, ok := r.accounts[id]
	if !ok {
		return shared.ErrAccountNotFound
	}
	a.IsActive = false
	r.accounts[id] = a
	return nil
}

func (r *memoryRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := r.accounts[id]; !ok {
		return shared.ErrAccountNotFound
	}
	delete(r.accounts, id)
	return nil
}

func TestCreateRejectsLeafParent(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	leaf, err := svc.Create(ctx, CreateInput{Code: "1.1", Name: "Cash", Type: AccountTypeAsset})
	require.NoError(t, err)

	_, err = svc.Create(ctx, CreateInput{Code: "1.1.1", Name: "Petty Cash", Type: AccountTypeAsset, ParentID: &leaf.ID})
	require.Error(t, err)
}

func TestCreateDuplicateCode(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{Code: "4.1", Name: "Sales", Type: AccountTypeRevenue})
	require.NoError(t, err)

	_, err = svc.Create(ctx, CreateInput{Code: "4.1", Name: "Sales Again", Type: AccountTypeRevenue})
	require.ErrorIs(t, err, ErrDuplicateCode)
}

func TestRemoveSoftDeletesUsedAccount(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	used, err := svc.Create(ctx, CreateInput{Code: "1.1", Name: "Cash", Type: AccountTypeAsset})
	require.NoError(t, err)
	untouched, err := svc.Create(ctx, CreateInput{Code: "1.2", Name: "Bank", Type: AccountTypeAsset})
	require.NoError(t, err)
	repo.usage[used.ID] = true

	require.NoError(t, svc.Remove(ctx, used.ID))
	tombstoned, err := repo.GetByID(ctx, used.ID)
	require.NoError(t, err)
	require.False(t, tombstoned.IsActive)

	require.NoError(t, svc.Remove(ctx, untouched.ID))
	_, err = repo.GetByID(ctx, untouched.ID)
	require.ErrorIs(t, err, shared.ErrAccountNotFound)
}
