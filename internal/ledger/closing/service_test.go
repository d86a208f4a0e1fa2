package closing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian/internal/ledger/journals"
	"github.com/meridian-erp/meridian/internal/ledger/settings"
	"github.com/meridian-erp/meridian/internal/ledger/shared"
)

type memoryCloseStore struct {
	refs       map[string]bool
	pl         []PLBalance
	mappings   map[string]int64
	lastClosed time.Time

	posted     []journals.PostingInput
	postedRefs []string
}

func newMemoryStore() *memoryCloseStore {
	return &memoryCloseStore{
		refs:     make(map[string]bool),
		mappings: map[string]int64{settings.MappingRetainedEarnings: 300},
	}
}

func (m *memoryCloseStore) WithTx(ctx context.Context, fn func(context.Context, CloseTx) error) error {
	staged := *m
	staged.posted = append([]journals.PostingInput(nil), m.posted...)
	if err := fn(ctx, &staged); err != nil {
		return err
	}
	*m = staged
	return nil
}

func (m *memoryCloseStore) HasReference(ctx context.Context, reference string) (bool, error) {
	return m.refs[reference], nil
}

func (m *memoryCloseStore) LastClosedDate(ctx context.Context) (time.Time, error) {
	return m.lastClosed, nil
}

func (m *memoryCloseStore) ProfitAndLossThrough(ctx context.Context, asOf time.Time) ([]PLBalance, error) {
	return m.pl, nil
}

func (m *memoryCloseStore) MappedAccount(ctx context.Context, key string) (int64, error) {
	id, ok := m.mappings[key]
	if !ok {
		return 0, shared.ErrMappingNotFound
	}
	return id, nil
}

func (m *memoryCloseStore) PostJournal(ctx context.Context, in journals.PostingInput, reference string) (journals.JournalEntry, error) {
	if m.refs == nil {
		m.refs = make(map[string]bool)
	}
	if m.refs[reference] {
		return journals.JournalEntry{}, shared.ErrDuplicateReference
	}
	m.refs[reference] = true
	m.posted = append(m.posted, in)
	m.postedRefs = append(m.postedRefs, reference)
	return journals.JournalEntry{
		ID:        int64(len(m.posted)),
		Date:      in.Date,
		Reference: reference,
		Status:    journals.JournalStatusPosted,
	}, nil
}

func (m *memoryCloseStore) AdvanceLastClosedDate(ctx context.Context, to time.Time) error {
	m.lastClosed = to
	return nil
}

func lineFor(t *testing.T, in journals.PostingInput, accountID int64) journals.PostingLineInput {
	t.Helper()
	for _, line := range in.Lines {
		if line.AccountID == accountID {
			return line
		}
	}
	t.Fatalf("no line for account %d", accountID)
	return journals.PostingLineInput{}
}

func TestCloseYearProfitCreditsRetainedEarnings(t *testing.T) {
	store := newMemoryStore()
	// Revenue carries a credit balance, expense a debit balance.
	store.pl = []PLBalance{
		{AccountID: 40, Code: "41.100", Net: -5000},
		{AccountID: 50, Code: "61.100", Net: 3200},
	}
	svc := NewService(store, nil, nil)

	result, err := svc.CloseYear(context.Background(), CloseInput{Year: 2025, ActorID: 7})
	require.NoError(t, err)
	require.Equal(t, "CLOSE-2025", result.Entry.Reference)
	require.InDelta(t, 1800, result.NetIncome, 0.001)
	require.Equal(t, 2, result.ZeroedAccounts)

	require.Len(t, store.posted, 1)
	posted := store.posted[0]
	require.Len(t, posted.Lines, 3)
	require.InDelta(t, 5000, lineFor(t, posted, 40).Debit, 0.001)
	require.InDelta(t, 3200, lineFor(t, posted, 50).Credit, 0.001)
	require.InDelta(t, 1800, lineFor(t, posted, 300).Credit, 0.001)
	require.True(t, posted.Date.Equal(time.Date(2025, time.December, 31, 0, 0, 0, 0, time.UTC)))
}

func TestCloseYearLossDebitsRetainedEarnings(t *testing.T) {
	store := newMemoryStore()
	store.pl = []PLBalance{
		{AccountID: 40, Code: "41.100", Net: -1000},
		{AccountID: 50, Code: "61.100", Net: 2500},
	}
	svc := NewService(store, nil, nil)

	result, err := svc.CloseYear(context.Background(), CloseInput{Year: 2025})
	require.NoError(t, err)
	require.InDelta(t, -1500, result.NetIncome, 0.001)
	require.InDelta(t, 1500, lineFor(t, store.posted[0], 300).Debit, 0.001)
}

func TestCloseYearAdvancesClosedBoundary(t *testing.T) {
	store := newMemoryStore()
	store.pl = []PLBalance{
		{AccountID: 40, Code: "41.100", Net: -100},
	}
	svc := NewService(store, nil, nil)

	_, err := svc.CloseYear(context.Background(), CloseInput{Year: 2025})
	require.NoError(t, err)
	require.True(t, store.lastClosed.Equal(time.Date(2025, time.December, 31, 0, 0, 0, 0, time.UTC)))
}

func TestCloseYearNothingToClose(t *testing.T) {
	store := newMemoryStore()
	store.pl = []PLBalance{
		{AccountID: 40, Code: "41.100", Net: 0.001},
	}
	svc := NewService(store, nil, nil)

	_, err := svc.CloseYear(context.Background(), CloseInput{Year: 2025})
	require.ErrorIs(t, err, shared.ErrNothingToClose)
	require.Empty(t, store.posted)
	require.True(t, store.lastClosed.IsZero())
}

func TestCloseYearAlreadyClosedByReference(t *testing.T) {
	store := newMemoryStore()
	store.refs["CLOSE-2025"] = true
	store.pl = []PLBalance{{AccountID: 40, Code: "41.100", Net: -100}}
	svc := NewService(store, nil, nil)

	_, err := svc.CloseYear(context.Background(), CloseInput{Year: 2025})
	require.ErrorIs(t, err, shared.ErrYearAlreadyClosed)
}

func TestCloseYearAlreadyClosedByBoundary(t *testing.T) {
	store := newMemoryStore()
	store.lastClosed = time.Date(2025, time.December, 31, 0, 0, 0, 0, time.UTC)
	store.pl = []PLBalance{{AccountID: 40, Code: "41.100", Net: -100}}
	svc := NewService(store, nil, nil)

	_, err := svc.CloseYear(context.Background(), CloseInput{Year: 2025})
	require.ErrorIs(t, err, shared.ErrYearAlreadyClosed)
}

func TestCloseYearMissingMappingAborts(t *testing.T) {
	store := newMemoryStore()
	delete(store.mappings, settings.MappingRetainedEarnings)
	store.pl = []PLBalance{{AccountID: 40, Code: "41.100", Net: -100}}
	svc := NewService(store, nil, nil)

	_, err := svc.CloseYear(context.Background(), CloseInput{Year: 2025})
	require.ErrorIs(t, err, shared.ErrMappingNotFound)
	require.Empty(t, store.posted)
	require.True(t, store.lastClosed.IsZero())
}

func TestCloseYearEntryIsBalanced(t *testing.T) {
	store := newMemoryStore()
	store.pl = []PLBalance{
		{AccountID: 40, Code: "41.100", Net: -5000.10},
		{AccountID: 41, Code: "41.200", Net: -249.95},
		{AccountID: 50, Code: "61.100", Net: 3200.05},
	}
	svc := NewService(store, nil, nil)

	_, err := svc.CloseYear(context.Background(), CloseInput{Year: 2025})
	require.NoError(t, err)

	var debit, credit float64
	for _, line := range store.posted[0].Lines {
		debit += line.Debit
		credit += line.Credit
	}
	require.InDelta(t, 0, debit-credit, 0.005)
}
