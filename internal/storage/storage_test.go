package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/banktalk/internal/common"
	"github.com/Veraticus/banktalk/internal/model"
	"github.com/Veraticus/banktalk/internal/service"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// createTestStorage returns a migrated in-memory sandbox seeded with the
// default fixtures.
func createTestStorage(t *testing.T) (*SQLiteStorage, func()) {
	t.Helper()

	store, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	store.SetClock(func() time.Time { return testNow })

	ctx := context.Background()
	require.NoError(t, store.Migrate(ctx))

	fixtures, err := DefaultFixtures()
	require.NoError(t, err)
	require.NoError(t, store.Seed(ctx, fixtures))

	return store, func() { _ = store.Close() }
}

func TestMigrate(t *testing.T) {
	t.Parallel()
	store, cleanup := createTestStorage(t)
	defer cleanup()

	ctx := context.Background()
	version, err := store.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, ExpectedSchemaVersion, version)

	require.NoError(t, store.Migrate(ctx), "migrating twice is a no-op")
}

func TestNewSQLiteStorage_EmptyPath(t *testing.T) {
	t.Parallel()
	_, err := NewSQLiteStorage(" ")
	assert.ErrorIs(t, err, ErrEmptyString)
}

func TestGetCustomer(t *testing.T) {
	t.Parallel()
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	customer, err := store.GetCustomer(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "John", customer.Profile.FirstName)
	assert.Equal(t, "Doe", customer.Profile.LastName)
	require.Len(t, customer.Accounts, 2)
	assert.Equal(t, "1234567890", customer.Accounts[0].AccountNumber)
	assert.True(t, decimal.RequireFromString("15000").Equal(customer.Accounts[0].Balance))

	_, err = store.GetCustomer(ctx, "404")
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = store.GetCustomer(ctx, "")
	assert.ErrorIs(t, err, ErrEmptyString)
}

func TestListAccounts(t *testing.T) {
	t.Parallel()
	store, cleanup := createTestStorage(t)
	defer cleanup()

	tests := []struct {
		name   string
		filter service.AccountFilter
		want   []string
	}{
		{name: "no filter", want: []string{"ACC001", "ACC002"}},
		{name: "spoken type", filter: service.AccountFilter{AccountType: "savings"}, want: []string{"ACC001"}},
		{name: "type code", filter: service.AccountFilter{AccountType: "CHK"}, want: []string{"ACC002"}},
		{name: "account number", filter: service.AccountFilter{AccountNumber: "9876543210"}, want: []string{"ACC002"}},
		{name: "status", filter: service.AccountFilter{Status: "closed"}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			accounts, err := store.ListAccounts(context.Background(), "1", tt.filter)
			require.NoError(t, err)
			ids := []string{}
			for _, a := range accounts {
				ids = append(ids, a.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestSearchBeneficiaries(t *testing.T) {
	t.Parallel()
	store, cleanup := createTestStorage(t)
	defer cleanup()

	tests := []struct {
		name string
		term string
		want []string
	}{
		{name: "by name", term: "alice", want: []string{"BEN001"}},
		{name: "by nickname", term: "landlord", want: []string{"BEN002"}},
		{name: "by account number", term: "5555666677", want: []string{"BEN003"}},
		{name: "no match returns all", term: "zelda", want: []string{"BEN001", "BEN002", "BEN003"}},
		{name: "empty returns all", term: "  ", want: []string{"BEN001", "BEN002", "BEN003"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			found, err := store.SearchBeneficiaries(context.Background(), "1", tt.term)
			require.NoError(t, err)
			ids := []string{}
			for _, b := range found {
				ids = append(ids, b.ID)
			}
			assert.ElementsMatch(t, tt.want, ids)
		})
	}
}

func TestListCardsLoansTransfers(t *testing.T) {
	t.Parallel()
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	cards, err := store.ListCards(ctx, "1")
	require.NoError(t, err)
	assert.Len(t, cards, 2)

	loans, err := store.ListLoans(ctx, "1")
	require.NoError(t, err)
	require.Len(t, loans, 1)
	assert.True(t, decimal.RequireFromString("6400").Equal(loans[0].Outstanding))

	none, err := store.ListLoans(ctx, "2")
	require.NoError(t, err)
	assert.Empty(t, none)

	transfers, err := store.ListTransfers(ctx, "1", "ACC001")
	require.NoError(t, err)
	require.Len(t, transfers, 2)
	assert.Equal(t, "TRF002", transfers[0].ID, "newest first")
	require.NotNil(t, transfers[0].ExecutedDate)
	assert.Nil(t, transfers[0].ScheduledDate)
}

func transferRequest() model.TransferRequest {
	return model.TransferRequest{
		UserID:         "1",
		Kind:           model.TransferImmediate,
		FromAccountID:  "ACC001",
		ToAccountID:    "1111222233",
		BeneficiaryID:  "BEN001",
		Amount:         decimal.NewFromInt(500),
		Currency:       "USD",
		Reference:      "TRF-TEST",
		IdempotencyKey: "key-1",
	}
}

func balanceOf(t *testing.T, store *SQLiteStorage, userID, number string) decimal.Decimal {
	t.Helper()
	accounts, err := store.ListAccounts(context.Background(), userID, service.AccountFilter{AccountNumber: number})
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	return accounts[0].Balance
}

func TestSubmitTransfer_Immediate(t *testing.T) {
	t.Parallel()
	store, cleanup := createTestStorage(t)
	defer cleanup()

	receipt, err := store.SubmitTransfer(context.Background(), transferRequest())
	require.NoError(t, err)
	assert.Equal(t, "TRF004", receipt.TransferID)
	assert.Equal(t, statusCompleted, receipt.Status)
	assert.Equal(t, "TRF-TEST", receipt.Reference)
	assert.True(t, testNow.Equal(receipt.Timestamp))
	assert.True(t, decimal.NewFromInt(500).Equal(receipt.Amount))

	assert.True(t, decimal.RequireFromString("14500").Equal(balanceOf(t, store, "1", "1234567890")))
}

func TestSubmitTransfer_IdempotentReplay(t *testing.T) {
	t.Parallel()
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	first, err := store.SubmitTransfer(ctx, transferRequest())
	require.NoError(t, err)
	second, err := store.SubmitTransfer(ctx, transferRequest())
	require.NoError(t, err)

	assert.Equal(t, first.TransferID, second.TransferID)
	assert.True(t, decimal.RequireFromString("14500").Equal(balanceOf(t, store, "1", "1234567890")),
		"replay must not debit twice")
}

func TestSubmitTransfer_CreditsSandboxAccount(t *testing.T) {
	t.Parallel()
	store, cleanup := createTestStorage(t)
	defer cleanup()

	req := transferRequest()
	req.ToAccountID = "5555666677"
	req.BeneficiaryID = "BEN003"
	_, err := store.SubmitTransfer(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, decimal.RequireFromString("1320.10").Equal(balanceOf(t, store, "2", "5555666677")))
}

func TestSubmitTransfer_International(t *testing.T) {
	t.Parallel()
	store, cleanup := createTestStorage(t)
	defer cleanup()

	req := transferRequest()
	req.Kind = model.TransferInternational
	receipt, err := store.SubmitTransfer(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, statusProcessing, receipt.Status)
	assert.True(t, decimal.RequireFromString("14475").Equal(balanceOf(t, store, "1", "1234567890")),
		"international fee is debited")
}

func TestSubmitTransfer_Scheduled(t *testing.T) {
	t.Parallel()
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	future := testNow.Add(72 * time.Hour)
	req := transferRequest()
	req.Kind = model.TransferSchedule
	req.ScheduledDate = &future

	receipt, err := store.SubmitTransfer(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, statusScheduled, receipt.Status)
	assert.True(t, future.Equal(receipt.Timestamp))
	assert.True(t, decimal.RequireFromString("15000").Equal(balanceOf(t, store, "1", "1234567890")),
		"scheduled transfers do not debit")
}

func TestSubmitTransfer_Rejections(t *testing.T) {
	t.Parallel()

	past := testNow.Add(-time.Hour)
	tests := []struct {
		mutate  func(*model.TransferRequest)
		name    string
		message string
	}{
		{
			name:    "insufficient funds",
			mutate:  func(r *model.TransferRequest) { r.Amount = decimal.NewFromInt(20000) },
			message: "Insufficient funds",
		},
		{
			name:    "foreign account",
			mutate:  func(r *model.TransferRequest) { r.FromAccountID = "ACC003" },
			message: "Unauthorized access to account",
		},
		{
			name:    "unknown account",
			mutate:  func(r *model.TransferRequest) { r.FromAccountID = "ACC999" },
			message: "Account not found",
		},
		{
			name:    "zero amount",
			mutate:  func(r *model.TransferRequest) { r.Amount = decimal.Zero },
			message: "Transfer amount must be greater than zero",
		},
		{
			name: "no destination",
			mutate: func(r *model.TransferRequest) {
				r.ToAccountID = ""
				r.BeneficiaryID = ""
			},
			message: "A destination account or beneficiary is required",
		},
		{
			name: "past schedule",
			mutate: func(r *model.TransferRequest) {
				r.Kind = model.TransferSchedule
				r.ScheduledDate = &past
			},
			message: "Scheduled date must be in the future",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			store, cleanup := createTestStorage(t)
			defer cleanup()

			req := transferRequest()
			tt.mutate(&req)
			_, err := store.SubmitTransfer(context.Background(), req)
			require.Error(t, err)
			assert.ErrorIs(t, err, common.ErrTransferRejected)

			var userErr *common.UserError
			require.True(t, errors.As(err, &userErr))
			assert.Equal(t, tt.message, userErr.UserMessage)

			assert.True(t, decimal.RequireFromString("15000").Equal(balanceOf(t, store, "1", "1234567890")))
		})
	}
}

func TestFetchAnalytics(t *testing.T) {
	t.Parallel()
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	payload, err := store.FetchAnalytics(ctx, model.AnalyticsRequest{
		UserID:            "1",
		AnalyticsType:     "spending_trends",
		VisualizationType: "bar_chart",
	})
	require.NoError(t, err)
	assert.Equal(t, "Spending Trends", payload["title"])

	data, ok := payload["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []string{"2025-01", "2025-02", "2025-03"}, data["labels"])

	summary, ok := payload["summary"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 3, summary["count"])
	assert.Equal(t, "2650.00", summary["total"])

	pie, err := store.FetchAnalytics(ctx, model.AnalyticsRequest{UserID: "1", VisualizationType: "pie_chart"})
	require.NoError(t, err)
	pieData, ok := pie["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []string{"domestic"}, pieData["labels"])

	_, err = store.FetchAnalytics(ctx, model.AnalyticsRequest{UserID: "1", VisualizationType: "radar"})
	var userErr *common.UserError
	assert.True(t, errors.As(err, &userErr))
}

func TestParseFixtures_InvalidAmount(t *testing.T) {
	t.Parallel()
	store, cleanup := createTestStorage(t)
	defer cleanup()

	f, err := ParseFixtures([]byte(`
customers:
  - user_id: "9"
    first_name: Test
accounts:
  - id: X1
    user_id: "9"
    account_number: "1"
    account_type: SAV
    balance: lots
`))
	require.NoError(t, err)

	err = store.Seed(context.Background(), f)
	assert.ErrorIs(t, err, ErrInvalidFixture)

	_, err = store.GetCustomer(context.Background(), "1")
	assert.NoError(t, err, "failed seed leaves the previous data in place")
}

func TestParseFixtures_Malformed(t *testing.T) {
	t.Parallel()
	_, err := ParseFixtures([]byte("customers: [unclosed"))
	assert.ErrorIs(t, err, ErrInvalidFixture)
}

func TestValidateContext(t *testing.T) {
	t.Parallel()
	store, cleanup := createTestStorage(t)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.GetCustomer(ctx, "1")
	assert.ErrorIs(t, err, context.Canceled)

	//nolint:staticcheck // nil context is the point of the test
	_, err = store.ListCards(nil, "1")
	assert.ErrorIs(t, err, ErrNilContext)
}

func TestEmpty(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	require.NoError(t, store.Migrate(ctx))

	empty, err := store.Empty(ctx)
	require.NoError(t, err)
	assert.True(t, empty)

	fixtures, err := DefaultFixtures()
	require.NoError(t, err)
	require.NoError(t, store.Seed(ctx, fixtures))

	empty, err = store.Empty(ctx)
	require.NoError(t, err)
	assert.False(t, empty)
}
