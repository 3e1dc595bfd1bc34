package transfer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/banktalk/internal/common"
	"github.com/Veraticus/banktalk/internal/model"
	"github.com/Veraticus/banktalk/internal/service"
)

type fakeDirectory struct {
	accountsErr      error
	beneficiariesErr error
	accounts         []model.Account
	beneficiaries    []model.Beneficiary
	searches         []string
	mu               sync.Mutex
}

func (f *fakeDirectory) GetCustomer(context.Context, string) (*model.Customer, error) {
	return &model.Customer{Accounts: f.accounts}, nil
}

func (f *fakeDirectory) ListAccounts(context.Context, string, service.AccountFilter) ([]model.Account, error) {
	if f.accountsErr != nil {
		return nil, f.accountsErr
	}
	return f.accounts, nil
}

func (f *fakeDirectory) SearchBeneficiaries(_ context.Context, _ string, term string) ([]model.Beneficiary, error) {
	f.mu.Lock()
	f.searches = append(f.searches, term)
	f.mu.Unlock()

	if f.beneficiariesErr != nil {
		return nil, f.beneficiariesErr
	}
	if term == "" {
		return f.beneficiaries, nil
	}
	var out []model.Beneficiary
	for _, b := range f.beneficiaries {
		if b.Matches(term) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeDirectory) ListCards(context.Context, string) ([]model.Card, error) { return nil, nil }
func (f *fakeDirectory) ListLoans(context.Context, string) ([]model.Loan, error) { return nil, nil }
func (f *fakeDirectory) ListTransfers(context.Context, string, string) ([]model.TransferRecord, error) {
	return nil, nil
}

type fakeSubmitter struct {
	err      error
	requests []model.TransferRequest
	mu       sync.Mutex
}

func (f *fakeSubmitter) SubmitTransfer(_ context.Context, req model.TransferRequest) (*model.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &model.Receipt{TransferID: "TRF001", Amount: req.Amount, Status: "completed", Reference: req.Reference}, nil
}

func (f *fakeSubmitter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func newDirectory() *fakeDirectory {
	return &fakeDirectory{
		accounts: []model.Account{
			{ID: "ACC001", AccountNumber: "1000000001", AccountType: "CHK", AccountTypeName: "Checking Account", Currency: "USD", Balance: decimal.NewFromInt(2500)},
			{ID: "ACC002", AccountNumber: "1000000002", AccountType: "SAV", AccountTypeName: "Savings Account", Currency: "USD", Balance: decimal.NewFromInt(9000)},
		},
		beneficiaries: []model.Beneficiary{
			{ID: "BEN001", Name: "Alice Johnson", AccountNumber: "2000000001", BankName: "First Bank"},
			{ID: "BEN002", Name: "Bob Smith", AccountNumber: "2000000002", BankName: "Second Bank"},
		},
	}
}

func transferResponse(sub string, entities model.Entities) *model.ClassificationResponse {
	return &model.ClassificationResponse{ModuleCode: model.ModuleTransfers, SubmoduleCode: sub, Entities: entities}
}

func TestStart_InitialStep(t *testing.T) {
	tests := []struct {
		entities        model.Entities
		name            string
		wantStep        Step
		wantAccount     string
		wantBeneficiary string
	}{
		{
			name:     "no entities",
			entities: model.Entities{},
			wantStep: StepSelectAccount,
		},
		{
			name:        "source account type resolves",
			entities:    model.Entities{"sourceAccountType": "Savings"},
			wantStep:    StepSelectBeneficiary,
			wantAccount: "ACC002",
		},
		{
			name:        "source account number resolves",
			entities:    model.Entities{"sourceAccountNumber": "1000000001"},
			wantStep:    StepSelectBeneficiary,
			wantAccount: "ACC001",
		},
		{
			name:     "source account does not resolve",
			entities: model.Entities{"sourceAccountType": "Brokerage"},
			wantStep: StepSelectAccount,
		},
		{
			name:            "beneficiary only is preselected but account step remains",
			entities:        model.Entities{"recipient": "Alice"},
			wantStep:        StepSelectAccount,
			wantBeneficiary: "BEN001",
		},
		{
			name:            "account and beneficiary resolve",
			entities:        model.Entities{"sourceAccountType": "Checking", "beneficiaryId": "BEN002"},
			wantStep:        StepSelectBeneficiary,
			wantAccount:     "ACC001",
			wantBeneficiary: "BEN002",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			flow := NewFlow(newDirectory(), &fakeSubmitter{})
			s, err := flow.Start(context.Background(), "1", transferResponse("TRF_IMMEDIATE", tt.entities))
			require.NoError(t, err)

			assert.Equal(t, tt.wantStep, s.Step)
			assert.Equal(t, tt.wantAccount, s.SelectedAccountID)
			assert.Equal(t, tt.wantBeneficiary, s.SelectedBeneficiaryID)
			assert.NotEmpty(t, s.ID)
			assert.Equal(t, "USD", s.Currency)
		})
	}
}

func TestStart_RejectsNonTransfer(t *testing.T) {
	flow := NewFlow(newDirectory(), &fakeSubmitter{})

	_, err := flow.Start(context.Background(), "1", &model.ClassificationResponse{ModuleCode: model.ModuleAccounts, SubmoduleCode: "ACC_LIST"})
	require.ErrorIs(t, err, ErrNotTransfer)

	_, err = flow.Start(context.Background(), "1", &model.ClassificationResponse{Error: "boom"})
	require.ErrorIs(t, err, common.ErrClassificationFailed)
}

func TestFlow_AmountPrefilledSkipsAmountEntry(t *testing.T) {
	sub := &fakeSubmitter{}
	flow := NewFlow(newDirectory(), sub)
	ctx := context.Background()

	s, err := flow.Start(ctx, "1", transferResponse("TRF_IMMEDIATE", model.Entities{"amount": 500.0}))
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(500).Equal(s.Amount))
	assert.Equal(t, StepSelectAccount, s.Step)

	require.NoError(t, flow.SelectAccount(s, "ACC001"))
	assert.Equal(t, StepSelectBeneficiary, s.Step)

	require.NoError(t, flow.SelectBeneficiary(s, "BEN001"))
	assert.Equal(t, StepConfirm, s.Step, "known amount must skip ENTER_AMOUNT")

	require.NoError(t, flow.Confirm(s))
	assert.Equal(t, StepOTPPending, s.Step)

	require.NoError(t, flow.SubmitOTP(ctx, s, "123456"))
	assert.Equal(t, StepSuccess, s.Step)
	require.NotNil(t, s.Receipt)
	assert.Equal(t, "TRF001", s.Receipt.TransferID)

	require.Equal(t, 1, sub.calls())
	req := sub.requests[0]
	assert.Equal(t, "ACC001", req.FromAccountID)
	assert.Equal(t, "BEN001", req.BeneficiaryID)
	assert.Equal(t, "2000000001", req.ToAccountID)
	assert.True(t, decimal.NewFromInt(500).Equal(req.Amount))
	assert.Equal(t, model.TransferImmediate, req.Kind)
	assert.NotEmpty(t, req.IdempotencyKey)
}

func TestFlow_AmountEntry(t *testing.T) {
	flow := NewFlow(newDirectory(), &fakeSubmitter{})
	s, err := flow.Start(context.Background(), "1", transferResponse("TRF_IMMEDIATE", model.Entities{"sourceAccountType": "Savings"}))
	require.NoError(t, err)

	require.NoError(t, flow.SelectBeneficiary(s, "BEN002"))
	assert.Equal(t, StepEnterAmount, s.Step)

	for _, bad := range []string{"", "0", "-5", "ten"} {
		err := flow.EnterAmount(s, AmountInput{Amount: bad})
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr, "amount %q", bad)
		assert.Equal(t, "amount", vErr.Field)
		assert.Equal(t, StepEnterAmount, s.Step)
	}

	require.NoError(t, flow.EnterAmount(s, AmountInput{Amount: "75.50", Notes: "dinner"}))
	assert.Equal(t, StepConfirm, s.Step)
	assert.True(t, decimal.RequireFromString("75.5").Equal(s.Amount))
	assert.Equal(t, "dinner", s.Notes)
}

func TestFlow_SelectionValidation(t *testing.T) {
	flow := NewFlow(newDirectory(), &fakeSubmitter{})
	s, err := flow.Start(context.Background(), "1", transferResponse("TRF_IMMEDIATE", nil))
	require.NoError(t, err)

	var vErr *ValidationError
	require.ErrorAs(t, flow.SelectAccount(s, ""), &vErr)
	require.ErrorAs(t, flow.SelectAccount(s, "ACC999"), &vErr)
	assert.Equal(t, StepSelectAccount, s.Step)

	require.ErrorIs(t, flow.SelectBeneficiary(s, "BEN001"), ErrInvalidTransition)
	require.ErrorIs(t, flow.Confirm(s), ErrInvalidTransition)

	require.NoError(t, flow.SelectAccount(s, "ACC001"))
	require.ErrorAs(t, flow.SelectBeneficiary(s, ""), &vErr)
	require.ErrorAs(t, flow.SelectBeneficiary(s, "BEN999"), &vErr)
	assert.Equal(t, StepSelectBeneficiary, s.Step)
}

func TestFlow_OTPValidation(t *testing.T) {
	sub := &fakeSubmitter{}
	flow := NewFlow(newDirectory(), sub)
	ctx := context.Background()
	s := confirmedSession(t, flow)

	for _, code := range []string{"12345", "1234567", "12a456", "", "１２３４５６"} {
		err := flow.SubmitOTP(ctx, s, code)
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr, "code %q", code)
		assert.Equal(t, StepOTPPending, s.Step)
		assert.Equal(t, otpErrorMessage, s.OTPError)
	}
	assert.Zero(t, sub.calls(), "malformed OTP must never reach the submitter")

	flow.EditOTP(s)
	assert.Empty(t, s.OTPError)

	require.NoError(t, flow.SubmitOTP(ctx, s, "654321"))
	assert.Equal(t, StepSuccess, s.Step)
	assert.Empty(t, s.OTPError)
}

func TestFlow_SubmissionFailureReturnsToConfirm(t *testing.T) {
	sub := &fakeSubmitter{err: &common.APIError{Service: "transfers", Status: 503, Message: "core banking down"}}
	flow := NewFlow(newDirectory(), sub)
	ctx := context.Background()
	s := confirmedSession(t, flow)

	err := flow.SubmitOTP(ctx, s, "123456")
	require.ErrorIs(t, err, ErrSubmissionFailed)
	assert.Equal(t, StepConfirm, s.Step)
	assert.Equal(t, submitFailedMessage, s.LastError)
	assert.Nil(t, s.Receipt)

	sub.mu.Lock()
	sub.err = nil
	sub.mu.Unlock()

	require.NoError(t, flow.Confirm(s))
	assert.Empty(t, s.LastError)
	require.NoError(t, flow.SubmitOTP(ctx, s, "123456"))
	assert.Equal(t, StepSuccess, s.Step)
	assert.Equal(t, 2, sub.calls())
}

func TestFlow_SubmissionUserMessage(t *testing.T) {
	sub := &fakeSubmitter{err: common.NewUserError("Insufficient funds", common.ErrTransferRejected)}
	flow := NewFlow(newDirectory(), sub)
	s := confirmedSession(t, flow)

	require.Error(t, flow.SubmitOTP(context.Background(), s, "123456"))
	assert.Equal(t, "Insufficient funds", s.LastError)
}

func TestFlow_Reset(t *testing.T) {
	flow := NewFlow(newDirectory(), &fakeSubmitter{})
	s := confirmedSession(t, flow)
	require.NoError(t, flow.SubmitOTP(context.Background(), s, "123456"))
	require.Equal(t, StepSuccess, s.Step)

	require.ErrorIs(t, flow.Back(s), ErrInvalidTransition)

	flow.Reset(s)
	assert.Equal(t, StepSelectAccount, s.Step)
	assert.Empty(t, s.Entities)
	assert.Empty(t, s.SelectedAccountID)
	assert.Empty(t, s.SelectedBeneficiaryID)
	assert.True(t, s.Amount.IsZero())
	assert.Nil(t, s.Receipt)
	assert.Empty(t, s.History)
	assert.NotEmpty(t, s.Accounts, "fetched accounts are kept")
}

func TestFlow_Back(t *testing.T) {
	flow := NewFlow(newDirectory(), &fakeSubmitter{})
	s, err := flow.Start(context.Background(), "1", transferResponse("TRF_IMMEDIATE", model.Entities{"amount": 20.0}))
	require.NoError(t, err)

	require.ErrorIs(t, flow.Back(s), ErrInvalidTransition, "nothing before the first step")

	require.NoError(t, flow.SelectAccount(s, "ACC002"))
	require.NoError(t, flow.SelectBeneficiary(s, "BEN001"))
	require.Equal(t, StepConfirm, s.Step)

	require.NoError(t, flow.Back(s))
	assert.Equal(t, StepSelectBeneficiary, s.Step, "prefilled amount means back skips ENTER_AMOUNT")
	assert.Equal(t, "BEN001", s.SelectedBeneficiaryID)
	assert.True(t, decimal.NewFromInt(20).Equal(s.Amount))

	require.NoError(t, flow.Back(s))
	assert.Equal(t, StepSelectAccount, s.Step)
	assert.Equal(t, "ACC002", s.SelectedAccountID)
}

func TestFlow_Search(t *testing.T) {
	dir := newDirectory()
	flow := NewFlow(dir, &fakeSubmitter{})
	ctx := context.Background()
	s, err := flow.Start(ctx, "1", transferResponse("TRF_IMMEDIATE", model.Entities{"sourceAccountId": "ACC001"}))
	require.NoError(t, err)
	require.Len(t, s.Beneficiaries, 2)

	require.NoError(t, flow.Search(ctx, s, "bob"))
	require.Len(t, s.Beneficiaries, 1)
	assert.Equal(t, "BEN002", s.Beneficiaries[0].ID)
	assert.Equal(t, "bob", s.SearchTerm)

	require.NoError(t, flow.Search(ctx, s, "zed"))
	assert.Empty(t, s.Beneficiaries)
	assert.Equal(t, noPayeesMessage, s.BeneficiariesError)
	assert.Equal(t, StepSelectBeneficiary, s.Step)

	dir.beneficiariesErr = errors.New("connection refused")
	require.NoError(t, flow.Search(ctx, s, "alice"))
	assert.Equal(t, payeesFailedMessage, s.BeneficiariesError)
	assert.Equal(t, StepSelectBeneficiary, s.Step)

	dir.mu.Lock()
	assert.Equal(t, []string{"", "bob", "zed", "alice"}, dir.searches)
	dir.mu.Unlock()
}

func TestStart_AccountFetchFailure(t *testing.T) {
	dir := newDirectory()
	dir.accountsErr = &common.APIError{Service: "accounts", Status: 500}
	flow := NewFlow(dir, &fakeSubmitter{})

	s, err := flow.Start(context.Background(), "1", transferResponse("TRF_IMMEDIATE", model.Entities{"sourceAccountType": "Savings"}))
	require.NoError(t, err)
	assert.Equal(t, StepSelectAccount, s.Step)
	assert.Equal(t, accountsFailedMessage, s.AccountsError)
	assert.Empty(t, s.Accounts)
}

func TestFlow_ScheduledTransfer(t *testing.T) {
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	sub := &fakeSubmitter{}
	flow := NewFlow(newDirectory(), sub, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	s, err := flow.Start(ctx, "1", transferResponse("TRF_SCHEDULE", model.Entities{"amount": 100.0, "sourceAccountId": "ACC001"}))
	require.NoError(t, err)
	assert.Equal(t, model.TransferSchedule, s.Kind)

	require.NoError(t, flow.SelectBeneficiary(s, "BEN001"))
	assert.Equal(t, StepEnterAmount, s.Step, "scheduled transfer without a date asks for details")

	var vErr *ValidationError
	require.ErrorAs(t, flow.EnterAmount(s, AmountInput{Amount: "100", ScheduleDate: "2026-10-01"}), &vErr)
	assert.Equal(t, "scheduleDate", vErr.Field)

	require.NoError(t, flow.EnterAmount(s, AmountInput{Amount: "100", ScheduleDate: "2026-11-01"}))
	require.NoError(t, flow.Confirm(s))
	require.NoError(t, flow.SubmitOTP(ctx, s, "000000"))

	require.Equal(t, 1, sub.calls())
	require.NotNil(t, sub.requests[0].ScheduledDate)
	assert.Equal(t, model.TransferSchedule, sub.requests[0].Kind)
}

func TestFlow_Recorder(t *testing.T) {
	rec := &fakeRecorder{}
	flow := NewFlow(newDirectory(), &fakeSubmitter{}, WithRecorder(rec))
	s := confirmedSession(t, flow)
	require.NoError(t, flow.SubmitOTP(context.Background(), s, "123456"))

	assert.Equal(t, []Step{StepSelectBeneficiary, StepConfirm, StepOTPPending, StepSuccess}, rec.to)
	assert.Equal(t, []bool{true}, rec.submissions)
}

type fakeRecorder struct {
	to          []Step
	submissions []bool
}

func (f *fakeRecorder) RecordTransition(_, to Step) { f.to = append(f.to, to) }
func (f *fakeRecorder) RecordSubmission(_ model.TransferKind, ok bool) {
	f.submissions = append(f.submissions, ok)
}

func confirmedSession(t *testing.T, flow *Flow) *Session {
	t.Helper()

	s, err := flow.Start(context.Background(), "1", transferResponse("TRF_IMMEDIATE", model.Entities{"amount": 50.0}))
	require.NoError(t, err)
	require.NoError(t, flow.SelectAccount(s, "ACC001"))
	require.NoError(t, flow.SelectBeneficiary(s, "BEN001"))
	require.NoError(t, flow.Confirm(s))
	require.Equal(t, StepOTPPending, s.Step)
	return s
}
