package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/banktalk/internal/common"
	"github.com/Veraticus/banktalk/internal/contract"
	"github.com/Veraticus/banktalk/internal/model"
	"github.com/Veraticus/banktalk/internal/service"
)

const (
	defaultCurrency    = "USD"
	defaultCallTimeout = 10 * time.Second

	otpErrorMessage        = "Please enter a valid 6-digit OTP"
	submitFailedMessage    = "The transfer could not be completed. Please try again."
	accountsFailedMessage  = "We couldn't load your accounts. Please try again."
	payeesFailedMessage    = "We couldn't load your beneficiaries. Please try again."
	noPayeesMessage        = "No beneficiaries match your search."
	scheduleInvalidMessage = "Please enter a valid future date for the transfer."
)

var otpPattern = regexp.MustCompile(`^[0-9]{6}$`)

var (
	// ErrInvalidTransition is returned when an operation is not allowed at the current step.
	ErrInvalidTransition = errors.New("invalid transfer transition")
	// ErrNotTransfer is returned when a session is started from a non-transfer classification.
	ErrNotTransfer = errors.New("classification is not a transfer")
	// ErrSubmissionFailed is returned when the funds movement failed and the
	// session went back to CONFIRM.
	ErrSubmissionFailed = errors.New("transfer submission failed")
)

// ValidationError is a local, non-fatal input error on the current step.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Recorder observes flow activity for metrics.
type Recorder interface {
	RecordTransition(from, to Step)
	RecordSubmission(kind model.TransferKind, ok bool)
}

type nopRecorder struct{}

func (nopRecorder) RecordTransition(Step, Step)               {}
func (nopRecorder) RecordSubmission(model.TransferKind, bool) {}

// Option configures a Flow.
type Option func(*Flow)

// WithCallTimeout bounds every call to the banking services.
func WithCallTimeout(d time.Duration) Option {
	return func(f *Flow) {
		if d > 0 {
			f.callTimeout = d
		}
	}
}

// WithRecorder reports transitions and submissions to rec.
func WithRecorder(rec Recorder) Option {
	return func(f *Flow) {
		if rec != nil {
			f.recorder = rec
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(f *Flow) {
		if now != nil {
			f.now = now
		}
	}
}

// Flow drives transfer sessions through their steps. It holds no session
// state and is safe for concurrent use; callers serialize operations on a
// single session.
type Flow struct {
	directory   service.Directory
	submitter   service.TransferSubmitter
	recorder    Recorder
	now         func() time.Time
	callTimeout time.Duration
}

// NewFlow creates a flow backed by the given banking services.
func NewFlow(directory service.Directory, submitter service.TransferSubmitter, opts ...Option) *Flow {
	f := &Flow{
		directory:   directory,
		submitter:   submitter,
		recorder:    nopRecorder{},
		now:         time.Now,
		callTimeout: defaultCallTimeout,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Start creates a session from a transfer classification. Entities already
// present skip ahead: a resolvable source account starts at
// SELECT_BENEFICIARY, a resolvable beneficiary is preselected and a positive
// amount is pre-filled. Fetch failures are recorded on the session.
func (f *Flow) Start(ctx context.Context, userID string, resp *model.ClassificationResponse) (*Session, error) {
	intent, err := contract.Parse(resp)
	if err != nil {
		return nil, err
	}
	trf, ok := intent.(contract.TransferIntent)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotTransfer, resp.ModuleCode)
	}

	now := f.now()
	s := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Module:    resp.ModuleCode,
		Submodule: resp.SubmoduleCode,
		Kind:      model.TransferKindFor(resp.SubmoduleCode),
		Step:      StepSelectAccount,
		Entities:  trf.Entities(),
		Amount:    trf.Amount,
		Currency:  trf.Currency,
		Notes:     trf.Notes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if s.Currency == "" {
		s.Currency = defaultCurrency
	}
	if at, ok := trf.ScheduledAt(); ok {
		s.ScheduledDate = &at
	}

	f.loadAccounts(ctx, s)
	if acc, ok := resolveSourceAccount(trf, s.Accounts); ok {
		s.SelectedAccountID = acc.ID
		s.Entities["sourceAccountId"] = acc.ID
		if acc.Currency != "" && trf.Currency == "" {
			s.Currency = acc.Currency
		}
	}

	s.SearchTerm = trf.BeneficiaryTerm()
	f.loadBeneficiaries(ctx, s)
	if b, ok := resolveBeneficiary(trf, s.Beneficiaries); ok {
		s.SelectedBeneficiaryID = b.ID
	}

	if s.SelectedAccountID != "" {
		f.transition(s, StepSelectBeneficiary)
	}

	slog.Debug("Transfer session started",
		"session_id", s.ID,
		"submodule", s.Submodule,
		"step", s.Step,
		"account_preselected", s.SelectedAccountID != "",
		"beneficiary_preselected", s.SelectedBeneficiaryID != "",
		"amount_prefilled", s.HasAmount())
	return s, nil
}

// SelectAccount chooses the source account.
func (f *Flow) SelectAccount(s *Session, accountID string) error {
	if err := expectStep(s, StepSelectAccount, "select account"); err != nil {
		return err
	}
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return &ValidationError{Field: "account", Message: "Please select an account"}
	}
	if !containsAccount(s.Accounts, accountID) {
		return &ValidationError{Field: "account", Message: "Please select one of your accounts"}
	}

	s.SelectedAccountID = accountID
	s.Entities["sourceAccountId"] = accountID
	f.transition(s, StepSelectBeneficiary)
	return nil
}

// Search refetches beneficiaries for term. Empty results and fetch errors are
// recorded on the session and never change the step.
func (f *Flow) Search(ctx context.Context, s *Session, term string) error {
	if err := expectStep(s, StepSelectBeneficiary, "search beneficiaries"); err != nil {
		return err
	}
	s.SearchTerm = strings.TrimSpace(term)
	f.loadBeneficiaries(ctx, s)
	s.UpdatedAt = f.now()
	return nil
}

// SelectBeneficiary chooses the payee. The flow moves to CONFIRM when the
// amount (and, for scheduled transfers, the date) is already known, and to
// ENTER_AMOUNT otherwise.
func (f *Flow) SelectBeneficiary(s *Session, beneficiaryID string) error {
	if err := expectStep(s, StepSelectBeneficiary, "select beneficiary"); err != nil {
		return err
	}
	beneficiaryID = strings.TrimSpace(beneficiaryID)
	if beneficiaryID == "" {
		return &ValidationError{Field: "beneficiary", Message: "Please select a beneficiary"}
	}
	if !containsBeneficiary(s.Beneficiaries, beneficiaryID) {
		return &ValidationError{Field: "beneficiary", Message: "Please select one of the listed beneficiaries"}
	}

	s.SelectedBeneficiaryID = beneficiaryID
	s.Entities["beneficiaryId"] = beneficiaryID
	if s.HasAmount() && !s.NeedsSchedule() {
		f.transition(s, StepConfirm)
	} else {
		f.transition(s, StepEnterAmount)
	}
	return nil
}

// AmountInput is the user's entry on the ENTER_AMOUNT step.
type AmountInput struct {
	Amount       string
	Notes        string
	ScheduleDate string
}

// EnterAmount records the amount and moves to CONFIRM.
func (f *Flow) EnterAmount(s *Session, in AmountInput) error {
	if err := expectStep(s, StepEnterAmount, "enter amount"); err != nil {
		return err
	}
	amount, ok := model.Entities{"amount": in.Amount}.Decimal("amount")
	if !ok || !amount.IsPositive() {
		return &ValidationError{Field: "amount", Message: "Please enter an amount greater than zero"}
	}
	if in.ScheduleDate != "" || s.NeedsSchedule() {
		at, err := f.parseSchedule(in.ScheduleDate)
		if err != nil {
			return err
		}
		s.ScheduledDate = &at
		s.Entities["scheduleDate"] = in.ScheduleDate
	}

	s.Amount = amount
	s.Entities["amount"] = amount.String()
	if notes := strings.TrimSpace(in.Notes); notes != "" {
		s.Notes = notes
	}
	f.transition(s, StepConfirm)
	return nil
}

// Confirm checks the transfer is complete and requests the OTP.
func (f *Flow) Confirm(s *Session) error {
	if err := expectStep(s, StepConfirm, "confirm"); err != nil {
		return err
	}
	if _, ok := s.Account(); !ok {
		return &ValidationError{Field: "account", Message: "Please select an account"}
	}
	if _, ok := s.Beneficiary(); !ok {
		return &ValidationError{Field: "beneficiary", Message: "Please select a beneficiary"}
	}
	if !s.HasAmount() {
		return &ValidationError{Field: "amount", Message: "Please enter an amount greater than zero"}
	}
	if s.NeedsSchedule() {
		return &ValidationError{Field: "scheduleDate", Message: scheduleInvalidMessage}
	}

	s.LastError = ""
	s.OTPError = ""
	s.IdempotencyKey = uuid.NewString()
	f.transition(s, StepOTPPending)
	return nil
}

// EditOTP clears the inline OTP error once the user edits the code.
func (f *Flow) EditOTP(s *Session) {
	s.OTPError = ""
}

// SubmitOTP verifies the OTP format and submits the transfer. A malformed
// code sets an inline error without contacting any service. A failed
// submission returns the session to CONFIRM with a retryable error.
func (f *Flow) SubmitOTP(ctx context.Context, s *Session, code string) error {
	if err := expectStep(s, StepOTPPending, "submit otp"); err != nil {
		return err
	}
	if !otpPattern.MatchString(code) {
		s.OTPError = otpErrorMessage
		s.UpdatedAt = f.now()
		return &ValidationError{Field: "otp", Message: otpErrorMessage}
	}
	s.OTPError = ""

	acc, _ := s.Account()
	ben, _ := s.Beneficiary()
	req := model.TransferRequest{
		ScheduledDate:  s.ScheduledDate,
		Amount:         s.Amount,
		UserID:         s.UserID,
		Kind:           s.Kind,
		FromAccountID:  acc.ID,
		ToAccountID:    ben.AccountNumber,
		BeneficiaryID:  ben.ID,
		Currency:       s.Currency,
		Description:    s.Notes,
		Reference:      "TRF-" + strings.ToUpper(s.ID[:8]),
		IdempotencyKey: s.IdempotencyKey,
	}

	callCtx, cancel := context.WithTimeout(ctx, f.callTimeout)
	defer cancel()

	receipt, err := f.submitter.SubmitTransfer(callCtx, req)
	if err != nil {
		f.recorder.RecordSubmission(s.Kind, false)
		s.LastError = common.UserMessage(err, submitFailedMessage)
		slog.Warn("Transfer submission failed",
			"session_id", s.ID,
			"kind", s.Kind,
			"error", err)
		f.back(s)
		return fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
	}

	f.recorder.RecordSubmission(s.Kind, true)
	s.Receipt = receipt
	s.LastError = ""
	f.transition(s, StepSuccess)
	return nil
}

// Back returns to the previous step. Entities and selections are kept.
func (f *Flow) Back(s *Session) error {
	if s.Step == StepSuccess || len(s.History) == 0 {
		return fmt.Errorf("%w: back from %s", ErrInvalidTransition, s.Step)
	}
	f.back(s)
	return nil
}

// Reset clears every user-provided value and returns to SELECT_ACCOUNT.
// Fetched account and beneficiary lists are kept.
func (f *Flow) Reset(s *Session) {
	from := s.Step
	s.Entities = model.Entities{}
	s.SelectedAccountID = ""
	s.SelectedBeneficiaryID = ""
	s.Amount = decimal.Zero
	s.Notes = ""
	s.ScheduledDate = nil
	s.SearchTerm = ""
	s.OTPError = ""
	s.LastError = ""
	s.Receipt = nil
	s.IdempotencyKey = ""
	s.History = nil
	s.Step = StepSelectAccount
	s.UpdatedAt = f.now()
	f.recorder.RecordTransition(from, StepSelectAccount)
	slog.Debug("Transfer session reset", "session_id", s.ID, "from", from)
}

func (f *Flow) transition(s *Session, next Step) {
	from := s.Step
	s.push(next)
	s.UpdatedAt = f.now()
	f.recorder.RecordTransition(from, next)
	slog.Debug("Transfer step changed", "session_id", s.ID, "from", from, "to", next)
}

func (f *Flow) back(s *Session) {
	from := s.Step
	prev := s.History[len(s.History)-1]
	s.History = s.History[:len(s.History)-1]
	s.Step = prev
	s.OTPError = ""
	s.UpdatedAt = f.now()
	f.recorder.RecordTransition(from, prev)
	slog.Debug("Transfer step changed", "session_id", s.ID, "from", from, "to", prev)
}

func (f *Flow) loadAccounts(ctx context.Context, s *Session) {
	callCtx, cancel := context.WithTimeout(ctx, f.callTimeout)
	defer cancel()

	accounts, err := f.directory.ListAccounts(callCtx, s.UserID, service.AccountFilter{})
	if err != nil {
		slog.Warn("Failed to load accounts for transfer", "session_id", s.ID, "error", err)
		s.AccountsError = common.UserMessage(err, accountsFailedMessage)
		return
	}
	s.AccountsError = ""
	s.Accounts = accounts
}

func (f *Flow) loadBeneficiaries(ctx context.Context, s *Session) {
	callCtx, cancel := context.WithTimeout(ctx, f.callTimeout)
	defer cancel()

	list, err := f.directory.SearchBeneficiaries(callCtx, s.UserID, s.SearchTerm)
	if err != nil {
		slog.Warn("Failed to load beneficiaries for transfer", "session_id", s.ID, "error", err)
		s.BeneficiariesError = common.UserMessage(err, payeesFailedMessage)
		return
	}
	s.Beneficiaries = list
	s.BeneficiariesError = ""
	if len(list) == 0 {
		s.BeneficiariesError = noPayeesMessage
	}
}

func (f *Flow) parseSchedule(raw string) (time.Time, error) {
	trf := contract.TransferIntent{ScheduleDate: strings.TrimSpace(raw)}
	at, ok := trf.ScheduledAt()
	if !ok || !at.After(f.now()) {
		return time.Time{}, &ValidationError{Field: "scheduleDate", Message: scheduleInvalidMessage}
	}
	return at, nil
}

func expectStep(s *Session, want Step, op string) error {
	if s.Step != want {
		return fmt.Errorf("%w: cannot %s at %s", ErrInvalidTransition, op, s.Step)
	}
	return nil
}

func resolveSourceAccount(trf contract.TransferIntent, accounts []model.Account) (model.Account, bool) {
	for _, acc := range accounts {
		switch {
		case trf.SourceAccountID != "" && acc.ID == trf.SourceAccountID:
			return acc, true
		case trf.SourceAccountNumber != "" && acc.AccountNumber == trf.SourceAccountNumber:
			return acc, true
		}
	}
	if trf.SourceAccountType != "" {
		for _, acc := range accounts {
			if acc.MatchesType(trf.SourceAccountType) {
				return acc, true
			}
		}
	}
	return model.Account{}, false
}

func resolveBeneficiary(trf contract.TransferIntent, list []model.Beneficiary) (model.Beneficiary, bool) {
	if trf.BeneficiaryID != "" {
		for _, b := range list {
			if b.ID == trf.BeneficiaryID {
				return b, true
			}
		}
	}
	term := trf.BeneficiaryTerm()
	if term == "" {
		return model.Beneficiary{}, false
	}
	var match model.Beneficiary
	matches := 0
	for _, b := range list {
		if b.Matches(term) {
			match = b
			matches++
		}
	}
	return match, matches == 1
}

func containsAccount(accounts []model.Account, id string) bool {
	for _, acc := range accounts {
		if acc.ID == id {
			return true
		}
	}
	return false
}

func containsBeneficiary(list []model.Beneficiary, id string) bool {
	for _, b := range list {
		if b.ID == id {
			return true
		}
	}
	return false
}
