package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Account is a customer's deposit account.
type Account struct {
	Balance         decimal.Decimal `json:"balance"`
	ID              string          `json:"id"`
	UserID          string          `json:"userId"`
	AccountNumber   string          `json:"accountNumber"`
	AccountType     string          `json:"accountType"`
	AccountTypeName string          `json:"accountTypeName,omitempty"`
	Currency        string          `json:"currency"`
	Status          string          `json:"status"`
}

// MatchesType reports whether the account matches a spoken account type such
// as "Savings", "SAV" or "savings account".
func (a Account) MatchesType(kind string) bool {
	kind = strings.ToLower(strings.TrimSpace(kind))
	if kind == "" {
		return false
	}
	kind = strings.TrimSuffix(kind, " account")
	code := strings.ToLower(a.AccountType)
	name := strings.ToLower(a.AccountTypeName)
	if kind == code || kind == name || strings.TrimSuffix(name, " account") == kind {
		return true
	}
	return name != "" && strings.HasPrefix(name, kind)
}

// Beneficiary is a saved payee.
type Beneficiary struct {
	ID            string `json:"id"`
	UserID        string `json:"userId"`
	Name          string `json:"name"`
	Nickname      string `json:"nickname,omitempty"`
	AccountNumber string `json:"accountNumber"`
	BankName      string `json:"bankName"`
	Email         string `json:"email,omitempty"`
	Phone         string `json:"phone,omitempty"`
	Type          string `json:"type,omitempty"`
	Status        string `json:"status,omitempty"`
}

// Matches reports whether term identifies the beneficiary by id, name,
// nickname, email, phone or account number.
func (b Beneficiary) Matches(term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return false
	}
	if strings.EqualFold(b.ID, term) {
		return true
	}
	for _, field := range []string{b.Name, b.Nickname, b.Email} {
		if field != "" && strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return (b.Phone != "" && strings.Contains(b.Phone, term)) ||
		strings.Contains(b.AccountNumber, term)
}

// Card is a debit or credit card.
type Card struct {
	CreditLimit decimal.Decimal `json:"creditLimit"`
	ID          string          `json:"id"`
	UserID      string          `json:"userId"`
	CardNumber  string          `json:"cardNumber"`
	CardType    string          `json:"cardType"`
	Status      string          `json:"status"`
}

// Loan is an outstanding loan account.
type Loan struct {
	Principal   decimal.Decimal `json:"principal"`
	Outstanding decimal.Decimal `json:"outstanding"`
	ID          string          `json:"id"`
	UserID      string          `json:"userId"`
	LoanType    string          `json:"loanType"`
	Status      string          `json:"status"`
}

// TransferRecord is a historical or scheduled transfer.
type TransferRecord struct {
	ExecutedDate  *time.Time      `json:"executedDate,omitempty"`
	ScheduledDate *time.Time      `json:"scheduledDate,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Fees          decimal.Decimal `json:"fees"`
	ID            string          `json:"id"`
	FromAccountID string          `json:"fromAccountId"`
	ToAccountID   string          `json:"toAccountId"`
	Currency      string          `json:"currency"`
	Type          string          `json:"type"`
	Status        string          `json:"status"`
	Description   string          `json:"description,omitempty"`
	Reference     string          `json:"reference"`
}

// Profile is the customer's personal information.
type Profile struct {
	UserID    string `json:"userId"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email,omitempty"`
	Mobile    string `json:"mobile,omitempty"`
	Address   string `json:"address,omitempty"`
}

// DisplayName returns the name used in greetings.
func (p Profile) DisplayName() string {
	if p.FirstName != "" {
		return p.FirstName
	}
	return strings.TrimSpace(p.LastName)
}

// Customer is the customer context injected into resolution and transfer flows.
type Customer struct {
	Profile  Profile   `json:"profile"`
	Accounts []Account `json:"accounts"`
}

// OwnsAccountNumber reports whether the customer holds an account with number.
func (c *Customer) OwnsAccountNumber(number string) bool {
	if c == nil {
		return false
	}
	for _, acc := range c.Accounts {
		if acc.AccountNumber == number || acc.ID == number {
			return true
		}
	}
	return false
}

// TransferKind selects the funds-movement endpoint.
type TransferKind string

// Transfer kinds.
const (
	TransferImmediate     TransferKind = "immediate"
	TransferDomestic      TransferKind = "domestic"
	TransferInternational TransferKind = "international"
	TransferSchedule      TransferKind = "schedule"
)

// TransferKindFor maps a transfer submodule to its submission endpoint.
func TransferKindFor(submodule string) TransferKind {
	switch submodule {
	case "TRF_DOMESTIC":
		return TransferDomestic
	case "TRF_INTL":
		return TransferInternational
	case "TRF_SCHEDULE":
		return TransferSchedule
	default:
		return TransferImmediate
	}
}

// TransferRequest is the funds-movement call issued after OTP verification.
type TransferRequest struct {
	ScheduledDate  *time.Time      `json:"scheduledDate,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	UserID         string          `json:"userId"`
	Kind           TransferKind    `json:"-"`
	FromAccountID  string          `json:"fromAccountId"`
	ToAccountID    string          `json:"toAccountId"`
	BeneficiaryID  string          `json:"beneficiaryId"`
	Currency       string          `json:"currency"`
	Description    string          `json:"description,omitempty"`
	Reference      string          `json:"reference"`
	IdempotencyKey string          `json:"-"`
}

// Receipt confirms an accepted transfer.
type Receipt struct {
	Timestamp   time.Time       `json:"timestamp"`
	Amount      decimal.Decimal `json:"amount"`
	TransferID  string          `json:"transferId"`
	Reference   string          `json:"reference"`
	Status      string          `json:"status"`
	Currency    string          `json:"currency"`
	FromAccount string          `json:"fromAccount"`
	ToAccount   string          `json:"toAccount"`
}

// AnalyticsRequest asks the data service for chart-ready data.
type AnalyticsRequest struct {
	Filters           map[string]any `json:"filters,omitempty"`
	Entities          Entities       `json:"entities,omitempty"`
	ModuleCode        ModuleCode     `json:"moduleCode"`
	SubmoduleCode     string         `json:"submoduleCode"`
	AnalyticsType     string         `json:"analyticsType,omitempty"`
	VisualizationType string         `json:"visualizationType,omitempty"`
	UserID            string         `json:"userId"`
}

// NewAnalyticsRequest copies the analytics hints of a classification.
func NewAnalyticsRequest(userID string, resp *ClassificationResponse) AnalyticsRequest {
	return AnalyticsRequest{
		Filters:           resp.Filters,
		Entities:          resp.Entities,
		ModuleCode:        resp.ModuleCode,
		SubmoduleCode:     resp.SubmoduleCode,
		AnalyticsType:     resp.AnalyticsType,
		VisualizationType: resp.VisualizationType,
		UserID:            userID,
	}
}

// AnalyticsPayload is chart-ready data. Its layout depends on the
// visualization type, so it is kept opaque.
type AnalyticsPayload map[string]any
