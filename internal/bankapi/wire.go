package bankapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/banktalk/internal/model"
)

// flexString decodes ids that the service sends as numbers or strings.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*s = flexString(n.String())
	return nil
}

type wireAccount struct {
	Balance         decimal.Decimal `json:"balance"`
	ID              flexString      `json:"id"`
	UserID          flexString      `json:"userId"`
	AccountNumber   flexString      `json:"accountNumber"`
	AccountType     string          `json:"accountType"`
	AccountTypeName string          `json:"accountTypeName"`
	Currency        string          `json:"currency"`
	Status          string          `json:"status"`
}

func (w wireAccount) model() model.Account {
	return model.Account{
		Balance:         w.Balance,
		ID:              string(w.ID),
		UserID:          string(w.UserID),
		AccountNumber:   string(w.AccountNumber),
		AccountType:     w.AccountType,
		AccountTypeName: w.AccountTypeName,
		Currency:        w.Currency,
		Status:          w.Status,
	}
}

type wireBeneficiary struct {
	ID            flexString `json:"id"`
	UserID        flexString `json:"userId"`
	Name          string     `json:"name"`
	Nickname      string     `json:"nickname"`
	AccountNumber flexString `json:"accountNumber"`
	BankName      string     `json:"bankName"`
	Email         string     `json:"email"`
	Phone         string     `json:"phone"`
	Type          string     `json:"type"`
	Status        string     `json:"status"`
}

func (w wireBeneficiary) model() model.Beneficiary {
	return model.Beneficiary{
		ID:            string(w.ID),
		UserID:        string(w.UserID),
		Name:          w.Name,
		Nickname:      w.Nickname,
		AccountNumber: string(w.AccountNumber),
		BankName:      w.BankName,
		Email:         w.Email,
		Phone:         w.Phone,
		Type:          w.Type,
		Status:        w.Status,
	}
}

type wireCard struct {
	CreditLimit decimal.Decimal `json:"creditLimit"`
	ID          flexString      `json:"id"`
	UserID      flexString      `json:"userId"`
	CardNumber  flexString      `json:"cardNumber"`
	CardType    string          `json:"cardType"`
	Status      string          `json:"status"`
}

func (w wireCard) model() model.Card {
	return model.Card{
		CreditLimit: w.CreditLimit,
		ID:          string(w.ID),
		UserID:      string(w.UserID),
		CardNumber:  string(w.CardNumber),
		CardType:    w.CardType,
		Status:      w.Status,
	}
}

type wireLoan struct {
	Principal         decimal.Decimal `json:"principal"`
	Amount            decimal.Decimal `json:"amount"`
	Outstanding       decimal.Decimal `json:"outstanding"`
	OutstandingAmount decimal.Decimal `json:"outstandingAmount"`
	ID                flexString      `json:"id"`
	UserID            flexString      `json:"userId"`
	LoanType          string          `json:"loanType"`
	Type              string          `json:"type"`
	Status            string          `json:"status"`
}

func (w wireLoan) model() model.Loan {
	l := model.Loan{
		Principal:   w.Principal,
		Outstanding: w.Outstanding,
		ID:          string(w.ID),
		UserID:      string(w.UserID),
		LoanType:    w.LoanType,
		Status:      w.Status,
	}
	if l.Principal.IsZero() {
		l.Principal = w.Amount
	}
	if l.Outstanding.IsZero() {
		l.Outstanding = w.OutstandingAmount
	}
	if l.LoanType == "" {
		l.LoanType = w.Type
	}
	return l
}

type wireTransfer struct {
	ExecutedDate  *time.Time      `json:"executedDate"`
	ScheduledDate *time.Time      `json:"scheduledDate"`
	Amount        decimal.Decimal `json:"amount"`
	Fees          decimal.Decimal `json:"fees"`
	ID            flexString      `json:"id"`
	FromAccountID flexString      `json:"fromAccountId"`
	ToAccountID   flexString      `json:"toAccountId"`
	Currency      string          `json:"currency"`
	Type          string          `json:"type"`
	Status        string          `json:"status"`
	Description   string          `json:"description"`
	Reference     string          `json:"reference"`
}

func (w wireTransfer) model() model.TransferRecord {
	return model.TransferRecord{
		ExecutedDate:  w.ExecutedDate,
		ScheduledDate: w.ScheduledDate,
		Amount:        w.Amount,
		Fees:          w.Fees,
		ID:            string(w.ID),
		FromAccountID: string(w.FromAccountID),
		ToAccountID:   string(w.ToAccountID),
		Currency:      w.Currency,
		Type:          w.Type,
		Status:        w.Status,
		Description:   w.Description,
		Reference:     w.Reference,
	}
}

func (w wireTransfer) receipt(now time.Time) model.Receipt {
	ts := now
	switch {
	case w.ExecutedDate != nil:
		ts = *w.ExecutedDate
	case w.ScheduledDate != nil:
		ts = *w.ScheduledDate
	}
	return model.Receipt{
		Timestamp:   ts,
		Amount:      w.Amount,
		TransferID:  string(w.ID),
		Reference:   w.Reference,
		Status:      w.Status,
		Currency:    w.Currency,
		FromAccount: string(w.FromAccountID),
		ToAccount:   string(w.ToAccountID),
	}
}

type wireProfile struct {
	Address   json.RawMessage `json:"address"`
	ID        flexString      `json:"id"`
	UserID    flexString      `json:"userId"`
	FirstName string          `json:"firstName"`
	LastName  string          `json:"lastName"`
	Name      string          `json:"name"`
	Email     string          `json:"email"`
	Phone     string          `json:"phone"`
	Mobile    string          `json:"mobile"`
}

func (w wireProfile) model() model.Profile {
	p := model.Profile{
		UserID:    string(w.UserID),
		FirstName: w.FirstName,
		LastName:  w.LastName,
		Email:     w.Email,
		Mobile:    w.Mobile,
		Address:   flattenAddress(w.Address),
	}
	if p.UserID == "" {
		p.UserID = string(w.ID)
	}
	if p.Mobile == "" {
		p.Mobile = w.Phone
	}
	if p.FirstName == "" && p.LastName == "" && w.Name != "" {
		first, last, _ := strings.Cut(strings.TrimSpace(w.Name), " ")
		p.FirstName, p.LastName = first, strings.TrimSpace(last)
	}
	return p
}

// flattenAddress renders a string or structured address as one line.
func flattenAddress(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var parts struct {
		Street  string `json:"street"`
		City    string `json:"city"`
		State   string `json:"state"`
		ZipCode string `json:"zipCode"`
		Country string `json:"country"`
	}
	if json.Unmarshal(raw, &parts) != nil {
		return ""
	}
	var out []string
	for _, p := range []string{parts.Street, parts.City, parts.State, parts.ZipCode, parts.Country} {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}

// decodeList accepts a bare JSON array or an object wrapping the array under
// key, with or without a data envelope.
func decodeList[T any](raw []byte, key string) ([]T, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '[' {
		var out []T
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, err
		}
		return out, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	if inner, ok := obj[key]; ok {
		return decodeList[T](inner, key)
	}
	if inner, ok := obj["data"]; ok {
		return decodeList[T](inner, key)
	}
	return nil, fmt.Errorf("response has no %q list", key)
}

// transferBody sends the amount as a JSON number; the service compares it
// against the account balance numerically.
type transferBody struct {
	ScheduledDate *time.Time  `json:"scheduledDate,omitempty"`
	Amount        json.Number `json:"amount"`
	UserID        string      `json:"userId"`
	FromAccountID string      `json:"fromAccountId"`
	ToAccountID   string      `json:"toAccountId"`
	BeneficiaryID string      `json:"beneficiaryId,omitempty"`
	Currency      string      `json:"currency"`
	Description   string      `json:"description,omitempty"`
	Reference     string      `json:"reference"`
}

func newTransferBody(req model.TransferRequest) transferBody {
	return transferBody{
		ScheduledDate: req.ScheduledDate,
		Amount:        json.Number(req.Amount.String()),
		UserID:        req.UserID,
		FromAccountID: req.FromAccountID,
		ToAccountID:   req.ToAccountID,
		BeneficiaryID: req.BeneficiaryID,
		Currency:      req.Currency,
		Description:   req.Description,
		Reference:     req.Reference,
	}
}
