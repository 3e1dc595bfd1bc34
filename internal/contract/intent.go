// Package contract parses classifier output into typed, per-module intents.
//
// The classifier returns an open entity map whose keys vary by submodule and
// by model revision. Everything past this package works with the intent types
// below and asks them whether a required parameter is present.
package contract

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/banktalk/internal/common"
	"github.com/Veraticus/banktalk/internal/model"
)

// Parameter names used by rule tables.
const (
	ParamAccountNumber = "accountNumber"
	ParamAddress       = "address"
	ParamAmount        = "amount"
	ParamBeneficiary   = "beneficiary"
	ParamBiller        = "biller"
	ParamCardID        = "cardId"
	ParamCardType      = "cardType"
	ParamEmail         = "email"
	ParamLoanID        = "loanId"
	ParamMobileNumber  = "mobileNumber"
	ParamProductID     = "productId"
	ParamScheduleDate  = "scheduleDate"
	ParamTransferID    = "transferId"
)

// aliases lists the entity keys the classifier uses for each parameter, most
// specific first.
var aliases = map[string][]string{
	ParamAccountNumber: {"accountNumber", "accountId", "sourceAccountNumber"},
	ParamAddress:       {"address", "newAddress"},
	ParamAmount:        {"amount", "transferAmount", "paymentAmount"},
	ParamBeneficiary:   {"beneficiaryId", "beneficiaryName", "recipient", "toAccountId", "beneficiary"},
	ParamBiller:        {"billerId", "billerName", "biller", "payee"},
	ParamCardID:        {"cardId", "cardNumber", "cardLast4"},
	ParamCardType:      {"cardType", "productType"},
	ParamEmail:         {"email", "newEmail"},
	ParamLoanID:        {"loanId", "loanAccountNumber"},
	ParamMobileNumber:  {"mobileNumber", "mobile", "phone"},
	ParamProductID:     {"productId", "loanProductId", "productName"},
	ParamScheduleDate:  {"scheduleDate", "scheduledDate", "date"},
	ParamTransferID:    {"transferId", "referenceNumber", "reference"},
}

// Aliases returns the entity keys recognized for param.
func Aliases(param string) []string {
	if keys, ok := aliases[param]; ok {
		return append([]string(nil), keys...)
	}
	return []string{param}
}

// Intent is a classification parsed for one module.
type Intent interface {
	Module() model.ModuleCode
	Submodule() string
	// Has reports whether the parameter is present and usable.
	Has(param string) bool
	// Entities returns the raw entity map the intent was parsed from.
	Entities() model.Entities
}

type base struct {
	entities  model.Entities
	module    model.ModuleCode
	submodule string
}

func (b base) Module() model.ModuleCode { return b.module }
func (b base) Submodule() string        { return b.submodule }
func (b base) Entities() model.Entities { return b.entities }
func (b base) lookup(param string) string {
	_, v := b.entities.First(Aliases(param)...)
	return v
}

// Has falls back to the alias table for parameters a module does not model.
func (b base) Has(param string) bool {
	if param == ParamAmount {
		return positiveAmount(b.entities).IsPositive()
	}
	return b.lookup(param) != ""
}

// TransferIntent is a funds-movement or transfer-query request.
type TransferIntent struct {
	Amount decimal.Decimal
	base
	SourceAccountID     string
	SourceAccountNumber string
	SourceAccountType   string
	BeneficiaryID       string
	BeneficiaryName     string
	ToAccountID         string
	Currency            string
	Notes               string
	ScheduleDate        string
	TransferID          string
}

// Has implements Intent.
func (t TransferIntent) Has(param string) bool {
	switch param {
	case ParamBeneficiary:
		return t.BeneficiaryID != "" || t.BeneficiaryName != "" || t.ToAccountID != ""
	case ParamAmount:
		return t.Amount.IsPositive()
	case ParamScheduleDate:
		return t.ScheduleDate != ""
	case ParamTransferID:
		return t.TransferID != ""
	case ParamAccountNumber:
		return t.HasSource()
	}
	return t.base.Has(param)
}

// HasSource reports whether any form of source account was named.
func (t TransferIntent) HasSource() bool {
	return t.SourceAccountID != "" || t.SourceAccountNumber != "" || t.SourceAccountType != ""
}

// BeneficiaryTerm returns the value used to search for the named beneficiary.
func (t TransferIntent) BeneficiaryTerm() string {
	for _, v := range []string{t.BeneficiaryID, t.BeneficiaryName, t.ToAccountID} {
		if v != "" {
			return v
		}
	}
	return ""
}

// ScheduledAt parses the schedule date. Dates without a time use midnight UTC.
func (t TransferIntent) ScheduledAt() (time.Time, bool) {
	if t.ScheduleDate == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02"} {
		if ts, err := time.Parse(layout, t.ScheduleDate); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// AccountIntent is an account query.
type AccountIntent struct {
	base
	AccountNumber string
	AccountType   string
	Status        string
}

// Has implements Intent.
func (a AccountIntent) Has(param string) bool {
	if param == ParamAccountNumber {
		return a.AccountNumber != ""
	}
	return a.base.Has(param)
}

// CardIntent is a card query or card operation.
type CardIntent struct {
	base
	CardID   string
	CardType string
}

// Has implements Intent.
func (c CardIntent) Has(param string) bool {
	switch param {
	case ParamCardID:
		return c.CardID != ""
	case ParamCardType:
		return c.CardType != ""
	}
	return c.base.Has(param)
}

// LoanIntent is a loan query or loan operation.
type LoanIntent struct {
	Amount decimal.Decimal
	base
	LoanID    string
	ProductID string
}

// Has implements Intent.
func (l LoanIntent) Has(param string) bool {
	switch param {
	case ParamLoanID:
		return l.LoanID != ""
	case ParamProductID:
		return l.ProductID != ""
	case ParamAmount:
		return l.Amount.IsPositive()
	}
	return l.base.Has(param)
}

// BillIntent is a bill payment.
type BillIntent struct {
	Amount decimal.Decimal
	base
	Biller string
}

// Has implements Intent.
func (b BillIntent) Has(param string) bool {
	switch param {
	case ParamBiller:
		return b.Biller != ""
	case ParamAmount:
		return b.Amount.IsPositive()
	}
	return b.base.Has(param)
}

// ProfileIntent is a profile update.
type ProfileIntent struct {
	base
	Address      string
	MobileNumber string
	Email        string
}

// Has implements Intent.
func (p ProfileIntent) Has(param string) bool {
	switch param {
	case ParamAddress:
		return p.Address != ""
	case ParamMobileNumber:
		return p.MobileNumber != ""
	case ParamEmail:
		return p.Email != ""
	}
	return p.base.Has(param)
}

// BeneficiaryIntent is a beneficiary query or edit.
type BeneficiaryIntent struct {
	base
	BeneficiaryID string
	Name          string
	AccountNumber string
	BankName      string
}

// Has implements Intent.
func (b BeneficiaryIntent) Has(param string) bool {
	if param == ParamBeneficiary {
		return b.BeneficiaryID != "" || b.Name != ""
	}
	return b.base.Has(param)
}

// AnalyticsIntent is an analytics request. Its parameters are open-ended, so
// Has falls back to the entity map.
type AnalyticsIntent struct {
	Filters map[string]any
	base
	AnalyticsType     string
	VisualizationType string
	Flow              model.Flow
}

// Parse converts a classification into the intent for its module. Error
// responses and unknown modules are rejected.
func Parse(resp *model.ClassificationResponse) (Intent, error) {
	if resp.IsError() {
		return nil, common.ErrClassificationFailed
	}

	b := base{
		entities:  resp.Entities.Clone(),
		module:    resp.ModuleCode,
		submodule: resp.SubmoduleCode,
	}

	switch resp.ModuleCode {
	case model.ModuleTransfers:
		t := TransferIntent{
			base:              b,
			Amount:            positiveAmount(b.entities),
			SourceAccountID:   b.entities.String("sourceAccountId"),
			SourceAccountType: b.entities.String("sourceAccountType"),
			BeneficiaryID:     b.entities.String("beneficiaryId"),
			BeneficiaryName:   firstOf(b.entities, "beneficiaryName", "recipient", "beneficiary"),
			ToAccountID:       b.entities.String("toAccountId"),
			Currency:          b.entities.String("currency"),
			Notes:             firstOf(b.entities, "notes", "description", "remarks"),
			ScheduleDate:      b.lookup(ParamScheduleDate),
			TransferID:        b.lookup(ParamTransferID),
		}
		t.SourceAccountNumber = firstOf(b.entities, "sourceAccountNumber", "fromAccountNumber", "accountNumber")
		return t, nil
	case model.ModuleAccounts:
		return AccountIntent{
			base:          b,
			AccountNumber: b.lookup(ParamAccountNumber),
			AccountType:   b.entities.String("accountType"),
			Status:        firstOf(b.entities, "accountStatus", "status"),
		}, nil
	case model.ModuleCards:
		return CardIntent{
			base:     b,
			CardID:   b.lookup(ParamCardID),
			CardType: b.lookup(ParamCardType),
		}, nil
	case model.ModuleLoans:
		return LoanIntent{
			base:      b,
			Amount:    positiveAmount(b.entities),
			LoanID:    b.lookup(ParamLoanID),
			ProductID: b.lookup(ParamProductID),
		}, nil
	case model.ModuleBills:
		return BillIntent{
			base:   b,
			Amount: positiveAmount(b.entities),
			Biller: b.lookup(ParamBiller),
		}, nil
	case model.ModuleProfile:
		return ProfileIntent{
			base:         b,
			Address:      b.lookup(ParamAddress),
			MobileNumber: b.lookup(ParamMobileNumber),
			Email:        b.lookup(ParamEmail),
		}, nil
	case model.ModuleBeneficiaries:
		return BeneficiaryIntent{
			base:          b,
			BeneficiaryID: b.entities.String("beneficiaryId"),
			Name:          firstOf(b.entities, "beneficiaryName", "name", "recipient"),
			AccountNumber: b.entities.String("accountNumber"),
			BankName:      b.entities.String("bankName"),
		}, nil
	case model.ModuleAnalytics:
		return AnalyticsIntent{
			base:              b,
			Filters:           resp.Filters,
			AnalyticsType:     resp.AnalyticsType,
			VisualizationType: resp.VisualizationType,
			Flow:              resp.Flow,
		}, nil
	default:
		return nil, fmt.Errorf("module %q: %w", resp.ModuleCode, common.ErrUnknownModule)
	}
}

// Missing returns the required parameters the intent lacks, in order.
func Missing(intent Intent, requires []string) []string {
	var missing []string
	for _, param := range requires {
		if !intent.Has(param) {
			missing = append(missing, param)
		}
	}
	return missing
}

func positiveAmount(e model.Entities) decimal.Decimal {
	for _, key := range aliases[ParamAmount] {
		if d, ok := e.Decimal(key); ok && d.IsPositive() {
			return d
		}
	}
	return decimal.Zero
}

func firstOf(e model.Entities, keys ...string) string {
	_, v := e.First(keys...)
	return v
}
