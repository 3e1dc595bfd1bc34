// Package transfer implements the multi-step money transfer flow.
package transfer

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/banktalk/internal/model"
)

// Step is a state of the transfer flow.
type Step string

// Steps, in flow order.
const (
	StepSelectAccount     Step = "SELECT_ACCOUNT"
	StepSelectBeneficiary Step = "SELECT_BENEFICIARY"
	StepEnterAmount       Step = "ENTER_AMOUNT"
	StepConfirm           Step = "CONFIRM"
	StepOTPPending        Step = "OTP_PENDING"
	StepSuccess           Step = "SUCCESS"
)

// Steps lists every step in flow order.
var Steps = []Step{
	StepSelectAccount,
	StepSelectBeneficiary,
	StepEnterAmount,
	StepConfirm,
	StepOTPPending,
	StepSuccess,
}

// Valid reports whether s is a known step.
func (s Step) Valid() bool {
	for _, step := range Steps {
		if s == step {
			return true
		}
	}
	return false
}

// Session is the state of one transfer conversation.
type Session struct {
	CreatedAt             time.Time           `json:"createdAt"`
	UpdatedAt             time.Time           `json:"updatedAt"`
	Amount                decimal.Decimal     `json:"amount"`
	ScheduledDate         *time.Time          `json:"scheduledDate,omitempty"`
	Receipt               *model.Receipt      `json:"receipt,omitempty"`
	Entities              model.Entities      `json:"entities"`
	ID                    string              `json:"id"`
	UserID                string              `json:"userId"`
	Module                model.ModuleCode    `json:"moduleCode"`
	Submodule             string              `json:"submoduleCode"`
	Kind                  model.TransferKind  `json:"kind"`
	Step                  Step                `json:"step"`
	SelectedAccountID     string              `json:"selectedAccountId"`
	SelectedBeneficiaryID string              `json:"selectedBeneficiaryId"`
	Currency              string              `json:"currency"`
	Notes                 string              `json:"notes,omitempty"`
	SearchTerm            string              `json:"searchTerm,omitempty"`
	AccountsError         string              `json:"accountsError,omitempty"`
	BeneficiariesError    string              `json:"beneficiariesError,omitempty"`
	OTPError              string              `json:"otpError,omitempty"`
	LastError             string              `json:"lastError,omitempty"`
	IdempotencyKey        string              `json:"-"`
	Accounts              []model.Account     `json:"accounts"`
	Beneficiaries         []model.Beneficiary `json:"beneficiaries"`
	History               []Step              `json:"history,omitempty"`
}

// Account returns the selected source account.
func (s *Session) Account() (model.Account, bool) {
	for _, acc := range s.Accounts {
		if acc.ID == s.SelectedAccountID {
			return acc, true
		}
	}
	return model.Account{}, false
}

// Beneficiary returns the selected beneficiary.
func (s *Session) Beneficiary() (model.Beneficiary, bool) {
	for _, b := range s.Beneficiaries {
		if b.ID == s.SelectedBeneficiaryID {
			return b, true
		}
	}
	return model.Beneficiary{}, false
}

// HasAmount reports whether a positive amount is known.
func (s *Session) HasAmount() bool {
	return s.Amount.IsPositive()
}

// NeedsSchedule reports whether the transfer still lacks its execution date.
func (s *Session) NeedsSchedule() bool {
	return s.Kind == model.TransferSchedule && s.ScheduledDate == nil
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		panic(fmt.Sprintf("failed to marshal transfer session for copy: %v", err))
	}
	var c Session
	if err := json.Unmarshal(data, &c); err != nil {
		panic(fmt.Sprintf("failed to unmarshal transfer session for copy: %v", err))
	}
	c.IdempotencyKey = s.IdempotencyKey
	if c.Entities == nil {
		c.Entities = model.Entities{}
	}
	return &c
}

func (s *Session) push(next Step) {
	s.History = append(s.History, s.Step)
	s.Step = next
}
