// Package service defines the interfaces for all application services.
package service

import (
	"context"

	"github.com/Veraticus/banktalk/internal/model"
)

// SmartRequest is a multi-turn classification request.
type SmartRequest struct {
	UserID       string `json:"user_id"`
	Text         string `json:"text"`
	IsNewSession bool   `json:"is_new_session"`
}

// CompletionRequest carries follow-up parameters for a previously classified request.
type CompletionRequest struct {
	Parameters model.Entities   `json:"parameters"`
	Module     model.ModuleCode `json:"module"`
	SubModule  string           `json:"sub_module"`
}

// Classifier is the contract of the NLP backend.
type Classifier interface {
	// ProcessText classifies a single utterance with no conversation memory.
	ProcessText(ctx context.Context, userID, text string) (*model.ClassificationResponse, error)
	// ProcessSmartText classifies an utterance as part of a multi-turn exchange.
	ProcessSmartText(ctx context.Context, req SmartRequest) (*model.ClassificationResponse, error)
	// CompleteAction re-classifies a request after missing parameters were supplied.
	CompleteAction(ctx context.Context, req CompletionRequest) (*model.ClassificationResponse, error)
}

// AccountFilter narrows an account listing using extracted entities.
type AccountFilter struct {
	AccountNumber string
	AccountType   string
	Status        string
}

// Directory provides read access to a customer's banking data.
type Directory interface {
	GetCustomer(ctx context.Context, userID string) (*model.Customer, error)
	ListAccounts(ctx context.Context, userID string, filter AccountFilter) ([]model.Account, error)
	// SearchBeneficiaries returns the beneficiaries matching term. An empty
	// term, or a term that matches nothing, returns every beneficiary.
	SearchBeneficiaries(ctx context.Context, userID, term string) ([]model.Beneficiary, error)
	ListCards(ctx context.Context, userID string) ([]model.Card, error)
	ListLoans(ctx context.Context, userID string) ([]model.Loan, error)
	ListTransfers(ctx context.Context, userID, accountID string) ([]model.TransferRecord, error)
}

// TransferSubmitter performs the funds movement once a transfer is verified.
type TransferSubmitter interface {
	SubmitTransfer(ctx context.Context, req model.TransferRequest) (*model.Receipt, error)
}

// AnalyticsFetcher returns chart-ready data for analytics classifications.
type AnalyticsFetcher interface {
	FetchAnalytics(ctx context.Context, req model.AnalyticsRequest) (model.AnalyticsPayload, error)
}

// Bank is the full set of banking data services.
type Bank interface {
	Directory
	TransferSubmitter
	AnalyticsFetcher
}
