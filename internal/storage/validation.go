// Package storage provides the SQLite sandbox bank used for local runs and
// tests in place of the remote data services.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/banktalk/internal/common"
	"github.com/Veraticus/banktalk/internal/model"
)

// Validation errors.
var (
	ErrNilContext     = errors.New("context cannot be nil")
	ErrEmptyString    = errors.New("string parameter cannot be empty")
	ErrNilParameter   = errors.New("parameter cannot be nil")
	ErrInvalidFixture = errors.New("invalid fixture")
)

// validateContext ensures the context is usable.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return ctx.Err()
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// rejectTransfer builds the error for a transfer the bank declines. The
// message is safe to show to the customer.
func rejectTransfer(message string) error {
	return common.NewUserError(message, fmt.Errorf("%w: %s", common.ErrTransferRejected, strings.ToLower(message)))
}

// validateTransferRequest checks the fields a transfer needs before any
// account lookup.
func validateTransferRequest(req model.TransferRequest) error {
	if err := validateString(req.UserID, "userId"); err != nil {
		return err
	}
	if err := validateString(req.FromAccountID, "fromAccountId"); err != nil {
		return err
	}
	if strings.TrimSpace(req.ToAccountID) == "" && strings.TrimSpace(req.BeneficiaryID) == "" {
		return rejectTransfer("A destination account or beneficiary is required")
	}
	if !req.Amount.IsPositive() {
		return rejectTransfer("Transfer amount must be greater than zero")
	}
	if req.Kind == model.TransferSchedule && req.ScheduledDate == nil {
		return rejectTransfer("Scheduled date is required")
	}
	return nil
}
