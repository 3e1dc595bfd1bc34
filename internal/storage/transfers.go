package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/banktalk/internal/model"
)

// internationalFee is charged on top of the amount for international transfers.
var internationalFee = decimal.NewFromInt(25)

// Transfer statuses written by the sandbox.
const (
	statusCompleted  = "completed"
	statusProcessing = "processing"
	statusScheduled  = "scheduled"
)

type sandboxAccount struct {
	balance decimal.Decimal
	id      string
	userID  string
	number  string
	status  string
}

// SubmitTransfer moves funds between sandbox accounts. A request whose
// idempotency key was already used returns the original receipt without
// moving funds again. Scheduled transfers are recorded but debit nothing.
func (s *SQLiteStorage) SubmitTransfer(ctx context.Context, req model.TransferRequest) (*model.Receipt, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateTransferRequest(req); err != nil {
		return nil, err
	}

	kind := req.Kind
	if kind == "" {
		kind = model.TransferImmediate
	}
	now := s.now()

	var receipt *model.Receipt
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if req.IdempotencyKey != "" {
			existing, err := s.transferByKey(ctx, tx, req.IdempotencyKey)
			if err != nil {
				return err
			}
			if existing != nil {
				slog.Info("Replayed transfer submission",
					"transfer_id", existing.TransferID,
					"idempotency_key", req.IdempotencyKey)
				receipt = existing
				return nil
			}
		}

		from, err := accountByRef(ctx, tx, req.FromAccountID)
		if err != nil {
			return err
		}
		if from == nil {
			return rejectTransfer("Account not found")
		}
		if from.userID != req.UserID {
			return rejectTransfer("Unauthorized access to account")
		}
		if from.status != "" && from.status != "active" {
			return rejectTransfer("Account is not active")
		}

		fees := decimal.Zero
		if kind == model.TransferInternational {
			fees = internationalFee
		}
		if from.balance.LessThan(req.Amount.Add(fees)) {
			return rejectTransfer("Insufficient funds")
		}

		rec := transferRow{
			kind:      kind,
			amount:    req.Amount,
			fees:      fees,
			currency:  req.Currency,
			createdAt: now,
		}
		if rec.currency == "" {
			rec.currency = "USD"
		}
		switch kind {
		case model.TransferSchedule:
			if !req.ScheduledDate.After(now) {
				return rejectTransfer("Scheduled date must be in the future")
			}
			rec.status = statusScheduled
			rec.scheduled = req.ScheduledDate
		case model.TransferInternational:
			rec.status = statusProcessing
			rec.executed = &now
		default:
			rec.status = statusCompleted
			rec.executed = &now
		}

		id, err := nextTransferID(ctx, tx)
		if err != nil {
			return err
		}
		rec.id = id
		rec.reference = req.Reference
		if rec.reference == "" {
			rec.reference = fmt.Sprintf("%s-%d", referencePrefix(kind), now.UnixMilli())
		}

		if err := insertTransfer(ctx, tx, req, rec); err != nil {
			return err
		}
		if rec.executed != nil {
			if err := moveFunds(ctx, tx, from, req.ToAccountID, req.Amount, fees); err != nil {
				return err
			}
		}

		receipt = rec.receipt(req)
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Sandbox transfer accepted",
		"transfer_id", receipt.TransferID,
		"status", receipt.Status,
		"amount", receipt.Amount.String())
	return receipt, nil
}

type transferRow struct {
	createdAt time.Time
	scheduled *time.Time
	executed  *time.Time
	amount    decimal.Decimal
	fees      decimal.Decimal
	kind      model.TransferKind
	id        string
	currency  string
	status    string
	reference string
}

func (r transferRow) transferType() string {
	if r.kind == model.TransferInternational {
		return string(model.TransferInternational)
	}
	return string(model.TransferDomestic)
}

func (r transferRow) receipt(req model.TransferRequest) *model.Receipt {
	at := r.createdAt
	switch {
	case r.executed != nil:
		at = *r.executed
	case r.scheduled != nil:
		at = *r.scheduled
	}
	return &model.Receipt{
		Timestamp:   at,
		Amount:      r.amount,
		TransferID:  r.id,
		Reference:   r.reference,
		Status:      r.status,
		Currency:    r.currency,
		FromAccount: req.FromAccountID,
		ToAccount:   req.ToAccountID,
	}
}

func referencePrefix(kind model.TransferKind) string {
	switch kind {
	case model.TransferDomestic:
		return "DOM"
	case model.TransferInternational:
		return "INT"
	default:
		return "TRF"
	}
}

func nextTransferID(ctx context.Context, q queryable) (string, error) {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM transfers`).Scan(&n); err != nil {
		return "", fmt.Errorf("failed to count transfers: %w", err)
	}
	return fmt.Sprintf("TRF%03d", n+1), nil
}

func insertTransfer(ctx context.Context, q queryable, req model.TransferRequest, rec transferRow) error {
	var key any
	if req.IdempotencyKey != "" {
		key = req.IdempotencyKey
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO transfers (
			id, user_id, from_account_id, to_account_id, beneficiary_id, amount, fees,
			currency, type, status, description, reference, idempotency_key,
			scheduled_date, executed_date, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.id, req.UserID, req.FromAccountID, req.ToAccountID, req.BeneficiaryID, rec.amount, rec.fees,
		rec.currency, rec.transferType(), rec.status, req.Description, rec.reference, key,
		nullTime(rec.scheduled), nullTime(rec.executed), rec.createdAt)
	if err != nil {
		return fmt.Errorf("failed to insert transfer: %w", err)
	}
	return nil
}

// moveFunds debits the source and, when the destination is a sandbox
// account, credits it.
func moveFunds(ctx context.Context, q queryable, from *sandboxAccount, toRef string, amount, fees decimal.Decimal) error {
	debited := from.balance.Sub(amount).Sub(fees)
	if _, err := q.ExecContext(ctx, `UPDATE accounts SET balance = ? WHERE id = ?`, debited, from.id); err != nil {
		return fmt.Errorf("failed to debit account: %w", err)
	}

	to, err := accountByRef(ctx, q, toRef)
	if err != nil {
		return err
	}
	if to == nil || to.id == from.id {
		return nil
	}
	if _, err := q.ExecContext(ctx, `UPDATE accounts SET balance = ? WHERE id = ?`, to.balance.Add(amount), to.id); err != nil {
		return fmt.Errorf("failed to credit account: %w", err)
	}
	return nil
}

// accountByRef finds an account by id or account number. It returns nil
// when there is no such account.
func accountByRef(ctx context.Context, q queryable, ref string) (*sandboxAccount, error) {
	var a sandboxAccount
	err := q.QueryRowContext(ctx, `
		SELECT id, user_id, account_number, balance, status
		FROM accounts
		WHERE id = ? OR account_number = ?
		LIMIT 1
	`, ref, ref).Scan(&a.id, &a.userID, &a.number, &a.balance, &a.status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &a, nil
}

func (s *SQLiteStorage) transferByKey(ctx context.Context, q queryable, key string) (*model.Receipt, error) {
	records, err := s.queryTransfers(ctx, q, `WHERE idempotency_key = ?`, key)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	t := records[0]
	at := s.now()
	switch {
	case t.ExecutedDate != nil:
		at = *t.ExecutedDate
	case t.ScheduledDate != nil:
		at = *t.ScheduledDate
	}
	return &model.Receipt{
		Timestamp:   at,
		Amount:      t.Amount,
		TransferID:  t.ID,
		Reference:   t.Reference,
		Status:      t.Status,
		Currency:    t.Currency,
		FromAccount: t.FromAccountID,
		ToAccount:   t.ToAccountID,
	}, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
