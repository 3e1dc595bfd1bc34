package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/banktalk/internal/common"
	"github.com/Veraticus/banktalk/internal/model"
	"github.com/Veraticus/banktalk/internal/service"
)

// GetCustomer returns the customer's profile and accounts.
func (s *SQLiteStorage) GetCustomer(ctx context.Context, userID string) (*model.Customer, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	var p model.Profile
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, first_name, last_name, email, mobile, address
		FROM customers
		WHERE user_id = ?
	`, userID).Scan(&p.UserID, &p.FirstName, &p.LastName, &p.Email, &p.Mobile, &p.Address)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: customer %s", common.ErrNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}

	accounts, err := s.listAccounts(ctx, s.db, userID, service.AccountFilter{})
	if err != nil {
		return nil, err
	}
	return &model.Customer{Profile: p, Accounts: accounts}, nil
}

// ListAccounts returns the user's accounts matching filter. The account type
// filter accepts the type code or a spoken type such as "savings".
func (s *SQLiteStorage) ListAccounts(ctx context.Context, userID string, filter service.AccountFilter) ([]model.Account, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}
	return s.listAccounts(ctx, s.db, userID, filter)
}

func (s *SQLiteStorage) listAccounts(ctx context.Context, q queryable, userID string, filter service.AccountFilter) ([]model.Account, error) {
	query := `
		SELECT id, user_id, account_number, account_type, account_type_name, balance, currency, status
		FROM accounts
		WHERE user_id = ?`
	args := []any{userID}
	if filter.AccountNumber != "" {
		query += ` AND account_number = ?`
		args = append(args, filter.AccountNumber)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY id`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	accounts := []model.Account{}
	for rows.Next() {
		var a model.Account
		if err := rows.Scan(&a.ID, &a.UserID, &a.AccountNumber, &a.AccountType, &a.AccountTypeName, &a.Balance, &a.Currency, &a.Status); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		if filter.AccountType != "" && !a.MatchesType(filter.AccountType) {
			continue
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}
	return accounts, nil
}

// SearchBeneficiaries matches term against beneficiary names first, then
// against nickname, email, phone and account number. When nothing matches,
// or term is empty, every beneficiary is returned.
func (s *SQLiteStorage) SearchBeneficiaries(ctx context.Context, userID, term string) ([]model.Beneficiary, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, nickname, account_number, bank_name, email, phone, type, status
		FROM beneficiaries
		WHERE user_id = ?
		ORDER BY name
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query beneficiaries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	all := []model.Beneficiary{}
	for rows.Next() {
		var b model.Beneficiary
		if err := rows.Scan(&b.ID, &b.UserID, &b.Name, &b.Nickname, &b.AccountNumber, &b.BankName, &b.Email, &b.Phone, &b.Type, &b.Status); err != nil {
			return nil, fmt.Errorf("failed to scan beneficiary: %w", err)
		}
		all = append(all, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating beneficiaries: %w", err)
	}

	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return all, nil
	}

	var byName, byAny []model.Beneficiary
	for _, b := range all {
		if strings.Contains(strings.ToLower(b.Name), term) {
			byName = append(byName, b)
		}
		if b.Matches(term) {
			byAny = append(byAny, b)
		}
	}
	switch {
	case len(byName) > 0:
		return byName, nil
	case len(byAny) > 0:
		return byAny, nil
	default:
		return all, nil
	}
}

// ListCards returns the user's cards.
func (s *SQLiteStorage) ListCards(ctx context.Context, userID string) ([]model.Card, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, card_number, card_type, credit_limit, status
		FROM cards
		WHERE user_id = ?
		ORDER BY id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cards: %w", err)
	}
	defer func() { _ = rows.Close() }()

	cards := []model.Card{}
	for rows.Next() {
		var c model.Card
		if err := rows.Scan(&c.ID, &c.UserID, &c.CardNumber, &c.CardType, &c.CreditLimit, &c.Status); err != nil {
			return nil, fmt.Errorf("failed to scan card: %w", err)
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

// ListLoans returns the user's loans.
func (s *SQLiteStorage) ListLoans(ctx context.Context, userID string) ([]model.Loan, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, loan_type, principal, outstanding, status
		FROM loans
		WHERE user_id = ?
		ORDER BY id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query loans: %w", err)
	}
	defer func() { _ = rows.Close() }()

	loans := []model.Loan{}
	for rows.Next() {
		var l model.Loan
		if err := rows.Scan(&l.ID, &l.UserID, &l.LoanType, &l.Principal, &l.Outstanding, &l.Status); err != nil {
			return nil, fmt.Errorf("failed to scan loan: %w", err)
		}
		loans = append(loans, l)
	}
	return loans, rows.Err()
}

// ListTransfers returns the transfers out of one of the user's accounts,
// newest first.
func (s *SQLiteStorage) ListTransfers(ctx context.Context, userID, accountID string) ([]model.TransferRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.queryTransfers(ctx, s.db, `
		WHERE user_id = ? AND from_account_id = ?
		ORDER BY COALESCE(executed_date, scheduled_date, created_at) DESC, id DESC
	`, userID, accountID)
}

func (s *SQLiteStorage) queryTransfers(ctx context.Context, q queryable, where string, args ...any) ([]model.TransferRecord, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, from_account_id, to_account_id, amount, fees, currency, type, status,
			description, reference, scheduled_date, executed_date
		FROM transfers
	`+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transfers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	transfers := []model.TransferRecord{}
	for rows.Next() {
		var (
			t         model.TransferRecord
			scheduled sql.NullTime
			executed  sql.NullTime
		)
		if err := rows.Scan(&t.ID, &t.FromAccountID, &t.ToAccountID, &t.Amount, &t.Fees, &t.Currency, &t.Type, &t.Status,
			&t.Description, &t.Reference, &scheduled, &executed); err != nil {
			return nil, fmt.Errorf("failed to scan transfer: %w", err)
		}
		if scheduled.Valid {
			at := scheduled.Time
			t.ScheduledDate = &at
		}
		if executed.Valid {
			at := executed.Time
			t.ExecutedDate = &at
		}
		transfers = append(transfers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transfers: %w", err)
	}
	return transfers, nil
}
