package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed sandbox.yaml
var defaultFixtures []byte

// Fixtures is the seed data for a sandbox database. Amounts are decimal
// strings.
type Fixtures struct {
	Customers []struct {
		UserID    string `yaml:"user_id"`
		FirstName string `yaml:"first_name"`
		LastName  string `yaml:"last_name"`
		Email     string `yaml:"email"`
		Mobile    string `yaml:"mobile"`
		Address   string `yaml:"address"`
	} `yaml:"customers"`
	Accounts []struct {
		ID              string `yaml:"id"`
		UserID          string `yaml:"user_id"`
		AccountNumber   string `yaml:"account_number"`
		AccountType     string `yaml:"account_type"`
		AccountTypeName string `yaml:"account_type_name"`
		Balance         string `yaml:"balance"`
		Currency        string `yaml:"currency"`
		Status          string `yaml:"status"`
	} `yaml:"accounts"`
	Beneficiaries []struct {
		ID            string `yaml:"id"`
		UserID        string `yaml:"user_id"`
		Name          string `yaml:"name"`
		Nickname      string `yaml:"nickname"`
		AccountNumber string `yaml:"account_number"`
		BankName      string `yaml:"bank_name"`
		Email         string `yaml:"email"`
		Phone         string `yaml:"phone"`
		Type          string `yaml:"type"`
		Status        string `yaml:"status"`
	} `yaml:"beneficiaries"`
	Cards []struct {
		ID          string `yaml:"id"`
		UserID      string `yaml:"user_id"`
		CardNumber  string `yaml:"card_number"`
		CardType    string `yaml:"card_type"`
		CreditLimit string `yaml:"credit_limit"`
		Status      string `yaml:"status"`
	} `yaml:"cards"`
	Loans []struct {
		ID          string `yaml:"id"`
		UserID      string `yaml:"user_id"`
		LoanType    string `yaml:"loan_type"`
		Principal   string `yaml:"principal"`
		Outstanding string `yaml:"outstanding"`
		Status      string `yaml:"status"`
	} `yaml:"loans"`
	Transfers []struct {
		ScheduledDate *time.Time `yaml:"scheduled_date"`
		ExecutedDate  *time.Time `yaml:"executed_date"`
		ID            string     `yaml:"id"`
		UserID        string     `yaml:"user_id"`
		FromAccountID string     `yaml:"from_account_id"`
		ToAccountID   string     `yaml:"to_account_id"`
		BeneficiaryID string     `yaml:"beneficiary_id"`
		Amount        string     `yaml:"amount"`
		Fees          string     `yaml:"fees"`
		Currency      string     `yaml:"currency"`
		Type          string     `yaml:"type"`
		Status        string     `yaml:"status"`
		Description   string     `yaml:"description"`
		Reference     string     `yaml:"reference"`
	} `yaml:"transfers"`
}

// DefaultFixtures returns the built-in sandbox data set.
func DefaultFixtures() (*Fixtures, error) {
	return ParseFixtures(defaultFixtures)
}

// LoadFixtures reads a fixture file.
func LoadFixtures(path string) (*Fixtures, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the command line
	if err != nil {
		return nil, fmt.Errorf("failed to read fixtures: %w", err)
	}
	return ParseFixtures(data)
}

// ParseFixtures decodes fixture YAML.
func ParseFixtures(data []byte) (*Fixtures, error) {
	var f Fixtures
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFixture, err)
	}
	return &f, nil
}

func parseAmount(value, field, id string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s %s: %w", ErrInvalidFixture, id, field, err)
	}
	return d, nil
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// Seed replaces the sandbox contents with f in a single transaction.
func (s *SQLiteStorage) Seed(ctx context.Context, f *Fixtures) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if f == nil {
		return fmt.Errorf("%w: fixtures", ErrNilParameter)
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"transfers", "loans", "cards", "beneficiaries", "accounts", "customers"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil { //nolint:gosec // fixed table names
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}

		for _, c := range f.Customers {
			if err := validateString(c.UserID, "customer user_id"); err != nil {
				return fmt.Errorf("%w: %w", ErrInvalidFixture, err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO customers (user_id, first_name, last_name, email, mobile, address)
				VALUES (?, ?, ?, ?, ?, ?)
			`, c.UserID, c.FirstName, c.LastName, c.Email, c.Mobile, c.Address); err != nil {
				return fmt.Errorf("failed to insert customer %s: %w", c.UserID, err)
			}
		}

		for _, a := range f.Accounts {
			balance, err := parseAmount(a.Balance, "balance", a.ID)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO accounts (id, user_id, account_number, account_type, account_type_name, balance, currency, status)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`, a.ID, a.UserID, a.AccountNumber, a.AccountType, a.AccountTypeName, balance,
				orDefault(a.Currency, "USD"), orDefault(a.Status, "active")); err != nil {
				return fmt.Errorf("failed to insert account %s: %w", a.ID, err)
			}
		}

		for _, b := range f.Beneficiaries {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO beneficiaries (id, user_id, name, nickname, account_number, bank_name, email, phone, type, status)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, b.ID, b.UserID, b.Name, b.Nickname, b.AccountNumber, b.BankName, b.Email, b.Phone,
				orDefault(b.Type, "domestic"), orDefault(b.Status, "active")); err != nil {
				return fmt.Errorf("failed to insert beneficiary %s: %w", b.ID, err)
			}
		}

		for _, c := range f.Cards {
			limit, err := parseAmount(c.CreditLimit, "credit_limit", c.ID)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO cards (id, user_id, card_number, card_type, credit_limit, status)
				VALUES (?, ?, ?, ?, ?, ?)
			`, c.ID, c.UserID, c.CardNumber, c.CardType, limit, orDefault(c.Status, "active")); err != nil {
				return fmt.Errorf("failed to insert card %s: %w", c.ID, err)
			}
		}

		for _, l := range f.Loans {
			principal, err := parseAmount(l.Principal, "principal", l.ID)
			if err != nil {
				return err
			}
			outstanding, err := parseAmount(l.Outstanding, "outstanding", l.ID)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO loans (id, user_id, loan_type, principal, outstanding, status)
				VALUES (?, ?, ?, ?, ?, ?)
			`, l.ID, l.UserID, l.LoanType, principal, outstanding, orDefault(l.Status, "active")); err != nil {
				return fmt.Errorf("failed to insert loan %s: %w", l.ID, err)
			}
		}

		for _, t := range f.Transfers {
			amount, err := parseAmount(t.Amount, "amount", t.ID)
			if err != nil {
				return err
			}
			fees, err := parseAmount(t.Fees, "fees", t.ID)
			if err != nil {
				return err
			}
			created := s.now()
			if t.ExecutedDate != nil {
				created = *t.ExecutedDate
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO transfers (
					id, user_id, from_account_id, to_account_id, beneficiary_id, amount, fees,
					currency, type, status, description, reference, scheduled_date, executed_date, created_at
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, t.ID, t.UserID, t.FromAccountID, t.ToAccountID, t.BeneficiaryID, amount, fees,
				orDefault(t.Currency, "USD"), orDefault(t.Type, "domestic"), orDefault(t.Status, statusCompleted),
				t.Description, t.Reference, nullTime(t.ScheduledDate), nullTime(t.ExecutedDate), created); err != nil {
				return fmt.Errorf("failed to insert transfer %s: %w", t.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.Info("Seeded sandbox",
		"customers", len(f.Customers),
		"accounts", len(f.Accounts),
		"beneficiaries", len(f.Beneficiaries),
		"transfers", len(f.Transfers))
	return nil
}

// Empty reports whether the sandbox holds no customers.
func (s *SQLiteStorage) Empty(ctx context.Context) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM customers").Scan(&n); err != nil {
		return false, fmt.Errorf("failed to count customers: %w", err)
	}
	return n == 0, nil
}
