package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/viper"

	"github.com/Veraticus/banktalk/internal/bankapi"
	"github.com/Veraticus/banktalk/internal/common"
	"github.com/Veraticus/banktalk/internal/config"
	"github.com/Veraticus/banktalk/internal/metrics"
	"github.com/Veraticus/banktalk/internal/nlp"
	"github.com/Veraticus/banktalk/internal/resolver"
	"github.com/Veraticus/banktalk/internal/rules"
	"github.com/Veraticus/banktalk/internal/service"
	"github.com/Veraticus/banktalk/internal/storage"
	"github.com/Veraticus/banktalk/internal/transfer"
)

// app holds the collaborators a command needs. Fields are nil until the
// corresponding open method is called.
type app struct {
	cfg        *config.Config
	metrics    *metrics.Metrics
	resolver   *resolver.Resolver
	classifier *nlp.Client
	bank       service.Bank
	closers    []func()
}

func newApp() (*app, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, metrics: metrics.New()}

	table := rules.Default()
	if cfg.Rules.Path != "" {
		table, err = rules.LoadFile(cfg.Rules.Path)
		if err != nil {
			return nil, err
		}
		slog.Info("Loaded rule table", "path", cfg.Rules.Path, "version", table.Version())
	}
	a.resolver = resolver.New(table, resolver.WithRecorder(a.metrics))
	return a, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) openClassifier() error {
	client, err := nlp.New(nlp.Config{
		BaseURL:           a.cfg.NLP.BaseURL,
		Timeout:           a.cfg.NLP.Timeout,
		CacheTTL:          a.cfg.NLP.CacheTTL,
		RequestsPerMinute: a.cfg.NLP.RequestsPerMinute,
		Recorder:          a.metrics,
	})
	if err != nil {
		return fmt.Errorf("failed to create NLP client: %w", err)
	}
	a.classifier = client
	a.closers = append(a.closers, client.Close)
	return nil
}

// openBank connects the configured data source. The sandbox database is
// migrated, and seeded with the built-in fixtures when it is empty.
func (a *app) openBank(ctx context.Context) error {
	if a.cfg.Data.Source == config.SourceRemote {
		client, err := bankapi.New(bankapi.Config{
			BaseURL: a.cfg.Data.BaseURL,
			Token:   a.cfg.Data.Token,
			Timeout: a.cfg.Data.Timeout,
		})
		if err != nil {
			return fmt.Errorf("failed to create data service client: %w", err)
		}
		a.bank = client
		slog.Info("Using remote data service", "base_url", a.cfg.Data.BaseURL)
		return nil
	}

	db, err := openSandbox(ctx, a.cfg.Database.Path)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() {
		if closeErr := db.Close(); closeErr != nil {
			common.LogError(closeErr, "Failed to close database", common.Fields{"path": db.Path()})
		}
	})

	empty, err := db.Empty(ctx)
	if err != nil {
		return err
	}
	if empty {
		fixtures, fixturesErr := storage.DefaultFixtures()
		if fixturesErr != nil {
			return fixturesErr
		}
		if seedErr := db.Seed(ctx, fixtures); seedErr != nil {
			return fmt.Errorf("failed to seed sandbox: %w", seedErr)
		}
		common.LogInfo("Seeded empty sandbox with default fixtures", common.Fields{
			"path":      db.Path(),
			"customers": len(fixtures.Customers),
			"accounts":  len(fixtures.Accounts),
		})
	}

	a.bank = db
	slog.Info("Using sandbox data", "path", db.Path())
	return nil
}

func (a *app) newFlow() *transfer.Flow {
	return transfer.NewFlow(a.bank, a.bank,
		transfer.WithCallTimeout(a.cfg.Transfer.CallTimeout),
		transfer.WithRecorder(a.metrics))
}

func openSandbox(ctx context.Context, path string) (*storage.SQLiteStorage, error) {
	db, err := storage.NewSQLiteStorage(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

// readInput reads the named file, or stdin when name is empty or "-".
func readInput(stdin io.Reader, name string) ([]byte, error) {
	if name == "" || name == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(name) //nolint:gosec // path comes from the command line
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return data, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
