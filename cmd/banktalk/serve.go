package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/Veraticus/banktalk/internal/conversation"
	"github.com/Veraticus/banktalk/internal/server"
	"github.com/Veraticus/banktalk/internal/transfer"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Serve the conversation, resolution and transfer API.

Conversations stream updates over a WebSocket at
/api/conversations/{id}/stream and Prometheus metrics are exposed at /metrics.`,
		RunE: runServe,
	}
	cmd.Flags().String("addr", "", "listen address (default :8080)")
	_ = viper.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.openClassifier(); err != nil {
		return err
	}
	if err := a.openBank(ctx); err != nil {
		return err
	}

	if healthErr := a.classifier.Health(ctx); healthErr != nil {
		slog.Warn("NLP service is not reachable yet", "base_url", a.cfg.NLP.BaseURL, "error", healthErr)
	}

	sessions := transfer.NewMemoryStore(a.cfg.Transfer.SessionMaxAge)
	flow := a.newFlow()
	registry := conversation.NewRegistry(conversation.Deps{
		Classifier: a.classifier,
		Directory:  a.bank,
		Resolver:   a.resolver,
		Flow:       flow,
		Sessions:   sessions,
		Timeout:    a.cfg.NLP.Timeout,
	})

	if err := a.metrics.RegisterGauge("conversation", "live", "Conversations currently open.",
		func() float64 { return float64(registry.Len()) }); err != nil {
		return fmt.Errorf("failed to register gauge: %w", err)
	}
	if err := a.metrics.RegisterGauge("transfer", "sessions", "Transfer sessions currently held.",
		func() float64 { return float64(sessions.Len()) }); err != nil {
		return fmt.Errorf("failed to register gauge: %w", err)
	}

	srv := server.New(server.Config{
		Resolver:      a.resolver,
		Conversations: registry,
		Flow:          flow,
		Sessions:      sessions,
		Analytics:     a.bank,
		Metrics:       a.metrics,
		Addr:          a.cfg.Server.Addr,
		ReadTimeout:   a.cfg.Server.ReadTimeout,
		WriteTimeout:  a.cfg.Server.WriteTimeout,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		registry.Close()
		sessions.Stop()
		slog.Info("Closed conversations and transfer sessions")
		return nil
	})

	slog.Info("Starting banktalk API",
		"addr", a.cfg.Server.Addr,
		"data_source", a.cfg.Data.Source,
		"rules_version", a.resolver.Table().Version())
	return g.Wait()
}
