package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/banktalk/internal/conversation"
	"github.com/Veraticus/banktalk/internal/transfer"
	"github.com/Veraticus/banktalk/internal/tui"
)

func chatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the assistant in the terminal",
		Long: `Open an interactive chat for the configured customer.

Plain text is sent to the NLP service. Slash commands supply missing
parameters (/set) and walk an active transfer (/account, /search, /pick,
/amount, /confirm, /otp, /back, /reset). Type /help for the full list.`,
		RunE: runChat,
	}
	cmd.Flags().Bool("smart", false, "start in smart (multi-turn) mode")
	_ = viper.BindPFlag("chat.smart", cmd.Flags().Lookup("smart"))
	return cmd
}

func runChat(cmd *cobra.Command, _ []string) error {
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

	sessions := transfer.NewMemoryStore(a.cfg.Transfer.SessionMaxAge)
	defer sessions.Stop()
	flow := a.newFlow()

	registry := conversation.NewRegistry(conversation.Deps{
		Classifier: a.classifier,
		Directory:  a.bank,
		Resolver:   a.resolver,
		Flow:       flow,
		Sessions:   sessions,
		Timeout:    a.cfg.NLP.Timeout,
	})
	defer registry.Close()

	conv, err := registry.Create(ctx, a.cfg.User.ID, viper.GetBool("chat.smart"))
	if err != nil {
		return fmt.Errorf("failed to start conversation: %w", err)
	}

	opts := []tui.Option{tui.WithTransfers(flow, sessions)}
	if customer, custErr := a.bank.GetCustomer(ctx, a.cfg.User.ID); custErr == nil && customer != nil {
		opts = append(opts, tui.WithUserName(customer.Profile.DisplayName()))
	}
	return tui.Run(ctx, conv, opts...)
}
