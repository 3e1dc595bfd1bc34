package tui

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
)

// New builds the chat model without starting a program. It is used by Run
// and by tests that drive the model directly.
func New(ctx context.Context, conv Conversation, opts ...Option) (Model, error) {
	if conv == nil {
		return Model{}, errors.New("conversation is required")
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return newModel(ctx, conv, cfg), nil
}

// Run starts the chat client on the terminal and blocks until the user quits
// or ctx is canceled.
func Run(ctx context.Context, conv Conversation, opts ...Option) error {
	m, err := New(ctx, conv, opts...)
	if err != nil {
		return err
	}
	defer m.unsubscribe()

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("chat client: %w", err)
	}
	return nil
}
