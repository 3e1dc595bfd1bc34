package tui

import (
	"context"

	"github.com/Veraticus/banktalk/internal/conversation"
	"github.com/Veraticus/banktalk/internal/model"
	"github.com/Veraticus/banktalk/internal/transfer"
	"github.com/Veraticus/banktalk/internal/tui/themes"
)

// Conversation is the chat the client drives. *conversation.Orchestrator
// implements it.
type Conversation interface {
	Messages() []model.Message
	Subscribe() (<-chan conversation.Update, func())
	SubmitUtterance(ctx context.Context, text string) (userMessageID, placeholderID string, err error)
	SubmitFollowUpParameter(ctx context.Context, messageID string, updates map[string]any) (string, error)
	SmartMode() bool
	SetSmartMode(on bool)
}

// SessionStore loads and saves the transfer sessions a conversation starts.
type SessionStore interface {
	Get(ctx context.Context, id string) (*transfer.Session, error)
	Update(ctx context.Context, session *transfer.Session) error
}

// Config holds TUI configuration.
type Config struct {
	Theme    themes.Theme
	Flow     *transfer.Flow
	Sessions SessionStore
	UserName string
	Width    int
	Height   int
	ShowHelp bool
}

// Option is a functional option for configuring the TUI.
type Option func(*Config)

func defaultConfig() Config {
	return Config{
		Theme:  themes.Default,
		Width:  80,
		Height: 24,
	}
}

// WithTheme sets the color theme.
func WithTheme(theme themes.Theme) Option {
	return func(c *Config) {
		c.Theme = theme
	}
}

// WithTransfers enables the transfer commands. Without them transfer
// sessions are shown but cannot be advanced.
func WithTransfers(flow *transfer.Flow, sessions SessionStore) Option {
	return func(c *Config) {
		c.Flow = flow
		c.Sessions = sessions
	}
}

// WithUserName sets the name shown in the header.
func WithUserName(name string) Option {
	return func(c *Config) {
		c.UserName = name
	}
}

// WithSize sets the initial terminal size used before the first resize.
func WithSize(width, height int) Option {
	return func(c *Config) {
		c.Width = width
		c.Height = height
	}
}

// WithFullHelp starts with the full key help expanded.
func WithFullHelp() Option {
	return func(c *Config) {
		c.ShowHelp = true
	}
}
