package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Veraticus/banktalk/internal/conversation"
	"github.com/Veraticus/banktalk/internal/transfer"
)

// ErrNoTransfer is returned by transfer commands when the conversation has
// not started a transfer.
var ErrNoTransfer = errors.New("no transfer in progress")

// waitForUpdate blocks on the subscription and delivers the next change.
func waitForUpdate(updates <-chan conversation.Update) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-updates
		if !ok {
			return streamClosedMsg{}
		}
		return updateMsg{update: u}
	}
}

func submitUtterance(ctx context.Context, conv Conversation, text string) tea.Cmd {
	return func() tea.Msg {
		_, placeholderID, err := conv.SubmitUtterance(ctx, text)
		if err != nil {
			return errorMsg{err: err}
		}
		return submittedMsg{placeholderID: placeholderID}
	}
}

func submitFollowUp(ctx context.Context, conv Conversation, messageID string, entities map[string]any) tea.Cmd {
	return func() tea.Msg {
		placeholderID, err := conv.SubmitFollowUpParameter(ctx, messageID, entities)
		if err != nil {
			return errorMsg{err: err}
		}
		return submittedMsg{placeholderID: placeholderID}
	}
}

// transferRunner applies step commands to stored sessions. Operations on
// sessions are serialized.
type transferRunner struct {
	flow  *transfer.Flow
	store SessionStore
	mu    sync.Mutex
}

func (r *transferRunner) load(ctx context.Context, id string) tea.Cmd {
	return func() tea.Msg {
		s, err := r.store.Get(ctx, id)
		return sessionMsg{id: id, session: s, err: err}
	}
}

// run applies one command. Validation failures and failed submissions still
// save the session.
func (r *transferRunner) run(ctx context.Context, id, command, arg string) tea.Cmd {
	return func() tea.Msg {
		r.mu.Lock()
		defer r.mu.Unlock()

		s, err := r.store.Get(ctx, id)
		if err != nil {
			return sessionMsg{id: id, err: err}
		}

		err = r.apply(ctx, s, command, arg)

		var validation *transfer.ValidationError
		if err == nil || errors.As(err, &validation) || errors.Is(err, transfer.ErrSubmissionFailed) {
			if updateErr := r.store.Update(ctx, s); updateErr != nil {
				return sessionMsg{id: id, err: updateErr}
			}
		}
		return sessionMsg{id: id, session: s, err: err}
	}
}

func (r *transferRunner) apply(ctx context.Context, s *transfer.Session, command, arg string) error {
	switch command {
	case "account":
		return r.flow.SelectAccount(s, arg)
	case "search":
		return r.flow.Search(ctx, s, arg)
	case "pick":
		return r.flow.SelectBeneficiary(s, arg)
	case "amount":
		return r.flow.EnterAmount(s, parseAmountInput(arg))
	case "confirm":
		return r.flow.Confirm(s)
	case "otp":
		if arg == "" {
			r.flow.EditOTP(s)
			return nil
		}
		return r.flow.SubmitOTP(ctx, s, arg)
	case "back":
		return r.flow.Back(s)
	case "reset":
		r.flow.Reset(s)
		return nil
	}
	return fmt.Errorf("unknown transfer command %q", command)
}

// parseAmountInput reads "<amount> [on YYYY-MM-DD] [notes...]".
func parseAmountInput(arg string) transfer.AmountInput {
	fields := strings.Fields(arg)
	if len(fields) == 0 {
		return transfer.AmountInput{}
	}
	in := transfer.AmountInput{Amount: fields[0]}
	rest := fields[1:]
	if len(rest) >= 2 && strings.EqualFold(rest[0], "on") {
		in.ScheduleDate = rest[1]
		rest = rest[2:]
	}
	in.Notes = strings.Join(rest, " ")
	return in
}

// parseAssignments reads "key=value" pairs. A word without "=" continues
// the previous value, so "beneficiaryName=Bob Williams" keeps the space.
func parseAssignments(arg string) (map[string]any, error) {
	out := map[string]any{}
	last := ""
	for _, word := range strings.Fields(arg) {
		k, v, ok := strings.Cut(word, "=")
		if !ok {
			if last == "" {
				return nil, fmt.Errorf("expected key=value, got %q", word)
			}
			out[last] = out[last].(string) + " " + word
			continue
		}
		if k == "" {
			return nil, fmt.Errorf("missing key in %q", word)
		}
		out[k] = v
		last = k
	}
	if len(out) == 0 {
		return nil, errors.New("expected at least one key=value")
	}
	return out, nil
}
