package tui

import (
	"github.com/Veraticus/banktalk/internal/conversation"
	"github.com/Veraticus/banktalk/internal/transfer"
)

// updateMsg carries one change to the conversation log.
type updateMsg struct {
	update conversation.Update
}

// streamClosedMsg is sent when the conversation ends the subscription.
type streamClosedMsg struct{}

// submittedMsg acknowledges an accepted utterance or follow-up.
type submittedMsg struct {
	placeholderID string
}

// sessionMsg carries a transfer session after a load or a step operation.
// session is set whenever the session was read, even if the operation failed.
type sessionMsg struct {
	err     error
	session *transfer.Session
	id      string
}

type errorMsg struct {
	err error
}
