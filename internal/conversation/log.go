package conversation

import (
	"fmt"
	"sync"

	"github.com/Veraticus/banktalk/internal/common"
	"github.com/Veraticus/banktalk/internal/model"
)

// Log is an ordered, append-only message log. Only loading placeholders are
// rewritten in place, and only by id.
type Log struct {
	index    map[string]int
	messages []model.Message
	mu       sync.RWMutex
}

// NewLog creates an empty log.
func NewLog() *Log {
	return &Log{index: make(map[string]int)}
}

// Append adds a message. Ids must be unique.
func (l *Log) Append(msg model.Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.index[msg.ID]; exists {
		return fmt.Errorf("duplicate message id %q", msg.ID)
	}
	l.index[msg.ID] = len(l.messages)
	l.messages = append(l.messages, msg.Clone())
	return nil
}

// Update applies fn to the message with id and returns the updated copy.
func (l *Log) Update(id string, fn func(*model.Message)) (model.Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	i, ok := l.index[id]
	if !ok {
		return model.Message{}, fmt.Errorf("%w: %s", common.ErrMessageNotFound, id)
	}
	msg := l.messages[i].Clone()
	fn(&msg)
	msg.ID = id
	l.messages[i] = msg
	return msg.Clone(), nil
}

// Get returns a copy of the message with id.
func (l *Log) Get(id string) (model.Message, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	i, ok := l.index[id]
	if !ok {
		return model.Message{}, fmt.Errorf("%w: %s", common.ErrMessageNotFound, id)
	}
	return l.messages[i].Clone(), nil
}

// All returns a copy of every message in order.
func (l *Log) All() []model.Message {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]model.Message, len(l.messages))
	for i, msg := range l.messages {
		out[i] = msg.Clone()
	}
	return out
}

// Len returns the number of messages.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}
