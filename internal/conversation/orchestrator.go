// Package conversation owns a chat conversation: its message log, the
// smart-mode toggle and the dispatch of utterances and follow-up parameters
// through classification and resolution.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/banktalk/internal/model"
	"github.com/Veraticus/banktalk/internal/resolver"
	"github.com/Veraticus/banktalk/internal/service"
	"github.com/Veraticus/banktalk/internal/transfer"
)

// User-facing text for failed calls.
const (
	processFailedText  = "Sorry, I couldn't process your request."
	completeFailedText = "Sorry, I couldn't complete the action."
	timeoutText        = "The request took too long to complete. Please try again."
	timeoutSuggestion  = "The banking assistant is busy right now. Retrying usually helps."
	welcomeID          = "welcome"
	subscriberBuffer   = 64
	defaultTimeout     = 30 * time.Second
)

var (
	// ErrClosed is returned by operations on a closed conversation.
	ErrClosed = errors.New("conversation closed")
	// ErrEmptyUtterance is returned when the submitted text is blank.
	ErrEmptyUtterance = errors.New("utterance is empty")
	// ErrNoClassification is returned when a follow-up targets a message
	// that carries no classification.
	ErrNoClassification = errors.New("message has no classification")
)

// UpdateKind says whether a message was added or rewritten.
type UpdateKind string

// Update kinds.
const (
	UpdateAppended UpdateKind = "appended"
	UpdateReplaced UpdateKind = "updated"
)

// Update is published to subscribers for every change to the log.
type Update struct {
	Kind    UpdateKind    `json:"type"`
	Message model.Message `json:"message"`
}

// SessionStore persists transfer sessions started by the conversation.
type SessionStore interface {
	Create(ctx context.Context, session *transfer.Session) error
}

// Options configures an Orchestrator.
type Options struct {
	Customer   *model.Customer
	Flow       *transfer.Flow
	Sessions   SessionStore
	Now        func() time.Time
	NewID      func() string
	UserID     string
	Timeout    time.Duration
	SmartMode  bool
	NoGreeting bool
}

// Orchestrator coordinates one conversation. All methods are safe for
// concurrent use.
type Orchestrator struct {
	ctx        context.Context
	classifier service.Classifier
	resolver   *resolver.Resolver
	flow       *transfer.Flow
	sessions   SessionStore
	customer   *model.Customer
	log        *Log
	now        func() time.Time
	newID      func() string
	subs       map[int]chan Update
	cancel     context.CancelFunc
	id         string
	userID     string
	wg         sync.WaitGroup
	timeout    time.Duration
	nextSub    int
	mu         sync.Mutex
	smartMode  bool
	newSession bool
	closed     bool
}

// New creates a conversation. When a customer is known the log starts with a
// greeting.
func New(classifier service.Classifier, res *resolver.Resolver, opts Options) *Orchestrator {
	if res == nil {
		res = resolver.New(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.UserID == "" && opts.Customer != nil {
		opts.UserID = opts.Customer.Profile.UserID
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		ctx:        ctx,
		cancel:     cancel,
		classifier: classifier,
		resolver:   res,
		flow:       opts.Flow,
		sessions:   opts.Sessions,
		customer:   opts.Customer,
		log:        NewLog(),
		now:        opts.Now,
		newID:      opts.NewID,
		subs:       make(map[int]chan Update),
		id:         opts.NewID(),
		userID:     opts.UserID,
		timeout:    opts.Timeout,
		smartMode:  opts.SmartMode,
		newSession: true,
	}

	if opts.Customer != nil && !opts.NoGreeting {
		_ = o.log.Append(model.Message{
			ID:        welcomeID,
			Timestamp: o.now(),
			Text:      Greeting(o.now(), opts.Customer.Profile.DisplayName()),
		})
	}
	return o
}

// Greeting returns the welcome text for the time of day.
func Greeting(at time.Time, name string) string {
	var greeting string
	switch hour := at.Hour(); {
	case hour < 12:
		greeting = "Good morning"
	case hour < 18:
		greeting = "Good afternoon"
	default:
		greeting = "Good evening"
	}
	if name == "" {
		return fmt.Sprintf("%s! I'm your banking assistant. How can I help you today?", greeting)
	}
	return fmt.Sprintf("%s, %s! I'm your banking assistant. How can I help you today?", greeting, name)
}

// ID identifies the conversation.
func (o *Orchestrator) ID() string { return o.id }

// UserID is the customer the conversation belongs to.
func (o *Orchestrator) UserID() string { return o.userID }

// SmartMode reports whether multi-turn classification is on.
func (o *Orchestrator) SmartMode() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.smartMode
}

// SetSmartMode switches classification mode. Any switch starts a fresh
// multi-turn exchange on the next smart utterance.
func (o *Orchestrator) SetSmartMode(on bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.smartMode = on
	o.newSession = true
}

// Messages returns the log in order.
func (o *Orchestrator) Messages() []model.Message {
	return o.log.All()
}

// Message returns one message by id.
func (o *Orchestrator) Message(id string) (model.Message, error) {
	return o.log.Get(id)
}

// SubmitUtterance appends the user's message and a loading placeholder, then
// classifies the text in the background. The placeholder is later replaced
// with the resolved response or a user-safe error.
func (o *Orchestrator) SubmitUtterance(ctx context.Context, text string) (userMessageID, placeholderID string, err error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", "", ErrEmptyUtterance
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return "", "", ErrClosed
	}
	smart := o.smartMode
	isNew := false
	if smart {
		isNew = o.newSession
		o.newSession = false
	}
	userMessageID, placeholderID = o.newID(), o.newID()
	o.wg.Add(1)
	o.mu.Unlock()

	now := o.now()
	o.append(model.Message{ID: userMessageID, Timestamp: now, IsUser: true, Text: text})
	o.append(model.Message{ID: placeholderID, Timestamp: now, Loading: true, SmartMode: smart, ReplyTo: userMessageID})

	go func() {
		defer o.wg.Done()

		callCtx, cancel := o.callContext(ctx)
		defer cancel()

		var resp *model.ClassificationResponse
		var err error
		if smart {
			resp, err = o.classifier.ProcessSmartText(callCtx, service.SmartRequest{
				UserID:       o.userID,
				Text:         text,
				IsNewSession: isNew,
			})
		} else {
			resp, err = o.classifier.ProcessText(callCtx, o.userID, text)
		}
		o.complete(callCtx, placeholderID, resp, err, smart, processFailedText)
	}()

	return userMessageID, placeholderID, nil
}

// SubmitFollowUpParameter re-resolves an earlier response after the user
// supplied missing or corrected entities. A new placeholder is appended and
// later replaced with the completed response.
func (o *Orchestrator) SubmitFollowUpParameter(ctx context.Context, messageID string, updates map[string]any) (string, error) {
	orig, err := o.log.Get(messageID)
	if err != nil {
		return "", err
	}
	if orig.Response == nil || orig.Response.IsError() {
		return "", fmt.Errorf("%w: %s", ErrNoClassification, messageID)
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return "", ErrClosed
	}
	placeholderID := o.newID()
	o.wg.Add(1)
	o.mu.Unlock()

	o.append(model.Message{ID: placeholderID, Timestamp: o.now(), Loading: true, ReplyTo: messageID})

	req := service.CompletionRequest{
		Module:     orig.Response.ModuleCode,
		SubModule:  orig.Response.SubmoduleCode,
		Parameters: orig.Response.Entities.Merge(updates),
	}

	go func() {
		defer o.wg.Done()

		callCtx, cancel := o.callContext(ctx)
		defer cancel()

		resp, err := o.classifier.CompleteAction(callCtx, req)
		o.complete(callCtx, placeholderID, resp, err, false, completeFailedText)
	}()

	return placeholderID, nil
}

// Subscribe returns a channel of log updates and a function that ends the
// subscription. Slow subscribers miss updates rather than stall the log.
func (o *Orchestrator) Subscribe() (<-chan Update, func()) {
	o.mu.Lock()
	defer o.mu.Unlock()

	ch := make(chan Update, subscriberBuffer)
	if o.closed {
		close(ch)
		return ch, func() {}
	}
	id := o.nextSub
	o.nextSub++
	o.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			if sub, ok := o.subs[id]; ok {
				delete(o.subs, id)
				close(sub)
			}
		})
	}
}

// Wait blocks until every in-flight call has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Close cancels in-flight calls, waits for them and ends all subscriptions.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.mu.Unlock()

	o.cancel()
	o.wg.Wait()

	o.mu.Lock()
	defer o.mu.Unlock()
	for id, ch := range o.subs {
		delete(o.subs, id)
		close(ch)
	}
}

// callContext keeps the caller's values but not its cancellation, since the
// call outlives the request that started it. Close still cancels it.
func (o *Orchestrator) callContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), o.timeout)
	stop := context.AfterFunc(o.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (o *Orchestrator) complete(ctx context.Context, placeholderID string, resp *model.ClassificationResponse, callErr error, smart bool, failedText string) {
	if callErr != nil {
		o.fail(placeholderID, callErr, failedText)
		return
	}

	res := resolver.Boundary(func() model.Resolution {
		return o.resolver.Resolve(resp, o.customer, nil)
	})

	sessionID := o.startTransfer(ctx, resp, res)

	o.replace(placeholderID, func(m *model.Message) {
		m.Loading = false
		m.Response = resp
		m.Resolution = &res
		m.TransferSessionID = sessionID
		m.SmartMode = smart
		if resp != nil {
			m.Text = resp.RawText
			if smart {
				m.SmartResponse = resp.SmartResponse
			}
		}
		if res.IsError() {
			m.Error, _ = res.Config["message"].(string)
			if m.Text == "" {
				m.Text = failedText
			}
		}
	})
}

func (o *Orchestrator) fail(placeholderID string, err error, failedText string) {
	text := failedText
	res := resolver.ErrorResolution(resolver.GenericErrorMessage, resolver.GenericErrorSuggestion)
	if errors.Is(err, context.DeadlineExceeded) {
		text = timeoutText
		res = resolver.ErrorResolution(timeoutText, timeoutSuggestion)
	}
	slog.Warn("Classification call failed",
		"conversation_id", o.id,
		"message_id", placeholderID,
		"error", err)

	o.replace(placeholderID, func(m *model.Message) {
		m.Loading = false
		m.Text = text
		m.Error = text
		m.Resolution = &res
	})
}

// startTransfer opens a transfer session for funds-movement submodules.
func (o *Orchestrator) startTransfer(ctx context.Context, resp *model.ClassificationResponse, res model.Resolution) string {
	if o.flow == nil || o.sessions == nil || res.IsError() || resp.ModuleCode != model.ModuleTransfers {
		return ""
	}
	cfg, ok := o.resolver.Table().Lookup(resp.ModuleCode, resp.SubmoduleCode)
	if !ok || cfg.ActionType != model.ActionCreate {
		return ""
	}

	session, err := o.flow.Start(ctx, o.userID, resp)
	if err != nil {
		slog.Warn("Failed to start transfer session", "conversation_id", o.id, "error", err)
		return ""
	}
	if err := o.sessions.Create(ctx, session); err != nil {
		slog.Warn("Failed to store transfer session", "conversation_id", o.id, "error", err)
		return ""
	}
	return session.ID
}

func (o *Orchestrator) append(msg model.Message) {
	if err := o.log.Append(msg); err != nil {
		slog.Error("Failed to append message", "conversation_id", o.id, "error", err)
		return
	}
	o.publish(Update{Kind: UpdateAppended, Message: msg.Clone()})
}

func (o *Orchestrator) replace(id string, fn func(*model.Message)) {
	msg, err := o.log.Update(id, fn)
	if err != nil {
		slog.Error("Failed to update placeholder", "conversation_id", o.id, "error", err)
		return
	}
	o.publish(Update{Kind: UpdateReplaced, Message: msg})
}

func (o *Orchestrator) publish(u Update) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for id, ch := range o.subs {
		select {
		case ch <- u:
		default:
			slog.Warn("Dropping conversation update for slow subscriber",
				"conversation_id", o.id,
				"subscriber", id,
				"message_id", u.Message.ID)
		}
	}
}
