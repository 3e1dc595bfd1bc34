// Package resolver turns classifier output into render instructions.
package resolver

import (
	"fmt"
	"log/slog"

	"github.com/Veraticus/banktalk/internal/contract"
	"github.com/Veraticus/banktalk/internal/model"
	"github.com/Veraticus/banktalk/internal/rules"
)

// User-facing error text. Backend error strings are never shown.
const (
	GenericErrorMessage    = "Something went wrong, Please try again"
	GenericErrorSuggestion = "You can try rephrasing your request or contact support if the issue persists."
	UnknownAccountHint     = `Please check the account number and try again. You can view all your accounts by asking for "show my accounts".`
)

// Outcome labels a resolution for metrics.
type Outcome string

// Resolution outcomes.
const (
	OutcomeResolved            Outcome = "resolved"
	OutcomeClassificationError Outcome = "classification_error"
	OutcomeRuleMiss            Outcome = "rule_miss"
	OutcomeUnknownComponent    Outcome = "unknown_component"
	OutcomeInvalidEntity       Outcome = "invalid_entity"
)

// Recorder receives one observation per resolution.
type Recorder interface {
	RecordResolution(module model.ModuleCode, submodule, strategy string, outcome Outcome)
}

type nopRecorder struct{}

func (nopRecorder) RecordResolution(model.ModuleCode, string, string, Outcome) {}

// Option configures a Resolver.
type Option func(*Resolver)

// WithRecorder reports every resolution to rec.
func WithRecorder(rec Recorder) Option {
	return func(r *Resolver) {
		if rec != nil {
			r.recorder = rec
		}
	}
}

// WithLogger sets the logger used for configuration gaps.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Resolver maps classifications to components using a rule table.
// It holds no mutable state and is safe for concurrent use.
type Resolver struct {
	table    *rules.Table
	recorder Recorder
	logger   *slog.Logger
}

// New creates a resolver over table. A nil table uses the embedded rules.
func New(table *rules.Table, opts ...Option) *Resolver {
	if table == nil {
		table = rules.Default()
	}
	r := &Resolver{
		table:    table,
		recorder: nopRecorder{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Table returns the rule table the resolver reads.
func (r *Resolver) Table() *rules.Table {
	return r.table
}

// Resolve selects the component and configuration for resp. Customer is the
// injected customer context and may be nil. Overrides are applied on top of
// the strategy configuration and win on key collisions.
//
// Resolve never fails: every unresolvable input maps to ErrorMessage.
func (r *Resolver) Resolve(resp *model.ClassificationResponse, customer *model.Customer, overrides map[string]any) model.Resolution {
	if resp.IsError() {
		var module model.ModuleCode
		var sub string
		if resp != nil {
			module, sub = resp.ModuleCode, resp.SubmoduleCode
		}
		r.recorder.RecordResolution(module, sub, "", OutcomeClassificationError)
		return ErrorResolution(GenericErrorMessage, GenericErrorSuggestion)
	}

	cfg, ok := r.table.Lookup(resp.ModuleCode, resp.SubmoduleCode)
	if !ok {
		r.logger.Warn("No resolution rule for classification",
			"module", resp.ModuleCode,
			"submodule", resp.SubmoduleCode)
		r.recorder.RecordResolution(resp.ModuleCode, resp.SubmoduleCode, "", OutcomeRuleMiss)
		return ErrorResolution(GenericErrorMessage, GenericErrorSuggestion)
	}

	intent, err := contract.Parse(resp)
	if err != nil {
		r.recorder.RecordResolution(resp.ModuleCode, resp.SubmoduleCode, "", OutcomeClassificationError)
		return ErrorResolution(GenericErrorMessage, GenericErrorSuggestion)
	}

	if res, invalid := validateAgainstCustomer(intent, customer); invalid {
		r.recorder.RecordResolution(resp.ModuleCode, resp.SubmoduleCode, "", OutcomeInvalidEntity)
		return res
	}

	missing := missingParameters(resp, intent, cfg)
	name, strategy := selectStrategy(cfg, missing)

	if !strategy.Component.Valid() {
		r.logger.Warn("Resolution rule names unknown component",
			"module", resp.ModuleCode,
			"submodule", resp.SubmoduleCode,
			"strategy", name,
			"component", strategy.Component)
		r.recorder.RecordResolution(resp.ModuleCode, resp.SubmoduleCode, name, OutcomeUnknownComponent)
		return ErrorResolution(GenericErrorMessage, GenericErrorSuggestion)
	}

	r.recorder.RecordResolution(resp.ModuleCode, resp.SubmoduleCode, name, OutcomeResolved)
	return model.Resolution{
		Component:         strategy.Component,
		Config:            merge(strategy.Config, overrides),
		Strategy:          name,
		MissingParameters: missing,
	}
}

// missingParameters prefers the backend's own completion report and falls
// back to checking the intent against the rule's required parameters.
func missingParameters(resp *model.ClassificationResponse, intent contract.Intent, cfg rules.SubmoduleConfig) []string {
	if v := resp.Validation; v != nil && !v.IsComplete && len(v.MissingParameters) > 0 {
		return append([]string(nil), v.MissingParameters...)
	}
	return contract.Missing(intent, cfg.Requires)
}

func selectStrategy(cfg rules.SubmoduleConfig, missing []string) (string, rules.Strategy) {
	if len(missing) > 0 {
		key := rules.MissingKey(missing[0])
		if s, ok := cfg.Strategy(key); ok {
			return key, s
		}
		return rules.StrategyDefault, cfg.Default()
	}
	if s, ok := cfg.Strategy(rules.StrategyComplete); ok {
		return rules.StrategyComplete, s
	}
	return rules.StrategyDefault, cfg.Default()
}

func validateAgainstCustomer(intent contract.Intent, customer *model.Customer) (model.Resolution, bool) {
	if customer == nil {
		return model.Resolution{}, false
	}
	acc, ok := intent.(contract.AccountIntent)
	if !ok || acc.AccountNumber == "" {
		return model.Resolution{}, false
	}
	if customer.OwnsAccountNumber(acc.AccountNumber) {
		return model.Resolution{}, false
	}
	return ErrorResolution(
		fmt.Sprintf("Account number %s does not exist in your accounts.", acc.AccountNumber),
		UnknownAccountHint,
	), true
}

// ErrorResolution builds a retryable ErrorMessage render instruction.
func ErrorResolution(message, suggestion string) model.Resolution {
	return model.Resolution{
		Component: model.ComponentError,
		Config: map[string]any{
			"message":    message,
			"suggestion": suggestion,
			"showRetry":  true,
		},
	}
}

func merge(base, overrides map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(overrides))
	for k, v := range base {
		out[k] = copyValue(v)
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return merge(val, nil)
	case []any:
		c := make([]any, len(val))
		for i := range val {
			c[i] = copyValue(val[i])
		}
		return c
	default:
		return v
	}
}
