// Package rules holds the resolution rule table: the static mapping from a
// (module, submodule) classification to named rendering strategies.
package rules

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/Veraticus/banktalk/internal/common"
	"github.com/Veraticus/banktalk/internal/model"
)

// Strategy names.
const (
	StrategyDefault  = "default"
	StrategyComplete = "complete"
	missingPrefix    = "missing"
)

// ErrInvalidTable is returned when a rule document violates a table invariant.
var ErrInvalidTable = errors.New("invalid rule table")

//go:embed rules.yaml
var embedded []byte

// Strategy names the component to render and its static configuration.
type Strategy struct {
	Config    map[string]any      `yaml:"config" json:"config"`
	Component model.ComponentName `yaml:"component" json:"component"`
}

// SubmoduleConfig is the rule entry for one submodule.
type SubmoduleConfig struct {
	Strategies map[string]Strategy `yaml:"strategies" json:"strategies"`
	ActionType model.ActionType    `yaml:"action" json:"actionType"`
	Requires   []string            `yaml:"requires" json:"requires,omitempty"`
}

// Default returns the fallback strategy.
func (c SubmoduleConfig) Default() Strategy {
	return c.Strategies[StrategyDefault]
}

// Strategy returns the named strategy if the submodule declares it.
func (c SubmoduleConfig) Strategy(name string) (Strategy, bool) {
	s, ok := c.Strategies[name]
	return s, ok
}

// Pair identifies one registered submodule.
type Pair struct {
	Module    model.ModuleCode `json:"moduleCode"`
	Submodule string           `json:"submoduleCode"`
}

// document is the on-disk layout of a rule file.
type document struct {
	Modules map[model.ModuleCode]map[string]SubmoduleConfig `yaml:"modules"`
	Version string                                          `yaml:"version"`
}

// Table is an immutable rule table. It is safe for concurrent use.
type Table struct {
	modules map[model.ModuleCode]map[string]SubmoduleConfig
	version string
	pairs   []Pair
}

var (
	defaultOnce  sync.Once
	defaultTable *Table
)

// Default returns the embedded rule table, parsed once per process. The
// embedded document is validated by tests, so a parse failure here is a
// build defect and panics.
func Default() *Table {
	defaultOnce.Do(func() {
		t, err := Load(embedded)
		if err != nil {
			panic(fmt.Sprintf("embedded rule table: %v", err))
		}
		defaultTable = t
	})
	return defaultTable
}

// LoadFile reads and validates a rule document from disk.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return Load(data)
}

// Load parses and validates a rule document.
func Load(data []byte) (*Table, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}
	if len(doc.Modules) == 0 {
		return nil, fmt.Errorf("%w: no modules declared", ErrInvalidTable)
	}

	var problems []error
	t := &Table{
		modules: make(map[model.ModuleCode]map[string]SubmoduleConfig, len(doc.Modules)),
		version: doc.Version,
	}
	for module, subs := range doc.Modules {
		if !module.Valid() {
			problems = append(problems, fmt.Errorf("%w: unknown module %q", ErrInvalidTable, module))
			continue
		}
		t.modules[module] = make(map[string]SubmoduleConfig, len(subs))
		for sub, cfg := range subs {
			if err := validate(module, sub, cfg); err != nil {
				problems = append(problems, err)
				continue
			}
			for name, s := range cfg.Strategies {
				if s.Config == nil {
					s.Config = map[string]any{}
					cfg.Strategies[name] = s
				}
			}
			t.modules[module][sub] = cfg
			t.pairs = append(t.pairs, Pair{Module: module, Submodule: sub})
		}
	}
	if len(problems) > 0 {
		return nil, errors.Join(problems...)
	}

	sort.Slice(t.pairs, func(i, j int) bool {
		if t.pairs[i].Module != t.pairs[j].Module {
			return t.pairs[i].Module < t.pairs[j].Module
		}
		return t.pairs[i].Submodule < t.pairs[j].Submodule
	})
	return t, nil
}

func validate(module model.ModuleCode, sub string, cfg SubmoduleConfig) error {
	where := fmt.Sprintf("%s/%s", module, sub)
	if !cfg.ActionType.Valid() {
		return fmt.Errorf("%w: %s: unknown action type %q", ErrInvalidTable, where, cfg.ActionType)
	}
	if _, ok := cfg.Strategies[StrategyDefault]; !ok {
		return fmt.Errorf("%w: %s: no default strategy", ErrInvalidTable, where)
	}
	for name, s := range cfg.Strategies {
		if name != StrategyDefault && name != StrategyComplete && !strings.HasPrefix(name, missingPrefix) {
			return fmt.Errorf("%w: %s: unknown strategy %q", ErrInvalidTable, where, name)
		}
		if !s.Component.Valid() {
			return fmt.Errorf("%w: %s: strategy %q: %w %q", ErrInvalidTable, where, name, common.ErrUnknownComponent, s.Component)
		}
	}
	return nil
}

// Lookup returns the rule entry for a classification. A miss must be treated
// like a classification error.
func (t *Table) Lookup(module model.ModuleCode, submodule string) (SubmoduleConfig, bool) {
	subs, ok := t.modules[module]
	if !ok {
		return SubmoduleConfig{}, false
	}
	cfg, ok := subs[submodule]
	return cfg, ok
}

// Pairs lists every registered submodule sorted by module then submodule.
func (t *Table) Pairs() []Pair {
	return append([]Pair(nil), t.pairs...)
}

// Version is the document version the table was loaded from.
func (t *Table) Version() string {
	return t.version
}

// MissingKey returns the strategy name used when param is absent,
// e.g. "beneficiary" becomes "missingBeneficiary".
func MissingKey(param string) string {
	if param == "" {
		return missingPrefix
	}
	r, size := utf8.DecodeRuneInString(param)
	return missingPrefix + string(unicode.ToUpper(r)) + param[size:]
}
