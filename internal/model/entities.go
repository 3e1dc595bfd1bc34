package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Entities is the open map of values the classifier extracted from an utterance.
type Entities map[string]any

// Has reports whether key is present with a non-empty value.
func (e Entities) Has(key string) bool {
	v, ok := e[key]
	if !ok || v == nil {
		return false
	}
	if s, isString := v.(string); isString {
		return strings.TrimSpace(s) != ""
	}
	return true
}

// String returns the value for key rendered as a trimmed string.
func (e Entities) String(key string) string {
	v, ok := e[key]
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case decimal.Decimal:
		return val.String()
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}

// Decimal parses the value for key as a decimal. JSON numbers and numeric
// strings are accepted; currency symbols and thousands separators are stripped.
func (e Entities) Decimal(key string) (decimal.Decimal, bool) {
	v, ok := e[key]
	if !ok || v == nil {
		return decimal.Zero, false
	}
	switch val := v.(type) {
	case decimal.Decimal:
		return val, true
	case float64:
		return decimal.NewFromFloat(val), true
	case int:
		return decimal.NewFromInt(int64(val)), true
	case int64:
		return decimal.NewFromInt(val), true
	}

	s := e.String(key)
	s = strings.Map(func(r rune) rune {
		switch r {
		case ',', '$', ' ':
			return -1
		}
		return r
	}, s)
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// First returns the first key in keys that is present, and its string value.
func (e Entities) First(keys ...string) (string, string) {
	for _, key := range keys {
		if e.Has(key) {
			return key, e.String(key)
		}
	}
	return "", ""
}

// Clone returns a shallow copy of e. A nil map clones to an empty map.
func (e Entities) Clone() Entities {
	c := make(Entities, len(e))
	for k, v := range e {
		c[k] = v
	}
	return c
}

// Merge returns a copy of e with updates applied on top.
func (e Entities) Merge(updates map[string]any) Entities {
	c := e.Clone()
	for k, v := range updates {
		c[k] = v
	}
	return c
}
