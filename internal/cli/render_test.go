package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/banktalk/internal/model"
	"github.com/Veraticus/banktalk/internal/rules"
)

func TestFormatMoney(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		amount   string
		currency string
		want     string
	}{
		{name: "small", amount: "5", currency: "USD", want: "USD 5.00"},
		{name: "thousands", amount: "15000", currency: "USD", want: "USD 15,000.00"},
		{name: "millions", amount: "1234567.891", currency: "", want: "1,234,567.89"},
		{name: "negative", amount: "-3250.75", currency: "EUR", want: "EUR -3,250.75"},
		{name: "exact hundreds", amount: "999.5", currency: "", want: "999.50"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := FormatMoney(decimal.RequireFromString(tt.amount), tt.currency)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatValue(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "null", FormatValue(nil))
	assert.Equal(t, "grid", FormatValue("grid"))
	assert.Equal(t, "true", FormatValue(true))
	assert.Equal(t, `["amount","beneficiary"]`, FormatValue([]string{"amount", "beneficiary"}))
	assert.Equal(t, "12.5", FormatValue(decimal.RequireFromString("12.50")))
}

func TestFormatResolution(t *testing.T) {
	t.Parallel()

	out := FormatResolution(model.Resolution{
		Component:         model.ComponentTransfers,
		Strategy:          "missingAmount",
		MissingParameters: []string{"amount"},
		Config:            map[string]any{"title": "Send Money", "showAmountInput": true},
	})

	assert.Contains(t, out, "TransfersModule")
	assert.Contains(t, out, "strategy: missingAmount")
	assert.Contains(t, out, "missing: amount")
	assert.Contains(t, out, "title: Send Money")
	assert.Less(t, strings.Index(out, "showAmountInput"), strings.Index(out, "title"))

	errOut := FormatResolution(model.Resolution{
		Component: model.ComponentError,
		Config:    map[string]any{"showRetry": true},
	})
	assert.Contains(t, errOut, ErrorIcon)
	assert.Contains(t, errOut, "showRetry: true")
}

func TestFormatReceipt(t *testing.T) {
	t.Parallel()

	out := FormatReceipt(model.Receipt{
		TransferID:  "TRF004",
		Reference:   "TRF-123",
		Amount:      decimal.NewFromInt(500),
		Currency:    "USD",
		FromAccount: "ACC001",
		ToAccount:   "1111222233",
		Status:      "completed",
		Timestamp:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	})

	for _, want := range []string{"Transfer accepted", "TRF004", "TRF-123", "USD 500.00", "ACC001", "completed", "2025-06-01 12:00"} {
		assert.Contains(t, out, want)
	}
}

func TestFormatRules(t *testing.T) {
	t.Parallel()

	table, err := rules.Load([]byte(`
version: "test"
modules:
  ACC:
    ACC_BALANCE:
      action: READ
      strategies:
        default:
          component: AccountsModule
  TRF:
    TRF_IMMEDIATE:
      action: CREATE
      requires: [amount]
      strategies:
        default:
          component: TransfersModule
        missingAmount:
          component: TransfersModule
`))
	require.NoError(t, err)

	out := FormatRules(table)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.GreaterOrEqual(t, len(lines), 3)
	assert.Contains(t, out, "SUBMODULE")
	assert.Contains(t, out, "ACC_BALANCE")
	assert.Contains(t, out, "default, missingAmount")
	assert.Less(t, strings.Index(out, "ACC_BALANCE"), strings.Index(out, "TRF_IMMEDIATE"))
}

func TestNewProgressBar(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	bar := NewProgressBar(&buf, 3, "Replaying utterances")
	for range 3 {
		require.NoError(t, bar.Add(1))
	}
	assert.True(t, bar.IsFinished())
	assert.Contains(t, buf.String(), "Replaying utterances")
}

func TestFormatHelpers(t *testing.T) {
	t.Parallel()

	assert.Contains(t, FormatSuccess("done"), SuccessIcon+" done")
	assert.Contains(t, FormatError("failed"), ErrorIcon+" failed")
	assert.Contains(t, FormatWarning("careful"), "careful")
	assert.Contains(t, FormatInfo("note"), "note")
	assert.Contains(t, FormatTitle("Rules"), "Rules")
	box := RenderBox("Title", "body")
	assert.Contains(t, box, "Title")
	assert.Contains(t, box, "body")
}
