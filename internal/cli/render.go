package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/banktalk/internal/model"
	"github.com/Veraticus/banktalk/internal/rules"
)

// FormatMoney renders an amount with two decimals, thousands separators and
// an optional currency code prefix.
func FormatMoney(amount decimal.Decimal, currency string) string {
	fixed := amount.Abs().StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := b.String() + "." + frac
	if amount.IsNegative() {
		out = "-" + out
	}
	if currency != "" {
		out = currency + " " + out
	}
	return out
}

// FormatValue renders a config or entity value on one line.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// FormatResolution renders a render instruction as a labeled box.
func FormatResolution(res model.Resolution) string {
	lines := []string{ComponentStyle.Render(string(res.Component))}
	if res.Strategy != "" {
		lines = append(lines, SubtleStyle.Render("strategy: "+res.Strategy))
	}
	if len(res.MissingParameters) > 0 {
		lines = append(lines, WarningStyle.Render("missing: "+strings.Join(res.MissingParameters, ", ")))
	}
	lines = append(lines, formatConfig(res.Config)...)

	title := "Resolution"
	if res.IsError() {
		title = ErrorIcon + " Resolution"
	}
	return RenderBox(title, lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func formatConfig(config map[string]any) []string {
	keys := make([]string, 0, len(config))
	for k := range config {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, BoldStyle.Render(k+":")+" "+FormatValue(config[k]))
	}
	return lines
}

// FormatReceipt renders an accepted transfer.
func FormatReceipt(r model.Receipt) string {
	rows := [][2]string{
		{"Transfer", r.TransferID},
		{"Reference", r.Reference},
		{"Amount", FormatMoney(r.Amount, r.Currency)},
		{"From", r.FromAccount},
		{"To", r.ToAccount},
		{"Status", r.Status},
	}
	if !r.Timestamp.IsZero() {
		rows = append(rows, [2]string{"Time", r.Timestamp.Format("2006-01-02 15:04")})
	}

	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		if row[1] == "" {
			continue
		}
		lines = append(lines, TableCellStyle.Width(11).Render(row[0])+row[1])
	}
	return RenderBox(SuccessIcon+" Transfer accepted", strings.Join(lines, "\n"))
}

// FormatRules renders a rule table as one row per submodule.
func FormatRules(table *rules.Table) string {
	header := []string{"MODULE", "SUBMODULE", "ACTION", "STRATEGIES"}
	rows := make([][]string, 0, len(table.Pairs()))
	for _, p := range table.Pairs() {
		cfg, _ := table.Lookup(p.Module, p.Submodule)
		names := make([]string, 0, len(cfg.Strategies))
		for name := range cfg.Strategies {
			names = append(names, name)
		}
		sort.Strings(names)
		rows = append(rows, []string{string(p.Module), p.Submodule, string(cfg.ActionType), strings.Join(names, ", ")})
	}
	return FormatTable(header, rows)
}

// FormatTable aligns rows under a styled header.
func FormatTable(header []string, rows [][]string) string {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i := range header {
			if i < len(row) && lipgloss.Width(row[i]) > widths[i] {
				widths[i] = lipgloss.Width(row[i])
			}
		}
	}

	var b strings.Builder
	cells := make([]string, len(header))
	for i, h := range header {
		cells[i] = TableCellStyle.Width(widths[i] + 2).Render(h)
	}
	b.WriteString(TableHeaderStyle.Render(lipgloss.JoinHorizontal(lipgloss.Top, cells...)))
	b.WriteByte('\n')

	for _, row := range rows {
		for i := range header {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			cells[i] = TableCellStyle.Width(widths[i] + 2).Render(cell)
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cells...))
		b.WriteByte('\n')
	}
	return b.String()
}
