package storage

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/banktalk/internal/common"
	"github.com/Veraticus/banktalk/internal/model"
)

// Visualization types understood by the sandbox.
const (
	vizLine  = "line_chart"
	vizBar   = "bar_chart"
	vizPie   = "pie_chart"
	vizTable = "table"
)

// FetchAnalytics builds chart data from the user's executed transfers.
// Line and bar charts are totals per month, pie charts totals per transfer
// type, and tables one row per transfer.
func (s *SQLiteStorage) FetchAnalytics(ctx context.Context, req model.AnalyticsRequest) (model.AnalyticsPayload, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(req.UserID, "userId"); err != nil {
		return nil, err
	}

	viz := req.VisualizationType
	if viz == "" {
		viz = vizBar
	}

	transfers, err := s.queryTransfers(ctx, s.db, `
		WHERE user_id = ? AND executed_date IS NOT NULL
		ORDER BY executed_date
	`, req.UserID)
	if err != nil {
		return nil, err
	}

	var data map[string]any
	switch viz {
	case vizLine, vizBar:
		data = seriesBy(transfers, func(t model.TransferRecord) string {
			return t.ExecutedDate.UTC().Format("2006-01")
		})
	case vizPie:
		data = seriesBy(transfers, func(t model.TransferRecord) string { return t.Type })
	case vizTable:
		data = tableOf(transfers)
	default:
		return nil, common.NewUserError("This chart type is not available",
			fmt.Errorf("%w: visualization type %q", common.ErrInvalidConfig, viz))
	}

	total := decimal.Zero
	for _, t := range transfers {
		total = total.Add(t.Amount)
	}

	return model.AnalyticsPayload{
		"title":             analyticsTitle(req.AnalyticsType),
		"visualizationType": viz,
		"data":              data,
		"summary": map[string]any{
			"count": len(transfers),
			"total": total.StringFixed(2),
		},
		"metadata": map[string]any{
			"generatedAt":   s.now().UTC().Format(time.RFC3339),
			"analyticsType": req.AnalyticsType,
			"submoduleCode": req.SubmoduleCode,
		},
	}, nil
}

func seriesBy(transfers []model.TransferRecord, key func(model.TransferRecord) string) map[string]any {
	totals := map[string]decimal.Decimal{}
	for _, t := range transfers {
		k := key(t)
		totals[k] = totals[k].Add(t.Amount)
	}

	labels := make([]string, 0, len(totals))
	for k := range totals {
		labels = append(labels, k)
	}
	sort.Strings(labels)

	values := make([]float64, 0, len(labels))
	for _, l := range labels {
		values = append(values, totals[l].InexactFloat64())
	}
	return map[string]any{
		"labels": labels,
		"datasets": []map[string]any{
			{"label": "Transfers", "data": values},
		},
	}
}

func tableOf(transfers []model.TransferRecord) map[string]any {
	rows := make([]map[string]any, 0, len(transfers))
	for _, t := range transfers {
		rows = append(rows, map[string]any{
			"id":        t.ID,
			"date":      t.ExecutedDate.UTC().Format("2006-01-02"),
			"toAccount": t.ToAccountID,
			"type":      t.Type,
			"amount":    t.Amount.StringFixed(2),
			"currency":  t.Currency,
		})
	}
	return map[string]any{
		"columns": []string{"id", "date", "toAccount", "type", "amount", "currency"},
		"rows":    rows,
	}
}

func analyticsTitle(analyticsType string) string {
	switch analyticsType {
	case "spending_trends":
		return "Spending Trends"
	case "income_analysis":
		return "Income Analysis"
	case "transaction_analysis":
		return "Transaction Analysis"
	case "comparison":
		return "Comparison"
	case "distribution":
		return "Distribution"
	default:
		return "Transfer Activity"
	}
}
