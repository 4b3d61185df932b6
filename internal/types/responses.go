package types

import "github.com/shopspring/decimal"

// StatusCountsResponse is the status-count rollup returned by the dashboard
type StatusCountsResponse struct {
	Total    int64            `json:"total"`
	ByStatus map[string]int64 `json:"by_status"`
}

// FinancialSummaryResponse partitions exchanges into resolved and in-process
// sums over an optional creation-date window
type FinancialSummaryResponse struct {
	RecoveredValue decimal.Decimal `json:"recovered_value"`
	InProcessValue decimal.Decimal `json:"in_process_value"`
	GrandTotal     decimal.Decimal `json:"grand_total"`
	ResolvedCount  int64           `json:"resolved_count"`
	InProcessCount int64           `json:"in_process_count"`
	Period         string          `json:"period"`
	Month          int             `json:"month,omitempty"`
	Year           int             `json:"year,omitempty"`
}

// OverdueCountResponse reports exchanges past their alert deadline,
// always excluding resolved ones
type OverdueCountResponse struct {
	Overdue int64 `json:"overdue"`
}
