// Package domain exposes dashboard aggregates over invoices and payments.
package domain

import (
	"context"
	"time"
)

type SeriesPoint struct {
	Period string `json:"period"`
	Value  int64  `json:"value"`
}

type OverviewRequest struct {
	Start  time.Time
	End    time.Time
	Months int
}

type OverviewResponse struct {
	Outstanding     int64         `json:"outstanding"`
	OverdueAmount   int64         `json:"overdue_amount"`
	OverdueCount    int64         `json:"overdue_count"`
	OpenInvoices    int64         `json:"open_invoices"`
	CollectedAmount int64         `json:"collected_amount"`
	InvoicedAmount  int64         `json:"invoiced_amount"`
	CollectionRate  *float64      `json:"collection_rate,omitempty"`
	RevenueSeries   []SeriesPoint `json:"revenue_series"`
	HasData         bool          `json:"has_data"`
}

type Service interface {
	GetOverview(ctx context.Context, req OverviewRequest) (OverviewResponse, error)
}
