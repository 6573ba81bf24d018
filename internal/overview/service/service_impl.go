package service

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/atelierhq/atelier/internal/clock"
	overview "github.com/atelierhq/atelier/internal/overview/domain"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
}

func NewService(p Params) overview.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("overview.service"),
		clock: p.Clock,
	}
}

func (s *Service) GetOverview(ctx context.Context, req overview.OverviewRequest) (overview.OverviewResponse, error) {
	now := s.clock.Now().UTC()
	start, end := normalizeRange(req, now)

	balance, err := s.loadOutstandingBalance(ctx, now)
	if err != nil {
		return overview.OverviewResponse{}, err
	}

	invoiced, err := s.loadInvoicedAmount(ctx, start, end)
	if err != nil {
		return overview.OverviewResponse{}, err
	}
	collected, err := s.loadCollectedAmount(ctx, start, end)
	if err != nil {
		return overview.OverviewResponse{}, err
	}

	series, err := s.listRevenueSeries(ctx, start, end)
	if err != nil {
		return overview.OverviewResponse{}, err
	}

	var collectionRate *float64
	if invoiced > 0 {
		rate := float64(collected) / float64(invoiced)
		collectionRate = &rate
	}

	return overview.OverviewResponse{
		Outstanding:     balance.Outstanding,
		OverdueAmount:   balance.Overdue,
		OverdueCount:    balance.OverdueCount,
		OpenInvoices:    balance.InvoiceCount,
		CollectedAmount: collected,
		InvoicedAmount:  invoiced,
		CollectionRate:  collectionRate,
		RevenueSeries:   series,
		HasData:         balance.InvoiceCount > 0 || len(series) > 0,
	}, nil
}

func normalizeRange(req overview.OverviewRequest, now time.Time) (time.Time, time.Time) {
	start := req.Start
	end := req.End
	if start.IsZero() || end.IsZero() {
		months := req.Months
		if months <= 0 {
			months = 6
		}
		end = now
		start = truncateToMonth(now).AddDate(0, -(months - 1), 0)
	}
	return start.UTC(), end.UTC()
}

func truncateToMonth(value time.Time) time.Time {
	return time.Date(value.Year(), value.Month(), 1, 0, 0, 0, 0, time.UTC)
}

type outstandingBalanceRow struct {
	InvoiceCount int64 `gorm:"column:invoice_count"`
	Outstanding  int64 `gorm:"column:outstanding"`
	Overdue      int64 `gorm:"column:overdue"`
	OverdueCount int64 `gorm:"column:overdue_count"`
}

func (s *Service) loadOutstandingBalance(ctx context.Context, now time.Time) (outstandingBalanceRow, error) {
	var row outstandingBalanceRow
	if err := s.db.WithContext(ctx).Raw(
		`
		SELECT
			COUNT(1) AS invoice_count,
			COALESCE(SUM(MAX(total_amount - paid_amount, 0)), 0) AS outstanding,
			COALESCE(SUM(CASE WHEN status = 'overdue' THEN MAX(total_amount - paid_amount, 0) ELSE 0 END), 0) AS overdue,
			COALESCE(SUM(CASE WHEN status = 'overdue' THEN 1 ELSE 0 END), 0) AS overdue_count
		FROM invoices
		WHERE deleted_at IS NULL
		  AND status IN ('sent', 'viewed', 'partial', 'overdue')
		`,
	).Scan(&row).Error; err != nil {
		return outstandingBalanceRow{}, err
	}
	return row, nil
}

func (s *Service) loadInvoicedAmount(ctx context.Context, start, end time.Time) (int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Raw(
		`
		SELECT COALESCE(SUM(total_amount), 0) AS total
		FROM invoices
		WHERE deleted_at IS NULL
		  AND status NOT IN ('draft', 'cancelled')
		  AND COALESCE(issued_at, created_at) >= ?
		  AND COALESCE(issued_at, created_at) <= ?
		`,
		start, end,
	).Scan(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Service) loadCollectedAmount(ctx context.Context, start, end time.Time) (int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Raw(
		`
		SELECT COALESCE(SUM(amount), 0) AS total
		FROM payments
		WHERE paid_at >= ? AND paid_at <= ?
		`,
		start, end,
	).Scan(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

type seriesRow struct {
	Period string `gorm:"column:period"`
	Value  int64  `gorm:"column:value"`
}

// listRevenueSeries groups recorded payments by calendar month. Months with
// no payments are absent rather than zero-filled.
func (s *Service) listRevenueSeries(ctx context.Context, start, end time.Time) ([]overview.SeriesPoint, error) {
	var rows []seriesRow
	if err := s.db.WithContext(ctx).Raw(
		`
		SELECT strftime('%Y-%m', paid_at) AS period,
		       COALESCE(SUM(amount), 0) AS value
		FROM payments
		WHERE paid_at >= ? AND paid_at <= ?
		GROUP BY 1
		ORDER BY 1
		`,
		start, end,
	).Scan(&rows).Error; err != nil {
		return nil, err
	}

	points := make([]overview.SeriesPoint, 0, len(rows))
	for _, row := range rows {
		points = append(points, overview.SeriesPoint{Period: row.Period, Value: row.Value})
	}
	return points, nil
}
