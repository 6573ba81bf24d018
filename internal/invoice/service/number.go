package service

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// nextInvoiceNumber allocates the next INV-YYYY-NNNN number inside the
// caller's transaction. The sequence restarts each calendar year.
func (s *Service) nextInvoiceNumber(ctx context.Context, tx *gorm.DB, now time.Time) (string, error) {
	prefix := fmt.Sprintf("INV-%d-", now.Year())

	var next int64
	err := tx.WithContext(ctx).Raw(
		`SELECT COALESCE(MAX(CAST(SUBSTR(invoice_number, ?) AS INTEGER)), 0) + 1
		 FROM invoices
		 WHERE invoice_number LIKE ?`,
		len(prefix)+1,
		prefix+"%",
	).Scan(&next).Error
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s%04d", prefix, next), nil
}
