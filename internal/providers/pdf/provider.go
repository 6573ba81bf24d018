// Package pdf renders invoices as downloadable PDF documents.
package pdf

import (
	"context"
	"io"

	invoicedomain "github.com/atelierhq/atelier/internal/invoice/domain"
)

type Provider interface {
	GenerateInvoice(ctx context.Context, invoice invoicedomain.Invoice, clientName string) (io.Reader, error)
}
