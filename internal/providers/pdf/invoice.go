package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"

	invoicedomain "github.com/atelierhq/atelier/internal/invoice/domain"
)

type MarotoProvider struct {
	businessName string
}

func New(businessName string) Provider {
	if businessName == "" {
		businessName = "Atelier"
	}
	return &MarotoProvider{businessName: businessName}
}

func (p *MarotoProvider) GenerateInvoice(ctx context.Context, invoice invoicedomain.Invoice, clientName string) (io.Reader, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(8, p.businessName, props.Text{
			Size:  16,
			Style: fontstyle.Bold,
		}),
		text.NewCol(4, "Invoice", props.Text{
			Size:  16,
			Style: fontstyle.Bold,
			Align: align.Right,
		}),
	)

	m.AddRow(22,
		col.New(6).Add(
			text.New("Invoice number: "+invoice.InvoiceNumber, props.Text{Top: 0}),
			text.New("Issued: "+formatDate(invoice.IssuedAt), props.Text{Top: 5}),
			text.New("Due: "+formatDate(invoice.DueAt), props.Text{Top: 10}),
			text.New("Status: "+string(invoice.Status), props.Text{Top: 15}),
		),
		col.New(6).Add(
			text.New("Bill to", props.Text{Style: fontstyle.Bold}),
			text.New(clientName, props.Text{Top: 5}),
		),
	)

	m.AddRow(8,
		text.NewCol(6, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Qty", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Rate", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	for _, item := range invoice.LineItems {
		m.AddRow(8,
			text.NewCol(6, item.Description, props.Text{Size: 9}),
			text.NewCol(2, item.Quantity.String(), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, formatCents(item.UnitRate), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, formatCents(item.Amount), props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(8,
		col.New(8),
		text.NewCol(2, "Subtotal", props.Text{Size: 9}),
		text.NewCol(2, formatCents(invoice.SubtotalAmount), props.Text{Size: 9, Align: align.Right}),
	)
	if invoice.TaxRateBps > 0 {
		m.AddRow(8,
			col.New(8),
			text.NewCol(2, fmt.Sprintf("Tax (%.2f%%)", float64(invoice.TaxRateBps)/100), props.Text{Size: 9}),
			text.NewCol(2, formatCents(invoice.TotalAmount+invoice.DiscountAmount-invoice.SubtotalAmount), props.Text{Size: 9, Align: align.Right}),
		)
	}
	if invoice.DiscountAmount > 0 {
		m.AddRow(8,
			col.New(8),
			text.NewCol(2, "Discount", props.Text{Size: 9}),
			text.NewCol(2, "-"+formatCents(invoice.DiscountAmount), props.Text{Size: 9, Align: align.Right}),
		)
	}
	m.AddRow(8,
		col.New(8),
		text.NewCol(2, "Total", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, formatCents(invoice.TotalAmount), props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	m.AddRow(8,
		col.New(8),
		text.NewCol(2, "Paid", props.Text{Size: 9}),
		text.NewCol(2, formatCents(invoice.PaidAmount), props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(8,
		col.New(8),
		text.NewCol(2, "Amount due", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, formatCents(invoice.OutstandingAmount()), props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	if invoice.Notes != "" {
		m.AddRow(16,
			text.NewCol(12, invoice.Notes, props.Text{Size: 8, Top: 4}),
		)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(doc.GetBytes()), nil
}

func formatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("Jan 2, 2006")
}
