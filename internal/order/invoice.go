package order

import (
	"bytes"
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/okoshkin/go_market/internal/domain"
)

// InvoiceRenderer turns an order into a downloadable document.
type InvoiceRenderer interface {
	Render(order *domain.Order) ([]byte, string, error)
}

// TextInvoiceRenderer renders a plain-text invoice. A PDF renderer can
// replace it behind the same interface without touching the service.
type TextInvoiceRenderer struct{}

func (TextInvoiceRenderer) Render(order *domain.Order) ([]byte, string, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "INVOICE %s\n", order.OrderNumber)
	fmt.Fprintf(&buf, "Date: %s\n", order.CreatedAt.Format("2006-01-02"))
	fmt.Fprintf(&buf, "Vendor: %s\n\n", order.VendorID)

	w := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ITEM\tQTY\tPRICE\tAMOUNT")
	for _, it := range order.Items {
		fmt.Fprintf(w, "%s\t%d\t%.2f\t%.2f\n", it.Name, it.Quantity, it.UnitPrice, it.UnitPrice*float64(it.Quantity))
	}
	w.Flush()

	b := order.Breakdown
	fmt.Fprintf(&buf, "\nSubtotal:\t%.2f\n", b.Subtotal)
	if b.ItemDiscountTotal > 0 {
		fmt.Fprintf(&buf, "Item discounts:\t-%.2f\n", b.ItemDiscountTotal)
	}
	if b.CouponDiscount > 0 {
		fmt.Fprintf(&buf, "Coupon:\t-%.2f\n", b.CouponDiscount)
	}
	fmt.Fprintf(&buf, "Delivery:\t%.2f\n", b.DeliveryFee)
	fmt.Fprintf(&buf, "TOTAL:\t%.2f %s\n", b.Total, order.Currency)

	return buf.Bytes(), "text/plain; charset=utf-8", nil
}

// Invoice renders the invoice for one of the user's own orders.
func (s *Service) Invoice(ctx context.Context, userID string, orderID uuid.UUID, renderer InvoiceRenderer) ([]byte, string, error) {
	order, err := s.GetForUser(ctx, userID, orderID)
	if err != nil {
		return nil, "", err
	}
	return renderer.Render(order)
}
