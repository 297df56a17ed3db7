package email

import (
	"fmt"
	"html"
	"strings"

	"github.com/shopspring/decimal"

	"tokoshop/internal/models"
)

// BuildOrderConfirmationBody builds the HTML body for order confirmation email.
func BuildOrderConfirmationBody(customerName string, order *models.Order) string {
	var rows strings.Builder
	for _, item := range order.Items {
		name := item.ProductName
		if name == "" {
			name = item.ProductID
		}
		variant := strings.Trim(strings.Join([]string{item.SelectedSize, item.SelectedColor}, " / "), " /")
		if variant != "" {
			name = fmt.Sprintf("%s (%s)", name, variant)
		}
		subtotal := item.ProductPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		rows.WriteString(fmt.Sprintf(
			`<tr>
				<td style="padding: 12px; border-bottom: 1px solid #eee;">%s</td>
				<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: center;">%d</td>
				<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: right;">%s</td>
				<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: right;">%s</td>
			</tr>`,
			html.EscapeString(name),
			item.Quantity,
			item.ProductPrice.StringFixed(2),
			subtotal.StringFixed(2),
		))
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
	<h1 style="font-size: 24px;">Thank you for your order, %s</h1>
	<p>Order number: <strong style="font-family: monospace;">%s</strong></p>
	<p>Payment reference: <span style="font-family: monospace;">%s</span></p>

	<table style="width: 100%%; border-collapse: collapse; margin: 20px 0;">
		<thead>
			<tr style="background: #f8f9fa;">
				<th style="padding: 12px; text-align: left;">Item</th>
				<th style="padding: 12px; text-align: center;">Qty</th>
				<th style="padding: 12px; text-align: right;">Price</th>
				<th style="padding: 12px; text-align: right;">Subtotal</th>
			</tr>
		</thead>
		<tbody>
			%s
		</tbody>
	</table>

	<p style="text-align: right; font-size: 18px;">Total: <strong>%s</strong></p>
	<p>Shipping to: %s</p>
</body>
</html>`,
		html.EscapeString(customerName),
		order.ID,
		html.EscapeString(order.PaymentID),
		rows.String(),
		order.TotalPrice.StringFixed(2),
		html.EscapeString(shippingLine(order)),
	)
}

func shippingLine(order *models.Order) string {
	parts := make([]string, 0, 4)
	for _, p := range []string{order.ShippingAddress, order.City, order.PostalCode, order.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}
