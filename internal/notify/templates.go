package notify

import (
	"bytes"
	"fmt"
	"html/template"
)

var paymentSuccessTmpl = template.Must(template.New("payment_success").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <h2 style="color: #2e7d32;">Payment Successful</h2>
  <p>Dear {{.StudentName}},</p>
  <p>We have received your application fee payment. Your receipt is attached.</p>
  <table style="border-collapse: collapse;">
    <tr><td style="padding: 4px 12px;"><strong>Amount</strong></td><td>{{.Amount}}</td></tr>
    <tr><td style="padding: 4px 12px;"><strong>Transaction ID</strong></td><td>{{.TransactionID}}</td></tr>
    <tr><td style="padding: 4px 12px;"><strong>Receipt Number</strong></td><td>{{.ReceiptNumber}}</td></tr>
    <tr><td style="padding: 4px 12px;"><strong>Date</strong></td><td>{{.Date}}</td></tr>
  </table>
  <p>You can track your application on your <a href="{{.DashboardURL}}">dashboard</a>.</p>
  <p>Regards,<br>{{.Issuer}}</p>
</body>
</html>
`))

// PaymentSuccess is the data shown in the payment confirmation email.
type PaymentSuccess struct {
	StudentName   string
	Amount        string
	TransactionID string
	ReceiptNumber string
	Date          string
	DashboardURL  string
	Issuer        string
}

// RenderPaymentSuccess returns the subject and HTML body.
func RenderPaymentSuccess(data PaymentSuccess) (string, string, error) {
	var buf bytes.Buffer
	if err := paymentSuccessTmpl.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render payment email: %w", err)
	}
	return "Payment Successful - Application Fee", buf.String(), nil
}
