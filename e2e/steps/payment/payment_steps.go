package payment

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body interface{}) error
	PUT(path string, body interface{}) error
	GET(path string, headers map[string]string) error
	GetStatusCode() int
	GetContentType() string
	GetResponseBody() []byte
	GetResponseField(field string) (interface{}, error)
	GatewayCheckout(orderID string) (map[string]string, error)
	Save(key, value string)
	Saved(key string) (string, error)
}

// RegisterSteps registers application and payment step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &paymentSteps{tc: tc}

	// Application steps
	ctx.Step(`^I complete my profile in category "([^"]*)" with (\d+(?:\.\d+)?) percent from "([^"]*)"$`, steps.completeProfile)
	ctx.Step(`^I apply to course "([^"]*)"$`, steps.applyToCourse)

	// Payment steps
	ctx.Step(`^I create a payment order for the application fee$`, steps.createOrderForFee)
	ctx.Step(`^I create a payment order for amount "([^"]*)"$`, steps.createOrderForAmount)
	ctx.Step(`^the gateway completes checkout for my order$`, steps.completeCheckout)
	ctx.Step(`^I submit the payment callback$`, steps.submitCallback)
	ctx.Step(`^I submit the payment callback with signature "([^"]*)"$`, steps.submitCallbackWithSignature)
	ctx.Step(`^I download the receipt$`, steps.downloadReceipt)

	// Payment assertion steps
	ctx.Step(`^the response should be a PDF document$`, steps.responseShouldBePDF)
	ctx.Step(`^my application should show payment status "([^"]*)"$`, steps.applicationPaymentStatus)
}

type paymentSteps struct {
	tc TestContext
}

func (s *paymentSteps) completeProfile(ctx context.Context, category, percentage, board string) error {
	if err := s.tc.PUT("/profile", map[string]interface{}{
		"first_name":         "Asha",
		"last_name":          "Patil",
		"category":           category,
		"twelfth_percentage": percentage,
		"twelfth_board":      board,
	}); err != nil {
		return err
	}
	return s.expect(http.StatusOK)
}

func (s *paymentSteps) applyToCourse(ctx context.Context, code string) error {
	if err := s.tc.GET("/courses", nil); err != nil {
		return err
	}
	raw, err := s.tc.GetResponseField("courses")
	if err != nil {
		return err
	}
	courses, _ := raw.([]interface{})
	var courseID, periodID string
	for _, c := range courses {
		course, _ := c.(map[string]interface{})
		if course["code"] == code {
			courseID, _ = course["id"].(string)
			periodID, _ = course["admission_period_id"].(string)
			break
		}
	}
	if courseID == "" {
		return fmt.Errorf("course %s is not open for applications", code)
	}

	if err := s.tc.POST("/applications", map[string]interface{}{
		"course_id":           courseID,
		"admission_period_id": periodID,
	}); err != nil {
		return err
	}
	if err := s.expect(http.StatusCreated); err != nil {
		return err
	}
	if err := s.saveField("id", "application_id"); err != nil {
		return err
	}
	return s.saveField("application_fee", "application_fee")
}

func (s *paymentSteps) createOrderForFee(ctx context.Context) error {
	fee, err := s.tc.Saved("application_fee")
	if err != nil {
		return err
	}
	return s.createOrderForAmount(ctx, fee)
}

func (s *paymentSteps) createOrderForAmount(ctx context.Context, amount string) error {
	applicationID, err := s.tc.Saved("application_id")
	if err != nil {
		return err
	}
	if err := s.tc.POST("/payments/orders", map[string]interface{}{
		"application_id": applicationID,
		"amount":         amount,
	}); err != nil {
		return err
	}
	if s.tc.GetStatusCode() == http.StatusCreated {
		return s.saveField("order_id", "order_id")
	}
	return nil
}

func (s *paymentSteps) completeCheckout(ctx context.Context) error {
	orderID, err := s.tc.Saved("order_id")
	if err != nil {
		return err
	}
	callback, err := s.tc.GatewayCheckout(orderID)
	if err != nil {
		return err
	}
	s.tc.Save("gateway_payment_id", callback["razorpay_payment_id"])
	s.tc.Save("signature", callback["razorpay_signature"])
	return nil
}

func (s *paymentSteps) submitCallback(ctx context.Context) error {
	sig, err := s.tc.Saved("signature")
	if err != nil {
		return err
	}
	return s.submitCallbackWithSignature(ctx, sig)
}

func (s *paymentSteps) submitCallbackWithSignature(ctx context.Context, sig string) error {
	orderID, err := s.tc.Saved("order_id")
	if err != nil {
		return err
	}
	gatewayPaymentID, err := s.tc.Saved("gateway_payment_id")
	if err != nil {
		return err
	}
	if err := s.tc.POST("/payments/verify", map[string]interface{}{
		"razorpay_order_id":   orderID,
		"razorpay_payment_id": gatewayPaymentID,
		"razorpay_signature":  sig,
	}); err != nil {
		return err
	}
	if s.tc.GetStatusCode() == http.StatusOK {
		return s.saveField("receipt_url", "receipt_url")
	}
	return nil
}

func (s *paymentSteps) downloadReceipt(ctx context.Context) error {
	url, err := s.tc.Saved("receipt_url")
	if err != nil {
		return err
	}
	return s.tc.GET(url, nil)
}

func (s *paymentSteps) responseShouldBePDF(ctx context.Context) error {
	if err := s.expect(http.StatusOK); err != nil {
		return err
	}
	if ct := s.tc.GetContentType(); !strings.HasPrefix(ct, "application/pdf") {
		return fmt.Errorf("expected application/pdf, got %q", ct)
	}
	if !bytes.HasPrefix(s.tc.GetResponseBody(), []byte("%PDF")) {
		return fmt.Errorf("receipt body is not a PDF")
	}
	return nil
}

func (s *paymentSteps) applicationPaymentStatus(ctx context.Context, want string) error {
	applicationID, err := s.tc.Saved("application_id")
	if err != nil {
		return err
	}
	if err := s.tc.GET("/applications/"+applicationID, nil); err != nil {
		return err
	}
	if err := s.expect(http.StatusOK); err != nil {
		return err
	}
	got, err := s.tc.GetResponseField("payment_status")
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("expected payment_status %s, got %v", want, got)
	}
	return nil
}

func (s *paymentSteps) expect(status int) error {
	if got := s.tc.GetStatusCode(); got != status {
		return fmt.Errorf("expected status %d, got %d: %s", status, got, s.tc.GetResponseBody())
	}
	return nil
}

func (s *paymentSteps) saveField(field, key string) error {
	v, err := s.tc.GetResponseField(field)
	if err != nil {
		return err
	}
	str, ok := v.(string)
	if !ok {
		return fmt.Errorf("field %s is %T, want string", field, v)
	}
	s.tc.Save(key, str)
	return nil
}
