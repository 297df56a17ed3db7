package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"
)

// DefaultPaystackURL is the production API root.
const DefaultPaystackURL = "https://api.paystack.co"

// PaystackClient talks to the Paystack transaction API over Fiber's HTTP
// client agent.
type PaystackClient struct {
	baseURL   string
	secretKey string
	timeout   time.Duration
}

// NewPaystackClient creates a client. timeout bounds each request on top of
// whatever deadline the caller's context carries.
func NewPaystackClient(baseURL, secretKey string, timeout time.Duration) *PaystackClient {
	if baseURL == "" {
		baseURL = DefaultPaystackURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PaystackClient{baseURL: baseURL, secretKey: secretKey, timeout: timeout}
}

type paystackEnvelope[T any] struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

type initializeBody struct {
	Reference   string   `json:"reference"`
	Email       string   `json:"email"`
	Amount      int64    `json:"amount"`
	Currency    string   `json:"currency"`
	CallbackURL string   `json:"callback_url"`
	Metadata    Metadata `json:"metadata"`
}

// Initialize creates a transaction and returns where to send the customer.
func (c *PaystackClient) Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error) {
	body := initializeBody{
		Reference:   req.Reference,
		Email:       req.Email,
		Amount:      MinorUnits(req.Amount),
		Currency:    req.Currency,
		CallbackURL: req.CallbackURL,
		Metadata:    req.Metadata,
	}

	var out paystackEnvelope[InitializeResult]
	err := c.do(ctx, func() *fiber.Agent {
		return fiber.Post(c.baseURL + "/transaction/initialize").JSON(body)
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("paystack initialize %s: %w", req.Reference, err)
	}
	if !out.Status {
		return nil, fmt.Errorf("paystack initialize %s rejected: %s", req.Reference, out.Message)
	}
	if out.Data.Reference == "" {
		out.Data.Reference = req.Reference
	}
	return &out.Data, nil
}

// Verify fetches the transaction status for reference.
func (c *PaystackClient) Verify(ctx context.Context, reference string) (*VerifyResult, error) {
	var out paystackEnvelope[VerifyResult]
	err := c.do(ctx, func() *fiber.Agent {
		return fiber.Get(c.baseURL + "/transaction/verify/" + url.PathEscape(reference))
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("paystack verify %s: %w", reference, err)
	}
	if !out.Status {
		return nil, fmt.Errorf("paystack verify %s rejected: %s", reference, out.Message)
	}
	return &out.Data, nil
}

type agentResult struct {
	code int
	body []byte
	errs []error
}

// do runs the request in its own goroutine so the caller's context can cut
// it short; the agent itself only knows about its timeout.
func (c *PaystackClient) do(ctx context.Context, build func() *fiber.Agent, out any) error {
	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	if timeout <= 0 {
		return context.DeadlineExceeded
	}

	agent := build().
		Set(fiber.HeaderAuthorization, "Bearer "+c.secretKey).
		Timeout(timeout)

	done := make(chan agentResult, 1)
	go func() {
		code, body, errs := agent.Bytes()
		done <- agentResult{code: code, body: body, errs: errs}
	}()

	var res agentResult
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res = <-done:
	}

	if len(res.errs) > 0 {
		return errors.Join(res.errs...)
	}
	if err := json.Unmarshal(res.body, out); err != nil {
		return fmt.Errorf("status %d: decode response: %w", res.code, err)
	}
	if res.code >= fiber.StatusInternalServerError {
		return fmt.Errorf("gateway returned status %d", res.code)
	}
	return nil
}

var _ Gateway = (*PaystackClient)(nil)
