// Package pinet is a client for the Pi Platform payments API (v2).
package pinet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ariefcatur/go-pi-orders/internal/apperr"
	"github.com/shopspring/decimal"
)

const (
	DefaultBaseURL = "https://api.minepi.com"
	DefaultTimeout = 10 * time.Second

	// upstream error codes that mean the call already took effect
	codeAlreadyApproved  = "already_approved"
	codeAlreadyCompleted = "already_completed"

	maxErrorBody = 4 << 10
)

type Client struct {
	apiKey       string
	walletSecret string
	baseURL      string
	client       *http.Client
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.client = hc } }

// WithWalletSecret attaches the outbound wallet credential to complete calls.
func WithWalletSecret(s string) Option { return func(c *Client) { c.walletSecret = s } }

// New fails when the API key is missing so misconfiguration surfaces at startup.
func New(apiKey string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, apperr.Config("PI_API_KEY is not configured")
	}
	c := &Client{
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
		client:  &http.Client{Timeout: DefaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// OutboundPayment describes an app-to-user payment.
type OutboundPayment struct {
	Amount   decimal.Decimal
	Memo     string
	Metadata json.RawMessage
	UID      string
}

type createRequest struct {
	Payment struct {
		Amount   json.Number     `json:"amount"`
		Memo     string          `json:"memo"`
		Metadata json.RawMessage `json:"metadata"`
		UID      string          `json:"uid"`
	} `json:"payment"`
}

func (c *Client) CreateOutboundPayment(ctx context.Context, p OutboundPayment) (string, error) {
	var req createRequest
	req.Payment.Amount = json.Number(p.Amount.String())
	req.Payment.Memo = p.Memo
	req.Payment.Metadata = p.Metadata
	if len(req.Payment.Metadata) == 0 {
		req.Payment.Metadata = json.RawMessage(`{}`)
	}
	req.Payment.UID = p.UID

	var out Payment
	if err := c.do(ctx, "create", http.MethodPost, "/v2/payments", req, &out); err != nil {
		return "", err
	}
	if out.Identifier == "" {
		return "", &apperr.GatewayError{Op: "create", Body: "response has no payment identifier"}
	}
	return out.Identifier, nil
}

// ApprovePayment treats an already approved payment as success.
func (c *Client) ApprovePayment(ctx context.Context, paymentID string) error {
	err := c.do(ctx, "approve", http.MethodPost, paymentPath(paymentID, "approve"), struct{}{}, nil)
	if alreadyDone(err, codeAlreadyApproved) {
		return nil
	}
	return err
}

// CompletePayment treats an already completed payment as success.
func (c *Client) CompletePayment(ctx context.Context, paymentID, txid string) error {
	body := map[string]string{"txid": txid}
	if c.walletSecret != "" {
		body["app_wallet_secret"] = c.walletSecret
	}
	err := c.do(ctx, "complete", http.MethodPost, paymentPath(paymentID, "complete"), body, nil)
	if alreadyDone(err, codeAlreadyCompleted) {
		return nil
	}
	return err
}

func (c *Client) CancelPayment(ctx context.Context, paymentID string) error {
	return c.do(ctx, "cancel", http.MethodPost, paymentPath(paymentID, "cancel"), struct{}{}, nil)
}

// GetPayment reads a snapshot; it never mutates upstream state.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	var out Payment
	if err := c.do(ctx, "get", http.MethodGet, paymentPath(paymentID, ""), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) IncompleteOutboundPayments(ctx context.Context) ([]Payment, error) {
	var out struct {
		Payments []Payment `json:"incomplete_server_payments"`
	}
	if err := c.do(ctx, "incomplete", http.MethodGet, "/v2/payments/incomplete_server_payments", nil, &out); err != nil {
		return nil, err
	}
	return out.Payments, nil
}

func paymentPath(id, action string) string {
	p := "/v2/payments/" + id
	if action != "" {
		p += "/" + action
	}
	return p
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", op, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &apperr.GatewayError{Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Key "+c.apiKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &apperr.GatewayError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &apperr.GatewayError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &apperr.GatewayError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

type upstreamError struct {
	Error   string `json:"error"`
	Message string `json:"error_message"`
}

func alreadyDone(err error, code string) bool {
	var ge *apperr.GatewayError
	if !errors.As(err, &ge) || ge.StatusCode == 0 {
		return false
	}
	var ue upstreamError
	if json.Unmarshal([]byte(ge.Body), &ue) == nil && ue.Error == code {
		return true
	}
	return strings.Contains(ge.Body, code)
}
