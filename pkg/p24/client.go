// Package p24 is a small REST client for the Przelewy24 transaction API.
package p24

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

	"github.com/angelmondragon/beadshop-backend/pkg/config"
	"github.com/angelmondragon/beadshop-backend/pkg/logger"
)

const (
	sandboxBaseURL    = "https://sandbox.przelewy24.pl"
	productionBaseURL = "https://secure.przelewy24.pl"

	registerPath = "/api/v1/transaction/register"
	verifyPath   = "/api/v1/transaction/verify"
	paymentPath  = "/trnRequest/"

	defaultHTTPTimeout = 20 * time.Second
)

var (
	ErrInvalidSignature = errors.New("p24 notification signature mismatch")
	errNotConfigured    = errors.New("p24 merchant id and crc are required")
)

// Client talks to one P24 merchant account.
type Client struct {
	http       *http.Client
	baseURL    string
	merchantID int
	posID      int
	apiKey     string
	crc        string
	returnURL  string
	statusURL  string
}

// Option customises a Client.
type Option func(*Client)

// WithBaseURL points the client at another host, e.g. an httptest server.
func WithBaseURL(base string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(base, "/") }
}

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func NewClient(ctx context.Context, cfg config.P24Config, logg *logger.Logger, opts ...Option) (*Client, error) {
	if !cfg.Enabled() {
		return nil, errNotConfigured
	}
	base := productionBaseURL
	if cfg.Sandbox {
		base = sandboxBaseURL
	}
	c := &Client{
		http:       &http.Client{Timeout: defaultHTTPTimeout},
		baseURL:    base,
		merchantID: cfg.MerchantID,
		posID:      cfg.EffectivePosID(),
		apiKey:     cfg.APIKey,
		crc:        cfg.CRC,
		returnURL:  cfg.ReturnURL,
		statusURL:  cfg.StatusURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	if logg != nil {
		logg.Info(ctx, fmt.Sprintf("p24 client initialized (%s)", c.baseURL))
	}
	return c, nil
}

// RegisterRequest is a new transaction for one payment stage.
type RegisterRequest struct {
	SessionID   string
	AmountMinor int64
	Currency    string
	Description string
	Email       string
	Country     string
	Language    string
	// Method restricts the payment page to one P24 method id (e.g. BLIK); zero means any.
	Method int
}

// Registration is the redirect target for a registered transaction.
type Registration struct {
	Token      string
	PaymentURL string
}

type registerBody struct {
	MerchantID  int    `json:"merchantId"`
	PosID       int    `json:"posId"`
	SessionID   string `json:"sessionId"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
	Email       string `json:"email"`
	Country     string `json:"country"`
	Language    string `json:"language"`
	Method      int    `json:"method,omitempty"`
	URLReturn   string `json:"urlReturn"`
	URLStatus   string `json:"urlStatus"`
	Sign        string `json:"sign"`
}

type registerResponse struct {
	Data struct {
		Token string `json:"token"`
	} `json:"data"`
	ResponseCode int `json:"responseCode"`
}

// Register creates a transaction and returns the hosted payment URL.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*Registration, error) {
	currency := strings.ToUpper(req.Currency)
	sign, err := signature(registerSignFields{
		SessionID:  req.SessionID,
		MerchantID: c.merchantID,
		Amount:     req.AmountMinor,
		Currency:   currency,
		CRC:        c.crc,
	})
	if err != nil {
		return nil, err
	}
	body := registerBody{
		MerchantID:  c.merchantID,
		PosID:       c.posID,
		SessionID:   req.SessionID,
		Amount:      req.AmountMinor,
		Currency:    currency,
		Description: req.Description,
		Email:       req.Email,
		Country:     defaultString(strings.ToUpper(req.Country), "PL"),
		Language:    defaultString(req.Language, "pl"),
		Method:      req.Method,
		URLReturn:   c.returnURL,
		URLStatus:   c.statusURL,
		Sign:        sign,
	}
	var resp registerResponse
	if err := c.do(ctx, http.MethodPost, registerPath, body, &resp); err != nil {
		return nil, err
	}
	if resp.Data.Token == "" {
		return nil, errors.New("p24 register returned no token")
	}
	return &Registration{
		Token:      resp.Data.Token,
		PaymentURL: c.baseURL + paymentPath + resp.Data.Token,
	}, nil
}

// Notification is the body P24 posts to urlStatus.
type Notification struct {
	MerchantID   int    `json:"merchantId"`
	PosID        int    `json:"posId"`
	SessionID    string `json:"sessionId"`
	Amount       int64  `json:"amount"`
	OriginAmount int64  `json:"originAmount"`
	Currency     string `json:"currency"`
	OrderID      int64  `json:"orderId"`
	MethodID     int    `json:"methodId"`
	Statement    string `json:"statement"`
	Sign         string `json:"sign"`
}

// EventID identifies one delivery for deduplication.
func (n Notification) EventID() string {
	return fmt.Sprintf("%s:%d", n.SessionID, n.OrderID)
}

// ParseNotification decodes a raw notification and checks its signature.
func (c *Client) ParseNotification(payload []byte) (*Notification, error) {
	var n Notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if n.MerchantID != c.merchantID || n.SessionID == "" {
		return nil, ErrInvalidSignature
	}
	expected, err := signature(notificationSignFields{
		MerchantID:   n.MerchantID,
		PosID:        n.PosID,
		SessionID:    n.SessionID,
		Amount:       n.Amount,
		OriginAmount: n.OriginAmount,
		Currency:     n.Currency,
		OrderID:      n.OrderID,
		MethodID:     n.MethodID,
		Statement:    n.Statement,
		CRC:          c.crc,
	})
	if err != nil {
		return nil, err
	}
	if !signaturesEqual(expected, strings.ToLower(n.Sign)) {
		return nil, ErrInvalidSignature
	}
	return &n, nil
}

type verifyBody struct {
	MerchantID int    `json:"merchantId"`
	PosID      int    `json:"posId"`
	SessionID  string `json:"sessionId"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	OrderID    int64  `json:"orderId"`
	Sign       string `json:"sign"`
}

type verifyResponse struct {
	Data struct {
		Status string `json:"status"`
	} `json:"data"`
}

// Verify confirms a notified transaction with P24. Funds are only booked
// after a successful verify call.
func (c *Client) Verify(ctx context.Context, n Notification) error {
	sign, err := signature(verifySignFields{
		SessionID: n.SessionID,
		OrderID:   n.OrderID,
		Amount:    n.Amount,
		Currency:  n.Currency,
		CRC:       c.crc,
	})
	if err != nil {
		return err
	}
	var resp verifyResponse
	if err := c.do(ctx, http.MethodPut, verifyPath, verifyBody{
		MerchantID: c.merchantID,
		PosID:      c.posID,
		SessionID:  n.SessionID,
		Amount:     n.Amount,
		Currency:   n.Currency,
		OrderID:    n.OrderID,
		Sign:       sign,
	}, &resp); err != nil {
		return err
	}
	if !strings.EqualFold(resp.Data.Status, "success") {
		return fmt.Errorf("p24 verify returned status %q", resp.Data.Status)
	}
	return nil
}

// APIError is a non-2xx answer from P24.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("p24 api error: status %d: %s", e.StatusCode, e.Body)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(fmt.Sprintf("%d", c.posID), c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("p24 %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func defaultString(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
