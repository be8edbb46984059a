package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
)

// ErrUnavailable indicates a transient gateway failure (network, timeout,
// server error). Nothing was confirmed or denied; the caller may retry.
var ErrUnavailable = errors.New("payment gateway unavailable")

// Verification is the gateway-reported outcome for a reference.
type Verification struct {
	Success       bool
	AmountMinor   int64
	Channel       string
	GatewayStatus string
	TransactionID *string
	PaidAt        *time.Time
	RawPayload    string
}

// Verifier confirms a payment reference against the gateway. The
// reconciliation engine consumes this interface so tests can inject fakes.
type Verifier interface {
	Verify(ctx context.Context, reference string) (*Verification, error)
}

type Config struct {
	SecretKey string
	BaseURL   string
	Timeout   time.Duration
}

// Client talks to the Paystack transaction API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.paystack.co"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	c := &Client{
		cfg:        cfg,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the secret key is set.
func (c *Client) Configured() bool {
	return c.cfg.SecretKey != ""
}

type initializeRequest struct {
	Email       string `json:"email"`
	Amount      int64  `json:"amount"`
	Reference   string `json:"reference"`
	CallbackURL string `json:"callback_url,omitempty"`
}

type initializeResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	} `json:"data"`
}

// Initialize creates a hosted-payment transaction and returns the
// authorization URL the member is redirected to. Amount is in minor units.
func (c *Client) Initialize(ctx context.Context, email string, amountMinor int64, reference, callbackURL string) (string, error) {
	if !c.Configured() {
		return "", fmt.Errorf("gateway client not configured: missing secret key")
	}

	body, err := json.Marshal(initializeRequest{
		Email:       email,
		Amount:      amountMinor,
		Reference:   reference,
		CallbackURL: callbackURL,
	})
	if err != nil {
		return "", fmt.Errorf("marshal initialize request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/transaction/initialize", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var parsed initializeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode initialize response: %w", err)
	}
	if resp.StatusCode >= 400 || !parsed.Status {
		return "", fmt.Errorf("initialize transaction: %s", parsed.Message)
	}
	return parsed.Data.AuthorizationURL, nil
}

type verifyResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		ID        int64  `json:"id"`
		Status    string `json:"status"`
		Reference string `json:"reference"`
		Amount    int64  `json:"amount"`
		Channel   string `json:"channel"`
		PaidAt    string `json:"paid_at"`
	} `json:"data"`
}

// Verify fetches the gateway-side outcome for a reference. Transient failures
// are retried with fibonacci backoff; exhaustion surfaces as ErrUnavailable.
// A definitive gateway answer (success or not) is never an error.
func (c *Client) Verify(ctx context.Context, reference string) (*Verification, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("gateway client not configured: missing secret key")
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var result *Verification
	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		v, err := c.verifyOnce(ctx, reference)
		if err != nil {
			if errors.Is(err, ErrUnavailable) {
				return retry.RetryableError(err)
			}
			return err
		}
		result = v
		return nil
	})
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, ErrUnavailable) {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil, err
	}
	return result, nil
}

func (c *Client) verifyOnce(ctx context.Context, reference string) (*Verification, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.cfg.BaseURL+"/transaction/verify/"+reference, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var parsed verifyResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode verify response: %w", err)
	}

	v := &Verification{
		Success:       parsed.Status && parsed.Data.Status == "success",
		AmountMinor:   parsed.Data.Amount,
		Channel:       parsed.Data.Channel,
		GatewayStatus: parsed.Data.Status,
		RawPayload:    string(raw),
	}
	if parsed.Data.ID != 0 {
		id := fmt.Sprintf("%d", parsed.Data.ID)
		v.TransactionID = &id
	}
	if parsed.Data.PaidAt != "" {
		if t, err := time.Parse(time.RFC3339, parsed.Data.PaidAt); err == nil {
			v.PaidAt = &t
		}
	}
	return v, nil
}

// ValidSignature checks the webhook HMAC-SHA512 signature over the raw body.
func (c *Client) ValidSignature(body []byte, signature string) bool {
	mac := hmac.New(sha512.New, []byte(c.cfg.SecretKey))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
