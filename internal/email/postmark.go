package email

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type Client struct {
	serverToken string
	fromEmail   string
	apiURL      string
	httpClient  *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func WithAPIURL(url string) Option {
	return func(cl *Client) {
		cl.apiURL = url
	}
}

func NewClient(serverToken, fromEmail string, opts ...Option) *Client {
	c := &Client{
		serverToken: serverToken,
		fromEmail:   fromEmail,
		apiURL:      "https://api.postmarkapp.com/email",
		httpClient:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the server token is set.
func (c *Client) Configured() bool {
	return c.serverToken != ""
}

type postmarkEmail struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HtmlBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
}

// SendPaymentReminder sends a due-date reminder. The kind is one of the
// display labels (Advance Notice, Urgent, Due Today, Overdue).
func (c *Client) SendPaymentReminder(toEmail, name, kind string, dueDate time.Time, daysUntil int) error {
	if !c.Configured() {
		return fmt.Errorf("email client not configured: missing server token")
	}

	var subject, lead string
	due := dueDate.Format("January 2, 2006")
	switch {
	case daysUntil < 0:
		subject = "Your gym membership payment is overdue"
		lead = fmt.Sprintf("Your membership payment was due on %s. Please renew to regain access.", due)
	case daysUntil == 0:
		subject = "Your gym membership payment is due today"
		lead = "Your membership payment is due today. Renew now to keep your access active."
	default:
		subject = fmt.Sprintf("Your gym membership payment is due in %d day(s)", daysUntil)
		lead = fmt.Sprintf("Your membership payment is due on %s.", due)
	}

	textBody := fmt.Sprintf("Hi %s,\n\n%s\n\nReminder type: %s\n\nSee you at the gym!", name, lead, kind)
	htmlBody := fmt.Sprintf(
		`<p>Hi %s,</p><p>%s</p><p>Reminder type: <strong>%s</strong></p><p>See you at the gym!</p>`,
		name, lead, kind,
	)

	return c.send(postmarkEmail{
		From:     c.fromEmail,
		To:       toEmail,
		Subject:  subject,
		HtmlBody: htmlBody,
		TextBody: textBody,
	})
}

// SendPaymentReceipt confirms a completed payment.
func (c *Client) SendPaymentReceipt(toEmail, name, planName string, amountMinor int64, endDate time.Time) error {
	if !c.Configured() {
		return fmt.Errorf("email client not configured: missing server token")
	}

	amount := fmt.Sprintf("%.2f", float64(amountMinor)/100)
	textBody := fmt.Sprintf(
		"Hi %s,\n\nWe received your payment of %s for the %s plan.\nYour membership is active until %s.\n\nThank you!",
		name, amount, planName, endDate.Format("January 2, 2006"),
	)
	htmlBody := fmt.Sprintf(
		`<p>Hi %s,</p><p>We received your payment of <strong>%s</strong> for the %s plan.</p><p>Your membership is active until <strong>%s</strong>.</p><p>Thank you!</p>`,
		name, amount, planName, endDate.Format("January 2, 2006"),
	)

	return c.send(postmarkEmail{
		From:     c.fromEmail,
		To:       toEmail,
		Subject:  "Payment received: membership activated",
		HtmlBody: htmlBody,
		TextBody: textBody,
	})
}

func (c *Client) send(payload postmarkEmail) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequest("POST", c.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", c.serverToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("postmark API error: status %d", resp.StatusCode)
	}

	return nil
}
