// Package email sends transactional mail through the Resend HTTP API.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const resendEndpoint = "https://api.resend.com/emails"

var ErrNotConfigured = errors.New("email client not configured: missing API key")

type Client struct {
	apiKey     string
	fromEmail  string
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// NewClient builds a client. baseURL is the portal origin that reset links
// point at.
func NewClient(apiKey, fromEmail, baseURL string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		fromEmail:  fromEmail,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the API key is set.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

type resendEmail struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Text    string   `json:"text"`
	HTML    string   `json:"html"`
}

// ResetLink is the portal page that redeems token.
func (c *Client) ResetLink(token string) string {
	return fmt.Sprintf("%s/reset-password?token=%s", c.baseURL, url.QueryEscape(token))
}

// SendPasswordReset mails the reset link for token to toEmail.
func (c *Client) SendPasswordReset(ctx context.Context, toEmail, token string) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	link := c.ResetLink(token)
	escaped := html.EscapeString(link)
	payload := resendEmail{
		From:    c.fromEmail,
		To:      []string{toEmail},
		Subject: "Reset your PCU Dashboard password",
		Text:    fmt.Sprintf("Use this link to reset your password:\n\n%s\n\nThis link expires in 1 hour.", link),
		HTML: fmt.Sprintf(
			`<p>Use this link to reset your PCU Dashboard password:</p><p><a href="%s">%s</a></p><p>This link expires in 1 hour.</p>`,
			escaped, escaped,
		),
	}
	return c.send(ctx, payload)
}

func (c *Client) send(ctx context.Context, payload resendEmail) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, resendEndpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("resend API error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	return nil
}
