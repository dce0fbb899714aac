package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const sendGridEndpoint = "https://api.sendgrid.com/v3/mail/send"

// sendGridClient is the concrete Sender backed by the SendGrid v3 API.
type sendGridClient struct {
	apiKey   string
	fromAddr string // e.g. "studymateai.info@gmail.com"
	fromName string // e.g. "StudyMate.AI"
	opts     clientOptions
}

// NewSendGridClient returns a Sender that delivers email via SendGrid.
func NewSendGridClient(apiKey, fromAddr, fromName string, opts ...Option) Sender {
	return &sendGridClient{
		apiKey:   apiKey,
		fromAddr: fromAddr,
		fromName: fromName,
		opts:     buildOptions(sendGridEndpoint, opts),
	}
}

// ─── SENDGRID API SHAPES ──────────────────────────────────────────────────────

type sgAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sgPersonalization struct {
	To      []sgAddress `json:"to"`
	Subject string      `json:"subject"`
}

type sgContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sgToggle struct {
	Enable bool `json:"enable"`
}

type sgTracking struct {
	ClickTracking sgToggle `json:"click_tracking"`
	OpenTracking  sgToggle `json:"open_tracking"`
}

type sendGridRequest struct {
	Personalizations []sgPersonalization `json:"personalizations"`
	From             sgAddress           `json:"from"`
	Content          []sgContent         `json:"content"`
	TrackingSettings sgTracking          `json:"tracking_settings"`
}

// ─── HTTP SEND ────────────────────────────────────────────────────────────────

// Send posts the message. SendGrid signals acceptance with 202 and an empty
// body; every other status is a rejection.
func (c *sendGridClient) Send(ctx context.Context, m Message) error {
	reqBody := sendGridRequest{
		Personalizations: []sgPersonalization{{
			To:      []sgAddress{{Email: m.To, Name: m.ToName}},
			Subject: m.Subject,
		}},
		From:    sgAddress{Email: c.fromAddr, Name: c.fromName},
		Content: []sgContent{{Type: "text/html", Value: m.HTML}},
		TrackingSettings: sgTracking{
			ClickTracking: sgToggle{Enable: true},
			OpenTracking:  sgToggle{Enable: true},
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("email: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("email: build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.opts.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("email: http request: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("email: read response: %w", err)
	}

	if resp.StatusCode != http.StatusAccepted {
		return &RejectedError{Provider: "sendgrid", StatusCode: resp.StatusCode, Body: string(respBytes)}
	}
	return nil
}
