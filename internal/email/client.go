// Package email defines the transport boundary for transactional email and
// provides SendGrid- and Resend-backed implementations.
package email

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Message is one rendered email. The body is complete HTML.
type Message struct {
	To      string // recipient email address
	ToName  string // display name; may be empty
	Subject string
	HTML    string
}

// Sender is the interface the digest job uses to deliver mail.
// Tests inject a stub that records calls without hitting the network.
type Sender interface {
	// Send returns nil only when the provider accepted the message. A
	// provider that answered with a non-accepting status yields a
	// *RejectedError; network and encoding failures are plain errors.
	Send(ctx context.Context, m Message) error
}

// RejectedError is returned when the provider answered but did not accept
// the message.
type RejectedError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("email: %s rejected message: status %d: %.200s", e.Provider, e.StatusCode, e.Body)
}

// Option customises a provider client.
type Option func(*clientOptions)

type clientOptions struct {
	endpoint   string
	httpClient *http.Client
}

// WithEndpoint overrides the provider's API URL (sandbox or test server).
func WithEndpoint(url string) Option {
	return func(o *clientOptions) { o.endpoint = url }
}

// WithHTTPClient replaces the default 15s-timeout client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *clientOptions) { o.httpClient = c }
}

func buildOptions(defaultEndpoint string, opts []Option) clientOptions {
	o := clientOptions{
		endpoint: defaultEndpoint,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// maxResponseBytes caps how much of a provider response is read.
const maxResponseBytes = 64 * 1024
