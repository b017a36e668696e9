package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// SMSSender sends ChannelSMS messages through an HTTP gateway that takes
// the pass key, recipient and text as query parameters.
type SMSSender struct {
	endpoint string
	passKey  string
	client   *http.Client
}

var _ Notifier = (*SMSSender)(nil)

func NewSMSSender(endpoint, passKey string) *SMSSender {
	return &SMSSender{
		endpoint: endpoint,
		passKey:  passKey,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *SMSSender) Notify(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return fmt.Errorf("notify: sms without recipient")
	}

	u, err := url.Parse(s.endpoint)
	if err != nil {
		return fmt.Errorf("notify: parsing sms endpoint: %w", err)
	}
	q := u.Query()
	q.Set("passkey", s.passKey)
	q.Set("mobile", msg.To)
	q.Set("message", msg.Text)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("notify: building sms request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: calling sms gateway: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("notify: sms gateway returned status %d", resp.StatusCode)
	}
	return nil
}
