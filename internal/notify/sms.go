package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SMSGateway posts messages to an HTTP SMS provider as {"to": ..., "message": ...}
// with a bearer token.
type SMSGateway struct {
	URL        string
	Token      string
	Sender     string
	HTTPClient *http.Client
}

func NewSMSGateway(url, token, sender string) *SMSGateway {
	return &SMSGateway{URL: url, Token: token, Sender: sender, HTTPClient: &http.Client{Timeout: 10 * time.Second}}
}

func (g *SMSGateway) SendSMS(ctx context.Context, to, message string) error {
	if g.URL == "" {
		return ErrNotConfigured
	}
	payload, err := json.Marshal(map[string]string{"to": to, "message": message, "from": g.Sender})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.Token != "" {
		req.Header.Set("Authorization", "Bearer "+g.Token)
	}
	resp, err := g.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("sms gateway: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sms gateway: status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return nil
}
