package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// GatewaySMSSender delivers OTP codes through an HTTP SMS gateway.
type GatewaySMSSender struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewGatewaySMSSender creates an SMS sender that POSTs messages to the
// gateway at endpoint.
func NewGatewaySMSSender(endpoint, apiKey string) *GatewaySMSSender {
	return &GatewaySMSSender{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Name returns the name of this sender.
func (s *GatewaySMSSender) Name() string {
	return "sms-gateway"
}

// SendOTP posts the code to the gateway addressed to phoneNumber.
func (s *GatewaySMSSender) SendOTP(ctx context.Context, phoneNumber, code string) error {
	payload := map[string]string{
		"to":      phoneNumber,
		"message": fmt.Sprintf("Your verification code is %s. It expires in 5 minutes.", code),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal sms payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send sms: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Read a bounded slice of the body for the error message.
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sms gateway returned status %d: %s", resp.StatusCode, detail)
	}

	return nil
}
