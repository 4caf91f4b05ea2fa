package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/ruteri/device-activation-backend/interfaces"
)

// SMSRequest is the body accepted by the SMS gateway.
type SMSRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

// SMSClient implements interfaces.SMSSender against an SMS gateway:
// POST {base}/v1/messages.
type SMSClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ interfaces.SMSSender = (*SMSClient)(nil)

func NewSMSClient(baseURL, apiKey string, httpClient *http.Client) *SMSClient {
	if httpClient == nil {
		httpClient = cleanhttp.DefaultPooledClient()
	}
	return &SMSClient{baseURL: strings.TrimSuffix(baseURL, "/"), apiKey: apiKey, httpClient: httpClient}
}

func (c *SMSClient) SendSMS(ctx context.Context, phoneNumber, message string) error {
	payload, err := json.Marshal(&SMSRequest{To: phoneNumber, Message: message})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("could not request sms gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("sms gateway returned error %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}
	return nil
}
