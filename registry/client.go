package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/ruteri/device-activation-backend/interfaces"
)

// ClientRequest is the body sent to the credential-registration service when
// creating or updating a device client.
type ClientRequest struct {
	ClientID   string                  `json:"clientId"`
	Secret     string                  `json:"secret,omitempty"`
	DeviceType string                  `json:"deviceType,omitempty"`
	Status     interfaces.ClientStatus `json:"status"`
}

// HTTPRegistrationClient implements interfaces.RegistrationClient against the
// credential-registration REST API:
//
//	POST   {base}/v1/clients
//	PUT    {base}/v1/clients/{clientId}
//	DELETE {base}/v1/clients/{clientId}
type HTTPRegistrationClient struct {
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
}

var _ interfaces.RegistrationClient = (*HTTPRegistrationClient)(nil)

// NewHTTPRegistrationClient creates a client for baseURL. A nil httpClient
// selects a pooled cleanhttp client.
func NewHTTPRegistrationClient(baseURL string, httpClient *http.Client, log *slog.Logger) *HTTPRegistrationClient {
	if httpClient == nil {
		httpClient = cleanhttp.DefaultPooledClient()
	}
	return &HTTPRegistrationClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		log:        log,
	}
}

func (c *HTTPRegistrationClient) CreateClient(ctx context.Context, token, deviceID, passcode, deviceType string) error {
	return c.do(ctx, http.MethodPost, c.baseURL+"/v1/clients", token, &ClientRequest{
		ClientID:   deviceID,
		Secret:     passcode,
		DeviceType: deviceType,
		Status:     interfaces.ClientActive,
	})
}

func (c *HTTPRegistrationClient) UpdateClient(ctx context.Context, token, deviceID, passcode, deviceType string, status interfaces.ClientStatus) error {
	return c.do(ctx, http.MethodPut, c.clientURL(deviceID), token, &ClientRequest{
		ClientID:   deviceID,
		Secret:     passcode,
		DeviceType: deviceType,
		Status:     status,
	})
}

// DeleteClient revokes a device client. A client that does not exist is
// treated as already revoked.
func (c *HTTPRegistrationClient) DeleteClient(ctx context.Context, token, deviceID string) error {
	err := c.do(ctx, http.MethodDelete, c.clientURL(deviceID), token, nil)
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
		c.log.Debug("client already absent at registration service", "deviceId", deviceID)
		return nil
	}
	return err
}

func (c *HTTPRegistrationClient) clientURL(deviceID string) string {
	return fmt.Sprintf("%s/v1/clients/%s", c.baseURL, url.PathEscape(deviceID))
}

// StatusError is returned for non-2xx responses. It wraps
// interfaces.ErrRegistrationFailed.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("registration service returned %d: %s", e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error {
	return interfaces.ErrRegistrationFailed
}

func (c *HTTPRegistrationClient) do(ctx context.Context, method, endpoint, token string, body any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("could not marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: could not reach registration service: %v", interfaces.ErrRegistrationFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(bodyBytes))}
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
