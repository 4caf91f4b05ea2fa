package activationhandler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/ruteri/device-activation-backend/api"
)

// ClientError is returned for non-2xx responses.
type ClientError struct {
	StatusCode int
	Response   api.ErrorResponse
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("activation endpoint returned error %d (%s): %s", e.StatusCode, e.Response.Kind, e.Response.Message)
}

// Client calls the activation endpoints, typically from a device simulator.
type Client struct {
	// ServerAddr is the base URL of the activation server
	ServerAddr string

	HTTPClient *http.Client
}

func NewClient(serverAddr string) *Client {
	return &Client{
		ServerAddr: strings.TrimSuffix(serverAddr, "/"),
		HTTPClient: cleanhttp.DefaultPooledClient(),
	}
}

// Activate submits a qualifier-based activation. A provisioned-alive outcome
// is returned as a response with ProvisionedAlive set and no error.
func (c *Client) Activate(ctx context.Context, req *api.ActivationRequest) (*api.ActivationResponse, error) {
	return c.post(ctx, "/api/v1/devices/activate", req)
}

func (c *Client) ActivatePSK(ctx context.Context, req *api.PSKActivationRequest) (*api.ActivationResponse, error) {
	return c.post(ctx, "/api/v1/devices/psk/activate", req)
}

func (c *Client) post(ctx context.Context, path string, body any) (*api.ActivationResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.ServerAddr+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not request activation endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, api.MaxBodySize))
		clientErr := &ClientError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(bodyBytes, &clientErr.Response); err != nil {
			clientErr.Response.Message = strings.TrimSpace(string(bodyBytes))
		}
		return nil, clientErr
	}

	var parsed api.ActivationResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("could not parse activation response: %w", err)
	}
	return &parsed, nil
}
