package adminhandler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/ruteri/device-activation-backend/api"
)

// AdminClient calls the operator endpoints.
type AdminClient struct {
	serverAddr string
	httpClient *http.Client
}

func NewAdminClient(serverAddr string) *AdminClient {
	return &AdminClient{
		serverAddr: strings.TrimSuffix(serverAddr, "/"),
		httpClient: cleanhttp.DefaultPooledClient(),
	}
}

func (c *AdminClient) Deactivate(ctx context.Context, req *api.DeactivateRequest) (*api.DeactivateResponse, error) {
	var resp api.DeactivateResponse
	if err := c.do(ctx, http.MethodPost, "/api/admin/deactivate", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *AdminClient) MarkReady(ctx context.Context, req *api.ReadinessRequest) (*api.FactoryRecord, error) {
	var resp api.FactoryRecord
	if err := c.do(ctx, http.MethodPost, "/api/admin/readiness", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *AdminClient) RecordAssociation(ctx context.Context, req *api.AssociationRequest) (*api.AssociationResponse, error) {
	var resp api.AssociationResponse
	if err := c.do(ctx, http.MethodPost, "/api/admin/associations", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *AdminClient) UpdateTransactionStatus(ctx context.Context, serialNumber, status string) error {
	path := fmt.Sprintf("/api/admin/associations/%s/transaction", url.PathEscape(serialNumber))
	return c.do(ctx, http.MethodPut, path, &api.TransactionStatusRequest{Status: status}, nil)
}

func (c *AdminClient) DeviceStatus(ctx context.Context, serialNumber string) (*api.DeviceStatusResponse, error) {
	var resp api.DeviceStatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/admin/devices/"+url.PathEscape(serialNumber), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *AdminClient) RegisterFactoryRecord(ctx context.Context, record *api.FactoryRecord) (*api.FactoryRecord, error) {
	var resp api.FactoryRecord
	if err := c.do(ctx, http.MethodPost, "/api/admin/factory-records", record, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *AdminClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.serverAddr+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("could not request admin endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, api.MaxBodySize))
		var errResp api.ErrorResponse
		if json.Unmarshal(bodyBytes, &errResp) == nil && errResp.Message != "" {
			return fmt.Errorf("admin endpoint returned error %d (%s): %s", resp.StatusCode, errResp.Kind, errResp.Message)
		}
		return fmt.Errorf("admin endpoint returned error %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("could not parse admin response: %w", err)
	}
	return nil
}
