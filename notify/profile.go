package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/ruteri/device-activation-backend/interfaces"
)

// ProfileClient implements interfaces.ProfileLookup against the user profile
// service: GET {base}/v1/users/{userId}/profile.
type ProfileClient struct {
	baseURL    string
	httpClient *http.Client
}

var _ interfaces.ProfileLookup = (*ProfileClient)(nil)

func NewProfileClient(baseURL string, httpClient *http.Client) *ProfileClient {
	if httpClient == nil {
		httpClient = cleanhttp.DefaultPooledClient()
	}
	return &ProfileClient{baseURL: strings.TrimSuffix(baseURL, "/"), httpClient: httpClient}
}

func (c *ProfileClient) Profile(ctx context.Context, userID string) (*interfaces.UserProfile, error) {
	endpoint := fmt.Sprintf("%s/v1/users/%s/profile", c.baseURL, url.PathEscape(userID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not request profile endpoint: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, interfaces.ErrProfileNotFound
	case resp.StatusCode != http.StatusOK:
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("profile endpoint returned error %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}

	var profile interfaces.UserProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("could not parse profile response: %w", err)
	}
	if profile.UserID == "" {
		profile.UserID = userID
	}
	return &profile, nil
}
