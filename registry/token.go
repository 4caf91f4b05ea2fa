package registry

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/ruteri/device-activation-backend/interfaces"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// ClientCredentialsTokenSource fetches access tokens with the OAuth2 client
// credentials grant. Every call performs a new token request.
type ClientCredentialsTokenSource struct {
	config     clientcredentials.Config
	httpClient *http.Client
}

var _ interfaces.TokenSource = (*ClientCredentialsTokenSource)(nil)

func NewClientCredentialsTokenSource(tokenURL, clientID, clientSecret string, scopes []string) *ClientCredentialsTokenSource {
	return &ClientCredentialsTokenSource{
		config: clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
			Scopes:       scopes,
		},
		httpClient: cleanhttp.DefaultPooledClient(),
	}
}

func (s *ClientCredentialsTokenSource) Token(ctx context.Context) (string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	token, err := s.config.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: could not obtain access token: %v", interfaces.ErrRegistrationFailed, err)
	}
	return token.AccessToken, nil
}

// StaticTokenSource returns the same token on every call. Used for local
// development against a registration service without OAuth2.
type StaticTokenSource string

func (s StaticTokenSource) Token(context.Context) (string, error) {
	return string(s), nil
}
