// Package service provides the OAuth authorization-code exchange used by
// the proxy, delegating the protocol to golang.org/x/oauth2.
package service

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

// DefaultScopes lets the token read the user and manage the datastore repository.
var DefaultScopes = []string{"repo"}

// ErrEmptyCode is returned by Exchange for an empty authorization code.
var ErrEmptyCode = errors.New("authorization code is empty")

// OAuthConfig describes the upstream OAuth application.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	// RedirectURL is the proxy's callback URL. Empty leaves it to the
	// value registered with the OAuth application.
	RedirectURL string
	// AuthURL and TokenURL override the GitHub endpoints.
	AuthURL  string
	TokenURL string
	Scopes   []string
}

// OAuthService builds authorize URLs and exchanges codes for access tokens.
type OAuthService struct {
	// conf is the oauth2 client configuration.
	conf *oauth2.Config
}

// NewOAuthService constructs an OAuthService for cfg.
// Client credentials are sent in the request body, as GitHub expects.
func NewOAuthService(cfg OAuthConfig) *OAuthService {
	endpoint := github.Endpoint
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	return &OAuthService{conf: &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint:     endpoint,
		Scopes:       scopes,
	}}
}

// AuthCodeURL returns the upstream authorize URL carrying state.
func (s *OAuthService) AuthCodeURL(state string) string {
	return s.conf.AuthCodeURL(state)
}

// Exchange trades code for an access token.
func (s *OAuthService) Exchange(ctx context.Context, code string) (string, error) {
	if code == "" {
		return "", ErrEmptyCode
	}
	tok, err := s.conf.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("exchange code: %w", err)
	}
	return tok.AccessToken, nil
}
