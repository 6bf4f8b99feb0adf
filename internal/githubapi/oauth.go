package githubapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"gitbridge/internal/config"
	"gitbridge/pkg/models"
)

var ErrOAuthDenied = errors.New("github authorization denied")

// OAuth is the thin wrapper around GitHub's OAuth web flow used for
// identity linking. Only the mechanical roundtrip lives here; the handshake
// state machine belongs to the linker.
type OAuth interface {
	AuthorizeURL(state string) string
	ExchangeCode(ctx context.Context, code string) (string, error)
	FetchUser(ctx context.Context, accessToken string) (*models.GitHubIdentity, error)
}

// OAuthClient implements OAuth against github.com.
type OAuthClient struct {
	oauthBaseURL string
	apiBaseURL   string
	clientID     string
	clientSecret string
	redirectURL  string
	client       *http.Client
}

// NewOAuthClient creates a new OAuthClient. redirectURL must match the
// callback URL registered on the OAuth app.
func NewOAuthClient(cfg config.GitHubConfig, redirectURL string) *OAuthClient {
	return &OAuthClient{
		oauthBaseURL: cfg.OAuthBaseURL,
		apiBaseURL:   cfg.BaseURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		redirectURL:  redirectURL,
		client:       &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *OAuthClient) AuthorizeURL(state string) string {
	q := url.Values{}
	q.Set("client_id", c.clientID)
	q.Set("redirect_uri", c.redirectURL)
	q.Set("scope", "read:user")
	q.Set("state", state)
	return c.oauthBaseURL + "/login/oauth/authorize?" + q.Encode()
}

func (c *OAuthClient) ExchangeCode(ctx context.Context, code string) (string, error) {
	form := url.Values{}
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	form.Set("code", code)
	form.Set("redirect_uri", c.redirectURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.oauthBaseURL+"/login/oauth/access_token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGitHubUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token exchange returned HTTP %d", resp.StatusCode)
	}

	var body struct {
		AccessToken      string `json:"access_token"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if body.Error != "" {
		return "", fmt.Errorf("%w: %s", ErrOAuthDenied, body.ErrorDescription)
	}
	if body.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", ErrOAuthDenied)
	}
	return body.AccessToken, nil
}

func (c *OAuthClient) FetchUser(ctx context.Context, accessToken string) (*models.GitHubIdentity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBaseURL+"/user", nil)
	if err != nil {
		return nil, fmt.Errorf("build user request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGitHubUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch user returned HTTP %d", resp.StatusCode)
	}

	var body struct {
		ID    int64  `json:"id"`
		Login string `json:"login"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode user response: %w", err)
	}
	if body.Login == "" {
		return nil, fmt.Errorf("github user has no login")
	}
	return &models.GitHubIdentity{UserID: body.ID, Username: body.Login}, nil
}
