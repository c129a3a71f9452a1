// Package github implements the federated.Provider interface against
// GitHub's OAuth web application flow.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-admission/federated"
)

const (
	defaultAuthURL   = "https://github.com/login/oauth/authorize"
	defaultTokenURL  = "https://github.com/login/oauth/access_token"
	defaultUserURL   = "https://api.github.com/user"
	defaultEmailsURL = "https://api.github.com/user/emails"
)

// Config holds the GitHub OAuth client settings. Endpoint URLs default to
// github.com and exist as fields for tests.
type Config struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Scopes       []string
	AuthURL      string
	TokenURL     string
	UserURL      string
	EmailsURL    string
	HTTPClient   *http.Client
}

// DefaultScopes cover the profile and the verified-email lookup.
func DefaultScopes() []string {
	return []string{"user:email", "read:user"}
}

// Provider talks to GitHub's OAuth and REST endpoints.
type Provider struct {
	cfg    Config
	client *http.Client
}

// New builds a GitHub provider, filling endpoint and scope defaults.
func New(cfg Config) *Provider {
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaultAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultTokenURL
	}
	if cfg.UserURL == "" {
		cfg.UserURL = defaultUserURL
	}
	if cfg.EmailsURL == "" {
		cfg.EmailsURL = defaultEmailsURL
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes()
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return &Provider{cfg: cfg, client: client}
}

func (p *Provider) Name() string {
	return "github"
}

// AuthCodeURL builds the authorization redirect.
func (p *Provider) AuthCodeURL(state string, opts ...federated.AuthCodeOption) string {
	req := federated.ApplyAuthCodeOptions(p.cfg.Scopes, opts...)

	q := url.Values{
		"client_id":    {p.cfg.ClientID},
		"redirect_uri": {p.cfg.CallbackURL},
		"scope":        {strings.Join(req.Scopes, " ")},
		"state":        {state},
	}
	if req.CodeChallenge != "" {
		q.Set("code_challenge", req.CodeChallenge)
		q.Set("code_challenge_method", req.CodeChallengeMethod)
	}

	return p.cfg.AuthURL + "?" + q.Encode()
}

// Exchange trades the callback code for an access token. GitHub replies
// with form encoding unless asked for JSON.
func (p *Provider) Exchange(ctx context.Context, code string, opts ...federated.ExchangeOption) (*federated.Token, error) {
	req := federated.ApplyExchangeOptions(opts...)

	form := url.Values{
		"client_id":     {p.cfg.ClientID},
		"client_secret": {p.cfg.ClientSecret},
		"redirect_uri":  {p.cfg.CallbackURL},
		"code":          {code},
	}
	if req.CodeVerifier != "" {
		form.Set("code_verifier", req.CodeVerifier)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, p.fail("exchange", 0, "", "", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, p.fail("exchange", 0, "", "", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, p.fail("exchange", resp.StatusCode, "", "", err)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		Error       string `json:"error"`
		ErrorDesc   string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, p.fail("exchange", resp.StatusCode, "", "", fmt.Errorf("decode token response: %w", err))
	}
	if resp.StatusCode != http.StatusOK || payload.Error != "" {
		return nil, p.fail("exchange", resp.StatusCode, payload.Error, payload.ErrorDesc, nil)
	}
	if payload.AccessToken == "" {
		return nil, p.fail("exchange", resp.StatusCode, "empty_access_token", "token response had no access token", nil)
	}

	return &federated.Token{
		AccessToken: payload.AccessToken,
		TokenType:   payload.TokenType,
	}, nil
}

// UserInfo fetches the authenticated user and resolves a verified address
// from the emails endpoint. When the emails call fails, the public profile
// email is used with the verified bit left unset.
func (p *Provider) UserInfo(ctx context.Context, token *federated.Token) (*federated.Profile, error) {
	if token == nil || token.AccessToken == "" {
		return nil, p.fail("user_info", 0, "missing_token", "no access token", nil)
	}

	var user apiUser
	if err := p.getJSON(ctx, p.cfg.UserURL, token.AccessToken, &user); err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, p.fail("user_info", 0, "missing_user_id", "user response had no id", nil)
	}

	email, verified, err := p.resolveEmail(ctx, token.AccessToken)
	if err != nil {
		if user.Email == "" {
			return nil, err
		}
		email, verified = user.Email, false
	}

	return user.toProfile(email, verified), nil
}

// resolveEmail prefers the primary verified address and falls back to any
// verified one.
func (p *Provider) resolveEmail(ctx context.Context, accessToken string) (string, bool, error) {
	var emails []apiEmail
	if err := p.getJSON(ctx, p.cfg.EmailsURL, accessToken, &emails); err != nil {
		return "", false, err
	}

	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email, true, nil
		}
	}
	for _, e := range emails {
		if e.Verified {
			return e.Email, true, nil
		}
	}

	return "", false, p.fail("user_info", 0, "email_not_found", "no verified email on account", nil)
}

func (p *Provider) getJSON(ctx context.Context, endpoint, accessToken string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return p.fail("user_info", 0, "", "", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := p.client.Do(req)
	if err != nil {
		return p.fail("user_info", 0, "", "", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return p.fail("user_info", resp.StatusCode, "", "", err)
	}
	if resp.StatusCode != http.StatusOK {
		return p.fail("user_info", resp.StatusCode, "", apiErrorMessage(body), nil)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return p.fail("user_info", resp.StatusCode, "", "", fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func (p *Provider) fail(operation string, status int, code, description string, err error) error {
	return &federated.ProviderError{
		Provider:    "github",
		Operation:   operation,
		Status:      status,
		Code:        code,
		Description: description,
		Err:         err,
	}
}

func apiErrorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	return strings.TrimSpace(string(body))
}
