// Package google implements the federated.Provider interface against
// Google's OAuth2 endpoints with PKCE.
package google

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
	defaultAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	defaultTokenURL    = "https://oauth2.googleapis.com/token"
	defaultUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"
)

// Config holds the Google OAuth2 client settings. Endpoint URLs default to
// Google's production endpoints and exist as fields for tests.
type Config struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Scopes       []string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	HTTPClient   *http.Client
}

// DefaultScopes are the OpenID Connect scopes needed for a login profile.
func DefaultScopes() []string {
	return []string{"openid", "email", "profile"}
}

// Provider talks to Google's OAuth2 and userinfo endpoints.
type Provider struct {
	cfg    Config
	client *http.Client
}

// New builds a Google provider, filling endpoint and scope defaults.
func New(cfg Config) *Provider {
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaultAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultTokenURL
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = defaultUserInfoURL
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
	return "google"
}

// AuthCodeURL builds the authorization redirect. access_type=offline keeps
// parity with Google's recommended web-server flow.
func (p *Provider) AuthCodeURL(state string, opts ...federated.AuthCodeOption) string {
	req := federated.ApplyAuthCodeOptions(p.cfg.Scopes, opts...)

	q := url.Values{
		"client_id":     {p.cfg.ClientID},
		"redirect_uri":  {p.cfg.CallbackURL},
		"response_type": {"code"},
		"access_type":   {"offline"},
		"scope":         {strings.Join(req.Scopes, " ")},
		"state":         {state},
	}
	if req.CodeChallenge != "" {
		q.Set("code_challenge", req.CodeChallenge)
		q.Set("code_challenge_method", req.CodeChallengeMethod)
	}

	return p.cfg.AuthURL + "?" + q.Encode()
}

// Exchange trades the callback code for an access token.
func (p *Provider) Exchange(ctx context.Context, code string, opts ...federated.ExchangeOption) (*federated.Token, error) {
	req := federated.ApplyExchangeOptions(opts...)

	form := url.Values{
		"client_id":     {p.cfg.ClientID},
		"client_secret": {p.cfg.ClientSecret},
		"redirect_uri":  {p.cfg.CallbackURL},
		"grant_type":    {"authorization_code"},
		"code":          {code},
	}
	if req.CodeVerifier != "" {
		form.Set("code_verifier", req.CodeVerifier)
	}

	body, status, err := p.postForm(ctx, p.cfg.TokenURL, form)
	if err != nil {
		return nil, p.fail("exchange", 0, "", "", err)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int64  `json:"expires_in"`
		Error       string `json:"error"`
		ErrorDesc   string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, p.fail("exchange", status, "", "", fmt.Errorf("decode token response: %w", err))
	}
	if status != http.StatusOK || payload.Error != "" {
		return nil, p.fail("exchange", status, payload.Error, payload.ErrorDesc, nil)
	}
	if payload.AccessToken == "" {
		return nil, p.fail("exchange", status, "empty_access_token", "token response had no access token", nil)
	}

	token := &federated.Token{
		AccessToken: payload.AccessToken,
		TokenType:   payload.TokenType,
	}
	if payload.ExpiresIn > 0 {
		token.ExpiresAt = time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	}
	return token, nil
}

// UserInfo fetches the userinfo document and maps it to a Profile.
func (p *Provider) UserInfo(ctx context.Context, token *federated.Token) (*federated.Profile, error) {
	if token == nil || token.AccessToken == "" {
		return nil, p.fail("user_info", 0, "missing_token", "no access token", nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.UserInfoURL, nil)
	if err != nil {
		return nil, p.fail("user_info", 0, "", "", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, p.fail("user_info", 0, "", "", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, p.fail("user_info", resp.StatusCode, "", "", err)
	}
	if resp.StatusCode != http.StatusOK {
		code, desc := parseAPIError(body)
		return nil, p.fail("user_info", resp.StatusCode, code, desc, nil)
	}

	var info userInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, p.fail("user_info", resp.StatusCode, "", "", fmt.Errorf("decode userinfo: %w", err))
	}
	if info.Sub == "" {
		return nil, p.fail("user_info", resp.StatusCode, "missing_subject", "userinfo had no subject", nil)
	}

	return info.toProfile(), nil
}

func (p *Provider) postForm(ctx context.Context, endpoint string, form url.Values) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func (p *Provider) fail(operation string, status int, code, description string, err error) error {
	return &federated.ProviderError{
		Provider:    "google",
		Operation:   operation,
		Status:      status,
		Code:        code,
		Description: description,
		Err:         err,
	}
}

// parseAPIError handles both error shapes Google returns: the flat OAuth2
// form and the nested Cloud API form.
func parseAPIError(body []byte) (code, description string) {
	var flat struct {
		Error     string `json:"error"`
		ErrorDesc string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &flat); err == nil && flat.Error != "" {
		return flat.Error, flat.ErrorDesc
	}

	var nested struct {
		Error struct {
			Status  string `json:"status"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &nested); err == nil && nested.Error.Status != "" {
		return nested.Error.Status, nested.Error.Message
	}

	return "", strings.TrimSpace(string(body))
}
