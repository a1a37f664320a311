package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/sakif/jiaa-auth/internal/apperror"
)

// DefaultUserInfoURL is Google's OAuth2 user info endpoint.
const DefaultUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// placeholders are values copied from sample configs that were never
// replaced. They are treated the same as blank values.
var placeholders = map[string]bool{
	"your-google-client-id":     true,
	"your-google-client-secret": true,
	"your-google-redirect-uri":  true,
	"changeme":                  true,
}

// GoogleConfig holds the OAuth client registration.
// The endpoint URLs are optional and default to Google's.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string

	AuthURL     string
	TokenURL    string
	UserInfoURL string
}

// Validate checks that the registration is usable. Every failure is an
// apperror.ErrConfiguration telling the operator which variable to set.
func (c GoogleConfig) Validate() error {
	if err := checkSetting("GOOGLE_CLIENT_ID", c.ClientID); err != nil {
		return err
	}
	if err := checkSetting("GOOGLE_CLIENT_SECRET", c.ClientSecret); err != nil {
		return err
	}
	return checkSetting("GOOGLE_REDIRECT_URI", c.RedirectURI)
}

func checkSetting(name, value string) error {
	v := strings.TrimSpace(value)
	if v == "" {
		return apperror.Configuration(fmt.Sprintf(
			"Google sign-in is not configured: set %s to the value from your Google Cloud OAuth client", name))
	}
	if placeholders[strings.ToLower(v)] {
		return apperror.Configuration(fmt.Sprintf(
			"Google sign-in is not configured: %s still holds the placeholder %q", name, v))
	}
	return nil
}

// Grant is the outcome of a code exchange or refresh.
// Expiry is zero when the provider did not report a lifetime.
type Grant struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// ExternalUser is the subset of Google's user info we use.
type ExternalUser struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// GoogleProvider talks to Google's OAuth2 endpoints.
//
// OPERATIONS:
//   - AuthURL   → consent URL (offline access, consent prompt)
//   - Exchange  → authorization code → Grant
//   - UserInfo  → access token → ExternalUser
//   - Refresh   → refresh token → Grant
//
// All outbound calls go through the injected *http.Client, which carries
// the timeout and tracing transport.
type GoogleProvider struct {
	config      *oauth2.Config
	userInfoURL string
	client      *http.Client
}

// NewGoogleProvider validates cfg and builds a provider. A nil client
// means http.DefaultClient.
func NewGoogleProvider(cfg GoogleConfig, client *http.Client) (*GoogleProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if client == nil {
		client = http.DefaultClient
	}

	endpoint := google.Endpoint
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	// Google accepts credentials in the form body. Fixing the style avoids
	// the library's detect-and-retry on the first exchange.
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	userInfoURL := cfg.UserInfoURL
	if userInfoURL == "" {
		userInfoURL = DefaultUserInfoURL
	}

	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     strings.TrimSpace(cfg.ClientID),
			ClientSecret: strings.TrimSpace(cfg.ClientSecret),
			RedirectURL:  strings.TrimSpace(cfg.RedirectURI),
			Scopes:       cfg.Scopes,
			Endpoint:     endpoint,
		},
		userInfoURL: userInfoURL,
		client:      client,
	}, nil
}

// AuthURL returns the consent URL the browser should be sent to.
// It is deterministic for a given configuration.
func (p *GoogleProvider) AuthURL() string {
	return p.config.AuthCodeURL("",
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

// Exchange trades an authorization code for tokens.
//
// ERROR MAPPING:
//   - Google rejected the code (4xx, OAuth error payload) → ErrTokenExchange
//   - Google failed (5xx) or could not be reached         → ErrProviderUnavailable
//   - 2xx without a usable access token                   → ErrInvalidProviderResponse
//
// WHY SPLIT REJECTION FROM OUTAGE?
// A rejected code is the caller's problem: the code was wrong, reused or
// expired, and the fix is to sign in again. An outage is ours. Reporting
// both as a bad request would send users round the consent screen for a
// failure they cannot fix.
//
// Messages stay short. Response bodies and transport errors go into
// AppError.Detail, which is logged and never returned to the client.
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*Grant, error) {
	if err := p.check(); err != nil {
		return nil, err
	}

	tok, err := p.config.Exchange(p.clientContext(ctx), code)
	if err != nil {
		return nil, classifyTokenError(err, apperror.ErrTokenExchange, "Google token exchange")
	}
	if tok.AccessToken == "" {
		return nil, apperror.Provider(apperror.ErrInvalidProviderResponse,
			"Google token response did not include an access token")
	}

	return grantFromToken(tok), nil
}

// UserInfo fetches the profile of the account the access token belongs to.
func (p *GoogleProvider) UserInfo(ctx context.Context, accessToken string) (*ExternalUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("auth: building user info request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, apperror.Provider(apperror.ErrProviderUnavailable,
			"Google user info could not be reached").WithDetail(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, apperror.Provider(apperror.ErrUserInfo,
			fmt.Sprintf("Google user info returned status %d", resp.StatusCode)).
			WithDetail(strings.TrimSpace(string(body)))
	}

	var u ExternalUser
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return nil, apperror.Provider(apperror.ErrInvalidProviderResponse,
			"Google user info response could not be decoded").WithDetail(err.Error())
	}
	return &u, nil
}

// Refresh obtains a new access token with a refresh-token grant. Google
// does not rotate refresh tokens here; the returned grant carries the
// presented one unless a new one was issued.
func (p *GoogleProvider) Refresh(ctx context.Context, refreshToken string) (*Grant, error) {
	if err := p.check(); err != nil {
		return nil, err
	}

	src := p.config.TokenSource(p.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, classifyTokenError(err, apperror.ErrRefreshFailed, "Google token refresh")
	}
	if tok.AccessToken == "" {
		return nil, apperror.Provider(apperror.ErrRefreshFailed, "Google refresh response did not include an access token")
	}

	return grantFromToken(tok), nil
}

// classifyTokenError maps an x/oauth2 token endpoint failure. rejected is
// the kind used when Google answered with a 4xx or an OAuth error code.
func classifyTokenError(err error, rejected error, action string) *apperror.AppError {
	var re *oauth2.RetrieveError
	var ue *url.Error
	switch {
	case errors.As(err, &re):
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		detail := strings.TrimSpace(string(re.Body))
		if status >= http.StatusInternalServerError || (status == 0 && re.ErrorCode == "") {
			return apperror.Provider(apperror.ErrProviderUnavailable,
				fmt.Sprintf("%s failed: Google returned status %d", action, status)).WithDetail(detail)
		}
		return apperror.Provider(rejected, action+" failed: "+describeRetrieveError(re, status)).WithDetail(detail)
	case errors.As(err, &ue):
		return apperror.Provider(apperror.ErrProviderUnavailable,
			action+" failed: Google could not be reached").WithDetail(ue.Error())
	default:
		return apperror.Provider(apperror.ErrInvalidProviderResponse,
			action+" response was not usable").WithDetail(err.Error())
	}
}

// check re-validates the credentials before each provider call.
func (p *GoogleProvider) check() error {
	return GoogleConfig{
		ClientID:     p.config.ClientID,
		ClientSecret: p.config.ClientSecret,
		RedirectURI:  p.config.RedirectURL,
	}.Validate()
}

// clientContext makes x/oauth2 use our HTTP client for token requests.
func (p *GoogleProvider) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.client)
}

func grantFromToken(tok *oauth2.Token) *Grant {
	return &Grant{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}
}

// describeRetrieveError names the OAuth error code, falling back to the
// HTTP status. The free-text description is left to the detail.
func describeRetrieveError(re *oauth2.RetrieveError, status int) string {
	if re.ErrorCode != "" {
		return re.ErrorCode
	}
	return fmt.Sprintf("status %d", status)
}
