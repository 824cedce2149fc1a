// Package auth resolves a stable, privacy-preserving user identifier for the
// evaluation session. The identifier is the base64-encoded email behind the
// session's OAuth access token, cached in session state so the userinfo
// endpoint is hit at most once per session.
package auth

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/segmentio/encoding/json"
	"golang.org/x/oauth2"

	"github.com/brandalign/engine/internal/session"
)

// ModeProduction enables falling back to the session-provided user id when
// the token is missing or the email lookup fails.
const ModeProduction = "production"

const (
	envAuthIDKey     = "BRANDALIGN_AUTH_ID_KEY"
	envAuthMode      = "BRANDALIGN_AUTH_MODE"
	envClientID      = "BRANDALIGN_AUTH_CLIENT_ID"
	envClientSecret  = "BRANDALIGN_AUTH_CLIENT_SECRET"
	envAuthURI       = "BRANDALIGN_AUTH_URI"
	envTokenURI      = "BRANDALIGN_AUTH_TOKEN_URI"
	envUserInfoURI   = "BRANDALIGN_AUTH_USERINFO_URI"
	defaultAuthURI   = "https://accounts.google.com/o/oauth2/auth"
	defaultTokenURI  = "https://oauth2.googleapis.com/token"
	defaultUserInfo  = "https://openidconnect.googleapis.com/v1/userinfo"
	sessionUserIDKey = "user_id"
	emailCachePrefix = "user_email_token-"
	userInfoTimeout  = 10 * time.Second
)

// Config carries the OAuth client settings used to resolve user identity.
type Config struct {
	AuthIDKey    string // session state key holding the access token
	Mode         string
	ClientID     string
	ClientSecret string
	AuthURI      string
	TokenURI     string
	UserInfoURI  string
}

// ConfigFromEnv builds a Config from BRANDALIGN_AUTH_* environment variables.
// The auth id key and client id are required; endpoints default to Google's.
func ConfigFromEnv() (*Config, error) {
	cfg := &Config{
		AuthIDKey:    os.Getenv(envAuthIDKey),
		Mode:         os.Getenv(envAuthMode),
		ClientID:     os.Getenv(envClientID),
		ClientSecret: os.Getenv(envClientSecret),
		AuthURI:      os.Getenv(envAuthURI),
		TokenURI:     os.Getenv(envTokenURI),
		UserInfoURI:  os.Getenv(envUserInfoURI),
	}
	if cfg.AuthIDKey == "" {
		return nil, fmt.Errorf("%s not set", envAuthIDKey)
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("%s not set", envClientID)
	}
	if cfg.AuthURI == "" {
		cfg.AuthURI = defaultAuthURI
	}
	if cfg.TokenURI == "" {
		cfg.TokenURI = defaultTokenURI
	}
	if cfg.UserInfoURI == "" {
		cfg.UserInfoURI = defaultUserInfo
	}
	return cfg, nil
}

// OAuthConfig returns the oauth2 client configuration used to start an
// interactive authorization flow when no token is available yet.
func (c *Config) OAuthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Scopes:       []string{"openid", "email"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  c.AuthURI,
			TokenURL: c.TokenURI,
		},
	}
}

// PendingAuthError signals that the session has no access token and the
// caller should direct the user through the authorization flow.
type PendingAuthError struct {
	AuthURI string
}

func (e *PendingAuthError) Error() string {
	return "authorization pending: no access token in session"
}

// Resolver resolves user identifiers from session state.
type Resolver struct {
	cfg    *Config
	client *http.Client
	logger *slog.Logger
}

// NewResolver creates a Resolver. A nil httpClient uses a default with a
// short timeout; a nil logger discards.
func NewResolver(cfg *Config, httpClient *http.Client, logger *slog.Logger) (*Resolver, error) {
	if cfg == nil {
		return nil, fmt.Errorf("auth config is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: userInfoTimeout}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Resolver{cfg: cfg, client: httpClient, logger: logger}, nil
}

// UserID returns the encoded user identifier for the session.
//
// Resolution order: cached value, then the access token at the configured
// state key (or its "temp:" prefixed variant), resolved to an email via the
// userinfo endpoint and base64-encoded. In production mode a missing token
// or failed lookup falls back to the session-provided user id; otherwise a
// missing token yields *PendingAuthError.
func (r *Resolver) UserID(ctx context.Context, state session.State, sessionID string) (string, error) {
	cacheKey := emailCachePrefix + sessionID
	if cached := state.GetString(cacheKey); cached != "" {
		return cached, nil
	}

	token := state.GetString(r.cfg.AuthIDKey)
	if token == "" {
		token = state.GetString("temp:" + r.cfg.AuthIDKey)
	}
	if token == "" {
		if r.cfg.Mode == ModeProduction {
			if fallback := state.GetString(sessionUserIDKey); fallback != "" {
				r.logger.Warn("no access token in session, using session user id",
					"session_id", sessionID)
				return fallback, nil
			}
		}
		return "", &PendingAuthError{AuthURI: r.cfg.AuthURI}
	}

	email, err := r.fetchEmail(ctx, token)
	if err != nil {
		if r.cfg.Mode == ModeProduction {
			if fallback := state.GetString(sessionUserIDKey); fallback != "" {
				r.logger.Warn("userinfo lookup failed, using session user id",
					"session_id", sessionID, "error", err)
				return fallback, nil
			}
		}
		return "", fmt.Errorf("resolving user email: %w", err)
	}

	encoded := base64.StdEncoding.EncodeToString([]byte(email))
	state.Set(cacheKey, encoded)
	return encoded, nil
}

// Invalidate drops the cached identifier for a session, forcing the next
// UserID call to re-resolve the token.
func (r *Resolver) Invalidate(state session.State, sessionID string) {
	state.Delete(emailCachePrefix + sessionID)
}

func (r *Resolver) fetchEmail(ctx context.Context, accessToken string) (string, error) {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
	client := oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, r.client), src)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.UserInfoURI, nil)
	if err != nil {
		return "", fmt.Errorf("building userinfo request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling userinfo endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("userinfo endpoint returned %d", resp.StatusCode)
	}

	var info struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", fmt.Errorf("decoding userinfo response: %w", err)
	}
	if info.Email == "" {
		return "", fmt.Errorf("userinfo response has no email")
	}
	return info.Email, nil
}
