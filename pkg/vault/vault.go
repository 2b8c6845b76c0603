package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	shared "github.com/fitnessllm/dataplatform/pkg"
	"github.com/fitnessllm/dataplatform/pkg/crypto"
	httputil "github.com/fitnessllm/dataplatform/pkg/infrastructure/http"
	"github.com/fitnessllm/dataplatform/pkg/sources"
	"github.com/fitnessllm/dataplatform/pkg/types"
)

// DefaultLeadTime is how long before expiry a credential is refreshed.
const DefaultLeadTime = 5 * time.Minute

// CredentialError is terminal for a pipeline run: the user must
// re-authorize. It is never retried automatically.
type CredentialError struct {
	UserID     string
	DataSource string
	Err        error
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("credential for %s/%s: %v", e.UserID, e.DataSource, e.Err)
}

func (e *CredentialError) Unwrap() error { return e.Err }

// Vault owns credential documents. Tokens are stored encrypted; only the
// vault decrypts them, and only the vault writes refreshed values back.
// The cipher key is resolved once at process start, never per call.
type Vault struct {
	db           shared.Database
	cipher       *crypto.TokenCipher
	clientID     string
	clientSecret string
	leadTime     time.Duration
	httpClient   *http.Client
	now          func() time.Time
	logger       *slog.Logger
}

// Option customizes a Vault.
type Option func(*Vault)

// WithLeadTime overrides the refresh lead time.
func WithLeadTime(d time.Duration) Option {
	return func(v *Vault) { v.leadTime = d }
}

// WithHTTPClient replaces the HTTP client used for the refresh grant (tests).
func WithHTTPClient(c *http.Client) Option {
	return func(v *Vault) { v.httpClient = c }
}

// WithClock replaces the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(v *Vault) { v.now = now }
}

func New(db shared.Database, cipher *crypto.TokenCipher, clientID, clientSecret string, opts ...Option) *Vault {
	v := &Vault{
		db:           db,
		cipher:       cipher,
		clientID:     clientID,
		clientSecret: clientSecret,
		leadTime:     DefaultLeadTime,
		httpClient:   http.DefaultClient,
		now:          time.Now,
		logger:       slog.Default().With("component", "vault"),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// EnsureValid returns a credential whose access token is valid for at
// least the configured lead time, refreshing and re-persisting it first
// when needed. Token fields in the returned struct are plaintext for the
// caller's API client; they are never logged and never written back.
func (v *Vault) EnsureValid(ctx context.Context, userID, dataSource string) (*types.Credential, error) {
	credErr := func(err error) error {
		return &CredentialError{UserID: userID, DataSource: dataSource, Err: err}
	}

	desc, err := sources.Lookup(dataSource)
	if err != nil {
		return nil, credErr(err)
	}

	cred, err := v.db.GetStreamCredential(ctx, userID, dataSource)
	if err != nil {
		return nil, credErr(err)
	}
	if !cred.Connected {
		return nil, credErr(fmt.Errorf("not connected"))
	}

	accessToken, err := v.cipher.Decrypt(cred.AccessToken)
	if err != nil {
		return nil, credErr(fmt.Errorf("decrypt access token: %w", err))
	}
	refreshToken, err := v.cipher.Decrypt(cred.RefreshToken)
	if err != nil {
		return nil, credErr(fmt.Errorf("decrypt refresh token: %w", err))
	}

	if cred.ExpiresAt.After(v.now().Add(v.leadTime)) {
		out := *cred
		out.AccessToken = accessToken
		out.RefreshToken = refreshToken
		return &out, nil
	}

	v.logger.Info("Refreshing credential", "user_id", userID, "data_source", dataSource)

	tok, rejected, err := v.refreshGrant(ctx, desc.TokenURL, refreshToken)
	if err != nil {
		if rejected {
			// Revoked or invalid grant: soft-revoke so batch runs stop
			// selecting this user until they re-authorize.
			if revokeErr := v.db.UpdateStreamCredential(ctx, userID, dataSource, map[string]interface{}{
				"connected": false,
			}); revokeErr != nil {
				v.logger.Error("Failed to soft-revoke credential", "user_id", userID, "error", revokeErr)
			}
		}
		return nil, credErr(err)
	}

	encAccess, err := v.cipher.Encrypt(tok.accessToken)
	if err != nil {
		return nil, credErr(err)
	}
	// The provider may not rotate the refresh token; keep the stored one.
	newRefresh := refreshToken
	if tok.refreshToken != "" {
		newRefresh = tok.refreshToken
	}
	encRefresh, err := v.cipher.Encrypt(newRefresh)
	if err != nil {
		return nil, credErr(err)
	}

	refreshedAt := v.now()
	update := map[string]interface{}{
		"accessToken":      encAccess,
		"refreshToken":     encRefresh,
		"expiresAt":        tok.expiresAt,
		"lastTokenRefresh": refreshedAt,
	}
	if tok.scope != "" {
		update["scope"] = tok.scope
	}
	// Single document write: either the whole refreshed credential lands
	// or none of it does.
	if err := v.db.UpdateStreamCredential(ctx, userID, dataSource, update); err != nil {
		return nil, credErr(fmt.Errorf("persist refreshed tokens: %w", err))
	}

	out := *cred
	out.AccessToken = tok.accessToken
	out.RefreshToken = newRefresh
	out.ExpiresAt = tok.expiresAt
	out.LastTokenRefresh = refreshedAt
	if tok.scope != "" {
		out.Scope = tok.scope
	}
	return &out, nil
}

type grantResult struct {
	accessToken  string
	refreshToken string
	expiresAt    time.Time
	scope        string
}

// refreshGrant performs the HTTP exchange against the source token
// endpoint. rejected reports whether the grant itself was refused, as
// opposed to a transport failure.
func (v *Vault) refreshGrant(ctx context.Context, tokenURL, refreshToken string) (*grantResult, bool, error) {
	data := url.Values{}
	data.Set("client_id", v.clientID)
	data.Set("client_secret", v.clientSecret)
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := httputil.ParseErrorResponse(resp); err != nil {
		var httpErr *httputil.HTTPError
		// 4xx means the grant itself was refused; 5xx is transient.
		rejected := errors.As(err, &httpErr) && httpErr.StatusCode < 500
		return nil, rejected, fmt.Errorf("token refresh: %w", err)
	}

	var result struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
		ExpiresAt    int64  `json:"expires_at"`
		Scope        string `json:"scope"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, false, fmt.Errorf("decode refresh response: %w", err)
	}
	if result.AccessToken == "" {
		return nil, true, fmt.Errorf("refresh response missing access token")
	}

	expiry := v.now().Add(time.Duration(result.ExpiresIn) * time.Second)
	if result.ExpiresAt != 0 {
		expiry = time.Unix(result.ExpiresAt, 0)
	}

	return &grantResult{
		accessToken:  result.AccessToken,
		refreshToken: result.RefreshToken,
		expiresAt:    expiry,
		scope:        result.Scope,
	}, false, nil
}
