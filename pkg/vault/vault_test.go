package vault

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitnessllm/dataplatform/pkg/crypto"
	"github.com/fitnessllm/dataplatform/pkg/sources"
	"github.com/fitnessllm/dataplatform/pkg/testing/mocks"
	"github.com/fitnessllm/dataplatform/pkg/types"
)

var testSourceSeq int

// registerTestSource registers a throwaway data source whose token
// endpoint points at the given server.
func registerTestSource(tokenURL string) string {
	testSourceSeq++
	name := fmt.Sprintf("testsource%d", testSourceSeq)
	sources.Register(sources.Descriptor{
		Name:     name,
		TokenURL: tokenURL,
	})
	return name
}

func storedCredential(t *testing.T, cipher *crypto.TokenCipher, expiresAt time.Time) *types.Credential {
	t.Helper()
	access, err := cipher.Encrypt("plain-access")
	require.NoError(t, err)
	refresh, err := cipher.Encrypt("plain-refresh")
	require.NoError(t, err)
	return &types.Credential{
		UserID:       "user-1",
		AthleteID:    "42",
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
		Connected:    true,
	}
}

func TestEnsureValid_FreshTokenSkipsRefresh(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cipher, err := crypto.NewTokenCipher("test-key")
	require.NoError(t, err)

	now := time.Now()
	source := registerTestSource(srv.URL)
	db := &mocks.MockDatabase{
		GetStreamCredentialFunc: func(ctx context.Context, userID, dataSource string) (*types.Credential, error) {
			return storedCredential(t, cipher, now.Add(10*time.Minute)), nil
		},
	}

	v := New(db, cipher, "client-id", "client-secret", WithClock(func() time.Time { return now }))
	cred, err := v.EnsureValid(context.Background(), "user-1", source)
	require.NoError(t, err)

	assert.Equal(t, "plain-access", cred.AccessToken)
	assert.Equal(t, "plain-refresh", cred.RefreshToken)
	assert.Zero(t, calls, "fresh token must not hit the token endpoint")
}

func TestEnsureValid_RefreshesNearExpiry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		assert.Equal(t, "plain-refresh", r.Form.Get("refresh_token"))
		assert.Equal(t, "client-id", r.Form.Get("client_id"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"new-access","refresh_token":"new-refresh","expires_in":3600}`)
	}))
	defer srv.Close()

	cipher, err := crypto.NewTokenCipher("test-key")
	require.NoError(t, err)

	now := time.Now()
	source := registerTestSource(srv.URL)

	var persisted map[string]interface{}
	db := &mocks.MockDatabase{
		GetStreamCredentialFunc: func(ctx context.Context, userID, dataSource string) (*types.Credential, error) {
			return storedCredential(t, cipher, now.Add(4*time.Minute)), nil
		},
		UpdateStreamCredentialFunc: func(ctx context.Context, userID, dataSource string, data map[string]interface{}) error {
			persisted = data
			return nil
		},
	}

	v := New(db, cipher, "client-id", "client-secret", WithClock(func() time.Time { return now }))
	cred, err := v.EnsureValid(context.Background(), "user-1", source)
	require.NoError(t, err)

	assert.Equal(t, "new-access", cred.AccessToken)
	assert.Equal(t, "new-refresh", cred.RefreshToken)
	assert.WithinDuration(t, now.Add(time.Hour), cred.ExpiresAt, time.Second)

	require.NotNil(t, persisted, "refreshed credential must be persisted")
	storedAccess, ok := persisted["accessToken"].(string)
	require.True(t, ok)
	assert.NotEqual(t, "new-access", storedAccess, "persisted token must be ciphertext")
	decrypted, err := cipher.Decrypt(storedAccess)
	require.NoError(t, err)
	assert.Equal(t, "new-access", decrypted)
}

func TestEnsureValid_KeepsRefreshTokenWhenNotRotated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"new-access","expires_in":3600}`)
	}))
	defer srv.Close()

	cipher, err := crypto.NewTokenCipher("test-key")
	require.NoError(t, err)

	now := time.Now()
	source := registerTestSource(srv.URL)
	db := &mocks.MockDatabase{
		GetStreamCredentialFunc: func(ctx context.Context, userID, dataSource string) (*types.Credential, error) {
			return storedCredential(t, cipher, now.Add(time.Minute)), nil
		},
	}

	v := New(db, cipher, "client-id", "client-secret", WithClock(func() time.Time { return now }))
	cred, err := v.EnsureValid(context.Background(), "user-1", source)
	require.NoError(t, err)
	assert.Equal(t, "plain-refresh", cred.RefreshToken)
}

func TestEnsureValid_SoftRevokesOnRejectedGrant(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Bad Request"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	cipher, err := crypto.NewTokenCipher("test-key")
	require.NoError(t, err)

	now := time.Now()
	source := registerTestSource(srv.URL)

	var revoked bool
	db := &mocks.MockDatabase{
		GetStreamCredentialFunc: func(ctx context.Context, userID, dataSource string) (*types.Credential, error) {
			return storedCredential(t, cipher, now.Add(-time.Minute)), nil
		},
		UpdateStreamCredentialFunc: func(ctx context.Context, userID, dataSource string, data map[string]interface{}) error {
			if connected, ok := data["connected"].(bool); ok && !connected {
				revoked = true
			}
			return nil
		},
	}

	v := New(db, cipher, "client-id", "client-secret", WithClock(func() time.Time { return now }))
	_, err = v.EnsureValid(context.Background(), "user-1", source)
	require.Error(t, err)

	var credErr *CredentialError
	require.ErrorAs(t, err, &credErr)
	assert.Equal(t, "user-1", credErr.UserID)
	assert.True(t, revoked, "rejected grant must soft-revoke the credential")
}

func TestEnsureValid_NotConnected(t *testing.T) {
	cipher, err := crypto.NewTokenCipher("test-key")
	require.NoError(t, err)

	source := registerTestSource("http://unused.invalid")
	db := &mocks.MockDatabase{
		GetStreamCredentialFunc: func(ctx context.Context, userID, dataSource string) (*types.Credential, error) {
			cred := storedCredential(t, cipher, time.Now().Add(time.Hour))
			cred.Connected = false
			return cred, nil
		},
	}

	v := New(db, cipher, "client-id", "client-secret")
	_, err = v.EnsureValid(context.Background(), "user-1", source)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")
}
