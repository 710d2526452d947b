package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/myglasscase/glasscase/internal/app/model"
	"github.com/myglasscase/glasscase/internal/app/repository"
	"github.com/myglasscase/glasscase/internal/http/util"
	"github.com/myglasscase/glasscase/internal/infra/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tokenServer struct {
	*httptest.Server
	hits atomic.Int32
}

func newTokenServer(t *testing.T) *tokenServer {
	t.Helper()
	ts := &tokenServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.hits.Add(1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		resp := map[string]interface{}{"token_type": "User Access Token", "expires_in": 7200}
		switch r.PostForm.Get("grant_type") {
		case "authorization_code":
			if r.PostForm.Get("code") != "good-code" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			resp["access_token"] = "access-1"
			resp["refresh_token"] = "refresh-1"
		case "refresh_token":
			if r.PostForm.Get("refresh_token") == "revoked" {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
				return
			}
			resp["access_token"] = "access-2"
		default:
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func newTestEbayService(t *testing.T, repo repository.EbayCredentialRepository, tokenURL string) *ebayAuthService {
	t.Helper()
	return NewEbayAuthService(EbayAuthConfig{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURI:  "Glass_Case-RuName",
		AuthURL:      "https://auth.example.com/oauth2/authorize",
		TokenURL:     tokenURL,
		StateTTL:     time.Minute,
	}, repo, util.NewStateSigner([]byte("state-secret"), time.Minute), NewMemoryAuthNotifier(), cache.NewMemoryCache(1024*1024), nil).(*ebayAuthService)
}

func TestEbayAuthService_AuthorizationURL(t *testing.T) {
	svc := newTestEbayService(t, &mockEbayCredentialRepository{}, "http://unused")
	user := uuid.New()

	req, err := svc.AuthorizationURL(context.Background(), user)
	require.NoError(t, err)

	u, err := url.Parse(req.URL)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "client", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "Glass_Case-RuName", q.Get("redirect_uri"))
	assert.Equal(t, req.State, q.Get("state"))
	assert.Contains(t, q.Get("scope"), "sell.inventory")

	owner, err := svc.signer.Verify(req.State)
	require.NoError(t, err)
	assert.Equal(t, user, owner)
}

func TestEbayAuthService_NotConfigured(t *testing.T) {
	svc := NewEbayAuthService(EbayAuthConfig{}, &mockEbayCredentialRepository{}, util.NewStateSigner([]byte("s"), time.Minute), nil, nil, nil)
	_, err := svc.AuthorizationURL(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrEbayNotConfigured)
}

func TestEbayAuthService_HandleCallback_StoresAndNotifies(t *testing.T) {
	ts := newTokenServer(t)
	user := uuid.New()
	var stored *model.EbayCredential
	repo := &mockEbayCredentialRepository{
		upsertFn: func(ctx context.Context, cred *model.EbayCredential) error {
			stored = cred
			return nil
		},
	}
	svc := newTestEbayService(t, repo, ts.URL)
	req, err := svc.AuthorizationURL(context.Background(), user)
	require.NoError(t, err)

	outcome, err := svc.HandleCallback(context.Background(), CallbackInput{Code: "good-code", State: req.State})
	require.NoError(t, err)
	assert.Equal(t, AuthConnected, outcome.Status)

	require.NotNil(t, stored)
	assert.Equal(t, user, stored.UserID)
	assert.Equal(t, "access-1", stored.AccessToken)
	assert.Equal(t, "refresh-1", stored.RefreshToken)
	assert.WithinDuration(t, time.Now().Add(2*time.Hour), stored.ExpiresAt, time.Minute)

	// A waiter arriving after the callback still sees the outcome.
	got, err := svc.WaitForAuthorization(context.Background(), user, req.State, time.Second)
	require.NoError(t, err)
	assert.Equal(t, AuthConnected, got.Status)
}

func TestEbayAuthService_HandleCallback_RejectsForgedState(t *testing.T) {
	svc := newTestEbayService(t, &mockEbayCredentialRepository{
		upsertFn: func(ctx context.Context, cred *model.EbayCredential) error {
			t.Fatal("credentials must not be stored for a forged state")
			return nil
		},
	}, "http://unused")

	_, err := svc.HandleCallback(context.Background(), CallbackInput{Code: "good-code", State: uuid.NewString() + "_deadbeef"})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestEbayAuthService_HandleCallback_ProviderError(t *testing.T) {
	svc := newTestEbayService(t, &mockEbayCredentialRepository{}, "http://unused")
	user := uuid.New()
	req, err := svc.AuthorizationURL(context.Background(), user)
	require.NoError(t, err)

	outcome, err := svc.HandleCallback(context.Background(), CallbackInput{State: req.State, Error: "access_denied"})
	assert.ErrorIs(t, err, ErrAuthorizationError)
	assert.Equal(t, AuthFailed, outcome.Status)

	got, err := svc.WaitForAuthorization(context.Background(), user, req.State, time.Second)
	require.NoError(t, err)
	assert.Equal(t, AuthFailed, got.Status)
	assert.Equal(t, "access_denied", got.Error)
}

func TestEbayAuthService_HandleCallback_ExchangeFailure(t *testing.T) {
	ts := newTokenServer(t)
	svc := newTestEbayService(t, &mockEbayCredentialRepository{}, ts.URL)
	req, err := svc.AuthorizationURL(context.Background(), uuid.New())
	require.NoError(t, err)

	outcome, err := svc.HandleCallback(context.Background(), CallbackInput{Code: "bad-code", State: req.State})
	assert.ErrorIs(t, err, ErrTokenExchange)
	assert.Equal(t, AuthFailed, outcome.Status)
}

func TestEbayAuthService_RefreshToken(t *testing.T) {
	ts := newTokenServer(t)
	user := uuid.New()
	cred := &model.EbayCredential{UserID: user, AccessToken: "access-1", RefreshToken: "refresh-1"}
	var updatedAccess, updatedRefresh string
	repo := &mockEbayCredentialRepository{
		getByUserFn: func(ctx context.Context, userID uuid.UUID) (*model.EbayCredential, error) {
			copied := *cred
			return &copied, nil
		},
		updateTokensFn: func(ctx context.Context, userID uuid.UUID, accessToken, refreshToken string, expiresAt time.Time) error {
			updatedAccess, updatedRefresh = accessToken, refreshToken
			return nil
		},
	}
	svc := newTestEbayService(t, repo, ts.URL)

	cred.ExpiresAt = time.Now().Add(time.Hour)
	refreshed, err := svc.RefreshToken(context.Background(), user)
	require.NoError(t, err)
	assert.False(t, refreshed)
	assert.Zero(t, ts.hits.Load())

	cred.ExpiresAt = time.Now().Add(2 * time.Minute)
	refreshed, err = svc.RefreshToken(context.Background(), user)
	require.NoError(t, err)
	assert.True(t, refreshed)
	assert.Equal(t, "access-2", updatedAccess)
	assert.Equal(t, "refresh-1", updatedRefresh, "refresh token is kept when the provider does not rotate it")
}

func TestEbayAuthService_RefreshToken_NotConnected(t *testing.T) {
	svc := newTestEbayService(t, &mockEbayCredentialRepository{}, "http://unused")
	_, err := svc.RefreshToken(context.Background(), uuid.New())
	assert.ErrorIs(t, err, repository.ErrCredentialNotFound)
}

func TestEbayAuthService_RefreshExpiring(t *testing.T) {
	ts := newTokenServer(t)
	soon := time.Now().Add(3 * time.Minute)
	repo := &mockEbayCredentialRepository{
		expiringFn: func(ctx context.Context, before, retryFailedBefore time.Time, limit int) ([]model.EbayCredential, error) {
			return []model.EbayCredential{
				{UserID: uuid.New(), AccessToken: "a", RefreshToken: "r", ExpiresAt: soon},
				{UserID: uuid.New(), AccessToken: "b", RefreshToken: "r", ExpiresAt: soon},
			}, nil
		},
	}

	summary, err := newTestEbayService(t, repo, ts.URL).RefreshExpiring(context.Background(), 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, RefreshSummary{Checked: 2, Refreshed: 2}, summary)
}

// credentialTable filters like the SQL query behind ListExpiringBefore.
type credentialTable struct {
	mu    sync.Mutex
	creds []model.EbayCredential
}

func (c *credentialTable) repo() *mockEbayCredentialRepository {
	return &mockEbayCredentialRepository{
		expiringFn: func(ctx context.Context, before, retryFailedBefore time.Time, limit int) ([]model.EbayCredential, error) {
			c.mu.Lock()
			defer c.mu.Unlock()
			var out []model.EbayCredential
			for _, cred := range c.creds {
				if !cred.ExpiresAt.Before(before) {
					continue
				}
				if cred.RefreshFailedAt != nil && !cred.RefreshFailedAt.Before(retryFailedBefore) {
					continue
				}
				out = append(out, cred)
			}
			sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
			if len(out) > limit {
				out = out[:limit]
			}
			return out, nil
		},
		markFailedFn: func(ctx context.Context, userID uuid.UUID, at time.Time) error {
			c.mu.Lock()
			defer c.mu.Unlock()
			for i := range c.creds {
				if c.creds[i].UserID == userID {
					failedAt := at
					c.creds[i].RefreshFailedAt = &failedAt
				}
			}
			return nil
		},
		updateTokensFn: func(ctx context.Context, userID uuid.UUID, accessToken, refreshToken string, expiresAt time.Time) error {
			c.mu.Lock()
			defer c.mu.Unlock()
			for i := range c.creds {
				if c.creds[i].UserID == userID {
					c.creds[i].AccessToken = accessToken
					c.creds[i].ExpiresAt = expiresAt
					c.creds[i].RefreshFailedAt = nil
				}
			}
			return nil
		},
	}
}

func TestEbayAuthService_RefreshExpiring_RevokedRowsDoNotStarveLiveOnes(t *testing.T) {
	ts := newTokenServer(t)
	table := &credentialTable{}
	longAgo := time.Now().Add(-30 * 24 * time.Hour)
	for i := 0; i < defaultRefreshBatch; i++ {
		table.creds = append(table.creds, model.EbayCredential{
			UserID:       uuid.New(),
			AccessToken:  "dead",
			RefreshToken: "revoked",
			ExpiresAt:    longAgo.Add(time.Duration(i) * time.Minute),
		})
	}
	live := uuid.New()
	table.creds = append(table.creds, model.EbayCredential{
		UserID:       live,
		AccessToken:  "stale",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(3 * time.Minute),
	})
	svc := newTestEbayService(t, table.repo(), ts.URL)

	summary, err := svc.RefreshExpiring(context.Background(), 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, RefreshSummary{Checked: defaultRefreshBatch + 1, Refreshed: 1, Failed: defaultRefreshBatch}, summary)

	table.mu.Lock()
	refreshed := table.creds[len(table.creds)-1]
	table.mu.Unlock()
	assert.Equal(t, live, refreshed.UserID)
	assert.Equal(t, "access-2", refreshed.AccessToken)

	// Failed rows sit out the backoff, so the next pass has nothing to do.
	summary, err = svc.RefreshExpiring(context.Background(), 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, RefreshSummary{}, summary)
}

func TestEbayAuthService_RefreshExpiring_RetriesAfterBackoff(t *testing.T) {
	ts := newTokenServer(t)
	failedAt := time.Now().Add(-2 * refreshRetryBackoff)
	table := &credentialTable{creds: []model.EbayCredential{{
		UserID:          uuid.New(),
		AccessToken:     "stale",
		RefreshToken:    "refresh-1",
		ExpiresAt:       time.Now().Add(-time.Hour),
		RefreshFailedAt: &failedAt,
	}}}

	summary, err := newTestEbayService(t, table.repo(), ts.URL).RefreshExpiring(context.Background(), 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Refreshed)
	assert.Nil(t, table.creds[0].RefreshFailedAt)
}

func TestEbayAuthService_TokenSource_RefreshesExpiredToken(t *testing.T) {
	ts := newTokenServer(t)
	user := uuid.New()
	var stored string
	repo := &mockEbayCredentialRepository{
		getByUserFn: func(ctx context.Context, userID uuid.UUID) (*model.EbayCredential, error) {
			return &model.EbayCredential{
				UserID:       user,
				AccessToken:  "expired",
				RefreshToken: "refresh-1",
				ExpiresAt:    time.Now().Add(-time.Minute),
			}, nil
		},
		updateTokensFn: func(ctx context.Context, userID uuid.UUID, accessToken, refreshToken string, expiresAt time.Time) error {
			stored = accessToken
			return nil
		},
	}

	token, err := newTestEbayService(t, repo, ts.URL).TokenSource(context.Background(), user).Token()
	require.NoError(t, err)
	assert.Equal(t, "access-2", token.AccessToken)
	assert.Equal(t, "access-2", stored)
}

func TestEbayAuthService_TokenSource_ValidTokenSkipsRefresh(t *testing.T) {
	ts := newTokenServer(t)
	repo := &mockEbayCredentialRepository{
		getByUserFn: func(ctx context.Context, userID uuid.UUID) (*model.EbayCredential, error) {
			return &model.EbayCredential{UserID: userID, AccessToken: "fresh", RefreshToken: "r", ExpiresAt: time.Now().Add(time.Hour)}, nil
		},
	}

	token, err := newTestEbayService(t, repo, ts.URL).TokenSource(context.Background(), uuid.New()).Token()
	require.NoError(t, err)
	assert.Equal(t, "fresh", token.AccessToken)
	assert.Zero(t, ts.hits.Load())
}

func TestEbayAuthService_TokenSource_ReauthRequired(t *testing.T) {
	ts := newTokenServer(t)
	svc := newTestEbayService(t, &mockEbayCredentialRepository{}, ts.URL)
	_, err := svc.TokenSource(context.Background(), uuid.New()).Token()
	assert.ErrorIs(t, err, ErrReauthRequired)

	revoked := &mockEbayCredentialRepository{
		getByUserFn: func(ctx context.Context, userID uuid.UUID) (*model.EbayCredential, error) {
			return &model.EbayCredential{UserID: userID, AccessToken: "x", RefreshToken: "revoked", ExpiresAt: time.Now().Add(-time.Hour)}, nil
		},
	}
	_, err = newTestEbayService(t, revoked, ts.URL).TokenSource(context.Background(), uuid.New()).Token()
	assert.ErrorIs(t, err, ErrReauthRequired)
}

func TestEbayAuthService_Status(t *testing.T) {
	user := uuid.New()
	expires := time.Now().Add(time.Hour)
	repo := &mockEbayCredentialRepository{
		getByUserFn: func(ctx context.Context, userID uuid.UUID) (*model.EbayCredential, error) {
			if userID != user {
				return nil, repository.ErrCredentialNotFound
			}
			return &model.EbayCredential{UserID: user, ExpiresAt: expires}, nil
		},
	}
	svc := newTestEbayService(t, repo, "http://unused")

	st, err := svc.Status(context.Background(), user)
	require.NoError(t, err)
	assert.True(t, st.Connected)

	st, err = svc.Status(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.False(t, st.Connected)
	assert.Nil(t, st.ExpiresAt)
}

func TestEbayAuthService_WaitForAuthorization_Timeout(t *testing.T) {
	svc := newTestEbayService(t, &mockEbayCredentialRepository{}, "http://unused")
	user := uuid.New()
	req, err := svc.AuthorizationURL(context.Background(), user)
	require.NoError(t, err)

	start := time.Now()
	_, err = svc.WaitForAuthorization(context.Background(), user, req.State, 30*time.Millisecond)
	assert.ErrorIs(t, err, ErrAuthWaitTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestEbayAuthService_WaitForAuthorization_Cancel(t *testing.T) {
	svc := newTestEbayService(t, &mockEbayCredentialRepository{}, "http://unused")
	user := uuid.New()
	req, err := svc.AuthorizationURL(context.Background(), user)
	require.NoError(t, err)

	done := make(chan AuthOutcome, 1)
	go func() {
		outcome, err := svc.WaitForAuthorization(context.Background(), user, req.State, 5*time.Second)
		if err == nil {
			done <- outcome
		}
		close(done)
	}()

	require.NoError(t, svc.CancelAuthorization(context.Background(), user, req.State))

	select {
	case outcome, ok := <-done:
		require.True(t, ok, "waiter returned an error")
		assert.Equal(t, AuthCancelled, outcome.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter was not released by cancel")
	}
}

func TestEbayAuthService_WaitForAuthorization_ContextCancelled(t *testing.T) {
	svc := newTestEbayService(t, &mockEbayCredentialRepository{}, "http://unused")
	user := uuid.New()
	req, err := svc.AuthorizationURL(context.Background(), user)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = svc.WaitForAuthorization(ctx, user, req.State, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEbayAuthService_WaitForAuthorization_OtherUsersState(t *testing.T) {
	svc := newTestEbayService(t, &mockEbayCredentialRepository{}, "http://unused")
	req, err := svc.AuthorizationURL(context.Background(), uuid.New())
	require.NoError(t, err)

	_, err = svc.WaitForAuthorization(context.Background(), uuid.New(), req.State, time.Second)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.ErrorIs(t, svc.CancelAuthorization(context.Background(), uuid.New(), req.State), ErrInvalidState)
}
