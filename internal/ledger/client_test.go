package ledger

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Moof29/batchly/internal/breaker"
	"github.com/Moof29/batchly/internal/config"
	apperrors "github.com/Moof29/batchly/internal/errors"
	"github.com/Moof29/batchly/internal/models"
)

const (
	testOrgID       = "org-1"
	testRealmID     = "realm-42"
	testAccessToken = "access-token"
)

type fakeConnectionStore struct {
	mu      sync.Mutex
	conns   map[string]*models.Connection
	updates int
}

func newFakeConnectionStore(conns ...*models.Connection) *fakeConnectionStore {
	s := &fakeConnectionStore{conns: make(map[string]*models.Connection)}
	for _, c := range conns {
		s.conns[c.OrganizationID] = c
	}
	return s
}

func (s *fakeConnectionStore) GetConnection(ctx context.Context, orgID string) (*models.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns[orgID], nil
}

func (s *fakeConnectionStore) UpdateConnectionTokens(ctx context.Context, orgID, accessToken, refreshToken string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates++
	if conn, ok := s.conns[orgID]; ok {
		conn.AccessToken = accessToken
		conn.RefreshToken = refreshToken
		conn.TokenExpiresAt = expiresAt
	}
	return nil
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func activeConnection() *models.Connection {
	return &models.Connection{
		OrganizationID: testOrgID,
		RealmID:        testRealmID,
		AccessToken:    testAccessToken,
		RefreshToken:   "refresh-token",
		TokenExpiresAt: time.Now().Add(time.Hour),
		IsActive:       true,
	}
}

func testClientConfig(baseURL string) *config.LedgerConfig {
	cfg := config.DefaultLedgerConfig()
	cfg.BaseURL = baseURL
	cfg.Timeout = 5 * time.Second
	return cfg
}

func newTestClient(t *testing.T, handler http.HandlerFunc, conns ...*models.Connection) (*Client, *fakeConnectionStore) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	store := newFakeConnectionStore(conns...)
	logger := testLogger()
	breakers := breaker.NewRegistry(config.DefaultBreakerConfig(), logger)
	tokens := NewTokenManager(store, testClientConfig(server.URL), breakers, logger)
	return NewClient(testClientConfig(server.URL), tokens, logger), store
}

func envelope(resource string, entity map[string]interface{}) []byte {
	body, _ := json.Marshal(map[string]interface{}{resource: entity})
	return body
}

func TestCreatePostsToResourceCollection(t *testing.T) {
	var gotMethod, gotPath, gotAuth string
	var gotBody map[string]interface{}

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write(envelope("customer", map[string]interface{}{
			"Id":        "ext-123",
			"SyncToken": "0",
			"MetaData":  map[string]interface{}{"LastUpdatedTime": "2026-08-01T10:00:00Z"},
		}))
	}, activeConnection())

	result, err := client.Create(context.Background(), testOrgID, "customer", map[string]interface{}{
		"display_name": "Acme Corp",
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/v3/company/"+testRealmID+"/customer", gotPath)
	assert.Equal(t, "Bearer "+testAccessToken, gotAuth)
	assert.Equal(t, "Acme Corp", gotBody["display_name"])

	assert.Equal(t, "ext-123", result.ExternalID)
	assert.Equal(t, "0", result.SyncToken)
	assert.Equal(t, time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC), result.LastUpdatedAt)
	assert.Equal(t, "ext-123", result.Raw["Id"])
}

func TestUpdateSendsSparseBody(t *testing.T) {
	var gotBody map[string]interface{}

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write(envelope("invoice", map[string]interface{}{"Id": "ext-9", "SyncToken": "3"}))
	}, activeConnection())

	result, err := client.Update(context.Background(), testOrgID, "invoice", "ext-9", map[string]interface{}{
		"total": 125.5,
	})
	require.NoError(t, err)

	assert.Equal(t, "ext-9", gotBody["Id"])
	assert.Equal(t, true, gotBody["sparse"])
	assert.Equal(t, 125.5, gotBody["total"])
	assert.Equal(t, "ext-9", result.ExternalID)
}

func TestUpdateRequiresExternalID(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	}, activeConnection())

	_, err := client.Update(context.Background(), testOrgID, "invoice", "", nil)
	assert.True(t, apperrors.IsValidation(err))
}

func TestDeleteUsesOperationQuery(t *testing.T) {
	var gotQuery string

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{}`))
	}, activeConnection())

	result, err := client.Delete(context.Background(), testOrgID, "invoice", "ext-9")
	require.NoError(t, err)

	assert.Equal(t, "operation=delete", gotQuery)
	assert.Empty(t, result.ExternalID)
}

func TestNon2xxBecomesRemoteError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("slow down"))
	}, activeConnection())

	_, err := client.Create(context.Background(), testOrgID, "customer", map[string]interface{}{})
	require.Error(t, err)

	var remoteErr *apperrors.RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, http.StatusTooManyRequests, remoteErr.StatusCode)
	assert.Contains(t, remoteErr.Body, "slow down")
	assert.Equal(t, apperrors.CategoryRateLimit, apperrors.Classify(err))
}

func TestMissingConnectionIsAuthError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	_, err := client.Create(context.Background(), testOrgID, "customer", nil)
	assert.True(t, apperrors.IsAuth(err))
}

func TestInactiveConnectionIsAuthError(t *testing.T) {
	conn := activeConnection()
	conn.IsActive = false

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	}, conn)

	_, err := client.Create(context.Background(), testOrgID, "customer", nil)
	assert.True(t, apperrors.IsAuth(err))
}

func TestTokenRefreshedWithinMargin(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v3/company/"+testRealmID+"/customer", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer fresh-token", r.Header.Get("Authorization"))
		w.Write(envelope("customer", map[string]interface{}{"Id": "ext-1"}))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		// The oauth2 token endpoint.
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"fresh-token","refresh_token":"fresh-refresh","token_type":"bearer","expires_in":3600}`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	conn := activeConnection()
	conn.TokenExpiresAt = time.Now().Add(time.Minute)
	store := newFakeConnectionStore(conn)

	cfg := testClientConfig(server.URL)
	cfg.TokenURL = server.URL + "/oauth2/tokens"
	logger := testLogger()
	breakers := breaker.NewRegistry(config.DefaultBreakerConfig(), logger)
	client := NewClient(cfg, NewTokenManager(store, cfg, breakers, logger), logger)

	result, err := client.Create(context.Background(), testOrgID, "customer", map[string]interface{}{"display_name": "Acme"})
	require.NoError(t, err)
	assert.Equal(t, "ext-1", result.ExternalID)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, 1, store.updates)
	assert.Equal(t, "fresh-token", store.conns[testOrgID].AccessToken)
	assert.Equal(t, "fresh-refresh", store.conns[testOrgID].RefreshToken)
}

func TestFreshTokenSkipsRefresh(t *testing.T) {
	client, store := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer "+testAccessToken, r.Header.Get("Authorization"))
		w.Write(envelope("customer", map[string]interface{}{"Id": "ext-1"}))
	}, activeConnection())

	_, err := client.Create(context.Background(), testOrgID, "customer", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, store.updates)
}

func TestRateLimiterDelaysOverBudget(t *testing.T) {
	logger := testLogger()
	limiter := newRateLimiter(2, 80*time.Millisecond, logger)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, limiter.Wait(ctx))
	require.NoError(t, limiter.Wait(ctx))
	assert.Less(t, time.Since(start), 40*time.Millisecond, "calls within budget must not wait")

	require.NoError(t, limiter.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 70*time.Millisecond, "over-budget call must wait out the window")
}

func TestRateLimiterHonoursCancellation(t *testing.T) {
	logger := testLogger()
	limiter := newRateLimiter(1, time.Hour, logger)

	require.NoError(t, limiter.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := limiter.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
