package server

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/peakguard/peakguard/pkg/notify"
)

const (
	testIssuer   = "https://accounts.google.com"
	testAudience = "peakguard-finalize"
	testEmail    = "scheduler@peakguard.iam.gserviceaccount.com"
)

func setupOIDCTest(t *testing.T) (*rsa.PrivateKey, tokenVerifier) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	keySet := &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&priv.PublicKey}}
	verifier := oidc.NewVerifier(testIssuer, keySet, &oidc.Config{ClientID: testAudience})
	return priv, verifier.Verify
}

func generateTestToken(t *testing.T, priv *rsa.PrivateKey, claims map[string]any) string {
	t.Helper()
	base := map[string]any{
		"iss":            testIssuer,
		"aud":            testAudience,
		"sub":            "1234567890",
		"email":          testEmail,
		"email_verified": true,
		"iat":            time.Now().Unix(),
		"exp":            time.Now().Add(time.Hour).Unix(),
	}
	for k, v := range claims {
		base[k] = v
	}
	payload, err := json.Marshal(base)
	require.NoError(t, err)

	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.RS256, Key: priv}, (&jose.SignerOptions{}).WithType("JWT"))
	require.NoError(t, err)
	jws, err := signer.Sign(payload)
	require.NoError(t, err)
	token, err := jws.CompactSerialize()
	require.NoError(t, err)
	return token
}

func TestFinalizeAuth(t *testing.T) {
	priv, verifier := setupOIDCTest(t)

	ts := newTestServer(t)
	ts.bypassAuth = false
	ts.authVerifier = verifier
	ts.authEmail = testEmail
	handler := ts.setupHandler()

	post := func(authHeader string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/finalize", nil)
		if authHeader != "" {
			req.Header.Set("Authorization", authHeader)
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	t.Run("MissingHeader", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, post("").Code)
	})

	t.Run("NotBearer", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, post("Basic Zm9vOmJhcg==").Code)
	})

	t.Run("Garbage", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, post("Bearer not-a-jwt").Code)
	})

	t.Run("WrongAudience", func(t *testing.T) {
		token := generateTestToken(t, priv, map[string]any{"aud": "someone-else"})
		assert.Equal(t, http.StatusUnauthorized, post("Bearer "+token).Code)
	})

	t.Run("Expired", func(t *testing.T) {
		token := generateTestToken(t, priv, map[string]any{
			"iat": time.Now().Add(-2 * time.Hour).Unix(),
			"exp": time.Now().Add(-time.Hour).Unix(),
		})
		assert.Equal(t, http.StatusUnauthorized, post("Bearer "+token).Code)
	})

	t.Run("UnverifiedEmail", func(t *testing.T) {
		token := generateTestToken(t, priv, map[string]any{"email_verified": false})
		assert.Equal(t, http.StatusUnauthorized, post("Bearer "+token).Code)
	})

	t.Run("WrongEmail", func(t *testing.T) {
		token := generateTestToken(t, priv, map[string]any{"email": "intruder@example.com"})
		rr := post("Bearer " + token)
		assert.Equal(t, http.StatusForbidden, rr.Code)
		assert.JSONEq(t, `{"error":"forbidden"}`, rr.Body.String())
	})

	t.Run("Valid", func(t *testing.T) {
		ts.notifier.On("Notify", mock.Anything, notify.SeverityInfo, notify.KindDailyReport, mock.Anything).Return(true).Once()
		token := generateTestToken(t, priv, nil)
		assert.Equal(t, http.StatusOK, post("Bearer "+token).Code)
	})
}

func TestAuthNotConfigured(t *testing.T) {
	ts := newTestServer(t)
	ts.bypassAuth = false
	handler := ts.setupHandler()

	for _, target := range []string{"/api/finalize", "/api/state", "/api/devices"} {
		method := http.MethodGet
		if target == "/api/finalize" {
			method = http.MethodPost
		}
		req := httptest.NewRequest(method, target, nil)
		req.Header.Set("Authorization", "Bearer anything")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusForbidden, rr.Code, target)
	}
}

func TestReadEndpointsAuth(t *testing.T) {
	priv, verifier := setupOIDCTest(t)

	ts := newTestServer(t)
	ts.bypassAuth = false
	ts.authVerifier = verifier
	ts.authEmail = testEmail
	handler := ts.setupHandler()

	get := func(target, authHeader string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		if authHeader != "" {
			req.Header.Set("Authorization", authHeader)
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	t.Run("DevicesWithoutToken", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, get("/api/devices", "").Code)
		ts.ess.AssertNotCalled(t, "GetLiveStatus", mock.Anything)
		ts.ess.AssertNotCalled(t, "GetReserve", mock.Anything)
		ts.thermostat.AssertNotCalled(t, "GetReading", mock.Anything, mock.Anything)
	})

	t.Run("StateWithoutToken", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, get("/api/state", "").Code)
	})

	t.Run("HistoryWrongEmail", func(t *testing.T) {
		token := generateTestToken(t, priv, map[string]any{"email": "intruder@example.com"})
		assert.Equal(t, http.StatusForbidden, get("/api/history", "Bearer "+token).Code)
	})

	t.Run("StateValid", func(t *testing.T) {
		token := generateTestToken(t, priv, nil)
		assert.Equal(t, http.StatusOK, get("/api/state", "Bearer "+token).Code)
	})

	t.Run("HealthzOpen", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, get("/healthz", "").Code)
	})
}
