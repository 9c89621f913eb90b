package ess

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peakguard/peakguard/pkg/common"
	"github.com/peakguard/peakguard/pkg/types"
)

func writeCredential(t *testing.T, cred types.Credential) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tesla_token.json")
	b, err := json.Marshal(cred)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func testRetry() *common.RetryConfig {
	return &common.RetryConfig{
		MaxRetries:   2,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2,
	}
}

type teslaFake struct {
	api        *httptest.Server
	token      *httptest.Server
	apiCalls   atomic.Int32
	tokenCalls atomic.Int32
}

// newTeslaFake serves live_status/site_info/backup for requests carrying
// "Bearer <validToken>" and answers 401 otherwise. tokenHandler serves the
// OAuth endpoint.
func newTeslaFake(t *testing.T, validToken string, tokenHandler http.HandlerFunc) *teslaFake {
	f := &teslaFake{}
	f.api = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.apiCalls.Add(1)
		if r.Header.Get("Authorization") != "Bearer "+validToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/api/1/energy_sites/42/live_status":
			w.Write([]byte(`{"response":{"percentage_charged":71.5,"solar_power":1200,"battery_power":-300,"load_power":900,"grid_power":0,"grid_status":"Active","island_status":"on_grid","storm_mode_active":false,"timestamp":"2025-07-01T16:30:00-05:00"}}`))
		case "/api/1/energy_sites/42/site_info":
			w.Write([]byte(`{"response":{"backup_reserve_percent":100,"default_real_mode":"self_consumption"}}`))
		case "/api/1/energy_sites/42/backup":
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			body, _ := io.ReadAll(r.Body)
			assert.JSONEq(t, `{"backup_reserve_percent":0}`, string(body))
			w.Write([]byte(`{"response":{"code":201,"message":"Updated"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(f.api.Close)
	f.token = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		tokenHandler(w, r)
	}))
	t.Cleanup(f.token.Close)
	return f
}

func (f *teslaFake) powerwall(t *testing.T, tokenFile string) *Powerwall {
	t.Helper()
	p, err := NewPowerwall(PowerwallConfig{
		BaseURL:      f.api.URL,
		TokenURL:     f.token.URL,
		ClientID:     "ownerapi",
		EnergySiteID: "42",
		TokenFile:    tokenFile,
		Retry:        testRetry(),
	})
	require.NoError(t, err)
	return p
}

func noRefresh(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected token refresh")
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func TestLoadCredential(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadCredential(filepath.Join(t.TempDir(), "nope.json"))
		assert.ErrorIs(t, err, ErrCredential)
	})

	t.Run("malformed", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
		_, err := LoadCredential(path)
		assert.ErrorIs(t, err, ErrCredential)
	})

	t.Run("missing access token", func(t *testing.T) {
		path := writeCredential(t, types.Credential{TokenType: "Bearer"})
		_, err := LoadCredential(path)
		assert.ErrorIs(t, err, ErrCredential)
		assert.Contains(t, err.Error(), "access_token")
	})

	t.Run("missing token type", func(t *testing.T) {
		path := writeCredential(t, types.Credential{AccessToken: "abc"})
		_, err := LoadCredential(path)
		assert.ErrorIs(t, err, ErrCredential)
		assert.Contains(t, err.Error(), "token_type")
	})

	t.Run("constructor fails fast", func(t *testing.T) {
		_, err := NewPowerwall(PowerwallConfig{
			EnergySiteID: "42",
			TokenFile:    filepath.Join(t.TempDir(), "nope.json"),
		})
		assert.ErrorIs(t, err, ErrCredential)
	})
}

func TestPowerwallReads(t *testing.T) {
	f := newTeslaFake(t, "abc", noRefresh(t))
	p := f.powerwall(t, writeCredential(t, types.Credential{AccessToken: "abc", TokenType: "Bearer"}))
	ctx := t.Context()

	charge, err := p.GetBatteryCharge(ctx)
	require.NoError(t, err)
	assert.Equal(t, 71.5, charge)

	reserve, err := p.GetReserve(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100.0, reserve)

	status, err := p.GetLiveStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1200.0, status.SolarPowerW)
	assert.Equal(t, "on_grid", status.IslandStatus)
	assert.Equal(t, 2025, status.Timestamp.Year())

	assert.True(t, p.HealthCheck(ctx))
}

func TestPowerwallSetReserve(t *testing.T) {
	f := newTeslaFake(t, "abc", noRefresh(t))
	p := f.powerwall(t, writeCredential(t, types.Credential{AccessToken: "abc", TokenType: "Bearer"}))

	require.NoError(t, p.SetReserve(t.Context(), 0))
	assert.Equal(t, int32(1), f.apiCalls.Load())

	err := p.SetReserve(t.Context(), 101)
	assert.ErrorIs(t, err, common.ErrOutOfRange)
	err = p.SetReserve(t.Context(), -1)
	assert.ErrorIs(t, err, common.ErrOutOfRange)
	assert.Equal(t, int32(1), f.apiCalls.Load(), "out of range values must not reach the API")
}

func TestPowerwallRefresh(t *testing.T) {
	t.Run("401 refreshes once and retries", func(t *testing.T) {
		f := newTeslaFake(t, "new-access", func(w http.ResponseWriter, r *http.Request) {
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
			assert.Equal(t, "ownerapi", r.PostForm.Get("client_id"))
			assert.Equal(t, "refresh-1", r.PostForm.Get("refresh_token"))
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"access_token":"new-access","token_type":"Bearer","refresh_token":"refresh-2","expires_in":28800,"id_token":"id-2"}`))
		})
		path := writeCredential(t, types.Credential{AccessToken: "old-access", TokenType: "Bearer", RefreshToken: "refresh-1"})
		p := f.powerwall(t, path)

		charge, err := p.GetBatteryCharge(t.Context())
		require.NoError(t, err)
		assert.Equal(t, 71.5, charge)
		assert.Equal(t, int32(2), f.apiCalls.Load())
		assert.Equal(t, int32(1), f.tokenCalls.Load())

		saved, err := LoadCredential(path)
		require.NoError(t, err)
		assert.Equal(t, "new-access", saved.AccessToken)
		assert.Equal(t, "refresh-2", saved.RefreshToken)
		assert.Equal(t, "id-2", saved.IDToken)
		assert.InDelta(t, 28800, saved.ExpiresIn, 5)

		// the refreshed token is used directly afterwards
		_, err = p.GetReserve(t.Context())
		require.NoError(t, err)
		assert.Equal(t, int32(3), f.apiCalls.Load())
		assert.Equal(t, int32(1), f.tokenCalls.Load())
	})

	t.Run("refresh failure is permanent with no third attempt", func(t *testing.T) {
		f := newTeslaFake(t, "never", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_grant"}`))
		})
		path := writeCredential(t, types.Credential{AccessToken: "old", TokenType: "Bearer", RefreshToken: "refresh-1"})
		p := f.powerwall(t, path)

		_, err := p.GetBatteryCharge(t.Context())
		require.Error(t, err)
		assert.True(t, common.IsPermanent(err))
		assert.ErrorIs(t, err, ErrCredential)
		assert.Equal(t, int32(1), f.apiCalls.Load())
		assert.Equal(t, int32(1), f.tokenCalls.Load())

		saved, err := LoadCredential(path)
		require.NoError(t, err)
		assert.Equal(t, "old", saved.AccessToken, "a failed refresh must not touch the stored credential")
	})

	t.Run("401 after refresh is permanent", func(t *testing.T) {
		f := newTeslaFake(t, "never", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"access_token":"still-bad","token_type":"Bearer"}`))
		})
		p := f.powerwall(t, writeCredential(t, types.Credential{AccessToken: "old", TokenType: "Bearer", RefreshToken: "refresh-1"}))

		_, err := p.GetReserve(t.Context())
		require.Error(t, err)
		assert.True(t, common.IsPermanent(err))
		assert.Equal(t, int32(2), f.apiCalls.Load())
		assert.Equal(t, int32(1), f.tokenCalls.Load())
	})

	t.Run("no refresh token", func(t *testing.T) {
		f := newTeslaFake(t, "never", noRefresh(t))
		p := f.powerwall(t, writeCredential(t, types.Credential{AccessToken: "old", TokenType: "Bearer"}))

		_, err := p.GetReserve(t.Context())
		require.Error(t, err)
		assert.True(t, common.IsPermanent(err))
		assert.False(t, p.HealthCheck(t.Context()))
	})
}

func TestPowerwallTransientRetry(t *testing.T) {
	var calls atomic.Int32
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"response":{"percentage_charged":50}}`))
	}))
	defer api.Close()

	p, err := NewPowerwall(PowerwallConfig{
		BaseURL:      api.URL,
		EnergySiteID: "42",
		TokenFile:    writeCredential(t, types.Credential{AccessToken: "abc", TokenType: "Bearer"}),
		Retry:        testRetry(),
	})
	require.NoError(t, err)

	charge, err := p.GetBatteryCharge(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 50.0, charge)
	assert.Equal(t, int32(2), calls.Load())
}

func TestPowerwallPermanentStatus(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("forbidden"))
	}))
	defer api.Close()

	p, err := NewPowerwall(PowerwallConfig{
		BaseURL:      api.URL,
		EnergySiteID: "42",
		TokenFile:    writeCredential(t, types.Credential{AccessToken: "abc", TokenType: "Bearer"}),
		Retry:        testRetry(),
	})
	require.NoError(t, err)

	err = p.SetReserve(t.Context(), 100)
	require.Error(t, err)
	assert.True(t, common.IsPermanent(err))

	var re *common.RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusForbidden, re.Status)
}
