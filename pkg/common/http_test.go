package common

import (
	"net/http"
	"net/http/httptest"
	"net/http/cookiejar"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "PeakGuard/"+Version(), r.Header.Get("User-Agent"), "User-Agent should match expected format")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	timeout := 5 * time.Second
	client := HTTPClient(timeout)

	assert.Equal(t, timeout, client.Timeout, "Timeout should be set correctly")
	assert.NotNil(t, client.Transport, "Transport should not be nil")

	req, err := http.NewRequest("GET", server.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHTTPClientKeepsCookies(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/set" {
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "s1"})
			return
		}
		c, err := r.Cookie("session")
		if assert.NoError(t, err) {
			assert.Equal(t, "s1", c.Value)
		}
	}))
	defer server.Close()

	client := HTTPClient(time.Second)
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client.Jar = jar

	resp, err := client.Get(server.URL + "/set")
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = client.Get(server.URL + "/check")
	require.NoError(t, err)
	resp.Body.Close()
}
