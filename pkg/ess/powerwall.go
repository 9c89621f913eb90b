package ess

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/peakguard/peakguard/pkg/common"
	"github.com/peakguard/peakguard/pkg/log"
	"github.com/peakguard/peakguard/pkg/types"
)

const (
	defaultPowerwallURL      = "https://owner-api.teslamotors.com"
	defaultPowerwallTokenURL = "https://auth.tesla.com/oauth2/v3/token"
)

// ErrCredential is returned when the stored OAuth credential is missing,
// malformed or cannot be refreshed.
var ErrCredential = errors.New("invalid tesla credential")

// Powerwall implements System for a Tesla energy site using the owner API.
// Calls are serialized so a token refresh never interleaves with another call.
type Powerwall struct {
	mu sync.Mutex

	client *http.Client
	// refreshClient is only used for the token endpoint so a refresh is never
	// itself subject to refresh handling.
	refreshClient *http.Client
	baseURL       string
	siteID        string
	tokenFile     string
	oauth         *oauth2.Config
	retry         common.RetryConfig

	cred types.Credential
}

// PowerwallConfig configures NewPowerwall. Zero fields use the defaults.
type PowerwallConfig struct {
	BaseURL       string
	TokenURL      string
	ClientID      string
	EnergySiteID  string
	TokenFile     string
	Client        *http.Client
	RefreshClient *http.Client
	Retry         *common.RetryConfig
}

// NewPowerwall returns a Powerwall client with the credential loaded from
// cfg.TokenFile. It fails with an error wrapping ErrCredential if the file is
// absent or malformed.
func NewPowerwall(cfg PowerwallConfig) (*Powerwall, error) {
	p := newPowerwall()
	if cfg.BaseURL != "" {
		p.baseURL = cfg.BaseURL
	}
	if cfg.TokenURL != "" {
		p.oauth.Endpoint.TokenURL = cfg.TokenURL
	}
	if cfg.Client != nil {
		p.client = cfg.Client
	}
	if cfg.RefreshClient != nil {
		p.refreshClient = cfg.RefreshClient
	}
	if cfg.Retry != nil {
		p.retry = *cfg.Retry
	}
	p.oauth.ClientID = cfg.ClientID
	p.siteID = cfg.EnergySiteID
	p.tokenFile = cfg.TokenFile
	if err := p.loadCredential(); err != nil {
		return nil, err
	}
	return p, nil
}

func newOAuthConfig(clientID, tokenURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID: clientID,
		Endpoint: oauth2.Endpoint{
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// LoadCredential reads and validates a credential file.
func LoadCredential(path string) (types.Credential, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return types.Credential{}, fmt.Errorf("%w: %w", ErrCredential, err)
	}
	var cred types.Credential
	if err := json.Unmarshal(b, &cred); err != nil {
		return types.Credential{}, fmt.Errorf("%w: failed to parse %s: %w", ErrCredential, path, err)
	}
	if cred.AccessToken == "" {
		return types.Credential{}, fmt.Errorf("%w: %s is missing access_token", ErrCredential, path)
	}
	if cred.TokenType == "" {
		return types.Credential{}, fmt.Errorf("%w: %s is missing token_type", ErrCredential, path)
	}
	return cred, nil
}

// SaveCredential atomically replaces the credential file.
func SaveCredential(path string, cred types.Credential) error {
	b, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credential: %w", err)
	}
	return common.WriteFileAtomic(path, b, 0o600)
}

func (p *Powerwall) loadCredential() error {
	if p.siteID == "" {
		return errors.New("energy site id is required")
	}
	cred, err := LoadCredential(p.tokenFile)
	if err != nil {
		return err
	}
	p.cred = cred
	return nil
}

// refresh exchanges the refresh token for a new credential and persists it
// before returning. Any failure is permanent.
func (p *Powerwall) refresh(ctx context.Context) error {
	if p.cred.RefreshToken == "" {
		return common.Permanent(http.StatusUnauthorized, "no refresh token available", ErrCredential)
	}
	if p.oauth.ClientID == "" {
		return common.Permanent(http.StatusUnauthorized, "client id required for token refresh", ErrCredential)
	}

	log.Ctx(ctx).InfoContext(ctx, "refreshing tesla token")

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.refreshClient)
	tok, err := p.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: p.cred.RefreshToken}).Token()
	if err != nil {
		status := 0
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			status = re.Response.StatusCode
		}
		log.Ctx(ctx).ErrorContext(ctx, "tesla token refresh failed", slog.Any("error", err))
		return common.Permanent(status, "token refresh failed", errors.Join(ErrCredential, err))
	}

	cred := types.Credential{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.Type(),
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    28800,
	}
	if !tok.Expiry.IsZero() {
		cred.ExpiresIn = int64(time.Until(tok.Expiry).Round(time.Second) / time.Second)
	}
	if idToken, ok := tok.Extra("id_token").(string); ok {
		cred.IDToken = idToken
	} else {
		cred.IDToken = p.cred.IDToken
	}
	// the in-memory credential is replaced even if persisting fails so the
	// next call does not refresh again
	p.cred = cred

	if err := SaveCredential(p.tokenFile, cred); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to persist refreshed tesla token", slog.Any("error", err))
		return common.Permanent(0, "failed to persist refreshed token", err)
	}
	log.Ctx(ctx).InfoContext(ctx, "tesla token refreshed")
	return nil
}

type teslaResponse struct {
	Response json.RawMessage `json:"response"`
	Error    string          `json:"error"`
}

func (p *Powerwall) endpoint(parts ...string) (string, error) {
	return url.JoinPath(p.baseURL, append([]string{"api", "1", "energy_sites", p.siteID}, parts...)...)
}

// doRequest sends the request built by newReq with the current bearer token.
// A 401 triggers exactly one refresh and one retry. The "response" field of
// the body is decoded into dest when dest is not nil.
func (p *Powerwall) doRequest(ctx context.Context, newReq func(context.Context) (*http.Request, error), dest any) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	// we try up to 2 times because we might have an expired token
	for i := 0; i < 2; i++ {
		resp, err := common.Do(ctx, p.client, p.retry, func(ctx context.Context) (*http.Request, error) {
			req, err := newReq(ctx)
			if err != nil {
				return nil, err
			}
			req.Header.Set("Authorization", p.cred.TokenType+" "+p.cred.AccessToken)
			req.Header.Set("Accept", "application/json")
			return req, nil
		})
		if err != nil {
			return err
		}

		if resp.StatusCode == http.StatusUnauthorized {
			resp.Body.Close()
			if i > 0 {
				return common.Permanent(http.StatusUnauthorized, "unauthorized after token refresh", ErrCredential)
			}
			log.Ctx(ctx).WarnContext(ctx, "tesla token rejected, refreshing")
			if err := p.refresh(ctx); err != nil {
				return err
			}
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return common.StatusError(resp)
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return common.Transient(resp.StatusCode, "failed to read response", err)
		}
		if dest == nil {
			return nil
		}
		var tr teslaResponse
		if err := json.Unmarshal(body, &tr); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to decode tesla response", slog.Any("error", err), slog.String("body", string(body)))
			return common.Permanent(resp.StatusCode, "failed to decode response", err)
		}
		if tr.Error != "" {
			return common.Permanent(resp.StatusCode, tr.Error, nil)
		}
		if err := json.Unmarshal(tr.Response, dest); err != nil {
			return common.Permanent(resp.StatusCode, "failed to decode response", err)
		}
		return nil
	}
	return nil
}

func (p *Powerwall) get(ctx context.Context, endpoint string, dest any) error {
	u, err := p.endpoint(endpoint)
	if err != nil {
		return err
	}
	return p.doRequest(ctx, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}, dest)
}

func (p *Powerwall) postJSON(ctx context.Context, endpoint string, data any, dest any) error {
	u, err := p.endpoint(endpoint)
	if err != nil {
		return err
	}
	body, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return p.doRequest(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, dest)
}

type liveStatusResult struct {
	PercentageCharged float64 `json:"percentage_charged"`
	SolarPower        float64 `json:"solar_power"`
	BatteryPower      float64 `json:"battery_power"`
	LoadPower         float64 `json:"load_power"`
	GridPower         float64 `json:"grid_power"`
	GridStatus        string  `json:"grid_status"`
	IslandStatus      string  `json:"island_status"`
	StormModeActive   bool    `json:"storm_mode_active"`
	Timestamp         string  `json:"timestamp"`
}

type siteInfoResult struct {
	BackupReservePercent *float64 `json:"backup_reserve_percent"`
	DefaultRealMode      string   `json:"default_real_mode"`
}

// HealthCheck probes the live status endpoint.
func (p *Powerwall) HealthCheck(ctx context.Context) bool {
	var res liveStatusResult
	if err := p.get(ctx, "live_status", &res); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "tesla health check failed", slog.Any("error", err))
		return false
	}
	return true
}

// GetBatteryCharge returns percentage_charged from the live status.
func (p *Powerwall) GetBatteryCharge(ctx context.Context) (float64, error) {
	var res liveStatusResult
	if err := p.get(ctx, "live_status", &res); err != nil {
		return 0, fmt.Errorf("failed to get battery charge: %w", err)
	}
	log.Ctx(ctx).DebugContext(ctx, "battery charge", slog.Float64("percent", res.PercentageCharged))
	return res.PercentageCharged, nil
}

// GetLiveStatus returns the site's current power flow.
func (p *Powerwall) GetLiveStatus(ctx context.Context) (types.LiveStatus, error) {
	var res liveStatusResult
	if err := p.get(ctx, "live_status", &res); err != nil {
		return types.LiveStatus{}, fmt.Errorf("failed to get live status: %w", err)
	}
	status := types.LiveStatus{
		Timestamp:       time.Now(),
		BatteryPercent:  res.PercentageCharged,
		SolarPowerW:     res.SolarPower,
		BatteryPowerW:   res.BatteryPower,
		LoadPowerW:      res.LoadPower,
		GridPowerW:      res.GridPower,
		GridStatus:      res.GridStatus,
		IslandStatus:    res.IslandStatus,
		StormModeActive: res.StormModeActive,
	}
	if ts, err := time.Parse(time.RFC3339, res.Timestamp); err == nil {
		status.Timestamp = ts
	}
	return status, nil
}

// GetReserve returns backup_reserve_percent from the site info.
func (p *Powerwall) GetReserve(ctx context.Context) (float64, error) {
	var res siteInfoResult
	if err := p.get(ctx, "site_info", &res); err != nil {
		return 0, fmt.Errorf("failed to get backup reserve: %w", err)
	}
	if res.BackupReservePercent == nil {
		return 0, common.Permanent(http.StatusOK, "site info is missing backup_reserve_percent", nil)
	}
	return *res.BackupReservePercent, nil
}

// SetReserve sets the backup reserve percentage.
func (p *Powerwall) SetReserve(ctx context.Context, percent float64) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("%w: reserve must be between 0 and 100, got %v", common.ErrOutOfRange, percent)
	}
	body := map[string]int{"backup_reserve_percent": int(percent)}
	if err := p.postJSON(ctx, "backup", body, nil); err != nil {
		return fmt.Errorf("failed to set backup reserve: %w", err)
	}
	log.Ctx(ctx).InfoContext(ctx, "set backup reserve", slog.Float64("percent", percent))
	return nil
}
