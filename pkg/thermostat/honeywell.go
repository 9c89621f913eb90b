package thermostat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/peakguard/peakguard/pkg/common"
	"github.com/peakguard/peakguard/pkg/log"
	"github.com/peakguard/peakguard/pkg/types"
)

const defaultHoneywellURL = "https://www.mytotalconnectcomfort.com/portal"

// Honeywell implements System for Total Connect Comfort thermostats. The
// portal uses a cookie session that is re-established whenever it is lost.
type Honeywell struct {
	mu sync.Mutex

	client   *http.Client
	baseURL  string
	username string
	password string
	retry    common.RetryConfig

	authenticated bool
}

// HoneywellConfig configures NewHoneywell. Zero fields use the defaults.
type HoneywellConfig struct {
	BaseURL  string
	Username string
	Password string
	Client   *http.Client
	Retry    *common.RetryConfig
}

// NewHoneywell returns a client and attempts an initial login. A login
// failure is logged and does not prevent construction.
func NewHoneywell(ctx context.Context, cfg HoneywellConfig) *Honeywell {
	h := newHoneywell()
	if cfg.BaseURL != "" {
		h.baseURL = cfg.BaseURL
	}
	if cfg.Client != nil {
		h.client = cfg.Client
		if h.client.Jar == nil {
			h.client.Jar = newJar()
		}
	}
	if cfg.Retry != nil {
		h.retry = *cfg.Retry
	}
	h.username = cfg.Username
	h.password = cfg.Password
	h.eagerAuthenticate(ctx)
	return h
}

func newHoneywell() *Honeywell {
	client := common.HTTPClient(time.Minute)
	client.Jar = newJar()
	return &Honeywell{
		client:  client,
		baseURL: defaultHoneywellURL,
		retry:   common.DefaultRetryConfig(),
	}
}

func newJar() http.CookieJar {
	// cookiejar.New only fails when given a broken PublicSuffixList
	jar, _ := cookiejar.New(nil)
	return jar
}

func (h *Honeywell) eagerAuthenticate(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.authenticate(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to authenticate with honeywell", slog.Any("error", err))
	}
}

func (h *Honeywell) url(endpoint string, params url.Values) (string, error) {
	u, err := url.Parse(h.baseURL)
	if err != nil {
		return "", err
	}
	if endpoint != "" {
		u.Path, err = url.JoinPath(u.Path, endpoint)
		if err != nil {
			return "", err
		}
	}
	u.RawQuery = params.Encode()
	return u.String(), nil
}

func (h *Honeywell) send(ctx context.Context, method, target string, body []byte) (*http.Response, error) {
	return common.Do(ctx, h.client, h.retry, func(ctx context.Context) (*http.Request, error) {
		var r io.Reader
		if body != nil {
			r = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, r)
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-Requested-With", "XMLHttpRequest")
		if body != nil {
			req.Header.Set("Content-Type", "application/json; charset=utf-8")
		}
		return req, nil
	})
}

// authenticate opens the portal to get a session cookie and posts the login.
// Callers must hold mu.
func (h *Honeywell) authenticate(ctx context.Context) error {
	h.authenticated = false

	base, err := h.url("", nil)
	if err != nil {
		return err
	}
	resp, err := h.send(ctx, http.MethodGet, base, nil)
	if err != nil {
		return fmt.Errorf("failed to open honeywell portal: %w", err)
	}
	resp.Body.Close()

	login, err := h.url("", url.Values{
		"UserName":   {h.username},
		"Password":   {h.password},
		"RememberMe": {"false"},
		"timeOffset": {"0"},
	})
	if err != nil {
		return err
	}
	resp, err = h.send(ctx, http.MethodPost, login, nil)
	if err != nil {
		return fmt.Errorf("failed to log in to honeywell: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("failed to log in to honeywell: %w", common.StatusError(resp))
	}
	resp.Body.Close()
	// a rejected login lands back on the login page with a 200
	if sessionLost(resp) {
		return fmt.Errorf("failed to log in to honeywell: %w", common.Permanent(http.StatusUnauthorized, "redirected to the login page", nil))
	}

	h.authenticated = true
	log.Ctx(ctx).InfoContext(ctx, "authenticated with honeywell")
	return nil
}

// sessionLost reports whether the portal bounced the request to its login page.
func sessionLost(resp *http.Response) bool {
	if resp.StatusCode == http.StatusUnauthorized {
		return true
	}
	return resp.Request != nil && strings.Contains(strings.ToLower(resp.Request.URL.Path), "login")
}

// HealthCheck logs in if there is no session, then probes the portal root and
// logs in again if the probe lands on the login page or fails.
func (h *Honeywell) HealthCheck(ctx context.Context) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.authenticated {
		if err := h.authenticate(ctx); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "honeywell health check failed", slog.Any("error", err))
			return false
		}
	}

	probe, err := h.url("/", nil)
	if err != nil {
		return false
	}
	resp, err := h.send(ctx, http.MethodGet, probe, nil)
	if err == nil {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK && !sessionLost(resp) {
			return true
		}
		log.Ctx(ctx).InfoContext(ctx, "honeywell session expired, re-authenticating", slog.Int("status", resp.StatusCode))
	} else {
		log.Ctx(ctx).WarnContext(ctx, "honeywell probe failed, re-authenticating", slog.Any("error", err))
	}

	if err := h.authenticate(ctx); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "honeywell health check failed", slog.Any("error", err))
		return false
	}
	return true
}

// do sends a request, logging in first when there is no session. A 401 or a
// bounce to the login page re-authenticates and retries once. Callers must
// hold mu.
func (h *Honeywell) do(ctx context.Context, method, target string, body []byte, dest any) error {
	// we try up to 2 times because the session might have expired
	for i := 0; i < 2; i++ {
		if !h.authenticated {
			if err := h.authenticate(ctx); err != nil {
				return err
			}
		}

		resp, err := h.send(ctx, method, target, body)
		if err != nil {
			return err
		}
		if sessionLost(resp) {
			resp.Body.Close()
			h.authenticated = false
			if i > 0 {
				return common.Permanent(http.StatusUnauthorized, "honeywell session rejected after re-authentication", nil)
			}
			log.Ctx(ctx).InfoContext(ctx, "honeywell session expired")
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return common.StatusError(resp)
		}

		b, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return common.Transient(resp.StatusCode, "failed to read response", err)
		}
		if dest == nil {
			return nil
		}
		if err := json.Unmarshal(b, dest); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to decode honeywell response", slog.Any("error", err), slog.String("body", string(b)))
			return common.Permanent(resp.StatusCode, "failed to decode response", err)
		}
		return nil
	}
	return nil
}

type checkDataSessionResult struct {
	Success    bool `json:"success"`
	DeviceLive bool `json:"deviceLive"`
	LatestData struct {
		UIData struct {
			CoolSetpoint    *float64 `json:"CoolSetpoint"`
			DispTemperature *float64 `json:"DispTemperature"`
		} `json:"uiData"`
	} `json:"latestData"`
}

type controlScreenChanges struct {
	SystemSwitch   *int     `json:"SystemSwitch"`
	HeatSetpoint   *float64 `json:"HeatSetpoint"`
	CoolSetpoint   float64  `json:"CoolSetpoint"`
	HeatNextPeriod *int     `json:"HeatNextPeriod"`
	CoolNextPeriod *int     `json:"CoolNextPeriod"`
	StatusHeat     *int     `json:"StatusHeat"`
	StatusCool     int      `json:"StatusCool"`
	DeviceID       string   `json:"DeviceID"`
}

func (h *Honeywell) reading(ctx context.Context, thermostatID string) (types.ThermostatReading, error) {
	target, err := h.url("Device/CheckDataSession/"+url.PathEscape(thermostatID), nil)
	if err != nil {
		return types.ThermostatReading{}, err
	}
	var res checkDataSessionResult
	if err := h.do(ctx, http.MethodGet, target, nil, &res); err != nil {
		return types.ThermostatReading{}, fmt.Errorf("failed to get thermostat %s: %w", thermostatID, err)
	}
	ui := res.LatestData.UIData
	if ui.CoolSetpoint == nil {
		return types.ThermostatReading{}, common.Permanent(http.StatusOK, fmt.Sprintf("thermostat %s data is missing CoolSetpoint", thermostatID), nil)
	}
	reading := types.ThermostatReading{
		ThermostatID:  thermostatID,
		CoolSetpointF: *ui.CoolSetpoint,
	}
	if ui.DispTemperature != nil {
		reading.IndoorTemperatureF = *ui.DispTemperature
	}
	return reading, nil
}

// GetReading returns the live setpoint and indoor temperature.
func (h *Honeywell) GetReading(ctx context.Context, thermostatID string) (types.ThermostatReading, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reading(ctx, thermostatID)
}

// GetCoolSetpoint returns the live cool setpoint.
func (h *Honeywell) GetCoolSetpoint(ctx context.Context, thermostatID string) (float64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, err := h.reading(ctx, thermostatID)
	if err != nil {
		return 0, err
	}
	log.Ctx(ctx).DebugContext(ctx, "cool setpoint", slog.String("thermostatID", thermostatID), slog.Float64("setpoint", r.CoolSetpointF))
	return r.CoolSetpointF, nil
}

// SetCoolSetpoint writes the cool setpoint and verifies it by reading it back.
func (h *Honeywell) SetCoolSetpoint(ctx context.Context, thermostatID string, temperature float64) (bool, error) {
	if temperature < MinSetpointF || temperature > MaxSetpointF {
		return false, fmt.Errorf("%w: setpoint must be between %d and %d, got %v", common.ErrOutOfRange, MinSetpointF, MaxSetpointF, temperature)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	target, err := h.url("Device/SubmitControlScreenChanges", nil)
	if err != nil {
		return false, err
	}
	body, err := json.Marshal(controlScreenChanges{
		CoolSetpoint: temperature,
		StatusCool:   1,
		DeviceID:     thermostatID,
	})
	if err != nil {
		return false, err
	}
	if err := h.do(ctx, http.MethodPost, target, body, nil); err != nil {
		return false, fmt.Errorf("failed to set thermostat %s: %w", thermostatID, err)
	}

	r, err := h.reading(ctx, thermostatID)
	if err != nil {
		return false, fmt.Errorf("failed to verify thermostat %s: %w", thermostatID, err)
	}
	if r.CoolSetpointF != temperature {
		log.Ctx(ctx).WarnContext(
			ctx,
			"setpoint verification failed",
			slog.String("thermostatID", thermostatID),
			slog.Float64("requested", temperature),
			slog.Float64("actual", r.CoolSetpointF),
		)
		return false, nil
	}
	log.Ctx(ctx).InfoContext(ctx, "set cool setpoint", slog.String("thermostatID", thermostatID), slog.Float64("setpoint", temperature))
	return true, nil
}
