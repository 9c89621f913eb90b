package types

import "time"

// Credential is the persisted OAuth token for the energy-site API.
type Credential struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
}

// LiveStatus is the energy site's current power flow.
type LiveStatus struct {
	Timestamp       time.Time `json:"timestamp"`
	BatteryPercent  float64   `json:"battery_percent"`
	SolarPowerW     float64   `json:"solar_power_w"`
	BatteryPowerW   float64   `json:"battery_power_w"`
	LoadPowerW      float64   `json:"load_power_w"`
	GridPowerW      float64   `json:"grid_power_w"`
	GridStatus      string    `json:"grid_status"`
	IslandStatus    string    `json:"island_status"`
	StormModeActive bool      `json:"storm_mode_active"`
}

// ThermostatReading is a live thermostat read.
type ThermostatReading struct {
	ThermostatID       string  `json:"thermostat_id"`
	CoolSetpointF      float64 `json:"cool_setpoint_f"`
	IndoorTemperatureF float64 `json:"indoor_temperature_f"`
}
