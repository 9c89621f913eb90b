package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/peakguard/peakguard/pkg/ess"
	"github.com/peakguard/peakguard/pkg/ledger"
	"github.com/peakguard/peakguard/pkg/log"
	"github.com/peakguard/peakguard/pkg/notify"
	"github.com/peakguard/peakguard/pkg/thermostat"
	"github.com/peakguard/peakguard/pkg/types"
	"github.com/peakguard/peakguard/pkg/utility"
	"github.com/peakguard/peakguard/pkg/weather"
)

// Hard setpoint limits applied regardless of settings.
const (
	MaxConservationSetpointF = 85
	MinPrecoolSetpointF      = 68
)

const (
	nonPeakReserve = 100
	peakReserve    = 0
)

// ErrUnhealthy is returned by HealthCheck when a backend failed its health
// check. The failure has already been notified.
var ErrUnhealthy = errors.New("remote backend unhealthy")

// Controller makes the phase-driven reserve and setpoint decisions.
type Controller struct {
	ess         ess.System
	thermostats thermostat.System
	ledger      *ledger.Ledger
	notifier    notify.Notifier
	forecaster  weather.Forecaster
	tariff      *utility.Tariff
	settings    types.Settings
	now         func() time.Time
}

// Config holds the collaborators of a Controller.
type Config struct {
	ESS         ess.System
	Thermostats thermostat.System
	Ledger      *ledger.Ledger
	Notifier    notify.Notifier
	Forecaster  weather.Forecaster
	Tariff      *utility.Tariff
	Settings    types.Settings
}

// New creates a new Controller.
func New(cfg Config) *Controller {
	forecaster := cfg.Forecaster
	if forecaster == nil {
		forecaster = weather.Static(cfg.Settings.ForecastHighF)
	}
	return &Controller{
		ess:         cfg.ESS,
		thermostats: cfg.Thermostats,
		ledger:      cfg.Ledger,
		notifier:    cfg.Notifier,
		forecaster:  forecaster,
		tariff:      cfg.Tariff,
		settings:    cfg.Settings,
		now:         time.Now,
	}
}

// WithClock replaces the clock used to resolve phases.
func (c *Controller) WithClock(now func() time.Time) *Controller {
	c.now = now
	return c
}

func status(ok bool) string {
	if ok {
		return "OK"
	}
	return "FAILED"
}

func formatF(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "°F"
}

// HealthCheck checks both backends in parallel. If either fails a warning is
// sent with the status of each and ErrUnhealthy is returned.
func (c *Controller) HealthCheck(ctx context.Context) error {
	var essOK, thermostatOK bool
	var g errgroup.Group
	g.Go(func() error {
		essOK = c.ess.HealthCheck(ctx)
		return nil
	})
	g.Go(func() error {
		thermostatOK = c.thermostats.HealthCheck(ctx)
		return nil
	})
	_ = g.Wait()

	if essOK && thermostatOK {
		return nil
	}
	log.Ctx(ctx).WarnContext(
		ctx,
		"health check failed",
		slog.Bool("ess", essOK),
		slog.Bool("thermostat", thermostatOK),
	)
	c.notifier.Notify(ctx, notify.SeverityWarning, notify.KindAPIError, map[string]string{
		"Tesla API":     status(essOK),
		"Honeywell API": status(thermostatOK),
	})
	return fmt.Errorf("%w: ess=%s thermostat=%s", ErrUnhealthy, status(essOK), status(thermostatOK))
}

// RunCheckCycle runs one poll: health check, phase resolution and dispatch.
func (c *Controller) RunCheckCycle(ctx context.Context) error {
	ctx = log.WithAttrs(ctx, slog.String("cycleID", uuid.NewString()))

	if err := c.HealthCheck(ctx); err != nil {
		return err
	}

	now := c.now()
	phase, err := utility.ResolvePhase(now, c.tariff)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "peak schedule misconfigured", slog.Any("error", err))
	}
	log.Ctx(ctx).InfoContext(ctx, "resolved phase", slog.String("phase", string(phase)), slog.Time("now", now))

	switch phase {
	case types.PhaseNonPeak:
		return c.ApplyReserveForPhase(ctx, phase)
	case types.PhasePrePeak:
		return c.MaybePrecool(ctx)
	case types.PhasePeakStart, types.PhasePeakMonitor:
		// conservation still runs when the reserve write fails
		return errors.Join(
			c.ApplyReserveForPhase(ctx, phase),
			c.MaybeConserve(ctx, phase),
		)
	case types.PhasePeakEnd:
		return c.OnPeakEnd(ctx)
	}
	return nil
}

// ApplyReserveForPhase sets the backup reserve to 100 outside peaks and 0
// during them. Nothing is written when the reserve already matches.
func (c *Controller) ApplyReserveForPhase(ctx context.Context, phase types.Phase) error {
	var target float64
	var reason string
	switch {
	case phase == types.PhaseNonPeak:
		target, reason = nonPeakReserve, types.ReasonNonPeakPeriod
	case phase.IsPeak():
		target, reason = peakReserve, types.ReasonPeakPeriod
	default:
		return nil
	}

	current, err := c.ess.GetReserve(ctx)
	if err != nil {
		return fmt.Errorf("failed to get battery reserve: %w", err)
	}
	if current == target {
		log.Ctx(ctx).DebugContext(ctx, "battery reserve already set", slog.Float64("reserve", current))
		return nil
	}

	if err := c.ess.SetReserve(ctx, target); err != nil {
		return fmt.Errorf("failed to set battery reserve to %v: %w", target, err)
	}
	log.Ctx(ctx).InfoContext(
		ctx,
		"set battery reserve",
		slog.Float64("previous", current),
		slog.Float64("new", target),
		slog.String("reason", reason),
	)

	action := types.ReserveAction(current, target, reason)
	if phase.IsPeak() {
		if charge, err := c.ess.GetBatteryCharge(ctx); err == nil {
			action.BatteryLevel = &charge
		} else {
			log.Ctx(ctx).DebugContext(ctx, "failed to read battery charge for action", slog.Any("error", err))
		}
	}
	return c.ledger.RecordAction(ctx, action)
}

// batteryLow reports whether any threshold matches. Thresholds are
// independent; any single match is enough.
func (c *Controller) batteryLow(charge float64, remaining int) bool {
	for _, th := range c.settings.BatteryThresholds {
		if remaining <= th.TimeRemainingMinutes && charge <= th.LevelPercent {
			return true
		}
	}
	return false
}

// MaybeConserve records a battery sample and, when the battery is low for the
// time left in the window, raises every thermostat by the configured
// increment. Setpoints above MaxConservationSetpointF are never written.
func (c *Controller) MaybeConserve(ctx context.Context, phase types.Phase) error {
	if !phase.IsPeak() {
		return nil
	}

	charge, err := c.ess.GetBatteryCharge(ctx)
	if err != nil {
		return fmt.Errorf("failed to get battery charge: %w", err)
	}
	if err := c.ledger.RecordBatteryLevel(ctx, charge); err != nil {
		return err
	}

	if live, err := c.ess.GetLiveStatus(ctx); err == nil {
		log.Ctx(ctx).DebugContext(
			ctx,
			"live status",
			slog.Float64("solarW", live.SolarPowerW),
			slog.Float64("batteryW", live.BatteryPowerW),
			slog.Float64("loadW", live.LoadPowerW),
			slog.Float64("gridW", live.GridPowerW),
			slog.String("gridStatus", live.GridStatus),
		)
	} else {
		log.Ctx(ctx).DebugContext(ctx, "failed to get live status", slog.Any("error", err))
	}

	remaining, ok := utility.PeakTimeRemaining(c.now(), c.tariff)
	if !ok || !c.batteryLow(charge, remaining) {
		return nil
	}
	log.Ctx(ctx).WarnContext(
		ctx,
		"battery low for time remaining",
		slog.Float64("charge", charge),
		slog.Int("minutesRemaining", remaining),
	)

	increment := c.settings.ThermostatIncrementF
	adjusted := 0
	var errs []error
	for _, id := range c.settings.ThermostatIDs {
		current, err := c.thermostats.GetCoolSetpoint(ctx, id)
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to get setpoint", slog.String("thermostat", id), slog.Any("error", err))
			continue
		}
		next := current + increment
		if next > MaxConservationSetpointF {
			log.Ctx(ctx).WarnContext(
				ctx,
				"skipping thermostat, setpoint would be too high",
				slog.String("thermostat", id),
				slog.Float64("setpoint", next),
			)
			continue
		}
		ok, err := c.thermostats.SetCoolSetpoint(ctx, id, next)
		if err != nil || !ok {
			log.Ctx(ctx).ErrorContext(
				ctx,
				"failed to adjust thermostat",
				slog.String("thermostat", id),
				slog.Bool("verified", ok),
				slog.Any("error", err),
			)
			continue
		}
		adjusted++
		log.Ctx(ctx).InfoContext(
			ctx,
			"adjusted thermostat",
			slog.String("thermostat", id),
			slog.Float64("previous", current),
			slog.Float64("new", next),
		)
		if err := c.ledger.RecordAction(ctx, types.SetpointAction(id, current, next, types.ReasonBatteryConservation)); err != nil {
			errs = append(errs, err)
		}
	}

	c.notifier.Notify(ctx, notify.SeverityInfo, notify.KindBatteryAdjusted, map[string]string{
		"Thermostats Adjusted": strconv.Itoa(adjusted),
		"Adjustment":           "+" + formatF(increment),
		"Reason":               "Battery conservation during peak period",
		"Battery Level":        strconv.FormatFloat(charge, 'f', -1, 64) + "%",
		"Minutes Remaining":    strconv.Itoa(remaining),
	})
	return errors.Join(errs...)
}

// MaybePrecool lowers every thermostat once per day when the forecast high
// reaches the precool threshold. Setpoints below MinPrecoolSetpointF are
// never written.
func (c *Controller) MaybePrecool(ctx context.Context) error {
	if c.ledger.Precooling(ctx) {
		log.Ctx(ctx).DebugContext(ctx, "precooling already active")
		return nil
	}

	high, err := c.forecaster.HighTemperature(ctx, c.now())
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to get forecast, skipping precool", slog.Any("error", err))
		return nil
	}
	if high < c.settings.PrecoolThresholdF {
		log.Ctx(ctx).DebugContext(
			ctx,
			"forecast below precool threshold",
			slog.Float64("high", high),
			slog.Float64("threshold", c.settings.PrecoolThresholdF),
		)
		return nil
	}

	adjustment := c.settings.PrecoolAdjustmentF
	var errs []error
	adjusted := 0
	for _, id := range c.settings.ThermostatIDs {
		current, err := c.thermostats.GetCoolSetpoint(ctx, id)
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to get setpoint", slog.String("thermostat", id), slog.Any("error", err))
			continue
		}
		next := current - adjustment
		if next < MinPrecoolSetpointF {
			log.Ctx(ctx).WarnContext(
				ctx,
				"skipping thermostat, setpoint would be too low",
				slog.String("thermostat", id),
				slog.Float64("setpoint", next),
			)
			continue
		}
		ok, err := c.thermostats.SetCoolSetpoint(ctx, id, next)
		if err != nil || !ok {
			log.Ctx(ctx).ErrorContext(
				ctx,
				"failed to precool thermostat",
				slog.String("thermostat", id),
				slog.Bool("verified", ok),
				slog.Any("error", err),
			)
			continue
		}
		log.Ctx(ctx).InfoContext(
			ctx,
			"precooled thermostat",
			slog.String("thermostat", id),
			slog.Float64("previous", current),
			slog.Float64("new", next),
		)
		adjusted++
		if err := c.ledger.RecordAction(ctx, types.SetpointAction(id, current, next, types.ReasonPrecooling)); err != nil {
			errs = append(errs, err)
		}
	}

	if err := c.ledger.SetPrecooling(ctx, true); err != nil {
		errs = append(errs, err)
	}
	c.notifier.Notify(ctx, notify.SeverityInfo, notify.KindPrecoolActivated, map[string]string{
		"Thermostats": strconv.Itoa(adjusted),
		"Adjustment":  "-" + formatF(adjustment),
		"Trigger":     "High temperature forecast (≥" + formatF(c.settings.PrecoolThresholdF) + ")",
	})
	return errors.Join(errs...)
}

// OnPeakEnd clears the precooling flag.
func (c *Controller) OnPeakEnd(ctx context.Context) error {
	if !c.ledger.Precooling(ctx) {
		return nil
	}
	if err := c.ledger.SetPrecooling(ctx, false); err != nil {
		return err
	}
	log.Ctx(ctx).InfoContext(ctx, "peak period ended, reset precooling")
	return nil
}
