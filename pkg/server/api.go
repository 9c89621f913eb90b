package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/peakguard/peakguard/pkg/log"
	"github.com/peakguard/peakguard/pkg/storage"
	"github.com/peakguard/peakguard/pkg/types"
)

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.ledger.Report(r.Context()))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	date := r.URL.Query().Get("date")
	if date == "" {
		dates, err := s.storage.ListDailySummaryDates(ctx)
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to list summaries", slog.Any("error", err))
			writeJSONError(w, "failed to list history", http.StatusInternalServerError)
			return
		}
		if dates == nil {
			dates = []string{}
		}
		writeJSON(w, struct {
			Dates []string `json:"dates"`
		}{Dates: dates})
		return
	}

	if _, err := time.Parse(time.DateOnly, date); err != nil {
		writeJSONError(w, "invalid date", http.StatusBadRequest)
		return
	}
	summary, err := s.storage.GetDailySummary(ctx, date)
	if err != nil {
		if errors.Is(err, storage.ErrSummaryNotFound) {
			writeJSONError(w, "not found", http.StatusNotFound)
			return
		}
		log.Ctx(ctx).ErrorContext(ctx, "failed to get summary", slog.String("date", date), slog.Any("error", err))
		writeJSONError(w, "failed to get history", http.StatusInternalServerError)
		return
	}
	writeJSON(w, summary)
}

type deviceStatus struct {
	Battery     *types.LiveStatus         `json:"battery,omitempty"`
	Reserve     *float64                  `json:"reserve,omitempty"`
	Thermostats []types.ThermostatReading `json:"thermostats"`
	Errors      []string                  `json:"errors,omitempty"`
}

// handleDevices returns live readings. Partial failures are reported in
// errors next to whatever could be read.
func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp := deviceStatus{Thermostats: []types.ThermostatReading{}}
	if live, err := s.ess.GetLiveStatus(ctx); err != nil {
		resp.Errors = append(resp.Errors, "battery: "+err.Error())
	} else {
		resp.Battery = &live
	}
	if reserve, err := s.ess.GetReserve(ctx); err != nil {
		resp.Errors = append(resp.Errors, "reserve: "+err.Error())
	} else {
		resp.Reserve = &reserve
	}
	for _, id := range s.settings.ThermostatIDs {
		reading, err := s.thermostats.GetReading(ctx, id)
		if err != nil {
			resp.Errors = append(resp.Errors, "thermostat "+id+": "+err.Error())
			continue
		}
		resp.Thermostats = append(resp.Thermostats, reading)
	}
	if len(resp.Errors) > 0 {
		log.Ctx(ctx).WarnContext(ctx, "failed to read some devices", slog.Any("errors", resp.Errors))
	}
	writeJSON(w, resp)
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	location, err := s.finalize(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrSummaryExists) {
			writeJSONError(w, "day already finalized", http.StatusConflict)
			return
		}
		writeJSONError(w, "failed to finalize day", http.StatusInternalServerError)
		return
	}
	writeJSON(w, struct {
		Location string `json:"location"`
	}{Location: location})
}
