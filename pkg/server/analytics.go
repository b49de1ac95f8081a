package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/aaronseq12/NexusHome-IoT/pkg/controller"
	"github.com/aaronseq12/NexusHome-IoT/pkg/types"
)

type forecastFunc func(ctx context.Context, start time.Time, days int) (types.EnergyForecast, error)

// handleForecast serves a forecast starting at ?start (default the current
// hour) for ?days (default 1).
func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request, fn forecastFunc) {
	start := s.engine.Now().Truncate(time.Hour)
	if v := r.URL.Query().Get("start"); v != "" {
		var err error
		if start, err = time.Parse(time.RFC3339, v); err != nil {
			writeJSONError(w, "invalid start time: "+err.Error(), http.StatusBadRequest)
			return
		}
	}
	days := 1
	if v := r.URL.Query().Get("days"); v != "" {
		var err error
		if days, err = strconv.Atoi(v); err != nil {
			writeJSONError(w, "invalid days: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	f, err := fn(r.Context(), start, days)
	if err != nil {
		writeError(w, r, "failed to forecast", err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) handleForecastDemand(w http.ResponseWriter, r *http.Request) {
	s.handleForecast(w, r, s.engine.ForecastDemand)
}

func (s *Server) handleForecastSolar(w http.ResponseWriter, r *http.Request) {
	s.handleForecast(w, r, s.engine.ForecastSolar)
}

func (s *Server) handlePredictMaintenance(w http.ResponseWriter, r *http.Request) {
	pred, err := s.engine.PredictMaintenance(r.Context(), r.PathValue("deviceID"))
	if err != nil {
		writeError(w, r, "failed to predict maintenance", err)
		return
	}
	writeJSON(w, http.StatusOK, pred)
}

func (s *Server) handleDetectAnomalies(w http.ResponseWriter, r *http.Request) {
	var series controller.Series
	// an empty body scores the stored telemetry
	if r.ContentLength != 0 {
		if !decodeBody(w, r, &series) {
			return
		}
	}
	res, err := s.engine.DetectAnomalies(r.Context(), r.PathValue("deviceID"), series)
	if err != nil {
		writeError(w, r, "failed to detect anomalies", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
