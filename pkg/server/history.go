package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/aaronseq12/NexusHome-IoT/pkg/types"
)

// parseTimeRange reads start and end as RFC3339, defaulting to the last 24
// hours.
func parseTimeRange(r *http.Request, now time.Time) (time.Time, time.Time, error) {
	startStr := r.URL.Query().Get("start")
	endStr := r.URL.Query().Get("end")

	if startStr == "" || endStr == "" {
		return now.Add(-24 * time.Hour), now, nil
	}

	start, err := time.Parse(time.RFC3339, startStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start time: %w", err)
	}

	end, err := time.Parse(time.RFC3339, endStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end time: %w", err)
	}

	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("start time must be before end time")
	}

	return start, end, nil
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseTimeRange(r, s.engine.Now())
	if err != nil {
		writeJSONError(w, "invalid time range: "+err.Error(), http.StatusBadRequest)
		return
	}
	alerts, err := s.engine.Alerts(r.Context(), start, end)
	if err != nil {
		writeError(w, r, "failed to get alerts", err)
		return
	}
	if alerts == nil {
		alerts = []types.Alert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.engine.Devices(r.Context())
	if err != nil {
		writeError(w, r, "failed to list devices", err)
		return
	}
	if devices == nil {
		devices = []types.Device{}
	}
	writeJSON(w, http.StatusOK, devices)
}

func (s *Server) handleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	var d types.Device
	if !decodeBody(w, r, &d) {
		return
	}
	d, err := s.engine.RegisterDevice(r.Context(), d)
	if err != nil {
		writeError(w, r, "failed to register device", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
