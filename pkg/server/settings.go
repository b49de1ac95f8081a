package server

import (
	"net/http"

	"github.com/aaronseq12/NexusHome-IoT/pkg/tariff"
	"github.com/aaronseq12/NexusHome-IoT/pkg/types"
)

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.engine.Settings(r.Context())
	if err != nil {
		writeError(w, r, "failed to get settings", err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var settings types.Settings
	if !decodeBody(w, r, &settings) {
		return
	}

	if settings.BaseDollarsPerKWH < 0 {
		writeJSONError(w, "base price cannot be negative", http.StatusBadRequest)
		return
	}
	if settings.SolarPanelEfficiency < 0 || settings.SolarPanelEfficiency > 1 {
		writeJSONError(w, "solar panel efficiency must be between 0 and 1", http.StatusBadRequest)
		return
	}
	if settings.SolarPanelAreaM2 < 0 {
		writeJSONError(w, "solar panel area cannot be negative", http.StatusBadRequest)
		return
	}
	if p := settings.Policy; p.MaintenanceRecordThreshold < 0 || p.MaintenanceRecordThreshold > 1 || p.AlertThreshold < 0 || p.AlertThreshold > 1 {
		writeJSONError(w, "maintenance thresholds must be between 0 and 1", http.StatusBadRequest)
		return
	}
	// catch bad periods and locations before they are stored
	if _, err := tariff.New(settings); err != nil {
		writeError(w, r, "invalid tariff", err)
		return
	}

	if err := s.engine.UpdateSettings(r.Context(), settings); err != nil {
		writeError(w, r, "failed to update settings", err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}
