package server

import (
	"net/http"
	"time"

	"github.com/aaronseq12/NexusHome-IoT/pkg/types"
)

const defaultWindow = 24 * time.Hour

// windowRequest is an optimization window. Missing bounds default to the
// next 24 hours.
type windowRequest struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (s *Server) readWindow(w http.ResponseWriter, r *http.Request) (types.TimeWindow, bool) {
	var req windowRequest
	if r.ContentLength != 0 {
		if !decodeBody(w, r, &req) {
			return types.TimeWindow{}, false
		}
	}
	if req.Start.IsZero() {
		req.Start = s.engine.Now()
	}
	if req.End.IsZero() {
		req.End = req.Start.Add(defaultWindow)
	}
	return types.TimeWindow{Start: req.Start, End: req.End}, true
}

func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	window, ok := s.readWindow(w, r)
	if !ok {
		return
	}
	res, err := s.engine.OptimizeEnergyUsage(r.Context(), window)
	if err != nil {
		writeError(w, r, "failed to optimize", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleUpdate runs the same optimization cycle as the scheduler, for
// deployments driven by an external cron.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	window, ok := s.readWindow(w, r)
	if !ok {
		return
	}
	res, plan, err := s.engine.RunOptimization(r.Context(), window)
	if err != nil {
		writeError(w, r, "failed to run optimization", err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Result types.OptimizationResult `json:"result"`
		Plan   *types.OptimizationPlan  `json:"plan,omitempty"`
	}{res, plan})
}

func (s *Server) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Strategies []types.OptimizationStrategy `json:"strategies"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	plan, err := s.engine.CreatePlan(r.Context(), req.Strategies)
	if err != nil {
		writeError(w, r, "failed to create plan", err)
		return
	}
	writeJSON(w, http.StatusCreated, plan)
}

func (s *Server) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := s.engine.GetPlan(r.Context(), r.PathValue("planID"))
	if err != nil {
		writeError(w, r, "failed to get plan", err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (s *Server) handleExecutePlan(w http.ResponseWriter, r *http.Request) {
	plan, err := s.engine.ExecutePlanByID(r.Context(), r.PathValue("planID"))
	if err != nil {
		writeError(w, r, "failed to execute plan", err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (s *Server) handleDemandResponse(w http.ResponseWriter, r *http.Request) {
	var event types.DemandResponseEvent
	if !decodeBody(w, r, &event) {
		return
	}
	res, err := s.engine.HandleDemandResponse(r.Context(), event)
	if err != nil {
		writeError(w, r, "failed to handle demand response event", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
