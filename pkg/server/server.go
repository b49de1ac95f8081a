// Package server exposes the engine over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/gorilla/handlers"
	"github.com/levenlabs/go-lflag"

	"github.com/aaronseq12/NexusHome-IoT/pkg/controller"
	"github.com/aaronseq12/NexusHome-IoT/pkg/executor"
	"github.com/aaronseq12/NexusHome-IoT/pkg/log"
	"github.com/aaronseq12/NexusHome-IoT/pkg/metrics"
	"github.com/aaronseq12/NexusHome-IoT/pkg/types"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Engine is the set of operations served by the API.
type Engine interface {
	Now() time.Time

	Settings(ctx context.Context) (types.Settings, error)
	UpdateSettings(ctx context.Context, s types.Settings) error

	RegisterDevice(ctx context.Context, d types.Device) (types.Device, error)
	Devices(ctx context.Context) ([]types.Device, error)
	Alerts(ctx context.Context, start, end time.Time) ([]types.Alert, error)

	ForecastDemand(ctx context.Context, start time.Time, days int) (types.EnergyForecast, error)
	ForecastSolar(ctx context.Context, start time.Time, days int) (types.EnergyForecast, error)

	PredictMaintenance(ctx context.Context, deviceID string) (types.MaintenancePrediction, error)
	DetectAnomalies(ctx context.Context, deviceID string, series controller.Series) (types.AnomalyDetectionResult, error)

	OptimizeEnergyUsage(ctx context.Context, window types.TimeWindow) (types.OptimizationResult, error)
	RunOptimization(ctx context.Context, window types.TimeWindow) (types.OptimizationResult, *types.OptimizationPlan, error)
	CreatePlan(ctx context.Context, strategies []types.OptimizationStrategy) (*types.OptimizationPlan, error)
	GetPlan(ctx context.Context, planID string) (types.OptimizationPlan, error)
	ExecutePlanByID(ctx context.Context, planID string) (types.OptimizationPlan, error)

	HandleDemandResponse(ctx context.Context, event types.DemandResponseEvent) (types.DemandResponseResult, error)
}

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server handles the HTTP API.
type Server struct {
	engine Engine
	checks map[string]HealthChecker

	listenAddr string
	serverName string
	accessLog  bool
	httpServer *http.Server
}

// New returns a Server for engine.
func New(engine Engine) *Server {
	return &Server{
		engine:     engine,
		checks:     make(map[string]HealthChecker),
		listenAddr: ":8080",
		serverName: "nexushome",
	}
}

// Configured initializes the Server and registers its flags.
func Configured(engine Engine) *Server {
	srv := New(engine)
	if revision := os.Getenv("K_REVISION"); revision != "" {
		srv.serverName = revision
	}

	// get the port from PORT when running in cloud run
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	listenAddr := lflag.String("http-listen", ":"+port, "HTTP server listen address")
	accessLog := lflag.Bool("http-access-log", true, "Write an access log line per request to stdout")

	lflag.Do(func() {
		srv.listenAddr = *listenAddr
		srv.accessLog = *accessLog
	})

	return srv
}

// AddHealthCheck adds a dependency checked by /healthz.
func (s *Server) AddHealthCheck(name string, c HealthChecker) {
	s.checks[name] = c
}

func (s *Server) setupHandler() http.Handler {
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("GET /api/settings", s.handleGetSettings)
	apiMux.HandleFunc("POST /api/settings", s.handleUpdateSettings)
	apiMux.HandleFunc("GET /api/devices", s.handleListDevices)
	apiMux.HandleFunc("POST /api/devices", s.handleRegisterDevice)
	apiMux.HandleFunc("GET /api/alerts", s.handleListAlerts)
	apiMux.HandleFunc("GET /api/forecast/demand", s.handleForecastDemand)
	apiMux.HandleFunc("GET /api/forecast/solar", s.handleForecastSolar)
	apiMux.HandleFunc("GET /api/maintenance/{deviceID}", s.handlePredictMaintenance)
	apiMux.HandleFunc("POST /api/anomalies/{deviceID}", s.handleDetectAnomalies)
	apiMux.HandleFunc("POST /api/optimize", s.handleOptimize)
	apiMux.HandleFunc("POST /api/update", s.handleUpdate)
	apiMux.HandleFunc("POST /api/plans", s.handleCreatePlan)
	apiMux.HandleFunc("GET /api/plans/{planID}", s.handleGetPlan)
	apiMux.HandleFunc("POST /api/plans/{planID}/execute", s.handleExecutePlan)
	apiMux.HandleFunc("POST /api/demand-response", s.handleDemandResponse)

	mux := http.NewServeMux()
	mux.Handle("/api/", metrics.Middleware(apiMux))
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", metrics.Handler())

	var h http.Handler = gziphandler.GzipHandler(s.securityHeadersMiddleware(mux))
	if s.accessLog {
		h = handlers.CombinedLoggingHandler(os.Stdout, h)
	}
	return s.revisionMiddleware(h)
}

// Run starts the HTTP server and blocks until the context is canceled or an error occurs.
// It also handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.listenAddr,
		Handler:      s.setupHandler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		log.Ctx(ctx).InfoContext(ctx, "starting server", slog.String("addr", s.listenAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Ctx(ctx).InfoContext(ctx, "shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func writeJSONError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: msg}); err != nil {
		slog.Warn("failed to write error response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, executor.ErrPlanInFlight), errors.Is(err, types.ErrDryRun):
		return http.StatusConflict
	case errors.Is(err, types.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	ctx := r.Context()
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		log.Ctx(ctx).ErrorContext(ctx, msg, slog.Int("status", code), slog.Any("error", err))
	} else {
		log.Ctx(ctx).DebugContext(ctx, msg, slog.Int("status", code), slog.Any("error", err))
	}
	writeJSONError(w, msg+": "+err.Error(), code)
}

// decodeBody reads a JSON body into v, rejecting unknown fields.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSONError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	for name, c := range s.checks {
		if err := c.HealthCheck(ctx); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "health check failed", slog.String("check", name), slog.Any("error", err))
			writeJSONError(w, name+" unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) revisionMiddleware(next http.Handler) http.Handler {
	if s.serverName == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", s.serverName)
		next.ServeHTTP(w, r)
	})
}
