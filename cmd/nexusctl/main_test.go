package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronseq12/NexusHome-IoT/pkg/types"
)

func run(t *testing.T, srv *httptest.Server, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := rootCmd(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--addr", srv.URL}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestClient(t *testing.T) {
	t.Run("decodes response", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/devices", r.URL.Path)
			assert.Contains(t, r.UserAgent(), "NexusHome/")
			json.NewEncoder(w).Encode([]types.Device{{ID: "d1"}})
		}))
		defer srv.Close()

		var devices []types.Device
		err := newClient(srv.URL+"/", time.Second).do(context.Background(), http.MethodGet, "/api/devices", nil, nil, &devices)
		require.NoError(t, err)
		require.Len(t, devices, 1)
		assert.Equal(t, "d1", devices[0].ID)
	})

	t.Run("error body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"device not found"}`))
		}))
		defer srv.Close()

		err := newClient(srv.URL, time.Second).do(context.Background(), http.MethodGet, "/api/maintenance/x", nil, nil, nil)
		var apiErr *apiError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusNotFound, apiErr.Status)
		assert.Equal(t, "device not found", apiErr.Message)
	})

	t.Run("plain text error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "bad gateway", http.StatusBadGateway)
		}))
		defer srv.Close()

		err := newClient(srv.URL, time.Second).do(context.Background(), http.MethodGet, "/", nil, nil, nil)
		var apiErr *apiError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, "bad gateway", apiErr.Message)
	})
}

func TestCommands(t *testing.T) {
	t.Run("forecast", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/forecast/solar", r.URL.Path)
			assert.Equal(t, "2", r.URL.Query().Get("days"))
			json.NewEncoder(w).Encode(types.EnergyForecast{})
		}))
		defer srv.Close()

		_, err := run(t, srv, "forecast", "solar", "--days", "2")
		require.NoError(t, err)
	})

	t.Run("forecast rejects unknown kind", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("unexpected request")
		}))
		defer srv.Close()

		_, err := run(t, srv, "forecast", "wind")
		assert.Error(t, err)
	})

	t.Run("demand response", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/api/demand-response", r.URL.Path)
			var event types.DemandResponseEvent
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&event))
			assert.Equal(t, "evt-1", event.EventID)
			assert.Equal(t, types.DREventLoadReduction, event.EventType)
			assert.Equal(t, 2*time.Hour, event.EndTime.Sub(event.StartTime))
			assert.Equal(t, 3000.0, event.TargetReduction)
			json.NewEncoder(w).Encode(types.DemandResponseResult{EventID: event.EventID, ReductionAchieved: true})
		}))
		defer srv.Close()

		out, err := run(t, srv, "dr", "LoadReduction", "--id", "evt-1", "--duration", "2h", "--target", "3000")
		require.NoError(t, err)
		assert.Contains(t, out, `"reductionAchieved": true`)
	})

	t.Run("plan execute", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/api/plans/p1/execute", r.URL.Path)
			json.NewEncoder(w).Encode(types.OptimizationPlan{ID: "p1"})
		}))
		defer srv.Close()

		out, err := run(t, srv, "plan", "execute", "p1")
		require.NoError(t, err)
		assert.Contains(t, out, `"p1"`)
	})

	t.Run("optimize execute uses update", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/update", r.URL.Path)
			w.Write([]byte(`{"result":{}}`))
		}))
		defer srv.Close()

		_, err := run(t, srv, "optimize", "--execute", "--horizon", "6h")
		require.NoError(t, err)
	})

	t.Run("api error is returned", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"storage unavailable"}`))
		}))
		defer srv.Close()

		_, err := run(t, srv, "settings")
		assert.ErrorContains(t, err, "storage unavailable")
	})
}
