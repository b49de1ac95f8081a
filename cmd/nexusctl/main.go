// Command nexusctl drives a running NexusHome engine over its HTTP API.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/aaronseq12/NexusHome-IoT/pkg/common"
	"github.com/aaronseq12/NexusHome-IoT/pkg/controller"
	"github.com/aaronseq12/NexusHome-IoT/pkg/types"
)

func main() {
	if err := rootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func getEnvStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func rootCmd(out io.Writer) *cobra.Command {
	var (
		addr    string
		timeout time.Duration
	)
	root := &cobra.Command{
		Use:          "nexusctl",
		Short:        "Control a NexusHome energy engine",
		SilenceUsage: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&addr, "addr", getEnvStr("NEXUSHOME_ADDR", "http://127.0.0.1:8080"), "Engine base URL")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")

	c := func() *client { return newClient(addr, timeout) }
	printJSON := func(cmd *cobra.Command, v any) error {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "nexusctl v%s\n", common.Version())
		},
	})

	// forecast
	forecastCmd := &cobra.Command{
		Use:       "forecast {demand|solar}",
		Short:     "Forecast hourly demand or solar generation",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"demand", "solar"},
	}
	days := forecastCmd.Flags().Int("days", 1, "Days to forecast")
	start := forecastCmd.Flags().String("start", "", "Forecast start (RFC3339), defaults to the current hour")
	forecastCmd.RunE = func(cmd *cobra.Command, args []string) error {
		q := url.Values{"days": {strconv.Itoa(*days)}}
		if *start != "" {
			q.Set("start", *start)
		}
		var res types.EnergyForecast
		if err := c().do(cmd.Context(), http.MethodGet, "/api/forecast/"+args[0], q, nil, &res); err != nil {
			return err
		}
		return printJSON(cmd, res)
	}
	root.AddCommand(forecastCmd)

	root.AddCommand(&cobra.Command{
		Use:   "maintenance <deviceID>",
		Short: "Predict the failure probability of a device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var res types.MaintenancePrediction
			if err := c().do(cmd.Context(), http.MethodGet, "/api/maintenance/"+url.PathEscape(args[0]), nil, nil, &res); err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	})

	anomaliesCmd := &cobra.Command{
		Use:   "anomalies <deviceID>",
		Short: "Score recent telemetry of a device for anomalies",
		Args:  cobra.ExactArgs(1),
	}
	window := anomaliesCmd.Flags().Int("window", 0, "Baseline window size, defaults to a quarter of the series")
	threshold := anomaliesCmd.Flags().Float64("threshold", 0, "Severity threshold, defaults to 0.8")
	anomaliesCmd.RunE = func(cmd *cobra.Command, args []string) error {
		var res types.AnomalyDetectionResult
		body := controller.Series{WindowSize: *window, Threshold: *threshold}
		if err := c().do(cmd.Context(), http.MethodPost, "/api/anomalies/"+url.PathEscape(args[0]), nil, body, &res); err != nil {
			return err
		}
		return printJSON(cmd, res)
	}
	root.AddCommand(anomaliesCmd)

	// optimize
	optimizeCmd := &cobra.Command{
		Use:   "optimize",
		Short: "Generate optimization strategies for a window",
	}
	horizon := optimizeCmd.Flags().Duration("horizon", 24*time.Hour, "Window length starting now")
	execute := optimizeCmd.Flags().Bool("execute", false, "Also build and execute a plan according to settings")
	optimizeCmd.RunE = func(cmd *cobra.Command, args []string) error {
		now := time.Now()
		body := map[string]time.Time{"start": now, "end": now.Add(*horizon)}
		path := "/api/optimize"
		if *execute {
			path = "/api/update"
		}
		var res json.RawMessage
		if err := c().do(cmd.Context(), http.MethodPost, path, nil, body, &res); err != nil {
			return err
		}
		return printJSON(cmd, res)
	}
	root.AddCommand(optimizeCmd)

	planCmd := &cobra.Command{Use: "plan", Short: "Inspect and execute optimization plans"}
	planCmd.AddCommand(&cobra.Command{
		Use:   "get <planID>",
		Short: "Show a plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var res types.OptimizationPlan
			if err := c().do(cmd.Context(), http.MethodGet, "/api/plans/"+url.PathEscape(args[0]), nil, nil, &res); err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	})
	planCmd.AddCommand(&cobra.Command{
		Use:   "execute <planID>",
		Short: "Execute a stored plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var res types.OptimizationPlan
			if err := c().do(cmd.Context(), http.MethodPost, "/api/plans/"+url.PathEscape(args[0])+"/execute", nil, nil, &res); err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	})
	root.AddCommand(planCmd)

	// dr
	drCmd := &cobra.Command{
		Use:   "dr <eventType>",
		Short: "Submit a demand response event",
		Args:  cobra.ExactArgs(1),
	}
	drID := drCmd.Flags().String("id", "", "Event id, generated when empty")
	drStart := drCmd.Flags().String("start", "", "Event start (RFC3339), defaults to now")
	drDuration := drCmd.Flags().Duration("duration", time.Hour, "Event duration")
	drTarget := drCmd.Flags().Float64("target", 0, "Target reduction in watts")
	drCmd.RunE = func(cmd *cobra.Command, args []string) error {
		event := types.DemandResponseEvent{
			EventID:         *drID,
			EventType:       types.DemandResponseEventType(args[0]),
			StartTime:       time.Now(),
			TargetReduction: *drTarget,
		}
		if event.EventID == "" {
			event.EventID = uuid.NewString()
		}
		if *drStart != "" {
			t, err := time.Parse(time.RFC3339, *drStart)
			if err != nil {
				return fmt.Errorf("invalid start: %w", err)
			}
			event.StartTime = t
		}
		event.EndTime = event.StartTime.Add(*drDuration)
		var res types.DemandResponseResult
		if err := c().do(cmd.Context(), http.MethodPost, "/api/demand-response", nil, event, &res); err != nil {
			return err
		}
		return printJSON(cmd, res)
	}
	root.AddCommand(drCmd)

	root.AddCommand(&cobra.Command{
		Use:   "devices",
		Short: "List registered devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var res []types.Device
			if err := c().do(cmd.Context(), http.MethodGet, "/api/devices", nil, nil, &res); err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	})

	alertsCmd := &cobra.Command{
		Use:   "alerts",
		Short: "List alerts raised in a time range",
		Args:  cobra.NoArgs,
	}
	since := alertsCmd.Flags().Duration("since", 24*time.Hour, "How far back to list")
	alertsCmd.RunE = func(cmd *cobra.Command, args []string) error {
		now := time.Now()
		q := url.Values{
			"start": {now.Add(-*since).Format(time.RFC3339)},
			"end":   {now.Format(time.RFC3339)},
		}
		var res []types.Alert
		if err := c().do(cmd.Context(), http.MethodGet, "/api/alerts", q, nil, &res); err != nil {
			return err
		}
		return printJSON(cmd, res)
	}
	root.AddCommand(alertsCmd)

	root.AddCommand(&cobra.Command{
		Use:   "settings",
		Short: "Show the current settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var res types.Settings
			if err := c().do(cmd.Context(), http.MethodGet, "/api/settings", nil, nil, &res); err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	})

	return root
}
