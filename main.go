package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"brigadas-analytics/internal/config"
	"brigadas-analytics/internal/services/hierarchy"
	"brigadas-analytics/internal/services/profiles"
)

var rootCmd = &cobra.Command{
	Use:   "brigadas",
	Short: "Hierarchical performance analytics for leaders, brigade members and mobilizers",
	Long: `Builds the leader > brigade member > mobilizer hierarchy from the configured
gateway, scores every worker and serves the results over HTTP.

Examples:
  brigadas serve                              # HTTP API on HTTP_ADDR
  brigadas stats --region Jalisco             # JSON statistics
  brigadas export --format csv --limit 20     # Top 20 workers as CSV
  brigadas profile add prod https://x.supabase.co --api-key ...`,
	SilenceUsage: true,
}

// filterFlags are the hierarchy filter options shared by stats and export
type filterFlags struct {
	regions    []string
	roles      []string
	activeOnly bool
	start      string
	end        string
	minScore   float64
	maxScore   float64
	query      string
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.regions, "region", nil, "Only leaders in these regions (repeatable)")
	cmd.Flags().StringSliceVar(&f.roles, "role", nil, "Only these roles: level1, level2, level3")
	cmd.Flags().BoolVar(&f.activeOnly, "active-only", false, "Only active workers")
	cmd.Flags().StringVar(&f.start, "start", "", "Leader creation lower bound (RFC3339)")
	cmd.Flags().StringVar(&f.end, "end", "", "Leader creation upper bound (RFC3339)")
	cmd.Flags().Float64Var(&f.minScore, "min-score", 0, "Minimum composite score")
	cmd.Flags().Float64Var(&f.maxScore, "max-score", 100, "Maximum composite score")
	cmd.Flags().StringVarP(&f.query, "query", "q", "", "Name or location search term")
}

func (f *filterFlags) filter(cmd *cobra.Command) (*hierarchy.Filter, error) {
	filter := &hierarchy.Filter{
		Regions:    f.regions,
		ActiveOnly: f.activeOnly,
		SearchTerm: f.query,
	}
	for _, r := range f.roles {
		filter.Roles = append(filter.Roles, hierarchy.Role(r))
	}

	var dr hierarchy.DateRange
	for _, b := range []struct {
		name  string
		value string
		dst   **time.Time
	}{{"start", f.start, &dr.Start}, {"end", f.end, &dr.End}} {
		if b.value == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, b.value)
		if err != nil {
			return nil, fmt.Errorf("--%s must be an RFC3339 timestamp: %w", b.name, err)
		}
		*b.dst = &t
	}
	if dr.Start != nil || dr.End != nil {
		filter.DateRange = &dr
	}

	if cmd.Flags().Changed("min-score") || cmd.Flags().Changed("max-score") {
		filter.PerformanceRange = &hierarchy.PerformanceRange{Min: f.minScore, Max: f.maxScore}
	}
	return filter, filter.Validate()
}

// withApp loads configuration, starts the app and runs fn against it.
// withHierarchy also connects the gateway and the hierarchy service.
func withApp(cmd *cobra.Command, withHierarchy bool, fn func(ctx context.Context, app *App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	app := NewApp(cfg)
	defer app.shutdown()
	if err := app.startup(cmd.Context()); err != nil {
		return err
	}
	if withHierarchy {
		if err := app.initHierarchy(cmd.Context()); err != nil {
			return err
		}
	}
	return fn(cmd.Context(), app)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the job scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, true, func(ctx context.Context, app *App) error {
			return app.serve(ctx)
		})
	},
}

var statsFilter filterFlags

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print hierarchy statistics as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := statsFilter.filter(cmd)
		if err != nil {
			return err
		}
		return withApp(cmd, true, func(ctx context.Context, app *App) error {
			stats, err := app.hierarchyService.GetHierarchyStats(ctx, filter)
			if err != nil {
				return err
			}
			return printJSON(stats)
		})
	},
}

var (
	exportFilter filterFlags
	exportFormat string
	exportLimit  int
	exportOutput string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export ranked workers as JSON or CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := exportFilter.filter(cmd)
		if err != nil {
			return err
		}
		return withApp(cmd, true, func(ctx context.Context, app *App) error {
			out, err := app.hierarchyService.ExportRankings(ctx, filter, exportFormat, exportLimit)
			if err != nil {
				return err
			}
			if exportOutput == "" {
				_, err = fmt.Fprint(os.Stdout, out)
				return err
			}
			if err := os.WriteFile(exportOutput, []byte(out), 0o644); err != nil {
				return fmt.Errorf("failed to write export: %w", err)
			}
			fmt.Fprintf(os.Stderr, "Wrote %s\n", exportOutput)
			return nil
		})
	},
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage REST gateway connection profiles",
}

var (
	profileAPIKey string
	profileOwner  string
	profileTest   bool
)

var profileAddCmd = &cobra.Command{
	Use:   "add <name> <base-url>",
	Short: "Store a connection profile; the API key is encrypted at rest",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if profileAPIKey == "" {
			profileAPIKey = os.Getenv("GATEWAY_API_KEY")
		}
		return withApp(cmd, false, func(ctx context.Context, app *App) error {
			if profileTest {
				res := app.profileService.TestConnection(ctx, profiles.TestConnectionRequest{BaseURL: args[1], APIKey: profileAPIKey})
				if !res.Success {
					return fmt.Errorf("connection test failed: %s", res.Error)
				}
			}

			profile, err := app.profileService.CreateProfile(ctx, profiles.CreateProfileRequest{
				Name:    args[0],
				Owner:   profileOwner,
				BaseURL: args[1],
				APIKey:  profileAPIKey,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "Created profile %s (%s)\n", profile.Name, profile.ID)
			return nil
		})
	},
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List connection profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, false, func(ctx context.Context, app *App) error {
			list, err := app.profileService.ListProfiles(ctx)
			if err != nil {
				return err
			}
			return printJSON(list)
		})
	},
}

var profileDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a connection profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, false, func(ctx context.Context, app *App) error {
			return app.profileService.DeleteProfile(ctx, args[0])
		})
	},
}

func init() {
	statsFilter.register(statsCmd)

	exportFilter.register(exportCmd)
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "Output format: json or csv")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 0, "Keep only the top N workers (0 = all)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Write to this file instead of stdout")

	profileAddCmd.Flags().StringVar(&profileAPIKey, "api-key", "", "API key (defaults to GATEWAY_API_KEY)")
	profileAddCmd.Flags().StringVar(&profileOwner, "owner", "", "Profile owner")
	profileAddCmd.Flags().BoolVar(&profileTest, "test", true, "Test the connection before saving")
	profileCmd.AddCommand(profileAddCmd, profileListCmd, profileDeleteCmd)

	rootCmd.AddCommand(serveCmd, statsCmd, exportCmd, profileCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
