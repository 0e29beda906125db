package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-critters/internal/feature"
	"github.com/joeblew999/plat-critters/internal/observability"
	"github.com/joeblew999/plat-critters/internal/server"
)

// Options defines all CLI flags and env vars for the critters server.
// Flags: --host, --port, --data-dir, --web-dir, --store, --config, --log-level
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR, ...
type Options struct {
	Host     string `doc:"Host to bind to" default:"0.0.0.0"`
	Port     int    `doc:"Port to listen on" short:"p" default:"8087"`
	DataDir  string `doc:"Directory for sighting data" default:".data"`
	WebDir   string `doc:"Serve web/ from this directory instead of the embedded copy"`
	Store    string `doc:"Feature store: memory or duckdb" enum:"memory,duckdb" default:"memory"`
	Config   string `doc:"Layer and template YAML file"`
	LogLevel string `doc:"Log level" default:"info"`
}

func newServer(ctx context.Context, opts *Options) (*server.Server, error) {
	logger := observability.InitLogger("critters", observability.ParseLevel(opts.LogLevel))
	return server.New(ctx, server.Config{
		Host:       opts.Host,
		Port:       fmt.Sprintf("%d", opts.Port),
		DataDir:    opts.DataDir,
		WebDir:     opts.WebDir,
		Store:      opts.Store,
		ConfigPath: opts.Config,
		Logger:     logger,
	})
}

func mustServer(ctx context.Context, opts *Options) *server.Server {
	srv, err := newServer(ctx, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return srv
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		ctx, cancel := context.WithCancel(context.Background())
		var httpServer *http.Server

		hooks.OnStart(func() {
			srv := mustServer(ctx, opts)
			defer srv.Close()
			go srv.Run(ctx)

			addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			fmt.Println()
			fmt.Printf("plat-critters server starting...\n")
			fmt.Printf("  Server:  %s\n", baseURL)
			fmt.Printf("  Data:    %s (%s)\n", opts.DataDir, opts.Store)
			fmt.Println()
			fmt.Printf("  Editor:  %s/editor\n", baseURL)
			fmt.Printf("  Docs:    %s/docs\n", baseURL)
			fmt.Printf("  OpenAPI: %s/openapi.json\n", baseURL)
			fmt.Printf("  Metrics: %s/metrics\n", baseURL)
			fmt.Println()

			httpServer = &http.Server{Addr: addr, Handler: srv}
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			cancel()
			if httpServer == nil {
				return
			}
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			httpServer.Shutdown(shutdownCtx)
		})
	})

	cli.Root().Use = "critters"
	cli.Root().Short = "Wildlife sighting map editor and feature service"
	cli.Root().Version = "0.1.0"

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			srv := mustServer(context.Background(), opts)
			defer srv.Close()
			spec := srv.OpenAPI()

			useYAML, _ := cmd.Flags().GetBool("yaml")

			var output []byte
			var err error
			if useYAML {
				output, err = yaml.Marshal(spec)
			} else {
				output, err = json.MarshalIndent(spec, "", "  ")
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error marshaling spec: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(output))
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	// seed subcommand: load sightings from a GeoJSON FeatureCollection
	seedCmd := &cobra.Command{
		Use:   "seed <file.geojson>",
		Short: "Import sightings from a GeoJSON FeatureCollection",
		Args:  cobra.ExactArgs(1),
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			data, err := os.ReadFile(args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			features, err := feature.FromCollection(data)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error parsing %s: %v\n", args[0], err)
				os.Exit(1)
			}

			srv := mustServer(context.Background(), opts)
			defer srv.Close()
			res, err := srv.Features().Import(context.Background(), features)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error importing: %v\n", err)
				os.Exit(1)
			}
			ok := feature.Succeeded(res.AddResults)
			fmt.Printf("Imported %d sightings from %s\n", ok, args[0])
			if skipped := len(res.AddResults) - ok; skipped > 0 {
				fmt.Fprintf(os.Stderr, "Skipped %d invalid sightings\n", skipped)
			}
		}),
	}
	cli.Root().AddCommand(seedCmd)

	// export subcommand: write all sightings as GeoJSON
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export sightings as a GeoJSON FeatureCollection",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			srv := mustServer(context.Background(), opts)
			defer srv.Close()
			all, err := srv.Features().Query(context.Background(), feature.Query{})
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error querying: %v\n", err)
				os.Exit(1)
			}
			data, err := feature.Collection(all).MarshalJSON()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error encoding: %v\n", err)
				os.Exit(1)
			}

			out, _ := cmd.Flags().GetString("output")
			if out == "" {
				fmt.Println(string(data))
				return
			}
			if err := os.WriteFile(out, data, 0644); err != nil {
				fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", out, err)
				os.Exit(1)
			}
			fmt.Printf("Exported %d sightings to %s\n", len(all), out)
		}),
	}
	exportCmd.Flags().StringP("output", "o", "", "Output file (stdout when empty)")
	cli.Root().AddCommand(exportCmd)

	cli.Run()
}
