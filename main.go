// Package main is the pathfinder binary: the route-planning client core
// behind a local HTTP API that the map frontend talks to, plus headless
// commands driving the same core from a terminal.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/rubiojr/pathfinder/pkg/app"
	"github.com/rubiojr/pathfinder/pkg/config"
	"github.com/rubiojr/pathfinder/pkg/eventloop"
	"github.com/rubiojr/pathfinder/pkg/gateway"
	"github.com/rubiojr/pathfinder/pkg/geoclue"
	"github.com/rubiojr/pathfinder/pkg/logger"
	"github.com/rubiojr/pathfinder/pkg/metrics"
	"github.com/rubiojr/pathfinder/pkg/view/scene"
)

const appName = "pathfinder"

// Version is overridden at link time.
var Version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every command.
type globalFlags struct {
	configPath string
	dataDir    string
	configDir  string
	cacheDir   string
	debug      bool
}

func rootCmd() *cobra.Command {
	g := &globalFlags{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Route-planning client",
		Long: `Pathfinder lets you choose a start and a destination, pick a planning
method and its options, and draws the routes a planning backend computes.

Without a subcommand it serves the local API the map frontend talks to.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if err := godotenv.Load(); err != nil {
				logger.Debug("No .env file found, using system environment")
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), g)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", "", "config file path (YAML)")
	pf.BoolVar(&g.debug, "debug", false, "enable debug logging")
	pf.StringVar(&g.dataDir, "data-dir", "", "custom data directory (overrides XDG_DATA_HOME)")
	pf.StringVar(&g.configDir, "config-dir", "", "custom config directory (overrides XDG_CONFIG_HOME)")
	pf.StringVar(&g.cacheDir, "cache-dir", "", "custom cache directory (overrides XDG_CACHE_HOME)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Serve the local API (default)",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServe(cmd.Context(), g)
			},
		},
		planCmd(g),
		plannersCmd(g),
		configCmd(g),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (%s %s/%s)\n", appName, Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
			},
		},
	)
	return cmd
}

// bootstrap is what every command needs: directories, configuration, the
// request gateway and the collectors it reports into.
type bootstrap struct {
	dirs    dirs
	cfg     *config.Config
	metrics *metrics.Metrics
	gateway gateway.Gateway
	closers []func() error
}

func setup(g *globalFlags) (*bootstrap, error) {
	d := resolveDirs(g.dataDir, g.configDir, g.cacheDir)
	if err := d.ensure(); err != nil {
		logger.Error("Failed to create application directories: %v", err)
	}

	cfg, err := config.NewLoader(d.Config).Load(g.configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	logger.SetDebug(g.debug || cfg.Debug)

	b := &bootstrap{dirs: d, cfg: cfg, metrics: metrics.New()}
	b.gateway = buildGateway(cfg, d.Cache, b.metrics, func(fn func() error) { b.closers = append(b.closers, fn) })
	return b, nil
}

func (b *bootstrap) close() {
	for _, fn := range b.closers {
		if err := fn(); err != nil {
			logger.Error("close: %v", err)
		}
	}
}

// buildGateway wires the backend client and, when configured, a Nominatim
// geocoder in front of the geocoding operations. Every request is
// instrumented into m.
func buildGateway(cfg *config.Config, cacheDir string, m *metrics.Metrics, onClose func(func() error)) gateway.Gateway {
	backend := gateway.NewHTTPClient(cfg.Backend.URL, cfg.Backend.Timeout)
	var gw gateway.Gateway = backend

	if cfg.Geocoder.Provider == config.GeocoderNominatim {
		var cache *gateway.Cache
		if cfg.Geocoder.Cache {
			path := filepath.Join(cacheDir, "geocode.sqlite")
			if fileExists(path) {
				logger.Debug("Reusing geocode cache %s", path)
			}
			c, err := gateway.OpenCache(path)
			if err != nil {
				logger.Error("Geocode cache disabled: %v", err)
			} else {
				cache = c
				onClose(c.Close)
			}
		}
		nom := gateway.NewNominatim(gateway.NominatimOptions{
			Server:  cfg.Geocoder.NominatimServer,
			Limit:   cfg.Geocoder.Limit,
			Retries: cfg.Geocoder.Retries,
			Cache:   cache,
		})
		gw = gateway.Composite{Geocoder: nom, Planner: backend}
		logger.Debug("Geocoding through %s", cfg.Geocoder.NominatimServer)
	}
	return gateway.Instrument(gw, m)
}

func runServe(ctx context.Context, g *globalFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	b, err := setup(g)
	if err != nil {
		return err
	}
	defer b.close()
	cfg := b.cfg

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sc := scene.New()
	loop := eventloop.New()
	session := app.New(ctx, app.Options{
		Gateway:   b.gateway,
		Surface:   sc,
		Loop:      loop,
		Debounce:  cfg.UI.Debounce,
		BlurGrace: cfg.UI.BlurGrace,
		StartHue:  cfg.UI.StartHue,
		Metrics:   b.metrics,
	})
	defer session.Close()

	session.Start(func(err error) {
		if err != nil {
			logger.Error("Planner catalog unavailable: %v", err)
		}
	})

	if cfg.Location.GeoClue {
		startLocation(ctx, loop, session, cfg.Location.DesktopID)
	}

	reg := prometheus.NewRegistry()
	if err := b.metrics.Register(reg); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	mux := http.NewServeMux()
	RegisterAPI(mux, session, sc, reg)

	srv := &http.Server{Addr: cfg.API.Listen, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Local API server error on %s: %v", cfg.API.Listen, err)
			stop()
		}
	}()
	logger.Info("Local API: http://%s/api/state", cfg.API.Listen)

	err = loop.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		logger.Error("Local API shutdown: %v", serr)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// startLocation feeds GeoClue position reports into the session tracker.
func startLocation(ctx context.Context, loop *eventloop.Loop, session *app.Context, desktopID string) {
	if err := geoclue.EnsureDesktopFile(xdgDataDir(), desktopID); err != nil {
		logger.Error("Failed to write GeoClue desktop file: %v", err)
	}
	src := geoclue.New(desktopID,
		func(f geoclue.Fix) {
			loop.Post(func() { session.Tracker.Found(f.Point, f.Accuracy) })
		},
		func(reason string) {
			loop.Post(func() { session.Tracker.Denied(reason) })
		},
	)
	go src.Run(ctx)
}
