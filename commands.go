package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rubiojr/pathfinder/pkg/app"
	"github.com/rubiojr/pathfinder/pkg/catalog"
	"github.com/rubiojr/pathfinder/pkg/config"
	"github.com/rubiojr/pathfinder/pkg/eventloop"
	"github.com/rubiojr/pathfinder/pkg/gateway"
	"github.com/rubiojr/pathfinder/pkg/geo"
	"github.com/rubiojr/pathfinder/pkg/location"
	"github.com/rubiojr/pathfinder/pkg/routes"
	"github.com/rubiojr/pathfinder/pkg/view"
	"github.com/rubiojr/pathfinder/pkg/view/scene"
)

const settlePoll = 50 * time.Millisecond

// planArgs is one headless plan.
type planArgs struct {
	From    string
	To      string
	Planner string
	Options []string // name=value
	GPX     string
	GeoJSON string
}

func planCmd(g *globalFlags) *cobra.Command {
	var a planArgs
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Plan a route from the command line",
		Long: `Resolves --from and --to like the location forms do (a "lat,lon" value is
applied as a map click), selects the planner, applies options and prints the
planned route.`,
		Example: `  pathfinder plan --from Budapest --to Vienna --planner shortest --opt network_type=walk
  pathfinder plan --from 47.4979,19.0402 --to Vienna --planner tourist_route_planner --gpx route.gpx`,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := setup(g)
			if err != nil {
				return err
			}
			defer b.close()
			return runPlan(commandContext(cmd), cmd.OutOrStdout(), b.gateway, b.cfg, a)
		},
	}
	f := cmd.Flags()
	f.StringVar(&a.From, "from", "", "start: a place to search for or lat,lon")
	f.StringVar(&a.To, "to", "", "destination: a place to search for or lat,lon")
	f.StringVarP(&a.Planner, "planner", "p", "", "planning method, as listed by the planners command")
	f.StringArrayVarP(&a.Options, "opt", "o", nil, "planner option as name=value (repeatable)")
	f.StringVar(&a.GPX, "gpx", "", "also write the route as GPX to this file")
	f.StringVar(&a.GeoJSON, "geojson", "", "also write the route as GeoJSON to this file")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("planner")
	return cmd
}

func plannersCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "planners",
		Short: "List the planning methods the backend offers",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := setup(g)
			if err != nil {
				return err
			}
			defer b.close()
			return runPlanners(commandContext(cmd), cmd.OutOrStdout(), b.gateway, b.cfg)
		},
	}
}

func configCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := setup(g)
			if err != nil {
				return err
			}
			defer b.close()
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(b.cfg); err != nil {
				return err
			}
			return enc.Close()
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file unless one exists",
		RunE: func(cmd *cobra.Command, args []string) error {
			d := resolveDirs(g.dataDir, g.configDir, g.cacheDir)
			if err := ensureDir(d.Config); err != nil {
				return err
			}
			l := config.NewLoader(d.Config)
			created, err := l.EnsureUserConfig()
			if err != nil {
				return err
			}
			if !created {
				fmt.Fprintf(cmd.OutOrStdout(), "%s already exists\n", l.UserConfigPath())
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", l.UserConfigPath())
			return nil
		},
	})
	return cmd
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// headless is a session whose loop is driven by the calling goroutine.
type headless struct {
	*app.Context
	scene *scene.Scene
}

func newHeadless(ctx context.Context, gw gateway.Gateway, cfg *config.Config) *headless {
	sc := scene.New()
	return &headless{
		Context: app.New(ctx, app.Options{
			Gateway:  gw,
			Surface:  sc,
			Loop:     eventloop.New(),
			StartHue: cfg.UI.StartHue,
		}),
		scene: sc,
	}
}

// load fetches the planner catalog.
func (h *headless) load(ctx context.Context) error {
	done := make(chan struct{})
	var loadErr error
	h.Start(func(err error) {
		loadErr = err
		close(done)
	})
	if err := h.Loop.RunUntil(ctx, done); err != nil {
		return err
	}
	return loadErr
}

// settle runs the loop until neither form has a geocode request in flight.
func (h *headless) settle(ctx context.Context) error {
	done := make(chan struct{})
	var check func()
	check = func() {
		if !h.From.Resolving() && !h.To.Resolving() {
			close(done)
			return
		}
		h.Loop.AfterFunc(settlePoll, check)
	}
	h.Loop.Post(check)
	return h.Loop.RunUntil(ctx, done)
}

// enter applies a query to a form: coordinates become a map click, anything
// else is submitted for geocoding.
func (h *headless) enter(f *location.Form, query string) {
	if p, err := geo.Parse(query); err == nil {
		if !f.Picking() {
			f.TogglePick()
		}
		h.scene.Click(p)
		return
	}
	f.Submit(query)
}

// noticeError joins the notices raised so far, or returns nil.
func (h *headless) noticeError() error {
	var msgs []string
	for _, n := range h.scene.Notices() {
		if n.Kind == view.NoticeInfo {
			continue
		}
		msgs = append(msgs, n.Message)
	}
	if len(msgs) == 0 {
		return nil
	}
	return errors.New(strings.Join(msgs, "; "))
}

func runPlan(ctx context.Context, out io.Writer, gw gateway.Gateway, cfg *config.Config, a planArgs) error {
	h := newHeadless(ctx, gw, cfg)
	defer h.Close()

	if err := h.load(ctx); err != nil {
		return fmt.Errorf("loading planners: %w", err)
	}

	var setupErr error
	if err := h.Loop.Sync(ctx, func() {
		h.enter(h.From, a.From)
		h.enter(h.To, a.To)
		setupErr = selectPlanner(h.Registry, a.Planner, a.Options)
	}); err != nil {
		return err
	}
	if setupErr != nil {
		return setupErr
	}
	if err := h.settle(ctx); err != nil {
		return err
	}

	done := make(chan struct{})
	var (
		route    *routes.Route
		planErr  error
		startErr error
	)
	if err := h.Loop.Sync(ctx, func() {
		startErr = h.Planner.Plan(func(r *routes.Route, err error) {
			route, planErr = r, err
			close(done)
		})
	}); err != nil {
		return err
	}
	if startErr != nil {
		if nerr := h.noticeError(); nerr != nil {
			return nerr
		}
		return startErr
	}
	if err := h.Loop.RunUntil(ctx, done); err != nil {
		return err
	}
	if planErr != nil {
		return fmt.Errorf("planning failed: %w", planErr)
	}

	printRoute(out, route)
	if a.GPX != "" {
		if err := h.Routes.SaveGPX(a.GPX); err != nil {
			return fmt.Errorf("writing %s: %w", a.GPX, err)
		}
	}
	if a.GeoJSON != "" {
		if err := h.Routes.SaveGeoJSON(a.GeoJSON); err != nil {
			return fmt.Errorf("writing %s: %w", a.GeoJSON, err)
		}
	}
	return nil
}

// selectPlanner selects name and applies name=value options to its panel.
func selectPlanner(reg *catalog.Registry, name string, opts []string) error {
	if err := reg.Select(name); err != nil {
		return err
	}
	panel := reg.Selected()
	for _, kv := range opts {
		field, value, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("option %q: want name=value", kv)
		}
		if _, err := panel.Set(strings.TrimSpace(field), value); err != nil {
			return err
		}
	}
	return nil
}

func printRoute(out io.Writer, r *routes.Route) {
	fmt.Fprintf(out, "%s: %s\n", r.Name(), r.Description())
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for i, p := range r.Waypoints() {
		fmt.Fprintf(tw, "  %d\t%.6f\t%.6f\n", i+1, p.Lat, p.Lon)
	}
	_ = tw.Flush()
}

func runPlanners(ctx context.Context, out io.Writer, gw gateway.Gateway, cfg *config.Config) error {
	h := newHeadless(ctx, gw, cfg)
	defer h.Close()

	if err := h.load(ctx); err != nil {
		return fmt.Errorf("loading planners: %w", err)
	}
	var defs []catalog.Definition
	var broken []error
	if err := h.Loop.Sync(ctx, func() {
		defs = h.Registry.Definitions()
		broken = h.Registry.Broken()
	}); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, d := range defs {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", d.Name, d.DisplayName, d.Description)
		for _, f := range d.Fields {
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", f.Name, describeField(f), f.DisplayName)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, err := range broken {
		fmt.Fprintf(out, "unavailable: %v\n", err)
	}
	return nil
}

func describeField(f catalog.FieldSpec) string {
	switch f.Kind {
	case catalog.KindSelect:
		return fmt.Sprintf("select [%s] default %s", strings.Join(f.Options, "|"), f.DefaultOption)
	case catalog.KindCheckbox:
		return fmt.Sprintf("checkbox default %t", f.DefaultBool)
	}
	bounds := ""
	if f.Min != nil || f.Max != nil {
		lo, hi := "", ""
		if f.Min != nil {
			lo = fmt.Sprint(*f.Min)
		}
		if f.Max != nil {
			hi = fmt.Sprint(*f.Max)
		}
		bounds = fmt.Sprintf(" %s..%s", lo, hi)
	}
	return fmt.Sprintf("%s%s default %d", f.Kind, bounds, f.DefaultInt)
}
