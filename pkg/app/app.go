// Package app wires one session: every component of the client is built
// here and reached through the Context, with no package-level state.
package app

import (
	"context"
	"time"

	"github.com/rubiojr/pathfinder/pkg/catalog"
	"github.com/rubiojr/pathfinder/pkg/eventloop"
	"github.com/rubiojr/pathfinder/pkg/gateway"
	"github.com/rubiojr/pathfinder/pkg/location"
	"github.com/rubiojr/pathfinder/pkg/metrics"
	"github.com/rubiojr/pathfinder/pkg/plan"
	"github.com/rubiojr/pathfinder/pkg/routes"
	"github.com/rubiojr/pathfinder/pkg/view"
)

// Options configures a session.
type Options struct {
	Gateway   gateway.Gateway
	Surface   view.Surface
	Loop      *eventloop.Loop // nil: a new wall-clock loop
	Debounce  time.Duration
	BlurGrace time.Duration
	StartHue  float64
	Metrics   *metrics.Metrics // optional
}

// Context is the session state: the picking coordinator, both forms, the
// planner registry, the route collection and the device tracker.
type Context struct {
	Loop        *eventloop.Loop
	Gateway     gateway.Gateway
	Surface     view.Surface
	Coordinator *location.Coordinator
	From        *location.Form
	To          *location.Form
	Registry    *catalog.Registry
	Routes      *routes.Collection
	Planner     *plan.Orchestrator
	Tracker     *location.Tracker

	cancel context.CancelFunc
}

// New builds a session. Requests issued by the session are bound to ctx
// and to Close.
func New(ctx context.Context, opts Options) *Context {
	ctx, cancel := context.WithCancel(ctx)
	if opts.Metrics != nil {
		opts.Surface = countNotices(opts.Surface, opts.Metrics)
	}
	loop := opts.Loop
	if loop == nil {
		loop = eventloop.New()
	}
	c := &Context{
		Loop:        loop,
		Gateway:     opts.Gateway,
		Surface:     opts.Surface,
		Coordinator: location.NewCoordinator(),
		cancel:      cancel,
	}
	form := func(id string) *location.Form {
		return location.NewForm(location.FormOptions{
			ID:          id,
			Loop:        loop,
			Geocoder:    opts.Gateway,
			Surface:     opts.Surface,
			Coordinator: c.Coordinator,
			Context:     ctx,
			Debounce:    opts.Debounce,
			BlurGrace:   opts.BlurGrace,
			Metrics:     opts.Metrics,
		})
	}
	c.From = form(location.From)
	c.To = form(location.To)
	c.Registry = catalog.NewRegistry(ctx, loop, opts.Gateway, opts.Surface)
	c.Routes = routes.NewCollection(opts.Surface, opts.StartHue)
	c.Routes.SetMetrics(opts.Metrics)
	c.Tracker = location.NewTracker(opts.Surface)
	c.Planner = plan.New(plan.Options{
		Context:  ctx,
		Loop:     loop,
		Planner:  opts.Gateway,
		Surface:  opts.Surface,
		From:     c.From,
		To:       c.To,
		Registry: c.Registry,
		Routes:   c.Routes,
	})
	return c
}

// Start loads the planner catalog. done runs on the loop.
func (c *Context) Start(done func(error)) {
	c.Loop.Post(func() { c.Registry.Load(done) })
}

// Form returns the form with the given id, or nil.
func (c *Context) Form(id string) *location.Form {
	switch id {
	case location.From:
		return c.From
	case location.To:
		return c.To
	}
	return nil
}

// noticeCounter counts every notice raised through the session.
type noticeCounter struct {
	view.Surface
	m *metrics.Metrics
}

func countNotices(s view.Surface, m *metrics.Metrics) view.Surface {
	return noticeCounter{Surface: s, m: m}
}

func (n noticeCounter) Notify(notice view.Notice) {
	n.m.Notice(string(notice.Kind))
	n.Surface.Notify(notice)
}

// Close aborts every outstanding request.
func (c *Context) Close() {
	c.cancel()
}
