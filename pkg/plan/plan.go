// Package plan runs the plan use case: check that both locations and a
// planner are chosen, request the route and add it to the collection.
package plan

import (
	"context"
	"errors"
	"fmt"

	"github.com/rubiojr/pathfinder/pkg/catalog"
	"github.com/rubiojr/pathfinder/pkg/eventloop"
	"github.com/rubiojr/pathfinder/pkg/gateway"
	"github.com/rubiojr/pathfinder/pkg/geo"
	"github.com/rubiojr/pathfinder/pkg/location"
	"github.com/rubiojr/pathfinder/pkg/logger"
	"github.com/rubiojr/pathfinder/pkg/notice"
	"github.com/rubiojr/pathfinder/pkg/routes"
	"github.com/rubiojr/pathfinder/pkg/view"
)

// ErrBusy is returned while a plan request is outstanding.
var ErrBusy = errors.New("a route is already being planned")

// ValidationError is a plan attempt with missing input. No request is sent.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Orchestrator plans routes from the current session state.
type Orchestrator struct {
	loop     *eventloop.Loop
	ctx      context.Context
	planner  gateway.Planner
	surface  view.Surface
	from     *location.Form
	to       *location.Form
	registry *catalog.Registry
	routes   *routes.Collection
	log      *logger.Logger

	busy    bool
	planned int
}

// Options holds what an Orchestrator reads and writes.
type Options struct {
	Context  context.Context
	Loop     *eventloop.Loop
	Planner  gateway.Planner
	Surface  view.Surface
	From     *location.Form
	To       *location.Form
	Registry *catalog.Registry
	Routes   *routes.Collection
}

func New(opts Options) *Orchestrator {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	return &Orchestrator{
		loop:     opts.Loop,
		ctx:      ctx,
		planner:  opts.Planner,
		surface:  opts.Surface,
		from:     opts.From,
		to:       opts.To,
		registry: opts.Registry,
		routes:   opts.Routes,
		log:      logger.New("plan"),
	}
}

// Busy reports whether a request is outstanding.
func (o *Orchestrator) Busy() bool { return o.busy }

// Plan validates the input and issues the compute-route request. Validation
// failures raise a notice and return a *ValidationError; nothing is sent.
// done, if set, runs on the loop with the new route or the request error.
func (o *Orchestrator) Plan(done func(*routes.Route, error)) error {
	if o.busy {
		return ErrBusy
	}
	req, panel, err := o.request()
	if err != nil {
		notice.Validation(o.surface, err.Error())
		return err
	}
	from, to := o.from.Selection().Name, o.to.Selection().Name

	o.busy = true
	o.surface.SetPlanEnabled(false)
	o.log.Debug("planning %s → %s with %s %v", req.From, req.To, req.Planner, req.Options)

	eventloop.Call(o.loop, o.ctx, func(ctx context.Context) ([]geo.Point, error) {
		return o.planner.ComputeRoute(ctx, req)
	}, func(waypoints []geo.Point, err error) {
		defer func() {
			o.busy = false
			o.surface.SetPlanEnabled(true)
		}()
		r, err := o.complete(waypoints, err, from, to, panel.Definition().DisplayName)
		if done != nil {
			done(r, err)
		}
	})
	return nil
}

func (o *Orchestrator) request() (gateway.RouteRequest, *catalog.Panel, error) {
	from, to := o.from.Selection(), o.to.Selection()
	if !from.Chosen() {
		return gateway.RouteRequest{}, nil, &ValidationError{Message: "Please choose a starting point."}
	}
	if !to.Chosen() {
		return gateway.RouteRequest{}, nil, &ValidationError{Message: "Please choose a destination."}
	}
	panel := o.registry.Selected()
	if panel == nil {
		return gateway.RouteRequest{}, nil, &ValidationError{Message: "Please choose a planning method."}
	}
	return gateway.RouteRequest{
		From:    *from.Point,
		To:      *to.Point,
		Planner: panel.Name(),
		Options: panel.Values(),
	}, panel, nil
}

func (o *Orchestrator) complete(waypoints []geo.Point, err error, from, to, planner string) (*routes.Route, error) {
	if err != nil {
		notice.Failure(o.surface, err, "Could not plan a route.")
		return nil, err
	}
	name := fmt.Sprintf("Route %d", o.planned+1)
	desc := fmt.Sprintf("%s → %s (%s)", from, to, planner)
	r, err := o.routes.Add(name, waypoints, desc, "")
	if err != nil {
		o.log.Error("backend returned an unusable route: %v", err)
		notice.Show(o.surface, view.NoticeBackend, "Could not plan a route.")
		return nil, err
	}
	o.planned++
	o.log.Info("%s: %s (%d waypoints)", name, desc, len(waypoints))
	return r, nil
}
