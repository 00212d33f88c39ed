package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/rubiojr/pathfinder/pkg/eventloop"
	"github.com/rubiojr/pathfinder/pkg/gateway"
	"github.com/rubiojr/pathfinder/pkg/logger"
	"github.com/rubiojr/pathfinder/pkg/notice"
	"github.com/rubiojr/pathfinder/pkg/view"
)

var (
	ErrUnknownPlanner = errors.New("unknown planner")
	ErrNotLoaded      = errors.New("planner catalog not loaded")
	ErrUnknownField   = errors.New("unknown field")
)

// Registry owns the planner panels. Only the registry changes which panel
// is visible, and the selected planner is always the visible one.
type Registry struct {
	loop    *eventloop.Loop
	ctx     context.Context
	planner gateway.Planner
	surface view.Surface
	log     *logger.Logger

	loading bool
	loaded  bool
	panels  map[string]*Panel
	order   []string
	broken  []error

	selected *Panel
}

func NewRegistry(ctx context.Context, loop *eventloop.Loop, planner gateway.Planner, surface view.Surface) *Registry {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Registry{
		loop:    loop,
		ctx:     ctx,
		planner: planner,
		surface: surface,
		log:     logger.New("catalog"),
		panels:  make(map[string]*Panel),
	}
}

// Load fetches the catalog and builds one panel per planner. It runs once;
// later calls only report. done, if set, runs on the loop when loading
// finishes.
func (r *Registry) Load(done func(error)) {
	finish := func(err error) {
		if done != nil {
			done(err)
		}
	}
	if r.loaded {
		finish(nil)
		return
	}
	if r.loading {
		finish(errors.New("planner catalog is loading"))
		return
	}
	r.loading = true

	eventloop.Call(r.loop, r.ctx, r.planner.PlannerCatalog, func(schemas []gateway.PlannerSchema, err error) {
		r.loading = false
		if err != nil {
			notice.Failure(r.surface, err, "Could not load the planning methods.")
			finish(err)
			return
		}
		r.install(schemas)
		r.loaded = true
		finish(nil)
	})
}

// install builds the panels. A planner with a bad schema is left out with a
// notice; the others still load.
func (r *Registry) install(schemas []gateway.PlannerSchema) {
	for _, s := range schemas {
		def, err := BuildDefinition(s)
		if err == nil {
			if _, dup := r.panels[def.Name]; dup {
				err = &SchemaError{Planner: def.Name, Reason: "duplicate planner"}
			}
		}
		if err != nil {
			r.broken = append(r.broken, err)
			r.log.Error("catalog: %v", err)
			notice.Validation(r.surface, fmt.Sprintf("Planner %q is unavailable: %v", s.Name, err))
			continue
		}
		r.surface.AddPlannerOption(def.Name, def.DisplayName, def.Description)
		r.panels[def.Name] = newPanel(def, r.surface)
		r.order = append(r.order, def.Name)
	}
	r.log.Info("loaded %d planner(s)", len(r.order))
}

func (r *Registry) Loaded() bool { return r.loaded }

// Broken returns the errors of the planners that could not be built.
func (r *Registry) Broken() []error {
	return append([]error(nil), r.broken...)
}

// Select shows the panel of planner name, hiding the previous one first.
// An empty name deselects.
func (r *Registry) Select(name string) error {
	if name == "" {
		if r.selected != nil {
			r.selected.setVisible(false)
			r.selected = nil
		}
		return nil
	}
	if !r.loaded {
		return ErrNotLoaded
	}
	p, ok := r.panels[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPlanner, name)
	}
	if p == r.selected {
		return nil
	}
	if r.selected != nil {
		r.selected.setVisible(false)
	}
	r.selected = p
	p.setVisible(true)
	return nil
}

// Selected returns the selected panel, or nil.
func (r *Registry) Selected() *Panel {
	return r.selected
}

// Panel returns the panel of planner name.
func (r *Registry) Panel(name string) (*Panel, bool) {
	p, ok := r.panels[name]
	return p, ok
}

// Definitions lists the loaded planners in catalog order.
func (r *Registry) Definitions() []Definition {
	out := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.panels[name].def)
	}
	return out
}
