// Package routes keeps the computed routes shown on the map and in the
// sidebar.
package routes

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/rubiojr/pathfinder/pkg/geo"
	"github.com/rubiojr/pathfinder/pkg/logger"
	"github.com/rubiojr/pathfinder/pkg/metrics"
	"github.com/rubiojr/pathfinder/pkg/view"
)

const (
	// GoldenAngle is the hue step between consecutive route colors.
	GoldenAngle = 137.508

	NormalWeight      = 5
	HighlightedWeight = 8
)

var (
	ErrRemoved     = errors.New("route removed")
	ErrNoWaypoints = errors.New("route needs at least two waypoints")
	ErrEmptyName   = errors.New("route name is empty")
)

// Color formats a hue at the fixed route saturation and lightness.
func Color(hue float64) string {
	return fmt.Sprintf("hsl(%.3f, 75%%, 45%%)", hue)
}

// Collection owns the live routes. Routes are only added through Add and
// only dropped through Route.Remove.
type Collection struct {
	surface view.Surface
	hue     float64
	routes  map[string]*Route
	order   []string
	log     *logger.Logger
	metrics *metrics.Metrics
}

// NewCollection starts the color sequence at startHue degrees.
func NewCollection(surface view.Surface, startHue float64) *Collection {
	return &Collection{
		surface: surface,
		hue:     normalizeHue(startHue),
		routes:  make(map[string]*Route),
		log:     logger.New("routes"),
	}
}

// SetMetrics reports the collection size to m.
func (c *Collection) SetMetrics(m *metrics.Metrics) {
	c.metrics = m
	m.SetLiveRoutes(len(c.routes))
}

func normalizeHue(h float64) float64 {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	return h
}

// NextColor returns the color for the current hue and advances the hue by
// the golden angle. Removing routes never rewinds it.
func (c *Collection) NextColor() string {
	col := Color(c.hue)
	c.hue = normalizeHue(c.hue + GoldenAngle)
	return col
}

// Add creates a route with its map line and sidebar row. An empty color
// takes the next one in the sequence.
func (c *Collection) Add(name string, waypoints []geo.Point, description, color string) (*Route, error) {
	if len(waypoints) < 2 {
		return nil, ErrNoWaypoints
	}
	if color == "" {
		color = c.NextColor()
	}
	r := &Route{
		c:           c,
		id:          uuid.NewString(),
		name:        name,
		description: description,
		waypoints:   append([]geo.Point(nil), waypoints...),
		color:       color,
	}
	r.line = c.surface.Map().DrawLine(r.id, r.waypoints, r.style())
	r.line.SetPopup(r.name, r.description)
	r.row = c.surface.Sidebar().AddRouteRow(r.id, r.name, r.color)

	c.routes[r.id] = r
	c.order = append(c.order, r.id)
	c.metrics.SetLiveRoutes(len(c.routes))
	c.log.Debug("added %s %q (%d waypoints, %s)", r.id, name, len(waypoints), color)
	return r, nil
}

// Get returns a live route by id.
func (c *Collection) Get(id string) (*Route, bool) {
	r, ok := c.routes[id]
	return r, ok
}

// Routes returns the live routes in creation order.
func (c *Collection) Routes() []*Route {
	out := make([]*Route, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.routes[id])
	}
	return out
}

func (c *Collection) Len() int { return len(c.routes) }

func (c *Collection) drop(r *Route) {
	delete(c.routes, r.id)
	for i, id := range c.order {
		if id == r.id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.metrics.SetLiveRoutes(len(c.routes))
}

// Route is one computed route. It owns its line and sidebar row, so
// removing it touches nothing else.
type Route struct {
	c           *Collection
	id          string
	name        string
	description string
	waypoints   []geo.Point
	color       string
	line        view.Line
	row         view.RouteRow
	highlighted bool
	removed     bool
}

func (r *Route) ID() string          { return r.id }
func (r *Route) Name() string        { return r.name }
func (r *Route) Description() string { return r.description }
func (r *Route) Color() string       { return r.color }
func (r *Route) Highlighted() bool   { return r.highlighted }
func (r *Route) Removed() bool       { return r.removed }

func (r *Route) Waypoints() []geo.Point {
	return append([]geo.Point(nil), r.waypoints...)
}

func (r *Route) style() view.LineStyle {
	w := NormalWeight
	if r.highlighted {
		w = HighlightedWeight
	}
	return view.LineStyle{Color: r.color, Weight: w}
}

// SetHighlighted is driven by hovering either the map line or the sidebar
// row; both share this one state.
func (r *Route) SetHighlighted(on bool) error {
	if r.removed {
		return ErrRemoved
	}
	if r.highlighted == on {
		return nil
	}
	r.highlighted = on
	r.line.SetStyle(r.style())
	r.row.SetHighlighted(on)
	return nil
}

// Rename commits an edited name and refreshes the popup.
func (r *Route) Rename(name string) error {
	if r.removed {
		return ErrRemoved
	}
	name = strings.TrimSpace(name)
	if name == "" {
		r.row.SetName(r.name)
		return ErrEmptyName
	}
	r.name = name
	r.row.SetName(name)
	r.line.SetPopup(r.name, r.description)
	return nil
}

// Focus fits the map to the route and opens its popup.
func (r *Route) Focus() error {
	if r.removed {
		return ErrRemoved
	}
	r.c.surface.Map().FitBounds(geo.Bound(r.waypoints))
	r.line.OpenPopup()
	return nil
}

// Remove detaches the line and the row and drops the route.
func (r *Route) Remove() error {
	if r.removed {
		return ErrRemoved
	}
	r.removed = true
	r.line.Remove()
	r.row.Remove()
	r.c.drop(r)
	r.c.log.Debug("removed %s %q", r.id, r.name)
	return nil
}
