// Package gateway is the request contract between the client core and the
// services behind it: geocoding and the route-planning backend.
package gateway

import (
	"context"
	"encoding/json"

	"github.com/rubiojr/pathfinder/pkg/geo"
)

// Operation names, used in errors, logs and metrics.
const (
	OpGeocode        = "geocode"
	OpReverseGeocode = "reverse_geocode"
	OpAutocomplete   = "autocomplete"
	OpPlannerCatalog = "planner_catalog"
	OpComputeRoute   = "compute_route"
)

// Geocoder resolves places.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (geo.Place, error)
	ReverseGeocode(ctx context.Context, p geo.Point) (geo.Place, error)
	Autocomplete(ctx context.Context, text string) ([]geo.Place, error)
}

// Planner talks to the route-planning backend.
type Planner interface {
	PlannerCatalog(ctx context.Context) ([]PlannerSchema, error)
	ComputeRoute(ctx context.Context, req RouteRequest) ([]geo.Point, error)
}

// Gateway is every request the client issues. Canceling ctx aborts the
// request; the returned error then satisfies IsAborted.
type Gateway interface {
	Geocoder
	Planner
}

// RouteRequest is the compute-route input.
type RouteRequest struct {
	From    geo.Point
	To      geo.Point
	Planner string
	Options map[string]any
}

// MarshalJSON encodes points as [lat, lon] pairs.
func (r RouteRequest) MarshalJSON() ([]byte, error) {
	opts := r.Options
	if opts == nil {
		opts = map[string]any{}
	}
	return json.Marshal(struct {
		From    [2]float64     `json:"from"`
		To      [2]float64     `json:"to"`
		Planner string         `json:"planner"`
		Options map[string]any `json:"options"`
	}{r.From.Pair(), r.To.Pair(), r.Planner, opts})
}

// PlannerSchema is one planning method as advertised by the backend.
type PlannerSchema struct {
	Name        string        `json:"name"`
	DisplayName string        `json:"display_name"`
	Description string        `json:"description"`
	Fields      []FieldSchema `json:"fields"`
}

// FieldSchema is the raw description of one planner option. Which
// constraints apply depends on Type.
type FieldSchema struct {
	Type        string          `json:"type"`
	Name        string          `json:"name"`
	DisplayName string          `json:"display_name"`
	Description string          `json:"description"`
	Options     []string        `json:"options,omitempty"`
	Default     json.RawMessage `json:"default_value,omitempty"`
	Min         *float64        `json:"min_value,omitempty"`
	Max         *float64        `json:"max_value,omitempty"`
	Step        *float64        `json:"step,omitempty"`
}

// Composite takes geocoding from one source and planning from another.
type Composite struct {
	Geocoder
	Planner
}
