package gateway

import (
	"context"
	"time"

	"github.com/rubiojr/pathfinder/pkg/geo"
	"github.com/rubiojr/pathfinder/pkg/logger"
	"github.com/rubiojr/pathfinder/pkg/metrics"
)

// Instrument wraps g so that every request is counted and timed in m and
// logged at debug level.
func Instrument(g Gateway, m *metrics.Metrics) Gateway {
	return &instrumented{next: g, m: m, log: logger.New("gateway")}
}

type instrumented struct {
	next Gateway
	m    *metrics.Metrics
	log  *logger.Logger
}

func (i *instrumented) observe(op string, start time.Time, err error) {
	d := time.Since(start)
	class := ""
	switch {
	case err == nil:
		i.log.Debug("%s ok in %s", op, d.Round(time.Millisecond))
	case IsAborted(err):
		class = "aborted"
		i.log.Debug("%s aborted", op)
	case IsBackend(err):
		class = "backend"
		i.log.Debug("%s failed: %v", op, err)
	default:
		class = "transport"
		i.log.Debug("%s failed: %v", op, err)
	}
	i.m.Request(op, d, class)
}

func (i *instrumented) Geocode(ctx context.Context, query string) (p geo.Place, err error) {
	defer func(start time.Time) { i.observe(OpGeocode, start, err) }(time.Now())
	return i.next.Geocode(ctx, query)
}

func (i *instrumented) ReverseGeocode(ctx context.Context, pt geo.Point) (p geo.Place, err error) {
	defer func(start time.Time) { i.observe(OpReverseGeocode, start, err) }(time.Now())
	return i.next.ReverseGeocode(ctx, pt)
}

func (i *instrumented) Autocomplete(ctx context.Context, text string) (ps []geo.Place, err error) {
	defer func(start time.Time) { i.observe(OpAutocomplete, start, err) }(time.Now())
	return i.next.Autocomplete(ctx, text)
}

func (i *instrumented) PlannerCatalog(ctx context.Context) (s []PlannerSchema, err error) {
	defer func(start time.Time) { i.observe(OpPlannerCatalog, start, err) }(time.Now())
	return i.next.PlannerCatalog(ctx)
}

func (i *instrumented) ComputeRoute(ctx context.Context, req RouteRequest) (r []geo.Point, err error) {
	defer func(start time.Time) { i.observe(OpComputeRoute, start, err) }(time.Now())
	return i.next.ComputeRoute(ctx, req)
}
