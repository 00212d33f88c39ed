package plan

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rubiojr/pathfinder/pkg/catalog"
	"github.com/rubiojr/pathfinder/pkg/eventloop"
	"github.com/rubiojr/pathfinder/pkg/gateway"
	"github.com/rubiojr/pathfinder/pkg/geo"
	"github.com/rubiojr/pathfinder/pkg/location"
	"github.com/rubiojr/pathfinder/pkg/routes"
	"github.com/rubiojr/pathfinder/pkg/view"
	"github.com/rubiojr/pathfinder/pkg/view/scene"
)

type fakeBackend struct {
	requests []gateway.RouteRequest
	fail     error
}

func (b *fakeBackend) Geocode(ctx context.Context, q string) (geo.Place, error) {
	if q == "Vienna" {
		return geo.Place{Name: "Wien", Point: geo.Pt(48.21, 16.37)}, nil
	}
	return geo.Place{}, &gateway.BackendError{Op: gateway.OpGeocode, Status: "not_found"}
}

func (b *fakeBackend) ReverseGeocode(ctx context.Context, p geo.Point) (geo.Place, error) {
	return geo.Place{Name: "Budapest", Point: p}, nil
}

func (b *fakeBackend) Autocomplete(ctx context.Context, text string) ([]geo.Place, error) {
	return nil, nil
}

func (b *fakeBackend) PlannerCatalog(ctx context.Context) ([]gateway.PlannerSchema, error) {
	return []gateway.PlannerSchema{{
		Name: "shortest", DisplayName: "Shortest path",
		Fields: []gateway.FieldSchema{
			{Type: "select", Name: "network_type", Options: []string{"drive", "walk"}},
			{Type: "number", Name: "max_dist", Default: json.RawMessage(`500`)},
		},
	}}, nil
}

func (b *fakeBackend) ComputeRoute(ctx context.Context, req gateway.RouteRequest) ([]geo.Point, error) {
	b.requests = append(b.requests, req)
	if b.fail != nil {
		return nil, b.fail
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return []geo.Point{req.From, geo.Pt(47.7, 17.6), req.To}, nil
}

type fixture struct {
	loop    *eventloop.Loop
	spawner *eventloop.ManualSpawner
	scene   *scene.Scene
	backend *fakeBackend
	from    *location.Form
	to      *location.Form
	reg     *catalog.Registry
	routes  *routes.Collection
	orch    *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fx := &fixture{
		spawner: eventloop.NewManualSpawner(),
		scene:   scene.New(),
		backend: &fakeBackend{},
	}
	fx.loop = eventloop.New(eventloop.WithClock(eventloop.NewManualClock()), eventloop.WithSpawner(fx.spawner.Spawn))
	coord := location.NewCoordinator()
	newForm := func(id string) *location.Form {
		return location.NewForm(location.FormOptions{
			ID: id, Loop: fx.loop, Geocoder: fx.backend, Surface: fx.scene, Coordinator: coord,
		})
	}
	fx.from, fx.to = newForm(location.From), newForm(location.To)
	fx.reg = catalog.NewRegistry(context.Background(), fx.loop, fx.backend, fx.scene)
	fx.routes = routes.NewCollection(fx.scene, 0)
	fx.orch = New(Options{
		Loop: fx.loop, Planner: fx.backend, Surface: fx.scene,
		From: fx.from, To: fx.to, Registry: fx.reg, Routes: fx.routes,
	})
	fx.reg.Load(nil)
	fx.settle()
	require.True(t, fx.reg.Loaded())
	return fx
}

func (fx *fixture) settle() {
	fx.spawner.RunAll()
	fx.loop.RunPending()
}

func TestPlan_Scenario(t *testing.T) {
	fx := newFixture(t)

	fx.from.TogglePick()
	fx.scene.Click(geo.Pt(47.50, 19.04))
	fx.to.Submit("Vienna")
	require.NoError(t, fx.reg.Select("shortest"))
	fx.settle()

	var got *routes.Route
	require.NoError(t, fx.orch.Plan(func(r *routes.Route, err error) {
		require.NoError(t, err)
		got = r
	}))
	assert.False(t, fx.scene.PlanEnabled(), "disabled while the request runs")
	assert.ErrorIs(t, fx.orch.Plan(nil), ErrBusy)
	fx.settle()

	require.Len(t, fx.backend.requests, 1)
	assert.Equal(t, gateway.RouteRequest{
		From:    geo.Pt(47.50, 19.04),
		To:      geo.Pt(48.21, 16.37),
		Planner: "shortest",
		Options: map[string]any{"network_type": "drive", "max_dist": 500},
	}, fx.backend.requests[0])

	require.NotNil(t, got)
	assert.Equal(t, 1, fx.routes.Len())
	assert.Equal(t, "Route 1", got.Name())
	assert.Equal(t, "Budapest → Wien (Shortest path)", got.Description())
	assert.True(t, fx.scene.PlanEnabled())

	require.NoError(t, fx.orch.Plan(nil))
	fx.settle()
	assert.Equal(t, 2, fx.routes.Len())
	assert.Equal(t, "Route 2", fx.routes.Routes()[1].Name())
}

func TestPlan_MissingDestination(t *testing.T) {
	fx := newFixture(t)
	fx.from.TogglePick()
	fx.scene.Click(geo.Pt(47.50, 19.04))
	require.NoError(t, fx.reg.Select("shortest"))
	fx.settle()

	err := fx.orch.Plan(nil)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, 0, fx.spawner.Pending())
	fx.settle()

	assert.Empty(t, fx.backend.requests)
	notices := fx.scene.Notices()
	require.Len(t, notices, 1)
	assert.Equal(t, view.NoticeValidation, notices[0].Kind)
	assert.True(t, fx.scene.PlanEnabled())
	assert.False(t, fx.orch.Busy())
}

func TestPlan_Validation(t *testing.T) {
	fx := newFixture(t)
	var ve *ValidationError

	require.ErrorAs(t, fx.orch.Plan(nil), &ve)
	assert.Contains(t, ve.Message, "starting point")

	fx.from.Submit("Vienna")
	fx.to.Submit("Vienna")
	fx.settle()
	require.ErrorAs(t, fx.orch.Plan(nil), &ve)
	assert.Contains(t, ve.Message, "planning method")
	assert.Len(t, fx.scene.Notices(), 2)
	assert.Empty(t, fx.backend.requests)
}

func TestPlan_FailureReenables(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		notices int
	}{
		{"backend", &gateway.BackendError{Op: gateway.OpComputeRoute, Status: "error", Message: "no path"}, 1},
		{"transport", &gateway.TransportError{Op: gateway.OpComputeRoute, Err: errors.New("refused")}, 1},
		{"aborted", gateway.ErrAborted, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t)
			fx.backend.fail = tt.err
			fx.from.Submit("Vienna")
			fx.to.Submit("Vienna")
			require.NoError(t, fx.reg.Select("shortest"))
			fx.settle()

			var gotErr error
			require.NoError(t, fx.orch.Plan(func(r *routes.Route, err error) {
				assert.Nil(t, r)
				gotErr = err
			}))
			fx.settle()

			assert.ErrorIs(t, gotErr, tt.err)
			assert.True(t, fx.scene.PlanEnabled())
			assert.False(t, fx.orch.Busy())
			assert.Equal(t, 0, fx.routes.Len())
			assert.Len(t, fx.scene.Notices(), tt.notices)
		})
	}
}
