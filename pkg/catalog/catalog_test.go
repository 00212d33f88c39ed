package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rubiojr/pathfinder/pkg/eventloop"
	"github.com/rubiojr/pathfinder/pkg/gateway"
	"github.com/rubiojr/pathfinder/pkg/geo"
	"github.com/rubiojr/pathfinder/pkg/view"
	"github.com/rubiojr/pathfinder/pkg/view/scene"
)

func f64(v float64) *float64 { return &v }

const catalogJSON = `[
  {"name":"shortest","display_name":"Shortest path","description":"Dijkstra on the road graph","fields":[
    {"type":"select","name":"network_type","display_name":"Network","options":["drive","walk","bike"]},
    {"type":"checkbox","name":"avoid_tolls","display_name":"Avoid tolls","default_value":true}
  ]},
  {"name":"tourist_route_planner","display_name":"Tourist Route","fields":[
    {"type":"number","name":"max_dist","display_name":"Max distance","min_value":10,"max_value":10000,"default_value":500},
    {"type":"range","name":"attractions","display_name":"Attractions","min_value":1,"max_value":10,"step":1,"default_value":3}
  ]},
  {"name":"broken","fields":[{"type":"slider","name":"x"}]},
  {"name":"shortest","fields":[]}
]`

type fakePlanner struct {
	schemas []gateway.PlannerSchema
	err     error
	calls   int
}

func (p *fakePlanner) PlannerCatalog(ctx context.Context) ([]gateway.PlannerSchema, error) {
	p.calls++
	return p.schemas, p.err
}

func (p *fakePlanner) ComputeRoute(ctx context.Context, req gateway.RouteRequest) ([]geo.Point, error) {
	return nil, errors.New("not used")
}

func loadRegistry(t *testing.T) (*Registry, *scene.Scene, *fakePlanner) {
	t.Helper()
	var schemas []gateway.PlannerSchema
	require.NoError(t, json.Unmarshal([]byte(catalogJSON), &schemas))
	fp := &fakePlanner{schemas: schemas}
	s := scene.New()
	loop := eventloop.New(eventloop.WithSpawner(func(f func()) { f() }))
	r := NewRegistry(context.Background(), loop, fp, s)

	var loadErr error
	done := false
	r.Load(func(err error) { loadErr, done = err, true })
	loop.RunPending()
	require.True(t, done)
	require.NoError(t, loadErr)
	return r, s, fp
}

func TestRegistry_Load(t *testing.T) {
	r, s, fp := loadRegistry(t)

	defs := r.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "shortest", defs[0].Name)
	assert.Equal(t, "tourist_route_planner", defs[1].Name)

	broken := r.Broken()
	require.Len(t, broken, 2)
	var se *SchemaError
	require.ErrorAs(t, broken[0], &se)
	assert.Equal(t, "broken", se.Planner)
	assert.Equal(t, "x", se.Field)
	require.ErrorAs(t, broken[1], &se)
	assert.Equal(t, "duplicate planner", se.Reason)

	notices := s.Notices()
	require.Len(t, notices, 2)
	assert.Equal(t, view.NoticeValidation, notices[0].Kind)

	snap := s.Snapshot()
	assert.Len(t, snap.Planners, 2)
	assert.Len(t, snap.Panels, 2)
	assert.Empty(t, s.VisiblePanels())
	assert.Nil(t, r.Selected())

	loop := r.loop
	r.Load(nil)
	loop.RunPending()
	assert.Equal(t, 1, fp.calls, "catalog is fetched once")
}

func TestRegistry_LoadFailure(t *testing.T) {
	s := scene.New()
	fp := &fakePlanner{err: &gateway.TransportError{Op: gateway.OpPlannerCatalog, Err: errors.New("refused")}}
	loop := eventloop.New(eventloop.WithSpawner(func(f func()) { f() }))
	r := NewRegistry(context.Background(), loop, fp, s)

	var loadErr error
	r.Load(func(err error) { loadErr = err })
	loop.RunPending()
	assert.True(t, gateway.IsTransport(loadErr))
	assert.False(t, r.Loaded())
	require.Len(t, s.Notices(), 1)
	assert.Equal(t, view.NoticeCommunication, s.Notices()[0].Kind)
	assert.ErrorIs(t, r.Select("shortest"), ErrNotLoaded)
}

func TestRegistry_SelectExclusive(t *testing.T) {
	r, s, _ := loadRegistry(t)

	require.NoError(t, r.Select("shortest"))
	assert.Equal(t, []string{"shortest"}, s.VisiblePanels())

	// Record the order of visibility events: B must never show before A hides.
	events, cancel := s.Subscribe(16)
	defer cancel()
	require.NoError(t, r.Select("tourist_route_planner"))
	first := <-events
	second := <-events
	assert.Equal(t, "panel.visible", first.Type)
	assert.Equal(t, "shortest", first.ID)
	assert.Equal(t, false, first.Data)
	assert.Equal(t, "tourist_route_planner", second.ID)
	assert.Equal(t, true, second.Data)

	assert.Equal(t, []string{"tourist_route_planner"}, s.VisiblePanels())
	assert.Equal(t, "tourist_route_planner", r.Selected().Name())

	assert.ErrorIs(t, r.Select("nope"), ErrUnknownPlanner)
	assert.Equal(t, "tourist_route_planner", r.Selected().Name(), "failed select keeps the selection")

	rng := rand.New(rand.NewSource(3))
	names := []string{"shortest", "tourist_route_planner", ""}
	for i := 0; i < 100; i++ {
		name := names[rng.Intn(len(names))]
		require.NoError(t, r.Select(name))
		visible := s.VisiblePanels()
		assert.LessOrEqual(t, len(visible), 1)
		if name == "" {
			assert.Nil(t, r.Selected())
			assert.Empty(t, visible)
		} else {
			assert.Equal(t, []string{name}, visible)
			assert.True(t, r.Selected().Visible())
		}
	}
}

func TestPanel_ValuesAndDefaults(t *testing.T) {
	r, s, _ := loadRegistry(t)

	p, ok := r.Panel("shortest")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"network_type": "drive", "avoid_tolls": true}, p.Values())

	tp, _ := r.Panel("tourist_route_planner")
	assert.Equal(t, map[string]any{"max_dist": 500, "attractions": 3}, tp.Values())

	v, err := tp.Set("max_dist", 99999.0)
	require.NoError(t, err)
	assert.Equal(t, 10000, v)
	_, err = tp.Set("max_dist", "12.6")
	require.NoError(t, err)
	assert.Equal(t, 13, tp.Values()["max_dist"])
	_, err = tp.Set("max_dist", "far")
	var fe *FieldError
	assert.ErrorAs(t, err, &fe)

	_, err = p.Set("network_type", "boat")
	assert.Error(t, err)
	_, err = p.Set("avoid_tolls", "off")
	require.NoError(t, err)
	_, err = p.Set("missing", 1)
	assert.Error(t, err)

	ps, _ := s.Panel("tourist_route_planner")
	for _, f := range ps.Fields {
		if f.Name == "max_dist" {
			assert.Equal(t, 13, f.Value)
		}
	}

	tp.Reset()
	assert.Equal(t, 500, tp.Values()["max_dist"])

	b, err := json.Marshal(p.Values())
	require.NoError(t, err)
	assert.JSONEq(t, `{"network_type":"drive","avoid_tolls":false}`, string(b))
}

func TestClampProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 1000; i++ {
		lo := rng.Intn(2000) - 1000
		hi := lo + rng.Intn(2000)
		f, err := buildField("p", gateway.FieldSchema{
			Type: "range", Name: "v", Min: f64(float64(lo)), Max: f64(float64(hi)),
		})
		require.NoError(t, err)

		in := rng.Intn(6000) - 3000
		got, err := f.Coerce(in)
		require.NoError(t, err)
		v := got.(int)
		assert.GreaterOrEqual(t, v, lo)
		assert.LessOrEqual(t, v, hi)
		switch {
		case in < lo:
			assert.Equal(t, lo, v)
		case in > hi:
			assert.Equal(t, hi, v)
		default:
			assert.Equal(t, in, v)
		}
	}
}

func TestClampOrder(t *testing.T) {
	lo, hi := 10, 5
	f := FieldSpec{Kind: KindNumber, Min: &lo, Max: &hi}
	assert.Equal(t, 10, f.Clamp(7), "max first, then min")
	assert.Equal(t, 3, FieldSpec{Kind: KindNumber}.Clamp(3))
}

func TestBuildField(t *testing.T) {
	tests := []struct {
		name    string
		schema  gateway.FieldSchema
		want    any
		wantErr string
	}{
		{"select default", gateway.FieldSchema{Type: "select", Name: "n", Options: []string{"a", "b"}, Default: json.RawMessage(`"b"`)}, "b", ""},
		{"select first option", gateway.FieldSchema{Type: "select", Name: "n", Options: []string{"a", "b"}}, "a", ""},
		{"select bad default", gateway.FieldSchema{Type: "select", Name: "n", Options: []string{"a"}, Default: json.RawMessage(`"z"`)}, nil, "not an option"},
		{"select no options", gateway.FieldSchema{Type: "select", Name: "n"}, nil, "without options"},
		{"checkbox", gateway.FieldSchema{Type: "checkbox", Name: "n"}, false, ""},
		{"checkbox bad default", gateway.FieldSchema{Type: "checkbox", Name: "n", Default: json.RawMessage(`"yes"`)}, nil, "not a boolean"},
		{"number clamps default", gateway.FieldSchema{Type: "number", Name: "n", Max: f64(5), Default: json.RawMessage(`9`)}, 5, ""},
		{"number min as default", gateway.FieldSchema{Type: "number", Name: "n", Min: f64(3)}, 3, ""},
		{"range inverted bounds", gateway.FieldSchema{Type: "range", Name: "n", Min: f64(5), Max: f64(1)}, nil, "greater than max"},
		{"unknown kind", gateway.FieldSchema{Type: "color", Name: "n"}, nil, "unknown field type"},
		{"no name", gateway.FieldSchema{Type: "number"}, nil, "missing name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := buildField("p", tt.schema)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				var se *SchemaError
				assert.ErrorAs(t, err, &se)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.Default())
		})
	}
}
