package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rubiojr/pathfinder/pkg/app"
	"github.com/rubiojr/pathfinder/pkg/eventloop"
	"github.com/rubiojr/pathfinder/pkg/gateway"
	"github.com/rubiojr/pathfinder/pkg/metrics"
	"github.com/rubiojr/pathfinder/pkg/routes"
	"github.com/rubiojr/pathfinder/pkg/view/scene"
)

// fakeBackend is a planning backend with two planners that records every
// plan request.
type fakeBackend struct {
	mu    sync.Mutex
	plans []map[string]any
}

func (b *fakeBackend) lastPlan() map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.plans) == 0 {
		return nil
	}
	return b.plans[len(b.plans)-1]
}

func newFakeBackend(t *testing.T) (*fakeBackend, string) {
	t.Helper()
	b := &fakeBackend{}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/planners", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok","planners":[
			{"name":"shortest","display_name":"Shortest path","description":"fewest meters","fields":[
				{"type":"select","name":"network_type","display_name":"Network","options":["drive","walk"]},
				{"type":"checkbox","name":"avoid_highways","default_value":false}]},
			{"name":"tourist_route_planner","display_name":"Tourist Route","fields":[
				{"type":"range","name":"max_dist","min_value":10,"max_value":10000,"default_value":500}]}]}`))
	})
	mux.HandleFunc("GET /api/reverse_geocode", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok","lat":47.5,"lon":19.04,"name":"Budapest"}`))
	})
	mux.HandleFunc("GET /api/geocode", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") != "Vienna" {
			_, _ = w.Write([]byte(`{"status":"not_found","message":"nothing found"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok","lat":48.21,"lon":16.37,"name":"Wien"}`))
	})
	mux.HandleFunc("GET /api/autocomplete", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok","results":[{"name":"Vienna","lat":48.21,"lon":16.37}]}`))
	})
	mux.HandleFunc("POST /api/plan", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		b.mu.Lock()
		b.plans = append(b.plans, body)
		b.mu.Unlock()
		_, _ = w.Write([]byte(`{"status":"ok","route":[[47.5,19.04],[47.9,17.9],[48.21,16.37]]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return b, srv.URL
}

type apiHarness struct {
	t       *testing.T
	url     string
	backend *fakeBackend
	scene   *scene.Scene
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	backend, backendURL := newFakeBackend(t)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	sc := scene.New()
	loop := eventloop.New()
	m := metrics.New()
	session := app.New(ctx, app.Options{
		Gateway: gateway.Instrument(gateway.NewHTTPClient(backendURL, 5*time.Second), m),
		Surface: sc,
		Loop:    loop,
		Metrics: m,
	})
	t.Cleanup(session.Close)
	go func() { _ = loop.Run(ctx) }()
	require.Eventually(t, loop.Running, time.Second, 5*time.Millisecond)

	loaded := make(chan error, 1)
	session.Start(func(err error) { loaded <- err })
	select {
	case err := <-loaded:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("planner catalog did not load")
	}

	reg := prometheus.NewRegistry()
	require.NoError(t, m.Register(reg))
	mux := http.NewServeMux()
	RegisterAPI(mux, session, sc, reg)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &apiHarness{t: t, url: srv.URL, backend: backend, scene: sc}
}

func (h *apiHarness) do(method, path string, body any) *http.Response {
	h.t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(h.t, err)
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, h.url+path, rdr)
	require.NoError(h.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(h.t, err)
	h.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// post expects 200 and decodes the returned state.
func (h *apiHarness) post(path string, body any) app.Snapshot {
	h.t.Helper()
	resp := h.do(http.MethodPost, path, body)
	require.Equal(h.t, http.StatusOK, resp.StatusCode, "POST %s", path)
	var s app.Snapshot
	require.NoError(h.t, json.NewDecoder(resp.Body).Decode(&s))
	return s
}

func (h *apiHarness) state() app.Snapshot {
	h.t.Helper()
	resp := h.do(http.MethodGet, "/api/state", nil)
	require.Equal(h.t, http.StatusOK, resp.StatusCode)
	var s app.Snapshot
	require.NoError(h.t, json.NewDecoder(resp.Body).Decode(&s))
	return s
}

func (h *apiHarness) eventually(cond func(app.Snapshot) bool, msg string) app.Snapshot {
	h.t.Helper()
	var last app.Snapshot
	require.Eventually(h.t, func() bool {
		last = h.state()
		return cond(last)
	}, 5*time.Second, 10*time.Millisecond, msg)
	return last
}

func TestAPI_PlanFlow(t *testing.T) {
	h := newAPIHarness(t)

	s := h.post("/api/forms/from/pick", nil)
	assert.Equal(t, "from", s.Picking)
	assert.Len(t, s.Planners, 2)

	s = h.post("/api/map/click", map[string]float64{"lat": 47.5, "lon": 19.04})
	require.True(t, s.Forms["from"].Selection.Chosen())
	assert.Empty(t, s.Picking)
	h.eventually(func(s app.Snapshot) bool {
		return s.Forms["from"].Selection.Name == "Budapest"
	}, "reverse geocode names the start")

	h.post("/api/forms/to/submit", map[string]string{"text": "Vienna"})
	h.eventually(func(s app.Snapshot) bool {
		return s.Forms["to"].Selection.Name == "Wien"
	}, "forward geocode resolves the destination")

	s = h.post("/api/planners/select", map[string]string{"name": "shortest"})
	assert.Equal(t, "shortest", s.SelectedPlanner)
	assert.Equal(t, []string{"shortest"}, h.scene.VisiblePanels())

	s = h.post("/api/planners/shortest/fields/network_type", map[string]string{"value": "walk"})
	assert.Equal(t, "walk", s.Options["network_type"])

	h.post("/api/plan", nil)
	s = h.eventually(func(s app.Snapshot) bool { return len(s.Routes) == 1 }, "route is added")
	route := s.Routes[0]
	assert.Equal(t, "Route 1", route.Name)
	assert.Equal(t, "Budapest → Wien (Shortest path)", route.Description)
	assert.Equal(t, map[string]any{"network_type": "walk", "avoid_highways": false}, h.backend.lastPlan()["options"])
	assert.True(t, h.scene.PlanEnabled())

	s = h.post("/api/routes/"+route.ID+"/hover", map[string]bool{"on": true})
	assert.True(t, s.Routes[0].Highlighted)
	line, ok := h.scene.Line(route.ID)
	require.True(t, ok)
	assert.Equal(t, routes.HighlightedWeight, line.Style.Weight)

	s = h.post("/api/routes/"+route.ID+"/rename", map[string]string{"name": "  Danube  "})
	assert.Equal(t, "Danube", s.Routes[0].Name)

	h.post("/api/routes/"+route.ID+"/focus", nil)
	line, _ = h.scene.Line(route.ID)
	assert.True(t, line.PopupOpen)
	assert.NotNil(t, h.scene.Viewport().Bounds)

	resp := h.do(http.MethodGet, "/api/routes.gpx", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/gpx+xml", resp.Header.Get("Content-Type"))
	gpx, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(gpx), "<name>Danube</name>")
	assert.Equal(t, 3, strings.Count(string(gpx), "<rtept"))

	resp = h.do(http.MethodGet, "/api/routes.geojson", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			ID       string         `json:"id"`
			Geometry map[string]any `json:"geometry"`
		} `json:"features"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&fc))
	require.Len(t, fc.Features, 1)
	assert.Equal(t, route.ID, fc.Features[0].ID)
	assert.Equal(t, "LineString", fc.Features[0].Geometry["type"])

	resp = h.do(http.MethodDelete, "/api/routes/"+route.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_, ok = h.scene.Line(route.ID)
	assert.False(t, ok)
	_, ok = h.scene.Row(route.ID)
	assert.False(t, ok)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodDelete, "/api/routes/"+route.ID, nil).StatusCode)
}

func TestAPI_Errors(t *testing.T) {
	h := newAPIHarness(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"unknown form", http.MethodPost, "/api/forms/via/pick", nil, http.StatusNotFound},
		{"plan without locations", http.MethodPost, "/api/plan", nil, http.StatusUnprocessableEntity},
		{"unknown planner", http.MethodPost, "/api/planners/select", map[string]string{"name": "fastest"}, http.StatusNotFound},
		{"unknown field", http.MethodPost, "/api/planners/shortest/fields/speed", map[string]int{"value": 3}, http.StatusNotFound},
		{"bad select value", http.MethodPost, "/api/planners/shortest/fields/network_type", map[string]string{"value": "fly"}, http.StatusBadRequest},
		{"no suggestion", http.MethodPost, "/api/forms/from/suggestions/0", nil, http.StatusNotFound},
		{"bad suggestion index", http.MethodPost, "/api/forms/from/suggestions/x", nil, http.StatusNotFound},
		{"click out of range", http.MethodPost, "/api/map/click", map[string]float64{"lat": 91, "lon": 0}, http.StatusBadRequest},
		{"click without lon", http.MethodPost, "/api/map/click", map[string]float64{"lat": 10}, http.StatusBadRequest},
		{"unknown route", http.MethodPost, "/api/routes/nope/focus", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := h.do(tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}

	t.Run("invalid JSON", func(t *testing.T) {
		resp, err := http.Post(h.url+"/api/forms/from/submit", "application/json", strings.NewReader("{"))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	notices := h.scene.Notices()
	require.NotEmpty(t, notices)
	assert.Equal(t, "Please choose a starting point.", notices[0].Message)
}

func TestAPI_RangeFieldIsClamped(t *testing.T) {
	h := newAPIHarness(t)

	s := h.post("/api/planners/tourist_route_planner/fields/max_dist", map[string]any{"value": 50000})
	assert.Nil(t, s.Options, "only the selected planner reports options")

	s = h.post("/api/planners/select", map[string]string{"name": "tourist_route_planner"})
	assert.EqualValues(t, 10000, s.Options["max_dist"])

	s = h.post("/api/planners/tourist_route_planner/fields/max_dist", map[string]any{"value": 2.6})
	assert.EqualValues(t, 10, s.Options["max_dist"])

	s = h.post("/api/planners/select", map[string]string{"name": "shortest"})
	assert.Equal(t, []string{"shortest"}, h.scene.VisiblePanels())
}

func TestAPI_DeviceLocation(t *testing.T) {
	h := newAPIHarness(t)

	s := h.post("/api/home", nil)
	assert.Nil(t, s.Device)
	assert.Equal(t, "Your location is not known yet", h.scene.Notices()[0].Message)

	s = h.post("/api/location", map[string]float64{"lat": 47.5, "lon": 19.04, "accuracy": 12})
	require.NotNil(t, s.Device)
	assert.Equal(t, 12.0, s.Device.Accuracy)
	m, ok := h.scene.Marker("device")
	require.True(t, ok)
	assert.Equal(t, "You are within 12 meters from this point", m.Label)

	h.post("/api/location", map[string]string{"denied": "permission denied"})
	notices := h.scene.Notices()
	assert.Equal(t, "Your location is unavailable: permission denied", notices[len(notices)-1].Message)
}

func TestAPI_Events(t *testing.T) {
	h := newAPIHarness(t)

	wsURL := "ws" + strings.TrimPrefix(h.url, "http") + "/api/events"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	var first scene.Event
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "scene", first.Type)

	h.post("/api/forms/to/pick", nil)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var ev scene.Event
		require.NoError(t, conn.ReadJSON(&ev))
		if ev.Type == "form.picking" && ev.ID == "to" {
			assert.Equal(t, true, ev.Data)
			return
		}
	}
}

func TestAPI_CORSVersionMetrics(t *testing.T) {
	h := newAPIHarness(t)

	resp := h.do(http.MethodOptions, "/api/plan", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	resp = h.do(http.MethodGet, "/api/version", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var v map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	assert.NotEmpty(t, v["go_version"])
	assert.NotEmpty(t, v["app_version"])

	resp = h.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `pathfinder_requests_total{op="planner_catalog"}`)

	resp = h.do(http.MethodGet, "/api/scene", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var snap scene.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Len(t, snap.Planners, 2)
}
