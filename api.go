package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"runtime"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rubiojr/pathfinder/pkg/app"
	"github.com/rubiojr/pathfinder/pkg/catalog"
	"github.com/rubiojr/pathfinder/pkg/geo"
	"github.com/rubiojr/pathfinder/pkg/location"
	"github.com/rubiojr/pathfinder/pkg/logger"
	"github.com/rubiojr/pathfinder/pkg/plan"
	"github.com/rubiojr/pathfinder/pkg/routes"
	"github.com/rubiojr/pathfinder/pkg/view/scene"
)

const (
	eventBuffer  = 256
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second
)

var (
	errNoForm  = errors.New("no such form")
	errNoRoute = errors.New("no such route")
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Local API; the frontend may be served from anywhere.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// api serves one session to the map frontend. Every handler touching the
// session runs on the session loop.
type api struct {
	session *app.Context
	scene   *scene.Scene
	log     *logger.Logger
}

// RegisterAPI mounts the local API on mux. gatherer backs GET /metrics.
func RegisterAPI(mux *http.ServeMux, session *app.Context, sc *scene.Scene, gatherer prometheus.Gatherer) {
	if mux == nil {
		mux = http.DefaultServeMux
	}
	a := &api{session: session, scene: sc, log: logger.New("api")}

	// CORS preflight
	mux.HandleFunc("OPTIONS /api/", handleOptions)

	// State
	mux.HandleFunc("GET /api/state", a.handleGetState)
	mux.HandleFunc("GET /api/scene", a.handleGetScene)
	mux.HandleFunc("GET /api/events", a.handleEvents)

	// Location forms
	mux.HandleFunc("POST /api/forms/{form}/pick", a.formAction(func(f *location.Form, r *http.Request) error {
		f.TogglePick()
		return nil
	}))
	mux.HandleFunc("POST /api/forms/{form}/input", a.formText((*location.Form).Input))
	mux.HandleFunc("POST /api/forms/{form}/submit", a.formText((*location.Form).Submit))
	mux.HandleFunc("POST /api/forms/{form}/blur", a.formAction(func(f *location.Form, r *http.Request) error {
		f.Blur()
		return nil
	}))
	mux.HandleFunc("POST /api/forms/{form}/suggestions/{i}", a.formAction(func(f *location.Form, r *http.Request) error {
		i, err := strconv.Atoi(r.PathValue("i"))
		if err != nil {
			return location.ErrNoSuggestion
		}
		return f.PickSuggestion(i)
	}))
	mux.HandleFunc("POST /api/forms/{form}/clear", a.formAction(func(f *location.Form, r *http.Request) error {
		f.Clear()
		return nil
	}))

	// Map & device location
	mux.HandleFunc("POST /api/map/click", a.handlePostMapClick)
	mux.HandleFunc("POST /api/location", a.handlePostLocation)
	mux.HandleFunc("POST /api/home", func(w http.ResponseWriter, r *http.Request) {
		a.apply(w, r, func() error {
			a.session.Tracker.Home()
			return nil
		})
	})

	// Planners
	mux.HandleFunc("POST /api/planners/select", a.handlePostSelectPlanner)
	mux.HandleFunc("POST /api/planners/{name}/fields/{field}", a.handlePostField)
	mux.HandleFunc("POST /api/plan", func(w http.ResponseWriter, r *http.Request) {
		a.apply(w, r, func() error { return a.session.Planner.Plan(nil) })
	})

	// Routes
	mux.HandleFunc("POST /api/routes/{id}/hover", a.handlePostHover)
	mux.HandleFunc("POST /api/routes/{id}/rename", a.handlePostRename)
	mux.HandleFunc("POST /api/routes/{id}/focus", a.routeAction((*routes.Route).Focus))
	mux.HandleFunc("DELETE /api/routes/{id}", a.routeAction((*routes.Route).Remove))
	mux.HandleFunc("GET /api/routes.gpx", a.handleGetGPX)
	mux.HandleFunc("GET /api/routes.geojson", a.handleGetGeoJSON)

	// Version info
	mux.HandleFunc("GET /api/version", handleGetVersion)

	if gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
}

func corsHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
}

func handleOptions(w http.ResponseWriter, _ *http.Request) {
	corsHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response: %v", err)
	}
}

// writeError maps core errors to HTTP statuses. The body always carries the
// message so the frontend can show it.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var (
		ve *plan.ValidationError
		fe *catalog.FieldError
	)
	switch {
	case errors.Is(err, errNoForm), errors.Is(err, errNoRoute),
		errors.Is(err, catalog.ErrUnknownPlanner), errors.Is(err, catalog.ErrUnknownField),
		errors.Is(err, location.ErrNoSuggestion):
		status = http.StatusNotFound
	case errors.Is(err, routes.ErrRemoved):
		status = http.StatusGone
	case errors.Is(err, plan.ErrBusy), errors.Is(err, catalog.ErrNotLoaded):
		status = http.StatusConflict
	case errors.As(err, &ve):
		status = http.StatusUnprocessableEntity
	case errors.As(err, &fe), errors.Is(err, routes.ErrEmptyName):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// decodeBody reads an optional JSON body. Numbers stay json.Number so field
// values keep their precision until coerced.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// apply runs fn on the session loop and answers with the resulting state.
func (a *api) apply(w http.ResponseWriter, r *http.Request, fn func() error) {
	corsHeaders(w)
	var (
		opErr error
		state app.Snapshot
	)
	if err := a.session.Loop.Sync(r.Context(), func() {
		if opErr = fn(); opErr == nil {
			state = a.session.Snapshot()
		}
	}); err != nil {
		http.Error(w, "request canceled", http.StatusServiceUnavailable)
		return
	}
	if opErr != nil {
		a.log.Debug("%s %s: %v", r.Method, r.URL.Path, opErr)
		writeError(w, opErr)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// ---------------- State ----------------

func (a *api) handleGetState(w http.ResponseWriter, r *http.Request) {
	a.apply(w, r, func() error { return nil })
}

func (a *api) handleGetScene(w http.ResponseWriter, _ *http.Request) {
	corsHeaders(w)
	writeJSON(w, http.StatusOK, a.scene.Snapshot())
}

// handleEvents streams render events over a websocket. The first message
// is the full scene; every later one is a single change.
func (a *api) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.log.Error("Failed to upgrade to websocket: %v", err)
		return
	}
	defer conn.Close()

	events, unsubscribe := a.scene.Subscribe(eventBuffer)
	defer unsubscribe()

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(scene.Event{Type: "scene", Data: a.scene.Snapshot()}); err != nil {
		a.log.Debug("Failed to send initial scene: %v", err)
		return
	}

	// Reader: the client sends nothing we use, but reading is how close
	// frames and dead peers are noticed.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					a.log.Debug("WebSocket error: %v", err)
				}
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				a.log.Debug("WebSocket write failed: %v", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				a.log.Debug("Ping failed: %v", err)
				return
			}
		}
	}
}

// ---------------- Forms ----------------

func (a *api) formAction(fn func(f *location.Form, r *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("form")
		a.apply(w, r, func() error {
			f := a.session.Form(id)
			if f == nil {
				return errNoForm
			}
			return fn(f, r)
		})
	}
}

func (a *api) formText(fn func(f *location.Form, text string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Text string `json:"text"`
		}
		if err := decodeBody(r, &req); err != nil {
			http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
			return
		}
		a.formAction(func(f *location.Form, _ *http.Request) error {
			fn(f, req.Text)
			return nil
		})(w, r)
	}
}

// ---------------- Map & Location ----------------

type pointRequest struct {
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
}

func (p pointRequest) point() (geo.Point, bool) {
	if p.Lat == nil || p.Lon == nil {
		return geo.Point{}, false
	}
	pt := geo.Pt(*p.Lat, *p.Lon)
	return pt, pt.Valid()
}

func (a *api) handlePostMapClick(w http.ResponseWriter, r *http.Request) {
	var req pointRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	p, ok := req.point()
	if !ok {
		http.Error(w, "invalid lat/lon", http.StatusBadRequest)
		return
	}
	a.apply(w, r, func() error {
		a.scene.Click(p)
		return nil
	})
}

func (a *api) handlePostLocation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		pointRequest
		Accuracy float64 `json:"accuracy"`
		Denied   *string `json:"denied"`
	}
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Denied != nil {
		a.apply(w, r, func() error {
			a.session.Tracker.Denied(*req.Denied)
			return nil
		})
		return
	}
	p, ok := req.point()
	if !ok {
		http.Error(w, "invalid lat/lon", http.StatusBadRequest)
		return
	}
	a.apply(w, r, func() error {
		a.session.Tracker.Found(p, req.Accuracy)
		return nil
	})
}

// ---------------- Planners ----------------

func (a *api) handlePostSelectPlanner(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	a.apply(w, r, func() error { return a.session.Registry.Select(req.Name) })
}

func (a *api) handlePostField(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value any `json:"value"`
	}
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	name, field := r.PathValue("name"), r.PathValue("field")
	a.apply(w, r, func() error {
		panel, ok := a.session.Registry.Panel(name)
		if !ok {
			return catalog.ErrUnknownPlanner
		}
		_, err := panel.Set(field, req.Value)
		return err
	})
}

// ---------------- Routes ----------------

func (a *api) routeAction(fn func(*routes.Route) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		a.apply(w, r, func() error {
			route, ok := a.session.Routes.Get(id)
			if !ok {
				return errNoRoute
			}
			return fn(route)
		})
	}
}

func (a *api) handlePostHover(w http.ResponseWriter, r *http.Request) {
	var req struct {
		On bool `json:"on"`
	}
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	a.routeAction(func(route *routes.Route) error { return route.SetHighlighted(req.On) })(w, r)
}

func (a *api) handlePostRename(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	a.routeAction(func(route *routes.Route) error { return route.Rename(req.Name) })(w, r)
}

// export renders the route collection on the loop and sends it as an
// attachment.
func (a *api) export(w http.ResponseWriter, r *http.Request, contentType, filename string, render func(*bytes.Buffer) error) {
	corsHeaders(w)
	var (
		buf       bytes.Buffer
		renderErr error
	)
	if err := a.session.Loop.Sync(r.Context(), func() { renderErr = render(&buf) }); err != nil {
		http.Error(w, "request canceled", http.StatusServiceUnavailable)
		return
	}
	if renderErr != nil {
		a.log.Error("export %s: %v", filename, renderErr)
		http.Error(w, "export error: "+renderErr.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	_, _ = w.Write(buf.Bytes())
}

func (a *api) handleGetGPX(w http.ResponseWriter, r *http.Request) {
	a.export(w, r, "application/gpx+xml", "routes.gpx", func(buf *bytes.Buffer) error {
		return a.session.Routes.WriteGPX(buf)
	})
}

func (a *api) handleGetGeoJSON(w http.ResponseWriter, r *http.Request) {
	a.export(w, r, "application/geo+json", "routes.geojson", func(buf *bytes.Buffer) error {
		b, err := a.session.Routes.FeatureCollection().MarshalJSON()
		if err != nil {
			return err
		}
		_, err = buf.Write(b)
		return err
	})
}

// handleGetVersion returns runtime version information
func handleGetVersion(w http.ResponseWriter, r *http.Request) {
	corsHeaders(w)

	versionInfo := map[string]interface{}{
		"app_version": Version,
		"go_version":  runtime.Version(),
		"go_os":       runtime.GOOS,
		"go_arch":     runtime.GOARCH,
	}

	// Try to get build info
	if buildInfo, ok := debug.ReadBuildInfo(); ok {
		versionInfo["go_module"] = buildInfo.Path
		if buildInfo.Main.Version != "" && buildInfo.Main.Version != "(devel)" {
			versionInfo["app_version"] = buildInfo.Main.Version
		}

		// Extract build settings
		settings := make(map[string]string)
		for _, setting := range buildInfo.Settings {
			switch setting.Key {
			case "vcs.revision":
				settings["commit"] = setting.Value
				if len(setting.Value) > 7 {
					settings["commit_short"] = setting.Value[:7]
				}
			case "vcs.time":
				settings["build_time"] = setting.Value
			case "vcs.modified":
				settings["dirty"] = setting.Value
			}
		}
		if len(settings) > 0 {
			versionInfo["build_info"] = settings
		}
	}

	writeJSON(w, http.StatusOK, versionInfo)
}
