// Package scene is an in-memory rendering of the view contracts. The local
// API serves it to the browser frontend and streams its changes; tests
// inspect it to see what the user would see.
package scene

import (
	"sync"

	"github.com/paulmach/orb"

	"github.com/rubiojr/pathfinder/pkg/geo"
	"github.com/rubiojr/pathfinder/pkg/view"
)

// Event is one render change.
type Event struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
	Data any    `json:"data,omitempty"`
}

type MarkerState struct {
	ID    string    `json:"id"`
	Point geo.Point `json:"point"`
	Label string    `json:"label"`
}

type LineState struct {
	ID         string         `json:"id"`
	Points     []geo.Point    `json:"points"`
	Style      view.LineStyle `json:"style"`
	PopupTitle string         `json:"popup_title"`
	PopupBody  string         `json:"popup_body"`
	PopupOpen  bool           `json:"popup_open"`
}

type RowState struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Color       string `json:"color"`
	Highlighted bool   `json:"highlighted"`
}

type FormState struct {
	Text        string      `json:"text"`
	Picking     bool        `json:"picking"`
	Suggestions []geo.Place `json:"suggestions"`
}

type PanelState struct {
	Planner string       `json:"planner"`
	Visible bool         `json:"visible"`
	Fields  []view.Field `json:"fields"`
}

type PlannerOption struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
}

// Viewport is where the map was last centered or fitted.
type Viewport struct {
	Center *geo.Point `json:"center,omitempty"`
	Bounds *orb.Bound `json:"bounds,omitempty"`
}

// Snapshot is the full render state.
type Snapshot struct {
	Markers     []MarkerState        `json:"markers"`
	Lines       []LineState          `json:"lines"`
	Rows        []RowState           `json:"rows"`
	Forms       map[string]FormState `json:"forms"`
	Planners    []PlannerOption      `json:"planners"`
	Panels      []PanelState         `json:"panels"`
	PlanEnabled bool                 `json:"plan_enabled"`
	Viewport    Viewport             `json:"viewport"`
	Notices     []view.Notice        `json:"notices"`
}

// Scene implements view.Surface.
type Scene struct {
	mu sync.Mutex

	markers     map[string]*MarkerState
	markerOrder []string
	lines       map[string]*LineState
	lineOrder   []string
	rows        map[string]*RowState
	rowOrder    []string
	forms       map[string]*FormState
	planners    []PlannerOption
	panels      map[string]*PanelState
	panelOrder  []string
	planEnabled bool
	viewport    Viewport
	notices     []view.Notice

	clickSeq int
	clicks   map[int]func(geo.Point)

	subSeq int
	subs   map[int]chan Event
}

// New returns an empty scene with the plan action enabled.
func New() *Scene {
	return &Scene{
		markers:     make(map[string]*MarkerState),
		lines:       make(map[string]*LineState),
		rows:        make(map[string]*RowState),
		forms:       make(map[string]*FormState),
		panels:      make(map[string]*PanelState),
		clicks:      make(map[int]func(geo.Point)),
		subs:        make(map[int]chan Event),
		planEnabled: true,
	}
}

// Subscribe returns a channel of render events and a cancel function. Slow
// subscribers lose events rather than block rendering.
func (s *Scene) Subscribe(buffer int) (<-chan Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subSeq++
	id := s.subSeq
	ch := make(chan Event, buffer)
	s.subs[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

// publish must be called with s.mu held.
func (s *Scene) publish(typ, id string, data any) {
	ev := Event{Type: typ, ID: id, Data: data}
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Click delivers a map click to every armed listener.
func (s *Scene) Click(p geo.Point) {
	s.mu.Lock()
	handlers := make([]func(geo.Point), 0, len(s.clicks))
	for _, fn := range s.clicks {
		handlers = append(handlers, fn)
	}
	s.mu.Unlock()
	for _, fn := range handlers {
		fn(p)
	}
}

// ClickListeners returns the number of armed click listeners.
func (s *Scene) ClickListeners() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clicks)
}

func (s *Scene) Notify(n view.Notice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, n)
	s.publish("notice", "", n)
}

// Notices returns every notice raised so far.
func (s *Scene) Notices() []view.Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]view.Notice(nil), s.notices...)
}

func (s *Scene) Map() view.Map         { return (*sceneMap)(s) }
func (s *Scene) Sidebar() view.Sidebar { return (*sceneSidebar)(s) }

func (s *Scene) Form(id string) view.FormView {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.forms[id]; !ok {
		s.forms[id] = &FormState{}
	}
	return &formHandle{s: s, id: id}
}

func (s *Scene) AddPlannerOption(name, displayName, description string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	opt := PlannerOption{Name: name, DisplayName: displayName, Description: description}
	s.planners = append(s.planners, opt)
	s.publish("planner.added", name, opt)
}

func (s *Scene) AddPanel(planner string, fields []view.Field) view.PanelView {
	s.mu.Lock()
	defer s.mu.Unlock()
	ps := &PanelState{Planner: planner, Fields: append([]view.Field(nil), fields...)}
	s.panels[planner] = ps
	s.panelOrder = append(s.panelOrder, planner)
	s.publish("panel.added", planner, *ps)
	return &panelHandle{s: s, planner: planner}
}

func (s *Scene) SetPlanEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.planEnabled = enabled
	s.publish("plan.enabled", "", enabled)
}

// PlanEnabled reports the plan action state.
func (s *Scene) PlanEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.planEnabled
}

// Marker returns a live marker by id.
func (s *Scene) Marker(id string) (MarkerState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markers[id]
	if !ok {
		return MarkerState{}, false
	}
	return *m, true
}

// Line returns a live line by id.
func (s *Scene) Line(id string) (LineState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lines[id]
	if !ok {
		return LineState{}, false
	}
	return *l, true
}

// Row returns a live sidebar row by id.
func (s *Scene) Row(id string) (RowState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok {
		return RowState{}, false
	}
	return *r, true
}

// FormState returns the state of a form widget.
func (s *Scene) FormState(id string) FormState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.forms[id]; ok {
		out := *f
		out.Suggestions = append([]geo.Place(nil), f.Suggestions...)
		return out
	}
	return FormState{}
}

// Panel returns the state of a planner panel.
func (s *Scene) Panel(planner string) (PanelState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.panels[planner]
	if !ok {
		return PanelState{}, false
	}
	out := *p
	out.Fields = append([]view.Field(nil), p.Fields...)
	return out, true
}

// VisiblePanels lists the planners whose panel is shown.
func (s *Scene) VisiblePanels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, name := range s.panelOrder {
		if s.panels[name].Visible {
			out = append(out, name)
		}
	}
	return out
}

// Viewport returns the last pan or fit.
func (s *Scene) Viewport() Viewport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewport
}

// Snapshot copies the whole render state.
func (s *Scene) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Forms:       make(map[string]FormState, len(s.forms)),
		Planners:    append([]PlannerOption(nil), s.planners...),
		PlanEnabled: s.planEnabled,
		Viewport:    s.viewport,
		Notices:     append([]view.Notice(nil), s.notices...),
	}
	for _, id := range s.markerOrder {
		snap.Markers = append(snap.Markers, *s.markers[id])
	}
	for _, id := range s.lineOrder {
		snap.Lines = append(snap.Lines, *s.lines[id])
	}
	for _, id := range s.rowOrder {
		snap.Rows = append(snap.Rows, *s.rows[id])
	}
	for id, f := range s.forms {
		snap.Forms[id] = *f
	}
	for _, name := range s.panelOrder {
		snap.Panels = append(snap.Panels, *s.panels[name])
	}
	return snap
}

func removeID(order []string, id string) []string {
	for i, v := range order {
		if v == id {
			return append(order[:i], order[i+1:]...)
		}
	}
	return order
}
