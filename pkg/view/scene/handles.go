package scene

import (
	"github.com/paulmach/orb"

	"github.com/rubiojr/pathfinder/pkg/geo"
	"github.com/rubiojr/pathfinder/pkg/view"
)

type sceneMap Scene

func (m *sceneMap) OnClick(fn func(geo.Point)) func() {
	s := (*Scene)(m)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clickSeq++
	id := s.clickSeq
	s.clicks[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.clicks, id)
	}
}

func (m *sceneMap) PlaceMarker(id string, p geo.Point, label string) view.Marker {
	s := (*Scene)(m)
	s.mu.Lock()
	defer s.mu.Unlock()
	ms := &MarkerState{ID: id, Point: p, Label: label}
	if _, ok := s.markers[id]; !ok {
		s.markerOrder = append(s.markerOrder, id)
	}
	s.markers[id] = ms
	s.publish("marker.placed", id, *ms)
	return &markerHandle{s: s, state: ms}
}

func (m *sceneMap) DrawLine(id string, points []geo.Point, style view.LineStyle) view.Line {
	s := (*Scene)(m)
	s.mu.Lock()
	defer s.mu.Unlock()
	ls := &LineState{ID: id, Points: append([]geo.Point(nil), points...), Style: style}
	if _, ok := s.lines[id]; !ok {
		s.lineOrder = append(s.lineOrder, id)
	}
	s.lines[id] = ls
	s.publish("line.drawn", id, *ls)
	return &lineHandle{s: s, state: ls}
}

func (m *sceneMap) FitBounds(b orb.Bound) {
	s := (*Scene)(m)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewport = Viewport{Bounds: &b}
	s.publish("view.fit", "", b)
}

func (m *sceneMap) PanTo(p geo.Point) {
	s := (*Scene)(m)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewport = Viewport{Center: &p}
	s.publish("view.pan", "", p)
}

type markerHandle struct {
	s     *Scene
	state *MarkerState
}

// live must be called with s.mu held.
func (h *markerHandle) live() bool {
	return h.s.markers[h.state.ID] == h.state
}

func (h *markerHandle) Move(p geo.Point) {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	if !h.live() {
		return
	}
	h.state.Point = p
	h.s.publish("marker.moved", h.state.ID, p)
}

func (h *markerHandle) SetLabel(label string) {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	if !h.live() {
		return
	}
	h.state.Label = label
	h.s.publish("marker.label", h.state.ID, label)
}

func (h *markerHandle) Remove() {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	if !h.live() {
		return
	}
	delete(h.s.markers, h.state.ID)
	h.s.markerOrder = removeID(h.s.markerOrder, h.state.ID)
	h.s.publish("marker.removed", h.state.ID, nil)
}

type lineHandle struct {
	s     *Scene
	state *LineState
}

func (h *lineHandle) live() bool {
	return h.s.lines[h.state.ID] == h.state
}

func (h *lineHandle) SetStyle(style view.LineStyle) {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	if !h.live() {
		return
	}
	h.state.Style = style
	h.s.publish("line.style", h.state.ID, style)
}

func (h *lineHandle) SetPopup(title, body string) {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	if !h.live() {
		return
	}
	h.state.PopupTitle = title
	h.state.PopupBody = body
	h.s.publish("line.popup", h.state.ID, map[string]string{"title": title, "body": body})
}

func (h *lineHandle) OpenPopup() {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	if !h.live() {
		return
	}
	h.state.PopupOpen = true
	h.s.publish("line.popup_open", h.state.ID, nil)
}

func (h *lineHandle) Remove() {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	if !h.live() {
		return
	}
	delete(h.s.lines, h.state.ID)
	h.s.lineOrder = removeID(h.s.lineOrder, h.state.ID)
	h.s.publish("line.removed", h.state.ID, nil)
}

type sceneSidebar Scene

func (sb *sceneSidebar) AddRouteRow(id, name, color string) view.RouteRow {
	s := (*Scene)(sb)
	s.mu.Lock()
	defer s.mu.Unlock()
	rs := &RowState{ID: id, Name: name, Color: color}
	if _, ok := s.rows[id]; !ok {
		s.rowOrder = append(s.rowOrder, id)
	}
	s.rows[id] = rs
	s.publish("row.added", id, *rs)
	return &rowHandle{s: s, state: rs}
}

type rowHandle struct {
	s     *Scene
	state *RowState
}

func (h *rowHandle) live() bool {
	return h.s.rows[h.state.ID] == h.state
}

func (h *rowHandle) SetName(name string) {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	if !h.live() {
		return
	}
	h.state.Name = name
	h.s.publish("row.name", h.state.ID, name)
}

func (h *rowHandle) SetHighlighted(on bool) {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	if !h.live() {
		return
	}
	h.state.Highlighted = on
	h.s.publish("row.highlight", h.state.ID, on)
}

func (h *rowHandle) Remove() {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	if !h.live() {
		return
	}
	delete(h.s.rows, h.state.ID)
	h.s.rowOrder = removeID(h.s.rowOrder, h.state.ID)
	h.s.publish("row.removed", h.state.ID, nil)
}

type formHandle struct {
	s  *Scene
	id string
}

func (h *formHandle) SetText(text string) {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	h.s.forms[h.id].Text = text
	h.s.publish("form.text", h.id, text)
}

func (h *formHandle) SetPicking(active bool) {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	h.s.forms[h.id].Picking = active
	h.s.publish("form.picking", h.id, active)
}

func (h *formHandle) ShowSuggestions(items []geo.Place) {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	h.s.forms[h.id].Suggestions = append([]geo.Place(nil), items...)
	h.s.publish("form.suggestions", h.id, items)
}

func (h *formHandle) HideSuggestions() {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	h.s.forms[h.id].Suggestions = nil
	h.s.publish("form.suggestions", h.id, []geo.Place{})
}

type panelHandle struct {
	s       *Scene
	planner string
}

func (h *panelHandle) SetVisible(visible bool) {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	h.s.panels[h.planner].Visible = visible
	h.s.publish("panel.visible", h.planner, visible)
}

func (h *panelHandle) SetValue(field string, value any) {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	p := h.s.panels[h.planner]
	for i := range p.Fields {
		if p.Fields[i].Name == field {
			p.Fields[i].Value = value
		}
	}
	h.s.publish("panel.value", h.planner, map[string]any{"field": field, "value": value})
}
