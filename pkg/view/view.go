// Package view declares what the core needs from the rendering collaborator:
// a map with markers and lines, the sidebar route list, the two location
// forms, the planner panels and the toolbar. User events flow the other way,
// as method calls on the core components.
package view

import (
	"github.com/paulmach/orb"

	"github.com/rubiojr/pathfinder/pkg/geo"
)

// LineStyle is the stroke of a route line.
type LineStyle struct {
	Color  string `json:"color"`
	Weight int    `json:"weight"`
}

// Map is the map widget.
type Map interface {
	// OnClick arms fn for every map click until unregister is called.
	OnClick(fn func(geo.Point)) (unregister func())
	PlaceMarker(id string, p geo.Point, label string) Marker
	DrawLine(id string, points []geo.Point, style LineStyle) Line
	FitBounds(b orb.Bound)
	PanTo(p geo.Point)
}

// Marker is a point marker on the map.
type Marker interface {
	Move(p geo.Point)
	SetLabel(label string)
	Remove()
}

// Line is a polyline on the map with an attached popup.
type Line interface {
	SetStyle(style LineStyle)
	SetPopup(title, body string)
	OpenPopup()
	Remove()
}

// RouteRow is one sidebar entry: editable name, color swatch, remove control.
type RouteRow interface {
	SetName(name string)
	SetHighlighted(on bool)
	Remove()
}

// Sidebar lists the live routes.
type Sidebar interface {
	AddRouteRow(id, name, color string) RouteRow
}

// FormView is one location input form.
type FormView interface {
	SetText(text string)
	SetPicking(active bool)
	ShowSuggestions(items []geo.Place)
	HideSuggestions()
}

// Field describes one parameter widget of a panel.
type Field struct {
	Name        string   `json:"name"`
	Kind        string   `json:"kind"`
	DisplayName string   `json:"display_name"`
	Description string   `json:"description,omitempty"`
	Options     []string `json:"options,omitempty"`
	Min         *int     `json:"min,omitempty"`
	Max         *int     `json:"max,omitempty"`
	Step        int      `json:"step,omitempty"`
	Value       any      `json:"value"`
}

// PanelView is the parameter panel of one planner.
type PanelView interface {
	SetVisible(visible bool)
	SetValue(field string, value any)
}

// NoticeKind classifies user-facing notices.
type NoticeKind string

const (
	NoticeValidation    NoticeKind = "validation"
	NoticeCommunication NoticeKind = "communication"
	NoticeBackend       NoticeKind = "backend"
	NoticeInfo          NoticeKind = "info"
)

// Notice is a message shown to the user.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Message string     `json:"message"`
}

// Notifier shows notices.
type Notifier interface {
	Notify(n Notice)
}

// Surface is the whole page.
type Surface interface {
	Notifier
	Map() Map
	Sidebar() Sidebar
	Form(id string) FormView
	AddPlannerOption(name, displayName, description string)
	AddPanel(planner string, fields []Field) PanelView
	SetPlanEnabled(enabled bool)
}
