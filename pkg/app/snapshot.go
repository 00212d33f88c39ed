package app

import (
	"github.com/rubiojr/pathfinder/pkg/geo"
	"github.com/rubiojr/pathfinder/pkg/location"
)

// Snapshot is the session state as served by the local API.
type Snapshot struct {
	Forms           map[string]FormSnapshot `json:"forms"`
	Picking         string                  `json:"picking,omitempty"`
	Planners        []PlannerSnapshot       `json:"planners"`
	SelectedPlanner string                  `json:"selected_planner,omitempty"`
	Options         map[string]any          `json:"options,omitempty"`
	Routes          []RouteSnapshot         `json:"routes"`
	Device          *location.Fix           `json:"device,omitempty"`
	Busy            bool                    `json:"busy"`
}

type FormSnapshot struct {
	Text      string             `json:"text"`
	Selection location.Selection `json:"selection"`
	Picking   bool               `json:"picking"`
	Resolving bool               `json:"resolving"`
}

type PlannerSnapshot struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Description string `json:"description,omitempty"`
}

type RouteSnapshot struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Color       string      `json:"color"`
	Highlighted bool        `json:"highlighted"`
	Waypoints   []geo.Point `json:"waypoints"`
}

// Snapshot copies the session state. Call it on the loop.
func (c *Context) Snapshot() Snapshot {
	s := Snapshot{
		Forms:  make(map[string]FormSnapshot, 2),
		Device: c.Tracker.Fix(),
		Busy:   c.Planner.Busy(),
	}
	for _, f := range []*location.Form{c.From, c.To} {
		s.Forms[f.ID()] = FormSnapshot{
			Text:      f.Text(),
			Selection: f.Selection(),
			Picking:   f.Picking(),
			Resolving: f.Resolving(),
		}
	}
	if f := c.Coordinator.Active(); f != nil {
		s.Picking = f.ID()
	}
	for _, d := range c.Registry.Definitions() {
		s.Planners = append(s.Planners, PlannerSnapshot{Name: d.Name, DisplayName: d.DisplayName, Description: d.Description})
	}
	if p := c.Registry.Selected(); p != nil {
		s.SelectedPlanner = p.Name()
		s.Options = p.Values()
	}
	for _, r := range c.Routes.Routes() {
		s.Routes = append(s.Routes, RouteSnapshot{
			ID:          r.ID(),
			Name:        r.Name(),
			Description: r.Description(),
			Color:       r.Color(),
			Highlighted: r.Highlighted(),
			Waypoints:   r.Waypoints(),
		})
	}
	return s
}
