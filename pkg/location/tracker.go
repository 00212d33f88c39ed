package location

import (
	"fmt"

	"github.com/rubiojr/pathfinder/pkg/geo"
	"github.com/rubiojr/pathfinder/pkg/logger"
	"github.com/rubiojr/pathfinder/pkg/notice"
	"github.com/rubiojr/pathfinder/pkg/view"
)

// DeviceMarkerID is the map id of the device position marker.
const DeviceMarkerID = "device"

// Fix is a device position.
type Fix struct {
	Point    geo.Point `json:"point"`
	Accuracy float64   `json:"accuracy"` // meters
}

// Tracker keeps the single device position marker.
type Tracker struct {
	surface view.Surface
	marker  view.Marker
	fix     *Fix
	log     *logger.Logger
}

func NewTracker(surface view.Surface) *Tracker {
	return &Tracker{surface: surface, log: logger.New("tracker")}
}

// Found places or moves the device marker. The first fix also centers the
// map on it.
func (t *Tracker) Found(p geo.Point, accuracy float64) {
	label := fmt.Sprintf("You are within %.0f meters from this point", accuracy)
	first := t.fix == nil
	t.fix = &Fix{Point: p, Accuracy: accuracy}
	if t.marker == nil {
		t.marker = t.surface.Map().PlaceMarker(DeviceMarkerID, p, label)
	} else {
		t.marker.Move(p)
		t.marker.SetLabel(label)
	}
	if first {
		t.surface.Map().PanTo(p)
	}
	t.log.Debug("device at %s (±%.0fm)", p, accuracy)
}

// Denied reports that the device position is unavailable.
func (t *Tracker) Denied(reason string) {
	t.log.Info("device location unavailable: %s", reason)
	msg := "Your location is unavailable"
	if reason != "" {
		msg += ": " + reason
	}
	notice.Show(t.surface, view.NoticeInfo, msg)
}

// Home pans to the last known device position.
func (t *Tracker) Home() {
	if t.fix == nil {
		notice.Show(t.surface, view.NoticeInfo, "Your location is not known yet")
		return
	}
	t.surface.Map().PanTo(t.fix.Point)
}

// Fix returns the last device position, or nil.
func (t *Tracker) Fix() *Fix {
	if t.fix == nil {
		return nil
	}
	f := *t.fix
	return &f
}
