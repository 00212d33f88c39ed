// Package location holds the two location input forms, the coordinator
// that keeps at most one of them picking on the map, their autocomplete
// sessions and the device position tracker.
package location

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rubiojr/pathfinder/pkg/eventloop"
	"github.com/rubiojr/pathfinder/pkg/gateway"
	"github.com/rubiojr/pathfinder/pkg/geo"
	"github.com/rubiojr/pathfinder/pkg/logger"
	"github.com/rubiojr/pathfinder/pkg/metrics"
	"github.com/rubiojr/pathfinder/pkg/notice"
	"github.com/rubiojr/pathfinder/pkg/view"
)

// Form ids.
const (
	From = "from"
	To   = "to"
)

var ErrNoSuggestion = errors.New("no such suggestion")

// Selection is the location chosen in a form. A nil Point means nothing is
// chosen yet.
type Selection struct {
	Point *geo.Point `json:"point"`
	Name  string     `json:"name,omitempty"`
}

// Chosen reports whether a point is set.
func (s Selection) Chosen() bool {
	return s.Point != nil
}

// FormOptions configures a Form.
type FormOptions struct {
	ID          string
	Loop        *eventloop.Loop
	Geocoder    gateway.Geocoder
	Surface     view.Surface
	Coordinator *Coordinator
	// Context bounds every request the form issues.
	Context   context.Context
	Debounce  time.Duration
	BlurGrace time.Duration
	Metrics   *metrics.Metrics // optional
}

// Form is one location input: a chosen point, its display text and a pick
// on map toggle. It must only be used from its loop.
type Form struct {
	id       string
	loop     *eventloop.Loop
	ctx      context.Context
	geocoder gateway.Geocoder
	surface  view.Surface
	view     view.FormView
	coord    *Coordinator
	ac       *Autocomplete
	log      *logger.Logger
	metrics  *metrics.Metrics

	text    string
	sel     Selection
	marker  view.Marker
	picking bool
	unarm   func()

	// Every geocode request takes a fresh stamp and replaces cancel; a
	// response is applied only while its stamp is current.
	stamp  uint64
	cancel context.CancelFunc
}

func NewForm(opts FormOptions) *Form {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	log := logger.New("form:" + opts.ID)
	fv := opts.Surface.Form(opts.ID)
	return &Form{
		id:       opts.ID,
		loop:     opts.Loop,
		ctx:      ctx,
		geocoder: opts.Geocoder,
		surface:  opts.Surface,
		view:     fv,
		coord:    opts.Coordinator,
		ac:       newAutocomplete(ctx, opts.Loop, opts.Geocoder, fv, opts.Surface, opts.Debounce, opts.BlurGrace, log, opts.Metrics),
		log:      log,
		metrics:  opts.Metrics,
	}
}

func (f *Form) ID() string { return f.id }

func (f *Form) Text() string { return f.text }

func (f *Form) Selection() Selection { return f.sel }

func (f *Form) Picking() bool { return f.picking }

// Stamp returns the stamp of the most recent geocode request.
func (f *Form) Stamp() uint64 { return f.stamp }

func (f *Form) Autocomplete() *Autocomplete { return f.ac }

// Resolving reports whether a geocode request for this form is in flight.
func (f *Form) Resolving() bool { return f.cancel != nil }

// TogglePick enters picking mode, or leaves it when already picking.
func (f *Form) TogglePick() {
	if f.picking {
		f.coord.Release(f)
		return
	}
	f.coord.Activate(f)
}

// arm and disarm are called by the Coordinator only.
func (f *Form) arm() {
	f.picking = true
	f.unarm = f.surface.Map().OnClick(f.mapClick)
	f.view.SetPicking(true)
}

func (f *Form) disarm() {
	f.picking = false
	if f.unarm != nil {
		f.unarm()
		f.unarm = nil
	}
	f.view.SetPicking(false)
}

// mapClick places the point optimistically, labeled with its coordinates,
// then resolves a name for it.
func (f *Form) mapClick(p geo.Point) {
	if !f.picking {
		return
	}
	f.ac.Close()
	label := p.String()
	f.place(geo.Place{Name: label, Point: p})
	stamp, ctx := f.nextStamp()
	f.coord.Release(f)

	eventloop.Call(f.loop, ctx, func(ctx context.Context) (geo.Place, error) {
		return f.geocoder.ReverseGeocode(ctx, p)
	}, func(place geo.Place, err error) {
		if !f.current(stamp, gateway.OpReverseGeocode) {
			return
		}
		f.release()
		if err != nil {
			notice.Failure(f.surface, err, "Could not find a place name for "+label+".")
			return
		}
		if place.Name == "" {
			place.Name = label
		}
		f.place(place)
	})
}

// Input handles a change of the typed text.
func (f *Form) Input(text string) {
	f.text = text
	f.ac.Input(text)
}

// Blur handles loss of input focus.
func (f *Form) Blur() {
	f.ac.Blur()
}

// Submit geocodes the typed text. On failure the form is left as it was.
func (f *Form) Submit(text string) {
	f.text = text
	query := strings.TrimSpace(text)
	if query == "" {
		return
	}
	f.ac.Close()
	stamp, ctx := f.nextStamp()

	eventloop.Call(f.loop, ctx, func(ctx context.Context) (geo.Place, error) {
		return f.geocoder.Geocode(ctx, query)
	}, func(place geo.Place, err error) {
		if !f.current(stamp, gateway.OpGeocode) {
			return
		}
		f.release()
		if err != nil {
			notice.Failure(f.surface, err, "Could not resolve \""+query+"\".")
			return
		}
		f.place(place)
		f.surface.Map().PanTo(place.Point)
	})
}

// PickSuggestion applies suggestion i. Any geocode request still in flight
// for this form is superseded.
func (f *Form) PickSuggestion(i int) error {
	place, ok := f.ac.Take(i)
	if !ok {
		return ErrNoSuggestion
	}
	f.nextStamp()
	f.release()
	f.place(place)
	f.surface.Map().PanTo(place.Point)
	return nil
}

// Clear removes the marker and resets the form to nothing chosen.
func (f *Form) Clear() {
	f.coord.Release(f)
	f.ac.Close()
	f.nextStamp()
	f.release()
	if f.marker != nil {
		f.marker.Remove()
		f.marker = nil
	}
	f.sel = Selection{}
	f.text = ""
	f.view.SetText("")
}

func (f *Form) place(place geo.Place) {
	pt := place.Point
	f.sel = Selection{Point: &pt, Name: place.Name}
	f.text = place.Name
	f.view.SetText(place.Name)
	if f.marker == nil {
		f.marker = f.surface.Map().PlaceMarker(f.id, pt, f.id)
		return
	}
	f.marker.Move(pt)
}

func (f *Form) nextStamp() (uint64, context.Context) {
	if f.cancel != nil {
		f.cancel()
	}
	f.stamp++
	ctx, cancel := context.WithCancel(f.ctx)
	f.cancel = cancel
	return f.stamp, ctx
}

// release frees the current request's context once it has completed.
func (f *Form) release() {
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
}

func (f *Form) current(stamp uint64, op string) bool {
	if stamp == f.stamp {
		return true
	}
	f.metrics.Stale(op)
	f.log.Debug("dropping %s response #%d, current is #%d", op, stamp, f.stamp)
	return false
}
