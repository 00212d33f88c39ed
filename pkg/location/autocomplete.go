package location

import (
	"context"
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

const (
	DefaultDebounce  = 500 * time.Millisecond
	DefaultBlurGrace = 200 * time.Millisecond
)

// Autocomplete turns the keystrokes of one form into a suggestion list.
// Input is debounced, each issued request aborts the previous one, and only
// the most recently issued request may render.
type Autocomplete struct {
	loop     *eventloop.Loop
	ctx      context.Context
	geocoder gateway.Geocoder
	form     view.FormView
	notifier view.Notifier
	log      *logger.Logger
	metrics  *metrics.Metrics

	debounce  time.Duration
	blurGrace time.Duration

	debounceTimer *eventloop.Timer
	blurTimer     *eventloop.Timer

	seq    uint64
	cancel context.CancelFunc
	items  []geo.Place
}

func newAutocomplete(ctx context.Context, loop *eventloop.Loop, g gateway.Geocoder, form view.FormView, n view.Notifier, debounce, blurGrace time.Duration, log *logger.Logger, m *metrics.Metrics) *Autocomplete {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if blurGrace <= 0 {
		blurGrace = DefaultBlurGrace
	}
	return &Autocomplete{
		loop:      loop,
		ctx:       ctx,
		geocoder:  g,
		form:      form,
		notifier:  n,
		log:       log,
		metrics:   m,
		debounce:  debounce,
		blurGrace: blurGrace,
	}
}

// Input handles a change of the input text.
func (a *Autocomplete) Input(text string) {
	a.blurTimer.Stop()
	a.debounceTimer.Stop()
	text = strings.TrimSpace(text)
	if text == "" {
		a.Close()
		return
	}
	a.debounceTimer = a.loop.AfterFunc(a.debounce, func() { a.issue(text) })
}

// Blur starts the grace period after which the suggestions close.
func (a *Autocomplete) Blur() {
	a.blurTimer.Stop()
	a.blurTimer = a.loop.AfterFunc(a.blurGrace, a.Close)
}

// Suggestions returns the rendered suggestions.
func (a *Autocomplete) Suggestions() []geo.Place {
	return append([]geo.Place(nil), a.items...)
}

// Take returns suggestion i and closes the list.
func (a *Autocomplete) Take(i int) (geo.Place, bool) {
	if i < 0 || i >= len(a.items) {
		return geo.Place{}, false
	}
	p := a.items[i]
	a.Close()
	return p, true
}

// Close stops both timers, aborts the in-flight request and hides the list.
func (a *Autocomplete) Close() {
	a.debounceTimer.Stop()
	a.blurTimer.Stop()
	a.abort()
	a.items = nil
	a.form.HideSuggestions()
}

// InFlight reports whether a request is outstanding.
func (a *Autocomplete) InFlight() bool {
	return a.cancel != nil
}

func (a *Autocomplete) abort() {
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
}

func (a *Autocomplete) issue(text string) {
	a.abort()
	a.seq++
	seq := a.seq
	ctx, cancel := context.WithCancel(a.ctx)
	a.cancel = cancel
	a.log.Debug("autocomplete #%d %q", seq, text)

	eventloop.Call(a.loop, ctx, func(ctx context.Context) ([]geo.Place, error) {
		return a.geocoder.Autocomplete(ctx, text)
	}, func(places []geo.Place, err error) {
		if seq != a.seq || a.cancel == nil {
			a.metrics.Stale(gateway.OpAutocomplete)
			a.log.Debug("dropping autocomplete #%d, superseded", seq)
			return
		}
		a.cancel()
		a.cancel = nil
		if err != nil {
			// The previous text's list is superseded either way.
			a.items = nil
			a.form.HideSuggestions()
			notice.Failure(a.notifier, err, "Could not suggest places for \""+text+"\".")
			return
		}
		a.items = DedupeSuggestions(places)
		if len(a.items) == 0 {
			a.form.HideSuggestions()
			return
		}
		a.form.ShowSuggestions(a.Suggestions())
	})
}
