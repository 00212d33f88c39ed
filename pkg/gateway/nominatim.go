package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/muesli/gominatim"

	"github.com/rubiojr/pathfinder/pkg/geo"
	"github.com/rubiojr/pathfinder/pkg/logger"
)

const (
	DefaultNominatimServer = "https://nominatim.openstreetmap.org"
	nominatimMinInterval   = 400 * time.Millisecond
	reverseZoom            = 17
	maxSearches            = 4
)

// NominatimOptions configures a Nominatim geocoder.
type NominatimOptions struct {
	Server  string
	Limit   int           // autocomplete suggestions per request
	Retries int           // transient retries per search
	Timeout time.Duration // per request
	Cache   *Cache        // optional
}

// Nominatim implements Geocoder on top of an OpenStreetMap Nominatim server.
// Requests are spaced at least 400ms apart, as the public server requires.
type Nominatim struct {
	server      string
	limit       int
	retries     int
	cache       *Cache
	client      *http.Client
	timeout     time.Duration
	minInterval time.Duration
	log         *logger.Logger

	// gominatim calls have no deadline of their own; a slot is held until
	// the call returns, even after the caller gave up on it.
	searches chan struct{}

	throttleMu sync.Mutex
	next       time.Time
}

// NewNominatim creates the geocoder. gominatim keeps its server address in
// package state, so the most recently created geocoder sets it for all.
func NewNominatim(opts NominatimOptions) *Nominatim {
	if strings.TrimSpace(opts.Server) == "" {
		opts.Server = DefaultNominatimServer
	}
	if opts.Limit <= 0 {
		opts.Limit = 5
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 12 * time.Second
	}
	server := strings.TrimRight(opts.Server, "/")
	gominatim.SetServer(server)
	return &Nominatim{
		server:      server,
		limit:       opts.Limit,
		retries:     opts.Retries,
		cache:       opts.Cache,
		client:      &http.Client{Timeout: opts.Timeout},
		timeout:     opts.Timeout,
		searches:    make(chan struct{}, maxSearches),
		minInterval: nominatimMinInterval,
		log:         logger.New("nominatim"),
	}
}

func (n *Nominatim) Geocode(ctx context.Context, query string) (geo.Place, error) {
	places, err := n.search(ctx, OpGeocode, query, 1)
	if err != nil {
		return geo.Place{}, err
	}
	if len(places) == 0 {
		return geo.Place{}, &BackendError{Op: OpGeocode, Status: "not_found", Message: fmt.Sprintf("no place matches %q", query)}
	}
	return places[0], nil
}

func (n *Nominatim) Autocomplete(ctx context.Context, text string) ([]geo.Place, error) {
	return n.search(ctx, OpAutocomplete, text, n.limit)
}

type reverseResponse struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
}

func (n *Nominatim) ReverseGeocode(ctx context.Context, p geo.Point) (geo.Place, error) {
	key := fmt.Sprintf("reverse:%.6f,%.6f", p.Lat, p.Lon)
	var cached geo.Place
	if n.cache != nil && n.cache.Get(key, &cached) {
		return cached, nil
	}
	if err := n.throttle(ctx); err != nil {
		return geo.Place{}, contextError(OpReverseGeocode, err)
	}

	q := url.Values{
		"format": {"jsonv2"},
		"lat":    {strconv.FormatFloat(p.Lat, 'f', -1, 64)},
		"lon":    {strconv.FormatFloat(p.Lon, 'f', -1, 64)},
		"zoom":   {strconv.Itoa(reverseZoom)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.server+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return geo.Place{}, fmt.Errorf("%s: failed to create request: %w", OpReverseGeocode, err)
	}
	req.Header.Set("User-Agent", "pathfinder")
	resp, err := n.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return geo.Place{}, contextError(OpReverseGeocode, ctx.Err())
		}
		return geo.Place{}, &TransportError{Op: OpReverseGeocode, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return geo.Place{}, &TransportError{Op: OpReverseGeocode, Err: fmt.Errorf("nominatim returned %d", resp.StatusCode)}
	}

	var rr reverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return geo.Place{}, &TransportError{Op: OpReverseGeocode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	if rr.Error != "" {
		return geo.Place{}, &BackendError{Op: OpReverseGeocode, Status: "not_found", Message: rr.Error}
	}
	lat, err1 := strconv.ParseFloat(rr.Lat, 64)
	lon, err2 := strconv.ParseFloat(rr.Lon, 64)
	if err1 != nil || err2 != nil {
		return geo.Place{}, &TransportError{Op: OpReverseGeocode, Err: fmt.Errorf("invalid coordinates %q,%q", rr.Lat, rr.Lon)}
	}
	place := geo.Place{Name: rr.DisplayName, Point: geo.Pt(lat, lon)}
	if n.cache != nil {
		if err := n.cache.Put(key, place); err != nil {
			n.log.Error("cache write failed for %s: %v", key, err)
		}
	}
	return place, nil
}

// search returns up to limit results for q. Successful responses, even
// empty ones, are cached; failures are not.
func (n *Nominatim) search(ctx context.Context, op, q string, limit int) ([]geo.Place, error) {
	q = strings.TrimSpace(q)
	key := fmt.Sprintf("search:%d:%s", limit, strings.ToLower(q))
	var cached []geo.Place
	if n.cache != nil && n.cache.Get(key, &cached) {
		return cached, nil
	}

	attempts := n.retries + 1
	var res []gominatim.SearchResult
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := n.throttle(ctx); err != nil {
			return nil, contextError(op, err)
		}
		var err error
		res, err = n.runSearch(ctx, q, limit)
		if err == nil {
			if attempt > 1 {
				n.log.Info("recovered after %d attempt(s) for %q", attempt, q)
			}
			break
		}
		if ctx.Err() != nil {
			return nil, contextError(op, ctx.Err())
		}
		errStr := err.Error()
		transient := strings.Contains(errStr, "unexpected end of JSON") || strings.Contains(errStr, "EOF")
		if !transient || attempt == attempts {
			return nil, &TransportError{Op: op, Err: err}
		}
		n.log.Debug("transient error (attempt %d/%d, will retry) query=%q err=%v", attempt, attempts, q, err)
	}

	places := make([]geo.Place, 0, len(res))
	for _, r := range res {
		lat, err1 := strconv.ParseFloat(r.Lat, 64)
		lon, err2 := strconv.ParseFloat(r.Lon, 64)
		if err1 != nil || err2 != nil || r.DisplayName == "" {
			continue
		}
		places = append(places, geo.Place{Name: r.DisplayName, Point: geo.Pt(lat, lon)})
		if len(places) >= limit {
			break
		}
	}
	if n.cache != nil {
		if err := n.cache.Put(key, places); err != nil {
			n.log.Error("cache write failed for %s: %v", key, err)
		}
	}
	return places, nil
}

// runSearch runs the blocking gominatim query and gives up as soon as ctx
// is done or the timeout passes; a late result is dropped.
func (n *Nominatim) runSearch(ctx context.Context, q string, limit int) ([]gominatim.SearchResult, error) {
	type result struct {
		res []gominatim.SearchResult
		err error
	}
	timer := time.NewTimer(n.timeout)
	defer timer.Stop()
	timedOut := fmt.Errorf("no answer from %s within %s", n.server, n.timeout)

	select {
	case n.searches <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, timedOut
	}

	ch := make(chan result, 1)
	go func() {
		defer func() { <-n.searches }()
		qObj := gominatim.SearchQuery{
			Q:     q,
			Limit: limit,
		}
		res, err := qObj.Get()
		ch <- result{res, err}
	}()
	select {
	case r := <-ch:
		return r.res, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, timedOut
	}
}

// throttle waits for this request's slot.
func (n *Nominatim) throttle(ctx context.Context) error {
	n.throttleMu.Lock()
	now := time.Now()
	slot := n.next
	if slot.Before(now) {
		slot = now
	}
	n.next = slot.Add(n.minInterval)
	n.throttleMu.Unlock()

	wait := time.Until(slot)
	if wait <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
