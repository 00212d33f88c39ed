package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rubiojr/pathfinder/pkg/geo"
)

// HTTPClient implements Gateway against the planning backend's JSON API.
// Every response body carries a "status" tag; anything but "ok" is a
// BackendError.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient creates a backend client. A zero timeout means none.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type envelope struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type placeResponse struct {
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Name string  `json:"name"`
}

func (p placeResponse) place() geo.Place {
	return geo.Place{Name: p.Name, Point: geo.Pt(p.Lat, p.Lon)}
}

func (c *HTTPClient) Geocode(ctx context.Context, query string) (geo.Place, error) {
	var out placeResponse
	q := url.Values{"q": {query}}
	if err := c.do(ctx, OpGeocode, http.MethodGet, "/api/geocode", q, nil, &out); err != nil {
		return geo.Place{}, err
	}
	return out.place(), nil
}

func (c *HTTPClient) ReverseGeocode(ctx context.Context, p geo.Point) (geo.Place, error) {
	var out placeResponse
	q := url.Values{
		"lat": {strconv.FormatFloat(p.Lat, 'f', -1, 64)},
		"lon": {strconv.FormatFloat(p.Lon, 'f', -1, 64)},
	}
	if err := c.do(ctx, OpReverseGeocode, http.MethodGet, "/api/reverse_geocode", q, nil, &out); err != nil {
		return geo.Place{}, err
	}
	return out.place(), nil
}

func (c *HTTPClient) Autocomplete(ctx context.Context, text string) ([]geo.Place, error) {
	var out struct {
		Results []placeResponse `json:"results"`
	}
	q := url.Values{"q": {text}}
	if err := c.do(ctx, OpAutocomplete, http.MethodGet, "/api/autocomplete", q, nil, &out); err != nil {
		return nil, err
	}
	places := make([]geo.Place, 0, len(out.Results))
	for _, r := range out.Results {
		places = append(places, r.place())
	}
	return places, nil
}

func (c *HTTPClient) PlannerCatalog(ctx context.Context) ([]PlannerSchema, error) {
	var out struct {
		Planners []PlannerSchema `json:"planners"`
	}
	if err := c.do(ctx, OpPlannerCatalog, http.MethodGet, "/api/planners", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Planners, nil
}

func (c *HTTPClient) ComputeRoute(ctx context.Context, req RouteRequest) ([]geo.Point, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to marshal request: %w", OpComputeRoute, err)
	}
	var out struct {
		Route [][]float64 `json:"route"`
	}
	if err := c.do(ctx, OpComputeRoute, http.MethodPost, "/api/plan", nil, body, &out); err != nil {
		return nil, err
	}
	points := make([]geo.Point, 0, len(out.Route))
	for i, pair := range out.Route {
		if len(pair) != 2 {
			return nil, &TransportError{Op: OpComputeRoute, Err: fmt.Errorf("waypoint %d: expected [lat, lon], got %v", i, pair)}
		}
		points = append(points, geo.Pt(pair[0], pair[1]))
	}
	return points, nil
}

// do performs one request and decodes the body into out once its status tag
// is "ok".
func (c *HTTPClient) do(ctx context.Context, op, method, path string, query url.Values, body []byte, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return contextError(op, ctx.Err())
		}
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return contextError(op, ctx.Err())
		}
		return &TransportError{Op: op, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		return &TransportError{Op: op, Err: fmt.Errorf("backend returned %d", resp.StatusCode)}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	if env.Status != "ok" {
		return &BackendError{Op: op, Status: env.Status, Message: env.Message}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}
