package gateway

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rubiojr/pathfinder/pkg/metrics"
)

func TestInstrument(t *testing.T) {
	m := metrics.New()
	g := Instrument(NewHTTPClient(newBackend(t).URL, 0), m)

	_, err := g.Geocode(context.Background(), "Vienna")
	require.NoError(t, err)
	_, err = g.Geocode(context.Background(), "Atlantis")
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.Autocomplete(ctx, "Vie")
	require.True(t, IsAborted(err))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Requests.WithLabelValues(OpGeocode)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Failures.WithLabelValues(OpGeocode, "backend")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Aborted.WithLabelValues(OpAutocomplete)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Failures.WithLabelValues(OpAutocomplete, "transport")))
}

func TestInstrument_NilMetrics(t *testing.T) {
	g := Instrument(NewHTTPClient(newBackend(t).URL, 0), nil)
	_, err := g.Geocode(context.Background(), "Vienna")
	assert.NoError(t, err)
}
