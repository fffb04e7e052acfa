package repository

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinChart/internal/domain/models"
	"FinChart/pkg/cache"
	xhttp "FinChart/pkg/http"
)

type lookupCounter struct {
	hits, misses int
}

func (c *lookupCounter) IgnoredOperation(string)         {}
func (c *lookupCounter) SessionOpened()                  {}
func (c *lookupCounter) SessionClosed(string)            {}
func (c *lookupCounter) RecordRender(string, float64)    {}
func (c *lookupCounter) RecordTicksIngested(string, int) {}
func (c *lookupCounter) RecordLastPrice(string, float64) {}
func (c *lookupCounter) RecordError(string)              {}
func (c *lookupCounter) RecordLatency(string, float64)   {}
func (c *lookupCounter) RecordCacheLookup(hit bool) {
	if hit {
		c.hits++
	} else {
		c.misses++
	}
}

func TestSeriesCache(t *testing.T) {
	mem := cache.NewMemoryCache(cache.WithMemoryCleanup(0))
	defer mem.Close()
	m := &lookupCounter{}
	sc := NewSeriesCache(mem, time.Minute, m, nil)
	ctx := context.Background()

	day := models.Granularity{Range: models.Range1D}
	five := models.Granularity{Range: models.Range1D, Minutes: 5}
	agg := models.Aggregated{
		Candles: []models.Candle{{Time: 60, Open: 1, High: 2, Low: 0.5, Close: 1.5}},
		Volumes: []models.VolumeBar{{Time: 60, Value: 10, Color: models.VolumeUp}},
		Closes:  []models.Point{{Time: 60, Value: 1.5}},
	}

	_, ok := sc.Get(ctx, "AAPL", day)
	assert.False(t, ok)

	require.NoError(t, sc.Put(ctx, "aapl", day, agg))
	require.NoError(t, sc.Put(ctx, "AAPL", five, agg))
	require.NoError(t, sc.Put(ctx, "AAPLX", day, agg))

	got, ok := sc.Get(ctx, "AAPL", day)
	require.True(t, ok)
	assert.Equal(t, agg, got)

	require.NoError(t, sc.Invalidate(ctx, "AAPL"))
	_, ok = sc.Get(ctx, "AAPL", day)
	assert.False(t, ok)
	_, ok = sc.Get(ctx, "AAPL", five)
	assert.False(t, ok)
	_, ok = sc.Get(ctx, "AAPLX", day)
	assert.True(t, ok, "invalidation must not leak into other symbols")

	assert.Equal(t, 2, m.hits)
	assert.Equal(t, 3, m.misses)
}

func TestNopSeriesCache(t *testing.T) {
	var c NopSeriesCache
	require.NoError(t, c.Put(context.Background(), "A", models.Granularity{}, models.Aggregated{}))
	_, ok := c.Get(context.Background(), "A", models.Granularity{})
	assert.False(t, ok)
}

func TestHTTPTickSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ticks" {
			http.NotFound(w, r)
			return
		}
		assert.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
		assert.Equal(t, "1d", r.URL.Query().Get("range"))
		assert.Equal(t, "5", r.URL.Query().Get("minutes"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"points": []map[string]interface{}{
				{"time": "2024-10-10 09:30", "open": 1, "high": 2, "low": 0.5, "close": 1.5, "volume": 10},
				{"time": 1728553200, "open": 1.5, "high": 2, "low": 1, "close": 1.8},
			},
		})
	}))
	defer srv.Close()

	src := NewHTTPTickSource(srv.URL+"/", xhttp.NewClient(xhttp.WithTimeout(2*time.Second)))
	pts, err := src.Ticks(context.Background(), "aapl", models.Granularity{Range: models.Range1D, Minutes: 5})
	require.NoError(t, err)
	require.Len(t, pts, 2)
	assert.Equal(t, "2024-10-10 09:30", pts[0].Time.String())
	assert.False(t, pts[0].Time.Numeric())
	assert.True(t, pts[1].Time.Numeric())
	assert.Nil(t, pts[1].Volume)
	assert.InDelta(t, 10, pts[0].VolumeOrZero(), 1e-9)
}

func TestHTTPTickSource_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewHTTPTickSource(srv.URL, nil).Ticks(context.Background(), "AAPL", models.Granularity{Range: models.Range1W})
	assert.Error(t, err)
}
