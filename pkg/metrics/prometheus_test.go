package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder(t *testing.T) {
	r := New(prometheus.NewRegistry())

	r.IgnoredOperation("resize")
	r.IgnoredOperation("resize")
	r.SessionOpened()
	r.SessionOpened()
	r.SessionClosed("idle")
	r.RecordTicksIngested("AAPL", 3)
	r.RecordCacheLookup(true)
	r.RecordCacheLookup(false)
	r.RecordCacheLookup(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.ignoredOps.WithLabelValues("resize")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.sessionsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.sessionsClosed.WithLabelValues("idle")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.ticksIngested.WithLabelValues("AAPL")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.cacheLookups.WithLabelValues("miss")))
}
