package usecase

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinChart/internal/domain/models"
	"FinChart/internal/repository"
	pkgkafka "FinChart/pkg/kafka"
)

type fakeRefresher struct {
	calls map[string]int
	err   error
}

func (f *fakeRefresher) Refresh(_ context.Context, symbol string) (int, error) {
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[symbol]++
	return 1, f.err
}

type fakePublisher struct {
	bars   []models.Bar
	err    error
	closed bool
}

func (f *fakePublisher) PublishBars(_ context.Context, bars []models.Bar) error {
	if f.err != nil {
		return f.err
	}
	f.bars = append(f.bars, bars...)
	return nil
}

func (f *fakePublisher) Close() error {
	f.closed = true
	return nil
}

func memStore() *repository.MemoryBarStore {
	return repository.NewMemoryBarStore(repository.WithMemoryClock(func() time.Time { return testNow }))
}

func TestKafkaTicksHandler_SingleAndBatch(t *testing.T) {
	store := memStore()
	ref := &fakeRefresher{}
	m := newCountingMetrics()
	h := NewKafkaTicksHandler("finchart.bars", store, ref, m, nil)
	ctx := context.Background()

	assert.Equal(t, "finchart.bars", h.Topic())

	ms := testNow.Add(-time.Minute).UnixMilli()
	require.NoError(t, h.Handle(ctx, []byte(`{"symbol":"aapl","interval":"1m","time":`+itoa(ms)+`,"open":1,"high":2,"low":0.5,"close":1.5,"volume":10}`)))

	bars, err := store.Query(ctx, "AAPL", "1m", testNow.Add(-time.Hour), testNow)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.True(t, testNow.Add(-time.Minute).Equal(bars[0].Time), "millisecond timestamps are normalized")
	assert.InDelta(t, 1.5, bars[0].Close, 1e-9)

	batch := `[
		{"symbol":"MSFT","interval":"1d","time":` + itoa(testNow.AddDate(0, 0, -2).Unix()) + `,"close":300,"volume":5},
		{"symbol":"MSFT","interval":"1d","time":` + itoa(testNow.AddDate(0, 0, -1).Unix()) + `,"open":300,"high":305,"low":299,"close":304,"volume":7},
		{"symbol":"","time":1,"close":1}
	]`
	require.NoError(t, h.Handle(ctx, []byte(batch)))

	bars, err = store.Query(ctx, "MSFT", "1d", testNow.AddDate(0, 0, -5), testNow)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.InDelta(t, 300, bars[0].High, 1e-9, "close-only prints become flat bars")

	assert.Equal(t, 1, ref.calls["AAPL"])
	assert.Equal(t, 1, ref.calls["MSFT"])
	assert.Equal(t, 2, m.ingested["MSFT"])
	assert.Equal(t, 1, m.errors["consumer_invalid"])
}

func TestKafkaTicksHandler_Errors(t *testing.T) {
	m := newCountingMetrics()
	h := NewKafkaTicksHandler("t", memStore(), &fakeRefresher{err: errors.New("reload")}, m, nil)

	err := h.Handle(context.Background(), []byte(`{not json`))
	assert.ErrorIs(t, err, pkgkafka.ErrPermanent)
	assert.Equal(t, 1, m.errors["consumer_unmarshal"])

	// stored bars are not redelivered because a chart reload failed
	assert.NoError(t, h.Handle(context.Background(), []byte(`{"symbol":"AAPL","time":1728500000,"close":1}`)))
	assert.Equal(t, 1, m.errors["consumer_refresh"])
}

func TestKafkaTicksHandler_RejectsInvalidBars(t *testing.T) {
	store := memStore()
	m := newCountingMetrics()
	h := NewKafkaTicksHandler("t", store, nil, m, nil)
	ctx := context.Background()
	ts := itoa(testNow.Add(-time.Minute).Unix())

	for _, payload := range []string{
		`{"symbol":"AAPL","interval":"1m","time":` + ts + `}`,
		`{"symbol":"AAPL","interval":"1m","time":` + ts + `,"open":2,"high":1,"low":3,"close":2}`,
		`{"symbol":"AAPL","interval":"1m","close":2}`,
		`[{"symbol":"AAPL","time":` + ts + `,"close":-1}]`,
	} {
		err := h.Handle(ctx, []byte(payload))
		assert.ErrorIs(t, err, pkgkafka.ErrPermanent, payload)
	}
	assert.Equal(t, 4, m.errors["consumer_invalid"])

	bars, err := store.Query(ctx, "AAPL", "1m", testNow.Add(-time.Hour), testNow)
	require.NoError(t, err)
	assert.Empty(t, bars, "nothing invalid reaches the store")

	assert.NoError(t, h.Handle(ctx, []byte(`[]`)), "an empty batch is not an error")
}

func TestBarIngestor_Storage(t *testing.T) {
	store := memStore()
	ref := &fakeRefresher{}
	in := NewBarIngestor(nil, store, ref, nil, nil)
	assert.Equal(t, "storage", in.Backend())

	n, err := in.Ingest(context.Background(), []models.Bar{
		{Symbol: " tsla ", Interval: "1d", Time: testNow.AddDate(0, 0, -1), Close: 250},
		{Symbol: "TSLA", Interval: "", Time: testNow, Close: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, ref.calls["TSLA"])

	pts, err := store.Ticks(context.Background(), "TSLA", models.Granularity{Range: models.Range1W})
	require.NoError(t, err)
	assert.Len(t, pts, 1)

	_, err = in.Ingest(context.Background(), []models.Bar{{Symbol: "X"}})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestBarIngestor_Kafka(t *testing.T) {
	pub := &fakePublisher{}
	ref := &fakeRefresher{}
	in := NewBarIngestor(pub, memStore(), ref, nil, nil)
	assert.Equal(t, "kafka", in.Backend())

	n, err := in.Ingest(context.Background(), []models.Bar{{Symbol: "aapl", Interval: "1m", Time: testNow, Close: 1}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, pub.bars, 1)
	assert.Equal(t, "AAPL", pub.bars[0].Symbol)
	assert.Empty(t, ref.calls, "the consumer refreshes charts once the bars are stored")

	pub.err = errors.New("broker down")
	_, err = in.Ingest(context.Background(), []models.Bar{{Symbol: "aapl", Interval: "1m", Time: testNow, Close: 1}})
	assert.Error(t, err)

	in.Close()
	assert.True(t, pub.closed)
}

type countingSweeper struct{ calls int }

func (s *countingSweeper) Sweep(time.Duration) int {
	s.calls++
	return 2
}

func TestSessionReaper(t *testing.T) {
	sw := &countingSweeper{}
	r, err := NewSessionReaper(sw, "@every 1h", time.Minute, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, r.RunOnce())
	assert.Equal(t, 1, sw.calls)

	r.Start()
	r.Stop()

	_, err = NewSessionReaper(sw, "every tuesday", time.Minute, nil)
	assert.Error(t, err)
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
