package server

import (
	"context"
	"net"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinChart/internal/domain/models"
	mid "FinChart/internal/middleware"
	"FinChart/internal/render"
	"FinChart/internal/repository"
	"FinChart/internal/services/chart"
	"FinChart/internal/services/drawing"
	"FinChart/internal/services/indicators"
	"FinChart/internal/services/series"
	"FinChart/internal/services/viewport"
	"FinChart/internal/usecase"
	"FinChart/pkg/config"
	xhttp "FinChart/pkg/http"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestApp_RunUntilSignal(t *testing.T) {
	cfg, err := config.Parse([]byte("environment: test\n"))
	require.NoError(t, err)
	cfg.Server.ShutdownTimeout = time.Second

	now := time.Now()
	store := repository.NewMemoryBarStore()
	require.NoError(t, store.StoreBatch(context.Background(), []models.Bar{
		{Symbol: "AAPL", Interval: "1d", Time: now.Add(-2 * time.Hour), Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10},
		{Symbol: "AAPL", Interval: "1d", Time: now.Add(-time.Hour), Open: 1.5, High: 2.5, Low: 1, Close: 2, Volume: 12},
	}))
	sessions := usecase.NewChartSessions(store, series.NewAggregator(), render.Factory, chart.Config{
		Indicators: indicators.DefaultConfig(),
		Viewport:   viewport.DefaultConfig(),
		TrendLine:  drawing.TrendSegment,
	})
	_, err = sessions.Open(context.Background(), usecase.OpenParams{Symbol: "AAPL", Granularity: models.Granularity{Range: models.Range1M}})
	require.NoError(t, err)

	srv := xhttp.NewServer(nil, xhttp.WithHost("127.0.0.1"), xhttp.WithPort(freePort(t)))
	pipeline := mid.NewBarPipeline(store, nil)
	app := New(cfg, nil, srv, sessions, WithPipeline(pipeline), WithConsumer(nil, nil))

	stop := make(chan os.Signal, 1)
	done := make(chan error, 1)
	go func() { done <- app.run(stop) }()

	stop <- syscall.SIGTERM
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}
	assert.Zero(t, sessions.Len(), "sessions are closed on shutdown")
}

func TestApp_ServerFailureStopsRun(t *testing.T) {
	cfg, err := config.Parse([]byte("environment: test\n"))
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	busy := ln.Addr().(*net.TCPAddr).Port

	sessions := usecase.NewChartSessions(repository.NewMemoryBarStore(), series.NewAggregator(), render.Factory, chart.Config{
		Indicators: indicators.DefaultConfig(),
		Viewport:   viewport.DefaultConfig(),
	})
	srv := xhttp.NewServer(nil, xhttp.WithHost("127.0.0.1"), xhttp.WithPort(busy))
	app := New(cfg, nil, srv, sessions)

	done := make(chan error, 1)
	go func() { done <- app.run(make(chan os.Signal)) }()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not report the listen failure")
	}
}
