package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	mid "FinChart/internal/middleware"
	"FinChart/internal/usecase"
	"FinChart/pkg/config"
	xhttp "FinChart/pkg/http"
	pkgkafka "FinChart/pkg/kafka"
	applogger "FinChart/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	l          *applogger.Logger
	httpServer *xhttp.Server
	sessions   *usecase.ChartSessions
	reaper     *usecase.SessionReaper
	pipeline   *mid.BarPipeline
	ingestor   *usecase.BarIngestor
	consumer   *pkgkafka.Consumer
	kh         pkgkafka.MessageHandler
}

type Option func(*App)

func WithReaper(r *usecase.SessionReaper) Option {
	return func(a *App) { a.reaper = r }
}

func WithPipeline(p *mid.BarPipeline) Option {
	return func(a *App) { a.pipeline = p }
}

func WithIngestor(i *usecase.BarIngestor) Option {
	return func(a *App) { a.ingestor = i }
}

// WithConsumer attaches the Kafka consumer and the handler it serves. Both
// must be set for the consumer to run.
func WithConsumer(c *pkgkafka.Consumer, h *usecase.KafkaTicksHandler) Option {
	return func(a *App) {
		if c == nil || h == nil {
			return
		}
		a.consumer, a.kh = c, h
	}
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, l *applogger.Logger, httpServer *xhttp.Server, sessions *usecase.ChartSessions, opts ...Option) *App {
	if l == nil {
		l = applogger.NewNop()
	}
	a := &App{cfg: cfg, l: l.Component("app"), httpServer: httpServer, sessions: sessions}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts every background component and the HTTP server, then blocks
// until a signal arrives or the server fails.
func (a *App) Run() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	return a.run(sigCh)
}

func (a *App) run(stop <-chan os.Signal) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if a.pipeline != nil {
		a.pipeline.Start(ctx)
	}
	if a.reaper != nil {
		a.reaper.Start()
	}
	if a.consumer != nil {
		a.consumer.RegisterHandler(a.kh)
		if err := a.consumer.Start(); err != nil {
			a.shutdown()
			return fmt.Errorf("start kafka consumer: %w", err)
		}
		a.l.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	errCh := a.httpServer.Start()
	a.l.Info("finchart started",
		applogger.Int("port", a.cfg.Server.Port),
		applogger.Bool("kafka_consumer", a.consumer != nil),
		applogger.Bool("bar_pipeline", a.pipeline != nil),
	)

	var runErr error
	select {
	case sig := <-stop:
		a.l.Info("shutdown signal received", applogger.String("signal", sig.String()))
	case err, ok := <-errCh:
		if ok && err != nil {
			a.l.Error("http server failed", applogger.Error(err))
			runErr = err
		}
	}
	a.shutdown()
	return runErr
}

// shutdown stops components in reverse dependency order: no new requests,
// then no new bars, then the sessions themselves.
func (a *App) shutdown() {
	a.l.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Stop(ctx); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	if a.ingestor != nil {
		a.ingestor.Close()
	}
	if a.pipeline != nil {
		a.pipeline.Stop()
	}
	if a.reaper != nil {
		a.reaper.Stop()
	}
	a.sessions.CloseAll("shutdown")

	a.l.Info("shutdown complete")
}
