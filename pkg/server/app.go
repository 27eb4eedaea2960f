package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"WhalePulse/internal/alerts"
	domrepo "WhalePulse/internal/domain/repository"
	"WhalePulse/internal/realtime"
	"WhalePulse/internal/usecase"
	"WhalePulse/pkg/config"
	xhttp "WhalePulse/pkg/http"
	pkgkafka "WhalePulse/pkg/kafka"
	applogger "WhalePulse/pkg/logger"
)

// App encapsulates the entire application lifecycle: consumers in, cycle in
// the middle, hub/alerts/API out.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	consumer   *pkgkafka.Consumer
	handlers   []pkgkafka.MessageHandler
	cycle      *usecase.Cycle
	dispatcher *alerts.Dispatcher
	hub        *realtime.Hub
	throttler  *realtime.PriceThrottler
	archive    domrepo.Archive
	publisher  domrepo.EventPublisher
	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	consumer *pkgkafka.Consumer,
	handlers []pkgkafka.MessageHandler,
	cycle *usecase.Cycle,
	dispatcher *alerts.Dispatcher,
	hub *realtime.Hub,
	throttler *realtime.PriceThrottler,
	archive domrepo.Archive,
	publisher domrepo.EventPublisher,
	httpHandler xhttp.Handler,
) *App {
	httpServer := xhttp.NewServer(httpHandler,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetrics(cfg.Metrics.Enabled, cfg.Metrics.Path),
	)
	return &App{
		cfg:        cfg,
		log:        log,
		consumer:   consumer,
		handlers:   handlers,
		cycle:      cycle,
		dispatcher: dispatcher,
		hub:        hub,
		throttler:  throttler,
		archive:    archive,
		publisher:  publisher,
		httpServer: httpServer,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.hub.Start(ctx)
	a.dispatcher.Start(ctx)
	go a.throttler.Run(ctx)
	go a.cycle.Run(ctx)

	for _, h := range a.handlers {
		a.consumer.RegisterHandler(h)
		a.log.Info("kafka handler registered", applogger.String("topic", h.Topic()))
	}
	go func() {
		if err := a.consumer.Start(); err != nil {
			a.log.Error("kafka consumer error", applogger.Error(err))
		}
	}()

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}
	a.log.Info("server started", applogger.Int("port", a.cfg.Server.Port))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	cancel()
	return a.shutdown(context.Background())
}

// shutdown gracefully stops all services in dependency order: inbound first,
// then the pipeline, then outbound surfaces and storage.
func (a *App) shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.consumer.Stop(shutdownCtx); err != nil {
		a.log.Warn("kafka consumer stop error", applogger.Error(err))
	}

	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	a.dispatcher.Stop()
	a.hub.Stop()

	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.log.Warn("event publisher close error", applogger.Error(err))
		}
	}

	if a.archive != nil {
		if err := a.archive.Close(); err != nil {
			a.log.Warn("archive close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
