package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"CreditPulse/internal/domain/models"
	domrepo "CreditPulse/internal/domain/repository"
	mid "CreditPulse/internal/middleware"
	"CreditPulse/internal/usecase"
	"CreditPulse/pkg/config"
	xhttp "CreditPulse/pkg/http"
	pkgkafka "CreditPulse/pkg/kafka"
	applogger "CreditPulse/pkg/logger"
)

// App owns the runner and, in stream mode, the consumer, the input gate and
// the ops HTTP server.
type App struct {
	cfg      *config.Config
	log      *applogger.Logger
	inputs   domrepo.InputSource
	runner   *usecase.AnalysisRunner
	gate     *mid.InputGate
	consumer *pkgkafka.Consumer
	handler  *usecase.KafkaInputsHandler
	http     *xhttp.Server
}

// New creates the application. consumer and handler are nil when Kafka is
// disabled.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	inputs domrepo.InputSource,
	runner *usecase.AnalysisRunner,
	gate *mid.InputGate,
	consumer *pkgkafka.Consumer,
	handler *usecase.KafkaInputsHandler,
	http *xhttp.Server,
) *App {
	if log == nil {
		log = applogger.Nop()
	}
	return &App{
		cfg:      cfg,
		log:      log,
		inputs:   inputs,
		runner:   runner,
		gate:     gate,
		consumer: consumer,
		handler:  handler,
		http:     http,
	}
}

// RunBatch loads the inputs of tickers between from and to (inclusive) and
// analyzes them. An empty ticker list means every ticker in the range.
func (a *App) RunBatch(ctx context.Context, from, to time.Time, tickers []string) (*models.BatchReport, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("%w: range end %s before start %s", models.ErrInvalidInput, to.Format(time.DateOnly), from.Format(time.DateOnly))
	}
	rows, err := a.inputs.Inputs(ctx, tickers, from, to)
	if err != nil {
		return nil, fmt.Errorf("load inputs: %w", err)
	}
	a.log.Info("batch started",
		applogger.Date("from", from),
		applogger.Date("to", to),
		applogger.Int("rows", len(rows)),
		applogger.Strings("tickers", tickers),
	)

	report, err := a.runner.RunBatch(ctx, rows)
	if err != nil {
		return nil, err
	}
	if len(report.Failures) > 0 {
		fields := make([]applogger.Field, 0, 4)
		for kind, n := range report.FailureCounts() {
			fields = append(fields, applogger.Int(string(kind), n))
		}
		a.log.Warn("batch row failures", fields...)
	}
	return report, nil
}

// RunStream consumes the inputs topic and serves the ops endpoints until ctx
// is done, then shuts everything down.
func (a *App) RunStream(ctx context.Context) error {
	if a.consumer == nil || a.handler == nil {
		return errors.New("stream mode requires kafka.enabled")
	}

	if a.http != nil {
		if err := a.http.Start(); err != nil {
			return fmt.Errorf("start http: %w", err)
		}
	}
	a.gate.Start(ctx)
	a.consumer.RegisterHandler(a.handler)
	if err := a.consumer.Start(ctx); err != nil {
		a.gate.Stop()
		a.stopHTTP()
		return fmt.Errorf("start consumer: %w", err)
	}
	a.log.Info("stream started", applogger.String("topic", a.handler.Topic()))

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	return a.shutdown()
}

// Serve runs only the ops HTTP server until ctx is done.
func (a *App) Serve(ctx context.Context) error {
	if a.http == nil {
		return errors.New("http server is not configured")
	}
	if err := a.http.Start(); err != nil {
		return fmt.Errorf("start http: %w", err)
	}
	<-ctx.Done()
	return a.stopHTTP()
}

func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.consumer.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop consumer: %w", err))
	}
	a.gate.Stop()
	if n := a.gate.Buffered(); n > 0 {
		a.log.Warn("rows still buffered at shutdown", applogger.Int("rows", n))
	}
	if err := a.stopHTTP(); err != nil {
		errs = append(errs, err)
	}
	a.log.Info("shutdown complete")
	return errors.Join(errs...)
}

func (a *App) stopHTTP() error {
	if a.http == nil {
		return nil
	}
	return a.http.Stop(context.Background())
}
