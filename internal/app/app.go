package app

import (
	"context"
	"sync"
	"whalewatch/internal/alerts"
	"whalewatch/internal/ingest"
	"whalewatch/internal/pubsub/nats"
	"whalewatch/internal/service"

	"gitlab.com/nevasik7/alerting/logger"
)

type HTTPServer interface {
	Run() error
	Shutdown(ctx context.Context) error
}

// App owns the runtime: HTTP server, ingest sources, housekeeper and
// status broadcaster. Shutdown stops them in reverse of data-flow order
// so nothing produces into a closed stage.
type App struct {
	log     logger.Logger
	httpSrv HTTPServer
	sources []ingest.Source
	keeper  *service.Housekeeper
	caster  *nats.Broadcaster
	pipe    *service.Pipeline
	queue   *alerts.Queue

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(
	log logger.Logger,
	httpSrv HTTPServer,
	sources []ingest.Source,
	keeper *service.Housekeeper,
	caster *nats.Broadcaster,
	pipe *service.Pipeline,
	queue *alerts.Queue,
) *App {
	return &App{
		log:     log,
		httpSrv: httpSrv,
		sources: sources,
		keeper:  keeper,
		caster:  caster,
		pipe:    pipe,
		queue:   queue,
	}
}

func (a *App) Start() error {
	a.log.Debug("App started begin...")

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	go func() {
		if err := a.httpSrv.Run(); err != nil {
			a.log.Fatalf("Start HTTP server is error=%v", err)
		}
	}()

	for _, src := range a.sources {
		a.wg.Add(1)
		go func(src ingest.Source) {
			defer a.wg.Done()
			if err := src.Run(ctx); err != nil && ctx.Err() == nil {
				a.log.Errorf("Ingest source %s stopped, error=%v", src.Name(), err)
			}
		}(src)
	}

	if a.keeper != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.keeper.Run(ctx)
		}()
	}

	if a.caster != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.caster.Run(ctx)
		}()
	}

	a.log.Info("App started")
	return nil
}

func (a *App) Shutdown(ctx context.Context) error {
	a.log.Debug("App stopped begin...")

	if a.cancel != nil {
		a.cancel()
	}

	if err := a.httpSrv.Shutdown(ctx); err != nil {
		return err
	}

	// background loops first, then the stages they feed
	a.wg.Wait()
	a.pipe.Close()
	a.queue.Close()

	a.log.Info("App stopped")
	return nil
}
