package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"whalewatch/internal/alerts"
	"whalewatch/internal/alpha"
	"whalewatch/internal/api/http"
	"whalewatch/internal/api/http/mw"
	"whalewatch/internal/config"
	"whalewatch/internal/dedupe"
	rdedupe "whalewatch/internal/dedupe/redis"
	"whalewatch/internal/domain"
	"whalewatch/internal/ingest"
	"whalewatch/internal/market"
	"whalewatch/internal/metrics"
	"whalewatch/internal/normalize"
	"whalewatch/internal/pubsub/nats"
	"whalewatch/internal/safety"
	"whalewatch/internal/security"
	"whalewatch/internal/service"
	"whalewatch/internal/stores/clickhouse"
	"whalewatch/internal/stores/redis"
	"whalewatch/internal/window"

	"github.com/grafana/pyroscope-go"
	"github.com/prometheus/client_golang/prometheus"
	lgcfg "gitlab.com/nevasik7/alerting/config"
	"gitlab.com/nevasik7/alerting/logger"
)

// Paging channel is not wired here, operator alerts land in the error log.
type opsAlerter struct {
	logger.Logger
}

func (a opsAlerter) ErrorfLogAndAlert(format string, args ...interface{}) {
	a.Errorf(format, args...)
}

type Container struct {
	app *App

	// infra
	redis *redis.Client
	ch    *clickhouse.Conn
	nc    *nats.Client

	httpSrv *http.Server

	profiler *pyroscope.Profiler
}

func (c *Container) Start() error {
	return c.app.Start()
}

func (c *Container) Stop(ctx context.Context) error {
	return c.app.Shutdown(ctx)
}

// Construct image app
func Build(ctx context.Context, cfg *config.Config) (*Container, func()) {
	lg := logger.New(lgcfg.LoggerCfg{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	lg.Info("Successfully initialize logger")

	profiler, err := metrics.InitPProf(&cfg.Metrics.Pyroscope, cfg.App.InstanceID)
	if err != nil {
		lg.Panicf("Pyroscope initialize failed: %v", err)
	}
	if profiler != nil {
		lg.Infof("Successfully initialize Pyroscope to %s as %s", cfg.Metrics.Pyroscope.ServerAddr, cfg.Metrics.Pyroscope.AppName)
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	// Redis client
	rdb, err := redis.New(ctx, cfg.Stores.Redis)
	if err != nil {
		lg.Panicf("Failed to initialize redis client: %v", err)
	}
	lg.Infof("Successfully initialize redis client, addr=%s", cfg.Stores.Redis.Addr)

	// Dedupe
	var deduper dedupe.Deduper
	if cfg.Dedupe.Backend == "redis" {
		rd, derr := rdedupe.NewRedisDeduper(lg, &cfg.Dedupe, rdb)
		if derr != nil {
			lg.Panicf("Failed to initialize redis deduper: %v", derr)
		}
		deduper = rd
		lg.Infof("Successfully initialize Deduper redis by prefix %s", cfg.Dedupe.Prefix)
	} else {
		deduper = dedupe.NewInMemoryDedupe(lg)
		lg.Info("Successfully initialize Deduper memory")
	}

	// Base asset registry + normalizer
	registry := normalize.NewRegistry(cfg.Chains)
	lg.Infof("Successfully initialize asset registry, chains=%d", len(cfg.Chains))

	prices, err := market.NewHTTPPriceSource(lg, &cfg.Providers)
	if err != nil {
		lg.Panicf("Failed to initialize price source: %v", err)
	}

	provider, err := market.NewHTTPProvider(lg, &cfg.Providers)
	if err != nil {
		lg.Panicf("Failed to initialize market provider: %v", err)
	}
	lg.Info("Successfully initialize market provider")

	norm := normalize.New(lg, registry, prices)

	// Window tracker
	tracker, err := window.NewTracker(lg, &cfg.Window)
	if err != nil {
		lg.Panicf("Failed to initialize window tracker: %v", err)
	}
	lg.Info("Successfully initialize Window Tracker")

	// Safety cascade
	secClient, err := safety.NewSecurityClient(lg, &cfg.Providers)
	if err != nil {
		lg.Panicf("Failed to initialize security client: %v", err)
	}
	cascade, err := safety.NewCascade(lg, &cfg.Safety, &cfg.Providers, provider, safety.DefaultChecks(secClient, &cfg.Safety))
	if err != nil {
		lg.Panicf("Failed to initialize safety cascade: %v", err)
	}
	lg.Info("Successfully initialize Safety Cascade")

	// NATS client
	nc, err := nats.Connect(&cfg.PubSub.NATS, lg)
	if err != nil || nc == nil {
		lg.Panicf("Failed to initialize nats client: %v", err)
	}
	lg.Infof("Successfully initialize nats client, url=%s", cfg.PubSub.NATS.URL)

	// Alert queue
	sender, err := alerts.NewSender(lg, &cfg.Alerts, nc)
	if err != nil {
		lg.Panicf("Failed to initialize alert sender: %v", err)
	}
	queue, err := alerts.NewQueue(lg, &cfg.Alerts, sender)
	if err != nil {
		lg.Panicf("Failed to initialize alert queue: %v", err)
	}
	lg.Infof("Successfully initialize alert queue, sender=%s", sender.Name())

	alert := opsAlerter{lg}

	// ClickHouse archive, optional
	var (
		chConn   *clickhouse.Conn
		chWriter *clickhouse.Writer
	)
	if cfg.Stores.ClickHouse.Enabled {
		chConn, err = clickhouse.New(ctx, &cfg.Stores.ClickHouse)
		if err != nil {
			lg.Panicf("Failed to initialize clickhouse client: %v", err)
		}
		url := strings.Split(cfg.Stores.ClickHouse.DSN, "?")
		lg.Infof("Successfully initialize clickhouse client, url=%s", url[0])

		chWriter = clickhouse.NewWriter(alert, chConn.Native, cfg.Stores.ClickHouse)
		lg.Info("Successfully initialize clickhouse writer")
	}

	// Pipeline
	pipe, err := service.NewPipeline(&service.PipelineDeps{
		Logger:     lg,
		Normalizer: norm,
		Tracker:    tracker,
		Policy:     alpha.NewTriggerPolicy(&cfg.Window),
		Cascade:    cascade,
		Deduper:    deduper,
		Queue:      queue,
		Archive:    chWriter,
		Metrics:    m,
	}, &cfg.Window, &cfg.Safety)
	if err != nil {
		lg.Panicf("Failed to initialize pipeline: %v", err)
	}
	lg.Info("Successfully initialize Pipeline")

	// Housekeeper
	keeper, err := service.NewHousekeeper(&service.HousekeeperDeps{
		Logger:   lg,
		Tracker:  tracker,
		Deduper:  deduper,
		Provider: provider,
		Cascade:  cascade,
		Queue:    queue,
		Metrics:  m,
	}, &cfg.Housekeeping, &cfg.Dedupe)
	if err != nil {
		lg.Panicf("Failed to initialize housekeeper: %v", err)
	}

	// Status broadcaster
	caster := nats.NewBroadcaster(lg, nc, &cfg.PubSub.NATS, func() *domain.StatusSnapshot {
		return pipe.Snapshot(context.Background())
	})

	// Ingest sources: a source that fails to construct is alerted and
	// skipped, the rest of the networks keep flowing
	var sources []ingest.Source
	if cfg.Ingest.NATSSubject != "" {
		src, serr := ingest.NewNATSSource(lg, nc, cfg.Ingest.NATSSubject, pipe)
		if serr != nil {
			alert.ErrorfLogAndAlert("Failed to initialize NATS ingest source: %v", serr)
		} else {
			sources = append(sources, src)
		}
	}
	for _, pc := range cfg.Ingest.Poll {
		p, perr := ingest.NewPoller(lg, pc, pipe)
		if perr != nil {
			alert.ErrorfLogAndAlert("Failed to initialize poll source %s: %v", pc.Name, perr)
			continue
		}
		sources = append(sources, p)
	}
	lg.Infof("Successfully initialize ingest sources, count=%d", len(sources))

	// JWT, optional
	var (
		verifier *security.RS256Verifier
		jwtMW    *mw.JWTMiddleware
	)
	if cfg.Security.JWT.Enabled {
		if verifier, err = security.NewRS256Verifier(&cfg.Security.JWT); err != nil {
			lg.Panicf("Failed to initialize JWT verifier: %v", err)
		}
		if jwtMW, err = mw.NewJWTMiddleware(verifier); err != nil {
			lg.Panicf("Failed to initialize JWT middleware: %v", err)
		}
		lg.Info("Successfully initialize JWT-Verifier")
	}

	var corsMW *mw.CORSMiddleware
	if cfg.API.HTTP.CORS.Enabled {
		corsMW = mw.NewCORSConfig(&cfg.API.HTTP.CORS)
	}

	// HTTP API
	api, err := http.NewAPI(lg, pipe, func(rctx context.Context) error {
		if perr := rdb.Ping(rctx).Err(); perr != nil {
			return fmt.Errorf("redis: %w", perr)
		}
		if chConn != nil {
			if perr := chConn.Native.Ping(rctx); perr != nil {
				return fmt.Errorf("clickhouse: %w", perr)
			}
		}
		if !nc.Ready() {
			return errors.New("nats: not connected")
		}
		return nil
	})
	if err != nil {
		lg.Panicf("Failed to initialize API: %v", err)
	}

	router := http.BuildRouter(
		api,
		mw.NewLogging(lg),
		mw.NewGzip(0, lg),
		mw.NewRateLimit(&cfg.RateLimit, rdb, verifier),
		jwtMW,
		corsMW,
	)

	httpSrv, err := http.NewServer(lg, &cfg.API.HTTP, router)
	if err != nil {
		lg.Panicf("Failed to initialize HTTP server: %v", err)
	}
	lg.Info("Successfully initialize HTTP server")

	c := &Container{
		app:      New(lg, httpSrv, sources, keeper, caster, pipe, queue),
		redis:    rdb,
		ch:       chConn,
		nc:       nc,
		httpSrv:  httpSrv,
		profiler: profiler,
	}

	cleanupF := func() {
		ctxClean, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if c.profiler != nil {
			if err := c.profiler.Stop(); err != nil {
				lg.Errorf("Failed to stop profiler: %v", err)
			}
		}

		if chWriter != nil {
			if err := chWriter.Close(ctxClean); err != nil {
				lg.Errorf("Failed to close by cleanupF clickhouse writer: %v", err)
			}
		}
		if c.ch != nil {
			if err := c.ch.Close(); err != nil {
				lg.Errorf("Failed to close by cleanupF clickhouse client: %v", err)
			}
		}

		if err := c.nc.Close(); err != nil {
			lg.Errorf("Failed to close by cleanupF nats client: %v", err)
		}

		if err := c.redis.Close(); err != nil {
			lg.Errorf("Failed to close by cleanupF redis client: %v", err)
		}

		lg.Info("Successfully cleaned up dependency")
	}

	lg.Info("Successfully initialize Wiring")
	return c, cleanupF
}
