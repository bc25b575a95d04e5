// Command reportsvc starts the report lifecycle service.
//
// The service fronts an external document store. Every stored document is
// registered in a relational report index keyed by airline, reporting period,
// report type and year. Completing a report purges its historic variants
// from both the store and the index, and storing a processed core report
// re-evaluates whether secondary report generation can be announced on the
// message bus.
//
// Usage:
//
//	go run ./cmd/reportsvc [-config configs/development.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/internal/api/handler"
	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/internal/api/router"
	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/internal/deletion"
	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/internal/docstore"
	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/internal/lifecycle"
	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/internal/messaging"
	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/internal/notification"
	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/internal/report"
	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/internal/report/index"
	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/internal/token"
	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/pkg/database"
	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/pkg/pubsub"
	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/pkg/redis"
)

// busSender is a message bus backend the dispatcher can hand envelopes to.
type busSender interface {
	messaging.Sender
	Close() error
}

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting report lifecycle service",
		"port", cfg.Server.Port,
		"database_driver", cfg.Database.Driver,
		"bus_driver", cfg.Bus.Driver,
		"document_store", cfg.DocumentStore.BaseURL,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("report lifecycle service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("report lifecycle service stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(nil)
	}

	// Report index.
	db, err := database.New(cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to report index: %w", err)
	}
	defer db.Close()
	if cfg.Database.AutoMigrate {
		if err := index.Migrate(ctx, db); err != nil {
			return fmt.Errorf("migrating report index: %w", err)
		}
	}
	reports := index.New(db, m)

	// Document store and the schemas it accepts.
	store := docstore.New(cfg.DocumentStore, m)
	registry := docstore.NewRegistry()
	registry.Register(func(payload []byte) error {
		_, err := report.ParseBase(payload)
		return err
	}, schema.Known()...)

	tokens, err := token.New(cfg.Token)
	if err != nil {
		return fmt.Errorf("configuring token provider: %w", err)
	}

	// Message bus.
	sender, err := newBusSender(ctx, cfg.Bus)
	if err != nil {
		return err
	}
	defer sender.Close()
	dispatcher := messaging.NewPublisher(sender, cfg.Bus.PublishTimeout)

	trigger, err := notification.ParseTrigger(cfg.Notifications.Trigger)
	if err != nil {
		return err
	}
	notifier := notification.NewService(
		notification.NewGate(reports),
		dispatcher,
		cfg.Notifications.SecondaryReportTopic,
		trigger,
		m,
	)

	checker := health.NewChecker()
	checker.Register("report_index", health.PingCheck(reports.Ping))
	checker.Register("document_store", health.BreakerCheck(store.BreakerState))

	// Optional distributed lock for history purges.
	deps := lifecycle.Deps{
		Store:     store,
		Index:     reports,
		Tokens:    tokens,
		Deleter:   deletion.New(reports, store, tokens, m),
		Notifier:  notifier,
		Validator: registry,
		Metrics:   m,
	}
	if cfg.Redis.Addr != "" {
		rdb, err := redis.NewClient(cfg.Redis)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer rdb.Close()
		deps.Locker = redis.NewLocker(rdb, cfg.Redis.LockTTL)
		checker.Register("redis", health.PingCheck(rdb.Ping))
	} else {
		slog.Warn("redis not configured, history purges are not serialised across replicas")
	}

	svc := lifecycle.New(deps)
	api := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router.New(handler.New(svc), checker, m, cfg.Server.RequestTimeout),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	servers := []*http.Server{api}
	if cfg.Metrics.Enabled {
		servers = append(servers, metrics.NewServer(cfg.Metrics.Port))
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			slog.Info("http server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serving %s: %w", srv.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Error("server shutdown error", "addr", srv.Addr, "error", err)
			}
		}
		return nil
	})
	return g.Wait()
}

func newBusSender(ctx context.Context, cfg config.BusConfig) (busSender, error) {
	switch cfg.Driver {
	case "pubsub":
		p, err := pubsub.NewPublisher(ctx, cfg.PubSub)
		if err != nil {
			return nil, fmt.Errorf("connecting to pubsub: %w", err)
		}
		return p, nil
	default:
		return kafka.NewProducer(cfg.Kafka), nil
	}
}
