package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bookrelay-lab/bookrelay/internal/broker"
	"github.com/bookrelay-lab/bookrelay/internal/config"
	"github.com/bookrelay-lab/bookrelay/internal/consumer"
	"github.com/bookrelay-lab/bookrelay/internal/dashboard"
	"github.com/bookrelay-lab/bookrelay/internal/ingestion"
	"github.com/bookrelay-lab/bookrelay/internal/rollup"
	"github.com/bookrelay-lab/bookrelay/internal/server"
	mongostore "github.com/bookrelay-lab/bookrelay/internal/storage/mongo"

	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "bookrelay.yaml", "Path to configuration file")
	flag.Parse()

	// 0. Initialize Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 1. Load Configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded config",
		"ingestion", cfg.Ingestion.Enabled,
		"consumer", cfg.Consumer.Enabled,
		"rollup", cfg.Rollup.Enabled,
		"dashboard", cfg.Dashboard.Enabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Initialize Storage (MongoDB)
	client, err := mongostore.NewClient(mongostore.Config{
		URI:      cfg.Mongo.URI,
		Database: cfg.Mongo.Database,
		Timeout:  cfg.Mongo.TimeoutDuration(),
	})
	if err != nil {
		slog.Error("Failed to connect to MongoDB", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	eventStore := mongostore.NewEventStore(client, cfg.Mongo.EventsCollection)
	rollupStore := mongostore.NewRollupStore(client, cfg.Mongo.RollupsCollection)

	indexCtx, cancel := context.WithTimeout(ctx, cfg.Mongo.TimeoutDuration())
	defer cancel()
	if err := eventStore.EnsureIndexes(indexCtx); err != nil {
		slog.Error("Failed to create event indexes", "error", err)
		os.Exit(1)
	}
	if err := rollupStore.EnsureIndexes(indexCtx); err != nil {
		slog.Error("Failed to create rollup indexes", "error", err)
		os.Exit(1)
	}

	// 3. Initialize Broker (only the components that need it)
	var brokerClient *broker.Client
	if cfg.Ingestion.Enabled || cfg.Consumer.Enabled {
		brokerClient = broker.New(broker.Config{
			URL:        cfg.Broker.URL,
			Exchange:   cfg.Broker.Exchange,
			Queue:      cfg.Broker.Queue,
			RoutingKey: cfg.Broker.RoutingKey,
		})
		// A broker that is down at startup is retried lazily on first use.
		if err := brokerClient.Connect(); err != nil {
			slog.Warn("Broker unreachable at startup, will retry on demand", "error", err)
		}
		defer brokerClient.Close()
	}

	// 4. Initialize HTTP surface
	srv := server.New(fmtAddr(cfg.Server.Host, cfg.Server.Port), client, cfg.Server.Mode)
	if cfg.Ingestion.Enabled {
		ingestion.NewService(brokerClient, eventStore).RegisterRoutes(srv.Engine)
	}
	if cfg.Dashboard.Enabled {
		dashboard.NewService(rollupStore).RegisterRoutes(srv.Engine)
	}

	g, ctx := errgroup.WithContext(ctx)

	// 5. Start Consumer
	if cfg.Consumer.Enabled {
		cons := consumer.New(brokerClient, eventStore, consumer.Options{
			MaxAttempts:  cfg.Consumer.MaxAttempts,
			RetryDelay:   cfg.Consumer.RetryDelayDuration(),
			WriteTimeout: cfg.Consumer.WriteTimeoutDuration(),
		})
		g.Go(func() error {
			return cons.Run(ctx)
		})
	}

	// 6. Start Rollup Scheduler (supervised)
	if cfg.Rollup.Enabled {
		var source rollup.Source
		if cfg.Rollup.Source == "http" {
			source = rollup.NewHTTPSource(cfg.Rollup.ProviderURL, nil)
		} else {
			source = rollup.NewStoreSource(eventStore)
		}

		materializer := rollup.NewMaterializer(source, rollupStore, cfg.Rollup.WindowYears)
		scheduler := rollup.NewScheduler(materializer, cfg.Rollup.IntervalDuration())
		policy := rollup.RestartPolicy{
			MaxRestarts:    cfg.Rollup.MaxRestarts,
			Window:         cfg.Rollup.RestartWindowDuration(),
			InitialBackoff: cfg.Rollup.InitialBackoffDuration(),
			MaxBackoff:     cfg.Rollup.MaxBackoffDuration(),
		}
		g.Go(func() error {
			return rollup.Supervise(ctx, "rollup-scheduler", policy, scheduler.Start)
		})
	}

	// 7. HTTP server blocks until ctx is cancelled.
	g.Go(func() error {
		return srv.Run(ctx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("Service stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("Shutdown complete")
}

func fmtAddr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
