package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"grouporder-services/internal/catalog"
	"grouporder-services/internal/config"
	"grouporder-services/internal/db"
	"grouporder-services/internal/docstore"
	"grouporder-services/internal/grouporder"
	httpapi "grouporder-services/internal/http"
	"grouporder-services/internal/http/handlers"
	"grouporder-services/internal/logger"
	"grouporder-services/internal/metrics"
	"grouporder-services/internal/orders"
	"grouporder-services/internal/queue"
	"grouporder-services/internal/storage"
	"grouporder-services/internal/ws"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	reg := metrics.NewRegistry()

	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pool, err = db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal("database connection failed", zap.Error(err))
		}
		defer pool.Close()
		if err := db.Migrate(ctx, pool); err != nil {
			log.Fatal("database migration failed", zap.Error(err))
		}
	} else if cfg.DocstoreDriver == "postgres" {
		log.Fatal("DATABASE_URL is required for the postgres document store")
	}

	store, closeFeed := openStore(cfg, pool, log)
	defer closeFeed()
	defer store.Close()

	menu := openCatalog(ctx, cfg, pool, log)

	var recorder *orders.Recorder
	if pool != nil {
		recorder = &orders.Recorder{
			Repo:     orders.PGRepository{DB: pool},
			Catalog:  menu,
			Timezone: cfg.ReceiptTimezone,
			Logger:   log.Named("orders"),
			Metrics:  reg,
		}
		if cfg.ObjectStoreEnabled() {
			objects, err := storage.NewObjectStore(ctx, storage.Config{
				Endpoint:        cfg.ObjectStoreEndpoint,
				Region:          cfg.ObjectStoreRegion,
				AccessKeyID:     cfg.ObjectStoreAccessKeyID,
				SecretAccessKey: cfg.ObjectStoreSecretAccessKey,
				Bucket:          cfg.ObjectStoreBucket,
				PublicBaseURL:   cfg.ObjectStorePublicBaseURL,
				StorageClass:    cfg.ObjectStoreStorageClass,
			})
			if err != nil {
				log.Warn("object store disabled", zap.Error(err))
			} else {
				recorder.Uploader = objects
				log.Info("receipt archiving enabled", zap.String("bucket", cfg.ObjectStoreBucket))
			}
		}
	}

	var submitter grouporder.OrderSubmitter
	if recorder != nil {
		submitter = recorder
	}
	if cfg.RabbitMQURL != "" {
		qc, err := queue.New(cfg.RabbitMQURL)
		if err == nil {
			err = queue.EnsureGroupOrderTopology(qc)
			if err != nil {
				_ = qc.Close()
			}
		}
		if err != nil {
			if cfg.Env == "production" {
				log.Fatal("rabbitmq setup failed", zap.Error(err))
			}
			log.Warn("rabbitmq setup failed; recording orders directly", zap.Error(err))
		} else {
			defer qc.Close()
			submitter = queue.NewPublisher(qc)
			log.Info("rabbitmq enabled", zap.String("queue", queue.GroupOrderQueue))

			if cfg.RabbitMQWorkerMode == "daemon" && recorder != nil {
				log.Info("order recorder enabled", zap.String("mode", "daemon"))
				go func() {
					err := qc.ConsumeWithRetry(ctx, queue.GroupOrderQueue, recorder.HandleMessage, 5, 5*time.Second, log.Named("consumer"))
					if err != nil && !errors.Is(err, context.Canceled) {
						log.Error("consumer stopped", zap.Error(err))
					}
				}()
			} else {
				log.Info("order recorder disabled", zap.String("mode", cfg.RabbitMQWorkerMode))
			}
		}
	} else {
		log.Info("order queue disabled (RABBITMQ_URL is empty)")
	}
	if submitter == nil {
		log.Warn("placed orders will not be recorded: no database and no queue configured")
	}

	h := &handlers.Handler{Store: store, Logger: log, Config: cfg, Catalog: menu}
	if pool != nil {
		h.Receipts = orders.PGRepository{DB: pool}
	}
	wsServer := ws.New(store, menu, submitter, reg, log.Named("ws"), cfg)

	apiServer := &http.Server{
		Addr:        cfg.HTTPAddr,
		Handler:     httpapi.NewRouter(h, reg, log, cfg, wsServer),
		ReadTimeout: 15 * time.Second,
		// websocket connections outlive any write timeout, so none is set
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("group order api ready", zap.String("base", "/api"))
		log.Info("group order ws ready", zap.String("path", "/ws/group-order"))
		log.Info("group order service listening", zap.String("addr", cfg.HTTPAddr))
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctxShutdown); err != nil {
		log.Error("http server shutdown failed", zap.Error(err))
	}
	stopBackground()
}

// openStore picks the document store backend. The returned func releases the
// change feed connection, if any.
func openStore(cfg config.Config, pool *pgxpool.Pool, log *zap.Logger) (docstore.Store, func()) {
	switch cfg.DocstoreDriver {
	case "pebble":
		store, err := docstore.NewPebbleStore(cfg.PebbleDir)
		if err != nil {
			log.Fatal("pebble document store failed", zap.Error(err), zap.String("dir", cfg.PebbleDir))
		}
		log.Info("document store ready", zap.String("driver", "pebble"), zap.String("dir", cfg.PebbleDir))
		return store, func() {}
	case "postgres":
	default:
		log.Fatal("unknown document store driver", zap.String("driver", cfg.DocstoreDriver))
	}

	var feed docstore.ChangeFeed = docstore.NewPGFeed(pool, log.Named("feed"))
	closeFeed := func() {}
	if cfg.ChangeFeed == "nats" {
		nc, err := nats.Connect(cfg.NATSURL, nats.Name("grouporder-services"), nats.MaxReconnects(-1))
		if err != nil {
			log.Fatal("nats connection failed", zap.Error(err))
		}
		feed = docstore.NewNATSFeed(nc, cfg.NATSPrefix)
		closeFeed = nc.Close
	}
	log.Info("document store ready", zap.String("driver", "postgres"), zap.String("feed", cfg.ChangeFeed))
	return docstore.NewPostgresStore(pool, feed, log.Named("docstore")), closeFeed
}

func openCatalog(ctx context.Context, cfg config.Config, pool *pgxpool.Pool, log *zap.Logger) *catalog.Source {
	var loader catalog.Loader
	switch {
	case cfg.CatalogFile != "":
		loader = catalog.FileLoader{Path: cfg.CatalogFile}
	case pool != nil:
		loader = catalog.PGLoader{DB: pool}
	default:
		log.Fatal("no catalog source: set CATALOG_FILE or DATABASE_URL")
	}

	source := catalog.NewSource(loader, log.Named("catalog"))
	if err := source.Refresh(ctx); err != nil {
		log.Warn("initial catalog load failed", zap.Error(err))
	}
	go source.Run(ctx, cfg.CatalogRefreshInterval)
	return source
}
