package main

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/multierr"

	"github.com/mikaelcharbonneau/void-space-create-sub000/internal/config"
	"github.com/mikaelcharbonneau/void-space-create-sub000/internal/httpapi"
	"github.com/mikaelcharbonneau/void-space-create-sub000/internal/logging"
	"github.com/mikaelcharbonneau/void-space-create-sub000/internal/metrics"
	"github.com/mikaelcharbonneau/void-space-create-sub000/internal/middleware"
	"github.com/mikaelcharbonneau/void-space-create-sub000/internal/notify"
	"github.com/mikaelcharbonneau/void-space-create-sub000/internal/platform/migrations"
	"github.com/mikaelcharbonneau/void-space-create-sub000/internal/reports"
	"github.com/mikaelcharbonneau/void-space-create-sub000/internal/storage"
	"github.com/mikaelcharbonneau/void-space-create-sub000/internal/storage/memory"
	"github.com/mikaelcharbonneau/void-space-create-sub000/internal/storage/postgres"
	storagesupabase "github.com/mikaelcharbonneau/void-space-create-sub000/internal/storage/supabase"
	"github.com/mikaelcharbonneau/void-space-create-sub000/internal/submission"
	"github.com/mikaelcharbonneau/void-space-create-sub000/internal/supabase"
	"github.com/mikaelcharbonneau/void-space-create-sub000/internal/walkthrough"
)

const serviceName = "walkthrough-api"

// app wires the configured backends together.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	store    storage.Gateway
	catalog  *config.Catalog
	metrics  *metrics.Metrics
	redis    *redis.Client
	mqtt     *notify.Client
	notifier notify.Notifier

	submissions *submission.Service
	reports     *reports.Service

	// device id -> walkthrough.SequenceStore
	sequences sync.Map
}

func newApp(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, metrics: metrics.New(), notifier: notify.Nop{}}

	catalog, err := config.LoadCatalog(cfg.HallsFile)
	if err != nil {
		return nil, err
	}
	a.catalog = catalog

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.store = store

	if cfg.RedisAddr != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("connect to redis %s: %w", cfg.RedisAddr, err)
		}
	}

	if cfg.MQTTBroker != "" {
		client, err := notify.Connect(notify.MQTTConfig{Broker: cfg.MQTTBroker, ClientID: cfg.MQTTClientID})
		if err != nil {
			logger.WithError(err).Warn("MQTT broker unavailable; incident notifications disabled")
		} else {
			a.mqtt = client
			a.notifier = notify.NewMQTTNotifier(client, cfg.MQTTTopicPrefix)
		}
	}

	a.submissions = submission.New(a.store, submission.Options{
		Catalog:  a.catalog,
		Sequence: a.sequenceFor(cfg.DeviceID),
		Notifier: a.notifier,
		Metrics:  a.metrics,
		Logger:   logger,
		Workers:  cfg.IncidentWorkers,
	})
	a.reports = reports.New(a.store, logger)
	return a, nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *logging.Logger) (storage.Gateway, error) {
	switch cfg.StorageBackend {
	case config.BackendSupabase:
		client, err := supabase.New(supabase.Config{
			URL:     cfg.SupabaseURL,
			APIKey:  cfg.SupabaseServiceKey,
			Timeout: cfg.SupabaseTimeout,
			Retry:   supabase.DefaultRetryConfig(),
		})
		if err != nil {
			return nil, fmt.Errorf("create supabase client: %w", err)
		}
		return storagesupabase.New(client), nil

	case config.BackendPostgres:
		gw, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if cfg.AutoMigrate {
			if err := migrations.Up(gw.DB()); err != nil {
				_ = gw.Close()
				return nil, err
			}
			logger.Info("database migrations applied")
		}
		return gw, nil

	default:
		logger.Warn("using in-memory storage; data is lost on exit")
		return memory.New(), nil
	}
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// sequenceFor returns the walkthrough sequence of deviceID: a Redis key when
// Redis is configured, otherwise a file next to SEQUENCE_FILE. One store is
// kept per device so concurrent submissions share its lock.
func (a *app) sequenceFor(deviceID string) walkthrough.SequenceStore {
	if deviceID == "" {
		deviceID = a.cfg.DeviceID
	}
	if seq, ok := a.sequences.Load(deviceID); ok {
		return seq.(walkthrough.SequenceStore)
	}
	seq, _ := a.sequences.LoadOrStore(deviceID, a.newSequence(deviceID))
	return seq.(walkthrough.SequenceStore)
}

func (a *app) newSequence(deviceID string) walkthrough.SequenceStore {
	if a.redis != nil {
		return walkthrough.NewRedisSequence(a.redis, deviceID)
	}
	if deviceID == a.cfg.DeviceID {
		return walkthrough.NewFileSequence(a.cfg.SequenceFile)
	}
	name := filepath.Base(a.cfg.SequenceFile) + "-" + unsafeFileChars.ReplaceAllString(deviceID, "_")
	return walkthrough.NewFileSequence(filepath.Join(filepath.Dir(a.cfg.SequenceFile), name))
}

func (a *app) handler(limiter *middleware.RateLimiter) http.Handler {
	return httpapi.NewHandler(httpapi.Deps{
		Submissions: a.submissions,
		Reports:     a.reports,
		Store:       a.store,
		Metrics:     a.metrics,
		Logger:      a.logger,
		Auth:        middleware.NewAuthMiddleware([]byte(a.cfg.SupabaseJWTSecret), a.logger, nil),
		RateLimiter: limiter,
		CORS:        middleware.NewCORSMiddleware(nil),
		Sequences:   a.sequenceFor,
	})
}

// Close releases every backend connection.
func (a *app) Close() error {
	var errs error
	if a.mqtt != nil {
		a.mqtt.Disconnect()
	}
	if a.redis != nil {
		errs = multierr.Append(errs, a.redis.Close())
	}
	if a.store != nil {
		errs = multierr.Append(errs, a.store.Close())
	}
	return errs
}

func newLogger(cfg *config.Config) *logging.Logger {
	return logging.New(serviceName, logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 30 * time.Second
	}
	return context.WithTimeout(ctx, d)
}
