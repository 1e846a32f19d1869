package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/filestore"
	"github.com/kozaktomas/face-attendance/internal/database/postgres"
	"github.com/kozaktomas/face-attendance/internal/embedder"
	"github.com/kozaktomas/face-attendance/internal/ledger"
	"github.com/kozaktomas/face-attendance/internal/logger"
	"github.com/kozaktomas/face-attendance/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// app holds everything a command needs, wired from the environment.
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	registry *prometheus.Registry
	store    *database.CachedStore
	ledger   *ledger.Multi
	service  *attendance.Service
	pool     *postgres.Pool
}

// appOptions are per-command overrides of the environment.
type appOptions struct {
	threshold float64
}

func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg := config.Load()
	if opts.threshold > 0 {
		cfg.Match.Threshold = opts.threshold
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	a := &app{cfg: cfg, log: log, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if cfg.Store.Backend == config.StoreBackendPostgres || cfg.Ledger.Mirror {
		log.Debug("connecting to PostgreSQL")
		if a.pool, err = postgres.Open(ctx, &cfg.Database); err != nil {
			return nil, err
		}
	}

	var store database.IdentityWriter
	switch cfg.Store.Backend {
	case config.StoreBackendPostgres:
		store = postgres.NewIdentityRepository(a.pool)
	default:
		store = filestore.New(cfg.Store.Dir)
	}
	a.store = database.NewCachedStore(store, cfg.Embedding.Dim)

	var mirrors []database.EventAppender
	if cfg.Ledger.Mirror {
		mirrors = append(mirrors, postgres.NewEventRepository(a.pool))
	}
	m := metrics.New(a.registry)
	a.ledger = ledger.NewMulti(ledger.NewFileLedger(cfg.Ledger.TextPath, cfg.Ledger.CSVPath), mirrors...).
		OnMirrorError(func(mirror int, e database.AttendanceEvent, err error) {
			m.LedgerMirrorFailure()
			log.Error("ledger mirror append failed",
				"kind", attendance.KindStorage.String(),
				"mirror", mirror,
				"name", e.Name,
				"direction", e.Direction,
				"error", err,
			)
		})

	a.service = attendance.NewService(attendance.Deps{
		Store:    a.store,
		Embedder: embedder.NewClient(cfg.Embedding.URL, cfg.Embedding.Model, cfg.Embedding.Dim),
		Ledger:   a.ledger,
		Index:    a.store,
		Logger:   log,
		Metrics:  m,
	}, attendance.Options{
		Threshold:       cfg.MatchThreshold(),
		IndexMin:        cfg.Match.IndexMin,
		SnapshotMaxSize: cfg.Snapshot.MaxSize,
		Model:           cfg.Embedding.Model,
	})

	// Primes the cache and the identities gauge; failures are logged by the service.
	_, _ = a.service.Identities(ctx)

	log.Debug("configuration loaded",
		"store", cfg.Store.Backend,
		"model", cfg.Embedding.Model,
		"threshold", a.service.Threshold(),
		"ledger_mirror", cfg.Ledger.Mirror,
	)
	return a, nil
}

func (a *app) Close() error {
	var errs []error
	if a.pool != nil {
		errs = append(errs, a.pool.Close())
	}
	a.log.Sync()
	return errors.Join(errs...)
}
