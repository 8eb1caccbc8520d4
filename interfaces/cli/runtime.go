package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/fortify/ratelimit"

	"github.com/felixgeelhaar/mutaflow"
	"github.com/felixgeelhaar/mutaflow/application"
	domainconfig "github.com/felixgeelhaar/mutaflow/domain/config"
	"github.com/felixgeelhaar/mutaflow/domain/event"
	"github.com/felixgeelhaar/mutaflow/domain/identity"
	"github.com/felixgeelhaar/mutaflow/domain/mutation"
	"github.com/felixgeelhaar/mutaflow/domain/policy"
	"github.com/felixgeelhaar/mutaflow/domain/validation"
	"github.com/felixgeelhaar/mutaflow/domain/workflow"
	"github.com/felixgeelhaar/mutaflow/infrastructure/config"
	"github.com/felixgeelhaar/mutaflow/infrastructure/distributed/lock"
	infraevent "github.com/felixgeelhaar/mutaflow/infrastructure/event"
	infraidentity "github.com/felixgeelhaar/mutaflow/infrastructure/identity"
	"github.com/felixgeelhaar/mutaflow/infrastructure/logging"
	"github.com/felixgeelhaar/mutaflow/infrastructure/storage/badger"
	"github.com/felixgeelhaar/mutaflow/infrastructure/storage/memory"
	"github.com/felixgeelhaar/mutaflow/infrastructure/storage/postgres"
	"github.com/felixgeelhaar/mutaflow/infrastructure/storage/sqlite"
	"github.com/felixgeelhaar/mutaflow/infrastructure/telemetry"
	"github.com/felixgeelhaar/mutaflow/interfaces/api"
)

// runtime is the service assembled from a configuration.
type runtime struct {
	cfg       *domainconfig.ServiceConfig
	policies  workflow.PolicySource
	watcher   *config.PolicyWatcher
	requests  mutation.Store
	decisions validation.Store
	recorder  validation.Recorder
	events    event.Store
	publisher *infraevent.Publisher
	lock      lock.Lock
	identity  identity.Provider
	jwt       *infraidentity.JWTProvider
	tracing   *telemetry.Provider
	service   *application.WorkflowService
	replay    *application.Replay

	closers []func() error
}

// buildRuntime opens every backend named by cfg. On error, whatever was
// already opened is closed.
func buildRuntime(ctx context.Context, cfg *domainconfig.ServiceConfig, watch bool) (_ *runtime, err error) {
	rt := &runtime{cfg: cfg}
	defer func() {
		if err != nil {
			_ = rt.Close(context.Background())
		}
	}()

	if err := rt.openPolicies(watch); err != nil {
		return nil, err
	}
	if err := rt.openStores(ctx); err != nil {
		return nil, err
	}
	if err := rt.openEvents(); err != nil {
		return nil, err
	}
	if err := rt.openLock(ctx); err != nil {
		return nil, err
	}
	if err := rt.openIdentity(); err != nil {
		return nil, err
	}

	rt.tracing, err = telemetry.NewProvider(ctx, cfg.Telemetry, telemetry.WithServiceVersion(mutaflow.Version))
	if err != nil {
		return nil, err
	}
	metrics := telemetry.NewMetricsProvider(telemetry.DefaultMetricsConfig())
	if err := metrics.Error(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	rt.publisher = infraevent.NewPublisher(rt.events)
	rt.service, err = application.New(
		application.WithEngine(workflow.NewEngine(rt.policies)),
		application.WithRequestStore(rt.requests),
		application.WithDecisionStore(rt.decisions),
		application.WithRecorder(rt.recorder),
		application.WithPublisher(rt.publisher),
		application.WithLock(rt.lock, cfg.Lock.TTL),
		application.WithMetrics(metrics),
		application.WithTracer(rt.tracing.Tracer()),
		application.WithRefreshInterval(cfg.Queue.RefreshInterval),
	)
	if err != nil {
		return nil, err
	}
	rt.replay = application.NewReplay(rt.events, rt.requests, rt.policies)
	return rt, nil
}

func (rt *runtime) openPolicies(watch bool) error {
	p := rt.cfg.Policies
	if p.File != "" && watch {
		w, err := config.NewPolicyWatcher(p.File, p.Options)
		if err != nil {
			return err
		}
		w.OnReload(func(set *policy.Set) {
			logging.Info().
				Add(logging.Component("policy")).
				Add(logging.Count("version", set.Version)).
				Msg("policy set swapped")
		})
		rt.watcher = w
		rt.policies = w
		return nil
	}

	set, err := config.NewLoader().PolicySet(rt.cfg)
	if err != nil {
		return err
	}
	rt.policies = workflow.StaticSource{Set: set}
	return nil
}

func (rt *runtime) openStores(ctx context.Context) error {
	s := rt.cfg.Storage
	switch s.Backend {
	case "", "memory":
		requests, decisions := memory.NewRequestStore(), memory.NewDecisionStore()
		rt.requests, rt.decisions = requests, decisions
		rt.recorder = memory.NewRecorder(requests, decisions)

	case "postgres":
		pool, err := postgres.NewPool(ctx, postgres.DefaultConfig(),
			postgres.WithDSN(s.Postgres.DSN),
			postgres.WithSchema(s.Postgres.Schema),
			postgres.WithPoolSize(1, s.Postgres.MaxConns),
		)
		if err != nil {
			return err
		}
		rt.closers = append(rt.closers, func() error { pool.Close(); return nil })
		if err := postgres.Migrate(ctx, pool, s.Postgres.Schema); err != nil {
			return err
		}
		decisions := postgres.NewDecisionStore(pool, s.Postgres.Schema)
		rt.requests = postgres.NewRequestStore(pool, s.Postgres.Schema)
		rt.decisions, rt.recorder = decisions, decisions

	case "sqlite":
		db, err := sqlite.Open(sqlite.DefaultConfig(), sqlite.WithPath(s.SQLite.Path), sqlite.WithAutoMigrate())
		if err != nil {
			return err
		}
		rt.closers = append(rt.closers, db.Close)
		requests, err := sqlite.NewRequestStoreFromDB(db)
		if err != nil {
			return err
		}
		decisions, err := sqlite.NewDecisionStoreFromDB(db)
		if err != nil {
			return err
		}
		rt.requests, rt.decisions, rt.recorder = requests, decisions, decisions

	default:
		return fmt.Errorf("unknown storage backend %q", s.Backend)
	}
	return nil
}

func (rt *runtime) openEvents() error {
	e := rt.cfg.Storage.Events
	switch e.Backend {
	case "", "memory":
		rt.events = memory.NewEventStore()
	case "badger":
		opts := []badger.Option{badger.WithDir(e.Badger.Dir), badger.WithGCInterval(10 * time.Minute)}
		if e.Badger.InMemory {
			opts = append(opts, badger.WithInMemory())
		}
		if e.Badger.SyncWrites {
			opts = append(opts, badger.WithSyncWrites())
		}
		store, err := badger.NewEventStore(badger.DefaultConfig(), opts...)
		if err != nil {
			return err
		}
		rt.closers = append(rt.closers, store.Close)
		rt.events = store
	default:
		return fmt.Errorf("unknown event backend %q", e.Backend)
	}
	return nil
}

func (rt *runtime) openLock(ctx context.Context) error {
	l := rt.cfg.Lock
	switch l.Backend {
	case "", "memory":
		rt.lock = lock.NewMemoryLock()
	case "redis":
		r, err := lock.NewRedisLock(ctx, lock.RedisConfig{
			Addr:      l.Redis.Addr,
			Password:  l.Redis.Password,
			DB:        l.Redis.DB,
			KeyPrefix: l.Redis.KeyPrefix,
		})
		if err != nil {
			return err
		}
		rt.closers = append(rt.closers, r.Close)
		rt.lock = r
	default:
		return fmt.Errorf("unknown lock backend %q", l.Backend)
	}
	return nil
}

func (rt *runtime) openIdentity() error {
	id := rt.cfg.Identity
	switch id.Provider {
	case "jwt":
		p, err := newJWTProvider(rt.cfg)
		if err != nil {
			return err
		}
		rt.jwt = p
		rt.identity = p
	case "", "header":
		rt.identity = infraidentity.NewHeaderProvider()
	default:
		return fmt.Errorf("unknown identity provider %q", id.Provider)
	}
	return nil
}

func newJWTProvider(cfg *domainconfig.ServiceConfig) (*infraidentity.JWTProvider, error) {
	j := cfg.Identity.JWT
	return infraidentity.NewJWTProvider(infraidentity.JWTConfig{
		Secret:   []byte(j.Secret),
		Issuer:   j.Issuer,
		Audience: j.Audience,
		TTL:      j.TTL,
	})
}

// credential returns how the HTTP layer reads credentials for the
// configured provider.
func (rt *runtime) credential() infraidentity.CredentialFunc {
	if rt.jwt != nil {
		return infraidentity.BearerCredential
	}
	return infraidentity.HeaderCredential
}

func (rt *runtime) server() (*api.Server, error) {
	cfg := api.Config{
		Service:    rt.service,
		Identity:   rt.identity,
		Credential: rt.credential(),
		Replay:     rt.replay,
		Version:    mutaflow.Version,
	}
	if rl := rt.cfg.RateLimit; rl.Enabled {
		cfg.Limiter = ratelimit.New(&ratelimit.Config{Rate: rl.Rate, Burst: rl.Burst})
	}
	return api.NewServer(cfg)
}

// Close flushes pending events and releases every backend in reverse order.
func (rt *runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.publisher != nil {
		if err := rt.publisher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if rt.tracing != nil {
		if err := rt.tracing.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
