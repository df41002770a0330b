// Package di wires the read model cache from a config.Config: the
// authoritative database, the cache store and strategy, cached
// repositories, invalidation with its job queue, stats calculators and the
// warming scheduler.
package di

import (
	"context"
	"errors"
	"log/slog"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-readmodel-cache/cache"
	"github.com/goliatone/go-readmodel-cache/config"
	"github.com/goliatone/go-readmodel-cache/internal/cacheinfra"
	"github.com/goliatone/go-readmodel-cache/internal/dbopen"
	"github.com/goliatone/go-readmodel-cache/internal/queue"
	"github.com/goliatone/go-readmodel-cache/internal/source"
	"github.com/goliatone/go-readmodel-cache/invalidation"
	"github.com/goliatone/go-readmodel-cache/readmodels"
	"github.com/goliatone/go-readmodel-cache/repositorycache"
	"github.com/goliatone/go-readmodel-cache/stats"
	"github.com/goliatone/go-readmodel-cache/warming"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"golang.org/x/sync/errgroup"
)

// JobQueue is a queue this process both feeds and consumes.
type JobQueue interface {
	queue.Queue
	queue.Consumer
}

// Container owns every component and the resources they share.
type Container struct {
	cfg    config.Config
	logger *slog.Logger
	clock  clockwork.Clock

	db      *bun.DB
	ownsDB  bool
	src     *source.Source
	redis   redis.UniversalClient
	ownsRDB bool
	sqs     queue.SQSAPI

	store         cache.Store
	strategy      *cache.Strategy
	campaigns     *repositorycache.Repository[readmodels.Campaign]
	organizations *repositorycache.Repository[readmodels.Organization]

	invalidator *invalidation.Invalidator
	queue       JobQueue
	dispatcher  *invalidation.Dispatcher
	jobs        *invalidation.JobHandler

	stats  *stats.Cached
	warmer *warming.Scheduler
}

// Option overrides a component the container would otherwise build.
type Option func(*Container)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Container) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithClock(clock clockwork.Clock) Option {
	return func(c *Container) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithDB uses db as the authoritative store. The container does not close
// it.
func WithDB(db *bun.DB) Option {
	return func(c *Container) {
		c.db = db
	}
}

// WithRedisClient uses client for the redis store. The container does not
// close it.
func WithRedisClient(client redis.UniversalClient) Option {
	return func(c *Container) {
		c.redis = client
	}
}

// WithSQSClient uses client for the sqs queue instead of one built from the
// AWS default credential chain.
func WithSQSClient(client queue.SQSAPI) Option {
	return func(c *Container) {
		c.sqs = client
	}
}

// NewContainer validates cfg and builds every component. On error, the
// resources opened so far are released.
func NewContainer(ctx context.Context, cfg config.Config, opts ...Option) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Container{
		cfg:    cfg,
		logger: slog.Default(),
		clock:  clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(c)
	}

	steps := []func(context.Context) error{
		c.openDatabase,
		c.openStore,
		c.buildStrategy,
		c.buildRepositories,
		c.buildQueue,
		c.buildInvalidation,
		c.buildStats,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			_ = c.Close(ctx)
			return nil, err
		}
	}
	return c, nil
}

func (c *Container) openDatabase(context.Context) error {
	if c.db == nil {
		db, err := dbopen.Open(c.cfg.Database.Driver, c.cfg.Database.DSN)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryExternal, "open database")
		}
		c.db = db
		c.ownsDB = true
	}
	c.src = source.New(c.db)
	return nil
}

func (c *Container) openStore(ctx context.Context) error {
	switch c.cfg.Store.Backend {
	case config.StoreRedis:
		if c.redis == nil {
			rc := c.cfg.Store.Redis
			c.redis = redis.NewClient(&redis.Options{Addr: rc.Addr, Password: rc.Password, DB: rc.DB})
			c.ownsRDB = true
		}
		if err := c.redis.Ping(ctx).Err(); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryExternal, "connect redis")
		}
		c.store = cacheinfra.NewRedisStore(c.redis, cacheinfra.WithRedisPrefix(c.cfg.Store.Redis.Prefix))
	case config.StoreSQL:
		store := cacheinfra.NewSQLStore(c.db, cacheinfra.WithSQLClock(c.clock))
		if err := store.CreateSchema(ctx); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryExternal, "create cache schema")
		}
		c.store = store
	default:
		store, err := cacheinfra.NewMemoryStore(c.cfg.Store.Memory, cacheinfra.WithMemoryClock(c.clock))
		if err != nil {
			return err
		}
		c.store = store
	}
	c.logger.Info("cache store ready", "backend", c.cfg.Store.Backend, "durable", c.store.Durable())
	return nil
}

func (c *Container) buildStrategy(context.Context) error {
	strategy, err := cache.NewStrategy(c.store, readmodels.NewRegistry(), c.cfg.Cache,
		cache.WithLogger(c.logger),
		cache.WithClock(c.clock),
	)
	if err != nil {
		return err
	}
	c.strategy = strategy
	return nil
}

func (c *Container) buildRepositories(context.Context) error {
	c.campaigns = repositorycache.New(readmodels.KindCampaign,
		readmodels.NewCampaignBuilder(c.src, c.clock), c.strategy,
		repositorycache.WithDefaultTags(readmodels.TagCampaigns, readmodels.TagCampaignAnalytics),
		repositorycache.WithLogger(c.logger),
	)
	c.organizations = repositorycache.New(readmodels.KindOrganization,
		readmodels.NewOrganizationBuilder(c.src, c.clock), c.strategy,
		repositorycache.WithDefaultTags(readmodels.TagOrganizations, readmodels.TagOrganizationDashboard),
		repositorycache.WithLogger(c.logger),
	)
	return nil
}

func (c *Container) buildQueue(ctx context.Context) error {
	qopts := []queue.Option{
		queue.WithClock(c.clock),
		queue.WithLogger(c.logger),
		queue.WithWorkers(c.cfg.Queue.Workers),
		queue.WithFailedSink(invalidation.FailedSink(c.logger)),
	}
	if c.cfg.Queue.Backend != config.QueueSQS {
		c.queue = queue.NewMemoryQueue(qopts...)
		return nil
	}

	if c.sqs == nil {
		client, err := queue.NewSQSClient(ctx, c.cfg.Queue.SQS)
		if err != nil {
			return err
		}
		c.sqs = client
	}
	q, err := queue.NewSQSQueue(c.sqs, c.cfg.Queue.SQS, qopts...)
	if err != nil {
		return err
	}
	c.queue = q
	return nil
}

func (c *Container) buildInvalidation(context.Context) error {
	c.invalidator = invalidation.NewInvalidator(c.strategy, invalidation.WithLogger(c.logger))
	dispatcher, err := invalidation.NewDispatcher(c.queue, c.cfg.Invalidation,
		invalidation.WithDispatcherLogger(c.logger))
	if err != nil {
		return err
	}
	c.dispatcher = dispatcher
	c.jobs = invalidation.NewJobHandler(c.invalidator, invalidation.NewSourceResolver(c.src), c.logger)
	return nil
}

func (c *Container) buildStats(context.Context) error {
	pages := stats.NewPageStats(c.src, c.cfg.Stats, c.clock, c.logger)
	widgets := stats.NewWidgetStats(c.src, c.cfg.Stats, c.clock, c.logger)
	c.stats = stats.NewCached(c.strategy, pages, widgets, c.logger)

	warmer, err := warming.NewScheduler(c.strategy, c.stats.WarmTargets(), c.cfg.Warming,
		warming.WithClock(c.clock),
		warming.WithLogger(c.logger),
	)
	if err != nil {
		return err
	}
	c.warmer = warmer
	return nil
}

func (c *Container) Config() config.Config { return c.cfg }

func (c *Container) Logger() *slog.Logger { return c.logger }

func (c *Container) Source() *source.Source { return c.src }

func (c *Container) Store() cache.Store { return c.store }

func (c *Container) Strategy() *cache.Strategy { return c.strategy }

func (c *Container) Campaigns() *repositorycache.Repository[readmodels.Campaign] {
	return c.campaigns
}

func (c *Container) Organizations() *repositorycache.Repository[readmodels.Organization] {
	return c.organizations
}

// Invalidator flushes synchronously, in the caller's request.
func (c *Container) Invalidator() *invalidation.Invalidator { return c.invalidator }

// Dispatcher schedules delayed invalidation jobs.
func (c *Container) Dispatcher() *invalidation.Dispatcher { return c.dispatcher }

func (c *Container) Queue() JobQueue { return c.queue }

func (c *Container) JobHandler() *invalidation.JobHandler { return c.jobs }

func (c *Container) Stats() *stats.Cached { return c.stats }

func (c *Container) Warmer() *warming.Scheduler { return c.warmer }

// Run consumes invalidation jobs and keeps the stats warm until ctx is
// done.
func (c *Container) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.queue.Run(ctx, c.jobs.Queue())
	})
	g.Go(func() error {
		return c.warmer.Run(ctx)
	})
	return g.Wait()
}

// Close stops background refreshes and releases the connections the
// container opened.
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	if c.strategy != nil {
		errs = append(errs, c.strategy.Close(ctx))
	}
	if c.redis != nil && c.ownsRDB {
		errs = append(errs, c.redis.Close())
	}
	if c.db != nil && c.ownsDB {
		errs = append(errs, c.db.Close())
	}
	return errors.Join(errs...)
}
