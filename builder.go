package modserver

import (
	"database/sql"
	"fmt"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option represents a functional option for configuring a Runtime.
type Option func(*RuntimeBuilder) error

// RuntimeBuilder collects Runtime settings before construction.
type RuntimeBuilder struct {
	basePath       string
	settingsFile   string
	env            string
	logger         Logger
	source         Source
	server         Server
	db             *sql.DB
	fatal          FatalHandler
	concurrency    int
	ttl            time.Duration
	coalesce       bool
	defaultTimeout time.Duration
	observers      []Observer
	registerer     prometheus.Registerer
	metrics        bool
	now            func() time.Time
}

// NewRuntime creates a Runtime for the app rooted at basePath.
func NewRuntime(basePath string, opts ...Option) (*Runtime, error) {
	b := &RuntimeBuilder{
		basePath:     basePath,
		settingsFile: DefaultSettingsFile,
		env:          EnvDevelopment,
		logger:       NopLogger(),
		concurrency:  runtime.NumCPU(),
		coalesce:     true,
		now:          time.Now,
	}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}
	return b.Build()
}

// Build constructs the Runtime.
func (b *RuntimeBuilder) Build() (*Runtime, error) {
	if b.basePath == "" {
		return nil, ErrBasePathNotSet
	}
	if b.source == nil {
		return nil, ErrSourceNotSet
	}
	if b.concurrency < 1 {
		b.concurrency = 1
	}

	rt := &Runtime{
		basePath: b.basePath,
		env:      b.env,
		db:       b.db,
		logger:   b.logger,
		events:   NewEventBus(b.logger),
	}
	if b.metrics {
		rt.metrics = NewMetrics(b.registerer)
	}
	for _, o := range b.observers {
		if err := rt.events.RegisterObserver(o); err != nil {
			return nil, fmt.Errorf("registering observer %s: %w", o.ObserverID(), err)
		}
	}

	server := b.server
	if server == nil {
		server = rt
	}
	fatal := b.fatal
	if fatal == nil {
		fatal = ExitOnFatal(b.logger)
	}

	rt.loader = &Loader{
		basePath:     b.basePath,
		settingsFile: b.settingsFile,
		source:       b.source,
		server:       server,
		logger:       b.logger,
		events:       rt.events,
		metrics:      rt.metrics,
		fatal:        fatal,
		concurrency:  b.concurrency,
		now:          b.now,
	}

	ttl := b.ttl
	if ttl <= 0 {
		ttl = TTLForEnv(b.env)
	}
	rt.cache = NewSnapshotCache(rt.loader.Load, CacheConfig{
		TTL:      ttl,
		Coalesce: b.coalesce,
		Now:      b.now,
		Logger:   b.logger,
		Events:   rt.events,
		Metrics:  rt.metrics,
	})

	rt.executor = NewExecutor(b.defaultTimeout, b.logger)
	rt.executor.events = rt.events
	rt.executor.metrics = rt.metrics
	return rt, nil
}

// WithLogger sets the logger used by every stage.
func WithLogger(logger Logger) Option {
	return func(b *RuntimeBuilder) error {
		if logger == nil {
			return ErrLoggerNotSet
		}
		b.logger = logger
		return nil
	}
}

// WithSource sets the module descriptor source.
func WithSource(source Source) Option {
	return func(b *RuntimeBuilder) error {
		b.source = source
		return nil
	}
}

// WithServer sets the server handed to modules and resources. By default the
// Runtime itself is used.
func WithServer(server Server) Option {
	return func(b *RuntimeBuilder) error {
		b.server = server
		return nil
	}
}

// WithEnv sets the environment name. It selects the default cache TTL.
func WithEnv(env string) Option {
	return func(b *RuntimeBuilder) error {
		b.env = env
		return nil
	}
}

// WithDB sets the database handle exposed through the Runtime.
func WithDB(db *sql.DB) Option {
	return func(b *RuntimeBuilder) error {
		b.db = db
		return nil
	}
}

// WithFatalHandler replaces the default log-and-exit fatal handler.
func WithFatalHandler(h FatalHandler) Option {
	return func(b *RuntimeBuilder) error {
		b.fatal = h
		return nil
	}
}

// WithConcurrency bounds the number of modules or resources initialized at once.
func WithConcurrency(n int) Option {
	return func(b *RuntimeBuilder) error {
		b.concurrency = n
		return nil
	}
}

// WithSettingsFile sets the app settings file name relative to the base path.
func WithSettingsFile(file string) Option {
	return func(b *RuntimeBuilder) error {
		b.settingsFile = file
		return nil
	}
}

// WithTTL overrides the environment-derived snapshot TTL.
func WithTTL(ttl time.Duration) Option {
	return func(b *RuntimeBuilder) error {
		b.ttl = ttl
		return nil
	}
}

// WithCacheCoalescing toggles sharing one load among concurrent cache misses.
func WithCacheCoalescing(enabled bool) Option {
	return func(b *RuntimeBuilder) error {
		b.coalesce = enabled
		return nil
	}
}

// WithObserver registers observers for runtime events.
func WithObserver(observers ...Observer) Option {
	return func(b *RuntimeBuilder) error {
		b.observers = append(b.observers, observers...)
		return nil
	}
}

// WithMetrics enables Prometheus metrics registered with reg. A nil reg
// uses the default registry.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(b *RuntimeBuilder) error {
		b.metrics = true
		b.registerer = reg
		return nil
	}
}

// WithDefaultTimeout sets the soft per-step middleware budget.
func WithDefaultTimeout(d time.Duration) Option {
	return func(b *RuntimeBuilder) error {
		b.defaultTimeout = d
		return nil
	}
}

// WithClock replaces the time source used for cache expiry.
func WithClock(now func() time.Time) Option {
	return func(b *RuntimeBuilder) error {
		b.now = now
		return nil
	}
}
