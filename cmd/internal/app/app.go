// Package app wires the hearth server runtime: config, logging, storage
// backends and the HTTP surface.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	authapi "hearth/cmd/internal/auth/api"
	"hearth/cmd/internal/auth/events"
	"hearth/cmd/internal/auth/session"
	"hearth/cmd/internal/chat"
	"hearth/cmd/internal/household"
	"hearth/cmd/internal/profile"
	"hearth/cmd/internal/storage"
	"hearth/cmd/identity"
	"hearth/cmd/security/password"

	"aidanwoods.dev/go-paseto"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-envconfig"
)

const pasetoKeyEnv = "HEARTH_PASETO_V4_SECRET_KEY_HEX"

// App owns the HTTP handler tree and the resources behind it.
type App struct {
	cfg Config
	log Logger

	pool    *pgxpool.Pool
	metrics *Metrics

	sessions  *session.Service
	auth      *authapi.Handler
	events    *events.Gateway
	profiles  *profile.Handler
	household *household.Handler
	chat      *chat.Proxy

	handler       http.Handler
	stopTelemetry func(context.Context) error
}

type Option func(*options)

type options struct {
	lookuper  envconfig.Lookuper
	password  *password.Config
	completer chat.Completer
}

// WithLookuper reads feature config from l instead of the process environment.
func WithLookuper(l envconfig.Lookuper) Option { return func(o *options) { o.lookuper = l } }

// WithPasswordConfig replaces the HEARTH_ARGON2_* derived password config.
func WithPasswordConfig(c password.Config) Option { return func(o *options) { o.password = &c } }

// WithChatCompleter replaces the OpenAI client.
func WithChatCompleter(c chat.Completer) Option { return func(o *options) { o.completer = c } }

type stores struct {
	users     identity.Store
	sessions  session.Store
	profiles  profile.Store
	household household.Store
	audit     authapi.Auditor
}

// New builds every component from cfg. In memory mode (no database URL) all
// state is lost on exit.
func New(ctx context.Context, cfg Config, log Logger, opts ...Option) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat, nil)
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	l := o.lookuper
	if l == nil {
		l = envconfig.OsLookuper()
	}

	a := &App{cfg: cfg, log: log}
	if cfg.MetricsEnabled {
		a.metrics = NewMetrics()
	}

	l = a.signingKeys(l)

	st, err := a.openStores(ctx)
	if err != nil {
		return nil, err
	}
	if err := a.build(ctx, l, o, st); err != nil {
		a.closePool()
		return nil, err
	}

	a.stopTelemetry, err = setupTracing(ctx, cfg)
	if err != nil {
		a.closePool()
		return nil, err
	}
	a.handler = a.routes()
	return a, nil
}

// signingKeys overlays a throwaway PASETO key when dev keys are enabled and
// none is configured.
func (a *App) signingKeys(l envconfig.Lookuper) envconfig.Lookuper {
	if v, ok := l.Lookup(pasetoKeyEnv); ok && strings.TrimSpace(v) != "" {
		return l
	}
	if !a.cfg.DevEphemeralKeys {
		return l
	}
	key := paseto.NewV4AsymmetricSecretKey()
	a.log.Warn("auth.keys.ephemeral", "reason", "HEARTH_DEV_EPHEMERAL_KEYS", "public_key_hex", key.Public().ExportHex())
	return envconfig.MultiLookuper(envconfig.MapLookuper(map[string]string{pasetoKeyEnv: key.ExportHex()}), l)
}

func (a *App) openStores(ctx context.Context) (stores, error) {
	if a.cfg.memoryMode() {
		a.log.Info("db.disabled.memory_store")
		users := identity.NewMemoryStore()
		profiles := profile.NewMemoryStore()
		profiles.Exists = func(ctx context.Context, id string) bool {
			_, err := users.GetUserByID(ctx, id)
			return err == nil
		}
		return stores{
			users:     users,
			sessions:  session.NewMemoryStore(),
			profiles:  profiles,
			household: household.NewMemoryStore(),
			audit:     authapi.NewMemoryAuditLog(),
		}, nil
	}

	pool, err := NewDBPool(ctx, a.cfg)
	if err != nil {
		return stores{}, err
	}
	a.pool = pool
	schema := a.cfg.DBSchema

	if a.cfg.DBMigrate {
		if err := Migrate(ctx, pool, schema, a.log); err != nil {
			a.closePool()
			return stores{}, fmt.Errorf("migrate: %w", err)
		}
	}

	var errs []error
	users, err := identity.NewPostgresStore(pool, identity.WithSchema(schema))
	errs = append(errs, err)
	sessions, err := session.NewPostgresStore(pool, session.WithSchema(schema))
	errs = append(errs, err)
	profiles, err := profile.NewPostgresStore(pool, profile.WithSchema(schema))
	errs = append(errs, err)
	hh, err := household.NewPostgresStore(pool, household.WithSchema(schema))
	errs = append(errs, err)
	audit, err := authapi.NewPostgresAuditLog(pool, schema)
	errs = append(errs, err)
	if err := errors.Join(errs...); err != nil {
		a.closePool()
		return stores{}, err
	}
	a.log.Info("db.enabled.postgres_store", "schema", schema)
	return stores{users: users, sessions: sessions, profiles: profiles, household: hh, audit: audit}, nil
}

func (a *App) build(ctx context.Context, l envconfig.Lookuper, o options, st stores) error {
	sessCfg, err := session.LoadConfig(ctx, l)
	if err != nil {
		return err
	}
	authCfg, err := authapi.LoadConfig(ctx, l)
	if err != nil {
		return err
	}
	evCfg, err := events.LoadConfig(ctx, l)
	if err != nil {
		return err
	}
	storeCfg, err := storage.LoadConfig(ctx, l)
	if err != nil {
		return err
	}
	chatCfg, err := chat.LoadConfig(ctx, l)
	if err != nil {
		return err
	}

	pw := password.Config{}
	if o.password != nil {
		pw = *o.password
	} else if pw, err = password.FromEnv(ctx); err != nil {
		return err
	}

	hasher, err := tokenHasher(a.cfg)
	if err != nil {
		return err
	}
	tokens, err := session.NewPasetoV4PublicManager(sessCfg)
	if err != nil {
		return err
	}

	var gauge events.Gauge
	var outcomes authapi.Outcomes
	if a.metrics != nil {
		gauge = a.metrics.wsConns
		outcomes = a.metrics
	}
	hub := events.NewHub(a.log, gauge)
	a.sessions = session.NewService(sessCfg, st.sessions, tokens, session.WithHasher(hasher), session.WithNotifier(hub))
	a.events = events.NewGateway(a.log, hub, a.sessions, evCfg)

	a.auth, err = authapi.NewHandler(a.log, authCfg, authapi.Deps{
		Users:    st.users,
		Sessions: a.sessions,
		Audit:    st.audit,
		Password: pw,
		Profiles: st.profiles,
		Outcomes: outcomes,
	})
	if err != nil {
		return err
	}
	a.profiles = profile.NewHandler(a.log, st.profiles)

	bucket, err := storage.New(ctx, storeCfg)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	var images household.ImageSigner
	if bucket != nil {
		images = bucket
		a.log.Info("storage.enabled", "bucket", storeCfg.Bucket)
	}
	a.household = household.NewHandler(a.log, st.household, images)

	var chatOpts []chat.Option
	if o.completer != nil {
		chatOpts = append(chatOpts, chat.WithCompleter(o.completer))
	}
	if a.metrics != nil {
		chatOpts = append(chatOpts, chat.WithLatencyObserver(a.metrics.ObserveChat))
	}
	a.chat = chat.NewProxy(a.log, chatCfg, st.household, chatOpts...)
	if !chatCfg.Configured() {
		a.log.Warn("chat.disabled", "reason", "HEARTH_CHAT_OPENAI_API_KEY not set")
	}
	return nil
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Run serves until ctx is cancelled, then shuts down within the configured
// timeout.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: a.cfg.ReadHeaderTimeout,
		ReadTimeout:       a.cfg.ReadTimeout,
		WriteTimeout:      a.cfg.WriteTimeout,
		IdleTimeout:       a.cfg.IdleTimeout,
		MaxHeaderBytes:    a.cfg.MaxHeaderBytes,
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.pool != nil, "metrics", a.metrics != nil)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case runErr = <-errCh:
		a.log.Error("server.fail", "err", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		runErr = errors.Join(runErr, err)
	}
	if err := a.Close(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, err)
	}
	a.log.Info("server.stopped")
	return runErr
}

// Close flushes telemetry and closes the database pool.
func (a *App) Close(ctx context.Context) error {
	var err error
	if a.stopTelemetry != nil {
		if e := a.stopTelemetry(ctx); e != nil {
			a.log.Error("otel.shutdown.fail", "err", e)
			err = e
		}
	}
	a.closePool()
	return err
}

func (a *App) closePool() {
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
}

