// Package app wires the aura-seer runtime: config, logging, storage
// backends, token verification, send throttling, domain events and the
// HTTP routes of the chat delivery core.
package app

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/Anix003/aura-seer/cmd/internal/auth"
	"github.com/Anix003/aura-seer/cmd/internal/chat"
	chatapi "github.com/Anix003/aura-seer/cmd/internal/chat/api"
	"github.com/Anix003/aura-seer/cmd/internal/events"
	"github.com/Anix003/aura-seer/cmd/internal/metrics"
	"github.com/Anix003/aura-seer/cmd/internal/ratelimit"

	"golang.org/x/sync/errgroup"
)

// App is the aura-seer server runtime. It owns every backend connection.
type App struct {
	cfg Config
	log Logger

	backends *backends
	metrics  *metrics.Metrics
	svc      *chat.Service
	chat     *chatapi.Handler

	publisher events.Publisher
	closers   []io.Closer
}

// New constructs a fully wired App from config and logger.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	authCfg, err := auth.LoadConfigFromEnv()
	if err != nil {
		return nil, errors.New("auth config: set AURA_JWT_SECRET (jwt) or a PASETO v4 key (paseto)")
	}
	if err := ValidateSecurityConfig(cfg, authCfg); err != nil {
		return nil, err
	}
	tokens, err := auth.NewTokenManager(authCfg)
	if err != nil {
		return nil, err
	}

	chatCfg := chat.LoadConfigFromEnv()
	apiCfg := chatapi.LoadConfigFromEnv()

	a := &App{cfg: cfg, log: log, metrics: metrics.New()}
	ok := false
	defer func() {
		if !ok {
			_ = a.close(context.Background())
		}
	}()

	a.backends, err = openBackends(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	limiter, limiterCloser, err := newLimiter(ctx, ratelimit.LoadConfigFromEnv(), log)
	if err != nil {
		return nil, err
	}
	if limiterCloser != nil {
		a.closers = append(a.closers, limiterCloser)
	}

	a.publisher, err = newPublisher(events.LoadConfigFromEnv(), a.metrics, log)
	if err != nil {
		return nil, err
	}

	a.svc, err = chat.NewService(a.backends.store, a.backends.dir, log,
		chat.WithConfig(chatCfg),
		chat.WithPublisher(a.publisher),
		chat.WithSendLimiter(limiter),
	)
	if err != nil {
		return nil, err
	}

	a.chat, err = chatapi.NewHandler(log, chatapi.Deps{
		Service:       a.svc,
		Authenticator: auth.NewAuthenticator(tokens, authCfg.CookieName),
		Metrics:       a.metrics,
	}, apiCfg)
	if err != nil {
		return nil, err
	}

	ok = true
	return a, nil
}

// Handler returns the root HTTP handler with all middleware applied.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	registerHTTP(mux, a)

	var h http.Handler = mux
	h = WithCORS(h, a.cfg, a.log)
	h = WithSecurityHeaders(h)
	return WithRequestLogging(h, a.log, a.metrics)
}

// Run starts the HTTP server and blocks until ctx is cancelled or the server fails.
// Backends are closed before Run returns.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	base := runtimeBaseURL(a.cfg.HTTPAddr)
	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"store", a.backends.kind,
		"base_url", base,
		"stream_url", base+"/chats/stream",
		"ws_url", wsBaseURL(base)+"/chats/ws",
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("server.fail", "err", err)
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("server.stop", "reason", "context_done")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
		defer cancel()
		// Open streams observe ctx through BaseContext and end on their own.
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Error("server.shutdown.fail", "err", err)
			return err
		}
		return nil
	})
	err := g.Wait()

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if cerr := a.close(closeCtx); cerr != nil {
		a.log.Error("backends.close.fail", "err", cerr)
	}

	a.log.Info("server.stopped")
	return err
}

func (a *App) close(ctx context.Context) error {
	var errs []error
	if a.publisher != nil {
		errs = append(errs, a.publisher.Close())
	}
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	if a.backends != nil {
		errs = append(errs, a.backends.Close(ctx))
	}
	return errors.Join(errs...)
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// runtimeBaseURL turns a listen address into a URL clients on this host can dial.
func runtimeBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func wsBaseURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return "ws://" + base
	}
}
