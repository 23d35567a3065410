package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-ledger-sync/auth"
	"github.com/jrsteele09/go-ledger-sync/auth/flowstate"
	"github.com/jrsteele09/go-ledger-sync/backend"
	"github.com/jrsteele09/go-ledger-sync/hints"
	"github.com/jrsteele09/go-ledger-sync/internal/config"
	"github.com/jrsteele09/go-ledger-sync/notify"
	"github.com/jrsteele09/go-ledger-sync/oauthprovider"
	"github.com/jrsteele09/go-ledger-sync/resourcesync"
	"github.com/jrsteele09/go-ledger-sync/server"
	"github.com/jrsteele09/go-ledger-sync/tenants"
	"github.com/jrsteele09/go-ledger-sync/token"
	"github.com/jrsteele09/go-ledger-sync/token/pgstore"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	for {
		if err := run(); err != nil {
			log.Fatal().Err(err).Msg("Error running server")
		} else {
			break
		}
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("stack", string(debug.Stack())).Msgf("Recovered from panic: %v", r)
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	setupLogging(c)
	displayAppname(c.GetAppName())

	ctx := context.Background()
	services, closeFn, err := wire(ctx, c)
	if err != nil {
		return err
	}
	defer closeFn()

	handler, err := server.New(c, services)
	if err != nil {
		return fmt.Errorf("server.New: %w", err)
	}
	srv := &http.Server{Addr: c.GetPort(), Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := listenAndServe(srv); err != nil {
			log.Err(err).Msg("listenAndServe")
		}
	}()
	waitForStopSignal()
	returnError = shutdown(srv)
	return returnError
}

// wire builds the integration components from configuration. closeFn releases external connections.
func wire(ctx context.Context, c config.Config) (server.Services, func(), error) {
	var closers []func()
	closeFn := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (server.Services, func(), error) {
		closeFn()
		return server.Services{}, func() {}, err
	}

	throttle := notify.NewThrottle(notify.LogSink{}, notify.WithLimits(
		c.GetMaxOutstandingNotifications(),
		c.GetNotificationGap(),
		c.GetNotificationTTL(),
	))

	backendClient, err := backend.New(c.GetBackendURL(), backend.WithTimeout(c.GetHTTPTimeout()))
	if err != nil {
		return fail(fmt.Errorf("backend.New: %w", err))
	}

	var authorizer auth.Authorizer = backendClient
	switch c.GetAuthMode() {
	case config.AuthModeDirect:
		authorizer = oauthprovider.New(oauthprovider.Config{
			ClientID:       c.GetClientID(),
			ClientSecret:   c.GetClientSecret(),
			AuthURL:        c.GetAuthURL(),
			TokenURL:       c.GetTokenURL(),
			ConnectionsURL: c.GetConnectionsURL(),
			RedirectURL:    strings.TrimSuffix(c.GetBaseURL(), "/") + c.GetRedirectPath(),
			Scopes:         c.GetScopes(),
			IssuerURL:      c.GetIssuerURL(),
		}, oauthprovider.WithHTTPClient(&http.Client{Timeout: c.GetHTTPTimeout()}),
			oauthprovider.WithVerifierTTL(c.GetAuthFlowTimeout()))
	default:
		if err := backendClient.Probe(ctx); err != nil {
			log.Err(err).Msg("backend configuration probe failed, assuming credentials are configured")
		}
	}

	var tokens token.Store = token.NewMemoryStore()
	if dsn := c.GetDatabaseURL(); dsn != "" {
		pool, err := pgstore.NewDB(ctx, dsn)
		if err != nil {
			return fail(fmt.Errorf("pgstore.NewDB: %w", err))
		}
		closers = append(closers, pool.Close)
		store := pgstore.New(pool, c.GetConnectionKey())
		if err := store.Migrate(ctx); err != nil {
			return fail(err)
		}
		tokens = store
		log.Info().Msg("token store: postgres")
	}

	sessionOptions := []auth.SessionManagerOption{
		auth.WithNotifier(throttle),
		auth.WithFlowTimeout(c.GetAuthFlowTimeout()),
	}

	var sealer *hints.Sealer
	if key := c.GetHintSealKey(); key != "" {
		if sealer, err = hints.NewSealerFromHex(key); err != nil {
			return fail(fmt.Errorf("hints.NewSealerFromHex: %w", err))
		}
	}
	var hintStore hints.Store = hints.NewMemoryStore()

	if addr := c.GetRedisAddr(); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: c.GetRedisPassword(),
			DB:       c.GetRedisDB(),
		})
		closers = append(closers, func() { _ = rdb.Close() })
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fail(fmt.Errorf("redis ping: %w", err))
		}
		hintStore = hints.NewRedisStore(rdb, c.GetConnectionKey())
		sessionOptions = append(sessionOptions, auth.WithFlowRepo(flowstate.NewRedisRepo(rdb, c.GetAuthFlowTimeout())))
		log.Info().Str("addr", addr).Msg("hint cache and flow state: redis")
	}
	sessionOptions = append(sessionOptions, auth.WithHints(hintStore, sealer))

	selector := tenants.NewSelector()
	session, err := auth.NewSessionManager(authorizer, tokens, selector, sessionOptions...)
	if err != nil {
		return fail(err)
	}

	coord, err := resourcesync.NewCoordinator(session, tokens, selector, backendClient,
		resourcesync.WithDebounce(c.GetResourceDebounce(), c.GetLoadAllDebounce()),
		resourcesync.WithPacing(c.GetPacingDelay()),
		resourcesync.WithPageSize(c.GetPageSize()),
		resourcesync.WithNotifier(throttle),
	)
	if err != nil {
		return fail(err)
	}

	if err := session.Resume(ctx); err != nil {
		log.Err(err).Msg("could not resume the previous integration session")
	}

	return server.Services{
		Session:       session,
		Tenants:       selector,
		Sync:          coord,
		Notifications: throttle,
	}, closeFn, nil
}

func setupLogging(c config.EnvConfig) {
	level, err := zerolog.ParseLevel(c.GetLogLevel())
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if c.GetEnv() == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func listenAndServe(server *http.Server) error {
	log.Info().Msgf("Server listening on %s", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
