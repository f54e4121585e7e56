package application

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/eugenenazirov/basic-auth/internal/api"
	"github.com/eugenenazirov/basic-auth/internal/authcheck"
	"github.com/eugenenazirov/basic-auth/internal/config"
	"github.com/eugenenazirov/basic-auth/internal/credentials"
	"github.com/eugenenazirov/basic-auth/internal/storage"
)

// Name is the service name reported by the root endpoint.
const Name = "basic-auth"

// Version is overridden at build time with -ldflags.
var Version = "dev"

// AuthCheckPath is where the auth-check endpoint is mounted.
const AuthCheckPath = "/auth-check"

// App encapsulates the application dependencies and HTTP server.
type App struct {
	storage   storage.Storage
	service   *credentials.Service
	handler   *api.Handler
	router    http.Handler
	authCheck http.Handler
	logger    *zap.Logger
	server    *http.Server
}

// New initializes the application with all dependencies from the provided configuration.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	store, err := storage.Connect(ctx, cfg.Database.Driver, cfg.Database.DSN, storage.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to open credentials storage: %w", err)
	}
	if cfg.Database.Driver == storage.DriverMemory {
		logger.Warn("using in-memory credentials storage, data is lost on restart")
	}

	service := credentials.NewService(store, credentials.WithHashCost(cfg.PasswordHashCost))
	handler := api.NewHandler(service,
		api.WithLogger(logger),
		api.WithMediaTypeParams(cfg.API.Profile, cfg.API.Version),
	)
	apiRouter := api.NewRouter(handler, logger,
		api.WithLogging(cfg.EnableRequestLogging),
		api.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
	)

	// The proxy calls auth-check for every request it forwards, so it is not rate limited.
	authCheck := api.Wrap(authcheck.NewHandler(cfg.Realm, service, logger), logger,
		api.WithLogging(cfg.EnableRequestLogging),
		api.WithRateLimit(0, 0),
	)

	return &App{
		storage:   store,
		service:   service,
		handler:   handler,
		router:    apiRouter,
		authCheck: authCheck,
		logger:    logger,
		server:    NewServer(cfg, BuildRootHandler(apiRouter, authCheck)),
	}, nil
}

// BuildRootHandler constructs the root HTTP handler that routes API and
// auth-check requests and reports the service identity at "/".
func BuildRootHandler(apiHandler, authCheckHandler http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/", apiHandler)
	mux.Handle(AuthCheckPath, authCheckHandler)
	mux.Handle(AuthCheckPath+"/", authCheckHandler)
	mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, "{\"service\":%q,\"version\":%q}\n", Name, Version)
	}))

	return normalizePathMiddleware(mux)
}

// normalizePathMiddleware merges repeated slashes and drops a trailing slash,
// redirecting with 308 so the method and body are kept. The auth-check
// subtree is served as is: proxies treat a redirect there as a failed check.
func normalizePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := r.URL.Path
		if p == "/" || p == "" || isAuthCheckPath(p) {
			next.ServeHTTP(w, r)
			return
		}

		cleaned := path.Clean(p)
		if cleaned == p {
			next.ServeHTTP(w, r)
			return
		}

		target := *r.URL
		target.Path = cleaned
		target.RawPath = ""
		http.Redirect(w, r, target.RequestURI(), http.StatusPermanentRedirect)
	})
}

func isAuthCheckPath(p string) bool {
	return p == AuthCheckPath || strings.HasPrefix(p, AuthCheckPath+"/")
}

// NewServer creates and configures an HTTP server from the provided configuration.
func NewServer(cfg config.Config, handler http.Handler) *http.Server {
	addr := cfg.Port
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

// Start starts the HTTP server in a goroutine and logs the listening address.
func (a *App) Start() error {
	go func() {
		a.logger.Info("server listening", zap.String("addr", a.server.Addr), zap.String("version", Version))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Fatal("server error", zap.Error(err))
		}
	}()
	return nil
}

// Server returns the HTTP server instance for shutdown handling.
func (a *App) Server() *http.Server {
	return a.server
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

// Close releases the credentials storage.
func (a *App) Close() error {
	if err := a.storage.Close(); err != nil {
		return fmt.Errorf("close credentials storage: %w", err)
	}
	return nil
}
