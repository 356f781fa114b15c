package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/handlers"
	"github.com/npezzotti/fairshare/internal/config"
	"github.com/npezzotti/fairshare/internal/identity"
	"github.com/npezzotti/fairshare/internal/server"
	"github.com/npezzotti/fairshare/internal/service"
	"github.com/npezzotti/fairshare/internal/stats"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const limiterCleanupInterval = time.Minute

// Authenticator turns a bearer credential into a local user.
type Authenticator interface {
	Resolve(ctx context.Context, token string) (identity.Identity, error)
}

type App struct {
	log            *zap.Logger
	svc            *service.Service
	cs             *server.ChatServer
	relay          server.Relay
	auth           Authenticator
	stats          *stats.StatsUpdater
	srv            *http.Server
	allowedOrigins []string
	trustProxy     bool
	readLimiter    *RateLimiter
	writeLimiter   *RateLimiter
	cleanupCtx     context.Context
	stopCleanup    context.CancelFunc
}

func NewApp(logger *zap.Logger, cfg *config.Config, svc *service.Service, cs *server.ChatServer, relay server.Relay, auth Authenticator, su *stats.StatsUpdater) *App {
	cleanupCtx, stopCleanup := context.WithCancel(context.Background())
	a := &App{
		log:            logger,
		svc:            svc,
		cs:             cs,
		relay:          relay,
		auth:           auth,
		stats:          su,
		allowedOrigins: cfg.AllowedOrigins,
		trustProxy:     cfg.TrustProxyHeaders,
		readLimiter:    NewRateLimiter(rate.Limit(cfg.ReadRateLimit), cfg.ReadRateBurst),
		writeLimiter:   NewRateLimiter(rate.Limit(cfg.WriteRateLimit), cfg.WriteRateBurst),
		cleanupCtx:     cleanupCtx,
		stopCleanup:    stopCleanup,
	}

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(a.routes())

	h = a.errorHandler(h)

	a.srv = &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a
}

func (a *App) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	// rate limits key on RemoteAddr, which is client controlled once
	// forwarding headers are honored
	if a.trustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(a.requestLogger, a.stats.InstrumentHandler)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		errResp := NewNotFoundError()
		a.writeJson(w, errResp.StatusCode, errResp)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		errResp := NewMethodNotAllowedError()
		a.writeJson(w, errResp.StatusCode, errResp)
	})

	r.Get("/healthz", a.healthCheck)
	r.Method(http.MethodGet, "/metrics", a.stats.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(a.rateLimit)

		// the socket authenticates itself so browsers can pass the token
		// as a query parameter
		r.Get("/ws", a.serveWs)

		r.Group(func(r chi.Router) {
			r.Use(a.authMiddleware)

			r.Get("/me", a.getProfile)
			r.Put("/me", a.updateProfile)

			r.Route("/rooms", func(r chi.Router) {
				r.Post("/", a.createRoom)
				r.Get("/", a.listRooms)
				r.Post("/join/{code}", a.joinRoom)
				r.Get("/{roomId}", a.getRoom)
				r.Put("/{roomId}", a.updateRoom)
				r.Delete("/{roomId}", a.deleteRoom)
				r.Get("/{roomId}/members", a.listMembers)
				r.Post("/{roomId}/leave", a.leaveRoom)
			})

			r.Route("/chores", func(r chi.Router) {
				r.Post("/", a.createChore)
				r.Get("/", a.listChores)
				r.Put("/{id}", a.updateChore)
				r.Delete("/{id}", a.deleteChore)
			})

			r.Route("/expenses", func(r chi.Router) {
				r.Post("/", a.createExpense)
				r.Get("/", a.listExpenses)
				r.Get("/balances/summary", a.balanceSummary)
				r.Put("/{id}", a.updateExpense)
				r.Delete("/{id}", a.deleteExpense)
			})

			r.Route("/events", func(r chi.Router) {
				r.Post("/", a.createEvent)
				r.Get("/", a.listEvents)
				r.Put("/{id}", a.updateEvent)
				r.Patch("/{id}/pay", a.markEventPaid)
				r.Delete("/{id}", a.deleteEvent)
			})

			r.Get("/chat/{roomId}/chat", a.getMessages)
			r.Post("/chat/{roomId}/chat", a.postMessage)
		})
	})

	return r
}

func (a *App) Start() error {
	a.readLimiter.StartCleanup(a.cleanupCtx, limiterCleanupInterval)
	a.writeLimiter.StartCleanup(a.cleanupCtx, limiterCleanupInterval)

	a.log.Info("starting server", zap.String("addr", a.srv.Addr))
	if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *App) Shutdown(ctx context.Context) error {
	a.log.Info("shutting down HTTP server")
	a.stopCleanup()
	if err := a.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
