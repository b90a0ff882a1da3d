package rest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"property-feed-service/internal/core/port"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Server struct {
	httpServer *http.Server
	logger     port.LoggerPort

	// отменяется в Stop, иначе открытые SSE-потоки держат Shutdown до таймаута
	cancelRequests context.CancelFunc
}

// NewRouter собирает маршруты /api/v1. Отдельно от NewServer, чтобы тесты
// могли вызывать его через httptest.
func NewRouter(h *FeedHandler, allowedOrigins []string, baseLogger port.LoggerPort) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP, LoggerMiddleware(baseLogger), middleware.Recoverer)
	if len(allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Trace-ID"},
			ExposedHeaders: []string{"X-Trace-ID"},
			MaxAge:         300,
		}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Route("/imports", func(r chi.Router) {
			r.Post("/", h.UploadFeed)
			r.Post("/from-url", h.ImportFromURL)
			r.Get("/", h.ListImports)
			r.Get("/{importID}", h.GetImport)
		})

		r.Route("/properties", func(r chi.Router) {
			r.Get("/", h.ListProperties)
			r.Post("/reload", h.ReloadFromRemote)
			r.Get("/{ref}", h.GetProperty)
		})

		r.Get("/events", h.SubscribeToEvents)
	})

	return r
}

func NewServer(listenPort string, handler http.Handler, baseLogger port.LoggerPort) *Server {
	baseCtx, cancel := context.WithCancel(context.Background())
	return &Server{
		httpServer: &http.Server{
			Addr:              ":" + listenPort,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return baseCtx },
		},
		logger:         baseLogger.WithFields(port.Fields{"component": "rest_server"}),
		cancelRequests: cancel,
	}
}

// Start блокируется до Stop
func (s *Server) Start() error {
	s.logger.Info("Starting REST API server", port.Fields{"address": s.httpServer.Addr})
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("Could not start server", err, nil)
		return fmt.Errorf("could not start server: %w", err)
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping REST API server...", nil)
	s.cancelRequests()
	return s.httpServer.Shutdown(ctx)
}
