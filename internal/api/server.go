package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/SteelMorgan/evtc-log-uploader/internal/domain"
	"github.com/SteelMorgan/evtc-log-uploader/internal/history"
	"github.com/SteelMorgan/evtc-log-uploader/internal/settings"
)

// Uploader is the core the API drives
type Uploader interface {
	Snapshots() []domain.LogData
	SnapshotsSince(since uint64) ([]domain.LogData, uint64)
	Lookup(id string) (domain.LogData, bool)
	EnqueueParse(id string) error
	EnqueueUpload(svc domain.Service, id string) error
	ProcessAutoUpload(id string)
	History(ctx context.Context) ([]history.Entry, error)
	HistoryEntry(ctx context.Context, svc domain.Service, id string) (history.Entry, bool, error)
	ForgetHistory(ctx context.Context, svc domain.Service, id string) error
	Settings() *settings.Store
	Status() map[string]any
}

// Server is the local HTTP API over the uploader
type Server struct {
	port       int
	uploader   Uploader
	httpServer *http.Server
}

// NewServer creates the API server
func NewServer(port int, uploader Uploader) *Server {
	s := &Server{port: port, uploader: uploader}
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Routes builds the router
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(metrics)
	r.Use(requestLogger)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/logs", s.handleListLogs)
		r.Get("/logs/msgpack", s.handleListLogsMsgpack)
		r.Get("/logs/{id}", s.handleGetLog)
		r.Post("/logs/{id}/parse", s.handleParse)
		r.Post("/logs/{id}/upload/{service}", s.handleUpload)
		r.Post("/logs/{id}/auto-upload", s.handleAutoUpload)

		r.Get("/history", s.handleHistory)
		r.Get("/history/{service}/{id}", s.handleGetHistoryEntry)
		r.Delete("/history/{service}/{id}", s.handleForgetHistory)

		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handlePutSettings)
	})

	return r
}

// Start serves the API until Stop is called
func (s *Server) Start(ctx context.Context) error {
	log.Info().
		Int("port", s.port).
		Msg("HTTP API starting...")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http api: %w", err)
		}
		return nil
	case <-ctx.Done():
		return nil
	}
}

// Stop shuts the server down gracefully
func (s *Server) Stop() error {
	log.Info().Msg("HTTP API stopping...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.httpServer.Shutdown(ctx)
}
