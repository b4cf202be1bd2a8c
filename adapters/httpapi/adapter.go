package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/moosethebrown/tello-pilot-bridge/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 2 * time.Second

type StatusSource interface {
	Snapshot() core.Status
}

// Adapter serves metrics, arbiter status and the vision provider endpoint.
type Adapter struct {
	server *http.Server
	logger *zerolog.Logger
}

func NewAdapter(addr string, status StatusSource, vision http.Handler,
	gatherer prometheus.Gatherer, logger *zerolog.Logger) *Adapter {

	return &Adapter{
		server: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(status, vision, gatherer),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

func NewRouter(status StatusSource, vision http.Handler, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(status.Snapshot())
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	if vision != nil {
		r.Method(http.MethodGet, "/vision", vision)
	}

	return r
}

func (a *Adapter) Run() error {
	a.logger.Info().Str("addr", a.server.Addr).Msg("starting")
	defer a.logger.Info().Msg("stopping")

	err := a.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	a.logger.Error().Err(err).Msg("http server failed")
	return err
}

func (a *Adapter) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Error().Err(err).Msg("failed to shut down http server")
	}
}
