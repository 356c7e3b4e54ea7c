// Package api serves the cover entities over HTTP and dispatches service
// calls to them.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zabeloliver/shc-cover-bridge/cover"
)

const serviceTimeout = 10 * time.Second

// Entities gives read access to the registered covers.
type Entities interface {
	Entity(uniqueId string) (*cover.Entity, bool)
	Entities() []*cover.Entity
}

type API struct {
	entities Entities
	logger   *zap.SugaredLogger
}

func New(entities Entities, logger *zap.SugaredLogger) *API {
	return &API{entities: entities, logger: logger}
}

// NewRouter builds the routing tree. metrics is mounted on /metrics when set.
func NewRouter(api *API, metrics http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(api.logger))

	r.Get("/healthz", api.Health)
	if metrics != nil {
		r.Handle("/metrics", metrics)
	}
	r.Route("/api/covers", func(r chi.Router) {
		r.Get("/", api.ListCovers)
		r.Get("/{id}", func(w http.ResponseWriter, req *http.Request) {
			api.GetCover(w, req, chi.URLParam(req, "id"))
		})
		r.Post("/{id}/services/{service}", func(w http.ResponseWriter, req *http.Request) {
			api.CallService(w, req, chi.URLParam(req, "id"), chi.URLParam(req, "service"))
		})
	})
	return r
}

func (a *API) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "covers": len(a.entities.Entities())})
}

func (a *API) ListCovers(w http.ResponseWriter, _ *http.Request) {
	entities := a.entities.Entities()
	out := make([]cover.State, 0, len(entities))
	for _, e := range entities {
		out = append(out, e.Snapshot())
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) GetCover(w http.ResponseWriter, _ *http.Request, id string) {
	e, ok := a.entities.Entity(id)
	if !ok {
		writeError(w, http.StatusNotFound, "cover not found")
		return
	}
	writeJSON(w, http.StatusOK, e.Snapshot())
}

// CallService runs a cover service with the JSON body as service data. The
// response carries the state sampled right after the command, which may not
// reflect it yet.
func (a *API) CallService(w http.ResponseWriter, r *http.Request, id string, service string) {
	e, ok := a.entities.Entity(id)
	if !ok {
		writeError(w, http.StatusNotFound, "cover not found")
		return
	}

	data := cover.ServiceData{}
	if r.ContentLength != 0 {
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		if err := dec.Decode(&data); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid service data: "+err.Error())
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
	defer cancel()
	if err := e.Call(ctx, service, data); err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			a.logger.Errorf("Service %s on %s failed: %v", service, id, err)
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, e.Snapshot())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, cover.ErrMissingAttribute),
		errors.Is(err, cover.ErrInvalidAttribute),
		errors.Is(err, cover.ErrOutOfRange):
		return http.StatusBadRequest
	case errors.Is(err, cover.ErrUnknownService):
		return http.StatusNotFound
	case errors.Is(err, cover.ErrNotSupported):
		return http.StatusMethodNotAllowed
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func requestLogger(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debugw("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

// RunServer serves until ctx is cancelled, then shuts down gracefully.
func RunServer(ctx context.Context, server *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
