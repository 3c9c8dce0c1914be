// Package api exposes the simulation service over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/cascadia-health/epiforecast/internal/model"
	"github.com/cascadia-health/epiforecast/internal/runner"
	"github.com/cascadia-health/epiforecast/internal/store"
)

// Submitter enqueues accepted work for background execution.
type Submitter interface {
	SubmitRun(run *model.Run) error
	SubmitCalibration(cal *model.Calibration) error
}

// Server routes API requests to the store and the dispatcher.
type Server struct {
	store     store.Store
	submitter Submitter
	limiter   *rate.Limiter
}

// Options tunes request handling.
type Options struct {
	RateLimitPerSec float64
	RateLimitBurst  int
}

// NewServer wires the HTTP surface. A non-positive rate limit disables
// throttling.
func NewServer(st store.Store, submitter Submitter, opts Options) *Server {
	var limiter *rate.Limiter
	if opts.RateLimitPerSec > 0 {
		burst := opts.RateLimitBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimitPerSec), burst)
	}
	return &Server{store: st, submitter: submitter, limiter: limiter}
}

// Router builds the chi router with middleware and all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))
	r.Use(s.throttle)

	r.Get("/health", s.handleHealth)

	r.Route("/runs", func(r chi.Router) {
		r.Post("/", s.handleCreateRun)
		r.Get("/", s.handleListRuns)
		r.Get("/{id}", s.handleGetRun)
		r.Get("/{id}/results", s.handleGetRunResults)
	})

	r.Route("/calibrations", func(r chi.Router) {
		r.Post("/", s.handleCreateCalibration)
		r.Get("/{id}", s.handleGetCalibration)
	})

	return r
}

func (s *Server) throttle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var cfg model.RunConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := cfg.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	run, err := s.store.CreateRun(r.Context(), cfg)
	if err != nil {
		zap.L().Error("api: create run", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create run")
		return
	}

	if err := s.submitter.SubmitRun(run); err != nil {
		if errors.Is(err, runner.ErrQueueFull) {
			s.markRejected(r.Context(), run.ID, true)
			writeError(w, http.StatusServiceUnavailable, "simulation queue full, retry later")
			return
		}
		zap.L().Error("api: submit run", zap.String("run_id", run.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to queue run")
		return
	}

	writeJSON(w, http.StatusAccepted, run)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleGetRunResults returns only the result payload; anything short of a
// completed run is a bad request.
func (s *Server) handleGetRunResults(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}

	switch run.Status {
	case model.RunStatusCompleted:
		writeJSON(w, http.StatusOK, run.Result)
	case model.RunStatusFailed:
		writeError(w, http.StatusBadRequest, "run failed: "+run.Error)
	default:
		writeError(w, http.StatusBadRequest, "run is "+string(run.Status))
	}
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	filter, err := runFilterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	runs, err := s.store.ListRuns(r.Context(), filter)
	if err != nil {
		zap.L().Error("api: list runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}

func (s *Server) handleCreateCalibration(w http.ResponseWriter, r *http.Request) {
	var cfg model.CalibrationConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := cfg.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cal, err := s.store.CreateCalibration(r.Context(), cfg)
	if err != nil {
		zap.L().Error("api: create calibration", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create calibration")
		return
	}

	if err := s.submitter.SubmitCalibration(cal); err != nil {
		if errors.Is(err, runner.ErrQueueFull) {
			s.markRejected(r.Context(), cal.ID, false)
			writeError(w, http.StatusServiceUnavailable, "simulation queue full, retry later")
			return
		}
		zap.L().Error("api: submit calibration", zap.String("calibration_id", cal.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to queue calibration")
		return
	}

	writeJSON(w, http.StatusAccepted, cal)
}

func (s *Server) handleGetCalibration(w http.ResponseWriter, r *http.Request) {
	cal, err := s.store.GetCalibration(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "calibration not found")
			return
		}
		zap.L().Error("api: get calibration", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load calibration")
		return
	}
	writeJSON(w, http.StatusOK, cal)
}

func (s *Server) lookupRun(w http.ResponseWriter, r *http.Request) (*model.Run, bool) {
	run, err := s.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return nil, false
		}
		zap.L().Error("api: get run", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return nil, false
	}
	return run, true
}

// markRejected fails a record that was persisted but could not be queued so
// it does not sit in queued state forever.
func (s *Server) markRejected(ctx context.Context, id string, isRun bool) {
	var err error
	if isRun {
		err = s.store.UpdateRunStatus(ctx, id, model.RunStatusFailed, "queue full")
	} else {
		err = s.store.UpdateCalibrationStatus(ctx, id, model.RunStatusFailed, "queue full")
	}
	if err != nil {
		zap.L().Error("api: mark rejected", zap.String("id", id), zap.Error(err))
	}
}
