package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/blakegallagher1/gpc-cres-sub006/internal/config"
	"github.com/blakegallagher1/gpc-cres-sub006/internal/evaluation"
	"github.com/blakegallagher1/gpc-cres-sub006/internal/monitoring"
	"github.com/blakegallagher1/gpc-cres-sub006/internal/rerun"
	"github.com/blakegallagher1/gpc-cres-sub006/internal/resilience"
	"github.com/blakegallagher1/gpc-cres-sub006/internal/routing"
	"github.com/blakegallagher1/gpc-cres-sub006/internal/screening"
	"github.com/blakegallagher1/gpc-cres-sub006/internal/store"
)

const maxBodyBytes = 1 << 20

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the scoring and evaluation HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}

		env, err := initService(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		collector := env.Collector()
		if cfg.Monitoring.Enabled {
			checker := monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
			go checker.Run(ctx)
		}

		srv := &http.Server{
			Addr: fmt.Sprintf(":%d", cfg.Server.Port),
			Handler: newRouter(routerDeps{
				Service: env.Service,
				Ping:    env.Store.Ping,
				Metrics: func(ctx context.Context) (*monitoring.MetricsSnapshot, error) {
					return collector.Collect(ctx, cfg.Monitoring.LookbackWindowHours)
				},
			}, cfg.Server),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("serve: shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutSecs)*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("serve: shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("serve: listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// routerDeps are the handlers' collaborators. Ping and Metrics may be nil.
type routerDeps struct {
	Service *evaluation.Service
	Ping    func(context.Context) error
	Metrics func(context.Context) (*monitoring.MetricsSnapshot, error)
}

// api serves the HTTP surface. The scoring endpoints are stateless; the
// evaluation endpoints go through the service and its store.
type api struct {
	svc     *evaluation.Service
	ping    func(context.Context) error
	metrics func(context.Context) (*monitoring.MetricsSnapshot, error)
}

// newRouter builds the chi router with CORS, rate limiting and request
// logging in front of every route.
func newRouter(deps routerDeps, sc config.ServerConfig) http.Handler {
	a := &api{svc: deps.Service, ping: deps.Ping, metrics: deps.Metrics}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: sc.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(rateLimit(rate.NewLimiter(rate.Limit(sc.RateLimitRPS), sc.RateLimitBurst)))

	r.Get("/health", a.health)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/triage", a.triage)
		r.Post("/screening", a.screen)
		r.Post("/deal-score", a.dealScore)
		r.Post("/route", a.route)
		r.Post("/rerun-decision", a.rerunDecision)
		r.Post("/evaluations", a.evaluate)
		r.Get("/evaluations/{id}", a.getEvaluation)
		r.Get("/metrics", a.runMetrics)
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Debug("serve: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// rateLimit rejects requests beyond the limiter's budget with 429.
func rateLimit(lim *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !lim.Allow() {
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSONResponse(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("serve: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSONResponse(w, status, map[string]string{"error": msg})
}

// decodeBody decodes a JSON request body, answering 400 itself on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// errorStatus maps service errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, evaluation.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, screening.ErrInvalidAmortization), errors.Is(err, screening.ErrInvalidPlaybook):
		return http.StatusUnprocessableEntity
	case errors.Is(err, resilience.ErrBreakerOpen):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (a *api) health(w http.ResponseWriter, r *http.Request) {
	if a.ping != nil {
		if err := a.ping(r.Context()); err != nil {
			zap.L().Warn("serve: health check failed", zap.Error(err))
			writeJSONResponse(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

type triageBody struct {
	evaluation.TriagePayload
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

func (a *api) triage(w http.ResponseWriter, r *http.Request) {
	var body triageBody
	if !decodeBody(w, r, &body) {
		return
	}
	createdAt := time.Now().UTC()
	if body.CreatedAt != nil {
		createdAt = *body.CreatedAt
	}
	writeJSONResponse(w, http.StatusOK, a.svc.Options().Triage(body.TriagePayload, createdAt))
}

func (a *api) screen(w http.ResponseWriter, r *http.Request) {
	var p evaluation.ScreeningPayload
	if !decodeBody(w, r, &p) {
		return
	}
	out, err := a.svc.Options().Screen(p)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSONResponse(w, http.StatusOK, out)
}

func (a *api) dealScore(w http.ResponseWriter, r *http.Request) {
	var p evaluation.DealScorePayload
	if !decodeBody(w, r, &p) {
		return
	}
	out, err := a.svc.Options().DealScore(p)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSONResponse(w, http.StatusOK, out)
}

func (a *api) route(w http.ResponseWriter, r *http.Request) {
	var in routing.SignalInput
	if !decodeBody(w, r, &in) {
		return
	}
	writeJSONResponse(w, http.StatusOK, routing.Route(in))
}

func (a *api) rerunDecision(w http.ResponseWriter, r *http.Request) {
	var req rerun.Request
	if !decodeBody(w, r, &req) {
		return
	}
	d, err := rerun.Decide(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSONResponse(w, http.StatusOK, d)
}

func (a *api) evaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluation.Request
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := a.svc.Evaluate(r.Context(), req)
	if err != nil {
		status := errorStatus(err)
		if status >= http.StatusInternalServerError {
			zap.L().Error("serve: evaluation failed", zap.Error(err))
		}
		writeError(w, status, err.Error())
		return
	}
	status := http.StatusCreated
	if res.Reused {
		status = http.StatusOK
	}
	writeJSONResponse(w, status, res)
}

func (a *api) getEvaluation(w http.ResponseWriter, r *http.Request) {
	run, err := a.svc.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeJSONResponse(w, http.StatusOK, run)
}

func (a *api) runMetrics(w http.ResponseWriter, r *http.Request) {
	if a.metrics == nil {
		writeError(w, http.StatusNotFound, "metrics are not enabled")
		return
	}
	snap, err := a.metrics(r.Context())
	if err != nil {
		zap.L().Error("serve: collect metrics", zap.Error(err))
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeJSONResponse(w, http.StatusOK, snap)
}
