package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"albumshare/internal/auth"
	"albumshare/internal/domain"
)

// RouterDeps is everything the HTTP surface needs.
type RouterDeps struct {
	Uploads  *UploadHandler
	Media    *MediaHandler
	Quota    *QuotaHandler
	Verifier *auth.Verifier
	Metrics  http.Handler
	// Health is optional; nil always reports healthy.
	Health func(ctx context.Context) error
	Log    zerolog.Logger
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(d.Log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if d.Health != nil {
			if err := d.Health(r.Context()); err != nil {
				d.Log.Warn().Err(err).Msg("health check failed")
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(d.Verifier.Middleware(func(w http.ResponseWriter, r *http.Request, err error) {
			writeError(w, r, d.Log, err)
		}))

		r.Post("/uploads", d.Uploads.ReserveUpload)
		r.Post("/uploads/complete", d.Uploads.CompleteUpload)
		r.Post("/avatars/uploads", d.Uploads.ReserveAvatar)

		r.Route("/media/{id}", func(r chi.Router) {
			r.Get("/", d.Media.GetMedia)
			r.Get("/download", d.Media.Download)
			r.Delete("/", d.Media.DeleteMedia)
		})

		r.Get("/quota", d.Quota.GetQuotaInfo)

		r.Route("/admin/quota/{userId}", func(r chi.Router) {
			r.Use(requireAdmin(d.Log))
			r.Put("/limit", d.Quota.UpdateQuotaLimit)
			r.Post("/reconcile", d.Quota.Reconcile)
		})
	})

	return r
}

func requireAdmin(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := identity(r)
			if err != nil {
				writeError(w, r, log, err)
				return
			}
			if !id.IsAdmin() {
				writeError(w, r, log, domain.ErrNotAllowed)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			ev := log.Debug()
			if status >= http.StatusInternalServerError {
				ev = log.Warn()
			}
			ev.Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("http request")
		})
	}
}
