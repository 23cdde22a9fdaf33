package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// newRouter wires the routes. Middleware order: recovery, CORS, auth, logging.
func newRouter(h *handler, apiKey, corsOrigins string) http.Handler {
	r := chi.NewRouter()
	r.Use(recoveryMiddleware)
	if corsOrigins != "" {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: strings.Split(corsOrigins, ","),
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
			MaxAge:         86400,
		}))
	}
	r.Use(authMiddleware(apiKey))
	r.Use(middleware.RequestID)
	r.Use(logMiddleware)

	r.Get("/health", h.handleHealth)
	r.Post("/parse", h.handleParse)
	r.Post("/check", h.handleCheck)
	r.Post("/export/{format}", h.handleExport)

	r.Route("/documents", func(r chi.Router) {
		r.Get("/", h.handleListDocuments)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.handleGetDocument)
			r.Delete("/", h.handleDeleteDocument)
			r.Get("/errors", h.handleErrors)
			r.Post("/pages/{n}/image", h.handlePageImage)
			r.Post("/render", h.handleRender)
			r.Post("/review", h.handleReview)
			r.Get("/report.xlsx", h.handleReport)
		})
	})
	return r
}

// logMiddleware logs each request with method, path, status, and duration.
func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(rw, r)

		status := rw.Status()
		if status == 0 {
			status = http.StatusOK
		}
		slog.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", rw.BytesWritten(),
			"duration", time.Since(start).Round(time.Millisecond),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// authMiddleware checks for a valid API key in the Authorization header.
// An empty apiKey disables authentication. /health is always open.
func authMiddleware(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if apiKey == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") || auth[7:] != apiKey {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// recoveryMiddleware catches panics, logs the stack trace, and returns 500.
func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				slog.Error("panic recovered",
					"error", fmt.Sprintf("%v", err),
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
