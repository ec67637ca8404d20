// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/opentrusty/orgmanager/internal/identity"
	"github.com/opentrusty/orgmanager/internal/lock"
	"github.com/opentrusty/orgmanager/internal/observability/logger"
	"github.com/opentrusty/orgmanager/internal/tenant"
)

// DefaultRequestTimeout bounds every request that is not a migration
const DefaultRequestTimeout = 60 * time.Second

// Handler holds HTTP handlers and dependencies
type Handler struct {
	identityService *identity.Service
	tenantService   *tenant.Service
}

// NewHandler creates a new HTTP handler
func NewHandler(identityService *identity.Service, tenantService *tenant.Service) *Handler {
	return &Handler{
		identityService: identityService,
		tenantService:   tenantService,
	}
}

// RouterConfig holds router-level settings
type RouterConfig struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler, rateLimiter *RateLimiter, cfg RouterConfig) *chi.Mux {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(CORS(cfg.AllowedOrigins))
	r.Use(RateLimitMiddleware(rateLimiter))
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Get("/health", h.HealthCheck)

	r.Post("/admin/login", h.Login)

	r.Route("/org", func(r chi.Router) {
		r.Post("/create", h.CreateOrganization)
		r.Get("/get", h.GetOrganization)

		// Bearer token required
		r.Group(func(r chi.Router) {
			r.Use(h.AuthMiddleware)

			r.Put("/update", h.UpdateOrganization)
			r.Delete("/delete", h.DeleteOrganization)
			r.Post("/documents", h.AddDocument)
			r.Get("/documents", h.ListDocuments)
		})
	})

	return r
}

// CORS builds the cross-origin middleware. An empty or "*" origin list
// allows any origin without credentials.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-Request-Id",
		},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}
	if len(allowedOrigins) > 0 && allowedOrigins[0] != "*" {
		opts.AllowedOrigins = allowedOrigins
		opts.AllowCredentials = true
	}
	return cors.Handler(opts)
}

// HealthCheck returns the health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "orgmanager",
	})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// respondServiceError maps service errors onto status codes. Anything
// unrecognised is logged and reported as a 500 without detail.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, tenant.ErrInvalidName),
		errors.Is(err, tenant.ErrInvalidEmail),
		errors.Is(err, tenant.ErrInvalidPassword),
		errors.Is(err, tenant.ErrInvalidDocument):
		respondError(w, http.StatusBadRequest, err.Error())
	case identity.IsAuthError(err):
		respondError(w, http.StatusUnauthorized, identity.ErrInvalidToken.Error())
	case errors.Is(err, identity.ErrInvalidCredentials):
		respondError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, tenant.ErrForbidden):
		respondError(w, http.StatusForbidden, "not authorized")
	case errors.Is(err, tenant.ErrOrganizationNotFound),
		errors.Is(err, tenant.ErrPartitionNotFound):
		respondError(w, http.StatusNotFound, "organization not found")
	case errors.Is(err, tenant.ErrNameConflict):
		respondError(w, http.StatusConflict, tenant.ErrNameConflict.Error())
	case errors.Is(err, tenant.ErrConcurrentModification):
		respondError(w, http.StatusConflict, tenant.ErrConcurrentModification.Error())
	case errors.Is(err, tenant.ErrResourceExhausted):
		respondError(w, http.StatusRequestEntityTooLarge, tenant.ErrResourceExhausted.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, lock.ErrLockTimeout):
		respondError(w, http.StatusGatewayTimeout, "operation timed out")
	default:
		slog.ErrorContext(r.Context(), "request failed",
			logger.RequestID(middleware.GetReqID(r.Context())),
			logger.Path(r.URL.Path),
			logger.Error(err),
		)
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}
