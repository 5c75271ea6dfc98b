package http

import (
	"context"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"
	"github.com/go-playground/validator/v10"

	"github.com/avoronkov/shortlink/internal/models"
)

// LinkService defines the interface for the core link shortening business logic.
type LinkService interface {
	// ShortenLink creates a shortened version of the provided original URL,
	// optionally guarded by a password and expiring after the given number of hours.
	// It returns the generated short code and associated link details, or an error if the operation fails.
	ShortenLink(ctx context.Context, originalURL, password string, expiryHours int) (*models.Link, error)

	// ResolveLink retrieves the original URL for a given short code, checking
	// expiry and the password where the link is protected, and records the access.
	// It returns the associated link details or an error if resolution fails.
	ResolveLink(ctx context.Context, shortCode, password, sourceAddress string) (*models.Link, error)

	// LinkStats retrieves the statistics of the link associated with the short
	// code, including its full access history.
	// It returns the statistics or an error if the link is not found.
	LinkStats(ctx context.Context, shortCode string) (*models.LinkStats, error)
}

// getValidate initializes a new validator instance for validating incoming request payloads.
// It customizes tag name extraction from struct fields to match JSON tags.
func getValidate() *validator.Validate {
	validate := validator.New()

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return validate
}

// NewRouter initializes and returns a new HTTP router with all routes and middleware configured.
func NewRouter(logger *httplog.Logger, linkSvc LinkService) http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*"},
		AllowedMethods:   []string{"POST", "GET", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Accept"},
		AllowCredentials: false,
		MaxAge:           84600,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httplog.RequestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		validate := getValidate()

		r.Get("/ping", handlePing)

		r.Route("/shorten", func(r chi.Router) {
			r.Post("/", handleShortenLink(linkSvc, validate))

			r.Route("/{shortCode}", func(r chi.Router) {
				r.Get("/", handleResolveLink(linkSvc))
				r.Get("/stats", handleLinkStats(linkSvc))
			})
		})
	})

	return r
}
