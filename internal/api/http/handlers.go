package http

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"github.com/avoronkov/shortlink/internal/database"
	"github.com/avoronkov/shortlink/internal/models"
	"github.com/avoronkov/shortlink/internal/service"
	"github.com/avoronkov/shortlink/pkg/response"
)

// handlePing handles health check requests to ensure the server is running.
func handlePing(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "pong")
}

// shortenRequest represents the request payload for creating a shortened link.
type shortenRequest struct {
	URL         string `json:"url" validate:"required,url"`
	ExpiryHours *int   `json:"expiry_hours,omitempty" validate:"omitempty,gt=0"`
	Password    string `json:"password,omitempty"`
}

// linkResponse represents the response payload for a link operation.
type linkResponse struct {
	ShortCode   string    `json:"short_code"`
	URL         string    `json:"url"`
	Protected   bool      `json:"protected"`
	AccessCount int64     `json:"access_count"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// accessLogResponse represents a single access log entry in the stats payload.
type accessLogResponse struct {
	AccessedAt    time.Time `json:"accessed_at"`
	SourceAddress string    `json:"source_address"`
}

// linkStatsResponse represents the response payload for link statistics.
type linkStatsResponse struct {
	linkResponse
	AccessLogs []accessLogResponse `json:"access_logs"`
}

// toLinkResponse converts a link model from the business layer into a response payload.
func toLinkResponse(link *models.Link) linkResponse {
	return linkResponse{
		ShortCode:   link.ShortCode,
		URL:         link.OriginalURL,
		Protected:   link.Protected(),
		AccessCount: link.AccessCount,
		CreatedAt:   link.CreatedAt,
		ExpiresAt:   link.ExpiresAt,
	}
}

// toLinkStatsResponse converts link statistics into a response payload.
func toLinkStatsResponse(stats *models.LinkStats) linkStatsResponse {
	resp := linkStatsResponse{
		linkResponse: toLinkResponse(&stats.Link),
		AccessLogs:   make([]accessLogResponse, 0, len(stats.AccessLogs)),
	}

	for _, log := range stats.AccessLogs {
		resp.AccessLogs = append(resp.AccessLogs, accessLogResponse{
			AccessedAt:    log.AccessedAt,
			SourceAddress: log.SourceAddress,
		})
	}

	return resp
}

// sourceAddress extracts the caller's network address from the request.
// RealIP middleware has already rewritten RemoteAddr where forwarding
// headers are present.
func sourceAddress(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// handleShortenLink handles POST requests to shorten a URL.
//
// The request must contain a valid absolute URL and may carry an expiry
// period in hours and a password. The handler validates the input, calls the
// link shortening service, and returns the generated short code with relevant
// metadata.
func handleShortenLink(svc LinkService, validate *validator.Validate) http.HandlerFunc {
	const op = "api.http.handleShortenLink"
	const successMsg = "The URL has been shortened successfully."

	return func(w http.ResponseWriter, r *http.Request) {
		var req shortenRequest

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			if errors.Is(err, io.EOF) {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.EmptyRequestBodyResponse)
				return
			}

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.BadRequestResponse)
			return
		}

		if err := validate.Struct(req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.ValidationErrorResponse(err))
			return
		}

		var expiryHours int
		if req.ExpiryHours != nil {
			expiryHours = *req.ExpiryHours
		}

		link, err := svc.ShortenLink(r.Context(), req.URL, req.Password, expiryHours)
		if err != nil {
			if errors.Is(err, service.ErrInvalidURL) || errors.Is(err, service.ErrInvalidExpiry) {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.BadRequestResponse)
				return
			}

			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, response.SuccessResponse(successMsg, toLinkResponse(link)))
	}
}

// handleResolveLink handles GET requests to resolve a short code into the original URL.
//
// The password for protected links is supplied via the "password" query
// parameter. The handler returns the link data on success, a 404 error if the
// short code doesn't exist, a 410 error past expiry and a 401 error on a
// wrong or missing password. The access is counted and logged only on success.
func handleResolveLink(svc LinkService) http.HandlerFunc {
	const op = "api.http.handleResolveLink"
	const successMsg = "The short code was successfully resolved."

	return func(w http.ResponseWriter, r *http.Request) {
		shortCode := chi.URLParam(r, "shortCode")
		password := r.URL.Query().Get("password")

		link, err := svc.ResolveLink(r.Context(), shortCode, password, sourceAddress(r))
		if err != nil {
			switch {
			case errors.Is(err, database.ErrLinkNotFound):
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.ResourceNotFoundResponse)
			case errors.Is(err, service.ErrLinkExpired):
				render.Status(r, http.StatusGone)
				render.JSON(w, r, response.LinkExpiredResponse)
			case errors.Is(err, service.ErrInvalidPassword):
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.InvalidPasswordResponse)
			default:
				httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, response.ServerErrorResponse)
			}
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg, toLinkResponse(link)))
	}
}

// handleLinkStats handles GET requests to retrieve usage statistics for a shortened link.
//
// The handler fetches the access count and full access history for the given
// link, returning the data or a 404 error if the link doesn't exist.
// Statistics remain available after the link expires.
func handleLinkStats(svc LinkService) http.HandlerFunc {
	const op = "api.http.handleLinkStats"
	const successMsg = "The link statistics retrieved successfully."

	return func(w http.ResponseWriter, r *http.Request) {
		shortCode := chi.URLParam(r, "shortCode")

		stats, err := svc.LinkStats(r.Context(), shortCode)
		if err != nil {
			if errors.Is(err, database.ErrLinkNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.ResourceNotFoundResponse)
				return
			}

			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg, toLinkStatsResponse(stats)))
	}
}
