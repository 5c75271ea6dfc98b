package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/avoronkov/shortlink/internal/database"
	"github.com/avoronkov/shortlink/internal/models"
)

var (
	// ErrMaxRetriesExceeded is returned when the maximum number of retries for generating a short code is exceeded.
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded for generating short code")
	// ErrInvalidURL is returned when the original URL is not a well-formed absolute URL.
	ErrInvalidURL = errors.New("invalid original url")
	// ErrInvalidExpiry is returned when the requested expiry period is not positive.
	ErrInvalidExpiry = errors.New("invalid expiry period")
	// ErrLinkExpired is returned when resolving a link past its expiration.
	ErrLinkExpired = errors.New("link expired")
	// ErrInvalidPassword is returned when resolving a protected link with a wrong or missing password.
	ErrInvalidPassword = errors.New("invalid password")
)

// shortCodeAlphabet is the character set short codes are drawn from.
const shortCodeAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// maxShortCodeRetries bounds the generate-and-check loop on code collisions.
const maxShortCodeRetries = 5

// LinkRepository defines the interface for working with links at the business logic layer.
type LinkRepository interface {
	// Create inserts a new shortened link into the repository.
	// Returns the created link model or an error if the short code is taken.
	Create(ctx context.Context, shortCode, originalURL, passwordHash string, expiresAt time.Time) (*models.Link, error)

	// GetByShortCode retrieves a link by its short code without side effects.
	// Returns the link model if found or an error if not found.
	GetByShortCode(ctx context.Context, shortCode string) (*models.Link, error)

	// RecordAccess atomically increments the access counter and appends an
	// access log entry. Returns the updated link model.
	RecordAccess(ctx context.Context, shortCode string, accessedAt time.Time, sourceAddress string) (*models.Link, error)

	// ListAccessLogs returns the access history of a link in ascending timestamp order.
	ListAccessLogs(ctx context.Context, shortCode string) ([]models.AccessLog, error)
}

// LinkService provides methods to manage link shortening operations.
// The service uses a LinkRepository interface to interact with the underlying database.
type LinkService struct {
	repo               LinkRepository
	shortCodeLength    int
	defaultExpiryHours int
	now                func() time.Time
}

// NewLinkService creates a new instance of LinkService with the provided
// repository, short code length and default expiry period in hours.
func NewLinkService(repo LinkRepository, shortCodeLength, defaultExpiryHours int) *LinkService {
	return &LinkService{
		repo:               repo,
		shortCodeLength:    shortCodeLength,
		defaultExpiryHours: defaultExpiryHours,
		now:                func() time.Time { return time.Now().UTC() },
	}
}

// validateURL checks that the raw string is an absolute URL with a scheme and host.
func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return ErrInvalidURL
	}
	return nil
}

// ShortenLink creates a shortened link for the provided original URL.
//
// expiryHours controls how long the link stays resolvable; zero selects the
// configured default and negative values are rejected. A non-empty password
// makes the link password-protected; only its bcrypt hash is stored.
//
// The short code is generated at random and checked against the repository's
// uniqueness constraint, retrying up to a bounded number of attempts. Code
// collisions are never surfaced to the caller.
func (s *LinkService) ShortenLink(ctx context.Context, originalURL, password string, expiryHours int) (*models.Link, error) {
	const op = "service.LinkService.ShortenLink"

	if err := validateURL(originalURL); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if expiryHours == 0 {
		expiryHours = s.defaultExpiryHours
	}
	if expiryHours <= 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidExpiry)
	}

	var passwordHash string
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to hash password: %w", op, err)
		}
		passwordHash = string(hash)
	}

	expiresAt := s.now().Add(time.Duration(expiryHours) * time.Hour)

	for i := 0; i < maxShortCodeRetries; i++ {
		shortCode, err := gonanoid.Generate(shortCodeAlphabet, s.shortCodeLength)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to generate short code: %w", op, err)
		}

		link, err := s.repo.Create(ctx, shortCode, originalURL, passwordHash, expiresAt)
		if err != nil {
			if errors.Is(err, database.ErrShortCodeExists) {
				continue
			}

			return nil, fmt.Errorf("%s: failed to shorten link: %w", op, err)
		}

		return link, nil
	}

	return nil, fmt.Errorf("%s: %w", op, ErrMaxRetriesExceeded)
}

// ResolveLink retrieves the original URL associated with the provided short code.
//
// Resolution fails with ErrLinkExpired past the link's expiration and with
// ErrInvalidPassword when a protected link is accessed with a wrong or missing
// password. Failed attempts leave the access counter and log untouched; the
// access is recorded only when every check passes.
func (s *LinkService) ResolveLink(ctx context.Context, shortCode, password, sourceAddress string) (*models.Link, error) {
	const op = "service.LinkService.ResolveLink"

	link, err := s.repo.GetByShortCode(ctx, shortCode)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to resolve short code: %w", op, err)
	}

	if link.Expired(s.now()) {
		return nil, fmt.Errorf("%s: %w", op, ErrLinkExpired)
	}

	if link.Protected() {
		if err := bcrypt.CompareHashAndPassword([]byte(link.PasswordHash), []byte(password)); err != nil {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidPassword)
		}
	}

	link, err = s.repo.RecordAccess(ctx, shortCode, s.now(), sourceAddress)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to record access: %w", op, err)
	}

	return link, nil
}

// LinkStats retrieves the link associated with the provided short code
// together with its full access history.
//
// Statistics remain readable after the link expires; expiry blocks
// resolution, not visibility of history.
func (s *LinkService) LinkStats(ctx context.Context, shortCode string) (*models.LinkStats, error) {
	const op = "service.LinkService.LinkStats"

	link, err := s.repo.GetByShortCode(ctx, shortCode)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to get link stats: %w", op, err)
	}

	logs, err := s.repo.ListAccessLogs(ctx, shortCode)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to list access logs: %w", op, err)
	}

	return &models.LinkStats{
		Link:       *link,
		AccessLogs: logs,
	}, nil
}
