package models

import "time"

// Link represents a shortened URL and its associated metadata.
type Link struct {
	// ID is the unique identifier for the shortened link record.
	ID int64
	// ShortCode is the short code or key associated with the original URL.
	ShortCode string
	// OriginalURL is the original, full-length URL that the short code points to.
	OriginalURL string
	// PasswordHash holds the bcrypt hash guarding the link.
	// It is empty for links without password protection.
	PasswordHash string
	// AccessCount tracks the number of times the shortened link has been resolved.
	AccessCount int64
	// CreatedAt is the timestamp indicating when the link was created.
	CreatedAt time.Time
	// ExpiresAt is the timestamp after which the link no longer resolves.
	ExpiresAt time.Time
}

// Expired reports whether the link is past its expiration at the given moment.
func (l *Link) Expired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}

// Protected reports whether resolving the link requires a password.
func (l *Link) Protected() bool {
	return l.PasswordHash != ""
}

// AccessLog represents a single successful resolution of a link.
type AccessLog struct {
	// ID is the unique identifier for the log record.
	ID int64
	// ShortCode references the link the access belongs to.
	ShortCode string
	// AccessedAt is the timestamp of the access.
	AccessedAt time.Time
	// SourceAddress is the network address the access originated from.
	SourceAddress string
}

// LinkStats bundles a link with its full access history.
type LinkStats struct {
	Link
	// AccessLogs lists every recorded access in ascending timestamp order.
	AccessLogs []AccessLog
}
