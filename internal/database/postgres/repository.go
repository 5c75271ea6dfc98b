package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/avoronkov/shortlink/internal/database"
	"github.com/avoronkov/shortlink/internal/models"
)

type linkRecord struct {
	ID           int64     `db:"id"`
	ShortCode    string    `db:"short_code"`
	OriginalURL  string    `db:"original_url"`
	PasswordHash string    `db:"password_hash"`
	AccessCount  int64     `db:"access_count"`
	CreatedAt    time.Time `db:"created_at"`
	ExpiresAt    time.Time `db:"expires_at"`
}

func (r *linkRecord) ToLink() *models.Link {
	return &models.Link{
		ID:           r.ID,
		ShortCode:    r.ShortCode,
		OriginalURL:  r.OriginalURL,
		PasswordHash: r.PasswordHash,
		AccessCount:  r.AccessCount,
		CreatedAt:    r.CreatedAt,
		ExpiresAt:    r.ExpiresAt,
	}
}

type accessLogRecord struct {
	ID            int64     `db:"id"`
	ShortCode     string    `db:"short_code"`
	AccessedAt    time.Time `db:"accessed_at"`
	SourceAddress string    `db:"source_address"`
}

func (r *accessLogRecord) ToAccessLog() models.AccessLog {
	return models.AccessLog{
		ID:            r.ID,
		ShortCode:     r.ShortCode,
		AccessedAt:    r.AccessedAt,
		SourceAddress: r.SourceAddress,
	}
}

// LinkRepository persists shortened links and their access logs in PostgreSQL.
type LinkRepository struct {
	db *sqlx.DB
}

func NewLinkRepository(db *sqlx.DB) *LinkRepository {
	return &LinkRepository{
		db: db,
	}
}

// Create inserts a new link record. The short_code column carries a unique
// constraint, so concurrent inserts of the same code cannot both succeed.
func (r *LinkRepository) Create(ctx context.Context, shortCode, originalURL, passwordHash string, expiresAt time.Time) (*models.Link, error) {
	const op = "database.postgres.LinkRepository.Create"

	rec := new(linkRecord)
	query := `INSERT INTO links(short_code, original_url, password_hash, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING *`

	err := r.db.GetContext(ctx, rec, query, shortCode, originalURL, passwordHash, expiresAt)
	if err != nil {
		if isUniqueViolationError(err) {
			return nil, fmt.Errorf("%s: %w", op, database.ErrShortCodeExists)
		}

		return nil, fmt.Errorf("%s: failed to create link record: %w", op, err)
	}

	return rec.ToLink(), nil
}

// GetByShortCode retrieves a link without side effects.
func (r *LinkRepository) GetByShortCode(ctx context.Context, shortCode string) (*models.Link, error) {
	const op = "database.postgres.LinkRepository.GetByShortCode"

	rec := new(linkRecord)
	query := `SELECT * FROM links WHERE short_code = $1`

	err := r.db.GetContext(ctx, rec, query, shortCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, database.ErrLinkNotFound)
		}

		return nil, fmt.Errorf("%s: failed to get link record: %w", op, err)
	}

	return rec.ToLink(), nil
}

// RecordAccess increments the access counter and appends an access log entry
// in a single transaction. The counter update is a row-level atomic increment,
// so concurrent accesses to the same code never lose updates.
func (r *LinkRepository) RecordAccess(ctx context.Context, shortCode string, accessedAt time.Time, sourceAddress string) (*models.Link, error) {
	const op = "database.postgres.LinkRepository.RecordAccess"

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}
	defer tx.Rollback()

	rec := new(linkRecord)
	query := `UPDATE links
		SET access_count = access_count + 1
		WHERE short_code = $1
		RETURNING *`

	if err := tx.GetContext(ctx, rec, query, shortCode); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, database.ErrLinkNotFound)
		}

		return nil, fmt.Errorf("%s: failed to increment access count: %w", op, err)
	}

	query = `INSERT INTO access_logs(short_code, accessed_at, source_address)
		VALUES ($1, $2, $3)`

	if _, err := tx.ExecContext(ctx, query, shortCode, accessedAt, sourceAddress); err != nil {
		return nil, fmt.Errorf("%s: failed to append access log: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%s: failed to commit transaction: %w", op, err)
	}

	return rec.ToLink(), nil
}

// ListAccessLogs returns the full access history of a link in ascending
// timestamp order.
func (r *LinkRepository) ListAccessLogs(ctx context.Context, shortCode string) ([]models.AccessLog, error) {
	const op = "database.postgres.LinkRepository.ListAccessLogs"

	var recs []accessLogRecord
	query := `SELECT * FROM access_logs
		WHERE short_code = $1
		ORDER BY accessed_at, id`

	if err := r.db.SelectContext(ctx, &recs, query, shortCode); err != nil {
		return nil, fmt.Errorf("%s: failed to list access logs: %w", op, err)
	}

	logs := make([]models.AccessLog, 0, len(recs))
	for _, rec := range recs {
		logs = append(logs, rec.ToAccessLog())
	}

	return logs, nil
}
