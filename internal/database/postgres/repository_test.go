package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"

	"github.com/avoronkov/shortlink/internal/database"
	"github.com/avoronkov/shortlink/internal/models"
)

var errUnknown = errors.New("unknown error")

var (
	linkColumns      = []string{"id", "short_code", "original_url", "password_hash", "access_count", "created_at", "expires_at"}
	accessLogColumns = []string{"id", "short_code", "accessed_at", "source_address"}
)

func setupLinkRepository(t testing.TB) (*LinkRepository, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}

	db := sqlx.NewDb(mockDB, "sqlmock")
	repo := NewLinkRepository(db)

	t.Cleanup(func() {
		mockDB.Close()
		db.Close()
	})

	return repo, mock
}

func TestLinkRepository_Create(t *testing.T) {
	expiresAt := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)

	t.Run("short code exists", func(t *testing.T) {
		repo, mock := setupLinkRepository(t)

		mock.ExpectQuery(`INSERT INTO links`).
			WithArgs("code1", "https://example.com", "", expiresAt).
			WillReturnError(&pgconn.PgError{Code: uniqueViolationErrCode})

		link, err := repo.Create(context.TODO(), "code1", "https://example.com", "", expiresAt)

		assert.Error(t, err)
		assert.ErrorIs(t, err, database.ErrShortCodeExists)
		assert.Nil(t, link)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown error", func(t *testing.T) {
		repo, mock := setupLinkRepository(t)

		mock.ExpectQuery(`INSERT INTO links`).
			WithArgs("code1", "https://example.com", "", expiresAt).
			WillReturnError(errUnknown)

		link, err := repo.Create(context.TODO(), "code1", "https://example.com", "", expiresAt)

		assert.Error(t, err)
		assert.ErrorIs(t, err, errUnknown)
		assert.Nil(t, link)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("success", func(t *testing.T) {
		repo, mock := setupLinkRepository(t)

		rows := sqlmock.NewRows(linkColumns).
			AddRow(0, "code1", "https://example.com", "", 0, time.Time{}, expiresAt)

		mock.ExpectQuery(`INSERT INTO links`).
			WithArgs("code1", "https://example.com", "", expiresAt).
			WillReturnRows(rows)

		wantLink := models.Link{
			ShortCode:   "code1",
			OriginalURL: "https://example.com",
			ExpiresAt:   expiresAt,
		}

		link, err := repo.Create(context.TODO(), "code1", "https://example.com", "", expiresAt)

		assert.NoError(t, err)
		assert.NotNil(t, link)
		assert.Equal(t, wantLink, *link)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("success with password hash", func(t *testing.T) {
		repo, mock := setupLinkRepository(t)

		rows := sqlmock.NewRows(linkColumns).
			AddRow(0, "code1", "https://example.com", "hash1", 0, time.Time{}, expiresAt)

		mock.ExpectQuery(`INSERT INTO links`).
			WithArgs("code1", "https://example.com", "hash1", expiresAt).
			WillReturnRows(rows)

		link, err := repo.Create(context.TODO(), "code1", "https://example.com", "hash1", expiresAt)

		assert.NoError(t, err)
		assert.NotNil(t, link)
		assert.Equal(t, "hash1", link.PasswordHash)
		assert.True(t, link.Protected())
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLinkRepository_GetByShortCode(t *testing.T) {
	t.Run("link not found", func(t *testing.T) {
		repo, mock := setupLinkRepository(t)

		mock.ExpectQuery(`SELECT (.+) FROM links`).
			WithArgs("code2").
			WillReturnError(sql.ErrNoRows)

		link, err := repo.GetByShortCode(context.TODO(), "code2")

		assert.Error(t, err)
		assert.ErrorIs(t, err, database.ErrLinkNotFound)
		assert.Nil(t, link)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown error", func(t *testing.T) {
		repo, mock := setupLinkRepository(t)

		mock.ExpectQuery(`SELECT (.+) FROM links`).
			WithArgs("code1").
			WillReturnError(errUnknown)

		link, err := repo.GetByShortCode(context.TODO(), "code1")

		assert.Error(t, err)
		assert.ErrorIs(t, err, errUnknown)
		assert.Nil(t, link)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("success", func(t *testing.T) {
		repo, mock := setupLinkRepository(t)

		rows := sqlmock.NewRows(linkColumns).
			AddRow(0, "code1", "https://example.com", "", 1, time.Time{}, time.Time{})

		mock.ExpectQuery(`SELECT (.+) FROM links`).
			WithArgs("code1").
			WillReturnRows(rows)

		wantLink := models.Link{
			ShortCode:   "code1",
			OriginalURL: "https://example.com",
			AccessCount: 1,
		}

		link, err := repo.GetByShortCode(context.TODO(), "code1")

		assert.NoError(t, err)
		assert.NotNil(t, link)
		assert.Equal(t, wantLink, *link)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLinkRepository_RecordAccess(t *testing.T) {
	accessedAt := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("link not found", func(t *testing.T) {
		repo, mock := setupLinkRepository(t)

		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE links`).
			WithArgs("code2").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		link, err := repo.RecordAccess(context.TODO(), "code2", accessedAt, "203.0.113.7")

		assert.Error(t, err)
		assert.ErrorIs(t, err, database.ErrLinkNotFound)
		assert.Nil(t, link)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("log insert error rolls back increment", func(t *testing.T) {
		repo, mock := setupLinkRepository(t)

		rows := sqlmock.NewRows(linkColumns).
			AddRow(0, "code1", "https://example.com", "", 1, time.Time{}, time.Time{})

		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE links`).
			WithArgs("code1").
			WillReturnRows(rows)
		mock.ExpectExec(`INSERT INTO access_logs`).
			WithArgs("code1", accessedAt, "203.0.113.7").
			WillReturnError(errUnknown)
		mock.ExpectRollback()

		link, err := repo.RecordAccess(context.TODO(), "code1", accessedAt, "203.0.113.7")

		assert.Error(t, err)
		assert.ErrorIs(t, err, errUnknown)
		assert.Nil(t, link)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("success", func(t *testing.T) {
		repo, mock := setupLinkRepository(t)

		rows := sqlmock.NewRows(linkColumns).
			AddRow(0, "code1", "https://example.com", "", 1, time.Time{}, time.Time{})

		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE links`).
			WithArgs("code1").
			WillReturnRows(rows)
		mock.ExpectExec(`INSERT INTO access_logs`).
			WithArgs("code1", accessedAt, "203.0.113.7").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		wantLink := models.Link{
			ShortCode:   "code1",
			OriginalURL: "https://example.com",
			AccessCount: 1,
		}

		link, err := repo.RecordAccess(context.TODO(), "code1", accessedAt, "203.0.113.7")

		assert.NoError(t, err)
		assert.NotNil(t, link)
		assert.Equal(t, wantLink, *link)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLinkRepository_ListAccessLogs(t *testing.T) {
	t.Run("unknown error", func(t *testing.T) {
		repo, mock := setupLinkRepository(t)

		mock.ExpectQuery(`SELECT (.+) FROM access_logs`).
			WithArgs("code1").
			WillReturnError(errUnknown)

		logs, err := repo.ListAccessLogs(context.TODO(), "code1")

		assert.Error(t, err)
		assert.ErrorIs(t, err, errUnknown)
		assert.Nil(t, logs)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no logs", func(t *testing.T) {
		repo, mock := setupLinkRepository(t)

		mock.ExpectQuery(`SELECT (.+) FROM access_logs`).
			WithArgs("code1").
			WillReturnRows(sqlmock.NewRows(accessLogColumns))

		logs, err := repo.ListAccessLogs(context.TODO(), "code1")

		assert.NoError(t, err)
		assert.Empty(t, logs)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("success", func(t *testing.T) {
		repo, mock := setupLinkRepository(t)

		firstAt := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
		secondAt := firstAt.Add(time.Hour)

		rows := sqlmock.NewRows(accessLogColumns).
			AddRow(1, "code1", firstAt, "203.0.113.7").
			AddRow(2, "code1", secondAt, "198.51.100.23")

		mock.ExpectQuery(`SELECT (.+) FROM access_logs`).
			WithArgs("code1").
			WillReturnRows(rows)

		wantLogs := []models.AccessLog{
			{ID: 1, ShortCode: "code1", AccessedAt: firstAt, SourceAddress: "203.0.113.7"},
			{ID: 2, ShortCode: "code1", AccessedAt: secondAt, SourceAddress: "198.51.100.23"},
		}

		logs, err := repo.ListAccessLogs(context.TODO(), "code1")

		assert.NoError(t, err)
		assert.Equal(t, wantLogs, logs)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
