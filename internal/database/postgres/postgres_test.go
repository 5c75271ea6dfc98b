package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolationError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
		{
			name: "non-postgres error",
			err:  errors.New("unknown error"),
			want: false,
		},
		{
			name: "postgres error with different code",
			err:  &pgconn.PgError{Code: "23503"},
			want: false,
		},
		{
			name: "unique violation error",
			err:  &pgconn.PgError{Code: uniqueViolationErrCode},
			want: true,
		},
		{
			name: "wrapped unique violation error",
			err:  fmt.Errorf("insert failed: %w", &pgconn.PgError{Code: uniqueViolationErrCode}),
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isUniqueViolationError(tt.err))
		})
	}
}
