package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLink_Expired(t *testing.T) {
	expiresAt := time.Date(2025, 1, 2, 12, 0, 0, 0, time.UTC)
	link := Link{ExpiresAt: expiresAt}

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{
			name: "before expiration",
			now:  expiresAt.Add(-time.Hour),
			want: false,
		},
		{
			name: "at expiration",
			now:  expiresAt,
			want: false,
		},
		{
			name: "after expiration",
			now:  expiresAt.Add(time.Second),
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, link.Expired(tt.now))
		})
	}
}

func TestLink_Protected(t *testing.T) {
	assert.False(t, (&Link{}).Protected())
	assert.True(t, (&Link{PasswordHash: "hash1"}).Protected())
}
