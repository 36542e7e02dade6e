package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewArticle_InitialState(t *testing.T) {
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	a := NewArticle("A1", "https://example.com/a1", "Title", "Publisher", "mp-1", now.Unix(), now)

	assert.Equal(t, "A1", a.ID)
	assert.Equal(t, StatusProcessing, a.DiscoveryStatus)
	assert.Equal(t, StatusPending, a.DownloadStatus)
	assert.Equal(t, StatusPending, a.ParseStatus)
	assert.Equal(t, StatusPending, a.StorageStatus)
	assert.Equal(t, now, a.CreatedAt)
	assert.Equal(t, now, a.UpdatedAt)
	assert.Nil(t, a.DiscoveredAt)
}

func TestArticle_Validate(t *testing.T) {
	tests := []struct {
		name    string
		article Article
		wantErr bool
	}{
		{"valid", Article{ID: "A1", URL: "https://example.com/a"}, false},
		{"missing id", Article{URL: "https://example.com/a"}, true},
		{"missing url", Article{ID: "A1"}, true},
		{"bad scheme", Article{ID: "A1", URL: "ftp://example.com/a"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.article.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestArticle_ZeroValue(t *testing.T) {
	var a Article
	assert.Equal(t, "", a.ID)
	assert.Equal(t, StageStatus(""), a.DiscoveryStatus)
	assert.True(t, a.CreatedAt.IsZero())
	assert.Nil(t, a.ErrorDetails)
}

func TestPublisher_ZeroValue(t *testing.T) {
	var p Publisher
	assert.Equal(t, "", p.MPID)
	assert.False(t, p.IsActive)
	assert.Equal(t, 0, p.Priority)
}

func TestDailyStats_ZeroValue(t *testing.T) {
	var s DailyStats
	assert.Equal(t, int64(0), s.DiscoveredCount)
	assert.Equal(t, "", s.Date)
}
