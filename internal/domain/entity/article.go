// Package entity defines the core domain entities and validation logic for the application.
// It contains the fundamental business objects — Article, Publisher, DailyStats — along
// with their validation rules and domain-specific errors.
package entity

import "time"

// StageStatus is the status of one pipeline stage for a single article.
type StageStatus string

const (
	StatusPending    StageStatus = "pending"
	StatusProcessing StageStatus = "processing"
	StatusCompleted  StageStatus = "completed"
	StatusFailed     StageStatus = "failed"
)

// Article represents one article's row in the state store. It is keyed by
// ID (the upstream article_id) and is mutated only by the stage currently
// holding it, identified by whichever *Status field is StatusProcessing.
// The row is created once by discovery and never deleted.
type Article struct {
	ID          string
	URL         string
	Title       string
	MPName      string
	MPID        string
	PublishTime int64 // Unix seconds

	DiscoveryStatus StageStatus
	DownloadStatus  StageStatus
	ParseStatus     StageStatus
	StorageStatus   StageStatus

	HTMLFilePath     string
	ContentFilePath  string
	MetadataFilePath string
	ImagesDirPath    string

	ContentLength int
	WordCount     int
	ImageCount    int

	ErrorMessage string
	ErrorDetails map[string]any
	RetryCount   int
	LastRetryAt  *time.Time

	CreatedAt    time.Time
	UpdatedAt    time.Time
	DiscoveredAt *time.Time
	DownloadedAt *time.Time
	ParsedAt     *time.Time
	StoredAt     *time.Time
}

// Validate checks the minimal invariants a row must satisfy before it can
// be upserted: a path-safe id (see ValidateArticleID) and a well-formed
// url (see ValidateURL).
func (a *Article) Validate() error {
	if err := ValidateArticleID(a.ID); err != nil {
		return err
	}
	return ValidateURL(a.URL)
}

// NewArticle builds a row in its initial post-discovery state: discovery is
// already processing (the caller flips it to completed once the download
// task has been pushed), every other stage is pending.
func NewArticle(id, url, title, mpName, mpID string, publishTime int64, now time.Time) *Article {
	return &Article{
		ID:              id,
		URL:             url,
		Title:           title,
		MPName:          mpName,
		MPID:            mpID,
		PublishTime:     publishTime,
		DiscoveryStatus: StatusProcessing,
		DownloadStatus:  StatusPending,
		ParseStatus:     StatusPending,
		StorageStatus:   StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Publisher is the upstream account ("mp" — media publisher) that an
// article was published under. Rows are keyed by MPID and accumulate
// counters as DiscoveryEngine sees more articles from the same publisher.
type Publisher struct {
	MPID              string
	MPName            string
	MPNickname        string
	AvatarURL         string
	Description       string
	TotalArticles     int
	ProcessedArticles int
	LastArticleTime   int64
	IsActive          bool
	Priority          int
}

// DailyStats is one UTC day's aggregate pipeline throughput, updated
// incrementally by each stage as tasks complete.
type DailyStats struct {
	Date                   string // YYYY-MM-DD
	DiscoveredCount        int64
	DownloadedCount        int64
	ParsedCount            int64
	StoredCount            int64
	FailedCount            int64
	TotalContentSize       int64
	TotalWordCount         int64
	AvgDownloadTimeSeconds int
	AvgParseTimeSeconds    int
}
