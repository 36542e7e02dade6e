// Package pipeline holds the types shared across every stage of the
// discover -> download -> extract pipeline: the task envelope that moves
// through the queue substrate and the tagged error variant each stage uses
// to decide retry vs fail-fast.
package pipeline

import "time"

// Source identifies which stage produced a task, used by the queue
// substrate's retry routing (a retried discovery-sourced task goes back to
// download_tasks, a retried download-sourced task goes to parse_tasks).
type Source string

const (
	SourceDiscovery Source = "discovery"
	SourceDownload  Source = "download"
)

// Task is the envelope value stored in a queue. Fields beyond the core set
// are populated by the stage that produces them: DownloadEngine fills
// HTMLFilePath before pushing into parse_tasks.
type Task struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	Title      string `json:"title"`
	MPName     string `json:"mp_name"`
	MPID       string `json:"mp_id"`
	Priority   int    `json:"priority"`
	RetryCount int    `json:"retry_count"`
	CreatedAt  int64  `json:"created_at"`
	Source     Source `json:"source"`

	HTMLFilePath string `json:"html_file_path,omitempty"`

	ErrorMessage string `json:"error_message,omitempty"`
	LastRetryAt  int64  `json:"last_retry_at,omitempty"`
}

// NewDiscoveryTask builds the envelope DiscoveryEngine pushes into
// download_tasks for a newly-seen article.
func NewDiscoveryTask(id, url, title, mpName, mpID string, priority int, now time.Time) Task {
	return Task{
		ID:        id,
		URL:       url,
		Title:     title,
		MPName:    mpName,
		MPID:      mpID,
		Priority:  priority,
		CreatedAt: now.Unix(),
		Source:    SourceDiscovery,
	}
}

// NewParseTask builds the envelope DownloadEngine pushes into parse_tasks
// once HTML has been written to disk.
func NewParseTask(t Task, htmlFilePath string, now time.Time) Task {
	return Task{
		ID:           t.ID,
		URL:          t.URL,
		Title:        t.Title,
		MPName:       t.MPName,
		MPID:         t.MPID,
		Priority:     t.Priority,
		CreatedAt:    now.Unix(),
		Source:       SourceDownload,
		HTMLFilePath: htmlFilePath,
	}
}
