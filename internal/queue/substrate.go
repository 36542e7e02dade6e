// Package queue implements the task queue substrate: priority-ordered
// sorted-set queues, a dedup set, a processing-status cache, and per-queue
// counters, all backed by Redis sorted-set/set/string primitives.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"genesis-connector/internal/pipeline"
)

// Queue names. DownloadTasks and ParseTasks are sorted sets; StorageTasks
// is declared but never populated by any engine in this repository — see
// DESIGN.md's Open Question decision. FailedTasks is an unordered list
// serving as deadletter.
const (
	DownloadTasks = "download_tasks"
	ParseTasks    = "parse_tasks"
	StorageTasks  = "storage_tasks"
	FailedTasks   = "failed_tasks"
)

const (
	dedupKeyPrefix    = "duplicate_check:"
	dedupTTL          = 30 * 24 * time.Hour
	statusKeyPrefix   = "processing_status:"
	statusTTL         = 24 * time.Hour
	counterKeyPrefix  = "stats:"
	counterTTL        = 7 * 24 * time.Hour
	maxBackoffSeconds = 3600
	popPollInterval   = 100 * time.Millisecond
)

// ErrDependencyDown is returned (wrapped in a pipeline.StageError with
// pipeline.KindDependencyDown) when the underlying Redis connection is
// unreachable.
var ErrDependencyDown = errors.New("queue substrate unreachable")

// Substrate is the QueueSubstrate component: priority queues, dedup set,
// per-stage counters, and status cache over a single Redis connection.
type Substrate struct {
	client *redis.Client
}

// New wraps an existing Redis client. The caller owns the client's
// lifecycle (construct at startup, Close at shutdown) — the substrate
// holds no hidden global state.
func New(client *redis.Client) *Substrate {
	return &Substrate{client: client}
}

// Ping checks Redis reachability, used by the health endpoint and by
// DiscoveryEngine's pre-flight health check.
func (s *Substrate) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrDependencyDown, err)
	}
	return nil
}

// ScoreForNewTask implements the score policy for a freshly discovered
// task: higher priority sorts earlier (lower score).
func ScoreForNewTask(priority int, now time.Time) float64 {
	return float64(now.Unix()) - float64(priority)*1000
}

// ScoreForRetry implements the capped exponential backoff score policy:
// the task becomes eligible only after min(60*2^retryCount, 3600) seconds.
func ScoreForRetry(retryCount int, now time.Time) float64 {
	delay := 60 * (1 << retryCount)
	if delay > maxBackoffSeconds {
		delay = maxBackoffSeconds
	}
	return float64(now.Unix() + int64(delay))
}

// Push inserts an envelope into a sorted-set queue at the given score.
func (s *Substrate) Push(ctx context.Context, queueName string, task pipeline.Task, score float64) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	if err := s.client.ZAdd(ctx, queueName, redis.Z{Score: score, Member: data}).Err(); err != nil {
		return fmt.Errorf("%w: zadd %s: %v", ErrDependencyDown, queueName, err)
	}
	return nil
}

// PopMin blocks up to timeout and returns the lowest-scoring envelope whose
// score is <= now, or nil if none became eligible in time. Redis has no
// single-command "pop minimum under a score threshold", unlike a plain
// BZPOPMIN which would return a future-scheduled retry task early; this
// polls ZRangeByScore + a compare-and-delete ZRem so a task scheduled for
// the future is left in place until it is actually eligible.
func (s *Substrate) PopMin(ctx context.Context, queueName string, timeout time.Duration) (*pipeline.Task, error) {
	deadline := time.Now().Add(timeout)
	for {
		now := time.Now()
		results, err := s.client.ZRangeByScoreWithScores(ctx, queueName, &redis.ZRangeBy{
			Min:   "-inf",
			Max:   fmt.Sprintf("%d", now.Unix()),
			Count: 1,
		}).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: zrangebyscore %s: %v", ErrDependencyDown, queueName, err)
		}
		if len(results) > 0 {
			member := results[0].Member.(string)
			removed, err := s.client.ZRem(ctx, queueName, member).Result()
			if err != nil {
				return nil, fmt.Errorf("%w: zrem %s: %v", ErrDependencyDown, queueName, err)
			}
			if removed == 0 {
				// Another worker popped it first; retry the loop.
				continue
			}
			var task pipeline.Task
			if err := json.Unmarshal([]byte(member), &task); err != nil {
				return nil, fmt.Errorf("unmarshal task from %s: %w", queueName, err)
			}
			return &task, nil
		}
		if !now.Before(deadline) {
			return nil, nil
		}
		select {
		case <-time.After(popPollInterval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Remove deletes a specific envelope from a sorted-set queue, used by the
// maintenance loop to reconcile download_tasks against the filesystem.
func (s *Substrate) Remove(ctx context.Context, queueName string, task pipeline.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	if err := s.client.ZRem(ctx, queueName, data).Err(); err != nil {
		return fmt.Errorf("%w: zrem %s: %v", ErrDependencyDown, queueName, err)
	}
	return nil
}

// PushDeadletter appends a task plus its error message to the
// failed_tasks list. It is a plain LPUSH, not the scored queue API, since
// FailedTasks is a list, not a sorted set.
func (s *Substrate) PushDeadletter(ctx context.Context, task pipeline.Task, errMessage string) error {
	task.ErrorMessage = errMessage
	task.LastRetryAt = time.Now().Unix()
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	if err := s.client.LPush(ctx, FailedTasks, data).Err(); err != nil {
		return fmt.Errorf("%w: lpush %s: %v", ErrDependencyDown, FailedTasks, err)
	}
	return nil
}

// PruneDeadletter removes failed_tasks entries whose last retry happened
// before cutoff, returning how many were removed. Used by the maintenance
// loop to keep the deadletter from growing without bound.
func (s *Substrate) PruneDeadletter(ctx context.Context, cutoff time.Time) (int, error) {
	raw, err := s.client.LRange(ctx, FailedTasks, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: lrange %s: %v", ErrDependencyDown, FailedTasks, err)
	}
	removed := 0
	for _, member := range raw {
		var t pipeline.Task
		if err := json.Unmarshal([]byte(member), &t); err != nil {
			continue
		}
		stamp := t.LastRetryAt
		if stamp == 0 {
			stamp = t.CreatedAt
		}
		if stamp >= cutoff.Unix() {
			continue
		}
		n, err := s.client.LRem(ctx, FailedTasks, 1, member).Result()
		if err != nil {
			return removed, fmt.Errorf("%w: lrem %s: %v", ErrDependencyDown, FailedTasks, err)
		}
		removed += int(n)
	}
	return removed, nil
}

// Size returns the length of a queue: ZCard for the sorted-set queues,
// LLen for the failed_tasks list.
func (s *Substrate) Size(ctx context.Context, queueName string) (int64, error) {
	var (
		n   int64
		err error
	)
	if queueName == FailedTasks {
		n, err = s.client.LLen(ctx, queueName).Result()
	} else {
		n, err = s.client.ZCard(ctx, queueName).Result()
	}
	if err != nil {
		return 0, fmt.Errorf("%w: size %s: %v", ErrDependencyDown, queueName, err)
	}
	return n, nil
}

// Sample returns up to n envelopes from a queue without removing them, for
// debugging via the status HTTP surface.
func (s *Substrate) Sample(ctx context.Context, queueName string, n int64) ([]pipeline.Task, error) {
	var raw []string
	var err error
	if queueName == FailedTasks {
		raw, err = s.client.LRange(ctx, queueName, 0, n-1).Result()
	} else {
		raw, err = s.client.ZRange(ctx, queueName, 0, n-1).Result()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: sample %s: %v", ErrDependencyDown, queueName, err)
	}
	tasks := make([]pipeline.Task, 0, len(raw))
	for _, r := range raw {
		var t pipeline.Task
		if err := json.Unmarshal([]byte(r), &t); err != nil {
			continue // malformed sample entries are skipped, not fatal
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// DedupCheckAndAdd reports whether key has not been seen in the last 30
// days (true: proceed, the caller should treat this as new) or has
// (false: treat as duplicate). SET NX makes the check-and-add a single
// atomic operation, and per-key expiry means each entry ages out on its
// own 30-day clock rather than the whole set's.
func (s *Substrate) DedupCheckAndAdd(ctx context.Context, key string) (bool, error) {
	added, err := s.client.SetNX(ctx, dedupKeyPrefix+key, "1", dedupTTL).Result()
	if err != nil {
		return false, fmt.Errorf("%w: setnx dedup: %v", ErrDependencyDown, err)
	}
	return added, nil
}

// SetStatus caches a short-lived processing status string for an article
// id, e.g. "queued_for_download".
func (s *Substrate) SetStatus(ctx context.Context, id, payload string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = statusTTL
	}
	if err := s.client.Set(ctx, statusKeyPrefix+id, payload, ttl).Err(); err != nil {
		return fmt.Errorf("%w: set status %s: %v", ErrDependencyDown, id, err)
	}
	return nil
}

// GetStatus returns the cached processing status for id, or "" if absent
// or expired.
func (s *Substrate) GetStatus(ctx context.Context, id string) (string, error) {
	v, err := s.client.Get(ctx, statusKeyPrefix+id).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: get status %s: %v", ErrDependencyDown, id, err)
	}
	return v, nil
}

// IncrCounter bumps an advisory per-queue-per-action counter with a 7-day
// TTL. Counters are never consulted for correctness, only observability.
func (s *Substrate) IncrCounter(ctx context.Context, queueName, action string) error {
	key := counterKeyPrefix + queueName + ":" + action
	if err := s.client.Incr(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: incr counter %s: %v", ErrDependencyDown, key, err)
	}
	if err := s.client.Expire(ctx, key, counterTTL).Err(); err != nil {
		return fmt.Errorf("%w: expire counter %s: %v", ErrDependencyDown, key, err)
	}
	return nil
}

// Stats reports queue lengths alongside advisory added/processed/failed
// counters for each queue.
type Stats struct {
	QueueSizes map[string]int64            `json:"queue_sizes"`
	Counters   map[string]map[string]int64 `json:"counters"`
}

var trackedQueues = []string{DownloadTasks, ParseTasks, StorageTasks}
var trackedActions = []string{"added", "processed", "failed"}

func (s *Substrate) Stats(ctx context.Context) (Stats, error) {
	out := Stats{
		QueueSizes: make(map[string]int64, len(trackedQueues)+1),
		Counters:   make(map[string]map[string]int64, len(trackedQueues)),
	}
	for _, q := range append(trackedQueues, FailedTasks) {
		size, err := s.Size(ctx, q)
		if err != nil {
			return Stats{}, err
		}
		out.QueueSizes[q] = size
	}
	for _, q := range trackedQueues {
		out.Counters[q] = make(map[string]int64, len(trackedActions))
		for _, action := range trackedActions {
			key := counterKeyPrefix + q + ":" + action
			v, err := s.client.Get(ctx, key).Int64()
			if errors.Is(err, redis.Nil) {
				v = 0
			} else if err != nil {
				return Stats{}, fmt.Errorf("%w: get counter %s: %v", ErrDependencyDown, key, err)
			}
			out.Counters[q][action] = v
		}
	}
	return out, nil
}
