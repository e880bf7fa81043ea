package metrics

import (
	"fmt"
	"sync"
	"time"
)

// Aggregator is the read side of the pipeline: it recomputes window
// aggregates from committed call rows and caches each distinct window for a
// fixed TTL. Construct one at process start and share it; the cache mutex
// guards the check-then-fill sequence so a popular window is not recomputed
// by every caller at once.
type Aggregator struct {
	repo *Repository
	ttl  time.Duration

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	summary  *Summary
	cachedAt time.Time
}

func NewAggregator(repo *Repository, ttl time.Duration) *Aggregator {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Aggregator{
		repo:  repo,
		ttl:   ttl,
		cache: make(map[string]cacheEntry),
	}
}

// Summary returns aggregates for [from, to), cached per window.
func (a *Aggregator) Summary(from, to time.Time) (*Summary, error) {
	key := fmt.Sprintf("%d:%d", from.Unix(), to.Unix())

	a.mu.Lock()
	defer a.mu.Unlock()

	if entry, ok := a.cache[key]; ok && time.Since(entry.cachedAt) < a.ttl {
		return entry.summary, nil
	}

	summary, err := a.repo.ComputeSummary(from.Unix(), to.Unix())
	if err != nil {
		return nil, err
	}

	a.cache[key] = cacheEntry{summary: summary, cachedAt: time.Now()}
	return summary, nil
}

// SummaryForDays is a convenience for the dashboard's rolling windows. The
// window snaps to UTC day boundaries so the cache key stays stable between
// requests.
func (a *Aggregator) SummaryForDays(days int) (*Summary, error) {
	now := time.Now().UTC()
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
	return a.Summary(end.AddDate(0, 0, -days), end)
}

// Hourly and bucket views are cheap enough to skip the cache.

func (a *Aggregator) Hourly(date time.Time) ([]HourlyStat, error) {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	return a.repo.ComputeHourly(day.Unix(), day.Add(24*time.Hour).Unix())
}

func (a *Aggregator) DurationBuckets(days int) (map[string]int, error) {
	now := time.Now().UTC()
	return a.repo.ComputeDurationBuckets(now.AddDate(0, 0, -days).Unix(), now.Unix())
}

func (a *Aggregator) TopFailureReasons(days, limit int) ([]FailureReason, error) {
	now := time.Now().UTC()
	return a.repo.TopFailureReasons(now.AddDate(0, 0, -days).Unix(), now.Unix(), limit)
}
