// Package progress computes story completion percentages from step completion events.
package progress

import (
	"context"
	"fmt"

	"github.com/aimd54/calculus-api/internal/repository"
)

// Repository is the event store view the aggregator needs.
type Repository interface {
	StepCountsByStory(storyIDs []uint) (map[uint]int64, error)
	CompletedCountsByStory(userID uint, storyIDs []uint) (map[uint]int64, error)
}

// Aggregator computes per-story progress with two aggregate queries per batch.
type Aggregator struct {
	repo Repository
}

// NewAggregator creates a new aggregator.
func NewAggregator(repo *repository.ProgressRepository) *Aggregator {
	return &Aggregator{repo: repo}
}

// NewAggregatorWithInterfaces creates a new aggregator with interface dependencies (useful for testing).
func NewAggregatorWithInterfaces(repo Repository) *Aggregator {
	return &Aggregator{repo: repo}
}

// Percent returns floor(100 * completed / total), 0 when total is 0, capped at 100.
func Percent(completed, total int64) int {
	if total <= 0 || completed <= 0 {
		return 0
	}
	if completed >= total {
		return 100
	}
	return int(completed * 100 / total)
}

// Story returns the progress percent of one story.
func (a *Aggregator) Story(ctx context.Context, userID, storyID uint) (int, error) {
	batch, err := a.Batch(ctx, userID, []uint{storyID})
	if err != nil {
		return 0, err
	}
	return batch[storyID], nil
}

// Batch returns the progress percent of every story in storyIDs.
func (a *Aggregator) Batch(_ context.Context, userID uint, storyIDs []uint) (map[uint]int, error) {
	out := make(map[uint]int, len(storyIDs))
	if len(storyIDs) == 0 {
		return out, nil
	}

	totals, err := a.repo.StepCountsByStory(storyIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to count story steps: %w", err)
	}

	var done map[uint]int64
	if userID != 0 {
		done, err = a.repo.CompletedCountsByStory(userID, storyIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to count completed steps: %w", err)
		}
	}

	for _, id := range storyIDs {
		out[id] = Percent(done[id], totals[id])
	}
	return out, nil
}

// CountCompleted returns how many of storyIDs are at 100%.
func (a *Aggregator) CountCompleted(ctx context.Context, userID uint, storyIDs []uint) (int, error) {
	batch, err := a.Batch(ctx, userID, storyIDs)
	if err != nil {
		return 0, err
	}
	completed := 0
	for _, pct := range batch {
		if pct == 100 {
			completed++
		}
	}
	return completed, nil
}
