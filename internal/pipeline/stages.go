package pipeline

import (
	"time"

	"github.com/ppiankov/applytrail/internal/model"
)

// FetchSize returns how many items to request so that, after removing
// already-seen ids, about limit new items remain. The result never exceeds
// ceiling when ceiling is positive.
func FetchSize(limit, seen, ceiling int) int {
	n := limit + seen
	if ceiling > 0 && n > ceiling {
		n = ceiling
	}
	return n
}

// Filter drops items already in seen (and repeated ids within the batch),
// then truncates to limit. filtered counts the dropped already-seen items.
func Filter(items []model.Item, seen map[string]struct{}, limit int) (pending []model.Item, filtered int) {
	batch := make(map[string]struct{}, len(items))
	for _, item := range items {
		if _, ok := seen[item.ID]; ok {
			filtered++
			continue
		}
		if _, ok := batch[item.ID]; ok {
			filtered++
			continue
		}
		batch[item.ID] = struct{}{}
		if len(pending) < limit {
			pending = append(pending, item)
		}
	}
	return pending, filtered
}

// latestReceived returns the max ReceivedAt of items
func latestReceived(items []model.Item) time.Time {
	var latest time.Time
	for _, item := range items {
		if item.ReceivedAt.After(latest) {
			latest = item.ReceivedAt
		}
	}
	return latest
}
