// Package omisync is the sync engine: it decides which conversations are
// ready to be written, groups them into daily partitions, renders the vault
// documents for each partition and keeps the index in step with what was
// written.
package omisync

import (
	"fmt"
	"time"

	"github.com/agentworkforce/omisync/internal/conversation"
)

// IsFinalized reports whether conv finished at or before now-lag. Callers
// take now once per run so the whole batch shares one cutoff.
func IsFinalized(conv conversation.Conversation, lag time.Duration, now time.Time) bool {
	if conv.FinishedAt == nil {
		return false
	}
	return !conv.FinishedAt.After(now.Add(-lag))
}

// Dedup collapses convs to one conversation per id. A later observation
// replaces an earlier one only when both have a finish time and the later
// one's is strictly greater. The result keeps the order in which each id was
// first seen.
func Dedup(convs []conversation.Conversation) []conversation.Conversation {
	position := make(map[string]int, len(convs))
	out := make([]conversation.Conversation, 0, len(convs))
	for _, conv := range convs {
		idx, seen := position[conv.ID]
		if !seen {
			position[conv.ID] = len(out)
			out = append(out, conv)
			continue
		}
		existing := out[idx]
		if conv.FinishedAt != nil && existing.FinishedAt != nil && conv.FinishedAt.After(*existing.FinishedAt) {
			out[idx] = conv
		}
	}
	return out
}

// PartitionKey is the calendar date of instant in the named zone.
func PartitionKey(instant time.Time, timezone string) (string, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return "", fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	return PartitionKeyIn(instant, loc), nil
}

func PartitionKeyIn(instant time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return instant.In(loc).Format(time.DateOnly)
}
