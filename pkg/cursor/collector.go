// Package cursor retrieves console events incrementally above a watermark.
package cursor

import (
	"context"
	"sort"

	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/console"
)

// EventLister is the slice of the console a collector needs.
type EventLister interface {
	ListEvents(ctx context.Context, filter *console.Filter, minID int64) ([]console.Event, error)
}

// Collector polls for events newer than a watermark. A nil Filter lists
// every event.
type Collector struct {
	Events EventLister
	Filter *console.Filter
}

// Poll returns the events with an id strictly greater than watermark in
// ascending id order, and the new watermark. The watermark never decreases:
// it is returned unchanged when nothing new arrived or the fetch failed.
func (c *Collector) Poll(ctx context.Context, watermark int64) ([]console.Event, int64, error) {
	events, err := c.Events.ListEvents(ctx, c.Filter, watermark)
	if err != nil {
		return nil, watermark, err
	}

	fresh := events[:0]
	seen := make(map[int64]struct{}, len(events))
	for _, e := range events {
		if e.ID <= watermark {
			continue
		}
		if _, dup := seen[e.ID]; dup {
			continue
		}
		seen[e.ID] = struct{}{}
		fresh = append(fresh, e)
	}
	sort.Slice(fresh, func(i, j int) bool { return fresh[i].ID < fresh[j].ID })

	next := watermark
	if n := len(fresh); n > 0 {
		next = fresh[n-1].ID
	}
	return fresh, next, nil
}
