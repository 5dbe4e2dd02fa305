package tracking

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/erazemk/sledilnik/internal/model"
)

// MemoryRepository keeps items and histories in process memory. It owns
// every value it stores: callers always receive copies.
type MemoryRepository struct {
	mu       sync.RWMutex
	items    map[string]*model.Item
	events   map[string][]model.Event
	eventIDs map[string]bool
	order    map[string]int
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		items:    make(map[string]*model.Item),
		events:   make(map[string][]model.Event),
		eventIDs: make(map[string]bool),
		order:    make(map[string]int),
	}
}

func (r *MemoryRepository) CreateItem(_ context.Context, item *model.Item, first *model.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[item.ID]; ok {
		return fmt.Errorf("item %s already stored", item.ID)
	}
	if r.eventIDs[first.ID] {
		return fmt.Errorf("event %s already stored", first.ID)
	}

	stored := item.Clone()
	stored.CurrentStatus = first.Status
	r.items[item.ID] = &stored
	r.events[item.ID] = []model.Event{first.Clone()}
	r.eventIDs[first.ID] = true
	r.order[item.ID] = len(r.order)
	return nil
}

func (r *MemoryRepository) GetItem(_ context.Context, id string) (*model.Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[id]
	if !ok {
		return nil, nil
	}
	out := item.Clone()
	return &out, nil
}

func (r *MemoryRepository) ListItems(_ context.Context, f model.ItemFilter) ([]model.Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var items []model.Item
	for _, item := range r.items {
		if f.Matches(item) {
			items = append(items, item.Clone())
		}
	}

	newest := f.Sort != model.SortOldest
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if newest {
				return a.CreatedAt.After(b.CreatedAt)
			}
			return a.CreatedAt.Before(b.CreatedAt)
		}
		if newest {
			return r.order[a.ID] > r.order[b.ID]
		}
		return r.order[a.ID] < r.order[b.ID]
	})

	if f.Limit > 0 && len(items) > f.Limit {
		items = items[:f.Limit]
	}
	return items, nil
}

func (r *MemoryRepository) AppendEvent(_ context.Context, ev *model.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[ev.ItemID]
	if !ok {
		return fmt.Errorf("appending to %s: %w", ev.ItemID, ErrItemNotFound)
	}
	if r.eventIDs[ev.ID] {
		return fmt.Errorf("event %s already stored", ev.ID)
	}

	r.events[ev.ItemID] = append(r.events[ev.ItemID], ev.Clone())
	r.eventIDs[ev.ID] = true
	item.CurrentStatus = ev.Status
	return nil
}

func (r *MemoryRepository) ListEvents(_ context.Context, itemID string) ([]model.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	src := r.events[itemID]
	out := make([]model.Event, len(src))
	for i, ev := range src {
		out[i] = ev.Clone()
	}
	return out, nil
}

func (r *MemoryRepository) LatestEvent(_ context.Context, itemID string) (*model.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	src := r.events[itemID]
	if len(src) == 0 {
		return nil, nil
	}
	ev := src[len(src)-1].Clone()
	return &ev, nil
}
