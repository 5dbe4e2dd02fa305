package tracking

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/sledilnik/internal/ledger"
	"github.com/erazemk/sledilnik/internal/model"
)

// Repository persists items and their event histories. AppendEvent must
// record the event and advance the item's current status atomically.
// Lookups return nil, nil when nothing matches.
type Repository interface {
	CreateItem(ctx context.Context, item *model.Item, first *model.Event) error
	GetItem(ctx context.Context, id string) (*model.Item, error)
	ListItems(ctx context.Context, f model.ItemFilter) ([]model.Item, error)
	AppendEvent(ctx context.Context, ev *model.Event) error
	ListEvents(ctx context.Context, itemID string) ([]model.Event, error)
	LatestEvent(ctx context.Context, itemID string) (*model.Event, error)
}

// Settler commits a submission to the external ledger and returns its
// settlement reference.
type Settler interface {
	Settle(ctx context.Context, s ledger.Submission) (string, error)
}

// Observer is told about every committed event. It runs while the item is
// still locked, so it must not block.
type Observer interface {
	ItemChanged(ctx context.Context, item model.Item, ev model.Event)
}

// Tracker is the entry point for registering items and moving them through
// the lifecycle. Writes to one item are serialized; reads of one item never
// overlap a write to it.
type Tracker struct {
	repo      Repository
	settler   Settler
	observers []Observer
	locks     *itemLocks
	now       func() time.Time
	newID     func() string
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithObservers registers observers notified after each commit.
func WithObservers(obs ...Observer) Option {
	return func(t *Tracker) { t.observers = append(t.observers, obs...) }
}

// WithClock overrides the time source for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithIDs overrides the generator for item and event IDs.
func WithIDs(newID func() string) Option {
	return func(t *Tracker) { t.newID = newID }
}

// New returns a Tracker over repo that settles every change with settler.
func New(repo Repository, settler Settler, opts ...Option) *Tracker {
	t := &Tracker{
		repo:    repo,
		settler: settler,
		locks:   newItemLocks(),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NewItem describes an item to register. ID is generated when empty.
type NewItem struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata"`
}

// Update is a requested status change.
type Update struct {
	Status   model.Status    `json:"status"`
	Location *model.Location `json:"location,omitempty"`
	Notes    string          `json:"notes,omitempty"`
}

// RegisterItem creates an item whose history starts with a Created event
// authored by actor. It is the only way an item's history may begin.
func (t *Tracker) RegisterItem(ctx context.Context, actor model.Actor, in NewItem) (*model.Item, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name required", ErrInvalidItem)
	}
	if !actor.Role.Permits(model.InitialStatus) {
		return nil, invalidTransition(ErrNotPermittedForRole)
	}

	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = "item-" + t.newID()
	}

	unlock := t.locks.Lock(id)
	defer unlock()

	existing, err := t.repo.GetItem(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("checking item %s: %w", id, err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrItemExists, id)
	}

	sub := ledger.NewSubmission(ledger.FunctionRegisterItem, id, model.InitialStatus, actor)
	sub.Name = name
	ref, err := t.settler.Settle(ctx, sub)
	if err != nil {
		return nil, &SettlementError{Function: sub.Function, ItemID: id, Err: err}
	}

	now := t.now().UTC()
	metadata := make(map[string]string, len(in.Metadata))
	for k, v := range in.Metadata {
		metadata[k] = v
	}
	item := &model.Item{
		ID:            id,
		Name:          name,
		Description:   in.Description,
		CurrentStatus: model.InitialStatus,
		CreatedAt:     now,
		Metadata:      metadata,
	}
	first := &model.Event{
		ID:            t.newID(),
		ItemID:        id,
		Status:        model.InitialStatus,
		Timestamp:     now,
		Actor:         actor,
		SettlementRef: ref,
	}

	if err := t.repo.CreateItem(ctx, item, first); err != nil {
		return nil, fmt.Errorf("recording item %s: %w", id, err)
	}

	t.notify(ctx, item, first)

	out := item.Clone()
	return &out, nil
}

// UpdateStatus validates and appends a status change authored by actor.
// Rejections match ErrInvalidTransition and the specific reason. Ledger
// failures come back as *SettlementError and record nothing.
func (t *Tracker) UpdateStatus(ctx context.Context, itemID string, actor model.Actor, u Update) (*model.Event, error) {
	unlock := t.locks.Lock(itemID)
	defer unlock()

	item, err := t.repo.GetItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("getting item %s: %w", itemID, err)
	}
	if item == nil {
		return nil, ErrItemNotFound
	}

	if err := Validate(item.CurrentStatus, actor.Role, u.Status); err != nil {
		return nil, invalidTransition(err)
	}

	latest, err := t.repo.LatestEvent(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("getting latest event for %s: %w", itemID, err)
	}
	if latest == nil {
		return nil, ErrEmptyHistory
	}

	sub := ledger.NewSubmission(ledger.FunctionUpdateStatus, itemID, u.Status, actor)
	ref, err := t.settler.Settle(ctx, sub)
	if err != nil {
		return nil, &SettlementError{Function: sub.Function, ItemID: itemID, Err: err}
	}

	ts := t.now().UTC()
	if ts.Before(latest.Timestamp) {
		ts = latest.Timestamp
	}

	ev := &model.Event{
		ID:            t.newID(),
		ItemID:        itemID,
		Status:        u.Status,
		Timestamp:     ts,
		Actor:         actor,
		Notes:         strings.TrimSpace(u.Notes),
		SettlementRef: ref,
	}
	if u.Location != nil {
		loc := *u.Location
		ev.Location = &loc
	}

	if err := t.repo.AppendEvent(ctx, ev); err != nil {
		return nil, fmt.Errorf("recording event for %s: %w", itemID, err)
	}
	item.CurrentStatus = u.Status

	t.notify(ctx, item, ev)

	out := ev.Clone()
	return &out, nil
}

func (t *Tracker) notify(ctx context.Context, item *model.Item, ev *model.Event) {
	for _, o := range t.observers {
		o.ItemChanged(ctx, item.Clone(), ev.Clone())
	}
	slog.Debug("item changed", "item", item.ID, "status", ev.Status, "ref", ev.SettlementRef)
}

// Item returns an item by ID.
func (t *Tracker) Item(ctx context.Context, id string) (*model.Item, error) {
	unlock := t.locks.RLock(id)
	defer unlock()
	return t.getItem(ctx, id)
}

func (t *Tracker) getItem(ctx context.Context, id string) (*model.Item, error) {
	item, err := t.repo.GetItem(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting item %s: %w", id, err)
	}
	if item == nil {
		return nil, ErrItemNotFound
	}
	return item, nil
}

// Snapshot returns an item together with its history, read consistently.
func (t *Tracker) Snapshot(ctx context.Context, id string) (*model.Item, []model.Event, error) {
	unlock := t.locks.RLock(id)
	defer unlock()

	item, err := t.getItem(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	events, err := t.history(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return item, events, nil
}

// HistoryOf returns an item's events in append order. The slice is a copy
// owned by the caller.
func (t *Tracker) HistoryOf(ctx context.Context, id string) ([]model.Event, error) {
	unlock := t.locks.RLock(id)
	defer unlock()

	if _, err := t.getItem(ctx, id); err != nil {
		return nil, err
	}
	return t.history(ctx, id)
}

func (t *Tracker) history(ctx context.Context, id string) ([]model.Event, error) {
	events, err := t.repo.ListEvents(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("listing events for %s: %w", id, err)
	}
	if len(events) == 0 {
		return nil, ErrEmptyHistory
	}
	return events, nil
}

// Latest returns the most recently appended event for an item.
func (t *Tracker) Latest(ctx context.Context, id string) (*model.Event, error) {
	unlock := t.locks.RLock(id)
	defer unlock()

	if _, err := t.getItem(ctx, id); err != nil {
		return nil, err
	}
	ev, err := t.repo.LatestEvent(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting latest event for %s: %w", id, err)
	}
	if ev == nil {
		return nil, ErrEmptyHistory
	}
	return ev, nil
}

// CanUpdate runs Validate against the item's current status without
// changing anything. A nil result means UpdateStatus would be accepted.
func (t *Tracker) CanUpdate(ctx context.Context, id string, role model.Role, candidate model.Status) error {
	item, err := t.Item(ctx, id)
	if err != nil {
		return err
	}
	return Validate(item.CurrentStatus, role, candidate)
}

// Available returns the statuses role may set on the item right now.
func (t *Tracker) Available(ctx context.Context, id string, role model.Role) ([]model.Status, error) {
	item, err := t.Item(ctx, id)
	if err != nil {
		return nil, err
	}
	return AvailableTransitions(item.CurrentStatus, role), nil
}

// Search lists items matching f.
func (t *Tracker) Search(ctx context.Context, f model.ItemFilter) ([]model.Item, error) {
	items, err := t.repo.ListItems(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("searching items: %w", err)
	}
	return items, nil
}

// Summary is an overview of all tracked items.
type Summary struct {
	Total     int                  `json:"total_items"`
	InTransit int                  `json:"in_transit"`
	Completed int                  `json:"completed"`
	ByStatus  map[model.Status]int `json:"by_status"`
	Recent    []model.Item         `json:"recent"`
}

// RecentItems is how many items Summary lists as recent.
const RecentItems = 3

// Summary counts items per status and lists the newest ones. Items that are
// sold or received by the consumer count as completed.
func (t *Tracker) Summary(ctx context.Context) (*Summary, error) {
	items, err := t.repo.ListItems(ctx, model.ItemFilter{Sort: model.SortNewest})
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}

	s := &Summary{
		Total:    len(items),
		ByStatus: make(map[model.Status]int),
		Recent:   []model.Item{},
	}
	for _, item := range items {
		s.ByStatus[item.CurrentStatus]++
		switch item.CurrentStatus {
		case model.StatusInTransit:
			s.InTransit++
		case model.StatusSold, model.StatusReceivedByConsumer:
			s.Completed++
		}
	}
	if len(items) > RecentItems {
		items = items[:RecentItems]
	}
	s.Recent = append(s.Recent, items...)
	return s, nil
}
