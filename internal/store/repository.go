package store

import (
	"context"
	"database/sql"

	"github.com/erazemk/sledilnik/internal/model"
)

// Repository exposes the item and event functions of this package as a
// single value, for use as the tracker's persistence.
type Repository struct {
	DB *sql.DB
}

// NewRepository returns a Repository over db.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{DB: db}
}

func (r *Repository) CreateItem(ctx context.Context, item *model.Item, first *model.Event) error {
	return CreateItem(ctx, r.DB, item, first)
}

func (r *Repository) GetItem(ctx context.Context, id string) (*model.Item, error) {
	return GetItem(ctx, r.DB, id)
}

func (r *Repository) ListItems(ctx context.Context, f model.ItemFilter) ([]model.Item, error) {
	return ListItems(ctx, r.DB, f)
}

func (r *Repository) AppendEvent(ctx context.Context, ev *model.Event) error {
	return AppendEvent(ctx, r.DB, ev)
}

func (r *Repository) ListEvents(ctx context.Context, itemID string) ([]model.Event, error) {
	return ListEvents(ctx, r.DB, itemID)
}

func (r *Repository) LatestEvent(ctx context.Context, itemID string) (*model.Event, error) {
	return LatestEvent(ctx, r.DB, itemID)
}
