package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/erazemk/sledilnik/internal/model"
)

// CreateItem inserts an item, its metadata and its first event in one
// transaction.
func CreateItem(ctx context.Context, db *sql.DB, item *model.Item, first *model.Event) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO items (id, name, description, current_status, created_at) VALUES (?, ?, ?, ?, ?)`,
		item.ID, item.Name, item.Description, string(first.Status), item.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("creating item: %w", err)
	}

	for k, v := range item.Metadata {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO item_metadata (item_id, key, value) VALUES (?, ?, ?)`,
			item.ID, k, v,
		)
		if err != nil {
			return fmt.Errorf("storing metadata %q: %w", k, err)
		}
	}

	if err := insertEvent(ctx, tx, first); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing item: %w", err)
	}
	return nil
}

const itemColumns = `i.id, i.name, i.description, i.image_mime, i.current_status, i.created_at`

// GetItem returns an item by ID, including its metadata.
func GetItem(ctx context.Context, db *sql.DB, id string) (*model.Item, error) {
	item := &model.Item{}
	var description, imageMime sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items i WHERE i.id = ?`, id,
	).Scan(&item.ID, &item.Name, &description, &imageMime, &item.CurrentStatus, &item.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}
	item.Description = description.String
	item.ImageMime = imageMime.String

	meta, err := itemMetadata(ctx, db, []string{id})
	if err != nil {
		return nil, err
	}
	item.Metadata = meta[id]
	if item.Metadata == nil {
		item.Metadata = map[string]string{}
	}
	return item, nil
}

// ListItems returns items matching f. The query is matched against name,
// description, ID and metadata values, ignoring case.
func ListItems(ctx context.Context, db *sql.DB, f model.ItemFilter) ([]model.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items i WHERE 1=1`
	var args []any

	if f.Status != "" {
		query += ` AND i.current_status = ?`
		args = append(args, string(f.Status))
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		pattern := "%" + escapeLike(strings.ToLower(q)) + "%"
		query += ` AND (LOWER(i.name) LIKE ? ESCAPE '\'
		             OR LOWER(COALESCE(i.description, '')) LIKE ? ESCAPE '\'
		             OR LOWER(i.id) LIKE ? ESCAPE '\'
		             OR EXISTS (SELECT 1 FROM item_metadata m
		                        WHERE m.item_id = i.id AND LOWER(m.value) LIKE ? ESCAPE '\'))`
		args = append(args, pattern, pattern, pattern, pattern)
	}

	if f.Sort == model.SortOldest {
		query += ` ORDER BY i.created_at ASC, i.rowid ASC`
	} else {
		query += ` ORDER BY i.created_at DESC, i.rowid DESC`
	}
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	defer rows.Close()

	var items []model.Item
	var ids []string
	for rows.Next() {
		var item model.Item
		var description, imageMime sql.NullString
		if err := rows.Scan(&item.ID, &item.Name, &description, &imageMime, &item.CurrentStatus, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		item.Description = description.String
		item.ImageMime = imageMime.String
		items = append(items, item)
		ids = append(ids, item.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	meta, err := itemMetadata(ctx, db, ids)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].Metadata = meta[items[i].ID]
		if items[i].Metadata == nil {
			items[i].Metadata = map[string]string{}
		}
	}
	return items, nil
}

// metadataBatch bounds the IDs bound into one metadata query, keeping it
// under SQLite's host parameter limit.
var metadataBatch = 500

func itemMetadata(ctx context.Context, db *sql.DB, ids []string) (map[string]map[string]string, error) {
	out := make(map[string]map[string]string, len(ids))
	for start := 0; start < len(ids); start += metadataBatch {
		end := min(start+metadataBatch, len(ids))
		if err := loadMetadata(ctx, db, ids[start:end], out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func loadMetadata(ctx context.Context, db *sql.DB, ids []string, out map[string]map[string]string) error {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := db.QueryContext(ctx,
		`SELECT item_id, key, value FROM item_metadata WHERE item_id IN (`+placeholders+`)`, args...,
	)
	if err != nil {
		return fmt.Errorf("getting item metadata: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var itemID, key, value string
		if err := rows.Scan(&itemID, &key, &value); err != nil {
			return fmt.Errorf("scanning item metadata: %w", err)
		}
		if out[itemID] == nil {
			out[itemID] = map[string]string{}
		}
		out[itemID][key] = value
	}
	return rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// SetItemImage sets an item's image data.
func SetItemImage(ctx context.Context, db *sql.DB, id string, image []byte, mime string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE items SET image = ?, image_mime = ? WHERE id = ?`,
		image, mime, id,
	)
	if err != nil {
		return fmt.Errorf("setting item image: %w", err)
	}
	return nil
}

// GetItemImage returns an item's image data and MIME type.
func GetItemImage(ctx context.Context, db *sql.DB, id string) ([]byte, string, error) {
	var image []byte
	var mime sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT image, image_mime FROM items WHERE id = ?`, id,
	).Scan(&image, &mime)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting item image: %w", err)
	}
	return image, mime.String, nil
}
