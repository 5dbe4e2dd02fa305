package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/sledilnik/internal/model"
)

// AppendEvent records ev and advances the item's current status in a single
// transaction.
func AppendEvent(ctx context.Context, db *sql.DB, ev *model.Event) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE items SET current_status = ? WHERE id = ?`,
		string(ev.Status), ev.ItemID,
	)
	if err != nil {
		return fmt.Errorf("advancing item status: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("appending event: item %s does not exist", ev.ItemID)
	}

	if err := insertEvent(ctx, tx, ev); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing event: %w", err)
	}
	return nil
}

func insertEvent(ctx context.Context, tx *sql.Tx, ev *model.Event) error {
	var lat, lng sql.NullFloat64
	var locName sql.NullString
	if ev.Location != nil {
		lat = sql.NullFloat64{Float64: ev.Location.Latitude, Valid: true}
		lng = sql.NullFloat64{Float64: ev.Location.Longitude, Valid: true}
		locName = sql.NullString{String: ev.Location.Name, Valid: true}
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO events (id, item_id, status, timestamp, actor_address, actor_role,
		                     latitude, longitude, location_name, notes, settlement_ref)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.ItemID, string(ev.Status), ev.Timestamp.UTC(), ev.Actor.Address, string(ev.Actor.Role),
		lat, lng, locName, nullString(ev.Notes), ev.SettlementRef,
	)
	if err != nil {
		return fmt.Errorf("recording event: %w", err)
	}
	return nil
}

const eventColumns = `id, item_id, status, timestamp, actor_address, actor_role,
	latitude, longitude, location_name, notes, settlement_ref`

// ListEvents returns an item's events in append order.
func ListEvents(ctx context.Context, db *sql.DB, itemID string) ([]model.Event, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE item_id = ? ORDER BY seq`, itemID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	defer rows.Close()

	events := []model.Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	return events, rows.Err()
}

// LatestEvent returns the most recently appended event of an item.
func LatestEvent(ctx context.Context, db *sql.DB, itemID string) (*model.Event, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE item_id = ? ORDER BY seq DESC LIMIT 1`, itemID,
	)
	ev, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return ev, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(s scanner) (*model.Event, error) {
	ev := &model.Event{}
	var lat, lng sql.NullFloat64
	var locName, notes sql.NullString
	err := s.Scan(&ev.ID, &ev.ItemID, &ev.Status, &ev.Timestamp, &ev.Actor.Address, &ev.Actor.Role,
		&lat, &lng, &locName, &notes, &ev.SettlementRef)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning event: %w", err)
	}
	if lat.Valid && lng.Valid {
		ev.Location = &model.Location{Latitude: lat.Float64, Longitude: lng.Float64, Name: locName.String}
	}
	ev.Notes = notes.String
	return ev, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
