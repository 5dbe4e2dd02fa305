package model

import "time"

// Item is a tracked product. CurrentStatus always equals the status of the
// latest event in its history.
type Item struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Description   string            `json:"description,omitempty"`
	ImageMime     string            `json:"image_mime,omitempty"`
	CurrentStatus Status            `json:"current_status"`
	CreatedAt     time.Time         `json:"created_at"`
	Metadata      map[string]string `json:"metadata"`
}

// Clone returns a deep copy of the item.
func (i Item) Clone() Item {
	out := i
	out.Metadata = make(map[string]string, len(i.Metadata))
	for k, v := range i.Metadata {
		out.Metadata[k] = v
	}
	return out
}

// Actor is the identity that authored an event.
type Actor struct {
	Address string `json:"address"`
	Role    Role   `json:"role"`
}

// Location is where an event happened.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name"`
}

// Event is an immutable record of one status change.
type Event struct {
	ID            string    `json:"id"`
	ItemID        string    `json:"item_id"`
	Status        Status    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
	Actor         Actor     `json:"actor"`
	Location      *Location `json:"location,omitempty"`
	Notes         string    `json:"notes,omitempty"`
	SettlementRef string    `json:"transaction_id"`
}

// Clone returns a copy that shares no pointers with e.
func (e Event) Clone() Event {
	out := e
	if e.Location != nil {
		loc := *e.Location
		out.Location = &loc
	}
	return out
}
