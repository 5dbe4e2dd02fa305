package model

import "strings"

// Sort orders for item listings.
const (
	SortNewest = "newest"
	SortOldest = "oldest"
)

// ItemFilter narrows an item listing.
type ItemFilter struct {
	// Query matches, case-insensitively, a substring of the item's name,
	// description, ID or any metadata value.
	Query  string
	Status Status
	// Sort is SortNewest (the default) or SortOldest by creation time.
	Sort  string
	Limit int
}

// Matches reports whether item passes the query and status filters.
func (f ItemFilter) Matches(item *Item) bool {
	if f.Status != "" && item.CurrentStatus != f.Status {
		return false
	}

	q := strings.ToLower(strings.TrimSpace(f.Query))
	if q == "" {
		return true
	}
	if strings.Contains(strings.ToLower(item.Name), q) ||
		strings.Contains(strings.ToLower(item.Description), q) ||
		strings.Contains(strings.ToLower(item.ID), q) {
		return true
	}
	for _, v := range item.Metadata {
		if strings.Contains(strings.ToLower(v), q) {
			return true
		}
	}
	return false
}
