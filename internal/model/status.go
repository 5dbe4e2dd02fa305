package model

import "fmt"

// Status is one of the fixed supply-chain stages an item passes through.
type Status string

// Item statuses, in lifecycle order.
const (
	StatusCreated            Status = "created"
	StatusManufacturing      Status = "manufacturing"
	StatusManufactured       Status = "manufactured"
	StatusPackagingStarted   Status = "packaging_started"
	StatusPackaged           Status = "packaged"
	StatusShippingStarted    Status = "shipping_started"
	StatusInTransit          Status = "in_transit"
	StatusDelivered          Status = "delivered"
	StatusReceivedByRetailer Status = "received_by_retailer"
	StatusForSale            Status = "for_sale"
	StatusSold               Status = "sold"
	StatusReceivedByConsumer Status = "received_by_consumer"
)

// statusOrder is the single total order over statuses. Position is the
// order index; it is never extended at runtime.
var statusOrder = [...]Status{
	StatusCreated,
	StatusManufacturing,
	StatusManufactured,
	StatusPackagingStarted,
	StatusPackaged,
	StatusShippingStarted,
	StatusInTransit,
	StatusDelivered,
	StatusReceivedByRetailer,
	StatusForSale,
	StatusSold,
	StatusReceivedByConsumer,
}

var statusIndex = func() map[Status]int {
	m := make(map[Status]int, len(statusOrder))
	for i, s := range statusOrder {
		m[s] = i
	}
	return m
}()

// InitialStatus is the status every item starts in.
const InitialStatus = StatusCreated

// Statuses returns all statuses in lifecycle order.
func Statuses() []Status {
	out := make([]Status, len(statusOrder))
	copy(out, statusOrder[:])
	return out
}

// OrderIndex returns the zero-based position of s in the lifecycle,
// or -1 if s is not a known status.
func (s Status) OrderIndex() int {
	i, ok := statusIndex[s]
	if !ok {
		return -1
	}
	return i
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	_, ok := statusIndex[s]
	return ok
}

// IsForward reports whether candidate comes strictly after current.
// Unknown statuses are never a forward move.
func IsForward(current, candidate Status) bool {
	if !current.Valid() || !candidate.Valid() {
		return false
	}
	return candidate.OrderIndex() > current.OrderIndex()
}

// ParseStatus converts a string into a known Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return st, nil
}

// StatusInfo holds the human-facing text for a status.
type StatusInfo struct {
	Status      Status `json:"status"`
	Index       int    `json:"index"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

var statusText = map[Status][2]string{
	StatusCreated:            {"Created", "Item has been registered in the system"},
	StatusManufacturing:      {"Manufacturing", "Item is being manufactured"},
	StatusManufactured:       {"Manufactured", "Manufacturing is complete"},
	StatusPackagingStarted:   {"Packaging Started", "Item is being packaged"},
	StatusPackaged:           {"Packaged", "Item has been packaged"},
	StatusShippingStarted:    {"Shipping Started", "Item has begun shipping process"},
	StatusInTransit:          {"In Transit", "Item is on the way"},
	StatusDelivered:          {"Delivered", "Item has been delivered"},
	StatusReceivedByRetailer: {"Received by Retailer", "Retailer has received the item"},
	StatusForSale:            {"For Sale", "Item is available for purchase"},
	StatusSold:               {"Sold", "Item has been sold"},
	StatusReceivedByConsumer: {"Received by Consumer", "Consumer has received the item"},
}

// Info returns the label and description for s.
func (s Status) Info() StatusInfo {
	text := statusText[s]
	return StatusInfo{
		Status:      s,
		Index:       s.OrderIndex(),
		Label:       text[0],
		Description: text[1],
	}
}
