// Package ledger records accepted status changes with an external settlement
// backend and hands back the reference that correlates an event to its
// durable record.
package ledger

import "github.com/erazemk/sledilnik/internal/model"

// Contract functions a submission can invoke.
const (
	FunctionRegisterItem = "register-item"
	FunctionUpdateStatus = "update-item-status"
)

// Submission is one call against the ledger.
type Submission struct {
	Function    string       `json:"function"`
	ItemID      string       `json:"item_id"`
	Name        string       `json:"name,omitempty"`
	Status      model.Status `json:"status"`
	StatusIndex uint         `json:"status_index"`
	Actor       model.Actor  `json:"actor"`
}

// NewSubmission builds a submission for a status change, deriving the
// status index from the lifecycle ordering.
func NewSubmission(function, itemID string, status model.Status, actor model.Actor) Submission {
	return Submission{
		Function:    function,
		ItemID:      itemID,
		Status:      status,
		StatusIndex: uint(status.OrderIndex()),
		Actor:       actor,
	}
}
