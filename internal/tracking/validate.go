// Package tracking owns the status history of items: it decides which
// status changes are admissible and appends accepted ones to the log.
package tracking

import "github.com/erazemk/sledilnik/internal/model"

// Validate decides whether role may move an item from current to candidate.
// A nil result accepts the change. A move that is not strictly forward is
// rejected with ErrNotForwardMove regardless of role; otherwise a status
// outside the role's permitted set is rejected with ErrNotPermittedForRole.
func Validate(current model.Status, role model.Role, candidate model.Status) error {
	if !model.IsForward(current, candidate) {
		return ErrNotForwardMove
	}
	if !role.Permits(candidate) {
		return ErrNotPermittedForRole
	}
	return nil
}

// AvailableTransitions returns the statuses role may set from current, in
// lifecycle order. An empty result means the role has nothing further to do
// with the item, which is not an error: another role may still advance it.
func AvailableTransitions(current model.Status, role model.Role) []model.Status {
	out := []model.Status{}
	for _, s := range model.PermittedStatuses(role) {
		if model.IsForward(current, s) {
			out = append(out, s)
		}
	}
	return out
}
