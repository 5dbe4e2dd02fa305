package model

// Role is the category of an actor and decides which statuses it may set.
type Role string

// Roles.
const (
	RoleManufacturer Role = "manufacturer"
	RoleShipper      Role = "shipper"
	RoleRetailer     Role = "retailer"
	RoleConsumer     Role = "consumer"
	RoleAdmin        Role = "admin"
	RoleUnknown      Role = "unknown"
)

// rolePermissions must have an entry for every role, even when empty.
var rolePermissions = map[Role][]Status{
	RoleManufacturer: {
		StatusCreated,
		StatusManufacturing,
		StatusManufactured,
		StatusPackagingStarted,
		StatusPackaged,
	},
	RoleShipper: {
		StatusShippingStarted,
		StatusInTransit,
		StatusDelivered,
	},
	RoleRetailer: {
		StatusReceivedByRetailer,
		StatusForSale,
		StatusSold,
	},
	RoleConsumer: {
		StatusReceivedByConsumer,
	},
	RoleAdmin:   statusOrder[:],
	RoleUnknown: {},
}

// Roles returns the closed set of roles.
func Roles() []Role {
	return []Role{RoleManufacturer, RoleShipper, RoleRetailer, RoleConsumer, RoleAdmin, RoleUnknown}
}

// ParseRole maps s to a Role. Anything unrecognised becomes RoleUnknown.
func ParseRole(s string) Role {
	r := Role(s)
	if _, ok := rolePermissions[r]; !ok {
		return RoleUnknown
	}
	return r
}

// Assignable reports whether r may be given to a user account.
func (r Role) Assignable() bool {
	_, ok := rolePermissions[r]
	return ok && r != RoleUnknown
}

// PermittedStatuses returns the statuses role may set, in lifecycle order.
func PermittedStatuses(role Role) []Status {
	perms := rolePermissions[role]
	out := make([]Status, len(perms))
	copy(out, perms)
	return out
}

// Permits reports whether r may set status s.
func (r Role) Permits(s Status) bool {
	for _, p := range rolePermissions[r] {
		if p == s {
			return true
		}
	}
	return false
}
