package model

import "testing"

func TestOrderIndexDense(t *testing.T) {
	statuses := Statuses()
	if len(statuses) != 12 {
		t.Fatalf("expected 12 statuses, got %d", len(statuses))
	}
	seen := map[int]bool{}
	for i, s := range statuses {
		if s.OrderIndex() != i {
			t.Errorf("%s: expected index %d, got %d", s, i, s.OrderIndex())
		}
		if seen[s.OrderIndex()] {
			t.Errorf("%s: duplicate index %d", s, s.OrderIndex())
		}
		seen[s.OrderIndex()] = true
	}

	if Status("retired").OrderIndex() != -1 {
		t.Error("expected -1 for unknown status")
	}
}

func TestStatusesReturnsCopy(t *testing.T) {
	s := Statuses()
	s[0] = StatusSold
	if Statuses()[0] != StatusCreated {
		t.Error("mutating the returned slice changed the ordering")
	}
}

func TestIsForward(t *testing.T) {
	tests := []struct {
		current, candidate Status
		expected           bool
	}{
		{StatusCreated, StatusManufacturing, true},
		{StatusPackaged, StatusInTransit, true},
		{StatusSold, StatusReceivedByConsumer, true},
		{StatusPackaged, StatusPackaged, false},
		{StatusPackaged, StatusManufacturing, false},
		{StatusReceivedByConsumer, StatusCreated, false},
		{StatusCreated, Status("bogus"), false},
		{Status("bogus"), StatusSold, false},
	}

	for _, tt := range tests {
		if got := IsForward(tt.current, tt.candidate); got != tt.expected {
			t.Errorf("IsForward(%q, %q) = %v, want %v", tt.current, tt.candidate, got, tt.expected)
		}
	}
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("in_transit")
	if err != nil {
		t.Fatalf("ParseStatus: %v", err)
	}
	if s != StatusInTransit {
		t.Errorf("expected in_transit, got %q", s)
	}
	if _, err := ParseStatus("In Transit"); err == nil {
		t.Error("expected error for label instead of status")
	}
}

func TestStatusInfo(t *testing.T) {
	for _, s := range Statuses() {
		info := s.Info()
		if info.Label == "" || info.Description == "" {
			t.Errorf("%s: missing label or description", s)
		}
		if info.Index != s.OrderIndex() {
			t.Errorf("%s: info index %d, want %d", s, info.Index, s.OrderIndex())
		}
	}
	if got := StatusReceivedByRetailer.Info().Label; got != "Received by Retailer" {
		t.Errorf("unexpected label %q", got)
	}
}

func TestPermittedStatuses(t *testing.T) {
	tests := []struct {
		role     Role
		expected []Status
	}{
		{RoleManufacturer, []Status{StatusCreated, StatusManufacturing, StatusManufactured, StatusPackagingStarted, StatusPackaged}},
		{RoleShipper, []Status{StatusShippingStarted, StatusInTransit, StatusDelivered}},
		{RoleRetailer, []Status{StatusReceivedByRetailer, StatusForSale, StatusSold}},
		{RoleConsumer, []Status{StatusReceivedByConsumer}},
		{RoleAdmin, Statuses()},
		{RoleUnknown, nil},
	}

	for _, tt := range tests {
		got := PermittedStatuses(tt.role)
		if len(got) != len(tt.expected) {
			t.Errorf("%s: expected %d statuses, got %d", tt.role, len(tt.expected), len(got))
			continue
		}
		for i := range got {
			if got[i] != tt.expected[i] {
				t.Errorf("%s[%d]: expected %q, got %q", tt.role, i, tt.expected[i], got[i])
			}
		}
	}
}

func TestPermissionTableTotal(t *testing.T) {
	for _, r := range Roles() {
		if _, ok := rolePermissions[r]; !ok {
			t.Errorf("role %q has no permission entry", r)
		}
	}
}

func TestPermittedStatusesReturnsCopy(t *testing.T) {
	p := PermittedStatuses(RoleAdmin)
	p[0] = StatusSold
	if PermittedStatuses(RoleAdmin)[0] != StatusCreated {
		t.Error("mutating the returned slice changed the permission table")
	}
	if Statuses()[0] != StatusCreated {
		t.Error("mutating the admin permissions changed the ordering")
	}
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		in       string
		expected Role
	}{
		{"manufacturer", RoleManufacturer},
		{"admin", RoleAdmin},
		{"unknown", RoleUnknown},
		{"", RoleUnknown},
		{"manager", RoleUnknown},
		{"Admin", RoleUnknown},
	}

	for _, tt := range tests {
		if got := ParseRole(tt.in); got != tt.expected {
			t.Errorf("ParseRole(%q) = %q, want %q", tt.in, got, tt.expected)
		}
	}
}

func TestRoleAssignable(t *testing.T) {
	if RoleUnknown.Assignable() {
		t.Error("unknown must not be assignable")
	}
	if Role("manager").Assignable() {
		t.Error("manager is not a role")
	}
	if !RoleRetailer.Assignable() {
		t.Error("retailer should be assignable")
	}
}
