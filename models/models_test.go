package models

import (
	"encoding/json"
	"testing"
)

func TestCanAccess(t *testing.T) {
	cases := []struct {
		role     Role
		resource string
		want     bool
	}{
		{RoleAdmin, ResourceUsers, true},
		{RoleAdmin, ResourceCameras, true},
		{RoleSecurityOfficer, ResourceUsers, false},
		{RoleSecurityOfficer, ResourceCameras, true},
		{RoleOperator, ResourceCameras, false},
		{RoleOperator, ResourceUsers, false},
		{RoleOperator, ResourceDashboard, true},
		{RoleOperator, ResourceIncidents, true},
		{Role("Guest"), ResourceDashboard, false},
	}
	for _, tc := range cases {
		if got := CanAccess(tc.role, tc.resource); got != tc.want {
			t.Errorf("CanAccess(%q, %q) = %v, want %v", tc.role, tc.resource, got, tc.want)
		}
	}
}

func TestIncidentStatusValid(t *testing.T) {
	for _, s := range []IncidentStatus{StatusActive, StatusUnderInvestigation, StatusResolved} {
		if !s.Valid() {
			t.Errorf("%q should be valid", s)
		}
	}
	for _, s := range []IncidentStatus{"", "Closed", "active"} {
		if s.Valid() {
			t.Errorf("%q should be invalid", s)
		}
	}
}

func TestEnumsValid(t *testing.T) {
	for _, typ := range IncidentTypes {
		if !typ.Valid() {
			t.Errorf("%q should be valid", typ)
		}
		if _, ok := TypicalSeverity[typ]; !ok {
			t.Errorf("%q has no typical severity", typ)
		}
	}
	if IncidentType("Fire").Valid() {
		t.Error("unknown incident type reported valid")
	}
	if Severity("Urgent").Valid() {
		t.Error("unknown severity reported valid")
	}
	if !EmergencyNone.Valid() || EmergencyType("Siren").Valid() {
		t.Error("emergency enum validation is wrong")
	}
}

func TestJSONBScanAndDecode(t *testing.T) {
	src := NewJSONB([]Position{{X: 0.25, Y: 0.75}})
	v, err := src.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}

	for _, raw := range []interface{}{v, []byte(v.(string))} {
		var j JSONB
		if err := j.Scan(raw); err != nil {
			t.Fatalf("Scan(%T): %v", raw, err)
		}
		var got []Position
		if err := j.Decode(&got); err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if len(got) != 1 || got[0].X != 0.25 || got[0].Y != 0.75 {
			t.Fatalf("decoded %+v", got)
		}
	}

	var empty JSONB
	if err := empty.Scan(nil); err != nil {
		t.Fatalf("Scan(nil): %v", err)
	}
	b, _ := json.Marshal(empty)
	if string(b) != "null" {
		t.Fatalf("empty JSONB marshals to %s", b)
	}
}

func TestAvatarURL(t *testing.T) {
	got := AvatarURL("a+b@example.com")
	if got != "https://i.pravatar.cc/150?u=a%2Bb%40example.com" {
		t.Fatalf("AvatarURL = %s", got)
	}
}
