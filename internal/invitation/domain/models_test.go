package domain

import (
	"testing"
	"time"
)

func TestParseStatus(t *testing.T) {
	cases := []struct {
		raw     string
		want    Status
		wantErr bool
	}{
		{"", StatusPending, false},
		{"pending", StatusPending, false},
		{" Accepted ", StatusAccepted, false},
		{"REJECTED", StatusRejected, false},
		{"expired", StatusExpired, false},
		{"revoked", "", true},
	}
	for _, tc := range cases {
		got, err := ParseStatus(tc.raw)
		if tc.wantErr {
			if err != ErrInvalidStatus {
				t.Fatalf("ParseStatus(%q) error = %v, want %v", tc.raw, err, ErrInvalidStatus)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("ParseStatus(%q) = %q, %v; want %q", tc.raw, got, err, tc.want)
		}
	}
}

func TestExpiredAt(t *testing.T) {
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	window := 7 * 24 * time.Hour
	inv := Invitation{Status: StatusPending, CreatedAt: created}

	if inv.ExpiredAt(created.Add(window), window) {
		t.Fatalf("expected invitation to be valid exactly at the window edge")
	}
	if !inv.ExpiredAt(created.Add(window+time.Nanosecond), window) {
		t.Fatalf("expected invitation to be expired past the window")
	}

	inv.Status = StatusAccepted
	if inv.ExpiredAt(created.Add(2*window), window) {
		t.Fatalf("terminal invitations never report expiry")
	}
	if !inv.Status.Terminal() || StatusPending.Terminal() {
		t.Fatalf("unexpected terminal classification")
	}
}
