package scheduling

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2026-07-01T10:00:00", time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)},
		{"2026-07-01T10:00", time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)},
		{"2026-07-01 10:00:00", time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)},
		{"2026-07-01T10:00:00.250000", time.Date(2026, 7, 1, 10, 0, 0, 250000000, time.UTC)},
		{"2026-07-01T10:00:00Z", time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)},
		{"2026-07-01T12:00:00+02:00", time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)},
		{"2026-07-01T12:00+02:00", time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)},
		{"2026-07-01", time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)},
		{"  2026-07-01T10:00:00  ", time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimestamp(tt.in)
			if err != nil {
				t.Fatalf("ParseTimestamp(%q) error: %v", tt.in, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseTimestamp(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseTimestamp_KeepsOffset(t *testing.T) {
	got, err := ParseTimestamp("2026-07-01T12:00:00+02:00")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, off := got.Zone(); off != 2*3600 {
		t.Errorf("expected +02:00 offset, got %d seconds", off)
	}
}

func TestParseTimestamp_Invalid(t *testing.T) {
	for _, in := range []string{"", "tomorrow", "2026-13-01T10:00:00", "01/07/2026", "2026-07-01T25:00"} {
		if _, err := ParseTimestamp(in); err == nil {
			t.Errorf("expected error for %q", in)
		}
	}
}

func TestParseStatus(t *testing.T) {
	if s, ok := ParseStatus("active"); !ok || s != StatusActive {
		t.Errorf("ParseStatus(active) = %q, %v", s, ok)
	}
	if s, ok := ParseStatus("CANCELLED"); !ok || s != StatusCancelled {
		t.Errorf("ParseStatus(CANCELLED) = %q, %v", s, ok)
	}
	if _, ok := ParseStatus("DONE"); ok {
		t.Error("expected DONE to be rejected")
	}
}

func TestStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusActive, StatusCancelled, true},
		{StatusCancelled, StatusCancelled, false},
		{StatusCancelled, StatusActive, false},
		{StatusActive, StatusActive, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestCreateRequest_UnmarshalLegacyFields(t *testing.T) {
	var req CreateRequest
	body := `{"date":"2026-07-01T10:00:00","reason":"Consulta general","id_patient":1,"id_doctor":2,"id_center":3}`
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if req.ScheduledAt != "2026-07-01T10:00:00" {
		t.Errorf("ScheduledAt = %q", req.ScheduledAt)
	}
	if req.PatientID == nil || *req.PatientID != 1 || *req.DoctorID != 2 || *req.CenterID != 3 {
		t.Errorf("unexpected ids: %+v", req)
	}
}

func TestCreateRequest_MissingFields(t *testing.T) {
	var req CreateRequest
	if err := json.Unmarshal([]byte(`{"reason":"  ","doctor_id":2}`), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	got := req.missingFields()
	want := []string{"scheduled_at", "reason", "patient_id", "center_id"}
	if len(got) != len(want) {
		t.Fatalf("missingFields = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("missingFields[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
