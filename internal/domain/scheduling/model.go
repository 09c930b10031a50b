package scheduling

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusCancelled Status = "CANCELLED"
)

// ParseStatus accepts the status names case-insensitively.
func ParseStatus(s string) (Status, bool) {
	switch Status(strings.ToUpper(strings.TrimSpace(s))) {
	case StatusActive:
		return StatusActive, true
	case StatusCancelled:
		return StatusCancelled, true
	}
	return "", false
}

// CanTransitionTo reports whether s may move to next. The only legal
// transition is ACTIVE -> CANCELLED.
func (s Status) CanTransitionTo(next Status) bool {
	return s == StatusActive && next == StatusCancelled
}

// Appointment maps to the appointments table.
type Appointment struct {
	ID           uuid.UUID `db:"id" json:"id"`
	ScheduledAt  time.Time `db:"scheduled_at" json:"scheduled_at"`
	Reason       string    `db:"reason" json:"reason"`
	Status       Status    `db:"status" json:"status"`
	PatientID    int64     `db:"patient_id" json:"patient_id"`
	DoctorID     int64     `db:"doctor_id" json:"doctor_id"`
	CenterID     int64     `db:"center_id" json:"center_id"`
	RegisteredBy string    `db:"registered_by" json:"registered_by"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// CreateRequest is a booking request as received from a caller. Fields are
// kept raw so the engine can report every missing one at once.
type CreateRequest struct {
	ScheduledAt string `json:"scheduled_at"`
	Reason      string `json:"reason"`
	PatientID   *int64 `json:"patient_id"`
	DoctorID    *int64 `json:"doctor_id"`
	CenterID    *int64 `json:"center_id"`
}

// UnmarshalJSON also accepts the legacy field names (date, id_patient,
// id_doctor, id_center) still sent by older clients.
func (r *CreateRequest) UnmarshalJSON(b []byte) error {
	var raw struct {
		ScheduledAt *string `json:"scheduled_at"`
		Date        *string `json:"date"`
		Reason      string  `json:"reason"`
		PatientID   *int64  `json:"patient_id"`
		DoctorID    *int64  `json:"doctor_id"`
		CenterID    *int64  `json:"center_id"`
		IDPatient   *int64  `json:"id_patient"`
		IDDoctor    *int64  `json:"id_doctor"`
		IDCenter    *int64  `json:"id_center"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	*r = CreateRequest{
		Reason:    raw.Reason,
		PatientID: firstSet(raw.PatientID, raw.IDPatient),
		DoctorID:  firstSet(raw.DoctorID, raw.IDDoctor),
		CenterID:  firstSet(raw.CenterID, raw.IDCenter),
	}
	switch {
	case raw.ScheduledAt != nil:
		r.ScheduledAt = *raw.ScheduledAt
	case raw.Date != nil:
		r.ScheduledAt = *raw.Date
	}
	return nil
}

func firstSet(vals ...*int64) *int64 {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

// missingFields lists the required fields absent from r in a stable order.
func (r CreateRequest) missingFields() []string {
	var missing []string
	if strings.TrimSpace(r.ScheduledAt) == "" {
		missing = append(missing, "scheduled_at")
	}
	if strings.TrimSpace(r.Reason) == "" {
		missing = append(missing, "reason")
	}
	if r.PatientID == nil {
		missing = append(missing, "patient_id")
	}
	if r.DoctorID == nil {
		missing = append(missing, "doctor_id")
	}
	if r.CenterID == nil {
		missing = append(missing, "center_id")
	}
	return missing
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp parses an ISO-8601 date or date-time. A space may separate
// date and time. Values without an offset are read as UTC; values with one
// keep it.
func ParseTimestamp(s string) (time.Time, error) {
	v := strings.TrimSpace(s)
	if len(v) > 10 && v[10] == ' ' {
		v = v[:10] + "T" + v[11:]
	}
	if strings.HasSuffix(v, "z") {
		v = v[:len(v)-1] + "Z"
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid ISO-8601 timestamp %q", s)
}
