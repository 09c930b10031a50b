package scheduling

import (
	"strconv"
	"strings"
	"time"

	"github.com/ehr/appointments/internal/platform/auth"
	"github.com/ehr/appointments/pkg/apperr"
)

// ListParams are the raw list filters supplied by a caller. Empty means
// "not supplied".
type ListParams struct {
	DoctorID  string
	CenterID  string
	PatientID string
	Status    string
	From      string
	To        string
}

// ListFilter is the store-level query. Nil fields do not restrict.
type ListFilter struct {
	DoctorID  *int64
	CenterID  *int64
	PatientID *int64
	Status    *Status
	From      *time.Time
	To        *time.Time
}

// ListScope is the query policy selected by the caller's role. The set of
// implementations is closed.
type ListScope interface {
	Filter() ListFilter
	Name() string
	listScope()
}

// DoctorScope restricts results to one doctor; nothing else narrows it.
type DoctorScope struct {
	DoctorID int64
}

func (s DoctorScope) Filter() ListFilter { return ListFilter{DoctorID: &s.DoctorID} }
func (DoctorScope) Name() string         { return "doctor" }
func (DoctorScope) listScope()           {}

// FrontDeskScope sees every appointment, optionally bounded by date.
type FrontDeskScope struct {
	From *time.Time
	To   *time.Time
}

func (s FrontDeskScope) Filter() ListFilter { return ListFilter{From: s.From, To: s.To} }
func (FrontDeskScope) Name() string         { return "front_desk" }
func (FrontDeskScope) listScope()           {}

// AdminScope accepts every filter dimension.
type AdminScope struct {
	ListFilter
}

func (s AdminScope) Filter() ListFilter { return s.ListFilter }
func (AdminScope) Name() string         { return "admin" }
func (AdminScope) listScope()           {}

// NewListScope selects the list policy for caller and validates only the
// parameters that policy reads.
func NewListScope(caller auth.Identity, p ListParams) (ListScope, error) {
	switch caller.Role {
	case auth.RoleDoctor:
		if strings.TrimSpace(p.DoctorID) == "" {
			return nil, apperr.Validation("doctor_id is required when listing as a doctor")
		}
		id, err := parseID("doctor_id", p.DoctorID)
		if err != nil {
			return nil, err
		}
		return DoctorScope{DoctorID: *id}, nil

	case auth.RoleSecretary:
		from, to, err := parseRange(p.From, p.To)
		if err != nil {
			return nil, err
		}
		return FrontDeskScope{From: from, To: to}, nil

	case auth.RoleAdmin:
		var (
			f   ListFilter
			err error
		)
		if f.DoctorID, err = parseID("doctor_id", p.DoctorID); err != nil {
			return nil, err
		}
		if f.CenterID, err = parseID("center_id", p.CenterID); err != nil {
			return nil, err
		}
		if f.PatientID, err = parseID("patient_id", p.PatientID); err != nil {
			return nil, err
		}
		if v := strings.TrimSpace(p.Status); v != "" {
			st, ok := ParseStatus(v)
			if !ok {
				return nil, apperr.Validation("invalid status value %q", v)
			}
			f.Status = &st
		}
		if f.From, f.To, err = parseRange(p.From, p.To); err != nil {
			return nil, err
		}
		return AdminScope{ListFilter: f}, nil
	}

	return nil, apperr.Forbidden("role " + string(caller.Role) + " may not list appointments")
}

func parseID(field, raw string) (*int64, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, apperr.Validation("%s must be an integer", field)
	}
	return &id, nil
}

func parseRange(rawFrom, rawTo string) (from, to *time.Time, err error) {
	if v := strings.TrimSpace(rawFrom); v != "" {
		t, perr := ParseTimestamp(v)
		if perr != nil {
			return nil, nil, apperr.Validation("invalid date_from format")
		}
		from = &t
	}
	if v := strings.TrimSpace(rawTo); v != "" {
		t, perr := ParseTimestamp(v)
		if perr != nil {
			return nil, nil, apperr.Validation("invalid date_to format")
		}
		to = &t
	}
	return from, to, nil
}

// Matches reports whether a satisfies f. Bounds are inclusive.
func (f ListFilter) Matches(a *Appointment) bool {
	switch {
	case f.DoctorID != nil && a.DoctorID != *f.DoctorID:
		return false
	case f.CenterID != nil && a.CenterID != *f.CenterID:
		return false
	case f.PatientID != nil && a.PatientID != *f.PatientID:
		return false
	case f.Status != nil && a.Status != *f.Status:
		return false
	case f.From != nil && a.ScheduledAt.Before(*f.From):
		return false
	case f.To != nil && a.ScheduledAt.After(*f.To):
		return false
	}
	return true
}
