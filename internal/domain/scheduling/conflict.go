package scheduling

import "time"

// ConflictBuffer is the minimum spacing between two active appointments of
// the same doctor at the same center.
const ConflictBuffer = 30 * time.Minute

// ConflictWindow returns the inclusive window around candidate in which an
// existing active appointment would collide.
func ConflictWindow(candidate time.Time) (from, to time.Time) {
	return candidate.Add(-ConflictBuffer), candidate.Add(ConflictBuffer)
}

// HasConflict reports whether any active appointment in existing shares both
// doctorID and centerID with the candidate and falls inside its window.
// A doctor booked at another center, or another doctor at this center, is
// not a conflict.
func HasConflict(existing []Appointment, doctorID, centerID int64, candidate time.Time) bool {
	from, to := ConflictWindow(candidate)
	for i := range existing {
		a := &existing[i]
		if a.Status != StatusActive || a.DoctorID != doctorID || a.CenterID != centerID {
			continue
		}
		if !a.ScheduledAt.Before(from) && !a.ScheduledAt.After(to) {
			return true
		}
	}
	return false
}
