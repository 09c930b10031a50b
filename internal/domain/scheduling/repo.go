package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("appointment not found")
	// ErrStatusChanged is returned by Cancel when the appointment is no
	// longer ACTIVE at update time.
	ErrStatusChanged = errors.New("appointment is not active")
	// ErrSlotTaken is returned by Create when the store itself rejects an
	// overlapping active booking.
	ErrSlotTaken = errors.New("slot already booked")
)

type AppointmentRepository interface {
	// InSlot runs fn while holding the serialization point for the
	// (doctorID, centerID) pair. Store calls made with the ctx passed to fn
	// are part of one atomic unit that is discarded if fn fails.
	InSlot(ctx context.Context, doctorID, centerID int64, fn func(ctx context.Context) error) error

	// ListActiveInWindow returns ACTIVE appointments for the pair with
	// ScheduledAt in [from, to].
	ListActiveInWindow(ctx context.Context, doctorID, centerID int64, from, to time.Time) ([]Appointment, error)

	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// List returns matches ordered by ScheduledAt then ID.
	List(ctx context.Context, f ListFilter) ([]Appointment, error)
	// Cancel moves an ACTIVE appointment to CANCELLED in a single statement.
	Cancel(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
