package scheduling

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type slotKey struct {
	doctorID int64
	centerID int64
}

// memoryRepo keeps appointments in process memory. It serializes slot
// operations with one lock per (doctor, center) pair.
type memoryRepo struct {
	mu    sync.RWMutex
	items map[uuid.UUID]Appointment

	slotsMu sync.Mutex
	slots   map[slotKey]chan struct{}

	now func() time.Time
}

func NewAppointmentRepoMemory() AppointmentRepository {
	return &memoryRepo{
		items: make(map[uuid.UUID]Appointment),
		slots: make(map[slotKey]chan struct{}),
		now:   time.Now,
	}
}

func (r *memoryRepo) slotLock(k slotKey) chan struct{} {
	r.slotsMu.Lock()
	defer r.slotsMu.Unlock()
	ch, ok := r.slots[k]
	if !ok {
		ch = make(chan struct{}, 1)
		r.slots[k] = ch
	}
	return ch
}

func (r *memoryRepo) InSlot(ctx context.Context, doctorID, centerID int64, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	lock := r.slotLock(slotKey{doctorID, centerID})
	select {
	case lock <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-lock }()

	return fn(ctx)
}

func (r *memoryRepo) ListActiveInWindow(_ context.Context, doctorID, centerID int64, from, to time.Time) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Appointment
	for _, a := range r.items {
		if a.Status != StatusActive || a.DoctorID != doctorID || a.CenterID != centerID {
			continue
		}
		if a.ScheduledAt.Before(from) || a.ScheduledAt.After(to) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *memoryRepo) Create(ctx context.Context, a *Appointment) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if a.Status == StatusActive {
		existing := make([]Appointment, 0, len(r.items))
		for _, other := range r.items {
			existing = append(existing, other)
		}
		if HasConflict(existing, a.DoctorID, a.CenterID, a.ScheduledAt) {
			return ErrSlotTaken
		}
	}

	a.ID = uuid.New()
	now := r.now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	r.items[a.ID] = *a
	return nil
}

func (r *memoryRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (r *memoryRepo) List(_ context.Context, f ListFilter) ([]Appointment, error) {
	r.mu.RLock()
	out := make([]Appointment, 0)
	for _, a := range r.items {
		if f.Matches(&a) {
			out = append(out, a)
		}
	}
	r.mu.RUnlock()

	sortAppointments(out)
	return out, nil
}

func (r *memoryRepo) Cancel(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !a.Status.CanTransitionTo(StatusCancelled) {
		return nil, ErrStatusChanged
	}
	a.Status = StatusCancelled
	a.UpdatedAt = r.now().UTC()
	r.items[id] = a
	return &a, nil
}

func (r *memoryRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return ErrNotFound
	}
	delete(r.items, id)
	return nil
}

func sortAppointments(items []Appointment) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].ScheduledAt.Equal(items[j].ScheduledAt) {
			return items[i].ScheduledAt.Before(items[j].ScheduledAt)
		}
		return items[i].ID.String() < items[j].ID.String()
	})
}
