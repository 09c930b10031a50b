package scheduling

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestMemoryRepo_CreateGetDelete(t *testing.T) {
	repo := NewAppointmentRepoMemory()
	ctx := context.Background()

	a := &Appointment{ScheduledAt: tenAM, Reason: "check-up", Status: StatusActive, PatientID: 1, DoctorID: 2, CenterID: 1}
	if err := repo.Create(ctx, a); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if a.ID == uuid.Nil || a.CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamps to be assigned: %+v", a)
	}

	got, err := repo.GetByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Reason != "check-up" {
		t.Errorf("Reason = %q", got.Reason)
	}

	if err := repo.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.GetByID(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := repo.Delete(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestMemoryRepo_Cancel(t *testing.T) {
	repo := NewAppointmentRepoMemory()
	ctx := context.Background()

	a := &Appointment{ScheduledAt: tenAM, Reason: "x", Status: StatusActive, DoctorID: 2, CenterID: 1}
	_ = repo.Create(ctx, a)

	got, err := repo.Cancel(ctx, a.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if got.Status != StatusCancelled {
		t.Errorf("Status = %s", got.Status)
	}
	if _, err := repo.Cancel(ctx, a.ID); !errors.Is(err, ErrStatusChanged) {
		t.Errorf("expected ErrStatusChanged, got %v", err)
	}
	if _, err := repo.Cancel(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryRepo_CreateRejectsOverlap(t *testing.T) {
	repo := NewAppointmentRepoMemory()
	ctx := context.Background()

	_ = repo.Create(ctx, &Appointment{ScheduledAt: tenAM, Status: StatusActive, DoctorID: 2, CenterID: 1})
	err := repo.Create(ctx, &Appointment{ScheduledAt: tenAM.Add(10 * time.Minute), Status: StatusActive, DoctorID: 2, CenterID: 1})
	if !errors.Is(err, ErrSlotTaken) {
		t.Errorf("expected ErrSlotTaken, got %v", err)
	}
}

func TestMemoryRepo_ListOrderedAndFiltered(t *testing.T) {
	repo := NewAppointmentRepoMemory()
	ctx := context.Background()

	times := []time.Duration{3 * time.Hour, time.Hour, 2 * time.Hour}
	for _, d := range times {
		_ = repo.Create(ctx, &Appointment{ScheduledAt: tenAM.Add(d), Status: StatusActive, DoctorID: 2, CenterID: 1})
	}
	_ = repo.Create(ctx, &Appointment{ScheduledAt: tenAM, Status: StatusActive, DoctorID: 5, CenterID: 1})

	doctor := int64(2)
	items, err := repo.List(ctx, ListFilter{DoctorID: &doctor})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	for i := 1; i < len(items); i++ {
		if items[i].ScheduledAt.Before(items[i-1].ScheduledAt) {
			t.Errorf("items not ordered by scheduled_at: %v before %v", items[i].ScheduledAt, items[i-1].ScheduledAt)
		}
	}

	all, _ := repo.List(ctx, ListFilter{})
	if len(all) != 4 {
		t.Errorf("expected 4 items without filters, got %d", len(all))
	}
}

func TestMemoryRepo_ListActiveInWindow(t *testing.T) {
	repo := NewAppointmentRepoMemory()
	ctx := context.Background()

	in := &Appointment{ScheduledAt: tenAM.Add(30 * time.Minute), Status: StatusActive, DoctorID: 2, CenterID: 1}
	out := &Appointment{ScheduledAt: tenAM.Add(31 * time.Minute), Status: StatusActive, DoctorID: 2, CenterID: 2}
	_ = repo.Create(ctx, in)
	_ = repo.Create(ctx, out)

	from, to := ConflictWindow(tenAM)
	items, err := repo.ListActiveInWindow(ctx, 2, 1, from, to)
	if err != nil {
		t.Fatalf("ListActiveInWindow: %v", err)
	}
	if len(items) != 1 || items[0].ID != in.ID {
		t.Errorf("expected only the boundary appointment, got %+v", items)
	}
}

func TestMemoryRepo_InSlotSerializes(t *testing.T) {
	repo := NewAppointmentRepoMemory()
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = repo.InSlot(ctx, 2, 1, func(ctx context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Errorf("expected at most one goroutine inside the slot, saw %d", maxInside)
	}
}

func TestMemoryRepo_InSlotHonoursCancellation(t *testing.T) {
	repo := NewAppointmentRepoMemory()

	hold := make(chan struct{})
	entered := make(chan struct{})
	go func() {
		_ = repo.InSlot(context.Background(), 2, 1, func(ctx context.Context) error {
			close(entered)
			<-hold
			return nil
		})
	}()
	<-entered
	defer close(hold)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	called := false
	err := repo.InSlot(ctx, 2, 1, func(ctx context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	if called {
		t.Error("fn must not run when the slot could not be acquired")
	}
}
