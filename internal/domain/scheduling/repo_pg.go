package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/appointments/internal/platform/db"
)

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const apptCols = `id, scheduled_at, reason, status, patient_id, doctor_id, center_id,
	registered_by, created_at, updated_at`

func (r *appointmentRepoPG) scanAppt(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.ScheduledAt, &a.Reason, &a.Status, &a.PatientID, &a.DoctorID,
		&a.CenterID, &a.RegisteredBy, &a.CreatedAt, &a.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func slotLockKey(doctorID, centerID int64) string {
	return fmt.Sprintf("appointment-slot:%d:%d", doctorID, centerID)
}

func (r *appointmentRepoPG) InSlot(ctx context.Context, doctorID, centerID int64, fn func(ctx context.Context) error) error {
	return db.RunInTx(ctx, r.pool, func(ctx context.Context) error {
		if err := db.AdvisoryXactLock(ctx, db.TxFromContext(ctx), slotLockKey(doctorID, centerID)); err != nil {
			return err
		}
		return fn(ctx)
	})
}

func (r *appointmentRepoPG) ListActiveInWindow(ctx context.Context, doctorID, centerID int64, from, to time.Time) ([]Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+apptCols+` FROM appointments
		WHERE doctor_id = $1 AND center_id = $2 AND status = 'ACTIVE'
			AND scheduled_at BETWEEN $3 AND $4`,
		doctorID, centerID, from, to)
	if err != nil {
		return nil, err
	}
	return r.collect(rows)
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (id, scheduled_at, reason, status, patient_id, doctor_id, center_id,
			registered_by, conflict_span)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8,
			tstzrange($2::timestamptz - interval '15 minutes', $2::timestamptz + interval '15 minutes', '[]'))
		RETURNING created_at, updated_at`,
		a.ID, a.ScheduledAt, a.Reason, a.Status, a.PatientID, a.DoctorID, a.CenterID, a.RegisteredBy,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if db.IsExclusionViolation(err) {
		return ErrSlotTaken
	}
	return err
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.scanAppt(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointments WHERE id = $1`, id))
}

func (r *appointmentRepoPG) List(ctx context.Context, f ListFilter) ([]Appointment, error) {
	query := `SELECT ` + apptCols + ` FROM appointments WHERE 1=1`
	var args []interface{}
	idx := 1

	add := func(clause string, v interface{}) {
		query += fmt.Sprintf(" AND "+clause, idx)
		args = append(args, v)
		idx++
	}
	if f.DoctorID != nil {
		add("doctor_id = $%d", *f.DoctorID)
	}
	if f.CenterID != nil {
		add("center_id = $%d", *f.CenterID)
	}
	if f.PatientID != nil {
		add("patient_id = $%d", *f.PatientID)
	}
	if f.Status != nil {
		add("status = $%d", string(*f.Status))
	}
	if f.From != nil {
		add("scheduled_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("scheduled_at <= $%d", *f.To)
	}
	query += " ORDER BY scheduled_at ASC, id ASC"

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return r.collect(rows)
}

func (r *appointmentRepoPG) Cancel(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := r.scanAppt(r.conn(ctx).QueryRow(ctx, `
		UPDATE appointments SET status = 'CANCELLED', updated_at = NOW()
		WHERE id = $1 AND status = 'ACTIVE'
		RETURNING `+apptCols, id))
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	// Zero rows: either the id is unknown or the appointment is no longer active.
	var exists bool
	if err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM appointments WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrStatusChanged
	}
	return nil, ErrNotFound
}

func (r *appointmentRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *appointmentRepoPG) collect(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()
	items := make([]Appointment, 0)
	for rows.Next() {
		a, err := r.scanAppt(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *a)
	}
	return items, rows.Err()
}
