package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ehr/appointments/internal/platform/auth"
	"github.com/ehr/appointments/internal/platform/directory"
	"github.com/ehr/appointments/internal/platform/events"
	"github.com/ehr/appointments/internal/platform/metrics"
	"github.com/ehr/appointments/pkg/apperr"
)

const eventPublishTimeout = 5 * time.Second

// Caller is the authenticated principal behind an engine call together with
// the credential to forward to the directory service.
type Caller struct {
	auth.Identity
	Credential string
}

// Service is the scheduling engine: it owns verification order, conflict
// detection, persistence and status transitions.
type Service struct {
	repo      AppointmentRepository
	verifier  directory.EntityVerifier
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewService wires the engine. publisher and m may be nil.
func NewService(repo AppointmentRepository, verifier directory.EntityVerifier, publisher events.Publisher, m *metrics.Metrics, logger zerolog.Logger) *Service {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Service{
		repo:      repo,
		verifier:  verifier,
		publisher: publisher,
		metrics:   m,
		logger:    logger.With().Str("component", "scheduling").Logger(),
		tracer:    otel.Tracer("appointments/scheduling"),
	}
}

func (s *Service) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "scheduling."+name)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apperr.KindOf(err)))
	}
	span.End()
}

// Create books an appointment. Checks run in order and stop at the first
// failure: required fields, timestamp format, patient, doctor and center
// existence, then the slot conflict check and insert under the slot lock.
func (s *Service) Create(ctx context.Context, req CreateRequest, caller Caller) (_ *Appointment, err error) {
	ctx, span := s.startSpan(ctx, "create")
	defer func() { endSpan(span, err) }()

	a, err := s.create(ctx, req, caller)
	err = abandoned(ctx, err)
	s.metrics.IncBooking(bookingOutcome(err))
	if err != nil {
		s.logFailure(err, "booking rejected")
		return nil, err
	}

	s.logger.Info().
		Str("appointment_id", a.ID.String()).
		Int64("doctor_id", a.DoctorID).
		Int64("center_id", a.CenterID).
		Time("scheduled_at", a.ScheduledAt).
		Str("registered_by", a.RegisteredBy).
		Msg("appointment booked")
	span.SetAttributes(attribute.String("appointment.id", a.ID.String()))

	s.publish(ctx, events.TypeAppointmentCreated, a, caller.SubjectID)
	return a, nil
}

func (s *Service) create(ctx context.Context, req CreateRequest, caller Caller) (*Appointment, error) {
	if missing := req.missingFields(); len(missing) > 0 {
		return nil, apperr.Validation("missing required fields: %s", strings.Join(missing, ", "))
	}

	scheduledAt, err := ParseTimestamp(req.ScheduledAt)
	if err != nil {
		return nil, apperr.Validation("scheduled_at must be an ISO-8601 date-time")
	}

	refs := []struct {
		kind directory.Kind
		id   int64
	}{
		{directory.KindPatient, *req.PatientID},
		{directory.KindDoctor, *req.DoctorID},
		{directory.KindCenter, *req.CenterID},
	}
	for _, ref := range refs {
		if err := s.verify(ctx, ref.kind, ref.id, caller.Credential); err != nil {
			return nil, err
		}
	}

	a := &Appointment{
		ScheduledAt:  scheduledAt,
		Reason:       strings.TrimSpace(req.Reason),
		Status:       StatusActive,
		PatientID:    *req.PatientID,
		DoctorID:     *req.DoctorID,
		CenterID:     *req.CenterID,
		RegisteredBy: caller.SubjectID,
	}

	err = s.repo.InSlot(ctx, a.DoctorID, a.CenterID, func(ctx context.Context) error {
		from, to := ConflictWindow(a.ScheduledAt)
		existing, err := s.repo.ListActiveInWindow(ctx, a.DoctorID, a.CenterID, from, to)
		if err != nil {
			return apperr.Storage("load bookings in conflict window", err)
		}
		if HasConflict(existing, a.DoctorID, a.CenterID, a.ScheduledAt) {
			return slotConflict(a)
		}
		if err := s.repo.Create(ctx, a); err != nil {
			if errors.Is(err, ErrSlotTaken) {
				return slotConflict(a)
			}
			return apperr.Storage("insert appointment", err)
		}
		return nil
	})
	if err != nil {
		var ae *apperr.Error
		if errors.As(err, &ae) {
			return nil, err
		}
		return nil, apperr.Storage("booking transaction failed", err)
	}
	return a, nil
}

func slotConflict(a *Appointment) error {
	return apperr.Conflict(fmt.Sprintf(
		"doctor %d already has an appointment at center %d within %s of %s",
		a.DoctorID, a.CenterID, ConflictBuffer, a.ScheduledAt.Format(time.RFC3339)))
}

func (s *Service) verify(ctx context.Context, kind directory.Kind, id int64, credential string) error {
	status, err := s.verifier.Verify(ctx, kind, id, credential)
	switch status {
	case directory.Exists:
		return nil
	case directory.NotFound:
		return apperr.NotFound(string(kind), fmt.Sprintf("%s %d does not exist", kind, id))
	default:
		if err == nil {
			err = errors.New("directory lookup did not complete")
		}
		return apperr.Unreachable(string(kind), fmt.Sprintf("could not verify %s %d", kind, id), err)
	}
}

// List returns the appointments visible to caller under its role's policy.
func (s *Service) List(ctx context.Context, params ListParams, caller auth.Identity) (_ []Appointment, err error) {
	ctx, span := s.startSpan(ctx, "list")
	defer func() { endSpan(span, err) }()

	scope, err := NewListScope(caller, params)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("list.scope", scope.Name()))

	items, err := s.repo.List(ctx, scope.Filter())
	if err != nil {
		s.logger.Error().Err(err).Str("scope", scope.Name()).Msg("list appointments failed")
		return nil, apperr.Storage("list appointments", err)
	}
	return items, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (_ *Appointment, err error) {
	ctx, span := s.startSpan(ctx, "get")
	defer func() { endSpan(span, err) }()

	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.lookupError(ctx, id, err)
	}
	return a, nil
}

// Cancel moves an ACTIVE appointment to CANCELLED. Cancelling twice is an
// invalid transition, not a no-op.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, caller Caller) (_ *Appointment, err error) {
	ctx, span := s.startSpan(ctx, "cancel")
	defer func() { endSpan(span, err) }()
	defer func() { s.metrics.IncTransition("cancel", transitionOutcome(err)) }()

	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.lookupError(ctx, id, err)
	}
	if !current.Status.CanTransitionTo(StatusCancelled) {
		return nil, apperr.InvalidTransition("appointment", "appointment is already cancelled")
	}

	a, err := s.repo.Cancel(ctx, id)
	switch {
	case errors.Is(err, ErrStatusChanged):
		return nil, apperr.InvalidTransition("appointment", "appointment is already cancelled")
	case err != nil:
		return nil, s.lookupError(ctx, id, err)
	}

	s.logger.Info().Str("appointment_id", id.String()).Str("by", caller.SubjectID).Msg("appointment cancelled")
	s.publish(ctx, events.TypeAppointmentCancelled, a, caller.SubjectID)
	return a, nil
}

// Delete removes the appointment whatever its status.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, caller Caller) (err error) {
	ctx, span := s.startSpan(ctx, "delete")
	defer func() { endSpan(span, err) }()
	defer func() { s.metrics.IncTransition("delete", transitionOutcome(err)) }()

	if err := s.repo.Delete(ctx, id); err != nil {
		return s.lookupError(ctx, id, err)
	}

	s.logger.Info().Str("appointment_id", id.String()).Str("by", caller.SubjectID).Msg("appointment deleted")
	s.publish(ctx, events.TypeAppointmentDeleted, &Appointment{ID: id}, caller.SubjectID)
	return nil
}

func (s *Service) lookupError(ctx context.Context, id uuid.UUID, err error) error {
	if errors.Is(err, ErrNotFound) {
		return apperr.NotFound("appointment", fmt.Sprintf("appointment %s not found", id))
	}
	if ae := abandoned(ctx, err); ae != err {
		return ae
	}
	s.logger.Error().Err(err).Str("appointment_id", id.String()).Msg("appointment store failure")
	return apperr.Storage("appointment store failure", err)
}

// abandoned reports a store failure caused by the caller's own context ending
// as Canceled rather than Storage. Verification failures keep their kind.
func abandoned(ctx context.Context, err error) error {
	if err == nil || ctx.Err() == nil {
		return err
	}
	if kind := apperr.KindOf(err); kind != apperr.KindStorage && kind != apperr.KindInternal {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperr.Canceled("request ended before the operation completed", ctx.Err())
	}
	return err
}

// publish emits a lifecycle event after the change is durable. Delivery
// failures are logged and never undo the change.
func (s *Service) publish(ctx context.Context, typ string, a *Appointment, actor string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventPublishTimeout)
	defer cancel()

	e := events.Event{
		Type:          typ,
		AppointmentID: a.ID.String(),
		Status:        string(a.Status),
		ScheduledAt:   a.ScheduledAt,
		PatientID:     a.PatientID,
		DoctorID:      a.DoctorID,
		CenterID:      a.CenterID,
		Actor:         actor,
	}
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.Warn().Err(err).Str("event_type", typ).Str("appointment_id", e.AppointmentID).Msg("publish lifecycle event failed")
	}
}

func (s *Service) logFailure(err error, msg string) {
	kind := apperr.KindOf(err)
	ev := s.logger.Warn()
	if !apperr.Exposed(kind) {
		ev = s.logger.Error()
	}
	ev.Err(err).Str("kind", string(kind)).Msg(msg)
}

func bookingOutcome(err error) string {
	if err == nil {
		return "created"
	}
	switch apperr.KindOf(err) {
	case apperr.KindConflict:
		return "conflict"
	case apperr.KindValidation:
		return "validation"
	case apperr.KindNotFound:
		return "not_found"
	case apperr.KindUnreachable:
		return "unreachable"
	case apperr.KindCanceled:
		return "canceled"
	default:
		return "error"
	}
}

func transitionOutcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(apperr.KindOf(err))
}
