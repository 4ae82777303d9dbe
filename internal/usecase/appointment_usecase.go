package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"clinic-scheduling/internal/converter"
	"clinic-scheduling/internal/delivery/dto"
	"clinic-scheduling/internal/domain/entity"
	"clinic-scheduling/internal/domain/repository"
	"clinic-scheduling/internal/infrastructure/metrics"
	"clinic-scheduling/internal/service"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

var appointmentTracer = otel.Tracer("clinic-scheduling/internal/usecase")

const (
	defaultTxTimeout  = 5 * time.Second
	maxLocationLength = 255
)

// IdempotencyStore remembers the outcome of a patient's keyed booking request
type IdempotencyStore interface {
	Begin(ctx context.Context, patientID uuid.UUID, key string) (existing uuid.UUID, claimed bool, err error)
	Complete(ctx context.Context, patientID uuid.UUID, key string, appointmentID uuid.UUID) error
	Release(ctx context.Context, patientID uuid.UUID, key string) error
}

type AppointmentUsecase interface {
	Book(ctx context.Context, patientID uuid.UUID, req *dto.BookAppointmentRequest) (*dto.BookAppointmentResponse, error)
	Cancel(ctx context.Context, appointmentID, patientID uuid.UUID) (*dto.AppointmentResponse, error)
	Complete(ctx context.Context, appointmentID, doctorID uuid.UUID) (*dto.AppointmentResponse, error)
	ListForPatient(ctx context.Context, patientID uuid.UUID) (*dto.AppointmentListResponse, error)
	ListForDoctor(ctx context.Context, doctorID uuid.UUID) (*dto.AppointmentListResponse, error)
}

type appointmentUsecase struct {
	db              *gorm.DB
	log             *logrus.Logger
	transactor      repository.Transactor
	appointmentRepo repository.AppointmentRepository
	doctorRepo      repository.DoctorProfileRepository
	auditService    service.AuditService
	notifier        service.Notifier
	idempotency     IdempotencyStore
	metrics         *metrics.SchedulingMetrics
	txTimeout       time.Duration
}

func NewAppointmentUsecase(
	db *gorm.DB,
	log *logrus.Logger,
	transactor repository.Transactor,
	appointmentRepo repository.AppointmentRepository,
	doctorRepo repository.DoctorProfileRepository,
	auditService service.AuditService,
	notifier service.Notifier,
	idempotency IdempotencyStore,
	m *metrics.SchedulingMetrics,
	txTimeout time.Duration,
) AppointmentUsecase {
	if txTimeout <= 0 {
		txTimeout = defaultTxTimeout
	}
	return &appointmentUsecase{
		db:              db,
		log:             log,
		transactor:      transactor,
		appointmentRepo: appointmentRepo,
		doctorRepo:      doctorRepo,
		auditService:    auditService,
		notifier:        notifier,
		idempotency:     idempotency,
		metrics:         m,
		txTimeout:       txTimeout,
	}
}

type bookingCommand struct {
	doctorID uuid.UUID
	date     time.Time
	slot     entity.Slot
	location string
}

func parseBooking(req *dto.BookAppointmentRequest) (*bookingCommand, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: empty request", ErrInvalidInput)
	}

	doctorID, err := uuid.Parse(req.DoctorID)
	if err != nil || doctorID == uuid.Nil {
		return nil, fmt.Errorf("%w: doctor_id must be a valid UUID", ErrInvalidInput)
	}

	date, err := entity.ParseDate(req.Date)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	slot, err := entity.ParseSlot(req.StartTime, req.EndTime)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	location := strings.TrimSpace(req.ConsultationLocation)
	if location == "" {
		return nil, fmt.Errorf("%w: consultation_location is required", ErrInvalidInput)
	}
	if len(location) > maxLocationLength {
		return nil, fmt.Errorf("%w: consultation_location must be at most %d characters", ErrInvalidInput, maxLocationLength)
	}

	return &bookingCommand{doctorID: doctorID, date: date, slot: slot, location: location}, nil
}

// Book reserves a slot for patientID.
//
// Flow:
// 1. Validate the request
// 2. Replay a finished request with the same Idempotency-Key, if any
// 3. In one transaction: load doctor, lock (doctor, date), check conflicts,
//    insert, write audit row
// 4. After commit: hand the confirmation email to the dispatcher
func (u *appointmentUsecase) Book(ctx context.Context, patientID uuid.UUID, req *dto.BookAppointmentRequest) (*dto.BookAppointmentResponse, error) {
	ctx, span := appointmentTracer.Start(ctx, "appointment.Book")
	defer span.End()

	cmd, err := parseBooking(req)
	if err != nil {
		recordFailure(span, err)
		u.metrics.ObserveBooking(string(KindInvalidInput))
		return nil, err
	}
	span.SetAttributes(
		attribute.String("doctor_id", cmd.doctorID.String()),
		attribute.String("date", cmd.date.Format(entity.DateLayout)),
		attribute.String("slot", cmd.slot.String()),
	)

	key := ""
	if req.IdempotencyKey != "" && u.idempotency != nil {
		existing, claimed, err := u.idempotency.Begin(ctx, patientID, req.IdempotencyKey)
		switch {
		case errors.Is(err, service.ErrIdempotencyInFlight):
			err = fmt.Errorf("%w: %v", ErrUnavailable, err)
			recordFailure(span, err)
			u.metrics.ObserveBooking(string(KindUnavailable))
			return nil, err
		case err != nil:
			// Redis trouble must not block booking; the database still prevents double booking
			u.log.Warnf("Idempotency check failed for patient %s, continuing without it: %+v", patientID, err)
		case !claimed:
			u.log.Infof("Replaying booking %s for idempotency key of patient %s", existing, patientID)
			u.metrics.ObserveBooking("replayed")
			return &dto.BookAppointmentResponse{AppointmentID: existing, Replayed: true}, nil
		default:
			key = req.IdempotencyKey
		}
	}

	appointment, doctor, err := u.book(ctx, patientID, cmd)
	if err != nil {
		if key != "" {
			if relErr := u.idempotency.Release(context.WithoutCancel(ctx), patientID, key); relErr != nil {
				u.log.Warnf("Failed to release idempotency key for patient %s: %+v", patientID, relErr)
			}
		}
		recordFailure(span, err)
		u.metrics.ObserveBooking(string(KindOf(err)))
		return nil, err
	}

	if key != "" {
		if err := u.idempotency.Complete(context.WithoutCancel(ctx), patientID, key, appointment.ID); err != nil {
			u.log.Warnf("Failed to record idempotency key for appointment %s: %+v", appointment.ID, err)
		}
	}

	u.metrics.ObserveBooking("success")
	u.notifier.NotifyBooked(appointment, doctor)

	span.SetAttributes(attribute.String("appointment_id", appointment.ID.String()))
	return &dto.BookAppointmentResponse{AppointmentID: appointment.ID}, nil
}

func (u *appointmentUsecase) book(ctx context.Context, patientID uuid.UUID, cmd *bookingCommand) (*entity.Appointment, *entity.DoctorProfile, error) {
	ctx, cancel := context.WithTimeout(ctx, u.txTimeout)
	defer cancel()

	appointment := &entity.Appointment{
		ID:                   uuid.New(),
		DoctorID:             cmd.doctorID,
		PatientID:            patientID,
		Date:                 cmd.date,
		StartTime:            cmd.slot.Start,
		EndTime:              cmd.slot.End,
		ConsultationLocation: cmd.location,
	}
	var doctor *entity.DoctorProfile

	started := time.Now()
	err := u.transactor.WithinTransaction(ctx, func(tx *gorm.DB) error {
		d, err := u.doctorRepo.FindByUserID(tx, cmd.doctorID)
		if err != nil {
			return err
		}
		if d == nil {
			return ErrDoctorNotFound
		}
		doctor = d

		if err := u.appointmentRepo.LockDoctorDay(tx, cmd.doctorID, cmd.date); err != nil {
			return err
		}

		conflict, err := u.appointmentRepo.FindConflicting(tx, cmd.doctorID, cmd.date, cmd.slot)
		if err != nil {
			return err
		}
		if conflict != nil {
			return fmt.Errorf("%w: overlaps %s", ErrSlotUnavailable, conflict.Slot())
		}

		if err := u.appointmentRepo.Create(tx, appointment); err != nil {
			return err
		}

		return u.auditService.LogCreate(ctx, tx, &patientID, entity.AuditActionAppointmentBook, "appointment", appointment.ID.String(), entity.JSON{
			"doctor_id":  appointment.DoctorID,
			"date":       appointment.Date.Format(entity.DateLayout),
			"start_time": appointment.StartTime.String(),
			"end_time":   appointment.EndTime.String(),
			"status":     appointment.Status,
		})
	})
	u.metrics.ObserveUnitOfWork("book", time.Since(started).Seconds())

	if err != nil {
		return nil, nil, u.classify(ctx, "book", err)
	}

	u.log.Infof("Booked appointment %s with doctor %s on %s %s", appointment.ID, cmd.doctorID, cmd.date.Format(entity.DateLayout), cmd.slot)
	return appointment, doctor, nil
}

// Cancel moves the patient's own Scheduled appointment to Cancelled and frees its slot
func (u *appointmentUsecase) Cancel(ctx context.Context, appointmentID, patientID uuid.UUID) (*dto.AppointmentResponse, error) {
	ctx, span := appointmentTracer.Start(ctx, "appointment.Cancel")
	defer span.End()
	span.SetAttributes(attribute.String("appointment_id", appointmentID.String()))

	appointment, err := u.transition(ctx, "cancel", repository.StatusUpdate{
		AppointmentID: appointmentID,
		PatientID:     patientID,
		Expected:      entity.AppointmentStatusScheduled,
		Next:          entity.AppointmentStatusCancelled,
	}, patientID, entity.AuditActionAppointmentCancel)
	if err != nil {
		recordFailure(span, err)
		return nil, err
	}

	u.notifier.NotifyCancelled(appointment, nil)
	return converter.AppointmentToResponse(appointment), nil
}

// Complete lets the treating doctor close a Scheduled appointment
func (u *appointmentUsecase) Complete(ctx context.Context, appointmentID, doctorID uuid.UUID) (*dto.AppointmentResponse, error) {
	ctx, span := appointmentTracer.Start(ctx, "appointment.Complete")
	defer span.End()
	span.SetAttributes(attribute.String("appointment_id", appointmentID.String()))

	appointment, err := u.transition(ctx, "complete", repository.StatusUpdate{
		AppointmentID: appointmentID,
		DoctorID:      doctorID,
		Expected:      entity.AppointmentStatusScheduled,
		Next:          entity.AppointmentStatusCompleted,
	}, doctorID, entity.AuditActionAppointmentComplete)
	if err != nil {
		recordFailure(span, err)
		return nil, err
	}

	return converter.AppointmentToResponse(appointment), nil
}

func (u *appointmentUsecase) transition(ctx context.Context, op string, update repository.StatusUpdate, actorID uuid.UUID, action string) (*entity.Appointment, error) {
	if update.AppointmentID == uuid.Nil {
		return nil, fmt.Errorf("%w: appointment id is required", ErrInvalidInput)
	}

	ctx, cancel := context.WithTimeout(ctx, u.txTimeout)
	defer cancel()

	var updated *entity.Appointment
	started := time.Now()
	err := u.transactor.WithinTransaction(ctx, func(tx *gorm.DB) error {
		a, err := u.appointmentRepo.UpdateStatus(tx, update)
		if err != nil {
			return err
		}
		updated = a

		return u.auditService.LogUpdate(ctx, tx, &actorID, action, "appointment", a.ID.String(),
			entity.JSON{"status": update.Expected, "version": a.Version - 1},
			entity.JSON{"status": a.Status, "version": a.Version},
		)
	})
	u.metrics.ObserveUnitOfWork(op, time.Since(started).Seconds())

	if err != nil {
		err = u.classify(ctx, op, err)
		u.metrics.ObserveTransition(string(update.Next), string(KindOf(err)))
		return nil, err
	}

	u.metrics.ObserveTransition(string(update.Next), "success")
	u.log.Infof("Appointment %s moved to %s by %s", updated.ID, updated.Status, actorID)
	return updated, nil
}

// ListForPatient returns the patient's appointments with the doctor's name and specialty
func (u *appointmentUsecase) ListForPatient(ctx context.Context, patientID uuid.UUID) (*dto.AppointmentListResponse, error) {
	ctx, span := appointmentTracer.Start(ctx, "appointment.ListForPatient")
	defer span.End()

	appointments, err := u.appointmentRepo.FindByPatientID(u.db.WithContext(ctx), patientID)
	if err != nil {
		err = u.classify(ctx, "list patient", err)
		recordFailure(span, err)
		return nil, err
	}

	return &dto.AppointmentListResponse{
		Appointments: converter.AppointmentsToResponses(appointments),
		Count:        len(appointments),
	}, nil
}

// ListForDoctor returns the doctor's appointments with the patient's name
func (u *appointmentUsecase) ListForDoctor(ctx context.Context, doctorID uuid.UUID) (*dto.AppointmentListResponse, error) {
	ctx, span := appointmentTracer.Start(ctx, "appointment.ListForDoctor")
	defer span.End()

	appointments, err := u.appointmentRepo.FindByDoctorID(u.db.WithContext(ctx), doctorID)
	if err != nil {
		err = u.classify(ctx, "list doctor", err)
		recordFailure(span, err)
		return nil, err
	}

	return &dto.AppointmentListResponse{
		Appointments: converter.AppointmentsToResponses(appointments),
		Count:        len(appointments),
	}, nil
}

func recordFailure(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(KindOf(err)))
}

// classify maps store and infrastructure failures onto the public error kinds
func (u *appointmentUsecase) classify(ctx context.Context, op string, err error) error {
	if KindOf(err) != KindInternal {
		return err
	}

	switch {
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: %v", ErrSlotUnavailable, err)
	case errors.Is(err, repository.ErrStaleState):
		return fmt.Errorf("%w: %v", ErrNotFoundOrAlreadyFinal, err)
	case repository.IsTransient(err), errors.Is(err, context.Canceled), ctx.Err() != nil:
		u.log.Warnf("Failed to %s appointment, store unavailable: %+v", op, err)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	u.log.Errorf("Failed to %s appointment: %+v", op, err)
	return err
}
