package repository

import (
	"errors"
	"fmt"
	"time"

	"clinic-scheduling/internal/domain/entity"
	domainRepo "clinic-scheduling/internal/domain/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type appointmentRepository struct{}

func NewAppointmentRepository() domainRepo.AppointmentRepository {
	return &appointmentRepository{}
}

// LockDoctorDay takes a transaction-scoped advisory lock so that concurrent
// bookings for the same doctor and day run their check-and-insert one at a time.
func (r *appointmentRepository) LockDoctorDay(db *gorm.DB, doctorID uuid.UUID, date time.Time) error {
	key := doctorID.String() + ":" + date.Format(entity.DateLayout)
	return db.Exec("SELECT pg_advisory_xact_lock(hashtextextended(?, 0))", key).Error
}

func (r *appointmentRepository) FindConflicting(db *gorm.DB, doctorID uuid.UUID, date time.Time, slot entity.Slot) (*entity.Appointment, error) {
	var appointment entity.Appointment
	err := db.
		Where("doctor_id = ? AND appointment_date = ? AND status <> ?", doctorID, date.Format(entity.DateLayout), entity.AppointmentStatusCancelled).
		Where("start_minute < ? AND end_minute > ?", int(slot.End), int(slot.Start)).
		Order("start_minute ASC").
		First(&appointment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &appointment, nil
}

func (r *appointmentRepository) Create(db *gorm.DB, appointment *entity.Appointment) error {
	appointment.Status = entity.AppointmentStatusScheduled
	if appointment.PaymentStatus == "" {
		appointment.PaymentStatus = entity.PaymentStatusPending
	}
	appointment.Version = 1

	if err := db.Omit(clause.Associations).Create(appointment).Error; err != nil {
		if domainRepo.IsConstraintConflict(err) {
			return domainRepo.ErrConflict
		}
		return err
	}
	return nil
}

// UpdateStatus applies a guarded transition in a single statement. The row lock
// taken by UPDATE makes concurrent transitions of the same appointment resolve
// to exactly one winner; the loser matches zero rows.
func (r *appointmentRepository) UpdateStatus(db *gorm.DB, update domainRepo.StatusUpdate) (*entity.Appointment, error) {
	if !entity.CanTransition(update.Expected, update.Next) {
		return nil, fmt.Errorf("illegal status transition %s -> %s", update.Expected, update.Next)
	}

	var appointment entity.Appointment
	query := db.Model(&appointment).
		Clauses(clause.Returning{}).
		Where("id = ? AND status = ?", update.AppointmentID, update.Expected)
	if update.PatientID != uuid.Nil {
		query = query.Where("patient_id = ?", update.PatientID)
	}
	if update.DoctorID != uuid.Nil {
		query = query.Where("doctor_id = ?", update.DoctorID)
	}

	result := query.Updates(map[string]interface{}{
		"status":  update.Next,
		"version": gorm.Expr("version + 1"),
	})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, domainRepo.ErrStaleState
	}
	return &appointment, nil
}

func (r *appointmentRepository) FindByID(db *gorm.DB, id uuid.UUID) (*entity.Appointment, error) {
	var appointment entity.Appointment
	err := db.Where("id = ?", id).First(&appointment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &appointment, nil
}

// FindByPatientID lists a patient's appointments with the doctor's public fields
func (r *appointmentRepository) FindByPatientID(db *gorm.DB, patientID uuid.UUID) ([]entity.Appointment, error) {
	var appointments []entity.Appointment
	err := db.
		Preload("Doctor", func(tx *gorm.DB) *gorm.DB {
			return tx.Select("user_id", "specialty")
		}).
		Preload("Doctor.User", func(tx *gorm.DB) *gorm.DB {
			return tx.Select("id", "first_name", "last_name")
		}).
		Where("patient_id = ?", patientID).
		Order("appointment_date ASC, start_minute ASC").
		Find(&appointments).Error
	if err != nil {
		return nil, err
	}
	return appointments, nil
}

// FindByDoctorID lists a doctor's appointments with the patient's name only
func (r *appointmentRepository) FindByDoctorID(db *gorm.DB, doctorID uuid.UUID) ([]entity.Appointment, error) {
	var appointments []entity.Appointment
	err := db.
		Preload("Patient", func(tx *gorm.DB) *gorm.DB {
			return tx.Select("user_id")
		}).
		Preload("Patient.User", func(tx *gorm.DB) *gorm.DB {
			return tx.Select("id", "first_name", "last_name")
		}).
		Where("doctor_id = ?", doctorID).
		Order("appointment_date ASC, start_minute ASC").
		Find(&appointments).Error
	if err != nil {
		return nil, err
	}
	return appointments, nil
}
