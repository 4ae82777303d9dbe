package repository

import (
	"time"

	"clinic-scheduling/internal/domain/entity"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StatusUpdate describes a guarded status transition. Zero-valued owner IDs
// are not used as filters.
type StatusUpdate struct {
	AppointmentID uuid.UUID
	PatientID     uuid.UUID
	DoctorID      uuid.UUID
	Expected      entity.AppointmentStatus
	Next          entity.AppointmentStatus
}

type AppointmentRepository interface {
	// LockDoctorDay blocks until the caller's transaction holds the writer lock
	// for (doctorID, date). Released on commit or rollback.
	LockDoctorDay(db *gorm.DB, doctorID uuid.UUID, date time.Time) error
	FindConflicting(db *gorm.DB, doctorID uuid.UUID, date time.Time, slot entity.Slot) (*entity.Appointment, error)
	// Create returns ErrConflict when the storage layer rejects an overlapping slot.
	Create(db *gorm.DB, appointment *entity.Appointment) error
	// UpdateStatus returns ErrStaleState when no row matches the guard.
	UpdateStatus(db *gorm.DB, update StatusUpdate) (*entity.Appointment, error)
	FindByID(db *gorm.DB, id uuid.UUID) (*entity.Appointment, error)
	FindByPatientID(db *gorm.DB, patientID uuid.UUID) ([]entity.Appointment, error)
	FindByDoctorID(db *gorm.DB, doctorID uuid.UUID) ([]entity.Appointment, error)
}
