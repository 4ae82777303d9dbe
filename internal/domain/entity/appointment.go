package entity

import (
	"time"

	"github.com/google/uuid"
)

// AppointmentStatus represents the scheduling state of an appointment
type AppointmentStatus string

const (
	AppointmentStatusScheduled AppointmentStatus = "Scheduled"
	AppointmentStatusCompleted AppointmentStatus = "Completed"
	AppointmentStatusCancelled AppointmentStatus = "Cancelled"
)

// PaymentStatus is tracked alongside the appointment but never changed by scheduling
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "Pending"
	PaymentStatusPaid     PaymentStatus = "Paid"
	PaymentStatusRefunded PaymentStatus = "Refunded"
)

// MaxNotesLength bounds Appointment.Notes
const MaxNotesLength = 500

// Appointment is a patient's claim on a doctor's slot for one day.
// Rows are never deleted; cancellation is a status.
type Appointment struct {
	ID                   uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	DoctorID             uuid.UUID         `gorm:"type:uuid;not null;index:idx_appointments_doctor_day,priority:1" json:"doctor_id"`
	PatientID            uuid.UUID         `gorm:"type:uuid;not null;index:idx_appointments_patient_day,priority:1" json:"patient_id"`
	Date                 time.Time         `gorm:"column:appointment_date;type:date;not null;index:idx_appointments_doctor_day,priority:2;index:idx_appointments_patient_day,priority:2" json:"date"`
	StartTime            ClockTime         `gorm:"column:start_minute;type:smallint;not null" json:"start_time"`
	EndTime              ClockTime         `gorm:"column:end_minute;type:smallint;not null" json:"end_time"`
	ConsultationLocation string            `gorm:"type:varchar(255);not null" json:"consultation_location"`
	Status               AppointmentStatus `gorm:"type:varchar(20);not null;default:'Scheduled';index:idx_appointments_doctor_day,priority:3;index:idx_appointments_patient_day,priority:3" json:"status"`
	PaymentStatus        PaymentStatus     `gorm:"type:varchar(20);not null;default:'Pending'" json:"payment_status"`
	Notes                *string           `gorm:"type:varchar(500)" json:"notes,omitempty"`
	Version              int               `gorm:"not null;default:1" json:"version"`
	CreatedAt            time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time         `gorm:"autoUpdateTime" json:"updated_at"`

	// Relationships
	Doctor  *DoctorProfile  `gorm:"foreignKey:DoctorID;references:UserID" json:"doctor,omitempty"`
	Patient *PatientProfile `gorm:"foreignKey:PatientID;references:UserID" json:"patient,omitempty"`
}

func (Appointment) TableName() string {
	return "appointments"
}

// Slot returns the appointment's time interval
func (a *Appointment) Slot() Slot {
	return Slot{Start: a.StartTime, End: a.EndTime}
}

// IsScheduled checks if the appointment can still change state
func (a *Appointment) IsScheduled() bool {
	return a.Status == AppointmentStatusScheduled
}

// IsCancelled checks if the appointment was cancelled
func (a *Appointment) IsCancelled() bool {
	return a.Status == AppointmentStatusCancelled
}

// BlocksSlot reports whether the appointment occupies its slot for conflict checks.
// Completed appointments keep blocking; only cancellation frees the slot.
func (a *Appointment) BlocksSlot() bool {
	return a.Status != AppointmentStatusCancelled
}

// CanTransition reports whether from -> to is a legal status change.
// Only Scheduled appointments move, and only forward.
func CanTransition(from, to AppointmentStatus) bool {
	if from != AppointmentStatusScheduled {
		return false
	}
	return to == AppointmentStatusCancelled || to == AppointmentStatusCompleted
}
