package dto

import (
	"time"

	"github.com/google/uuid"
)

// Request DTOs

type BookAppointmentRequest struct {
	DoctorID             string `json:"doctor_id" validate:"required,uuid"`
	Date                 string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime            string `json:"start_time" validate:"required,clock"`
	EndTime              string `json:"end_time" validate:"required,clock"`
	ConsultationLocation string `json:"consultation_location" validate:"required,max=255"`

	// Taken from the Idempotency-Key header
	IdempotencyKey string `json:"-" validate:"omitempty,max=128"`
}

// Response DTOs

type BookAppointmentResponse struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	Replayed      bool      `json:"replayed,omitempty"`
}

// DoctorSummaryResponse is the only doctor data a patient sees
type DoctorSummaryResponse struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Specialty string `json:"specialty"`
}

// PatientSummaryResponse is the only patient data a doctor sees
type PatientSummaryResponse struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type AppointmentResponse struct {
	ID                   uuid.UUID               `json:"id"`
	DoctorID             uuid.UUID               `json:"doctor_id"`
	PatientID            uuid.UUID               `json:"patient_id"`
	Date                 string                  `json:"date"`
	StartTime            string                  `json:"start_time"`
	EndTime              string                  `json:"end_time"`
	ConsultationLocation string                  `json:"consultation_location"`
	Status               string                  `json:"status"`
	PaymentStatus        string                  `json:"payment_status"`
	Notes                *string                 `json:"notes,omitempty"`
	Version              int                     `json:"version"`
	Doctor               *DoctorSummaryResponse  `json:"doctor,omitempty"`
	Patient              *PatientSummaryResponse `json:"patient,omitempty"`
	CreatedAt            time.Time               `json:"created_at"`
	UpdatedAt            time.Time               `json:"updated_at"`
}

type AppointmentListResponse struct {
	Appointments []AppointmentResponse `json:"appointments"`
	Count        int                   `json:"count"`
}
