package converter

import (
	"clinic-scheduling/internal/delivery/dto"
	"clinic-scheduling/internal/domain/entity"
)

// AppointmentToResponse converts an Appointment entity to AppointmentResponse DTO.
// Related profiles are reduced to their public summary fields.
func AppointmentToResponse(appointment *entity.Appointment) *dto.AppointmentResponse {
	if appointment == nil {
		return nil
	}

	response := &dto.AppointmentResponse{
		ID:                   appointment.ID,
		DoctorID:             appointment.DoctorID,
		PatientID:            appointment.PatientID,
		Date:                 appointment.Date.Format(entity.DateLayout),
		StartTime:            appointment.StartTime.String(),
		EndTime:              appointment.EndTime.String(),
		ConsultationLocation: appointment.ConsultationLocation,
		Status:               string(appointment.Status),
		PaymentStatus:        string(appointment.PaymentStatus),
		Notes:                appointment.Notes,
		Version:              appointment.Version,
		CreatedAt:            appointment.CreatedAt,
		UpdatedAt:            appointment.UpdatedAt,
	}

	if appointment.Doctor != nil {
		response.Doctor = &dto.DoctorSummaryResponse{
			FirstName: appointment.Doctor.User.FirstName,
			LastName:  appointment.Doctor.User.LastName,
			Specialty: appointment.Doctor.Specialty,
		}
	}

	if appointment.Patient != nil {
		response.Patient = &dto.PatientSummaryResponse{
			FirstName: appointment.Patient.User.FirstName,
			LastName:  appointment.Patient.User.LastName,
		}
	}

	return response
}

// AppointmentsToResponses converts a slice of Appointment entities to slice of AppointmentResponse DTOs
func AppointmentsToResponses(appointments []entity.Appointment) []dto.AppointmentResponse {
	responses := make([]dto.AppointmentResponse, len(appointments))
	for i := range appointments {
		if resp := AppointmentToResponse(&appointments[i]); resp != nil {
			responses[i] = *resp
		}
	}
	return responses
}
