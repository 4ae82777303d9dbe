package handler

import (
	"encoding/json"
	"net/http"

	"clinic-scheduling/internal/delivery/dto"
	"clinic-scheduling/internal/delivery/http/middleware"
	"clinic-scheduling/internal/usecase"
	"clinic-scheduling/pkg/response"
	"clinic-scheduling/pkg/validator"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const IdempotencyKeyHeader = "Idempotency-Key"

type AppointmentHandler struct {
	appointmentUsecase usecase.AppointmentUsecase
	validator          *validator.CustomValidator
	log                *logrus.Logger
	// exposeDetail adds the underlying error text to error responses
	exposeDetail bool
}

func NewAppointmentHandler(appointmentUsecase usecase.AppointmentUsecase, validator *validator.CustomValidator, log *logrus.Logger, exposeDetail bool) *AppointmentHandler {
	return &AppointmentHandler{
		appointmentUsecase: appointmentUsecase,
		validator:          validator,
		log:                log,
		exposeDetail:       exposeDetail,
	}
}

func (h *AppointmentHandler) BookAppointment(w http.ResponseWriter, r *http.Request) {
	patientID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		response.Unauthorized(w, "User not found in context")
		return
	}

	var req dto.BookAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Fail(w, http.StatusBadRequest, "Invalid request body", string(usecase.KindInvalidInput), h.detail(err))
		return
	}
	req.IdempotencyKey = r.Header.Get(IdempotencyKeyHeader)

	if err := h.validator.Validate(&req); err != nil {
		response.ValidationError(w, h.validator.FormatValidationErrors(err))
		return
	}

	booked, err := h.appointmentUsecase.Book(r.Context(), patientID, &req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if booked.Replayed {
		response.Success(w, http.StatusOK, "Appointment already booked", booked)
		return
	}
	response.Success(w, http.StatusCreated, "Appointment booked successfully", booked)
}

func (h *AppointmentHandler) CancelAppointment(w http.ResponseWriter, r *http.Request) {
	patientID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		response.Unauthorized(w, "User not found in context")
		return
	}

	appointmentID, err := uuid.Parse(mux.Vars(r)["appointmentId"])
	if err != nil {
		response.Fail(w, http.StatusBadRequest, "Invalid appointment ID", string(usecase.KindInvalidInput), h.detail(err))
		return
	}

	appointment, err := h.appointmentUsecase.Cancel(r.Context(), appointmentID, patientID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	response.Success(w, http.StatusOK, "Appointment cancelled successfully", appointment)
}

func (h *AppointmentHandler) CompleteAppointment(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		response.Unauthorized(w, "User not found in context")
		return
	}

	appointmentID, err := uuid.Parse(mux.Vars(r)["appointmentId"])
	if err != nil {
		response.Fail(w, http.StatusBadRequest, "Invalid appointment ID", string(usecase.KindInvalidInput), h.detail(err))
		return
	}

	appointment, err := h.appointmentUsecase.Complete(r.Context(), appointmentID, doctorID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	response.Success(w, http.StatusOK, "Appointment completed successfully", appointment)
}

func (h *AppointmentHandler) GetPatientAppointments(w http.ResponseWriter, r *http.Request) {
	patientID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		response.Unauthorized(w, "User not found in context")
		return
	}

	appointments, err := h.appointmentUsecase.ListForPatient(r.Context(), patientID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	response.Success(w, http.StatusOK, "Appointments retrieved successfully", appointments)
}

func (h *AppointmentHandler) GetDoctorAppointments(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		response.Unauthorized(w, "User not found in context")
		return
	}

	appointments, err := h.appointmentUsecase.ListForDoctor(r.Context(), doctorID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	response.Success(w, http.StatusOK, "Appointments retrieved successfully", appointments)
}

func (h *AppointmentHandler) writeError(w http.ResponseWriter, err error) {
	kind := usecase.KindOf(err)

	switch kind {
	case usecase.KindInvalidInput:
		response.Fail(w, http.StatusBadRequest, "Invalid input", string(kind), h.detail(err))
	case usecase.KindDoctorNotFound:
		response.Fail(w, http.StatusNotFound, "Doctor not found", string(kind), h.detail(err))
	case usecase.KindSlotUnavailable:
		response.Fail(w, http.StatusConflict, "Time slot is not available", string(kind), h.detail(err))
	case usecase.KindNotFoundOrAlreadyFinal:
		response.Fail(w, http.StatusNotFound, "Appointment not found or already cancelled", string(kind), h.detail(err))
	case usecase.KindUnavailable:
		w.Header().Set("Retry-After", "1")
		response.Fail(w, http.StatusServiceUnavailable, "Service temporarily unavailable, please retry", string(kind), h.detail(err))
	default:
		h.log.Errorf("Unhandled appointment error: %+v", err)
		response.Fail(w, http.StatusInternalServerError, "Internal server error", string(kind), h.detail(err))
	}
}

func (h *AppointmentHandler) detail(err error) string {
	if !h.exposeDetail || err == nil {
		return ""
	}
	return err.Error()
}
