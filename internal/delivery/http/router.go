package http

import (
	"net/http"

	"clinic-scheduling/internal/delivery/http/handler"
	"clinic-scheduling/internal/delivery/http/middleware"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type Router struct {
	router             *mux.Router
	log                *logrus.Logger
	appointmentHandler *handler.AppointmentHandler
	authMiddleware     *middleware.AuthMiddleware
	corsMiddleware     *middleware.CORSMiddleware
	metricsHandler     http.Handler
}

func NewRouter(
	log *logrus.Logger,
	appointmentHandler *handler.AppointmentHandler,
	authMiddleware *middleware.AuthMiddleware,
	corsMiddleware *middleware.CORSMiddleware,
	metricsHandler http.Handler,
) *Router {
	return &Router{
		router:             mux.NewRouter(),
		log:                log,
		appointmentHandler: appointmentHandler,
		authMiddleware:     authMiddleware,
		corsMiddleware:     corsMiddleware,
		metricsHandler:     metricsHandler,
	}
}

func (r *Router) patientOnly(h http.HandlerFunc) http.Handler {
	return r.authMiddleware.Authenticate(middleware.RequirePatient(h))
}

func (r *Router) doctorOnly(h http.HandlerFunc) http.Handler {
	return r.authMiddleware.Authenticate(middleware.RequireDoctor(h))
}

func (r *Router) Setup() *mux.Router {
	// Preflight requests match here so the CORS middleware can answer them
	r.router.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, req *http.Request) {})

	// Prometheus scrapes outside the versioned API
	if r.metricsHandler != nil {
		r.router.Handle("/metrics", r.metricsHandler).Methods(http.MethodGet)
	}

	// API versioning
	api := r.router.PathPrefix("/api/v1").Subrouter()

	// Health check
	api.HandleFunc("/health", r.healthCheck).Methods(http.MethodGet)

	// Appointment routes (protected)
	appointments := api.PathPrefix("/appointments").Subrouter()
	appointments.Handle("/book", r.patientOnly(r.appointmentHandler.BookAppointment)).Methods(http.MethodPost)
	appointments.Handle("/cancel/{appointmentId}", r.patientOnly(r.appointmentHandler.CancelAppointment)).Methods(http.MethodPut)
	appointments.Handle("/patient", r.patientOnly(r.appointmentHandler.GetPatientAppointments)).Methods(http.MethodGet)
	appointments.Handle("/complete/{appointmentId}", r.doctorOnly(r.appointmentHandler.CompleteAppointment)).Methods(http.MethodPut)
	appointments.Handle("/doctor", r.doctorOnly(r.appointmentHandler.GetDoctorAppointments)).Methods(http.MethodGet)

	r.router.Use(middleware.RequestLogger(r.log))
	r.router.Use(r.corsMiddleware.Handle)

	return r.router
}

func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status": "ok"}`))
}
