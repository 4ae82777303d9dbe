package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"sync"
	"sync/atomic"
	"time"

	"clinic-scheduling/config"
	"clinic-scheduling/internal/domain/entity"
	"clinic-scheduling/internal/domain/repository"
	"clinic-scheduling/internal/infrastructure/email"
	"clinic-scheduling/internal/infrastructure/metrics"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

type NotificationEvent string

const (
	NotificationBooked    NotificationEvent = "booked"
	NotificationCancelled NotificationEvent = "cancelled"
)

const maxNotificationBackoff = 5 * time.Minute

var errNoRecipient = errors.New("patient has no email address")

// Notifier is the fire-and-forget side of booking and cancellation.
// Implementations must never block the caller.
type Notifier interface {
	NotifyBooked(appointment *entity.Appointment, doctor *entity.DoctorProfile)
	NotifyCancelled(appointment *entity.Appointment, doctor *entity.DoctorProfile)
}

// Notification is one queued email job. Doctor may be nil and is then
// resolved by the worker.
type Notification struct {
	Event       NotificationEvent
	Appointment entity.Appointment
	Doctor      *entity.DoctorProfile
}

type DispatcherConfig struct {
	QueueSize      int
	Workers        int
	MaxAttempts    int
	InitialBackoff time.Duration
	SendTimeout    time.Duration
}

func DispatcherConfigFrom(cfg config.NotificationConfig) DispatcherConfig {
	return DispatcherConfig{
		QueueSize:      cfg.QueueSize,
		Workers:        cfg.Workers,
		MaxAttempts:    cfg.MaxAttempts,
		InitialBackoff: cfg.InitialBackoff,
		SendTimeout:    cfg.SendTimeout,
	}
}

func (c *DispatcherConfig) applyDefaults() {
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 10 * time.Second
	}
}

// NotificationDispatcher hands notifications from request goroutines to a
// fixed pool of workers over a bounded queue. A full queue drops the job.
type NotificationDispatcher struct {
	db          *gorm.DB
	log         *logrus.Logger
	sender      email.Sender
	patientRepo repository.PatientProfileRepository
	doctorRepo  repository.DoctorProfileRepository
	metrics     *metrics.SchedulingMetrics
	cfg         DispatcherConfig

	queue   chan Notification
	mu      sync.RWMutex
	stopped atomic.Bool
	started atomic.Bool
	group   errgroup.Group
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewNotificationDispatcher(
	db *gorm.DB,
	log *logrus.Logger,
	sender email.Sender,
	patientRepo repository.PatientProfileRepository,
	doctorRepo repository.DoctorProfileRepository,
	m *metrics.SchedulingMetrics,
	cfg DispatcherConfig,
) *NotificationDispatcher {
	cfg.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &NotificationDispatcher{
		db:          db,
		log:         log,
		sender:      sender,
		patientRepo: patientRepo,
		doctorRepo:  doctorRepo,
		metrics:     m,
		cfg:         cfg,
		queue:       make(chan Notification, cfg.QueueSize),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start launches the worker pool. Calling it more than once is a no-op.
func (d *NotificationDispatcher) Start() {
	if !d.started.CompareAndSwap(false, true) {
		return
	}
	d.log.Infof("Starting notification dispatcher with %d workers", d.cfg.Workers)
	for i := 0; i < d.cfg.Workers; i++ {
		d.group.Go(func() error {
			d.work()
			return nil
		})
	}
}

// Stop closes the queue and waits for workers to drain it. When ctx expires
// first, pending retries are abandoned.
func (d *NotificationDispatcher) Stop(ctx context.Context) {
	if !d.stopped.CompareAndSwap(false, true) {
		return
	}

	d.mu.Lock()
	close(d.queue)
	d.mu.Unlock()

	if !d.started.Load() {
		d.cancel()
		return
	}

	done := make(chan struct{})
	go func() {
		_ = d.group.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		d.log.Warn("Notification dispatcher stop deadline reached, abandoning pending retries")
		d.cancel()
		<-done
	}
	d.cancel()
	d.log.Info("Notification dispatcher stopped")
}

func (d *NotificationDispatcher) NotifyBooked(appointment *entity.Appointment, doctor *entity.DoctorProfile) {
	d.enqueue(NotificationBooked, appointment, doctor)
}

func (d *NotificationDispatcher) NotifyCancelled(appointment *entity.Appointment, doctor *entity.DoctorProfile) {
	d.enqueue(NotificationCancelled, appointment, doctor)
}

func (d *NotificationDispatcher) enqueue(event NotificationEvent, appointment *entity.Appointment, doctor *entity.DoctorProfile) {
	if appointment == nil {
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.stopped.Load() {
		d.log.Warnf("Notification dispatcher stopped, dropping %s notification for appointment %s", event, appointment.ID)
		d.metrics.ObserveNotification(string(event), "dropped")
		return
	}

	select {
	case d.queue <- Notification{Event: event, Appointment: *appointment, Doctor: doctor}:
		d.metrics.ObserveNotification(string(event), "queued")
		d.metrics.SetQueueDepth(len(d.queue))
	default:
		d.log.Warnf("Notification queue full, dropping %s notification for appointment %s", event, appointment.ID)
		d.metrics.ObserveNotification(string(event), "dropped")
	}
}

func (d *NotificationDispatcher) work() {
	for n := range d.queue {
		d.metrics.SetQueueDepth(len(d.queue))
		d.deliver(n)
	}
}

func (d *NotificationDispatcher) deliver(n Notification) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Errorf("Notification worker recovered from panic for appointment %s: %v", n.Appointment.ID, r)
			d.metrics.ObserveNotification(string(n.Event), "failed")
		}
	}()

	backoff := d.cfg.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		lastErr = d.attempt(n)
		if lastErr == nil {
			d.log.Infof("Sent %s notification for appointment %s", n.Event, n.Appointment.ID)
			d.metrics.ObserveNotification(string(n.Event), "sent")
			return
		}
		if errors.Is(lastErr, errNoRecipient) {
			d.log.Warnf("Skipping %s notification for appointment %s: %v", n.Event, n.Appointment.ID, lastErr)
			d.metrics.ObserveNotification(string(n.Event), "skipped")
			return
		}

		d.log.Warnf("Attempt %d/%d to send %s notification for appointment %s failed: %v",
			attempt, d.cfg.MaxAttempts, n.Event, n.Appointment.ID, lastErr)
		if attempt == d.cfg.MaxAttempts {
			break
		}

		select {
		case <-time.After(backoff):
		case <-d.ctx.Done():
			d.log.Warnf("Abandoning %s notification for appointment %s on shutdown", n.Event, n.Appointment.ID)
			d.metrics.ObserveNotification(string(n.Event), "abandoned")
			return
		}
		backoff *= 2
		if backoff > maxNotificationBackoff {
			backoff = maxNotificationBackoff
		}
	}

	d.log.Errorf("Giving up on %s notification for appointment %s: %v", n.Event, n.Appointment.ID, lastErr)
	d.metrics.ObserveNotification(string(n.Event), "failed")
}

func (d *NotificationDispatcher) attempt(n Notification) error {
	ctx, cancel := context.WithTimeout(d.ctx, d.cfg.SendTimeout)
	defer cancel()

	patient, err := d.patientRepo.FindByUserID(d.conn(ctx), n.Appointment.PatientID)
	if err != nil {
		return fmt.Errorf("load patient: %w", err)
	}
	if patient == nil || patient.User.Email == "" {
		return errNoRecipient
	}

	doctor := n.Doctor
	if doctor == nil {
		doctor, err = d.doctorRepo.FindByUserID(d.conn(ctx), n.Appointment.DoctorID)
		if err != nil {
			return fmt.Errorf("load doctor: %w", err)
		}
	}

	msg, err := renderNotification(n.Event, &n.Appointment, doctor, patient)
	if err != nil {
		return err
	}
	return d.sender.Send(ctx, msg)
}

func (d *NotificationDispatcher) conn(ctx context.Context) *gorm.DB {
	if d.db == nil {
		return nil
	}
	return d.db.WithContext(ctx)
}

var notificationTemplates = template.Must(template.New("notifications").Parse(`
{{define "booked"}}<h1>Appointment Confirmed</h1>
<p>Dear {{.PatientName}},</p>
<p>Your appointment has been successfully booked:</p>
<ul>
  <li>Date: {{.Date}}</li>
  <li>Time: {{.Start}} - {{.End}}</li>
  <li>Doctor: {{.DoctorName}}</li>
  <li>Location: {{.Location}}</li>
</ul>
<p>Thank you for using our service!</p>{{end}}
{{define "cancelled"}}<h1>Appointment Cancelled</h1>
<p>Dear {{.PatientName}},</p>
<p>Your appointment has been cancelled:</p>
<ul>
  <li>Date: {{.Date}}</li>
  <li>Time: {{.Start}} - {{.End}}</li>
  <li>Doctor: {{.DoctorName}}</li>
</ul>
<p>If this was not intended, please contact our support.</p>{{end}}
`))

type notificationView struct {
	PatientName string
	DoctorName  string
	Date        string
	Start       string
	End         string
	Location    string
}

func renderNotification(event NotificationEvent, a *entity.Appointment, doctor *entity.DoctorProfile, patient *entity.PatientProfile) (email.Message, error) {
	view := notificationView{
		PatientName: patient.User.FullName(),
		DoctorName:  "your doctor",
		Date:        a.Date.Format(entity.DateLayout),
		Start:       a.StartTime.String(),
		End:         a.EndTime.String(),
		Location:    a.ConsultationLocation,
	}
	if doctor != nil && doctor.User.FirstName != "" {
		view.DoctorName = doctor.DisplayName()
	}

	var subject, text string
	switch event {
	case NotificationBooked:
		subject = "Appointment Confirmation"
		text = fmt.Sprintf("Dear %s,\n\nYour appointment has been successfully booked:\nDate: %s\nTime: %s - %s\nDoctor: %s\nLocation: %s\n\nThank you for using our service!\n",
			view.PatientName, view.Date, view.Start, view.End, view.DoctorName, view.Location)
	case NotificationCancelled:
		subject = "Appointment Cancellation"
		text = fmt.Sprintf("Dear %s,\n\nYour appointment has been cancelled:\nDate: %s\nTime: %s - %s\nDoctor: %s\n\nIf this was not intended, please contact our support.\n",
			view.PatientName, view.Date, view.Start, view.End, view.DoctorName)
	default:
		return email.Message{}, fmt.Errorf("unknown notification event %q", event)
	}

	var html bytes.Buffer
	if err := notificationTemplates.ExecuteTemplate(&html, string(event), view); err != nil {
		return email.Message{}, fmt.Errorf("render %s notification: %w", event, err)
	}

	return email.Message{
		To:      patient.User.Email,
		ToName:  view.PatientName,
		Subject: subject,
		Body:    text,
		HTML:    html.String(),
	}, nil
}
