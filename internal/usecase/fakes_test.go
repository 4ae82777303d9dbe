package usecase

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"clinic-scheduling/internal/domain/entity"
	"clinic-scheduling/internal/domain/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB returns a gorm handle that the fakes below never query
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	sqlDB, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db
}

type fakeTransactor struct {
	db *gorm.DB
}

func (f *fakeTransactor) WithinTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(f.db)
}

// blockingTransactor never finishes before ctx does
type blockingTransactor struct{}

func (blockingTransactor) WithinTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	<-ctx.Done()
	return ctx.Err()
}

// fakeAppointmentStore keeps rows in memory and enforces the no-overlap rule
// in Create the way the exclusion constraint does.
type fakeAppointmentStore struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*entity.Appointment

	lockErr     error
	conflictErr error
	// blind makes FindConflicting miss everything, leaving Create as the only guard
	blind bool
}

func newFakeAppointmentStore() *fakeAppointmentStore {
	return &fakeAppointmentStore{rows: make(map[uuid.UUID]*entity.Appointment)}
}

func (f *fakeAppointmentStore) LockDoctorDay(db *gorm.DB, doctorID uuid.UUID, date time.Time) error {
	return f.lockErr
}

func (f *fakeAppointmentStore) overlapping(doctorID uuid.UUID, date time.Time, slot entity.Slot) *entity.Appointment {
	for _, a := range f.rows {
		if a.DoctorID == doctorID && a.Date.Equal(date) && a.BlocksSlot() && a.Slot().Overlaps(slot) {
			c := *a
			return &c
		}
	}
	return nil
}

func (f *fakeAppointmentStore) FindConflicting(db *gorm.DB, doctorID uuid.UUID, date time.Time, slot entity.Slot) (*entity.Appointment, error) {
	if f.conflictErr != nil {
		return nil, f.conflictErr
	}
	if f.blind {
		return nil, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.overlapping(doctorID, date, slot), nil
}

func (f *fakeAppointmentStore) Create(db *gorm.DB, a *entity.Appointment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.overlapping(a.DoctorID, a.Date, a.Slot()) != nil {
		return repository.ErrConflict
	}
	a.Status = entity.AppointmentStatusScheduled
	a.PaymentStatus = entity.PaymentStatusPending
	a.Version = 1
	c := *a
	f.rows[a.ID] = &c
	return nil
}

func (f *fakeAppointmentStore) UpdateStatus(db *gorm.DB, u repository.StatusUpdate) (*entity.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.rows[u.AppointmentID]
	if !ok || a.Status != u.Expected {
		return nil, repository.ErrStaleState
	}
	if u.PatientID != uuid.Nil && a.PatientID != u.PatientID {
		return nil, repository.ErrStaleState
	}
	if u.DoctorID != uuid.Nil && a.DoctorID != u.DoctorID {
		return nil, repository.ErrStaleState
	}
	a.Status = u.Next
	a.Version++
	c := *a
	return &c, nil
}

func (f *fakeAppointmentStore) FindByID(db *gorm.DB, id uuid.UUID) (*entity.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.rows[id]
	if !ok {
		return nil, nil
	}
	c := *a
	return &c, nil
}

func (f *fakeAppointmentStore) list(match func(*entity.Appointment) bool) []entity.Appointment {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []entity.Appointment
	for _, a := range f.rows {
		if match(a) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out
}

func (f *fakeAppointmentStore) FindByPatientID(db *gorm.DB, patientID uuid.UUID) ([]entity.Appointment, error) {
	return f.list(func(a *entity.Appointment) bool { return a.PatientID == patientID }), nil
}

func (f *fakeAppointmentStore) FindByDoctorID(db *gorm.DB, doctorID uuid.UUID) ([]entity.Appointment, error) {
	return f.list(func(a *entity.Appointment) bool { return a.DoctorID == doctorID }), nil
}

func (f *fakeAppointmentStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

type fakeDoctorDirectory struct {
	doctors map[uuid.UUID]*entity.DoctorProfile
}

func (f *fakeDoctorDirectory) FindByUserID(db *gorm.DB, id uuid.UUID) (*entity.DoctorProfile, error) {
	return f.doctors[id], nil
}

type fakePatientDirectory struct {
	patients map[uuid.UUID]*entity.PatientProfile
}

func (f *fakePatientDirectory) FindByUserID(db *gorm.DB, id uuid.UUID) (*entity.PatientProfile, error) {
	return f.patients[id], nil
}

type fakeAudit struct {
	mu      sync.Mutex
	actions []string
}

func (f *fakeAudit) LogCreate(ctx context.Context, tx *gorm.DB, userID *uuid.UUID, action, entityName, entityID string, newValue interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, action)
	return nil
}

func (f *fakeAudit) LogUpdate(ctx context.Context, tx *gorm.DB, userID *uuid.UUID, action, entityName, entityID string, oldValue, newValue interface{}) error {
	return f.LogCreate(ctx, tx, userID, action, entityName, entityID, newValue)
}

type recordingNotifier struct {
	mu        sync.Mutex
	booked    []uuid.UUID
	cancelled []uuid.UUID
}

func (r *recordingNotifier) NotifyBooked(a *entity.Appointment, d *entity.DoctorProfile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.booked = append(r.booked, a.ID)
}

func (r *recordingNotifier) NotifyCancelled(a *entity.Appointment, d *entity.DoctorProfile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled = append(r.cancelled, a.ID)
}
