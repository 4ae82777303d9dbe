package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"clinic-scheduling/internal/delivery/dto"
	"clinic-scheduling/internal/domain/entity"
	"clinic-scheduling/internal/domain/repository"
	"clinic-scheduling/internal/infrastructure/email"
	"clinic-scheduling/internal/service"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	uc       AppointmentUsecase
	store    *fakeAppointmentStore
	audit    *fakeAudit
	notifier *recordingNotifier
	doctorID uuid.UUID
	otherDoc uuid.UUID
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	transactor  repository.Transactor
	notifier    service.Notifier
	idempotency IdempotencyStore
	txTimeout   time.Duration
}

func withTransactor(tx repository.Transactor) fixtureOption {
	return func(c *fixtureConfig) { c.transactor = tx }
}

func withNotifier(n service.Notifier) fixtureOption {
	return func(c *fixtureConfig) { c.notifier = n }
}

func withIdempotency(s IdempotencyStore) fixtureOption {
	return func(c *fixtureConfig) { c.idempotency = s }
}

func withTxTimeout(d time.Duration) fixtureOption {
	return func(c *fixtureConfig) { c.txTimeout = d }
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	db := newTestDB(t)

	f := &fixture{
		store:    newFakeAppointmentStore(),
		audit:    &fakeAudit{},
		notifier: &recordingNotifier{},
		doctorID: uuid.New(),
		otherDoc: uuid.New(),
	}
	doctors := &fakeDoctorDirectory{doctors: map[uuid.UUID]*entity.DoctorProfile{
		f.doctorID: {UserID: f.doctorID, Specialty: "Cardiology", User: entity.User{ID: f.doctorID, FirstName: "Gregory", LastName: "House"}},
		f.otherDoc: {UserID: f.otherDoc, Specialty: "Dermatology", User: entity.User{ID: f.otherDoc, FirstName: "Lisa", LastName: "Cuddy"}},
	}}

	cfg := fixtureConfig{
		transactor: &fakeTransactor{db: db},
		notifier:   f.notifier,
		txTimeout:  time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	f.uc = NewAppointmentUsecase(db, quietLogger(), cfg.transactor, f.store, doctors, f.audit, cfg.notifier, cfg.idempotency, nil, cfg.txTimeout)
	return f
}

func (f *fixture) request(doctorID uuid.UUID, date, start, end string) *dto.BookAppointmentRequest {
	return &dto.BookAppointmentRequest{
		DoctorID:             doctorID.String(),
		Date:                 date,
		StartTime:            start,
		EndTime:              end,
		ConsultationLocation: "Room 4",
	}
}

func TestBookCreatesScheduledAppointment(t *testing.T) {
	f := newFixture(t)
	patientID := uuid.New()

	resp, err := f.uc.Book(context.Background(), patientID, f.request(f.doctorID, "2025-03-14", "10:00", "10:30"))
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, resp.AppointmentID)
	assert.False(t, resp.Replayed)

	stored, _ := f.store.FindByID(nil, resp.AppointmentID)
	require.NotNil(t, stored)
	assert.Equal(t, entity.AppointmentStatusScheduled, stored.Status)
	assert.Equal(t, patientID, stored.PatientID)
	assert.Equal(t, "10:00-10:30", stored.Slot().String())
	assert.Equal(t, 1, stored.Version)

	assert.Equal(t, []string{entity.AuditActionAppointmentBook}, f.audit.actions)
	assert.Equal(t, []uuid.UUID{resp.AppointmentID}, f.notifier.booked)
}

func TestBookOverlapScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.uc.Book(ctx, uuid.New(), f.request(f.doctorID, "2025-03-14", "10:00", "10:30"))
	require.NoError(t, err)

	_, err = f.uc.Book(ctx, uuid.New(), f.request(f.doctorID, "2025-03-14", "10:15", "10:45"))
	assert.ErrorIs(t, err, ErrSlotUnavailable)
	assert.Equal(t, KindSlotUnavailable, KindOf(err))

	_, err = f.uc.Book(ctx, uuid.New(), f.request(f.doctorID, "2025-03-14", "09:00", "12:00"))
	assert.ErrorIs(t, err, ErrSlotUnavailable)

	// Touching bounds do not overlap
	_, err = f.uc.Book(ctx, uuid.New(), f.request(f.doctorID, "2025-03-14", "10:30", "11:00"))
	assert.NoError(t, err)
	_, err = f.uc.Book(ctx, uuid.New(), f.request(f.doctorID, "2025-03-14", "09:30", "10:00"))
	assert.NoError(t, err)

	// Other doctor and other day are independent
	_, err = f.uc.Book(ctx, uuid.New(), f.request(f.otherDoc, "2025-03-14", "10:15", "10:45"))
	assert.NoError(t, err)
	_, err = f.uc.Book(ctx, uuid.New(), f.request(f.doctorID, "2025-03-15", "10:15", "10:45"))
	assert.NoError(t, err)

	assert.Equal(t, 5, f.store.count())
}

func TestBookConcurrentSameSlotHasOneWinner(t *testing.T) {
	for _, blind := range []bool{false, true} {
		t.Run(fmt.Sprintf("blind=%v", blind), func(t *testing.T) {
			f := newFixture(t)
			f.store.blind = blind

			const n = 25
			var wg sync.WaitGroup
			var wins, conflicts atomic.Int32
			start := make(chan struct{})

			for i := 0; i < n; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					_, err := f.uc.Book(context.Background(), uuid.New(), f.request(f.doctorID, "2025-03-14", "10:00", "10:30"))
					switch {
					case err == nil:
						wins.Add(1)
					case errors.Is(err, ErrSlotUnavailable):
						conflicts.Add(1)
					default:
						t.Errorf("unexpected error: %v", err)
					}
				}()
			}
			close(start)
			wg.Wait()

			assert.Equal(t, int32(1), wins.Load())
			assert.Equal(t, int32(n-1), conflicts.Load())
			assert.Equal(t, 1, f.store.count())
		})
	}
}

func TestBookConcurrentDisjointSlotsAllSucceed(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		start := fmt.Sprintf("%02d:%02d", 8+i/2, (i%2)*30)
		end := fmt.Sprintf("%02d:%02d", 8+(i+1)/2, ((i+1)%2)*30)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.uc.Book(context.Background(), uuid.New(), f.request(f.doctorID, "2025-03-14", start, end))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 16, f.store.count())
}

func TestBookRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	valid := f.request(f.doctorID, "2025-03-14", "10:00", "10:30")

	tests := []struct {
		name   string
		mutate func(r *dto.BookAppointmentRequest)
	}{
		{"bad doctor id", func(r *dto.BookAppointmentRequest) { r.DoctorID = "doctor-1" }},
		{"impossible date", func(r *dto.BookAppointmentRequest) { r.Date = "2025-02-30" }},
		{"unpadded time", func(r *dto.BookAppointmentRequest) { r.StartTime = "9:00" }},
		{"hour out of range", func(r *dto.BookAppointmentRequest) { r.EndTime = "25:00" }},
		{"start equals end", func(r *dto.BookAppointmentRequest) { r.EndTime = "10:00" }},
		{"start after end", func(r *dto.BookAppointmentRequest) { r.StartTime = "11:00" }},
		{"start at end of day", func(r *dto.BookAppointmentRequest) { r.StartTime, r.EndTime = "24:00", "24:00" }},
		{"blank location", func(r *dto.BookAppointmentRequest) { r.ConsultationLocation = "   " }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := *valid
			tt.mutate(&req)
			_, err := f.uc.Book(context.Background(), uuid.New(), &req)
			assert.ErrorIs(t, err, ErrInvalidInput)
			assert.Equal(t, KindInvalidInput, KindOf(err))
		})
	}
	assert.Equal(t, 0, f.store.count())
}

func TestBookAllowsSlotEndingAtMidnight(t *testing.T) {
	f := newFixture(t)
	_, err := f.uc.Book(context.Background(), uuid.New(), f.request(f.doctorID, "2025-03-14", "23:30", "24:00"))
	assert.NoError(t, err)
}

func TestBookUnknownDoctor(t *testing.T) {
	f := newFixture(t)
	_, err := f.uc.Book(context.Background(), uuid.New(), f.request(uuid.New(), "2025-03-14", "10:00", "10:30"))
	assert.ErrorIs(t, err, ErrDoctorNotFound)
	assert.Equal(t, 0, f.store.count())
	assert.Empty(t, f.notifier.booked)
}

func TestBookTimeoutIsUnavailable(t *testing.T) {
	f := newFixture(t, withTransactor(blockingTransactor{}), withTxTimeout(20*time.Millisecond))

	_, err := f.uc.Book(context.Background(), uuid.New(), f.request(f.doctorID, "2025-03-14", "10:00", "10:30"))
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, KindUnavailable, KindOf(err))
}

func TestBookTransientStoreErrorIsUnavailable(t *testing.T) {
	f := newFixture(t)
	f.store.lockErr = &pgconn.PgError{Code: "40P01", Message: "deadlock detected"}

	_, err := f.uc.Book(context.Background(), uuid.New(), f.request(f.doctorID, "2025-03-14", "10:00", "10:30"))
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 0, f.store.count())
}

func TestBookUnexpectedStoreErrorIsInternal(t *testing.T) {
	f := newFixture(t)
	f.store.conflictErr = errors.New("relation \"appointments\" does not exist")

	_, err := f.uc.Book(context.Background(), uuid.New(), f.request(f.doctorID, "2025-03-14", "10:00", "10:30"))
	require.Error(t, err)
	assert.Equal(t, KindInternal, KindOf(err))
}

func TestCancelFreesSlotAndKeepsRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	patientID := uuid.New()

	booked, err := f.uc.Book(ctx, patientID, f.request(f.doctorID, "2025-03-14", "10:00", "10:30"))
	require.NoError(t, err)

	cancelled, err := f.uc.Cancel(ctx, booked.AppointmentID, patientID)
	require.NoError(t, err)
	assert.Equal(t, string(entity.AppointmentStatusCancelled), cancelled.Status)
	assert.Equal(t, 2, cancelled.Version)
	assert.Equal(t, []uuid.UUID{booked.AppointmentID}, f.notifier.cancelled)

	_, err = f.uc.Cancel(ctx, booked.AppointmentID, patientID)
	assert.ErrorIs(t, err, ErrNotFoundOrAlreadyFinal)
	assert.Equal(t, KindNotFoundOrAlreadyFinal, KindOf(err))

	_, err = f.uc.Book(ctx, uuid.New(), f.request(f.doctorID, "2025-03-14", "10:00", "10:30"))
	assert.NoError(t, err)

	// The cancelled row is kept alongside the new booking
	assert.Equal(t, 2, f.store.count())
	list, err := f.uc.ListForPatient(ctx, patientID)
	require.NoError(t, err)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, string(entity.AppointmentStatusCancelled), list.Appointments[0].Status)

	assert.Equal(t, []string{
		entity.AuditActionAppointmentBook,
		entity.AuditActionAppointmentCancel,
		entity.AuditActionAppointmentBook,
	}, f.audit.actions)
}

func TestCancelByAnotherPatientFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := uuid.New()

	booked, err := f.uc.Book(ctx, owner, f.request(f.doctorID, "2025-03-14", "10:00", "10:30"))
	require.NoError(t, err)

	_, err = f.uc.Cancel(ctx, booked.AppointmentID, uuid.New())
	assert.ErrorIs(t, err, ErrNotFoundOrAlreadyFinal)

	stored, _ := f.store.FindByID(nil, booked.AppointmentID)
	assert.Equal(t, entity.AppointmentStatusScheduled, stored.Status)
	assert.Empty(t, f.notifier.cancelled)
}

func TestCancelUnknownAppointment(t *testing.T) {
	f := newFixture(t)
	_, err := f.uc.Cancel(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFoundOrAlreadyFinal)

	_, err = f.uc.Cancel(context.Background(), uuid.Nil, uuid.New())
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestConcurrentCancelHasOneWinner(t *testing.T) {
	f := newFixture(t)
	patientID := uuid.New()
	booked, err := f.uc.Book(context.Background(), patientID, f.request(f.doctorID, "2025-03-14", "10:00", "10:30"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	var wins atomic.Int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.uc.Cancel(context.Background(), booked.AppointmentID, patientID); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Len(t, f.notifier.cancelled, 1)
}

func TestCompleteByTreatingDoctor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	patientID := uuid.New()

	booked, err := f.uc.Book(ctx, patientID, f.request(f.doctorID, "2025-03-14", "10:00", "10:30"))
	require.NoError(t, err)

	_, err = f.uc.Complete(ctx, booked.AppointmentID, f.otherDoc)
	assert.ErrorIs(t, err, ErrNotFoundOrAlreadyFinal)

	completed, err := f.uc.Complete(ctx, booked.AppointmentID, f.doctorID)
	require.NoError(t, err)
	assert.Equal(t, string(entity.AppointmentStatusCompleted), completed.Status)

	// Final states do not move, and completed visits keep their slot
	_, err = f.uc.Cancel(ctx, booked.AppointmentID, patientID)
	assert.ErrorIs(t, err, ErrNotFoundOrAlreadyFinal)
	_, err = f.uc.Book(ctx, uuid.New(), f.request(f.doctorID, "2025-03-14", "10:00", "10:30"))
	assert.ErrorIs(t, err, ErrSlotUnavailable)
}

func TestListForDoctorIsOrdered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, slot := range [][2]string{{"14:00", "14:30"}, {"09:00", "09:30"}, {"11:00", "11:30"}} {
		_, err := f.uc.Book(ctx, uuid.New(), f.request(f.doctorID, "2025-03-14", slot[0], slot[1]))
		require.NoError(t, err)
	}
	_, err := f.uc.Book(ctx, uuid.New(), f.request(f.otherDoc, "2025-03-14", "09:00", "09:30"))
	require.NoError(t, err)

	list, err := f.uc.ListForDoctor(ctx, f.doctorID)
	require.NoError(t, err)
	require.Equal(t, 3, list.Count)
	assert.Equal(t, "09:00", list.Appointments[0].StartTime)
	assert.Equal(t, "11:00", list.Appointments[1].StartTime)
	assert.Equal(t, "14:00", list.Appointments[2].StartTime)
}

func TestBookIdempotencyKeyReplaysResult(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	f := newFixture(t, withIdempotency(service.NewIdempotencyService(rdb, quietLogger(), time.Hour)))
	ctx := context.Background()
	patientID := uuid.New()

	req := f.request(f.doctorID, "2025-03-14", "10:00", "10:30")
	req.IdempotencyKey = "retry-1"

	first, err := f.uc.Book(ctx, patientID, req)
	require.NoError(t, err)

	second, err := f.uc.Book(ctx, patientID, req)
	require.NoError(t, err)
	assert.Equal(t, first.AppointmentID, second.AppointmentID)
	assert.True(t, second.Replayed)
	assert.Equal(t, 1, f.store.count())
	assert.Len(t, f.notifier.booked, 1)
}

func TestBookIdempotencyKeyReleasedOnFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	f := newFixture(t, withIdempotency(service.NewIdempotencyService(rdb, quietLogger(), time.Hour)))
	patientID := uuid.New()

	req := f.request(uuid.New(), "2025-03-14", "10:00", "10:30")
	req.IdempotencyKey = "retry-2"

	_, err := f.uc.Book(context.Background(), patientID, req)
	require.ErrorIs(t, err, ErrDoctorNotFound)
	assert.False(t, mr.Exists(service.RedisIdempotencyKeyPrefix+patientID.String()+":retry-2"))
}

type failingSender struct {
	attempts atomic.Int32
}

func (s *failingSender) Send(ctx context.Context, msg email.Message) error {
	s.attempts.Add(1)
	return errors.New("smtp relay down")
}

func TestBookSucceedsWhenNotificationFails(t *testing.T) {
	db := newTestDB(t)
	patientID := uuid.New()
	sender := &failingSender{}
	patients := &fakePatientDirectory{patients: map[uuid.UUID]*entity.PatientProfile{
		patientID: {UserID: patientID, User: entity.User{ID: patientID, Email: "ada@example.com", FirstName: "Ada"}},
	}}
	dispatcher := service.NewNotificationDispatcher(db, quietLogger(), sender, patients, &fakeDoctorDirectory{}, nil, service.DispatcherConfig{
		Workers:        1,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
	})
	dispatcher.Start()

	f := newFixture(t, withNotifier(dispatcher))

	resp, err := f.uc.Book(context.Background(), patientID, f.request(f.doctorID, "2025-03-14", "10:00", "10:30"))
	require.NoError(t, err)

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	dispatcher.Stop(stopCtx)

	assert.Equal(t, int32(3), sender.attempts.Load())
	stored, _ := f.store.FindByID(nil, resp.AppointmentID)
	require.NotNil(t, stored)
	assert.Equal(t, entity.AppointmentStatusScheduled, stored.Status)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindInvalidInput, KindOf(fmt.Errorf("%w: bad date", ErrInvalidInput)))
	assert.Equal(t, KindDoctorNotFound, KindOf(ErrDoctorNotFound))
	assert.Equal(t, KindUnavailable, KindOf(fmt.Errorf("wrap: %w", ErrUnavailable)))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
}
