package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// ErrIdempotencyInFlight is returned while the first request with a key is still running
var ErrIdempotencyInFlight = errors.New("a request with this idempotency key is still in progress")

const (
	RedisIdempotencyKeyPrefix = "booking:idempotency:"

	idempotencyPending = "pending"

	// How long a claimed key may stay pending before another attempt can take over
	idempotencyPendingTTL = time.Minute
)

// releasePendingScript deletes the key only while it is still pending, so a
// completed booking's record is never dropped by a late failure path.
var releasePendingScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// IdempotencyService remembers which appointment a patient's Idempotency-Key
// produced. It stores request outcomes only, never slot availability.
type IdempotencyService struct {
	redisClient *redis.Client
	log         *logrus.Logger
	ttl         time.Duration
}

func NewIdempotencyService(redisClient *redis.Client, log *logrus.Logger, ttl time.Duration) *IdempotencyService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyService{
		redisClient: redisClient,
		log:         log,
		ttl:         ttl,
	}
}

func idempotencyKey(patientID uuid.UUID, key string) string {
	return fmt.Sprintf("%s%s:%s", RedisIdempotencyKeyPrefix, patientID, key)
}

// Begin claims key for patientID. When the key already produced an appointment,
// its ID is returned with claimed=false.
func (s *IdempotencyService) Begin(ctx context.Context, patientID uuid.UUID, key string) (existing uuid.UUID, claimed bool, err error) {
	redisKey := idempotencyKey(patientID, key)

	ok, err := s.redisClient.SetNX(ctx, redisKey, idempotencyPending, idempotencyPendingTTL).Result()
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("claim idempotency key: %w", err)
	}
	if ok {
		return uuid.Nil, true, nil
	}

	value, err := s.redisClient.Get(ctx, redisKey).Result()
	if errors.Is(err, redis.Nil) {
		// Expired between SETNX and GET; the caller may retry
		return uuid.Nil, false, ErrIdempotencyInFlight
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("read idempotency key: %w", err)
	}
	if value == idempotencyPending {
		return uuid.Nil, false, ErrIdempotencyInFlight
	}

	existing, err = uuid.Parse(value)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("corrupt idempotency record %q: %w", redisKey, err)
	}
	return existing, false, nil
}

// Complete records the appointment produced by the claimed key
func (s *IdempotencyService) Complete(ctx context.Context, patientID uuid.UUID, key string, appointmentID uuid.UUID) error {
	if err := s.redisClient.Set(ctx, idempotencyKey(patientID, key), appointmentID.String(), s.ttl).Err(); err != nil {
		return fmt.Errorf("complete idempotency key: %w", err)
	}
	return nil
}

// Release frees a claimed key after a failed attempt so the patient can retry
func (s *IdempotencyService) Release(ctx context.Context, patientID uuid.UUID, key string) error {
	if err := releasePendingScript.Run(ctx, s.redisClient, []string{idempotencyKey(patientID, key)}, idempotencyPending).Err(); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}
