package usecase

import "errors"

var (
	ErrInvalidInput           = errors.New("invalid input")
	ErrDoctorNotFound         = errors.New("doctor not found")
	ErrSlotUnavailable        = errors.New("time slot is not available")
	ErrNotFoundOrAlreadyFinal = errors.New("appointment not found or already cancelled or completed")
	ErrUnavailable            = errors.New("scheduling is temporarily unavailable")
)

// Kind is the stable error classification shown to API clients
type Kind string

const (
	KindInvalidInput           Kind = "invalid_input"
	KindDoctorNotFound         Kind = "doctor_not_found"
	KindSlotUnavailable        Kind = "slot_unavailable"
	KindNotFoundOrAlreadyFinal Kind = "not_found_or_already_final"
	KindUnavailable            Kind = "unavailable"
	KindInternal               Kind = "internal"
)

func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrDoctorNotFound):
		return KindDoctorNotFound
	case errors.Is(err, ErrSlotUnavailable):
		return KindSlotUnavailable
	case errors.Is(err, ErrNotFoundOrAlreadyFinal):
		return KindNotFoundOrAlreadyFinal
	case errors.Is(err, ErrUnavailable):
		return KindUnavailable
	default:
		return KindInternal
	}
}
