package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrNotFound reports that a referenced record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrBadRecord reports a stored value that does not decode into the
	// expected shape. Reads fail fast rather than propagating partial data.
	ErrBadRecord = errors.New("malformed record")
)

// KV is the slice of the store client the record layer needs. Satisfied by
// *kvs.Client; tests substitute an in-memory map.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte) error
	KeysWithPrefix(ctx context.Context, prefix string) ([]string, error)
	GetMany(ctx context.Context, keys []string) ([][]byte, error)
}

// Records stores the three record kinds as whole-value JSON under
// colon-delimited composite keys:
//
//	business:<ownerId>
//	appointment:<ownerId>:<eventId>
//	review:<ownerId>:<appointmentId>
//
// Updates overwrite the full record; there is no migration path.
type Records struct {
	kv KV
}

func NewRecords(kv KV) *Records {
	return &Records{kv: kv}
}

func BusinessKey(ownerID string) string {
	return "business:" + ownerID
}

func AppointmentKey(ownerID, eventID string) string {
	return "appointment:" + ownerID + ":" + eventID
}

func AppointmentPrefix(ownerID string) string {
	return "appointment:" + ownerID + ":"
}

func ReviewKey(ownerID, appointmentID string) string {
	return "review:" + ownerID + ":" + appointmentID
}

func ReviewPrefix(ownerID string) string {
	return "review:" + ownerID + ":"
}

func (r *Records) GetBusiness(ctx context.Context, ownerID string) (Business, error) {
	raw, found, err := r.kv.Get(ctx, BusinessKey(ownerID))
	if err != nil {
		return Business{}, err
	}
	if !found {
		return Business{}, fmt.Errorf("%w: business %s", ErrNotFound, ownerID)
	}
	return decodeBusiness(raw)
}

func (r *Records) SetBusiness(ctx context.Context, b Business) error {
	if err := b.validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(b)
	if err != nil {
		return err
	}
	return r.kv.Set(ctx, BusinessKey(b.ID), raw)
}

func (r *Records) GetAppointment(ctx context.Context, ownerID, eventID string) (Appointment, error) {
	raw, found, err := r.kv.Get(ctx, AppointmentKey(ownerID, eventID))
	if err != nil {
		return Appointment{}, err
	}
	if !found {
		return Appointment{}, fmt.Errorf("%w: appointment %s:%s", ErrNotFound, ownerID, eventID)
	}
	return decodeAppointment(raw)
}

func (r *Records) SetAppointment(ctx context.Context, a Appointment) error {
	if err := a.validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return r.kv.Set(ctx, AppointmentKey(a.BusinessID, a.ID), raw)
}

func (r *Records) ListAppointments(ctx context.Context, ownerID string) ([]Appointment, error) {
	keys, err := r.kv.KeysWithPrefix(ctx, AppointmentPrefix(ownerID))
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}
	vals, err := r.kv.GetMany(ctx, keys)
	if err != nil {
		return nil, err
	}
	var out []Appointment
	for i, raw := range vals {
		if raw == nil {
			continue
		}
		a, err := decodeAppointment(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", keys[i], err)
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *Records) SetReview(ctx context.Context, rv ReviewResponse) error {
	if err := rv.validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(rv)
	if err != nil {
		return err
	}
	return r.kv.Set(ctx, ReviewKey(rv.BusinessID, rv.AppointmentID), raw)
}

func (r *Records) GetReview(ctx context.Context, ownerID, appointmentID string) (ReviewResponse, error) {
	raw, found, err := r.kv.Get(ctx, ReviewKey(ownerID, appointmentID))
	if err != nil {
		return ReviewResponse{}, err
	}
	if !found {
		return ReviewResponse{}, fmt.Errorf("%w: review %s:%s", ErrNotFound, ownerID, appointmentID)
	}
	return decodeReview(raw)
}

// ListReviews loads every review recorded for a business. Records that fail
// shape validation are skipped and reported via the returned count so an
// aggregate survives a single bad write.
func (r *Records) ListReviews(ctx context.Context, ownerID string) ([]ReviewResponse, int, error) {
	keys, err := r.kv.KeysWithPrefix(ctx, ReviewPrefix(ownerID))
	if err != nil {
		return nil, 0, err
	}
	if len(keys) == 0 {
		return nil, 0, nil
	}
	vals, err := r.kv.GetMany(ctx, keys)
	if err != nil {
		return nil, 0, err
	}
	var out []ReviewResponse
	skipped := 0
	for _, raw := range vals {
		if raw == nil {
			skipped++
			continue
		}
		rv, err := decodeReview(raw)
		if err != nil {
			skipped++
			continue
		}
		out = append(out, rv)
	}
	return out, skipped, nil
}

func decodeBusiness(raw []byte) (Business, error) {
	var b Business
	if err := json.Unmarshal(raw, &b); err != nil {
		return Business{}, fmt.Errorf("%w: business: %v", ErrBadRecord, err)
	}
	if err := b.validate(); err != nil {
		return Business{}, fmt.Errorf("%w: business: %v", ErrBadRecord, err)
	}
	return b, nil
}

func decodeAppointment(raw []byte) (Appointment, error) {
	var a Appointment
	if err := json.Unmarshal(raw, &a); err != nil {
		return Appointment{}, fmt.Errorf("%w: appointment: %v", ErrBadRecord, err)
	}
	if err := a.validate(); err != nil {
		return Appointment{}, fmt.Errorf("%w: appointment: %v", ErrBadRecord, err)
	}
	return a, nil
}

func decodeReview(raw []byte) (ReviewResponse, error) {
	var rv ReviewResponse
	if err := json.Unmarshal(raw, &rv); err != nil {
		return ReviewResponse{}, fmt.Errorf("%w: review: %v", ErrBadRecord, err)
	}
	if err := rv.validate(); err != nil {
		return ReviewResponse{}, fmt.Errorf("%w: review: %v", ErrBadRecord, err)
	}
	return rv, nil
}
