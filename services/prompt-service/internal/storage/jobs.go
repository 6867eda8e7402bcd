package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrBadRecord = errors.New("malformed record")
)

const (
	StatusPending   = "pending"
	StatusSMSSent   = "sms_sent"
	StatusResponded = "responded"
)

// KV is the slice of the store client this service needs. Satisfied by
// *kvs.Client; tests substitute an in-memory map.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte) error
	Delete(ctx context.Context, key string) error
	KeysWithPrefix(ctx context.Context, prefix string) ([]string, error)
	GetMany(ctx context.Context, keys []string) ([][]byte, error)
}

// PromptJob is a scheduled review prompt waiting for its send window. Jobs
// live under prompt:<businessId>:<appointmentId>; re-consuming the same
// appointment overwrites the job in place.
type PromptJob struct {
	BusinessID      string `json:"businessId"`
	AppointmentID   string `json:"appointmentId"`
	CustomerPhone   string `json:"customerPhone"`
	CustomerName    string `json:"customerName,omitempty"`
	AppointmentTime string `json:"appointmentTime"`
	CreatedAt       string `json:"createdAt"`
}

// Appointment mirrors the record review-service writes; the dispatcher
// rewrites the whole value, so every field is carried.
type Appointment struct {
	ID              string `json:"id"`
	BusinessID      string `json:"businessId"`
	CustomerPhone   string `json:"customerPhone"`
	CustomerName    string `json:"customerName,omitempty"`
	AppointmentTime string `json:"appointmentTime"`
	Status          string `json:"status"`
	SMSSentAt       string `json:"smsSentAt,omitempty"`
	CreatedAt       string `json:"createdAt"`
}

// Business carries the fields the dispatcher reads. It is never written
// from this service.
type Business struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	SMSDelayHours int    `json:"smsDelayHours"`
}

type Store struct {
	kv KV
}

func NewStore(kv KV) *Store {
	return &Store{kv: kv}
}

func JobKey(businessID, appointmentID string) string {
	return "prompt:" + businessID + ":" + appointmentID
}

const jobPrefix = "prompt:"

func (s *Store) PutJob(ctx context.Context, job PromptJob) error {
	if job.BusinessID == "" || job.AppointmentID == "" || job.CustomerPhone == "" {
		return fmt.Errorf("%w: prompt job missing required field", ErrBadRecord)
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, JobKey(job.BusinessID, job.AppointmentID), raw)
}

func (s *Store) ListJobs(ctx context.Context) ([]PromptJob, error) {
	keys, err := s.kv.KeysWithPrefix(ctx, jobPrefix)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}
	vals, err := s.kv.GetMany(ctx, keys)
	if err != nil {
		return nil, err
	}
	var out []PromptJob
	for _, raw := range vals {
		if raw == nil {
			continue
		}
		var job PromptJob
		if err := json.Unmarshal(raw, &job); err != nil || job.BusinessID == "" || job.AppointmentID == "" {
			continue
		}
		out = append(out, job)
	}
	return out, nil
}

func (s *Store) DeleteJob(ctx context.Context, businessID, appointmentID string) error {
	return s.kv.Delete(ctx, JobKey(businessID, appointmentID))
}

func (s *Store) GetBusiness(ctx context.Context, businessID string) (Business, error) {
	raw, found, err := s.kv.Get(ctx, "business:"+businessID)
	if err != nil {
		return Business{}, err
	}
	if !found {
		return Business{}, fmt.Errorf("%w: business %s", ErrNotFound, businessID)
	}
	var b Business
	if err := json.Unmarshal(raw, &b); err != nil {
		return Business{}, fmt.Errorf("%w: business: %v", ErrBadRecord, err)
	}
	return b, nil
}

func (s *Store) GetAppointment(ctx context.Context, businessID, appointmentID string) (Appointment, error) {
	raw, found, err := s.kv.Get(ctx, "appointment:"+businessID+":"+appointmentID)
	if err != nil {
		return Appointment{}, err
	}
	if !found {
		return Appointment{}, fmt.Errorf("%w: appointment %s:%s", ErrNotFound, businessID, appointmentID)
	}
	var a Appointment
	if err := json.Unmarshal(raw, &a); err != nil || a.ID == "" {
		return Appointment{}, fmt.Errorf("%w: appointment", ErrBadRecord)
	}
	return a, nil
}

func (s *Store) SetAppointment(ctx context.Context, a Appointment) error {
	if a.ID == "" || a.BusinessID == "" {
		return fmt.Errorf("%w: appointment missing required field", ErrBadRecord)
	}
	switch a.Status {
	case StatusPending, StatusSMSSent, StatusResponded:
	default:
		return fmt.Errorf("%w: unknown status %s", ErrBadRecord, a.Status)
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, "appointment:"+a.BusinessID+":"+a.ID, raw)
}
