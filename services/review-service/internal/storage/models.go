package storage

import (
	"errors"
	"time"
)

const (
	StatusPending   = "pending"
	StatusSMSSent   = "sms_sent"
	StatusResponded = "responded"

	ActionGoogleReview = "google_review"
	ActionPromoCode    = "promo_code"
)

// Business is a configured business profile. The owner's account email is
// both the record id and the email field.
type Business struct {
	ID                string `json:"id"`
	Email             string `json:"email"`
	Name              string `json:"name"`
	GMBID             string `json:"gmbId"`
	GMBURL            string `json:"gmbUrl"`
	CalendarConnected bool   `json:"calendarConnected"`
	SMSDelayHours     int    `json:"smsDelayHours"`
	CreatedAt         string `json:"createdAt"`
}

func (b Business) validate() error {
	if b.ID == "" || b.Name == "" || b.GMBID == "" || b.GMBURL == "" {
		return errors.New("missing required field")
	}
	if b.SMSDelayHours < 0 {
		return errors.New("negative sms delay")
	}
	return nil
}

// Appointment is one imported calendar event. The id is the provider's
// event id; an appointment exists only if a phone number was extracted.
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

func (a Appointment) validate() error {
	if a.ID == "" || a.BusinessID == "" || a.CustomerPhone == "" {
		return errors.New("missing required field")
	}
	switch a.Status {
	case StatusPending, StatusSMSSent, StatusResponded:
	default:
		return errors.New("unknown status " + a.Status)
	}
	return nil
}

// ReviewResponse is the immutable outcome of one review submission.
// Feedback is present only for ratings of four or below.
type ReviewResponse struct {
	ID            string `json:"id"`
	AppointmentID string `json:"appointmentId"`
	BusinessID    string `json:"businessId"`
	Rating        int    `json:"rating"`
	Feedback      string `json:"feedback,omitempty"`
	Action        string `json:"action"`
	CreatedAt     string `json:"createdAt"`
}

func (rv ReviewResponse) validate() error {
	if rv.AppointmentID == "" || rv.BusinessID == "" {
		return errors.New("missing required field")
	}
	if rv.Rating < 1 || rv.Rating > 5 {
		return errors.New("rating out of range")
	}
	switch rv.Action {
	case ActionGoogleReview, ActionPromoCode:
	default:
		return errors.New("unknown action " + rv.Action)
	}
	return nil
}

// Timestamp renders the ISO-8601 instant stored on records.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
