package review

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/reviewloop/reviewloop/services/review-service/internal/storage"
)

var ErrInvalidRating = errors.New("rating must be between 1 and 5")

const promoDiscount = "20% off"

type Engine struct {
	records *storage.Records
}

func NewEngine(records *storage.Records) *Engine {
	return &Engine{records: records}
}

// Result is what the review page renders: either a redirect to the public
// review destination or a synthesized promo code.
type Result struct {
	Action      string
	RedirectURL string
	PromoCode   string
	Discount    string
}

// Submit routes a customer rating. Five stars redirects to the business's
// public review page; anything lower gets a promo code and, if supplied, the
// feedback is kept privately. The matching appointment, when present, is
// advanced to responded.
func (e *Engine) Submit(ctx context.Context, businessID, appointmentID string, rating int, feedback string) (Result, error) {
	if rating < 1 || rating > 5 {
		return Result{}, ErrInvalidRating
	}

	b, err := e.records.GetBusiness(ctx, businessID)
	if err != nil {
		return Result{}, err
	}

	action := storage.ActionPromoCode
	if rating == 5 {
		action = storage.ActionGoogleReview
	}

	rv := storage.ReviewResponse{
		ID:            businessID + ":" + appointmentID,
		AppointmentID: appointmentID,
		BusinessID:    businessID,
		Rating:        rating,
		Action:        action,
		CreatedAt:     storage.Timestamp(time.Now()),
	}
	// Public 5-star raters need no remediation trail.
	if rating <= 4 {
		rv.Feedback = feedback
	}
	if err := e.records.SetReview(ctx, rv); err != nil {
		return Result{}, err
	}

	// Best-effort status advance; the review record is already the source of
	// truth, and re-submission simply rewrites responded.
	appt, err := e.records.GetAppointment(ctx, businessID, appointmentID)
	if err == nil {
		appt.Status = storage.StatusResponded
		if err := e.records.SetAppointment(ctx, appt); err != nil {
			return Result{}, err
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		return Result{}, err
	}

	if action == storage.ActionGoogleReview {
		return Result{Action: action, RedirectURL: b.GMBURL}, nil
	}
	return Result{
		Action: action,
		// Codes are not persisted; duplicates are tolerated until a
		// redemption ledger exists.
		PromoCode: fmt.Sprintf("COMEBACK%d", 1000+rand.IntN(9000)),
		Discount:  promoDiscount,
	}, nil
}
