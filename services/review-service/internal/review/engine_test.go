package review

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"

	"github.com/reviewloop/reviewloop/services/review-service/internal/storage"
)

type memKV struct {
	data map[string][]byte
}

func newMemKV() *memKV {
	return &memKV{data: map[string][]byte{}}
}

func (m *memKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memKV) Set(_ context.Context, key string, val []byte) error {
	m.data[key] = val
	return nil
}

func (m *memKV) KeysWithPrefix(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *memKV) GetMany(_ context.Context, keys []string) ([][]byte, error) {
	out := make([][]byte, len(keys))
	for i, k := range keys {
		if v, ok := m.data[k]; ok {
			out[i] = v
		}
	}
	return out, nil
}

func seedBusiness(t *testing.T, records *storage.Records) storage.Business {
	t.Helper()
	b := storage.Business{
		ID:            "owner@example.com",
		Email:         "owner@example.com",
		Name:          "Glow Salon",
		GMBID:         "gmb-1",
		GMBURL:        "https://g.page/glow/review",
		SMSDelayHours: 24,
		CreatedAt:     "2026-08-01T10:00:00Z",
	}
	if err := records.SetBusiness(context.Background(), b); err != nil {
		t.Fatalf("seed business: %v", err)
	}
	return b
}

func seedAppointment(t *testing.T, records *storage.Records, status string) storage.Appointment {
	t.Helper()
	a := storage.Appointment{
		ID:              "evt1",
		BusinessID:      "owner@example.com",
		CustomerPhone:   "5551234567",
		CustomerName:    "Dana",
		AppointmentTime: "2026-08-20T15:00:00Z",
		Status:          status,
		CreatedAt:       "2026-08-01T10:00:00Z",
	}
	if err := records.SetAppointment(context.Background(), a); err != nil {
		t.Fatalf("seed appointment: %v", err)
	}
	return a
}

func TestSubmitFiveStarRedirects(t *testing.T) {
	ctx := context.Background()
	records := storage.NewRecords(newMemKV())
	b := seedBusiness(t, records)
	seedAppointment(t, records, storage.StatusSMSSent)
	engine := NewEngine(records)

	res, err := engine.Submit(ctx, b.ID, "evt1", 5, "ignored feedback")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if res.Action != storage.ActionGoogleReview {
		t.Fatalf("expected google_review, got %s", res.Action)
	}
	if res.RedirectURL != b.GMBURL {
		t.Fatalf("expected redirect to %s, got %s", b.GMBURL, res.RedirectURL)
	}
	if res.PromoCode != "" {
		t.Fatal("five-star result must not carry a promo code")
	}

	rv, err := records.GetReview(ctx, b.ID, "evt1")
	if err != nil {
		t.Fatalf("review not stored: %v", err)
	}
	if rv.Feedback != "" {
		t.Fatalf("five-star feedback must not be stored, got %q", rv.Feedback)
	}
	if rv.Rating != 5 || rv.Action != storage.ActionGoogleReview {
		t.Fatalf("unexpected review record: %+v", rv)
	}
}

func TestSubmitLowRatingsIssuePromo(t *testing.T) {
	for rating := 1; rating <= 4; rating++ {
		ctx := context.Background()
		records := storage.NewRecords(newMemKV())
		b := seedBusiness(t, records)
		seedAppointment(t, records, storage.StatusSMSSent)
		engine := NewEngine(records)

		res, err := engine.Submit(ctx, b.ID, "evt1", rating, "too slow")
		if err != nil {
			t.Fatalf("Submit(%d) failed: %v", rating, err)
		}
		if res.Action != storage.ActionPromoCode {
			t.Fatalf("rating %d: expected promo_code, got %s", rating, res.Action)
		}
		if !strings.HasPrefix(res.PromoCode, "COMEBACK") || len(res.PromoCode) != len("COMEBACK")+4 {
			t.Fatalf("rating %d: unexpected promo code %q", rating, res.PromoCode)
		}
		if res.Discount != "20% off" {
			t.Fatalf("rating %d: unexpected discount %q", rating, res.Discount)
		}

		rv, err := records.GetReview(ctx, b.ID, "evt1")
		if err != nil {
			t.Fatalf("rating %d: review not stored: %v", rating, err)
		}
		if rv.Feedback != "too slow" {
			t.Fatalf("rating %d: feedback not stored verbatim, got %q", rating, rv.Feedback)
		}
	}
}

func TestSubmitAdvancesAppointment(t *testing.T) {
	ctx := context.Background()
	records := storage.NewRecords(newMemKV())
	b := seedBusiness(t, records)
	seedAppointment(t, records, storage.StatusPending)
	engine := NewEngine(records)

	if _, err := engine.Submit(ctx, b.ID, "evt1", 3, ""); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	appt, err := records.GetAppointment(ctx, b.ID, "evt1")
	if err != nil {
		t.Fatalf("GetAppointment failed: %v", err)
	}
	if appt.Status != storage.StatusResponded {
		t.Fatalf("expected responded, got %s", appt.Status)
	}

	// Re-submission rewrites the same terminal state.
	if _, err := engine.Submit(ctx, b.ID, "evt1", 5, ""); err != nil {
		t.Fatalf("second Submit failed: %v", err)
	}
	appt, err = records.GetAppointment(ctx, b.ID, "evt1")
	if err != nil {
		t.Fatalf("GetAppointment failed: %v", err)
	}
	if appt.Status != storage.StatusResponded {
		t.Fatalf("expected responded after re-submit, got %s", appt.Status)
	}
}

func TestSubmitWithoutAppointmentStillRecords(t *testing.T) {
	ctx := context.Background()
	records := storage.NewRecords(newMemKV())
	b := seedBusiness(t, records)
	engine := NewEngine(records)

	if _, err := engine.Submit(ctx, b.ID, "unknown-evt", 2, "meh"); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if _, err := records.GetReview(ctx, b.ID, "unknown-evt"); err != nil {
		t.Fatalf("review not stored: %v", err)
	}
}

func TestSubmitRejectsOutOfRangeRatings(t *testing.T) {
	ctx := context.Background()
	records := storage.NewRecords(newMemKV())
	b := seedBusiness(t, records)
	engine := NewEngine(records)

	for _, rating := range []int{0, 6, -1} {
		if _, err := engine.Submit(ctx, b.ID, "evt1", rating, ""); !errors.Is(err, ErrInvalidRating) {
			t.Fatalf("rating %d: expected ErrInvalidRating, got %v", rating, err)
		}
		if _, err := records.GetReview(ctx, b.ID, "evt1"); !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("rating %d: rejected submission must not write", rating)
		}
	}
}

func TestSubmitUnknownBusiness(t *testing.T) {
	ctx := context.Background()
	records := storage.NewRecords(newMemKV())
	engine := NewEngine(records)

	if _, err := engine.Submit(ctx, "ghost@example.com", "evt1", 5, ""); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := records.GetReview(ctx, "ghost@example.com", "evt1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatal("failed submission must not write a review")
	}
}
