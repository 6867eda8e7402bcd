package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	"github.com/reviewloop/reviewloop/services/review-service/internal/business"
	"github.com/reviewloop/reviewloop/services/review-service/internal/calendar"
	"github.com/reviewloop/reviewloop/services/review-service/internal/review"
	"github.com/reviewloop/reviewloop/services/review-service/internal/stats"
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

func newTestHandler() (*Handler, *storage.Records) {
	records := storage.NewRecords(newMemKV())
	logger := slog.Default()
	return New(
		business.NewManager(records),
		calendar.NewImporter(records, calendar.NewClient("http://127.0.0.1:1"), nil, logger),
		review.NewEngine(records),
		stats.NewAggregator(records),
		records,
		logger,
	), records
}

func seedBusiness(t *testing.T, records *storage.Records) {
	t.Helper()
	err := records.SetBusiness(context.Background(), storage.Business{
		ID: "owner@example.com", Email: "owner@example.com", Name: "Glow Salon",
		GMBID: "gmb-1", GMBURL: "https://g.page/glow/review", SMSDelayHours: 24,
		CreatedAt: "2026-08-01T10:00:00Z",
	})
	if err != nil {
		t.Fatalf("seed business: %v", err)
	}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid response json: %v", err)
	}
	return body
}

func TestSetupBusiness(t *testing.T) {
	h, records := newTestHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/business",
		strings.NewReader(`{"name":"Glow Salon","gmb_id":"gmb-1","gmb_url":"https://g.page/glow/review"}`))
	req.Header.Set(OwnerHeader, "owner@example.com")
	rec := httptest.NewRecorder()
	h.SetupBusiness(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	b, err := records.GetBusiness(context.Background(), "owner@example.com")
	if err != nil {
		t.Fatalf("business not stored: %v", err)
	}
	if b.SMSDelayHours != 24 {
		t.Fatalf("default delay not applied: %d", b.SMSDelayHours)
	}
}

func TestSetupBusinessValidation(t *testing.T) {
	h, _ := newTestHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/business",
		strings.NewReader(`{"name":"","gmb_id":"gmb-1","gmb_url":"u"}`))
	req.Header.Set(OwnerHeader, "owner@example.com")
	rec := httptest.NewRecorder()
	h.SetupBusiness(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSetupBusinessUnauthorized(t *testing.T) {
	h, _ := newTestHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/business", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.SetupBusiness(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestGetBusinessNotFound(t *testing.T) {
	h, _ := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/business", nil)
	req.Header.Set(OwnerHeader, "owner@example.com")
	rec := httptest.NewRecorder()
	h.GetBusiness(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestSubmitReviewFiveStar(t *testing.T) {
	h, records := newTestHandler()
	seedBusiness(t, records)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/review/submit",
		strings.NewReader(`{"business_id":"owner@example.com","appointment_id":"evt1","rating":5}`))
	rec := httptest.NewRecorder()
	h.SubmitReview(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["action"] != "google_review" {
		t.Fatalf("expected google_review, got %v", body["action"])
	}
	if body["redirect_url"] != "https://g.page/glow/review" {
		t.Fatalf("unexpected redirect_url: %v", body["redirect_url"])
	}
	if _, ok := body["promo_code"]; ok {
		t.Fatal("five-star response must not include promo_code")
	}
}

func TestSubmitReviewLowRating(t *testing.T) {
	h, records := newTestHandler()
	seedBusiness(t, records)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/review/submit",
		strings.NewReader(`{"business_id":"owner@example.com","appointment_id":"evt1","rating":2,"feedback":"slow service"}`))
	rec := httptest.NewRecorder()
	h.SubmitReview(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["action"] != "promo_code" {
		t.Fatalf("expected promo_code, got %v", body["action"])
	}
	code, _ := body["promo_code"].(string)
	if !strings.HasPrefix(code, "COMEBACK") {
		t.Fatalf("unexpected promo code %q", code)
	}
	if body["discount"] != "20% off" {
		t.Fatalf("unexpected discount %v", body["discount"])
	}

	rv, err := records.GetReview(context.Background(), "owner@example.com", "evt1")
	if err != nil {
		t.Fatalf("review not stored: %v", err)
	}
	if rv.Feedback != "slow service" {
		t.Fatalf("feedback not stored verbatim: %q", rv.Feedback)
	}
}

func TestSubmitReviewInvalidRating(t *testing.T) {
	h, records := newTestHandler()
	seedBusiness(t, records)

	for _, rating := range []string{"0", "6"} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/review/submit",
			strings.NewReader(`{"business_id":"owner@example.com","appointment_id":"evt1","rating":`+rating+`}`))
		rec := httptest.NewRecorder()
		h.SubmitReview(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("rating %s: expected 400, got %d", rating, rec.Code)
		}
	}
}

func TestSubmitReviewUnknownBusiness(t *testing.T) {
	h, _ := newTestHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/review/submit",
		strings.NewReader(`{"business_id":"ghost@example.com","appointment_id":"evt1","rating":5}`))
	rec := httptest.NewRecorder()
	h.SubmitReview(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestSubmitReviewMissingFields(t *testing.T) {
	h, _ := newTestHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/review/submit",
		strings.NewReader(`{"rating":5}`))
	rec := httptest.NewRecorder()
	h.SubmitReview(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGetStats(t *testing.T) {
	h, records := newTestHandler()
	seedBusiness(t, records)
	ctx := context.Background()
	for i, rating := range []int{5, 5, 3, 1} {
		action := storage.ActionPromoCode
		if rating == 5 {
			action = storage.ActionGoogleReview
		}
		err := records.SetReview(ctx, storage.ReviewResponse{
			ID:            "owner@example.com:e" + string(rune('0'+i)),
			AppointmentID: "e" + string(rune('0'+i)),
			BusinessID:    "owner@example.com",
			Rating:        rating,
			Action:        action,
			CreatedAt:     "2026-08-01T10:00:00Z",
		})
		if err != nil {
			t.Fatalf("seed review: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/business/stats", nil)
	req.Header.Set(OwnerHeader, "owner@example.com")
	rec := httptest.NewRecorder()
	h.GetStats(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	s, _ := body["stats"].(map[string]any)
	if s["total"] != float64(4) || s["fiveStar"] != float64(2) || s["fourStarOrBelow"] != float64(2) || s["conversionRate"] != float64(50) {
		t.Fatalf("unexpected stats: %v", s)
	}
}
