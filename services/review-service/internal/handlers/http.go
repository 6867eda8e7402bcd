package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/reviewloop/reviewloop/libs/kvs"
	"github.com/reviewloop/reviewloop/services/review-service/internal/business"
	"github.com/reviewloop/reviewloop/services/review-service/internal/calendar"
	"github.com/reviewloop/reviewloop/services/review-service/internal/review"
	"github.com/reviewloop/reviewloop/services/review-service/internal/stats"
	"github.com/reviewloop/reviewloop/services/review-service/internal/storage"
)

// OwnerHeader carries the authenticated owner's email, set by the session
// middleware after token verification. Handlers never trust it raw off the
// wire; the middleware strips any inbound value first.
const OwnerHeader = "X-Owner-Email"

type Handler struct {
	business *business.Manager
	importer *calendar.Importer
	engine   *review.Engine
	stats    *stats.Aggregator
	records  *storage.Records
	logger   *slog.Logger
}

func New(mgr *business.Manager, importer *calendar.Importer, engine *review.Engine, agg *stats.Aggregator, records *storage.Records, logger *slog.Logger) *Handler {
	return &Handler{
		business: mgr,
		importer: importer,
		engine:   engine,
		stats:    agg,
		records:  records,
		logger:   logger,
	}
}

func ownerFromHeader(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(OwnerHeader))
}

func (h *Handler) SetupBusiness(w http.ResponseWriter, r *http.Request) {
	ownerID := ownerFromHeader(r)
	if ownerID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req struct {
		Name          string `json:"name"`
		GMBID         string `json:"gmb_id"`
		GMBURL        string `json:"gmb_url"`
		SMSDelayHours int    `json:"sms_delay_hours"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	b, err := h.business.CreateOrReplace(r.Context(), ownerID, business.SetupInput{
		Name:          req.Name,
		GMBID:         req.GMBID,
		GMBURL:        req.GMBURL,
		SMSDelayHours: req.SMSDelayHours,
	})
	if err != nil {
		if errors.Is(err, business.ErrMissingField) || errors.Is(err, business.ErrInvalidDelay) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.internalError(w, r, "business setup failed", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"business": b,
	})
}

func (h *Handler) GetBusiness(w http.ResponseWriter, r *http.Request) {
	ownerID := ownerFromHeader(r)
	if ownerID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	b, err := h.business.Get(r.Context(), ownerID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "business not found")
			return
		}
		h.internalError(w, r, "business fetch failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"business": b,
	})
}

func (h *Handler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	ownerID := ownerFromHeader(r)
	if ownerID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	appts, err := h.records.ListAppointments(r.Context(), ownerID)
	if err != nil {
		h.internalError(w, r, "appointment list failed", err)
		return
	}
	if appts == nil {
		appts = []storage.Appointment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"appointments": appts,
	})
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ownerID := ownerFromHeader(r)
	if ownerID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	s, err := h.stats.Compute(r.Context(), ownerID)
	if err != nil {
		h.internalError(w, r, "stats computation failed", err)
		return
	}
	if s.Skipped > 0 {
		h.logger.Warn("skipped malformed review records", "business_id", ownerID, "skipped", s.Skipped)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"stats":   s,
	})
}

func (h *Handler) SyncCalendar(w http.ResponseWriter, r *http.Request) {
	ownerID := ownerFromHeader(r)
	if ownerID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if strings.TrimSpace(req.AccessToken) == "" {
		writeError(w, http.StatusBadRequest, "no access token provided")
		return
	}

	appts, err := h.importer.ImportUpcoming(r.Context(), ownerID, req.AccessToken)
	if err != nil {
		if errors.Is(err, calendar.ErrUnauthorized) || errors.Is(err, calendar.ErrProvider) {
			h.logger.Error("calendar provider call failed", "business_id", ownerID, "err", err)
			writeError(w, http.StatusBadGateway, "failed to fetch calendar events")
			return
		}
		h.internalError(w, r, "calendar sync failed", err)
		return
	}
	if appts == nil {
		appts = []storage.Appointment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":             true,
		"appointments_synced": len(appts),
		"appointments":        appts,
	})
}

// SubmitReview is the one public endpoint; customers reach it from the
// review page link in their SMS, so there is no session to check.
func (h *Handler) SubmitReview(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BusinessID    string `json:"business_id"`
		AppointmentID string `json:"appointment_id"`
		Rating        int    `json:"rating"`
		Feedback      string `json:"feedback"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if strings.TrimSpace(req.BusinessID) == "" || strings.TrimSpace(req.AppointmentID) == "" {
		writeError(w, http.StatusBadRequest, "missing required fields")
		return
	}

	res, err := h.engine.Submit(r.Context(), req.BusinessID, req.AppointmentID, req.Rating, req.Feedback)
	if err != nil {
		switch {
		case errors.Is(err, review.ErrInvalidRating):
			writeError(w, http.StatusBadRequest, "invalid rating")
		case errors.Is(err, storage.ErrNotFound):
			writeError(w, http.StatusNotFound, "business not found")
		default:
			h.internalError(w, r, "review submission failed", err)
		}
		return
	}

	body := map[string]any{
		"success": true,
		"action":  res.Action,
	}
	if res.Action == storage.ActionGoogleReview {
		body["redirect_url"] = res.RedirectURL
	} else {
		body["promo_code"] = res.PromoCode
		body["discount"] = res.Discount
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if errors.Is(err, kvs.ErrUnavailable) {
		h.logger.Error(msg, "path", r.URL.Path, "err", err)
	} else {
		h.logger.Error("unexpected error: "+msg, "path", r.URL.Path, "err", err)
	}
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}
