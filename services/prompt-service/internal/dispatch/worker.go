package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/reviewloop/reviewloop/services/prompt-service/internal/sms"
	"github.com/reviewloop/reviewloop/services/prompt-service/internal/storage"
)

type Worker struct {
	store    *storage.Store
	sender   sms.Sender
	logger   *slog.Logger
	interval time.Duration
	linkBase string
	now      func() time.Time
}

type WorkerConfig struct {
	Interval time.Duration
	// LinkBase is the public review-page origin, e.g. https://app.example.com.
	LinkBase string
	Now      func() time.Time
}

func NewWorker(store *storage.Store, sender sms.Sender, logger *slog.Logger, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Worker{
		store:    store,
		sender:   sender,
		logger:   logger,
		interval: cfg.Interval,
		linkBase: cfg.LinkBase,
		now:      cfg.Now,
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.ProcessDue(ctx); err != nil {
				w.logger.Error("prompt dispatch batch failed", "err", err)
			}
		}
	}
}

// ProcessDue walks every stored prompt job once. A job is due when the
// appointment time plus the business's configured SMS delay has passed.
// Send failures keep the job for the next tick; everything else resolves
// the job one way or another so the scan stays small.
func (w *Worker) ProcessDue(ctx context.Context) error {
	jobs, err := w.store.ListJobs(ctx)
	if err != nil {
		return err
	}

	now := w.now()
	for _, job := range jobs {
		if err := w.processJob(ctx, job, now); err != nil {
			w.logger.Warn("prompt send failed, will retry",
				"business_id", job.BusinessID,
				"appointment_id", job.AppointmentID,
				"err", err,
			)
		}
	}
	return nil
}

func (w *Worker) processJob(ctx context.Context, job storage.PromptJob, now time.Time) error {
	apptTime, ok := parseAppointmentTime(job.AppointmentTime)
	if !ok {
		w.logger.Warn("prompt job has unparseable appointment time, dropping",
			"business_id", job.BusinessID, "appointment_id", job.AppointmentID)
		return w.store.DeleteJob(ctx, job.BusinessID, job.AppointmentID)
	}

	biz, err := w.store.GetBusiness(ctx, job.BusinessID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrBadRecord) {
			return w.store.DeleteJob(ctx, job.BusinessID, job.AppointmentID)
		}
		return err
	}

	due := apptTime.Add(time.Duration(biz.SMSDelayHours) * time.Hour)
	if now.Before(due) {
		return nil
	}

	appt, err := w.store.GetAppointment(ctx, job.BusinessID, job.AppointmentID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrBadRecord) {
			return w.store.DeleteJob(ctx, job.BusinessID, job.AppointmentID)
		}
		return err
	}
	if appt.Status != storage.StatusPending {
		// Already prompted, or the customer responded first.
		return w.store.DeleteJob(ctx, job.BusinessID, job.AppointmentID)
	}

	body := promptBody(job, biz, w.linkBase)
	if err := w.sender.Send(ctx, job.CustomerPhone, body); err != nil {
		return err
	}

	appt.Status = storage.StatusSMSSent
	appt.SMSSentAt = now.UTC().Format(time.RFC3339)
	if err := w.store.SetAppointment(ctx, appt); err != nil {
		return err
	}

	w.logger.Info("review prompt sent",
		"business_id", job.BusinessID,
		"appointment_id", job.AppointmentID,
		"provider", w.sender.ProviderID(),
	)
	return w.store.DeleteJob(ctx, job.BusinessID, job.AppointmentID)
}

func promptBody(job storage.PromptJob, biz storage.Business, linkBase string) string {
	name := job.CustomerName
	if name == "" {
		name = "Customer"
	}
	link := fmt.Sprintf("%s/review/%s/%s", linkBase, job.BusinessID, job.AppointmentID)
	return fmt.Sprintf("Hi %s! How was your appointment with %s? Rate your visit: %s", name, biz.Name, link)
}

func parseAppointmentTime(raw string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, true
	}
	// Date-only starts come from all-day events.
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, true
	}
	return time.Time{}, false
}
