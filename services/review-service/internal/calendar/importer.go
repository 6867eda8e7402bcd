package calendar

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/reviewloop/reviewloop/services/review-service/internal/prompts"
	"github.com/reviewloop/reviewloop/services/review-service/internal/storage"
)

// PromptPublisher schedules the post-appointment SMS prompt for an imported
// appointment. Satisfied by *prompts.Publisher.
type PromptPublisher interface {
	PublishScheduled(ctx context.Context, p prompts.Prompt) error
}

type Importer struct {
	records *storage.Records
	client  *Client
	prompts PromptPublisher
	logger  *slog.Logger
}

// NewImporter wires the import pipeline. publisher may be nil; import then
// runs without prompt scheduling.
func NewImporter(records *storage.Records, client *Client, publisher PromptPublisher, logger *slog.Logger) *Importer {
	return &Importer{records: records, client: client, prompts: publisher, logger: logger}
}

// ImportUpcoming fetches upcoming provider events and persists the ones that
// look like customer appointments: at least one attendee and an extractable
// phone number. Re-importing an event id overwrites the prior record. On
// success the owner's business record is flagged calendar-connected.
func (im *Importer) ImportUpcoming(ctx context.Context, ownerID, accessToken string) ([]storage.Appointment, error) {
	events, err := im.client.FetchUpcoming(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	var synced []storage.Appointment
	for _, ev := range events {
		if len(ev.Attendees) == 0 {
			continue
		}
		phone := ExtractPhone(ev.Description, ev.Summary)
		if phone == "" {
			continue
		}

		start := ev.Start.DateTime
		if start == "" {
			start = ev.Start.Date
		}

		appt := storage.Appointment{
			ID:              ev.ID,
			BusinessID:      ownerID,
			CustomerPhone:   phone,
			CustomerName:    CustomerName(ev.Attendees[0]),
			AppointmentTime: start,
			Status:          storage.StatusPending,
			CreatedAt:       storage.Timestamp(time.Now()),
		}
		if err := im.records.SetAppointment(ctx, appt); err != nil {
			return nil, err
		}
		synced = append(synced, appt)
	}

	if err := im.markConnected(ctx, ownerID); err != nil {
		return nil, err
	}

	im.schedulePrompts(ctx, synced)
	return synced, nil
}

func (im *Importer) markConnected(ctx context.Context, ownerID string) error {
	b, err := im.records.GetBusiness(ctx, ownerID)
	if err != nil {
		// Import can run before setup completes; syncing still succeeds.
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	}
	if b.CalendarConnected {
		return nil
	}
	b.CalendarConnected = true
	return im.records.SetBusiness(ctx, b)
}

// schedulePrompts is best-effort: a broker outage must not fail the sync,
// the appointments are already persisted and a re-sync reschedules them.
func (im *Importer) schedulePrompts(ctx context.Context, synced []storage.Appointment) {
	if im.prompts == nil {
		return
	}
	for _, appt := range synced {
		err := im.prompts.PublishScheduled(ctx, prompts.Prompt{
			BusinessID:      appt.BusinessID,
			AppointmentID:   appt.ID,
			CustomerPhone:   appt.CustomerPhone,
			CustomerName:    appt.CustomerName,
			AppointmentTime: appt.AppointmentTime,
		})
		if err != nil && im.logger != nil {
			im.logger.Warn("prompt scheduling failed",
				"business_id", appt.BusinessID,
				"appointment_id", appt.ID,
				"err", err,
			)
		}
	}
}
