package consumer

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/reviewloop/reviewloop/libs/kafkax"
	"github.com/reviewloop/reviewloop/services/prompt-service/internal/storage"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// promptEvent mirrors the payload review-service publishes on
// review-prompts.scheduled.
type promptEvent struct {
	BusinessID      string `json:"businessId"`
	AppointmentID   string `json:"appointmentId"`
	CustomerPhone   string `json:"customerPhone"`
	CustomerName    string `json:"customerName"`
	AppointmentTime string `json:"appointmentTime"`
}

type Consumer struct {
	reader *kafka.Reader
	store  *storage.Store
	logger *slog.Logger
}

type Config struct {
	Brokers string
	GroupID string
	Topic   string
}

func New(logger *slog.Logger, store *storage.Store, cfg Config) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  kafkax.SplitBrokers(cfg.Brokers),
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Consumer{
		reader: reader,
		store:  store,
		logger: logger,
	}
}

// Run consumes scheduled prompts into the job store until ctx is canceled.
// Duplicate deliveries are harmless: jobs are keyed by appointment and
// overwritten in place.
func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			time.Sleep(1 * time.Second)
			continue
		}

		ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
		ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
			trace.WithAttributes(
				attribute.String("messaging.system", "kafka"),
				attribute.String("messaging.destination", msg.Topic),
			),
		)

		meta := kafkax.ExtractEventMeta(msg)

		var ev promptEvent
		if err := json.Unmarshal(msg.Value, &ev); err != nil || ev.BusinessID == "" || ev.AppointmentID == "" || ev.CustomerPhone == "" {
			c.logger.Warn("malformed prompt event skipped", "event_id", meta.EventID, "err", err)
			span.End()
			continue
		}

		job := storage.PromptJob{
			BusinessID:      ev.BusinessID,
			AppointmentID:   ev.AppointmentID,
			CustomerPhone:   ev.CustomerPhone,
			CustomerName:    ev.CustomerName,
			AppointmentTime: ev.AppointmentTime,
			CreatedAt:       time.Now().UTC().Format(time.RFC3339),
		}
		if err := c.store.PutJob(ctxSpan, job); err != nil {
			c.logger.Error("prompt job store failed", "event_id", meta.EventID, "err", err)
			span.RecordError(err)
			span.End()
			continue
		}
		span.End()
	}
}
