package prompts

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/reviewloop/reviewloop/libs/kafkax"
	"github.com/segmentio/kafka-go"
)

// Topic carries one message per appointment whose review prompt should be
// dispatched after the business's SMS delay.
const Topic = "review-prompts.scheduled"

// Prompt is the scheduled-prompt event payload. The due time is not carried
// here; the dispatcher recomputes it from the live business record so a
// settings change before dispatch takes effect.
type Prompt struct {
	BusinessID      string `json:"businessId"`
	AppointmentID   string `json:"appointmentId"`
	CustomerPhone   string `json:"customerPhone"`
	CustomerName    string `json:"customerName,omitempty"`
	AppointmentTime string `json:"appointmentTime"`
}

type Publisher struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewPublisher returns nil when no brokers are configured; callers treat a
// nil publisher as disabled and calendar import proceeds without prompts.
func NewPublisher(brokers string, logger *slog.Logger) *Publisher {
	list := kafkax.SplitBrokers(brokers)
	if len(list) == 0 {
		return nil
	}
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:  list,
		Topic:    Topic,
		Balancer: &kafka.Hash{},
	})
	return &Publisher{writer: writer, logger: logger}
}

func (p *Publisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

func (p *Publisher) PublishScheduled(ctx context.Context, prompt Prompt) error {
	payload, err := json.Marshal(prompt)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(prompt.BusinessID + ":" + prompt.AppointmentID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(uuid.NewString())},
			{Key: "event_type", Value: []byte(Topic)},
		},
	}
	msg.Headers = kafkax.InjectTraceHeaders(ctx, msg.Headers)
	return p.writer.WriteMessages(ctx, msg)
}
