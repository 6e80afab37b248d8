package events

import (
	"context"
	"fmt"
	"net/http"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	cehttp "github.com/cloudevents/sdk-go/v2/protocol/http"

	"docxingest/internal/domain"
)

// EventType is the CloudEvents type of every pipeline event.
const EventType = "io.docxingest.pipeline.event"

// WebhookSink posts events as CloudEvents (binary mode) to a dashboard endpoint.
type WebhookSink struct {
	client cloudevents.Client
	source string
}

// NewWebhookSink creates a sink posting to target.
func NewWebhookSink(target, source string, timeout time.Duration) (*WebhookSink, error) {
	client, err := cloudevents.NewClientHTTP(
		cloudevents.WithTarget(target),
		cehttp.WithClient(http.Client{Timeout: timeout}),
	)
	if err != nil {
		return nil, fmt.Errorf("events.NewWebhookSink: %w", err)
	}
	return &WebhookSink{client: client, source: source}, nil
}

func (s *WebhookSink) Emit(ctx context.Context, event domain.PipelineEvent) error {
	ce := cloudevents.NewEvent()
	ce.SetID(event.ID.String())
	ce.SetSource(s.source)
	ce.SetType(EventType)
	ce.SetTime(event.Timestamp)
	subject := event.PayloadHash
	if subject == "" {
		subject = event.MessageID
	}
	ce.SetSubject(subject)
	ce.SetExtension("stage", string(event.Stage))
	ce.SetExtension("status", string(event.Status))
	if err := ce.SetData(cloudevents.ApplicationJSON, event); err != nil {
		return fmt.Errorf("events.WebhookSink: encoding: %w", err)
	}

	if res := s.client.Send(ctx, ce); !cloudevents.IsACK(res) {
		return fmt.Errorf("events.WebhookSink: delivering %s: %w", event.ID, res)
	}
	return nil
}
