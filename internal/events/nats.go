package events

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"jobmate/posting-service/internal/apperr"
	"jobmate/posting-service/internal/telemetry"
)

const subjectPrefix = "jobmate.posting."

// Subject maps an event type to its NATS subject, e.g. EVENT_JOB_POSTED →
// jobmate.posting.job_posted.
func Subject(t Type) string {
	return subjectPrefix + strings.ToLower(strings.TrimPrefix(string(t), "EVENT_"))
}

type NATSPublisher struct {
	conn   *nats.Conn
	logger *zap.Logger
}

func NewNATSPublisher(url string, timeout time.Duration, logger *zap.Logger) (*NATSPublisher, error) {
	opts := []nats.Option{
		nats.Name("posting-service"),
		nats.Timeout(timeout),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, apperr.Unavailable("connecting to NATS", err)
	}
	return &NATSPublisher{conn: conn, logger: logger}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, e Event) error {
	_, span := tracer.Start(ctx, "NATSPublish")
	defer span.End()

	data, err := json.Marshal(e)
	if err != nil {
		span.RecordError(err)
		return apperr.Internal("marshaling event", err)
	}

	subject := Subject(e.Type)
	span.SetAttributes(
		telemetry.String("nats.subject", subject),
		telemetry.Int("message.size", len(data)),
	)

	if err := p.conn.Publish(subject, data); err != nil {
		span.RecordError(err)
		p.logger.Error("failed to publish event",
			zap.String("subject", subject),
			zap.String("draftId", e.DraftID),
			zap.Error(err))
		return apperr.Unavailable("publishing to NATS", err)
	}

	p.logger.Debug("published event",
		zap.String("subject", subject),
		zap.String("draftId", e.DraftID))
	return nil
}

func (p *NATSPublisher) Close() error {
	if p.conn != nil {
		return p.conn.Drain()
	}
	return nil
}
