package events

import (
	"context"
	"time"

	"saubio/pkg/kafka"
)

// Publisher is how services emit events; tests substitute a fake.
type Publisher interface {
	PublishMatchRequest(ctx context.Context, req MatchRequest) error
	PublishBookingEvent(ctx context.Context, eventType string, evt BookingEvent) error
	PublishLockExpired(ctx context.Context, evt LockExpiredEvent) error
}

// KafkaPublisher routes match requests to the matching topic and lifecycle
// events to the booking events topic.
type KafkaPublisher struct {
	matchingProducer *kafka.Producer
	eventsProducer   *kafka.Producer
	source           string
}

func NewKafkaPublisher(matchingProducer, eventsProducer *kafka.Producer, source string) *KafkaPublisher {
	return &KafkaPublisher{
		matchingProducer: matchingProducer,
		eventsProducer:   eventsProducer,
		source:           source,
	}
}

func (p *KafkaPublisher) PublishMatchRequest(ctx context.Context, req MatchRequest) error {
	if req.RequestedAt.IsZero() {
		req.RequestedAt = time.Now().UTC()
	}
	msg := kafka.NewMessage().
		WithKey(req.BookingID).
		WithValue(req).
		WithEventType(TypeMatchRequested).
		WithSource(p.source).
		Build()
	return p.matchingProducer.Publish(ctx, msg)
}

func (p *KafkaPublisher) PublishBookingEvent(ctx context.Context, eventType string, evt BookingEvent) error {
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	msg := kafka.NewMessage().
		WithKey(evt.BookingID).
		WithValue(evt).
		WithEventType(eventType).
		WithSource(p.source).
		Build()
	return p.eventsProducer.Publish(ctx, msg)
}

func (p *KafkaPublisher) PublishLockExpired(ctx context.Context, evt LockExpiredEvent) error {
	msg := kafka.NewMessage().
		WithKey(evt.BookingID).
		WithValue(evt).
		WithEventType(TypeLockExpired).
		WithSource(p.source).
		Build()
	return p.eventsProducer.Publish(ctx, msg)
}
