package service

import (
	"context"
	"errors"
	"testing"

	"saubio/pkg/events"
	"saubio/pkg/kafka"
	"saubio/pkg/logger"
)

type stubMatcher struct {
	bookingIDs []string
	reasons    []string
	err        error
}

func (m *stubMatcher) Match(_ context.Context, bookingID, reason string) error {
	m.bookingIDs = append(m.bookingIDs, bookingID)
	m.reasons = append(m.reasons, reason)
	return m.err
}

func consumerLog() *logger.Logger {
	return logger.New(logger.Config{Level: logger.ERROR, Service: "test"})
}

func TestMatchRequestHandler_DecodesAndRunsMatch(t *testing.T) {
	matcher := &stubMatcher{}
	handler := MatchRequestHandler(matcher, consumerLog())

	msg := kafka.NewMessage().
		WithKey("b1").
		WithValue(events.MatchRequest{BookingID: "b1", Reason: events.ReasonBookingCreated}).
		Build()

	if err := handler(context.Background(), msg); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if len(matcher.bookingIDs) != 1 || matcher.bookingIDs[0] != "b1" {
		t.Fatalf("expected one match for b1, got %v", matcher.bookingIDs)
	}
	if matcher.reasons[0] != events.ReasonBookingCreated {
		t.Errorf("expected reason %q, got %q", events.ReasonBookingCreated, matcher.reasons[0])
	}
}

func TestMatchRequestHandler_MalformedPayloadIsPermanent(t *testing.T) {
	matcher := &stubMatcher{}
	handler := MatchRequestHandler(matcher, consumerLog())

	msg := kafka.NewMessage().WithKey("b1").Build()
	msg.Value = []byte("{not json")

	err := handler(context.Background(), msg)
	if err == nil {
		t.Fatal("expected error for malformed payload")
	}
	if kafka.ClassifyError(err) != kafka.ErrorTypePermanent {
		t.Errorf("expected permanent error, got %v", err)
	}
	if len(matcher.bookingIDs) != 0 {
		t.Errorf("matcher should not run on malformed payload, got %v", matcher.bookingIDs)
	}
}

func TestMatchRequestHandler_MatchErrorPropagates(t *testing.T) {
	wantErr := errors.New("dial tcp: i/o timeout")
	matcher := &stubMatcher{err: wantErr}
	handler := MatchRequestHandler(matcher, consumerLog())

	msg := kafka.NewMessage().
		WithKey("b1").
		WithValue(events.MatchRequest{BookingID: "b1", Reason: events.ReasonLockExpired}).
		Build()

	err := handler(context.Background(), msg)
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected match error to propagate, got %v", err)
	}
	if kafka.ClassifyError(err) == kafka.ErrorTypePermanent {
		t.Error("transient match errors must stay retryable")
	}
}
