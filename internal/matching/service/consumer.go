package service

import (
	"context"

	"saubio/pkg/events"
	"saubio/pkg/kafka"
	"saubio/pkg/logger"
)

// MatchRequestHandler decodes match requests off the matching topic and
// runs one pass per message. Expected conditions resolve the message;
// everything else flows into the retry/DLQ pipeline.
func MatchRequestHandler(matcher MatchingService, log *logger.Logger) kafka.MessageHandler {
	return func(ctx context.Context, msg kafka.Message) error {
		var req events.MatchRequest
		if err := msg.DecodeValue(&req); err != nil {
			log.Error("Failed to decode match request", "error", err)
			// Malformed payloads never become valid; skip retries.
			return kafka.Permanent(err)
		}

		log.Info("Processing match request",
			"booking_id", req.BookingID,
			"reason", req.Reason,
		)
		return matcher.Match(ctx, req.BookingID, req.Reason)
	}
}
