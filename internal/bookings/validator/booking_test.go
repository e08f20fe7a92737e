package validator

import (
	"testing"
	"time"

	apperrors "saubio/pkg/errors"
	"saubio/pkg/model"
)

func newValidator(t *testing.T) *BookingValidator {
	t.Helper()
	v, err := NewBookingValidator()
	if err != nil {
		t.Fatalf("failed to build validator: %v", err)
	}
	return v
}

func validBooking() *model.Booking {
	start := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	return &model.Booking{
		ClientID:          "client-1",
		Address:           "12 Rue de la Paix, Paris",
		ServiceCategory:   "home_cleaning",
		Window:            model.NewTimeWindow(start, start.Add(3*time.Hour)),
		RequiredProviders: 1,
		Mode:              model.ModeSmartMatch,
		Status:            model.StatusDraft,
	}
}

func TestValidateCreate_ValidBooking(t *testing.T) {
	v := newValidator(t)
	if err := v.ValidateCreate(validBooking()); err != nil {
		t.Errorf("expected valid booking to pass, got %v", err)
	}
}

func TestValidateCreate_InvalidBookings(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.Booking)
	}{
		{"missing client", func(b *model.Booking) { b.ClientID = "" }},
		{"address too short", func(b *model.Booking) { b.Address = "x" }},
		{"missing category", func(b *model.Booking) { b.ServiceCategory = "" }},
		{"zero providers", func(b *model.Booking) { b.RequiredProviders = 0 }},
		{"too many providers", func(b *model.Booking) { b.RequiredProviders = 21 }},
		{"unknown mode", func(b *model.Booking) { b.Mode = "psychic" }},
		{"unknown status", func(b *model.Booking) { b.Status = "limbo" }},
		{"window ends before start", func(b *model.Booking) {
			b.Window.End = b.Window.Start.Add(-time.Hour)
		}},
		{"empty window", func(b *model.Booking) {
			b.Window = model.TimeWindow{}
		}},
		{"non-uuid id", func(b *model.Booking) { b.ID = "booking-1" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newValidator(t)
			b := validBooking()
			tt.mutate(b)

			err := v.ValidateCreate(b)
			if !apperrors.HasCode(err, apperrors.CodeValidation) {
				t.Errorf("expected VALIDATION_ERROR, got %v", err)
			}
		})
	}
}

func TestValidateCreate_AllStatusesAccepted(t *testing.T) {
	statuses := []model.BookingStatus{
		model.StatusDraft, model.StatusPendingProvider, model.StatusPendingClient,
		model.StatusConfirmed, model.StatusInProgress, model.StatusCompleted,
		model.StatusCancelled, model.StatusDisputed,
	}

	v := newValidator(t)
	for _, status := range statuses {
		b := validBooking()
		b.Status = status
		if err := v.ValidateCreate(b); err != nil {
			t.Errorf("status %s: expected valid, got %v", status, err)
		}
	}
}

func TestValidateUpdate(t *testing.T) {
	v := newValidator(t)

	if err := v.ValidateUpdate(&model.BookingUpdate{}); err != nil {
		t.Errorf("empty update must be valid, got %v", err)
	}

	if err := v.ValidateUpdate(&model.BookingUpdate{Address: "Hauptstr. 5, Berlin"}); err != nil {
		t.Errorf("address update must be valid, got %v", err)
	}

	err := v.ValidateUpdate(&model.BookingUpdate{Address: "x"})
	if !apperrors.HasCode(err, apperrors.CodeValidation) {
		t.Errorf("expected VALIDATION_ERROR for short address, got %v", err)
	}

	bad := model.NewTimeWindow(
		time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC),
		time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC),
	)
	err = v.ValidateUpdate(&model.BookingUpdate{Window: &bad})
	if !apperrors.HasCode(err, apperrors.CodeValidation) {
		t.Errorf("expected VALIDATION_ERROR for empty window, got %v", err)
	}
}
