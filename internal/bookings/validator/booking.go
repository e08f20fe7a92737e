package validator

import (
	"fmt"
	"strings"
	"time"

	apperrors "saubio/pkg/errors"
	"saubio/pkg/model"

	"github.com/go-playground/validator/v10"
)

type BookingValidator struct {
	validate *validator.Validate
}

func NewBookingValidator() (*BookingValidator, error) {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := v.RegisterValidation("booking_status", validateBookingStatus); err != nil {
		return nil, fmt.Errorf("failed to register booking_status validation: %w", err)
	}

	return &BookingValidator{validate: v}, nil
}

func validateBookingStatus(fl validator.FieldLevel) bool {
	switch model.BookingStatus(fl.Field().String()) {
	case model.StatusDraft, model.StatusPendingProvider, model.StatusPendingClient,
		model.StatusConfirmed, model.StatusInProgress, model.StatusCompleted,
		model.StatusCancelled, model.StatusDisputed:
		return true
	}
	return false
}

func (v *BookingValidator) ValidateCreate(booking *model.Booking) error {
	if err := v.validate.Struct(booking); err != nil {
		return v.toValidationError(err)
	}
	return v.validateWindow(booking.Window)
}

func (v *BookingValidator) ValidateUpdate(update *model.BookingUpdate) error {
	if err := v.validate.Struct(update); err != nil {
		return v.toValidationError(err)
	}
	if update.Window != nil {
		return v.validateWindow(*update.Window)
	}
	return nil
}

func (v *BookingValidator) validateWindow(window model.TimeWindow) error {
	if window.IsZero() {
		return apperrors.Validation("Booking window is required", nil)
	}
	if !window.End.After(window.Start) {
		return apperrors.Validation("Booking window end must be after start", map[string]any{
			"start": window.Start.Format(time.RFC3339),
			"end":   window.End.Format(time.RFC3339),
		})
	}
	return nil
}

func (v *BookingValidator) toValidationError(err error) error {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return apperrors.Validation("Invalid booking payload", nil)
	}

	details := make(map[string]any, len(validationErrors))
	for _, fieldErr := range validationErrors {
		details[strings.ToLower(fieldErr.Field())] = fmt.Sprintf(
			"failed %s validation", fieldErr.Tag(),
		)
	}
	return apperrors.Validation("Booking validation failed", details)
}
