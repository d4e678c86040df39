package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"staybook/pkg/model"

	"github.com/google/uuid"
)

// NewBookingEvent serialises the booking, with whatever summaries it carries,
// into a pending outbox event that is due immediately.
func NewBookingEvent(eventType string, booking *model.Booking, now time.Time) (*model.OutboxEvent, error) {
	eventID := uuid.NewString()

	payload, err := json.Marshal(model.BookingEvent{
		EventID:    eventID,
		EventType:  eventType,
		Booking:    booking,
		Property:   booking.Property,
		Customer:   booking.Customer,
		Owner:      booking.Owner,
		OccurredAt: now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode booking event: %w", err)
	}

	return &model.OutboxEvent{
		ID:            eventID,
		EventType:     eventType,
		AggregateID:   booking.ID,
		Payload:       payload,
		Status:        model.OutboxStatusPending,
		NextAttemptAt: now,
		CreatedAt:     now,
	}, nil
}
