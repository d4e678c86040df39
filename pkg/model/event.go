package model

import (
	"fmt"
	"time"
)

const (
	BookingEventCreated = "booking.created"

	BookingEventSource = "bookings-service"
)

// BookingEventType names the event emitted when a booking enters status.
func BookingEventType(status BookingStatus) string {
	if status == BookingStatusPending {
		return BookingEventCreated
	}
	return fmt.Sprintf("booking.%s", status)
}

// BookingEvent is the payload published to the booking events topic.
type BookingEvent struct {
	EventID    string           `json:"event_id"`
	EventType  string           `json:"event_type"`
	Booking    *Booking         `json:"booking"`
	Property   *PropertySummary `json:"property,omitempty"`
	Customer   *UserSummary     `json:"customer,omitempty"`
	Owner      *UserSummary     `json:"owner,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}
