package model

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	DefaultRoomType       = "Standard"
	DefaultNumberOfGuests = 1

	DateLayout = "2006-01-02"
)

type Booking struct {
	ID              string        `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	PropertyID      string        `json:"property_id" bson:"property_id" validate:"required,mongodb"`
	OwnerID         string        `json:"owner_id" bson:"owner_id" validate:"required,mongodb"`
	CustomerID      string        `json:"customer_id" bson:"customer_id" validate:"required,mongodb"`
	RoomType        string        `json:"room_type" bson:"room_type" validate:"required,min=1,max=100"`
	NumberOfGuests  int           `json:"number_of_guests" bson:"number_of_guests" validate:"min=1,max=50"`
	CheckIn         time.Time     `json:"check_in" bson:"check_in" validate:"required"`
	CheckOut        time.Time     `json:"check_out" bson:"check_out" validate:"required,gtfield=CheckIn"`
	TotalAmount     float64       `json:"total_amount" bson:"total_amount" validate:"gte=0"`
	Status          BookingStatus `json:"status" bson:"status" validate:"required,booking_status"`
	SpecialRequests string        `json:"special_requests,omitempty" bson:"special_requests,omitempty" validate:"omitempty,max=1000"`
	CreatedAt       time.Time     `json:"created_at" bson:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at" bson:"updated_at"`

	Property *PropertySummary `json:"property,omitempty" bson:"-"`
	Customer *UserSummary     `json:"customer,omitempty" bson:"-"`
	Owner    *UserSummary     `json:"owner,omitempty" bson:"-"`
}

func (b Booking) IsApproved() bool {
	return b.Status.IsApproved()
}

func (b Booking) IsCancelled() bool {
	return b.Status.IsCancelled()
}

// Overlaps reports whether the half-open stays [CheckIn, CheckOut) intersect.
func (b Booking) Overlaps(checkIn, checkOut time.Time) bool {
	return b.CheckIn.Before(checkOut) && b.CheckOut.After(checkIn)
}

func (b Booking) MarshalJSON() ([]byte, error) {
	type alias Booking
	return json.Marshal(struct {
		alias
		IsApproved  bool `json:"is_approved"`
		IsCancelled bool `json:"is_cancelled"`
	}{
		alias:       alias(b),
		IsApproved:  b.IsApproved(),
		IsCancelled: b.IsCancelled(),
	})
}

// BookingRequest is the admission input. Dates stay strings until parsed so
// both plain dates and RFC 3339 timestamps are accepted.
type BookingRequest struct {
	PropertyID      string   `json:"property_id" validate:"required,mongodb"`
	OwnerID         string   `json:"owner_id" validate:"required,mongodb"`
	CustomerID      string   `json:"customer_id" validate:"required,mongodb"`
	RoomType        string   `json:"room_type,omitempty" validate:"omitempty,max=100"`
	NumberOfGuests  *int     `json:"number_of_guests,omitempty" validate:"omitempty,min=1,max=50"`
	CheckIn         string   `json:"check_in" validate:"required,booking_date"`
	CheckOut        string   `json:"check_out" validate:"required,booking_date"`
	TotalAmount     *float64 `json:"total_amount" validate:"required,gte=0"`
	SpecialRequests string   `json:"special_requests,omitempty" validate:"omitempty,max=1000"`
	Status          string   `json:"status,omitempty" validate:"omitempty,max=20"`
}

// ToBooking builds a pending booking with defaults applied. The request must
// have passed validation.
func (r *BookingRequest) ToBooking() (*Booking, error) {
	checkIn, err := ParseBookingDate(r.CheckIn)
	if err != nil {
		return nil, err
	}
	checkOut, err := ParseBookingDate(r.CheckOut)
	if err != nil {
		return nil, err
	}

	booking := &Booking{
		PropertyID:      r.PropertyID,
		OwnerID:         r.OwnerID,
		CustomerID:      r.CustomerID,
		RoomType:        r.RoomType,
		NumberOfGuests:  DefaultNumberOfGuests,
		CheckIn:         checkIn,
		CheckOut:        checkOut,
		Status:          BookingStatusPending,
		SpecialRequests: r.SpecialRequests,
	}
	if booking.RoomType == "" {
		booking.RoomType = DefaultRoomType
	}
	if r.NumberOfGuests != nil {
		booking.NumberOfGuests = *r.NumberOfGuests
	}
	if r.TotalAmount != nil {
		booking.TotalAmount = *r.TotalAmount
	}
	return booking, nil
}

// ParseBookingDate accepts YYYY-MM-DD or RFC 3339 and returns a UTC time
// truncated to milliseconds, the precision MongoDB stores.
func ParseBookingDate(value string) (time.Time, error) {
	if t, err := time.Parse(DateLayout, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD or RFC 3339", value)
	}
	return t.UTC().Truncate(time.Millisecond), nil
}

type BookingFilter struct {
	PropertyID string
	CustomerID string
	OwnerID    string
	Status     BookingStatus
}
