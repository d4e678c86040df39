package model

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusCompleted BookingStatus = "completed"
)

// StatusHintApproved is the request value that asks for a booking to start confirmed.
const StatusHintApproved = "approved"

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:   {BookingStatusConfirmed, BookingStatusCancelled},
	BookingStatusConfirmed: {BookingStatusCompleted},
}

func (s BookingStatus) String() string {
	return string(s)
}

func (s BookingStatus) IsValid() bool {
	switch s {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusCancelled, BookingStatusCompleted:
		return true
	}
	return false
}

func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	for _, allowed := range bookingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s BookingStatus) IsTerminal() bool {
	return len(bookingTransitions[s]) == 0
}

// IsApproved is true once a host or admin accepted the booking.
func (s BookingStatus) IsApproved() bool {
	return s == BookingStatusConfirmed || s == BookingStatusCompleted
}

func (s BookingStatus) IsCancelled() bool {
	return s == BookingStatusCancelled
}

// ActiveBookingStatuses hold dates and take part in overlap checks.
func ActiveBookingStatuses() []BookingStatus {
	return []BookingStatus{BookingStatusPending, BookingStatusConfirmed}
}

// RevenueBookingStatuses count towards property revenue.
func RevenueBookingStatuses() []BookingStatus {
	return []BookingStatus{BookingStatusConfirmed, BookingStatusCompleted}
}
