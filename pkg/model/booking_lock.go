package model

import "time"

// BookingLock is an advisory lock document that serialises admissions for one
// customer and property pair. ExpiresAt backs a TTL index. Token identifies
// the holder so a release never removes a lock someone else reclaimed.
type BookingLock struct {
	ID        string    `bson:"_id" json:"id"`
	Token     string    `bson:"token" json:"token"`
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// BookingGuard is bumped inside every admission transaction for its pair, so
// two admissions for the same pair cannot commit concurrently.
type BookingGuard struct {
	ID       string    `bson:"_id" json:"id"`
	Seq      int64     `bson:"seq" json:"seq"`
	FencedAt time.Time `bson:"fenced_at" json:"fenced_at"`
}

func BookingLockID(customerID, propertyID string) string {
	return "booking_lock:" + customerID + ":" + propertyID
}
