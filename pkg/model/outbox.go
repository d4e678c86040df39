package model

import "time"

type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusPublished OutboxStatus = "published"
	OutboxStatusDead      OutboxStatus = "dead"
)

// OutboxEvent is written in the same transaction as the booking change it
// describes and relayed to Kafka afterwards.
type OutboxEvent struct {
	ID            string       `json:"id" bson:"_id"`
	EventType     string       `json:"event_type" bson:"event_type"`
	AggregateID   string       `json:"aggregate_id" bson:"aggregate_id"`
	Payload       []byte       `json:"payload" bson:"payload"`
	Status        OutboxStatus `json:"status" bson:"status"`
	Attempts      int          `json:"attempts" bson:"attempts"`
	LastError     string       `json:"last_error,omitempty" bson:"last_error,omitempty"`
	NextAttemptAt time.Time    `json:"next_attempt_at" bson:"next_attempt_at"`
	CreatedAt     time.Time    `json:"created_at" bson:"created_at"`
	PublishedAt   *time.Time   `json:"published_at,omitempty" bson:"published_at,omitempty"`
}
