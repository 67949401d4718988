package models

import (
	"encoding/json"
	"time"
)

// OutboxStatus is the delivery state of an OutboxMessage.
type OutboxStatus string

const (
	OutboxPending OutboxStatus = "pending"
	OutboxSent    OutboxStatus = "sent"
	OutboxDead    OutboxStatus = "dead"
)

// OutboxMessage is an email queued in the same transaction as the state
// change that caused it. Payload holds the template variables as JSON.
type OutboxMessage struct {
	ID            string
	UserID        string
	Recipient     string
	Subject       string
	Template      string
	Payload       json.RawMessage
	Status        OutboxStatus
	Attempts      int
	LastError     string
	NextAttemptAt time.Time
	CreatedAt     time.Time
	SentAt        *time.Time
}
