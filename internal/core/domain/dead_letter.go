package domain

import "time"

// DeadLetter is a failed document parked for a later retry.
type DeadLetter struct {
	ID           string           `json:"id"`
	Collection   string           `json:"collection"`
	PartitionKey string           `json:"partition_key"`
	Document     Document         `json:"document"`
	Error        ErrorDetails     `json:"error"`
	Attempts     int              `json:"attempts"`
	RetryCount   int              `json:"retry_count"`
	Status       DeadLetterStatus `json:"status"`
	LastAttempt  time.Time        `json:"last_attempt"`
	CreatedAt    time.Time        `json:"created_at"`
}

type DeadLetterStatus string

const (
	DeadLetterStatusPending  DeadLetterStatus = "pending"
	DeadLetterStatusResolved DeadLetterStatus = "resolved"
)
