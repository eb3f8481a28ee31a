package models

import (
	"time"

	"github.com/google/uuid"
)

// Message is an outbound message as returned by the portal API.
// The detection core reads it and never mutates it; fields beyond these
// are carried opaquely in Extra.
type Message struct {
	ID         uuid.UUID      `json:"id"`
	AccountID  uuid.UUID      `json:"account_id"`
	Body       string         `json:"message"`
	FromNumber string         `json:"host_number"`
	ToNumber   string         `json:"remote_number"`
	SentAt     time.Time      `json:"inserted_at"`
	Extra      map[string]any `json:"-"`
}
