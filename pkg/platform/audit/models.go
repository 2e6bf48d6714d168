// Package audit captures security-relevant events (logins, registrations,
// logouts) into an append-only trail. Events flow through an in-process
// publisher to a background worker, which appends them to the configured
// sinks (PostgreSQL and, when brokers are configured, Kafka).
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Action identifies what happened.
type Action string

const (
	ActionLoginSucceeded Action = "login_succeeded"
	ActionLoginFailed    Action = "login_failed"
	ActionUserRegistered Action = "user_registered"
	ActionLogout         Action = "logout"
)

// Event is one audit trail entry. UserID is zero when the subject could not
// be resolved (failed logins). Reason is operator-facing and may carry
// detail that is never returned to clients.
type Event struct {
	ID        uuid.UUID `json:"id"`
	Action    Action    `json:"action"`
	UserID    int64     `json:"user_id,omitempty"`
	Username  string    `json:"username,omitempty"`
	Provider  string    `json:"provider,omitempty"`
	Device    string    `json:"device,omitempty"`
	ClientIP  string    `json:"client_ip,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Store is an append-only audit sink.
type Store interface {
	Append(ctx context.Context, event Event) error
}
