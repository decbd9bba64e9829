// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"casebook_backend/internal/cases"
	"casebook_backend/platform/events"
	"casebook_backend/platform/logger"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
	InMemoryBus = events.InMemoryBus
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// NewInMemoryBus creates a new in-memory event bus.
func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return events.NewInMemoryBus(log)
}

// =============================================================================
// Case Workflow Events
// =============================================================================

// CaseStatusChanged is published by the case-booking application whenever a
// case transitions to a new workflow status. The snapshot carries everything
// the notification engine needs; the engine never reads case tables directly.
type CaseStatusChanged struct {
	BaseEvent
	Case cases.Snapshot `json:"case"`
}

func (e CaseStatusChanged) EventName() string { return "cases.status.changed" }

// NotificationOutboxDue is published by the delivery worker when a queued
// outbox record becomes due for sending.
type NotificationOutboxDue struct {
	BaseEvent
	OutboxID uuid.UUID `json:"outboxId"`
	Country  string    `json:"country"`
}

func (e NotificationOutboxDue) EventName() string { return "notification.outbox.due" }

// =============================================================================
// Credential Events
// =============================================================================

// MailboxConnected is published after a successful interactive authorization.
type MailboxConnected struct {
	BaseEvent
	Country  string `json:"country"`
	Provider string `json:"provider"`
	Mailbox  string `json:"mailbox"`
}

func (e MailboxConnected) EventName() string { return "credentials.mailbox.connected" }

// MailboxDisconnected is published after an explicit disconnect or after a
// definitive server-side revocation cleared the stored credential.
type MailboxDisconnected struct {
	BaseEvent
	Country  string `json:"country"`
	Provider string `json:"provider"`
	Reason   string `json:"reason"`
}

func (e MailboxDisconnected) EventName() string { return "credentials.mailbox.disconnected" }
