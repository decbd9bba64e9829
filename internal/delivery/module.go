package delivery

import (
	"context"
	"encoding/json"
	"fmt"

	"casebook_backend/internal/cases"
	"casebook_backend/internal/delivery/outbox"
	"casebook_backend/internal/events"
	rulesvc "casebook_backend/internal/rules/service"
	"casebook_backend/platform/logger"

	"github.com/google/uuid"
)

// RuleSource yields the enabled rule for a (country, status), if any.
type RuleSource interface {
	EnabledRule(ctx context.Context, country, status string) (rulesvc.Rule, bool, error)
}

// OutboxStore is the persistence surface for notification work in flight.
type OutboxStore interface {
	Insert(ctx context.Context, p outbox.InsertParams) (uuid.UUID, error)
	GetByID(ctx context.Context, id uuid.UUID) (outbox.Record, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	MarkSucceeded(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error
}

// Module glues the pipeline together: a case status change lands in the
// outbox when its rule is enabled, and the worker drains the outbox through
// resolve, render, send.
type Module struct {
	rules  RuleSource
	dir    DirectoryReader
	sender *Sender
	outbox OutboxStore
	log    *logger.Logger
}

func NewModule(rules RuleSource, dir DirectoryReader, sender *Sender, store OutboxStore, log *logger.Logger) *Module {
	return &Module{
		rules:  rules,
		dir:    dir,
		sender: sender,
		outbox: store,
		log:    log,
	}
}

// RegisterHandlers subscribes the module to the domain events it consumes.
// CaseStatusChanged arrives in the API process; NotificationOutboxDue is
// published by the queue worker when a claimed record is handed over.
func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.CaseStatusChanged{}.EventName(), events.HandlerFunc(m.handleStatusChanged))
	bus.Subscribe(events.NotificationOutboxDue{}.EventName(), events.HandlerFunc(m.handleOutboxDue))
}

func (m *Module) handleOutboxDue(ctx context.Context, event events.Event) error {
	e, ok := event.(events.NotificationOutboxDue)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}
	return m.ProcessOutbox(ctx, e.OutboxID)
}

func (m *Module) handleStatusChanged(ctx context.Context, event events.Event) error {
	e, ok := event.(events.CaseStatusChanged)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}
	snapshot := e.Case

	_, enabled, err := m.rules.EnabledRule(ctx, snapshot.Country, string(snapshot.Status))
	if err != nil {
		return err
	}
	if !enabled {
		return nil
	}

	id, err := m.outbox.Insert(ctx, outbox.InsertParams{
		Country: snapshot.Country,
		Status:  string(snapshot.Status),
		Payload: snapshot,
	})
	if err != nil {
		m.log.WithCountry(snapshot.Country).Error("outbox insert failed",
			"case", snapshot.Reference, "status", snapshot.Status, "error", err)
		return err
	}

	m.log.WithCountry(snapshot.Country).Info("notification queued",
		"outboxId", id, "case", snapshot.Reference, "status", snapshot.Status)
	return nil
}

// ProcessOutbox is the worker entry point: it drives one outbox record
// through resolution, rendering, and sending. Returning an error leaves the
// record failed and lets the queue retry it.
func (m *Module) ProcessOutbox(ctx context.Context, id uuid.UUID) error {
	rec, err := m.outbox.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load outbox record %s: %w", id, err)
	}
	if rec.State == outbox.StatusSucceeded {
		return nil
	}

	if err := m.outbox.MarkProcessing(ctx, id); err != nil {
		return err
	}

	var snapshot cases.Snapshot
	if err := json.Unmarshal(rec.Payload, &snapshot); err != nil {
		// A payload that cannot be decoded will never succeed.
		_ = m.outbox.MarkFailed(ctx, id, "decode payload: "+err.Error())
		return nil
	}

	rule, enabled, err := m.rules.EnabledRule(ctx, rec.Country, rec.Status)
	if err != nil {
		_ = m.outbox.MarkFailed(ctx, id, err.Error())
		return err
	}
	if !enabled {
		// The rule was switched off between queueing and processing.
		m.log.WithCountry(rec.Country).Info("notification skipped, rule disabled",
			"outboxId", id, "status", rec.Status)
		return m.outbox.MarkSucceeded(ctx, id)
	}

	recipients, err := ResolveRecipients(ctx, rule, snapshot, m.dir)
	if err != nil {
		_ = m.outbox.MarkFailed(ctx, id, err.Error())
		return err
	}
	if len(recipients) == 0 {
		m.log.WithCountry(rec.Country).Info("notification resolved to no recipients",
			"outboxId", id, "status", rec.Status)
		return m.outbox.MarkSucceeded(ctx, id)
	}

	subject := Render(rule.Subject, snapshot)
	body := Render(rule.Body, snapshot)

	if err := m.sender.Send(ctx, rec.Country, recipients, subject, body); err != nil {
		_ = m.outbox.MarkFailed(ctx, id, err.Error())
		return err
	}
	return m.outbox.MarkSucceeded(ctx, id)
}
