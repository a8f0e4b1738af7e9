// Package notify delivers fire-and-forget notifications for request
// lifecycle events. Delivery failures are logged and never propagate
// into the admission or approval path.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/streamarr/streamarr/internal/events"
)

// Audience selects who a notification is for.
type Audience string

const (
	AudienceAdmins    Audience = "admins"
	AudienceRequester Audience = "requester"
)

// Notification is one outbound message.
type Notification struct {
	Event    string   `json:"event"`
	Audience Audience `json:"audience"`
	UserID   int64    `json:"user_id,omitempty"`
	Subject  string   `json:"subject"`
	Body     string   `json:"body,omitempty"`
}

// Agent delivers notifications over one channel (webhook, log, ...).
type Agent interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}

// Notifier subscribes to the event bus and fans notifications out to
// its agents.
type Notifier struct {
	bus    *events.Bus
	agents []Agent
	logger *slog.Logger
}

// New creates a notifier.
func New(bus *events.Bus, agents []Agent, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		bus:    bus,
		agents: agents,
		logger: logger.With("component", "notify"),
	}
}

// Run consumes lifecycle events until ctx is canceled or the bus
// closes.
func (n *Notifier) Run(ctx context.Context) error {
	ch := n.bus.SubscribeAll(64)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-ch:
			if !ok {
				return nil
			}
			for _, notification := range translate(evt) {
				n.send(ctx, notification)
			}
		}
	}
}

func (n *Notifier) send(ctx context.Context, notification Notification) {
	for _, agent := range n.agents {
		if err := agent.Send(ctx, notification); err != nil {
			n.logger.Warn("notification delivery failed",
				"agent", agent.Name(),
				"event", notification.Event,
				"error", err)
		}
	}
}

// translate maps a bus event to zero or more notifications. A failed
// dispatch notifies admins like a fresh pending request so a human can
// intervene; the auto-approved event is only published once a dispatch
// succeeds, so no requester approval message accompanies a failure.
func translate(evt events.Event) []Notification {
	switch e := evt.(type) {
	case events.RequestEvent:
		subject := fmt.Sprintf("%s request #%d (tmdb %d)", e.MediaType, e.RequestID, e.TMDBID)
		switch e.EventType() {
		case events.EventRequestCreated:
			return []Notification{{
				Event:    e.EventType(),
				Audience: AudienceAdmins,
				Subject:  "New pending request: " + subject,
			}}
		case events.EventRequestApproved, events.EventRequestAutoApproved:
			return []Notification{{
				Event:    e.EventType(),
				Audience: AudienceRequester,
				UserID:   e.UserID,
				Subject:  "Request approved: " + subject,
			}}
		case events.EventRequestDeclined:
			return []Notification{{
				Event:    e.EventType(),
				Audience: AudienceRequester,
				UserID:   e.UserID,
				Subject:  "Request declined: " + subject,
			}}
		case events.EventRequestFailed:
			return []Notification{{
				Event:    e.EventType(),
				Audience: AudienceAdmins,
				Subject:  "Request dispatch failed: " + subject,
				Body:     e.Message,
			}}
		}
	case events.MediaAvailable:
		return []Notification{{
			Event:    e.EventType(),
			Audience: AudienceRequester,
			Subject:  fmt.Sprintf("Now available: %s (tmdb %d)", e.MediaType, e.TMDBID),
		}}
	}
	return nil
}
