package v1

import (
	"context"
	"errors"

	"github.com/streamarr/streamarr/internal/dlm"
	"github.com/streamarr/streamarr/internal/events"
	"github.com/streamarr/streamarr/internal/media"
	"github.com/streamarr/streamarr/internal/quota"
	"github.com/streamarr/streamarr/internal/reconcile"
	"github.com/streamarr/streamarr/internal/request"
	"github.com/streamarr/streamarr/internal/syncer"
	"github.com/streamarr/streamarr/internal/webhook"
	"github.com/streamarr/streamarr/internal/writer"
)

// ErrMissingDependency is returned when a required dependency is nil.
var ErrMissingDependency = errors.New("missing required dependency")

// SyncService is the library-sync surface the API needs.
type SyncService interface {
	Trigger() error
	Running() bool
	LastResult() *syncer.Result
}

// WebhookProcessor handles inbound import notifications.
type WebhookProcessor interface {
	Handle(ctx context.Context, p *webhook.Payload) error
}

// ServerDeps contains all dependencies for the API server.
// Required dependencies must be non-nil; optional dependencies may be nil.
type ServerDeps struct {
	// Required dependencies
	Requests   *request.Store
	Controller *request.Controller
	Media      *media.Store
	Reconcile  *reconcile.Engine
	Quota      *quota.Engine
	Perms      *quota.PermissionStore
	Servers    *dlm.ServerStore
	Serial     *writer.Serializer

	// Optional dependencies (nil if not configured)
	Webhook  WebhookProcessor
	Sync     SyncService
	EventLog *events.EventLog
}

// Validate checks that all required dependencies are provided.
func (d ServerDeps) Validate() error {
	if d.Requests == nil {
		return errors.New("request store is required")
	}
	if d.Controller == nil {
		return errors.New("request controller is required")
	}
	if d.Media == nil {
		return errors.New("media store is required")
	}
	if d.Reconcile == nil {
		return errors.New("reconcile engine is required")
	}
	if d.Quota == nil {
		return errors.New("quota engine is required")
	}
	if d.Perms == nil {
		return errors.New("permission store is required")
	}
	if d.Servers == nil {
		return errors.New("server store is required")
	}
	if d.Serial == nil {
		return errors.New("write serializer is required")
	}
	return nil
}
