package request

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/streamarr/streamarr/internal/catalog"
	"github.com/streamarr/streamarr/internal/dlm"
	"github.com/streamarr/streamarr/internal/events"
	"github.com/streamarr/streamarr/internal/media"
	"github.com/streamarr/streamarr/internal/quota"
	"github.com/streamarr/streamarr/internal/writer"
)

// Lifecycle errors returned by the controller.
var (
	ErrNotPending = errors.New("request is not pending")
	ErrNotActive  = errors.New("request is not active")
)

// Controller drives the request lifecycle: admission, approval,
// dispatch to a download-manager server, and the matching media-record
// bookkeeping. All writes go through the serializer.
type Controller struct {
	store      *Store
	mediaStore *media.Store
	quota      *quota.Engine
	servers    *dlm.ServerStore
	catalog    *catalog.Client // nil disables title/external-id lookups on dispatch
	serial     *writer.Serializer
	bus        *events.Bus
	logger     *slog.Logger

	movieClient  func(*dlm.Server) dlm.MovieService
	seriesClient func(*dlm.Server) dlm.SeriesService
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithMovieClient overrides the movie-server client constructor.
func WithMovieClient(fn func(*dlm.Server) dlm.MovieService) ControllerOption {
	return func(c *Controller) { c.movieClient = fn }
}

// WithSeriesClient overrides the series-server client constructor.
func WithSeriesClient(fn func(*dlm.Server) dlm.SeriesService) ControllerOption {
	return func(c *Controller) { c.seriesClient = fn }
}

// NewController creates a Controller. catalogClient and bus are
// optional.
func NewController(store *Store, mediaStore *media.Store, quotaEngine *quota.Engine,
	servers *dlm.ServerStore, catalogClient *catalog.Client, serial *writer.Serializer,
	bus *events.Bus, logger *slog.Logger, opts ...ControllerOption) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		store:      store,
		mediaStore: mediaStore,
		quota:      quotaEngine,
		servers:    servers,
		catalog:    catalogClient,
		serial:     serial,
		bus:        bus,
		logger:     logger.With("component", "requests"),
		movieClient: func(srv *dlm.Server) dlm.MovieService {
			return dlm.NewRadarrClient(srv, logger)
		},
		seriesClient: func(srv *dlm.Server) dlm.SeriesService {
			return dlm.NewSonarrClient(srv, logger)
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SubmitInput describes a prospective request.
type SubmitInput struct {
	UserID  int64
	TMDBID  int64
	Type    media.Type
	Is4K    bool
	Seasons []int // nil for movies and for all-seasons series requests
}

// Submit runs admission and, when admitted, creates the request and
// its media-record bookkeeping. A rejection is not an error: the
// decision carries the code and user-facing reason. Auto-approved
// requests are dispatched immediately.
func (c *Controller) Submit(ctx context.Context, in SubmitInput) (*Request, *quota.Decision, error) {
	decision, err := c.quota.Evaluate(in.UserID, in.TMDBID, in.Type, in.Is4K, in.Seasons)
	if err != nil {
		return nil, nil, fmt.Errorf("evaluate admission: %w", err)
	}
	if !decision.Admit {
		c.logger.Info("request rejected",
			"user_id", in.UserID, "tmdb_id", in.TMDBID, "type", in.Type,
			"is_4k", in.Is4K, "code", decision.Code)
		return nil, decision, nil
	}

	seasons := in.Seasons
	if in.Type == media.TypeTV && in.Seasons != nil {
		seasons = decision.Seasons
	}

	autoApprove, err := c.quota.AutoApprove(in.UserID, in.Type)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve auto-approval: %w", err)
	}
	status := StatusPending
	if autoApprove {
		status = StatusApproved
	}

	req := &Request{
		UserID:  in.UserID,
		TMDBID:  in.TMDBID,
		Type:    in.Type,
		Is4K:    in.Is4K,
		Seasons: seasons,
		Status:  status,
	}

	err = c.serial.Do(ctx, "requests.submit", func() error {
		rec, err := c.mediaStore.Ensure(in.Type, in.TMDBID)
		if err != nil {
			return err
		}
		// A re-request of deleted media starts the cycle over.
		current := rec.Status
		if in.Is4K {
			current = rec.Status4k
		}
		if current == media.StatusDeleted {
			if err := c.mediaStore.ResetStatus(rec.ID, in.Is4K); err != nil {
				return err
			}
		}
		if _, err := c.mediaStore.ApplyStatus(rec.ID, media.StatusRequested, in.Is4K); err != nil {
			return err
		}
		for _, n := range seasons {
			if _, err := c.mediaStore.ApplySeasonStatus(rec.ID, n, media.StatusRequested, in.Is4K); err != nil {
				return err
			}
		}
		return c.store.Add(req)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}

	if !autoApprove {
		c.publish(ctx, events.EventRequestCreated, req)
	}
	c.logger.Info("request created",
		"request_id", req.ID, "user_id", in.UserID, "tmdb_id", in.TMDBID,
		"type", in.Type, "is_4k", in.Is4K, "status", req.Status)

	if autoApprove {
		if err := c.Dispatch(ctx, req); err != nil {
			// Dispatch failure is recorded on the request; submission
			// itself succeeded.
			c.logger.Error("dispatch failed", "request_id", req.ID, "error", err)
		}
		// The requester's approval notification waits for a successful
		// dispatch; a failed dispatch already published request.failed.
		if req.Status == StatusProcessing {
			c.publish(ctx, events.EventRequestAutoApproved, req)
		}
	}
	return req, decision, nil
}

// Approve moves a pending request to approved and dispatches it.
func (c *Controller) Approve(ctx context.Context, id, approverID int64) (*Request, error) {
	req, err := c.store.Get(id)
	if err != nil {
		return nil, err
	}
	if req.Status != StatusPending {
		return nil, fmt.Errorf("approve request %d: %w", id, ErrNotPending)
	}

	err = c.serial.Do(ctx, "requests.approve", func() error {
		if err := c.store.SetStatus(id, StatusApproved); err != nil {
			return err
		}
		return c.store.SetApprover(id, approverID)
	})
	if err != nil {
		return nil, fmt.Errorf("approve request %d: %w", id, err)
	}
	req.Status = StatusApproved
	req.ApproverID = &approverID

	c.publish(ctx, events.EventRequestApproved, req)
	c.logger.Info("request approved", "request_id", id, "approver_id", approverID)

	if err := c.Dispatch(ctx, req); err != nil {
		c.logger.Error("dispatch failed", "request_id", id, "error", err)
	}
	return req, nil
}

// Decline moves a pending request to declined. Declined requests stop
// counting toward quotas and duplicate detection.
func (c *Controller) Decline(ctx context.Context, id, approverID int64) (*Request, error) {
	req, err := c.store.Get(id)
	if err != nil {
		return nil, err
	}
	if req.Status != StatusPending {
		return nil, fmt.Errorf("decline request %d: %w", id, ErrNotPending)
	}

	err = c.serial.Do(ctx, "requests.decline", func() error {
		if err := c.store.SetStatus(id, StatusDeclined); err != nil {
			return err
		}
		return c.store.SetApprover(id, approverID)
	})
	if err != nil {
		return nil, fmt.Errorf("decline request %d: %w", id, err)
	}
	req.Status = StatusDeclined
	req.ApproverID = &approverID

	c.publish(ctx, events.EventRequestDeclined, req)
	c.logger.Info("request declined", "request_id", id, "approver_id", approverID)
	return req, nil
}

// Remove withdraws an active request. The media record keeps whatever
// status it reached; only the request's quota and duplicate footprint
// is released.
func (c *Controller) Remove(ctx context.Context, id int64) error {
	req, err := c.store.Get(id)
	if err != nil {
		return err
	}
	if !req.Status.Active() || req.Status == StatusAvailable {
		return fmt.Errorf("remove request %d: %w", id, ErrNotActive)
	}
	err = c.serial.Do(ctx, "requests.remove", func() error {
		return c.store.SetStatus(id, StatusRemoved)
	})
	if err != nil {
		return fmt.Errorf("remove request %d: %w", id, err)
	}
	c.logger.Info("request removed", "request_id", id)
	return nil
}

// Dispatch sends an approved request to the default server of its
// type and variant. Failures move the request to failed with a
// user-visible message; the quota slot is released with it.
func (c *Controller) Dispatch(ctx context.Context, req *Request) error {
	srv, err := c.servers.Default(req.Type, req.Is4K)
	if err != nil {
		if errors.Is(err, dlm.ErrNoServer) {
			return c.fail(ctx, req, "no download server configured for this media type")
		}
		return fmt.Errorf("resolve server: %w", err)
	}

	var serviceID int64
	if req.Type == media.TypeMovie {
		serviceID, err = c.dispatchMovie(ctx, req, srv)
	} else {
		serviceID, err = c.dispatchSeries(ctx, req, srv)
	}
	if err != nil {
		if ferr := c.fail(ctx, req, "download server rejected the request"); ferr != nil {
			return ferr
		}
		return fmt.Errorf("dispatch request %d to %s: %w", req.ID, srv.Name, err)
	}

	err = c.serial.Do(ctx, "requests.dispatched", func() error {
		if err := c.store.SetDispatched(req.ID, srv.ID, serviceID); err != nil {
			return err
		}
		rec, err := c.mediaStore.Ensure(req.Type, req.TMDBID)
		if err != nil {
			return err
		}
		_, err = c.mediaStore.ApplyStatus(rec.ID, media.StatusProcessing, req.Is4K)
		return err
	})
	if err != nil {
		return fmt.Errorf("record dispatch %d: %w", req.ID, err)
	}
	req.Status = StatusProcessing
	req.ServerID = &srv.ID
	req.ServiceID = &serviceID
	c.logger.Info("request dispatched",
		"request_id", req.ID, "server", srv.Name, "service_id", serviceID)
	return nil
}

func (c *Controller) dispatchMovie(ctx context.Context, req *Request, srv *dlm.Server) (int64, error) {
	title := ""
	if c.catalog != nil {
		m, err := c.catalog.GetMovie(ctx, req.TMDBID)
		if err != nil {
			return 0, fmt.Errorf("lookup movie %d: %w", req.TMDBID, err)
		}
		title = m.Title
	}
	movie, err := c.movieClient(srv).AddMovie(ctx, dlm.AddMovieInput{
		TMDBID:         req.TMDBID,
		Title:          title,
		QualityProfile: srv.QualityProfile,
		RootFolder:     srv.RootFolder,
		Tags:           srv.Tags,
		SearchOnAdd:    srv.SearchOnAdd,
	})
	if err != nil {
		return 0, err
	}
	return movie.ServiceID, nil
}

func (c *Controller) dispatchSeries(ctx context.Context, req *Request, srv *dlm.Server) (int64, error) {
	rec, err := c.mediaStore.GetByTMDB(media.TypeTV, req.TMDBID)
	if err != nil {
		return 0, fmt.Errorf("get media record: %w", err)
	}

	var tvdbID int64
	if rec.TVDBID != nil {
		tvdbID = *rec.TVDBID
	}
	title := ""
	if c.catalog != nil {
		tv, err := c.catalog.GetTV(ctx, req.TMDBID)
		if err != nil {
			return 0, fmt.Errorf("lookup series %d: %w", req.TMDBID, err)
		}
		title = tv.Name
		if tvdbID == 0 {
			ext, err := c.catalog.GetTVExternalIDs(ctx, req.TMDBID)
			if err != nil {
				return 0, fmt.Errorf("lookup external ids %d: %w", req.TMDBID, err)
			}
			tvdbID = ext.TVDBID
		}
	}
	if tvdbID == 0 {
		return 0, fmt.Errorf("series %d has no tvdb id", req.TMDBID)
	}

	series, err := c.seriesClient(srv).AddSeries(ctx, dlm.AddSeriesInput{
		TVDBID:         tvdbID,
		Title:          title,
		Seasons:        req.Seasons,
		QualityProfile: srv.QualityProfile,
		RootFolder:     srv.RootFolder,
		Tags:           srv.Tags,
		SearchOnAdd:    srv.SearchOnAdd,
	})
	if err != nil {
		return 0, err
	}

	if rec.TVDBID == nil {
		if err := c.serial.Do(ctx, "requests.tvdb_id", func() error {
			return c.mediaStore.SetTVDBID(rec.ID, tvdbID)
		}); err != nil {
			return 0, err
		}
	}
	return series.ServiceID, nil
}

// fail records a dispatch failure.
func (c *Controller) fail(ctx context.Context, req *Request, message string) error {
	err := c.serial.Do(ctx, "requests.failed", func() error {
		return c.store.SetFailed(req.ID, message)
	})
	if err != nil {
		return fmt.Errorf("mark request %d failed: %w", req.ID, err)
	}
	req.Status = StatusFailed
	req.Message = &message

	ev := events.NewRequestEvent(events.EventRequestFailed, req.ID, req.UserID, req.TMDBID, string(req.Type), req.Is4K)
	ev.Seasons = req.Seasons
	ev.Message = message
	if c.bus != nil {
		_ = c.bus.Publish(ctx, ev)
	}
	c.logger.Warn("request failed", "request_id", req.ID, "message", message)
	return nil
}

func (c *Controller) publish(ctx context.Context, kind string, req *Request) {
	if c.bus == nil {
		return
	}
	ev := events.NewRequestEvent(kind, req.ID, req.UserID, req.TMDBID, string(req.Type), req.Is4K)
	ev.Seasons = req.Seasons
	_ = c.bus.Publish(ctx, ev)
}
