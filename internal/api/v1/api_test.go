package v1

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	_ "modernc.org/sqlite"

	"github.com/streamarr/streamarr/internal/api/v1/mocks"
	"github.com/streamarr/streamarr/internal/cache"
	"github.com/streamarr/streamarr/internal/dlm"
	"github.com/streamarr/streamarr/internal/events"
	"github.com/streamarr/streamarr/internal/media"
	"github.com/streamarr/streamarr/internal/migrations"
	"github.com/streamarr/streamarr/internal/quota"
	"github.com/streamarr/streamarr/internal/reconcile"
	"github.com/streamarr/streamarr/internal/request"
	"github.com/streamarr/streamarr/internal/syncer"
	"github.com/streamarr/streamarr/internal/webhook"
	"github.com/streamarr/streamarr/internal/writer"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:?_foreign_keys=on")
	require.NoError(t, err, "open db")
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(migrations.InitialSQL)
	require.NoError(t, err, "apply schema")
	return db
}

type apiFixture struct {
	mux      *http.ServeMux
	server   *Server
	deps     ServerDeps
	requests *request.Store
	media    *media.Store
	servers  *dlm.ServerStore
	perms    *quota.PermissionStore
	sync     *mocks.MockSyncService
	hook     *mocks.MockWebhookProcessor
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	db := setupTestDB(t)
	ctrl := gomock.NewController(t)

	serial := writer.New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = serial.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	f := &apiFixture{
		requests: request.NewStore(db),
		media:    media.NewStore(db),
		servers:  dlm.NewServerStore(db),
		perms:    quota.NewPermissionStore(db),
		sync:     mocks.NewMockSyncService(ctrl),
		hook:     mocks.NewMockWebhookProcessor(ctrl),
	}

	engine := quota.NewEngine(f.requests, f.media, f.perms, nil)
	controller := request.NewController(f.requests, f.media, engine, f.servers, nil, serial, nil, nil)
	recon := reconcile.NewEngine(f.media, cache.NewStore(db), f.requests, nil, serial, nil, nil)

	f.deps = ServerDeps{
		Requests:   f.requests,
		Controller: controller,
		Media:      f.media,
		Reconcile:  recon,
		Quota:      engine,
		Perms:      f.perms,
		Servers:    f.servers,
		Serial:     serial,
		Webhook:    f.hook,
		Sync:       f.sync,
		EventLog:   events.NewEventLog(db),
	}

	srv, err := New(f.deps, nil)
	require.NoError(t, err)
	f.server = srv
	f.mux = http.NewServeMux()
	srv.RegisterRoutes(f.mux)
	return f
}

func (f *apiFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	f.mux.ServeHTTP(w, req)
	return w
}

func TestNew_MissingDependency(t *testing.T) {
	_, err := New(ServerDeps{}, nil)
	assert.ErrorIs(t, err, ErrMissingDependency)
}

func TestSubmitRequest_Created(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/requests",
		`{"user_id":1,"tmdb_id":603,"media_type":"movie"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp submitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Admitted)
	assert.Equal(t, "admitted", resp.Code)
	require.NotNil(t, resp.Request)
	assert.Equal(t, "pending", resp.Request.Status)
	assert.Equal(t, int64(603), resp.Request.TMDBID)
}

func TestSubmitRequest_DuplicateConflict(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/requests",
		`{"user_id":1,"tmdb_id":603,"media_type":"movie"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/requests",
		`{"user_id":2,"tmdb_id":603,"media_type":"movie"}`)
	require.Equal(t, http.StatusConflict, w.Code)

	// The rejection names the request already holding the slot.
	var resp submitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Admitted)
	assert.Equal(t, "already_requested", resp.Code)
	require.NotNil(t, resp.Request)
	assert.Equal(t, int64(1), resp.Request.UserID)
	assert.Equal(t, int64(603), resp.Request.TMDBID)
	assert.Equal(t, "pending", resp.Request.Status)
}

func TestSubmitRequest_Validation(t *testing.T) {
	f := newAPIFixture(t)

	tests := []struct {
		name string
		body string
	}{
		{"bad json", `{`},
		{"bad type", `{"user_id":1,"tmdb_id":603,"media_type":"book"}`},
		{"missing ids", `{"media_type":"movie"}`},
		{"seasons on movie", `{"user_id":1,"tmdb_id":603,"media_type":"movie","seasons":[1]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, http.MethodPost, "/api/v1/requests", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestListRequests_Filtered(t *testing.T) {
	f := newAPIFixture(t)

	for _, body := range []string{
		`{"user_id":1,"tmdb_id":603,"media_type":"movie"}`,
		`{"user_id":2,"tmdb_id":1396,"media_type":"tv","seasons":[1]}`,
	} {
		w := f.do(t, http.MethodPost, "/api/v1/requests", body)
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := f.do(t, http.MethodGet, "/api/v1/requests?media_type=tv", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp listRequestsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 1)
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, "tv", resp.Items[0].Type)
	assert.Equal(t, []int{1}, resp.Items[0].Seasons)
}

func TestGetRequest_NotFound(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/requests/999", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeclineRequest(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/requests",
		`{"user_id":1,"tmdb_id":603,"media_type":"movie"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var created submitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	path := "/api/v1/requests/" + itoa(created.Request.ID) + "/decline"
	w = f.do(t, http.MethodPost, path, `{"approver_id":9}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp requestResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "declined", resp.Status)
	require.NotNil(t, resp.ApproverID)
	assert.Equal(t, int64(9), *resp.ApproverID)

	// A second decline hits the pending check.
	w = f.do(t, http.MethodPost, path, `{"approver_id":9}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRemoveRequest(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/requests",
		`{"user_id":1,"tmdb_id":603,"media_type":"movie"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var created submitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	path := "/api/v1/requests/" + itoa(created.Request.ID)
	w = f.do(t, http.MethodDelete, path, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(t, http.MethodDelete, path, "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestGetMedia_WithSeasons(t *testing.T) {
	f := newAPIFixture(t)

	rec, err := f.media.Ensure(media.TypeTV, 1396)
	require.NoError(t, err)
	_, err = f.media.ApplyStatus(rec.ID, media.StatusPartiallyAvailable, false)
	require.NoError(t, err)
	_, err = f.media.ApplySeasonStatus(rec.ID, 1, media.StatusAvailable, false)
	require.NoError(t, err)

	w := f.do(t, http.MethodGet, "/api/v1/media/tv/1396", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp mediaResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "partially_available", resp.Status)
	assert.Equal(t, "unknown", resp.Status4K)
	require.Len(t, resp.Seasons, 1)
	assert.Equal(t, 1, resp.Seasons[0].SeasonNumber)
	assert.Equal(t, "available", resp.Seasons[0].Status)
}

func TestGetMedia_Errors(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/media/movie/603", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/media/book/603", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBatchStatus(t *testing.T) {
	f := newAPIFixture(t)

	rec, err := f.media.Ensure(media.TypeMovie, 603)
	require.NoError(t, err)
	_, err = f.media.ApplyStatus(rec.ID, media.StatusAvailable, false)
	require.NoError(t, err)

	w := f.do(t, http.MethodPost, "/api/v1/media/status",
		`{"media_type":"movie","tmdb_ids":[603,604]}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp batchStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "available", resp.Statuses[603])
	assert.Equal(t, "unknown", resp.Statuses[604])
}

func TestBatchStatus_EmptyBatch(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/media/status",
		`{"media_type":"movie","tmdb_ids":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClearMedia(t *testing.T) {
	f := newAPIFixture(t)

	rec, err := f.media.Ensure(media.TypeMovie, 603)
	require.NoError(t, err)
	_, err = f.media.ApplyStatus(rec.ID, media.StatusAvailable, false)
	require.NoError(t, err)

	w := f.do(t, http.MethodDelete, "/api/v1/media/movie/603", "")
	require.Equal(t, http.StatusNoContent, w.Code)

	got, err := f.media.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, media.StatusDeleted, got.Status)
	assert.Equal(t, media.StatusDeleted, got.Status4k)
}

func TestWebhook_Forwarded(t *testing.T) {
	f := newAPIFixture(t)

	f.hook.EXPECT().Handle(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, p *webhook.Payload) error {
			assert.Equal(t, "Download", p.EventType)
			return nil
		})

	w := f.do(t, http.MethodPost, "/api/v1/webhooks/dlm", `{"eventType":"Download"}`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebhook_ProcessorError(t *testing.T) {
	f := newAPIFixture(t)

	f.hook.EXPECT().Handle(gomock.Any(), gomock.Any()).Return(errors.New("boom"))

	w := f.do(t, http.MethodPost, "/api/v1/webhooks/dlm", `{"eventType":"Download"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestWebhook_NotConfigured(t *testing.T) {
	f := newAPIFixture(t)
	f.server.deps.Webhook = nil

	w := f.do(t, http.MethodPost, "/api/v1/webhooks/dlm", `{"eventType":"Download"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestTriggerSync(t *testing.T) {
	f := newAPIFixture(t)

	f.sync.EXPECT().Trigger().Return(nil)
	w := f.do(t, http.MethodPost, "/api/v1/sync", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), "started")

	f.sync.EXPECT().Trigger().Return(syncer.ErrSyncInProgress)
	w = f.do(t, http.MethodPost, "/api/v1/sync", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), "already_running")
}

func TestSyncStatus(t *testing.T) {
	f := newAPIFixture(t)

	started := time.Date(2026, 3, 1, 4, 0, 0, 0, time.UTC)
	f.sync.EXPECT().Running().Return(false)
	f.sync.EXPECT().LastResult().Return(&syncer.Result{
		StartedAt:  started,
		FinishedAt: started.Add(time.Minute),
		Servers:    2,
		Movies:     120,
		Series:     40,
		Evicted:    3,
	})

	w := f.do(t, http.MethodGet, "/api/v1/sync/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp syncStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Running)
	assert.Equal(t, 2, resp.Servers)
	assert.Equal(t, 120, resp.Movies)
	assert.Equal(t, int64(3), resp.Evicted)
}

func TestGetQuota(t *testing.T) {
	f := newAPIFixture(t)

	limit, days := 5, 7
	require.NoError(t, f.perms.SetDefaults(&quota.PermissionSet{
		MovieLimit: &limit, MovieDays: &days,
	}))

	w := f.do(t, http.MethodPost, "/api/v1/requests",
		`{"user_id":1,"tmdb_id":603,"media_type":"movie"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/users/1/quota", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp quotaResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 5, resp.Movie.Limit)
	assert.Equal(t, 1, resp.Movie.Used)
	require.NotNil(t, resp.Movie.Remaining)
	assert.Equal(t, 4, *resp.Movie.Remaining)

	// Unlimited dimensions omit remaining.
	assert.Zero(t, resp.TV.Limit)
	assert.Nil(t, resp.TV.Remaining)
}

func TestUserPermissions_RoundTrip(t *testing.T) {
	f := newAPIFixture(t)

	// No override row yet.
	w := f.do(t, http.MethodGet, "/api/v1/users/7/permissions", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body userPermissionsBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.HasCustomPermissions)

	w = f.do(t, http.MethodPut, "/api/v1/users/7/permissions",
		`{"has_custom_permissions":true,"can_request_movies_4k":true,"movie_limit":3}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/users/7/permissions", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.HasCustomPermissions)
	require.NotNil(t, body.CanRequestMovies4K)
	assert.True(t, *body.CanRequestMovies4K)
	require.NotNil(t, body.MovieLimit)
	assert.Equal(t, 3, *body.MovieLimit)
}

func TestDefaultPermissions_RoundTrip(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodPut, "/api/v1/settings/permissions",
		`{"auto_approve_movies":true,"tv_limit":2,"tv_days":14}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/settings/permissions", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body permissionSetBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotNil(t, body.AutoApproveMovies)
	assert.True(t, *body.AutoApproveMovies)
	require.NotNil(t, body.TVLimit)
	assert.Equal(t, 2, *body.TVLimit)
	require.NotNil(t, body.TVDays)
	assert.Equal(t, 14, *body.TVDays)
}

func TestServers_CRUD(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/servers",
		`{"name":"radarr","server_type":"movie","url":"http://radarr:7878","api_key":"k","quality_profile":4,"root_folder":"/movies","is_default":true}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created serverResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.True(t, created.IsDefault)
	assert.True(t, created.Active)
	// The API key never round-trips.
	assert.NotContains(t, w.Body.String(), `"api_key"`)

	id := itoa(created.ID)
	w = f.do(t, http.MethodPut, "/api/v1/servers/"+id, `{"name":"radarr-main","search_on_add":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	var updated serverResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Equal(t, "radarr-main", updated.Name)
	assert.True(t, updated.SearchOnAdd)
	assert.Equal(t, "http://radarr:7878", updated.URL)

	w = f.do(t, http.MethodGet, "/api/v1/servers", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []serverResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)

	w = f.do(t, http.MethodDelete, "/api/v1/servers/"+id, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/servers/"+id, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAddServer_Validation(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/servers",
		`{"name":"radarr","server_type":"cd","url":"http://x","api_key":"k"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/servers",
		`{"server_type":"movie","url":"http://x","api_key":"k"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSetDefaultServer(t *testing.T) {
	f := newAPIFixture(t)

	a := &dlm.Server{Name: "a", Type: media.TypeMovie, URL: "http://a", Active: true, IsDefault: true}
	b := &dlm.Server{Name: "b", Type: media.TypeMovie, URL: "http://b", Active: true}
	require.NoError(t, f.servers.Add(a))
	require.NoError(t, f.servers.Add(b))

	w := f.do(t, http.MethodPost, "/api/v1/servers/"+itoa(b.ID)+"/default", "")
	require.Equal(t, http.StatusNoContent, w.Code)

	def, err := f.servers.Default(media.TypeMovie, false)
	require.NoError(t, err)
	assert.Equal(t, b.ID, def.ID)
}

func TestListEvents(t *testing.T) {
	f := newAPIFixture(t)

	_, err := f.deps.EventLog.Append(events.NewBaseEvent("request.created", "request", 1))
	require.NoError(t, err)
	_, err = f.deps.EventLog.Append(events.NewBaseEvent("media.available", "media", 2))
	require.NoError(t, err)

	w := f.do(t, http.MethodGet, "/api/v1/events?limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp listEventsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 1)
	assert.Equal(t, 2, resp.Total)
	assert.Equal(t, "media.available", resp.Items[0].EventType)
}

func TestListEvents_BadPagination(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/events?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVerify_FlagsStaleServer(t *testing.T) {
	f := newAPIFixture(t)

	srv := &dlm.Server{Name: "radarr", Type: media.TypeMovie, URL: "http://radarr", Active: true}
	require.NoError(t, f.servers.Add(srv))

	w := f.do(t, http.MethodGet, "/api/v1/verify", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp VerifyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Checked)
	assert.Zero(t, resp.Passed)
	require.Len(t, resp.Problems, 1)
	assert.Equal(t, srv.ID, resp.Problems[0].ServerID)
}

func TestVerify_RecentSyncPasses(t *testing.T) {
	f := newAPIFixture(t)

	srv := &dlm.Server{Name: "radarr", Type: media.TypeMovie, URL: "http://radarr", Active: true}
	require.NoError(t, f.servers.Add(srv))
	require.NoError(t, f.servers.SetLastLibrarySync(srv.ID, time.Now()))

	w := f.do(t, http.MethodGet, "/api/v1/verify", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp VerifyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Checked)
	assert.Equal(t, 1, resp.Passed)
	assert.Empty(t, resp.Problems)
}

func TestStatusEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }
