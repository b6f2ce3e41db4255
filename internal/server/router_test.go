package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/juju/clock/testclock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob/memblob"

	"gamecatalog/backend/internal/auth"
	"gamecatalog/backend/internal/catalog"
	"gamecatalog/backend/internal/database"
	"gamecatalog/backend/internal/digest"
	"gamecatalog/backend/internal/handler"
	"gamecatalog/backend/internal/hub"
	"gamecatalog/backend/internal/storage"
	"gamecatalog/backend/pkg/apperror"
	"gamecatalog/backend/pkg/jwt"
)

const testSecret = "test-secret"

var monday = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

// png is the smallest prefix http.DetectContentType recognises as image/png.
var png = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 64)...)

type recordingNotifier struct {
	mu  sync.Mutex
	to  []string
	err map[string]error
}

func (n *recordingNotifier) SendDigest(_ context.Context, to, _, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.err[to]; err != nil {
		return err
	}
	n.to = append(n.to, to)
	return nil
}

func (n *recordingNotifier) recipients() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.to...)
}

type testEnv struct {
	router   *gin.Engine
	store    *catalog.Store
	covers   *storage.Covers
	hub      *hub.Hub
	notifier *recordingNotifier
	admin    string
	user     string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := filepath.Join(t.TempDir(), "catalog.db") + "?_pragma=foreign_keys(1)"
	db, err := database.Open(sqlite.Open(dsn), zerolog.Nop())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	store := catalog.New(db)
	covers := storage.NewCovers(memblob.OpenBucket(nil), 1024)
	t.Cleanup(func() { _ = covers.Close() })

	n := &recordingNotifier{err: map[string]error{}}
	job := digest.NewJob(store, n, digest.Config{}, testclock.NewClock(monday), zerolog.Nop())
	events := hub.NewHub(zerolog.Nop())
	job.AddObserver(events)

	authz, err := auth.NewAuthorizer(zerolog.Nop())
	require.NoError(t, err)

	h := handler.New(handler.Deps{
		Store:     store,
		Covers:    covers,
		Job:       job,
		Hub:       events,
		JWTSecret: testSecret,
		Logger:    zerolog.Nop(),
	})
	router := NewRouter(RouterDeps{
		Handler:    h,
		Authorizer: authz,
		Users:      store,
		JWTSecret:  testSecret,
		Logger:     zerolog.Nop(),
	})

	env := &testEnv{router: router, store: store, covers: covers, hub: events, notifier: n}
	env.admin = env.tokenFor(t, "admin@example.com", "ROLE_ADMIN")
	env.user = env.tokenFor(t, "user@example.com")
	return env
}

func (e *testEnv) tokenFor(t *testing.T, email string, roles ...string) string {
	t.Helper()
	user, err := e.store.CreateUser(context.Background(), catalog.UserDraft{
		Email:    email,
		Password: "Password123!",
		Roles:    roles,
	})
	require.NoError(t, err)
	token, err := jwt.GenerateToken(testSecret, user.ID)
	require.NoError(t, err)
	return token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type idResponse struct {
	ID         uint   `json:"id"`
	Title      string `json:"title"`
	CoverImage string `json:"coverImage"`
}

type userResponse struct {
	ID         uint     `json:"id"`
	Email      string   `json:"email"`
	Roles      []string `json:"roles"`
	Newsletter bool     `json:"newsletter"`
}

// seedCatalog creates an editor and two categories as admin.
func (e *testEnv) seedCatalog(t *testing.T) (editor, action, strategy uint) {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/v1/editors", e.admin, gin.H{"name": "Nintendo", "country": "Japan"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	editor = decode[idResponse](t, w).ID

	w = e.do(t, http.MethodPost, "/api/v1/categories", e.admin, gin.H{"name": "Action"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	action = decode[idResponse](t, w).ID

	w = e.do(t, http.MethodPost, "/api/v1/categories", e.admin, gin.H{"name": "Strategy"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	strategy = decode[idResponse](t, w).ID
	return editor, action, strategy
}

func multipartGame(t *testing.T, fields map[string][]string, cover []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for name, values := range fields {
		for _, v := range values {
			require.NoError(t, mw.WriteField(name, v))
		}
	}
	if cover != nil {
		fw, err := mw.CreateFormFile("coverImage", "cover.png")
		require.NoError(t, err)
		_, err = fw.Write(cover)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func (e *testEnv) doMultipart(t *testing.T, method, path, token string, fields map[string][]string, cover []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartGame(t, fields, cover)
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestPingAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/ping", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"pong"}`, w.Body.String())

	w = env.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/swagger/doc.json", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/digest/run")
}

func TestRegisterLoginAndMe(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{"email": "New@Example.com", "password": "Password123!"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotEmpty(t, decode[handler.TokenResponse](t, w).Token)

	w = env.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{"email": "new@example.com", "password": "Password123!"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{"email": "weak@example.com", "password": "password"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[handler.ErrorResponse](t, w).Fields, "password")

	w = env.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "new@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "new@example.com", "password": "Password123!"})
	require.Equal(t, http.StatusOK, w.Code)
	token := decode[handler.TokenResponse](t, w).Token

	w = env.do(t, http.MethodGet, "/api/v1/users/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "assword")
	me := decode[userResponse](t, w)
	assert.Equal(t, "new@example.com", me.Email)
	assert.Equal(t, []string{"ROLE_USER"}, me.Roles)
	assert.True(t, me.Newsletter)

	w = env.do(t, http.MethodGet, "/api/v1/users/me", env.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"ROLE_ADMIN", "ROLE_USER"}, decode[userResponse](t, w).Roles)
}

func TestUpdateMe(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	subscribed, err := env.store.FindSubscribedUsers(ctx)
	require.NoError(t, err)
	require.Len(t, subscribed, 2)

	w := env.do(t, http.MethodGet, "/api/v1/users/me", env.user, nil)
	require.Equal(t, http.StatusOK, w.Code)
	id := decode[userResponse](t, w).ID

	w = env.do(t, http.MethodPut, fmt.Sprintf("/api/v1/users/%d", id), env.user, gin.H{"newsletter": false})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodPut, "/api/v1/users/me", env.user, gin.H{
		"newsletter": false,
		"password":   "NewPassword456!",
		"roles":      []string{"ROLE_ADMIN"},
		"email":      "other@example.com",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	me := decode[userResponse](t, w)
	assert.False(t, me.Newsletter)
	assert.Equal(t, []string{"ROLE_USER"}, me.Roles)
	assert.Equal(t, "user@example.com", me.Email)

	subscribed, err = env.store.FindSubscribedUsers(ctx)
	require.NoError(t, err)
	require.Len(t, subscribed, 1)
	assert.Equal(t, "admin@example.com", subscribed[0].Email)

	w = env.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "user@example.com", "password": "NewPassword456!"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPut, "/api/v1/users/me", env.user, gin.H{"password": "weak"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[handler.ErrorResponse](t, w).Fields, "password")

	w = env.do(t, http.MethodPut, "/api/v1/users/me", env.user, gin.H{"newsletter": true})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[userResponse](t, w).Newsletter)
}

func TestAccessControl(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		want   int
	}{
		{"no token", http.MethodGet, "/api/v1/video_games", "", nil, http.StatusUnauthorized},
		{"bad token", http.MethodGet, "/api/v1/video_games", "garbage", nil, http.StatusUnauthorized},
		{"user lists games", http.MethodGet, "/api/v1/video_games", env.user, nil, http.StatusOK},
		{"user cannot create game", http.MethodPost, "/api/v1/video_games", env.user, gin.H{"title": "x"}, http.StatusForbidden},
		{"user creates editor", http.MethodPost, "/api/v1/editors", env.user, gin.H{"name": "Sega", "country": "Japan"}, http.StatusCreated},
		{"user cannot create user", http.MethodPost, "/api/v1/users", env.user, gin.H{}, http.StatusForbidden},
		{"user cannot run digest", http.MethodPost, "/api/v1/digest/run", env.user, nil, http.StatusForbidden},
		{"admin lists users", http.MethodGet, "/api/v1/users", env.admin, nil, http.StatusOK},
		{"admin previews digest", http.MethodGet, "/api/v1/digest/upcoming", env.admin, nil, http.StatusOK},
		{"invalid id", http.MethodGet, "/api/v1/editors/abc", env.user, nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestVideoGameLifecycle(t *testing.T) {
	env := newTestEnv(t)
	editor, action, strategy := env.seedCatalog(t)

	w := env.do(t, http.MethodPost, "/api/v1/video_games", env.admin, gin.H{
		"title":       "Zelda",
		"releaseDate": "2026-10-21",
		"editor":      editor,
		"categories":  []uint{action},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	game := decode[idResponse](t, w)
	assert.Equal(t, fmt.Sprintf("/api/v1/video_games/%d", game.ID), w.Header().Get("Location"))

	w = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/video_games/%d", game.ID), env.user, nil)
	require.Equal(t, http.StatusOK, w.Code)
	fetched := decode[struct {
		ReleaseDate time.Time `json:"releaseDate"`
	}](t, w)
	assert.True(t, fetched.ReleaseDate.Equal(time.Date(2026, 10, 21, 0, 0, 0, 0, time.UTC)), fetched.ReleaseDate.String())
	assert.Contains(t, w.Body.String(), `"name":"Nintendo"`)

	w = env.do(t, http.MethodPut, fmt.Sprintf("/api/v1/video_games/%d", game.ID), env.admin, gin.H{
		"title":      "Zelda II",
		"categories": []uint{strategy},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"title":"Zelda II"`)
	assert.Contains(t, w.Body.String(), `"name":"Strategy"`)
	assert.NotContains(t, w.Body.String(), `"name":"Action"`)

	w = env.do(t, http.MethodGet, "/api/v1/video_games?page=1&limit=2", env.user, nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[handler.PaginatedResponse[idResponse]](t, w)
	assert.Len(t, page.Data, 1)
	assert.Equal(t, int64(1), page.Meta.TotalItems)
	assert.Equal(t, 2, page.Meta.PageSize)

	w = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/editors/%d/video_games", editor), env.user, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]idResponse](t, w), 1)

	w = env.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/editors/%d", editor), env.admin, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/video_games/%d", game.ID), env.admin, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/video_games/%d", game.ID), env.admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/editors/%d", editor), env.admin, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestCreateVideoGameErrors(t *testing.T) {
	env := newTestEnv(t)
	editor, action, _ := env.seedCatalog(t)

	w := env.do(t, http.MethodPost, "/api/v1/video_games", env.admin, gin.H{"editor": editor})
	require.Equal(t, http.StatusBadRequest, w.Code)
	fields := decode[handler.ErrorResponse](t, w).Fields
	assert.Contains(t, fields, "title")
	assert.Contains(t, fields, "categories")

	w = env.do(t, http.MethodPost, "/api/v1/video_games", env.admin, gin.H{
		"title": "Zelda", "releaseDate": "next week", "editor": editor, "categories": []uint{action},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[handler.ErrorResponse](t, w).Fields, "releaseDate")

	w = env.do(t, http.MethodPost, "/api/v1/video_games", env.admin, gin.H{
		"title": "Zelda", "releaseDate": "2026-10-21", "editor": 999, "categories": []uint{action},
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestVideoGameCover(t *testing.T) {
	env := newTestEnv(t)
	editor, action, strategy := env.seedCatalog(t)

	fields := map[string][]string{
		"title":        {"Metroid"},
		"releaseDate":  {"2026-10-22"},
		"editor":       {fmt.Sprint(editor)},
		"categories[]": {fmt.Sprint(action), fmt.Sprint(strategy)},
	}
	w := env.doMultipart(t, http.MethodPost, "/api/v1/video_games", env.admin, fields, png)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	game := decode[idResponse](t, w)
	require.NotEmpty(t, game.CoverImage)
	assert.True(t, strings.HasSuffix(game.CoverImage, ".png"))

	w = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/video_games/%d/cover", game.ID), env.user, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, png, w.Body.Bytes())

	w = env.doMultipart(t, http.MethodPut, fmt.Sprintf("/api/v1/video_games/%d", game.ID), env.admin,
		map[string][]string{"title": {"Metroid Prime"}}, png)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[idResponse](t, w)
	assert.Equal(t, "Metroid Prime", updated.Title)
	assert.NotEqual(t, game.CoverImage, updated.CoverImage)

	_, _, err := env.covers.Open(context.Background(), game.CoverImage)
	assert.True(t, apperror.Is(err, apperror.KindNotFound), "old cover deleted")

	w = env.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/video_games/%d", game.ID), env.admin, nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	_, _, err = env.covers.Open(context.Background(), updated.CoverImage)
	assert.True(t, apperror.Is(err, apperror.KindNotFound), "cover deleted with game")
}

func TestVideoGameCoverRejected(t *testing.T) {
	env := newTestEnv(t)
	editor, action, _ := env.seedCatalog(t)
	fields := map[string][]string{
		"title":       {"Metroid"},
		"releaseDate": {"2026-10-22"},
		"editor":      {fmt.Sprint(editor)},
		"categories":  {fmt.Sprint(action)},
	}

	w := env.doMultipart(t, http.MethodPost, "/api/v1/video_games", env.admin, fields, []byte("plain text, not an image"))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[handler.ErrorResponse](t, w).Fields, "coverImage")

	w = env.doMultipart(t, http.MethodPost, "/api/v1/video_games", env.admin, fields, append(png, make([]byte, 2048)...))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	unknown := map[string][]string{
		"title":       {"Metroid"},
		"releaseDate": {"2026-10-22"},
		"editor":      {"999"},
		"categories":  {fmt.Sprint(action)},
	}
	w = env.doMultipart(t, http.MethodPost, "/api/v1/video_games", env.admin, unknown, png)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/video_games", env.admin, nil)
	assert.Equal(t, int64(0), decode[handler.PaginatedResponse[idResponse]](t, w).Meta.TotalItems)
}

func TestDigestRun(t *testing.T) {
	env := newTestEnv(t)
	editor, action, _ := env.seedCatalog(t)
	env.notifier.err["user@example.com"] = fmt.Errorf("mailbox full")

	w := env.do(t, http.MethodPost, "/api/v1/digest/run", env.admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	report := decode[digest.Report](t, w)
	assert.Equal(t, digest.OutcomeNothingToSend, report.Outcome)

	w = env.do(t, http.MethodPost, "/api/v1/video_games", env.admin, gin.H{
		"title": "Zelda", "releaseDate": "2026-10-21", "editor": editor, "categories": []uint{action},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, "/api/v1/digest/upcoming", env.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	upcoming := decode[handler.UpcomingResponse](t, w)
	assert.Equal(t, 7, upcoming.HorizonDays)
	require.Len(t, upcoming.Games, 1)

	w = env.do(t, http.MethodPost, "/api/v1/digest/run", env.admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	report = decode[digest.Report](t, w)
	assert.Equal(t, digest.OutcomeCompleted, report.Outcome)
	assert.Equal(t, 1, report.Games)
	assert.Equal(t, 2, report.Attempted)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, []string{"admin@example.com"}, env.notifier.recipients())
}

func TestDigestEventStream(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/digest/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer "+env.admin)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		env.router.ServeHTTP(w, req)
	}()

	require.Eventually(t, func() bool { return env.hub.Len() == 1 }, time.Second, 5*time.Millisecond)
	env.hub.Broadcast(digest.Event{Type: digest.EventSent, Recipient: "a@example.com"})
	// The hub buffers per client, so cancelling right away can drop the
	// event; wait until the client channel has been drained.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stream did not stop after cancel")
	}
	assert.Equal(t, 0, env.hub.Len())
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "event:digest")
	assert.Contains(t, w.Body.String(), `"recipient":"a@example.com"`)
}
