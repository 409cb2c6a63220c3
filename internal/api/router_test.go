package api

import (
	"bytes"
	"context"
	"database/sql"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/isdelr/roleboard/internal/auth"
	"github.com/isdelr/roleboard/internal/database"
	"github.com/isdelr/roleboard/internal/models"
	"github.com/isdelr/roleboard/internal/services"
	"github.com/isdelr/roleboard/internal/session"
	"github.com/isdelr/roleboard/internal/views"
)

type testApp struct {
	handler  http.Handler
	db       *sql.DB
	users    *services.UserService
	sessions *session.Manager
	admin    models.User
	bob      models.User
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	db, err := database.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(db))

	users := services.NewUserService(db, time.Second, bcrypt.MinCost)
	sessions := session.NewManager([]byte("router-test-key-router-test-key!"), time.Hour)
	authService := services.NewAuthService(users, sessions, bcrypt.MinCost)
	renderer, err := views.New()
	require.NoError(t, err)

	ctx := context.Background()
	admin, err := users.CreateUser(ctx, "admin", "admin-pw", true)
	require.NoError(t, err)
	bob, err := users.CreateUser(ctx, "bob", "bob-pw", false)
	require.NoError(t, err)

	return &testApp{
		handler:  NewRouter(Options{}, sessions, authService, users, renderer),
		db:       db,
		users:    users,
		sessions: sessions,
		admin:    admin,
		bob:      bob,
	}
}

// client carries one browser's session cookie.
type client struct {
	app   *testApp
	token string
}

func (c *client) do(t *testing.T, r *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	if c.token != "" {
		r.AddCookie(&http.Cookie{Name: session.CookieName, Value: c.token})
	}
	rec := httptest.NewRecorder()
	c.app.handler.ServeHTTP(rec, r)
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == session.CookieName {
			c.token = ck.Value
		}
	}
	return rec
}

func (c *client) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	return c.do(t, httptest.NewRequest(http.MethodGet, path, nil))
}

func (c *client) postForm(t *testing.T, path string, form url.Values, csrfHeader string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if csrfHeader != "" {
		r.Header.Set(auth.CSRFHeader, csrfHeader)
	}
	return c.do(t, r)
}

func (c *client) csrf(t *testing.T) string {
	t.Helper()
	sess, ok := c.app.sessions.Resolve(c.token)
	require.True(t, ok, "client has no live session")
	return sess.CSRFToken
}

func (a *testApp) login(t *testing.T, username, password string) *client {
	t.Helper()
	c := &client{app: a}
	rec := c.postForm(t, "/login", url.Values{"username": {username}, "password": {password}}, "")
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	require.NotEmpty(t, c.token)
	return c
}

func (a *testApp) user(t *testing.T, id int64) models.User {
	t.Helper()
	u, err := a.users.GetUserByID(context.Background(), id)
	require.NoError(t, err)
	return u
}

func TestLogin_SetsHardenedCookieAndRedirectsByRole(t *testing.T) {
	app := newTestApp(t)
	c := &client{app: app}

	rec := c.postForm(t, "/login", url.Values{"username": {"admin"}, "password": {"admin-pw"}}, "")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/admin", rec.Header().Get("Location"))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, cookies[0].SameSite)

	bob := app.login(t, "bob", "bob-pw")
	rec = bob.get(t, "/")
	assert.Equal(t, "/user", rec.Header().Get("Location"))
}

func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	app := newTestApp(t)

	wrongPass := (&client{app: app}).postForm(t, "/login", url.Values{"username": {"bob"}, "password": {"nope"}}, "")
	unknown := (&client{app: app}).postForm(t, "/login", url.Values{"username": {"zed"}, "password": {"nope"}}, "")

	assert.Equal(t, http.StatusUnauthorized, wrongPass.Code)
	assert.Equal(t, wrongPass.Code, unknown.Code)
	assert.Equal(t, wrongPass.Body.String(), unknown.Body.String())
	assert.Contains(t, wrongPass.Body.String(), "Invalid credentials")
	assert.Empty(t, wrongPass.Result().Cookies())
	assert.Empty(t, unknown.Result().Cookies())
	assert.Equal(t, 0, app.sessions.Len())
}

func TestLogin_ReplacesPriorSession(t *testing.T) {
	app := newTestApp(t)
	c := app.login(t, "bob", "bob-pw")
	first := c.token

	rec := c.postForm(t, "/login", url.Values{"username": {"bob"}, "password": {"bob-pw"}}, "")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.NotEqual(t, first, c.token)

	_, ok := app.sessions.Resolve(first)
	assert.False(t, ok)
	assert.Equal(t, 1, app.sessions.Len())
}

func TestScenario_AdminListingContainsAdminRow(t *testing.T) {
	app := newTestApp(t)
	admin := app.login(t, "admin", "admin-pw")

	rec := admin.get(t, "/admin")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `data-user-id="`+strconv.FormatInt(app.admin.ID, 10)+`" data-admin="true"`)
	assert.Contains(t, body, `data-user-id="`+strconv.FormatInt(app.bob.ID, 10)+`" data-admin="false"`)

	// The page exposes the session's token to forms.
	m := regexp.MustCompile(`<meta name="csrf-token" content="([0-9a-f]+)">`).FindStringSubmatch(body)
	require.Len(t, m, 2)
	assert.Equal(t, admin.csrf(t), m[1])
}

func TestPages_RequireSession(t *testing.T) {
	app := newTestApp(t)
	anon := &client{app: app}

	for _, path := range []string{"/user", "/admin", "/profile/1", "/"} {
		rec := anon.get(t, path)
		assert.Equal(t, http.StatusSeeOther, rec.Code, path)
		assert.Equal(t, "/login", rec.Header().Get("Location"), path)
	}

	rec := anon.get(t, "/login")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPages_RoleRouting(t *testing.T) {
	app := newTestApp(t)
	admin := app.login(t, "admin", "admin-pw")
	bob := app.login(t, "bob", "bob-pw")

	rec := admin.get(t, "/user")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/admin", rec.Header().Get("Location"))

	rec = bob.get(t, "/user")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Welcome, bob")

	rec = bob.get(t, "/admin")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = bob.get(t, "/login")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/user", rec.Header().Get("Location"))
}

func TestLogout_IsFinalAndIdempotent(t *testing.T) {
	app := newTestApp(t)
	bob := app.login(t, "bob", "bob-pw")
	token := bob.token

	rec := bob.get(t, "/logout")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	// Replay the old cookie.
	replay := &client{app: app, token: token}
	rec = replay.get(t, "/user")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	rec = (&client{app: app, token: token}).get(t, "/logout")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	rec = (&client{app: app}).get(t, "/logout")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
}

func TestUpdateProfile_CSRFFailuresNeverWrite(t *testing.T) {
	app := newTestApp(t)
	bob := app.login(t, "bob", "bob-pw")
	admin := app.login(t, "admin", "admin-pw")
	form := url.Values{"profile_pic": {"https://evil.example/x.png"}}

	cases := map[string]struct {
		c      *client
		header string
		form   url.Values
	}{
		"no token":            {bob, "", form},
		"wrong token":         {bob, "deadbeef", form},
		"other session token": {bob, admin.csrf(t), form},
		"anonymous":           {&client{app: app}, bob.csrf(t), form},
		"anonymous field":     {&client{app: app}, "", url.Values{"profile_pic": form["profile_pic"], auth.CSRFFormField: {bob.csrf(t)}}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec := tc.c.postForm(t, "/update-profile", tc.form, tc.header)
			assert.Equal(t, http.StatusForbidden, rec.Code)
			assert.Empty(t, app.user(t, app.bob.ID).ProfilePic)
		})
	}
}

func TestUpdateProfile_WritesOwnRowAndSnapshot(t *testing.T) {
	app := newTestApp(t)
	bob := app.login(t, "bob", "bob-pw")

	form := url.Values{"profile_pic": {"https://img.example/bob.png"}, auth.CSRFFormField: {bob.csrf(t)}}
	rec := bob.postForm(t, "/update-profile", form, "")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/user", rec.Header().Get("Location"))

	assert.Equal(t, "https://img.example/bob.png", app.user(t, app.bob.ID).ProfilePic)
	assert.Empty(t, app.user(t, app.admin.ID).ProfilePic)

	sess, ok := app.sessions.Resolve(bob.token)
	require.True(t, ok)
	assert.Equal(t, "https://img.example/bob.png", sess.Identity.ProfilePic)
}

func TestUpdateProfile_TooLarge(t *testing.T) {
	app := newTestApp(t)
	bob := app.login(t, "bob", "bob-pw")

	form := url.Values{"profile_pic": {strings.Repeat("a", 64<<10+1)}}
	rec := bob.postForm(t, "/update-profile", form, bob.csrf(t))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, app.user(t, app.bob.ID).ProfilePic)
}

func TestUpdateProfile_MultipartWithHeaderToken(t *testing.T) {
	app := newTestApp(t)
	bob := app.login(t, "bob", "bob-pw")

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("profile_pic", "https://img.example/a.png"))
	require.NoError(t, mw.Close())

	r := httptest.NewRequest(http.MethodPost, "/update-profile", &body)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	r.Header.Set(auth.CSRFHeader, bob.csrf(t))
	rec := bob.do(t, r)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "https://img.example/a.png", app.user(t, app.bob.ID).ProfilePic)
}

func TestUpdateProfile_MissingFieldKeepsPicture(t *testing.T) {
	app := newTestApp(t)
	bob := app.login(t, "bob", "bob-pw")
	require.NoError(t, app.users.UpdateProfilePic(context.Background(), app.bob.ID, "keep me"))

	rec := bob.postForm(t, "/update-profile", url.Values{}, bob.csrf(t))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "keep me", app.user(t, app.bob.ID).ProfilePic)
}

func TestPromote_NonAdminSelfPromotionRejected(t *testing.T) {
	app := newTestApp(t)
	bob := app.login(t, "bob", "bob-pw")

	form := url.Values{"user_id": {strconv.FormatInt(app.bob.ID, 10)}}
	rec := bob.postForm(t, "/promote-user", form, bob.csrf(t))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, app.user(t, app.bob.ID).IsAdmin)

	admin := app.login(t, "admin", "admin-pw")
	rec = admin.get(t, "/admin")
	assert.Contains(t, rec.Body.String(), `data-user-id="`+strconv.FormatInt(app.bob.ID, 10)+`" data-admin="false"`)
}

func TestPromote_AdminMayPromoteAnyoneIncludingSelf(t *testing.T) {
	app := newTestApp(t)
	admin := app.login(t, "admin", "admin-pw")
	bob := app.login(t, "bob", "bob-pw")

	rec := admin.postForm(t, "/promote-user", url.Values{"user_id": {strconv.FormatInt(app.admin.ID, 10)}}, admin.csrf(t))
	assert.Equal(t, http.StatusSeeOther, rec.Code)

	rec = admin.postForm(t, "/promote-user", url.Values{"user_id": {strconv.FormatInt(app.bob.ID, 10)}}, admin.csrf(t))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/admin", rec.Header().Get("Location"))
	assert.True(t, app.user(t, app.bob.ID).IsAdmin)

	rec = admin.get(t, "/admin")
	assert.Contains(t, rec.Body.String(), `data-user-id="`+strconv.FormatInt(app.bob.ID, 10)+`" data-admin="true"`)

	// Bob's live session still carries the old snapshot.
	rec = bob.get(t, "/admin")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	bob = app.login(t, "bob", "bob-pw")
	rec = bob.get(t, "/admin")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPromote_InputValidation(t *testing.T) {
	app := newTestApp(t)
	admin := app.login(t, "admin", "admin-pw")

	for _, id := range []string{"", "abc", "1.5", "1; DROP TABLE users"} {
		rec := admin.postForm(t, "/promote-user", url.Values{"user_id": {id}}, admin.csrf(t))
		assert.Equal(t, http.StatusBadRequest, rec.Code, id)
	}

	rec := admin.postForm(t, "/promote-user", url.Values{"user_id": {"9999"}}, admin.csrf(t))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = admin.postForm(t, "/promote-user", url.Values{"user_id": {strconv.FormatInt(app.bob.ID, 10)}}, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, app.user(t, app.bob.ID).IsAdmin)
}

func TestPromote_JSONBody(t *testing.T) {
	app := newTestApp(t)
	admin := app.login(t, "admin", "admin-pw")

	r := httptest.NewRequest(http.MethodPost, "/promote-user",
		strings.NewReader(`{"user_id": `+strconv.FormatInt(app.bob.ID, 10)+`}`))
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set(auth.CSRFHeader, admin.csrf(t))

	rec := admin.do(t, r)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.True(t, app.user(t, app.bob.ID).IsAdmin)
}

func TestProfile_SVGIsSandboxed(t *testing.T) {
	app := newTestApp(t)
	bob := app.login(t, "bob", "bob-pw")

	svg := `<svg xmlns="http://www.w3.org/2000/svg" onload="alert(document.cookie)"><script>alert(1)</script></svg>`
	rec := bob.postForm(t, "/update-profile", url.Values{"profile_pic": {svg}}, bob.csrf(t))
	require.Equal(t, http.StatusSeeOther, rec.Code)

	rec = bob.get(t, "/profile/"+strconv.FormatInt(app.bob.ID, 10))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "sandbox")
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "default-src 'none'")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, svg, rec.Body.String())

	// Anywhere else the SVG only appears as an <img> reference.
	admin := app.login(t, "admin", "admin-pw")
	rec = admin.get(t, "/admin")
	assert.NotContains(t, rec.Body.String(), "<script>")
	assert.Contains(t, rec.Body.String(), `src="/profile/`+strconv.FormatInt(app.bob.ID, 10)+`"`)
}

func TestProfile_HTMLBlobIsEscaped(t *testing.T) {
	app := newTestApp(t)
	bob := app.login(t, "bob", "bob-pw")

	rec := bob.postForm(t, "/update-profile", url.Values{"profile_pic": {`<img src=x onerror=alert(1)>`}}, bob.csrf(t))
	require.Equal(t, http.StatusSeeOther, rec.Code)

	admin := app.login(t, "admin", "admin-pw")
	rec = admin.get(t, "/profile/"+strconv.FormatInt(app.bob.ID, 10))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "<h1>bob</h1>")
	assert.NotContains(t, rec.Body.String(), "<img src=x")
}

func TestProfile_Errors(t *testing.T) {
	app := newTestApp(t)
	bob := app.login(t, "bob", "bob-pw")

	assert.Equal(t, http.StatusBadRequest, bob.get(t, "/profile/abc").Code)
	assert.Equal(t, http.StatusNotFound, bob.get(t, "/profile/9999").Code)
}

func TestUnmatchedRoute(t *testing.T) {
	app := newTestApp(t)
	rec := (&client{app: app}).get(t, "/does-not-exist")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Page not found")
}

func TestWrongMethod_IsUnmatched(t *testing.T) {
	app := newTestApp(t)
	admin := app.login(t, "admin", "admin-pw")

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/update-profile"},
		{http.MethodGet, "/promote-user"},
		{http.MethodPost, "/admin"},
		{http.MethodDelete, "/login"},
	} {
		for name, c := range map[string]*client{"anonymous": {app: app}, "admin": admin} {
			rec := c.do(t, httptest.NewRequest(tc.method, tc.path, nil))
			assert.Equal(t, http.StatusNotFound, rec.Code, "%s %s %s", name, tc.method, tc.path)
			assert.Contains(t, rec.Body.String(), "Page not found")
		}
	}
}

func TestStoreFailure_IsGeneric500(t *testing.T) {
	app := newTestApp(t)
	admin := app.login(t, "admin", "admin-pw")
	require.NoError(t, app.db.Close())

	rec := admin.get(t, "/admin")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Server error\n", rec.Body.String())
}

func TestCORS_OnlyWhenConfigured(t *testing.T) {
	app := newTestApp(t)
	r := httptest.NewRequest(http.MethodGet, "/login", nil)
	r.Header.Set("Origin", "https://elsewhere.example")
	rec := httptest.NewRecorder()
	app.handler.ServeHTTP(rec, r)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	authService := services.NewAuthService(app.users, app.sessions, bcrypt.MinCost)
	renderer, err := views.New()
	require.NoError(t, err)
	h := NewRouter(Options{AllowedOrigins: []string{"https://app.example"}}, app.sessions, authService, app.users, renderer)

	r = httptest.NewRequest(http.MethodGet, "/login", nil)
	r.Header.Set("Origin", "https://app.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}
