package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/oauth2"

	"sac/internal/attendance"
	"sac/internal/config"
	"sac/internal/datasource"
	"sac/internal/matcher"
	"sac/internal/models"
	"sac/internal/session"
)

type fakeAuth struct {
	profile models.SourceProfile
}

func (f *fakeAuth) AuthCodeURL(state string) string {
	return "https://login.example/authorize?state=" + url.QueryEscape(state)
}

func (f *fakeAuth) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if code != "good" {
		return nil, errors.New("invalid_grant")
	}
	return &oauth2.Token{AccessToken: "at"}, nil
}

func (f *fakeAuth) FetchProfile(ctx context.Context, tok *oauth2.Token) (models.SourceProfile, error) {
	return f.profile, nil
}

type fakeDirectory struct {
	entries []models.DirectoryEntry
	err     error
	roles   []matcher.Role
}

func (f *fakeDirectory) LoadDirectory(ctx context.Context, role matcher.Role, _ datasource.Filters) ([]models.DirectoryEntry, error) {
	f.roles = append(f.roles, role)
	return f.entries, f.err
}

type fakeScanner struct {
	decision models.Decision
	err      error
	gotToken string
	gotBound models.BoundIdentity
}

func (f *fakeScanner) ValidateScan(ctx context.Context, token string, now time.Time, bound models.BoundIdentity) (models.Decision, error) {
	f.gotToken, f.gotBound = token, bound
	return f.decision, f.err
}

func studentDirectory() []models.DirectoryEntry {
	return []models.DirectoryEntry{
		{ID: 7, Nom: "Dupont", Prenom: "Jean", Email: "jean.dupont@school.fr", Classe: &models.ClasseRef{ID: 5, Code: "T1", Libelle: "Terminale 1"}},
		{ID: 8, Nom: "Martin", Prenom: "Zoe"},
	}
}

func newTestAPI() (*API, *fakeDirectory, *fakeScanner) {
	dir := &fakeDirectory{entries: studentDirectory()}
	scanner := &fakeScanner{}
	api := &API{
		Sessions: session.NewManager(session.NewMemoryStore(), "test-secret", time.Hour, false),
		Auth: &fakeAuth{profile: models.SourceProfile{
			Mail: "jean.dupont@school.fr", UserPrincipalName: "jean.dupont@school.fr",
			GivenName: "Jean", Surname: "Dupont", JobTitle: "ELEVE",
		}},
		Directory:  dir,
		Scanner:    scanner,
		AfterLogin: "/app",
	}
	return api, dir, scanner
}

// login runs the whole sign-in and returns the session cookie.
func login(t *testing.T, api *API) *http.Cookie {
	t.Helper()
	w := httptest.NewRecorder()
	api.LoginHandler(w, httptest.NewRequest(http.MethodGet, "/api/auth/login", nil))
	if w.Code != http.StatusFound {
		t.Fatalf("login: expected 302, got %d", w.Code)
	}
	loc, _ := url.Parse(w.Header().Get("Location"))
	state := loc.Query().Get("state")
	cookie := w.Result().Cookies()[0]

	req := httptest.NewRequest(http.MethodGet, "/api/auth/redirect?code=good&state="+url.QueryEscape(state), nil)
	req.AddCookie(cookie)
	w = httptest.NewRecorder()
	api.RedirectHandler(w, req)
	if w.Code != http.StatusFound {
		t.Fatalf("redirect: expected 302, got %d: %s", w.Code, w.Body.String())
	}
	if w.Header().Get("Location") != "/app" {
		t.Errorf("redirect target = %q", w.Header().Get("Location"))
	}
	return w.Result().Cookies()[0]
}

func loadSession(t *testing.T, api *API, c *http.Cookie) *session.Session {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(c)
	s, err := api.Sessions.Load(req)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestLoginFlow_BindsIdentity(t *testing.T) {
	api, dir, _ := newTestAPI()
	cookie := login(t, api)

	s := loadSession(t, api, cookie)
	if !s.Authenticated() || s.Bound == nil {
		t.Fatalf("session not bound: %+v", s)
	}
	if s.Bound.ID != 7 || s.Bound.ClasseID != 5 || s.Bound.Role != "eleve" {
		t.Errorf("bound = %+v", s.Bound)
	}
	if s.OAuthState != "" {
		t.Error("oauth state should be consumed")
	}
	if diff := cmp.Diff([]matcher.Role{matcher.RoleStudent}, dir.roles); diff != "" {
		t.Errorf("directory lookups (-want +got):\n%s", diff)
	}
}

func TestLoginFlow_SecondUserGetsOwnIdentity(t *testing.T) {
	api, _, _ := newTestAPI()
	first := login(t, api)
	jean := loadSession(t, api, first)

	api.Auth.(*fakeAuth).profile = models.SourceProfile{
		UserPrincipalName: "zoe.martin@school.fr",
		GivenName:         "Zoe",
		Surname:           "Martin",
		JobTitle:          "ELEVE",
	}

	// Same browser, no logout in between.
	req := httptest.NewRequest(http.MethodGet, "/api/auth/login", nil)
	req.AddCookie(first)
	w := httptest.NewRecorder()
	api.LoginHandler(w, req)
	loc, _ := url.Parse(w.Header().Get("Location"))
	pending := w.Result().Cookies()[0]
	if loadSession(t, api, pending).ID == jean.ID {
		t.Fatal("login reused the previous session id")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/auth/redirect?code=good&state="+url.QueryEscape(loc.Query().Get("state")), nil)
	req.AddCookie(pending)
	w = httptest.NewRecorder()
	api.RedirectHandler(w, req)
	if w.Code != http.StatusFound {
		t.Fatalf("redirect: expected 302, got %d: %s", w.Code, w.Body.String())
	}

	zoe := loadSession(t, api, w.Result().Cookies()[0])
	if zoe.Account != "zoe.martin@school.fr" || zoe.Bound == nil || zoe.Bound.ID != 8 {
		t.Fatalf("second user session = %+v, bound = %+v", zoe, zoe.Bound)
	}
	if zoe.ID == jean.ID || zoe.ID == loadSession(t, api, pending).ID {
		t.Error("session id not rotated at sign-in")
	}
	if loadSession(t, api, first).Authenticated() {
		t.Error("first user's session still loads after the second sign-in")
	}
}

func TestRedirect_RotatesPlantedSessionID(t *testing.T) {
	api, _, _ := newTestAPI()
	w := httptest.NewRecorder()
	api.LoginHandler(w, httptest.NewRequest(http.MethodGet, "/api/auth/login", nil))
	loc, _ := url.Parse(w.Header().Get("Location"))
	planted := w.Result().Cookies()[0]
	plantedID := loadSession(t, api, planted).ID

	req := httptest.NewRequest(http.MethodGet, "/api/auth/redirect?code=good&state="+url.QueryEscape(loc.Query().Get("state")), nil)
	req.AddCookie(planted)
	w = httptest.NewRecorder()
	api.RedirectHandler(w, req)

	if got := loadSession(t, api, w.Result().Cookies()[0]); got.ID == plantedID || !got.Authenticated() {
		t.Errorf("signed-in session = %+v, planted id %s", got, plantedID)
	}
	if loadSession(t, api, planted).Authenticated() {
		t.Error("pre-login cookie became authenticated")
	}
}

func TestRedirect_BadState(t *testing.T) {
	api, _, _ := newTestAPI()
	w := httptest.NewRecorder()
	api.LoginHandler(w, httptest.NewRequest(http.MethodGet, "/api/auth/login", nil))
	cookie := w.Result().Cookies()[0]

	req := httptest.NewRequest(http.MethodGet, "/api/auth/redirect?code=good&state=forged", nil)
	req.AddCookie(cookie)
	w = httptest.NewRecorder()
	api.RedirectHandler(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestRedirect_UnknownRoleStaysUnbound(t *testing.T) {
	api, dir, _ := newTestAPI()
	api.Auth.(*fakeAuth).profile.JobTitle = "DIRECTEUR"
	cookie := login(t, api)

	s := loadSession(t, api, cookie)
	if !s.Authenticated() || s.Bound != nil {
		t.Errorf("session = %+v", s)
	}
	if len(dir.roles) != 0 {
		t.Error("directory must not be queried for an unknown role")
	}
}

func TestRedirect_DirectoryDown(t *testing.T) {
	api, dir, _ := newTestAPI()
	dir.err = errors.New("connection refused")

	w := httptest.NewRecorder()
	api.LoginHandler(w, httptest.NewRequest(http.MethodGet, "/api/auth/login", nil))
	loc, _ := url.Parse(w.Header().Get("Location"))
	cookie := w.Result().Cookies()[0]

	req := httptest.NewRequest(http.MethodGet, "/api/auth/redirect?code=good&state="+url.QueryEscape(loc.Query().Get("state")), nil)
	req.AddCookie(cookie)
	w = httptest.NewRecorder()
	api.RedirectHandler(w, req)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
	if loadSession(t, api, cookie).Authenticated() {
		t.Error("failed login must not authenticate the session")
	}
}

func TestMeHandler(t *testing.T) {
	api, _, _ := newTestAPI()

	w := httptest.NewRecorder()
	api.MeHandler(w, httptest.NewRequest(http.MethodGet, "/api/me", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	cookie := login(t, api)
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(cookie)
	w = httptest.NewRecorder()
	api.MeHandler(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var got meResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got.EDProfile == nil || got.EDProfile.ID != 7 || got.Role != "ELEVE" {
		t.Errorf("me = %+v", got)
	}
}

func scan(api *API, cookie *http.Cookie, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/scan", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	api.ScanHandler(w, req)
	return w
}

func TestScanHandler_Decision(t *testing.T) {
	api, _, scanner := newTestAPI()
	cookie := login(t, api)
	scanner.decision = models.Decision{Status: http.StatusOK, Reason: attendance.ReasonAccepted, CourseID: 900, RoomID: "101"}

	w := scan(api, cookie, `{"nfc_token":" 101 "}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var d models.Decision
	json.Unmarshal(w.Body.Bytes(), &d)
	if diff := cmp.Diff(scanner.decision, d); diff != "" {
		t.Errorf("decision (-want +got):\n%s", diff)
	}
	if scanner.gotToken != "101" || scanner.gotBound.ID != 7 {
		t.Errorf("scanner got token=%q bound=%+v", scanner.gotToken, scanner.gotBound)
	}

	scanner.decision = models.Decision{Status: http.StatusForbidden, Reason: attendance.ReasonClassNotInRoom}
	if w := scan(api, cookie, `{"nfc_token":"204"}`); w.Code != http.StatusForbidden {
		t.Errorf("denial should carry its status, got %d", w.Code)
	}
}

func TestScanHandler_Rejections(t *testing.T) {
	api, _, scanner := newTestAPI()

	if w := scan(api, nil, `{"nfc_token":"101"}`); w.Code != http.StatusUnauthorized {
		t.Errorf("anonymous scan: %d", w.Code)
	}

	cookie := login(t, api)
	if w := scan(api, cookie, `not json`); w.Code != http.StatusBadRequest {
		t.Errorf("bad body: %d", w.Code)
	}
	if w := scan(api, cookie, `{"nfc_token":"  "}`); w.Code != http.StatusBadRequest {
		t.Errorf("empty token: %d", w.Code)
	}

	scanner.err = &attendance.UpstreamUnavailableError{Op: "room schedule", Err: errors.New("timeout")}
	if w := scan(api, cookie, `{"nfc_token":"101"}`); w.Code != http.StatusServiceUnavailable {
		t.Errorf("upstream failure: %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/scan", nil)
	w := httptest.NewRecorder()
	api.ScanHandler(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET: %d", w.Code)
	}
}

func TestScanHandler_Unbound(t *testing.T) {
	api, dir, scanner := newTestAPI()
	dir.entries = nil
	cookie := login(t, api)

	w := scan(api, cookie, `{"nfc_token":"101"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), ReasonNotBound) {
		t.Errorf("body = %s", w.Body.String())
	}
	if scanner.gotToken != "" {
		t.Error("engine must not run without a bound identity")
	}
}

func TestLogout(t *testing.T) {
	api, _, _ := newTestAPI()
	cookie := login(t, api)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/logout", nil)
	req.AddCookie(cookie)
	w := httptest.NewRecorder()
	api.LogoutHandler(w, req)
	if w.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", w.Code)
	}
	if loadSession(t, api, cookie).Authenticated() {
		t.Error("session survived logout")
	}
}

func TestAdminResolveHandler(t *testing.T) {
	api, _, _ := newTestAPI()
	prev := config.Cfg.AdminAPIKey
	config.Cfg.AdminAPIKey = "k"
	defer func() { config.Cfg.AdminAPIKey = prev }()

	body := `{"profile":{"givenName":"Jean","surname":"Dupont","department":"T1"},"role":"eleve","department_signal":true}`

	req := httptest.NewRequest(http.MethodPost, "/api/admin/resolve", strings.NewReader(body))
	w := httptest.NewRecorder()
	api.AdminResolveHandler(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/admin/resolve", strings.NewReader(body))
	req.Header.Set("X-Admin-Key", "k")
	w = httptest.NewRecorder()
	api.AdminResolveHandler(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var got resolveResponse
	json.Unmarshal(w.Body.Bytes(), &got)
	if !got.Matched || got.Match.Identity.ID != 7 || got.Match.Score != 5 {
		t.Errorf("resolve = %+v", got.Match)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/admin/resolve?key=k", strings.NewReader(`{"role":"directeur"}`))
	w = httptest.NewRecorder()
	api.AdminResolveHandler(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown role: %d", w.Code)
	}
}

func TestCheckAdminKey(t *testing.T) {
	prevKey, prevDev := config.Cfg.AdminAPIKey, config.Cfg.DevMode
	defer func() { config.Cfg.AdminAPIKey, config.Cfg.DevMode = prevKey, prevDev }()

	req := func(target, header string) *http.Request {
		r := httptest.NewRequest(http.MethodPost, target, nil)
		if header != "" {
			r.Header.Set("X-Admin-Key", header)
		}
		return r
	}

	config.Cfg.AdminAPIKey, config.Cfg.DevMode = "", false
	if checkAdminKey(req("/api/admin/resolve", "")) {
		t.Error("no key configured outside dev mode must deny")
	}
	config.Cfg.DevMode = true
	if !checkAdminKey(req("/api/admin/resolve", "")) {
		t.Error("dev mode without a key should allow")
	}

	config.Cfg.AdminAPIKey, config.Cfg.DevMode = "s3cret", true
	if checkAdminKey(req("/api/admin/resolve", "")) {
		t.Error("configured key must be required even in dev mode")
	}
	if checkAdminKey(req("/api/admin/resolve", "s3cre")) || checkAdminKey(req("/api/admin/resolve?key=s3cret-x", "")) {
		t.Error("wrong key accepted")
	}
	if !checkAdminKey(req("/api/admin/resolve", "s3cret")) || !checkAdminKey(req("/api/admin/resolve?key=s3cret", "")) {
		t.Error("valid key rejected")
	}
}

func TestHealthHandler(t *testing.T) {
	api, _, _ := newTestAPI()
	w := httptest.NewRecorder()
	api.HealthHandler(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var result map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if result["status"] != "ok" {
		t.Error("health status should be ok")
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2, time.Second)
	now := time.Date(2025, 12, 22, 10, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	hit := func() int {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w.Code
	}

	if hit() != 200 || hit() != 200 {
		t.Fatal("burst should be allowed")
	}
	if hit() != http.StatusTooManyRequests {
		t.Fatal("third request should be limited")
	}
	now = now.Add(1500 * time.Millisecond)
	if hit() != 200 {
		t.Error("a token should have been refilled")
	}
	if hit() != http.StatusTooManyRequests {
		t.Error("only one token per interval")
	}
}

func TestNotFoundHandler(t *testing.T) {
	w := httptest.NewRecorder()
	NotFoundHandler(w, httptest.NewRequest(http.MethodGet, "/api/nope", nil))
	if w.Code != http.StatusNotFound || !strings.Contains(w.Body.String(), "endpoint not found") {
		t.Errorf("got %d %s", w.Code, w.Body.String())
	}
}
