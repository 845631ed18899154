package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/atvirokodosprendimai/holocron/internal/adapters/memory"
	"github.com/atvirokodosprendimai/holocron/internal/adapters/swapi"
	"github.com/atvirokodosprendimai/holocron/internal/adapters/swapi/swapitest"
	"github.com/atvirokodosprendimai/holocron/internal/application"
	"github.com/atvirokodosprendimai/holocron/internal/domain"
	"github.com/atvirokodosprendimai/holocron/internal/state"
)

type fixture struct {
	upstream *swapitest.Server
	provider *memory.Provider
	deps     Dependencies
	server   *httptest.Server
	client   *http.Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	upstream := swapitest.NewServer(t, swapitest.DefaultDataset())
	catalogue := swapi.NewClient(upstream.BaseURL())
	users := memory.NewUserRepository()
	auth := application.NewAuthService(users, application.AuthConfig{Secret: "router-test"}, nil)
	if err := auth.BootstrapDemoUser(context.Background(), "demo@starwars.dev", "password123", "Demo User"); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	provider := memory.NewProvider()
	deps := Dependencies{
		Auth:       auth,
		Characters: application.NewCharacterService(catalogue),
		Names:      application.NewNameResolver(catalogue, 3, nil),
		Storage:    provider,
		Sessions:   state.NewSessions(0),
	}
	f := &fixture{upstream: upstream, provider: provider, deps: deps}
	f.server = httptest.NewServer(NewRouter(deps))
	t.Cleanup(f.server.Close)
	f.client = newClient(t)
	return f
}

func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (f *fixture) do(t *testing.T, method, path string, body io.Reader, headers map[string]string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(method, f.server.URL+path, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, string(raw)
}

func (f *fixture) login(t *testing.T, email, password string) *http.Response {
	t.Helper()
	form := url.Values{"email": {email}, "password": {password}}
	resp, _ := f.do(t, http.MethodPost, "/login", strings.NewReader(form.Encode()), map[string]string{
		"Content-Type": "application/x-www-form-urlencoded",
	})
	return resp
}

func datastarPost(t *testing.T, f *fixture, path string, signals map[string]string) (*http.Response, string) {
	t.Helper()
	raw, _ := json.Marshal(signals)
	return f.do(t, http.MethodPost, path, strings.NewReader(string(raw)), map[string]string{
		"Content-Type":     "application/json",
		"Datastar-Request": "true",
	})
}

func TestDashboardRequiresLogin(t *testing.T) {
	f := newFixture(t)
	resp, _ := f.do(t, http.MethodGet, "/", nil, nil)
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/login" {
		t.Fatalf("expected redirect to /login, got %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}

	resp = f.login(t, "demo@starwars.dev", "wrong")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a wrong password, got %d", resp.StatusCode)
	}
	_, body := f.do(t, http.MethodGet, "/login", nil, nil)
	if !strings.Contains(body, "Invalid credentials") {
		t.Fatalf("login page should show the last error: %s", body)
	}
}

func TestDashboardFlow(t *testing.T) {
	f := newFixture(t)
	if resp := f.login(t, "demo@starwars.dev", "password123"); resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("login: expected 303, got %d", resp.StatusCode)
	}

	resp, body := f.do(t, http.MethodGet, "/", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("dashboard: %d", resp.StatusCode)
	}
	for _, want := range []string{"Welcome, Demo User!", "Luke Skywalker", "Page 1 of 2", "species-droid"} {
		if !strings.Contains(body, want) {
			t.Fatalf("dashboard missing %q", want)
		}
	}

	_, body = datastarPost(t, f, "/characters/filters", map[string]string{"species": "droid"})
	for _, want := range []string{"C-3PO", "R2-D2", "R5-D4", "Page 1 of 1"} {
		if !strings.Contains(body, want) {
			t.Fatalf("filtered grid missing %q: %s", want, body)
		}
	}
	if strings.Contains(body, "Luke Skywalker") {
		t.Fatalf("filter did not apply: %s", body)
	}

	resp, _ = datastarPost(t, f, "/characters/filters", map[string]string{"species": "droid"})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("unchanged signals should not refetch, got %d", resp.StatusCode)
	}

	_, body = datastarPost(t, f, "/characters/search", map[string]string{"species": "droid", "search": "r"})
	if !strings.Contains(body, "R2-D2") || strings.Contains(body, "C-3PO") {
		t.Fatalf("search should narrow the filtered set: %s", body)
	}

	datastarPost(t, f, "/characters/search", map[string]string{})
	_, body = datastarPost(t, f, "/characters/filters/clear", nil)
	if !strings.Contains(body, "Luke Skywalker") {
		t.Fatalf("clear should return the first page: %s", body)
	}

	_, body = datastarPost(t, f, "/characters/page/next", nil)
	if !strings.Contains(body, "Han Solo") || !strings.Contains(body, "Page 2 of 2") {
		t.Fatalf("expected page 2: %s", body)
	}
	resp, _ = datastarPost(t, f, "/characters/page/sideways", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown direction: expected 400, got %d", resp.StatusCode)
	}

	_, body = f.do(t, http.MethodGet, "/characters/detail?url="+url.QueryEscape(f.upstream.PersonURL(1)), nil, nil)
	if !strings.Contains(body, "Tatooine") || !strings.Contains(body, "1.72 m") {
		t.Fatalf("detail missing homeworld or height: %s", body)
	}

	_, body = datastarPost(t, f, "/auth/refresh", nil)
	if !strings.Contains(body, "Token refreshed") {
		t.Fatalf("refresh: %s", body)
	}

	resp, _ = f.do(t, http.MethodPost, "/logout", nil, nil)
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/login" {
		t.Fatalf("logout: %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}
	resp, _ = f.do(t, http.MethodGet, "/", nil, nil)
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("dashboard after logout should redirect, got %d", resp.StatusCode)
	}
}

func TestSessionIsRestoredFromStorage(t *testing.T) {
	f := newFixture(t)
	f.login(t, "demo@starwars.dev", "password123")

	// A fresh registry forgets every in-memory session; the persisted login remains.
	deps := f.deps
	deps.Sessions = state.NewSessions(0)
	restarted := httptest.NewServer(NewRouter(deps))
	defer restarted.Close()

	u, _ := url.Parse(f.server.URL)
	cookies := f.client.Jar.Cookies(u)
	req, _ := http.NewRequest(http.MethodGet, restarted.URL+"/", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	resp, err := newClient(t).Do(req)
	if err != nil {
		t.Fatalf("get dashboard: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected restored session, got %d", resp.StatusCode)
	}
}

func TestDatastarRequestsAreRedirectedWithAnEvent(t *testing.T) {
	f := newFixture(t)
	resp, body := datastarPost(t, f, "/characters/page/next", nil)
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		t.Fatalf("expected an event stream, got %q", resp.Header.Get("Content-Type"))
	}
	if !strings.Contains(body, "/login") {
		t.Fatalf("redirect event should name /login: %s", body)
	}
}

func apiJSON(t *testing.T, f *fixture, method, path, token string, payload any, out any) int {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, _ := json.Marshal(payload)
		body = strings.NewReader(string(raw))
	}
	headers := map[string]string{"Content-Type": "application/json"}
	if token != "" {
		headers["Authorization"] = "Bearer " + token
	}
	resp, raw := f.do(t, method, path, body, headers)
	if out != nil {
		if err := json.Unmarshal([]byte(raw), out); err != nil {
			t.Fatalf("decode %s: %v (%s)", path, err, raw)
		}
	}
	return resp.StatusCode
}

func TestAPI(t *testing.T) {
	f := newFixture(t)

	var errBody map[string]string
	if code := apiJSON(t, f, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "demo@starwars.dev", "password": "nope"}, &errBody); code != http.StatusUnauthorized || errBody["error"] != "Invalid credentials" {
		t.Fatalf("bad login: %d %v", code, errBody)
	}

	var login domain.AuthResult
	if code := apiJSON(t, f, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "demo@starwars.dev", "password": "password123"}, &login); code != http.StatusOK {
		t.Fatalf("login: %d", code)
	}
	if login.Token == "" || login.ExpiresIn != 300 {
		t.Fatalf("unexpected login result %+v", login)
	}

	if code := apiJSON(t, f, http.MethodGet, "/api/characters", "", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("characters without token: %d", code)
	}

	var page domain.PageResult
	if code := apiJSON(t, f, http.MethodGet, "/api/characters?search=Luke", login.Token, nil, &page); code != http.StatusOK {
		t.Fatalf("characters: %d", code)
	}
	if page.TotalCount != 1 || page.Characters[0].Name != "Luke Skywalker" {
		t.Fatalf("unexpected search result %+v", page)
	}

	var resolved struct {
		Names map[string]string `json:"names"`
	}
	speciesURL := f.upstream.SpeciesURL(2)
	apiJSON(t, f, http.MethodPost, "/api/names/resolve", login.Token, map[string]any{"urls": []string{speciesURL, speciesURL}}, &resolved)
	if resolved.Names[speciesURL] != "Droid" {
		t.Fatalf("unexpected names %v", resolved.Names)
	}

	var who domain.User
	if code := apiJSON(t, f, http.MethodGet, "/api/auth/whoami", login.Token, nil, &who); code != http.StatusOK || who.Email != "demo@starwars.dev" {
		t.Fatalf("whoami: %d %+v", code, who)
	}

	var refreshed domain.AuthResult
	if code := apiJSON(t, f, http.MethodPost, "/api/auth/refresh", login.Token, nil, &refreshed); code != http.StatusOK || refreshed.Token == "" {
		t.Fatalf("refresh: %d %+v", code, refreshed)
	}
	stored, _, _ := f.provider.Storage(application.ClientNamespace("demo@starwars.dev")).GetItem(context.Background(), application.TokenKey)
	if stored != refreshed.Token {
		t.Fatalf("refresh should persist the new token in the client scope")
	}
	if code := apiJSON(t, f, http.MethodPost, "/api/auth/refresh", "", map[string]string{}, &errBody); code != http.StatusUnauthorized || errBody["error"] != "No token to refresh" {
		t.Fatalf("refresh without token: %d %v", code, errBody)
	}

	if code := apiJSON(t, f, http.MethodPost, "/api/auth/signup", "", map[string]string{"email": "demo@starwars.dev", "password": "x"}, &errBody); code != http.StatusConflict {
		t.Fatalf("duplicate signup: %d %v", code, errBody)
	}

	var logs []domain.AuditRecord
	apiJSON(t, f, http.MethodGet, "/api/audit/logs?limit=10", login.Token, nil, &logs)
	actions := make([]string, 0, len(logs))
	for _, l := range logs {
		actions = append(actions, l.Action)
	}
	joined := strings.Join(actions, ",")
	for _, want := range []string{"auth.login", "auth.login.failed", "auth.refresh"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("audit log missing %q: %v", want, actions)
		}
	}

	if code := apiJSON(t, f, http.MethodPost, "/api/auth/logout", refreshed.Token, nil, nil); code != http.StatusOK {
		t.Fatalf("logout: %d", code)
	}
	if f.provider.Storage(application.ClientNamespace("demo@starwars.dev")).Len() != 0 {
		t.Fatalf("logout should clear the client scope")
	}
}

func TestAnonymousRequestsDoNotRegisterSessions(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 50; i++ {
		resp, err := http.Get(f.server.URL + "/login")
		if err != nil {
			t.Fatalf("get login: %v", err)
		}
		resp.Body.Close()
		if len(resp.Cookies()) != 0 {
			t.Fatalf("the login page should not mint a device cookie")
		}
		resp, err = newClient(t).Get(f.server.URL + "/")
		if err != nil {
			t.Fatalf("get dashboard: %v", err)
		}
		resp.Body.Close()
	}

	req, _ := http.NewRequest(http.MethodGet, f.server.URL+"/", nil)
	req.AddCookie(&http.Cookie{Name: deviceCookieName, Value: "0b6f2c1e-9d4b-4a55-8f3e-2f7d1c0a9b11"})
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get with unknown device: %v", err)
	}
	resp.Body.Close()

	if n := f.deps.Sessions.Len(); n != 0 {
		t.Fatalf("anonymous traffic registered %d sessions", n)
	}
	if n := f.provider.Scopes(); n != 0 {
		t.Fatalf("anonymous traffic created %d storage scopes", n)
	}

	f.login(t, "demo@starwars.dev", "password123")
	if n := f.deps.Sessions.Len(); n != 1 {
		t.Fatalf("expected the login to register one session, got %d", n)
	}
}

func TestForeignResourceURLsAreNotFetched(t *testing.T) {
	f := newFixture(t)
	var internalHits atomic.Int32
	internal := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		internalHits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"name":"INTERNAL-SECRET","height":"1","homeworld":""}`)
	}))
	defer internal.Close()

	f.login(t, "demo@starwars.dev", "password123")
	resp, body := f.do(t, http.MethodGet, "/characters/detail?url="+url.QueryEscape(internal.URL+"/admin"), nil, nil)
	if resp.StatusCode != http.StatusNotFound || strings.Contains(body, "INTERNAL-SECRET") {
		t.Fatalf("detail of a foreign url: %d %s", resp.StatusCode, body)
	}

	var login domain.AuthResult
	apiJSON(t, f, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "demo@starwars.dev", "password": "password123"}, &login)
	var resolved struct {
		Names map[string]string `json:"names"`
	}
	foreign := internal.URL + "/api/species/1/"
	apiJSON(t, f, http.MethodPost, "/api/names/resolve", login.Token, map[string]any{"urls": []string{foreign}}, &resolved)
	if resolved.Names[foreign] != application.UnknownName {
		t.Fatalf("foreign url should resolve to Unknown, got %v", resolved.Names)
	}
	if _, cached := f.deps.Names.Cached(foreign); cached {
		t.Fatalf("foreign urls must not be cached")
	}
	if n := internalHits.Load(); n != 0 {
		t.Fatalf("the server dialed a foreign host %d times", n)
	}
}
