package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/atvirokodosprendimai/holocron/internal/domain"
)

const (
	defaultServer = "http://127.0.0.1:8080"
	defaultSocket = "/tmp/holocron.sock"
)

// cliConfig is persisted at ~/.holocron/config.json between commands.
type cliConfig struct {
	Transport string    `json:"transport"`
	Server    string    `json:"server"`
	Socket    string    `json:"socket"`
	Token     string    `json:"token"`
	Email     string    `json:"email,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

func (c cliConfig) withDefaults() cliConfig {
	if c.Transport == "" {
		c.Transport = "uds"
	}
	if c.Server == "" {
		c.Server = defaultServer
	}
	if c.Socket == "" {
		c.Socket = defaultSocket
	}
	return c
}

// remember stores the credentials of a successful login, signup or refresh.
func (c *cliConfig) remember(res domain.AuthResult) {
	c.Token = res.Token
	if res.User != nil {
		c.Email = res.User.Email
	}
	c.ExpiresAt = time.Time{}
	if res.ExpiresIn > 0 {
		c.ExpiresAt = time.Now().Add(time.Duration(res.ExpiresIn) * time.Second).UTC()
	}
}

func (c *cliConfig) forget() {
	c.Token = ""
	c.Email = ""
	c.ExpiresAt = time.Time{}
}

// httpBackend talks to the /api routes of a running server.
type httpBackend struct {
	httpClient *http.Client
	server     string
	token      string
}

func newHTTPBackend(server, token string) *httpBackend {
	return &httpBackend{
		httpClient: &http.Client{Timeout: 20 * time.Second},
		server:     strings.TrimRight(server, "/"),
		token:      token,
	}
}

func (b *httpBackend) Login(ctx context.Context, email, password string) (domain.AuthResult, error) {
	var out domain.AuthResult
	err := b.do(ctx, http.MethodPost, "/api/auth/login", credentials{Email: email, Password: password}, &out)
	return out, err
}

func (b *httpBackend) Signup(ctx context.Context, email, password, name string) (domain.AuthResult, error) {
	var out domain.AuthResult
	err := b.do(ctx, http.MethodPost, "/api/auth/signup", credentials{Email: email, Password: password, Name: name}, &out)
	return out, err
}

func (b *httpBackend) Refresh(ctx context.Context) (domain.AuthResult, error) {
	var out domain.AuthResult
	err := b.do(ctx, http.MethodPost, "/api/auth/refresh", tokenParams{Token: b.token}, &out)
	return out, err
}

func (b *httpBackend) WhoAmI(ctx context.Context) (domain.User, error) {
	var out domain.User
	err := b.do(ctx, http.MethodGet, "/api/auth/whoami", nil, &out)
	return out, err
}

func (b *httpBackend) Logout(ctx context.Context) error {
	return b.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
}

func (b *httpBackend) Characters(ctx context.Context, q domain.CharacterQuery) (domain.PageResult, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(max(q.Page, 1)))
	for key, value := range map[string]string{
		"search":                       q.Search,
		string(domain.FilterSpecies):   q.Filters.Species,
		string(domain.FilterHomeworld): q.Filters.Homeworld,
		string(domain.FilterFilm):      q.Filters.Film,
	} {
		if strings.TrimSpace(value) != "" {
			params.Set(key, value)
		}
	}
	var out domain.PageResult
	err := b.do(ctx, http.MethodGet, "/api/characters?"+params.Encode(), nil, &out)
	return out, err
}

func (b *httpBackend) ResolveNames(ctx context.Context, urls []string) (map[string]string, error) {
	var out struct {
		Names map[string]string `json:"names"`
	}
	err := b.do(ctx, http.MethodPost, "/api/names/resolve", map[string][]string{"urls": urls}, &out)
	return out.Names, err
}

func (b *httpBackend) AuditLogs(ctx context.Context, limit int) ([]domain.AuditRecord, error) {
	var out []domain.AuditRecord
	err := b.do(ctx, http.MethodGet, "/api/audit/logs?limit="+strconv.Itoa(limit), nil, &out)
	return out, err
}

func (b *httpBackend) do(ctx context.Context, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(in); err != nil {
			return err
		}
		body = buf
	}

	req, err := http.NewRequestWithContext(ctx, method, b.server+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// apiError is a non-2xx answer from the JSON API.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("api error (%d): %s", e.Status, e.Message)
}

func decodeAPIError(resp *http.Response) error {
	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var body struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(payload))
	if json.Unmarshal(payload, &body) == nil && body.Error != "" {
		msg = body.Error
	}
	return &apiError{Status: resp.StatusCode, Message: msg}
}

func configPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".holocron", "config.json"), nil
}

func loadConfig() (cliConfig, error) {
	path, err := configPath()
	if err != nil {
		return cliConfig{}, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cliConfig{}.withDefaults(), nil
	}
	if err != nil {
		return cliConfig{}, err
	}
	var cfg cliConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cliConfig{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg.withDefaults(), nil
}

// saveConfig replaces the config file atomically.
func saveConfig(cfg cliConfig) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
