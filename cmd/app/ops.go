package main

import (
	"context"
	"errors"
	"strconv"

	"github.com/atvirokodosprendimai/holocron/internal/domain"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

type tokenParams struct {
	Token string `json:"token"`
}

type characterParams struct {
	Token     string `json:"token"`
	Page      int    `json:"page"`
	Search    string `json:"search,omitempty"`
	Species   string `json:"species,omitempty"`
	Homeworld string `json:"homeworld,omitempty"`
	Film      string `json:"film,omitempty"`
}

// backend is one transport to a running server.
type backend interface {
	Login(ctx context.Context, email, password string) (domain.AuthResult, error)
	Signup(ctx context.Context, email, password, name string) (domain.AuthResult, error)
	Refresh(ctx context.Context) (domain.AuthResult, error)
	WhoAmI(ctx context.Context) (domain.User, error)
	Logout(ctx context.Context) error
	Characters(ctx context.Context, q domain.CharacterQuery) (domain.PageResult, error)
	ResolveNames(ctx context.Context, urls []string) (map[string]string, error)
	AuditLogs(ctx context.Context, limit int) ([]domain.AuditRecord, error)
}

var errNotLoggedIn = errors.New("not logged in: run `holocron auth login` first")

// holocronClient runs CLI operations over the configured transport and keeps
// the stored token in step with the server's answers.
type holocronClient struct {
	cfg     cliConfig
	backend backend
	save    func(cliConfig) error
}

func newHolocronClient(cfg cliConfig) *holocronClient {
	cfg = cfg.withDefaults()
	var b backend
	if cfg.Transport == "uds" {
		b = newRPCBackend(cfg.Socket, cfg.Token)
	} else {
		b = newHTTPBackend(cfg.Server, cfg.Token)
	}
	return &holocronClient{cfg: cfg, backend: b, save: saveConfig}
}

func (c *holocronClient) Login(ctx context.Context, email, password string) (domain.AuthResult, error) {
	res, err := c.backend.Login(ctx, email, password)
	if err != nil {
		return res, err
	}
	return res, c.remember(res)
}

func (c *holocronClient) Signup(ctx context.Context, email, password, name string) (domain.AuthResult, error) {
	res, err := c.backend.Signup(ctx, email, password, name)
	if err != nil {
		return res, err
	}
	return res, c.remember(res)
}

// Refresh rotates the stored token. A rejected refresh forgets it.
func (c *holocronClient) Refresh(ctx context.Context) (domain.AuthResult, error) {
	if c.cfg.Token == "" {
		return domain.AuthResult{}, errNotLoggedIn
	}
	res, err := c.backend.Refresh(ctx)
	if err != nil {
		if isUnauthorized(err) {
			c.cfg.forget()
			_ = c.save(c.cfg)
		}
		return res, err
	}
	return res, c.remember(res)
}

func (c *holocronClient) WhoAmI(ctx context.Context) (domain.User, error) {
	if c.cfg.Token == "" {
		return domain.User{}, errNotLoggedIn
	}
	return c.backend.WhoAmI(ctx)
}

// Logout ends the server session and always clears the local token.
func (c *holocronClient) Logout(ctx context.Context) error {
	var remote error
	if c.cfg.Token != "" {
		remote = c.backend.Logout(ctx)
	}
	c.cfg.forget()
	if err := c.save(c.cfg); err != nil {
		return err
	}
	return remote
}

func (c *holocronClient) Characters(ctx context.Context, q domain.CharacterQuery) (domain.PageResult, error) {
	return c.backend.Characters(ctx, q)
}

func (c *holocronClient) ResolveNames(ctx context.Context, urls []string) (map[string]string, error) {
	return c.backend.ResolveNames(ctx, urls)
}

func (c *holocronClient) AuditLogs(ctx context.Context, limit int) ([]domain.AuditRecord, error) {
	return c.backend.AuditLogs(ctx, limit)
}

func (c *holocronClient) remember(res domain.AuthResult) error {
	c.cfg.remember(res)
	return c.save(c.cfg)
}

func isUnauthorized(err error) bool {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return apiErr.Status == 401
	}
	var rpcErr *rpcRespError
	if errors.As(err, &rpcErr) {
		return rpcErr.Code == 40100
	}
	return false
}

func uintToString(v uint) string {
	return strconv.FormatUint(uint64(v), 10)
}
