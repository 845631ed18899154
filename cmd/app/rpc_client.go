package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/atvirokodosprendimai/holocron/internal/domain"
)

// rpcClient speaks line-delimited JSON-RPC 2.0 to the server's unix socket,
// one connection per call.
type rpcClient struct {
	socket string
	nextID atomic.Int64
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      int64  `json:"id"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcRespError   `json:"error"`
	ID      any             `json:"id"`
}

type rpcRespError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcRespError) Error() string {
	return fmt.Sprintf("rpc error (%d): %s", e.Code, e.Message)
}

func newRPCClient(socket string) *rpcClient {
	return &rpcClient{socket: socket}
}

func (c *rpcClient) call(ctx context.Context, method string, params any, out any) error {
	dialer := net.Dialer{Timeout: 5 * time.Second}
	conn, err := dialer.DialContext(ctx, "unix", c.socket)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.socket, err)
	}
	defer func() { _ = conn.Close() }()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	req := rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: c.nextID.Add(1)}
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}

	var resp rpcResponse
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return fmt.Errorf("%s: decode response: %w", method, err)
	}
	if resp.Error != nil {
		return resp.Error
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(resp.Result, out)
}

// rpcBackend exposes the server's JSON-RPC methods with domain types.
type rpcBackend struct {
	rpc   *rpcClient
	token string
}

func newRPCBackend(socket, token string) *rpcBackend {
	return &rpcBackend{rpc: newRPCClient(socket), token: token}
}

func (b *rpcBackend) Login(ctx context.Context, email, password string) (domain.AuthResult, error) {
	var out domain.AuthResult
	err := b.rpc.call(ctx, "auth.login", credentials{Email: email, Password: password}, &out)
	return out, err
}

func (b *rpcBackend) Signup(ctx context.Context, email, password, name string) (domain.AuthResult, error) {
	var out domain.AuthResult
	err := b.rpc.call(ctx, "auth.signup", credentials{Email: email, Password: password, Name: name}, &out)
	return out, err
}

func (b *rpcBackend) Refresh(ctx context.Context) (domain.AuthResult, error) {
	var out domain.AuthResult
	err := b.rpc.call(ctx, "auth.refresh", tokenParams{Token: b.token}, &out)
	return out, err
}

func (b *rpcBackend) WhoAmI(ctx context.Context) (domain.User, error) {
	var out domain.User
	err := b.rpc.call(ctx, "auth.whoami", tokenParams{Token: b.token}, &out)
	return out, err
}

func (b *rpcBackend) Logout(ctx context.Context) error {
	return b.rpc.call(ctx, "auth.logout", tokenParams{Token: b.token}, nil)
}

func (b *rpcBackend) Characters(ctx context.Context, q domain.CharacterQuery) (domain.PageResult, error) {
	var out domain.PageResult
	err := b.rpc.call(ctx, "characters.list", characterParams{
		Token:     b.token,
		Page:      max(q.Page, 1),
		Search:    q.Search,
		Species:   q.Filters.Species,
		Homeworld: q.Filters.Homeworld,
		Film:      q.Filters.Film,
	}, &out)
	return out, err
}

func (b *rpcBackend) ResolveNames(ctx context.Context, urls []string) (map[string]string, error) {
	var out map[string]string
	err := b.rpc.call(ctx, "names.resolve", struct {
		Token string   `json:"token"`
		URLs  []string `json:"urls"`
	}{b.token, urls}, &out)
	return out, err
}

func (b *rpcBackend) AuditLogs(ctx context.Context, limit int) ([]domain.AuditRecord, error) {
	var out []domain.AuditRecord
	err := b.rpc.call(ctx, "audit.list", struct {
		Token string `json:"token"`
		Limit int    `json:"limit"`
	}{b.token, limit}, &out)
	return out, err
}
