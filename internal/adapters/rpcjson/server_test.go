package rpcjson

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/atvirokodosprendimai/holocron/internal/adapters/memory"
	"github.com/atvirokodosprendimai/holocron/internal/adapters/swapi"
	"github.com/atvirokodosprendimai/holocron/internal/adapters/swapi/swapitest"
	"github.com/atvirokodosprendimai/holocron/internal/application"
	"github.com/atvirokodosprendimai/holocron/internal/domain"
)

func newServices(t *testing.T) Services {
	t.Helper()
	upstream := swapitest.NewServer(t, swapitest.DefaultDataset())
	catalogue := swapi.NewClient(upstream.BaseURL())
	auth := application.NewAuthService(memory.NewUserRepository(), application.AuthConfig{Secret: "rpc-test"}, nil)
	if err := auth.BootstrapDemoUser(context.Background(), "demo@starwars.dev", "password123", "Demo User"); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return Services{
		Auth:       auth,
		Characters: application.NewCharacterService(catalogue),
		Names:      application.NewNameResolver(catalogue, 2, nil),
		Storage:    memory.NewProvider(),
	}
}

func call(t *testing.T, s *Server, method string, params any) response {
	t.Helper()
	raw, err := json.Marshal(params)
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}
	return s.dispatch(context.Background(), request{JSONRPC: "2.0", Method: method, Params: raw, ID: 1})
}

func decodeResult(t *testing.T, resp response, out any) {
	t.Helper()
	if resp.Error != nil {
		t.Fatalf("unexpected rpc error %+v", resp.Error)
	}
	raw, _ := json.Marshal(resp.Result)
	if err := json.Unmarshal(raw, out); err != nil {
		t.Fatalf("decode result: %v", err)
	}
}

func TestDispatch(t *testing.T) {
	s := &Server{svc: newServices(t)}

	if resp := s.dispatch(context.Background(), request{Method: "auth.login"}); resp.Error == nil || resp.Error.Code != -32600 {
		t.Fatalf("expected invalid request, got %+v", resp.Error)
	}
	if resp := call(t, s, "nope", map[string]any{}); resp.Error == nil || resp.Error.Code != -32601 {
		t.Fatalf("expected method not found, got %+v", resp.Error)
	}
	if resp := call(t, s, "auth.login", map[string]string{"email": "demo@starwars.dev", "password": "bad"}); resp.Error == nil || resp.Error.Code != 40100 || resp.Error.Message != "Invalid credentials" {
		t.Fatalf("expected invalid credentials, got %+v", resp.Error)
	}
	if resp := call(t, s, "characters.list", map[string]any{"token": "garbage"}); resp.Error == nil || resp.Error.Code != 40100 {
		t.Fatalf("expected unauthorized, got %+v", resp.Error)
	}

	var login domain.AuthResult
	decodeResult(t, call(t, s, "auth.login", map[string]string{"email": "demo@starwars.dev", "password": "password123"}), &login)

	var page domain.PageResult
	decodeResult(t, call(t, s, "characters.list", map[string]any{"token": login.Token, "species": "Droid", "film": "The Empire Strikes Back"}), &page)
	if page.TotalCount != 2 || page.Characters[0].Name != "C-3PO" || page.Characters[1].Name != "R2-D2" {
		t.Fatalf("unexpected page %+v", page)
	}

	var names map[string]string
	decodeResult(t, call(t, s, "names.resolve", map[string]any{"token": login.Token, "urls": []string{"http://127.0.0.1:1/api/species/9/"}}), &names)
	if names["http://127.0.0.1:1/api/species/9/"] != application.UnknownName {
		t.Fatalf("unreachable resources should resolve to Unknown, got %v", names)
	}

	var refreshed domain.AuthResult
	decodeResult(t, call(t, s, "auth.refresh", map[string]string{"token": login.Token}), &refreshed)
	if refreshed.Token == "" || refreshed.ExpiresIn != 300 {
		t.Fatalf("unexpected refresh %+v", refreshed)
	}
	if resp := call(t, s, "auth.refresh", map[string]string{"token": ""}); resp.Error == nil || resp.Error.Message != "No token to refresh" {
		t.Fatalf("expected no token error, got %+v", resp.Error)
	}
	if resp := call(t, s, "auth.signup", map[string]string{"email": "demo@starwars.dev", "password": "x"}); resp.Error == nil || resp.Error.Code != 40900 {
		t.Fatalf("expected user exists, got %+v", resp.Error)
	}

	var logs []domain.AuditRecord
	decodeResult(t, call(t, s, "audit.list", map[string]any{"token": refreshed.Token, "limit": 5}), &logs)
	if len(logs) == 0 || logs[0].Action != "auth.refresh" {
		t.Fatalf("expected the refresh to be the newest audit entry, got %+v", logs)
	}
}

func TestServeOverUnixSocket(t *testing.T) {
	dir, err := os.MkdirTemp("", "holocron-rpc")
	if err != nil {
		t.Fatalf("temp dir: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	path := filepath.Join(dir, "rpc.sock")

	srv, err := Start(path, newServices(t))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer srv.Close()

	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	enc := json.NewEncoder(conn)
	dec := json.NewDecoder(conn)
	if err := enc.Encode(map[string]any{
		"jsonrpc": "2.0", "method": "auth.login", "id": 7,
		"params": map[string]string{"email": "demo@starwars.dev", "password": "password123"},
	}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	var resp struct {
		Result domain.AuthResult `json:"result"`
		Error  *rpcError         `json:"error"`
		ID     int               `json:"id"`
	}
	if err := dec.Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error != nil || resp.ID != 7 || resp.Result.Token == "" {
		t.Fatalf("unexpected response %+v", resp)
	}

	if _, err := Start("  ", newServices(t)); err == nil {
		t.Fatalf("expected an error for an empty socket path")
	}
}
