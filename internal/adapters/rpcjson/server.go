package rpcjson

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/atvirokodosprendimai/holocron/internal/application"
	"github.com/atvirokodosprendimai/holocron/internal/domain"
)

type Services struct {
	Auth       *application.AuthService
	Characters *application.CharacterService
	Names      *application.NameResolver
	Storage    domain.StorageProvider
	Logger     *slog.Logger
}

type Server struct {
	svc      Services
	listener net.Listener
	path     string
}

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      any             `json:"id"`
}

type response struct {
	JSONRPC string    `json:"jsonrpc"`
	Result  any       `json:"result,omitempty"`
	Error   *rpcError `json:"error,omitempty"`
	ID      any       `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func Start(path string, svc Services) (*Server, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("rpc socket path is required")
	}
	if svc.Logger == nil {
		svc.Logger = slog.New(slog.DiscardHandler)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	_ = os.Remove(path)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(path, 0o600); err != nil {
		_ = ln.Close()
		_ = os.Remove(path)
		return nil, err
	}

	s := &Server{svc: svc, listener: ln, path: path}
	go s.serve()
	return s, nil
}

func (s *Server) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handleConn(conn)
	}
}

func (s *Server) Close() error {
	err := s.listener.Close()
	_ = os.Remove(s.path)
	return err
}

func (s *Server) handleConn(conn net.Conn) {
	defer func() { _ = conn.Close() }()
	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)

	for {
		var req request
		if err := dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			_ = enc.Encode(response{JSONRPC: "2.0", Error: &rpcError{Code: -32700, Message: "parse error"}, ID: nil})
			return
		}

		resp := s.dispatch(context.Background(), req)
		if resp.Error != nil {
			s.svc.Logger.Debug("rpc call failed", "method", req.Method, "code", resp.Error.Code, "error", resp.Error.Message)
		}
		if err := enc.Encode(resp); err != nil {
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, req request) response {
	if req.JSONRPC != "2.0" || strings.TrimSpace(req.Method) == "" {
		return response{JSONRPC: "2.0", Error: &rpcError{Code: -32600, Message: "invalid request"}, ID: req.ID}
	}

	switch req.Method {
	case "auth.login":
		var p struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		res, err := s.clientAuth(p.Email).Login(ctx, p.Email, p.Password)
		if err != nil {
			return appError(req.ID, err)
		}
		return response{JSONRPC: "2.0", Result: res, ID: req.ID}
	case "auth.signup":
		var p struct {
			Email    string `json:"email"`
			Password string `json:"password"`
			Name     string `json:"name"`
		}
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		res, err := s.clientAuth(p.Email).Signup(ctx, p.Email, p.Password, p.Name)
		if err != nil {
			return appError(req.ID, err)
		}
		return response{JSONRPC: "2.0", Result: res, ID: req.ID}
	case "auth.refresh":
		var p struct {
			Token string `json:"token"`
		}
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		res, err := s.svc.Auth.ForClient(s.svc.Storage, p.Token).Refresh(ctx, p.Token)
		if err != nil {
			return appError(req.ID, err)
		}
		return response{JSONRPC: "2.0", Result: res, ID: req.ID}
	case "auth.whoami":
		u, rpcResp, ok := s.authz(ctx, req)
		if !ok {
			return rpcResp
		}
		return response{JSONRPC: "2.0", Result: u, ID: req.ID}
	case "auth.logout":
		_, rpcResp, ok := s.authz(ctx, req)
		if !ok {
			return rpcResp
		}
		var p struct {
			Token string `json:"token"`
		}
		_ = decodeParams(req.Params, &p)
		if err := s.svc.Auth.ForClient(s.svc.Storage, p.Token).Logout(ctx); err != nil {
			return internalError(req.ID, err)
		}
		return response{JSONRPC: "2.0", Result: map[string]any{"ok": true}, ID: req.ID}
	case "characters.list":
		_, rpcResp, ok := s.authz(ctx, req)
		if !ok {
			return rpcResp
		}
		var p struct {
			Page      int    `json:"page"`
			Search    string `json:"search"`
			Species   string `json:"species"`
			Homeworld string `json:"homeworld"`
			Film      string `json:"film"`
		}
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		res, err := s.svc.Characters.FetchCharacters(ctx, domain.CharacterQuery{
			Page:    p.Page,
			Search:  p.Search,
			Filters: domain.Filters{Species: p.Species, Homeworld: p.Homeworld, Film: p.Film},
		})
		if err != nil {
			return appError(req.ID, err)
		}
		return response{JSONRPC: "2.0", Result: res, ID: req.ID}
	case "names.resolve":
		_, rpcResp, ok := s.authz(ctx, req)
		if !ok {
			return rpcResp
		}
		var p struct {
			URLs []string `json:"urls"`
		}
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		return response{JSONRPC: "2.0", Result: s.svc.Names.ResolveNames(ctx, p.URLs), ID: req.ID}
	case "audit.list":
		_, rpcResp, ok := s.authz(ctx, req)
		if !ok {
			return rpcResp
		}
		var p struct {
			Limit int `json:"limit"`
		}
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		out, err := s.svc.Auth.ListAuditLogs(ctx, p.Limit)
		if err != nil {
			return internalError(req.ID, err)
		}
		return response{JSONRPC: "2.0", Result: out, ID: req.ID}
	default:
		return response{JSONRPC: "2.0", Error: &rpcError{Code: -32601, Message: "method not found"}, ID: req.ID}
	}
}

func (s *Server) clientAuth(email string) *application.AuthSession {
	return s.svc.Auth.WithStorage(s.svc.Storage.Scope(application.ClientNamespace(email)))
}

func (s *Server) authz(ctx context.Context, req request) (domain.User, response, bool) {
	var p struct {
		Token string `json:"token"`
	}
	if !decodeParams(req.Params, &p) {
		return domain.User{}, invalidParams(req.ID), false
	}
	u, err := s.svc.Auth.Whoami(ctx, p.Token)
	if err != nil {
		return domain.User{}, response{JSONRPC: "2.0", Error: &rpcError{Code: 40100, Message: err.Error()}, ID: req.ID}, false
	}
	return u, response{}, true
}

func decodeParams(raw json.RawMessage, out any) bool {
	if len(raw) == 0 {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}

func invalidParams(id any) response {
	return response{JSONRPC: "2.0", Error: &rpcError{Code: -32602, Message: "invalid params"}, ID: id}
}

// appError maps domain failures onto the server's error codes.
func appError(id any, err error) response {
	code := 40000
	switch domain.KindOf(err) {
	case domain.KindAuth:
		code = 40100
		switch {
		case errors.Is(err, domain.ErrUserExists):
			code = 40900
		case errors.Is(err, domain.ErrMissingCredentials):
			code = 40000
		}
	case domain.KindNetwork, domain.KindParse:
		code = 50200
	case domain.KindInternal:
		return internalError(id, err)
	}
	return response{JSONRPC: "2.0", Error: &rpcError{Code: code, Message: err.Error()}, ID: id}
}

func internalError(id any, err error) response {
	return response{JSONRPC: "2.0", Error: &rpcError{Code: 50000, Message: fmt.Sprintf("internal error: %v", err)}, ID: id}
}
