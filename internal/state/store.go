// Package state holds the per-client view state of the dashboard: an auth
// slice and a characters slice, changed only by dispatching actions through
// pure reducers.
package state

import (
	"context"
	"strings"
	"sync"

	"github.com/atvirokodosprendimai/holocron/internal/domain"
)

type Status string

const (
	StatusIdle      Status = "idle"
	StatusLoading   Status = "loading"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

type Mode string

const (
	ModeIdle      Mode = "idle"
	ModeFiltering Mode = "filtering"
)

type AuthState struct {
	User      *domain.User `json:"user"`
	Token     string       `json:"token"`
	Status    Status       `json:"status"`
	Error     string       `json:"error"`
	ExpiresIn int          `json:"expires_in"`
}

func (a AuthState) Authenticated() bool {
	return a.User != nil && a.Token != ""
}

type CharactersState struct {
	Characters []domain.Character `json:"characters"`
	Loading    bool               `json:"loading"`
	Error      string             `json:"error"`
	Page       int                `json:"page"`
	TotalCount int                `json:"total_count"`
	SearchTerm string             `json:"search_term"`
	Filters    domain.Filters     `json:"filters"`
	// Seq is the sequence number of the latest fetch started.
	Seq uint64 `json:"seq"`
}

func (c CharactersState) Mode() Mode {
	if c.Filters.Active() || strings.TrimSpace(c.SearchTerm) != "" {
		return ModeFiltering
	}
	return ModeIdle
}

func (c CharactersState) Pagination() Pagination {
	return Pagination{Page: c.Page, TotalCount: c.TotalCount}
}

func (c CharactersState) Query() domain.CharacterQuery {
	return domain.CharacterQuery{Page: c.Page, Search: c.SearchTerm, Filters: c.Filters}
}

type RootState struct {
	Auth       AuthState       `json:"auth"`
	Characters CharactersState `json:"characters"`
}

func InitialState() RootState {
	return RootState{
		Auth:       AuthState{Status: StatusIdle},
		Characters: CharactersState{Page: 1, Characters: []domain.Character{}},
	}
}

// Store is a mutex-guarded RootState. Every Dispatch applies one action atomically.
type Store struct {
	mu    sync.Mutex
	state RootState
	seq   uint64
}

func NewStore(initial RootState) *Store {
	if initial.Characters.Page < 1 {
		initial.Characters.Page = 1
	}
	return &Store{state: initial}
}

func (s *Store) State() RootState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Store) Dispatch(action Action) RootState {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Reduce(s.state, action)
	return s.state
}

// BeginFetch issues the next fetch sequence number and marks the slice loading.
// Results tagged with an older number are dropped by the reducer.
func (s *Store) BeginFetch() (uint64, domain.CharacterQuery) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.state = Reduce(s.state, FetchStarted{Seq: s.seq})
	return s.seq, s.state.Characters.Query()
}

type CharacterFetcher interface {
	FetchCharacters(ctx context.Context, q domain.CharacterQuery) (domain.PageResult, error)
}

// Load runs the fetch pipeline for the current query and records the outcome.
func (s *Store) Load(ctx context.Context, fetcher CharacterFetcher) (RootState, error) {
	seq, q := s.BeginFetch()
	res, err := fetcher.FetchCharacters(ctx, q)
	if err != nil {
		return s.Dispatch(FetchFailed{Seq: seq, Message: err.Error()}), err
	}
	return s.Dispatch(FetchSucceeded{Seq: seq, Result: res}), nil
}

// Authenticator is the identity backend bound to this client's storage.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (domain.AuthResult, error)
	Signup(ctx context.Context, email, password, name string) (domain.AuthResult, error)
	Refresh(ctx context.Context, token string) (domain.AuthResult, error)
	Clear(ctx context.Context) error
	Logout(ctx context.Context) error
}

func (s *Store) Login(ctx context.Context, auth Authenticator, email, password string) error {
	s.Dispatch(AuthStarted{})
	res, err := auth.Login(ctx, email, password)
	if err != nil {
		s.Dispatch(AuthFailed{Message: messageOr(err, "Login failed")})
		return err
	}
	s.Dispatch(AuthSucceeded{Result: res})
	return nil
}

func (s *Store) Signup(ctx context.Context, auth Authenticator, email, password, name string) error {
	s.Dispatch(AuthStarted{})
	res, err := auth.Signup(ctx, email, password, name)
	if err != nil {
		s.Dispatch(AuthFailed{Message: messageOr(err, "Signup failed")})
		return err
	}
	s.Dispatch(AuthSucceeded{Result: res})
	return nil
}

// Refresh rotates the current token. Any failure ends the session.
func (s *Store) Refresh(ctx context.Context, auth Authenticator) error {
	res, err := auth.Refresh(ctx, s.State().Auth.Token)
	if err != nil {
		_ = auth.Clear(ctx)
		s.Dispatch(RefreshFailed{})
		return err
	}
	s.Dispatch(RefreshSucceeded{Result: res})
	return nil
}

func (s *Store) Logout(ctx context.Context, auth Authenticator) error {
	err := auth.Logout(ctx)
	s.Dispatch(LoggedOut{})
	return err
}

func messageOr(err error, fallback string) string {
	if err == nil || strings.TrimSpace(err.Error()) == "" {
		return fallback
	}
	return err.Error()
}
