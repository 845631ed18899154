package state

import (
	"github.com/atvirokodosprendimai/holocron/internal/domain"
)

// Action is anything Dispatch accepts.
type Action interface {
	action()
}

type (
	SetPage       struct{ Page int }
	NextPage      struct{}
	PrevPage      struct{}
	SetSearchTerm struct{ Term string }
	SetFilter     struct {
		Key   domain.FilterKey
		Value string
	}
	ClearFilters struct{}

	FetchStarted   struct{ Seq uint64 }
	FetchSucceeded struct {
		Seq    uint64
		Result domain.PageResult
	}
	FetchFailed struct {
		Seq     uint64
		Message string
	}

	AuthStarted      struct{}
	AuthSucceeded    struct{ Result domain.AuthResult }
	AuthFailed       struct{ Message string }
	RefreshSucceeded struct{ Result domain.AuthResult }
	RefreshFailed    struct{}
	LoggedOut        struct{}
	// Restored seeds the auth slice from persisted storage.
	Restored struct{ Local domain.LocalAuth }
)

func (SetPage) action()          {}
func (NextPage) action()         {}
func (PrevPage) action()         {}
func (SetSearchTerm) action()    {}
func (SetFilter) action()        {}
func (ClearFilters) action()     {}
func (FetchStarted) action()     {}
func (FetchSucceeded) action()   {}
func (FetchFailed) action()      {}
func (AuthStarted) action()      {}
func (AuthSucceeded) action()    {}
func (AuthFailed) action()       {}
func (RefreshSucceeded) action() {}
func (RefreshFailed) action()    {}
func (LoggedOut) action()        {}
func (Restored) action()         {}

const (
	sessionExpiredMessage = "Session expired. Please sign in again."
	fetchFailedMessage    = "Failed to fetch characters"
)

func Reduce(s RootState, a Action) RootState {
	s.Auth = ReduceAuth(s.Auth, a)
	s.Characters = ReduceCharacters(s.Characters, a)
	return s
}

func ReduceAuth(s AuthState, a Action) AuthState {
	switch a := a.(type) {
	case AuthStarted:
		s.Status = StatusLoading
		s.Error = ""
	case AuthSucceeded:
		s.Status = StatusSucceeded
		s.User = a.Result.User
		s.Token = a.Result.Token
		s.ExpiresIn = a.Result.ExpiresIn
		s.Error = ""
	case AuthFailed:
		s.Status = StatusFailed
		s.Error = a.Message
	case RefreshSucceeded:
		s.Token = a.Result.Token
		s.ExpiresIn = a.Result.ExpiresIn
	case RefreshFailed:
		s = AuthState{Status: StatusIdle, Error: sessionExpiredMessage}
	case LoggedOut:
		s = AuthState{Status: StatusIdle}
	case Restored:
		u := a.Local.User
		s.User = &u
		s.Token = a.Local.Token
		s.Status = StatusIdle
	}
	return s
}

func ReduceCharacters(s CharactersState, a Action) CharactersState {
	switch a := a.(type) {
	case SetPage:
		s.Page = max(a.Page, 1)
	case NextPage:
		if s.Pagination().CanGoNext() {
			s.Page++
		}
	case PrevPage:
		if s.Pagination().CanGoPrev() {
			s.Page--
		}
	case SetSearchTerm:
		s.SearchTerm = a.Term
		s.Page = 1
	case SetFilter:
		if next, ok := s.Filters.Set(a.Key, a.Value); ok {
			s.Filters = next
			s.Page = 1
		}
	case ClearFilters:
		s.Filters = domain.Filters{}
		s.Page = 1
	case FetchStarted:
		s.Seq = a.Seq
		s.Loading = true
		s.Error = ""
	case FetchSucceeded:
		if a.Seq != s.Seq {
			return s
		}
		s.Loading = false
		s.Characters = a.Result.Characters
		if s.Characters == nil {
			s.Characters = []domain.Character{}
		}
		s.TotalCount = a.Result.TotalCount
	case FetchFailed:
		if a.Seq != s.Seq {
			return s
		}
		s.Loading = false
		s.Error = a.Message
		if s.Error == "" {
			s.Error = fetchFailedMessage
		}
	}
	return s
}
