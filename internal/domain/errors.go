package domain

import (
	"errors"
	"fmt"
)

// Kind is a stable failure category.
type Kind string

const (
	KindNetwork  Kind = "network_failure"
	KindParse    Kind = "parse_failure"
	KindNotFound Kind = "not_found"
	KindAuth     Kind = "auth_failure"
	KindInternal Kind = "internal"
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind and message, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == e.Message
}

func NewError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func NetworkError(message string, err error) error {
	return NewError(KindNetwork, message, err)
}

func ParseError(message string, err error) error {
	return NewError(KindParse, message, err)
}

// KindOf reports the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if err == nil {
		return ""
	}
	return KindInternal
}

// Auth errors
var (
	ErrInvalidCredentials = NewError(KindAuth, "Invalid credentials", nil)
	ErrUserExists         = NewError(KindAuth, "User already exists", nil)
	ErrNoToken            = NewError(KindAuth, "No token to refresh", nil)
	ErrInvalidToken       = NewError(KindAuth, "Invalid token", nil)
	ErrSessionExpired     = NewError(KindAuth, "Session expired. Please sign in again.", nil)
	ErrMissingCredentials = NewError(KindAuth, "Email and password are required", nil)
	ErrUnauthorized       = NewError(KindAuth, "unauthorized", nil)
)

// Catalogue errors
var (
	ErrNotFound        = NewError(KindNotFound, "not found", nil)
	ErrForeignResource = NewError(KindNotFound, "resource is not part of the catalogue", nil)
)
