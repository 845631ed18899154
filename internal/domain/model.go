package domain

import (
	"strings"
	"time"
)

// PageSize is the upstream people collection page size.
const PageSize = 10

type Character struct {
	Name      string   `json:"name"`
	Height    string   `json:"height"`
	Mass      string   `json:"mass"`
	BirthYear string   `json:"birth_year"`
	Gender    string   `json:"gender"`
	Homeworld string   `json:"homeworld"`
	Species   []string `json:"species"`
	Films     []string `json:"films"`
	Created   string   `json:"created"`
	URL       string   `json:"url"`
}

type Species struct {
	Name   string   `json:"name"`
	People []string `json:"people"`
	URL    string   `json:"url"`
}

type Planet struct {
	Name       string   `json:"name"`
	Terrain    string   `json:"terrain"`
	Climate    string   `json:"climate"`
	Population string   `json:"population"`
	Residents  []string `json:"residents"`
	URL        string   `json:"url"`
}

type Film struct {
	Title      string   `json:"title"`
	Characters []string `json:"characters"`
	URL        string   `json:"url"`
}

// NamedResource is the subset of any upstream resource needed to label it.
type NamedResource struct {
	Name  string `json:"name"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

func (r NamedResource) DisplayName() string {
	if strings.TrimSpace(r.Name) != "" {
		return r.Name
	}
	return r.Title
}

// Page mirrors the upstream {count, next, previous, results} envelope.
type Page[T any] struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

func (p Page[T]) HasNext() bool {
	return p.Next != nil && strings.TrimSpace(*p.Next) != ""
}

type FilterKey string

const (
	FilterSpecies   FilterKey = "species"
	FilterHomeworld FilterKey = "homeworld"
	FilterFilm      FilterKey = "film"
)

// Filters are AND-combined; an empty field is unconstrained.
type Filters struct {
	Species   string `json:"species"`
	Homeworld string `json:"homeworld"`
	Film      string `json:"film"`
}

func (f Filters) Active() bool {
	return strings.TrimSpace(f.Species) != "" || strings.TrimSpace(f.Homeworld) != "" || strings.TrimSpace(f.Film) != ""
}

// Set returns a copy with key set to value. Unknown keys leave f unchanged.
func (f Filters) Set(key FilterKey, value string) (Filters, bool) {
	switch key {
	case FilterSpecies:
		f.Species = value
	case FilterHomeworld:
		f.Homeworld = value
	case FilterFilm:
		f.Film = value
	default:
		return f, false
	}
	return f, true
}

type CharacterQuery struct {
	Page    int     `json:"page"`
	Search  string  `json:"search"`
	Filters Filters `json:"filters"`
}

type PageResult struct {
	Characters []Character `json:"characters"`
	TotalCount int         `json:"total_count"`
	Page       int         `json:"page"`
}

// CharacterDetail backs the character modal.
type CharacterDetail struct {
	Character Character `json:"character"`
	Homeworld *Planet   `json:"homeworld,omitempty"`
}

type User struct {
	ID           uint      `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// AuthResult is what the mock identity service hands back on login, signup and refresh.
type AuthResult struct {
	User      *User  `json:"user,omitempty"`
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

// LocalAuth is the session read back from persisted storage.
type LocalAuth struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type AuditLog struct {
	ID          uint
	ActorUserID *uint
	Action      string
	TargetType  string
	TargetID    *uint
	Metadata    string
	CreatedAt   time.Time
}

type AuditRecord struct {
	ID             uint      `json:"id"`
	ActorUserID    *uint     `json:"actor_user_id"`
	ActorUserEmail string    `json:"actor_user_email"`
	Action         string    `json:"action"`
	TargetType     string    `json:"target_type"`
	TargetID       *uint     `json:"target_id"`
	Metadata       string    `json:"metadata"`
	CreatedAt      time.Time `json:"created_at"`
}
