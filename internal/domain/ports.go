package domain

import "context"

// Catalogue is the read-only upstream character API.
type Catalogue interface {
	ListPeople(ctx context.Context, page int, search string) (Page[Character], error)
	SearchSpecies(ctx context.Context, name string, page int) (Page[Species], error)
	SearchPlanets(ctx context.Context, name string, page int) (Page[Planet], error)
	SearchFilms(ctx context.Context, title string, page int) (Page[Film], error)
	GetCharacter(ctx context.Context, url string) (Character, error)
	GetPlanet(ctx context.Context, url string) (Planet, error)
	GetResource(ctx context.Context, url string) (NamedResource, error)
}

type UserRepository interface {
	CreateUser(ctx context.Context, value User) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	CountUsers(ctx context.Context) (int64, error)
	CreateAuditLog(ctx context.Context, value AuditLog) error
	ListAuditLogs(ctx context.Context, limit int) ([]AuditRecord, error)
}

// LocalStorage is a string key/value store scoped to one client, the way a
// browser's localStorage is.
type LocalStorage interface {
	GetItem(ctx context.Context, key string) (string, bool, error)
	SetItem(ctx context.Context, key, value string) error
	RemoveItem(ctx context.Context, key string) error
}

// StorageProvider hands out the LocalStorage of a single client.
type StorageProvider interface {
	Scope(namespace string) LocalStorage
}
