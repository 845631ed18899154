// Package memory holds in-process adapters used by tests and by the server
// when no database path is configured.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/atvirokodosprendimai/holocron/internal/domain"
)

// Storage is a LocalStorage backed by a map.
type Storage struct {
	mu    sync.RWMutex
	items map[string]string
}

func NewStorage() *Storage {
	return &Storage{items: make(map[string]string)}
}

func (s *Storage) GetItem(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	return v, ok, nil
}

func (s *Storage) SetItem(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = value
	return nil
}

func (s *Storage) RemoveItem(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}

// Len reports how many keys are stored.
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Provider hands out one Storage per namespace.
type Provider struct {
	mu     sync.Mutex
	scopes map[string]*Storage
}

func NewProvider() *Provider {
	return &Provider{scopes: make(map[string]*Storage)}
}

// Scope returns a view of namespace. Reads never allocate; the backing
// Storage appears on the first write.
func (p *Provider) Scope(namespace string) domain.LocalStorage {
	return scope{provider: p, namespace: namespace}
}

// Scopes reports how many namespaces hold a Storage.
func (p *Provider) Scopes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.scopes)
}

func (p *Provider) existing(namespace string) (*Storage, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.scopes[namespace]
	return s, ok
}

// Storage returns the Storage for namespace, creating it when missing.
func (p *Provider) Storage(namespace string) *Storage {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.scopes[namespace]
	if !ok {
		s = NewStorage()
		p.scopes[namespace] = s
	}
	return s
}

type scope struct {
	provider  *Provider
	namespace string
}

func (s scope) GetItem(ctx context.Context, key string) (string, bool, error) {
	st, ok := s.provider.existing(s.namespace)
	if !ok {
		return "", false, nil
	}
	return st.GetItem(ctx, key)
}

func (s scope) SetItem(ctx context.Context, key, value string) error {
	return s.provider.Storage(s.namespace).SetItem(ctx, key, value)
}

func (s scope) RemoveItem(ctx context.Context, key string) error {
	st, ok := s.provider.existing(s.namespace)
	if !ok {
		return nil
	}
	return st.RemoveItem(ctx, key)
}

// UserRepository keeps users and audit entries in memory.
type UserRepository struct {
	mu     sync.RWMutex
	users  []domain.User
	audits []domain.AuditLog
}

func NewUserRepository() *UserRepository {
	return &UserRepository{}
}

func (r *UserRepository) CreateUser(_ context.Context, value domain.User) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, value.Email) {
			return domain.User{}, domain.ErrUserExists
		}
	}
	now := time.Now().UTC()
	value.ID = uint(len(r.users) + 1)
	value.CreatedAt = now
	value.UpdatedAt = now
	r.users = append(r.users, value)
	return value, nil
}

func (r *UserRepository) GetUserByEmail(_ context.Context, email string) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, strings.TrimSpace(email)) {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrNotFound
}

func (r *UserRepository) CountUsers(context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.users)), nil
}

func (r *UserRepository) CreateAuditLog(_ context.Context, value domain.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	value.ID = uint(len(r.audits) + 1)
	value.CreatedAt = time.Now().UTC()
	r.audits = append(r.audits, value)
	return nil
}

// ListAuditLogs returns the newest entries first.
func (r *UserRepository) ListAuditLogs(_ context.Context, limit int) ([]domain.AuditRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	logs := slices.Clone(r.audits)
	slices.Reverse(logs)
	if limit > 0 && len(logs) > limit {
		logs = logs[:limit]
	}
	out := make([]domain.AuditRecord, 0, len(logs))
	for _, l := range logs {
		rec := domain.AuditRecord{
			ID:          l.ID,
			ActorUserID: l.ActorUserID,
			Action:      l.Action,
			TargetType:  l.TargetType,
			TargetID:    l.TargetID,
			Metadata:    l.Metadata,
			CreatedAt:   l.CreatedAt,
		}
		if l.ActorUserID != nil {
			for _, u := range r.users {
				if u.ID == *l.ActorUserID {
					rec.ActorUserEmail = u.Email
					break
				}
			}
		}
		out = append(out, rec)
	}
	return out, nil
}
