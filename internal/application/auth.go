package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/atvirokodosprendimai/holocron/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

// Persisted session keys.
const (
	TokenKey = "mock_auth_token"
	UserKey  = "mock_auth_user"
)

// ClientNamespace is the storage scope of an API client signed in as email.
func ClientNamespace(email string) string { return "api:" + normalizeEmail(email) }

// DeviceNamespace is the storage scope of one browser.
func DeviceNamespace(deviceID string) string { return "device:" + deviceID }

const (
	DefaultAuthLatency    = 600 * time.Millisecond
	DefaultRefreshLatency = 400 * time.Millisecond
)

type AuthConfig struct {
	Secret         string
	TokenTTL       time.Duration
	AuthLatency    time.Duration
	RefreshLatency time.Duration
}

// AuthService is the mock identity backend: bcrypt users in a repository,
// signed short-lived tokens, simulated network latency.
type AuthService struct {
	users          domain.UserRepository
	tokens         *TokenIssuer
	logger         *slog.Logger
	authLatency    time.Duration
	refreshLatency time.Duration
}

func NewAuthService(users domain.UserRepository, cfg AuthConfig, logger *slog.Logger) *AuthService {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &AuthService{
		users:          users,
		tokens:         NewTokenIssuer(cfg.Secret, cfg.TokenTTL),
		logger:         logger,
		authLatency:    max(cfg.AuthLatency, 0),
		refreshLatency: max(cfg.RefreshLatency, 0),
	}
}

// BootstrapDemoUser creates the seeded account unless a user with that email exists.
func (s *AuthService) BootstrapDemoUser(ctx context.Context, email, password, name string) error {
	email = normalizeEmail(email)
	if email == "" || strings.TrimSpace(password) == "" {
		return errors.New("demo user email and password are required")
	}
	_, err := s.users.GetUserByEmail(ctx, email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	hash, err := hashPassword(password)
	if err != nil {
		return err
	}
	u, err := s.users.CreateUser(ctx, domain.User{Email: email, Name: strings.TrimSpace(name), PasswordHash: hash})
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "demo user created", "email", email)
	s.WriteAudit(ctx, &u.ID, "auth.bootstrap_demo", "user", &u.ID, "demo user created")
	return nil
}

// WithStorage binds the service to one client's persisted storage.
func (s *AuthService) WithStorage(storage domain.LocalStorage) *AuthSession {
	return &AuthSession{svc: s, storage: storage}
}

// ForClient binds the service to the storage of the API client token was
// issued to. Tokens that do not parse land in a shared anonymous scope.
func (s *AuthService) ForClient(storage domain.StorageProvider, token string) *AuthSession {
	email := ""
	if claims, err := s.tokens.Parse(token, true); err == nil {
		email = claims.Email
	}
	return s.WithStorage(storage.Scope(ClientNamespace(email)))
}

// Whoami validates a bearer token and returns the current user record.
func (s *AuthService) Whoami(ctx context.Context, token string) (domain.User, error) {
	claims, err := s.tokens.Parse(token, false)
	if err != nil {
		return domain.User{}, err
	}
	u, err := s.users.GetUserByEmail(ctx, claims.Email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.User{}, domain.ErrUnauthorized
		}
		return domain.User{}, err
	}
	return u, nil
}

func (s *AuthService) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditRecord, error) {
	if limit <= 0 {
		limit = 200
	}
	if limit > 2000 {
		limit = 2000
	}
	return s.users.ListAuditLogs(ctx, limit)
}

func (s *AuthService) WriteAudit(ctx context.Context, actorUserID *uint, action, targetType string, targetID *uint, metadata string) {
	err := s.users.CreateAuditLog(ctx, domain.AuditLog{
		ActorUserID: actorUserID,
		Action:      action,
		TargetType:  targetType,
		TargetID:    targetID,
		Metadata:    metadata,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "audit write failed", "action", action, "error", err)
	}
}

func (s *AuthService) TokenTTL() time.Duration { return s.tokens.TTL() }

func (s *AuthService) issue(u domain.User) (domain.AuthResult, error) {
	token, err := s.tokens.Issue(u)
	if err != nil {
		return domain.AuthResult{}, err
	}
	user := u
	return domain.AuthResult{User: &user, Token: token, ExpiresIn: int(s.tokens.TTL() / time.Second)}, nil
}

// AuthSession is an AuthService bound to a single client's storage.
type AuthSession struct {
	svc     *AuthService
	storage domain.LocalStorage
}

func (a *AuthSession) Login(ctx context.Context, email, password string) (domain.AuthResult, error) {
	if err := sleep(ctx, a.svc.authLatency); err != nil {
		return domain.AuthResult{}, err
	}
	email = normalizeEmail(email)
	u, err := a.svc.users.GetUserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return domain.AuthResult{}, err
		}
		a.svc.WriteAudit(ctx, nil, "auth.login.failed", "user", nil, email)
		return domain.AuthResult{}, domain.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		a.svc.WriteAudit(ctx, nil, "auth.login.failed", "user", &u.ID, email)
		return domain.AuthResult{}, domain.ErrInvalidCredentials
	}

	res, err := a.svc.issue(u)
	if err != nil {
		return domain.AuthResult{}, err
	}
	if err := a.persist(ctx, res.Token, &u); err != nil {
		return domain.AuthResult{}, err
	}
	a.svc.WriteAudit(ctx, &u.ID, "auth.login", "user", &u.ID, "login")
	return res, nil
}

func (a *AuthSession) Signup(ctx context.Context, email, password, name string) (domain.AuthResult, error) {
	if err := sleep(ctx, a.svc.authLatency); err != nil {
		return domain.AuthResult{}, err
	}
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return domain.AuthResult{}, domain.ErrMissingCredentials
	}
	_, err := a.svc.users.GetUserByEmail(ctx, email)
	if err == nil {
		return domain.AuthResult{}, domain.ErrUserExists
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.AuthResult{}, err
	}

	hash, err := hashPassword(password)
	if err != nil {
		return domain.AuthResult{}, err
	}
	u, err := a.svc.users.CreateUser(ctx, domain.User{Email: email, Name: strings.TrimSpace(name), PasswordHash: hash})
	if err != nil {
		return domain.AuthResult{}, err
	}

	res, err := a.svc.issue(u)
	if err != nil {
		return domain.AuthResult{}, err
	}
	if err := a.persist(ctx, res.Token, &u); err != nil {
		return domain.AuthResult{}, err
	}
	a.svc.WriteAudit(ctx, &u.ID, "auth.signup", "user", &u.ID, "signup")
	return res, nil
}

// Refresh exchanges token for a new one and persists it. An empty token fails
// with ErrNoToken and leaves storage untouched.
func (a *AuthSession) Refresh(ctx context.Context, token string) (domain.AuthResult, error) {
	if err := sleep(ctx, a.svc.refreshLatency); err != nil {
		return domain.AuthResult{}, err
	}
	if strings.TrimSpace(token) == "" {
		return domain.AuthResult{}, domain.ErrNoToken
	}

	u, err := a.refreshSubject(ctx, token)
	if err != nil {
		return domain.AuthResult{}, err
	}
	res, err := a.svc.issue(u)
	if err != nil {
		return domain.AuthResult{}, err
	}
	if err := a.storage.SetItem(ctx, TokenKey, res.Token); err != nil {
		return domain.AuthResult{}, fmt.Errorf("persist token: %w", err)
	}
	a.svc.WriteAudit(ctx, &u.ID, "auth.refresh", "user", &u.ID, "token refreshed")
	return res, nil
}

// refreshSubject finds who a refresh is for: the claims of a token we signed
// (expired or not), else the persisted user.
func (a *AuthSession) refreshSubject(ctx context.Context, token string) (domain.User, error) {
	if claims, err := a.svc.tokens.Parse(token, true); err == nil {
		return domain.User{ID: claims.UserID(), Email: claims.Email, Name: claims.Name}, nil
	}
	local, err := a.LocalAuth(ctx)
	if err != nil {
		return domain.User{}, err
	}
	if local == nil {
		return domain.User{}, domain.ErrInvalidToken
	}
	return local.User, nil
}

// LocalAuth reads the persisted session. Missing or unreadable entries yield nil.
func (a *AuthSession) LocalAuth(ctx context.Context) (*domain.LocalAuth, error) {
	token, ok, err := a.storage.GetItem(ctx, TokenKey)
	if err != nil || !ok || token == "" {
		return nil, err
	}
	raw, ok, err := a.storage.GetItem(ctx, UserKey)
	if err != nil || !ok || raw == "" {
		return nil, err
	}
	var u domain.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return nil, nil
	}
	return &domain.LocalAuth{Token: token, User: u}, nil
}

func (a *AuthSession) Clear(ctx context.Context) error {
	return errors.Join(
		a.storage.RemoveItem(ctx, TokenKey),
		a.storage.RemoveItem(ctx, UserKey),
	)
}

// Logout clears the persisted session and records who left.
func (a *AuthSession) Logout(ctx context.Context) error {
	local, _ := a.LocalAuth(ctx)
	if err := a.Clear(ctx); err != nil {
		return err
	}
	if local != nil {
		a.svc.WriteAudit(ctx, &local.User.ID, "auth.logout", "user", &local.User.ID, "logout")
	}
	return nil
}

func (a *AuthSession) persist(ctx context.Context, token string, u *domain.User) error {
	raw, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	if err := a.storage.SetItem(ctx, TokenKey, token); err != nil {
		return fmt.Errorf("persist token: %w", err)
	}
	if err := a.storage.SetItem(ctx, UserKey, string(raw)); err != nil {
		return fmt.Errorf("persist user: %w", err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
