package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/atvirokodosprendimai/holocron/internal/domain"
)

func TestProviderScopesAreIsolated(t *testing.T) {
	ctx := context.Background()
	p := NewProvider()

	a := p.Scope("device:a")
	if err := a.SetItem(ctx, "mock_auth_token", "tok"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, ok, _ := p.Scope("device:b").GetItem(ctx, "mock_auth_token"); ok {
		t.Fatalf("scopes must not share keys")
	}
	if v, ok, _ := p.Scope("device:a").GetItem(ctx, "mock_auth_token"); !ok || v != "tok" {
		t.Fatalf("expected the same scope back, got %q ok=%v", v, ok)
	}
	if err := a.RemoveItem(ctx, "mock_auth_token"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if p.Storage("device:a").Len() != 0 {
		t.Fatalf("expected an empty scope after remove")
	}
}

func TestScopeReadsDoNotAllocate(t *testing.T) {
	ctx := context.Background()
	p := NewProvider()

	for _, ns := range []string{"device:x", "device:y", "api:ghost@starwars.dev"} {
		if _, ok, err := p.Scope(ns).GetItem(ctx, "mock_auth_token"); ok || err != nil {
			t.Fatalf("unexpected item in %s ok=%v err=%v", ns, ok, err)
		}
		if err := p.Scope(ns).RemoveItem(ctx, "mock_auth_token"); err != nil {
			t.Fatalf("remove: %v", err)
		}
	}
	if p.Scopes() != 0 {
		t.Fatalf("reads and removes must not create scopes, got %d", p.Scopes())
	}
	_ = p.Scope("device:x").SetItem(ctx, "mock_auth_token", "tok")
	if p.Scopes() != 1 {
		t.Fatalf("expected one scope after a write, got %d", p.Scopes())
	}
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository()

	luke, err := repo.CreateUser(ctx, domain.User{Email: "luke@starwars.dev", Name: "Luke"})
	if err != nil || luke.ID != 1 || luke.CreatedAt.IsZero() {
		t.Fatalf("unexpected user %+v err=%v", luke, err)
	}
	if _, err := repo.CreateUser(ctx, domain.User{Email: "LUKE@starwars.dev"}); !errors.Is(err, domain.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
	if got, err := repo.GetUserByEmail(ctx, " Luke@starwars.dev "); err != nil || got.ID != luke.ID {
		t.Fatalf("lookup should ignore case and spaces, got %+v err=%v", got, err)
	}
	if _, err := repo.GetUserByEmail(ctx, "leia@starwars.dev"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	_ = repo.CreateAuditLog(ctx, domain.AuditLog{ActorUserID: &luke.ID, Action: "auth.login", TargetType: "user"})
	_ = repo.CreateAuditLog(ctx, domain.AuditLog{Action: "auth.signup", TargetType: "user"})
	_ = repo.CreateAuditLog(ctx, domain.AuditLog{ActorUserID: &luke.ID, Action: "auth.logout", TargetType: "user"})

	logs, err := repo.ListAuditLogs(ctx, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(logs) != 2 || logs[0].Action != "auth.logout" || logs[1].Action != "auth.signup" {
		t.Fatalf("expected newest first with limit, got %+v", logs)
	}
	if logs[0].ActorUserEmail != "luke@starwars.dev" || logs[1].ActorUserEmail != "" {
		t.Fatalf("unexpected actor emails %+v", logs)
	}
}
