package application

import (
	"context"
	"testing"

	"github.com/atvirokodosprendimai/holocron/internal/adapters/swapi"
	"github.com/atvirokodosprendimai/holocron/internal/adapters/swapi/swapitest"
)

func TestResolveNameIsMemoized(t *testing.T) {
	srv := swapitest.NewServer(t, swapitest.DefaultDataset())
	r := NewNameResolver(swapi.NewClient(srv.BaseURL()), 2, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if got := r.ResolveName(ctx, srv.SpeciesURL(2)); got != "Droid" {
			t.Fatalf("call %d: expected Droid, got %q", i, got)
		}
	}
	if hits := srv.Hits("/api/species/2/"); hits != 1 {
		t.Fatalf("expected one upstream request, got %d", hits)
	}
	if got := r.ResolveName(ctx, srv.FilmURL(2)); got != "The Empire Strikes Back" {
		t.Fatalf("expected film title, got %q", got)
	}
}

func TestResolveNameFailureIsNotCached(t *testing.T) {
	srv := swapitest.NewServer(t, swapitest.DefaultDataset())
	r := NewNameResolver(swapi.NewClient(srv.BaseURL()), 2, nil)
	ctx := context.Background()
	missing := srv.SpeciesURL(99)

	if got := r.ResolveName(ctx, missing); got != UnknownName {
		t.Fatalf("expected %q, got %q", UnknownName, got)
	}
	if got := r.ResolveName(ctx, missing); got != UnknownName {
		t.Fatalf("expected %q, got %q", UnknownName, got)
	}
	if hits := srv.Hits("/api/species/99/"); hits != 2 {
		t.Fatalf("failed lookups should be retried, got %d requests", hits)
	}
	if _, ok := r.Cached(missing); ok {
		t.Fatalf("failure must not be cached")
	}
	if got := r.ResolveName(ctx, ""); got != UnknownName {
		t.Fatalf("empty url should resolve to %q, got %q", UnknownName, got)
	}
}

func TestResolveNamesCollapsesDuplicates(t *testing.T) {
	srv := swapitest.NewServer(t, swapitest.DefaultDataset())
	r := NewNameResolver(swapi.NewClient(srv.BaseURL()), 2, nil)

	got := r.ResolveNames(context.Background(), []string{
		srv.SpeciesURL(1), srv.SpeciesURL(2), srv.SpeciesURL(1), srv.PlanetURL(1), srv.SpeciesURL(99),
	})
	want := map[string]string{
		srv.SpeciesURL(1):  "Human",
		srv.SpeciesURL(2):  "Droid",
		srv.PlanetURL(1):   "Tatooine",
		srv.SpeciesURL(99): UnknownName,
	}
	if len(got) != len(want) {
		t.Fatalf("unexpected result size %d: %v", len(got), got)
	}
	for url, name := range want {
		if got[url] != name {
			t.Fatalf("%s: expected %q, got %q", url, name, got[url])
		}
	}
	if hits := srv.Hits("/api/species/1/"); hits != 1 {
		t.Fatalf("duplicate url fetched %d times", hits)
	}

	before := srv.TotalHits()
	_ = r.ResolveNames(context.Background(), []string{srv.SpeciesURL(1), srv.SpeciesURL(2)})
	if srv.TotalHits() != before {
		t.Fatalf("cached batch should not reach upstream")
	}
}
