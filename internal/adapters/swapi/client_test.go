package swapi_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/atvirokodosprendimai/holocron/internal/adapters/swapi"
	"github.com/atvirokodosprendimai/holocron/internal/adapters/swapi/swapitest"
	"github.com/atvirokodosprendimai/holocron/internal/domain"
)

func TestListPeopleSearchesByName(t *testing.T) {
	srv := swapitest.NewServer(t, swapitest.DefaultDataset())
	client := swapi.NewClient(srv.BaseURL())

	page, err := client.ListPeople(context.Background(), 1, "Luke")
	if err != nil {
		t.Fatalf("list people: %v", err)
	}
	if page.Count != 1 || len(page.Results) != 1 {
		t.Fatalf("expected one match, got count=%d results=%d", page.Count, len(page.Results))
	}
	luke := page.Results[0]
	if luke.Name != "Luke Skywalker" {
		t.Fatalf("unexpected name %q", luke.Name)
	}
	if luke.BirthYear != "19BBY" || luke.Homeworld != srv.PlanetURL(1) {
		t.Fatalf("unexpected fields: %+v", luke)
	}
	if page.HasNext() {
		t.Fatalf("single page should not have next")
	}
}

func TestListPeoplePaginates(t *testing.T) {
	srv := swapitest.NewServer(t, swapitest.DefaultDataset())
	client := swapi.NewClient(srv.BaseURL())

	first, err := client.ListPeople(context.Background(), 1, "")
	if err != nil {
		t.Fatalf("page 1: %v", err)
	}
	if len(first.Results) != domain.PageSize || !first.HasNext() {
		t.Fatalf("expected a full first page with next, got %d results", len(first.Results))
	}
	second, err := client.ListPeople(context.Background(), 2, "")
	if err != nil {
		t.Fatalf("page 2: %v", err)
	}
	if second.Count != first.Count || len(second.Results) != first.Count-domain.PageSize {
		t.Fatalf("unexpected second page: count=%d results=%d", second.Count, len(second.Results))
	}
}

func TestGetResourceReadsNameOrTitle(t *testing.T) {
	srv := swapitest.NewServer(t, swapitest.DefaultDataset())
	client := swapi.NewClient(srv.BaseURL())

	species, err := client.GetResource(context.Background(), srv.SpeciesURL(2))
	if err != nil {
		t.Fatalf("species: %v", err)
	}
	if species.DisplayName() != "Droid" {
		t.Fatalf("expected Droid, got %q", species.DisplayName())
	}
	film, err := client.GetResource(context.Background(), srv.FilmURL(1))
	if err != nil {
		t.Fatalf("film: %v", err)
	}
	if film.DisplayName() != "A New Hope" {
		t.Fatalf("expected film title, got %q", film.DisplayName())
	}
}

func TestUpstreamFailuresAreClassified(t *testing.T) {
	srv := swapitest.NewServer(t, swapitest.DefaultDataset())
	client := swapi.NewClient(srv.BaseURL())

	_, err := client.GetPlanet(context.Background(), srv.PlanetURL(999))
	if domain.KindOf(err) != domain.KindNetwork {
		t.Fatalf("expected network failure for 404, got %v (%s)", err, domain.KindOf(err))
	}

	srv.Fail("/api/films/")
	_, err = client.SearchFilms(context.Background(), "Hope", 1)
	if domain.KindOf(err) != domain.KindNetwork {
		t.Fatalf("expected network failure for 500, got %v", err)
	}

	unreachable := swapi.NewClient("http://127.0.0.1:1/api")
	if _, err := unreachable.ListPeople(context.Background(), 1, ""); domain.KindOf(err) != domain.KindNetwork {
		t.Fatalf("expected network failure for refused connection, got %v", err)
	}
}

func TestResourceURLsMustLiveUnderTheBaseURL(t *testing.T) {
	srv := swapitest.NewServer(t, swapitest.DefaultDataset())
	client := swapi.NewClient(srv.BaseURL())

	var foreignHits atomic.Int32
	foreign := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		foreignHits.Add(1)
		_, _ = w.Write([]byte(`{"name":"INTERNAL-SECRET"}`))
	}))
	defer foreign.Close()

	base, _ := url.Parse(srv.BaseURL())
	rejected := []string{
		foreign.URL + "/api/species/2/",
		"https://" + base.Host + "/api/species/2/",
		srv.URL + "/admin",
		srv.URL + "/api/../admin",
		"http://user:pw@" + base.Host + "/api/species/2/",
		"::not a url",
	}
	for _, target := range rejected {
		res, err := client.GetResource(context.Background(), target)
		if !errors.Is(err, domain.ErrForeignResource) || domain.KindOf(err) != domain.KindNotFound {
			t.Fatalf("%s: expected a foreign resource error, got %v (%+v)", target, err, res)
		}
	}
	if _, err := client.GetCharacter(context.Background(), foreign.URL+"/api/people/1/"); !errors.Is(err, domain.ErrForeignResource) {
		t.Fatalf("character fetch should refuse foreign hosts, got %v", err)
	}
	if n := foreignHits.Load(); n != 0 {
		t.Fatalf("client dialed a foreign host %d times", n)
	}

	if _, err := client.GetResource(context.Background(), srv.SpeciesURL(2)); err != nil {
		t.Fatalf("catalogue urls must still resolve: %v", err)
	}
}
