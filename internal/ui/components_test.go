package ui

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/a-h/templ"
	"github.com/atvirokodosprendimai/holocron/internal/domain"
	"github.com/atvirokodosprendimai/holocron/internal/state"
)

func render(t *testing.T, c templ.Component) string {
	t.Helper()
	var buf bytes.Buffer
	if err := c.Render(context.Background(), &buf); err != nil {
		t.Fatalf("render: %v", err)
	}
	return buf.String()
}

func TestHeightMetres(t *testing.T) {
	cases := map[string]string{
		"172":     "1.72 m",
		"96":      "0.96 m",
		"unknown": "unknown",
		"":        "Unknown",
	}
	for in, want := range cases {
		if got := HeightMetres(in); got != want {
			t.Fatalf("HeightMetres(%q)=%q want %q", in, got, want)
		}
	}
}

func TestFormatCreated(t *testing.T) {
	if got := FormatCreated("2014-12-09T13:50:51.644000Z"); got != "09/12/2014" {
		t.Fatalf("unexpected date %q", got)
	}
	if got := FormatCreated("yesterday"); got != "yesterday" {
		t.Fatalf("unparseable dates should pass through, got %q", got)
	}
}

func TestSpeciesLabel(t *testing.T) {
	names := map[string]string{"https://swapi.dev/api/species/2/": "Droid"}
	if got := SpeciesLabel(domain.Character{}, names); got != "Human" {
		t.Fatalf("no species should be Human, got %q", got)
	}
	if got := SpeciesLabel(domain.Character{Species: []string{"https://swapi.dev/api/species/2/"}}, names); got != "Droid" {
		t.Fatalf("expected Droid, got %q", got)
	}
	if got := SpeciesLabel(domain.Character{Species: []string{"https://swapi.dev/api/species/99/"}}, names); got != "Unknown" {
		t.Fatalf("unresolved species should be Unknown, got %q", got)
	}
}

func TestDashboardPage(t *testing.T) {
	chars := state.InitialState().Characters
	chars.Characters = []domain.Character{
		{Name: "Luke <Skywalker>", BirthYear: "19BBY", URL: "https://swapi.dev/api/people/1/"},
		{Name: "R2-D2", Species: []string{"https://swapi.dev/api/species/2/"}, URL: "https://swapi.dev/api/people/3/"},
	}
	chars.TotalCount = 82
	chars.Filters.Species = "Droid"

	html := render(t, DashboardPage(DashboardView{
		UserName:        "",
		Characters:      chars,
		SpeciesNames:    map[string]string{"https://swapi.dev/api/species/2/": "Droid"},
		RefreshInterval: 240 * time.Second,
	}))

	for _, want := range []string{
		"Welcome, Jedi!",
		`data-on-interval__duration.240s="@post('/auth/refresh')"`,
		"Luke &lt;Skywalker&gt;",
		"Birth Year: 19BBY",
		"Birth Year: Unknown",
		"species-droid",
		"Page 1 of 9",
		`id="modal"`,
		"https%3A%2F%2Fswapi.dev%2Fapi%2Fpeople%2F1%2F",
		"&#34;species&#34;:&#34;Droid&#34;",
	} {
		if !strings.Contains(html, want) {
			t.Fatalf("dashboard missing %q", want)
		}
	}
	if strings.Contains(html, "<Skywalker>") {
		t.Fatalf("character names must be escaped")
	}
}

func TestCharacterGridStates(t *testing.T) {
	s := state.InitialState().Characters
	s.Loading = true
	if html := render(t, CharacterGrid(s, nil)); !strings.Contains(html, "Loading characters...") {
		t.Fatalf("expected loading indicator: %s", html)
	}
	s.Loading = false
	s.Error = "Failed to fetch: 500"
	if html := render(t, CharacterGrid(s, nil)); !strings.Contains(html, "Error: Failed to fetch: 500") {
		t.Fatalf("expected error: %s", html)
	}
	s.Error = ""
	html := render(t, CharacterGrid(s, nil))
	if !strings.Contains(html, "No characters found.") {
		t.Fatalf("expected empty message: %s", html)
	}
	if strings.Count(html, " disabled") != 2 {
		t.Fatalf("both page buttons should be disabled on an empty result: %s", html)
	}
}

func TestCharacterModal(t *testing.T) {
	html := render(t, CharacterModal(domain.CharacterDetail{
		Character: domain.Character{
			Name: "Luke Skywalker", Height: "172", Mass: "77", BirthYear: "19BBY",
			Films: []string{"a", "b", "c", "d"}, Created: "2014-12-09T13:50:51.644000Z",
		},
		Homeworld: &domain.Planet{Name: "Tatooine", Terrain: "desert", Climate: "arid", Population: "200000"},
	}))
	for _, want := range []string{"1.72 m", "77 kg", "19BBY", "<strong>Films:</strong> 4", "09/12/2014", "Tatooine", "desert", "arid", "200000"} {
		if !strings.Contains(html, want) {
			t.Fatalf("modal missing %q: %s", want, html)
		}
	}

	html = render(t, CharacterModal(domain.CharacterDetail{Character: domain.Character{Name: "Nobody"}}))
	if strings.Contains(html, "Homeworld") {
		t.Fatalf("homeworld section should be omitted when unresolved")
	}
}

func TestLoginPageKeepsEmailAndShowsError(t *testing.T) {
	html := render(t, LoginPage("Invalid credentials", `x"@y.dev`))
	if !strings.Contains(html, "Invalid credentials") || !strings.Contains(html, `value="x&#34;@y.dev"`) {
		t.Fatalf("unexpected login page: %s", html)
	}
	if html := render(t, Flash("", "info")); html != `<div id="flash"></div>` {
		t.Fatalf("empty flash should render an empty container, got %s", html)
	}
}
