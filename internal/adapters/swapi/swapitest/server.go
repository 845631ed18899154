// Package swapitest serves a small in-memory copy of the SWAPI collections for tests.
package swapitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
)

const pageSize = 10

type Person struct {
	ID        int
	Name      string
	Gender    string
	BirthYear string
	Height    string
	Mass      string
	Homeworld int
	Species   []int
	Films     []int
}

type SpeciesRecord struct {
	ID     int
	Name   string
	People []int
}

type PlanetRecord struct {
	ID         int
	Name       string
	Terrain    string
	Climate    string
	Population string
	Residents  []int
}

type FilmRecord struct {
	ID         int
	Title      string
	Characters []int
}

type Dataset struct {
	People  []Person
	Species []SpeciesRecord
	Planets []PlanetRecord
	Films   []FilmRecord
}

// DefaultDataset is a trimmed slice of the real catalogue, large enough to page.
func DefaultDataset() Dataset {
	return Dataset{
		People: []Person{
			{ID: 1, Name: "Luke Skywalker", Gender: "male", BirthYear: "19BBY", Height: "172", Mass: "77", Homeworld: 1, Films: []int{1, 2}},
			{ID: 2, Name: "C-3PO", Gender: "n/a", BirthYear: "112BBY", Height: "167", Mass: "75", Homeworld: 1, Species: []int{2}, Films: []int{1, 2}},
			{ID: 3, Name: "R2-D2", Gender: "n/a", BirthYear: "33BBY", Height: "96", Mass: "32", Homeworld: 8, Species: []int{2}, Films: []int{1, 2}},
			{ID: 4, Name: "Darth Vader", Gender: "male", BirthYear: "41.9BBY", Height: "202", Mass: "136", Homeworld: 1, Films: []int{1, 2}},
			{ID: 5, Name: "Leia Organa", Gender: "female", BirthYear: "19BBY", Height: "150", Mass: "49", Homeworld: 2, Films: []int{1, 2}},
			{ID: 6, Name: "Owen Lars", Gender: "male", BirthYear: "52BBY", Height: "178", Mass: "120", Homeworld: 1, Films: []int{1}},
			{ID: 7, Name: "Beru Whitesun lars", Gender: "female", BirthYear: "47BBY", Height: "165", Mass: "75", Homeworld: 1, Films: []int{1}},
			{ID: 8, Name: "R5-D4", Gender: "n/a", BirthYear: "unknown", Height: "97", Mass: "32", Homeworld: 1, Species: []int{2}, Films: []int{1}},
			{ID: 9, Name: "Biggs Darklighter", Gender: "male", BirthYear: "24BBY", Height: "183", Mass: "84", Homeworld: 1, Films: []int{1}},
			{ID: 10, Name: "Obi-Wan Kenobi", Gender: "male", BirthYear: "57BBY", Height: "182", Mass: "77", Homeworld: 20, Films: []int{1, 2}},
			{ID: 12, Name: "Wilhuff Tarkin", Gender: "male", BirthYear: "64BBY", Height: "180", Mass: "unknown", Homeworld: 21, Films: []int{1}},
			{ID: 13, Name: "Chewbacca", Gender: "male", BirthYear: "200BBY", Height: "228", Mass: "112", Homeworld: 14, Species: []int{3}, Films: []int{1, 2}},
			{ID: 14, Name: "Han Solo", Gender: "male", BirthYear: "29BBY", Height: "180", Mass: "80", Homeworld: 22, Films: []int{1, 2}},
		},
		Species: []SpeciesRecord{
			{ID: 1, Name: "Human", People: []int{1, 4, 5, 6, 7, 9, 10, 12, 14}},
			{ID: 2, Name: "Droid", People: []int{2, 3, 8}},
			{ID: 3, Name: "Wookie", People: []int{13}},
		},
		Planets: []PlanetRecord{
			{ID: 1, Name: "Tatooine", Terrain: "desert", Climate: "arid", Population: "200000", Residents: []int{1, 2, 4, 6, 7, 8, 9}},
			{ID: 2, Name: "Alderaan", Terrain: "grasslands, mountains", Climate: "temperate", Population: "2000000000", Residents: []int{5}},
			{ID: 8, Name: "Naboo", Terrain: "grassy hills, swamps, forests, mountains", Climate: "temperate", Population: "4500000000", Residents: []int{3}},
			{ID: 14, Name: "Kashyyyk", Terrain: "jungle, forests, lakes, rivers", Climate: "tropical", Population: "45000000", Residents: []int{13}},
			{ID: 20, Name: "Stewjon", Terrain: "grass", Climate: "temperate", Population: "unknown", Residents: []int{10}},
			{ID: 21, Name: "Eriadu", Terrain: "cityscape", Climate: "polluted", Population: "22000000000", Residents: []int{12}},
			{ID: 22, Name: "Corellia", Terrain: "plains, urban, hills, forests", Climate: "temperate", Population: "3000000000", Residents: []int{14}},
		},
		Films: []FilmRecord{
			{ID: 1, Title: "A New Hope", Characters: []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 12, 13, 14}},
			{ID: 2, Title: "The Empire Strikes Back", Characters: []int{1, 2, 3, 4, 5, 10, 13, 14}},
		},
	}
}

// Server is an httptest server that counts requests per path.
type Server struct {
	*httptest.Server
	data Dataset

	mu    sync.Mutex
	hits  map[string]int
	fails []string
}

func NewServer(t testing.TB, data Dataset) *Server {
	t.Helper()
	s := &Server{data: data, hits: make(map[string]int)}
	r := chi.NewRouter()
	r.Use(s.count)
	r.Get("/api/{collection}/", s.handleList)
	r.Get("/api/{collection}/{id}/", s.handleGet)
	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

// BaseURL is the value to hand to swapi.NewClient.
func (s *Server) BaseURL() string { return s.URL + "/api" }

func (s *Server) PersonURL(id int) string { return s.resourceURL("people", id) }
func (s *Server) PlanetURL(id int) string { return s.resourceURL("planets", id) }
func (s *Server) SpeciesURL(id int) string {
	return s.resourceURL("species", id)
}
func (s *Server) FilmURL(id int) string { return s.resourceURL("films", id) }

// Hits reports how many requests reached path, e.g. "/api/species/2/".
func (s *Server) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func (s *Server) TotalHits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.hits {
		total += n
	}
	return total
}

// Fail makes every request whose path starts with prefix answer 500.
func (s *Server) Fail(prefix string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fails = append(s.fails, prefix)
}

func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		failing := false
		for _, prefix := range s.fails {
			if strings.HasPrefix(r.URL.Path, prefix) {
				failing = true
				break
			}
		}
		s.mu.Unlock()
		if failing {
			http.Error(w, `{"detail":"boom"}`, http.StatusInternalServerError)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) resourceURL(collection string, id int) string {
	return fmt.Sprintf("%s/api/%s/%d/", s.URL, collection, id)
}

func (s *Server) urls(collection string, ids []int) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.resourceURL(collection, id))
	}
	return out
}

func (s *Server) person(p Person) map[string]any {
	return map[string]any{
		"name":       p.Name,
		"height":     p.Height,
		"mass":       p.Mass,
		"birth_year": p.BirthYear,
		"gender":     p.Gender,
		"homeworld":  s.resourceURL("planets", p.Homeworld),
		"species":    s.urls("species", p.Species),
		"films":      s.urls("films", p.Films),
		"created":    fmt.Sprintf("2014-12-%02dT13:50:51.644000Z", 9+p.ID%10),
		"url":        s.resourceURL("people", p.ID),
	}
}

func (s *Server) species(sp SpeciesRecord) map[string]any {
	return map[string]any{"name": sp.Name, "people": s.urls("people", sp.People), "url": s.resourceURL("species", sp.ID)}
}

func (s *Server) planet(p PlanetRecord) map[string]any {
	return map[string]any{
		"name":       p.Name,
		"terrain":    p.Terrain,
		"climate":    p.Climate,
		"population": p.Population,
		"residents":  s.urls("people", p.Residents),
		"url":        s.resourceURL("planets", p.ID),
	}
}

func (s *Server) film(f FilmRecord) map[string]any {
	return map[string]any{"title": f.Title, "characters": s.urls("people", f.Characters), "url": s.resourceURL("films", f.ID)}
}

type record struct {
	id    int
	label string
	body  map[string]any
}

func (s *Server) records(collection string) ([]record, bool) {
	var out []record
	switch collection {
	case "people":
		for _, p := range s.data.People {
			out = append(out, record{p.ID, p.Name, s.person(p)})
		}
	case "species":
		for _, sp := range s.data.Species {
			out = append(out, record{sp.ID, sp.Name, s.species(sp)})
		}
	case "planets":
		for _, p := range s.data.Planets {
			out = append(out, record{p.ID, p.Name, s.planet(p)})
		}
	case "films":
		for _, f := range s.data.Films {
			out = append(out, record{f.ID, f.Title, s.film(f)})
		}
	default:
		return nil, false
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out, true
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	all, ok := s.records(collection)
	if !ok {
		notFound(w)
		return
	}
	search := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("search")))
	matched := make([]map[string]any, 0, len(all))
	for _, rec := range all {
		if search == "" || strings.Contains(strings.ToLower(rec.label), search) {
			matched = append(matched, rec.body)
		}
	}

	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			notFound(w)
			return
		}
		page = n
	}
	start := (page - 1) * pageSize
	if start > len(matched) || (start == len(matched) && page > 1) {
		notFound(w)
		return
	}
	end := min(start+pageSize, len(matched))

	var next, previous *string
	if end < len(matched) {
		v := s.pageURL(collection, page+1, search)
		next = &v
	}
	if page > 1 {
		v := s.pageURL(collection, page-1, search)
		previous = &v
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(matched),
		"next":     next,
		"previous": previous,
		"results":  matched[start:end],
	})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	all, ok := s.records(chi.URLParam(r, "collection"))
	if !ok {
		notFound(w)
		return
	}
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		notFound(w)
		return
	}
	for _, rec := range all {
		if rec.id == id {
			writeJSON(w, http.StatusOK, rec.body)
			return
		}
	}
	notFound(w)
}

func (s *Server) pageURL(collection string, page int, search string) string {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	if search != "" {
		q.Set("search", search)
	}
	return fmt.Sprintf("%s/api/%s/?%s", s.URL, collection, q.Encode())
}

func notFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, map[string]any{"detail": "Not found"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
