package application

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/atvirokodosprendimai/holocron/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

const DefaultFetchConcurrency = 5

var tracer = otel.Tracer("github.com/atvirokodosprendimai/holocron/internal/application")

type CharacterService struct {
	catalogue   domain.Catalogue
	logger      *slog.Logger
	concurrency int
}

type CharacterOption func(*CharacterService)

func WithFetchConcurrency(n int) CharacterOption {
	return func(s *CharacterService) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

func WithCharacterLogger(l *slog.Logger) CharacterOption {
	return func(s *CharacterService) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewCharacterService(catalogue domain.Catalogue, opts ...CharacterOption) *CharacterService {
	s := &CharacterService{
		catalogue:   catalogue,
		logger:      slog.New(slog.DiscardHandler),
		concurrency: DefaultFetchConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchCharacters returns one page of characters matching the search term and filters.
// With filters active the page window and total are computed over the whole filtered set.
func (s *CharacterService) FetchCharacters(ctx context.Context, q domain.CharacterQuery) (domain.PageResult, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	q.Search = strings.TrimSpace(q.Search)

	ctx, span := tracer.Start(ctx, "characters.fetch")
	defer span.End()
	span.SetAttributes(
		attribute.Int("page", q.Page),
		attribute.String("search", q.Search),
		attribute.Bool("filtered", q.Filters.Active()),
	)

	var (
		res domain.PageResult
		err error
	)
	if q.Filters.Active() {
		res, err = s.fetchFiltered(ctx, q)
	} else {
		res, err = s.fetchUnfiltered(ctx, q)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.WarnContext(ctx, "fetch characters failed", "page", q.Page, "search", q.Search, "error", err)
		return domain.PageResult{}, err
	}
	span.SetAttributes(attribute.Int("total_count", res.TotalCount))
	s.logger.DebugContext(ctx, "fetched characters", "page", res.Page, "total", res.TotalCount, "returned", len(res.Characters))
	return res, nil
}

func (s *CharacterService) fetchUnfiltered(ctx context.Context, q domain.CharacterQuery) (domain.PageResult, error) {
	page, err := s.catalogue.ListPeople(ctx, q.Page, q.Search)
	if err != nil {
		return domain.PageResult{}, err
	}
	out := page.Results
	if out == nil {
		out = []domain.Character{}
	}
	return domain.PageResult{Characters: out, TotalCount: page.Count, Page: q.Page}, nil
}

func (s *CharacterService) fetchFiltered(ctx context.Context, q domain.CharacterQuery) (domain.PageResult, error) {
	empty := domain.PageResult{Characters: []domain.Character{}, Page: q.Page}

	var lists [][]string
	if v := strings.TrimSpace(q.Filters.Species); v != "" {
		members, found, err := s.speciesMembers(ctx, v)
		if err != nil || !found {
			return empty, err
		}
		lists = append(lists, members)
	}
	if v := strings.TrimSpace(q.Filters.Homeworld); v != "" {
		members, found, err := s.planetMembers(ctx, v)
		if err != nil || !found {
			return empty, err
		}
		lists = append(lists, members)
	}
	if v := strings.TrimSpace(q.Filters.Film); v != "" {
		members, found, err := s.filmMembers(ctx, v)
		if err != nil || !found {
			return empty, err
		}
		lists = append(lists, members)
	}

	urls := intersect(lists)
	start, end := window(q.Page, len(urls))

	if q.Search == "" {
		chars, err := s.fetchAll(ctx, urls[start:end])
		if err != nil {
			return domain.PageResult{}, err
		}
		return domain.PageResult{Characters: chars, TotalCount: len(urls), Page: q.Page}, nil
	}

	all, err := s.fetchAll(ctx, urls)
	if err != nil {
		return domain.PageResult{}, err
	}
	needle := strings.ToLower(q.Search)
	matched := make([]domain.Character, 0, len(all))
	for _, c := range all {
		if strings.Contains(strings.ToLower(c.Name), needle) {
			matched = append(matched, c)
		}
	}
	start, end = window(q.Page, len(matched))
	return domain.PageResult{Characters: matched[start:end], TotalCount: len(matched), Page: q.Page}, nil
}

func (s *CharacterService) speciesMembers(ctx context.Context, name string) ([]string, bool, error) {
	found, ok, err := scanPages(ctx, func(ctx context.Context, page int) (domain.Page[domain.Species], error) {
		return s.catalogue.SearchSpecies(ctx, name, page)
	}, func(item domain.Species) bool { return sameName(item.Name, name) })
	return found.People, ok, err
}

func (s *CharacterService) planetMembers(ctx context.Context, name string) ([]string, bool, error) {
	found, ok, err := scanPages(ctx, func(ctx context.Context, page int) (domain.Page[domain.Planet], error) {
		return s.catalogue.SearchPlanets(ctx, name, page)
	}, func(item domain.Planet) bool { return sameName(item.Name, name) })
	return found.Residents, ok, err
}

func (s *CharacterService) filmMembers(ctx context.Context, title string) ([]string, bool, error) {
	found, ok, err := scanPages(ctx, func(ctx context.Context, page int) (domain.Page[domain.Film], error) {
		return s.catalogue.SearchFilms(ctx, title, page)
	}, func(item domain.Film) bool { return sameName(item.Title, title) })
	return found.Characters, ok, err
}

// fetchAll loads characters by URL with bounded concurrency, keeping input order.
func (s *CharacterService) fetchAll(ctx context.Context, urls []string) ([]domain.Character, error) {
	out := make([]domain.Character, len(urls))
	if len(urls) == 0 {
		return out, nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, u := range urls {
		g.Go(func() error {
			c, err := s.catalogue.GetCharacter(gctx, u)
			if err != nil {
				return err
			}
			out[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Describe loads a character together with its homeworld. A homeworld that
// cannot be loaded leaves Homeworld nil.
func (s *CharacterService) Describe(ctx context.Context, characterURL string) (domain.CharacterDetail, error) {
	ctx, span := tracer.Start(ctx, "characters.describe")
	defer span.End()

	c, err := s.catalogue.GetCharacter(ctx, characterURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.CharacterDetail{}, err
	}
	detail := domain.CharacterDetail{Character: c}
	if strings.TrimSpace(c.Homeworld) == "" {
		return detail, nil
	}
	planet, err := s.catalogue.GetPlanet(ctx, c.Homeworld)
	if err != nil {
		s.logger.WarnContext(ctx, "homeworld lookup failed", "url", c.Homeworld, "error", err)
		return detail, nil
	}
	detail.Homeworld = &planet
	return detail, nil
}

func scanPages[T any](ctx context.Context, fetch func(context.Context, int) (domain.Page[T], error), match func(T) bool) (T, bool, error) {
	var zero T
	for page := 1; ; page++ {
		p, err := fetch(ctx, page)
		if err != nil {
			return zero, false, err
		}
		for _, item := range p.Results {
			if match(item) {
				return item, true, nil
			}
		}
		if !p.HasNext() {
			return zero, false, nil
		}
	}
}

func sameName(candidate, want string) bool {
	return strings.EqualFold(strings.TrimSpace(candidate), strings.TrimSpace(want))
}

// intersect keeps the order of the first list.
func intersect(lists [][]string) []string {
	if len(lists) == 0 {
		return nil
	}
	out := make([]string, 0, len(lists[0]))
	seen := make(map[string]struct{}, len(lists[0]))
	for _, candidate := range lists[0] {
		if _, dup := seen[candidate]; dup {
			continue
		}
		seen[candidate] = struct{}{}
		keep := true
		for _, other := range lists[1:] {
			if !slices.Contains(other, candidate) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, candidate)
		}
	}
	return out
}

func window(page, total int) (int, int) {
	start := (page - 1) * domain.PageSize
	if start > total {
		start = total
	}
	end := start + domain.PageSize
	if end > total {
		end = total
	}
	return start, end
}
