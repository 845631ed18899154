package swapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/atvirokodosprendimai/holocron/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const DefaultBaseURL = "https://swapi.dev/api"

var tracer = otel.Tracer("github.com/atvirokodosprendimai/holocron/internal/adapters/swapi")

// Client talks to the SWAPI REST collections (people, species, planets, films).
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.httpClient.Timeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) {
		if l != nil {
			cl.logger = l
		}
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) ListPeople(ctx context.Context, page int, search string) (domain.Page[domain.Character], error) {
	var out domain.Page[domain.Character]
	err := c.get(ctx, c.collectionURL("people", page, search), &out)
	return out, err
}

func (c *Client) SearchSpecies(ctx context.Context, name string, page int) (domain.Page[domain.Species], error) {
	var out domain.Page[domain.Species]
	err := c.get(ctx, c.collectionURL("species", page, name), &out)
	return out, err
}

func (c *Client) SearchPlanets(ctx context.Context, name string, page int) (domain.Page[domain.Planet], error) {
	var out domain.Page[domain.Planet]
	err := c.get(ctx, c.collectionURL("planets", page, name), &out)
	return out, err
}

func (c *Client) SearchFilms(ctx context.Context, title string, page int) (domain.Page[domain.Film], error) {
	var out domain.Page[domain.Film]
	err := c.get(ctx, c.collectionURL("films", page, title), &out)
	return out, err
}

func (c *Client) GetCharacter(ctx context.Context, resourceURL string) (domain.Character, error) {
	var out domain.Character
	err := c.get(ctx, resourceURL, &out)
	return out, err
}

func (c *Client) GetPlanet(ctx context.Context, resourceURL string) (domain.Planet, error) {
	var out domain.Planet
	err := c.get(ctx, resourceURL, &out)
	return out, err
}

func (c *Client) GetResource(ctx context.Context, resourceURL string) (domain.NamedResource, error) {
	var out domain.NamedResource
	err := c.get(ctx, resourceURL, &out)
	return out, err
}

func (c *Client) collectionURL(collection string, page int, search string) string {
	if page < 1 {
		page = 1
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	if strings.TrimSpace(search) != "" {
		q.Set("search", strings.TrimSpace(search))
	}
	return c.baseURL + "/" + collection + "/?" + q.Encode()
}

// owns reports whether target lives under the client's base URL. Resource
// URLs arrive from callers, so anything else is refused before dialing.
func (c *Client) owns(target string) bool {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return false
	}
	u, err := url.Parse(target)
	if err != nil || u.User != nil {
		return false
	}
	if !strings.EqualFold(u.Scheme, base.Scheme) || !strings.EqualFold(u.Host, base.Host) {
		return false
	}
	return strings.HasPrefix(path.Clean(u.Path)+"/", strings.TrimRight(base.Path, "/")+"/")
}

func (c *Client) get(ctx context.Context, target string, out any) error {
	ctx, span := tracer.Start(ctx, "swapi.get", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("http.url", target))

	err := c.doGet(ctx, target, out)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (c *Client) doGet(ctx context.Context, target string, out any) error {
	if strings.TrimSpace(target) == "" {
		return domain.NetworkError("empty resource url", nil)
	}
	if !c.owns(target) {
		c.logger.WarnContext(ctx, "rejected foreign resource url", "url", target)
		return domain.ErrForeignResource
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return domain.NetworkError("build request", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "upstream request failed", "url", target, "error", err)
		return domain.NetworkError("fetch "+target, err)
	}
	defer func() { _ = resp.Body.Close() }()
	c.logger.DebugContext(ctx, "upstream request", "url", target, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.NetworkError(fmt.Sprintf("Failed to fetch: %d", resp.StatusCode), errors.New(strings.TrimSpace(string(payload))))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.ParseError("decode "+target, err)
	}
	return nil
}
