// Package ui renders the dashboard pages and the HTML fragments that datastar
// morphs into them by element id.
package ui

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/a-h/templ"
	"github.com/atvirokodosprendimai/holocron/internal/domain"
	"github.com/atvirokodosprendimai/holocron/internal/state"
)

const datastarScript = "https://cdn.jsdelivr.net/gh/starfederation/datastar@1.0.0/bundles/datastar.js"

// DashboardView is everything the dashboard page needs.
type DashboardView struct {
	UserName        string
	Characters      state.CharactersState
	SpeciesNames    map[string]string
	RefreshInterval time.Duration
}

func LoginPage(errMsg, email string) templ.Component {
	return layout("Sign in", component(func(b *builder) {
		b.raw(`<main class="auth"><h1>Sign in to the Holocron</h1>`)
		flashBlock(b, errMsg, "error")
		b.raw(`<form method="post" action="/login">`)
		b.raw(`<label>Email<input type="email" name="email" required value="`).attr(email).raw(`"></label>`)
		b.raw(`<label>Password<input type="password" name="password" required></label>`)
		b.raw(`<button type="submit">Sign in</button></form>`)
		b.raw(`<p class="hint">Demo account: demo@starwars.dev / password123</p>`)
		b.raw(`<p>No account? <a href="/signup">Sign up</a></p></main>`)
	}))
}

func SignupPage(errMsg, email, name string) templ.Component {
	return layout("Sign up", component(func(b *builder) {
		b.raw(`<main class="auth"><h1>Create an account</h1>`)
		flashBlock(b, errMsg, "error")
		b.raw(`<form method="post" action="/signup">`)
		b.raw(`<label>Name<input type="text" name="name" value="`).attr(name).raw(`"></label>`)
		b.raw(`<label>Email<input type="email" name="email" required value="`).attr(email).raw(`"></label>`)
		b.raw(`<label>Password<input type="password" name="password" required></label>`)
		b.raw(`<button type="submit">Sign up</button></form>`)
		b.raw(`<p>Already registered? <a href="/login">Sign in</a></p></main>`)
	}))
}

func DashboardPage(v DashboardView) templ.Component {
	return layout("Characters", component(func(b *builder) {
		signals, _ := json.Marshal(map[string]string{
			"search":    v.Characters.SearchTerm,
			"species":   v.Characters.Filters.Species,
			"homeworld": v.Characters.Filters.Homeworld,
			"film":      v.Characters.Filters.Film,
		})
		b.raw(`<div id="dashboard" data-signals="`).attr(string(signals)).raw(`"`)
		if v.RefreshInterval > 0 {
			b.raw(` data-on-interval__duration.`).text(strconv.Itoa(int(v.RefreshInterval/time.Second))).raw(`s="@post('/auth/refresh')"`)
		}
		b.raw(`>`)
		b.component(Header(v.UserName))
		b.raw(`<div id="flash"></div>`)
		b.component(FiltersBar())
		b.component(CharacterGrid(v.Characters, v.SpeciesNames))
		b.component(ModalClosed())
		b.raw(`</div>`)
	}))
}

func Header(userName string) templ.Component {
	return component(func(b *builder) {
		b.raw(`<header id="header"><h1>Welcome, `).text(WelcomeName(userName)).raw(`!</h1>`)
		b.raw(`<button type="button" data-on:click="@post('/auth/refresh')">Refresh Token</button>`)
		b.raw(`<form method="post" action="/logout"><button type="submit">Logout</button></form></header>`)
	})
}

// FiltersBar is bound to the signals declared on the dashboard root.
func FiltersBar() templ.Component {
	return component(func(b *builder) {
		b.raw(`<section id="filters">`)
		b.raw(`<input type="text" placeholder="Search by character name..." data-bind:search data-on:input="@post('/characters/search')">`)
		for _, f := range []struct{ key, label string }{
			{string(domain.FilterSpecies), "species"},
			{string(domain.FilterHomeworld), "homeworld"},
			{string(domain.FilterFilm), "film"},
		} {
			b.raw(`<input type="text" placeholder="Filter by `).text(f.label).raw(`..." data-bind:`).text(f.key).raw(` data-on:input="@post('/characters/filters')">`)
		}
		b.raw(`<button type="button" data-on:click="$species='';$homeworld='';$film='';@post('/characters/filters/clear')">Clear</button>`)
		b.raw(`</section>`)
	})
}

func CharacterGrid(s state.CharactersState, speciesNames map[string]string) templ.Component {
	return component(func(b *builder) {
		b.raw(`<section id="characters">`)
		switch {
		case s.Loading:
			b.raw(`<p class="status">Loading characters...</p>`)
		case s.Error != "":
			b.raw(`<p class="status error">Error: `).text(s.Error).raw(`</p>`)
		case len(s.Characters) == 0:
			b.raw(`<p class="status">No characters found.</p>`)
		default:
			b.raw(`<div class="grid">`)
			for _, c := range s.Characters {
				b.component(CharacterCard(c, SpeciesLabel(c, speciesNames)))
			}
			b.raw(`</div>`)
		}
		b.component(Pagination(s.Pagination()))
		b.raw(`</section>`)
	})
}

func CharacterCard(c domain.Character, species string) templ.Component {
	return component(func(b *builder) {
		detail := "/characters/detail?url=" + url.QueryEscape(c.URL)
		b.raw(`<article class="card species-`).attr(speciesClass(species)).raw(`" data-on:click="@get('`).attr(detail).raw(`')">`)
		b.raw(`<img src="`).attr(ImageURL(c.Name)).raw(`" alt="`).attr(c.Name).raw(`" loading="lazy">`)
		b.raw(`<h3>`).text(c.Name).raw(`</h3>`)
		b.raw(`<p class="species">`).text(species).raw(`</p>`)
		b.raw(`<p>Birth Year: `).text(orUnknown(c.BirthYear)).raw(`</p></article>`)
	})
}

func Pagination(p state.Pagination) templ.Component {
	return component(func(b *builder) {
		b.raw(`<nav id="pagination">`)
		b.raw(`<button type="button" data-on:click="@post('/characters/page/prev')"`).raw(disabled(!p.CanGoPrev())).raw(`>Prev</button>`)
		pages := max(p.PageCount(), 1)
		b.raw(`<span>Page `).text(strconv.Itoa(p.Page)).raw(` of `).text(strconv.Itoa(pages)).raw(`</span>`)
		b.raw(`<button type="button" data-on:click="@post('/characters/page/next')"`).raw(disabled(!p.CanGoNext())).raw(`>Next</button>`)
		b.raw(`</nav>`)
	})
}

func CharacterModal(d domain.CharacterDetail) templ.Component {
	return component(func(b *builder) {
		c := d.Character
		b.raw(`<div id="modal" class="modal"><div class="modal-body">`)
		b.raw(`<button type="button" class="close" data-on:click="document.getElementById('modal').replaceChildren()">&#x2716;</button>`)
		b.raw(`<h2>`).text(c.Name).raw(`</h2>`)
		b.raw(`<p><strong>Height:</strong> `).text(HeightMetres(c.Height)).raw(`</p>`)
		b.raw(`<p><strong>Mass:</strong> `).text(c.Mass).raw(` kg</p>`)
		b.raw(`<p><strong>Birth Year:</strong> `).text(c.BirthYear).raw(`</p>`)
		b.raw(`<p><strong>Films:</strong> `).text(strconv.Itoa(len(c.Films))).raw(`</p>`)
		b.raw(`<p><strong>Date Added:</strong> `).text(FormatCreated(c.Created)).raw(`</p>`)
		if hw := d.Homeworld; hw != nil {
			b.raw(`<div class="homeworld"><h3>Homeworld</h3>`)
			b.raw(`<p><strong>Name:</strong> `).text(hw.Name).raw(`</p>`)
			b.raw(`<p><strong>Terrain:</strong> `).text(hw.Terrain).raw(`</p>`)
			b.raw(`<p><strong>Climate:</strong> `).text(hw.Climate).raw(`</p>`)
			b.raw(`<p><strong>Population:</strong> `).text(hw.Population).raw(`</p></div>`)
		}
		b.raw(`</div></div>`)
	})
}

func ModalClosed() templ.Component {
	return component(func(b *builder) {
		b.raw(`<div id="modal"></div>`)
	})
}

func Flash(message, kind string) templ.Component {
	return component(func(b *builder) {
		b.raw(`<div id="flash">`)
		flashBlock(b, message, kind)
		b.raw(`</div>`)
	})
}

// WelcomeName falls back to "Jedi" for users without a name.
func WelcomeName(name string) string {
	if strings.TrimSpace(name) == "" {
		return "Jedi"
	}
	return name
}

// SpeciesLabel names the first species of c. Characters without species are Human.
func SpeciesLabel(c domain.Character, names map[string]string) string {
	if len(c.Species) == 0 {
		return "Human"
	}
	if name, ok := names[c.Species[0]]; ok && name != "" {
		return name
	}
	return "Unknown"
}

func ImageURL(name string) string {
	return "https://picsum.photos/seed/" + url.PathEscape(name) + "/400/600"
}

// HeightMetres renders a centimetre height as metres with two decimals.
// Non-numeric heights are returned as given.
func HeightMetres(height string) string {
	cm, err := strconv.ParseFloat(strings.TrimSpace(height), 64)
	if err != nil {
		return orUnknown(height)
	}
	return fmt.Sprintf("%.2f m", cm/100)
}

// FormatCreated renders an upstream timestamp as dd/mm/yyyy.
func FormatCreated(created string) string {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(created))
	if err != nil {
		return orUnknown(created)
	}
	return t.Format("02/01/2006")
}

func layout(title string, body templ.Component) templ.Component {
	return component(func(b *builder) {
		b.raw(`<!doctype html><html lang="en"><head><meta charset="utf-8">`)
		b.raw(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
		b.raw(`<title>`).text(title).raw(` | Holocron</title>`)
		b.raw(`<script type="module" src="` + datastarScript + `"></script>`)
		b.raw(`</head><body>`)
		b.component(body)
		b.raw(`</body></html>`)
	})
}

func flashBlock(b *builder, message, kind string) {
	if strings.TrimSpace(message) == "" {
		return
	}
	if kind == "" {
		kind = "info"
	}
	b.raw(`<p class="flash flash-`).attr(kind).raw(`">`).text(message).raw(`</p>`)
}

func speciesClass(species string) string {
	switch strings.ToLower(species) {
	case "human", "droid", "wookie", "wookiee":
		return strings.ToLower(species)
	default:
		return "unknown"
	}
}

func disabled(v bool) string {
	if v {
		return ` disabled`
	}
	return ""
}

func orUnknown(v string) string {
	if strings.TrimSpace(v) == "" {
		return "Unknown"
	}
	return v
}

// builder accumulates markup; the first write error sticks.
type builder struct {
	ctx context.Context
	w   io.Writer
	err error
}

func (b *builder) raw(s string) *builder {
	if b.err == nil {
		_, b.err = io.WriteString(b.w, s)
	}
	return b
}

func (b *builder) text(s string) *builder {
	return b.raw(templ.EscapeString(s))
}

func (b *builder) attr(s string) *builder {
	return b.raw(templ.EscapeString(s))
}

func (b *builder) component(c templ.Component) *builder {
	if b.err == nil && c != nil {
		b.err = c.Render(b.ctx, b.w)
	}
	return b
}

func component(fn func(b *builder)) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		b := &builder{ctx: ctx, w: w}
		fn(b)
		return b.err
	})
}
