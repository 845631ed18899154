package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/atvirokodosprendimai/holocron/internal/domain"
	"github.com/atvirokodosprendimai/holocron/internal/state"
	"github.com/atvirokodosprendimai/holocron/internal/ui"
	"github.com/go-chi/chi/v5"
	"github.com/starfederation/datastar-go/datastar"
)

type characterSignals struct {
	Search    string `json:"search"`
	Species   string `json:"species"`
	Homeworld string `json:"homeworld"`
	Film      string `json:"film"`
}

// authState is the auth slice of the request's session, or the zero state for
// browsers without one.
func authState(r *http.Request) state.AuthState {
	if sess, ok := sessionFromContext(r.Context()); ok {
		return sess.Store.State().Auth
	}
	return state.InitialState().Auth
}

func (h *Handler) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	st := authState(r)
	if st.Authenticated() {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	if err := ui.LoginPage(st.Error, "").Render(r.Context(), w); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	email := strings.TrimSpace(r.Form.Get("email"))
	password := r.Form.Get("password")

	id, sess := h.openSession(w, r)
	if err := sess.Store.Login(r.Context(), h.authFor(id), email, password); err != nil {
		w.WriteHeader(http.StatusUnauthorized)
		_ = ui.LoginPage(sess.Store.State().Auth.Error, email).Render(r.Context(), w)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) handleSignupPage(w http.ResponseWriter, r *http.Request) {
	if authState(r).Authenticated() {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	if err := ui.SignupPage("", "", "").Render(r.Context(), w); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	email := strings.TrimSpace(r.Form.Get("email"))
	name := strings.TrimSpace(r.Form.Get("name"))
	password := r.Form.Get("password")

	id, sess := h.openSession(w, r)
	if err := sess.Store.Signup(r.Context(), h.authFor(id), email, password, name); err != nil {
		w.WriteHeader(statusFor(err))
		_ = ui.SignupPage(sess.Store.State().Auth.Error, email, name).Render(r.Context(), w)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	id := deviceFromContext(r.Context())
	if sess, ok := sessionFromContext(r.Context()); ok {
		if err := sess.Store.Logout(r.Context(), h.authFor(id)); err != nil {
			h.logger.WarnContext(r.Context(), "logout failed", "error", err)
		}
	}
	if id != "" {
		h.sessions.Drop(id)
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	sess := h.session(r)
	st := sess.Store.State()
	if st.Characters.Seq == 0 {
		// First visit of this session: load page one before rendering.
		st, _ = sess.Store.Load(r.Context(), h.characters)
	}
	userName := ""
	if st.Auth.User != nil {
		userName = st.Auth.User.Name
	}
	view := ui.DashboardView{
		UserName:        userName,
		Characters:      st.Characters,
		SpeciesNames:    h.speciesNames(r.Context(), st.Characters.Characters),
		RefreshInterval: h.refreshInterval,
	}
	if err := ui.DashboardPage(view).Render(r.Context(), w); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	h.applySignals(w, r)
}

func (h *Handler) handleFilters(w http.ResponseWriter, r *http.Request) {
	h.applySignals(w, r)
}

// applySignals commits the search and filter inputs once typing settles.
// Calls superseded by a newer keystroke answer 204 and change nothing.
func (h *Handler) applySignals(w http.ResponseWriter, r *http.Request) {
	var sig characterSignals
	if err := datastar.ReadSignals(r, &sig); err != nil {
		h.renderFlash(r.Context(), w, http.StatusBadRequest, "invalid search query")
		return
	}
	sess := h.session(r)
	if !sess.Search.Settle(r.Context()) {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	cur := sess.Store.State().Characters
	changed := false
	if sig.Search != cur.SearchTerm {
		sess.Store.Dispatch(state.SetSearchTerm{Term: sig.Search})
		changed = true
	}
	for key, value := range map[domain.FilterKey]string{
		domain.FilterSpecies:   sig.Species,
		domain.FilterHomeworld: sig.Homeworld,
		domain.FilterFilm:      sig.Film,
	} {
		if next, _ := cur.Filters.Set(key, value); next == cur.Filters {
			continue
		}
		sess.Store.Dispatch(state.SetFilter{Key: key, Value: value})
		changed = true
	}
	if !changed {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.reloadGrid(w, r, sess)
}

func (h *Handler) handleClearFilters(w http.ResponseWriter, r *http.Request) {
	sess := h.session(r)
	sess.Store.Dispatch(state.ClearFilters{})
	h.reloadGrid(w, r, sess)
}

func (h *Handler) handlePage(w http.ResponseWriter, r *http.Request) {
	sess := h.session(r)
	switch chi.URLParam(r, "direction") {
	case "next":
		sess.Store.Dispatch(state.NextPage{})
	case "prev":
		sess.Store.Dispatch(state.PrevPage{})
	default:
		h.renderFlash(r.Context(), w, http.StatusBadRequest, "unknown page direction")
		return
	}
	h.reloadGrid(w, r, sess)
}

// reloadGrid runs the fetch pipeline and answers with the grid fragment.
// A response overtaken by a newer fetch is dropped so it cannot repaint stale rows.
func (h *Handler) reloadGrid(w http.ResponseWriter, r *http.Request, sess *state.Session) {
	st, err := sess.Store.Load(r.Context(), h.characters)
	if err != nil {
		h.logger.WarnContext(r.Context(), "character fetch failed", "error", err)
	}
	if st.Characters.Loading {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	renderHTMLFragments(r.Context(), w, http.StatusOK,
		ui.CharacterGrid(st.Characters, h.speciesNames(r.Context(), st.Characters.Characters)),
	)
}

func (h *Handler) handleDetail(w http.ResponseWriter, r *http.Request) {
	target := strings.TrimSpace(r.URL.Query().Get("url"))
	if target == "" {
		h.renderFlash(r.Context(), w, http.StatusBadRequest, "character url is required")
		return
	}
	detail, err := h.characters.Describe(r.Context(), target)
	if err != nil {
		h.renderFlash(r.Context(), w, statusFor(err), err.Error())
		return
	}
	renderHTMLFragments(r.Context(), w, http.StatusOK, ui.CharacterModal(detail))
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	sess := h.session(r)
	if err := sess.Store.Refresh(r.Context(), h.authFor(deviceFromContext(r.Context()))); err != nil {
		h.logger.InfoContext(r.Context(), "token refresh failed", "error", err)
		h.redirect(w, r, "/login")
		return
	}
	userName := ""
	if u := sess.Store.State().Auth.User; u != nil {
		userName = u.Name
	}
	renderHTMLFragments(r.Context(), w, http.StatusOK, ui.Header(userName), ui.Flash("Token refreshed", "info"))
}

// speciesNames resolves the first species of every shown character.
func (h *Handler) speciesNames(ctx context.Context, chars []domain.Character) map[string]string {
	urls := make([]string, 0, len(chars))
	for _, c := range chars {
		if len(c.Species) > 0 {
			urls = append(urls, c.Species[0])
		}
	}
	if len(urls) == 0 {
		return map[string]string{}
	}
	return h.names.ResolveNames(ctx, urls)
}
