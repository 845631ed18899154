package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/atvirokodosprendimai/holocron/internal/application"
	"github.com/atvirokodosprendimai/holocron/internal/domain"
)

type apiAuthRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (h *Handler) handleAPILogin(w http.ResponseWriter, r *http.Request) {
	var req apiAuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid payload"})
		return
	}
	auth := h.auth.WithStorage(h.storage.Scope(application.ClientNamespace(req.Email)))
	res, err := auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeJSON(w, statusFor(err), map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleAPISignup(w http.ResponseWriter, r *http.Request) {
	var req apiAuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid payload"})
		return
	}
	auth := h.auth.WithStorage(h.storage.Scope(application.ClientNamespace(req.Email)))
	res, err := auth.Signup(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		writeJSON(w, statusFor(err), map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// handleAPIRefresh takes the token from the bearer header or a {"token"} body.
// Expired tokens are accepted.
func (h *Handler) handleAPIRefresh(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		var req struct {
			Token string `json:"token"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		token = req.Token
	}
	res, err := h.auth.ForClient(h.storage, token).Refresh(r.Context(), token)
	if err != nil {
		writeJSON(w, statusFor(err), map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleAPIWhoAmI(w http.ResponseWriter, r *http.Request) {
	u, ok := userFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *Handler) handleAPILogout(w http.ResponseWriter, r *http.Request) {
	token, _ := bearerToken(r)
	if err := h.auth.ForClient(h.storage, token).Logout(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleAPIListCharacters(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := 1
	if raw := strings.TrimSpace(q.Get("page")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "page must be a number"})
			return
		}
		page = parsed
	}
	res, err := h.characters.FetchCharacters(r.Context(), domain.CharacterQuery{
		Page:   page,
		Search: q.Get("search"),
		Filters: domain.Filters{
			Species:   q.Get("species"),
			Homeworld: q.Get("homeworld"),
			Film:      q.Get("film"),
		},
	})
	if err != nil {
		writeJSON(w, statusFor(err), map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleAPIResolveNames(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URLs []string `json:"urls"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid payload"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"names": h.names.ResolveNames(r.Context(), req.URLs)})
}

func (h *Handler) handleAPIListAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := h.auth.ListAuditLogs(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, items)
}
