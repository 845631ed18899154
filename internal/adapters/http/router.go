package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/a-h/templ"
	"github.com/atvirokodosprendimai/holocron/internal/application"
	"github.com/atvirokodosprendimai/holocron/internal/domain"
	"github.com/atvirokodosprendimai/holocron/internal/state"
	"github.com/atvirokodosprendimai/holocron/internal/ui"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/starfederation/datastar-go/datastar"
)

const deviceCookieName = "holocron_device"

// DefaultRefreshInterval keeps the 300s token alive with a minute to spare.
const DefaultRefreshInterval = 240 * time.Second

type contextKey string

const (
	userKey    contextKey = "user"
	deviceKey  contextKey = "device"
	sessionKey contextKey = "session"
)

type Dependencies struct {
	Auth       *application.AuthService
	Characters *application.CharacterService
	Names      *application.NameResolver
	Storage    domain.StorageProvider
	Sessions   *state.Sessions
	Logger     *slog.Logger
	// RefreshInterval is how often the dashboard rotates its token. Zero uses the default.
	RefreshInterval time.Duration
}

type Handler struct {
	auth            *application.AuthService
	characters      *application.CharacterService
	names           *application.NameResolver
	storage         domain.StorageProvider
	sessions        *state.Sessions
	logger          *slog.Logger
	refreshInterval time.Duration
}

func NewRouter(deps Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	h := &Handler{
		auth:            deps.Auth,
		characters:      deps.Characters,
		names:           deps.Names,
		storage:         deps.Storage,
		sessions:        deps.Sessions,
		logger:          logger,
		refreshInterval: deps.RefreshInterval,
	}
	if h.refreshInterval <= 0 {
		h.refreshInterval = DefaultRefreshInterval
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	r.Route("/api", func(api chi.Router) {
		api.Post("/auth/login", h.handleAPILogin)
		api.Post("/auth/signup", h.handleAPISignup)
		api.Post("/auth/refresh", h.handleAPIRefresh)
		api.With(h.requireAuthAPI).Get("/auth/whoami", h.handleAPIWhoAmI)
		api.With(h.requireAuthAPI).Post("/auth/logout", h.handleAPILogout)
		api.With(h.requireAuthAPI).Get("/characters", h.handleAPIListCharacters)
		api.With(h.requireAuthAPI).Post("/names/resolve", h.handleAPIResolveNames)
		api.With(h.requireAuthAPI).Get("/audit/logs", h.handleAPIListAuditLogs)
	})

	r.Group(func(gui chi.Router) {
		gui.Use(h.withDevice)
		gui.Get("/login", h.handleLoginPage)
		gui.Post("/login", h.handleLogin)
		gui.Get("/signup", h.handleSignupPage)
		gui.Post("/signup", h.handleSignup)
		gui.Post("/logout", h.handleLogout)

		gui.With(h.requireAuthGUI).Get("/", h.handleDashboard)
		gui.With(h.requireAuthGUI).Post("/characters/search", h.handleSearch)
		gui.With(h.requireAuthGUI).Post("/characters/filters", h.handleFilters)
		gui.With(h.requireAuthGUI).Post("/characters/filters/clear", h.handleClearFilters)
		gui.With(h.requireAuthGUI).Post("/characters/page/{direction}", h.handlePage)
		gui.With(h.requireAuthGUI).Get("/characters/detail", h.handleDetail)
		gui.With(h.requireAuthGUI).Post("/auth/refresh", h.handleRefresh)
	})

	return r
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			logger.InfoContext(r.Context(), "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

// withDevice attaches the browser's device id and its registered session, if
// any. A session missing from the registry is restored only when the device
// has a persisted login; anonymous requests never register one.
func (h *Handler) withDevice(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := deviceCookie(r); id != "" {
			ctx = context.WithValue(ctx, deviceKey, id)
			if sess, ok := h.lookupOrRestore(ctx, id); ok {
				ctx = context.WithValue(ctx, sessionKey, sess)
			}
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) lookupOrRestore(ctx context.Context, id string) (*state.Session, bool) {
	if sess, ok := h.sessions.Lookup(id); ok {
		return sess, true
	}
	local, err := h.authFor(id).LocalAuth(ctx)
	if err != nil {
		h.logger.WarnContext(ctx, "restore session failed", "error", err)
	}
	if local == nil {
		return nil, false
	}
	sess, created := h.sessions.Get(id)
	if created {
		sess.Store.Dispatch(state.Restored{Local: *local})
	}
	return sess, true
}

// openSession registers a session for the request's device, minting the
// device cookie first when the browser has none.
func (h *Handler) openSession(w http.ResponseWriter, r *http.Request) (string, *state.Session) {
	id := deviceFromContext(r.Context())
	if id == "" {
		id = uuid.NewString()
		h.setDeviceCookie(w, id)
	}
	sess, _ := h.sessions.Get(id)
	return id, sess
}

func (h *Handler) requireAuthGUI(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := sessionFromContext(r.Context())
		if !ok || !sess.Store.State().Auth.Authenticated() {
			h.redirect(w, r, "/login")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) requireAuthAPI(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
			return
		}
		u, err := h.auth.Whoami(r.Context(), token)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": err.Error()})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, u)))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(authHeader[7:])
	return token, token != ""
}

func userFromContext(ctx context.Context) (domain.User, bool) {
	u, ok := ctx.Value(userKey).(domain.User)
	return u, ok
}

func deviceFromContext(ctx context.Context) string {
	id, _ := ctx.Value(deviceKey).(string)
	return id
}

func sessionFromContext(ctx context.Context) (*state.Session, bool) {
	sess, ok := ctx.Value(sessionKey).(*state.Session)
	return sess, ok && sess != nil
}

// session is the request's session. Only valid behind requireAuthGUI.
func (h *Handler) session(r *http.Request) *state.Session {
	sess, _ := sessionFromContext(r.Context())
	return sess
}

func deviceCookie(r *http.Request) string {
	c, err := r.Cookie(deviceCookieName)
	if err != nil {
		return ""
	}
	if _, err := uuid.Parse(c.Value); err != nil {
		return ""
	}
	return c.Value
}

func (h *Handler) authFor(deviceID string) *application.AuthSession {
	return h.auth.WithStorage(h.storage.Scope(application.DeviceNamespace(deviceID)))
}

// redirect sends datastar requests a navigation event and everything else a 303.
func (h *Handler) redirect(w http.ResponseWriter, r *http.Request, target string) {
	if r.Header.Get("Datastar-Request") == "true" {
		sse := datastar.NewSSE(w, r)
		if err := sse.Redirect(target); err != nil {
			h.logger.WarnContext(r.Context(), "datastar redirect failed", "error", err)
		}
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (h *Handler) setDeviceCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     deviceCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   false,
		MaxAge:   int((365 * 24 * time.Hour) / time.Second),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func renderHTMLFragments(ctx context.Context, w http.ResponseWriter, status int, fragments ...templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	for _, fragment := range fragments {
		if fragment == nil {
			continue
		}
		_ = fragment.Render(ctx, w)
	}
}

func (h *Handler) renderFlash(ctx context.Context, w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if status >= 400 {
		_ = ui.Flash(message, "error").Render(ctx, w)
		return
	}
	_ = ui.Flash(message, "info").Render(ctx, w)
}

// statusFor maps a failure kind to the HTTP status of a JSON error.
func statusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindAuth:
		switch {
		case errors.Is(err, domain.ErrUserExists):
			return http.StatusConflict
		case errors.Is(err, domain.ErrMissingCredentials):
			return http.StatusBadRequest
		}
		return http.StatusUnauthorized
	case domain.KindNetwork, domain.KindParse:
		return http.StatusBadGateway
	case domain.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
