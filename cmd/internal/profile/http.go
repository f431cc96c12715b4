package profile

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"hearth/cmd/internal/auth/authn"
	"hearth/cmd/internal/httpx"

	"github.com/go-chi/chi/v5"
)

type profileResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	AvatarURL *string   `json:"avatar_url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toResponse(p Profile) profileResponse {
	return profileResponse{ID: p.ID, Name: p.Name, AvatarURL: p.AvatarURL, CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt}
}

type createRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type patchRequest struct {
	Name      *string `json:"name"`
	AvatarURL *string `json:"avatar_url"`
}

// Handler serves /rest/profiles. It expects authn.Middleware in front, with
// provisioning tokens allowed.
type Handler struct {
	log   *slog.Logger
	store Store
	now   func() time.Time
}

func NewHandler(log *slog.Logger, store Store) *Handler {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Handler{log: log, store: store, now: time.Now}
}

// Routes registers the profile routes relative to the mount point.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
	r.Patch("/{id}", h.handlePatch)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	p, ok := authn.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
		return
	}

	var req createRequest
	if err := httpx.DecodeJSON(w, r, 0, &req); err != nil {
		httpx.BadJSON(w, err)
		return
	}
	if strings.TrimSpace(req.ID) != p.UserID {
		httpx.WriteError(w, http.StatusForbidden, "forbidden", "profile id must match the caller")
		return
	}

	out, err := h.store.Create(r.Context(), p.UserID, req.Name, h.now())
	switch {
	case err == nil:
		h.log.Info("profile.create.ok", "user_id", p.UserID, "provisioning", p.Provisioning)
		httpx.WriteJSON(w, http.StatusCreated, toResponse(out))
	case errors.Is(err, ErrDuplicateKey):
		h.log.Info("profile.create.duplicate", "user_id", p.UserID)
		httpx.WriteError(w, http.StatusConflict, "duplicate_key", "duplicate key value violates unique constraint")
	default:
		h.writeStoreError(w, "profile.create.fail", p.UserID, err)
	}
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	p, id, ok := h.own(w, r)
	if !ok {
		return
	}
	out, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, "profile.get.fail", p.UserID, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toResponse(out))
}

func (h *Handler) handlePatch(w http.ResponseWriter, r *http.Request) {
	p, id, ok := h.own(w, r)
	if !ok {
		return
	}
	var req patchRequest
	if err := httpx.DecodeJSON(w, r, 0, &req); err != nil {
		httpx.BadJSON(w, err)
		return
	}
	out, err := h.store.Update(r.Context(), id, Patch(req), h.now())
	if err != nil {
		h.writeStoreError(w, "profile.update.fail", p.UserID, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toResponse(out))
}

// own resolves the {id} route param. A profile of another account is reported
// as missing.
func (h *Handler) own(w http.ResponseWriter, r *http.Request) (authn.Principal, string, bool) {
	p, ok := authn.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
		return authn.Principal{}, "", false
	}
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id != p.UserID {
		httpx.WriteError(w, http.StatusNotFound, "not_found", "profile not found")
		return authn.Principal{}, "", false
	}
	return p, id, true
}

func (h *Handler) writeStoreError(w http.ResponseWriter, event, userID string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", "profile not found")
	case errors.Is(err, ErrInvalidInput):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "invalid profile fields")
	case errors.Is(err, ErrUnknownUser):
		httpx.WriteError(w, http.StatusUnprocessableEntity, "unknown_user", "no account for this profile")
	default:
		h.log.Error(event, "err", err, "user_id", userID)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}
