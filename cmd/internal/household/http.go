package household

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"hearth/cmd/internal/auth/authn"
	"hearth/cmd/internal/httpx"
	"hearth/cmd/internal/storage"

	"github.com/go-chi/chi/v5"
)

// ImageSigner presigns recipe image uploads. *storage.Bucket implements it.
type ImageSigner interface {
	PresignUpload(ctx context.Context, userID, contentType string) (storage.Upload, error)
}

var _ ImageSigner = (*storage.Bucket)(nil)

// Handler serves the /rest data routes. It expects authn.Middleware in front.
type Handler struct {
	log    *slog.Logger
	store  Store
	images ImageSigner
	now    func() time.Time
}

// NewHandler returns a Handler. images may be nil when no bucket is configured.
func NewHandler(log *slog.Logger, store Store, images ImageSigner) *Handler {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Handler{log: log, store: store, images: images, now: time.Now}
}

// Routes registers every table relative to the /rest mount point.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/home_notes", func(r chi.Router) {
		r.Get("/", h.listNotes)
		r.Post("/", h.createNote)
		r.Patch("/{id}", h.updateNote)
		r.Delete("/{id}", h.deleteNote)
	})
	r.Route("/recipes", func(r chi.Router) {
		r.Get("/", h.listRecipes)
		r.Post("/", h.createRecipe)
		r.Get("/{id}", h.getRecipe)
		r.Patch("/{id}", h.updateRecipe)
		r.Delete("/{id}", h.deleteRecipe)
		r.Post("/{id}/image", h.presignRecipeImage)
	})
	r.Route("/shopping_lists", func(r chi.Router) {
		r.Get("/", h.listShoppingLists)
		r.Post("/", h.createShoppingList)
		r.Patch("/{id}", h.updateShoppingList)
		r.Delete("/{id}", h.deleteShoppingList)
		r.Get("/{id}/items", h.listShoppingItems)
		r.Post("/{id}/items", h.addShoppingItem)
	})
	r.Route("/shopping_items", func(r chi.Router) {
		r.Patch("/{id}", h.updateShoppingItem)
		r.Delete("/{id}", h.deleteShoppingItem)
	})
	r.Route("/expenses", func(r chi.Router) {
		r.Get("/", h.listExpenses)
		r.Post("/", h.createExpense)
		r.Get("/summary", h.expenseSummary)
		r.Patch("/{id}", h.updateExpense)
		r.Delete("/{id}", h.deleteExpense)
	})
	r.Route("/chat_history", func(r chi.Router) {
		r.Get("/", h.listChat)
		r.Delete("/", h.clearChat)
	})
}

// caller returns the authenticated user id or writes a 401.
func caller(w http.ResponseWriter, r *http.Request) (string, bool) {
	p, ok := authn.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
		return "", false
	}
	return p.UserID, true
}

func pathID(r *http.Request) string { return strings.TrimSpace(chi.URLParam(r, "id")) }

func (h *Handler) fail(w http.ResponseWriter, event, userID string, err error) {
	var verr *ValidationError
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", "not found")
	case errors.As(err, &verr):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", verr.Field+" "+verr.Reason)
	case errors.Is(err, ErrInvalidInput):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "invalid fields")
	default:
		h.log.Error(event, "err", err, "user_id", userID)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

func badQuery(w http.ResponseWriter, param string) {
	httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "invalid query parameter "+param)
}

func parsePage(q url.Values) (Page, string, bool) {
	var p Page
	for _, f := range []struct {
		name string
		dst  *int
	}{{"limit", &p.Limit}, {"offset", &p.Offset}} {
		raw := strings.TrimSpace(q.Get(f.name))
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Page{}, f.name, false
		}
		*f.dst = n
	}
	return p, "", true
}

func parseDateParam(q url.Values, name string) (*time.Time, bool) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return nil, true
	}
	t, err := ParseDate(raw)
	if err != nil {
		return nil, false
	}
	return &t, true
}

func dateOrZero(d *Date) time.Time {
	if d == nil {
		return time.Time{}
	}
	return d.Time()
}

func datePtr(d *Date) *time.Time {
	if d == nil {
		return nil
	}
	t := d.Time()
	return &t
}

func mapSlice[T, R any](in []T, fn func(T) R) []R {
	out := make([]R, len(in))
	for i, v := range in {
		out[i] = fn(v)
	}
	return out
}
