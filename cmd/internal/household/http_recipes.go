package household

import (
	"errors"
	"net/http"
	"time"

	"hearth/cmd/internal/httpx"
	"hearth/cmd/internal/storage"
)

type recipeResponse struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Name         string    `json:"name"`
	CuisineType  string    `json:"cuisine_type"`
	Ingredients  string    `json:"ingredients"`
	Instructions string    `json:"instructions"`
	PrepTime     *int      `json:"prep_time"`
	CookTime     *int      `json:"cook_time"`
	Servings     *int      `json:"servings"`
	ImageURL     *string   `json:"image_url"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toRecipeResponse(rc Recipe) recipeResponse {
	return recipeResponse{
		ID: rc.ID, UserID: rc.UserID, Name: rc.Name, CuisineType: rc.CuisineType,
		Ingredients: rc.Ingredients, Instructions: rc.Instructions,
		PrepTime: rc.PrepTime, CookTime: rc.CookTime, Servings: rc.Servings,
		ImageURL: rc.ImageURL, CreatedAt: rc.CreatedAt, UpdatedAt: rc.UpdatedAt,
	}
}

type recipeRequest struct {
	Name         string `json:"name"`
	CuisineType  string `json:"cuisine_type"`
	Ingredients  string `json:"ingredients"`
	Instructions string `json:"instructions"`
	PrepTime     *int   `json:"prep_time"`
	CookTime     *int   `json:"cook_time"`
	Servings     *int   `json:"servings"`
}

type recipePatchRequest struct {
	Name         *string `json:"name"`
	CuisineType  *string `json:"cuisine_type"`
	Ingredients  *string `json:"ingredients"`
	Instructions *string `json:"instructions"`
	PrepTime     *int    `json:"prep_time"`
	CookTime     *int    `json:"cook_time"`
	Servings     *int    `json:"servings"`
}

type imageRequest struct {
	ContentType string `json:"content_type"`
}

type imageResponse struct {
	UploadURL string            `json:"upload_url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers"`
	ImageURL  string            `json:"image_url"`
	ExpiresAt time.Time         `json:"expires_at"`
	Recipe    recipeResponse    `json:"recipe"`
}

func (h *Handler) listRecipes(w http.ResponseWriter, r *http.Request) {
	uid, ok := caller(w, r)
	if !ok {
		return
	}
	page, bad, ok := parsePage(r.URL.Query())
	if !ok {
		badQuery(w, bad)
		return
	}
	rows, err := h.store.ListRecipes(r.Context(), uid, page)
	if err != nil {
		h.fail(w, "household.recipes.list.fail", uid, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, mapSlice(rows, toRecipeResponse))
}

func (h *Handler) getRecipe(w http.ResponseWriter, r *http.Request) {
	uid, ok := caller(w, r)
	if !ok {
		return
	}
	rc, err := h.store.GetRecipe(r.Context(), uid, pathID(r))
	if err != nil {
		h.fail(w, "household.recipes.get.fail", uid, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toRecipeResponse(rc))
}

func (h *Handler) createRecipe(w http.ResponseWriter, r *http.Request) {
	uid, ok := caller(w, r)
	if !ok {
		return
	}
	var req recipeRequest
	if err := httpx.DecodeJSON(w, r, 0, &req); err != nil {
		httpx.BadJSON(w, err)
		return
	}
	rc, err := h.store.CreateRecipe(r.Context(), uid, RecipeInput(req), h.now())
	if err != nil {
		h.fail(w, "household.recipes.create.fail", uid, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toRecipeResponse(rc))
}

func (h *Handler) updateRecipe(w http.ResponseWriter, r *http.Request) {
	uid, ok := caller(w, r)
	if !ok {
		return
	}
	var req recipePatchRequest
	if err := httpx.DecodeJSON(w, r, 0, &req); err != nil {
		httpx.BadJSON(w, err)
		return
	}
	rc, err := h.store.UpdateRecipe(r.Context(), uid, pathID(r), RecipePatch(req), h.now())
	if err != nil {
		h.fail(w, "household.recipes.update.fail", uid, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toRecipeResponse(rc))
}

func (h *Handler) deleteRecipe(w http.ResponseWriter, r *http.Request) {
	uid, ok := caller(w, r)
	if !ok {
		return
	}
	if err := h.store.DeleteRecipe(r.Context(), uid, pathID(r)); err != nil {
		h.fail(w, "household.recipes.delete.fail", uid, err)
		return
	}
	httpx.WriteNoContent(w)
}

// presignRecipeImage signs an upload for a recipe the caller owns and points
// image_url at the object the client is about to PUT.
func (h *Handler) presignRecipeImage(w http.ResponseWriter, r *http.Request) {
	uid, ok := caller(w, r)
	if !ok {
		return
	}
	if h.images == nil {
		httpx.WriteError(w, http.StatusServiceUnavailable, "storage_unavailable", "image storage is not configured")
		return
	}
	var req imageRequest
	if err := httpx.DecodeJSON(w, r, 0, &req); err != nil {
		httpx.BadJSON(w, err)
		return
	}

	id := pathID(r)
	if _, err := h.store.GetRecipe(r.Context(), uid, id); err != nil {
		h.fail(w, "household.recipes.image.lookup.fail", uid, err)
		return
	}

	up, err := h.images.PresignUpload(r.Context(), uid, req.ContentType)
	switch {
	case errors.Is(err, storage.ErrUnavailable):
		httpx.WriteError(w, http.StatusServiceUnavailable, "storage_unavailable", "image storage is not configured")
		return
	case errors.Is(err, storage.ErrUnsupportedType):
		httpx.WriteError(w, http.StatusUnsupportedMediaType, "unsupported_media_type", "content_type must be image/jpeg, image/png, image/webp or image/gif")
		return
	case err != nil:
		h.log.Error("household.recipes.image.presign.fail", "err", err, "user_id", uid)
		httpx.WriteError(w, http.StatusBadGateway, "storage_error", "could not sign upload")
		return
	}

	rc, err := h.store.SetRecipeImage(r.Context(), uid, id, up.PublicURL, h.now())
	if err != nil {
		h.fail(w, "household.recipes.image.set.fail", uid, err)
		return
	}
	h.log.Info("household.recipes.image.presigned", "user_id", uid, "recipe_id", id, "key", up.Key)
	httpx.WriteJSON(w, http.StatusOK, imageResponse{
		UploadURL: up.URL,
		Method:    up.Method,
		Headers:   up.Headers,
		ImageURL:  up.PublicURL,
		ExpiresAt: up.ExpiresAt,
		Recipe:    toRecipeResponse(rc),
	})
}
