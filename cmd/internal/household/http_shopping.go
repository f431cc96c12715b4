package household

import (
	"net/http"
	"time"

	"hearth/cmd/internal/httpx"
)

type shoppingListResponse struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Title       string    `json:"title"`
	WeekDate    Date      `json:"week_date"`
	IsCompleted bool      `json:"is_completed"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toListResponse(l ShoppingList) shoppingListResponse {
	return shoppingListResponse{ID: l.ID, UserID: l.UserID, Title: l.Title, WeekDate: Date(l.WeekDate),
		IsCompleted: l.IsCompleted, CreatedAt: l.CreatedAt, UpdatedAt: l.UpdatedAt}
}

type shoppingItemResponse struct {
	ID             string    `json:"id"`
	ShoppingListID string    `json:"shopping_list_id"`
	ItemName       string    `json:"item_name"`
	Quantity       string    `json:"quantity"`
	IsChecked      bool      `json:"is_checked"`
	CreatedAt      time.Time `json:"created_at"`
}

func toItemResponse(it ShoppingItem) shoppingItemResponse {
	return shoppingItemResponse{ID: it.ID, ShoppingListID: it.ListID, ItemName: it.ItemName,
		Quantity: it.Quantity, IsChecked: it.IsChecked, CreatedAt: it.CreatedAt}
}

type shoppingListRequest struct {
	Title    string `json:"title"`
	WeekDate *Date  `json:"week_date"`
}

type shoppingListPatchRequest struct {
	Title       *string `json:"title"`
	WeekDate    *Date   `json:"week_date"`
	IsCompleted *bool   `json:"is_completed"`
}

type shoppingItemRequest struct {
	ItemName string `json:"item_name"`
	Quantity string `json:"quantity"`
}

type shoppingItemPatchRequest struct {
	ItemName  *string `json:"item_name"`
	Quantity  *string `json:"quantity"`
	IsChecked *bool   `json:"is_checked"`
}

func (h *Handler) listShoppingLists(w http.ResponseWriter, r *http.Request) {
	uid, ok := caller(w, r)
	if !ok {
		return
	}
	page, bad, ok := parsePage(r.URL.Query())
	if !ok {
		badQuery(w, bad)
		return
	}
	lists, err := h.store.ListShoppingLists(r.Context(), uid, page)
	if err != nil {
		h.fail(w, "household.shopping.list.fail", uid, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, mapSlice(lists, toListResponse))
}

func (h *Handler) createShoppingList(w http.ResponseWriter, r *http.Request) {
	uid, ok := caller(w, r)
	if !ok {
		return
	}
	var req shoppingListRequest
	if err := httpx.DecodeJSON(w, r, 0, &req); err != nil {
		httpx.BadJSON(w, err)
		return
	}
	l, err := h.store.CreateShoppingList(r.Context(), uid,
		ShoppingListInput{Title: req.Title, WeekDate: dateOrZero(req.WeekDate)}, h.now())
	if err != nil {
		h.fail(w, "household.shopping.create.fail", uid, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toListResponse(l))
}

func (h *Handler) updateShoppingList(w http.ResponseWriter, r *http.Request) {
	uid, ok := caller(w, r)
	if !ok {
		return
	}
	var req shoppingListPatchRequest
	if err := httpx.DecodeJSON(w, r, 0, &req); err != nil {
		httpx.BadJSON(w, err)
		return
	}
	l, err := h.store.UpdateShoppingList(r.Context(), uid, pathID(r), ShoppingListPatch{
		Title:       req.Title,
		WeekDate:    datePtr(req.WeekDate),
		IsCompleted: req.IsCompleted,
	}, h.now())
	if err != nil {
		h.fail(w, "household.shopping.update.fail", uid, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toListResponse(l))
}

func (h *Handler) deleteShoppingList(w http.ResponseWriter, r *http.Request) {
	uid, ok := caller(w, r)
	if !ok {
		return
	}
	if err := h.store.DeleteShoppingList(r.Context(), uid, pathID(r)); err != nil {
		h.fail(w, "household.shopping.delete.fail", uid, err)
		return
	}
	httpx.WriteNoContent(w)
}

func (h *Handler) listShoppingItems(w http.ResponseWriter, r *http.Request) {
	uid, ok := caller(w, r)
	if !ok {
		return
	}
	items, err := h.store.ListShoppingItems(r.Context(), uid, pathID(r))
	if err != nil {
		h.fail(w, "household.items.list.fail", uid, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, mapSlice(items, toItemResponse))
}

func (h *Handler) addShoppingItem(w http.ResponseWriter, r *http.Request) {
	uid, ok := caller(w, r)
	if !ok {
		return
	}
	var req shoppingItemRequest
	if err := httpx.DecodeJSON(w, r, 0, &req); err != nil {
		httpx.BadJSON(w, err)
		return
	}
	it, err := h.store.AddShoppingItem(r.Context(), uid, pathID(r), ShoppingItemInput(req), h.now())
	if err != nil {
		h.fail(w, "household.items.add.fail", uid, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toItemResponse(it))
}

func (h *Handler) updateShoppingItem(w http.ResponseWriter, r *http.Request) {
	uid, ok := caller(w, r)
	if !ok {
		return
	}
	var req shoppingItemPatchRequest
	if err := httpx.DecodeJSON(w, r, 0, &req); err != nil {
		httpx.BadJSON(w, err)
		return
	}
	it, err := h.store.UpdateShoppingItem(r.Context(), uid, pathID(r), ShoppingItemPatch(req))
	if err != nil {
		h.fail(w, "household.items.update.fail", uid, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toItemResponse(it))
}

func (h *Handler) deleteShoppingItem(w http.ResponseWriter, r *http.Request) {
	uid, ok := caller(w, r)
	if !ok {
		return
	}
	if err := h.store.DeleteShoppingItem(r.Context(), uid, pathID(r)); err != nil {
		h.fail(w, "household.items.delete.fail", uid, err)
		return
	}
	httpx.WriteNoContent(w)
}
