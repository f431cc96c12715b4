package household

import (
	"net/http"
	"time"

	"hearth/cmd/internal/httpx"
)

type chatEntryResponse struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Response  string    `json:"response"`
	CreatedAt time.Time `json:"created_at"`
}

func toChatResponse(c ChatEntry) chatEntryResponse {
	return chatEntryResponse{ID: c.ID, Message: c.Message, Response: c.Response, CreatedAt: c.CreatedAt}
}

func (h *Handler) listChat(w http.ResponseWriter, r *http.Request) {
	uid, ok := caller(w, r)
	if !ok {
		return
	}
	page, bad, ok := parsePage(r.URL.Query())
	if !ok {
		badQuery(w, bad)
		return
	}
	rows, err := h.store.ListChat(r.Context(), uid, page)
	if err != nil {
		h.fail(w, "household.chat.list.fail", uid, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, mapSlice(rows, toChatResponse))
}

func (h *Handler) clearChat(w http.ResponseWriter, r *http.Request) {
	uid, ok := caller(w, r)
	if !ok {
		return
	}
	n, err := h.store.ClearChat(r.Context(), uid)
	if err != nil {
		h.fail(w, "household.chat.clear.fail", uid, err)
		return
	}
	h.log.Info("household.chat.cleared", "user_id", uid, "rows", n)
	httpx.WriteJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}
