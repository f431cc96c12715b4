package household

import (
	"net/http"
	"time"

	"hearth/cmd/internal/httpx"
)

type noteResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Category  string    `json:"category"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toNoteResponse(n Note) noteResponse {
	return noteResponse{ID: n.ID, UserID: n.UserID, Title: n.Title, Content: n.Content,
		Category: n.Category, CreatedAt: n.CreatedAt, UpdatedAt: n.UpdatedAt}
}

type noteRequest struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Category string `json:"category"`
}

type notePatchRequest struct {
	Title    *string `json:"title"`
	Content  *string `json:"content"`
	Category *string `json:"category"`
}

func (h *Handler) listNotes(w http.ResponseWriter, r *http.Request) {
	uid, ok := caller(w, r)
	if !ok {
		return
	}
	page, bad, ok := parsePage(r.URL.Query())
	if !ok {
		badQuery(w, bad)
		return
	}
	notes, err := h.store.ListNotes(r.Context(), uid, NoteQuery{Category: r.URL.Query().Get("category"), Page: page})
	if err != nil {
		h.fail(w, "household.notes.list.fail", uid, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, mapSlice(notes, toNoteResponse))
}

func (h *Handler) createNote(w http.ResponseWriter, r *http.Request) {
	uid, ok := caller(w, r)
	if !ok {
		return
	}
	var req noteRequest
	if err := httpx.DecodeJSON(w, r, 0, &req); err != nil {
		httpx.BadJSON(w, err)
		return
	}
	n, err := h.store.CreateNote(r.Context(), uid, NoteInput(req), h.now())
	if err != nil {
		h.fail(w, "household.notes.create.fail", uid, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toNoteResponse(n))
}

func (h *Handler) updateNote(w http.ResponseWriter, r *http.Request) {
	uid, ok := caller(w, r)
	if !ok {
		return
	}
	var req notePatchRequest
	if err := httpx.DecodeJSON(w, r, 0, &req); err != nil {
		httpx.BadJSON(w, err)
		return
	}
	n, err := h.store.UpdateNote(r.Context(), uid, pathID(r), NotePatch(req), h.now())
	if err != nil {
		h.fail(w, "household.notes.update.fail", uid, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toNoteResponse(n))
}

func (h *Handler) deleteNote(w http.ResponseWriter, r *http.Request) {
	uid, ok := caller(w, r)
	if !ok {
		return
	}
	if err := h.store.DeleteNote(r.Context(), uid, pathID(r)); err != nil {
		h.fail(w, "household.notes.delete.fail", uid, err)
		return
	}
	httpx.WriteNoContent(w)
}
