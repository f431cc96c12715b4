package household

import (
	"net/http"
	"time"

	"hearth/cmd/internal/httpx"
)

type expenseResponse struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Title       string    `json:"title"`
	Amount      Amount    `json:"amount"`
	Category    string    `json:"category"`
	Date        Date      `json:"date"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

func toExpenseResponse(e Expense) expenseResponse {
	return expenseResponse{ID: e.ID, UserID: e.UserID, Title: e.Title, Amount: e.Amount,
		Category: e.Category, Date: Date(e.Date), Description: e.Description, CreatedAt: e.CreatedAt}
}

type expenseRequest struct {
	Title       string  `json:"title"`
	Amount      *Amount `json:"amount"`
	Category    string  `json:"category"`
	Date        *Date   `json:"date"`
	Description string  `json:"description"`
}

type expensePatchRequest struct {
	Title       *string `json:"title"`
	Amount      *Amount `json:"amount"`
	Category    *string `json:"category"`
	Date        *Date   `json:"date"`
	Description *string `json:"description"`
}

type categoryTotalResponse struct {
	Category string `json:"category"`
	Total    Amount `json:"total"`
	Count    int    `json:"count"`
}

type summaryResponse struct {
	From       *Date                   `json:"from"`
	To         *Date                   `json:"to"`
	Total      Amount                  `json:"total"`
	Categories []categoryTotalResponse `json:"categories"`
}

// parseExpenseQuery reads limit, offset, from and to.
func parseExpenseQuery(w http.ResponseWriter, r *http.Request) (ExpenseQuery, bool) {
	q := r.URL.Query()
	page, bad, ok := parsePage(q)
	if !ok {
		badQuery(w, bad)
		return ExpenseQuery{}, false
	}
	from, ok := parseDateParam(q, "from")
	if !ok {
		badQuery(w, "from")
		return ExpenseQuery{}, false
	}
	to, ok := parseDateParam(q, "to")
	if !ok {
		badQuery(w, "to")
		return ExpenseQuery{}, false
	}
	return ExpenseQuery{From: from, To: to, Page: page}, true
}

func (h *Handler) listExpenses(w http.ResponseWriter, r *http.Request) {
	uid, ok := caller(w, r)
	if !ok {
		return
	}
	q, ok := parseExpenseQuery(w, r)
	if !ok {
		return
	}
	rows, err := h.store.ListExpenses(r.Context(), uid, q)
	if err != nil {
		h.fail(w, "household.expenses.list.fail", uid, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, mapSlice(rows, toExpenseResponse))
}

func (h *Handler) createExpense(w http.ResponseWriter, r *http.Request) {
	uid, ok := caller(w, r)
	if !ok {
		return
	}
	var req expenseRequest
	if err := httpx.DecodeJSON(w, r, 0, &req); err != nil {
		httpx.BadJSON(w, err)
		return
	}
	if req.Amount == nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "amount is required")
		return
	}
	e, err := h.store.CreateExpense(r.Context(), uid, ExpenseInput{
		Title:       req.Title,
		Amount:      *req.Amount,
		Category:    req.Category,
		Date:        dateOrZero(req.Date),
		Description: req.Description,
	}, h.now())
	if err != nil {
		h.fail(w, "household.expenses.create.fail", uid, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toExpenseResponse(e))
}

func (h *Handler) updateExpense(w http.ResponseWriter, r *http.Request) {
	uid, ok := caller(w, r)
	if !ok {
		return
	}
	var req expensePatchRequest
	if err := httpx.DecodeJSON(w, r, 0, &req); err != nil {
		httpx.BadJSON(w, err)
		return
	}
	e, err := h.store.UpdateExpense(r.Context(), uid, pathID(r), ExpensePatch{
		Title:       req.Title,
		Amount:      req.Amount,
		Category:    req.Category,
		Date:        datePtr(req.Date),
		Description: req.Description,
	})
	if err != nil {
		h.fail(w, "household.expenses.update.fail", uid, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toExpenseResponse(e))
}

func (h *Handler) deleteExpense(w http.ResponseWriter, r *http.Request) {
	uid, ok := caller(w, r)
	if !ok {
		return
	}
	if err := h.store.DeleteExpense(r.Context(), uid, pathID(r)); err != nil {
		h.fail(w, "household.expenses.delete.fail", uid, err)
		return
	}
	httpx.WriteNoContent(w)
}

func (h *Handler) expenseSummary(w http.ResponseWriter, r *http.Request) {
	uid, ok := caller(w, r)
	if !ok {
		return
	}
	q, ok := parseExpenseQuery(w, r)
	if !ok {
		return
	}
	totals, err := h.store.ExpenseSummary(r.Context(), uid, q)
	if err != nil {
		h.fail(w, "household.expenses.summary.fail", uid, err)
		return
	}
	out := summaryResponse{Categories: make([]categoryTotalResponse, len(totals))}
	for i, t := range totals {
		out.Categories[i] = categoryTotalResponse(t)
		out.Total += t.Total
	}
	if q.From != nil {
		d := Date(Day(*q.From))
		out.From = &d
	}
	if q.To != nil {
		d := Date(Day(*q.To))
		out.To = &d
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}
