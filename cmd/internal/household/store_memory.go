package household

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"hearth/cmd/identity/ids"
)

// MemoryStore is the in-process Store.
type MemoryStore struct {
	mu       sync.RWMutex
	notes    map[string]Note
	recipes  map[string]Recipe
	lists    map[string]ShoppingList
	items    map[string]ShoppingItem
	expenses map[string]Expense
	chat     map[string]ChatEntry
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		notes:    make(map[string]Note),
		recipes:  make(map[string]Recipe),
		lists:    make(map[string]ShoppingList),
		items:    make(map[string]ShoppingItem),
		expenses: make(map[string]Expense),
		chat:     make(map[string]ChatEntry),
	}
}

// newestFirst orders by time descending, then id descending.
func newestFirst(at1, at2 time.Time, id1, id2 string) int {
	if c := at2.Compare(at1); c != 0 {
		return c
	}
	return strings.Compare(id2, id1)
}

func oldestFirst(at1, at2 time.Time, id1, id2 string) int {
	return -newestFirst(at1, at2, id1, id2)
}

// ---- notes ----

func (s *MemoryStore) ListNotes(_ context.Context, userID string, q NoteQuery) ([]Note, error) {
	q, err := q.normalize()
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	var out []Note
	for _, n := range s.notes {
		if n.UserID == userID && (q.Category == "" || n.Category == q.Category) {
			out = append(out, n)
		}
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b Note) int { return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID) })
	return window(out, q.Page), nil
}

func (s *MemoryStore) CreateNote(_ context.Context, userID string, in NoteInput, now time.Time) (Note, error) {
	in, err := in.normalize()
	if err != nil {
		return Note{}, err
	}
	now = now.UTC()
	id, err := ids.NewULID(now)
	if err != nil {
		return Note{}, err
	}
	n := Note{ID: id, UserID: userID, Title: in.Title, Content: in.Content, Category: in.Category, CreatedAt: now, UpdatedAt: now}

	s.mu.Lock()
	s.notes[id] = n
	s.mu.Unlock()
	return n, nil
}

func (s *MemoryStore) UpdateNote(_ context.Context, userID, id string, p NotePatch, now time.Time) (Note, error) {
	p, err := p.normalize()
	if err != nil {
		return Note{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notes[id]
	if !ok || n.UserID != userID {
		return Note{}, ErrNotFound
	}
	setIf(&n.Title, p.Title)
	setIf(&n.Content, p.Content)
	setIf(&n.Category, p.Category)
	n.UpdatedAt = now.UTC()
	s.notes[id] = n
	return n, nil
}

func (s *MemoryStore) DeleteNote(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.notes[id]; !ok || n.UserID != userID {
		return ErrNotFound
	}
	delete(s.notes, id)
	return nil
}

// ---- recipes ----

func (s *MemoryStore) ListRecipes(_ context.Context, userID string, p Page) ([]Recipe, error) {
	p, err := p.normalize()
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	var out []Recipe
	for _, r := range s.recipes {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b Recipe) int { return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID) })
	return window(out, p), nil
}

func (s *MemoryStore) GetRecipe(_ context.Context, userID, id string) (Recipe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.recipes[id]
	if !ok || r.UserID != userID {
		return Recipe{}, ErrNotFound
	}
	return r, nil
}

func (s *MemoryStore) CreateRecipe(_ context.Context, userID string, in RecipeInput, now time.Time) (Recipe, error) {
	in, err := in.normalize()
	if err != nil {
		return Recipe{}, err
	}
	now = now.UTC()
	id, err := ids.NewULID(now)
	if err != nil {
		return Recipe{}, err
	}
	r := Recipe{
		ID: id, UserID: userID, Name: in.Name, CuisineType: in.CuisineType,
		Ingredients: in.Ingredients, Instructions: in.Instructions,
		PrepTime: in.PrepTime, CookTime: in.CookTime, Servings: in.Servings,
		CreatedAt: now, UpdatedAt: now,
	}
	s.mu.Lock()
	s.recipes[id] = r
	s.mu.Unlock()
	return r, nil
}

func (s *MemoryStore) UpdateRecipe(_ context.Context, userID, id string, p RecipePatch, now time.Time) (Recipe, error) {
	p, err := p.normalize()
	if err != nil {
		return Recipe{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recipes[id]
	if !ok || r.UserID != userID {
		return Recipe{}, ErrNotFound
	}
	setIf(&r.Name, p.Name)
	setIf(&r.CuisineType, p.CuisineType)
	setIf(&r.Ingredients, p.Ingredients)
	setIf(&r.Instructions, p.Instructions)
	setPtrIf(&r.PrepTime, p.PrepTime)
	setPtrIf(&r.CookTime, p.CookTime)
	setPtrIf(&r.Servings, p.Servings)
	r.UpdatedAt = now.UTC()
	s.recipes[id] = r
	return r, nil
}

func (s *MemoryStore) SetRecipeImage(_ context.Context, userID, id, imageURL string, now time.Time) (Recipe, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recipes[id]
	if !ok || r.UserID != userID {
		return Recipe{}, ErrNotFound
	}
	r.ImageURL = &imageURL
	r.UpdatedAt = now.UTC()
	s.recipes[id] = r
	return r, nil
}

func (s *MemoryStore) DeleteRecipe(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.recipes[id]; !ok || r.UserID != userID {
		return ErrNotFound
	}
	delete(s.recipes, id)
	return nil
}

// ---- shopping ----

func (s *MemoryStore) ListShoppingLists(_ context.Context, userID string, p Page) ([]ShoppingList, error) {
	p, err := p.normalize()
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	var out []ShoppingList
	for _, l := range s.lists {
		if l.UserID == userID {
			out = append(out, l)
		}
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b ShoppingList) int {
		if c := b.WeekDate.Compare(a.WeekDate); c != 0 {
			return c
		}
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return window(out, p), nil
}

func (s *MemoryStore) CreateShoppingList(_ context.Context, userID string, in ShoppingListInput, now time.Time) (ShoppingList, error) {
	now = now.UTC()
	in, err := in.normalize(now)
	if err != nil {
		return ShoppingList{}, err
	}
	id, err := ids.NewULID(now)
	if err != nil {
		return ShoppingList{}, err
	}
	l := ShoppingList{ID: id, UserID: userID, Title: in.Title, WeekDate: in.WeekDate, CreatedAt: now, UpdatedAt: now}
	s.mu.Lock()
	s.lists[id] = l
	s.mu.Unlock()
	return l, nil
}

func (s *MemoryStore) UpdateShoppingList(_ context.Context, userID, id string, p ShoppingListPatch, now time.Time) (ShoppingList, error) {
	p, err := p.normalize()
	if err != nil {
		return ShoppingList{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lists[id]
	if !ok || l.UserID != userID {
		return ShoppingList{}, ErrNotFound
	}
	setIf(&l.Title, p.Title)
	setIf(&l.WeekDate, p.WeekDate)
	setIf(&l.IsCompleted, p.IsCompleted)
	l.UpdatedAt = now.UTC()
	s.lists[id] = l
	return l, nil
}

func (s *MemoryStore) DeleteShoppingList(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.lists[id]; !ok || l.UserID != userID {
		return ErrNotFound
	}
	delete(s.lists, id)
	for itemID, it := range s.items {
		if it.ListID == id {
			delete(s.items, itemID)
		}
	}
	return nil
}

// ownsListLocked reports whether listID exists and belongs to userID.
func (s *MemoryStore) ownsListLocked(userID, listID string) bool {
	l, ok := s.lists[listID]
	return ok && l.UserID == userID
}

func (s *MemoryStore) ListShoppingItems(_ context.Context, userID, listID string) ([]ShoppingItem, error) {
	s.mu.RLock()
	if !s.ownsListLocked(userID, listID) {
		s.mu.RUnlock()
		return nil, ErrNotFound
	}
	out := []ShoppingItem{}
	for _, it := range s.items {
		if it.ListID == listID {
			out = append(out, it)
		}
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b ShoppingItem) int { return oldestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID) })
	return out, nil
}

func (s *MemoryStore) AddShoppingItem(_ context.Context, userID, listID string, in ShoppingItemInput, now time.Time) (ShoppingItem, error) {
	in, err := in.normalize()
	if err != nil {
		return ShoppingItem{}, err
	}
	now = now.UTC()
	id, err := ids.NewULID(now)
	if err != nil {
		return ShoppingItem{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ownsListLocked(userID, listID) {
		return ShoppingItem{}, ErrNotFound
	}
	it := ShoppingItem{ID: id, ListID: listID, ItemName: in.ItemName, Quantity: in.Quantity, CreatedAt: now}
	s.items[id] = it
	return it, nil
}

func (s *MemoryStore) UpdateShoppingItem(_ context.Context, userID, id string, p ShoppingItemPatch) (ShoppingItem, error) {
	p, err := p.normalize()
	if err != nil {
		return ShoppingItem{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok || !s.ownsListLocked(userID, it.ListID) {
		return ShoppingItem{}, ErrNotFound
	}
	setIf(&it.ItemName, p.ItemName)
	setIf(&it.Quantity, p.Quantity)
	setIf(&it.IsChecked, p.IsChecked)
	s.items[id] = it
	return it, nil
}

func (s *MemoryStore) DeleteShoppingItem(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok || !s.ownsListLocked(userID, it.ListID) {
		return ErrNotFound
	}
	delete(s.items, id)
	return nil
}

// ---- expenses ----

func (s *MemoryStore) expensesLocked(userID string, q ExpenseQuery) []Expense {
	var out []Expense
	for _, e := range s.expenses {
		if e.UserID == userID && q.contains(e.Date) {
			out = append(out, e)
		}
	}
	return out
}

func (s *MemoryStore) ListExpenses(_ context.Context, userID string, q ExpenseQuery) ([]Expense, error) {
	q, err := q.normalize()
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := s.expensesLocked(userID, q)
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b Expense) int {
		if c := b.Date.Compare(a.Date); c != 0 {
			return c
		}
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return window(out, q.Page), nil
}

func (s *MemoryStore) CreateExpense(_ context.Context, userID string, in ExpenseInput, now time.Time) (Expense, error) {
	now = now.UTC()
	in, err := in.normalize(now)
	if err != nil {
		return Expense{}, err
	}
	id, err := ids.NewULID(now)
	if err != nil {
		return Expense{}, err
	}
	e := Expense{
		ID: id, UserID: userID, Title: in.Title, Amount: in.Amount, Category: in.Category,
		Date: in.Date, Description: in.Description, CreatedAt: now,
	}
	s.mu.Lock()
	s.expenses[id] = e
	s.mu.Unlock()
	return e, nil
}

func (s *MemoryStore) UpdateExpense(_ context.Context, userID, id string, p ExpensePatch) (Expense, error) {
	p, err := p.normalize()
	if err != nil {
		return Expense{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.expenses[id]
	if !ok || e.UserID != userID {
		return Expense{}, ErrNotFound
	}
	setIf(&e.Title, p.Title)
	setIf(&e.Amount, p.Amount)
	setIf(&e.Category, p.Category)
	setIf(&e.Date, p.Date)
	setIf(&e.Description, p.Description)
	s.expenses[id] = e
	return e, nil
}

func (s *MemoryStore) DeleteExpense(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.expenses[id]; !ok || e.UserID != userID {
		return ErrNotFound
	}
	delete(s.expenses, id)
	return nil
}

func (s *MemoryStore) ExpenseSummary(_ context.Context, userID string, q ExpenseQuery) ([]CategoryTotal, error) {
	q, err := q.normalize()
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	rows := s.expensesLocked(userID, q)
	s.mu.RUnlock()

	byCat := make(map[string]*CategoryTotal)
	for _, e := range rows {
		t := byCat[e.Category]
		if t == nil {
			t = &CategoryTotal{Category: e.Category}
			byCat[e.Category] = t
		}
		t.Total += e.Amount
		t.Count++
	}
	out := make([]CategoryTotal, 0, len(byCat))
	for _, t := range byCat {
		out = append(out, *t)
	}
	sortTotals(out)
	return out, nil
}

func sortTotals(out []CategoryTotal) {
	slices.SortFunc(out, func(a, b CategoryTotal) int {
		if c := cmp.Compare(b.Total, a.Total); c != 0 {
			return c
		}
		return strings.Compare(a.Category, b.Category)
	})
}

// ---- chat history ----

func (s *MemoryStore) ListChat(_ context.Context, userID string, p Page) ([]ChatEntry, error) {
	p, err := p.normalize()
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	var out []ChatEntry
	for _, c := range s.chat {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b ChatEntry) int { return oldestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID) })
	return window(out, p), nil
}

func (s *MemoryStore) AppendChat(_ context.Context, userID, message, response string, now time.Time) (ChatEntry, error) {
	now = now.UTC()
	id, err := ids.NewULID(now)
	if err != nil {
		return ChatEntry{}, err
	}
	c := ChatEntry{ID: id, UserID: userID, Message: message, Response: response, CreatedAt: now}
	s.mu.Lock()
	s.chat[id] = c
	s.mu.Unlock()
	return c, nil
}

func (s *MemoryStore) ClearChat(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, c := range s.chat {
		if c.UserID == userID {
			delete(s.chat, id)
			n++
		}
	}
	return n, nil
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// setPtrIf replaces an optional field when the patch carries a value.
func setPtrIf[T any](dst **T, src *T) {
	if src != nil {
		v := *src
		*dst = &v
	}
}
