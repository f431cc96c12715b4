package household

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"
)

var (
	ErrNotFound     = errors.New("household: not found")
	ErrInvalidInput = errors.New("household: invalid input")
)

// ValidationError names the rejected field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("household: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

func invalid(field, reason string) error { return &ValidationError{Field: field, Reason: reason} }

var (
	NoteCategories    = []string{"general", "maintenance", "bills", "tasks", "important"}
	ExpenseCategories = []string{"food", "transport", "housing", "utilities", "entertainment", "health", "education", "other"}
)

const (
	DefaultLimit = 20
	MaxLimit     = 100

	maxTitle = 200
	maxText  = 20_000
	maxShort = 120
)

// Page is a limit/offset window. Zero values mean the defaults.
type Page struct {
	Limit  int
	Offset int
}

func (p Page) normalize() (Page, error) {
	switch {
	case p.Limit < 0 || p.Limit > MaxLimit:
		return Page{}, invalid("limit", fmt.Sprintf("must be between 1 and %d", MaxLimit))
	case p.Offset < 0:
		return Page{}, invalid("offset", "must not be negative")
	case p.Limit == 0:
		p.Limit = DefaultLimit
	}
	return p, nil
}

func window[T any](rows []T, p Page) []T {
	if p.Offset >= len(rows) {
		return []T{}
	}
	end := min(len(rows), p.Offset+p.Limit)
	return rows[p.Offset:end]
}

func text(field, s string, required bool, maxRunes int) (string, error) {
	s = strings.TrimSpace(s)
	if required && s == "" {
		return "", invalid(field, "is required")
	}
	if utf8.RuneCountInString(s) > maxRunes {
		return "", invalid(field, fmt.Sprintf("longer than %d characters", maxRunes))
	}
	return s, nil
}

func category(field, s, def string, allowed []string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return def, nil
	}
	if !slices.Contains(allowed, s) {
		return "", invalid(field, "unknown category")
	}
	return s, nil
}

func optText(field string, p *string, required bool, maxRunes int) (*string, error) {
	if p == nil {
		return nil, nil
	}
	v, err := text(field, *p, required, maxRunes)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func minutes(field string, p *int) error {
	if p != nil && (*p < 0 || *p > 7*24*60) {
		return invalid(field, "out of range")
	}
	return nil
}

// ---- home notes ----

type Note struct {
	ID        string
	UserID    string
	Title     string
	Content   string
	Category  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type NoteInput struct {
	Title    string
	Content  string
	Category string
}

type NotePatch struct {
	Title    *string
	Content  *string
	Category *string
}

type NoteQuery struct {
	Category string
	Page     Page
}

func (in NoteInput) normalize() (NoteInput, error) {
	var err error
	if in.Title, err = text("title", in.Title, true, maxTitle); err != nil {
		return NoteInput{}, err
	}
	if in.Content, err = text("content", in.Content, false, maxText); err != nil {
		return NoteInput{}, err
	}
	if in.Category, err = category("category", in.Category, "general", NoteCategories); err != nil {
		return NoteInput{}, err
	}
	return in, nil
}

func (p NotePatch) normalize() (NotePatch, error) {
	var err error
	if p.Title, err = optText("title", p.Title, true, maxTitle); err != nil {
		return NotePatch{}, err
	}
	if p.Content, err = optText("content", p.Content, false, maxText); err != nil {
		return NotePatch{}, err
	}
	if p.Category != nil {
		c, err := category("category", *p.Category, "general", NoteCategories)
		if err != nil {
			return NotePatch{}, err
		}
		p.Category = &c
	}
	return p, nil
}

func (q NoteQuery) normalize() (NoteQuery, error) {
	var err error
	if q.Page, err = q.Page.normalize(); err != nil {
		return NoteQuery{}, err
	}
	if q.Category != "" {
		if q.Category, err = category("category", q.Category, "", NoteCategories); err != nil {
			return NoteQuery{}, err
		}
	}
	return q, nil
}

// ---- recipes ----

type Recipe struct {
	ID           string
	UserID       string
	Name         string
	CuisineType  string
	Ingredients  string
	Instructions string
	PrepTime     *int
	CookTime     *int
	Servings     *int
	ImageURL     *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type RecipeInput struct {
	Name         string
	CuisineType  string
	Ingredients  string
	Instructions string
	PrepTime     *int
	CookTime     *int
	Servings     *int
}

type RecipePatch struct {
	Name         *string
	CuisineType  *string
	Ingredients  *string
	Instructions *string
	PrepTime     *int
	CookTime     *int
	Servings     *int
}

func (in RecipeInput) normalize() (RecipeInput, error) {
	var err error
	if in.Name, err = text("name", in.Name, true, maxTitle); err != nil {
		return RecipeInput{}, err
	}
	if in.CuisineType, err = text("cuisine_type", in.CuisineType, false, maxShort); err != nil {
		return RecipeInput{}, err
	}
	if in.Ingredients, err = text("ingredients", in.Ingredients, false, maxText); err != nil {
		return RecipeInput{}, err
	}
	if in.Instructions, err = text("instructions", in.Instructions, false, maxText); err != nil {
		return RecipeInput{}, err
	}
	if err := checkRecipeNumbers(in.PrepTime, in.CookTime, in.Servings); err != nil {
		return RecipeInput{}, err
	}
	return in, nil
}

func (p RecipePatch) normalize() (RecipePatch, error) {
	var err error
	if p.Name, err = optText("name", p.Name, true, maxTitle); err != nil {
		return RecipePatch{}, err
	}
	if p.CuisineType, err = optText("cuisine_type", p.CuisineType, false, maxShort); err != nil {
		return RecipePatch{}, err
	}
	if p.Ingredients, err = optText("ingredients", p.Ingredients, false, maxText); err != nil {
		return RecipePatch{}, err
	}
	if p.Instructions, err = optText("instructions", p.Instructions, false, maxText); err != nil {
		return RecipePatch{}, err
	}
	if err := checkRecipeNumbers(p.PrepTime, p.CookTime, p.Servings); err != nil {
		return RecipePatch{}, err
	}
	return p, nil
}

func checkRecipeNumbers(prep, cook, servings *int) error {
	if err := minutes("prep_time", prep); err != nil {
		return err
	}
	if err := minutes("cook_time", cook); err != nil {
		return err
	}
	if servings != nil && (*servings < 1 || *servings > 1000) {
		return invalid("servings", "out of range")
	}
	return nil
}

// ---- shopping ----

type ShoppingList struct {
	ID          string
	UserID      string
	Title       string
	WeekDate    time.Time
	IsCompleted bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ShoppingListInput creates a list. A zero WeekDate means the current day.
type ShoppingListInput struct {
	Title    string
	WeekDate time.Time
}

type ShoppingListPatch struct {
	Title       *string
	WeekDate    *time.Time
	IsCompleted *bool
}

type ShoppingItem struct {
	ID        string
	ListID    string
	ItemName  string
	Quantity  string
	IsChecked bool
	CreatedAt time.Time
}

type ShoppingItemInput struct {
	ItemName string
	Quantity string
}

type ShoppingItemPatch struct {
	ItemName  *string
	Quantity  *string
	IsChecked *bool
}

func (in ShoppingListInput) normalize(now time.Time) (ShoppingListInput, error) {
	var err error
	if in.Title, err = text("title", in.Title, true, maxTitle); err != nil {
		return ShoppingListInput{}, err
	}
	if in.WeekDate.IsZero() {
		in.WeekDate = now
	}
	in.WeekDate = Day(in.WeekDate)
	return in, nil
}

func (p ShoppingListPatch) normalize() (ShoppingListPatch, error) {
	var err error
	if p.Title, err = optText("title", p.Title, true, maxTitle); err != nil {
		return ShoppingListPatch{}, err
	}
	if p.WeekDate != nil {
		d := Day(*p.WeekDate)
		p.WeekDate = &d
	}
	return p, nil
}

func (in ShoppingItemInput) normalize() (ShoppingItemInput, error) {
	var err error
	if in.ItemName, err = text("item_name", in.ItemName, true, maxTitle); err != nil {
		return ShoppingItemInput{}, err
	}
	if in.Quantity, err = text("quantity", in.Quantity, false, maxShort); err != nil {
		return ShoppingItemInput{}, err
	}
	return in, nil
}

func (p ShoppingItemPatch) normalize() (ShoppingItemPatch, error) {
	var err error
	if p.ItemName, err = optText("item_name", p.ItemName, true, maxTitle); err != nil {
		return ShoppingItemPatch{}, err
	}
	if p.Quantity, err = optText("quantity", p.Quantity, false, maxShort); err != nil {
		return ShoppingItemPatch{}, err
	}
	return p, nil
}

// ---- expenses ----

type Expense struct {
	ID          string
	UserID      string
	Title       string
	Amount      Amount
	Category    string
	Date        time.Time
	Description string
	CreatedAt   time.Time
}

// ExpenseInput creates an expense. A zero Date means the current day.
type ExpenseInput struct {
	Title       string
	Amount      Amount
	Category    string
	Date        time.Time
	Description string
}

type ExpensePatch struct {
	Title       *string
	Amount      *Amount
	Category    *string
	Date        *time.Time
	Description *string
}

// ExpenseQuery filters by an inclusive date range.
type ExpenseQuery struct {
	From *time.Time
	To   *time.Time
	Page Page
}

// CategoryTotal is one row of the expense summary.
type CategoryTotal struct {
	Category string
	Total    Amount
	Count    int
}

func checkAmount(a Amount) error {
	if a < 0 || a > maxAmount {
		return invalid("amount", "out of range")
	}
	return nil
}

func (in ExpenseInput) normalize(now time.Time) (ExpenseInput, error) {
	var err error
	if in.Title, err = text("title", in.Title, true, maxTitle); err != nil {
		return ExpenseInput{}, err
	}
	if err := checkAmount(in.Amount); err != nil {
		return ExpenseInput{}, err
	}
	if in.Category, err = category("category", in.Category, "other", ExpenseCategories); err != nil {
		return ExpenseInput{}, err
	}
	if in.Description, err = text("description", in.Description, false, maxText); err != nil {
		return ExpenseInput{}, err
	}
	if in.Date.IsZero() {
		in.Date = now
	}
	in.Date = Day(in.Date)
	return in, nil
}

func (p ExpensePatch) normalize() (ExpensePatch, error) {
	var err error
	if p.Title, err = optText("title", p.Title, true, maxTitle); err != nil {
		return ExpensePatch{}, err
	}
	if p.Amount != nil {
		if err := checkAmount(*p.Amount); err != nil {
			return ExpensePatch{}, err
		}
	}
	if p.Category != nil {
		c, err := category("category", *p.Category, "other", ExpenseCategories)
		if err != nil {
			return ExpensePatch{}, err
		}
		p.Category = &c
	}
	if p.Date != nil {
		d := Day(*p.Date)
		p.Date = &d
	}
	if p.Description, err = optText("description", p.Description, false, maxText); err != nil {
		return ExpensePatch{}, err
	}
	return p, nil
}

func (q ExpenseQuery) normalize() (ExpenseQuery, error) {
	var err error
	if q.Page, err = q.Page.normalize(); err != nil {
		return ExpenseQuery{}, err
	}
	if q.From != nil {
		d := Day(*q.From)
		q.From = &d
	}
	if q.To != nil {
		d := Day(*q.To)
		q.To = &d
	}
	if q.From != nil && q.To != nil && q.To.Before(*q.From) {
		return ExpenseQuery{}, invalid("to", "is before from")
	}
	return q, nil
}

func (q ExpenseQuery) contains(d time.Time) bool {
	if q.From != nil && d.Before(*q.From) {
		return false
	}
	if q.To != nil && d.After(*q.To) {
		return false
	}
	return true
}

// ---- chat history ----

type ChatEntry struct {
	ID        string
	UserID    string
	Message   string
	Response  string
	CreatedAt time.Time
}
