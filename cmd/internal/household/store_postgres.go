package household

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"hearth/cmd/identity/ids"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type tables struct {
	notes, recipes, lists, items, expenses, chat string
}

func tablesIn(schema string) tables {
	q := func(name string) string { return pgx.Identifier{schema, name}.Sanitize() }
	return tables{
		notes:    q("home_notes"),
		recipes:  q("recipes"),
		lists:    q("shopping_lists"),
		items:    q("shopping_items"),
		expenses: q("expenses"),
		chat:     q("chat_history"),
	}
}

// PostgresStore keeps every household table in one schema.
type PostgresStore struct {
	pool *pgxpool.Pool
	t    tables
}

var _ Store = (*PostgresStore)(nil)

type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("household: invalid schema identifier %q", schema)
		}
		s.t = tablesIn(schema)
		return nil
	}
}

func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("household: nil pool")
	}
	s := &PostgresStore{pool: pool, t: tablesIn("hearth")}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// classify maps constraint failures onto package errors.
func classify(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23503":
			return invalid("user_id", "unknown account")
		case "23514", "22001", "22003":
			return fmt.Errorf("%w: %s", ErrInvalidInput, pgErr.ConstraintName)
		}
	}
	return err
}

func affectedOne(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func collect[T any](rows pgx.Rows, err error, scan func(pgx.Row) (T, error)) ([]T, error) {
	if err != nil {
		return nil, err
	}
	out, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (T, error) { return scan(r) })
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

// ---- notes ----

const noteColumns = `id, user_id, title, content, category, created_at, updated_at`

func scanNote(r pgx.Row) (Note, error) {
	var n Note
	err := r.Scan(&n.ID, &n.UserID, &n.Title, &n.Content, &n.Category, &n.CreatedAt, &n.UpdatedAt)
	return n, err
}

func (s *PostgresStore) ListNotes(ctx context.Context, userID string, q NoteQuery) ([]Note, error) {
	q, err := q.normalize()
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+noteColumns+` FROM `+s.t.notes+`
		  WHERE user_id = $1 AND ($2 = '' OR category = $2)
		  ORDER BY created_at DESC, id DESC
		  LIMIT $3 OFFSET $4`,
		userID, q.Category, q.Page.Limit, q.Page.Offset,
	)
	return collect(rows, err, scanNote)
}

func (s *PostgresStore) CreateNote(ctx context.Context, userID string, in NoteInput, now time.Time) (Note, error) {
	in, err := in.normalize()
	if err != nil {
		return Note{}, err
	}
	now = now.UTC()
	id, err := ids.NewULID(now)
	if err != nil {
		return Note{}, err
	}
	n, err := scanNote(s.pool.QueryRow(ctx,
		`INSERT INTO `+s.t.notes+` (id, user_id, title, content, category, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $6)
		 RETURNING `+noteColumns,
		id, userID, in.Title, in.Content, in.Category, now,
	))
	return n, classify(err)
}

func (s *PostgresStore) UpdateNote(ctx context.Context, userID, id string, p NotePatch, now time.Time) (Note, error) {
	p, err := p.normalize()
	if err != nil {
		return Note{}, err
	}
	n, err := scanNote(s.pool.QueryRow(ctx,
		`UPDATE `+s.t.notes+`
		    SET title = COALESCE($3, title),
		        content = COALESCE($4, content),
		        category = COALESCE($5, category),
		        updated_at = $6
		  WHERE id = $1 AND user_id = $2
		RETURNING `+noteColumns,
		id, userID, p.Title, p.Content, p.Category, now.UTC(),
	))
	return n, classify(err)
}

func (s *PostgresStore) DeleteNote(ctx context.Context, userID, id string) error {
	return affectedOne(s.pool.Exec(ctx, `DELETE FROM `+s.t.notes+` WHERE id = $1 AND user_id = $2`, id, userID))
}

// ---- recipes ----

const recipeColumns = `id, user_id, name, cuisine_type, ingredients, instructions,
	prep_time, cook_time, servings, image_url, created_at, updated_at`

func scanRecipe(r pgx.Row) (Recipe, error) {
	var rc Recipe
	err := r.Scan(&rc.ID, &rc.UserID, &rc.Name, &rc.CuisineType, &rc.Ingredients, &rc.Instructions,
		&rc.PrepTime, &rc.CookTime, &rc.Servings, &rc.ImageURL, &rc.CreatedAt, &rc.UpdatedAt)
	return rc, err
}

func (s *PostgresStore) ListRecipes(ctx context.Context, userID string, p Page) ([]Recipe, error) {
	p, err := p.normalize()
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+recipeColumns+` FROM `+s.t.recipes+`
		  WHERE user_id = $1
		  ORDER BY created_at DESC, id DESC
		  LIMIT $2 OFFSET $3`,
		userID, p.Limit, p.Offset,
	)
	return collect(rows, err, scanRecipe)
}

func (s *PostgresStore) GetRecipe(ctx context.Context, userID, id string) (Recipe, error) {
	rc, err := scanRecipe(s.pool.QueryRow(ctx,
		`SELECT `+recipeColumns+` FROM `+s.t.recipes+` WHERE id = $1 AND user_id = $2`, id, userID))
	return rc, classify(err)
}

func (s *PostgresStore) CreateRecipe(ctx context.Context, userID string, in RecipeInput, now time.Time) (Recipe, error) {
	in, err := in.normalize()
	if err != nil {
		return Recipe{}, err
	}
	now = now.UTC()
	id, err := ids.NewULID(now)
	if err != nil {
		return Recipe{}, err
	}
	rc, err := scanRecipe(s.pool.QueryRow(ctx,
		`INSERT INTO `+s.t.recipes+` (id, user_id, name, cuisine_type, ingredients, instructions,
		        prep_time, cook_time, servings, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		 RETURNING `+recipeColumns,
		id, userID, in.Name, in.CuisineType, in.Ingredients, in.Instructions,
		in.PrepTime, in.CookTime, in.Servings, now,
	))
	return rc, classify(err)
}

func (s *PostgresStore) UpdateRecipe(ctx context.Context, userID, id string, p RecipePatch, now time.Time) (Recipe, error) {
	p, err := p.normalize()
	if err != nil {
		return Recipe{}, err
	}
	rc, err := scanRecipe(s.pool.QueryRow(ctx,
		`UPDATE `+s.t.recipes+`
		    SET name = COALESCE($3, name),
		        cuisine_type = COALESCE($4, cuisine_type),
		        ingredients = COALESCE($5, ingredients),
		        instructions = COALESCE($6, instructions),
		        prep_time = COALESCE($7, prep_time),
		        cook_time = COALESCE($8, cook_time),
		        servings = COALESCE($9, servings),
		        updated_at = $10
		  WHERE id = $1 AND user_id = $2
		RETURNING `+recipeColumns,
		id, userID, p.Name, p.CuisineType, p.Ingredients, p.Instructions,
		p.PrepTime, p.CookTime, p.Servings, now.UTC(),
	))
	return rc, classify(err)
}

func (s *PostgresStore) SetRecipeImage(ctx context.Context, userID, id, imageURL string, now time.Time) (Recipe, error) {
	rc, err := scanRecipe(s.pool.QueryRow(ctx,
		`UPDATE `+s.t.recipes+` SET image_url = $3, updated_at = $4
		  WHERE id = $1 AND user_id = $2
		RETURNING `+recipeColumns,
		id, userID, imageURL, now.UTC(),
	))
	return rc, classify(err)
}

func (s *PostgresStore) DeleteRecipe(ctx context.Context, userID, id string) error {
	return affectedOne(s.pool.Exec(ctx, `DELETE FROM `+s.t.recipes+` WHERE id = $1 AND user_id = $2`, id, userID))
}

// ---- shopping ----

const listColumns = `id, user_id, title, week_date, is_completed, created_at, updated_at`

func scanList(r pgx.Row) (ShoppingList, error) {
	var l ShoppingList
	err := r.Scan(&l.ID, &l.UserID, &l.Title, &l.WeekDate, &l.IsCompleted, &l.CreatedAt, &l.UpdatedAt)
	return l, err
}

const itemColumns = `id, shopping_list_id, item_name, quantity, is_checked, created_at`

func scanItem(r pgx.Row) (ShoppingItem, error) {
	var it ShoppingItem
	err := r.Scan(&it.ID, &it.ListID, &it.ItemName, &it.Quantity, &it.IsChecked, &it.CreatedAt)
	return it, err
}

func (s *PostgresStore) ListShoppingLists(ctx context.Context, userID string, p Page) ([]ShoppingList, error) {
	p, err := p.normalize()
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+listColumns+` FROM `+s.t.lists+`
		  WHERE user_id = $1
		  ORDER BY week_date DESC, created_at DESC, id DESC
		  LIMIT $2 OFFSET $3`,
		userID, p.Limit, p.Offset,
	)
	return collect(rows, err, scanList)
}

func (s *PostgresStore) CreateShoppingList(ctx context.Context, userID string, in ShoppingListInput, now time.Time) (ShoppingList, error) {
	now = now.UTC()
	in, err := in.normalize(now)
	if err != nil {
		return ShoppingList{}, err
	}
	id, err := ids.NewULID(now)
	if err != nil {
		return ShoppingList{}, err
	}
	l, err := scanList(s.pool.QueryRow(ctx,
		`INSERT INTO `+s.t.lists+` (id, user_id, title, week_date, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)
		 RETURNING `+listColumns,
		id, userID, in.Title, in.WeekDate, now,
	))
	return l, classify(err)
}

func (s *PostgresStore) UpdateShoppingList(ctx context.Context, userID, id string, p ShoppingListPatch, now time.Time) (ShoppingList, error) {
	p, err := p.normalize()
	if err != nil {
		return ShoppingList{}, err
	}
	l, err := scanList(s.pool.QueryRow(ctx,
		`UPDATE `+s.t.lists+`
		    SET title = COALESCE($3, title),
		        week_date = COALESCE($4::date, week_date),
		        is_completed = COALESCE($5, is_completed),
		        updated_at = $6
		  WHERE id = $1 AND user_id = $2
		RETURNING `+listColumns,
		id, userID, p.Title, p.WeekDate, p.IsCompleted, now.UTC(),
	))
	return l, classify(err)
}

// DeleteShoppingList relies on ON DELETE CASCADE for the items.
func (s *PostgresStore) DeleteShoppingList(ctx context.Context, userID, id string) error {
	return affectedOne(s.pool.Exec(ctx, `DELETE FROM `+s.t.lists+` WHERE id = $1 AND user_id = $2`, id, userID))
}

func (s *PostgresStore) ListShoppingItems(ctx context.Context, userID, listID string) ([]ShoppingItem, error) {
	var owned bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+s.t.lists+` WHERE id = $1 AND user_id = $2)`, listID, userID,
	).Scan(&owned); err != nil {
		return nil, err
	}
	if !owned {
		return nil, ErrNotFound
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+itemColumns+` FROM `+s.t.items+`
		  WHERE shopping_list_id = $1
		  ORDER BY created_at ASC, id ASC`,
		listID,
	)
	return collect(rows, err, scanItem)
}

// AddShoppingItem inserts through a SELECT on the owner's list, so a foreign
// or missing list inserts nothing.
func (s *PostgresStore) AddShoppingItem(ctx context.Context, userID, listID string, in ShoppingItemInput, now time.Time) (ShoppingItem, error) {
	in, err := in.normalize()
	if err != nil {
		return ShoppingItem{}, err
	}
	now = now.UTC()
	id, err := ids.NewULID(now)
	if err != nil {
		return ShoppingItem{}, err
	}
	it, err := scanItem(s.pool.QueryRow(ctx,
		`INSERT INTO `+s.t.items+` (id, shopping_list_id, item_name, quantity, created_at)
		 SELECT $1, l.id, $4, $5, $6 FROM `+s.t.lists+` l WHERE l.id = $2 AND l.user_id = $3
		 RETURNING `+itemColumns,
		id, listID, userID, in.ItemName, in.Quantity, now,
	))
	return it, classify(err)
}

func (s *PostgresStore) UpdateShoppingItem(ctx context.Context, userID, id string, p ShoppingItemPatch) (ShoppingItem, error) {
	p, err := p.normalize()
	if err != nil {
		return ShoppingItem{}, err
	}
	it, err := scanItem(s.pool.QueryRow(ctx,
		`UPDATE `+s.t.items+`
		    SET item_name = COALESCE($3, item_name),
		        quantity = COALESCE($4, quantity),
		        is_checked = COALESCE($5, is_checked)
		  WHERE id = $1
		    AND shopping_list_id IN (SELECT id FROM `+s.t.lists+` WHERE user_id = $2)
		RETURNING `+itemColumns,
		id, userID, p.ItemName, p.Quantity, p.IsChecked,
	))
	return it, classify(err)
}

func (s *PostgresStore) DeleteShoppingItem(ctx context.Context, userID, id string) error {
	return affectedOne(s.pool.Exec(ctx,
		`DELETE FROM `+s.t.items+`
		  WHERE id = $1
		    AND shopping_list_id IN (SELECT id FROM `+s.t.lists+` WHERE user_id = $2)`,
		id, userID,
	))
}

// ---- expenses ----

const expenseColumns = `id, user_id, title, amount_minor, category, date, description, created_at`

func scanExpense(r pgx.Row) (Expense, error) {
	var (
		e     Expense
		minor int64
	)
	err := r.Scan(&e.ID, &e.UserID, &e.Title, &minor, &e.Category, &e.Date, &e.Description, &e.CreatedAt)
	e.Amount = Amount(minor)
	return e, err
}

func int64Ptr(a *Amount) *int64 {
	if a == nil {
		return nil
	}
	v := int64(*a)
	return &v
}

func (s *PostgresStore) ListExpenses(ctx context.Context, userID string, q ExpenseQuery) ([]Expense, error) {
	q, err := q.normalize()
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+expenseColumns+` FROM `+s.t.expenses+`
		  WHERE user_id = $1
		    AND ($2::date IS NULL OR date >= $2::date)
		    AND ($3::date IS NULL OR date <= $3::date)
		  ORDER BY date DESC, created_at DESC, id DESC
		  LIMIT $4 OFFSET $5`,
		userID, q.From, q.To, q.Page.Limit, q.Page.Offset,
	)
	return collect(rows, err, scanExpense)
}

func (s *PostgresStore) CreateExpense(ctx context.Context, userID string, in ExpenseInput, now time.Time) (Expense, error) {
	now = now.UTC()
	in, err := in.normalize(now)
	if err != nil {
		return Expense{}, err
	}
	id, err := ids.NewULID(now)
	if err != nil {
		return Expense{}, err
	}
	e, err := scanExpense(s.pool.QueryRow(ctx,
		`INSERT INTO `+s.t.expenses+` (id, user_id, title, amount_minor, category, date, description, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING `+expenseColumns,
		id, userID, in.Title, int64(in.Amount), in.Category, in.Date, in.Description, now,
	))
	return e, classify(err)
}

func (s *PostgresStore) UpdateExpense(ctx context.Context, userID, id string, p ExpensePatch) (Expense, error) {
	p, err := p.normalize()
	if err != nil {
		return Expense{}, err
	}
	e, err := scanExpense(s.pool.QueryRow(ctx,
		`UPDATE `+s.t.expenses+`
		    SET title = COALESCE($3, title),
		        amount_minor = COALESCE($4, amount_minor),
		        category = COALESCE($5, category),
		        date = COALESCE($6::date, date),
		        description = COALESCE($7, description)
		  WHERE id = $1 AND user_id = $2
		RETURNING `+expenseColumns,
		id, userID, p.Title, int64Ptr(p.Amount), p.Category, p.Date, p.Description,
	))
	return e, classify(err)
}

func (s *PostgresStore) DeleteExpense(ctx context.Context, userID, id string) error {
	return affectedOne(s.pool.Exec(ctx, `DELETE FROM `+s.t.expenses+` WHERE id = $1 AND user_id = $2`, id, userID))
}

func (s *PostgresStore) ExpenseSummary(ctx context.Context, userID string, q ExpenseQuery) ([]CategoryTotal, error) {
	q, err := q.normalize()
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT category, SUM(amount_minor)::bigint, COUNT(*)::int
		   FROM `+s.t.expenses+`
		  WHERE user_id = $1
		    AND ($2::date IS NULL OR date >= $2::date)
		    AND ($3::date IS NULL OR date <= $3::date)
		  GROUP BY category
		  ORDER BY 2 DESC, category ASC`,
		userID, q.From, q.To,
	)
	return collect(rows, err, func(r pgx.Row) (CategoryTotal, error) {
		var (
			t     CategoryTotal
			total int64
		)
		err := r.Scan(&t.Category, &total, &t.Count)
		t.Total = Amount(total)
		return t, err
	})
}

// ---- chat history ----

const chatColumns = `id, user_id, message, response, created_at`

func scanChat(r pgx.Row) (ChatEntry, error) {
	var c ChatEntry
	err := r.Scan(&c.ID, &c.UserID, &c.Message, &c.Response, &c.CreatedAt)
	return c, err
}

func (s *PostgresStore) ListChat(ctx context.Context, userID string, p Page) ([]ChatEntry, error) {
	p, err := p.normalize()
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+chatColumns+` FROM `+s.t.chat+`
		  WHERE user_id = $1
		  ORDER BY created_at ASC, id ASC
		  LIMIT $2 OFFSET $3`,
		userID, p.Limit, p.Offset,
	)
	return collect(rows, err, scanChat)
}

func (s *PostgresStore) AppendChat(ctx context.Context, userID, message, response string, now time.Time) (ChatEntry, error) {
	now = now.UTC()
	id, err := ids.NewULID(now)
	if err != nil {
		return ChatEntry{}, err
	}
	c, err := scanChat(s.pool.QueryRow(ctx,
		`INSERT INTO `+s.t.chat+` (id, user_id, message, response, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+chatColumns,
		id, userID, message, response, now,
	))
	return c, classify(err)
}

func (s *PostgresStore) ClearChat(ctx context.Context, userID string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM `+s.t.chat+` WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
