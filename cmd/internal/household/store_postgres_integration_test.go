package household

import (
	"context"
	"errors"
	"testing"
	"time"

	"hearth/cmd/identity"
	"hearth/cmd/internal/pgtest"
)

func newPostgresFixture(t *testing.T) (*PostgresStore, string, string) {
	t.Helper()

	pool, schema := pgtest.Open(t)
	users, err := identity.NewPostgresStore(pool, identity.WithSchema(schema))
	if err != nil {
		t.Fatalf("identity store: %v", err)
	}
	mk := func(email string) string {
		u, err := users.CreateUser(context.Background(), identity.CreateUserInput{Email: email, PasswordHash: "$argon2id$x", Now: time.Now()})
		if err != nil {
			t.Fatalf("create user: %v", err)
		}
		return u.ID
	}
	s, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s, mk("aye@example.com"), mk("ko@example.com")
}

func TestPostgresStore_NotesAndRecipes(t *testing.T) {
	t.Parallel()

	s, u1, u2 := newPostgresFixture(t)
	ctx := context.Background()

	n, err := s.CreateNote(ctx, u1, NoteInput{Title: "Boiler", Category: "maintenance"}, t0)
	if err != nil {
		t.Fatalf("create note: %v", err)
	}
	if _, err := s.UpdateNote(ctx, u2, n.ID, NotePatch{Title: ptr("x")}, t0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign update err = %v", err)
	}
	got, err := s.UpdateNote(ctx, u1, n.ID, NotePatch{Content: ptr("service due")}, t0.Add(time.Minute))
	if err != nil || got.Title != "Boiler" || got.Content != "service due" {
		t.Fatalf("update = %+v, %v", got, err)
	}
	rows, err := s.ListNotes(ctx, u1, NoteQuery{Category: "maintenance"})
	if err != nil || len(rows) != 1 {
		t.Fatalf("list = %+v, %v", rows, err)
	}

	rc, err := s.CreateRecipe(ctx, u1, RecipeInput{Name: "Shan noodles", Servings: ptr(4)}, t0)
	if err != nil {
		t.Fatalf("create recipe: %v", err)
	}
	rc, err = s.SetRecipeImage(ctx, u1, rc.ID, "https://cdn.test/recipe-images/recipes/x.png", t0)
	if err != nil || rc.ImageURL == nil || rc.Servings == nil || *rc.Servings != 4 {
		t.Fatalf("set image = %+v, %v", rc, err)
	}
	if err := s.DeleteRecipe(ctx, u2, rc.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign delete err = %v", err)
	}
}

func TestPostgresStore_ShoppingOwnershipAndCascade(t *testing.T) {
	t.Parallel()

	s, u1, u2 := newPostgresFixture(t)
	ctx := context.Background()

	l, err := s.CreateShoppingList(ctx, u1, ShoppingListInput{Title: "Week 9", WeekDate: time.Date(2026, 2, 23, 0, 0, 0, 0, time.UTC)}, t0)
	if err != nil {
		t.Fatalf("create list: %v", err)
	}
	if _, err := s.AddShoppingItem(ctx, u2, l.ID, ShoppingItemInput{ItemName: "x"}, t0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign add err = %v", err)
	}
	it, err := s.AddShoppingItem(ctx, u1, l.ID, ShoppingItemInput{ItemName: "rice"}, t0)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := s.UpdateShoppingItem(ctx, u2, it.ID, ShoppingItemPatch{IsChecked: ptr(true)}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign check err = %v", err)
	}
	if err := s.DeleteShoppingList(ctx, u1, l.ID); err != nil {
		t.Fatalf("delete list: %v", err)
	}
	if err := s.DeleteShoppingItem(ctx, u1, it.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("item survived cascade: %v", err)
	}
}

func TestPostgresStore_ExpenseSummary(t *testing.T) {
	t.Parallel()

	s, u1, u2 := newPostgresFixture(t)
	ctx := context.Background()
	day := func(d int) time.Time { return time.Date(2026, 3, d, 0, 0, 0, 0, time.UTC) }

	for _, in := range []ExpenseInput{
		{Title: "market", Amount: 1250, Category: "food", Date: day(1)},
		{Title: "noodles", Amount: 800, Category: "food", Date: day(2)},
		{Title: "bus", Amount: 300, Category: "transport", Date: day(2)},
		{Title: "later", Amount: 100, Category: "other", Date: day(20)},
	} {
		if _, err := s.CreateExpense(ctx, u1, in, t0); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if _, err := s.CreateExpense(ctx, u2, ExpenseInput{Title: "theirs", Amount: 5000, Category: "food", Date: day(1)}, t0); err != nil {
		t.Fatalf("create u2: %v", err)
	}

	from, to := day(1), day(2)
	sum, err := s.ExpenseSummary(ctx, u1, ExpenseQuery{From: &from, To: &to})
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if len(sum) != 2 || sum[0] != (CategoryTotal{Category: "food", Total: 2050, Count: 2}) {
		t.Fatalf("summary = %+v", sum)
	}

	rows, err := s.ListExpenses(ctx, u1, ExpenseQuery{From: &from})
	if err != nil || len(rows) != 4 || rows[0].Title != "later" {
		t.Fatalf("list = %+v, %v", rows, err)
	}

	n, err := s.ClearChat(ctx, u1)
	if err != nil || n != 0 {
		t.Fatalf("clear empty = %d, %v", n, err)
	}
}
