package household

import (
	"context"
	"time"
)

// Store is the per-user data boundary. userID always comes from the
// authenticated caller.
type Store interface {
	ListNotes(ctx context.Context, userID string, q NoteQuery) ([]Note, error)
	CreateNote(ctx context.Context, userID string, in NoteInput, now time.Time) (Note, error)
	UpdateNote(ctx context.Context, userID, id string, p NotePatch, now time.Time) (Note, error)
	DeleteNote(ctx context.Context, userID, id string) error

	ListRecipes(ctx context.Context, userID string, p Page) ([]Recipe, error)
	GetRecipe(ctx context.Context, userID, id string) (Recipe, error)
	CreateRecipe(ctx context.Context, userID string, in RecipeInput, now time.Time) (Recipe, error)
	UpdateRecipe(ctx context.Context, userID, id string, p RecipePatch, now time.Time) (Recipe, error)
	SetRecipeImage(ctx context.Context, userID, id, imageURL string, now time.Time) (Recipe, error)
	DeleteRecipe(ctx context.Context, userID, id string) error

	ListShoppingLists(ctx context.Context, userID string, p Page) ([]ShoppingList, error)
	CreateShoppingList(ctx context.Context, userID string, in ShoppingListInput, now time.Time) (ShoppingList, error)
	UpdateShoppingList(ctx context.Context, userID, id string, p ShoppingListPatch, now time.Time) (ShoppingList, error)
	// DeleteShoppingList removes the list and its items.
	DeleteShoppingList(ctx context.Context, userID, id string) error

	ListShoppingItems(ctx context.Context, userID, listID string) ([]ShoppingItem, error)
	AddShoppingItem(ctx context.Context, userID, listID string, in ShoppingItemInput, now time.Time) (ShoppingItem, error)
	UpdateShoppingItem(ctx context.Context, userID, id string, p ShoppingItemPatch) (ShoppingItem, error)
	DeleteShoppingItem(ctx context.Context, userID, id string) error

	ListExpenses(ctx context.Context, userID string, q ExpenseQuery) ([]Expense, error)
	CreateExpense(ctx context.Context, userID string, in ExpenseInput, now time.Time) (Expense, error)
	UpdateExpense(ctx context.Context, userID, id string, p ExpensePatch) (Expense, error)
	DeleteExpense(ctx context.Context, userID, id string) error
	// ExpenseSummary totals the expenses of q's date range per category,
	// largest total first. q.Page is ignored.
	ExpenseSummary(ctx context.Context, userID string, q ExpenseQuery) ([]CategoryTotal, error)

	ListChat(ctx context.Context, userID string, p Page) ([]ChatEntry, error)
	AppendChat(ctx context.Context, userID, message, response string, now time.Time) (ChatEntry, error)
	ClearChat(ctx context.Context, userID string) (int64, error)
}
