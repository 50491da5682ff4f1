package cart_test

import (
	"context"
	"testing"

	"biscuit-backend/cart"
	"biscuit-backend/models"
	"biscuit-backend/session"
	"biscuit-backend/testutil"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func persistedItems(t *testing.T, db *gorm.DB, userID uuid.UUID) map[uuid.UUID]models.CartItem {
	t.Helper()
	var items []models.CartItem
	require.NoError(t, db.Where("user_id = ?", userID).Find(&items).Error)
	out := make(map[uuid.UUID]models.CartItem, len(items))
	for _, it := range items {
		out[it.ProductID] = it
	}
	return out
}

func newCart(t *testing.T, db *gorm.DB, sess *session.Session, p models.Principal) *cart.Cart {
	t.Helper()
	c, err := cart.New(context.Background(), db, sess, p, zerolog.Nop())
	require.NoError(t, err)
	return c
}

func TestAnonymousAddAccumulates(t *testing.T) {
	db := testutil.OpenDB(t)
	product := testutil.SeedProduct(t, db, "Sablé", "1000", 20)
	sess := session.New()
	ctx := context.Background()

	c := newCart(t, db, sess, models.Anonymous())
	require.NoError(t, c.Add(ctx, &product, 2))
	require.NoError(t, c.Add(ctx, &product, 3))

	assert.Equal(t, 5, c.Quantity(product.ID))
	assert.Equal(t, 5, c.ItemCount())
	assert.True(t, c.TotalPrice().Equal(decimal.NewFromInt(5000)))

	var count int64
	db.Model(&models.CartItem{}).Count(&count)
	assert.Zero(t, count, "anonymous carts never touch storage")

	// The session survives into the next request.
	again := newCart(t, db, sess, models.Anonymous())
	assert.Equal(t, 5, again.Quantity(product.ID))
}

func TestAuthenticatedAddKeepsSingleRow(t *testing.T) {
	db := testutil.OpenDB(t)
	user := testutil.SeedUser(t, db, "buyer@test.com")
	product := testutil.SeedProduct(t, db, "Sablé", "1000", 20)
	ctx := context.Background()

	c := newCart(t, db, session.New(), models.AuthenticatedAs(user.ID))
	require.NoError(t, c.Add(ctx, &product, 1))
	require.NoError(t, c.Add(ctx, &product, 4))

	items := persistedItems(t, db, user.ID)
	require.Len(t, items, 1)
	assert.Equal(t, 5, items[product.ID].Quantity)
	assert.True(t, items[product.ID].Price.Equal(decimal.NewFromInt(1000)))
}

func TestAddRejectsNonPositiveQuantity(t *testing.T) {
	db := testutil.OpenDB(t)
	product := testutil.SeedProduct(t, db, "Sablé", "1000", 20)
	c := newCart(t, db, session.New(), models.Anonymous())

	assert.ErrorIs(t, c.Add(context.Background(), &product, 0), cart.ErrInvalidQuantity)
	assert.ErrorIs(t, c.Subtract(context.Background(), cart.ByID(product.ID), -1), cart.ErrInvalidQuantity)
	assert.True(t, c.IsEmpty())
}

func TestSubtractToZeroRemovesEverywhere(t *testing.T) {
	db := testutil.OpenDB(t)
	user := testutil.SeedUser(t, db, "buyer@test.com")
	product := testutil.SeedProduct(t, db, "Sablé", "1000", 20)
	ctx := context.Background()

	c := newCart(t, db, session.New(), models.AuthenticatedAs(user.ID))
	require.NoError(t, c.Add(ctx, &product, 3))

	require.NoError(t, c.Subtract(ctx, cart.ByProduct(&product), 1))
	assert.Equal(t, 2, c.Quantity(product.ID))
	assert.Equal(t, 2, persistedItems(t, db, user.ID)[product.ID].Quantity)

	require.NoError(t, c.Subtract(ctx, cart.ByID(product.ID), 5))
	assert.True(t, c.IsEmpty())
	assert.Empty(t, persistedItems(t, db, user.ID))
}

func TestSubtractAndRemoveUnknownAreNoops(t *testing.T) {
	db := testutil.OpenDB(t)
	user := testutil.SeedUser(t, db, "buyer@test.com")
	ctx := context.Background()

	c := newCart(t, db, session.New(), models.AuthenticatedAs(user.ID))
	assert.NoError(t, c.Subtract(ctx, cart.ByID(uuid.New()), 1))
	assert.NoError(t, c.Remove(ctx, cart.ByID(uuid.New())))
	assert.True(t, c.IsEmpty())
}

func TestRemoveDeletesBothStores(t *testing.T) {
	db := testutil.OpenDB(t)
	user := testutil.SeedUser(t, db, "buyer@test.com")
	a := testutil.SeedProduct(t, db, "A", "100", 10)
	b := testutil.SeedProduct(t, db, "B", "250", 10)
	ctx := context.Background()

	c := newCart(t, db, session.New(), models.AuthenticatedAs(user.ID))
	require.NoError(t, c.Add(ctx, &a, 1))
	require.NoError(t, c.Add(ctx, &b, 2))
	require.NoError(t, c.Remove(ctx, cart.ByProduct(&a)))

	items := persistedItems(t, db, user.ID)
	assert.Len(t, items, 1)
	assert.Contains(t, items, b.ID)
	assert.Equal(t, 0, c.Quantity(a.ID))
	assert.True(t, c.TotalPrice().Equal(decimal.NewFromInt(500)))
}

func TestSyncDeletesRowsMissingFromSession(t *testing.T) {
	db := testutil.OpenDB(t)
	user := testutil.SeedUser(t, db, "buyer@test.com")
	product := testutil.SeedProduct(t, db, "A", "100", 10)
	ctx := context.Background()
	sess := session.New()

	c := newCart(t, db, sess, models.AuthenticatedAs(user.ID))

	// A row that appeared behind the session's back, after the first bind.
	require.NoError(t, db.Omit("User", "Product").Create(&models.CartItem{
		UserID: user.ID, ProductID: product.ID, Quantity: 7, Price: product.Price,
	}).Error)

	require.NoError(t, c.Sync(ctx))
	assert.Empty(t, persistedItems(t, db, user.ID))
}

func TestSyncUpdatesDivergingQuantities(t *testing.T) {
	db := testutil.OpenDB(t)
	user := testutil.SeedUser(t, db, "buyer@test.com")
	product := testutil.SeedProduct(t, db, "A", "100", 10)
	ctx := context.Background()

	c := newCart(t, db, session.New(), models.AuthenticatedAs(user.ID))
	require.NoError(t, c.Add(ctx, &product, 2))

	require.NoError(t, db.Model(&models.CartItem{}).Where("user_id = ?", user.ID).Update("quantity", 9).Error)
	require.NoError(t, c.Sync(ctx))
	assert.Equal(t, 2, persistedItems(t, db, user.ID)[product.ID].Quantity)
}

func TestFirstBindImportsPersistedCart(t *testing.T) {
	db := testutil.OpenDB(t)
	user := testutil.SeedUser(t, db, "buyer@test.com")
	saved := testutil.SeedProduct(t, db, "Saved", "300", 10)
	fresh := testutil.SeedProduct(t, db, "Fresh", "100", 10)
	ctx := context.Background()

	// Cart left on another device.
	require.NoError(t, db.Omit("User", "Product").Create(&models.CartItem{
		UserID: user.ID, ProductID: saved.ID, Quantity: 2, Price: saved.Price,
	}).Error)

	// Anonymous browsing on a new device, then login.
	sess := session.New()
	anon := newCart(t, db, sess, models.Anonymous())
	require.NoError(t, anon.Add(ctx, &fresh, 1))

	c := newCart(t, db, sess, models.AuthenticatedAs(user.ID))
	assert.Equal(t, 2, c.Quantity(saved.ID))
	assert.Equal(t, 1, c.Quantity(fresh.ID))
	assert.True(t, c.TotalPrice().Equal(decimal.NewFromInt(700)))

	items := persistedItems(t, db, user.ID)
	assert.Len(t, items, 2)
	assert.Equal(t, 1, items[fresh.ID].Quantity)
}

func TestSwitchingUsersOnOneSession(t *testing.T) {
	db := testutil.OpenDB(t)
	alice := testutil.SeedUser(t, db, "alice@test.com")
	bob := testutil.SeedUser(t, db, "bob@test.com")
	product := testutil.SeedProduct(t, db, "A", "100", 10)
	ctx := context.Background()
	sess := session.New()

	require.NoError(t, newCart(t, db, sess, models.AuthenticatedAs(alice.ID)).Add(ctx, &product, 3))

	// After signing out the browser shows an empty cart.
	anon := newCart(t, db, sess, models.Anonymous())
	assert.True(t, anon.IsEmpty())
	assert.Zero(t, anon.Quantity(product.ID))

	bobCart := newCart(t, db, sess, models.AuthenticatedAs(bob.ID))
	assert.True(t, bobCart.IsEmpty())
	assert.Empty(t, persistedItems(t, db, bob.ID))
	assert.Equal(t, 3, persistedItems(t, db, alice.ID)[product.ID].Quantity)

	// Same when bob signs in straight over alice's session.
	sess = session.New()
	require.NoError(t, newCart(t, db, sess, models.AuthenticatedAs(alice.ID)).Add(ctx, &product, 1))
	bobCart = newCart(t, db, sess, models.AuthenticatedAs(bob.ID))
	assert.True(t, bobCart.IsEmpty())
	assert.Empty(t, persistedItems(t, db, bob.ID))

	// Alice gets her own cart back from storage.
	aliceCart := newCart(t, db, sess, models.AuthenticatedAs(alice.ID))
	assert.Equal(t, 4, aliceCart.Quantity(product.ID))
	assert.Equal(t, 4, persistedItems(t, db, alice.ID)[product.ID].Quantity)
}

func TestSyncReconcilesRowRecreatedElsewhere(t *testing.T) {
	db := testutil.OpenDB(t)
	user := testutil.SeedUser(t, db, "buyer@test.com")
	product := testutil.SeedProduct(t, db, "A", "100", 10)
	ctx := context.Background()
	sess := session.New()

	c := newCart(t, db, sess, models.AuthenticatedAs(user.ID))
	require.NoError(t, c.Add(ctx, &product, 3))

	// Another request dropped and re-created the row with its own quantity.
	require.NoError(t, db.Where("user_id = ?", user.ID).Delete(&models.CartItem{}).Error)
	require.NoError(t, db.Omit("User", "Product").Create(&models.CartItem{
		UserID: user.ID, ProductID: product.ID, Quantity: 1, Price: product.Price,
	}).Error)

	require.NoError(t, c.Sync(ctx))
	items := persistedItems(t, db, user.ID)
	require.Len(t, items, 1)
	assert.Equal(t, 3, items[product.ID].Quantity)
}

func TestClearEmptiesBothStores(t *testing.T) {
	db := testutil.OpenDB(t)
	user := testutil.SeedUser(t, db, "buyer@test.com")
	product := testutil.SeedProduct(t, db, "A", "100", 10)
	ctx := context.Background()
	sess := session.New()

	c := newCart(t, db, sess, models.AuthenticatedAs(user.ID))
	require.NoError(t, c.Add(ctx, &product, 3))
	require.NoError(t, c.Clear(ctx))

	assert.True(t, c.IsEmpty())
	assert.Zero(t, c.ItemCount())
	assert.Empty(t, persistedItems(t, db, user.ID))

	reloaded := newCart(t, db, sess, models.AuthenticatedAs(user.ID))
	assert.True(t, reloaded.IsEmpty())
}

func TestLinesAreOrderedByProductID(t *testing.T) {
	db := testutil.OpenDB(t)
	c := newCart(t, db, session.New(), models.Anonymous())
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		p := testutil.SeedProduct(t, db, "P", "10", 10)
		require.NoError(t, c.Add(ctx, &p, 1))
	}

	lines := c.Lines()
	require.Len(t, lines, 5)
	for i := 1; i < len(lines); i++ {
		assert.Less(t, lines[i-1].ProductID.String(), lines[i].ProductID.String())
	}
}

func TestLineSubtotal(t *testing.T) {
	l := cart.Line{Price: decimal.RequireFromString("12.50"), Quantity: 3}
	assert.Equal(t, "37.5", l.Subtotal().String())
}
