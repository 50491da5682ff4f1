// Package cart implements the shopping cart shared between the visitor
// session and, for signed-in users, the cart_items table.
//
// The session copy is authoritative. After every mutation Sync rewrites the
// persisted rows so they mirror the session exactly.
package cart

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"biscuit-backend/database"
	"biscuit-backend/metrics"
	"biscuit-backend/models"
	"biscuit-backend/session"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	sessionKey = "cart"
	ownerKey   = "cart_owner"
)

var ErrInvalidQuantity = errors.New("quantity must be at least 1")

// Line is one product in the cart. Price is the unit price captured when
// the product was first added.
type Line struct {
	ProductID uuid.UUID       `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

func (l Line) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Ref identifies a product either by id or by an already loaded record.
type Ref struct {
	id      uuid.UUID
	product *models.Product
}

func ByID(id uuid.UUID) Ref {
	return Ref{id: id}
}

func ByProduct(p *models.Product) Ref {
	return Ref{id: p.ID, product: p}
}

func (r Ref) ProductID() uuid.UUID {
	return r.id
}

// Product returns the loaded record, or nil for id-only refs.
func (r Ref) Product() *models.Product {
	return r.product
}

type Cart struct {
	db        *gorm.DB
	sess      *session.Session
	principal models.Principal
	logger    zerolog.Logger
	lines     map[string]Line
}

// New loads the cart for the current request. Lines bound to a user other
// than the current principal are dropped first, so a shared browser never
// carries one customer's cart into another's. For an authenticated
// principal seeing this session for the first time, persisted lines missing
// from the session are imported before reconciling.
func New(ctx context.Context, db *gorm.DB, sess *session.Session, principal models.Principal, logger zerolog.Logger) (*Cart, error) {
	c := &Cart{
		db:        db,
		sess:      sess,
		principal: principal,
		logger:    logger.With().Str("component", "cart").Logger(),
		lines:     make(map[string]Line),
	}

	if _, err := sess.Get(sessionKey, &c.lines); err != nil {
		c.logger.Warn().Err(err).Msg("discarding unreadable session cart")
		c.lines = make(map[string]Line)
		sess.Delete(sessionKey)
	}
	if c.lines == nil {
		c.lines = make(map[string]Line)
	}

	owner := sess.GetString(ownerKey)
	if owner != "" && (!principal.Authenticated || owner != principal.UserID.String()) {
		c.logger.Debug().Str("previous_owner", owner).Msg("unbinding session cart")
		c.lines = make(map[string]Line)
		sess.Delete(sessionKey)
		sess.Delete(ownerKey)
		owner = ""
	}

	if principal.Authenticated && owner != principal.UserID.String() {
		if err := c.importPersisted(ctx); err != nil {
			return nil, err
		}
	}

	if err := c.Sync(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Cart) importPersisted(ctx context.Context) error {
	var items []models.CartItem
	if err := c.db.WithContext(ctx).Where("user_id = ?", c.principal.UserID).Find(&items).Error; err != nil {
		return fmt.Errorf("load persisted cart: %w", err)
	}
	for _, item := range items {
		key := item.ProductID.String()
		if _, ok := c.lines[key]; ok {
			continue
		}
		c.lines[key] = Line{ProductID: item.ProductID, Quantity: item.Quantity, Price: item.Price}
	}
	if err := c.sess.Set(ownerKey, c.principal.UserID.String()); err != nil {
		return err
	}
	return c.save()
}

// Add increments the quantity of product by qty, creating the line at
// zero first when needed.
func (c *Cart) Add(ctx context.Context, product *models.Product, qty int) error {
	if qty < 1 {
		return ErrInvalidQuantity
	}

	key := product.ID.String()
	line, ok := c.lines[key]
	if !ok {
		line = Line{ProductID: product.ID, Quantity: 0, Price: product.Price}
	}
	line.Quantity += qty
	c.lines[key] = line
	if err := c.save(); err != nil {
		return err
	}

	if c.principal.Authenticated {
		if err := c.upsert(ctx, line.ProductID, qty, line.Price); err != nil {
			return err
		}
	}
	return c.Sync(ctx)
}

// Subtract lowers the quantity by qty. Lines reaching zero are removed
// from both stores. Unknown products are ignored.
func (c *Cart) Subtract(ctx context.Context, ref Ref, qty int) error {
	if qty < 1 {
		return ErrInvalidQuantity
	}

	key := ref.ProductID().String()
	line, ok := c.lines[key]
	if !ok {
		return nil
	}
	line.Quantity -= qty
	if line.Quantity <= 0 {
		return c.Remove(ctx, ref)
	}
	c.lines[key] = line
	if err := c.save(); err != nil {
		return err
	}

	if c.principal.Authenticated {
		err := c.db.WithContext(ctx).Model(&models.CartItem{}).
			Where("user_id = ? AND product_id = ?", c.principal.UserID, line.ProductID).
			Updates(map[string]any{"quantity": line.Quantity, "updated_at": time.Now()}).Error
		if err != nil {
			return fmt.Errorf("update cart item: %w", err)
		}
	}
	return c.Sync(ctx)
}

// Remove drops the product from both stores.
func (c *Cart) Remove(ctx context.Context, ref Ref) error {
	key := ref.ProductID().String()
	if _, ok := c.lines[key]; ok {
		delete(c.lines, key)
		if err := c.save(); err != nil {
			return err
		}
	}

	if c.principal.Authenticated {
		err := c.db.WithContext(ctx).
			Where("user_id = ? AND product_id = ?", c.principal.UserID, ref.ProductID()).
			Delete(&models.CartItem{}).Error
		if err != nil {
			return fmt.Errorf("delete cart item: %w", err)
		}
	}
	return c.Sync(ctx)
}

// Clear empties the cart in both stores.
func (c *Cart) Clear(ctx context.Context) error {
	c.lines = make(map[string]Line)
	c.sess.Delete(sessionKey)

	if c.principal.Authenticated {
		if err := c.db.WithContext(ctx).Where("user_id = ?", c.principal.UserID).Delete(&models.CartItem{}).Error; err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}
	}
	return nil
}

// Lines returns the cart content ordered by product id.
func (c *Cart) Lines() []Line {
	out := make([]Line, 0, len(c.lines))
	for _, l := range c.lines {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ProductID.String() < out[j].ProductID.String()
	})
	return out
}

func (c *Cart) Quantity(productID uuid.UUID) int {
	return c.lines[productID.String()].Quantity
}

func (c *Cart) TotalPrice() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// ItemCount is the sum of quantities, not the number of lines.
func (c *Cart) ItemCount() int {
	n := 0
	for _, l := range c.lines {
		n += l.Quantity
	}
	return n
}

func (c *Cart) IsEmpty() bool {
	return len(c.lines) == 0
}

func (c *Cart) save() error {
	if err := c.sess.Set(sessionKey, c.lines); err != nil {
		return fmt.Errorf("save session cart: %w", err)
	}
	return nil
}

// upsert applies delta to the persisted row, creating it when missing.
func (c *Cart) upsert(ctx context.Context, productID uuid.UUID, delta int, price decimal.Decimal) error {
	item := models.CartItem{
		UserID:    c.principal.UserID,
		ProductID: productID,
		Quantity:  delta,
		Price:     price,
	}
	err := c.db.WithContext(ctx).Omit("User", "Product").Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "product_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"quantity":   gorm.Expr("cart_items.quantity + ?", delta),
			"updated_at": time.Now(),
		}),
	}).Create(&item).Error
	if err != nil {
		return fmt.Errorf("upsert cart item: %w", err)
	}
	return nil
}

// Sync makes the persisted cart mirror the session. Rows missing from the
// session are deleted, new lines inserted and diverging quantities
// updated. A concurrent insert of the same line is retried as an update.
func (c *Cart) Sync(ctx context.Context) error {
	if !c.principal.Authenticated {
		return nil
	}
	metrics.Add(ctx, metrics.Get().CartSyncs, "store", "cart")

	db := c.db.WithContext(ctx)
	userID := c.principal.UserID

	var persisted []models.CartItem
	if err := db.Where("user_id = ?", userID).Find(&persisted).Error; err != nil {
		return fmt.Errorf("load persisted cart: %w", err)
	}
	stored := make(map[string]models.CartItem, len(persisted))
	for _, item := range persisted {
		stored[item.ProductID.String()] = item
	}

	var stale []uuid.UUID
	for key, item := range stored {
		if _, ok := c.lines[key]; !ok {
			stale = append(stale, item.ProductID)
		}
	}
	if len(stale) > 0 {
		if err := db.Where("user_id = ? AND product_id IN ?", userID, stale).Delete(&models.CartItem{}).Error; err != nil {
			return fmt.Errorf("delete stale cart items: %w", err)
		}
	}

	for key, line := range c.lines {
		item, ok := stored[key]
		if !ok {
			if err := c.insertLine(ctx, line); err != nil {
				return err
			}
			continue
		}
		if item.Quantity != line.Quantity {
			if err := c.updateLine(ctx, line); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Cart) insertLine(ctx context.Context, line Line) error {
	item := models.CartItem{
		UserID:    c.principal.UserID,
		ProductID: line.ProductID,
		Quantity:  line.Quantity,
		Price:     line.Price,
	}
	err := c.db.WithContext(ctx).Omit("User", "Product").Create(&item).Error
	if database.IsDuplicateKey(err) {
		c.logger.Debug().Str("product_id", line.ProductID.String()).Msg("cart line inserted concurrently, updating instead")
		return c.updateLine(ctx, line)
	}
	if err != nil {
		return fmt.Errorf("insert cart item: %w", err)
	}
	return nil
}

func (c *Cart) updateLine(ctx context.Context, line Line) error {
	err := c.db.WithContext(ctx).Model(&models.CartItem{}).
		Where("user_id = ? AND product_id = ?", c.principal.UserID, line.ProductID).
		Updates(map[string]any{"quantity": line.Quantity, "price": line.Price, "updated_at": time.Now()}).Error
	if err != nil {
		return fmt.Errorf("update cart item: %w", err)
	}
	return nil
}
