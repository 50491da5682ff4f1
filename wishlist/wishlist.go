// Package wishlist keeps a visitor's favourite products in the session and,
// for signed-in users, in the wishlist_items table.
package wishlist

import (
	"context"
	"fmt"

	"biscuit-backend/database"
	"biscuit-backend/metrics"
	"biscuit-backend/models"
	"biscuit-backend/session"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const (
	sessionKey = "wishlist"
	ownerKey   = "wishlist_owner"
)

// Wishlist membership for a signed-in user is read from storage. The
// session list mirrors it after the first bind, and every mutation is
// applied to both, so the two never disagree about what was removed.
type Wishlist struct {
	db        *gorm.DB
	sess      *session.Session
	principal models.Principal
	logger    zerolog.Logger
	ids       []string
}

func New(ctx context.Context, db *gorm.DB, sess *session.Session, principal models.Principal, logger zerolog.Logger) (*Wishlist, error) {
	w := &Wishlist{
		db:        db,
		sess:      sess,
		principal: principal,
		logger:    logger.With().Str("component", "wishlist").Logger(),
	}

	if _, err := sess.Get(sessionKey, &w.ids); err != nil {
		w.logger.Warn().Err(err).Msg("discarding unreadable session wishlist")
		w.ids = nil
		sess.Delete(sessionKey)
	}

	// A list bound to someone else never survives a change of identity.
	owner := sess.GetString(ownerKey)
	if owner != "" && (!principal.Authenticated || owner != principal.UserID.String()) {
		w.ids = nil
		sess.Delete(sessionKey)
		sess.Delete(ownerKey)
		owner = ""
	}

	if principal.Authenticated && owner != principal.UserID.String() {
		if err := w.importPersisted(ctx); err != nil {
			return nil, err
		}
	}

	if err := w.Sync(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Wishlist) importPersisted(ctx context.Context) error {
	persisted, err := w.persistedIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range persisted {
		if !w.inSession(id) {
			w.ids = append(w.ids, id)
		}
	}
	if err := w.sess.Set(ownerKey, w.principal.UserID.String()); err != nil {
		return err
	}
	return w.save()
}

// Toggle adds the product when absent and removes it otherwise.
func (w *Wishlist) Toggle(ctx context.Context, productID uuid.UUID) (bool, error) {
	present, err := w.Contains(ctx, productID)
	if err != nil {
		return false, err
	}
	if present {
		return false, w.Remove(ctx, productID)
	}
	return true, w.Add(ctx, productID)
}

func (w *Wishlist) Add(ctx context.Context, productID uuid.UUID) error {
	id := productID.String()
	if !w.inSession(id) {
		w.ids = append(w.ids, id)
		if err := w.save(); err != nil {
			return err
		}
	}
	if w.principal.Authenticated {
		if err := w.insert(ctx, productID); err != nil {
			return err
		}
	}
	return w.Sync(ctx)
}

func (w *Wishlist) Remove(ctx context.Context, productID uuid.UUID) error {
	id := productID.String()
	for i, existing := range w.ids {
		if existing == id {
			w.ids = append(w.ids[:i], w.ids[i+1:]...)
			if err := w.save(); err != nil {
				return err
			}
			break
		}
	}
	if w.principal.Authenticated {
		err := w.db.WithContext(ctx).
			Where("user_id = ? AND product_id = ?", w.principal.UserID, productID).
			Delete(&models.WishlistItem{}).Error
		if err != nil {
			return fmt.Errorf("delete wishlist item: %w", err)
		}
	}
	return w.Sync(ctx)
}

// Contains reads storage for signed-in users and the session otherwise.
func (w *Wishlist) Contains(ctx context.Context, productID uuid.UUID) (bool, error) {
	if !w.principal.Authenticated {
		return w.inSession(productID.String()), nil
	}
	var count int64
	err := w.db.WithContext(ctx).Model(&models.WishlistItem{}).
		Where("user_id = ? AND product_id = ?", w.principal.UserID, productID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("lookup wishlist item: %w", err)
	}
	return count > 0, nil
}

// ProductIDs returns the wishlist in insertion order. Malformed session
// entries are skipped.
func (w *Wishlist) ProductIDs() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(w.ids))
	for _, id := range w.ids {
		parsed, err := uuid.Parse(id)
		if err != nil {
			continue
		}
		out = append(out, parsed)
	}
	return out
}

// Count reads storage for signed-in users and the session otherwise.
func (w *Wishlist) Count(ctx context.Context) (int, error) {
	if !w.principal.Authenticated {
		return len(w.ids), nil
	}
	var count int64
	err := w.db.WithContext(ctx).Model(&models.WishlistItem{}).
		Where("user_id = ?", w.principal.UserID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count wishlist items: %w", err)
	}
	return int(count), nil
}

func (w *Wishlist) Clear(ctx context.Context) error {
	w.ids = nil
	w.sess.Delete(sessionKey)
	if w.principal.Authenticated {
		if err := w.db.WithContext(ctx).Where("user_id = ?", w.principal.UserID).Delete(&models.WishlistItem{}).Error; err != nil {
			return fmt.Errorf("clear wishlist: %w", err)
		}
	}
	return nil
}

// Sync makes the persisted wishlist equal to the session set.
func (w *Wishlist) Sync(ctx context.Context) error {
	if !w.principal.Authenticated {
		return nil
	}
	metrics.Add(ctx, metrics.Get().CartSyncs, "store", "wishlist")

	persisted, err := w.persistedIDs(ctx)
	if err != nil {
		return err
	}
	stored := make(map[string]bool, len(persisted))
	for _, id := range persisted {
		stored[id] = true
	}
	inSession := make(map[string]bool, len(w.ids))
	for _, id := range w.ids {
		inSession[id] = true
	}

	var stale []string
	for id := range stored {
		if !inSession[id] {
			stale = append(stale, id)
		}
	}
	if len(stale) > 0 {
		err := w.db.WithContext(ctx).
			Where("user_id = ? AND product_id IN ?", w.principal.UserID, stale).
			Delete(&models.WishlistItem{}).Error
		if err != nil {
			return fmt.Errorf("delete stale wishlist items: %w", err)
		}
	}

	for _, productID := range w.ProductIDs() {
		if stored[productID.String()] {
			continue
		}
		if err := w.insert(ctx, productID); err != nil {
			return err
		}
	}
	return nil
}

// insert tolerates the row already existing.
func (w *Wishlist) insert(ctx context.Context, productID uuid.UUID) error {
	item := models.WishlistItem{UserID: w.principal.UserID, ProductID: productID}
	err := w.db.WithContext(ctx).Omit("Product").Create(&item).Error
	if err != nil && !database.IsDuplicateKey(err) {
		return fmt.Errorf("insert wishlist item: %w", err)
	}
	return nil
}

func (w *Wishlist) persistedIDs(ctx context.Context) ([]string, error) {
	var ids []uuid.UUID
	err := w.db.WithContext(ctx).Model(&models.WishlistItem{}).
		Where("user_id = ?", w.principal.UserID).
		Order("created_at").
		Pluck("product_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("load persisted wishlist: %w", err)
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out, nil
}

func (w *Wishlist) inSession(id string) bool {
	for _, existing := range w.ids {
		if existing == id {
			return true
		}
	}
	return false
}

func (w *Wishlist) save() error {
	if err := w.sess.Set(sessionKey, w.ids); err != nil {
		return fmt.Errorf("save session wishlist: %w", err)
	}
	return nil
}
