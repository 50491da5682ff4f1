// Package catalog is the read side of the product catalog used by the
// cart, wishlist and checkout.
package catalog

import (
	"context"
	"errors"

	"biscuit-backend/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("product not found")

type Catalog interface {
	GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	GetProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
}

type DBCatalog struct {
	DB *gorm.DB
}

func NewDBCatalog(db *gorm.DB) *DBCatalog {
	return &DBCatalog{DB: db}
}

func (c *DBCatalog) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := c.DB.WithContext(ctx).Where("id = ?", id).First(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetProducts loads ids in one query. Missing ids are simply absent from
// the result.
func (c *DBCatalog) GetProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	out := make(map[uuid.UUID]models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var products []models.Product
	if err := c.DB.WithContext(ctx).Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, err
	}
	for _, p := range products {
		out[p.ID] = p
	}
	return out, nil
}
