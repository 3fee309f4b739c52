// Package catalog is the ad engine's narrow read-only view of the
// storefront's product catalog.
package catalog

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ManuelReschke/PixelMart/app/models"
)

// ErrProductNotFound is returned for unknown product ids.
var ErrProductNotFound = errors.New("product not found")

// ProductMeta is what a sponsored result needs to render a product.
type ProductMeta struct {
	ProductID uint            `json:"product_id"`
	SellerID  uint            `json:"seller_id"`
	Name      string          `json:"name"`
	Slug      string          `json:"slug"`
	ImageURL  string          `json:"image_url"`
	Price     decimal.Decimal `json:"price"`
}

// ProductCatalog answers the three questions the ad engine asks about products.
type ProductCatalog interface {
	SellerIDForProduct(ctx context.Context, productID uint) (uint, error)
	ProductDisplayMeta(ctx context.Context, productID uint) (ProductMeta, error)
	IsProductApprovedAndActive(ctx context.Context, productID uint) (bool, error)
}

func metaOf(p *models.Product) ProductMeta {
	return ProductMeta{
		ProductID: p.ID,
		SellerID:  p.SellerID,
		Name:      p.Name,
		Slug:      p.Slug,
		ImageURL:  p.ImageURL,
		Price:     p.Price,
	}
}

func servable(p *models.Product) bool {
	return p.IsApproved && p.Status == models.ProductStatusActive
}

// GormProductCatalog reads the storefront's products table.
type GormProductCatalog struct {
	db *gorm.DB
}

// NewGormProductCatalog creates a catalog backed by db.
func NewGormProductCatalog(db *gorm.DB) *GormProductCatalog {
	return &GormProductCatalog{db: db}
}

func (c *GormProductCatalog) load(ctx context.Context, productID uint) (*models.Product, error) {
	var p models.Product
	if err := c.db.WithContext(ctx).First(&p, productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (c *GormProductCatalog) SellerIDForProduct(ctx context.Context, productID uint) (uint, error) {
	p, err := c.load(ctx, productID)
	if err != nil {
		return 0, err
	}
	return p.SellerID, nil
}

func (c *GormProductCatalog) ProductDisplayMeta(ctx context.Context, productID uint) (ProductMeta, error) {
	p, err := c.load(ctx, productID)
	if err != nil {
		return ProductMeta{}, err
	}
	return metaOf(p), nil
}

func (c *GormProductCatalog) IsProductApprovedAndActive(ctx context.Context, productID uint) (bool, error) {
	p, err := c.load(ctx, productID)
	if errors.Is(err, ErrProductNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return servable(p), nil
}

// StaticProductCatalog is an in-memory catalog for tests and local runs.
type StaticProductCatalog struct {
	mu       sync.RWMutex
	products map[uint]models.Product
}

// NewStaticProductCatalog creates a catalog holding products.
func NewStaticProductCatalog(products ...models.Product) *StaticProductCatalog {
	c := &StaticProductCatalog{products: make(map[uint]models.Product, len(products))}
	for _, p := range products {
		c.products[p.ID] = p
	}
	return c
}

// Put adds or replaces a product.
func (c *StaticProductCatalog) Put(p models.Product) {
	c.mu.Lock()
	c.products[p.ID] = p
	c.mu.Unlock()
}

func (c *StaticProductCatalog) get(productID uint) (models.Product, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.products[productID]
	return p, ok
}

func (c *StaticProductCatalog) SellerIDForProduct(_ context.Context, productID uint) (uint, error) {
	p, ok := c.get(productID)
	if !ok {
		return 0, ErrProductNotFound
	}
	return p.SellerID, nil
}

func (c *StaticProductCatalog) ProductDisplayMeta(_ context.Context, productID uint) (ProductMeta, error) {
	p, ok := c.get(productID)
	if !ok {
		return ProductMeta{}, ErrProductNotFound
	}
	return metaOf(&p), nil
}

func (c *StaticProductCatalog) IsProductApprovedAndActive(_ context.Context, productID uint) (bool, error) {
	p, ok := c.get(productID)
	return ok && servable(&p), nil
}
