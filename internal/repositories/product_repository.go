package repositories

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"tokoshop/internal/models"
)

// ProductRepository reads catalog entries. Stock counters are written only
// through the InventoryLedger.
type ProductRepository interface {
	GetByID(tx *gorm.DB, id string) (*models.Product, error)
	GetByIDs(tx *gorm.DB, ids []string) (map[string]models.Product, error)
	Create(tx *gorm.DB, product *models.Product) error
}

// GORMProductRepository is a GORM implementation of ProductRepository.
type GORMProductRepository struct{}

// NewGORMProductRepository creates a new instance of GORMProductRepository.
func NewGORMProductRepository() *GORMProductRepository {
	return &GORMProductRepository{}
}

// GetByID retrieves a single product by its ID.
func (r *GORMProductRepository) GetByID(tx *gorm.DB, id string) (*models.Product, error) {
	var product models.Product
	if err := tx.First(&product, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(fmt.Sprintf("get product %s", id), "product", id, err)
	}
	return &product, nil
}

// GetByIDs retrieves the products that exist among ids, keyed by ID.
func (r *GORMProductRepository) GetByIDs(tx *gorm.DB, ids []string) (map[string]models.Product, error) {
	out := make(map[string]models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var products []models.Product
	if err := tx.Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, dbError("get products", err)
	}
	for _, p := range products {
		out[p.ID] = p
	}
	return out, nil
}

// Create inserts a product. Used for seeding; catalog management lives elsewhere.
func (r *GORMProductRepository) Create(tx *gorm.DB, product *models.Product) error {
	if product.ID == "" {
		product.ID = uuid.New().String()
	}
	if err := tx.Create(product).Error; err != nil {
		return dbError("create product", err)
	}
	return nil
}
