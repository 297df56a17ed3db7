package repositories

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"tokoshop/internal/models"
)

// UserRepository looks up account records owned by the user service.
type UserRepository interface {
	GetByID(tx *gorm.DB, id string) (*models.User, error)
	Create(tx *gorm.DB, user *models.User) error
}

// GORMUserRepository is a GORM implementation of UserRepository.
type GORMUserRepository struct{}

// NewGORMUserRepository creates a new instance of GORMUserRepository.
func NewGORMUserRepository() *GORMUserRepository {
	return &GORMUserRepository{}
}

// GetByID retrieves a user by their ID.
func (r *GORMUserRepository) GetByID(tx *gorm.DB, id string) (*models.User, error) {
	var user models.User
	if err := tx.First(&user, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(fmt.Sprintf("get user %s", id), "user", id, err)
	}
	return &user, nil
}

// Create inserts a user record.
func (r *GORMUserRepository) Create(tx *gorm.DB, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if err := tx.Create(user).Error; err != nil {
		return dbError("create user", err)
	}
	return nil
}
