// Package users provides database operations for record owners.
//
// # Usage
//
//	repo := users.NewRepository(db)
//	user, err := repo.GetOrCreate("alice")
package users

import (
	"errors"

	"gorm.io/gorm"

	"github.com/mrlokans/tagnotes/internal/entities"
)

// Repository handles all user database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new users repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// CreateUser creates a new user.
func (r *Repository) CreateUser(username, email string) (*entities.User, error) {
	user := &entities.User{
		Username: username,
		Email:    email,
	}

	if err := r.db.Create(user).Error; err != nil {
		return nil, err
	}

	return user, nil
}

// GetUserByID retrieves a user by ID.
func (r *Repository) GetUserByID(id uint) (*entities.User, error) {
	var user entities.User
	err := r.db.First(&user, id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByUsername retrieves a user by username.
func (r *Repository) GetUserByUsername(username string) (*entities.User, error) {
	var user entities.User
	err := r.db.Where("username = ?", username).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetOrCreate returns the user with the given username, creating it if needed.
func (r *Repository) GetOrCreate(username string) (*entities.User, error) {
	user, err := r.GetUserByUsername(username)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return r.CreateUser(username, "")
}

// ListUsers returns all users ordered by ID.
func (r *Repository) ListUsers() ([]entities.User, error) {
	var users []entities.User
	err := r.db.Order("id ASC").Find(&users).Error
	return users, err
}
