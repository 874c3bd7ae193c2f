package repositories

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"noteflare/internal/models"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrUsernameTaken = errors.New("username already taken")
)

type UserRepository struct {
	DB *gorm.DB
}

func (r *UserRepository) CreateUser(user *models.User) error {
	user.Username = strings.TrimSpace(user.Username)
	if _, err := r.GetUserByUsername(user.Username); err == nil {
		return ErrUsernameTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return err
	}
	if err := r.DB.Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrUsernameTaken
		}
		return err
	}
	return nil
}

func (r *UserRepository) GetUserByID(userID uint) (*models.User, error) {
	var user models.User
	err := r.DB.First(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetUserByUsername(username string) (*models.User, error) {
	var user models.User
	err := r.DB.First(&user, "username = ?", strings.TrimSpace(username)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByUsernames resolves every name or fails with ErrUserNotFound naming
// the first unknown one. Duplicates are collapsed.
func (r *UserRepository) FindByUsernames(usernames []string) ([]models.User, error) {
	seen := make(map[string]struct{}, len(usernames))
	names := make([]string, 0, len(usernames))
	for _, name := range usernames {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	if len(names) == 0 {
		return []models.User{}, nil
	}

	var users []models.User
	if err := r.DB.Where("username IN ?", names).Find(&users).Error; err != nil {
		return nil, err
	}
	found := make(map[string]struct{}, len(users))
	for _, u := range users {
		found[u.Username] = struct{}{}
	}
	for _, name := range names {
		if _, ok := found[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, name)
		}
	}
	return users, nil
}
