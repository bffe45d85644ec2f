package identity

import (
	"context"
	"errors"

	"rewards-backend/models"

	"gorm.io/gorm"
)

// DBGateway serves accounts from the local users table.
type DBGateway struct {
	DB *gorm.DB
}

func (g *DBGateway) GetUser(ctx context.Context, uid string) (*User, error) {
	var u models.User
	if err := g.DB.WithContext(ctx).Where("id = ?", uid).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &User{
		UID:         u.ID,
		Email:       u.Email,
		DisplayName: u.Name,
		IsAdmin:     u.Role == models.RoleAdmin,
		Disabled:    u.IsBlocked,
	}, nil
}

func (g *DBGateway) SetAdmin(ctx context.Context, uid string) error {
	res := g.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", uid).Update("role", models.RoleAdmin)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}
