// Package repository declares the storage interfaces the service layer
// depends on. Concrete backends live in sub-packages (see sqlite/).
package repository

import (
	"context"

	"github.com/sakif/entity-auth/internal/entity"
	"github.com/sakif/entity-auth/internal/model"
)

// UserRepository persists users.
//
// Every write runs the store's hook pipeline first: Create runs the
// before_insert hooks on the whole user, Update runs before_update on the
// whole user, and Patch runs before_update on the change set only. That is
// how the password column gets hashed without callers thinking about it.
type UserRepository interface {
	entity.Patcher

	Create(ctx context.Context, user *model.User) error
	Update(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByResetToken(ctx context.Context, token string) (*model.User, error)
}
