package users

import (
	"context"

	"github.com/dmitrijs2005/greenmission/internal/server/models"
)

type Repository interface {
	// Upsert creates the user for u.UID or refreshes its provider fields.
	// Role, wallet and stats of an existing user are kept.
	Upsert(ctx context.Context, u *models.User) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByUID(ctx context.Context, uid string) (*models.User, error)
	UpdateProfile(ctx context.Context, id int64, upd models.ProfileUpdate) (*models.User, error)

	// CreateNGO inserts an NGO user together with its password login.
	// A taken email yields common.ErrorAlreadyExists.
	CreateNGO(ctx context.Context, u *models.User, passwordHash string) (*models.User, error)
	// GetNGOByEmail returns the NGO user with that login email and its
	// password hash. The email match ignores case.
	GetNGOByEmail(ctx context.Context, email string) (*models.User, string, error)
}
