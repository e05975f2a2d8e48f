package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrijs2005/greenmission/internal/common"
	"github.com/dmitrijs2005/greenmission/internal/dbx"
	"github.com/dmitrijs2005/greenmission/internal/server/models"
)

const userColumns = `id, uid, name, email, photo_url, role, wallet_address,
		 missions_completed, rewards_earned, created_at, updated_at`

// uniqueViolation is the Postgres SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Upsert keeps a name or photo the user already has; provider values only
// fill blanks. The email always follows the provider.
func (r *PostgresRepository) Upsert(ctx context.Context, u *models.User) (*models.User, error) {
	role := u.Role
	if !role.Valid() {
		role = models.RoleContributor
	}

	query :=
		`INSERT INTO users (uid, name, email, photo_url, role)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (uid) DO UPDATE SET
		   email = EXCLUDED.email,
		   name = CASE WHEN users.name = '' THEN EXCLUDED.name ELSE users.name END,
		   photo_url = COALESCE(users.photo_url, EXCLUDED.photo_url),
		   updated_at = now()
		 RETURNING ` + userColumns

	row := r.db.QueryRowContext(ctx, query, u.UID, u.Name, u.Email, u.PhotoURL, role)
	out, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		 WHERE id = $1`

	return r.getOne(ctx, query, id)
}

func (r *PostgresRepository) GetByUID(ctx context.Context, uid string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		 WHERE uid = $1`

	return r.getOne(ctx, query, uid)
}

// UpdateProfile applies upd in a single statement and returns the new row.
func (r *PostgresRepository) UpdateProfile(ctx context.Context, id int64, upd models.ProfileUpdate) (*models.User, error) {
	query :=
		`UPDATE users SET
		   name = COALESCE($2::text, name),
		   photo_url = COALESCE($3::text, photo_url),
		   wallet_address = CASE WHEN $4::boolean THEN $5::text ELSE wallet_address END,
		   updated_at = now()
		 WHERE id = $1
		 RETURNING ` + userColumns

	return r.getOne(ctx, query, id, upd.Name, upd.PhotoURL, upd.SetWallet, upd.WalletAddress)
}

// CreateNGO writes the user row and its credentials in one statement.
func (r *PostgresRepository) CreateNGO(ctx context.Context, u *models.User, passwordHash string) (*models.User, error) {
	query :=
		`WITH u AS (
		   INSERT INTO users (uid, name, email, role)
		   VALUES ($1, $2, $3, 'ngo')
		   RETURNING ` + userColumns + `
		 ), c AS (
		   INSERT INTO ngo_credentials (user_id, email, password_hash)
		   SELECT id, $3, $4 FROM u
		 )
		 SELECT ` + userColumns + ` FROM u`

	out, err := scanUser(r.db.QueryRowContext(ctx, query, u.UID, u.Name, u.Email, passwordHash))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) GetNGOByEmail(ctx context.Context, email string) (*models.User, string, error) {
	query := `SELECT u.id, u.uid, u.name, u.email, u.photo_url, u.role, u.wallet_address,
		 u.missions_completed, u.rewards_earned, u.created_at, u.updated_at, c.password_hash
		 FROM users u JOIN ngo_credentials c ON c.user_id = u.id
		 WHERE lower(c.email) = lower($1)`

	var hash string
	u, err := scanUser(r.db.QueryRowContext(ctx, query, email), &hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", common.ErrorNotFound
		}
		return nil, "", fmt.Errorf("db error: %w", err)
	}
	return u, hash, nil
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, args ...any) (*models.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return u, nil
}

// scanUser reads userColumns, then any extra columns into extra.
func scanUser(row *sql.Row, extra ...any) (*models.User, error) {
	var (
		u             models.User
		photo, wallet sql.NullString
		role          string
	)
	dest := []any{&u.ID, &u.UID, &u.Name, &u.Email, &photo, &role, &wallet,
		&u.Stats.MissionsCompleted, &u.Stats.RewardsEarned, &u.CreatedAt, &u.UpdatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	u.Role = models.Role(role)
	if photo.Valid {
		u.PhotoURL = &photo.String
	}
	if wallet.Valid {
		u.WalletAddress = &wallet.String
	}
	return &u, nil
}
