package users

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/greenmission/internal/common"
	"github.com/dmitrijs2005/greenmission/internal/server/models"
)

var columns = []string{"id", "uid", "name", "email", "photo_url", "role", "wallet_address",
	"missions_completed", "rewards_earned", "created_at", "updated_at"}

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return NewPostgresRepository(db), mock
}

func userRow(wallet any) *sqlmock.Rows {
	ts := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(columns).
		AddRow(int64(7), "uid-1", "Ana", "ana@example.com", nil, "contributor", wallet, 3, int64(150), ts, ts)
}

func TestUpsert_NewUserDefaultsToContributor(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`(?s)^INSERT\s+INTO\s+users.*ON\s+CONFLICT\s+\(uid\)\s+DO\s+UPDATE.*RETURNING\s+id,`).
		WithArgs("uid-1", "Ana", "ana@example.com", nil, "contributor").
		WillReturnRows(userRow(nil))

	got, err := repo.Upsert(context.Background(), &models.User{UID: "uid-1", Name: "Ana", Email: "ana@example.com"})
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.ID)
	assert.Equal(t, models.RoleContributor, got.Role)
	assert.Nil(t, got.PhotoURL)
	assert.Nil(t, got.WalletAddress)
	assert.Equal(t, models.Stats{MissionsCompleted: 3, RewardsEarned: 150}, got.Stats)
}

func TestUpsert_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`INSERT\s+INTO\s+users`).WillReturnError(errors.New("db down"))

	_, err := repo.Upsert(context.Background(), &models.User{UID: "u", Role: models.RoleNGO})
	require.Error(t, err)
	assert.Regexp(t, regexp.MustCompile(`db error: .*db down`), err.Error())
}

func TestGetByID(t *testing.T) {
	q := `(?s)^SELECT\s+id,\s*uid,.*FROM\s+users\s+WHERE\s+id\s*=\s*\$1$`

	t.Run("found", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(q).WithArgs(int64(7)).WillReturnRows(userRow("0xabc"))

		got, err := repo.GetByID(context.Background(), 7)
		require.NoError(t, err)
		assert.Equal(t, "0xabc", got.Wallet())
	})

	t.Run("not found", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(q).WithArgs(int64(8)).WillReturnError(sql.ErrNoRows)

		_, err := repo.GetByID(context.Background(), 8)
		assert.ErrorIs(t, err, common.ErrorNotFound)
	})

	t.Run("db error", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(q).WithArgs(int64(9)).WillReturnError(errors.New("db err"))

		_, err := repo.GetByID(context.Background(), 9)
		require.Error(t, err)
		assert.NotErrorIs(t, err, common.ErrorNotFound)
		assert.Contains(t, err.Error(), "db error")
	})
}

func TestGetByUID(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectQuery(`(?s)FROM\s+users\s+WHERE\s+uid\s*=\s*\$1$`).
		WithArgs("uid-1").
		WillReturnRows(userRow(nil))

	got, err := repo.GetByUID(context.Background(), "uid-1")
	require.NoError(t, err)
	assert.Equal(t, "uid-1", got.UID)
}

func TestUpdateProfile(t *testing.T) {
	q := `(?s)^UPDATE\s+users\s+SET.*wallet_address\s*=\s*CASE.*WHERE\s+id\s*=\s*\$1.*RETURNING`
	wallet := "0x52908400098527886E0F7030069857D2E4169EE7"
	name := "Ana B"

	t.Run("set wallet and name", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(q).
			WithArgs(int64(7), name, nil, true, wallet).
			WillReturnRows(userRow(wallet))

		got, err := repo.UpdateProfile(context.Background(), 7, models.ProfileUpdate{
			Name: &name, WalletAddress: &wallet, SetWallet: true,
		})
		require.NoError(t, err)
		assert.Equal(t, wallet, got.Wallet())
	})

	t.Run("clear wallet", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(q).
			WithArgs(int64(7), nil, nil, true, nil).
			WillReturnRows(userRow(nil))

		got, err := repo.UpdateProfile(context.Background(), 7, models.ProfileUpdate{SetWallet: true})
		require.NoError(t, err)
		assert.Nil(t, got.WalletAddress)
	})

	t.Run("missing user", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(q).WillReturnError(sql.ErrNoRows)

		_, err := repo.UpdateProfile(context.Background(), 99, models.ProfileUpdate{Name: &name})
		assert.ErrorIs(t, err, common.ErrorNotFound)
	})
}

func ngoRow(withHash bool) *sqlmock.Rows {
	ts := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	cols := columns
	vals := []driver.Value{int64(9), "ngo:1", "Green", "a@b.org", nil, "ngo", nil, 0, int64(0), ts, ts}
	if withHash {
		cols = append(append([]string{}, columns...), "password_hash")
		vals = append(vals, "$2a$04$hash")
	}
	return sqlmock.NewRows(cols).AddRow(vals...)
}

func TestCreateNGO(t *testing.T) {
	q := `(?s)^WITH\s+u\s+AS\s+\(\s*INSERT\s+INTO\s+users.*'ngo'.*INSERT\s+INTO\s+ngo_credentials.*SELECT\s+id,`
	in := &models.User{UID: "ngo:1", Name: "Green", Email: "a@b.org"}

	t.Run("created", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(q).WithArgs("ngo:1", "Green", "a@b.org", "hash").WillReturnRows(ngoRow(false))

		got, err := repo.CreateNGO(context.Background(), in, "hash")
		require.NoError(t, err)
		assert.Equal(t, int64(9), got.ID)
		assert.Equal(t, models.RoleNGO, got.Role)
	})

	t.Run("email taken", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(q).WillReturnError(&pgconn.PgError{Code: "23505"})

		_, err := repo.CreateNGO(context.Background(), in, "hash")
		assert.ErrorIs(t, err, common.ErrorAlreadyExists)
	})

	t.Run("db error", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(q).WillReturnError(errors.New("db down"))

		_, err := repo.CreateNGO(context.Background(), in, "hash")
		require.Error(t, err)
		assert.NotErrorIs(t, err, common.ErrorAlreadyExists)
	})
}

func TestGetNGOByEmail(t *testing.T) {
	q := `(?s)^SELECT\s+u\.id,.*c\.password_hash\s+FROM\s+users\s+u\s+JOIN\s+ngo_credentials\s+c.*lower\(c\.email\)\s*=\s*lower\(\$1\)$`

	t.Run("found", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(q).WithArgs("A@b.org").WillReturnRows(ngoRow(true))

		got, hash, err := repo.GetNGOByEmail(context.Background(), "A@b.org")
		require.NoError(t, err)
		assert.Equal(t, int64(9), got.ID)
		assert.Equal(t, "$2a$04$hash", hash)
	})

	t.Run("not found", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(q).WillReturnError(sql.ErrNoRows)

		_, _, err := repo.GetNGOByEmail(context.Background(), "x@b.org")
		assert.ErrorIs(t, err, common.ErrorNotFound)
	})
}
