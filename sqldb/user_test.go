package sqldb_test

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wansing/curator/sqldb"
)

func newUserDB(t *testing.T) *sqldb.UserDB {
	sqlDB, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		sqlDB.Close()
	})
	return sqldb.NewUserDB(sqlDB)
}

func TestLogin(t *testing.T) {

	db := newUserDB(t)

	u, err := db.InsertUser("Alice@Example.com ")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", u.Name())
	assert.False(t, u.Confirmed())

	require.NoError(t, db.SetPassword(u, "correct horse"))

	got, err := db.LoginUser("alice@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, u.ID(), got.ID())

	// name is cleaned before lookup
	_, err = db.LoginUser(" ALICE@example.com", "correct horse")
	require.NoError(t, err)

	_, err = db.LoginUser("alice@example.com", "wrong")
	assert.ErrorIs(t, err, sqldb.ErrAuth)

	_, err = db.LoginUser("nobody@example.com", "correct horse")
	assert.ErrorIs(t, err, sqldb.ErrAuth)

	// the empty stored password must never match
	fresh, err := db.InsertUser("bob@example.com")
	require.NoError(t, err)
	_, err = db.LoginUser(fresh.Name(), "")
	assert.ErrorIs(t, err, sqldb.ErrAuth)
}

func TestConfirm(t *testing.T) {

	db := newUserDB(t)

	u, err := db.InsertUser("alice@example.com")
	require.NoError(t, err)
	require.NoError(t, db.Confirm(u))
	assert.True(t, u.Confirmed())

	got, err := db.GetUserByName("alice@example.com")
	require.NoError(t, err)
	assert.True(t, got.Confirmed())
}

func TestChangePassword(t *testing.T) {

	db := newUserDB(t)

	u, err := db.InsertUser("alice@example.com")
	require.NoError(t, err)
	require.NoError(t, db.SetPassword(u, "old"))

	assert.ErrorIs(t, db.ChangePassword(u, "wrong", "new"), sqldb.ErrAuth)

	require.NoError(t, db.ChangePassword(u, "old", "new"))
	_, err = db.LoginUser("alice@example.com", "new")
	require.NoError(t, err)
}
