package core_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wansing/curator/core"
)

func TestCreateRegistration(t *testing.T) {

	db := newTestDB(t)
	alice := newUser(t, db, "alice@example.com", true)
	makeAdmins(t, db, 1, "admins", alice)

	project := insertNode(t, db, 1, "project")
	materials := insertNode(t, db, project.ID(), "materials")
	insertNode(t, db, materials.ID(), "survey")

	// an earlier component registration must not be copied again
	insertRegistration(t, db, project.ID(), "materials-registration", false)

	reg, err := db.CreateRegistration(reload(t, db, project.ID()), alice)
	require.NoError(t, err)

	assert.Equal(t, "project-registration", reg.Slug())
	assert.True(t, reg.IsRegistered())
	assert.False(t, reg.IsPublic())
	assert.Equal(t, project.ID(), reg.OriginID())
	assert.Equal(t, project.ParentID(), reg.ParentID())

	// the copy mirrors the source tree
	children, err := reg.GetChildren()
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "materials", children[0].Slug())
	assert.Equal(t, materials.ID(), children[0].OriginID())

	grandchildren, err := children[0].GetChildren()
	require.NoError(t, err)
	require.Len(t, grandchildren, 1)
	assert.Equal(t, "survey", grandchildren[0].Slug())

	// the source stays what it was
	assert.False(t, reload(t, db, project.ID()).IsRegistered())

	// the creation is logged on the originating project
	records, err := db.GetRecords(project.ID(), 10, 0)
	require.NoError(t, err)
	require.NotEmpty(t, records)
	assert.Contains(t, records[0].Action(), "created registration")

	// a second registration of the same project gets a numbered slug
	second, err := db.CreateRegistration(reload(t, db, project.ID()), alice)
	require.NoError(t, err)
	assert.Equal(t, "project-registration-2", second.Slug())
}

func TestCreateRegistrationChecks(t *testing.T) {

	db := newTestDB(t)
	alice := newUser(t, db, "alice@example.com", true)
	mallory := newUser(t, db, "mallory@example.com", true)
	makeAdmins(t, db, 1, "admins", alice)

	project := insertNode(t, db, 1, "project")

	_, err := db.CreateRegistration(reload(t, db, project.ID()), mallory)
	assert.ErrorIs(t, err, core.ErrPermission)

	reg := insertRegistration(t, db, 1, "study", false)
	_, err = db.CreateRegistration(reload(t, db, reg.ID()), alice)
	assert.ErrorIs(t, err, core.ErrNodeState)

	_, err = db.CreateRegistration(reload(t, db, 1), alice)
	assert.ErrorIs(t, err, core.ErrNodeState)
}
