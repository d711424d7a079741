package core

import (
	"errors"
)

type DBGroup interface {
	ID() int
	Name() string
	HasMember(u DBUser) (bool, error)
	Members() (map[int]interface{}, error)
}

type GroupDB interface {
	Delete(g DBGroup) error
	GetAllGroups(limit, offset int) ([]DBGroup, error)
	GetGroup(id int) (DBGroup, error)
	GetGroupByName(name string) (DBGroup, error)
	GetGroupsOf(u DBUser) ([]DBGroup, error)
	InsertGroup(name string) error
	Join(g DBGroup, u DBUser) error
	Leave(g DBGroup, u DBUser) error
	Writeable() bool
}

// AllUsers implements DBGroup and represents all users, including the public.
type AllUsers struct{}

func (AllUsers) ID() int {
	return 0
}

func (AllUsers) Name() string {
	return "all users"
}

func (AllUsers) HasMember(DBUser) (bool, error) {
	return true, nil
}

func (AllUsers) Members() (map[int]interface{}, error) {
	return nil, errors.New("not available")
}

// GetGroup shadows CoreDB.GroupDB.GetGroup.
func (c *CoreDB) GetGroup(id int) (DBGroup, error) {
	if id == 0 {
		return AllUsers{}, nil
	}
	return c.GroupDB.GetGroup(id)
}
