package sqldb

import (
	"database/sql"
	"errors"
	"time"

	"github.com/wansing/curator/core"
)

type node struct {
	id          int
	parentId    int
	slug        string
	title       string
	description string
	originId    int
	registered  bool
	public      bool
	retracted   bool
	governorId  int
	tsCreated   int64
}

func (e *node) ID() int {
	return e.id
}

func (e *node) ParentID() int {
	return e.parentId
}

func (e *node) Slug() string {
	return e.slug
}

func (e *node) Title() string {
	return e.title
}

func (e *node) Description() string {
	return e.description
}

func (e *node) OriginID() int {
	return e.originId
}

func (e *node) IsRegistered() bool {
	return e.registered
}

func (e *node) IsPublic() bool {
	return e.public
}

func (e *node) IsRetracted() bool {
	return e.retracted
}

func (e *node) GovernorID() int {
	return e.governorId
}

func (e *node) Created() int64 {
	return e.tsCreated
}

const nodeColumns = "id, parentId, slug, title, description, originId, registered, public, retracted, governorId, ts_created"

func scanNode(row interface{ Scan(...interface{}) error }) (*node, error) {
	var e = &node{}
	err := row.Scan(&e.id, &e.parentId, &e.slug, &e.title, &e.description, &e.originId, &e.registered, &e.public, &e.retracted, &e.governorId, &e.tsCreated)
	if err != nil {
		return nil, err
	}
	return e, nil
}

type NodeDB struct {
	*sql.DB
	countChildren  *sql.Stmt
	deleteNode     *sql.Stmt
	getChildren    *sql.Stmt
	getNodeById    *sql.Stmt
	getNodeBySlug  *sql.Stmt
	insertNode     *sql.Stmt
	setDescription *sql.Stmt
	setPublic      *sql.Stmt
	setRegistered  *sql.Stmt
	setTitle       *sql.Stmt
}

func NewNodeDB(db *sql.DB) *NodeDB {

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS element (
			id INTEGER PRIMARY KEY,
			parentId int(11) NOT NULL,
			slug varchar(64) NOT NULL,
			title varchar(128) NOT NULL DEFAULT '',
			description mediumtext NOT NULL DEFAULT '',
			originId int(11) NOT NULL DEFAULT 0,
			registered int(1) NOT NULL DEFAULT 0,
			public int(1) NOT NULL DEFAULT 0,
			retracted int(1) NOT NULL DEFAULT 0,
			governorId int(11) NOT NULL DEFAULT 0,
			ts_created int(11) NOT NULL,
			UNIQUE (parentId, slug)
		);`)
	if err != nil {
		panic(err)
	}

	var nodeDB = &NodeDB{}
	nodeDB.DB = db
	nodeDB.countChildren = mustPrepare(db, "SELECT COUNT(1) FROM element WHERE parentId = ?")
	nodeDB.deleteNode = mustPrepare(db, "DELETE FROM element WHERE id = ?")
	nodeDB.getChildren = mustPrepare(db, "SELECT "+nodeColumns+" FROM element WHERE parentId = ? ORDER BY slug")
	nodeDB.getNodeById = mustPrepare(db, "SELECT "+nodeColumns+" FROM element WHERE id = ? LIMIT 1")
	nodeDB.getNodeBySlug = mustPrepare(db, "SELECT "+nodeColumns+" FROM element WHERE parentId = ? AND slug = ? LIMIT 1")
	nodeDB.insertNode = mustPrepare(db, "INSERT INTO element (parentId, slug, title, ts_created) VALUES (?, ?, ?, ?)")
	nodeDB.setDescription = mustPrepare(db, "UPDATE element SET description = ? WHERE id = ?")
	nodeDB.setPublic = mustPrepare(db, "UPDATE element SET public = ? WHERE id = ?")
	nodeDB.setRegistered = mustPrepare(db, "UPDATE element SET registered = 1, originId = ? WHERE id = ?")
	nodeDB.setTitle = mustPrepare(db, "UPDATE element SET title = ? WHERE id = ?")
	return nodeDB
}

func (db *NodeDB) CountChildren(id int) (int, error) {
	var count int
	return count, db.countChildren.QueryRow(id).Scan(&count)
}

func (db *NodeDB) DeleteNode(e core.DBNode) error {
	_, err := db.deleteNode.Exec(e.ID())
	return err
}

func (db *NodeDB) GetChildren(id int) ([]core.DBNode, error) {

	rows, err := db.getChildren.Query(id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var children = []core.DBNode{}
	for rows.Next() {
		child, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return children, nil
}

func (db *NodeDB) GetNodeByID(id int) (core.DBNode, error) {
	return scanNode(db.getNodeById.QueryRow(id))
}

func (db *NodeDB) GetNodeBySlug(parentID int, slug string) (core.DBNode, error) {
	return scanNode(db.getNodeBySlug.QueryRow(parentID, slug))
}

func (db *NodeDB) InsertNode(parentID int, slug string, title string) (core.DBNode, error) {

	res, err := db.insertNode.Exec(parentID, slug, title, time.Now().Unix())
	if err != nil {
		return nil, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return db.GetNodeByID(int(id))
}

func (db *NodeDB) IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func (db *NodeDB) SetDescription(e core.DBNode, description string) error {
	_, err := db.setDescription.Exec(description, e.ID())
	if n, ok := e.(*node); ok && err == nil {
		n.description = description
	}
	return err
}

func (db *NodeDB) SetPublic(e core.DBNode, public bool) error {
	_, err := db.setPublic.Exec(public, e.ID())
	if n, ok := e.(*node); ok && err == nil {
		n.public = public
	}
	return err
}

func (db *NodeDB) SetRegistered(e core.DBNode, originID int) error {
	_, err := db.setRegistered.Exec(originID, e.ID())
	if n, ok := e.(*node); ok && err == nil {
		n.registered = true
		n.originId = originID
	}
	return err
}

func (db *NodeDB) SetTitle(e core.DBNode, title string) error {
	_, err := db.setTitle.Exec(title, e.ID())
	if n, ok := e.(*node); ok && err == nil {
		n.title = title
	}
	return err
}
