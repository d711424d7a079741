package sqldb

import (
	"database/sql"

	"github.com/wansing/curator/core"
)

type record struct {
	nodeId int
	userId int
	action string
	ts     int64
}

func (r *record) NodeID() int {
	return r.nodeId
}

func (r *record) UserID() int {
	return r.userId
}

func (r *record) Action() string {
	return r.action
}

func (r *record) Ts() int64 {
	return r.ts
}

type RecordDB struct {
	*sql.DB
	get    *sql.Stmt
	insert *sql.Stmt
}

func NewRecordDB(db *sql.DB) *RecordDB {

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS record (
			id INTEGER PRIMARY KEY,
			elementId int(11) NOT NULL,
			usr int(11) NOT NULL,
			action varchar(256) NOT NULL,
			ts int(11) NOT NULL
		);
		CREATE INDEX IF NOT EXISTS record_element_idx ON record(elementId, ts);`)
	if err != nil {
		panic(err)
	}

	var recordDB = &RecordDB{}
	recordDB.DB = db
	recordDB.get = mustPrepare(db, "SELECT elementId, usr, action, ts FROM record WHERE elementId = ? ORDER BY ts DESC, id DESC LIMIT ? OFFSET ?")
	recordDB.insert = mustPrepare(db, "INSERT INTO record (elementId, usr, action, ts) VALUES (?, ?, ?, ?)")
	return recordDB
}

func (db *RecordDB) AppendRecord(entry core.RecordEntry) error {
	_, err := db.insert.Exec(entry.NodeID, entry.UserID, entry.Action, entry.Ts)
	return err
}

func (db *RecordDB) GetRecords(nodeID int, limit, offset int) ([]core.DBRecord, error) {

	rows, err := db.get.Query(nodeID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records = []core.DBRecord{}
	for rows.Next() {
		var r = &record{}
		if err = rows.Scan(&r.nodeId, &r.userId, &r.action, &r.ts); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}
