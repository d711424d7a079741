package sqldb

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/wansing/curator/core"
)

type sanction struct {
	db              *SanctionDB // required for lazy loading
	id              string
	nodeId          int
	kind            string
	state           string
	initiatedBy     int
	tsInitiated     int64
	tsEnd           int64
	justification   string
	approvers       []core.DBApprover
	approversLoaded bool // lazy loading
}

func (s *sanction) ID() string {
	return s.id
}

func (s *sanction) NodeID() int {
	return s.nodeId
}

func (s *sanction) Kind() core.Kind {
	return core.Kind(s.kind)
}

func (s *sanction) State() core.State {
	return core.State(s.state)
}

func (s *sanction) InitiatedBy() int {
	return s.initiatedBy
}

func (s *sanction) Initiated() int64 {
	return s.tsInitiated
}

func (s *sanction) EndDate() int64 {
	return s.tsEnd
}

func (s *sanction) Justification() string {
	return s.justification
}

func (s *sanction) Approvers() ([]core.DBApprover, error) {

	if !s.approversLoaded {

		rows, err := s.db.approvers.Query(s.id)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		s.approvers = []core.DBApprover{}
		for rows.Next() {
			var a = &approver{}
			if err = rows.Scan(&a.userId, &a.approvalToken, &a.rejectionToken, &a.approved, &a.rejected); err != nil {
				return nil, err
			}
			s.approvers = append(s.approvers, a)
		}

		s.approversLoaded = true
	}

	return s.approvers, nil
}

type approver struct {
	userId         int
	approvalToken  string
	rejectionToken string
	approved       bool
	rejected       bool
}

func (a *approver) UserID() int {
	return a.userId
}

func (a *approver) ApprovalToken() string {
	return a.approvalToken
}

func (a *approver) RejectionToken() string {
	return a.rejectionToken
}

func (a *approver) HasApproved() bool {
	return a.approved
}

func (a *approver) HasRejected() bool {
	return a.rejected
}

const sanctionColumns = "id, elementId, kind, state, initiatedBy, ts_initiated, ts_end, justification"

const activeStates = "('unapproved', 'pending_moderation', 'approved')"

type SanctionDB struct {
	*sql.DB
	approvers        *sql.Stmt
	countOutstanding *sql.Stmt
	deleteElement    *sql.Stmt
	forceComplete    *sql.Stmt
	forceReject      *sql.Stmt
	get              *sql.Stmt
	getActiveByNode  *sql.Stmt
	getExpired       *sql.Stmt
	insert           *sql.Stmt
	insertApprover   *sql.Stmt
	insertRecord     *sql.Stmt
	setApproved      *sql.Stmt
	setGovernor      *sql.Stmt
	setPublic        *sql.Stmt
	setRegistered    *sql.Stmt
	setRejected      *sql.Stmt
	setRetracted     *sql.Stmt
	transition       *sql.Stmt
}

// NewSanctionDB expects the element and record tables to exist, so NewNodeDB
// and NewRecordDB must run first.
func NewSanctionDB(db *sql.DB) *SanctionDB {

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sanction (
			id varchar(36) PRIMARY KEY,
			elementId int(11) NOT NULL,
			kind varchar(32) NOT NULL,
			state varchar(24) NOT NULL,
			initiatedBy int(11) NOT NULL,
			ts_initiated int(11) NOT NULL,
			ts_end int(11) NOT NULL DEFAULT 0,
			justification text NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS sanction_element_idx ON sanction(elementId, state);
		CREATE TABLE IF NOT EXISTS sanction_approver (
			sanctionId varchar(36) NOT NULL,
			usr int(11) NOT NULL,
			approvalToken text NOT NULL,
			rejectionToken text NOT NULL,
			approved int(1) NOT NULL DEFAULT 0,
			rejected int(1) NOT NULL DEFAULT 0,
			PRIMARY KEY (sanctionId, usr)
		);`)
	if err != nil {
		panic(err)
	}

	var sanctionDB = &SanctionDB{}
	sanctionDB.DB = db
	sanctionDB.approvers = mustPrepare(db, "SELECT usr, approvalToken, rejectionToken, approved, rejected FROM sanction_approver WHERE sanctionId = ? ORDER BY usr")
	sanctionDB.countOutstanding = mustPrepare(db, "SELECT COUNT(1) FROM sanction_approver WHERE sanctionId = ? AND approved = 0")
	sanctionDB.deleteElement = mustPrepare(db, "DELETE FROM element WHERE id = ?")
	sanctionDB.forceComplete = mustPrepare(db, "UPDATE sanction SET state = 'completed' WHERE id = ? AND state IN "+activeStates)
	sanctionDB.forceReject = mustPrepare(db, "UPDATE sanction SET state = 'rejected' WHERE id = ? AND state IN "+activeStates)
	sanctionDB.get = mustPrepare(db, "SELECT "+sanctionColumns+" FROM sanction WHERE id = ? LIMIT 1")
	sanctionDB.getActiveByNode = mustPrepare(db, "SELECT "+sanctionColumns+" FROM sanction WHERE elementId = ? AND state IN "+activeStates)
	sanctionDB.getExpired = mustPrepare(db, "SELECT "+sanctionColumns+" FROM sanction WHERE kind = 'embargo' AND state = 'approved' AND ts_end <= ?")
	sanctionDB.insert = mustPrepare(db, "INSERT INTO sanction ("+sanctionColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)")
	sanctionDB.insertApprover = mustPrepare(db, "INSERT INTO sanction_approver (sanctionId, usr, approvalToken, rejectionToken) VALUES (?, ?, ?, ?)")
	sanctionDB.insertRecord = mustPrepare(db, "INSERT INTO record (elementId, usr, action, ts) VALUES (?, ?, ?, ?)")
	sanctionDB.setApproved = mustPrepare(db, "UPDATE sanction_approver SET approved = 1 WHERE sanctionId = ? AND usr = ? AND approved = 0 AND rejected = 0")
	sanctionDB.setGovernor = mustPrepare(db, "UPDATE element SET governorId = ? WHERE id = ?")
	sanctionDB.setPublic = mustPrepare(db, "UPDATE element SET public = ? WHERE id = ?")
	sanctionDB.setRegistered = mustPrepare(db, "UPDATE element SET registered = 1 WHERE id = ?")
	sanctionDB.setRejected = mustPrepare(db, "UPDATE sanction_approver SET rejected = 1 WHERE sanctionId = ? AND usr = ? AND approved = 0 AND rejected = 0")
	sanctionDB.setRetracted = mustPrepare(db, "UPDATE element SET retracted = 1 WHERE id = ?")
	sanctionDB.transition = mustPrepare(db, "UPDATE sanction SET state = ? WHERE id = ? AND state = ?")
	return sanctionDB
}

func (db *SanctionDB) IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func (db *SanctionDB) scanSanction(row interface{ Scan(...interface{}) error }) (*sanction, error) {
	var s = &sanction{
		db: db,
	}
	err := row.Scan(&s.id, &s.nodeId, &s.kind, &s.state, &s.initiatedBy, &s.tsInitiated, &s.tsEnd, &s.justification)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (db *SanctionDB) GetSanction(id string) (core.DBSanction, error) {
	return db.scanSanction(db.get.QueryRow(id))
}

func (db *SanctionDB) getMultiple(stmt *sql.Stmt, args ...interface{}) ([]core.DBSanction, error) {

	rows, err := stmt.Query(args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sanctions = []core.DBSanction{}
	for rows.Next() {
		s, err := db.scanSanction(rows)
		if err != nil {
			return nil, err
		}
		sanctions = append(sanctions, s)
	}
	return sanctions, nil
}

func (db *SanctionDB) GetActiveSanctionsByNode(nodeID int) ([]core.DBSanction, error) {
	return db.getMultiple(db.getActiveByNode, nodeID)
}

func (db *SanctionDB) GetExpiredEmbargoes(now int64) ([]core.DBSanction, error) {
	return db.getMultiple(db.getExpired, now)
}

func (db *SanctionDB) InsertSanction(draft *core.SanctionDraft, effect *core.Effect) error {

	tx, err := db.Begin()
	if err != nil {
		return err
	}

	_, err = tx.Stmt(db.insert).Exec(draft.ID, draft.NodeID, string(draft.Kind), string(draft.State), draft.InitiatedBy, draft.Initiated, draft.EndDate, draft.Justification)
	if err != nil {
		tx.Rollback()
		return err
	}

	for _, a := range draft.Approvers {
		_, err = tx.Stmt(db.insertApprover).Exec(draft.ID, a.UserID, a.ApprovalToken, a.RejectionToken)
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	if err := db.applyOps(tx, effect); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

// ApplyEffect performs the guarded state transition and all side effects in
// one transaction. It fails without any change if the sanction has left
// effect.FromState.
func (db *SanctionDB) ApplyEffect(effect *core.Effect) error {

	tx, err := db.Begin()
	if err != nil {
		return err
	}

	won, err := db.transitionTx(tx, effect)
	if err != nil {
		tx.Rollback()
		return err
	}
	if !won {
		tx.Rollback()
		return fmt.Errorf("sanction %s is not %s any more", effect.SanctionID, effect.FromState)
	}

	if err := db.applyOps(tx, effect); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

// RecordApproval durably records the vote. If it was the last outstanding
// approval, the guarded transition elects exactly one winner, which applies
// the effect in the same transaction.
func (db *SanctionDB) RecordApproval(s core.DBSanction, userID int, record core.RecordEntry, effect *core.Effect) (completed bool, err error) {

	tx, err := db.Begin()
	if err != nil {
		return false, err
	}

	res, err := tx.Stmt(db.setApproved).Exec(s.ID(), userID)
	if err != nil {
		tx.Rollback()
		return false, err
	}
	if affected, err := res.RowsAffected(); err != nil || affected == 0 {
		tx.Rollback()
		return false, err // raced vote, the earlier transaction has it
	}

	_, err = tx.Stmt(db.insertRecord).Exec(record.NodeID, record.UserID, record.Action, record.Ts)
	if err != nil {
		tx.Rollback()
		return false, err
	}

	var outstanding int
	if err := tx.Stmt(db.countOutstanding).QueryRow(s.ID()).Scan(&outstanding); err != nil {
		tx.Rollback()
		return false, err
	}

	if outstanding == 0 {
		won, err := db.transitionTx(tx, effect)
		if err != nil {
			tx.Rollback()
			return false, err
		}
		if won {
			if err := db.applyOps(tx, effect); err != nil {
				tx.Rollback()
				return false, err
			}
			completed = true
		}
	}

	return completed, tx.Commit()
}

// RecordRejection durably records the veto. The first rejection wins the
// guarded transition and applies the effect atomically.
func (db *SanctionDB) RecordRejection(s core.DBSanction, userID int, record core.RecordEntry, effect *core.Effect) (rejected bool, err error) {

	tx, err := db.Begin()
	if err != nil {
		return false, err
	}

	res, err := tx.Stmt(db.setRejected).Exec(s.ID(), userID)
	if err != nil {
		tx.Rollback()
		return false, err
	}
	if affected, err := res.RowsAffected(); err != nil || affected == 0 {
		tx.Rollback()
		return false, err // raced vote, the earlier transaction has it
	}

	_, err = tx.Stmt(db.insertRecord).Exec(record.NodeID, record.UserID, record.Action, record.Ts)
	if err != nil {
		tx.Rollback()
		return false, err
	}

	won, err := db.transitionTx(tx, effect)
	if err != nil {
		tx.Rollback()
		return false, err
	}
	if won {
		if err := db.applyOps(tx, effect); err != nil {
			tx.Rollback()
			return false, err
		}
		rejected = true
	}

	return rejected, tx.Commit()
}

func (db *SanctionDB) transitionTx(tx *sql.Tx, effect *core.Effect) (bool, error) {
	res, err := tx.Stmt(db.transition).Exec(string(effect.ToState), effect.SanctionID, string(effect.FromState))
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// applyOps performs the node mutations, sanction force-transitions and record
// inserts of the effect within the given transaction.
func (db *SanctionDB) applyOps(tx *sql.Tx, effect *core.Effect) error {

	for _, id := range effect.Retract {
		if _, err := tx.Stmt(db.setRetracted).Exec(id); err != nil {
			return err
		}
	}
	for _, id := range effect.Register {
		if _, err := tx.Stmt(db.setRegistered).Exec(id); err != nil {
			return err
		}
	}
	for _, id := range effect.Publish {
		if _, err := tx.Stmt(db.setPublic).Exec(true, id); err != nil {
			return err
		}
	}
	for _, id := range effect.Unpublish {
		if _, err := tx.Stmt(db.setPublic).Exec(false, id); err != nil {
			return err
		}
	}
	for id, governorID := range effect.SetGovernor {
		if _, err := tx.Stmt(db.setGovernor).Exec(governorID, id); err != nil {
			return err
		}
	}
	for _, id := range effect.Delete {
		if _, err := tx.Stmt(db.deleteElement).Exec(id); err != nil {
			return err
		}
	}

	for _, sanctionID := range effect.ForceReject {
		if _, err := tx.Stmt(db.forceReject).Exec(sanctionID); err != nil {
			return err
		}
	}
	for _, sanctionID := range effect.ForceComplete {
		if _, err := tx.Stmt(db.forceComplete).Exec(sanctionID); err != nil {
			return err
		}
	}

	for _, record := range effect.Records {
		if _, err := tx.Stmt(db.insertRecord).Exec(record.NodeID, record.UserID, record.Action, record.Ts); err != nil {
			return err
		}
	}

	return nil
}
