package core

// The record is the per-subject log. Every ledger mutation and every terminal
// action appends one entry with actor and action.

type DBRecord interface {
	NodeID() int
	UserID() int
	Action() string
	Ts() int64
}

type RecordEntry struct {
	NodeID int
	UserID int
	Action string
	Ts     int64
}

type RecordDB interface {
	AppendRecord(entry RecordEntry) error
	GetRecords(nodeID int, limit, offset int) ([]DBRecord, error)
}
