package common

import (
	"context"
	"iter"

	"github.com/packdb/packdb"
)

// RecordWorker stores one record per file. Write and Commit are the two halves of a staged
// write; the record stays locked in between.
type RecordWorker[T packdb.Record] interface {
	Write(ctx context.Context, id int, rec T) error
	Commit(ctx context.Context, id int) error
	DiscardChanges(ctx context.Context, id int)
	WriteAndCommit(ctx context.Context, id int, rec T) error
	Read(ctx context.Context, id int) (T, error)
	Exists(ctx context.Context, id int) bool
	Delete(ctx context.Context, id int) error
	// Lock holds the record file across ReadLocked and DeleteLocked until Unlock.
	Lock(ctx context.Context, id int) error
	Unlock(id int)
	ReadLocked(ctx context.Context, id int) (T, error)
	DeleteLocked(ctx context.Context, id int) error
	Restore(ctx context.Context, id int) error
	// Rollback returns the record to its state before the current operation.
	Rollback(ctx context.Context, id int, prior T, hadPrior bool) error
	NextID(ctx context.Context) int
	Poisoned(ctx context.Context) ([]packdb.PoisonReport, error)
}

// IndexWorker maintains the secondary indexes of a type.
type IndexWorker[T packdb.Record] interface {
	IndexExists(ctx context.Context, field string) bool
	IDsForKey(ctx context.Context, field string, key any) iter.Seq[int]
	Keys(ctx context.Context, field string) iter.Seq[packdb.IndexEntry]
	Index(ctx context.Context, rec T) error
	Unindex(ctx context.Context, rec T) error
}

// AuditWorker keeps the change log of audited types. Events are staged and stay locked
// until CommitEvents or DiscardEvents; RollbackEvent commits itself.
type AuditWorker[T packdb.Record] interface {
	CreationEvent(ctx context.Context, rec T) error
	UpdateEvent(ctx context.Context, newRec, oldRec T) error
	DeleteEvent(ctx context.Context, rec T) error
	UndeleteEvent(ctx context.Context, rec T) error
	RollbackEvent(ctx context.Context, rec T) error
	CommitEvents(ctx context.Context, rec T) error
	DiscardEvents(ctx context.Context, rec T)
	ReadAllEvents(ctx context.Context, id int) (packdb.AuditLog, error)
}
