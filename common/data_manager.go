package common

import (
	"context"
	"fmt"
	"iter"
	log "log/slog"

	"github.com/packdb/packdb"
)

// DataManager coordinates the record, index and audit workers of one type. Every operation
// either completes on all of them or runs the compensations of the step that failed; failures
// are logged and reported as false, never returned.
type DataManager[T packdb.Record] struct {
	schema  *packdb.Schema[T]
	records RecordWorker[T]
	indexes IndexWorker[T]
	audit   AuditWorker[T]
}

// NewDataManager returns the coordinator of schema's type. The audit worker is only
// required when the type is audited.
func NewDataManager[T packdb.Record](schema *packdb.Schema[T], records RecordWorker[T], indexes IndexWorker[T], audit AuditWorker[T]) (*DataManager[T], error) {
	if schema == nil {
		return nil, fmt.Errorf("schema can't be nil")
	}
	if records == nil || indexes == nil {
		return nil, fmt.Errorf("type %s needs record and index workers", schema.Name)
	}
	if schema.Audited && audit == nil {
		return nil, fmt.Errorf("type %s is audited but has no audit worker", schema.Name)
	}
	return &DataManager[T]{
		schema:  schema,
		records: records,
		indexes: indexes,
		audit:   audit,
	}, nil
}

// Schema returns the type's schema.
func (dm *DataManager[T]) Schema() *packdb.Schema[T] {
	return dm.schema
}

// begin tags ctx with a fresh operation id unless the caller already did.
func begin(ctx context.Context) context.Context {
	if !packdb.OperationID(ctx).IsNil() {
		return ctx
	}
	return packdb.WithOperationID(ctx, packdb.NewUUID())
}

// Read returns the record with the given id.
func (dm *DataManager[T]) Read(ctx context.Context, id int) (T, bool) {
	var zero T
	if !dm.records.Exists(ctx, id) {
		return zero, false
	}
	rec, err := dm.records.Read(ctx, id)
	if err != nil {
		log.Warn("read failed", "type", dm.schema.Name, "id", id, "error", err)
		return zero, false
	}
	return rec, true
}

// ReadMany yields one result per id, in order, misses included.
func (dm *DataManager[T]) ReadMany(ctx context.Context, ids []int) iter.Seq2[T, bool] {
	return func(yield func(T, bool) bool) {
		for _, id := range ids {
			if !yield(dm.Read(ctx, id)) {
				return
			}
		}
	}
}

// ReadIndex yields the records filed under key in field's index, misses included. Nothing
// is yielded when the field isn't indexed or its index has no file yet.
func (dm *DataManager[T]) ReadIndex(ctx context.Context, field string, key any) iter.Seq2[T, bool] {
	return func(yield func(T, bool) bool) {
		if _, ok := dm.schema.Index(field); !ok || !dm.indexes.IndexExists(ctx, field) {
			return
		}
		for id := range dm.indexes.IDsForKey(ctx, field, key) {
			if !yield(dm.Read(ctx, id)) {
				return
			}
		}
	}
}

// IndexKeys yields every entry of field's index.
func (dm *DataManager[T]) IndexKeys(ctx context.Context, field string) iter.Seq[packdb.IndexEntry] {
	if _, ok := dm.schema.Index(field); !ok {
		return func(func(packdb.IndexEntry) bool) {}
	}
	return dm.indexes.Keys(ctx, field)
}

// NextID returns an id no record of the type uses, live or soft deleted.
func (dm *DataManager[T]) NextID(ctx context.Context) int {
	return dm.records.NextID(ctx)
}

// History returns the audit log of a record of an audited type.
func (dm *DataManager[T]) History(ctx context.Context, id int) (packdb.AuditLog, bool) {
	if !dm.schema.Audited {
		return packdb.AuditLog{}, false
	}
	l, err := dm.audit.ReadAllEvents(ctx, id)
	if err != nil {
		log.Warn("audit read failed", "type", dm.schema.Name, "id", id, "error", err)
		return packdb.AuditLog{}, false
	}
	return l, true
}

// Poisoned lists the records whose compensating rollback gave up.
func (dm *DataManager[T]) Poisoned(ctx context.Context) []packdb.PoisonReport {
	reports, err := dm.records.Poisoned(ctx)
	if err != nil {
		log.Warn("failed to read some poison reports", "type", dm.schema.Name, "error", err)
	}
	return reports
}

// Write creates or replaces rec.
func (dm *DataManager[T]) Write(ctx context.Context, rec T) bool {
	ctx = begin(ctx)
	id := rec.GetID()
	var prior T
	hadPrior := dm.records.Exists(ctx, id)
	if hadPrior {
		var err error
		if prior, err = dm.records.Read(ctx, id); err != nil {
			// An unreadable record is overwritten as if new; rollback removes the new file.
			log.Warn("can't read current record, writing it as new", "type", dm.schema.Name, "id", id, "error", err)
			hadPrior = false
		}
	}

	rollback := do("rollback record", func(ctx context.Context) error {
		return dm.records.Rollback(ctx, id, prior, hadPrior)
	})
	// Index failures can be partial: put the other fields back where they were.
	repairIndex := do("unindex", func(ctx context.Context) error {
		return dm.indexes.Unindex(ctx, rec)
	})
	if hadPrior {
		repairIndex = dm.index(prior)
	}
	var steps []step
	if dm.schema.Audited {
		event := do("creation event", func(ctx context.Context) error {
			return dm.audit.CreationEvent(ctx, rec)
		})
		if hadPrior {
			event = do("update event", func(ctx context.Context) error {
				return dm.audit.UpdateEvent(ctx, rec, prior)
			})
		}
		steps = []step{
			{action: do("stage record", func(ctx context.Context) error {
				return dm.records.Write(ctx, id, rec)
			})},
			{action: event, onFail: []action{dm.discardRecord(id)}},
			{action: do("commit record", func(ctx context.Context) error {
				return dm.records.Commit(ctx, id)
			}), onFail: []action{dm.discardEvents(rec)}},
			{action: dm.commitEvents(rec), onFail: []action{rollback}},
			{action: dm.index(rec), onFail: []action{dm.rollbackEvent(rec), rollback, repairIndex}},
		}
	} else {
		steps = []step{
			{action: do("write record", func(ctx context.Context) error {
				return dm.records.WriteAndCommit(ctx, id, rec)
			})},
			{action: dm.index(rec), onFail: []action{rollback, repairIndex}},
		}
	}
	return runSteps(ctx, "write", id, steps)
}

// Delete removes the record with the given id. Soft deleting types keep a restorable copy.
func (dm *DataManager[T]) Delete(ctx context.Context, id int) bool {
	ctx = begin(ctx)
	if !dm.records.Exists(ctx, id) {
		return false
	}
	// Record before audit, the order Write takes them in. The record stays held until its
	// delete is final or the events are discarded.
	if err := dm.records.Lock(ctx, id); err != nil {
		log.Warn("can't lock record, delete aborted", "type", dm.schema.Name, "id", id, "error", err)
		return false
	}
	held := true
	release := undo("unlock record", func(context.Context) {
		if held {
			held = false
			dm.records.Unlock(id)
		}
	})
	defer func() {
		_ = release.run(ctx)
	}()
	rec, err := dm.records.ReadLocked(ctx, id)
	if err != nil {
		log.Warn("read failed", "type", dm.schema.Name, "id", id, "error", err)
		return false
	}

	undoDelete := do("undo delete", func(ctx context.Context) error {
		return dm.records.Rollback(ctx, id, rec, true)
	})
	remove := do("delete record", func(ctx context.Context) error {
		return dm.records.DeleteLocked(ctx, id)
	})
	unindex := do("unindex", func(ctx context.Context) error {
		return dm.indexes.Unindex(ctx, rec)
	})
	var steps []step
	if dm.schema.Audited {
		steps = []step{
			{action: do("delete event", func(ctx context.Context) error {
				return dm.audit.DeleteEvent(ctx, rec)
			})},
			{action: remove, onFail: []action{dm.discardEvents(rec)}},
			{action: dm.commitEvents(rec), onFail: []action{release, undoDelete}},
			{action: release},
			{action: unindex, onFail: []action{dm.rollbackEvent(rec), undoDelete, dm.index(rec)}},
		}
	} else {
		steps = []step{
			{action: remove},
			{action: release},
			{action: unindex, onFail: []action{undoDelete, dm.index(rec)}},
		}
	}
	return runSteps(ctx, "delete", id, steps)
}

// Restore brings back a soft deleted record. A record that is present needs no restore.
func (dm *DataManager[T]) Restore(ctx context.Context, id int) bool {
	ctx = begin(ctx)
	if dm.records.Exists(ctx, id) {
		return true
	}
	if err := dm.records.Restore(ctx, id); err != nil {
		log.Warn("restore failed", "type", dm.schema.Name, "id", id, "error", err)
		return false
	}
	if !dm.records.Exists(ctx, id) {
		log.Warn("nothing to restore", "type", dm.schema.Name, "id", id)
		return false
	}

	deleteAgain := do("delete record", func(ctx context.Context) error {
		return dm.records.Delete(ctx, id)
	})
	rec, err := dm.records.Read(ctx, id)
	unindex := do("unindex", func(ctx context.Context) error {
		return dm.indexes.Unindex(ctx, rec)
	})
	if err != nil {
		log.Warn("restored record is unreadable", "type", dm.schema.Name, "id", id, "error", err)
		if err := deleteAgain.run(ctx); err != nil {
			log.Error("compensation failed", "operation", "restore", "compensation", deleteAgain.name, "id", id, "error", err)
		}
		return false
	}

	var steps []step
	if dm.schema.Audited {
		steps = []step{
			{action: do("undelete event", func(ctx context.Context) error {
				return dm.audit.UndeleteEvent(ctx, rec)
			}), onFail: []action{deleteAgain}},
			{action: dm.commitEvents(rec), onFail: []action{deleteAgain}},
			{action: dm.index(rec), onFail: []action{dm.rollbackEvent(rec), deleteAgain, unindex}},
		}
	} else {
		steps = []step{
			{action: dm.index(rec), onFail: []action{deleteAgain, unindex}},
		}
	}
	return runSteps(ctx, "restore", id, steps)
}

func (dm *DataManager[T]) index(rec T) action {
	return do("index", func(ctx context.Context) error {
		return dm.indexes.Index(ctx, rec)
	})
}

func (dm *DataManager[T]) discardRecord(id int) action {
	return undo("discard record", func(ctx context.Context) {
		dm.records.DiscardChanges(ctx, id)
	})
}

func (dm *DataManager[T]) commitEvents(rec T) action {
	return do("commit events", func(ctx context.Context) error {
		return dm.audit.CommitEvents(ctx, rec)
	})
}

func (dm *DataManager[T]) discardEvents(rec T) action {
	return undo("discard events", func(ctx context.Context) {
		dm.audit.DiscardEvents(ctx, rec)
	})
}

func (dm *DataManager[T]) rollbackEvent(rec T) action {
	return do("rollback event", func(ctx context.Context) error {
		return dm.audit.RollbackEvent(ctx, rec)
	})
}
