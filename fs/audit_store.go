package fs

import (
	"context"
	"fmt"
	log "log/slog"
	"path/filepath"
	"slices"

	"github.com/packdb/packdb"
)

const auditExt = "audit"

// AuditStore keeps the append-only change log of each record under {root}/{type}/{id}.audit.
// An event stages the whole log with one more entry and holds the log's lock until
// CommitEvents or DiscardEvents.
type AuditStore[T packdb.Record] struct {
	files     *StagedFileStore
	schema    *packdb.Schema[T]
	folder    string
	generator *packdb.AuditGenerator[T]
}

// NewAuditStore returns an audit store for schema over the shared staged file store.
func NewAuditStore[T packdb.Record](files *StagedFileStore, root string, schema *packdb.Schema[T], generator *packdb.AuditGenerator[T]) *AuditStore[T] {
	if generator == nil {
		generator = packdb.NewAuditGenerator(schema)
	}
	return &AuditStore[T]{
		files:     files,
		schema:    schema,
		folder:    folderOf(root, schema.Name),
		generator: generator,
	}
}

func (as *AuditStore[T]) path(id int) string {
	return filepath.Join(as.folder, fmt.Sprintf("%d.%s", id, auditExt))
}

// CreationEvent stages the log with a Create entry. A hard deleted id that is written again
// keeps the history of its earlier life.
func (as *AuditStore[T]) CreationEvent(ctx context.Context, rec T) error {
	return as.writeEvent(ctx, rec.GetID(), func(current packdb.AuditLog) packdb.AuditLog {
		created := as.generator.NewLog(ctx, rec)
		return packdb.AuditLog{Entries: append(slices.Clone(current.Entries), created.Entries...)}
	})
}

// UpdateEvent stages the log with an Update entry from oldRec to newRec.
func (as *AuditStore[T]) UpdateEvent(ctx context.Context, newRec, oldRec T) error {
	return as.writeEvent(ctx, newRec.GetID(), func(current packdb.AuditLog) packdb.AuditLog {
		return as.generator.UpdateLog(ctx, newRec, oldRec, current)
	})
}

// DeleteEvent stages the log with a Delete entry.
func (as *AuditStore[T]) DeleteEvent(ctx context.Context, rec T) error {
	return as.writeEvent(ctx, rec.GetID(), func(current packdb.AuditLog) packdb.AuditLog {
		return as.generator.DeleteLog(ctx, rec, current)
	})
}

// UndeleteEvent stages the log with an Undelete entry.
func (as *AuditStore[T]) UndeleteEvent(ctx context.Context, rec T) error {
	return as.writeEvent(ctx, rec.GetID(), func(current packdb.AuditLog) packdb.AuditLog {
		return as.generator.UndeleteLog(ctx, rec, current)
	})
}

// RollbackEvent appends a Rollback entry and commits it. It runs after the events it
// compensates were committed, so nothing else is left to publish it.
func (as *AuditStore[T]) RollbackEvent(ctx context.Context, rec T) error {
	if err := as.writeEvent(ctx, rec.GetID(), func(current packdb.AuditLog) packdb.AuditLog {
		return as.generator.RollbackLog(ctx, rec, current)
	}); err != nil {
		return err
	}
	return as.CommitEvents(ctx, rec)
}

// CommitEvents publishes the staged log and releases its lock. When every attempt fails
// the staged log is discarded.
func (as *AuditStore[T]) CommitEvents(ctx context.Context, rec T) error {
	name := as.path(rec.GetID())
	err := packdb.Attempts(ctx, as.schema.AuditLogAttempts(), func(ctx context.Context) error {
		_, err := as.files.Commit(ctx, name)
		return err
	})
	if err != nil {
		as.DiscardEvents(ctx, rec)
		return err
	}
	as.files.Unlock(name)
	return nil
}

// DiscardEvents drops the staged log and releases its lock.
func (as *AuditStore[T]) DiscardEvents(ctx context.Context, rec T) {
	name := as.path(rec.GetID())
	as.files.Discard(ctx, name)
	as.files.Unlock(name)
}

// ReadAllEvents returns the committed log of id. A record without a log has an empty one.
func (as *AuditStore[T]) ReadAllEvents(ctx context.Context, id int) (packdb.AuditLog, error) {
	name := as.path(id)
	var auditLog packdb.AuditLog
	err := packdb.Attempts(ctx, as.schema.AuditLogAttempts(), func(ctx context.Context) error {
		if err := as.files.Lock(ctx, name); err != nil {
			return err
		}
		defer as.files.Unlock(name)
		if !as.files.Exists(ctx, name) {
			auditLog = packdb.AuditLog{}
			return nil
		}
		var l packdb.AuditLog
		if err := as.files.StageRead(ctx, name, &l); err != nil {
			return err
		}
		auditLog = l
		return nil
	})
	return auditLog, err
}

func (as *AuditStore[T]) writeEvent(ctx context.Context, id int, generate func(current packdb.AuditLog) packdb.AuditLog) error {
	current, err := as.ReadAllEvents(ctx, id)
	if err != nil {
		log.Warn("failed to read audit log", "type", as.schema.Name, "id", id, "error", err)
		return err
	}
	next := generate(current)
	name := as.path(id)
	return packdb.Attempts(ctx, as.schema.AuditLogAttempts(), func(ctx context.Context) error {
		if err := as.files.Lock(ctx, name); err != nil {
			return err
		}
		if err := as.files.StageWrite(ctx, name, next); err != nil {
			as.files.Discard(ctx, name)
			as.files.Unlock(name)
			return err
		}
		return nil
	})
}
