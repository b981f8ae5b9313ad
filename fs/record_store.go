package fs

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"path/filepath"
	"strconv"
	"time"

	retry "github.com/sethvargo/go-retry"

	"github.com/packdb/packdb"
)

const (
	dataExt   = "data"
	poisonExt = "poison"
)

// RecordStore keeps one file per record under {root}/{type}/{id}.data.
type RecordStore[T packdb.Record] struct {
	files    *StagedFileStore
	schema   *packdb.Schema[T]
	folder   string
	rollback packdb.RetryPolicy
	onPoison packdb.PoisonHandler
}

// NewRecordStore returns a record store for schema over the shared staged file store.
func NewRecordStore[T packdb.Record](files *StagedFileStore, root string, schema *packdb.Schema[T], rollback packdb.RetryPolicy, onPoison packdb.PoisonHandler) *RecordStore[T] {
	return &RecordStore[T]{
		files:    files,
		schema:   schema,
		folder:   folderOf(root, schema.Name),
		rollback: rollback,
		onPoison: onPoison,
	}
}

func (rs *RecordStore[T]) path(id int) string {
	return filepath.Join(rs.folder, fmt.Sprintf("%d.%s", id, dataExt))
}

func (rs *RecordStore[T]) poisonPath(id int) string {
	return filepath.Join(rs.folder, fmt.Sprintf("%d.%s", id, poisonExt))
}

// Write locks the record file and stages rec. The lock stays held until Commit or DiscardChanges.
func (rs *RecordStore[T]) Write(ctx context.Context, id int, rec T) error {
	name := rs.path(id)
	return packdb.Attempts(ctx, rs.schema.RecordAttempts(), func(ctx context.Context) error {
		if err := rs.files.Lock(ctx, name); err != nil {
			return err
		}
		if err := rs.files.StageWrite(ctx, name, rec); err != nil {
			rs.files.Discard(ctx, name)
			rs.files.Unlock(name)
			return err
		}
		return nil
	})
}

// Commit publishes the staged record and releases its lock. When every attempt fails the
// staged content is discarded.
func (rs *RecordStore[T]) Commit(ctx context.Context, id int) error {
	name := rs.path(id)
	err := packdb.Attempts(ctx, rs.schema.RecordAttempts(), func(ctx context.Context) error {
		_, err := rs.files.Commit(ctx, name)
		return err
	})
	if err != nil {
		rs.DiscardChanges(ctx, id)
		return err
	}
	rs.files.Unlock(name)
	return nil
}

// DiscardChanges drops the staged record and releases its lock.
func (rs *RecordStore[T]) DiscardChanges(ctx context.Context, id int) {
	name := rs.path(id)
	rs.files.Discard(ctx, name)
	rs.files.Unlock(name)
}

// WriteAndCommit stages and publishes rec in one go.
func (rs *RecordStore[T]) WriteAndCommit(ctx context.Context, id int, rec T) error {
	if err := rs.Write(ctx, id, rec); err != nil {
		return err
	}
	return rs.Commit(ctx, id)
}

// Read returns the committed record.
func (rs *RecordStore[T]) Read(ctx context.Context, id int) (T, error) {
	name := rs.path(id)
	var rec T
	err := packdb.Attempts(ctx, rs.schema.RecordAttempts(), func(ctx context.Context) error {
		if err := rs.files.Lock(ctx, name); err != nil {
			return err
		}
		defer rs.files.Unlock(name)
		r, err := rs.read(ctx, name)
		rec = r
		return err
	})
	return rec, err
}

// Lock holds the record file for a caller that reads and removes it as one unit.
// It must be paired with Unlock.
func (rs *RecordStore[T]) Lock(ctx context.Context, id int) error {
	name := rs.path(id)
	return packdb.Attempts(ctx, rs.schema.RecordAttempts(), func(ctx context.Context) error {
		return rs.files.Lock(ctx, name)
	})
}

// Unlock releases a record file held with Lock.
func (rs *RecordStore[T]) Unlock(id int) {
	rs.files.Unlock(rs.path(id))
}

// ReadLocked is Read for a caller already holding the record's lock.
func (rs *RecordStore[T]) ReadLocked(ctx context.Context, id int) (T, error) {
	name := rs.path(id)
	var rec T
	err := packdb.Attempts(ctx, rs.schema.RecordAttempts(), func(ctx context.Context) error {
		r, err := rs.read(ctx, name)
		rec = r
		return err
	})
	return rec, err
}

func (rs *RecordStore[T]) read(ctx context.Context, name string) (T, error) {
	var r T
	err := rs.files.StageRead(ctx, name, &r)
	return r, err
}

// Exists reports whether the record has a live data file.
func (rs *RecordStore[T]) Exists(ctx context.Context, id int) bool {
	return rs.files.Exists(ctx, rs.path(id))
}

// Delete removes the record, or renames it aside when the type soft deletes.
func (rs *RecordStore[T]) Delete(ctx context.Context, id int) error {
	name := rs.path(id)
	return packdb.Attempts(ctx, rs.schema.RecordAttempts(), func(ctx context.Context) error {
		if err := rs.files.Lock(ctx, name); err != nil {
			return err
		}
		defer rs.files.Unlock(name)
		return rs.remove(ctx, name)
	})
}

// DeleteLocked is Delete for a caller already holding the record's lock.
func (rs *RecordStore[T]) DeleteLocked(ctx context.Context, id int) error {
	name := rs.path(id)
	return packdb.Attempts(ctx, rs.schema.RecordAttempts(), func(ctx context.Context) error {
		return rs.remove(ctx, name)
	})
}

func (rs *RecordStore[T]) remove(ctx context.Context, name string) error {
	if rs.schema.SoftDelete {
		return rs.files.SoftDelete(ctx, name)
	}
	return rs.files.Delete(ctx, name)
}

// Restore brings back a soft deleted record. Types that hard delete can't be restored.
func (rs *RecordStore[T]) Restore(ctx context.Context, id int) error {
	if !rs.schema.SoftDelete {
		return fmt.Errorf("type %s does not soft delete, record %d can't be restored", rs.schema.Name, id)
	}
	name := rs.path(id)
	return packdb.Attempts(ctx, rs.schema.RecordAttempts(), func(ctx context.Context) error {
		if err := rs.files.Lock(ctx, name); err != nil {
			return err
		}
		defer rs.files.Unlock(name)
		return rs.files.RestoreSoftDelete(ctx, name)
	})
}

// Rollback returns the record file to the state it had before the current operation.
// A soft deleted copy is moved back, else prior is rewritten when hadPrior, else the
// file is removed. Attempts follow the rollback retry policy; once they run out the
// record is poisoned.
func (rs *RecordStore[T]) Rollback(ctx context.Context, id int, prior T, hadPrior bool) error {
	name := rs.path(id)
	err := retry.Do(ctx, rs.rollback.Backoff(), func(ctx context.Context) error {
		return retry.RetryableError(rs.rollbackOnce(ctx, name, id, prior, hadPrior))
	})
	if err == nil {
		return nil
	}
	return rs.poison(ctx, id, err)
}

func (rs *RecordStore[T]) rollbackOnce(ctx context.Context, name string, id int, prior T, hadPrior bool) error {
	deleted := name + deletedSuffix
	switch {
	case !rs.files.Exists(ctx, name) && rs.files.Exists(ctx, deleted):
		if err := rs.files.Lock(ctx, name); err != nil {
			return err
		}
		defer rs.files.Unlock(name)
		return rs.files.RestoreSoftDelete(ctx, name)
	case hadPrior:
		if err := rs.Write(ctx, id, prior); err != nil {
			return err
		}
		return rs.Commit(ctx, id)
	case rs.files.Exists(ctx, name):
		if err := rs.files.Lock(ctx, name); err != nil {
			return err
		}
		defer rs.files.Unlock(name)
		return rs.files.Delete(ctx, name)
	}
	return nil
}

func (rs *RecordStore[T]) poison(ctx context.Context, id int, cause error) error {
	report := packdb.PoisonReport{
		Type:        rs.schema.Name,
		ID:          id,
		Reason:      cause.Error(),
		OperationID: packdb.OperationID(ctx),
		Timestamp:   time.Now().UTC(),
	}
	log.Error("rollback gave up, record poisoned", "type", report.Type, "id", id,
		"operation", report.OperationID.String(), "error", cause)

	name := rs.poisonPath(id)
	// The caller's context may be the reason rollback failed; the report still gets written.
	wctx := context.WithoutCancel(ctx)
	if err := rs.files.Lock(wctx, name); err != nil {
		log.Error("failed to lock poison report", "file", name, "error", err)
	} else {
		if err := rs.files.StageWrite(wctx, name, report); err != nil {
			log.Error("failed to stage poison report", "file", name, "error", err)
			rs.files.Discard(wctx, name)
		} else if _, err := rs.files.Commit(wctx, name); err != nil {
			log.Error("failed to write poison report", "file", name, "error", err)
			rs.files.Discard(wctx, name)
		}
		rs.files.Unlock(name)
	}

	if rs.onPoison != nil {
		rs.onPoison(report)
	}
	return packdb.Error{Code: packdb.RollbackPoisoned, Err: cause, UserData: report}
}

// Poisoned lists the poison reports of this type.
func (rs *RecordStore[T]) Poisoned(ctx context.Context) ([]packdb.PoisonReport, error) {
	stems, err := rs.files.ListIDs(ctx, rs.folder, poisonExt)
	if err != nil {
		return nil, err
	}
	var reports []packdb.PoisonReport
	var errs []error
	for _, stem := range stems {
		id, err := strconv.Atoi(stem)
		if err != nil {
			continue
		}
		var r packdb.PoisonReport
		if err := rs.files.StageRead(ctx, rs.poisonPath(id), &r); err != nil {
			errs = append(errs, err)
			continue
		}
		reports = append(reports, r)
	}
	return reports, errors.Join(errs...)
}

// ClearPoison removes the poison report of id once an operator has repaired the record.
func (rs *RecordStore[T]) ClearPoison(ctx context.Context, id int) error {
	name := rs.poisonPath(id)
	if !rs.files.Exists(ctx, name) {
		return nil
	}
	if err := rs.files.Lock(ctx, name); err != nil {
		return err
	}
	defer rs.files.Unlock(name)
	return rs.files.Delete(ctx, name)
}

// NextID is one more than the highest id in use, live or soft deleted, and at least 1.
func (rs *RecordStore[T]) NextID(ctx context.Context) int {
	maxID := 0
	// "{id}.data.deleted" ends in ".deleted"; both kinds share the stem.
	for _, ext := range []string{dataExt, dataExt + deletedSuffix} {
		stems, err := rs.files.ListIDs(ctx, rs.folder, ext)
		if err != nil {
			log.Warn("failed to list record files", "type", rs.schema.Name, "error", err)
			continue
		}
		for _, stem := range stems {
			if id, err := strconv.Atoi(stem); err == nil && id > maxID {
				maxID = id
			}
		}
	}
	return maxID + 1
}
