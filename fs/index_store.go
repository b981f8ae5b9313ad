package fs

import (
	"context"
	"errors"
	"fmt"
	"iter"
	log "log/slog"
	"path/filepath"
	"slices"

	"github.com/packdb/packdb"
)

const indexExt = "index"

// IndexStore maintains one index file per indexed field under {root}/{type}/{field}.index.
type IndexStore[T packdb.Record] struct {
	files  *StagedFileStore
	schema *packdb.Schema[T]
	folder string
}

// NewIndexStore returns an index store for schema over the shared staged file store.
func NewIndexStore[T packdb.Record](files *StagedFileStore, root string, schema *packdb.Schema[T]) *IndexStore[T] {
	return &IndexStore[T]{
		files:  files,
		schema: schema,
		folder: folderOf(root, schema.Name),
	}
}

func (is *IndexStore[T]) path(field string) string {
	return filepath.Join(is.folder, fmt.Sprintf("%s.%s", field, indexExt))
}

// IndexExists reports whether field has an index file.
func (is *IndexStore[T]) IndexExists(ctx context.Context, field string) bool {
	return is.files.Exists(ctx, is.path(field))
}

func (is *IndexStore[T]) load(ctx context.Context, field string) (packdb.Index, bool) {
	name := is.path(field)
	if !is.files.Exists(ctx, name) {
		return packdb.Index{}, false
	}
	if err := is.files.Lock(ctx, name); err != nil {
		log.Warn("failed to lock index", "file", name, "error", err)
		return packdb.Index{}, false
	}
	defer is.files.Unlock(name)
	var idx packdb.Index
	if err := is.files.StageRead(ctx, name, &idx); err != nil {
		log.Warn("failed to read index", "file", name, "error", err)
		return packdb.Index{}, false
	}
	return idx, true
}

// IDsForKey yields the ids stored under key, in stored order. The index is read anew on
// every call.
func (is *IndexStore[T]) IDsForKey(ctx context.Context, field string, key any) iter.Seq[int] {
	return func(yield func(int) bool) {
		idx, ok := is.load(ctx, field)
		if !ok {
			return
		}
		i := idx.Find(key)
		if i < 0 {
			return
		}
		for _, id := range idx.Entries[i].IDs {
			if !yield(id) {
				return
			}
		}
	}
}

// Keys yields every entry of the field's index.
func (is *IndexStore[T]) Keys(ctx context.Context, field string) iter.Seq[packdb.IndexEntry] {
	return func(yield func(packdb.IndexEntry) bool) {
		idx, ok := is.load(ctx, field)
		if !ok {
			return
		}
		for _, e := range idx.Entries {
			if !yield(e) {
				return
			}
		}
	}
}

// Index records rec's current value in every indexed field. A failing field does not stop
// the others; all failures are joined in the result.
func (is *IndexStore[T]) Index(ctx context.Context, rec T) error {
	var errs []error
	for _, spec := range is.schema.Indexes {
		if err := is.indexField(ctx, spec, rec); err != nil {
			errs = append(errs, fmt.Errorf("index %s.%s: %w", is.schema.Name, spec.Field, err))
		}
	}
	return errors.Join(errs...)
}

// Unindex removes rec's id from every indexed field.
func (is *IndexStore[T]) Unindex(ctx context.Context, rec T) error {
	var errs []error
	for _, spec := range is.schema.Indexes {
		if err := is.unindexField(ctx, spec, rec); err != nil {
			errs = append(errs, fmt.Errorf("unindex %s.%s: %w", is.schema.Name, spec.Field, err))
		}
	}
	return errors.Join(errs...)
}

func (is *IndexStore[T]) indexField(ctx context.Context, spec packdb.IndexSpec, rec T) error {
	field, ok := is.schema.Field(spec.Field)
	if !ok {
		return fmt.Errorf("field %s is not declared", spec.Field)
	}
	id := rec.GetID()
	value := field.Value(rec)
	name := is.path(spec.Field)

	if err := is.files.Lock(ctx, name); err != nil {
		return err
	}
	defer is.files.Unlock(name)

	if !is.files.Exists(ctx, name) {
		return is.save(ctx, name, packdb.Index{Entries: []packdb.IndexEntry{{Value: value, IDs: []int{id}}}})
	}
	var idx packdb.Index
	if err := is.files.StageRead(ctx, name, &idx); err != nil {
		return err
	}

	changed := migrate(&idx, id, value)
	switch i := idx.Find(value); {
	case i < 0:
		idx.Entries = append(idx.Entries, packdb.IndexEntry{Value: value, IDs: []int{id}})
		changed = true
	case slices.Contains(idx.Entries[i].IDs, id):
	case spec.Unique && len(idx.Entries[i].IDs) > 0:
		return packdb.Error{
			Code:     packdb.UniqueIndexViolation,
			Err:      fmt.Errorf("value %v of %s is already held by id %d", value, spec.Field, idx.Entries[i].IDs[0]),
			UserData: id,
		}
	default:
		idx.Entries[i].IDs = append(idx.Entries[i].IDs, id)
		changed = true
	}
	if !changed {
		return nil
	}
	return is.save(ctx, name, idx)
}

// migrate takes id out of every entry whose value isn't value and prunes emptied entries.
func migrate(idx *packdb.Index, id int, value any) bool {
	changed := false
	entries := idx.Entries[:0]
	for _, e := range idx.Entries {
		if !packdb.KeysEqual(e.Value, value) {
			if n := slices.DeleteFunc(e.IDs, func(v int) bool { return v == id }); len(n) != len(e.IDs) || len(n) == 0 {
				changed = true
				e.IDs = n
			}
			if len(e.IDs) == 0 {
				continue
			}
		}
		entries = append(entries, e)
	}
	idx.Entries = entries
	return changed
}

func (is *IndexStore[T]) unindexField(ctx context.Context, spec packdb.IndexSpec, rec T) error {
	name := is.path(spec.Field)
	if !is.files.Exists(ctx, name) {
		return nil
	}
	id := rec.GetID()

	if err := is.files.Lock(ctx, name); err != nil {
		return err
	}
	defer is.files.Unlock(name)

	var idx packdb.Index
	if err := is.files.StageRead(ctx, name, &idx); err != nil {
		return err
	}
	changed := false
	entries := idx.Entries[:0]
	for _, e := range idx.Entries {
		if n := slices.DeleteFunc(e.IDs, func(v int) bool { return v == id }); len(n) != len(e.IDs) {
			changed = true
			e.IDs = n
		}
		if len(e.IDs) == 0 {
			changed = true
			continue
		}
		entries = append(entries, e)
	}
	if !changed {
		return nil
	}
	idx.Entries = entries
	if len(idx.Entries) == 0 {
		return is.files.Delete(ctx, name)
	}
	return is.save(ctx, name, idx)
}

// save stages and commits idx. The caller holds the index file lock.
func (is *IndexStore[T]) save(ctx context.Context, name string, idx packdb.Index) error {
	if err := is.files.StageWrite(ctx, name, idx); err != nil {
		is.files.Discard(ctx, name)
		return err
	}
	if _, err := is.files.Commit(ctx, name); err != nil {
		is.files.Discard(ctx, name)
		return err
	}
	return nil
}
