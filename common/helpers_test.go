package common

import (
	"context"
	"errors"
	"iter"
	"slices"
	"sync"

	"github.com/packdb/packdb"
)

var ctx = context.Background()

var errFake = errors.New("fake failure")

type item struct {
	ID    int
	Name  string
	Color string
}

func (i item) GetID() int { return i.ID }

func itemSchema(audited bool) *packdb.Schema[item] {
	return &packdb.Schema[item]{
		Name: "item",
		Fields: []packdb.Field[item]{
			{Name: "Name", Value: func(i item) any { return i.Name }},
			{Name: "Color", Value: func(i item) any { return i.Color }},
		},
		Indexes:     []packdb.IndexSpec{{Field: "Color"}, {Field: "Name", Unique: true}},
		Audited:     audited,
		SoftDelete:  true,
		MaxAttempts: 1,
	}
}

// journal records worker calls in order and fails the ones it is told to.
type journal struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
}

func newJournal() *journal {
	return &journal{fail: make(map[string]bool)}
}

func (j *journal) call(name string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls = append(j.calls, name)
	if j.fail[name] {
		return errFake
	}
	return nil
}

// failing reports whether name is set to fail without recording a call.
func (j *journal) failing(name string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.fail[name]
}

func (j *journal) failOn(names ...string) {
	for _, n := range names {
		j.fail[n] = true
	}
}

func (j *journal) reset() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls = nil
}

type fakeRecords struct {
	j       *journal
	live    map[int]item
	deleted map[int]item
}

func (f *fakeRecords) Write(_ context.Context, id int, rec item) error {
	return f.j.call("R.Write")
}

func (f *fakeRecords) Commit(_ context.Context, id int) error {
	return f.j.call("R.Commit")
}

func (f *fakeRecords) DiscardChanges(_ context.Context, id int) {
	_ = f.j.call("R.DiscardChanges")
}

func (f *fakeRecords) WriteAndCommit(_ context.Context, id int, rec item) error {
	if err := f.j.call("R.WriteAndCommit"); err != nil {
		return err
	}
	f.live[id] = rec
	return nil
}

func (f *fakeRecords) Read(_ context.Context, id int) (item, error) {
	rec, ok := f.live[id]
	if !ok || f.j.failing("R.Read") {
		return item{}, errFake
	}
	return rec, nil
}

func (f *fakeRecords) Lock(_ context.Context, id int) error {
	return f.j.call("R.Lock")
}

func (f *fakeRecords) Unlock(id int) {
	_ = f.j.call("R.Unlock")
}

func (f *fakeRecords) ReadLocked(ctx context.Context, id int) (item, error) {
	return f.Read(ctx, id)
}

func (f *fakeRecords) DeleteLocked(_ context.Context, id int) error {
	if err := f.j.call("R.DeleteLocked"); err != nil {
		return err
	}
	f.remove(id)
	return nil
}

func (f *fakeRecords) Exists(_ context.Context, id int) bool {
	_, ok := f.live[id]
	return ok
}

func (f *fakeRecords) Delete(_ context.Context, id int) error {
	if err := f.j.call("R.Delete"); err != nil {
		return err
	}
	f.remove(id)
	return nil
}

func (f *fakeRecords) remove(id int) {
	if rec, ok := f.live[id]; ok {
		f.deleted[id] = rec
		delete(f.live, id)
	}
}

func (f *fakeRecords) Restore(_ context.Context, id int) error {
	if err := f.j.call("R.Restore"); err != nil {
		return err
	}
	rec, ok := f.deleted[id]
	if !ok {
		// Like a file system restore, nothing to move back is not an error.
		return nil
	}
	f.live[id] = rec
	delete(f.deleted, id)
	return nil
}

func (f *fakeRecords) Rollback(_ context.Context, id int, prior item, hadPrior bool) error {
	return f.j.call("R.Rollback")
}

func (f *fakeRecords) NextID(context.Context) int {
	return len(f.live) + len(f.deleted) + 1
}

func (f *fakeRecords) Poisoned(context.Context) ([]packdb.PoisonReport, error) {
	return nil, nil
}

type fakeIndexes struct {
	j    *journal
	keys map[string]map[any][]int
}

func (f *fakeIndexes) IndexExists(_ context.Context, field string) bool {
	_, ok := f.keys[field]
	return ok
}

func (f *fakeIndexes) IDsForKey(_ context.Context, field string, key any) iter.Seq[int] {
	return slices.Values(f.keys[field][key])
}

func (f *fakeIndexes) Keys(_ context.Context, field string) iter.Seq[packdb.IndexEntry] {
	return func(yield func(packdb.IndexEntry) bool) {
		for k, ids := range f.keys[field] {
			if !yield(packdb.IndexEntry{Value: k, IDs: ids}) {
				return
			}
		}
	}
}

func (f *fakeIndexes) Index(_ context.Context, rec item) error {
	return f.j.call("I.Index")
}

func (f *fakeIndexes) Unindex(_ context.Context, rec item) error {
	return f.j.call("I.Unindex")
}

type fakeAudit struct {
	j *journal
}

func (f *fakeAudit) CreationEvent(context.Context, item) error { return f.j.call("A.CreationEvent") }
func (f *fakeAudit) UpdateEvent(context.Context, item, item) error {
	return f.j.call("A.UpdateEvent")
}
func (f *fakeAudit) DeleteEvent(context.Context, item) error   { return f.j.call("A.DeleteEvent") }
func (f *fakeAudit) UndeleteEvent(context.Context, item) error { return f.j.call("A.UndeleteEvent") }
func (f *fakeAudit) RollbackEvent(context.Context, item) error { return f.j.call("A.RollbackEvent") }
func (f *fakeAudit) CommitEvents(context.Context, item) error  { return f.j.call("A.CommitEvents") }
func (f *fakeAudit) DiscardEvents(context.Context, item)       { _ = f.j.call("A.DiscardEvents") }
func (f *fakeAudit) ReadAllEvents(context.Context, int) (packdb.AuditLog, error) {
	return packdb.AuditLog{}, nil
}

type fakes struct {
	j       *journal
	records *fakeRecords
	indexes *fakeIndexes
	dm      *DataManager[item]
}

func newFakes(audited bool) *fakes {
	j := newJournal()
	f := &fakes{
		j:       j,
		records: &fakeRecords{j: j, live: make(map[int]item), deleted: make(map[int]item)},
		indexes: &fakeIndexes{j: j, keys: make(map[string]map[any][]int)},
	}
	dm, err := NewDataManager(itemSchema(audited), f.records, f.indexes, &fakeAudit{j: j})
	if err != nil {
		panic(err)
	}
	f.dm = dm
	return f
}
