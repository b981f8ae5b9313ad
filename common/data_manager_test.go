package common

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packdb/packdb"
)

type sagaCase struct {
	name    string
	audited bool
	prior   bool
	fail    []string
	want    bool
	calls   []string
}

func TestWriteSteps(t *testing.T) {
	staged := []string{"R.Write", "A.CreationEvent", "R.Commit", "A.CommitEvents", "I.Index"}
	cases := []sagaCase{
		{name: "audited create", audited: true, want: true, calls: staged},
		{name: "audited update", audited: true, prior: true, want: true,
			calls: []string{"R.Write", "A.UpdateEvent", "R.Commit", "A.CommitEvents", "I.Index"}},
		{name: "stage fails", audited: true, fail: []string{"R.Write"}, calls: []string{"R.Write"}},
		{name: "event fails", audited: true, fail: []string{"A.CreationEvent"},
			calls: []string{"R.Write", "A.CreationEvent", "R.DiscardChanges"}},
		{name: "record commit fails", audited: true, fail: []string{"R.Commit"},
			calls: []string{"R.Write", "A.CreationEvent", "R.Commit", "A.DiscardEvents"}},
		{name: "event commit fails", audited: true, fail: []string{"A.CommitEvents"},
			calls: []string{"R.Write", "A.CreationEvent", "R.Commit", "A.CommitEvents", "R.Rollback"}},
		{name: "index fails", audited: true, fail: []string{"I.Index"},
			calls: append(staged[:5:5], "A.RollbackEvent", "R.Rollback", "I.Unindex")},
		{name: "failing compensation does not stop the next", audited: true, fail: []string{"I.Index", "A.RollbackEvent"},
			calls: append(staged[:5:5], "A.RollbackEvent", "R.Rollback", "I.Unindex")},
		{name: "update index fails", audited: true, prior: true, fail: []string{"I.Index"},
			calls: []string{"R.Write", "A.UpdateEvent", "R.Commit", "A.CommitEvents", "I.Index", "A.RollbackEvent", "R.Rollback", "I.Index"}},
		{name: "plain", want: true, calls: []string{"R.WriteAndCommit", "I.Index"}},
		{name: "plain write fails", fail: []string{"R.WriteAndCommit"}, calls: []string{"R.WriteAndCommit"}},
		{name: "plain index fails", fail: []string{"I.Index"}, calls: []string{"R.WriteAndCommit", "I.Index", "R.Rollback", "I.Unindex"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			f := newFakes(c.audited)
			if c.prior {
				f.records.live[1] = item{ID: 1, Name: "old"}
			}
			f.j.failOn(c.fail...)
			got := f.dm.Write(ctx, item{ID: 1, Name: "new"})
			assert.Equal(t, c.want, got)
			assert.Equal(t, c.calls, f.j.calls)
		})
	}
}

func TestDeleteSteps(t *testing.T) {
	held := []string{"R.Lock", "A.DeleteEvent", "R.DeleteLocked", "A.CommitEvents", "R.Unlock"}
	cases := []sagaCase{
		{name: "audited", audited: true, want: true, calls: append(held[:5:5], "I.Unindex")},
		{name: "lock fails", audited: true, fail: []string{"R.Lock"}, calls: []string{"R.Lock"}},
		{name: "event fails", audited: true, fail: []string{"A.DeleteEvent"},
			calls: []string{"R.Lock", "A.DeleteEvent", "R.Unlock"}},
		{name: "delete fails", audited: true, fail: []string{"R.DeleteLocked"},
			calls: []string{"R.Lock", "A.DeleteEvent", "R.DeleteLocked", "A.DiscardEvents", "R.Unlock"}},
		{name: "event commit fails", audited: true, fail: []string{"A.CommitEvents"},
			calls: []string{"R.Lock", "A.DeleteEvent", "R.DeleteLocked", "A.CommitEvents", "R.Unlock", "R.Rollback"}},
		{name: "unindex fails", audited: true, fail: []string{"I.Unindex"},
			calls: append(held[:5:5], "I.Unindex", "A.RollbackEvent", "R.Rollback", "I.Index")},
		{name: "plain", want: true, calls: []string{"R.Lock", "R.DeleteLocked", "R.Unlock", "I.Unindex"}},
		{name: "plain unindex fails", fail: []string{"I.Unindex"},
			calls: []string{"R.Lock", "R.DeleteLocked", "R.Unlock", "I.Unindex", "R.Rollback", "I.Index"}},
		{name: "unreadable record", audited: true, fail: []string{"R.Read"}, calls: []string{"R.Lock", "R.Unlock"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			f := newFakes(c.audited)
			f.records.live[1] = item{ID: 1, Name: "a"}
			f.j.failOn(c.fail...)
			assert.Equal(t, c.want, f.dm.Delete(ctx, 1))
			assert.Equal(t, c.calls, f.j.calls)
		})
	}
}

func TestDeleteMissing(t *testing.T) {
	f := newFakes(true)
	assert.False(t, f.dm.Delete(ctx, 7))
	assert.Empty(t, f.j.calls)
}

func TestRestoreSteps(t *testing.T) {
	cases := []sagaCase{
		{name: "audited", audited: true, want: true,
			calls: []string{"R.Restore", "A.UndeleteEvent", "A.CommitEvents", "I.Index"}},
		{name: "restore fails", audited: true, fail: []string{"R.Restore"}, calls: []string{"R.Restore"}},
		{name: "event fails", audited: true, fail: []string{"A.UndeleteEvent"},
			calls: []string{"R.Restore", "A.UndeleteEvent", "R.Delete"}},
		{name: "event commit fails", audited: true, fail: []string{"A.CommitEvents"},
			calls: []string{"R.Restore", "A.UndeleteEvent", "A.CommitEvents", "R.Delete"}},
		{name: "index fails", audited: true, fail: []string{"I.Index"},
			calls: []string{"R.Restore", "A.UndeleteEvent", "A.CommitEvents", "I.Index", "A.RollbackEvent", "R.Delete", "I.Unindex"}},
		{name: "plain", want: true, calls: []string{"R.Restore", "I.Index"}},
		{name: "plain index fails", fail: []string{"I.Index"}, calls: []string{"R.Restore", "I.Index", "R.Delete", "I.Unindex"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			f := newFakes(c.audited)
			f.records.deleted[1] = item{ID: 1, Name: "a"}
			f.j.failOn(c.fail...)
			assert.Equal(t, c.want, f.dm.Restore(ctx, 1))
			assert.Equal(t, c.calls, f.j.calls)
		})
	}
}

func TestRestoreWithNothingToRestore(t *testing.T) {
	f := newFakes(true)
	assert.False(t, f.dm.Restore(ctx, 4))
	assert.Equal(t, []string{"R.Restore"}, f.j.calls)
}

func TestWriteOverUnreadableRecord(t *testing.T) {
	f := newFakes(true)
	f.records.live[1] = item{ID: 1, Name: "old"}
	f.j.failOn("R.Read")
	assert.True(t, f.dm.Write(ctx, item{ID: 1, Name: "new"}))
	assert.Equal(t, []string{"R.Write", "A.CreationEvent", "R.Commit", "A.CommitEvents", "I.Index"}, f.j.calls)

	f.j.reset()
	f.j.failOn("I.Index")
	assert.False(t, f.dm.Write(ctx, item{ID: 1, Name: "new"}))
	// Nothing readable came before, so the index repair unindexes the new record.
	assert.Equal(t, "I.Unindex", f.j.calls[len(f.j.calls)-1])
}

func TestRestorePresentIsNoop(t *testing.T) {
	f := newFakes(true)
	f.records.live[1] = item{ID: 1}
	assert.True(t, f.dm.Restore(ctx, 1))
	assert.True(t, f.dm.Restore(ctx, 1))
	assert.Empty(t, f.j.calls)
}

func TestReadIndex(t *testing.T) {
	f := newFakes(false)
	f.records.live[1] = item{ID: 1, Color: "red"}
	f.records.live[3] = item{ID: 3, Color: "red"}
	f.indexes.keys["Color"] = map[any][]int{"red": {1, 2, 3}}

	var found []int
	var misses int
	for rec, ok := range f.dm.ReadIndex(ctx, "Color", "red") {
		if !ok {
			misses++
			continue
		}
		found = append(found, rec.ID)
	}
	assert.Equal(t, []int{1, 3}, found)
	assert.Equal(t, 1, misses)

	// Unindexed field and missing index file yield nothing.
	for range f.dm.ReadIndex(ctx, "Size", "red") {
		t.Fatal("unindexed field yielded a result")
	}
	for range f.dm.ReadIndex(ctx, "Name", "a") {
		t.Fatal("missing index yielded a result")
	}
}

func TestReadMany(t *testing.T) {
	f := newFakes(false)
	f.records.live[2] = item{ID: 2}

	var got []bool
	for rec, ok := range f.dm.ReadMany(ctx, []int{1, 2, 3}) {
		got = append(got, ok)
		if ok {
			assert.Equal(t, 2, rec.ID)
		}
	}
	assert.Equal(t, []bool{false, true, false}, got)
}

func TestOperationIDInContext(t *testing.T) {
	f := newFakes(false)
	var seen packdb.UUID
	f.dm.indexes = &capturingIndexes{fakeIndexes: f.indexes, seen: &seen}

	require.True(t, f.dm.Write(ctx, item{ID: 1}))
	assert.False(t, seen.IsNil())

	id := packdb.NewUUID()
	require.True(t, f.dm.Write(packdb.WithOperationID(ctx, id), item{ID: 2}))
	assert.Equal(t, id, seen)
}

type capturingIndexes struct {
	*fakeIndexes
	seen *packdb.UUID
}

func (c *capturingIndexes) Index(ctx context.Context, rec item) error {
	*c.seen = packdb.OperationID(ctx)
	return c.fakeIndexes.Index(ctx, rec)
}

func TestNewDataManagerValidates(t *testing.T) {
	j := newJournal()
	records := &fakeRecords{j: j}
	indexes := &fakeIndexes{j: j}

	_, err := NewDataManager[item](nil, records, indexes, nil)
	assert.Error(t, err)
	_, err = NewDataManager(itemSchema(true), records, indexes, nil)
	assert.Error(t, err)
	_, err = NewDataManager(itemSchema(false), records, indexes, nil)
	assert.NoError(t, err)
}

func TestHistoryRequiresAudit(t *testing.T) {
	f := newFakes(false)
	_, ok := f.dm.History(ctx, 1)
	assert.False(t, ok)

	f = newFakes(true)
	l, ok := f.dm.History(ctx, 1)
	assert.True(t, ok)
	assert.Empty(t, l.Entries)
}
