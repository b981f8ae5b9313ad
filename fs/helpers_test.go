package fs

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/packdb/packdb"
)

var ctx = context.Background()

var errInjected = errors.New("injected failure")

type person struct {
	ID    int
	Name  string
	Email string
	Age   int
}

func (p person) GetID() int { return p.ID }

func personSchema() *packdb.Schema[person] {
	return &packdb.Schema[person]{
		Name: "person",
		Fields: []packdb.Field[person]{
			{Name: "Name", Value: func(p person) any { return p.Name }},
			{Name: "Email", Value: func(p person) any { return p.Email }},
			{Name: "Age", Value: func(p person) any { return p.Age }},
		},
		Indexes: []packdb.IndexSpec{
			{Field: "Name"},
			{Field: "Email", Unique: true},
		},
		Audited:       true,
		AuditAttempts: 3,
		SoftDelete:    true,
		MaxAttempts:   2,
	}
}

// faultyFileIO fails operations whose target ends with a registered suffix.
type faultyFileIO struct {
	FileIO
	mu     sync.Mutex
	faults map[string]string
	calls  map[string]int
}

func newFaultyFileIO() *faultyFileIO {
	return &faultyFileIO{
		FileIO: NewFileIO(),
		faults: make(map[string]string),
		calls:  make(map[string]int),
	}
}

func (f *faultyFileIO) failOn(op, suffix string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults[op] = suffix
}

func (f *faultyFileIO) heal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	clear(f.faults)
}

func (f *faultyFileIO) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *faultyFileIO) check(op string, names ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	suffix, ok := f.faults[op]
	if !ok {
		return nil
	}
	for _, n := range names {
		if strings.HasSuffix(n, suffix) {
			return packdb.Error{Code: packdb.FileIOError, Err: errInjected, UserData: n}
		}
	}
	return nil
}

func (f *faultyFileIO) OpenWrite(ctx context.Context, name string) (io.WriteCloser, error) {
	if err := f.check("openwrite", name); err != nil {
		return nil, err
	}
	return f.FileIO.OpenWrite(ctx, name)
}

func (f *faultyFileIO) OpenRead(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := f.check("openread", name); err != nil {
		return nil, err
	}
	return f.FileIO.OpenRead(ctx, name)
}

func (f *faultyFileIO) Remove(ctx context.Context, name string) error {
	if err := f.check("remove", name); err != nil {
		return err
	}
	return f.FileIO.Remove(ctx, name)
}

func (f *faultyFileIO) Rename(ctx context.Context, from, to string) error {
	if err := f.check("rename", from, to); err != nil {
		return err
	}
	return f.FileIO.Rename(ctx, from, to)
}
