package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	log "log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/packdb/packdb"
	"github.com/packdb/packdb/encoding"
)

const (
	stagedSuffix  = ".staged"
	deletedSuffix = ".deleted"
)

// stagedStream is a write in progress: payloads go to a temp file next to the target
// and only replace it on commit.
type stagedStream struct {
	file    io.WriteCloser
	tmpPath string
}

// StagedFileStore serializes access to files by name and stages writes until they are
// committed or discarded. One instance is shared by every store over the same data root.
type StagedFileStore struct {
	fileIO      FileIO
	marshaler   encoding.Marshaler
	lockTimeout time.Duration

	// mu only guards the two tables, never I/O.
	mu      sync.Mutex
	locks   map[string]*semaphore.Weighted
	streams map[string]*stagedStream
}

// NewStagedFileStore returns a store using fileIO and marshaler; nil arguments select the
// defaults and a non-positive lockTimeout selects packdb.DefaultLockTimeout.
func NewStagedFileStore(fileIO FileIO, marshaler encoding.Marshaler, lockTimeout time.Duration) *StagedFileStore {
	if fileIO == nil {
		fileIO = NewFileIO()
	}
	if marshaler == nil {
		marshaler = encoding.DefaultMarshaler
	}
	if lockTimeout <= 0 {
		lockTimeout = packdb.DefaultLockTimeout
	}
	return &StagedFileStore{
		fileIO:      fileIO,
		marshaler:   marshaler,
		lockTimeout: lockTimeout,
		locks:       make(map[string]*semaphore.Weighted),
		streams:     make(map[string]*stagedStream),
	}
}

func (s *StagedFileStore) semaphore(name string) *semaphore.Weighted {
	s.mu.Lock()
	defer s.mu.Unlock()
	sem, ok := s.locks[name]
	if !ok {
		sem = semaphore.NewWeighted(1)
		s.locks[name] = sem
	}
	return sem
}

// Lock waits for exclusive use of name. Every successful Lock must be paired with one Unlock.
func (s *StagedFileStore) Lock(ctx context.Context, name string) error {
	sem := s.semaphore(name)
	ctx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()
	if err := sem.Acquire(ctx, 1); err != nil {
		return packdb.Error{Code: packdb.LockAcquisitionFailure, Err: err, UserData: name}
	}
	return nil
}

// Unlock releases name. Unlocking a name that isn't locked does nothing.
func (s *StagedFileStore) Unlock(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sem, ok := s.locks[name]
	if !ok {
		return
	}
	// A successful TryAcquire means nobody held it; give that permit straight back.
	if sem.TryAcquire(1) {
		sem.Release(1)
		log.Debug("unlock of a file that isn't locked", "file", name)
		return
	}
	sem.Release(1)
}

// StageWrite encodes v into the staged stream of name, opening one if needed.
// Each call appends a payload, so callers stage once per transaction.
func (s *StagedFileStore) StageWrite(ctx context.Context, name string, v any) error {
	stream, err := s.openStream(ctx, name)
	if err != nil {
		return err
	}
	if err := s.marshaler.Encode(stream.file, v); err != nil {
		return packdb.Error{Code: packdb.SerializationError, Err: err, UserData: name}
	}
	return nil
}

func (s *StagedFileStore) openStream(ctx context.Context, name string) (*stagedStream, error) {
	s.mu.Lock()
	stream, ok := s.streams[name]
	s.mu.Unlock()
	if ok {
		return stream, nil
	}
	tmpPath := name + stagedSuffix
	f, err := s.fileIO.OpenWrite(ctx, tmpPath)
	if err != nil {
		return nil, err
	}
	stream = &stagedStream{file: f, tmpPath: tmpPath}
	s.mu.Lock()
	s.streams[name] = stream
	s.mu.Unlock()
	return stream, nil
}

// StageRead decodes one value of the committed content of name into v. The read handle
// is closed before returning; reads are never kept open across calls.
func (s *StagedFileStore) StageRead(ctx context.Context, name string, v any) error {
	r, err := s.fileIO.OpenRead(ctx, name)
	if err != nil {
		return err
	}
	defer func() {
		_ = r.Close()
	}()
	if err := s.marshaler.Decode(r, v); err != nil {
		return packdb.Error{Code: packdb.SerializationError, Err: err, UserData: name}
	}
	return nil
}

// Commit makes the staged content of name durable and replaces the committed file with it.
// It returns false, ErrNotStaged when nothing is staged for name.
func (s *StagedFileStore) Commit(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	stream, ok := s.streams[name]
	s.mu.Unlock()
	if !ok {
		return false, packdb.ErrNotStaged
	}
	if syncer, ok := stream.file.(interface{ Sync() error }); ok {
		if err := syncer.Sync(); err != nil {
			return false, packdb.Error{Code: packdb.FileIOError, Err: err, UserData: name}
		}
	}
	if err := stream.file.Close(); err != nil {
		// The temp file may be incomplete, so it must never be renamed into place.
		s.Discard(ctx, name)
		return false, packdb.Error{Code: packdb.FileIOError, Err: err, UserData: name}
	}
	stream.file = nopWriteCloser{}
	if err := s.fileIO.Rename(ctx, stream.tmpPath, name); err != nil {
		return false, err
	}
	s.forget(name)
	return true, nil
}

// Discard drops the staged content of name, if any.
func (s *StagedFileStore) Discard(ctx context.Context, name string) {
	s.mu.Lock()
	stream, ok := s.streams[name]
	s.mu.Unlock()
	if !ok {
		return
	}
	_ = stream.file.Close()
	stream.file = nopWriteCloser{}
	if s.fileIO.Exists(ctx, stream.tmpPath) {
		if err := s.fileIO.Remove(ctx, stream.tmpPath); err != nil {
			log.Warn("failed to remove staged file", "file", stream.tmpPath, "error", err)
		}
	}
	s.forget(name)
}

// IsStaged reports whether name has a staged stream.
func (s *StagedFileStore) IsStaged(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.streams[name]
	return ok
}

func (s *StagedFileStore) forget(name string) {
	s.mu.Lock()
	delete(s.streams, name)
	s.mu.Unlock()
}

// Exists reports whether the committed file exists.
func (s *StagedFileStore) Exists(ctx context.Context, name string) bool {
	return s.fileIO.Exists(ctx, name)
}

// Delete removes the committed file.
func (s *StagedFileStore) Delete(ctx context.Context, name string) error {
	return s.fileIO.Remove(ctx, name)
}

// SoftDelete renames name to name.deleted.
func (s *StagedFileStore) SoftDelete(ctx context.Context, name string) error {
	return s.fileIO.Rename(ctx, name, name+deletedSuffix)
}

// RestoreSoftDelete renames name.deleted back to name. Nothing to restore is not an error.
func (s *StagedFileStore) RestoreSoftDelete(ctx context.Context, name string) error {
	if !s.fileIO.Exists(ctx, name+deletedSuffix) {
		return nil
	}
	return s.fileIO.Rename(ctx, name+deletedSuffix, name)
}

// ListIDs returns the stem of every file directly under folder whose name ends in "."+ext.
// The stem is the part of the name before its first dot.
func (s *StagedFileStore) ListIDs(ctx context.Context, folder, ext string) ([]string, error) {
	if !s.fileIO.Exists(ctx, folder) {
		return nil, nil
	}
	entries, err := s.fileIO.ReadDir(ctx, folder)
	if err != nil {
		return nil, fmt.Errorf("list %s files in %s: %w", ext, folder, err)
	}
	suffix := "." + ext
	var stems []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), suffix) {
			continue
		}
		stem, _, _ := strings.Cut(e.Name(), ".")
		stems = append(stems, stem)
	}
	return stems, nil
}

// folderOf returns the folder of a type inside the data root.
func folderOf(root, typeName string) string {
	return filepath.Join(root, typeName)
}

type nopWriteCloser struct{}

func (nopWriteCloser) Write(p []byte) (int, error) {
	return 0, errors.New("staged stream already closed")
}

func (nopWriteCloser) Close() error {
	return nil
}
