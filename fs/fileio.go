package fs

import (
	"context"
	"io"
	"os"
	"path/filepath"

	retry "github.com/sethvargo/go-retry"

	"github.com/packdb/packdb"
)

const (
	dirPerm  os.FileMode = 0o755
	filePerm os.FileMode = 0o644
)

// FileIO defines filesystem operations used by this package. The default
// implementation delegates to the standard library's os package with retry
// semantics for transient errors.
type FileIO interface {
	// OpenWrite creates or truncates name, creating parent directories as needed.
	OpenWrite(ctx context.Context, name string) (io.WriteCloser, error)
	OpenRead(ctx context.Context, name string) (io.ReadCloser, error)
	Exists(ctx context.Context, name string) bool
	Remove(ctx context.Context, name string) error
	Rename(ctx context.Context, from, to string) error
	ReadDir(ctx context.Context, dir string) ([]os.DirEntry, error)
}

type defaultFileIO struct {
}

// NewFileIO returns a FileIO that performs I/O via the os package with basic
// retry handling for transient errors.
func NewFileIO() FileIO {
	return &defaultFileIO{}
}

func (dio defaultFileIO) OpenWrite(ctx context.Context, name string) (io.WriteCloser, error) {
	var f *os.File
	err := packdb.Retry(ctx, func(context.Context) error {
		var err error
		f, err = os.OpenFile(name, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, filePerm)
		if os.IsNotExist(err) {
			if err = os.MkdirAll(filepath.Dir(name), dirPerm); err == nil {
				f, err = os.OpenFile(name, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, filePerm)
			}
		}
		return retryable(err)
	}, nil)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (dio defaultFileIO) OpenRead(ctx context.Context, name string) (io.ReadCloser, error) {
	var f *os.File
	err := packdb.Retry(ctx, func(context.Context) error {
		var err error
		f, err = os.Open(name)
		return retryable(err)
	}, nil)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (dio defaultFileIO) Exists(ctx context.Context, name string) bool {
	_, err := os.Stat(name)
	return err == nil
}

func (dio defaultFileIO) Remove(ctx context.Context, name string) error {
	return packdb.Retry(ctx, func(context.Context) error {
		return retryable(os.Remove(name))
	}, nil)
}

func (dio defaultFileIO) Rename(ctx context.Context, from, to string) error {
	return packdb.Retry(ctx, func(context.Context) error {
		return retryable(os.Rename(from, to))
	}, nil)
}

func (dio defaultFileIO) ReadDir(ctx context.Context, dir string) ([]os.DirEntry, error) {
	var r []os.DirEntry
	err := packdb.Retry(ctx, func(context.Context) error {
		var err error
		r, err = os.ReadDir(dir)
		return retryable(err)
	}, nil)
	return r, err
}

// retryable marks transient errors for retry and passes permanent ones through so
// Retry gives up on them immediately.
func retryable(err error) error {
	if err == nil {
		return nil
	}
	ioErr := packdb.Error{Code: packdb.FileIOError, Err: err}
	if packdb.ShouldRetry(err) {
		return retry.RetryableError(ioErr)
	}
	return ioErr
}
