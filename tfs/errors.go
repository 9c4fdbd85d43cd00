package tfs

import (
	"errors"
	"fmt"

	"github.com/rarydzu/tfs/tfs/block"
	"github.com/rarydzu/tfs/tfs/dir"
	"github.com/rarydzu/tfs/tfs/file"
	"github.com/rarydzu/tfs/tfs/inode"
	"github.com/ztrue/tracerr"
)

var (
	ErrInvalidPath   = errors.New("invalid path")
	ErrInvalidOffset = errors.New("invalid offset")
	ErrNotFound      = errors.New("no such file")
	ErrAlreadyExists = errors.New("file exists")
	ErrWrongType     = errors.New("wrong file type")
	ErrTableFull     = errors.New("table full")
	ErrPoolExhausted = errors.New("block pool exhausted")
	ErrBadHandle     = errors.New("bad file handle")
	ErrTooManyLinks  = errors.New("too many levels of symbolic links")
	ErrStaleHandle   = errors.New("stale file handle")
	ErrNameTooLong   = errors.New("name too long")
	ErrDestroyed     = errors.New("filesystem destroyed")
)

// OpError records a failed engine operation.
type OpError struct {
	Op   string
	Path string
	Err  error
}

func (e *OpError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// translate maps errors of the table packages onto the public sentinels.
func translate(err error) error {
	var kind error
	switch {
	case errors.Is(err, dir.ErrNotFound), errors.Is(err, inode.ErrNoSuchInode):
		kind = ErrNotFound
	case errors.Is(err, dir.ErrExists):
		kind = ErrAlreadyExists
	case errors.Is(err, dir.ErrDirectoryFull), errors.Is(err, inode.ErrTableFull), errors.Is(err, file.ErrTableFull):
		kind = ErrTableFull
	case errors.Is(err, block.ErrPoolExhausted):
		kind = ErrPoolExhausted
	case errors.Is(err, file.ErrBadHandle):
		kind = ErrBadHandle
	case errors.Is(err, dir.ErrNameTooLong):
		kind = ErrNameTooLong
	case errors.Is(err, dir.ErrInvalidName):
		kind = ErrInvalidPath
	case errors.Is(err, block.ErrReallocated):
		kind = ErrStaleHandle
	default:
		return err
	}
	if err == kind {
		return err
	}
	return fmt.Errorf("%v: %w", err, kind)
}

func (fs *Tfs) opErr(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var oe *OpError
	if errors.As(err, &oe) {
		return err
	}
	err = translate(err)
	fs.log.Debugf("%s(%s): %v", op, path, err)
	return &OpError{Op: op, Path: path, Err: err}
}

// invariant aborts on a broken lock discipline. Continuing would hand out
// corrupted state.
func (fs *Tfs) invariant(format string, args ...interface{}) {
	err := tracerr.Errorf(format, args...)
	fs.log.Panicf("invariant violated: %s", tracerr.Sprint(err))
}
