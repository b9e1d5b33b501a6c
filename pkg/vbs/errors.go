package vbs

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the public Registry surface. Mountpoint-level
// filesystem trouble (missing directories, permission denials) never shows
// up here; those mountpoints simply contribute nothing.
var (
	// ErrNotFound: no chunk of the recording exists on any supplied
	// mountpoint.
	ErrNotFound = errors.New("recording not found")
	// ErrBadDescriptor: the descriptor does not refer to an open recording.
	ErrBadDescriptor = errors.New("bad file descriptor")
	// ErrInvalidArgument: empty recording name, no mountpoints, bad whence
	// or a seek resolving to a negative position.
	ErrInvalidArgument = errors.New("invalid argument")
)

// ScanError reports a broken chunk layout: duplicate sequence numbers, a
// malformed container block, or a chunk file that matched but could not be
// sized. It is distinct from ErrNotFound so callers can tell "no such
// recording" apart from "found something but it's corrupt".
type ScanError struct {
	Recording string
	Path      string
	Sequence  int // -1 when no particular chunk is implicated
	Err       error
}

func (e *ScanError) Error() string {
	if e.Sequence >= 0 {
		return fmt.Sprintf("scan %s: chunk %d in %s: %v", e.Recording, e.Sequence, e.Path, e.Err)
	}
	return fmt.Sprintf("scan %s: %s: %v", e.Recording, e.Path, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }
