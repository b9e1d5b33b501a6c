// Package vbs reads scattered VLBI recordings: one logical byte stream
// stored as many chunk files spread over several mountpoints (FlexBuff
// layout) or packed into one container file per mountpoint (Mark6 layout).
// Both layouts are presented through a POSIX-like open/read/seek/close
// surface on a Registry, plus an io.ReadSeekCloser adapter.
package vbs

import (
	"github.com/spf13/afero"

	"github.com/pharaofranz/jive5ab/pkg/logger"
)

// A chunk is one contiguous physical piece of a recording.
type chunk struct {
	seq    int   // sequence number, unique within a set
	size   int64 // payload bytes
	offset int64 // position of the chunk's first byte within the virtual file
	pos    int64 // position of the chunk's data within its physical file
	src    source
}

// source is the descriptor capability backing a chunk. Exactly two variants
// exist: a path owned by this chunk alone (FlexBuff) and a container handle
// shared with every other chunk from the same physical file (Mark6).
type source interface {
	// handle returns an open file for the chunk's data. The file position
	// is unspecified; callers seek before reading.
	handle() (afero.File, error)
	// release closes an exclusively owned handle and resets it to the
	// lazily-openable state. Shared handles are untouched; they are closed
	// once, by the open file owning the chunk set.
	release()
	// shared returns the container handle backing this source, or nil for
	// exclusively owned sources.
	shared() *containerHandle
}

// exclusiveSource opens its path on first use and can be released
// independently of any other chunk. Sequential readers keep at most one of
// these open per recording.
type exclusiveSource struct {
	fs   afero.Fs
	path string
	f    afero.File
}

func (s *exclusiveSource) handle() (afero.File, error) {
	if s.f != nil {
		return s.f, nil
	}
	f, err := s.fs.Open(s.path)
	if err != nil {
		return nil, err
	}
	logger.Debug("opened chunk", "path", s.path)
	s.f = f
	return s.f, nil
}

func (s *exclusiveSource) release() {
	if s.f != nil {
		s.f.Close()
		s.f = nil
		logger.Debug("closed chunk", "path", s.path)
	}
}

func (s *exclusiveSource) shared() *containerHandle { return nil }

// containerHandle is one open Mark6 container file, referenced by every
// chunk parsed out of it. Its lifetime is governed by the open file owning
// the chunk set, not by any individual chunk.
type containerHandle struct {
	path string
	f    afero.File
}

func (h *containerHandle) close() {
	if h.f != nil {
		h.f.Close()
		h.f = nil
		logger.Debug("closed container", "path", h.path)
	}
}

type sharedSource struct {
	h *containerHandle
}

func (s *sharedSource) handle() (afero.File, error) { return s.h.f, nil }
func (s *sharedSource) release()                    {}
func (s *sharedSource) shared() *containerHandle    { return s.h }

// closeShared closes every distinct container handle referenced by chunks,
// each exactly once regardless of how many chunks share it.
func closeShared(chunks []*chunk) {
	seen := make(map[*containerHandle]bool)
	for _, c := range chunks {
		if h := c.src.shared(); h != nil && !seen[h] {
			seen[h] = true
			h.close()
		}
	}
}
