package vbs

import (
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/pharaofranz/jive5ab/pkg/logger"
)

// Format selects which physical layout a scan looks for.
type Format int

const (
	// FlexBuff recordings are directories of chunk files, one or more per
	// mountpoint.
	FlexBuff Format = iota
	// Mk6 recordings are one container file per mountpoint, many chunks
	// packed behind per-block headers.
	Mk6
)

func (f Format) String() string {
	if f == Mk6 {
		return "mk6"
	}
	return "flexbuff"
}

// openFile assembles a chunk set into one addressable byte range with a
// cursor. focus is the index of the chunk the cursor last touched, so
// sequential reads do not rescan the set; len(set.chunks) means past the
// end.
type openFile struct {
	set   *chunkSet
	pos   int64
	focus int
}

// RecordingInfo describes an open recording.
type RecordingInfo struct {
	Size     int64
	Chunks   int
	Coverage float64 // fraction of sequence numbers present, 0..1
}

// Registry maps synthetic descriptors to open recordings. Descriptors count
// down from the largest 32-bit integer so they can never collide with real,
// kernel-assigned file descriptors. The zero value is not usable; construct
// with NewRegistry. Tests build their own registries over in-memory
// filesystems.
//
// Open and Close take the registry lock exclusively. Read and Seek take it
// shared: the lock guards the descriptor table, not per-recording cursor
// state, so concurrent Read/Seek calls on one descriptor must be serialized
// by the caller.
type Registry struct {
	fs    afero.Fs
	cache *scanCache // nil unless EnableScanCache was called

	mu    sync.RWMutex
	files map[int]*openFile
	next  int
}

func NewRegistry(fs afero.Fs) *Registry {
	return &Registry{
		fs:    fs,
		files: make(map[int]*openFile),
		next:  math.MaxInt32,
	}
}

// EnableScanCache makes the registry remember chunk layouts of recently
// scanned recordings for ttl, so repeated opens skip the directory or block
// walk. Not safe to call once the registry is in use.
func (r *Registry) EnableScanCache(size int, ttl time.Duration) {
	r.cache = newScanCache(size, ttl)
}

// Open scans the mountpoints for the named recording and returns a
// synthetic descriptor for it. The descriptor is meaningful only to this
// registry. Failure is ErrInvalidArgument, ErrNotFound or a *ScanError.
func (r *Registry) Open(recording string, mountpoints []string, format Format) (int, error) {
	if recording == "" || len(mountpoints) == 0 {
		return -1, ErrInvalidArgument
	}
	chunks, err := r.scan(recording, mountpoints, format)
	if err != nil {
		return -1, err
	}
	if len(chunks) == 0 {
		return -1, fmt.Errorf("open %s: %w", recording, ErrNotFound)
	}
	set := newChunkSet(chunks)
	logger.Debug("opened recording", "recording", recording, "format", format.String(),
		"bytes", set.size, "chunks", len(set.chunks), "coverage", set.coverage())

	r.mu.Lock()
	defer r.mu.Unlock()
	fd := r.next
	r.next--
	r.files[fd] = &openFile{set: set}
	return fd, nil
}

func (r *Registry) scan(recording string, mountpoints []string, format Format) ([]*chunk, error) {
	if r.cache != nil {
		if infos, ok := r.cache.get(recording, mountpoints, format); ok {
			if chunks, err := r.materialize(infos); err == nil {
				return chunks, nil
			}
			// A cached layout that no longer materializes is stale; fall
			// through to a fresh scan.
			r.cache.drop(recording, mountpoints, format)
		}
	}
	var (
		chunks []*chunk
		err    error
	)
	switch format {
	case Mk6:
		chunks, err = scanMk6(r.fs, recording, mountpoints)
	default:
		chunks, err = scanFlexBuff(r.fs, recording, mountpoints)
	}
	if err != nil {
		return nil, err
	}
	if r.cache != nil && len(chunks) > 0 {
		r.cache.put(recording, mountpoints, format, chunks)
	}
	return chunks, nil
}

// Read copies up to len(p) bytes at the current cursor into p, walking
// chunks transparently as the cursor crosses their boundaries. A count
// smaller than len(p) is normal at the end of the recording and after a
// chunk that fails to open or read mid-stream; 0 with a nil error means end
// of recording (or an empty p).
func (r *Registry) Read(fd int, p []byte) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	of, ok := r.files[fd]
	if !ok {
		return 0, ErrBadDescriptor
	}
	if len(p) == 0 {
		return 0, nil
	}

	set := of.set
	n := 0
	for n < len(p) && of.focus < len(set.chunks) {
		c := set.chunks[of.focus]
		avail := c.offset + c.size - of.pos
		if avail <= 0 {
			// Chunk exhausted; close an exclusively owned descriptor and
			// move on.
			c.src.release()
			of.focus++
			continue
		}
		f, err := c.src.handle()
		if err != nil {
			// A chunk that cannot be opened truncates the read; whatever
			// preceded it is still delivered.
			logger.Warn("cannot open chunk", "seq", c.seq, "err", err)
			break
		}
		if _, err := f.Seek(of.pos-c.offset+c.pos, io.SeekStart); err != nil {
			logger.Warn("cannot seek chunk", "seq", c.seq, "err", err)
			break
		}
		want := int64(len(p) - n)
		if want > avail {
			want = avail
		}
		rd, err := f.Read(p[n : n+int(want)])
		n += rd
		of.pos += int64(rd)
		if err != nil {
			// io.EOF here means the chunk is physically shorter than its
			// declared size; stop with what we have.
			break
		}
	}
	return n, nil
}

// Seek repositions the cursor with standard io.Seek* whence semantics and
// retargets the chunk focus. Seeking past the end is legal; reads there
// return 0.
func (r *Registry) Seek(fd int, offset int64, whence int) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	of, ok := r.files[fd]
	if !ok {
		return -1, ErrBadDescriptor
	}

	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekEnd:
		target = of.set.size + offset
	case io.SeekCurrent:
		target = of.pos + offset
	default:
		return -1, ErrInvalidArgument
	}
	if target < 0 {
		return -1, ErrInvalidArgument
	}
	if target == of.pos {
		return target, nil
	}

	chunks := of.set.chunks
	focus := 0
	for focus < len(chunks) && target > chunks[focus].offset+chunks[focus].size {
		focus++
	}
	// Leaving the focused chunk bounds open path-based descriptors to one
	// per recording during sequential access.
	if focus != of.focus && of.focus < len(chunks) {
		chunks[of.focus].src.release()
	}
	of.pos = target
	of.focus = focus
	return target, nil
}

// Stat reports size, chunk count and sequence coverage of an open
// recording.
func (r *Registry) Stat(fd int) (RecordingInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	of, ok := r.files[fd]
	if !ok {
		return RecordingInfo{}, ErrBadDescriptor
	}
	return RecordingInfo{
		Size:     of.set.size,
		Chunks:   len(of.set.chunks),
		Coverage: of.set.coverage(),
	}, nil
}

// Close releases the descriptor, closing any exclusively owned chunk
// descriptors still open and each distinct shared container handle exactly
// once.
func (r *Registry) Close(fd int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	of, ok := r.files[fd]
	if !ok {
		return ErrBadDescriptor
	}
	delete(r.files, fd)
	for _, c := range of.set.chunks {
		c.src.release()
	}
	closeShared(of.set.chunks)
	return nil
}

// CloseAll closes every open recording; meant for process shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for fd, of := range r.files {
		for _, c := range of.set.chunks {
			c.src.release()
		}
		closeShared(of.set.chunks)
		delete(r.files, fd)
	}
}
