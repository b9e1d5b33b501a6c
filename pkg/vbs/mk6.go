package vbs

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/lunixbochs/struc"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/pharaofranz/jive5ab/pkg/logger"
)

// Mark6 scatter-gather container format: one fixed file header, then a
// sequence of write blocks, each a fixed block header immediately followed
// by payload. Only version 2 is understood; anything else is treated as
// "not a container file" rather than an error.
const (
	mk6SyncWord = 0xfeed6666
	mk6Version  = 2

	mk6FileHeaderSize  = 20
	mk6BlockHeaderSize = 8
)

type mk6FileHeader struct {
	SyncWord     uint32 `struc:",little"`
	Version      int32  `struc:",little"`
	BlockSize    int32  `struc:",little"`
	PacketFormat int32  `struc:",little"`
	PacketSize   int32  `struc:",little"`
}

// mk6BlockHeader precedes every write block. Size counts the whole block,
// header included.
type mk6BlockHeader struct {
	BlockNum int32 `struc:",little"`
	Size     int32 `struc:",little"`
}

// readMk6FileHeader reads and decodes the container file header from the
// current position of f. The bool reports whether this is a version-2
// container we understand.
func readMk6FileHeader(f io.Reader) (mk6FileHeader, bool) {
	var fh mk6FileHeader
	buf := make([]byte, mk6FileHeaderSize)
	if _, err := io.ReadFull(f, buf); err != nil {
		return fh, false
	}
	if err := struc.Unpack(bytes.NewReader(buf), &fh); err != nil {
		return fh, false
	}
	return fh, fh.SyncWord == mk6SyncWord && fh.Version == mk6Version
}

// scanMk6 looks for a container file named after the recording on every
// mountpoint, one worker per mountpoint. Workers parse their container
// independently and merge results under a mutex; the call returns only
// after every worker has finished. A corrupt container anywhere fails the
// whole scan, and any handles already merged are closed before returning.
func scanMk6(fs afero.Fs, recording string, mountpoints []string) ([]*chunk, error) {
	var (
		mu     sync.Mutex
		chunks []*chunk
		seen   = make(map[int]string) // block number -> container of first sighting
		g      errgroup.Group
	)
	for _, mp := range mountpoints {
		path := filepath.Join(mp, recording)
		g.Go(func() error {
			local, h, err := scanMk6File(fs, recording, path)
			if err != nil {
				return err
			}
			if h == nil {
				return nil // nothing usable on this mountpoint
			}
			mu.Lock()
			defer mu.Unlock()
			for _, c := range local {
				if first, dup := seen[c.seq]; dup {
					// Workers cannot predict each other's content, so a
					// block found on two mountpoints is only detectable
					// here. Keep the first, drop this one.
					logger.Warn("duplicate container block across mountpoints",
						"recording", recording, "block", c.seq, "kept", first, "dropped", h.path)
					continue
				}
				seen[c.seq] = h.path
				chunks = append(chunks, c)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		closeShared(chunks)
		return nil, err
	}
	return chunks, nil
}

// scanMk6File parses one container file into chunks sharing a single open
// handle. A missing file, a non-regular file, a wrong sync word or an
// unsupported version all mean "not ours": the mountpoint contributes
// nothing and no error is raised. A malformed block header is fatal for the
// whole recording, because the only way to locate the next block is this
// block's declared size. A short header read is the normal end of stream,
// and a failing seek ends this container's scan keeping what was found so
// far.
//
// On success the returned handle is left open; every returned chunk
// references it.
func scanMk6File(fs afero.Fs, recording, path string) ([]*chunk, *containerHandle, error) {
	fi, err := fs.Stat(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Debug("cannot stat container", "path", path, "err", err)
		}
		return nil, nil, nil
	}
	if !fi.Mode().IsRegular() {
		return nil, nil, nil
	}
	f, err := fs.Open(path)
	if err != nil {
		logger.Debug("cannot open container", "path", path, "err", err)
		return nil, nil, nil
	}
	if fh, ok := readMk6FileHeader(f); !ok {
		logger.Debug("not a version-2 container", "path", path, "version", fh.Version)
		f.Close()
		return nil, nil, nil
	}

	var (
		h      = &containerHandle{path: path, f: f}
		chunks []*chunk
		seen   = make(map[int]bool)
		pos    = int64(mk6FileHeaderSize)
		hdr    = make([]byte, mk6BlockHeaderSize)
	)
	for {
		if _, err := io.ReadFull(f, hdr); err != nil {
			break // end of stream, possibly a torn final header
		}
		var bh mk6BlockHeader
		if err := struc.Unpack(bytes.NewReader(hdr), &bh); err != nil {
			f.Close()
			return nil, nil, &ScanError{Recording: recording, Path: path, Sequence: -1,
				Err: fmt.Errorf("decode write block header at offset %d: %w", pos, err)}
		}
		if bh.BlockNum < 0 || bh.Size < mk6BlockHeaderSize {
			f.Close()
			return nil, nil, &ScanError{Recording: recording, Path: path, Sequence: int(bh.BlockNum),
				Err: fmt.Errorf("bogus write block header at offset %d: block %d, size %d", pos, bh.BlockNum, bh.Size)}
		}
		if seen[int(bh.BlockNum)] {
			f.Close()
			return nil, nil, &ScanError{Recording: recording, Path: path, Sequence: int(bh.BlockNum),
				Err: fmt.Errorf("duplicate write block at offset %d", pos)}
		}
		seen[int(bh.BlockNum)] = true
		pos += mk6BlockHeaderSize
		chunks = append(chunks, &chunk{
			seq:  int(bh.BlockNum),
			size: int64(bh.Size) - mk6BlockHeaderSize,
			pos:  pos,
			src:  &sharedSource{h: h},
		})
		pos += int64(bh.Size) - mk6BlockHeaderSize
		if _, err := f.Seek(pos, io.SeekStart); err != nil {
			// A container truncated mid-block yields fewer chunks, not an
			// error.
			logger.Debug("seek to next block failed", "path", path, "pos", pos, "err", err)
			break
		}
	}
	if len(chunks) == 0 {
		f.Close()
		return nil, nil, nil
	}
	logger.Debug("scanned container", "path", path, "blocks", len(chunks))
	return chunks, h, nil
}
