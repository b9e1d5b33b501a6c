package vbs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/pharaofranz/jive5ab/pkg/logger"
)

// chunkNamePattern matches FlexBuff chunk files: the recording name, a dot,
// and an eight-digit decimal sequence number. The recording name is quoted
// first; operators do create recordings with pattern metacharacters ("+",
// ".") in their names and those must match literally.
func chunkNamePattern(recording string) *regexp.Regexp {
	return regexp.MustCompile("^" + regexp.QuoteMeta(recording) + `\.[0-9]{8}$`)
}

// scanFlexBuff walks mountpoint/<recording>/ on every mountpoint and
// returns one chunk per matching file. Mountpoints that do not carry the
// recording are skipped silently; that is the normal operating condition.
// The same sequence number appearing twice, on one mountpoint or across
// two, is corruption and aborts the scan.
func scanFlexBuff(fs afero.Fs, recording string, mountpoints []string) ([]*chunk, error) {
	var (
		chunks []*chunk
		seen   = make(map[int]string) // sequence -> path of first sighting
		pat    = chunkNamePattern(recording)
	)
	for _, mp := range mountpoints {
		dir := filepath.Join(mp, recording)
		fi, err := fs.Stat(dir)
		if err != nil {
			if !os.IsNotExist(err) {
				logger.Debug("cannot stat recording directory", "dir", dir, "err", err)
			}
			continue
		}
		if !fi.IsDir() {
			continue
		}
		entries, err := afero.ReadDir(fs, dir)
		if err != nil {
			logger.Debug("cannot list recording directory", "dir", dir, "err", err)
			continue
		}
		for _, entry := range entries {
			if !pat.MatchString(entry.Name()) {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			c, err := newFlexBuffChunk(fs, path)
			if err != nil {
				return nil, &ScanError{Recording: recording, Path: path, Sequence: -1, Err: err}
			}
			if first, dup := seen[c.seq]; dup {
				return nil, &ScanError{
					Recording: recording,
					Path:      path,
					Sequence:  c.seq,
					Err:       fmt.Errorf("duplicate chunk, first seen as %s", first),
				}
			}
			seen[c.seq] = path
			chunks = append(chunks, c)
		}
	}
	return chunks, nil
}

// newFlexBuffChunk parses the sequence number from the filename suffix and
// measures the chunk by seeking to its end; sizes recorded anywhere else
// are not trusted.
func newFlexBuffChunk(fs afero.Fs, path string) (*chunk, error) {
	base := filepath.Base(path)
	dot := strings.LastIndexByte(base, '.')
	if dot < 0 {
		return nil, fmt.Errorf("no sequence number suffix in %q", base)
	}
	// Base 10 explicitly: the suffix is mostly leading zeroes and must not
	// be taken for octal.
	seq, err := strconv.ParseUint(base[dot+1:], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("parse sequence number: %w", err)
	}
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	size, err := f.Seek(0, io.SeekEnd)
	f.Close()
	if err != nil {
		return nil, err
	}
	return &chunk{
		seq:  int(seq),
		size: size,
		src:  &exclusiveSource{fs: fs, path: path},
	}, nil
}
