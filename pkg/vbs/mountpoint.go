package vbs

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/spf13/afero"

	"github.com/pharaofranz/jive5ab/pkg/logger"
)

var diskDirPattern = regexp.MustCompile(`^disk[0-9]+$`)

// FindMountpoints lists the FlexBuff data disks under root: directories
// named disk0, disk1, and so on. A root that does not exist or is not a
// directory is an error; a root with no disks returns an empty list.
func FindMountpoints(fs afero.Fs, root string) ([]string, error) {
	fi, err := fs.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("mountpoint root: %w", err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("mountpoint root %s: not a directory", root)
	}
	entries, err := afero.ReadDir(fs, root)
	if err != nil {
		return nil, fmt.Errorf("mountpoint root: %w", err)
	}
	var mps []string
	for _, e := range entries {
		if e.IsDir() && diskDirPattern.MatchString(e.Name()) {
			mps = append(mps, filepath.Join(root, e.Name()))
		}
	}
	sort.Strings(mps)
	return mps, nil
}

// ListRecordings names every recording visible on the mountpoints: FlexBuff
// chunk directories and Mark6 version-2 container files. Names are
// deduplicated across mountpoints and returned sorted with their format.
// Unreadable mountpoints contribute nothing.
func ListRecordings(fs afero.Fs, mountpoints []string) (map[string]Format, error) {
	found := make(map[string]Format)
	for _, mp := range mountpoints {
		entries, err := afero.ReadDir(fs, mp)
		if err != nil {
			logger.Debug("cannot list mountpoint", "mountpoint", mp, "err", err)
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				found[e.Name()] = FlexBuff
				continue
			}
			if !e.Mode().IsRegular() {
				continue
			}
			f, err := fs.Open(filepath.Join(mp, e.Name()))
			if err != nil {
				continue
			}
			_, ok := readMk6FileHeader(f)
			f.Close()
			if ok {
				found[e.Name()] = Mk6
			}
		}
	}
	return found, nil
}
