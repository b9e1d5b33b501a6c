package vbs

import (
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// scanCache remembers the chunk layout of recently scanned recordings so
// repeated opens skip the directory walk (FlexBuff) or the block walk
// (Mark6). Only immutable metadata is cached; descriptors are materialized
// fresh for every open. Entries expire so a recording still being written
// converges on its real extent.
type chunkInfo struct {
	seq    int
	size   int64
	pos    int64
	path   string
	shared bool
}

type scanCache struct {
	lru *expirable.LRU[string, []chunkInfo]
}

func newScanCache(size int, ttl time.Duration) *scanCache {
	return &scanCache{lru: expirable.NewLRU[string, []chunkInfo](size, nil, ttl)}
}

func cacheKey(recording string, mountpoints []string, format Format) string {
	return fmt.Sprintf("%s:%s:%s", format, recording, strings.Join(mountpoints, ","))
}

func (sc *scanCache) get(recording string, mountpoints []string, format Format) ([]chunkInfo, bool) {
	return sc.lru.Get(cacheKey(recording, mountpoints, format))
}

func (sc *scanCache) put(recording string, mountpoints []string, format Format, chunks []*chunk) {
	infos := make([]chunkInfo, 0, len(chunks))
	for _, c := range chunks {
		in := chunkInfo{seq: c.seq, size: c.size, pos: c.pos}
		switch s := c.src.(type) {
		case *exclusiveSource:
			in.path = s.path
		case *sharedSource:
			in.path = s.h.path
			in.shared = true
		}
		infos = append(infos, in)
	}
	sc.lru.Add(cacheKey(recording, mountpoints, format), infos)
}

func (sc *scanCache) drop(recording string, mountpoints []string, format Format) {
	sc.lru.Remove(cacheKey(recording, mountpoints, format))
}

// materialize rebuilds chunks from cached metadata: exclusive sources stay
// lazy, container files are reopened once each and shared by their chunks.
func (r *Registry) materialize(infos []chunkInfo) ([]*chunk, error) {
	handles := make(map[string]*containerHandle)
	chunks := make([]*chunk, 0, len(infos))
	for _, in := range infos {
		c := &chunk{seq: in.seq, size: in.size, pos: in.pos}
		if in.shared {
			h := handles[in.path]
			if h == nil {
				f, err := r.fs.Open(in.path)
				if err != nil {
					for _, open := range handles {
						open.close()
					}
					return nil, err
				}
				h = &containerHandle{path: in.path, f: f}
				handles[in.path] = h
			}
			c.src = &sharedSource{h: h}
		} else {
			c.src = &exclusiveSource{fs: r.fs, path: in.path}
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}
