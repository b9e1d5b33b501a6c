package vbs

import "sort"

// chunkSet is the ordered collection of all chunks composing one recording.
// It is built once from scan results: chunks are sorted by sequence number,
// then every chunk gets its offset within the virtual file assigned in a
// single accumulating pass. Membership never changes afterwards.
//
// A sparse set (missing sequence numbers) is legal; offsets accumulate over
// the chunks that do exist, so the virtual file is always densely addressed.
type chunkSet struct {
	chunks []*chunk
	index  map[int]int // sequence number -> position in chunks
	size   int64       // total virtual bytes
}

func newChunkSet(chunks []*chunk) *chunkSet {
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].seq < chunks[j].seq })
	cs := &chunkSet{chunks: chunks, index: make(map[int]int, len(chunks))}
	for i, c := range cs.chunks {
		c.offset = cs.size
		cs.size += c.size
		cs.index[c.seq] = i
	}
	return cs
}

// coverage is the fraction of sequence numbers present, assuming the
// recording runs from 0 through the highest sequence number found.
func (cs *chunkSet) coverage() float64 {
	if len(cs.chunks) == 0 {
		return 0
	}
	last := cs.chunks[len(cs.chunks)-1].seq
	return float64(len(cs.chunks)) / float64(last+1)
}
