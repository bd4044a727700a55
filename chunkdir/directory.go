// Package chunkdir records where each delivered chunk landed so it can be
// re-read by sequence number.
package chunkdir

import (
	"maps"
	"slices"

	"github.com/pithecene-io/imagestream/types"
)

// Directory maps sequence numbers to chunk placements for one frame
// session. It is not internally locked; the owning session controller
// serializes access.
type Directory struct {
	records map[uint32]types.ChunkRecord
}

// New returns an empty directory.
func New() *Directory {
	return &Directory{records: make(map[uint32]types.ChunkRecord)}
}

// Put inserts rec, overwriting any record with the same sequence number.
func (d *Directory) Put(rec types.ChunkRecord) {
	d.records[rec.Seq] = rec
}

// Get returns the record for seq.
func (d *Directory) Get(seq uint32) (types.ChunkRecord, bool) {
	rec, ok := d.records[seq]
	return rec, ok
}

// Len returns the number of records.
func (d *Directory) Len() int {
	return len(d.records)
}

// Reset drops all records.
func (d *Directory) Reset() {
	clear(d.records)
}

// Records returns all records ordered by sequence number.
func (d *Directory) Records() []types.ChunkRecord {
	out := make([]types.ChunkRecord, 0, len(d.records))
	for _, seq := range slices.Sorted(maps.Keys(d.records)) {
		out = append(out, d.records[seq])
	}
	return out
}
