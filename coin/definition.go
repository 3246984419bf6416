// Package coin implements the block/chain data model: chain definitions,
// the immutable signed Block, and the append-only Chain that walks its
// ownership history.
package coin

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/saintthor/chainplay/crypto"
)

// SerialRange is an inclusive integer interval `[Start, End]` of serial
// numbers, all carrying the same face Value.
type SerialRange struct {
	Start int64  `json:"start"`
	End   int64  `json:"end"`
	Value uint64 `json:"value"`
}

// Definition is an immutable description of the coin chains a simulation
// run mints: a human description plus a set of non-overlapping serial
// ranges, each with a face value. Its Fingerprint is a SHA-256 over a
// canonical encoding of the description and ranges, and is embedded in
// every Root block minted from it.
type Definition struct {
	Description string        `json:"description"`
	Ranges      []SerialRange `json:"ranges"`
	Fingerprint string        `json:"fingerprint"`
}

// NewDefinition validates that ranges are well-formed and pairwise
// non-overlapping, then computes the fingerprint.
func NewDefinition(description string, ranges []SerialRange) (*Definition, error) {
	sorted := make([]SerialRange, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	for i, r := range sorted {
		if r.End < r.Start {
			return nil, fmt.Errorf("coin: range %d has end %d before start %d", i, r.End, r.Start)
		}
		if i > 0 && r.Start <= sorted[i-1].End {
			return nil, fmt.Errorf("coin: range %d [%d,%d] overlaps previous range [%d,%d]",
				i, r.Start, r.End, sorted[i-1].Start, sorted[i-1].End)
		}
	}

	d := &Definition{Description: description, Ranges: sorted}
	d.Fingerprint = d.computeFingerprint()
	return d, nil
}

func (d *Definition) computeFingerprint() string {
	var buf bytes.Buffer
	writeLenPrefixed(&buf, []byte(d.Description))
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(d.Ranges)))
	buf.Write(n[:])
	for _, r := range d.Ranges {
		binary.BigEndian.PutUint64(n[:], uint64(r.Start))
		buf.Write(n[:])
		binary.BigEndian.PutUint64(n[:], uint64(r.End))
		buf.Write(n[:])
		binary.BigEndian.PutUint64(n[:], r.Value)
		buf.Write(n[:])
	}
	return crypto.Hash(buf.Bytes())
}

// ValueOf returns the face value of the unique range containing serial, or
// 0 if serial falls outside every range.
func (d *Definition) ValueOf(serial int64) uint64 {
	for _, r := range d.Ranges {
		if serial >= r.Start && serial <= r.End {
			return r.Value
		}
	}
	return 0
}

// AllSerials returns every serial number covered by d's ranges, in
// ascending order. Used by ChainManager to mint one chain per serial.
func (d *Definition) AllSerials() []int64 {
	var out []int64
	for _, r := range d.Ranges {
		for s := r.Start; s <= r.End; s++ {
			out = append(out, s)
		}
	}
	return out
}

func writeLenPrefixed(buf *bytes.Buffer, b []byte) {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(b)))
	buf.Write(n[:])
	buf.Write(b)
}
