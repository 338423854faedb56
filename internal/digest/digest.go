// Package digest implements Tacit's append-only string store: a byte
// region holding length-prefixed entries, with xxhash-bucketed interning
// so intern/find don't degrade to a linear scan as programs grow. The
// byte-region shape is grounded in emul/memory.go's loadByte/storeByte;
// the hash bucketing is grounded in arloliu-mebo/internal/hash's
// xxhash.Sum64String usage (github.com/cespare/xxhash/v2).
package digest

import (
	"github.com/cespare/xxhash/v2"

	"github.com/tacitlang/tacit/internal/errs"
	"github.com/tacitlang/tacit/internal/mem"
)

// NotFound is the sentinel address returned by Find when a string isn't
// present in the digest yet.
const NotFound = -1

// MaxEntryLen is the largest string addable: the length prefix is a
// single byte.
const MaxEntryLen = 255

// Digest is the append-only string store. Each entry is one length byte
// (0..255) followed by that many bytes of text.
type Digest struct {
	seg     *mem.ByteSegment
	buckets map[uint64][]int // hash -> entry start offsets, for intern/find
}

// New allocates a digest with the given byte capacity.
func New(capacity int) *Digest {
	return &Digest{
		seg:     mem.NewByteSegment(capacity, "digest"),
		buckets: make(map[uint64][]int),
	}
}

// Add writes s as a new entry and returns its address, without checking
// for an existing copy. Fails StringTooLong if s exceeds 255 bytes, or
// DigestOverflow if the segment is exhausted.
func (d *Digest) Add(s string) (int, error) {
	if len(s) > MaxEntryLen {
		return 0, errs.New(errs.StringTooLong, "digest.add", "string exceeds 255 bytes")
	}
	addr := d.seg.Len()
	if _, err := d.seg.Append([]byte{byte(len(s))}); err != nil {
		return 0, errs.Wrap(errs.DigestOverflow, "digest.add", err)
	}
	if len(s) > 0 {
		if _, err := d.seg.Append([]byte(s)); err != nil {
			return 0, errs.Wrap(errs.DigestOverflow, "digest.add", err)
		}
	}
	h := xxhash.Sum64String(s)
	d.buckets[h] = append(d.buckets[h], addr)
	return addr, nil
}

// Length returns the byte length of the entry at addr.
func (d *Digest) Length(addr int) (int, error) {
	n, err := d.seg.Read8(addr)
	if err != nil {
		return 0, errs.Wrap(errs.OutOfBounds, "digest.length", err)
	}
	return int(n), nil
}

// Get reads the string stored at addr.
func (d *Digest) Get(addr int) (string, error) {
	n, err := d.seg.Read8(addr)
	if err != nil {
		return "", errs.Wrap(errs.OutOfBounds, "digest.get", err)
	}
	if n == 0 {
		return "", nil
	}
	buf := make([]byte, n)
	for i := 0; i < int(n); i++ {
		b, err := d.seg.Read8(addr + 1 + i)
		if err != nil {
			return "", errs.Wrap(errs.OutOfBounds, "digest.get", err)
		}
		buf[i] = b
	}
	return string(buf), nil
}

// Find does a hash-bucketed lookup of s, falling back to byte comparison
// within the bucket (the spec's linear scan, narrowed from "all entries"
// to "entries sharing s's hash"). Returns NotFound if absent.
func (d *Digest) Find(s string) (int, error) {
	h := xxhash.Sum64String(s)
	for _, addr := range d.buckets[h] {
		got, err := d.Get(addr)
		if err != nil {
			return 0, err
		}
		if got == s {
			return addr, nil
		}
	}
	return NotFound, nil
}

// Intern finds s or adds it, returning its address either way.
func (d *Digest) Intern(s string) (int, error) {
	addr, err := d.Find(s)
	if err != nil {
		return 0, err
	}
	if addr != NotFound {
		return addr, nil
	}
	return d.Add(s)
}
