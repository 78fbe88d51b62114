// Package ring implements the receive ring buffer owned by the link
// layer: a single-producer (port reads), single-consumer
// (packet decoder) circular byte buffer. One slot is always left
// unused so that start == end is unambiguously "empty" rather than
// colliding with "full". Reads go through a two-cursor "peek then
// commit" pattern so the decoder can re-scan a partially framed packet
// without losing data that has already been copied out.
package ring

// MinCapacity is the smallest sane ring size: it must hold at least
// two maximum-size packets plus slack for in-flight I/O.
const MinCapacity = 2*(6+4095+4) + 64

// Ring is a fixed-capacity circular byte buffer.
type Ring struct {
	buf   []byte
	start int // consumer cursor: first occupied byte
	end   int // producer cursor: first free byte
}

// New allocates a ring of the given capacity. Capacity below
// MinCapacity is raised to MinCapacity.
func New(capacity int) *Ring {
	if capacity < MinCapacity {
		capacity = MinCapacity
	}
	return &Ring{buf: make([]byte, capacity+1)}
}

// Reset empties the ring without releasing its backing storage.
func (r *Ring) Reset() {
	r.start = 0
	r.end = 0
}

// Space returns how many bytes may still be written before the ring
// is full (at most len(buf)-1, per the one-slot-reserved contract).
func (r *Ring) Space() int {
	space := r.start - r.end - 1
	if space < 0 {
		space += len(r.buf)
	}
	return space
}

// Occupied returns how many bytes are available to read.
func (r *Ring) Occupied() int {
	occ := r.end - r.start
	if occ < 0 {
		occ += len(r.buf)
	}
	return occ
}

// Capacity returns the usable capacity (one less than the backing
// storage, per the reserved-slot contract).
func (r *Ring) Capacity() int {
	return len(r.buf) - 1
}

// WriteSpans returns up to two contiguous slices into the ring's free
// region, suitable for a port read to fill directly (avoids a copy).
// The caller must follow a successful read with Commit(n).
func (r *Ring) WriteSpans() (first, second []byte) {
	space := r.Space()
	if r.end+space <= len(r.buf) {
		return r.buf[r.end : r.end+space], nil
	}
	first = r.buf[r.end:]
	second = r.buf[:space-len(first)]
	return first, second
}

// Commit advances the producer cursor by n bytes, as if that many
// bytes had been written into the spans returned by WriteSpans.
func (r *Ring) Commit(n int) {
	r.end = (r.end + n) % len(r.buf)
}

// Write copies buf into the ring's free region, truncating silently
// if it does not fit. Callers that must not lose data check Space
// first; a port read reports partial completion instead of blocking.
func (r *Ring) Write(buf []byte) int {
	n := len(buf)
	if n > r.Space() {
		n = r.Space()
	}
	first, second := r.WriteSpans()
	written := copy(first, buf[:n])
	if written < n {
		written += copy(second, buf[written:n])
	}
	r.Commit(written)
	return written
}

// PeekSpans returns up to two contiguous read-only slices covering the
// first n occupied bytes (or fewer, if the ring holds less than n),
// without consuming them. Use Advance to consume after decoding.
func (r *Ring) PeekSpans(n int) (first, second []byte) {
	occ := r.Occupied()
	if n > occ {
		n = occ
	}
	if r.end >= r.start {
		if n > len(r.buf)-r.start {
			n = len(r.buf) - r.start
		}
		return r.buf[r.start : r.start+n], nil
	}
	tail := len(r.buf) - r.start
	if n <= tail {
		return r.buf[r.start : r.start+n], nil
	}
	return r.buf[r.start:], r.buf[:n-tail]
}

// PeekRange returns up to two contiguous read-only slices covering
// the n occupied bytes starting offset positions after start, without
// consuming anything. Callers must ensure offset+n <= Occupied().
func (r *Ring) PeekRange(offset, n int) (first, second []byte) {
	pos := (r.start + offset) % len(r.buf)
	tail := len(r.buf) - pos
	if n <= tail {
		return r.buf[pos : pos+n], nil
	}
	return r.buf[pos:], r.buf[:n-tail]
}

// ByteAt returns the occupied byte i positions after start, without
// consuming anything. Callers must ensure i < Occupied().
func (r *Ring) ByteAt(i int) byte {
	return r.buf[(r.start+i)%len(r.buf)]
}

// Advance consumes n occupied bytes, moving them out of the ring.
func (r *Ring) Advance(n int) {
	r.start = (r.start + n) % len(r.buf)
}
