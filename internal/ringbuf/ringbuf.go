// Package ringbuf provides a fixed-capacity, overwrite-oldest ring buffer of
// model.Bar values for one symbol. Push is O(1); Window reads the trailing
// values of a single field into a caller-owned scratch slice without
// allocating.
package ringbuf

import "trend-backtest/internal/model"

// Field selects which bar component Window extracts.
type Field uint8

const (
	FieldOpen Field = iota
	FieldHigh
	FieldLow
	FieldClose
	FieldVolume
)

func (f Field) String() string {
	switch f {
	case FieldOpen:
		return "open"
	case FieldHigh:
		return "high"
	case FieldLow:
		return "low"
	case FieldClose:
		return "close"
	case FieldVolume:
		return "volume"
	default:
		return "unknown"
	}
}

func (f Field) of(b *model.Bar) float64 {
	switch f {
	case FieldOpen:
		return b.Open
	case FieldHigh:
		return b.High
	case FieldLow:
		return b.Low
	case FieldVolume:
		return b.Volume
	default:
		return b.Close
	}
}

// Series holds the most recent Cap() bars.
// Logical position i of the push history lives in slot i % Cap().
// Not safe for concurrent use.
type Series struct {
	buf   []model.Bar
	total uint64 // pushes since creation or Reset, never decreases otherwise
	count int    // occupied slots, saturates at len(buf)
}

// New creates a series holding up to capacity bars. Minimum capacity is 1.
func New(capacity int) *Series {
	if capacity < 1 {
		capacity = 1
	}
	return &Series{buf: make([]model.Bar, capacity)}
}

// Push appends a bar, overwriting the oldest once the series is full.
func (s *Series) Push(b model.Bar) {
	s.buf[s.total%uint64(len(s.buf))] = b
	s.total++
	if s.count < len(s.buf) {
		s.count++
	}
}

// Len returns the number of retained bars.
func (s *Series) Len() int { return s.count }

// Cap returns the series capacity.
func (s *Series) Cap() int { return len(s.buf) }

// Total returns how many bars have ever been pushed.
func (s *Series) Total() uint64 { return s.total }

// At returns the retained bar at logical index i, where 0 is the oldest
// retained bar and Len()-1 the newest.
func (s *Series) At(i int) (model.Bar, bool) {
	if i < 0 || i >= s.count {
		return model.Bar{}, false
	}
	oldest := s.total - uint64(s.count)
	return s.buf[(oldest+uint64(i))%uint64(len(s.buf))], true
}

// Last returns the most recently pushed bar.
func (s *Series) Last() (model.Bar, bool) {
	if s.count == 0 {
		return model.Bar{}, false
	}
	return s.buf[(s.total-1)%uint64(len(s.buf))], true
}

// Window writes the last period values of field f into dst in chronological
// order and returns dst[:period]. It returns ok=false, without touching dst,
// when period is outside [1, Cap()] or fewer than period bars are retained.
//
// dst is only grown when its capacity is below period; pools size their
// scratch buffers up front so the hot path never allocates.
func (s *Series) Window(f Field, period int, dst []float64) (out []float64, ok bool) {
	if period < 1 || period > len(s.buf) || s.count < period {
		return nil, false
	}
	if cap(dst) < period {
		dst = make([]float64, period)
	}
	dst = dst[:period]

	n := len(s.buf)
	start := int((s.total - uint64(period)) % uint64(n))

	// The window may span the end of the array: tail segment first, then head.
	tail := n - start
	if tail > period {
		tail = period
	}
	for i := 0; i < tail; i++ {
		dst[i] = f.of(&s.buf[start+i])
	}
	for i := tail; i < period; i++ {
		dst[i] = f.of(&s.buf[i-tail])
	}
	return dst, true
}

// Reset empties the series for reuse without releasing its storage.
func (s *Series) Reset() {
	s.total = 0
	s.count = 0
	for i := range s.buf {
		s.buf[i] = model.Bar{}
	}
}
