// Package stream implements the append-only log data structure backing the
// XADD/XRANGE/XREAD commands: entries keyed by a two-part, lexicographically
// ordered ID.
package stream

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
)

// ID is a (milliseconds, sequence) pair with lexicographic ordering.
type ID struct {
	Ms  uint64
	Seq uint64
}

// Zero is the forbidden, never-insertable ID.
var Zero = ID{}

// Less reports whether id sorts strictly before other.
func (id ID) Less(other ID) bool {
	if id.Ms != other.Ms {
		return id.Ms < other.Ms
	}
	return id.Seq < other.Seq
}

// LessEq reports whether id sorts at or before other.
func (id ID) LessEq(other ID) bool {
	return id == other || id.Less(other)
}

// Next returns the ID immediately following id in sequence order.
func (id ID) Next() ID {
	if id.Seq == math.MaxUint64 {
		return ID{Ms: id.Ms + 1, Seq: 0}
	}
	return ID{Ms: id.Ms, Seq: id.Seq + 1}
}

// String renders id in "ms-seq" form.
func (id ID) String() string {
	return fmt.Sprintf("%d-%d", id.Ms, id.Seq)
}

// DefaultSeq selects which sequence number a bare "ms" ID (no "-seq" suffix)
// resolves to, per the two range-bound conventions used by XRANGE.
type DefaultSeq int

const (
	SeqMin DefaultSeq = iota
	SeqMax
)

// Entry is one appended record: an ID and its ordered field/value pairs.
type Entry struct {
	ID     ID
	Fields []string // flattened key, value, key, value, ...
}

// Stream is an ordered, append-only sequence of Entries plus the per-ms
// sequence counters used to auto-assign IDs.
type Stream struct {
	mu           sync.Mutex
	entries      []Entry
	lastSeqForMs map[uint64]uint64
	tail         ID
}

// New returns an empty stream.
func New() *Stream {
	return &Stream{lastSeqForMs: make(map[uint64]uint64)}
}

// ParseID parses the four id-text forms XADD/XRANGE accept: "*", a bare ms,
// "ms-*", and "ms-seq". nowMs supplies the clock reading for "*". def
// selects the sequence a bare ms resolves to.
func (s *Stream) ParseID(text string, def DefaultSeq, nowMs uint64) (ID, error) {
	if text == "*" {
		return ID{Ms: nowMs, Seq: 0}, nil
	}

	ms, seqPart, hasDash := strings.Cut(text, "-")
	msVal, err := strconv.ParseUint(ms, 10, 64)
	if err != nil {
		return ID{}, fmt.Errorf("stream: invalid stream ID %q", text)
	}

	if !hasDash {
		seq := uint64(0)
		if def == SeqMax {
			seq = math.MaxUint64
		}
		return ID{Ms: msVal, Seq: seq}, nil
	}

	if seqPart == "*" {
		s.mu.Lock()
		last, ok := s.lastSeqForMs[msVal]
		s.mu.Unlock()
		var seq uint64
		switch {
		case ok:
			seq = last + 1
		case msVal == 0:
			seq = 1
		default:
			seq = 0
		}
		return ID{Ms: msVal, Seq: seq}, nil
	}

	seqVal, err := strconv.ParseUint(seqPart, 10, 64)
	if err != nil {
		return ID{}, fmt.Errorf("stream: invalid stream ID %q", text)
	}
	return ID{Ms: msVal, Seq: seqVal}, nil
}

// XAdd appends a new entry with the given id and field/value pairs. It
// reports false, appending nothing, when id does not exceed the current
// tail id — the caller (the command layer) distinguishes "id was 0-0" from
// "id too small" by comparing id against Zero itself, the way the reference
// command body does.
func (s *Stream) XAdd(id ID, fields []string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id.LessEq(s.tail) {
		return false
	}
	s.entries = append(s.entries, Entry{ID: id, Fields: fields})
	s.lastSeqForMs[id.Ms] = id.Seq
	s.tail = id
	return true
}

// TailID returns the greatest inserted ID, or the zero ID when empty.
func (s *Stream) TailID() ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tail
}

// XRange returns all entries with min <= id <= max. A nil min is treated as
// (0,0); a nil max is treated as an open upper bound (tail+1).
func (s *Stream) XRange(min, max *ID) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	lo := Zero
	if min != nil {
		lo = *min
	}
	hi := s.tail.Next()
	if max != nil {
		hi = *max
	}

	out := make([]Entry, 0)
	for _, e := range s.entries {
		if lo.LessEq(e.ID) && e.ID.LessEq(hi) {
			out = append(out, e)
		}
	}
	return out
}

// XRead returns all entries with id strictly greater than start.
func (s *Stream) XRead(start ID) []Entry {
	next := start.Next()
	return s.XRange(&next, nil)
}
