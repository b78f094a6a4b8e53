package trace

import (
	"bufio"
	"io"
	"strings"
)

// maxLineBytes caps the scanner buffer, well above bufio's 64 KiB default so
// that long corrupted lines are still read and skipped. A line longer than
// this stops the scan: Next returns false and Err reports bufio.ErrTooLong.
const maxLineBytes = 1 << 20

// Reader yields parsed records from a trace stream in file order.
//
// The event-time counter ticks exactly once per physical input line,
// including blank and malformed lines, so every parsed record carries a
// strictly larger Time than all lines before it.
type Reader struct {
	s    *bufio.Scanner
	time int64
}

func NewReader(r io.Reader) *Reader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &Reader{s: s}
}

// Next returns the next well-formed record, skipping anything ParseRecord
// rejects. It returns false at end of stream or on a read error; check Err
// to tell the two apart.
func (r *Reader) Next() (Record, bool) {
	for r.s.Scan() {
		r.time++
		line := strings.TrimSpace(r.s.Text())
		if line == "" {
			continue
		}
		rec, err := ParseRecord(line)
		if err != nil {
			continue
		}
		rec.Time = r.time
		return rec, true
	}
	return Record{}, false
}

// Time returns the current value of the event-time counter: the number of
// physical lines consumed so far.
func (r *Reader) Time() int64 { return r.time }

// Err returns the first I/O error encountered, if any.
func (r *Reader) Err() error { return r.s.Err() }
