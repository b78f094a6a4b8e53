// Package trace reads the per-row event traces emitted by an instrumented
// database server. A trace is UTF-8 text with one event per line and seven
// tab-separated fields:
//
//	thread_id  trx_id  event_type  table  column  row  last_writer_id
//
// The reader assigns each line a virtual event time (one tick per physical
// line, valid or not) and silently skips lines it cannot parse; instrumented
// servers produce noisy traces and the goal is to recover as much as
// possible, not to validate the emitter.
package trace

import (
	"fmt"
	"strconv"
	"strings"
)

type EventType string

const (
	EventBegin   EventType = "BEGIN"
	EventCommit  EventType = "COMMIT"
	EventPromote EventType = "PROMOTE"
	EventRead    EventType = "READ"
	EventInsert  EventType = "INSERT"
	EventUpdate  EventType = "UPDATE"
	EventDelete  EventType = "DELETE"
)

// notApplicable is the literal the server writes for fields that do not
// apply to an event (e.g. the table of a BEGIN).
const notApplicable = "N/A"

const fieldCount = 7

// Record is a single parsed trace event.
type Record struct {
	// Time is the virtual event time stamped by the Reader; it is zero for
	// records produced by ParseRecord directly.
	Time int64

	// ThreadID and Column are carried verbatim; the history only cares
	// about transaction and row identities.
	ThreadID   string
	TrxID      int64
	Type       EventType
	Table      string // "" when the trace says N/A
	Column     string
	Row        int64
	HasRow     bool // false when the trace says N/A
	LastWriter int64
}

// IsWrite reports whether the record is a physical write event.
func (r Record) IsWrite() bool {
	switch r.Type {
	case EventInsert, EventUpdate, EventDelete:
		return true
	}
	return false
}

// ParseRecord parses one trace line. The line must split into exactly seven
// tab-separated fields with valid decimal integers in the numeric positions
// and a recognized event type; anything else is an error.
func ParseRecord(line string) (Record, error) {
	parts := strings.Split(line, "\t")
	if len(parts) != fieldCount {
		return Record{}, fmt.Errorf("expected %d tab-separated fields, got %d", fieldCount, len(parts))
	}

	trxID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("invalid transaction id %q: %w", parts[1], err)
	}
	lastWriter, err := strconv.ParseInt(parts[6], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("invalid last writer id %q: %w", parts[6], err)
	}

	rec := Record{
		ThreadID:   parts[0],
		TrxID:      trxID,
		Column:     parts[4],
		LastWriter: lastWriter,
	}

	switch t := EventType(parts[2]); t {
	case EventBegin, EventCommit, EventPromote, EventRead, EventInsert, EventUpdate, EventDelete:
		rec.Type = t
	default:
		return Record{}, fmt.Errorf("unknown event type %q", parts[2])
	}

	if parts[3] != notApplicable {
		rec.Table = parts[3]
	}
	if parts[5] != notApplicable {
		row, err := strconv.ParseInt(parts[5], 10, 64)
		if err != nil {
			return Record{}, fmt.Errorf("invalid row id %q: %w", parts[5], err)
		}
		rec.Row = row
		rec.HasRow = true
	}

	return rec, nil
}
