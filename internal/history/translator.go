package history

import (
	"log/slog"
	"os"
	"sort"

	"github.com/kamiliarsyad/isofuzz/internal/trace"
)

const timeUnset = -1

// Transaction accumulates the logical operations of one canonical
// transaction ID.
type Transaction struct {
	ID        int64
	BeginTime int64 // event time of the first BEGIN, -1 if none seen
	EndTime   int64 // event time of the last COMMIT, -1 if never committed
	Ops       []Op

	// written tracks objects this transaction already contributed a logical
	// write for, so repeated physical writes coalesce into one append.
	written map[ObjectID]struct{}
}

// Committed reports whether the transaction will survive emission: it must
// have committed and have done at least one logical operation.
func (t *Transaction) Committed() bool {
	return t.EndTime != timeUnset && len(t.Ops) > 0
}

type TranslatorOption func(*Translator)

func WithLogger(logger *slog.Logger) TranslatorOption {
	return func(t *Translator) {
		t.log = logger
	}
}

// Translator is the single owner of the identity forwarding table, the
// version ledger, and the transaction table. It consumes trace records in
// file order; the observed-history computation is order-sensitive, so no
// reordering or parallel chunking is permitted.
type Translator struct {
	log      *slog.Logger
	ids      identityMap
	versions versionLedger
	txns     map[int64]*Transaction
}

func NewTranslator(opts ...TranslatorOption) *Translator {
	t := &Translator{
		ids:      make(identityMap),
		versions: make(versionLedger),
		txns:     make(map[int64]*Transaction),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.log == nil {
		t.log = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return t
}

// txn returns the record for a canonical ID, creating it lazily. A record
// created by a non-BEGIN event keeps BeginTime unset until a BEGIN arrives.
func (t *Translator) txn(canonical int64) *Transaction {
	tx, ok := t.txns[canonical]
	if !ok {
		tx = &Transaction{
			ID:        canonical,
			BeginTime: timeUnset,
			EndTime:   timeUnset,
			written:   make(map[ObjectID]struct{}),
		}
		t.txns[canonical] = tx
	}
	return tx
}

// Apply feeds one record through the state machine.
func (t *Translator) Apply(rec trace.Record) {
	if rec.Type == trace.EventPromote {
		t.promote(rec.LastWriter, rec.TrxID)
		return
	}

	canonical := t.ids.resolve(rec.TrxID)

	switch rec.Type {
	case trace.EventBegin:
		tx := t.txn(canonical)
		if tx.BeginTime == timeUnset {
			tx.BeginTime = rec.Time
		}
	case trace.EventCommit:
		// A COMMIT for an unknown transaction is dropped: there is nothing
		// to emit for it anyway.
		if tx, ok := t.txns[canonical]; ok {
			tx.EndTime = rec.Time
		}
	case trace.EventRead, trace.EventInsert, trace.EventUpdate, trace.EventDelete:
		if rec.Table == "" || !rec.HasRow {
			return
		}
		obj := ObjectID{Table: rec.Table, Row: rec.Row}
		if rec.Type == trace.EventRead {
			t.applyRead(canonical, obj, rec.LastWriter)
		} else {
			t.applyWrite(canonical, obj)
		}
	}
}

// promote redirects a raw ID to its canonical ID and reparents any state
// accumulated under the old ID. Promotion is authoritative: if a record
// already exists under the new ID, the old record supersedes it.
func (t *Translator) promote(old, new int64) {
	t.ids.promote(old, new)
	if old == new {
		return
	}
	if tx, ok := t.txns[old]; ok {
		tx.ID = new
		// Logical writes are attributed to the canonical ID; appends
		// accumulated under the old identity follow it.
		for i := range tx.Ops {
			if tx.Ops[i].Kind == OpAppend {
				tx.Ops[i].Value = new
			}
		}
		t.txns[new] = tx
		delete(t.txns, old)
	}
}

// applyRead appends a read op with the version prefix the read witnessed.
// Reads never touch the ledger.
func (t *Translator) applyRead(canonical int64, obj ObjectID, lastWriter int64) {
	tx := t.txn(canonical)
	tx.Ops = append(tx.Ops, Op{
		Kind:     OpRead,
		Object:   obj,
		Observed: t.observedHistory(obj, lastWriter),
	})
}

// observedHistory computes the prefix of the object's version list ending at
// the first occurrence of the reported last writer. If the writer is absent
// from the ledger its own write event is missing from the trace; a non-zero
// writer then stands alone as the object's initial visible version, and the
// zero sentinel means the read saw the primordial empty version.
func (t *Translator) observedHistory(obj ObjectID, lastWriter int64) []int64 {
	h := t.versions.historyOf(obj)
	for i, id := range h {
		if id == lastWriter {
			observed := make([]int64, i+1)
			copy(observed, h[:i+1])
			return observed
		}
	}
	if lastWriter != 0 {
		return []int64{lastWriter}
	}
	return nil
}

// applyWrite records the physical write in the ledger unconditionally and
// appends at most one logical write per (transaction, object).
func (t *Translator) applyWrite(canonical int64, obj ObjectID) {
	tx := t.txn(canonical)
	if _, done := tx.written[obj]; !done {
		tx.Ops = append(tx.Ops, Op{
			Kind:   OpAppend,
			Object: obj,
			Value:  canonical,
		})
		tx.written[obj] = struct{}{}
	}
	t.versions.recordWrite(obj, canonical)
}

// Consume streams a whole trace through Apply and returns the reader's I/O
// error, if any.
func (t *Translator) Consume(r *trace.Reader) error {
	for {
		rec, ok := r.Next()
		if !ok {
			break
		}
		t.Apply(rec)
	}
	if err := r.Err(); err != nil {
		return err
	}
	t.log.Debug("trace consumed", "lines", r.Time(), "transactions", len(t.txns))
	return nil
}

// History is the final accumulator state: every committed transaction with
// at least one logical operation, in emission order.
type History struct {
	Transactions []*Transaction
}

// History snapshots the committed transactions sorted by begin time, ties
// broken by canonical ID. The order is a deterministic function of the
// input; re-running on the same trace yields byte-identical output.
func (t *Translator) History() *History {
	txns := make([]*Transaction, 0, len(t.txns))
	for _, tx := range t.txns {
		if tx.Committed() {
			txns = append(txns, tx)
		}
	}
	sort.Slice(txns, func(i, j int) bool {
		if txns[i].BeginTime == txns[j].BeginTime {
			return txns[i].ID < txns[j].ID
		}
		return txns[i].BeginTime < txns[j].BeginTime
	})
	return &History{Transactions: txns}
}
