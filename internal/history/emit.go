package history

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// DefaultFilterPrefixes drops system-table traffic. The mix of bare and
// trailing-dot forms is kept verbatim from the instrumented servers this was
// built against: "mysql" matches both "mysql.user" and "mysqlfoo.bar".
// Encoder.SchemaBoundary tightens bare prefixes to schema boundaries.
var DefaultFilterPrefixes = []string{"mysql", "sys.", "INFORMATION_SCHEMA.", "PERFORMANCE_SCHEMA."}

// Encoder writes a History in the checker's list-append encoding: one
// invoke/ok record pair per transaction, one record per line. The byte-level
// shape of this output is a compatibility contract with the external
// checker; do not reorder fields or reformat numbers.
type Encoder struct {
	// FilterPrefixes lists case-sensitive table-name prefixes; a transaction
	// touching any matching table is dropped in its entirety. Partially
	// filtered transactions would yield a misleading history.
	FilterPrefixes []string

	// SchemaBoundary restricts prefixes without a trailing dot to match only
	// the whole schema name ("mysql" matches "mysql.user" but not
	// "mysqlfoo.bar").
	SchemaBoundary bool
}

func (e *Encoder) filtered(tx *Transaction) bool {
	for _, op := range tx.Ops {
		for _, prefix := range e.FilterPrefixes {
			if e.matches(op.Object.Table, prefix) {
				return true
			}
		}
	}
	return false
}

func (e *Encoder) matches(table, prefix string) bool {
	if e.SchemaBoundary && !strings.HasSuffix(prefix, ".") {
		return table == prefix || strings.HasPrefix(table, prefix+".")
	}
	return strings.HasPrefix(table, prefix)
}

// Encode emits the surviving transactions in order. Record indices are
// global and gapless starting at zero.
func (e *Encoder) Encode(w io.Writer, h *History) error {
	bw := bufio.NewWriter(w)
	index := 0
	for _, tx := range h.Transactions {
		if e.filtered(tx) {
			continue
		}
		invoke, ok := renderValues(tx.Ops)
		if _, err := fmt.Fprintf(bw, "{:type :invoke, :process %d, :time %d, :index %d, :value [%s]}\n",
			tx.ID, tx.BeginTime, index, invoke); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(bw, "{:type :ok, :process %d, :time %d, :index %d, :value [%s]}\n",
			tx.ID, tx.EndTime, index+1, ok); err != nil {
			return err
		}
		index += 2
	}
	return bw.Flush()
}

// renderValues renders a transaction's ops for the invoke and ok records.
// The two differ only in the read history component: the invoke does not yet
// know what the read will observe, so it carries nil.
func renderValues(ops []Op) (invoke, ok string) {
	invokeOps := make([]string, 0, len(ops))
	okOps := make([]string, 0, len(ops))
	for _, op := range ops {
		key := op.Object.Key()
		switch op.Kind {
		case OpRead:
			invokeOps = append(invokeOps, fmt.Sprintf("[:r %s nil]", key))
			okOps = append(okOps, fmt.Sprintf("[:r %s [%s]]", key, joinInts(op.Observed)))
		case OpAppend:
			rendered := fmt.Sprintf("[:append %s %d]", key, op.Value)
			invokeOps = append(invokeOps, rendered)
			okOps = append(okOps, rendered)
		}
	}
	return strings.Join(invokeOps, " "), strings.Join(okOps, " ")
}

func joinInts(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, " ")
}
