package history

// versionLedger maps each object to the ordered list of canonical
// transaction IDs whose writes produced its successive versions. The ledger
// mirrors physical reality: every write is recorded, so a transaction that
// writes the same row three times appears three times. Coalescing to one
// logical write per (transaction, object) happens in the accumulator, not
// here; later readers need the full physical lineage to compute observed
// histories.
type versionLedger map[ObjectID][]int64

// historyOf returns the object's version list, possibly empty. The returned
// slice is the ledger's own backing array; callers must copy before
// retaining.
func (l versionLedger) historyOf(obj ObjectID) []int64 {
	return l[obj]
}

// recordWrite appends a physical write to the object's version list.
func (l versionLedger) recordWrite(obj ObjectID, canonical int64) {
	l[obj] = append(l[obj], canonical)
}
