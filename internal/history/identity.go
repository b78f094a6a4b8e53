package history

// identityMap is the transaction-ID forwarding table fed by PROMOTE events.
//
// The table is flat by construction: every promotion immediately reparents
// the accumulated transaction record (see Translator.Apply), so entries
// always point at a terminal canonical ID and resolve never chases chains.
type identityMap map[int64]int64

// resolve returns the canonical ID for a raw ID, defaulting to the raw ID
// itself when no promotion has been recorded.
func (m identityMap) resolve(raw int64) int64 {
	if canonical, ok := m[raw]; ok {
		return canonical
	}
	return raw
}

// promote records that old was actually the same logical transaction as new.
func (m identityMap) promote(old, new int64) {
	m[old] = new
}
