package session

// DiffResult holds the outcome of comparing two session snapshots.
// Created sessions are present now but not before; Removed sessions
// were present before but are gone now. Sessions whose id appears on
// both sides produce no entry even if their raw fields changed.
type DiffResult struct {
	Created []Session
	Removed []Session
}

// Diff compares a previous and a current session list keyed by id.
// Both inputs may be nil (treated as empty). The function is pure and
// independent of list order.
func Diff(previous, current []Session) DiffResult {
	prevIDs := make(map[string]bool, len(previous))
	for _, s := range previous {
		prevIDs[s.ID] = true
	}
	currIDs := make(map[string]bool, len(current))
	for _, s := range current {
		currIDs[s.ID] = true
	}

	var result DiffResult
	for _, s := range current {
		if !prevIDs[s.ID] {
			result.Created = append(result.Created, s)
		}
	}
	for _, s := range previous {
		if !currIDs[s.ID] {
			result.Removed = append(result.Removed, s)
		}
	}
	return result
}
