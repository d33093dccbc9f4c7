package registry

import "github.com/compose-network/rollup-job-handler/internal/rollup"

// allowed lists the legal lifecycle edges. Failed is never terminal: every operation may be
// retried from it.
var allowed = map[rollup.Status][]rollup.Status{
	rollup.StatusCreated:  {rollup.StatusStarting, rollup.StatusActive, rollup.StatusFailed},
	rollup.StatusStarting: {rollup.StatusActive, rollup.StatusFailed},
	rollup.StatusActive:   {rollup.StatusStopping, rollup.StatusInactive, rollup.StatusFailed},
	rollup.StatusStopping: {rollup.StatusInactive, rollup.StatusFailed},
	rollup.StatusInactive: {rollup.StatusStarting, rollup.StatusActive, rollup.StatusFailed},
	rollup.StatusFailed: {
		rollup.StatusStarting,
		rollup.StatusStopping,
		rollup.StatusActive,
		rollup.StatusInactive,
		rollup.StatusFailed,
	},
}

// CanTransition reports whether from -> to is a legal lifecycle edge.
func CanTransition(from, to rollup.Status) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}
