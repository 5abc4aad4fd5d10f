package lifecycle

import "tasktrail/internal/domain"

// allowedTransitions enumerates every legal status change. COMPLETED is
// terminal; CANCELLED can be reopened. Self-transitions are always allowed
// and handled separately in CanTransition.
var allowedTransitions = map[domain.Status][]domain.Status{
	domain.StatusOpen:       {domain.StatusInProgress, domain.StatusCancelled},
	domain.StatusInProgress: {domain.StatusCompleted, domain.StatusCancelled},
	domain.StatusCancelled:  {domain.StatusOpen},
	domain.StatusCompleted:  {},
}

// CanTransition reports whether a status change is legal. It is pure and
// side-effect free.
func CanTransition(from, to domain.Status) bool {
	if from == to {
		return true
	}
	for _, allowed := range allowedTransitions[from] {
		if to == allowed {
			return true
		}
	}
	return false
}

func ensureTransition(from, to domain.Status) error {
	if !CanTransition(from, to) {
		return InvalidTransitionError{From: from, To: to}
	}
	return nil
}
