// internal/app/system/mergeflow/transitions.go
package mergeflow

import "github.com/dalemusser/reviewhub/internal/domain/models"

// transitions lists the explicit status changes allowed through SetStatus.
// Merged is reached only through Merge or ForceMerge. Any non-terminal
// status may close.
var transitions = map[models.PRStatus][]models.PRStatus{
	models.StatusDraft:     {models.StatusOpen},
	models.StatusOpen:      {models.StatusDraft, models.StatusReviewing},
	models.StatusReviewing: {models.StatusApproved, models.StatusRejected},
	models.StatusApproved:  {models.StatusReviewing},
	models.StatusRejected:  {models.StatusReviewing},
}

// forceMergeFrom are the statuses a force merge may start from.
var forceMergeFrom = []models.PRStatus{
	models.StatusOpen,
	models.StatusReviewing,
	models.StatusApproved,
	models.StatusRejected,
}

// reviewableFrom are the statuses that accept review decisions.
var reviewableFrom = []models.PRStatus{
	models.StatusOpen,
	models.StatusReviewing,
	models.StatusApproved,
	models.StatusRejected,
}

// IsTerminal reports whether no further transitions are possible.
func IsTerminal(s models.PRStatus) bool {
	return s == models.StatusMerged || s == models.StatusClosed
}

// CanTransition reports whether SetStatus may move from to to.
func CanTransition(from, to models.PRStatus) bool {
	if IsTerminal(from) || from == to {
		return false
	}
	if to == models.StatusClosed {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func contains(list []models.PRStatus, s models.PRStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
