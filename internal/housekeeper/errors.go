package housekeeper

import "errors"

// Domain errors for the housekeeper package.
//
// These can be checked with errors.Is():
//
//	if errors.Is(err, housekeeper.ErrNoPlan) {
//	    // plan before apply
//	}
var (
	// ErrNoPlan is returned by Apply when no plan has been persisted yet.
	ErrNoPlan = errors.New("housekeeper: no plan found; run plan first")

	// ErrNoRollback is returned by Rollback when no rollback record exists.
	ErrNoRollback = errors.New("housekeeper: no rollback available")
)
