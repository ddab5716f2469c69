package entity

// TiebreakerMode selects among equally-ranked candidates.
type TiebreakerMode string

const (
	// TiebreakerRaise makes no choice when candidates tie; callers
	// surface the key as ambiguous.
	TiebreakerRaise TiebreakerMode = "raise"
	// TiebreakerLesser chooses the tied candidate with the lowest value.
	TiebreakerLesser TiebreakerMode = "lesser"
	// TiebreakerGreater chooses the tied candidate with the highest value.
	TiebreakerGreater TiebreakerMode = "greater"
)

// NotFoundMode selects behavior when no candidate clears the score
// threshold.
type NotFoundMode string

const (
	// NotFoundRaise returns a KeyNotFound error with near-miss diagnostics.
	NotFoundRaise NotFoundMode = "raise"
	// NotFoundNone returns no entity and no error.
	NotFoundNone NotFoundMode = "none"
	// NotFoundAllow synthesizes a pass-through entity from the key.
	NotFoundAllow NotFoundMode = "allow"
)

// DuplicateMode selects behavior when the same value is added twice.
type DuplicateMode string

const (
	// DuplicateMerge unions aliases and meta of the duplicate add.
	DuplicateMerge DuplicateMode = "merge"
	// DuplicateReject fails the add.
	DuplicateReject DuplicateMode = "reject"
)
