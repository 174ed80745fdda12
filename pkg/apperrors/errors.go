package apperrors

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrMissingExternalID     = errors.New("missing external identifier")
	ErrInvalidCandidateState = errors.New("candidate is not in a reviewable state")
	ErrMergeAlreadyUndone    = errors.New("merge has already been undone")
	ErrNoUndoPayload         = errors.New("merge record has no undo payload")
	ErrMappingConflict       = errors.New("active identifier mapping already exists")
)
