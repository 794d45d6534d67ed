package engine

import "errors"

// Typed outcomes of engine operations. Everything except ErrSigning is
// normal control flow the caller is expected to handle.
var (
	ErrNotFound               = errors.New("checkout session not found")
	ErrConflict               = errors.New("checkout session version conflict")
	ErrInvalidState           = errors.New("operation not allowed in current checkout state")
	ErrValidation             = errors.New("invalid checkout request")
	ErrIncompleteRequirements = errors.New("checkout requirements not met")
	ErrSigning                = errors.New("mandate signing failed")
)
