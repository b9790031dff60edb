package repository

import "errors"

// ErrDuplicateID indicates an insert with an observation id that already
// exists somewhere in the store. Ids are unique across all API keys.
var ErrDuplicateID = errors.New("duplicate observation id")
